// handlers/query_routes.go
package handlers

import (
	"strconv"
	"strings"
	"time"

	"growth-engine/models"
	"growth-engine/services"

	"github.com/gofiber/fiber/v2"
)

// SetupQueryRoutes registers the read-only reporting endpoints. All of them
// are side-effect-free; filters arrive as request parameters, never shared
// state.
func SetupQueryRoutes(app *fiber.App, leaderboards *services.LeaderboardEngine,
	campaigns *services.CampaignTracker, aggregator *services.CounterAggregator) {

	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		category := c.Query("category", "purchases")
		period := c.Query("period", "all_time")
		limit, _ := strconv.Atoi(c.Query("limit", "50"))

		entries, err := leaderboards.Rank(category, period, limit)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"category": category,
			"period":   period,
			"entries":  entries,
		})
	})

	app.Get("/campaigns/:id/progress", func(c *fiber.Ctx) error {
		campaign, err := campaigns.GetProgress(c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"campaign_id":       campaign.ID,
			"status":            campaign.Status,
			"target_metric":     campaign.TargetMetric,
			"target_value":      campaign.TargetValue,
			"current_value":     campaign.CurrentValue,
			"participant_count": campaign.ParticipantCount,
			"start_at":          campaign.StartAt,
			"end_at":            campaign.EndAt,
			"completed_at":      campaign.CompletedAt,
		})
	})

	app.Get("/counters", func(c *fiber.Ctx) error {
		ownerID := c.Query("owner_id")
		if ownerID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "owner_id is required"})
		}

		metrics := strings.Split(c.Query("metrics", services.MetricInvitesSent), ",")
		for i := range metrics {
			metrics[i] = strings.TrimSpace(metrics[i])
		}

		w := models.Window(c.Query("window", string(models.WindowAllTime)))

		values, err := aggregator.GetCounters(ownerID, metrics, w, time.Now())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"owner_id": ownerID,
			"window":   w,
			"counters": values,
		})
	})
}
