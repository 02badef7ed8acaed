// handlers/admin_routes.go
package handlers

import (
	"growth-engine/middleware"
	"growth-engine/models"
	"growth-engine/services"

	"github.com/gofiber/fiber/v2"
)

// SetupAdminRoutes registers the administrative surface used by the admin UI:
// quota overrides, blocks, moderation decisions, campaign lifecycle.
func SetupAdminRoutes(app *fiber.App, limiter *services.RateLimiter,
	moderation *services.ModerationQueue, campaigns *services.CampaignTracker) {

	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware())

	adminGroup.Post("/users/:id/invite-limit", func(c *fiber.Ctx) error {
		var req struct {
			DailyCap float64 `json:"daily_cap"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		if err := limiter.SetLimit(c.Params("id"), services.ActionInvite, req.DailyCap); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"message":   "Invite limit updated",
			"user_id":   c.Params("id"),
			"daily_cap": req.DailyCap,
		})
	})

	adminGroup.Post("/users/:id/block", func(c *fiber.Ctx) error {
		if err := limiter.BlockUser(c.Params("id")); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"message": "User blocked", "user_id": c.Params("id")})
	})

	adminGroup.Delete("/users/:id/block", func(c *fiber.Ctx) error {
		if err := limiter.UnblockUser(c.Params("id")); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"message": "User unblocked", "user_id": c.Params("id")})
	})

	adminGroup.Post("/moderation/:subjectId/resolve", func(c *fiber.Ctx) error {
		adminID := c.Locals("user_id").(string)

		var req struct {
			Decision models.ModerationStatus `json:"decision"`
			Notes    string                  `json:"notes"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		moderationCase, err := moderation.Resolve(c.Params("subjectId"), req.Decision, adminID, req.Notes)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(moderationCase)
	})

	adminGroup.Delete("/moderation/:subjectId", func(c *fiber.Ctx) error {
		adminID := c.Locals("user_id").(string)

		if err := moderation.Delete(c.Params("subjectId"), adminID); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"message": "Subject deleted", "subject_id": c.Params("subjectId")})
	})

	adminGroup.Get("/moderation/:subjectId", func(c *fiber.Ctx) error {
		moderationCase, err := moderation.GetCase(c.Params("subjectId"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(moderationCase)
	})

	adminGroup.Post("/campaigns", func(c *fiber.Ctx) error {
		var spec services.CampaignSpec
		if err := c.BodyParser(&spec); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		campaign, err := campaigns.Create(spec)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(campaign)
	})

	adminGroup.Patch("/campaigns/:id", func(c *fiber.Ctx) error {
		var patch services.CampaignPatch
		if err := c.BodyParser(&patch); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		campaign, err := campaigns.Update(c.Params("id"), patch)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(campaign)
	})

	adminGroup.Delete("/campaigns/:id", func(c *fiber.Ctx) error {
		if err := campaigns.Delete(c.Params("id")); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"message": "Campaign deleted", "campaign_id": c.Params("id")})
	})
}
