// handlers/event_routes.go
package handlers

import (
	"errors"
	"time"

	"growth-engine/models"
	"growth-engine/services"

	"github.com/gofiber/fiber/v2"
)

// SetupEventRoutes registers the inbound event and creation endpoints used by
// the invite/share/purchase/review collaborators.
func SetupEventRoutes(app *fiber.App, events *services.EventStore, invites *services.InviteService, shares *services.ShareService) {
	// generic ingestion point for external producers
	app.Post("/events", func(c *fiber.Ctx) error {
		var req struct {
			Type           models.EventType `json:"type"`
			ActorID        string           `json:"actor_id"`
			SubjectID      string           `json:"subject_id"`
			SessionToken   string           `json:"session_token"`
			Amount         float64          `json:"amount"`
			CampaignID     string           `json:"campaign_id"`
			OccurredAt     *time.Time       `json:"occurred_at"`
			IdempotencyKey string           `json:"idempotency_key"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		event := models.GrowthEvent{
			Type:           req.Type,
			ActorID:        req.ActorID,
			SubjectID:      req.SubjectID,
			SessionToken:   req.SessionToken,
			Amount:         req.Amount,
			CampaignID:     req.CampaignID,
			IdempotencyKey: req.IdempotencyKey,
		}
		if req.OccurredAt != nil {
			event.OccurredAt = *req.OccurredAt
		}

		result, err := events.Append(&event)
		if err != nil {
			return respondError(c, err)
		}

		status := fiber.StatusCreated
		if result.Duplicate {
			// idempotent replay: success with the original offset
			status = fiber.StatusOK
		}
		return c.Status(status).JSON(fiber.Map{
			"accepted":  true,
			"duplicate": result.Duplicate,
			"offset":    result.Event.Offset,
		})
	})

	// Invite creation is rate-limiter gated
	app.Post("/invites", func(c *fiber.Ctx) error {
		var req struct {
			InviterID      string `json:"inviter_id"`
			InviteeEmail   string `json:"invitee_email"`
			Channel        string `json:"channel"`
			IdempotencyKey string `json:"idempotency_key"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		invite, err := invites.CreateInvite(req.InviterID, req.InviteeEmail, req.Channel, req.IdempotencyKey)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(invite)
	})

	app.Post("/invites/:code/accept", func(c *fiber.Ctx) error {
		var req struct {
			AcceptedByID string `json:"accepted_by_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		invite, err := invites.AcceptInvite(c.Params("code"), req.AcceptedByID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(invite)
	})

	app.Post("/invites/:code/decline", func(c *fiber.Ctx) error {
		var req struct {
			DeclinedByID string `json:"declined_by_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		invite, err := invites.DeclineInvite(c.Params("code"), req.DeclinedByID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(invite)
	})

	// Share creation is rate-limiter gated
	app.Post("/shares", func(c *fiber.Ctx) error {
		var req struct {
			SharerID       string `json:"sharer_id"`
			ProductID      string `json:"product_id"`
			Channel        string `json:"channel"`
			IdempotencyKey string `json:"idempotency_key"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		share, err := shares.CreateShare(req.SharerID, req.ProductID, req.Channel, req.IdempotencyKey)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(share)
	})
}

// respondError maps the service error taxonomy to HTTP statuses
func respondError(c *fiber.Ctx, err error) error {
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationErr.Error()})
	}

	var quotaErr *services.QuotaExceededError
	if errors.As(err, &quotaErr) {
		resp := fiber.Map{"error": quotaErr.Error()}
		if !quotaErr.Blocked {
			resp["retry_after_seconds"] = quotaErr.RetryAfter.Seconds()
		}
		return c.Status(fiber.StatusTooManyRequests).JSON(resp)
	}

	if errors.Is(err, services.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	}

	var transientErr *services.TransientStorageError
	if errors.As(err, &transientErr) {
		// caller retries with the same idempotency key
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "storage unavailable, retry with same idempotency key"})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
