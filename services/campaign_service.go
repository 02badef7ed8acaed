// services/campaign_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"growth-engine/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CampaignTracker exclusively owns Campaign.CurrentValue and the distinct
// participant set. Progress only accrues while the campaign is active and
// now is inside [StartAt, EndAt]; everything else is a silent no-op. Late
// events stay in the event log but never move a finished campaign.
type CampaignTracker struct {
	DB     *gorm.DB
	Issuer RewardIssuer
	now    func() time.Time
}

func NewCampaignTracker(db *gorm.DB, issuer RewardIssuer) *CampaignTracker {
	return &CampaignTracker{DB: db, Issuer: issuer, now: time.Now}
}

// CampaignSpec is the admin-facing creation payload
type CampaignSpec struct {
	Name         string    `json:"name"`
	TargetMetric string    `json:"target_metric"`
	TargetValue  float64   `json:"target_value"`
	StartAt      time.Time `json:"start_at"`
	EndAt        time.Time `json:"end_at"`
}

// CampaignPatch carries optional admin updates
type CampaignPatch struct {
	Name        *string                `json:"name"`
	TargetValue *float64               `json:"target_value"`
	EndAt       *time.Time             `json:"end_at"`
	Status      *models.CampaignStatus `json:"status"` // only "cancelled" is accepted
}

// Create validates and stores a new campaign in scheduled (or active) state
func (t *CampaignTracker) Create(spec CampaignSpec) (*models.Campaign, error) {
	if spec.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	if !KnownMetrics[spec.TargetMetric] {
		return nil, &ValidationError{Field: "target_metric", Reason: "unknown metric " + spec.TargetMetric}
	}
	if spec.TargetValue <= 0 {
		return nil, &ValidationError{Field: "target_value", Reason: "must be positive"}
	}
	if !spec.EndAt.After(spec.StartAt) {
		return nil, &ValidationError{Field: "end_at", Reason: "must be after start_at"}
	}

	status := models.CampaignStatusScheduled
	if !t.now().Before(spec.StartAt) {
		status = models.CampaignStatusActive
	}

	campaign := models.Campaign{
		ID:           uuid.NewString(),
		Name:         spec.Name,
		Slug:         slug.Make(spec.Name),
		TargetMetric: spec.TargetMetric,
		TargetValue:  spec.TargetValue,
		Status:       status,
		StartAt:      spec.StartAt,
		EndAt:        spec.EndAt,
	}
	if err := t.DB.Create(&campaign).Error; err != nil {
		return nil, &TransientStorageError{Op: "campaign create", Err: err}
	}

	log.Printf("📣 Campaign created: %s (%s) target %s=%.0f", campaign.Name, campaign.Slug, campaign.TargetMetric, campaign.TargetValue)
	return &campaign, nil
}

// Update applies an admin patch. Status may only move to cancelled here; the
// scheduled → active → completed path is time- and value-driven.
func (t *CampaignTracker) Update(campaignID string, patch CampaignPatch) (*models.Campaign, error) {
	var campaign models.Campaign

	err := t.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", campaignID).First(&campaign).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return &TransientStorageError{Op: "campaign lookup", Err: err}
		}

		if patch.Status != nil {
			if *patch.Status != models.CampaignStatusCancelled {
				return &ValidationError{Field: "status", Reason: "only cancellation may be requested"}
			}
			if campaign.Status == models.CampaignStatusCompleted {
				return &ValidationError{Field: "status", Reason: "completed campaigns cannot be cancelled"}
			}
			campaign.Status = models.CampaignStatusCancelled
		}
		if patch.Name != nil {
			campaign.Name = *patch.Name
			campaign.Slug = slug.Make(*patch.Name)
		}
		if patch.TargetValue != nil {
			if *patch.TargetValue <= 0 {
				return &ValidationError{Field: "target_value", Reason: "must be positive"}
			}
			campaign.TargetValue = *patch.TargetValue
		}
		if patch.EndAt != nil {
			campaign.EndAt = *patch.EndAt
		}

		if err := tx.Save(&campaign).Error; err != nil {
			return &TransientStorageError{Op: "campaign save", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// Delete soft-deletes a campaign
func (t *CampaignTracker) Delete(campaignID string) error {
	res := t.DB.Where("id = ?", campaignID).Delete(&models.Campaign{})
	if res.Error != nil {
		return &TransientStorageError{Op: "campaign delete", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordProgress adds metricDelta to the campaign while it is active and in
// window, and adds the actor to the distinct participant set. Idempotent per
// event key; repeat participation grows CurrentValue but not the set.
func (t *CampaignTracker) RecordProgress(campaignID, actorID string, metricDelta float64, idempotencyKey string) error {
	if metricDelta < 0 {
		return &InvariantViolationError{
			Invariant: "campaign monotonicity",
			Detail:    fmt.Sprintf("negative progress delta %f for campaign %s", metricDelta, campaignID),
		}
	}

	err := t.DB.Transaction(func(tx *gorm.DB) error {
		marker := models.AppliedEvent{IdempotencyKey: idempotencyKey, Component: "campaign"}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&marker)
		if res.Error != nil {
			return &TransientStorageError{Op: "applied marker", Err: res.Error}
		}
		if res.RowsAffected == 0 {
			return nil
		}

		now := t.now()
		res = tx.Model(&models.Campaign{}).
			Where("id = ? AND status = ? AND start_at <= ? AND end_at >= ?",
				campaignID, models.CampaignStatusActive, now, now).
			UpdateColumn("current_value", gorm.Expr("current_value + ?", metricDelta))
		if res.Error != nil {
			return &TransientStorageError{Op: "progress increment", Err: res.Error}
		}
		if res.RowsAffected == 0 {
			// not active or out of window: dropped from progress, kept in the log
			return nil
		}

		participant := models.CampaignParticipant{CampaignID: campaignID, ActorID: actorID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&participant).Error; err != nil {
			return &TransientStorageError{Op: "participant insert", Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// completion is evaluated lazily; a failed check is caught by the sweep
	if _, err := t.evaluate(campaignID); err != nil {
		log.Printf("⚠️  Campaign %s completion check failed: %v", campaignID, err)
	}
	return nil
}

// GetProgress returns the campaign with its participant count, evaluating
// lazy completion on the way.
func (t *CampaignTracker) GetProgress(campaignID string) (*models.Campaign, error) {
	campaign, err := t.evaluate(campaignID)
	if err != nil {
		return nil, err
	}

	var participants int64
	err = t.DB.Model(&models.CampaignParticipant{}).
		Where("campaign_id = ?", campaignID).
		Count(&participants).Error
	if err != nil {
		return nil, &TransientStorageError{Op: "participant count", Err: err}
	}
	campaign.ParticipantCount = participants
	return campaign, nil
}

// SweepTransitions activates due scheduled campaigns and completes campaigns
// whose target is met or whose window has closed. Runs on a fixed interval;
// transitions are eventually consistent within one sweep.
func (t *CampaignTracker) SweepTransitions() {
	now := t.now()

	res := t.DB.Model(&models.Campaign{}).
		Where("status = ? AND start_at <= ? AND end_at > ?", models.CampaignStatusScheduled, now, now).
		Update("status", models.CampaignStatusActive)
	if res.Error != nil {
		log.Printf("❌ Campaign activation sweep failed: %v", res.Error)
	} else if res.RowsAffected > 0 {
		log.Printf("📣 Activated %d campaign(s)", res.RowsAffected)
	}

	var due []models.Campaign
	err := t.DB.Where("status = ? AND (current_value >= target_value OR end_at < ?)",
		models.CampaignStatusActive, now).
		Find(&due).Error
	if err != nil {
		log.Printf("❌ Campaign completion sweep failed: %v", err)
		return
	}
	for _, campaign := range due {
		if _, err := t.evaluate(campaign.ID); err != nil {
			log.Printf("❌ Campaign %s completion failed: %v", campaign.ID, err)
		}
	}

	// retry reward issuance that failed after completion
	var unissued []models.Campaign
	err = t.DB.Where("status = ? AND reward_issued = ?", models.CampaignStatusCompleted, false).
		Find(&unissued).Error
	if err != nil {
		log.Printf("❌ Reward retry sweep failed: %v", err)
		return
	}
	for i := range unissued {
		t.issueReward(&unissued[i])
	}
}

// evaluate transitions an active campaign to completed when the target is
// reached or the window has closed, then hands it to the reward issuer once.
func (t *CampaignTracker) evaluate(campaignID string) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := t.DB.Where("id = ?", campaignID).First(&campaign).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, &TransientStorageError{Op: "campaign lookup", Err: err}
	}

	if campaign.Status != models.CampaignStatusActive {
		return &campaign, nil
	}

	now := t.now()
	if campaign.CurrentValue < campaign.TargetValue && !now.After(campaign.EndAt) {
		return &campaign, nil
	}

	// guarded update: only ever active → completed, sweep and lazy reads race safely
	res := t.DB.Model(&models.Campaign{}).
		Where("id = ? AND status = ?", campaignID, models.CampaignStatusActive).
		Updates(map[string]interface{}{
			"status":       models.CampaignStatusCompleted,
			"completed_at": now,
		})
	if res.Error != nil {
		return nil, &TransientStorageError{Op: "campaign completion", Err: res.Error}
	}

	campaign.Status = models.CampaignStatusCompleted
	campaign.CompletedAt = &now

	if res.RowsAffected > 0 {
		log.Printf("🏁 Campaign completed: %s (%.0f/%.0f)", campaign.Name, campaign.CurrentValue, campaign.TargetValue)
		t.issueReward(&campaign)
	}
	return &campaign, nil
}

// issueReward invokes the external fulfillment collaborator exactly once
func (t *CampaignTracker) issueReward(campaign *models.Campaign) {
	if t.Issuer == nil {
		return
	}

	res := t.DB.Model(&models.Campaign{}).
		Where("id = ? AND reward_issued = ?", campaign.ID, false).
		Update("reward_issued", true)
	if res.Error != nil || res.RowsAffected == 0 {
		return
	}

	if err := t.Issuer.IssueCampaignReward(campaign); err != nil {
		// roll the flag back so the sweep can retry issuance
		log.Printf("❌ Reward issuance failed for campaign %s: %v", campaign.ID, err)
		t.DB.Model(&models.Campaign{}).
			Where("id = ?", campaign.ID).
			Update("reward_issued", false)
	}
}
