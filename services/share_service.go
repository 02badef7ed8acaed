// services/share_service.go
package services

import (
	"errors"
	"log"
	"time"

	"growth-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ShareService admits product shares, gated by the share quota. Click and
// purchase counts on the record belong to the aggregator.
type ShareService struct {
	DB      *gorm.DB
	Events  *EventStore
	Limiter *RateLimiter
}

func NewShareService(db *gorm.DB, events *EventStore, limiter *RateLimiter) *ShareService {
	return &ShareService{DB: db, Events: events, Limiter: limiter}
}

// CreateShare records a new share. Replaying the same idempotency key returns
// the original share without consuming quota.
func (s *ShareService) CreateShare(sharerID, productID, channel, idempotencyKey string) (*models.ShareRecord, error) {
	if sharerID == "" {
		return nil, &ValidationError{Field: "sharer_id", Reason: "required"}
	}
	if productID == "" {
		return nil, &ValidationError{Field: "product_id", Reason: "required"}
	}
	if idempotencyKey == "" {
		idempotencyKey = "share_created:" + uuid.NewString()
	}

	var priorEvent models.GrowthEvent
	err := s.DB.Where("idempotency_key = ?", idempotencyKey).First(&priorEvent).Error
	if err == nil {
		var share models.ShareRecord
		lookupErr := s.DB.Where("id = ?", priorEvent.SubjectID).First(&share).Error
		if lookupErr != nil {
			return nil, &TransientStorageError{Op: "share replay lookup", Err: lookupErr}
		}
		return &share, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &TransientStorageError{Op: "share replay check", Err: err}
	}

	if err := s.Limiter.TryConsume(sharerID, ActionShare, 1); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	share := models.ShareRecord{
		ID:        uuid.NewString(),
		SharerID:  sharerID,
		ProductID: productID,
		Channel:   channel,
	}

	// share row and event commit together: a failed append leaves no orphan
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&share).Error; err != nil {
			return &TransientStorageError{Op: "share create", Err: err}
		}
		_, err := s.Events.AppendTx(tx, &models.GrowthEvent{
			Type:           models.EventShareCreated,
			ActorID:        sharerID,
			SubjectID:      share.ID,
			OccurredAt:     now,
			IdempotencyKey: idempotencyKey,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Events.notifyAll()

	log.Printf("🔗 Share created: sharer=%s product=%s share=%s", sharerID, productID, share.ID)
	return &share, nil
}

// GetShare returns one share record
func (s *ShareService) GetShare(shareID string) (*models.ShareRecord, error) {
	var share models.ShareRecord
	err := s.DB.Where("id = ?", shareID).First(&share).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &TransientStorageError{Op: "share lookup", Err: err}
	}
	return &share, nil
}
