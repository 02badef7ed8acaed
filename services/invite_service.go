// services/invite_service.go
package services

import (
	"errors"
	"log"
	"strings"
	"time"

	"growth-engine/models"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"gorm.io/gorm"
)

// DefaultInviteTTL is how long an invite stays redeemable
const DefaultInviteTTL = 14 * 24 * time.Hour

// InviteService owns the invite lifecycle: rate-limited creation, single-use
// code redemption, and the expiry sweep. Every state change is also appended
// to the event log.
type InviteService struct {
	DB      *gorm.DB
	Events  *EventStore
	Limiter *RateLimiter
	TTL     time.Duration

	folder cases.Caser
}

func NewInviteService(db *gorm.DB, events *EventStore, limiter *RateLimiter) *InviteService {
	return &InviteService{
		DB:      db,
		Events:  events,
		Limiter: limiter,
		TTL:     DefaultInviteTTL,
		folder:  cases.Fold(),
	}
}

// CreateInvite admits a new invite for the inviter, gated by the invite
// quota. The supplied idempotency key makes retries safe: a replay returns
// the invite created by the first attempt.
func (s *InviteService) CreateInvite(inviterID, inviteeEmail, channel, idempotencyKey string) (*models.InviteRecord, error) {
	if inviterID == "" {
		return nil, &ValidationError{Field: "inviter_id", Reason: "required"}
	}
	email := s.folder.String(strings.TrimSpace(inviteeEmail))
	if email == "" || !strings.Contains(email, "@") {
		return nil, &ValidationError{Field: "invitee_email", Reason: "valid email required"}
	}
	if idempotencyKey == "" {
		idempotencyKey = "invite_sent:" + uuid.NewString()
	}

	// replayed request: hand back the original invite without consuming quota
	var priorEvent models.GrowthEvent
	err := s.DB.Where("idempotency_key = ?", idempotencyKey).First(&priorEvent).Error
	if err == nil {
		var invite models.InviteRecord
		lookupErr := s.DB.Where("code = ?", priorEvent.SessionToken).First(&invite).Error
		if lookupErr != nil {
			return nil, &TransientStorageError{Op: "invite replay lookup", Err: lookupErr}
		}
		return &invite, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &TransientStorageError{Op: "invite replay check", Err: err}
	}

	if err := s.Limiter.TryConsume(inviterID, ActionInvite, 1); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	invite := models.InviteRecord{
		ID:            uuid.NewString(),
		InviterID:     inviterID,
		InviteeEmail:  email,
		Code:          newInviteCode(),
		Status:        models.InviteStatusPending,
		SourceChannel: channel,
		SentAt:        now,
		ExpiresAt:     now.Add(s.TTL),
	}

	// invite row and event commit together: a failed append leaves no orphan
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&invite).Error; err != nil {
			return &TransientStorageError{Op: "invite create", Err: err}
		}
		_, err := s.Events.AppendTx(tx, &models.GrowthEvent{
			Type:           models.EventInviteSent,
			ActorID:        inviterID,
			SubjectID:      email,
			SessionToken:   invite.Code, // lets a replayed key find this invite
			OccurredAt:     now,
			IdempotencyKey: idempotencyKey,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Events.notifyAll()

	log.Printf("✉️  Invite sent: inviter=%s invitee=%s code=%s", inviterID, email, invite.Code)
	return &invite, nil
}

// AcceptInvite redeems a pending invite code. The code is single-use: any
// state but pending rejects, and a code past its expiry is swept to expired
// on the spot.
func (s *InviteService) AcceptInvite(code, acceptedByID string) (*models.InviteRecord, error) {
	var invite models.InviteRecord
	var expired bool

	// acceptance and its event commit together: if the append fails the code
	// stays pending and redeemable, so the inviter's credit is never lost
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", code).First(&invite).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return &TransientStorageError{Op: "invite lookup", Err: err}
		}

		if invite.Status != models.InviteStatusPending {
			return &ValidationError{Field: "code", Reason: "invite already " + string(invite.Status)}
		}

		now := time.Now().UTC()
		if now.After(invite.ExpiresAt) {
			// commit the on-the-spot expiry, then reject outside the tx
			expired = true
			invite.Status = models.InviteStatusExpired
			if err := tx.Save(&invite).Error; err != nil {
				return &TransientStorageError{Op: "invite expire", Err: err}
			}
			return nil
		}

		invite.Status = models.InviteStatusAccepted
		invite.AcceptedAt = &now
		invite.AcceptedByID = acceptedByID
		if err := tx.Save(&invite).Error; err != nil {
			return &TransientStorageError{Op: "invite accept", Err: err}
		}

		_, err := s.Events.AppendTx(tx, &models.GrowthEvent{
			Type:           models.EventInviteAccepted,
			ActorID:        acceptedByID,
			SubjectID:      invite.Code,
			OccurredAt:     now,
			IdempotencyKey: "invite_accepted:" + invite.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, &ValidationError{Field: "code", Reason: "invite expired"}
	}
	s.Events.notifyAll()

	log.Printf("🤝 Invite accepted: code=%s by=%s", code, acceptedByID)
	return &invite, nil
}

// DeclineInvite marks a pending invite declined
func (s *InviteService) DeclineInvite(code, declinedByID string) (*models.InviteRecord, error) {
	var invite models.InviteRecord

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", code).First(&invite).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return &TransientStorageError{Op: "invite lookup", Err: err}
		}
		if invite.Status != models.InviteStatusPending {
			return &ValidationError{Field: "code", Reason: "invite already " + string(invite.Status)}
		}
		invite.Status = models.InviteStatusDeclined
		if err := tx.Save(&invite).Error; err != nil {
			return &TransientStorageError{Op: "invite decline", Err: err}
		}

		_, err := s.Events.AppendTx(tx, &models.GrowthEvent{
			Type:           models.EventInviteDeclined,
			ActorID:        declinedByID,
			SubjectID:      invite.Code,
			OccurredAt:     time.Now().UTC(),
			IdempotencyKey: "invite_declined:" + invite.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Events.notifyAll()
	return &invite, nil
}

// ExpireSweep moves pending invites past their deadline to expired. Runs on
// the scheduler; returns the number swept.
func (s *InviteService) ExpireSweep() (int64, error) {
	res := s.DB.Model(&models.InviteRecord{}).
		Where("status = ? AND expires_at < ?", models.InviteStatusPending, time.Now().UTC()).
		Update("status", models.InviteStatusExpired)
	if res.Error != nil {
		return 0, &TransientStorageError{Op: "invite expiry sweep", Err: res.Error}
	}
	if res.RowsAffected > 0 {
		log.Printf("⏰ Expired %d invite(s)", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// newInviteCode returns an unguessable single-use code
func newInviteCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
