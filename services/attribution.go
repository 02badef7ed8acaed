// services/attribution.go
package services

import (
	"errors"
	"log"
	"time"

	"growth-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultAttributionWindow is how long a session's first touch stays
// creditable for a purchase.
const DefaultAttributionWindow = 30 * 24 * time.Hour

// Attribution is the outcome of resolving a conversion. Attributed=false is
// the soft AttributionMiss case: the conversion still counts in global
// totals, just not for any sharer.
type Attribution struct {
	OwnerID    string
	ShareID    string
	Attributed bool
}

// AttributionResolver maps conversions back to the originating share or
// invite using first-touch policy: the earliest click in the session wins,
// even when a later click from a different share precedes the purchase.
type AttributionResolver struct {
	DB     *gorm.DB
	Window time.Duration
}

func NewAttributionResolver(db *gorm.DB) *AttributionResolver {
	return &AttributionResolver{DB: db, Window: DefaultAttributionWindow}
}

// RecordTouch stores one click touch for the session. Touches are kept
// append-only; resolution orders them, so recording is contention-free.
func (a *AttributionResolver) RecordTouch(sessionToken, shareID string, touchedAt time.Time) error {
	if sessionToken == "" {
		// clicks without a session can never be correlated to a purchase
		return nil
	}

	var share models.ShareRecord
	if err := a.DB.Where("id = ?", shareID).First(&share).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return &TransientStorageError{Op: "share lookup", Err: err}
	}

	touch := models.AttributionTouch{
		ID:           uuid.NewString(),
		SessionToken: sessionToken,
		ShareID:      shareID,
		SharerID:     share.SharerID,
		TouchedAt:    touchedAt,
	}
	if err := a.DB.Create(&touch).Error; err != nil {
		return &TransientStorageError{Op: "touch record", Err: err}
	}
	return nil
}

// ResolvePurchase credits the purchase to the session's first touch within
// the correlation window. Ties on identical first-touch timestamps break to
// the lexicographically smallest share id, deterministically.
func (a *AttributionResolver) ResolvePurchase(sessionToken string, purchasedAt time.Time) (Attribution, error) {
	if sessionToken == "" {
		return Attribution{}, nil
	}

	windowStart := purchasedAt.Add(-a.Window)

	var touch models.AttributionTouch
	err := a.DB.Where("session_token = ? AND touched_at >= ? AND touched_at <= ?",
		sessionToken, windowStart, purchasedAt).
		Order("touched_at ASC, share_id ASC").
		First(&touch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("ℹ️  Attribution miss: session=%s has no touch in window, counting unattributed", sessionToken)
		return Attribution{}, nil
	}
	if err != nil {
		return Attribution{}, &TransientStorageError{Op: "touch resolve", Err: err}
	}

	return Attribution{OwnerID: touch.SharerID, ShareID: touch.ShareID, Attributed: true}, nil
}

// ResolveClick attributes a click event to the share it references
func (a *AttributionResolver) ResolveClick(shareID string) (Attribution, error) {
	var share models.ShareRecord
	err := a.DB.Where("id = ?", shareID).First(&share).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Attribution{}, nil
	}
	if err != nil {
		return Attribution{}, &TransientStorageError{Op: "share lookup", Err: err}
	}
	return Attribution{OwnerID: share.SharerID, ShareID: share.ID, Attributed: true}, nil
}

// ResolveInviteCode maps an accepted invite code back to the inviter
func (a *AttributionResolver) ResolveInviteCode(code string) (Attribution, error) {
	var invite models.InviteRecord
	err := a.DB.Where("code = ?", code).First(&invite).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("ℹ️  Attribution miss: invite code %s unknown, counting unattributed", code)
		return Attribution{}, nil
	}
	if err != nil {
		return Attribution{}, &TransientStorageError{Op: "invite lookup", Err: err}
	}
	return Attribution{OwnerID: invite.InviterID, Attributed: true}, nil
}
