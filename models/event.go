package models

import "time"

// EventType enumerates every growth event the engine ingests
type EventType string

const (
	EventInviteSent     EventType = "invite_sent"
	EventInviteAccepted EventType = "invite_accepted"
	EventInviteDeclined EventType = "invite_declined"
	EventShareCreated   EventType = "share_created"
	EventShareClicked   EventType = "share_clicked"
	EventSharePurchased EventType = "share_purchased"
	EventReviewPosted   EventType = "review_posted"
	EventReviewReported EventType = "review_reported"
)

// KnownEventTypes is used for synchronous validation on append
var KnownEventTypes = map[EventType]bool{
	EventInviteSent:     true,
	EventInviteAccepted: true,
	EventInviteDeclined: true,
	EventShareCreated:   true,
	EventShareClicked:   true,
	EventSharePurchased: true,
	EventReviewPosted:   true,
	EventReviewReported: true,
}

// GrowthEvent is an immutable fact in the append-only log. Offset is assigned
// by the store on first insert; resubmitting the same IdempotencyKey returns
// the original row and never creates a second one.
type GrowthEvent struct {
	Offset int64     `json:"offset" gorm:"primaryKey;autoIncrement"`
	ID     string    `json:"id" gorm:"uniqueIndex;not null"`
	Type   EventType `json:"type" gorm:"type:varchar(32);not null;index"`

	ActorID   string `json:"actor_id" gorm:"not null;index"`
	SubjectID string `json:"subject_id" gorm:"index"` // invitee email / share id / review id / invite code

	// SessionToken correlates clicks to later purchases for first-touch
	// attribution. Empty for events that carry no session.
	SessionToken string `json:"session_token,omitempty" gorm:"index"`

	// Amount carries the monetary value for share_purchased events (earnings metric)
	Amount float64 `json:"amount,omitempty"`

	// CampaignID ties the event to a campaign's target metric, if any
	CampaignID string `json:"campaign_id,omitempty" gorm:"index"`

	OccurredAt     time.Time `json:"occurred_at" gorm:"not null;index"`
	IdempotencyKey string    `json:"idempotency_key" gorm:"uniqueIndex;not null"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (GrowthEvent) TableName() string {
	return "growth_events"
}
