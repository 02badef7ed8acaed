package models

import (
	"time"

	"gorm.io/gorm"
)

type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusDeclined InviteStatus = "declined"
	InviteStatusExpired  InviteStatus = "expired"
)

// InviteRecord is derived from invite_sent events. Status only ever moves
// pending → accepted|declined|expired; the terminal states never transition
// again. Rows are soft-archived, never physically deleted.
type InviteRecord struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	InviterID string `gorm:"index;not null" json:"inviter_id"`

	InviteeEmail string `gorm:"index;not null" json:"invitee_email"` // normalized lowercase
	Code         string `gorm:"uniqueIndex;not null" json:"code"`    // unguessable, single-use

	Status        InviteStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	SourceChannel string       `gorm:"type:varchar(32)" json:"source_channel"` // e.g. "email", "whatsapp", "link"

	SentAt     time.Time  `gorm:"not null" json:"sent_at"`
	ExpiresAt  time.Time  `gorm:"not null;index" json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`

	// AcceptedByID links the invitee's account once the invite is redeemed
	AcceptedByID string `gorm:"index" json:"accepted_by_id,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times plus soft delete
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
