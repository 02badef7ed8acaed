package models

import "time"

type CampaignStatus string

const (
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// Campaign accumulates progress toward a target metric while active and
// inside [StartAt, EndAt]. CurrentValue is frozen once the campaign leaves
// the active state; transitions are monotonic except explicit cancellation.
type Campaign struct {
	ID   string `gorm:"primaryKey;type:uuid" json:"id"`
	Name string `gorm:"not null" json:"name"`
	Slug string `gorm:"uniqueIndex;not null" json:"slug"`

	TargetMetric string  `gorm:"type:varchar(32);not null" json:"target_metric"`
	TargetValue  float64 `gorm:"not null" json:"target_value"`
	CurrentValue float64 `gorm:"not null;default:0" json:"current_value"`

	Status  CampaignStatus `gorm:"type:varchar(16);not null;default:'scheduled';index" json:"status"`
	StartAt time.Time      `gorm:"not null;index" json:"start_at"`
	EndAt   time.Time      `gorm:"not null;index" json:"end_at"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// RewardIssued flips once the external issuer has been invoked, so a
	// sweep restart never double-issues
	RewardIssued bool `gorm:"default:false" json:"reward_issued"`

	ParticipantCount int64 `json:"participant_count,omitempty" gorm:"-"`

	Timestamps
}

// CampaignParticipant is the distinct-participant set: one row per
// (campaign, actor), repeat participation hits the unique index and is a
// no-op for the set while still adding to CurrentValue.
type CampaignParticipant struct {
	CampaignID string    `gorm:"primaryKey" json:"campaign_id"`
	ActorID    string    `gorm:"primaryKey" json:"actor_id"`
	JoinedAt   time.Time `gorm:"autoCreateTime" json:"joined_at"`
}
