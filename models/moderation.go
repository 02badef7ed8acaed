package models

import "time"

type ModerationStatus string

const (
	ModerationStatusPending  ModerationStatus = "pending"
	ModerationStatusActive   ModerationStatus = "active"
	ModerationStatusHidden   ModerationStatus = "hidden"
	ModerationStatusReported ModerationStatus = "reported"
)

type SubjectType string

const (
	SubjectTypeReview SubjectType = "review"
	SubjectTypeShare  SubjectType = "share"
)

// ModerationCase is the per-subject state machine. ReportCount only grows via
// distinct reporters; Escalated flips once when the count first crosses the
// threshold while active and never re-fires.
type ModerationCase struct {
	SubjectID   string      `gorm:"primaryKey" json:"subject_id"`
	SubjectType SubjectType `gorm:"type:varchar(16);not null" json:"subject_type"`

	Status      ModerationStatus `gorm:"type:varchar(16);not null;default:'active';index" json:"status"`
	ReportCount int64            `gorm:"not null;default:0" json:"report_count"`
	Escalated   bool             `gorm:"default:false" json:"escalated"`

	DecidedBy *string    `json:"decided_by,omitempty"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	Notes     string     `gorm:"type:text" json:"notes,omitempty"`

	Timestamps
}

// ModerationReport enforces one report per (subject, reporter) pair
type ModerationReport struct {
	SubjectID  string    `gorm:"primaryKey" json:"subject_id"`
	ReporterID string    `gorm:"primaryKey" json:"reporter_id"`
	ReportedAt time.Time `gorm:"autoCreateTime" json:"reported_at"`
}
