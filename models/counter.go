package models

import "time"

// Window granularities for counter rollups
type Window string

const (
	WindowDay     Window = "day"
	WindowWeek    Window = "week"
	WindowMonth   Window = "month"
	WindowAllTime Window = "all_time"
)

var AllWindows = []Window{WindowDay, WindowWeek, WindowMonth, WindowAllTime}

// GlobalOwnerID accumulates totals that include unattributed conversions.
// It is excluded from leaderboards.
const GlobalOwnerID = "_global"

// WindowedCounter holds one metric value scoped to one time bucket. The
// (owner_id, metric, win, window_key) tuple is unique; Value never goes
// negative. Rows are written only by the aggregator.
type WindowedCounter struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	OwnerID string `gorm:"uniqueIndex:idx_counter_key;not null" json:"owner_id"`
	Metric  string `gorm:"uniqueIndex:idx_counter_key;type:varchar(32);not null" json:"metric"`
	// "window" is reserved in SQL, hence the column name
	Win       Window `gorm:"uniqueIndex:idx_counter_key;column:win;type:varchar(8);not null" json:"window"`
	WindowKey string `gorm:"uniqueIndex:idx_counter_key;type:varchar(16);not null" json:"window_key"`

	Value float64 `gorm:"not null;default:0" json:"value"`

	// FirstAt is the earliest contributing event timestamp, set on insert and
	// never advanced. It drives the reached-the-score-first tie-break.
	FirstAt time.Time `gorm:"not null" json:"first_at"`
	LastAt  time.Time `gorm:"not null" json:"last_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WindowedCounter) TableName() string {
	return "windowed_counters"
}

// AppliedEvent marks an idempotency key as consumed by a processing component.
// Inserted in the same transaction as the component's effects, so replaying an
// event is a clean no-op.
type AppliedEvent struct {
	IdempotencyKey string    `gorm:"primaryKey" json:"idempotency_key"`
	Component      string    `gorm:"primaryKey;type:varchar(32)" json:"component"`
	AppliedAt      time.Time `gorm:"autoCreateTime" json:"applied_at"`
}

// PumpCheckpoint stores the last event offset a named consumer has fully
// processed, so a restarted consumer resumes without gaps.
type PumpCheckpoint struct {
	Name      string    `gorm:"primaryKey;type:varchar(32)" json:"name"`
	Offset    int64     `gorm:"not null;default:0" json:"offset"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// LeaderboardEntry is a projection computed at query time; rank is never a
// stored field.
type LeaderboardEntry struct {
	Rank     int     `json:"rank"`
	OwnerID  string  `json:"owner_id"`
	Score    float64 `json:"score"`
	Category string  `json:"category"`
	Period   string  `json:"period"`
}
