package models

import "time"

// RateOverride persists a per-user admin override for one rate-limited
// action. Blocked is terminal until explicitly lifted and supersedes any
// capacity value; it is not a depleted bucket. Rows are hard-deleted when an
// override is lifted so a later re-block upsert starts from a clean slate.
type RateOverride struct {
	ActorID  string  `gorm:"primaryKey" json:"actor_id"`
	Action   string  `gorm:"primaryKey;type:varchar(32)" json:"action"`
	Capacity float64 `gorm:"not null" json:"capacity"` // per-day cap replacing the default
	Blocked  bool    `gorm:"default:false" json:"blocked"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
