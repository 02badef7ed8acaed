package models

import "time"

// ShareRecord is created on share_created. The three counters are monotonic
// and mutated only by the aggregator in response to click/purchase events
// referencing this share.
type ShareRecord struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	SharerID  string `gorm:"index;not null" json:"sharer_id"`
	ProductID string `gorm:"index;not null" json:"product_id"`
	Channel   string `gorm:"type:varchar(32)" json:"channel"`

	ClickCount    int64 `gorm:"default:0" json:"click_count"`
	ViewCount     int64 `gorm:"default:0" json:"view_count"`
	PurchaseCount int64 `gorm:"default:0" json:"purchase_count"`

	Timestamps
}

// AttributionTouch records one share click inside a visitor session. All
// touches are kept; first-touch resolution picks the earliest TouchedAt
// (ties by smallest ShareID) inside the correlation window.
type AttributionTouch struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	SessionToken string    `gorm:"index:idx_session_touched;not null" json:"session_token"`
	ShareID      string    `gorm:"index;not null" json:"share_id"`
	SharerID     string    `gorm:"not null" json:"sharer_id"`
	TouchedAt    time.Time `gorm:"index:idx_session_touched;not null" json:"touched_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
