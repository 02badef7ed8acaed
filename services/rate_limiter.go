// services/rate_limiter.go
package services

import (
	"log"
	"sync"
	"time"

	"growth-engine/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Rate-limited actions
const (
	ActionInvite = "invite"
	ActionShare  = "share"

	// blockAllActions is the override row marking an administrator block; it
	// supersedes every per-action bucket
	blockAllActions = "*"
)

const secondsPerDay = 86400.0

// ActionLimit is a continuously-refilling quota: Capacity units per day,
// replenished at RefillPerSec rather than reset at midnight, so window
// boundaries cannot be burst-gamed.
type ActionLimit struct {
	Capacity     float64
	RefillPerSec float64
}

// PerDay builds a limit of capacity units per rolling day
func PerDay(capacity float64) ActionLimit {
	return ActionLimit{Capacity: capacity, RefillPerSec: capacity / secondsPerDay}
}

// DefaultLimits gate invite and share creation
var DefaultLimits = map[string]ActionLimit{
	ActionInvite: PerDay(10),
	ActionShare:  PerDay(50),
}

type tokenBucket struct {
	mu           sync.Mutex
	tokens       float64
	capacity     float64
	refillPerSec float64
	last         time.Time
}

// RateLimiter enforces per-(actor, action) sliding-window quotas. Consumption
// is atomic per key: the bucket's own mutex is the only lock taken on the hot
// path, so different actors never contend.
type RateLimiter struct {
	DB       *gorm.DB
	defaults map[string]ActionLimit
	now      func() time.Time

	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	overrides map[string]models.RateOverride
}

func NewRateLimiter(db *gorm.DB) *RateLimiter {
	return &RateLimiter{
		DB:        db,
		defaults:  DefaultLimits,
		now:       time.Now,
		buckets:   make(map[string]*tokenBucket),
		overrides: make(map[string]models.RateOverride),
	}
}

// LoadOverrides warms the in-memory override cache from the database. Called
// once at boot; admin mutations keep the cache in sync afterwards.
func (r *RateLimiter) LoadOverrides() error {
	var rows []models.RateOverride
	if err := r.DB.Find(&rows).Error; err != nil {
		return &TransientStorageError{Op: "override load", Err: err}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		r.overrides[row.ActorID+"|"+row.Action] = row
	}
	log.Printf("✅ Rate limiter loaded %d override(s)", len(rows))
	return nil
}

// TryConsume atomically takes cost units from the (actorID, action) bucket.
// Returns nil when allowed, *QuotaExceededError when denied.
func (r *RateLimiter) TryConsume(actorID, action string, cost float64) error {
	limit, blocked := r.effectiveLimit(actorID, action)
	if blocked {
		return &QuotaExceededError{ActorID: actorID, Action: action, Blocked: true}
	}
	if limit.Capacity <= 0 {
		return &QuotaExceededError{ActorID: actorID, Action: action, Blocked: true}
	}

	b := r.bucket(actorID, action, limit)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := r.now()
	b.refill(now)

	if b.tokens+1e-9 >= cost {
		b.tokens -= cost
		return nil
	}

	deficit := cost - b.tokens
	retryAfter := time.Duration(deficit / b.refillPerSec * float64(time.Second))
	return &QuotaExceededError{ActorID: actorID, Action: action, RetryAfter: retryAfter}
}

// SetLimit installs a per-user daily cap that supersedes the default. Raising
// the cap grants the difference immediately, so an actor who exhausted the old
// cap can continue without waiting for refill.
func (r *RateLimiter) SetLimit(actorID, action string, dailyCap float64) error {
	if dailyCap < 0 {
		return &ValidationError{Field: "daily_cap", Reason: "must be non-negative"}
	}

	override := models.RateOverride{ActorID: actorID, Action: action, Capacity: dailyCap}
	err := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "actor_id"}, {Name: "action"}},
		DoUpdates: clause.AssignmentColumns([]string{"capacity", "blocked", "updated_at"}),
	}).Create(&override).Error
	if err != nil {
		return &TransientStorageError{Op: "override save", Err: err}
	}

	r.mu.Lock()
	r.overrides[actorID+"|"+action] = override
	b := r.buckets[actorID+"|"+action]
	r.mu.Unlock()

	if b != nil {
		b.mu.Lock()
		b.refill(r.now())
		delta := dailyCap - b.capacity
		b.capacity = dailyCap
		b.refillPerSec = dailyCap / secondsPerDay
		b.tokens += delta
		if b.tokens < 0 {
			b.tokens = 0
		}
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.mu.Unlock()
	}

	log.Printf("🔧 Invite limit override: actor=%s action=%s cap=%.0f/day", actorID, action, dailyCap)
	return nil
}

// BlockUser zeroes the actor's capacity for every action indefinitely. This
// is a terminal override, not a bucket depletion; only UnblockUser lifts it.
func (r *RateLimiter) BlockUser(actorID string) error {
	override := models.RateOverride{ActorID: actorID, Action: blockAllActions, Blocked: true}
	err := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "actor_id"}, {Name: "action"}},
		DoUpdates: clause.AssignmentColumns([]string{"capacity", "blocked", "updated_at"}),
	}).Create(&override).Error
	if err != nil {
		return &TransientStorageError{Op: "block save", Err: err}
	}

	r.mu.Lock()
	r.overrides[actorID+"|"+blockAllActions] = override
	r.mu.Unlock()

	log.Printf("⛔ Actor blocked: %s", actorID)
	return nil
}

// UnblockUser lifts a block set by BlockUser
func (r *RateLimiter) UnblockUser(actorID string) error {
	err := r.DB.Where("actor_id = ? AND action = ?", actorID, blockAllActions).
		Delete(&models.RateOverride{}).Error
	if err != nil {
		return &TransientStorageError{Op: "unblock", Err: err}
	}

	r.mu.Lock()
	delete(r.overrides, actorID+"|"+blockAllActions)
	r.mu.Unlock()

	log.Printf("✅ Actor unblocked: %s", actorID)
	return nil
}

func (r *RateLimiter) effectiveLimit(actorID, action string) (ActionLimit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o, ok := r.overrides[actorID+"|"+blockAllActions]; ok && o.Blocked {
		return ActionLimit{}, true
	}
	if o, ok := r.overrides[actorID+"|"+action]; ok {
		if o.Blocked {
			return ActionLimit{}, true
		}
		return PerDay(o.Capacity), false
	}
	return r.defaults[action], false
}

func (r *RateLimiter) bucket(actorID, action string, limit ActionLimit) *tokenBucket {
	key := actorID + "|" + action
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		b = &tokenBucket{
			tokens:       limit.Capacity,
			capacity:     limit.Capacity,
			refillPerSec: limit.RefillPerSec,
			last:         r.now(),
		}
		r.buckets[key] = b
	}
	return b
}

// refill must be called with b.mu held
func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillPerSec
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
	b.last = now
}
