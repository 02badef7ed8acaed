// services/leaderboard.go
package services

import (
	"fmt"
	"sync"
	"time"

	"growth-engine/models"

	"gorm.io/gorm"
)

// DefaultMaxStaleness bounds how old a cached leaderboard snapshot may be
// before it is recomputed synchronously.
const DefaultMaxStaleness = 60 * time.Second

// CategoryMetrics maps public leaderboard categories to counter metrics
var CategoryMetrics = map[string]string{
	"invites":   MetricInvitesAccepted,
	"shares":    MetricSharesCreated,
	"clicks":    MetricShareClicks,
	"purchases": MetricPurchases,
	"earnings":  MetricEarnings,
	"reviews":   MetricReviewsPosted,
}

// PeriodWindows maps public leaderboard periods to counter windows
var PeriodWindows = map[string]models.Window{
	"day":      models.WindowDay,
	"week":     models.WindowWeek,
	"month":    models.WindowMonth,
	"all_time": models.WindowAllTime,
}

type leaderboardSnapshot struct {
	entries []models.LeaderboardEntry
	takenAt time.Time
}

// LeaderboardEngine ranks actors per category and period from the windowed
// counters. Ranks are dense, recomputed on every cache miss, and never
// persisted; rank is a projection, not a field.
type LeaderboardEngine struct {
	DB           *gorm.DB
	MaxStaleness time.Duration

	now func() time.Time

	mu    sync.RWMutex
	cache map[string]leaderboardSnapshot
}

func NewLeaderboardEngine(db *gorm.DB) *LeaderboardEngine {
	return &LeaderboardEngine{
		DB:           db,
		MaxStaleness: DefaultMaxStaleness,
		now:          time.Now,
		cache:        make(map[string]leaderboardSnapshot),
	}
}

// Rank returns the top entries for the category and period. The order is a
// strict total order: score descending, then earliest contributing event
// timestamp (the actor who reached the score first), then smallest owner id.
// A snapshot no older than MaxStaleness may be served; recomputation is
// always whole, never partial.
func (l *LeaderboardEngine) Rank(category, period string, limit int) ([]models.LeaderboardEntry, error) {
	metric, ok := CategoryMetrics[category]
	if !ok {
		return nil, &ValidationError{Field: "category", Reason: "unknown category " + category}
	}
	w, ok := PeriodWindows[period]
	if !ok {
		return nil, &ValidationError{Field: "period", Reason: "unknown period " + period}
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	windowKey := WindowKeyFor(w, l.now())
	cacheKey := fmt.Sprintf("%s|%s|%s|%d", category, period, windowKey, limit)

	l.mu.RLock()
	snap, hit := l.cache[cacheKey]
	l.mu.RUnlock()
	if hit && l.now().Sub(snap.takenAt) < l.MaxStaleness {
		return snap.entries, nil
	}

	entries, err := l.compute(category, period, metric, w, windowKey, limit)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[cacheKey] = leaderboardSnapshot{entries: entries, takenAt: l.now()}
	l.mu.Unlock()

	return entries, nil
}

// Invalidate drops every cached snapshot. The next Rank call recomputes.
func (l *LeaderboardEngine) Invalidate() {
	l.mu.Lock()
	l.cache = make(map[string]leaderboardSnapshot)
	l.mu.Unlock()
}

func (l *LeaderboardEngine) compute(category, period, metric string, w models.Window, windowKey string, limit int) ([]models.LeaderboardEntry, error) {
	var rows []models.WindowedCounter
	err := l.DB.Where("metric = ? AND win = ? AND window_key = ? AND owner_id <> ? AND value > 0",
		metric, w, windowKey, models.GlobalOwnerID).
		Order("value DESC, first_at ASC, owner_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, &TransientStorageError{Op: "leaderboard read", Err: err}
	}

	entries := make([]models.LeaderboardEntry, 0, len(rows))
	for i, row := range rows {
		if row.Value < 0 {
			return nil, &InvariantViolationError{
				Invariant: "non-negative counter",
				Detail:    fmt.Sprintf("owner %s metric %s has value %f", row.OwnerID, row.Metric, row.Value),
			}
		}
		entries = append(entries, models.LeaderboardEntry{
			Rank:     i + 1,
			OwnerID:  row.OwnerID,
			Score:    row.Value,
			Category: category,
			Period:   period,
		})
	}
	return entries, nil
}
