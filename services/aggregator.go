// services/aggregator.go
package services

import (
	"fmt"
	"time"

	"growth-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Counter metrics maintained across all window granularities
const (
	MetricInvitesSent     = "invitesSent"
	MetricInvitesAccepted = "invitesAccepted"
	MetricSharesCreated   = "sharesCreated"
	MetricShareClicks     = "shareClicks"
	MetricPurchases       = "purchases"
	MetricEarnings        = "earnings"
	MetricReviewsPosted   = "reviewsPosted"
)

var KnownMetrics = map[string]bool{
	MetricInvitesSent:     true,
	MetricInvitesAccepted: true,
	MetricSharesCreated:   true,
	MetricShareClicks:     true,
	MetricPurchases:       true,
	MetricEarnings:        true,
	MetricReviewsPosted:   true,
}

// WindowKeyFor derives the bucket key from the event timestamp, so a
// late-arriving event lands in its historical window with no boundary
// bookkeeping. All keys are UTC.
func WindowKeyFor(w models.Window, t time.Time) string {
	t = t.UTC()
	switch w {
	case models.WindowDay:
		return t.Format("2006-01-02")
	case models.WindowWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case models.WindowMonth:
		return t.Format("2006-01")
	default:
		return "all"
	}
}

// counterDelta is one (owner, metric, delta) contribution of an event
type counterDelta struct {
	OwnerID string
	Metric  string
	Delta   float64
}

// CounterAggregator owns every WindowedCounter mutation. Apply is idempotent
// per idempotency key: the applied-event marker is inserted in the same
// transaction as the increments, so a replayed event changes nothing.
type CounterAggregator struct {
	DB          *gorm.DB
	Attribution *AttributionResolver
	Moderation  *ModerationQueue
}

func NewCounterAggregator(db *gorm.DB, attribution *AttributionResolver, moderation *ModerationQueue) *CounterAggregator {
	return &CounterAggregator{DB: db, Attribution: attribution, Moderation: moderation}
}

// Apply updates all counter rows implicated by the event, across every
// window granularity, for the attributed owner plus the global totals.
func (g *CounterAggregator) Apply(event models.GrowthEvent) error {
	deltas, shareID, err := g.deltasFor(event)
	if err != nil {
		return err
	}

	return g.DB.Transaction(func(tx *gorm.DB) error {
		marker := models.AppliedEvent{IdempotencyKey: event.IdempotencyKey, Component: "aggregator"}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&marker)
		if res.Error != nil {
			return &TransientStorageError{Op: "applied marker", Err: res.Error}
		}
		if res.RowsAffected == 0 {
			// replay: already aggregated
			return nil
		}

		for _, d := range deltas {
			if d.Delta < 0 {
				return &InvariantViolationError{
					Invariant: "counter monotonicity",
					Detail:    fmt.Sprintf("event %s maps to negative delta %f for %s/%s", event.ID, d.Delta, d.OwnerID, d.Metric),
				}
			}
			for _, w := range models.AllWindows {
				if err := incrementCounter(tx, d, w, event.OccurredAt); err != nil {
					return err
				}
			}
		}

		return bumpShareCounters(tx, event.Type, shareID)
	})
}

// incrementCounter is an atomic read-modify-write on one counter row. The
// upsert keeps FirstAt at the earliest contributing timestamp even under
// out-of-order delivery.
func incrementCounter(tx *gorm.DB, d counterDelta, w models.Window, ts time.Time) error {
	row := models.WindowedCounter{
		ID:        uuid.NewString(),
		OwnerID:   d.OwnerID,
		Metric:    d.Metric,
		Win:       w,
		WindowKey: WindowKeyFor(w, ts),
		Value:     d.Delta,
		FirstAt:   ts,
		LastAt:    ts,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_id"}, {Name: "metric"}, {Name: "win"}, {Name: "window_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":    gorm.Expr("windowed_counters.value + ?", d.Delta),
			"first_at": gorm.Expr("CASE WHEN windowed_counters.first_at <= ? THEN windowed_counters.first_at ELSE ? END", ts, ts),
			"last_at":  gorm.Expr("CASE WHEN windowed_counters.last_at >= ? THEN windowed_counters.last_at ELSE ? END", ts, ts),
		}),
	}).Create(&row).Error
	if err != nil {
		return &TransientStorageError{Op: "counter increment", Err: err}
	}
	return nil
}

// bumpShareCounters keeps the denormalized per-share counts in step with the
// windowed counters, inside the same transaction.
func bumpShareCounters(tx *gorm.DB, eventType models.EventType, shareID string) error {
	if shareID == "" {
		return nil
	}
	var column string
	switch eventType {
	case models.EventShareClicked:
		column = "click_count"
	case models.EventSharePurchased:
		column = "purchase_count"
	default:
		return nil
	}
	err := tx.Model(&models.ShareRecord{}).
		Where("id = ?", shareID).
		UpdateColumn(column, gorm.Expr(column+" + 1")).Error
	if err != nil {
		return &TransientStorageError{Op: "share counter bump", Err: err}
	}
	return nil
}

// deltasFor maps one event to its counter contributions. Attribution misses
// degrade to global-only counting; they never block the pipeline.
func (g *CounterAggregator) deltasFor(event models.GrowthEvent) ([]counterDelta, string, error) {
	global := func(metric string, delta float64) counterDelta {
		return counterDelta{OwnerID: models.GlobalOwnerID, Metric: metric, Delta: delta}
	}

	switch event.Type {
	case models.EventInviteSent:
		return []counterDelta{
			{OwnerID: event.ActorID, Metric: MetricInvitesSent, Delta: 1},
			global(MetricInvitesSent, 1),
		}, "", nil

	case models.EventInviteAccepted:
		deltas := []counterDelta{global(MetricInvitesAccepted, 1)}
		attr, err := g.Attribution.ResolveInviteCode(event.SubjectID)
		if err != nil {
			return nil, "", err
		}
		if attr.Attributed {
			deltas = append(deltas, counterDelta{OwnerID: attr.OwnerID, Metric: MetricInvitesAccepted, Delta: 1})
		}
		return deltas, "", nil

	case models.EventShareCreated:
		return []counterDelta{
			{OwnerID: event.ActorID, Metric: MetricSharesCreated, Delta: 1},
			global(MetricSharesCreated, 1),
		}, "", nil

	case models.EventShareClicked:
		deltas := []counterDelta{global(MetricShareClicks, 1)}
		attr, err := g.Attribution.ResolveClick(event.SubjectID)
		if err != nil {
			return nil, "", err
		}
		if attr.Attributed {
			deltas = append(deltas, counterDelta{OwnerID: attr.OwnerID, Metric: MetricShareClicks, Delta: 1})
		}
		return deltas, attr.ShareID, nil

	case models.EventSharePurchased:
		deltas := []counterDelta{global(MetricPurchases, 1)}
		if event.Amount > 0 {
			deltas = append(deltas, global(MetricEarnings, event.Amount))
		}
		attr, err := g.Attribution.ResolvePurchase(event.SessionToken, event.OccurredAt)
		if err != nil {
			return nil, "", err
		}
		if attr.Attributed {
			deltas = append(deltas, counterDelta{OwnerID: attr.OwnerID, Metric: MetricPurchases, Delta: 1})
			if event.Amount > 0 {
				deltas = append(deltas, counterDelta{OwnerID: attr.OwnerID, Metric: MetricEarnings, Delta: event.Amount})
			}
		}
		return deltas, attr.ShareID, nil

	case models.EventReviewPosted:
		countable, err := g.Moderation.IsCountable(event.SubjectID)
		if err != nil {
			return nil, "", err
		}
		if !countable {
			return nil, "", nil
		}
		return []counterDelta{
			{OwnerID: event.ActorID, Metric: MetricReviewsPosted, Delta: 1},
			global(MetricReviewsPosted, 1),
		}, "", nil

	default:
		// invite_declined and review_reported carry no counter metrics
		return nil, "", nil
	}
}

// GetCounters returns the requested metric values for one owner and window,
// read-only and side-effect-free. Period resolves to the current window key.
func (g *CounterAggregator) GetCounters(ownerID string, metrics []string, w models.Window, at time.Time) (map[string]float64, error) {
	for _, m := range metrics {
		if !KnownMetrics[m] {
			return nil, &ValidationError{Field: "metrics", Reason: "unknown metric " + m}
		}
	}

	var rows []models.WindowedCounter
	err := g.DB.Where("owner_id = ? AND metric IN ? AND win = ? AND window_key = ?",
		ownerID, metrics, w, WindowKeyFor(w, at)).
		Find(&rows).Error
	if err != nil {
		return nil, &TransientStorageError{Op: "counter read", Err: err}
	}

	out := make(map[string]float64, len(metrics))
	for _, m := range metrics {
		out[m] = 0
	}
	for _, row := range rows {
		out[row.Metric] = row.Value
	}
	return out, nil
}
