// services/event_store.go
package services

import (
	"context"
	"sync"
	"time"

	"growth-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const subscribeBatchSize = 256

// subscribePollInterval bounds how long a tailing subscriber sleeps when the
// wake-up notification is missed (e.g. append from another process)
const subscribePollInterval = 2 * time.Second

// EventStore is the append-only source of truth for growth events. Append is
// idempotent on the event's idempotency key and subscribers receive events in
// offset order, restartable from any previously delivered offset.
type EventStore struct {
	DB *gorm.DB

	mu      sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

func NewEventStore(db *gorm.DB) *EventStore {
	return &EventStore{
		DB:   db,
		subs: make(map[int]chan struct{}),
	}
}

// AppendResult reports the stored event. Duplicate means the idempotency key
// was seen before and Event carries the original record with its original
// offset.
type AppendResult struct {
	Event     models.GrowthEvent `json:"event"`
	Duplicate bool               `json:"duplicate"`
}

// Append validates and persists an event. A replayed idempotency key never
// creates a second row.
func (s *EventStore) Append(event *models.GrowthEvent) (*AppendResult, error) {
	result, err := s.AppendTx(s.DB, event)
	if err != nil {
		return nil, err
	}
	if !result.Duplicate {
		s.notifyAll()
	}
	return result, nil
}

// AppendTx persists the event on the caller's transaction handle, so a record
// mutation and the event describing it commit or roll back together. The
// caller must wake subscribers (notifyAll) after the transaction commits.
func (s *EventStore) AppendTx(tx *gorm.DB, event *models.GrowthEvent) (*AppendResult, error) {
	if err := validateEvent(event); err != nil {
		return nil, err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(event)
	if res.Error != nil {
		return nil, &TransientStorageError{Op: "event append", Err: res.Error}
	}

	if res.RowsAffected == 0 {
		var existing models.GrowthEvent
		if err := tx.Where("idempotency_key = ?", event.IdempotencyKey).First(&existing).Error; err != nil {
			return nil, &TransientStorageError{Op: "duplicate lookup", Err: err}
		}
		return &AppendResult{Event: existing, Duplicate: true}, nil
	}

	return &AppendResult{Event: *event}, nil
}

// Subscribe returns a channel delivering every event with offset > fromOffset
// in offset order, then tails the log until ctx is cancelled. The channel is
// closed on cancellation; the consumer resumes later by passing the offset of
// the last event it processed.
func (s *EventStore) Subscribe(ctx context.Context, fromOffset int64) <-chan models.GrowthEvent {
	out := make(chan models.GrowthEvent)
	wake := s.register()

	go func() {
		defer close(out)
		defer s.deregister(wake)

		cursor := fromOffset
		for {
			var batch []models.GrowthEvent
			err := s.DB.Where("\"offset\" > ?", cursor).
				Order("\"offset\" ASC").
				Limit(subscribeBatchSize).
				Find(&batch).Error
			if err != nil {
				// transient read failure: back off and retry the same cursor
				select {
				case <-ctx.Done():
					return
				case <-time.After(subscribePollInterval):
				}
				continue
			}

			for _, ev := range batch {
				select {
				case <-ctx.Done():
					return
				case out <- ev:
					cursor = ev.Offset
				}
			}

			if len(batch) < subscribeBatchSize {
				select {
				case <-ctx.Done():
					return
				case <-wake.ch:
				case <-time.After(subscribePollInterval):
				}
			}
		}
	}()

	return out
}

// HighestOffset returns the offset of the newest event, 0 when the log is empty
func (s *EventStore) HighestOffset() (int64, error) {
	var offset *int64
	err := s.DB.Model(&models.GrowthEvent{}).Select("MAX(\"offset\")").Scan(&offset).Error
	if err != nil {
		return 0, &TransientStorageError{Op: "offset lookup", Err: err}
	}
	if offset == nil {
		return 0, nil
	}
	return *offset, nil
}

// EventsBefore returns up to limit events with OccurredAt older than cutoff
// and offset > afterOffset, in offset order. Used by the archiver.
func (s *EventStore) EventsBefore(cutoff time.Time, afterOffset int64, limit int) ([]models.GrowthEvent, error) {
	var events []models.GrowthEvent
	err := s.DB.Where("occurred_at < ? AND \"offset\" > ?", cutoff, afterOffset).
		Order("\"offset\" ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, &TransientStorageError{Op: "archive scan", Err: err}
	}
	return events, nil
}

func validateEvent(event *models.GrowthEvent) error {
	if event.ActorID == "" {
		return &ValidationError{Field: "actor_id", Reason: "required"}
	}
	if event.Type == "" {
		return &ValidationError{Field: "type", Reason: "required"}
	}
	if !models.KnownEventTypes[event.Type] {
		return &ValidationError{Field: "type", Reason: "unknown event type " + string(event.Type)}
	}
	if event.IdempotencyKey == "" {
		return &ValidationError{Field: "idempotency_key", Reason: "required"}
	}
	return nil
}

type subscription struct {
	id int
	ch chan struct{}
}

func (s *EventStore) register() subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	sub := subscription{id: s.nextSub, ch: make(chan struct{}, 1)}
	s.subs[sub.id] = sub.ch
	return sub
}

func (s *EventStore) deregister(sub subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub.id)
}

func (s *EventStore) notifyAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
