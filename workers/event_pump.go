// workers/event_pump.go
package workers

import (
	"context"
	"log"
	"time"

	"growth-engine/models"
	"growth-engine/services"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const pumpCheckpointName = "event_pump"

// retryBackoff is the pause before re-reading the log after a processing
// failure. The failed event is re-delivered from the checkpoint, which is
// safe: every downstream apply is idempotent on the event key.
const retryBackoff = 5 * time.Second

// EventPump is the single consumer that drains the event log and drives the
// downstream components: moderation reports, attribution touches, counter
// aggregation, and campaign progress. It checkpoints the last fully processed
// offset so a restart resumes without gaps or double-apply.
type EventPump struct {
	db          *gorm.DB
	events      *services.EventStore
	aggregator  *services.CounterAggregator
	attribution *services.AttributionResolver
	moderation  *services.ModerationQueue
	campaigns   *services.CampaignTracker
}

func NewEventPump(db *gorm.DB, events *services.EventStore, aggregator *services.CounterAggregator,
	attribution *services.AttributionResolver, moderation *services.ModerationQueue,
	campaigns *services.CampaignTracker) *EventPump {
	return &EventPump{
		db:          db,
		events:      events,
		aggregator:  aggregator,
		attribution: attribution,
		moderation:  moderation,
		campaigns:   campaigns,
	}
}

func (p *EventPump) Start(ctx context.Context) {
	log.Println("🔁 Starting event pump (event log → aggregation)…")
	go p.run(ctx)
}

func (p *EventPump) run(ctx context.Context) {
	for {
		offset, err := p.loadCheckpoint()
		if err != nil {
			log.Printf("❌ [PUMP] checkpoint load failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryBackoff):
			}
			continue
		}

		if head, err := p.events.HighestOffset(); err == nil && head > offset {
			log.Printf("🔁 [PUMP] resuming at offset %d, %d event(s) behind", offset, head-offset)
		}

		// each attempt gets its own context: cancelling it on failure releases
		// the subscriber goroutine and its wake registration before resubscribing
		attemptCtx, cancelAttempt := context.WithCancel(ctx)
		stream := p.events.Subscribe(attemptCtx, offset)
		if err := p.drain(stream); err != nil {
			cancelAttempt()
			log.Printf("❌ [PUMP] processing failed, resuming from checkpoint: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryBackoff):
			}
			continue
		}
		cancelAttempt()

		// stream closed: context cancelled
		log.Println("⏹️ Event pump stopped")
		return
	}
}

// drain returns nil when the stream closes (context cancelled) and an error
// on the first failed event, leaving the checkpoint at the last success.
func (p *EventPump) drain(stream <-chan models.GrowthEvent) error {
	for event := range stream {
		if err := p.process(event); err != nil {
			return err
		}
		if err := p.saveCheckpoint(event.Offset); err != nil {
			return err
		}
	}
	return nil
}

// process dispatches one event in pipeline order. Moderation runs before
// aggregation so a report lands before the counters consult visibility.
func (p *EventPump) process(event models.GrowthEvent) error {
	switch event.Type {
	case models.EventReviewReported:
		err := p.moderation.Report(event.SubjectID, models.SubjectTypeReview, event.ActorID)
		if err != nil {
			return err
		}

	case models.EventShareClicked:
		err := p.attribution.RecordTouch(event.SessionToken, event.SubjectID, event.OccurredAt)
		if err != nil && err != services.ErrNotFound {
			return err
		}
	}

	if err := p.aggregator.Apply(event); err != nil {
		return err
	}

	if event.CampaignID != "" {
		delta := 1.0
		if event.Type == models.EventSharePurchased && event.Amount > 0 {
			delta = event.Amount
		}
		if err := p.campaigns.RecordProgress(event.CampaignID, event.ActorID, delta, event.IdempotencyKey); err != nil {
			return err
		}
	}
	return nil
}

func (p *EventPump) loadCheckpoint() (int64, error) {
	var cp models.PumpCheckpoint
	err := p.db.Where("name = ?", pumpCheckpointName).First(&cp).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return cp.Offset, nil
}

func (p *EventPump) saveCheckpoint(offset int64) error {
	cp := models.PumpCheckpoint{Name: pumpCheckpointName, Offset: offset}
	return p.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"offset", "updated_at"}),
	}).Create(&cp).Error
}
