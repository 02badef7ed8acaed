// workers/archiver.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"growth-engine/models"
	"growth-engine/services"
	"growth-engine/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const archiverCheckpointName = "event_archiver"

// DefaultRetentionHorizon: events older than this are shipped to object
// storage. The log itself stays append-only; archiving copies out, it never
// deletes.
const DefaultRetentionHorizon = 90 * 24 * time.Hour

const archiveBatchSize = 1000

// EventArchiver periodically copies aged event-log segments to R2 as JSON
// batches, advancing its own checkpoint so each segment ships once.
type EventArchiver struct {
	db        *gorm.DB
	events    *services.EventStore
	interval  time.Duration
	retention time.Duration
}

func NewEventArchiver(db *gorm.DB, events *services.EventStore) *EventArchiver {
	return &EventArchiver{
		db:        db,
		events:    events,
		interval:  1 * time.Hour,
		retention: DefaultRetentionHorizon,
	}
}

func (w *EventArchiver) Start(ctx context.Context) {
	log.Println("🔁 Starting event archiver (aged events → R2)…")
	go w.run(ctx)
}

func (w *EventArchiver) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("⏹️ Event archiver stopped")
			return
		case <-ticker.C:
			if err := w.archiveBatch(ctx); err != nil {
				log.Printf("❌ [ARCHIVE] batch failed: %v", err)
				// checkpoint untouched: same segment retries next tick
			}
		}
	}
}

func (w *EventArchiver) archiveBatch(ctx context.Context) error {
	var cp models.PumpCheckpoint
	err := w.db.Where("name = ?", archiverCheckpointName).First(&cp).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return fmt.Errorf("checkpoint load: %w", err)
	}

	cutoff := time.Now().UTC().Add(-w.retention)
	events, err := w.events.EventsBefore(cutoff, cp.Offset, archiveBatchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	payload, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("segment marshal: %w", err)
	}

	first := events[0]
	key := fmt.Sprintf("events/%s/segment-%012d.json", first.OccurredAt.UTC().Format("2006/01"), first.Offset)
	if err := utils.PutJSONToR2(ctx, key, payload); err != nil {
		return err
	}

	cp.Name = archiverCheckpointName
	cp.Offset = events[len(events)-1].Offset
	err = w.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"offset", "updated_at"}),
	}).Create(&cp).Error
	if err != nil {
		return fmt.Errorf("checkpoint save: %w", err)
	}

	log.Printf("📦 Archived %d event(s) to %s", len(events), key)
	return nil
}
