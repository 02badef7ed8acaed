package services

import (
	"fmt"
	"testing"

	"growth-engine/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database per test. The shared-cache
// DSN keeps every pooled connection on the same database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.GrowthEvent{},
		&models.InviteRecord{},
		&models.ShareRecord{},
		&models.AttributionTouch{},
		&models.WindowedCounter{},
		&models.AppliedEvent{},
		&models.PumpCheckpoint{},
		&models.Campaign{},
		&models.CampaignParticipant{},
		&models.ModerationCase{},
		&models.ModerationReport{},
		&models.RateOverride{},
	))
	return db
}
