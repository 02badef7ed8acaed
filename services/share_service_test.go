package services

import (
	"fmt"
	"testing"
	"time"

	"growth-engine/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestShares(t *testing.T) (*ShareService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	limiter := NewRateLimiter(db)
	limiter.now = fixedClock(time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))
	return NewShareService(db, NewEventStore(db), limiter), db
}

func TestCreateShareLogsEvent(t *testing.T) {
	service, db := newTestShares(t)

	share, err := service.CreateShare("alice", "prod-1", "whatsapp", "k1")
	require.NoError(t, err)
	require.Equal(t, "alice", share.SharerID)

	var event models.GrowthEvent
	require.NoError(t, db.Where("idempotency_key = ?", "k1").First(&event).Error)
	require.Equal(t, models.EventShareCreated, event.Type)
	require.Equal(t, share.ID, event.SubjectID)
}

func TestCreateShareReplayReturnsOriginal(t *testing.T) {
	service, db := newTestShares(t)

	first, err := service.CreateShare("alice", "prod-1", "link", "k1")
	require.NoError(t, err)

	replay, err := service.CreateShare("alice", "prod-1", "link", "k1")
	require.NoError(t, err)
	require.Equal(t, first.ID, replay.ID)

	var shares int64
	require.NoError(t, db.Model(&models.ShareRecord{}).Count(&shares).Error)
	require.EqualValues(t, 1, shares)
}

func TestCreateShareEnforcesQuota(t *testing.T) {
	service, _ := newTestShares(t)

	for i := 0; i < 50; i++ {
		_, err := service.CreateShare("alice", "prod-1", "link", fmt.Sprintf("k%d", i))
		require.NoError(t, err)
	}

	_, err := service.CreateShare("alice", "prod-1", "link", "k50")
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
}

func TestCreateShareRollsBackWhenAppendFails(t *testing.T) {
	service, db := newTestShares(t)

	_, err := service.CreateShare("alice", "prod-1", "link", "k1")
	require.NoError(t, err)

	// force the next event insert to fail after the share row is written
	require.NoError(t, db.Exec("CREATE UNIQUE INDEX idx_events_single_actor ON growth_events(actor_id)").Error)

	_, err = service.CreateShare("alice", "prod-2", "link", "k2")
	var transientErr *TransientStorageError
	require.ErrorAs(t, err, &transientErr)

	var shares int64
	require.NoError(t, db.Model(&models.ShareRecord{}).Count(&shares).Error)
	require.EqualValues(t, 1, shares)
}

func TestGetShare(t *testing.T) {
	service, _ := newTestShares(t)

	created, err := service.CreateShare("alice", "prod-1", "link", "k1")
	require.NoError(t, err)

	got, err := service.GetShare(created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)

	_, err = service.GetShare("no-such-share")
	require.ErrorIs(t, err, ErrNotFound)
}
