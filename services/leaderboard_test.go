package services

import (
	"testing"
	"time"

	"growth-engine/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedCounter(t *testing.T, db *gorm.DB, ownerID, metric string, w models.Window, key string, value float64, firstAt time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&models.WindowedCounter{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Metric:    metric,
		Win:       w,
		WindowKey: key,
		Value:     value,
		FirstAt:   firstAt,
		LastAt:    firstAt,
	}).Error)
}

func TestRankOrdersByScoreThenFirstAtThenOwner(t *testing.T) {
	engine := NewLeaderboardEngine(newTestDB(t))
	engine.now = fixedClock(time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))

	base := time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC)
	seedCounter(t, engine.DB, "carol", MetricInvitesAccepted, models.WindowDay, "2026-08-28", 5, base.Add(time.Hour))
	seedCounter(t, engine.DB, "alice", MetricInvitesAccepted, models.WindowDay, "2026-08-28", 9, base)
	// bob reached the same score as carol but earlier, so bob ranks above her
	seedCounter(t, engine.DB, "bob", MetricInvitesAccepted, models.WindowDay, "2026-08-28", 5, base)

	entries, err := engine.Rank("invites", "day", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.Equal(t, []string{"alice", "bob", "carol"},
		[]string{entries[0].OwnerID, entries[1].OwnerID, entries[2].OwnerID})
	require.Equal(t, []int{1, 2, 3},
		[]int{entries[0].Rank, entries[1].Rank, entries[2].Rank})
	require.EqualValues(t, 9, entries[0].Score)
}

func TestRankTieBreaksOnOwnerID(t *testing.T) {
	engine := NewLeaderboardEngine(newTestDB(t))
	engine.now = fixedClock(time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))

	at := time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC)
	seedCounter(t, engine.DB, "zoe", MetricInvitesAccepted, models.WindowDay, "2026-08-28", 5, at)
	seedCounter(t, engine.DB, "amy", MetricInvitesAccepted, models.WindowDay, "2026-08-28", 5, at)

	entries, err := engine.Rank("invites", "day", 10)
	require.NoError(t, err)
	require.Equal(t, "amy", entries[0].OwnerID)
	require.Equal(t, "zoe", entries[1].OwnerID)
}

func TestRankExcludesGlobalAndZeroScores(t *testing.T) {
	engine := NewLeaderboardEngine(newTestDB(t))
	engine.now = fixedClock(time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))

	at := time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC)
	seedCounter(t, engine.DB, models.GlobalOwnerID, MetricInvitesAccepted, models.WindowDay, "2026-08-28", 100, at)
	seedCounter(t, engine.DB, "alice", MetricInvitesAccepted, models.WindowDay, "2026-08-28", 3, at)
	seedCounter(t, engine.DB, "idle", MetricInvitesAccepted, models.WindowDay, "2026-08-28", 0, at)

	entries, err := engine.Rank("invites", "day", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "alice", entries[0].OwnerID)
}

func TestRankServesCachedSnapshotWithinStaleness(t *testing.T) {
	engine := NewLeaderboardEngine(newTestDB(t))
	start := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	engine.now = fixedClock(start)

	at := time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC)
	seedCounter(t, engine.DB, "alice", MetricInvitesAccepted, models.WindowDay, "2026-08-28", 3, at)

	entries, err := engine.Rank("invites", "day", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// a new score arrives but the snapshot is still fresh
	seedCounter(t, engine.DB, "bob", MetricInvitesAccepted, models.WindowDay, "2026-08-28", 7, at)
	entries, err = engine.Rank("invites", "day", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// past the staleness bound the board recomputes
	engine.now = fixedClock(start.Add(DefaultMaxStaleness + time.Second))
	entries, err = engine.Rank("invites", "day", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "bob", entries[0].OwnerID)
}

func TestInvalidateDropsSnapshots(t *testing.T) {
	engine := NewLeaderboardEngine(newTestDB(t))
	engine.now = fixedClock(time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))

	at := time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC)
	seedCounter(t, engine.DB, "alice", MetricInvitesAccepted, models.WindowDay, "2026-08-28", 3, at)

	_, err := engine.Rank("invites", "day", 10)
	require.NoError(t, err)

	seedCounter(t, engine.DB, "bob", MetricInvitesAccepted, models.WindowDay, "2026-08-28", 7, at)
	engine.Invalidate()

	entries, err := engine.Rank("invites", "day", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestRankRejectsUnknownCategoryAndPeriod(t *testing.T) {
	engine := NewLeaderboardEngine(newTestDB(t))

	var validationErr *ValidationError
	_, err := engine.Rank("bogus", "day", 10)
	require.ErrorAs(t, err, &validationErr)

	_, err = engine.Rank("invites", "fortnight", 10)
	require.ErrorAs(t, err, &validationErr)
}
