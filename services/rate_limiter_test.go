package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestTryConsumeEnforcesDailyCap(t *testing.T) {
	limiter := NewRateLimiter(newTestDB(t))
	limiter.now = fixedClock(time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))

	for i := 0; i < 10; i++ {
		require.NoError(t, limiter.TryConsume("u1", ActionInvite, 1))
	}

	err := limiter.TryConsume("u1", ActionInvite, 1)
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	require.False(t, quotaErr.Blocked)
	require.Greater(t, quotaErr.RetryAfter, time.Duration(0))
}

func TestCapacityRefillsContinuously(t *testing.T) {
	start := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(newTestDB(t))
	limiter.now = fixedClock(start)

	for i := 0; i < 10; i++ {
		require.NoError(t, limiter.TryConsume("u1", ActionInvite, 1))
	}
	require.Error(t, limiter.TryConsume("u1", ActionInvite, 1))

	// 1/10th of a day refills one invite; no midnight reset involved
	limiter.now = fixedClock(start.Add(ticksForOneUnit()))
	require.NoError(t, limiter.TryConsume("u1", ActionInvite, 1))
	require.Error(t, limiter.TryConsume("u1", ActionInvite, 1))
}

func ticksForOneUnit() time.Duration {
	return time.Duration(secondsPerDay/10*float64(time.Second)) + time.Second
}

func TestAdminOverrideRaisesCapImmediately(t *testing.T) {
	limiter := NewRateLimiter(newTestDB(t))
	limiter.now = fixedClock(time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))

	// U1 exhausts the default 10/day
	for i := 0; i < 10; i++ {
		require.NoError(t, limiter.TryConsume("u1", ActionInvite, 1))
	}
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, limiter.TryConsume("u1", ActionInvite, 1), &quotaErr)

	// admin raises the cap to 20; the 11th invite now succeeds
	require.NoError(t, limiter.SetLimit("u1", ActionInvite, 20))
	require.NoError(t, limiter.TryConsume("u1", ActionInvite, 1))
}

func TestOverrideSurvivesReload(t *testing.T) {
	db := newTestDB(t)

	limiter := NewRateLimiter(db)
	require.NoError(t, limiter.SetLimit("u1", ActionInvite, 2))

	reloaded := NewRateLimiter(db)
	reloaded.now = fixedClock(time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))
	require.NoError(t, reloaded.LoadOverrides())

	require.NoError(t, reloaded.TryConsume("u1", ActionInvite, 1))
	require.NoError(t, reloaded.TryConsume("u1", ActionInvite, 1))
	require.Error(t, reloaded.TryConsume("u1", ActionInvite, 1))
}

func TestBlockUserIsTerminalUntilLifted(t *testing.T) {
	limiter := NewRateLimiter(newTestDB(t))

	require.NoError(t, limiter.BlockUser("u1"))

	err := limiter.TryConsume("u1", ActionInvite, 1)
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	require.True(t, quotaErr.Blocked)

	// blocks cover every action, not just invites
	require.ErrorAs(t, limiter.TryConsume("u1", ActionShare, 1), &quotaErr)
	require.True(t, quotaErr.Blocked)

	require.NoError(t, limiter.UnblockUser("u1"))
	require.NoError(t, limiter.TryConsume("u1", ActionInvite, 1))
}

func TestBlockSurvivesReloadAfterReblock(t *testing.T) {
	db := newTestDB(t)

	limiter := NewRateLimiter(db)
	require.NoError(t, limiter.BlockUser("u1"))
	require.NoError(t, limiter.UnblockUser("u1"))
	require.NoError(t, limiter.BlockUser("u1"))

	// a restart must still see the re-applied block
	reloaded := NewRateLimiter(db)
	require.NoError(t, reloaded.LoadOverrides())

	err := reloaded.TryConsume("u1", ActionInvite, 1)
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	require.True(t, quotaErr.Blocked)
}

func TestConcurrentConsumptionNeverOversubscribes(t *testing.T) {
	limiter := NewRateLimiter(newTestDB(t))
	limiter.now = fixedClock(time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))

	const attempts = 40
	var wg sync.WaitGroup
	results := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = limiter.TryConsume("u1", ActionInvite, 1)
		}(i)
	}
	wg.Wait()

	allowed := 0
	for _, err := range results {
		if err == nil {
			allowed++
		} else {
			var quotaErr *QuotaExceededError
			require.True(t, errors.As(err, &quotaErr))
		}
	}
	require.Equal(t, 10, allowed)
}

func TestActorsDoNotShareBuckets(t *testing.T) {
	limiter := NewRateLimiter(newTestDB(t))
	limiter.now = fixedClock(time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))

	for i := 0; i < 10; i++ {
		require.NoError(t, limiter.TryConsume("u1", ActionInvite, 1))
	}
	require.Error(t, limiter.TryConsume("u1", ActionInvite, 1))
	require.NoError(t, limiter.TryConsume("u2", ActionInvite, 1))
}
