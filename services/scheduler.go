// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartSweeps runs the periodic maintenance jobs: campaign transitions every
// minute, invite expiry every five, and leaderboard snapshot invalidation at
// the staleness bound. Returns the scheduler so main can Shutdown on exit.
func StartSweeps(campaigns *CampaignTracker, invites *InviteService, leaderboards *LeaderboardEngine) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			campaigns.SweepTransitions()
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() {
			if _, err := invites.ExpireSweep(); err != nil {
				log.Printf("[Sweep] invite expiry failed: %v", err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(DefaultMaxStaleness),
		gocron.NewTask(func() {
			leaderboards.Invalidate()
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	log.Println("✅ Sweep scheduler running (campaigns 1m, invites 5m, leaderboard cache 60s)")
	return sched, nil
}
