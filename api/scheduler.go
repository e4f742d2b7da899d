/*
scheduler.go - Weekly leaderboard snapshot scheduler

PURPOSE:
  Periodically freezes the previous week's leaderboard so coaches can look
  back at past weeks after balances have moved on.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each check asks the service to snapshot the week before "now"
  - The store keeps at most one snapshot per week, so repeated checks
    during the same week are no-ops
  - Only reads the ledger and appends snapshot rows

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewSnapshotScheduler(svc, loc, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - club/board.go: SnapshotPreviousWeek
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/acamp/club-engine/club"
	"github.com/rs/zerolog"
)

// SnapshotScheduler takes weekly leaderboard snapshots.
type SnapshotScheduler struct {
	Service       *club.Service
	Location      *time.Location
	Log           zerolog.Logger
	CheckInterval time.Duration
	Enabled       bool

	// Clock is replaced in tests.
	Clock func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSnapshotScheduler creates a new scheduler.
func NewSnapshotScheduler(svc *club.Service, loc *time.Location, log zerolog.Logger) *SnapshotScheduler {
	return &SnapshotScheduler{
		Service:       svc,
		Location:      loc,
		Log:           log.With().Str("component", "scheduler").Logger(),
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Clock:         time.Now,
	}
}

// Start begins the scheduler.
func (ss *SnapshotScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled || ss.CheckInterval <= 0 {
		ss.Log.Info().Msg("Disabled, not starting")
		return
	}
	if ss.ticker != nil {
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.stop = make(chan struct{})
	ss.wg.Add(1)

	go ss.run(ss.ticker.C, ss.stop)

	ss.Log.Info().
		Dur("interval", ss.CheckInterval).
		Time("next_check", ss.NextRunTime()).
		Msg("Started")
}

// Stop stops the scheduler and waits for a running check to finish.
func (ss *SnapshotScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		ss.ticker = nil
		ss.Log.Info().Msg("Stopped")
	}
}

func (ss *SnapshotScheduler) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer ss.wg.Done()

	// Run immediately on start
	ss.RunNow(context.Background())

	for {
		select {
		case <-tick:
			ss.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow performs one check. It reports whether a new snapshot was saved.
func (ss *SnapshotScheduler) RunNow(ctx context.Context) bool {
	now := ss.Clock().In(ss.Location)

	snap, saved, err := ss.Service.SnapshotPreviousWeek(ctx, now)
	if err != nil {
		ss.Log.Error().Err(err).Msg("Snapshot failed")
		return false
	}
	if saved {
		ss.Log.Info().
			Str("week_start", snap.WeekStart.String()).
			Int("entries", len(snap.Entries)).
			Msg("Leaderboard snapshot saved")
	} else {
		ss.Log.Debug().Str("week_start", snap.WeekStart.String()).Msg("Week already captured")
	}
	return saved
}

// NextRunTime returns when the next scheduled check will occur.
func (ss *SnapshotScheduler) NextRunTime() time.Time {
	return ss.Clock().Add(ss.CheckInterval)
}
