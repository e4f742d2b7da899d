package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotScheduler_OncePerWeek(t *testing.T) {
	// GIVEN: A scheduler whose clock sits in the week of 2024-03-11
	// WHEN: It runs twice, then the clock moves to the next week
	// THEN: One snapshot for 2024-03-04, nothing new, then one for 2024-03-11

	ts := newTestServer(t)
	ss := NewSnapshotScheduler(ts.svc, time.UTC, zerolog.Nop())
	ss.Clock = func() time.Time { return monday }
	ctx := context.Background()

	assert.True(t, ss.RunNow(ctx))
	assert.False(t, ss.RunNow(ctx))

	ss.Clock = func() time.Time { return monday.AddDate(0, 0, 7) }
	assert.True(t, ss.RunNow(ctx))

	rec := ts.do(t, http.MethodGet, "/api/leaderboard/snapshots", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	snaps := decode[[]SnapshotDTO](t, rec)
	require.Len(t, snaps, 2)
	assert.Equal(t, "2024-03-11", snaps[0].WeekStart)
	assert.Equal(t, "2024-03-04", snaps[1].WeekStart)
	assert.Len(t, snaps[1].Entries, 1)
}

func TestSnapshotScheduler_StartStop(t *testing.T) {
	ts := newTestServer(t)
	ss := NewSnapshotScheduler(ts.svc, time.UTC, zerolog.Nop())
	ss.Clock = func() time.Time { return monday }
	ss.CheckInterval = time.Hour

	ss.Start()
	ss.Stop()
	ss.Stop()

	snaps, err := ts.svc.Snapshots(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, snaps, 1, "a started scheduler checks once immediately")
}

func TestSnapshotScheduler_DisabledWithZeroInterval(t *testing.T) {
	ts := newTestServer(t)
	ss := NewSnapshotScheduler(ts.svc, time.UTC, zerolog.Nop())
	ss.CheckInterval = 0

	ss.Start()
	ss.Stop()

	snaps, err := ts.svc.Snapshots(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestSnapshotScheduler_NextRunTime(t *testing.T) {
	ss := NewSnapshotScheduler(nil, time.UTC, zerolog.Nop())
	ss.Clock = func() time.Time { return monday }
	ss.CheckInterval = 30 * time.Minute

	assert.Equal(t, monday.Add(30*time.Minute), ss.NextRunTime())
}
