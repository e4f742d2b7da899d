package club

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/acamp/club-engine/engine"
	"github.com/google/uuid"
)

// =============================================================================
// COACH AWARDS
// =============================================================================

// AwardInput is a manual coin change. Target is an athlete id or "all".
type AwardInput struct {
	Target         string
	Amount         int64
	Reason         string
	IdempotencyKey string
}

// Award credits or deducts coins. For "all" every athlete (not coaches) is
// changed in turn; on failure the athletes already changed stay changed and
// the returned *engine.BatchError lists them.
func (s *Service) Award(ctx context.Context, actor engine.AthleteID, in AwardInput, now time.Time) ([]engine.ApplyResult, error) {
	if in.Amount == 0 {
		return nil, &engine.InvalidInputError{Field: "amount", Reason: "must not be zero"}
	}
	if in.Target == "" {
		return nil, &engine.InvalidInputError{Field: "target", Reason: "required"}
	}
	if err := requireCoach(ctx, s.repo, actor); err != nil {
		return nil, err
	}

	meta := engine.TxMeta{
		Source:         engine.SourceCoachAward,
		Reference:      string(actor),
		Reason:         strings.TrimSpace(in.Reason),
		IdempotencyKey: in.IdempotencyKey,
	}

	if in.Target != engine.AllAthletes {
		res, err := s.transactor.ApplyDelta(ctx, engine.AthleteID(in.Target), in.Amount, meta, now)
		if err != nil {
			return nil, err
		}
		return []engine.ApplyResult{res}, nil
	}

	athletes, err := s.repo.ListAthletes(ctx)
	if err != nil {
		return nil, err
	}
	var ids []engine.AthleteID
	for _, a := range athletes {
		if a.Role == engine.RoleAthlete {
			ids = append(ids, a.ID)
		}
	}
	return s.transactor.ApplyDeltaToAll(ctx, ids, in.Amount, meta, now)
}

// Transactions lists an athlete's coin history, newest first.
func (s *Service) Transactions(ctx context.Context, id engine.AthleteID, limit int) ([]engine.CoinTransaction, error) {
	if _, err := s.repo.GetAthlete(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListCoinTxs(ctx, id, limit)
}

// =============================================================================
// LEADERBOARD & ROSTER
// =============================================================================

// Leaderboard ranks athletes by balance, highest first.
func (s *Service) Leaderboard(ctx context.Context, now time.Time) ([]LeaderboardEntry, error) {
	return leaderboard(ctx, s.repo, now)
}

func leaderboard(ctx context.Context, repo Repository, now time.Time) ([]LeaderboardEntry, error) {
	athletes, err := repo.ListAthletes(ctx)
	if err != nil {
		return nil, err
	}
	week := engine.WeekOf(now)

	var entries []LeaderboardEntry
	for _, a := range athletes {
		if a.Role != engine.RoleAthlete {
			continue
		}
		attendance, err := repo.ListAttendance(ctx, a.ID, week.Start, week.End)
		if err != nil {
			return nil, err
		}
		entries = append(entries, LeaderboardEntry{
			AthleteID:      a.ID,
			Name:           a.Name,
			Category:       a.Category,
			Balance:        a.Balance,
			WeekAttendance: engine.WeekAttendanceCount(attendance, now),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Balance != entries[j].Balance {
			return entries[i].Balance > entries[j].Balance
		}
		return entries[i].Name < entries[j].Name
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// Roster is the coach's overview of every athlete.
func (s *Service) Roster(ctx context.Context, now time.Time) ([]RosterEntry, error) {
	athletes, err := s.repo.ListAthletes(ctx)
	if err != nil {
		return nil, err
	}
	week := engine.WeekOf(now)

	var roster []RosterEntry
	for _, a := range athletes {
		if a.Role != engine.RoleAthlete {
			continue
		}
		progress, err := loadProgress(ctx, s.repo, a.ID, now)
		if err != nil {
			return nil, err
		}
		sessions, err := s.repo.ListSessions(ctx, a.ID, 0)
		if err != nil {
			return nil, err
		}
		thisWeek := 0
		for _, sess := range sessions {
			if week.Contains(engine.DayIn(sess.At, now.Location())) {
				thisWeek++
			}
		}
		roster = append(roster, RosterEntry{
			Athlete:          a,
			Progress:         progress,
			PresentToday:     progress.CheckedInToday,
			LowAttendance:    progress.MonthAttendance < s.rules.LowAttendanceThreshold,
			SessionsThisWeek: thisWeek,
		})
	}
	return roster, nil
}

// =============================================================================
// WEEKLY SNAPSHOTS
// =============================================================================

// SnapshotPreviousWeek freezes the leaderboard for the week before now's
// week. It reports false if that week was already captured.
func (s *Service) SnapshotPreviousWeek(ctx context.Context, now time.Time) (LeaderboardSnapshot, bool, error) {
	weekStart := engine.WeekStart(engine.DayOf(now)).AddDays(-7)
	lastDay := weekStart.AddDays(6).Start(now.Location()).Add(12 * time.Hour)

	var snap LeaderboardSnapshot
	var saved bool
	err := s.repo.WithinTx(ctx, func(tx Repository) error {
		entries, err := leaderboard(ctx, tx, lastDay)
		if err != nil {
			return err
		}
		snap = LeaderboardSnapshot{
			ID:        uuid.NewString(),
			WeekStart: weekStart,
			TakenAt:   now,
			Entries:   entries,
		}
		saved, err = tx.SaveSnapshot(ctx, snap)
		return err
	})
	return snap, saved, err
}

// Snapshots lists stored weekly leaderboards, newest first.
func (s *Service) Snapshots(ctx context.Context, limit int) ([]LeaderboardSnapshot, error) {
	return s.repo.ListSnapshots(ctx, limit)
}

// Reset deletes every record.
func (s *Service) Reset(ctx context.Context) error {
	return s.repo.Reset(ctx)
}
