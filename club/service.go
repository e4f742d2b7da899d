/*
Package club is the club's domain service: everything an athlete or coach
does, expressed as operations over a Repository and the goals engine.

PURPOSE:
  Turns requests ("check in", "finish this scorecard", "redeem the score
  goal") into engine calls plus the writes they imply, each inside one
  repository transaction so a reward is never credited without the event
  that earned it.

AUTOMATIC REWARDS (amounts come from engine.RewardRules):
  first check-in of the day     +CheckInReward   (5)
  completed scoring session     +SessionReward   (15)
  completing a team-wide plan   +TeamPlanReward  (5), once per plan per day

COACH-ONLY:
  creating and deleting plans, goal overrides, global goal changes, awards.
  The acting user is passed explicitly; Service checks the role.

TIME:
  Every operation takes "now". The caller decides the club's time zone by
  the location of the value it passes.
*/
package club

import (
	"context"
	"fmt"
	"time"

	"github.com/acamp/club-engine/engine"
	"github.com/google/uuid"
)

// Options configures a Service.
type Options struct {
	Rules      engine.RewardRules
	ClosedDays []time.Weekday
}

// DefaultOptions returns the club's standing rules: default rewards and no
// check-ins on Sundays.
func DefaultOptions() Options {
	return Options{
		Rules:      engine.DefaultRewardRules(),
		ClosedDays: []time.Weekday{time.Sunday},
	}
}

// Service implements the club's operations.
type Service struct {
	repo       Repository
	rules      engine.RewardRules
	closedDays map[time.Weekday]bool
	ledger     *engine.RedemptionLedger
	transactor *engine.RewardTransactor
}

func NewService(repo Repository, opts Options) *Service {
	closed := make(map[time.Weekday]bool, len(opts.ClosedDays))
	for _, d := range opts.ClosedDays {
		closed[d] = true
	}
	return &Service{
		repo:       repo,
		rules:      opts.Rules,
		closedDays: closed,
		ledger:     engine.NewRedemptionLedger(repo, opts.Rules),
		transactor: engine.NewRewardTransactor(repo),
	}
}

// Rules returns the reward rules in effect.
func (s *Service) Rules() engine.RewardRules { return s.rules }

// =============================================================================
// ATHLETES
// =============================================================================

// RegisterAthlete creates a profile.
func (s *Service) RegisterAthlete(ctx context.Context, p engine.AthleteProfile, now time.Time) (engine.AthleteProfile, error) {
	if p.Role == "" {
		p.Role = engine.RoleAthlete
	}
	if err := p.Validate(); err != nil {
		return engine.AthleteProfile{}, err
	}
	p.CreatedAt = now
	if err := s.repo.CreateAthlete(ctx, p); err != nil {
		return engine.AthleteProfile{}, err
	}
	return p, nil
}

func (s *Service) GetAthlete(ctx context.Context, id engine.AthleteID) (engine.AthleteProfile, error) {
	return s.repo.GetAthlete(ctx, id)
}

func (s *Service) ListAthletes(ctx context.Context) ([]engine.AthleteProfile, error) {
	return s.repo.ListAthletes(ctx)
}

// ProfilePatch is a partial profile update. Nil fields are left unchanged.
type ProfilePatch struct {
	Name      *string
	Email     *string
	Category  *engine.Category
	AvatarURL *string
}

// UpdateProfile applies a patch to the athlete's own profile fields.
func (s *Service) UpdateProfile(ctx context.Context, id engine.AthleteID, patch ProfilePatch) (engine.AthleteProfile, error) {
	var out engine.AthleteProfile
	err := s.repo.WithinTx(ctx, func(tx Repository) error {
		p, err := tx.GetAthlete(ctx, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Email != nil {
			p.Email = *patch.Email
		}
		if patch.Category != nil {
			p.Category = *patch.Category
		}
		if patch.AvatarURL != nil {
			p.AvatarURL = *patch.AvatarURL
		}
		if err := p.Validate(); err != nil {
			return err
		}
		out = p
		return tx.UpdateAthlete(ctx, p)
	})
	return out, err
}

// requireCoach loads the acting user and checks the role.
func requireCoach(ctx context.Context, repo Repository, actor engine.AthleteID) error {
	p, err := repo.GetAthlete(ctx, actor)
	if err != nil {
		return fmt.Errorf("actor %s: %w", actor, err)
	}
	if p.Role != engine.RoleCoach {
		return engine.ErrNotCoach
	}
	return nil
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// CheckInResult reports what a check-in did.
type CheckInResult struct {
	Record   engine.AttendanceRecord
	Recorded bool // false when the athlete had already checked in today
	Credit   *engine.ApplyResult
}

// CheckIn records today's attendance and credits the check-in reward once.
func (s *Service) CheckIn(ctx context.Context, id engine.AthleteID, now time.Time) (CheckInResult, error) {
	today := engine.DayOf(now)
	if s.closedDays[today.Weekday()] {
		return CheckInResult{}, engine.ErrClubClosed
	}

	res := CheckInResult{Record: engine.AttendanceRecord{AthleteID: id, Day: today, CheckedInAt: now}}
	err := s.repo.WithinTx(ctx, func(tx Repository) error {
		if _, err := tx.GetAthlete(ctx, id); err != nil {
			return err
		}
		added, err := tx.AddAttendance(ctx, res.Record)
		if err != nil || !added {
			return err
		}
		res.Recorded = true

		credit, err := engine.ApplyDeltaIn(ctx, tx, id, s.rules.CheckInReward, engine.TxMeta{
			Source:         engine.SourceCheckIn,
			Reference:      today.String(),
			Reason:         "check-in",
			IdempotencyKey: fmt.Sprintf("checkin:%s:%s", id, today),
		}, now)
		if err != nil {
			return err
		}
		res.Credit = &credit
		return nil
	})
	return res, err
}

// Attendance lists check-ins in [from, to].
func (s *Service) Attendance(ctx context.Context, id engine.AthleteID, from, to engine.Day) ([]engine.AttendanceRecord, error) {
	if to.Before(from) {
		return nil, &engine.InvalidInputError{Field: "to", Reason: "must not be before from"}
	}
	if _, err := s.repo.GetAthlete(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListAttendance(ctx, id, from, to)
}

// =============================================================================
// SCORING SESSIONS
// =============================================================================

// SessionInput is a finished scorecard.
type SessionInput struct {
	Distance int
	Ends     [][]string
}

// SessionResult is a stored session with its side effects.
type SessionResult struct {
	Session    engine.ShotSession
	Stats      engine.SessionStats
	TodayShots int
	Pruned     int64
	Credit     engine.ApplyResult
}

// CompleteSession stores the session, trims history to the cap, adds the
// arrows to today's shot volume and credits the session reward.
func (s *Service) CompleteSession(ctx context.Context, id engine.AthleteID, in SessionInput, now time.Time) (SessionResult, error) {
	if in.Distance < 0 {
		return SessionResult{}, &engine.InvalidInputError{Field: "distance", Reason: "must not be negative"}
	}
	ends, err := engine.ParseEnds(in.Ends)
	if err != nil {
		return SessionResult{}, err
	}

	sess := engine.ShotSession{
		ID:        engine.SessionID(uuid.NewString()),
		AthleteID: id,
		At:        now,
		Score:     engine.SessionTotal(ends),
		Distance:  in.Distance,
		Ends:      ends,
	}
	res := SessionResult{Session: sess, Stats: engine.StatsFor(sess)}

	err = s.repo.WithinTx(ctx, func(tx Repository) error {
		if _, err := tx.GetAthlete(ctx, id); err != nil {
			return err
		}
		if err := tx.AddSession(ctx, sess); err != nil {
			return err
		}
		pruned, err := tx.PruneSessions(ctx, id, s.rules.HistoryCap)
		if err != nil {
			return err
		}
		res.Pruned = pruned

		counter, err := tx.GetShotCounter(ctx, id)
		if err != nil {
			return err
		}
		counter = counter.Add(engine.ArrowCount(ends), now)
		if err := tx.PutShotCounter(ctx, id, counter); err != nil {
			return err
		}
		res.TodayShots = counter.Count

		res.Credit, err = engine.ApplyDeltaIn(ctx, tx, id, s.rules.SessionReward, engine.TxMeta{
			Source:         engine.SourceSession,
			Reference:      string(sess.ID),
			Reason:         "session completed",
			IdempotencyKey: "session:" + string(sess.ID),
		}, now)
		return err
	})
	if err != nil {
		return SessionResult{}, err
	}
	return res, nil
}

// Sessions lists the athlete's sessions, newest first.
func (s *Service) Sessions(ctx context.Context, id engine.AthleteID, limit int) ([]engine.ShotSession, error) {
	if _, err := s.repo.GetAthlete(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListSessions(ctx, id, limit)
}

// =============================================================================
// SHOT VOLUME
// =============================================================================

// AdjustShots adds delta (possibly negative) to today's shot volume.
func (s *Service) AdjustShots(ctx context.Context, id engine.AthleteID, delta int, now time.Time) (int, error) {
	var count int
	err := s.repo.WithinTx(ctx, func(tx Repository) error {
		if _, err := tx.GetAthlete(ctx, id); err != nil {
			return err
		}
		c, err := tx.GetShotCounter(ctx, id)
		if err != nil {
			return err
		}
		c = c.Add(delta, now)
		count = c.Count
		return tx.PutShotCounter(ctx, id, c)
	})
	return count, err
}

// TodayShots reads today's volume, persisting the reset when the stored
// counter belongs to an earlier day.
func (s *Service) TodayShots(ctx context.Context, id engine.AthleteID, now time.Time) (int, error) {
	var count int
	err := s.repo.WithinTx(ctx, func(tx Repository) error {
		if _, err := tx.GetAthlete(ctx, id); err != nil {
			return err
		}
		c, err := currentShotCounter(ctx, tx, id, now)
		count = c.Count
		return err
	})
	return count, err
}

// currentShotCounter loads the counter and writes back a reset when it
// belongs to an earlier day.
func currentShotCounter(ctx context.Context, repo Repository, id engine.AthleteID, now time.Time) (engine.ShotCounter, error) {
	c, err := repo.GetShotCounter(ctx, id)
	if err != nil {
		return engine.ShotCounter{}, err
	}
	if c.Stale(now) {
		c = engine.ShotCounter{UpdatedAt: now}
		if err := repo.PutShotCounter(ctx, id, c); err != nil {
			return engine.ShotCounter{}, err
		}
	}
	return c, nil
}

// =============================================================================
// PROGRESS
// =============================================================================

// Progress computes the athlete's current-period metrics.
func (s *Service) Progress(ctx context.Context, id engine.AthleteID, now time.Time) (engine.Progress, error) {
	var p engine.Progress
	err := s.repo.WithinTx(ctx, func(tx Repository) error {
		if _, err := tx.GetAthlete(ctx, id); err != nil {
			return err
		}
		var err error
		p, err = loadProgress(ctx, tx, id, now)
		return err
	})
	return p, err
}

// loadProgress reads the logs a Progress needs: the session history, the
// shot counter (resetting it on a new day), and attendance covering both
// this week and this month.
func loadProgress(ctx context.Context, repo Repository, id engine.AthleteID, now time.Time) (engine.Progress, error) {
	sessions, err := repo.ListSessions(ctx, id, 0)
	if err != nil {
		return engine.Progress{}, err
	}
	counter, err := currentShotCounter(ctx, repo, id, now)
	if err != nil {
		return engine.Progress{}, err
	}
	week, month := engine.WeekOf(now), engine.MonthOf(now)
	from, to := month.Start, month.End
	if week.Start.Before(from) {
		from = week.Start
	}
	if week.End.After(to) {
		to = week.End
	}
	attendance, err := repo.ListAttendance(ctx, id, from, to)
	if err != nil {
		return engine.Progress{}, err
	}
	return engine.Compute(sessions, counter, attendance, now), nil
}
