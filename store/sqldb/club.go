package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/acamp/club-engine/club"
	"github.com/acamp/club-engine/engine"
)

// =============================================================================
// ATTENDANCE
// =============================================================================

// AddAttendance inserts a check-in; a second one for the same day is ignored.
func (s *Store) AddAttendance(ctx context.Context, rec engine.AttendanceRecord) (bool, error) {
	defer s.lock()()

	res, err := s.exec(ctx, `
		INSERT INTO attendance (athlete_id, day, checked_in_at) VALUES (?, ?, ?)
		ON CONFLICT (athlete_id, day) DO NOTHING`,
		rec.AthleteID, rec.Day.String(), formatTime(rec.CheckedInAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to record attendance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListAttendance returns check-ins in [from, to], oldest first.
func (s *Store) ListAttendance(ctx context.Context, id engine.AthleteID, from, to engine.Day) ([]engine.AttendanceRecord, error) {
	defer s.rlock()()

	var rows []struct {
		AthleteID   string `db:"athlete_id"`
		Day         string `db:"day"`
		CheckedInAt string `db:"checked_in_at"`
	}
	err := s.selectAll(ctx, &rows, `
		SELECT athlete_id, day, checked_in_at FROM attendance
		WHERE athlete_id = ? AND day >= ? AND day <= ?
		ORDER BY day`, id, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}

	result := make([]engine.AttendanceRecord, 0, len(rows))
	for _, r := range rows {
		day, err := engine.ParseDay(r.Day)
		if err != nil {
			return nil, err
		}
		at, err := parseTime(r.CheckedInAt)
		if err != nil {
			return nil, err
		}
		result = append(result, engine.AttendanceRecord{AthleteID: engine.AthleteID(r.AthleteID), Day: day, CheckedInAt: at})
	}
	return result, nil
}

// =============================================================================
// SHOT SESSIONS
// =============================================================================

type sessionRow struct {
	ID        string `db:"id"`
	AthleteID string `db:"athlete_id"`
	At        string `db:"at"`
	Score     int    `db:"score"`
	Distance  int    `db:"distance"`
	EndsJSON  string `db:"ends_json"`
}

func (s *Store) AddSession(ctx context.Context, sess engine.ShotSession) error {
	defer s.lock()()

	ends, err := json.Marshal(sess.Ends)
	if err != nil {
		return fmt.Errorf("failed to encode ends: %w", err)
	}
	_, err = s.exec(ctx, `
		INSERT INTO shot_sessions (id, athlete_id, at, score, distance, ends_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.AthleteID, formatTime(sess.At), sess.Score, sess.Distance, string(ends),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *Store) ListSessions(ctx context.Context, id engine.AthleteID, limit int) ([]engine.ShotSession, error) {
	defer s.rlock()()

	query := `SELECT id, athlete_id, at, score, distance, ends_json
		FROM shot_sessions WHERE athlete_id = ? ORDER BY at DESC, seq DESC`
	args := []any{id}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []sessionRow
	if err := s.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	result := make([]engine.ShotSession, 0, len(rows))
	for _, r := range rows {
		at, err := parseTime(r.At)
		if err != nil {
			return nil, err
		}
		var ends [][]engine.Arrow
		if err := json.Unmarshal([]byte(r.EndsJSON), &ends); err != nil {
			return nil, fmt.Errorf("corrupt ends for session %s: %w", r.ID, err)
		}
		result = append(result, engine.ShotSession{
			ID:        engine.SessionID(r.ID),
			AthleteID: engine.AthleteID(r.AthleteID),
			At:        at,
			Score:     r.Score,
			Distance:  r.Distance,
			Ends:      ends,
		})
	}
	return result, nil
}

// PruneSessions deletes everything but the newest keep sessions.
func (s *Store) PruneSessions(ctx context.Context, id engine.AthleteID, keep int) (int64, error) {
	defer s.lock()()

	res, err := s.exec(ctx, `
		DELETE FROM shot_sessions
		WHERE athlete_id = ? AND id NOT IN (
			SELECT id FROM shot_sessions WHERE athlete_id = ?
			ORDER BY at DESC, seq DESC LIMIT ?
		)`, id, id, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	return res.RowsAffected()
}

// =============================================================================
// SHOT COUNTERS
// =============================================================================

// GetShotCounter returns a zero counter for athletes who never recorded shots.
func (s *Store) GetShotCounter(ctx context.Context, id engine.AthleteID) (engine.ShotCounter, error) {
	defer s.rlock()()

	var row struct {
		Count     int    `db:"count"`
		UpdatedAt string `db:"updated_at"`
	}
	err := s.get(ctx, &row, `SELECT count, updated_at FROM shot_counters WHERE athlete_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.ShotCounter{}, nil
	}
	if err != nil {
		return engine.ShotCounter{}, fmt.Errorf("failed to load shot counter: %w", err)
	}
	at, err := parseTime(row.UpdatedAt)
	if err != nil {
		return engine.ShotCounter{}, err
	}
	return engine.ShotCounter{Count: row.Count, UpdatedAt: at}, nil
}

func (s *Store) PutShotCounter(ctx context.Context, id engine.AthleteID, c engine.ShotCounter) error {
	defer s.lock()()

	_, err := s.exec(ctx, `
		INSERT INTO shot_counters (athlete_id, count, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (athlete_id) DO UPDATE SET count = excluded.count, updated_at = excluded.updated_at`,
		id, c.Count, formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save shot counter: %w", err)
	}
	return nil
}

// =============================================================================
// TRAINING PLANS
// =============================================================================

type planRow struct {
	ID              string         `db:"id"`
	AthleteID       string         `db:"athlete_id"`
	Title           string         `db:"title"`
	Description     string         `db:"description"`
	Duration        string         `db:"duration"`
	Intensity       string         `db:"intensity"`
	Completed       bool           `db:"completed"`
	LastCompletedOn sql.NullString `db:"last_completed_on"`
	TeamWide        bool           `db:"team_wide"`
	CreatedAt       string         `db:"created_at"`
}

func (r planRow) toPlan() (engine.TrainingPlan, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return engine.TrainingPlan{}, err
	}
	p := engine.TrainingPlan{
		ID:          engine.PlanID(r.ID),
		AthleteID:   engine.AthleteID(r.AthleteID),
		Title:       r.Title,
		Description: r.Description,
		Duration:    r.Duration,
		Intensity:   engine.Intensity(r.Intensity),
		Completed:   r.Completed,
		TeamWide:    r.TeamWide,
		CreatedAt:   created,
	}
	if r.LastCompletedOn.Valid {
		d, err := engine.ParseDay(r.LastCompletedOn.String)
		if err != nil {
			return engine.TrainingPlan{}, err
		}
		p.LastCompletedOn = &d
	}
	return p, nil
}

const planColumns = `id, athlete_id, title, description, duration, intensity,
	completed, last_completed_on, team_wide, created_at`

// SavePlan inserts or replaces a plan.
func (s *Store) SavePlan(ctx context.Context, p engine.TrainingPlan) error {
	defer s.lock()()

	var last sql.NullString
	if p.LastCompletedOn != nil {
		last = sql.NullString{String: p.LastCompletedOn.String(), Valid: true}
	}
	_, err := s.exec(ctx, `
		INSERT INTO training_plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title, description = excluded.description,
			duration = excluded.duration, intensity = excluded.intensity,
			completed = excluded.completed, last_completed_on = excluded.last_completed_on`,
		p.ID, p.AthleteID, p.Title, p.Description, p.Duration, p.Intensity,
		p.Completed, last, p.TeamWide, formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, id engine.PlanID) (engine.TrainingPlan, error) {
	defer s.rlock()()

	var row planRow
	err := s.get(ctx, &row, `SELECT `+planColumns+` FROM training_plans WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.TrainingPlan{}, engine.ErrPlanNotFound
	}
	if err != nil {
		return engine.TrainingPlan{}, fmt.Errorf("failed to load plan: %w", err)
	}
	return row.toPlan()
}

func (s *Store) ListPlans(ctx context.Context, id engine.AthleteID) ([]engine.TrainingPlan, error) {
	defer s.rlock()()

	var rows []planRow
	if err := s.selectAll(ctx, &rows, `SELECT `+planColumns+` FROM training_plans
		WHERE athlete_id = ? ORDER BY created_at, id`, id); err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	result := make([]engine.TrainingPlan, 0, len(rows))
	for _, r := range rows {
		p, err := r.toPlan()
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

func (s *Store) DeletePlan(ctx context.Context, id engine.PlanID) error {
	defer s.lock()()

	res, err := s.exec(ctx, `DELETE FROM training_plans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	return requireRow(res, engine.ErrPlanNotFound)
}

// =============================================================================
// GLOBAL GOALS
// =============================================================================

func (s *Store) GetGlobalGoals(ctx context.Context) (engine.GlobalGoals, bool, error) {
	defer s.rlock()()

	var row struct {
		Score      int `db:"daily_score_target"`
		Shots      int `db:"daily_shots_target"`
		Attendance int `db:"weekly_attendance_target"`
	}
	err := s.get(ctx, &row, `SELECT daily_score_target, daily_shots_target, weekly_attendance_target
		FROM global_goals WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.GlobalGoals{}, false, nil
	}
	if err != nil {
		return engine.GlobalGoals{}, false, fmt.Errorf("failed to load global goals: %w", err)
	}
	return engine.GlobalGoals{
		DailyScoreTarget:       row.Score,
		DailyShotsTarget:       row.Shots,
		WeeklyAttendanceTarget: row.Attendance,
	}, true, nil
}

func (s *Store) PutGlobalGoals(ctx context.Context, g engine.GlobalGoals) error {
	defer s.lock()()

	_, err := s.exec(ctx, `
		INSERT INTO global_goals (id, daily_score_target, daily_shots_target, weekly_attendance_target, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			daily_score_target = excluded.daily_score_target,
			daily_shots_target = excluded.daily_shots_target,
			weekly_attendance_target = excluded.weekly_attendance_target,
			updated_at = excluded.updated_at`,
		g.DailyScoreTarget, g.DailyShotsTarget, g.WeeklyAttendanceTarget, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save global goals: %w", err)
	}
	return nil
}

// =============================================================================
// LEADERBOARD SNAPSHOTS
// =============================================================================

// SaveSnapshot stores the week's leaderboard unless one exists already.
func (s *Store) SaveSnapshot(ctx context.Context, snap club.LeaderboardSnapshot) (bool, error) {
	defer s.lock()()

	entries, err := json.Marshal(snap.Entries)
	if err != nil {
		return false, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	res, err := s.exec(ctx, `
		INSERT INTO leaderboard_snapshots (id, week_start, taken_at, entries_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (week_start) DO NOTHING`,
		snap.ID, snap.WeekStart.String(), formatTime(snap.TakenAt), string(entries),
	)
	if err != nil {
		return false, fmt.Errorf("failed to save snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListSnapshots returns the newest weeks first; limit <= 0 means all.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]club.LeaderboardSnapshot, error) {
	defer s.rlock()()

	query := `SELECT id, week_start, taken_at, entries_json FROM leaderboard_snapshots ORDER BY week_start DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []struct {
		ID          string `db:"id"`
		WeekStart   string `db:"week_start"`
		TakenAt     string `db:"taken_at"`
		EntriesJSON string `db:"entries_json"`
	}
	if err := s.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	result := make([]club.LeaderboardSnapshot, 0, len(rows))
	for _, r := range rows {
		week, err := engine.ParseDay(r.WeekStart)
		if err != nil {
			return nil, err
		}
		taken, err := parseTime(r.TakenAt)
		if err != nil {
			return nil, err
		}
		snap := club.LeaderboardSnapshot{ID: r.ID, WeekStart: week, TakenAt: taken}
		if err := json.Unmarshal([]byte(r.EntriesJSON), &snap.Entries); err != nil {
			return nil, fmt.Errorf("corrupt snapshot %s: %w", r.ID, err)
		}
		result = append(result, snap)
	}
	return result, nil
}
