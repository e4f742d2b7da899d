package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/acamp/club-engine/engine"
)

// =============================================================================
// ATHLETES
// =============================================================================

type athleteRow struct {
	ID               string        `db:"id"`
	Name             string        `db:"name"`
	Email            string        `db:"email"`
	Category         string        `db:"category"`
	Role             string        `db:"role"`
	Balance          int64         `db:"balance"`
	AvatarURL        string        `db:"avatar_url"`
	ScoreTarget      sql.NullInt64 `db:"score_target"`
	ShotsTarget      sql.NullInt64 `db:"shots_target"`
	AttendanceTarget sql.NullInt64 `db:"attendance_target"`
	CreatedAt        string        `db:"created_at"`
}

func (r athleteRow) toProfile() (engine.AthleteProfile, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return engine.AthleteProfile{}, err
	}
	return engine.AthleteProfile{
		ID:        engine.AthleteID(r.ID),
		Name:      r.Name,
		Email:     r.Email,
		Category:  engine.Category(r.Category),
		Role:      engine.Role(r.Role),
		Balance:   r.Balance,
		AvatarURL: r.AvatarURL,
		Overrides: engine.GoalOverrides{
			DailyScoreTarget:       intPtr(r.ScoreTarget),
			DailyShotsTarget:       intPtr(r.ShotsTarget),
			WeeklyAttendanceTarget: intPtr(r.AttendanceTarget),
		},
		CreatedAt: created,
	}, nil
}

const athleteColumns = `id, name, email, category, role, balance, avatar_url,
	score_target, shots_target, attendance_target, created_at`

// CreateAthlete registers a new athlete.
func (s *Store) CreateAthlete(ctx context.Context, p engine.AthleteProfile) error {
	defer s.lock()()

	_, err := s.exec(ctx, `
		INSERT INTO athletes (`+athleteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Email, p.Category, p.Role, p.Balance, p.AvatarURL,
		nullInt(p.Overrides.DailyScoreTarget),
		nullInt(p.Overrides.DailyShotsTarget),
		nullInt(p.Overrides.WeeklyAttendanceTarget),
		formatTime(p.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return engine.ErrDuplicateAthlete
		}
		return fmt.Errorf("failed to create athlete: %w", err)
	}
	return nil
}

// UpdateAthlete rewrites the profile fields. The balance is left alone;
// only SetBalance moves it.
func (s *Store) UpdateAthlete(ctx context.Context, p engine.AthleteProfile) error {
	defer s.lock()()

	res, err := s.exec(ctx, `
		UPDATE athletes SET name = ?, email = ?, category = ?, role = ?, avatar_url = ?,
			score_target = ?, shots_target = ?, attendance_target = ?
		WHERE id = ?`,
		p.Name, p.Email, p.Category, p.Role, p.AvatarURL,
		nullInt(p.Overrides.DailyScoreTarget),
		nullInt(p.Overrides.DailyShotsTarget),
		nullInt(p.Overrides.WeeklyAttendanceTarget),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update athlete: %w", err)
	}
	return requireRow(res, engine.ErrAthleteNotFound)
}

func (s *Store) GetAthlete(ctx context.Context, id engine.AthleteID) (engine.AthleteProfile, error) {
	defer s.rlock()()

	var row athleteRow
	err := s.get(ctx, &row, `SELECT `+athleteColumns+` FROM athletes WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.AthleteProfile{}, engine.ErrAthleteNotFound
	}
	if err != nil {
		return engine.AthleteProfile{}, fmt.Errorf("failed to load athlete: %w", err)
	}
	return row.toProfile()
}

// ListAthletes returns every athlete ordered by name.
func (s *Store) ListAthletes(ctx context.Context) ([]engine.AthleteProfile, error) {
	defer s.rlock()()

	var rows []athleteRow
	if err := s.selectAll(ctx, &rows, `SELECT `+athleteColumns+` FROM athletes ORDER BY name, id`); err != nil {
		return nil, fmt.Errorf("failed to list athletes: %w", err)
	}
	result := make([]engine.AthleteProfile, 0, len(rows))
	for _, r := range rows {
		p, err := r.toProfile()
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

func (s *Store) SetBalance(ctx context.Context, id engine.AthleteID, balance int64) error {
	defer s.lock()()

	res, err := s.exec(ctx, `UPDATE athletes SET balance = ? WHERE id = ?`, balance, id)
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return requireRow(res, engine.ErrAthleteNotFound)
}

// =============================================================================
// COIN TRANSACTIONS (append-only)
// =============================================================================

type coinTxRow struct {
	ID             string         `db:"id"`
	AthleteID      string         `db:"athlete_id"`
	Requested      int64          `db:"requested"`
	Applied        int64          `db:"applied"`
	BalanceAfter   int64          `db:"balance_after"`
	Source         string         `db:"source"`
	Reference      string         `db:"reference"`
	Reason         string         `db:"reason"`
	IdempotencyKey sql.NullString `db:"idempotency_key"`
	At             string         `db:"at"`
}

func (s *Store) AppendCoinTx(ctx context.Context, tx engine.CoinTransaction) error {
	defer s.lock()()

	_, err := s.exec(ctx, `
		INSERT INTO coin_transactions
		(id, athlete_id, requested, applied, balance_after, source, reference, reason, idempotency_key, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.AthleteID, tx.Requested, tx.Applied, tx.BalanceAfter,
		tx.Source, tx.Reference, tx.Reason, nullString(tx.IdempotencyKey), formatTime(tx.At),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return engine.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append coin transaction: %w", err)
	}
	return nil
}

func (s *Store) CoinTxExists(ctx context.Context, idempotencyKey string) (bool, error) {
	defer s.rlock()()

	var n int
	if err := s.get(ctx, &n, `SELECT COUNT(*) FROM coin_transactions WHERE idempotency_key = ?`, idempotencyKey); err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return n > 0, nil
}

// ListCoinTxs returns newest first; limit <= 0 means all.
func (s *Store) ListCoinTxs(ctx context.Context, id engine.AthleteID, limit int) ([]engine.CoinTransaction, error) {
	defer s.rlock()()

	query := `SELECT id, athlete_id, requested, applied, balance_after, source, reference, reason, idempotency_key, at
		FROM coin_transactions WHERE athlete_id = ? ORDER BY at DESC, seq DESC`
	args := []any{id}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []coinTxRow
	if err := s.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list coin transactions: %w", err)
	}
	result := make([]engine.CoinTransaction, 0, len(rows))
	for _, r := range rows {
		at, err := parseTime(r.At)
		if err != nil {
			return nil, err
		}
		result = append(result, engine.CoinTransaction{
			ID:             engine.TransactionID(r.ID),
			AthleteID:      engine.AthleteID(r.AthleteID),
			Requested:      r.Requested,
			Applied:        r.Applied,
			BalanceAfter:   r.BalanceAfter,
			Source:         engine.TxSource(r.Source),
			Reference:      r.Reference,
			Reason:         r.Reason,
			IdempotencyKey: r.IdempotencyKey.String,
			At:             at,
		})
	}
	return result, nil
}

// =============================================================================
// REDEMPTIONS
// =============================================================================

type redemptionRow struct {
	AthleteID  string `db:"athlete_id"`
	GoalID     string `db:"goal_id"`
	RedeemedAt string `db:"redeemed_at"`
	PeriodKey  string `db:"period_key"`
}

func (r redemptionRow) toRecord() (engine.RedemptionRecord, error) {
	at, err := parseTime(r.RedeemedAt)
	if err != nil {
		return engine.RedemptionRecord{}, err
	}
	return engine.RedemptionRecord{
		AthleteID:  engine.AthleteID(r.AthleteID),
		GoalID:     engine.GoalID(r.GoalID),
		RedeemedAt: at,
		PeriodKey:  r.PeriodKey,
	}, nil
}

func (s *Store) GetRedemption(ctx context.Context, id engine.AthleteID, goal engine.GoalID) (*engine.RedemptionRecord, error) {
	defer s.rlock()()

	var row redemptionRow
	err := s.get(ctx, &row, `SELECT athlete_id, goal_id, redeemed_at, period_key
		FROM redemptions WHERE athlete_id = ? AND goal_id = ?`, id, goal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load redemption: %w", err)
	}
	rec, err := row.toRecord()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListRedemptions(ctx context.Context, id engine.AthleteID) ([]engine.RedemptionRecord, error) {
	defer s.rlock()()

	var rows []redemptionRow
	if err := s.selectAll(ctx, &rows, `SELECT athlete_id, goal_id, redeemed_at, period_key
		FROM redemptions WHERE athlete_id = ? ORDER BY goal_id`, id); err != nil {
		return nil, fmt.Errorf("failed to list redemptions: %w", err)
	}
	result := make([]engine.RedemptionRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toRecord()
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, nil
}

// PutRedemption overwrites the claim for (athlete, goal).
func (s *Store) PutRedemption(ctx context.Context, rec engine.RedemptionRecord) error {
	defer s.lock()()

	_, err := s.exec(ctx, `
		INSERT INTO redemptions (athlete_id, goal_id, redeemed_at, period_key)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (athlete_id, goal_id) DO UPDATE
		SET redeemed_at = excluded.redeemed_at, period_key = excluded.period_key`,
		rec.AthleteID, rec.GoalID, formatTime(rec.RedeemedAt), rec.PeriodKey,
	)
	if err != nil {
		return fmt.Errorf("failed to save redemption: %w", err)
	}
	return nil
}

// ClaimRedemption writes the claim only if the stored period differs.
func (s *Store) ClaimRedemption(ctx context.Context, rec engine.RedemptionRecord) (bool, error) {
	defer s.lock()()

	res, err := s.exec(ctx, `
		INSERT INTO redemptions (athlete_id, goal_id, redeemed_at, period_key)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (athlete_id, goal_id) DO UPDATE
		SET redeemed_at = excluded.redeemed_at, period_key = excluded.period_key
		WHERE redemptions.period_key <> excluded.period_key`,
		rec.AthleteID, rec.GoalID, formatTime(rec.RedeemedAt), rec.PeriodKey,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim redemption: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
