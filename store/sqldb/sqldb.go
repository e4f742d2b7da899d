/*
Package sqldb provides a SQL-backed implementation of the club storage
interfaces, on sqlx, for SQLite and PostgreSQL.

INTERFACES IMPLEMENTED:
  engine.TxStore:   balances, coin transactions, redemption records
  club.Repository:  athletes, attendance, sessions, shot counters, plans,
                    global goals, leaderboard snapshots

APPEND-ONLY ENFORCEMENT:
  coin_transactions has no UPDATE or DELETE path outside Reset. A balance
  correction is a new transaction.

KEY TABLES:
  athletes:              profiles, balance and goal overrides
  coin_transactions:     immutable log of balance changes
  redemptions:           last claim per (athlete, goal) with its period key
  attendance:            one row per (athlete, day)
  shot_sessions:         scored sessions, pruned to the history cap
  shot_counters:         today's shot volume per athlete
  training_plans:        plans with daily completion state
  global_goals:          single row of team targets
  leaderboard_snapshots: one frozen leaderboard per week

CONSTRAINTS DOING REAL WORK:
  - attendance PK (athlete_id, day): duplicate check-ins insert nothing
  - redemptions PK (athlete_id, goal_id) + conditional upsert on period_key:
    two claims in the same period cannot both write
  - coin_transactions.idempotency_key UNIQUE: retries are rejected
  - leaderboard_snapshots.week_start UNIQUE: one snapshot per week

TIME ENCODING:
  Instants are TEXT in fixed-width UTC ("2006-01-02T15:04:05.000000000Z") so
  lexical order is chronological in both engines. Days are "2006-01-02".

CONCURRENCY:
  Writes are serialised with a mutex shared by the store and its
  transaction-bound copies. SQLite runs on a single connection, which also
  keeps ":memory:" databases alive for the life of the store.

USAGE:
  store, err := sqldb.New("sqlite3", "./club.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - engine/store.go: LedgerStore / TxStore contract
  - club/repository.go: Repository contract
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/acamp/club-engine/club"
	"github.com/acamp/club-engine/engine"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	tsLayout  = "2006-01-02T15:04:05.000000000Z"
	dayLayout = "2006-01-02"
)

// Store implements engine.TxStore and club.Repository.
type Store struct {
	db     *sqlx.DB
	q      sqlx.ExtContext
	mu     *sync.RWMutex
	inTx   bool
	driver string
}

var (
	_ engine.TxStore  = (*Store)(nil)
	_ club.Repository = (*Store)(nil)
)

// New opens the database and migrates the schema.
// For SQLite use ":memory:" for an in-memory database.
func New(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?_foreign_keys=on&_journal_mode=WAL"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, q: db, mu: &sync.RWMutex{}, driver: driver}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the driver name the store was opened with.
func (s *Store) Driver() string { return s.driver }

func (s *Store) migrate(ctx context.Context) error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == DriverPostgres {
		serial = "BIGSERIAL PRIMARY KEY"
	}
	_, err := s.db.ExecContext(ctx, strings.ReplaceAll(schema, "{{serial}}", serial))
	return err
}

const schema = `
	CREATE TABLE IF NOT EXISTS athletes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		role TEXT NOT NULL,
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		avatar_url TEXT NOT NULL DEFAULT '',
		score_target INTEGER,
		shots_target INTEGER,
		attendance_target INTEGER,
		created_at TEXT NOT NULL
	);

	-- Append-only
	CREATE TABLE IF NOT EXISTS coin_transactions (
		seq {{serial}},
		id TEXT NOT NULL UNIQUE,
		athlete_id TEXT NOT NULL REFERENCES athletes(id),
		requested BIGINT NOT NULL,
		applied BIGINT NOT NULL,
		balance_after BIGINT NOT NULL,
		source TEXT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT UNIQUE,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_coin_transactions_athlete
		ON coin_transactions(athlete_id, at DESC);

	CREATE TABLE IF NOT EXISTS redemptions (
		athlete_id TEXT NOT NULL REFERENCES athletes(id),
		goal_id TEXT NOT NULL,
		redeemed_at TEXT NOT NULL,
		period_key TEXT NOT NULL,
		PRIMARY KEY (athlete_id, goal_id)
	);

	CREATE TABLE IF NOT EXISTS attendance (
		athlete_id TEXT NOT NULL REFERENCES athletes(id),
		day TEXT NOT NULL,
		checked_in_at TEXT NOT NULL,
		PRIMARY KEY (athlete_id, day)
	);

	CREATE TABLE IF NOT EXISTS shot_sessions (
		seq {{serial}},
		id TEXT NOT NULL UNIQUE,
		athlete_id TEXT NOT NULL REFERENCES athletes(id),
		at TEXT NOT NULL,
		score INTEGER NOT NULL,
		distance INTEGER NOT NULL,
		ends_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_shot_sessions_athlete
		ON shot_sessions(athlete_id, at DESC);

	CREATE TABLE IF NOT EXISTS shot_counters (
		athlete_id TEXT PRIMARY KEY REFERENCES athletes(id),
		count INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS training_plans (
		id TEXT PRIMARY KEY,
		athlete_id TEXT NOT NULL REFERENCES athletes(id),
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		duration TEXT NOT NULL DEFAULT '',
		intensity TEXT NOT NULL,
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		last_completed_on TEXT,
		team_wide BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_training_plans_athlete
		ON training_plans(athlete_id);

	-- Single row, id = 1
	CREATE TABLE IF NOT EXISTS global_goals (
		id INTEGER PRIMARY KEY,
		daily_score_target INTEGER NOT NULL,
		daily_shots_target INTEGER NOT NULL,
		weekly_attendance_target INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leaderboard_snapshots (
		id TEXT PRIMARY KEY,
		week_start TEXT NOT NULL UNIQUE,
		taken_at TEXT NOT NULL,
		entries_json TEXT NOT NULL
	);
`

// =============================================================================
// TRANSACTIONS
// =============================================================================

// lock takes the write lock unless this store is already bound to a
// transaction, whose WithinTx holds it.
func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) rlock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

// WithinTx executes fn within a database transaction. Nested calls reuse the
// outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(club.Repository) error) error {
	return s.withTx(ctx, func(tx *Store) error { return fn(tx) })
}

// WithTx implements engine.TxStore.
func (s *Store) WithTx(ctx context.Context, fn func(engine.LedgerStore) error) error {
	return s.withTx(ctx, func(tx *Store) error { return fn(tx) })
}

func (s *Store) withTx(ctx context.Context, fn func(*Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	bound := &Store{db: s.db, q: sqlTx, mu: s.mu, inTx: true, driver: s.driver}
	if err := fn(bound); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.q.Rebind(query), args...)
}

func (s *Store) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, s.q, dest, s.q.Rebind(query), args...)
}

func (s *Store) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, s.q, dest, s.q.Rebind(query), args...)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	defer s.lock()()

	tables := []string{
		"leaderboard_snapshots", "global_goals", "training_plans", "shot_counters",
		"shot_sessions", "attendance", "redemptions", "coin_transactions", "athletes",
	}
	for _, table := range tables {
		if _, err := s.q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// isUniqueViolation recognises primary-key and unique-constraint failures
// from either driver.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}
