/*
store.go - Persistence interface for balances and redemptions

PURPOSE:
  The engine reads and writes exactly two kinds of shared state: an
  athlete's coin balance (with its transaction log) and the redemption
  record per (athlete, goal). LedgerStore is that surface; TxStore adds
  all-or-nothing execution.

CONTRACT:
  - GetAthlete returns ErrAthleteNotFound for unknown ids.
  - AppendCoinTx is append-only and rejects a repeated idempotency key
    with ErrDuplicateIdempotencyKey.
  - PutRedemption overwrites the (athlete, goal) row unconditionally.
  - ClaimRedemption writes only when no row exists or the stored PeriodKey
    differs, and reports whether it wrote. This is the atomic claim.
  - GetRedemption returns (nil, nil) when nothing was ever claimed.

IMPLEMENTATIONS:
  - engine/store/memory.go: In-memory for testing
  - store/sqldb/sqldb.go: SQLite / PostgreSQL
*/
package engine

import "context"

// LedgerStore persists balances, coin transactions and redemption records.
type LedgerStore interface {
	GetAthlete(ctx context.Context, id AthleteID) (AthleteProfile, error)
	SetBalance(ctx context.Context, id AthleteID, balance int64) error

	AppendCoinTx(ctx context.Context, tx CoinTransaction) error
	CoinTxExists(ctx context.Context, idempotencyKey string) (bool, error)
	ListCoinTxs(ctx context.Context, id AthleteID, limit int) ([]CoinTransaction, error)

	GetRedemption(ctx context.Context, id AthleteID, goal GoalID) (*RedemptionRecord, error)
	ListRedemptions(ctx context.Context, id AthleteID) ([]RedemptionRecord, error)
	PutRedemption(ctx context.Context, rec RedemptionRecord) error
	ClaimRedemption(ctx context.Context, rec RedemptionRecord) (bool, error)
}

// TxStore wraps LedgerStore with transaction support.
type TxStore interface {
	LedgerStore

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the passed store is
	// rolled back.
	WithTx(ctx context.Context, fn func(LedgerStore) error) error
}
