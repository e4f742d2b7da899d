/*
transactor.go - RewardTransactor, the only path that changes a coin balance

RULE:
  new balance = max(0, current + delta)

  The clamp is applied on every single change, so a sequence of deltas is
  replayed step by step, never summed first. An over-deduction is absorbed
  and reported back through ApplyResult.Clamped instead of failing.

ATOMICITY:
  Balance write and CoinTransaction append happen in one store
  transaction. ApplyDeltaIn runs inside a transaction the caller already
  holds, for composite operations (check-in + reward, claim + reward).

BATCHES:
  ApplyDeltaToAll applies the same delta to each athlete in its own
  transaction, in order, and stops at the first failure. Athletes already
  credited stay credited; the returned BatchError lists them. Each athlete
  gets its own key (<key>:<athlete>), so a retry with the same key skips
  the athletes already credited and finishes the rest.
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TxMeta describes why a balance changes.
type TxMeta struct {
	Source         TxSource
	Reference      string
	Reason         string
	IdempotencyKey string
}

// ApplyResult is the outcome of one balance change.
type ApplyResult struct {
	AthleteID AthleteID
	Balance   int64
	Requested int64
	Applied   int64
	Clamped   bool
	// Skipped is set when a batch retry found this athlete already credited.
	Skipped   bool
}

// RewardTransactor applies coin deltas.
type RewardTransactor struct {
	Store TxStore
}

func NewRewardTransactor(store TxStore) *RewardTransactor {
	return &RewardTransactor{Store: store}
}

// ApplyDelta changes one athlete's balance atomically.
func (rt *RewardTransactor) ApplyDelta(ctx context.Context, id AthleteID, delta int64, meta TxMeta, now time.Time) (ApplyResult, error) {
	var res ApplyResult
	err := rt.Store.WithTx(ctx, func(s LedgerStore) error {
		var err error
		res, err = ApplyDeltaIn(ctx, s, id, delta, meta, now)
		return err
	})
	return res, err
}

// ApplyDeltaToAll applies delta to each id in sequence.
func (rt *RewardTransactor) ApplyDeltaToAll(ctx context.Context, ids []AthleteID, delta int64, meta TxMeta, now time.Time) ([]ApplyResult, error) {
	results := make([]ApplyResult, 0, len(ids))
	applied := make([]AthleteID, 0, len(ids))
	for _, id := range ids {
		m := meta
		if meta.IdempotencyKey != "" {
			m.IdempotencyKey = meta.IdempotencyKey + ":" + string(id)
		}
		res, err := rt.ApplyDelta(ctx, id, delta, m, now)
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			res, err = rt.alreadyApplied(ctx, id, delta)
		}
		if err != nil {
			return results, &BatchError{Applied: applied, Failed: id, Err: err}
		}
		results = append(results, res)
		applied = append(applied, id)
	}
	return results, nil
}

// alreadyApplied reports an athlete whose batch entry was credited earlier.
func (rt *RewardTransactor) alreadyApplied(ctx context.Context, id AthleteID, delta int64) (ApplyResult, error) {
	var athlete AthleteProfile
	err := rt.Store.WithTx(ctx, func(s LedgerStore) error {
		var err error
		athlete, err = s.GetAthlete(ctx, id)
		return err
	})
	if err != nil {
		return ApplyResult{}, err
	}
	return ApplyResult{AthleteID: id, Balance: athlete.Balance, Requested: delta, Skipped: true}, nil
}

// ApplyDeltaIn changes one athlete's balance using a store the caller
// already holds a transaction on.
func ApplyDeltaIn(ctx context.Context, s LedgerStore, id AthleteID, delta int64, meta TxMeta, now time.Time) (ApplyResult, error) {
	if meta.IdempotencyKey != "" {
		exists, err := s.CoinTxExists(ctx, meta.IdempotencyKey)
		if err != nil {
			return ApplyResult{}, err
		}
		if exists {
			return ApplyResult{}, ErrDuplicateIdempotencyKey
		}
	}

	athlete, err := s.GetAthlete(ctx, id)
	if err != nil {
		return ApplyResult{}, err
	}

	balance := ClampedBalance(athlete.Balance, delta)
	res := ApplyResult{
		AthleteID: id,
		Balance:   balance,
		Requested: delta,
		Applied:   balance - athlete.Balance,
	}
	res.Clamped = res.Applied != delta

	tx := CoinTransaction{
		ID:             TransactionID(uuid.NewString()),
		AthleteID:      id,
		Requested:      delta,
		Applied:        res.Applied,
		BalanceAfter:   balance,
		Source:         meta.Source,
		Reference:      meta.Reference,
		Reason:         meta.Reason,
		IdempotencyKey: meta.IdempotencyKey,
		At:             now,
	}
	if err := s.AppendCoinTx(ctx, tx); err != nil {
		return ApplyResult{}, fmt.Errorf("append coin transaction: %w", err)
	}
	if err := s.SetBalance(ctx, id, balance); err != nil {
		return ApplyResult{}, fmt.Errorf("set balance: %w", err)
	}
	return res, nil
}

// ClampedBalance is max(0, current+delta).
func ClampedBalance(current, delta int64) int64 {
	if next := current + delta; next > 0 {
		return next
	}
	return 0
}
