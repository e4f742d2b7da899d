// Package store provides in-process engine.TxStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/acamp/club-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	athletes    map[engine.AthleteID]engine.AthleteProfile
	coinTxs     map[engine.AthleteID][]engine.CoinTransaction
	idempotency map[string]bool
	redemptions map[claimKey]engine.RedemptionRecord
}

type claimKey struct {
	AthleteID engine.AthleteID
	GoalID    engine.GoalID
}

func NewMemory() *Memory {
	return &Memory{
		athletes:    make(map[engine.AthleteID]engine.AthleteProfile),
		coinTxs:     make(map[engine.AthleteID][]engine.CoinTransaction),
		idempotency: make(map[string]bool),
		redemptions: make(map[claimKey]engine.RedemptionRecord),
	}
}

// SaveAthlete inserts or replaces a profile.
func (m *Memory) SaveAthlete(_ context.Context, p engine.AthleteProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.athletes[p.ID] = p
	return nil
}

func (m *Memory) GetAthlete(_ context.Context, id engine.AthleteID) (engine.AthleteProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAthleteLocked(id)
}

func (m *Memory) SetBalance(_ context.Context, id engine.AthleteID, balance int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setBalanceLocked(id, balance)
}

func (m *Memory) AppendCoinTx(_ context.Context, tx engine.CoinTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *Memory) CoinTxExists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

func (m *Memory) ListCoinTxs(_ context.Context, id engine.AthleteID, limit int) ([]engine.CoinTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCoinTxsLocked(id, limit), nil
}

func (m *Memory) GetRedemption(_ context.Context, id engine.AthleteID, goal engine.GoalID) (*engine.RedemptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRedemptionLocked(id, goal), nil
}

func (m *Memory) ListRedemptions(_ context.Context, id engine.AthleteID) ([]engine.RedemptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRedemptionsLocked(id), nil
}

func (m *Memory) PutRedemption(_ context.Context, rec engine.RedemptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redemptions[claimKey{rec.AthleteID, rec.GoalID}] = rec
	return nil
}

func (m *Memory) ClaimRedemption(_ context.Context, rec engine.RedemptionRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claimLocked(rec), nil
}

// ---- lock-free internals, shared with txMemoryView ----

func (m *Memory) getAthleteLocked(id engine.AthleteID) (engine.AthleteProfile, error) {
	p, ok := m.athletes[id]
	if !ok {
		return engine.AthleteProfile{}, engine.ErrAthleteNotFound
	}
	return p, nil
}

func (m *Memory) setBalanceLocked(id engine.AthleteID, balance int64) error {
	p, ok := m.athletes[id]
	if !ok {
		return engine.ErrAthleteNotFound
	}
	p.Balance = balance
	m.athletes[id] = p
	return nil
}

func (m *Memory) appendLocked(tx engine.CoinTransaction) error {
	if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
		return engine.ErrDuplicateIdempotencyKey
	}
	txs := m.coinTxs[tx.AthleteID]

	// Keep the log ordered by time; equal instants keep insertion order.
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].At.After(tx.At)
	})
	txs = append(txs, engine.CoinTransaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.coinTxs[tx.AthleteID] = txs

	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}
	return nil
}

// listCoinTxsLocked returns newest first.
func (m *Memory) listCoinTxsLocked(id engine.AthleteID, limit int) []engine.CoinTransaction {
	txs := m.coinTxs[id]
	n := len(txs)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]engine.CoinTransaction, 0, n)
	for i := len(txs) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, txs[i])
	}
	return result
}

func (m *Memory) getRedemptionLocked(id engine.AthleteID, goal engine.GoalID) *engine.RedemptionRecord {
	rec, ok := m.redemptions[claimKey{id, goal}]
	if !ok {
		return nil
	}
	return &rec
}

func (m *Memory) listRedemptionsLocked(id engine.AthleteID) []engine.RedemptionRecord {
	var result []engine.RedemptionRecord
	for _, g := range engine.AllGoalIDs {
		if rec, ok := m.redemptions[claimKey{id, g}]; ok {
			result = append(result, rec)
		}
	}
	return result
}

func (m *Memory) claimLocked(rec engine.RedemptionRecord) bool {
	k := claimKey{rec.AthleteID, rec.GoalID}
	if prev, ok := m.redemptions[k]; ok && prev.PeriodKey == rec.PeriodKey {
		return false
	}
	m.redemptions[k] = rec
	return true
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(engine.LedgerStore) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snap := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	athletes    map[engine.AthleteID]engine.AthleteProfile
	coinTxs     map[engine.AthleteID][]engine.CoinTransaction
	idempotency map[string]bool
	redemptions map[claimKey]engine.RedemptionRecord
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		athletes:    make(map[engine.AthleteID]engine.AthleteProfile, len(m.athletes)),
		coinTxs:     make(map[engine.AthleteID][]engine.CoinTransaction, len(m.coinTxs)),
		idempotency: make(map[string]bool, len(m.idempotency)),
		redemptions: make(map[claimKey]engine.RedemptionRecord, len(m.redemptions)),
	}
	for k, v := range m.athletes {
		s.athletes[k] = v
	}
	for k, v := range m.coinTxs {
		s.coinTxs[k] = append([]engine.CoinTransaction(nil), v...)
	}
	for k, v := range m.idempotency {
		s.idempotency[k] = v
	}
	for k, v := range m.redemptions {
		s.redemptions[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.athletes = s.athletes
	m.coinTxs = s.coinTxs
	m.idempotency = s.idempotency
	m.redemptions = s.redemptions
}

// txMemoryView operates on the parent while WithTx holds its lock.
type txMemoryView struct {
	parent *Memory
}

func (v *txMemoryView) GetAthlete(_ context.Context, id engine.AthleteID) (engine.AthleteProfile, error) {
	return v.parent.getAthleteLocked(id)
}

func (v *txMemoryView) SetBalance(_ context.Context, id engine.AthleteID, balance int64) error {
	return v.parent.setBalanceLocked(id, balance)
}

func (v *txMemoryView) AppendCoinTx(_ context.Context, tx engine.CoinTransaction) error {
	return v.parent.appendLocked(tx)
}

func (v *txMemoryView) CoinTxExists(_ context.Context, key string) (bool, error) {
	return v.parent.idempotency[key], nil
}

func (v *txMemoryView) ListCoinTxs(_ context.Context, id engine.AthleteID, limit int) ([]engine.CoinTransaction, error) {
	return v.parent.listCoinTxsLocked(id, limit), nil
}

func (v *txMemoryView) GetRedemption(_ context.Context, id engine.AthleteID, goal engine.GoalID) (*engine.RedemptionRecord, error) {
	return v.parent.getRedemptionLocked(id, goal), nil
}

func (v *txMemoryView) ListRedemptions(_ context.Context, id engine.AthleteID) ([]engine.RedemptionRecord, error) {
	return v.parent.listRedemptionsLocked(id), nil
}

func (v *txMemoryView) PutRedemption(_ context.Context, rec engine.RedemptionRecord) error {
	v.parent.redemptions[claimKey{rec.AthleteID, rec.GoalID}] = rec
	return nil
}

func (v *txMemoryView) ClaimRedemption(_ context.Context, rec engine.RedemptionRecord) (bool, error) {
	return v.parent.claimLocked(rec), nil
}
