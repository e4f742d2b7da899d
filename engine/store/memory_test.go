package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/acamp/club-engine/engine"
	"github.com/acamp/club-engine/engine/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T) *store.TxMemory {
	t.Helper()
	s := store.NewTxMemory()
	require.NoError(t, s.SaveAthlete(context.Background(), engine.AthleteProfile{
		ID: "ana", Name: "Ana", Category: engine.CategoryRecurve, Role: engine.RoleAthlete, Balance: 10,
	}))
	return s
}

func TestMemory_CoinTxOrderAndLimit(t *testing.T) {
	// GIVEN: Transactions appended out of time order
	// WHEN: Listed
	// THEN: Newest first, limited on request

	ctx := context.Background()
	s := seeded(t)
	base := time.Date(2024, time.March, 11, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendCoinTx(ctx, engine.CoinTransaction{ID: "b", AthleteID: "ana", At: base.Add(time.Hour)}))
	require.NoError(t, s.AppendCoinTx(ctx, engine.CoinTransaction{ID: "a", AthleteID: "ana", At: base}))
	require.NoError(t, s.AppendCoinTx(ctx, engine.CoinTransaction{ID: "c", AthleteID: "ana", At: base.Add(2 * time.Hour)}))

	all, err := s.ListCoinTxs(ctx, "ana", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, engine.TransactionID("c"), all[0].ID)
	assert.Equal(t, engine.TransactionID("a"), all[2].ID)

	two, err := s.ListCoinTxs(ctx, "ana", 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestMemory_IdempotencyKey(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	tx := engine.CoinTransaction{ID: "t1", AthleteID: "ana", IdempotencyKey: "k"}

	require.NoError(t, s.AppendCoinTx(ctx, tx))
	tx.ID = "t2"
	assert.ErrorIs(t, s.AppendCoinTx(ctx, tx), engine.ErrDuplicateIdempotencyKey)

	exists, err := s.CoinTxExists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemory_RedemptionTimestampRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	at := time.Date(2024, time.March, 11, 23, 59, 59, 999999999, time.FixedZone("BRT", -3*3600))

	require.NoError(t, s.PutRedemption(ctx, engine.RedemptionRecord{AthleteID: "ana", GoalID: engine.GoalScore, RedeemedAt: at, PeriodKey: "2024-03-11"}))

	rec, err := s.GetRedemption(ctx, "ana", engine.GoalScore)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.RedeemedAt.Equal(at))

	ok, err := s.ClaimRedemption(ctx, engine.RedemptionRecord{AthleteID: "ana", GoalID: engine.GoalScore, RedeemedAt: at.Add(time.Minute), PeriodKey: "2024-03-11"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTxMemory_RollbackRestoresEverything(t *testing.T) {
	// GIVEN: A transaction that changes a balance, logs a tx and claims a goal
	// WHEN: fn returns an error
	// THEN: None of it is visible afterwards

	ctx := context.Background()
	s := seeded(t)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx engine.LedgerStore) error {
		require.NoError(t, tx.SetBalance(ctx, "ana", 99))
		require.NoError(t, tx.AppendCoinTx(ctx, engine.CoinTransaction{ID: "t1", AthleteID: "ana", IdempotencyKey: "k"}))
		_, err := tx.ClaimRedemption(ctx, engine.RedemptionRecord{AthleteID: "ana", GoalID: engine.GoalShots, PeriodKey: "2024-03-11"})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	p, err := s.GetAthlete(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.Balance)

	exists, err := s.CoinTxExists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)

	rec, err := s.GetRedemption(ctx, "ana", engine.GoalShots)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMemory_UnknownAthlete(t *testing.T) {
	s := seeded(t)
	_, err := s.GetAthlete(context.Background(), "ghost")
	assert.ErrorIs(t, err, engine.ErrAthleteNotFound)
	assert.ErrorIs(t, s.SetBalance(context.Background(), "ghost", 1), engine.ErrAthleteNotFound)
}
