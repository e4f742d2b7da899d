package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/acamp/club-engine/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func award(reason string) engine.TxMeta {
	return engine.TxMeta{Source: engine.SourceCoachAward, Reason: reason}
}

func TestApplyDelta_ClampsAtZero(t *testing.T) {
	// GIVEN: Ana has 10 coins
	// WHEN: The coach deducts 25
	// THEN: Balance is 0, only 10 was applied and the result says so

	ctx := context.Background()
	s := newTestStore(t, map[engine.AthleteID]int64{"ana": 10})
	rt := engine.NewRewardTransactor(s)

	res, err := rt.ApplyDelta(ctx, "ana", -25, award("penalty"), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Balance)
	assert.Equal(t, int64(-10), res.Applied)
	assert.True(t, res.Clamped)

	txs, err := s.ListCoinTxs(ctx, "ana", 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(-25), txs[0].Requested)
	assert.Equal(t, int64(-10), txs[0].Applied)
	assert.Equal(t, int64(0), txs[0].BalanceAfter)
}

func TestApplyDelta_SequenceClampsEachStep(t *testing.T) {
	// 10 -> -20 clamps to 0 -> +5 = 5, not max(0, 10-20+5) = 0

	ctx := context.Background()
	s := newTestStore(t, map[engine.AthleteID]int64{"ana": 10})
	rt := engine.NewRewardTransactor(s)
	now := time.Now()

	_, err := rt.ApplyDelta(ctx, "ana", -20, award("a"), now)
	require.NoError(t, err)
	res, err := rt.ApplyDelta(ctx, "ana", 5, award("b"), now)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Balance)
	assert.False(t, res.Clamped)
}

func TestApplyDelta_ZeroDeltaIsLogged(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, map[engine.AthleteID]int64{"ana": 7})
	res, err := engine.NewRewardTransactor(s).ApplyDelta(ctx, "ana", 0, award("noop"), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Balance)

	txs, _ := s.ListCoinTxs(ctx, "ana", 0)
	assert.Len(t, txs, 1)
}

func TestApplyDelta_IdempotencyKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, map[engine.AthleteID]int64{"ana": 0})
	rt := engine.NewRewardTransactor(s)
	meta := engine.TxMeta{Source: engine.SourceCheckIn, IdempotencyKey: "checkin:ana:2024-03-11"}

	_, err := rt.ApplyDelta(ctx, "ana", 5, meta, time.Now())
	require.NoError(t, err)
	_, err = rt.ApplyDelta(ctx, "ana", 5, meta, time.Now())
	assert.ErrorIs(t, err, engine.ErrDuplicateIdempotencyKey)

	a, _ := s.GetAthlete(ctx, "ana")
	assert.Equal(t, int64(5), a.Balance)
}

func TestApplyDelta_UnknownAthlete(t *testing.T) {
	s := newTestStore(t, nil)
	_, err := engine.NewRewardTransactor(s).ApplyDelta(context.Background(), "ghost", 5, award("x"), time.Now())
	assert.ErrorIs(t, err, engine.ErrAthleteNotFound)
	assert.True(t, engine.IsNotFound(err))
}

func TestApplyDeltaToAll_StopsAtFirstFailure(t *testing.T) {
	// GIVEN: ana and bia exist, ghost doesn't, cris comes after ghost
	// WHEN: Awarding 10 to [ana, bia, ghost, cris]
	// THEN: ana and bia are credited, ghost fails, cris is untouched

	ctx := context.Background()
	s := newTestStore(t, map[engine.AthleteID]int64{"ana": 0, "bia": 3, "cris": 1})
	rt := engine.NewRewardTransactor(s)

	results, err := rt.ApplyDeltaToAll(ctx, []engine.AthleteID{"ana", "bia", "ghost", "cris"}, 10, award("team"), time.Now())
	require.Error(t, err)
	assert.Len(t, results, 2)

	var batch *engine.BatchError
	require.ErrorAs(t, err, &batch)
	assert.Equal(t, []engine.AthleteID{"ana", "bia"}, batch.Applied)
	assert.Equal(t, engine.AthleteID("ghost"), batch.Failed)
	assert.ErrorIs(t, err, engine.ErrAthleteNotFound)

	bia, _ := s.GetAthlete(ctx, "bia")
	cris, _ := s.GetAthlete(ctx, "cris")
	assert.Equal(t, int64(13), bia.Balance)
	assert.Equal(t, int64(1), cris.Balance)
}

func TestApplyDeltaToAll_PerAthleteIdempotency(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, map[engine.AthleteID]int64{"ana": 0, "bia": 0})
	rt := engine.NewRewardTransactor(s)
	meta := engine.TxMeta{Source: engine.SourceCoachAward, IdempotencyKey: "award-42"}

	results, err := rt.ApplyDeltaToAll(ctx, []engine.AthleteID{"ana", "bia"}, 4, meta, time.Now())
	require.NoError(t, err)
	assert.Len(t, results, 2)

	exists, err := s.CoinTxExists(ctx, "award-42:bia")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestApplyDeltaToAll_RetryWithSameKeyFinishesBatch(t *testing.T) {
	// GIVEN: A keyed batch [ana, ghost, bia] that stops at ghost after crediting ana
	// WHEN: The batch is retried with the same key over [ana, bia, cris]
	// THEN: ana is skipped, bia and cris are credited, everyone holds 10 exactly once

	ctx := context.Background()
	s := newTestStore(t, map[engine.AthleteID]int64{"ana": 0, "bia": 0, "cris": 0})
	rt := engine.NewRewardTransactor(s)
	meta := engine.TxMeta{Source: engine.SourceCoachAward, IdempotencyKey: "award-7"}
	now := time.Now()

	_, err := rt.ApplyDeltaToAll(ctx, []engine.AthleteID{"ana", "ghost", "bia"}, 10, meta, now)
	require.ErrorIs(t, err, engine.ErrAthleteNotFound)

	results, err := rt.ApplyDeltaToAll(ctx, []engine.AthleteID{"ana", "bia", "cris"}, 10, meta, now)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].Skipped)
	assert.Equal(t, int64(10), results[0].Balance)
	assert.Equal(t, int64(0), results[0].Applied)
	assert.False(t, results[1].Skipped)
	assert.Equal(t, int64(10), results[1].Applied)

	for _, id := range []engine.AthleteID{"ana", "bia", "cris"} {
		p, err := s.GetAthlete(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(10), p.Balance, id)

		txs, err := s.ListCoinTxs(ctx, id, 0)
		require.NoError(t, err)
		assert.Len(t, txs, 1, id)
	}
}

func TestClampedBalance(t *testing.T) {
	assert.Equal(t, int64(0), engine.ClampedBalance(3, -4))
	assert.Equal(t, int64(7), engine.ClampedBalance(3, 4))
	assert.Equal(t, int64(0), engine.ClampedBalance(0, 0))
}
