package engine_test

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

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T, balances map[engine.AthleteID]int64) *store.TxMemory {
	t.Helper()
	s := store.NewTxMemory()
	for id, bal := range balances {
		require.NoError(t, s.SaveAthlete(context.Background(), engine.AthleteProfile{
			ID: id, Name: string(id), Category: engine.CategoryRecurve, Role: engine.RoleAthlete, Balance: bal,
		}))
	}
	return s
}

func tp(t time.Time) *time.Time { return &t }

// =============================================================================
// CLAIM WINDOW (pure)
// =============================================================================

func TestCanRedeem_NoRecord(t *testing.T) {
	now := at(2024, time.March, 11, 9, 0)
	assert.True(t, engine.CanRedeem(nil, now, engine.CadenceDaily))
	assert.True(t, engine.CanRedeem(nil, now, engine.CadenceWeekly))
}

func TestCanRedeem_Daily(t *testing.T) {
	// GIVEN: A daily goal claimed at 23:59
	// WHEN: Asking two minutes later, after midnight
	// THEN: Claimable again; asking the same evening is not

	last := at(2024, time.March, 11, 23, 59)
	assert.True(t, engine.CanRedeem(tp(last), at(2024, time.March, 12, 0, 1), engine.CadenceDaily))
	assert.False(t, engine.CanRedeem(tp(at(2024, time.March, 11, 8, 0)), last, engine.CadenceDaily))
}

func TestCanRedeem_Weekly(t *testing.T) {
	// GIVEN: A weekly goal claimed on Sunday 2024-03-10
	// WHEN: Asking on Monday 2024-03-11
	// THEN: A new week has started

	assert.True(t, engine.CanRedeem(tp(at(2024, time.March, 10, 18, 0)), at(2024, time.March, 11, 7, 0), engine.CadenceWeekly))

	// Monday claim, Wednesday ask: same week
	assert.False(t, engine.CanRedeem(tp(at(2024, time.March, 4, 9, 0)), at(2024, time.March, 6, 9, 0), engine.CadenceWeekly))
}

func TestCanRedeem_ComparesInNowsLocation(t *testing.T) {
	// Claimed at 23:30 São Paulo on the 11th, stored as 02:30 UTC on the 12th
	last := time.Date(2024, time.March, 11, 23, 30, 0, 0, saoPaulo).UTC()
	sameEvening := time.Date(2024, time.March, 11, 23, 45, 0, 0, saoPaulo)
	assert.False(t, engine.CanRedeem(&last, sameEvening, engine.CadenceDaily))
}

func TestPeriodKey(t *testing.T) {
	wed := at(2024, time.March, 6, 9, 0)
	assert.Equal(t, "2024-03-06", engine.PeriodKey(wed, engine.CadenceDaily))
	assert.Equal(t, "2024-03-04", engine.PeriodKey(wed, engine.CadenceWeekly))
}

// =============================================================================
// REDEMPTION LEDGER
// =============================================================================

func TestRedeem_CreditsOncePerPeriod(t *testing.T) {
	// GIVEN: Ana has 100 coins and a daily score goal worth 20
	// WHEN: She redeems twice the same day, then again the next day
	// THEN: 120 after the first, the second is rejected, 140 the next day

	ctx := context.Background()
	s := newTestStore(t, map[engine.AthleteID]int64{"ana": 100})
	ledger := engine.NewRedemptionLedger(s, engine.DefaultRewardRules())
	now := at(2024, time.March, 11, 10, 0)

	res, err := ledger.Redeem(ctx, "ana", engine.GoalScore, now)
	require.NoError(t, err)
	assert.Equal(t, int64(120), res.Credit.Balance)
	assert.Equal(t, "2024-03-11", res.Record.PeriodKey)

	_, err = ledger.Redeem(ctx, "ana", engine.GoalScore, now.Add(time.Hour))
	assert.ErrorIs(t, err, engine.ErrAlreadyClaimed)

	ok, err := ledger.CanRedeem(ctx, "ana", engine.GoalScore, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	res, err = ledger.Redeem(ctx, "ana", engine.GoalScore, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(140), res.Credit.Balance)

	a, err := s.GetAthlete(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, int64(140), a.Balance)
}

func TestRedeem_GoalsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, map[engine.AthleteID]int64{"ana": 0})
	ledger := engine.NewRedemptionLedger(s, engine.DefaultRewardRules())
	now := at(2024, time.March, 11, 10, 0)

	_, err := ledger.Redeem(ctx, "ana", engine.GoalScore, now)
	require.NoError(t, err)
	_, err = ledger.Redeem(ctx, "ana", engine.GoalShots, now)
	require.NoError(t, err)
	res, err := ledger.Redeem(ctx, "ana", engine.GoalAttendance, now)
	require.NoError(t, err)
	assert.Equal(t, int64(90), res.Credit.Balance)

	recs, err := s.ListRedemptions(ctx, "ana")
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestRedeem_UnknownAthlete_NothingWritten(t *testing.T) {
	// GIVEN: No athlete "ghost"
	// WHEN: Redeeming a goal for ghost
	// THEN: Not found, and no redemption record survives the rollback

	ctx := context.Background()
	s := newTestStore(t, nil)
	ledger := engine.NewRedemptionLedger(s, engine.DefaultRewardRules())

	_, err := ledger.Redeem(ctx, "ghost", engine.GoalScore, at(2024, time.March, 11, 10, 0))
	assert.ErrorIs(t, err, engine.ErrAthleteNotFound)

	rec, err := s.GetRedemption(ctx, "ghost", engine.GoalScore)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRedeem_UnknownGoal(t *testing.T) {
	s := newTestStore(t, map[engine.AthleteID]int64{"ana": 0})
	ledger := engine.NewRedemptionLedger(s, engine.DefaultRewardRules())
	_, err := ledger.Redeem(context.Background(), "ana", "streak_goal", time.Now())
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestRecordRedemption_Overwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, map[engine.AthleteID]int64{"ana": 0})
	ledger := engine.NewRedemptionLedger(s, engine.DefaultRewardRules())

	first := at(2024, time.March, 4, 9, 0)
	second := at(2024, time.March, 6, 9, 0)
	require.NoError(t, ledger.RecordRedemption(ctx, "ana", engine.GoalAttendance, first))
	require.NoError(t, ledger.RecordRedemption(ctx, "ana", engine.GoalAttendance, second))

	rec, err := s.GetRedemption(ctx, "ana", engine.GoalAttendance)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.RedeemedAt.Equal(second))
	assert.Equal(t, "2024-03-04", rec.PeriodKey)
}

func TestRedeemIn_RollsBackWithCallerTx(t *testing.T) {
	// GIVEN: A caller transaction that redeems, then fails afterwards
	// THEN: Neither the claim nor the credit survives

	ctx := context.Background()
	s := newTestStore(t, map[engine.AthleteID]int64{"ana": 10})
	ledger := engine.NewRedemptionLedger(s, engine.DefaultRewardRules())
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx engine.LedgerStore) error {
		if _, err := ledger.RedeemIn(ctx, tx, "ana", engine.GoalShots, at(2024, time.March, 11, 9, 0)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	a, _ := s.GetAthlete(ctx, "ana")
	assert.Equal(t, int64(10), a.Balance)
	rec, _ := s.GetRedemption(ctx, "ana", engine.GoalShots)
	assert.Nil(t, rec)
	txs, _ := s.ListCoinTxs(ctx, "ana", 0)
	assert.Empty(t, txs)
}
