/*
redemption.go - RedemptionLedger

PURPOSE:
  Decides whether a goal's reward may be claimed now and records claims.

STATE PER (athlete, goal):
  CLAIMABLE --redeem--> CLAIMED_THIS_PERIOD --next period starts--> CLAIMABLE

  The return to CLAIMABLE is never written anywhere. CanRedeem recomputes
  it from the last claim timestamp each time it is asked.

CADENCES:
  daily:  one claim per calendar day
  weekly: one claim per Monday-start week

CLAIM:
  Redeem performs the conditional claim and the balance credit in one
  store transaction. The claim only writes when the stored period key
  differs from the current one, so two concurrent attempts in the same
  period cannot both succeed. If the credit fails the claim is rolled back.
*/
package engine

import (
	"context"
	"fmt"
	"time"
)

type Cadence string

const (
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
)

func (c Cadence) Valid() bool { return c == CadenceDaily || c == CadenceWeekly }

// CanRedeem reports whether a claim is allowed at now given the previous
// claim. It is a pure function of its arguments.
func CanRedeem(lastRedeemedAt *time.Time, now time.Time, cadence Cadence) bool {
	if lastRedeemedAt == nil || lastRedeemedAt.IsZero() {
		return true
	}
	return PeriodKey(lastRedeemedAt.In(now.Location()), cadence) != PeriodKey(now, cadence)
}

// PeriodKey names the claim period containing t: its date for daily goals,
// its Monday for weekly goals.
func PeriodKey(t time.Time, cadence Cadence) string {
	if cadence == CadenceWeekly {
		return WeekStart(DayOf(t)).String()
	}
	return DayOf(t).String()
}

// RedeemResult is a successful claim.
type RedeemResult struct {
	Record RedemptionRecord
	Credit ApplyResult
}

// RedemptionLedger tracks claims. Rules supplies each goal's reward and
// cadence.
type RedemptionLedger struct {
	Store TxStore
	Rules RewardRules
}

func NewRedemptionLedger(store TxStore, rules RewardRules) *RedemptionLedger {
	return &RedemptionLedger{Store: store, Rules: rules}
}

// CanRedeem loads the last claim and applies the goal's cadence.
func (l *RedemptionLedger) CanRedeem(ctx context.Context, id AthleteID, goal GoalID, now time.Time) (bool, error) {
	if _, err := ParseGoalID(string(goal)); err != nil {
		return false, err
	}
	rec, err := l.Store.GetRedemption(ctx, id, goal)
	if err != nil {
		return false, err
	}
	return CanRedeem(lastClaim(rec), now, l.Rules.Rule(goal).Cadence), nil
}

// RecordRedemption overwrites the stored claim time. It does not check the
// window; callers gate on CanRedeem or use Redeem.
func (l *RedemptionLedger) RecordRedemption(ctx context.Context, id AthleteID, goal GoalID, now time.Time) error {
	if _, err := ParseGoalID(string(goal)); err != nil {
		return err
	}
	return l.Store.PutRedemption(ctx, RedemptionRecord{
		AthleteID:  id,
		GoalID:     goal,
		RedeemedAt: now,
		PeriodKey:  PeriodKey(now, l.Rules.Rule(goal).Cadence),
	})
}

// Redeem claims the goal and credits its reward atomically.
func (l *RedemptionLedger) Redeem(ctx context.Context, id AthleteID, goal GoalID, now time.Time) (RedeemResult, error) {
	var res RedeemResult
	err := l.Store.WithTx(ctx, func(s LedgerStore) error {
		var err error
		res, err = l.RedeemIn(ctx, s, id, goal, now)
		return err
	})
	return res, err
}

// RedeemIn is Redeem inside a transaction the caller already holds.
func (l *RedemptionLedger) RedeemIn(ctx context.Context, s LedgerStore, id AthleteID, goal GoalID, now time.Time) (RedeemResult, error) {
	if _, err := ParseGoalID(string(goal)); err != nil {
		return RedeemResult{}, err
	}
	rule := l.Rules.Rule(goal)
	rec := RedemptionRecord{
		AthleteID:  id,
		GoalID:     goal,
		RedeemedAt: now,
		PeriodKey:  PeriodKey(now, rule.Cadence),
	}

	claimed, err := s.ClaimRedemption(ctx, rec)
	if err != nil {
		return RedeemResult{}, fmt.Errorf("claim %s: %w", goal, err)
	}
	if !claimed {
		return RedeemResult{}, ErrAlreadyClaimed
	}

	credit, err := ApplyDeltaIn(ctx, s, id, rule.Reward, TxMeta{
		Source:         SourceGoalRedemption,
		Reference:      string(goal),
		Reason:         "goal reached",
		IdempotencyKey: fmt.Sprintf("redeem:%s:%s:%s", id, goal, rec.PeriodKey),
	}, now)
	if err != nil {
		return RedeemResult{}, err
	}
	return RedeemResult{Record: rec, Credit: credit}, nil
}

func lastClaim(rec *RedemptionRecord) *time.Time {
	if rec == nil {
		return nil
	}
	t := rec.RedeemedAt
	return &t
}

// LastClaim exposes the claim time of a possibly-missing record.
func LastClaim(rec *RedemptionRecord) *time.Time { return lastClaim(rec) }
