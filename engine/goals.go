/*
goals.go - GoalResolver and goal variants

PURPOSE:
  Resolves the targets that apply to one athlete and packages each goal with
  its progress, reward and claim cadence.

RESOLUTION:
  Each field is resolved on its own: an override that is set (zero
  included) wins, an unset override falls back to the global value. There
  is no all-or-nothing override.

VARIANTS:
  ScoreGoal       best session score today vs daily score target  (daily)
  ShotsGoal       shots recorded today vs daily shots target      (daily)
  AttendanceGoal  check-ins this week vs weekly attendance target (weekly)

  Adding a goal kind means adding a GoalID, a variant type and a case in
  GoalFor; AllGoalIDs drives every listing.
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// GoalID values are stable storage and routing keys. Renaming one requires
// migrating stored redemption records.
type GoalID string

const (
	GoalScore      GoalID = "score_goal"
	GoalShots      GoalID = "shots_goal"
	GoalAttendance GoalID = "attendance_goal"
)

// AllGoalIDs lists every goal kind in display order.
var AllGoalIDs = []GoalID{GoalScore, GoalShots, GoalAttendance}

// ParseGoalID validates a goal id coming from a caller.
func ParseGoalID(s string) (GoalID, error) {
	for _, id := range AllGoalIDs {
		if string(id) == s {
			return id, nil
		}
	}
	return "", &InvalidInputError{Field: "goal_id", Reason: fmt.Sprintf("unknown goal %q", s)}
}

// =============================================================================
// TARGET RESOLUTION
// =============================================================================

// Targets is the effective target set for one athlete.
type Targets struct {
	DailyScoreTarget       int
	DailyShotsTarget       int
	WeeklyAttendanceTarget int
}

// EffectiveGoals merges global targets with an athlete's overrides, field by
// field.
func EffectiveGoals(global GlobalGoals, overrides GoalOverrides) Targets {
	return Targets{
		DailyScoreTarget:       pick(overrides.DailyScoreTarget, global.DailyScoreTarget),
		DailyShotsTarget:       pick(overrides.DailyShotsTarget, global.DailyShotsTarget),
		WeeklyAttendanceTarget: pick(overrides.WeeklyAttendanceTarget, global.WeeklyAttendanceTarget),
	}
}

func pick(override *int, fallback int) int {
	if override != nil {
		return *override
	}
	return fallback
}

// =============================================================================
// REWARD RULES
// =============================================================================

// GoalRule is how much a goal pays and how often it can be claimed.
type GoalRule struct {
	Reward  int64
	Cadence Cadence
}

// RewardRules holds every coin amount and limit the club applies.
type RewardRules struct {
	CheckInReward          int64
	SessionReward          int64
	TeamPlanReward         int64
	HistoryCap             int
	LowAttendanceThreshold int
	Goals                  map[GoalID]GoalRule
}

// DefaultRewardRules returns the amounts the club has always used.
func DefaultRewardRules() RewardRules {
	return RewardRules{
		CheckInReward:          5,
		SessionReward:          15,
		TeamPlanReward:         5,
		HistoryCap:             50,
		LowAttendanceThreshold: 8,
		Goals: map[GoalID]GoalRule{
			GoalScore:      {Reward: 20, Cadence: CadenceDaily},
			GoalShots:      {Reward: 20, Cadence: CadenceDaily},
			GoalAttendance: {Reward: 50, Cadence: CadenceWeekly},
		},
	}
}

// Rule returns the rule for id; goals missing from the map pay nothing daily.
func (r RewardRules) Rule(id GoalID) GoalRule {
	if rule, ok := r.Goals[id]; ok {
		return rule
	}
	return GoalRule{Cadence: CadenceDaily}
}

func (r RewardRules) Validate() error {
	if r.CheckInReward < 0 || r.SessionReward < 0 || r.TeamPlanReward < 0 {
		return &InvalidInputError{Field: "rewards", Reason: "automatic rewards must not be negative"}
	}
	if r.HistoryCap <= 0 {
		return &InvalidInputError{Field: "history_cap", Reason: "must be positive"}
	}
	for id, rule := range r.Goals {
		if _, err := ParseGoalID(string(id)); err != nil {
			return err
		}
		if rule.Reward < 0 {
			return &InvalidInputError{Field: string(id) + ".reward", Reason: "must not be negative"}
		}
		if !rule.Cadence.Valid() {
			return &InvalidInputError{Field: string(id) + ".cadence", Reason: "must be daily or weekly"}
		}
	}
	return nil
}

// =============================================================================
// GOAL VARIANTS
// =============================================================================

// Goal is one claimable target with its current progress.
type Goal interface {
	ID() GoalID
	Target() int
	Current() int
	Reward() int64
	Cadence() Cadence
}

type ScoreGoal struct {
	TargetScore int
	BestToday   int
	Rule        GoalRule
}

func (g ScoreGoal) ID() GoalID { return GoalScore }
func (g ScoreGoal) Target() int { return g.TargetScore }
func (g ScoreGoal) Current() int { return g.BestToday }
func (g ScoreGoal) Reward() int64 { return g.Rule.Reward }
func (g ScoreGoal) Cadence() Cadence { return g.Rule.Cadence }

type ShotsGoal struct {
	TargetShots int
	ShotsToday  int
	Rule        GoalRule
}

func (g ShotsGoal) ID() GoalID { return GoalShots }
func (g ShotsGoal) Target() int { return g.TargetShots }
func (g ShotsGoal) Current() int { return g.ShotsToday }
func (g ShotsGoal) Reward() int64 { return g.Rule.Reward }
func (g ShotsGoal) Cadence() Cadence { return g.Rule.Cadence }

type AttendanceGoal struct {
	TargetDays   int
	DaysThisWeek int
	Rule         GoalRule
}

func (g AttendanceGoal) ID() GoalID { return GoalAttendance }
func (g AttendanceGoal) Target() int { return g.TargetDays }
func (g AttendanceGoal) Current() int { return g.DaysThisWeek }
func (g AttendanceGoal) Reward() int64 { return g.Rule.Reward }
func (g AttendanceGoal) Cadence() Cadence { return g.Rule.Cadence }

// GoalFor builds the variant for id.
func GoalFor(id GoalID, t Targets, p Progress, rules RewardRules) (Goal, error) {
	switch id {
	case GoalScore:
		return ScoreGoal{TargetScore: t.DailyScoreTarget, BestToday: p.TodayBestScore, Rule: rules.Rule(id)}, nil
	case GoalShots:
		return ShotsGoal{TargetShots: t.DailyShotsTarget, ShotsToday: p.TodayShots, Rule: rules.Rule(id)}, nil
	case GoalAttendance:
		return AttendanceGoal{TargetDays: t.WeeklyAttendanceTarget, DaysThisWeek: p.WeekAttendance, Rule: rules.Rule(id)}, nil
	}
	return nil, &InvalidInputError{Field: "goal_id", Reason: fmt.Sprintf("unknown goal %q", id)}
}

// BuildGoals returns every goal in display order.
func BuildGoals(t Targets, p Progress, rules RewardRules) []Goal {
	goals := make([]Goal, 0, len(AllGoalIDs))
	for _, id := range AllGoalIDs {
		g, _ := GoalFor(id, t, p, rules)
		goals = append(goals, g)
	}
	return goals
}

// Complete reports whether the goal's target is met.
func Complete(g Goal) bool { return g.Current() >= g.Target() }

// Percent is progress toward the target, capped at 100 and rounded.
func Percent(g Goal) decimal.Decimal {
	if g.Target() <= 0 {
		return decimal.NewFromInt(100)
	}
	pct := decimal.NewFromInt(int64(g.Current())).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(g.Target())))
	return decimal.Min(pct, decimal.NewFromInt(100)).Round(0)
}
