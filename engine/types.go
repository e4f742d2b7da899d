/*
Package engine provides the goals and rewards engine for the club.

PURPOSE:
  Everything that decides a number lives here: progress metrics derived from
  raw logs, the per-athlete goal targets, the claim window of each goal and
  the coin balance arithmetic. Screens, forms and persistence wiring live in
  the packages that call it.

KEY CONCEPTS IN THIS FILE (types.go):
  - AthleteProfile: identity, role and coin balance
  - AttendanceRecord / ShotSession / ShotCounter: raw event logs
  - TrainingPlan: daily-reset training task
  - GlobalGoals / GoalOverrides: team targets and individual overrides
  - RedemptionRecord: last claim per (athlete, goal)
  - CoinTransaction: append-only audit of balance changes

DESIGN PRINCIPLES:
  1. Explicit time: every operation receives "now", nothing reads the clock
  2. Explicit configuration: global goals and reward rules are arguments
  3. Clamped balance: a balance is never negative after any single change
  4. Auditability: every balance change writes a CoinTransaction

SEE ALSO:
  - progress.go: ProgressCalculator
  - goals.go: GoalResolver and the goal variants
  - redemption.go: RedemptionLedger
  - transactor.go: RewardTransactor
*/
package engine

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AthleteID string
type PlanID string
type SessionID string
type TransactionID string

// AllAthletes targets every athlete in plan assignment and coach awards.
const AllAthletes = "all"

// =============================================================================
// ATHLETE PROFILE
// =============================================================================

type Category string

const (
	CategoryRecurve  Category = "recurve"
	CategoryCompound Category = "compound"
)

func (c Category) Valid() bool { return c == CategoryRecurve || c == CategoryCompound }

type Role string

const (
	RoleAthlete Role = "athlete"
	RoleCoach   Role = "coach"
)

func (r Role) Valid() bool { return r == RoleAthlete || r == RoleCoach }

type AthleteProfile struct {
	ID        AthleteID
	Name      string
	Email     string
	Category  Category
	Role      Role
	Balance   int64
	AvatarURL string
	Overrides GoalOverrides
	CreatedAt time.Time
}

// Validate checks the fields required at registration.
func (p AthleteProfile) Validate() error {
	if p.ID == "" || p.ID == AllAthletes {
		return &InvalidInputError{Field: "id", Reason: "must be set and not the reserved value \"all\""}
	}
	if p.Name == "" {
		return &InvalidInputError{Field: "name", Reason: "required"}
	}
	if !p.Category.Valid() {
		return &InvalidInputError{Field: "category", Reason: "must be recurve or compound"}
	}
	if !p.Role.Valid() {
		return &InvalidInputError{Field: "role", Reason: "must be athlete or coach"}
	}
	if p.Balance < 0 {
		return &InvalidInputError{Field: "balance", Reason: "must not be negative"}
	}
	return p.Overrides.Validate()
}

// =============================================================================
// EVENT LOGS
// =============================================================================

// AttendanceRecord is one check-in. At most one per (AthleteID, Day).
type AttendanceRecord struct {
	AthleteID   AthleteID
	Day         Day
	CheckedInAt time.Time
}

// ShotSession is a completed scoring session. Immutable once stored.
type ShotSession struct {
	ID        SessionID
	AthleteID AthleteID
	At        time.Time
	Score     int
	Distance  int
	Ends      [][]Arrow
}

// ShotCounter is the running shot volume for the day it was last touched.
type ShotCounter struct {
	Count     int
	UpdatedAt time.Time
}

// =============================================================================
// TRAINING PLANS
// =============================================================================

type Intensity string

const (
	IntensityLow    Intensity = "low"
	IntensityMedium Intensity = "medium"
	IntensityHigh   Intensity = "high"
)

func (i Intensity) Valid() bool {
	return i == IntensityLow || i == IntensityMedium || i == IntensityHigh
}

type TrainingPlan struct {
	ID              PlanID
	AthleteID       AthleteID
	Title           string
	Description     string
	Duration        string
	Intensity       Intensity
	Completed       bool
	LastCompletedOn *Day
	TeamWide        bool
	CreatedAt       time.Time
}

// DoneOn reports whether the plan counts as completed on the given day.
// The stored flag is never cleared at midnight; a completion from an earlier
// day simply stops matching.
func (p TrainingPlan) DoneOn(d Day) bool {
	return p.Completed && p.LastCompletedOn != nil && *p.LastCompletedOn == d
}

// =============================================================================
// GOALS
// =============================================================================

// GlobalGoals are the team-wide default targets.
type GlobalGoals struct {
	DailyScoreTarget       int
	DailyShotsTarget       int
	WeeklyAttendanceTarget int
}

// DefaultGlobalGoals returns the targets a fresh club starts with.
func DefaultGlobalGoals() GlobalGoals {
	return GlobalGoals{DailyScoreTarget: 280, DailyShotsTarget: 60, WeeklyAttendanceTarget: 3}
}

func (g GlobalGoals) Validate() error {
	if g.DailyScoreTarget <= 0 {
		return &InvalidInputError{Field: "daily_score_target", Reason: "must be positive"}
	}
	if g.DailyShotsTarget <= 0 {
		return &InvalidInputError{Field: "daily_shots_target", Reason: "must be positive"}
	}
	if g.WeeklyAttendanceTarget <= 0 {
		return &InvalidInputError{Field: "weekly_attendance_target", Reason: "must be positive"}
	}
	return nil
}

// GoalOverrides is a sparse per-athlete override. A nil field falls back to
// the global value; a zero is a real target.
type GoalOverrides struct {
	DailyScoreTarget       *int
	DailyShotsTarget       *int
	WeeklyAttendanceTarget *int
}

func (o GoalOverrides) Validate() error {
	fields := []struct {
		name  string
		value *int
	}{
		{"daily_score_target", o.DailyScoreTarget},
		{"daily_shots_target", o.DailyShotsTarget},
		{"weekly_attendance_target", o.WeeklyAttendanceTarget},
	}
	for _, f := range fields {
		if f.value != nil && *f.value < 0 {
			return &InvalidInputError{Field: f.name, Reason: "must not be negative"}
		}
	}
	return nil
}

// GoalsPatch is a partial update to GlobalGoals.
type GoalsPatch GoalOverrides

// Apply returns g with every set field of the patch replaced.
func (p GoalsPatch) Apply(g GlobalGoals) GlobalGoals {
	if p.DailyScoreTarget != nil {
		g.DailyScoreTarget = *p.DailyScoreTarget
	}
	if p.DailyShotsTarget != nil {
		g.DailyShotsTarget = *p.DailyShotsTarget
	}
	if p.WeeklyAttendanceTarget != nil {
		g.WeeklyAttendanceTarget = *p.WeeklyAttendanceTarget
	}
	return g
}

// RedemptionRecord is the last claim for one (athlete, goal) pair.
type RedemptionRecord struct {
	AthleteID  AthleteID
	GoalID     GoalID
	RedeemedAt time.Time
	PeriodKey  string
}

// =============================================================================
// COIN TRANSACTIONS
// =============================================================================

type TxSource string

const (
	SourceCheckIn        TxSource = "check_in"
	SourceSession        TxSource = "session"
	SourceTrainingPlan   TxSource = "training_plan"
	SourceGoalRedemption TxSource = "goal_redemption"
	SourceCoachAward     TxSource = "coach_award"
)

// CoinTransaction records one balance change. Requested is what the caller
// asked for; Applied is what actually moved after clamping at zero.
type CoinTransaction struct {
	ID             TransactionID
	AthleteID      AthleteID
	Requested      int64
	Applied        int64
	BalanceAfter   int64
	Source         TxSource
	Reference      string
	Reason         string
	IdempotencyKey string
	At             time.Time
}
