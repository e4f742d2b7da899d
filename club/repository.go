package club

import (
	"context"
	"time"

	"github.com/acamp/club-engine/engine"
	"github.com/shopspring/decimal"
)

// Repository is everything the service persists. It extends the engine's
// ledger store with the club's event logs, plans and goal settings.
//
// WithinTx runs fn against a repository bound to one transaction. Calls made
// on the passed repository, including engine calls that receive it as a
// LedgerStore, commit or roll back together.
type Repository interface {
	engine.TxStore

	CreateAthlete(ctx context.Context, p engine.AthleteProfile) error
	UpdateAthlete(ctx context.Context, p engine.AthleteProfile) error
	ListAthletes(ctx context.Context) ([]engine.AthleteProfile, error)

	// AddAttendance reports false when the athlete already checked in that day.
	AddAttendance(ctx context.Context, rec engine.AttendanceRecord) (bool, error)
	ListAttendance(ctx context.Context, id engine.AthleteID, from, to engine.Day) ([]engine.AttendanceRecord, error)

	AddSession(ctx context.Context, s engine.ShotSession) error
	// ListSessions returns newest first; limit <= 0 means all.
	ListSessions(ctx context.Context, id engine.AthleteID, limit int) ([]engine.ShotSession, error)
	// PruneSessions keeps only the newest keep sessions.
	PruneSessions(ctx context.Context, id engine.AthleteID, keep int) (int64, error)

	GetShotCounter(ctx context.Context, id engine.AthleteID) (engine.ShotCounter, error)
	PutShotCounter(ctx context.Context, id engine.AthleteID, c engine.ShotCounter) error

	SavePlan(ctx context.Context, p engine.TrainingPlan) error
	GetPlan(ctx context.Context, id engine.PlanID) (engine.TrainingPlan, error)
	ListPlans(ctx context.Context, id engine.AthleteID) ([]engine.TrainingPlan, error)
	DeletePlan(ctx context.Context, id engine.PlanID) error

	// GetGlobalGoals reports false when no targets were ever saved.
	GetGlobalGoals(ctx context.Context) (engine.GlobalGoals, bool, error)
	PutGlobalGoals(ctx context.Context, g engine.GlobalGoals) error

	// SaveSnapshot reports false when the week already has a snapshot.
	SaveSnapshot(ctx context.Context, snap LeaderboardSnapshot) (bool, error)
	ListSnapshots(ctx context.Context, limit int) ([]LeaderboardSnapshot, error)

	Reset(ctx context.Context) error

	WithinTx(ctx context.Context, fn func(Repository) error) error
}

// =============================================================================
// READ MODELS
// =============================================================================

// LeaderboardEntry is one ranked athlete.
type LeaderboardEntry struct {
	Rank           int              `json:"rank"`
	AthleteID      engine.AthleteID `json:"athlete_id"`
	Name           string           `json:"name"`
	Category       engine.Category  `json:"category"`
	Balance        int64            `json:"balance"`
	WeekAttendance int              `json:"week_attendance"`
}

// LeaderboardSnapshot freezes the leaderboard at the end of a week.
type LeaderboardSnapshot struct {
	ID        string
	WeekStart engine.Day
	TakenAt   time.Time
	Entries   []LeaderboardEntry
}

// RosterEntry is one athlete on the coach overview.
type RosterEntry struct {
	Athlete          engine.AthleteProfile
	Progress         engine.Progress
	PresentToday     bool
	LowAttendance    bool
	SessionsThisWeek int
}

// GoalStatus is one goal as shown to the athlete.
type GoalStatus struct {
	Goal      engine.Goal
	Complete  bool
	Claimable bool
	Percent   decimal.Decimal
	LastClaim *time.Time
}

// PlanView is a plan with its done-today state resolved.
type PlanView struct {
	Plan      engine.TrainingPlan
	DoneToday bool
}
