/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types in
  engine and club carry no JSON tags; everything the web client sees is
  shaped here.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TIME FORMATS:
  Instants are RFC 3339 in the club's time zone. Calendar days are
  YYYY-MM-DD. Decimals (averages, percents) are strings so clients never
  see float rounding.

SEE ALSO:
  - handlers.go: Uses these types
  - club/repository.go: Read models
*/
package api

import (
	"time"

	"github.com/acamp/club-engine/club"
	"github.com/acamp/club-engine/engine"
)

// =============================================================================
// ATHLETES
// =============================================================================

// AthleteDTO represents an athlete or coach in API responses.
type AthleteDTO struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Email     string         `json:"email,omitempty"`
	Category  string         `json:"category"`
	Role      string         `json:"role"`
	Balance   int64          `json:"balance"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Overrides GoalTargetsDTO `json:"goal_overrides"`
	CreatedAt string         `json:"created_at,omitempty"`
}

// CreateAthleteRequest registers a new athlete or coach.
type CreateAthleteRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Category  string `json:"category"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatar_url"`
}

// UpdateAthleteRequest is a partial profile update.
type UpdateAthleteRequest struct {
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	Category  *string `json:"category"`
	AvatarURL *string `json:"avatar_url"`
}

// GoalTargetsDTO carries global goals, per-athlete overrides and patches.
// A missing field means "not set".
type GoalTargetsDTO struct {
	DailyScoreTarget       *int `json:"daily_score_target,omitempty"`
	DailyShotsTarget       *int `json:"daily_shots_target,omitempty"`
	WeeklyAttendanceTarget *int `json:"weekly_attendance_target,omitempty"`
}

// =============================================================================
// ATTENDANCE / SESSIONS / SHOTS
// =============================================================================

// AttendanceDTO is one check-in.
type AttendanceDTO struct {
	Day         string `json:"day"`
	CheckedInAt string `json:"checked_in_at"`
}

// CheckInResponse reports whether the check-in was new and what it paid.
type CheckInResponse struct {
	Attendance AttendanceDTO   `json:"attendance"`
	Recorded   bool            `json:"recorded"`
	Credit     *ApplyResultDTO `json:"credit,omitempty"`
}

// SessionRequest is a finished scorecard. Arrows are "X", "M" or "0".."10".
type SessionRequest struct {
	Distance int        `json:"distance"`
	Ends     [][]string `json:"ends"`
}

// SessionDTO is a stored scoring session with its detail stats.
type SessionDTO struct {
	ID       string          `json:"id"`
	At       string          `json:"at"`
	Score    int             `json:"score"`
	Distance int             `json:"distance"`
	Ends     [][]string      `json:"ends"`
	Stats    SessionStatsDTO `json:"stats"`
}

// SessionStatsDTO summarises a scorecard.
type SessionStatsDTO struct {
	Arrows    int    `json:"arrows"`
	Tens      int    `json:"tens"`
	Xs        int    `json:"xs"`
	Misses    int    `json:"misses"`
	EndTotals []int  `json:"end_totals"`
	Average   string `json:"average"`
}

// SessionResponse is the result of completing a session.
type SessionResponse struct {
	Session    SessionDTO     `json:"session"`
	TodayShots int            `json:"today_shots"`
	Pruned     int64          `json:"pruned"`
	Credit     ApplyResultDTO `json:"credit"`
}

// AdjustShotsRequest changes today's shot volume by Delta.
type AdjustShotsRequest struct {
	Delta int `json:"delta"`
}

// ShotsResponse is today's shot volume.
type ShotsResponse struct {
	TodayShots int `json:"today_shots"`
}

// =============================================================================
// PROGRESS / GOALS
// =============================================================================

// ProgressDTO is the athlete's current-period metrics.
type ProgressDTO struct {
	AsOf            string `json:"as_of"`
	TodayBestScore  int    `json:"today_best_score"`
	TodayShots      int    `json:"today_shots"`
	WeekAttendance  int    `json:"week_attendance"`
	MonthAttendance int    `json:"month_attendance"`
	WeeklyAverage   string `json:"weekly_average"`
	CheckedInToday  bool   `json:"checked_in_today"`
}

// GoalDTO is one goal with its live progress.
type GoalDTO struct {
	ID        string  `json:"id"`
	Target    int     `json:"target"`
	Current   int     `json:"current"`
	Percent   string  `json:"percent"`
	Reward    int64   `json:"reward"`
	Cadence   string  `json:"cadence"`
	Complete  bool    `json:"complete"`
	Claimable bool    `json:"claimable"`
	LastClaim *string `json:"last_claim,omitempty"`
}

// RedeemResponse is a successful goal claim.
type RedeemResponse struct {
	GoalID     string         `json:"goal_id"`
	RedeemedAt string         `json:"redeemed_at"`
	PeriodKey  string         `json:"period_key"`
	Credit     ApplyResultDTO `json:"credit"`
}

// =============================================================================
// COINS
// =============================================================================

// ApplyResultDTO is the outcome of one balance change.
type ApplyResultDTO struct {
	AthleteID string `json:"athlete_id"`
	Balance   int64  `json:"balance"`
	Requested int64  `json:"requested"`
	Applied   int64  `json:"applied"`
	Clamped   bool   `json:"clamped"`
	Skipped   bool   `json:"skipped,omitempty"`
}

// TransactionDTO is one entry of the coin ledger.
type TransactionDTO struct {
	ID           string `json:"id"`
	Requested    int64  `json:"requested"`
	Applied      int64  `json:"applied"`
	BalanceAfter int64  `json:"balance_after"`
	Source       string `json:"source"`
	Reference    string `json:"reference,omitempty"`
	Reason       string `json:"reason,omitempty"`
	At           string `json:"at"`
}

// AwardRequest is a coach's manual coin change. Target is an athlete id or "all".
type AwardRequest struct {
	Target         string `json:"target"`
	Amount         int64  `json:"amount"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

// AwardResponse lists every balance the award changed.
type AwardResponse struct {
	Results []ApplyResultDTO `json:"results"`
}

// =============================================================================
// PLANS
// =============================================================================

// PlanDTO is a training plan as seen by its athlete.
type PlanDTO struct {
	ID              string  `json:"id"`
	AthleteID       string  `json:"athlete_id"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	Duration        string  `json:"duration,omitempty"`
	Intensity       string  `json:"intensity"`
	TeamWide        bool    `json:"team_wide"`
	DoneToday       bool    `json:"done_today"`
	LastCompletedOn *string `json:"last_completed_on,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

// CreatePlanRequest assigns a plan. AthleteID may be "all".
type CreatePlanRequest struct {
	AthleteID   string `json:"athlete_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    string `json:"duration"`
	Intensity   string `json:"intensity"`
}

// ToggleResponse is a plan after a toggle.
type ToggleResponse struct {
	Plan   PlanDTO         `json:"plan"`
	Credit *ApplyResultDTO `json:"credit,omitempty"`
}

// =============================================================================
// BOARD
// =============================================================================

// SnapshotDTO is a frozen weekly leaderboard.
type SnapshotDTO struct {
	ID        string                  `json:"id"`
	WeekStart string                  `json:"week_start"`
	TakenAt   string                  `json:"taken_at"`
	Entries   []club.LeaderboardEntry `json:"entries"`
}

// RosterEntryDTO is one athlete on the coach overview.
type RosterEntryDTO struct {
	Athlete          AthleteDTO  `json:"athlete"`
	Progress         ProgressDTO `json:"progress"`
	PresentToday     bool        `json:"present_today"`
	LowAttendance    bool        `json:"low_attendance"`
	SessionsThisWeek int         `json:"sessions_this_week"`
}

// OverviewResponse is the coach dashboard.
type OverviewResponse struct {
	Date         string           `json:"date"`
	PresentCount int              `json:"present_count"`
	Roster       []RosterEntryDTO `json:"roster"`
}

// DemoResponse describes the loaded demo roster.
type DemoResponse struct {
	Athletes []AthleteDTO `json:"athletes"`
	Plans    int          `json:"plans"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(time.RFC3339)
}

func toAthleteDTO(p engine.AthleteProfile, loc *time.Location) AthleteDTO {
	return AthleteDTO{
		ID:        string(p.ID),
		Name:      p.Name,
		Email:     p.Email,
		Category:  string(p.Category),
		Role:      string(p.Role),
		Balance:   p.Balance,
		AvatarURL: p.AvatarURL,
		Overrides: GoalTargetsDTO(p.Overrides),
		CreatedAt: formatTime(p.CreatedAt, loc),
	}
}

func toGlobalGoalsDTO(g engine.GlobalGoals) GoalTargetsDTO {
	return GoalTargetsDTO{
		DailyScoreTarget:       &g.DailyScoreTarget,
		DailyShotsTarget:       &g.DailyShotsTarget,
		WeeklyAttendanceTarget: &g.WeeklyAttendanceTarget,
	}
}

func toApplyResultDTO(r engine.ApplyResult) ApplyResultDTO {
	return ApplyResultDTO{
		AthleteID: string(r.AthleteID),
		Balance:   r.Balance,
		Requested: r.Requested,
		Applied:   r.Applied,
		Clamped:   r.Clamped,
		Skipped:   r.Skipped,
	}
}

func toApplyResultPtr(r *engine.ApplyResult) *ApplyResultDTO {
	if r == nil {
		return nil
	}
	dto := toApplyResultDTO(*r)
	return &dto
}

func toAttendanceDTO(rec engine.AttendanceRecord, loc *time.Location) AttendanceDTO {
	return AttendanceDTO{Day: rec.Day.String(), CheckedInAt: formatTime(rec.CheckedInAt, loc)}
}

func toSessionDTO(s engine.ShotSession, loc *time.Location) SessionDTO {
	ends := make([][]string, len(s.Ends))
	for i, end := range s.Ends {
		ends[i] = make([]string, len(end))
		for j, a := range end {
			ends[i][j] = string(a)
		}
	}
	st := engine.StatsFor(s)
	return SessionDTO{
		ID:       string(s.ID),
		At:       formatTime(s.At, loc),
		Score:    s.Score,
		Distance: s.Distance,
		Ends:     ends,
		Stats: SessionStatsDTO{
			Arrows:    st.Arrows,
			Tens:      st.Tens,
			Xs:        st.Xs,
			Misses:    st.Misses,
			EndTotals: st.EndTotals,
			Average:   st.Average.StringFixed(1),
		},
	}
}

func toProgressDTO(p engine.Progress, loc *time.Location) ProgressDTO {
	return ProgressDTO{
		AsOf:            formatTime(p.AsOf, loc),
		TodayBestScore:  p.TodayBestScore,
		TodayShots:      p.TodayShots,
		WeekAttendance:  p.WeekAttendance,
		MonthAttendance: p.MonthAttendance,
		WeeklyAverage:   p.WeeklyAverage.String(),
		CheckedInToday:  p.CheckedInToday,
	}
}

func toGoalDTO(g club.GoalStatus, loc *time.Location) GoalDTO {
	dto := GoalDTO{
		ID:        string(g.Goal.ID()),
		Target:    g.Goal.Target(),
		Current:   g.Goal.Current(),
		Percent:   g.Percent.String(),
		Reward:    g.Goal.Reward(),
		Cadence:   string(g.Goal.Cadence()),
		Complete:  g.Complete,
		Claimable: g.Claimable,
	}
	if g.LastClaim != nil {
		s := formatTime(*g.LastClaim, loc)
		dto.LastClaim = &s
	}
	return dto
}

func toTransactionDTO(tx engine.CoinTransaction, loc *time.Location) TransactionDTO {
	return TransactionDTO{
		ID:           string(tx.ID),
		Requested:    tx.Requested,
		Applied:      tx.Applied,
		BalanceAfter: tx.BalanceAfter,
		Source:       string(tx.Source),
		Reference:    tx.Reference,
		Reason:       tx.Reason,
		At:           formatTime(tx.At, loc),
	}
}

func toPlanDTO(v club.PlanView, loc *time.Location) PlanDTO {
	p := v.Plan
	dto := PlanDTO{
		ID:          string(p.ID),
		AthleteID:   string(p.AthleteID),
		Title:       p.Title,
		Description: p.Description,
		Duration:    p.Duration,
		Intensity:   string(p.Intensity),
		TeamWide:    p.TeamWide,
		DoneToday:   v.DoneToday,
		CreatedAt:   formatTime(p.CreatedAt, loc),
	}
	if p.LastCompletedOn != nil {
		s := p.LastCompletedOn.String()
		dto.LastCompletedOn = &s
	}
	return dto
}

func toSnapshotDTO(s club.LeaderboardSnapshot, loc *time.Location) SnapshotDTO {
	entries := s.Entries
	if entries == nil {
		entries = []club.LeaderboardEntry{}
	}
	return SnapshotDTO{
		ID:        s.ID,
		WeekStart: s.WeekStart.String(),
		TakenAt:   formatTime(s.TakenAt, loc),
		Entries:   entries,
	}
}

func toRosterEntryDTO(e club.RosterEntry, loc *time.Location) RosterEntryDTO {
	return RosterEntryDTO{
		Athlete:          toAthleteDTO(e.Athlete, loc),
		Progress:         toProgressDTO(e.Progress, loc),
		PresentToday:     e.PresentToday,
		LowAttendance:    e.LowAttendance,
		SessionsThisWeek: e.SessionsThisWeek,
	}
}
