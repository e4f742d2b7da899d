/*
handlers.go - HTTP API handlers for the archery club

PURPOSE:
  Exposes club.Service via REST API. Handles HTTP request/response, JSON
  serialization, and delegates every rule to the service.

ENDPOINTS:
  Athletes:
    GET    /api/athletes                          List athletes and coaches
    POST   /api/athletes                          Register
    GET    /api/athletes/{id}                     Profile and balance
    PATCH  /api/athletes/{id}                     Update own profile
    POST   /api/athletes/{id}/attendance          Check in today
    GET    /api/athletes/{id}/attendance          Check-ins (?from=&to=)
    POST   /api/athletes/{id}/sessions            Complete a scoring session
    GET    /api/athletes/{id}/sessions            Session history (?limit=)
    GET    /api/athletes/{id}/shots               Today's shot volume
    POST   /api/athletes/{id}/shots               Adjust today's shot volume
    GET    /api/athletes/{id}/progress            Current-period metrics
    GET    /api/athletes/{id}/goals               Goals with progress
    POST   /api/athletes/{id}/goals/{goal}/redeem Claim a completed goal
    PUT    /api/athletes/{id}/goal-overrides      Coach: per-athlete targets
    GET    /api/athletes/{id}/transactions        Coin ledger (?limit=)
    GET    /api/athletes/{id}/plans               Training plans

  Plans:
    POST   /api/plans                             Coach: assign (athlete_id may be "all")
    DELETE /api/plans/{id}                        Coach: delete
    POST   /api/plans/{id}/toggle                 Toggle today's completion

  Club:
    GET    /api/goals                             Global targets
    PATCH  /api/goals                             Coach: change global targets
    POST   /api/awards                            Coach: award or deduct coins
    GET    /api/leaderboard                       Ranked by balance
    GET    /api/leaderboard/snapshots             Weekly snapshots (?limit=)
    GET    /api/coach/overview                    Roster with attendance flags

ACTING USER:
  Coach-only endpoints read the acting user's id from the X-Actor-ID header.
  The service checks the role.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Coach-only action by a non-coach
  - 404: Athlete or plan not found
  - 409: Already claimed, goal not complete, club closed, duplicate
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - demo.go: Demo roster loader
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/acamp/club-engine/club"
	"github.com/acamp/club-engine/engine"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// ActorHeader carries the acting user's athlete id.
const ActorHeader = "X-Actor-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *club.Service
	Location *time.Location
	Log      zerolog.Logger

	// DB is pinged by the health check when set.
	DB interface{ Ping(ctx context.Context) error }

	// Clock is replaced in tests.
	Clock func() time.Time
}

// NewHandler creates a handler serving the club in loc.
func NewHandler(svc *club.Service, loc *time.Location, log zerolog.Logger) *Handler {
	return &Handler{
		Service:  svc,
		Location: loc,
		Log:      log,
		Clock:    time.Now,
	}
}

// now is the current instant in the club's time zone.
func (h *Handler) now() time.Time {
	return h.Clock().In(h.Location)
}

// =============================================================================
// ATHLETE HANDLERS
// =============================================================================

// ListAthletes returns every athlete and coach.
func (h *Handler) ListAthletes(w http.ResponseWriter, r *http.Request) {
	athletes, err := h.Service.ListAthletes(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Failed to list athletes", err)
		return
	}

	dtos := make([]AthleteDTO, len(athletes))
	for i, a := range athletes {
		dtos[i] = toAthleteDTO(a, h.Location)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAthlete registers a profile.
func (h *Handler) CreateAthlete(w http.ResponseWriter, r *http.Request) {
	var req CreateAthleteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := h.Service.RegisterAthlete(r.Context(), engine.AthleteProfile{
		ID:        engine.AthleteID(req.ID),
		Name:      req.Name,
		Email:     req.Email,
		Category:  engine.Category(req.Category),
		Role:      engine.Role(req.Role),
		AvatarURL: req.AvatarURL,
	}, h.now())
	if err != nil {
		h.writeServiceError(w, r, "Failed to register athlete", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAthleteDTO(p, h.Location))
}

// GetAthlete returns one profile.
func (h *Handler) GetAthlete(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.GetAthlete(r.Context(), athleteParam(r))
	if err != nil {
		h.writeServiceError(w, r, "Failed to get athlete", err)
		return
	}
	writeJSON(w, http.StatusOK, toAthleteDTO(p, h.Location))
}

// UpdateAthlete applies a partial profile update.
func (h *Handler) UpdateAthlete(w http.ResponseWriter, r *http.Request) {
	var req UpdateAthleteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	patch := club.ProfilePatch{Name: req.Name, Email: req.Email, AvatarURL: req.AvatarURL}
	if req.Category != nil {
		c := engine.Category(*req.Category)
		patch.Category = &c
	}
	p, err := h.Service.UpdateProfile(r.Context(), athleteParam(r), patch)
	if err != nil {
		h.writeServiceError(w, r, "Failed to update athlete", err)
		return
	}
	writeJSON(w, http.StatusOK, toAthleteDTO(p, h.Location))
}

// =============================================================================
// ATTENDANCE / SESSIONS / SHOTS
// =============================================================================

// CheckIn records today's attendance.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.CheckIn(r.Context(), athleteParam(r), h.now())
	if err != nil {
		h.writeServiceError(w, r, "Failed to check in", err)
		return
	}

	status := http.StatusOK
	if res.Recorded {
		status = http.StatusCreated
	}
	writeJSON(w, status, CheckInResponse{
		Attendance: toAttendanceDTO(res.Record, h.Location),
		Recorded:   res.Recorded,
		Credit:     toApplyResultPtr(res.Credit),
	})
}

// ListAttendance returns check-ins in [from, to]. Defaults to the current
// month up to today.
func (h *Handler) ListAttendance(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	from, to := engine.MonthOf(now).Start, engine.DayOf(now)

	var err error
	if s := r.URL.Query().Get("from"); s != "" {
		if from, err = engine.ParseDay(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date", err)
			return
		}
	}
	if s := r.URL.Query().Get("to"); s != "" {
		if to, err = engine.ParseDay(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date", err)
			return
		}
	}

	recs, err := h.Service.Attendance(r.Context(), athleteParam(r), from, to)
	if err != nil {
		h.writeServiceError(w, r, "Failed to list attendance", err)
		return
	}
	dtos := make([]AttendanceDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toAttendanceDTO(rec, h.Location)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CompleteSession stores a scorecard and pays the session reward.
func (h *Handler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.Service.CompleteSession(r.Context(), athleteParam(r), club.SessionInput{
		Distance: req.Distance,
		Ends:     req.Ends,
	}, h.now())
	if err != nil {
		h.writeServiceError(w, r, "Failed to complete session", err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{
		Session:    toSessionDTO(res.Session, h.Location),
		TodayShots: res.TodayShots,
		Pruned:     res.Pruned,
		Credit:     toApplyResultDTO(res.Credit),
	})
}

// ListSessions returns session history, newest first.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	sessions, err := h.Service.Sessions(r.Context(), athleteParam(r), limit)
	if err != nil {
		h.writeServiceError(w, r, "Failed to list sessions", err)
		return
	}
	dtos := make([]SessionDTO, len(sessions))
	for i, s := range sessions {
		dtos[i] = toSessionDTO(s, h.Location)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetShots returns today's shot volume.
func (h *Handler) GetShots(w http.ResponseWriter, r *http.Request) {
	count, err := h.Service.TodayShots(r.Context(), athleteParam(r), h.now())
	if err != nil {
		h.writeServiceError(w, r, "Failed to read shots", err)
		return
	}
	writeJSON(w, http.StatusOK, ShotsResponse{TodayShots: count})
}

// AdjustShots changes today's shot volume.
func (h *Handler) AdjustShots(w http.ResponseWriter, r *http.Request) {
	var req AdjustShotsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	count, err := h.Service.AdjustShots(r.Context(), athleteParam(r), req.Delta, h.now())
	if err != nil {
		h.writeServiceError(w, r, "Failed to adjust shots", err)
		return
	}
	writeJSON(w, http.StatusOK, ShotsResponse{TodayShots: count})
}

// =============================================================================
// PROGRESS / GOALS
// =============================================================================

// GetProgress returns the athlete's current-period metrics.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.Progress(r.Context(), athleteParam(r), h.now())
	if err != nil {
		h.writeServiceError(w, r, "Failed to compute progress", err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressDTO(p, h.Location))
}

// ListGoals returns every goal with progress and claim state.
func (h *Handler) ListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := h.Service.Goals(r.Context(), athleteParam(r), h.now())
	if err != nil {
		h.writeServiceError(w, r, "Failed to resolve goals", err)
		return
	}
	dtos := make([]GoalDTO, len(goals))
	for i, g := range goals {
		dtos[i] = toGoalDTO(g, h.Location)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RedeemGoal claims a completed goal's reward.
func (h *Handler) RedeemGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := engine.ParseGoalID(chi.URLParam(r, "goalID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown goal", err)
		return
	}

	res, err := h.Service.Redeem(r.Context(), athleteParam(r), goal, h.now())
	if err != nil {
		h.writeServiceError(w, r, "Failed to redeem goal", err)
		return
	}

	h.Log.Info().
		Str("athlete_id", string(res.Credit.AthleteID)).
		Str("goal_id", string(goal)).
		Int64("balance", res.Credit.Balance).
		Msg("Goal redeemed")

	writeJSON(w, http.StatusOK, RedeemResponse{
		GoalID:     string(res.Record.GoalID),
		RedeemedAt: formatTime(res.Record.RedeemedAt, h.Location),
		PeriodKey:  res.Record.PeriodKey,
		Credit:     toApplyResultDTO(res.Credit),
	})
}

// SetGoalOverrides replaces an athlete's per-goal targets.
func (h *Handler) SetGoalOverrides(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req GoalTargetsDTO
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.Service.SetOverrides(r.Context(), actor, athleteParam(r), engine.GoalOverrides(req))
	if err != nil {
		h.writeServiceError(w, r, "Failed to set goal overrides", err)
		return
	}
	writeJSON(w, http.StatusOK, toAthleteDTO(p, h.Location))
}

// GetGlobalGoals returns the team-wide targets.
func (h *Handler) GetGlobalGoals(w http.ResponseWriter, r *http.Request) {
	g, err := h.Service.GlobalGoals(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Failed to get goals", err)
		return
	}
	writeJSON(w, http.StatusOK, toGlobalGoalsDTO(g))
}

// PatchGlobalGoals changes some of the team-wide targets.
func (h *Handler) PatchGlobalGoals(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req GoalTargetsDTO
	if !decodeBody(w, r, &req) {
		return
	}
	g, err := h.Service.UpdateGlobalGoals(r.Context(), actor, engine.GoalsPatch(req))
	if err != nil {
		h.writeServiceError(w, r, "Failed to update goals", err)
		return
	}
	writeJSON(w, http.StatusOK, toGlobalGoalsDTO(g))
}

// =============================================================================
// COINS
// =============================================================================

// ListTransactions returns the athlete's coin ledger, newest first.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	txs, err := h.Service.Transactions(r.Context(), athleteParam(r), limit)
	if err != nil {
		h.writeServiceError(w, r, "Failed to list transactions", err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx, h.Location)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAward credits or deducts coins for one athlete or all of them.
func (h *Handler) CreateAward(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req AwardRequest
	if !decodeBody(w, r, &req) {
		return
	}

	results, err := h.Service.Award(r.Context(), actor, club.AwardInput{
		Target:         req.Target,
		Amount:         req.Amount,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	}, h.now())
	if err != nil {
		var batch *engine.BatchError
		if errors.As(err, &batch) {
			h.Log.Warn().Err(err).Int("applied", len(batch.Applied)).Msg("Award stopped partway")
		}
		h.writeServiceError(w, r, "Failed to award coins", err)
		return
	}

	resp := AwardResponse{Results: make([]ApplyResultDTO, len(results))}
	for i, res := range results {
		resp.Results[i] = toApplyResultDTO(res)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// =============================================================================
// PLANS
// =============================================================================

// ListPlans returns an athlete's plans with today's completion state.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	views, err := h.Service.Plans(r.Context(), athleteParam(r), h.now())
	if err != nil {
		h.writeServiceError(w, r, "Failed to list plans", err)
		return
	}
	dtos := make([]PlanDTO, len(views))
	for i, v := range views {
		dtos[i] = toPlanDTO(v, h.Location)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePlan assigns a plan to one athlete or, with "all", to every athlete.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req CreatePlanRequest
	if !decodeBody(w, r, &req) {
		return
	}

	plans, err := h.Service.CreatePlan(r.Context(), actor, club.PlanInput{
		AthleteID:   req.AthleteID,
		Title:       req.Title,
		Description: req.Description,
		Duration:    req.Duration,
		Intensity:   engine.Intensity(req.Intensity),
	}, h.now())
	if err != nil {
		h.writeServiceError(w, r, "Failed to create plan", err)
		return
	}
	dtos := make([]PlanDTO, len(plans))
	for i, p := range plans {
		dtos[i] = toPlanDTO(club.PlanView{Plan: p}, h.Location)
	}
	writeJSON(w, http.StatusCreated, dtos)
}

// TogglePlan flips today's completion of a plan.
func (h *Handler) TogglePlan(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.TogglePlan(r.Context(), engine.PlanID(chi.URLParam(r, "id")), h.now())
	if err != nil {
		h.writeServiceError(w, r, "Failed to toggle plan", err)
		return
	}
	writeJSON(w, http.StatusOK, ToggleResponse{
		Plan:   toPlanDTO(res.View, h.Location),
		Credit: toApplyResultPtr(res.Credit),
	})
}

// DeletePlan removes a plan.
func (h *Handler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeletePlan(r.Context(), actor, engine.PlanID(chi.URLParam(r, "id"))); err != nil {
		h.writeServiceError(w, r, "Failed to delete plan", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// BOARD
// =============================================================================

// GetLeaderboard returns athletes ranked by balance.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.Leaderboard(r.Context(), h.now())
	if err != nil {
		h.writeServiceError(w, r, "Failed to build leaderboard", err)
		return
	}
	if entries == nil {
		entries = []club.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ListSnapshots returns stored weekly leaderboards, newest first.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	snaps, err := h.Service.Snapshots(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, r, "Failed to list snapshots", err)
		return
	}
	dtos := make([]SnapshotDTO, len(snaps))
	for i, s := range snaps {
		dtos[i] = toSnapshotDTO(s, h.Location)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetOverview returns the coach's roster for today.
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	roster, err := h.Service.Roster(r.Context(), now)
	if err != nil {
		h.writeServiceError(w, r, "Failed to build roster", err)
		return
	}

	resp := OverviewResponse{
		Date:   engine.DayOf(now).String(),
		Roster: make([]RosterEntryDTO, len(roster)),
	}
	for i, e := range roster {
		resp.Roster[i] = toRosterEntryDTO(e, h.Location)
		if e.PresentToday {
			resp.PresentCount++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health reports that the server is up and the database answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		if err := h.DB.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps a service error to its status. Server-side
// failures are logged; client errors are left to the request logger.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg(message)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotCoach):
		return http.StatusForbidden
	case engine.IsClientError(err):
		return http.StatusBadRequest
	case engine.IsNotFound(err):
		return http.StatusNotFound
	case engine.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads a JSON body into v, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func athleteParam(r *http.Request) engine.AthleteID {
	return engine.AthleteID(chi.URLParam(r, "id"))
}

func requireActor(w http.ResponseWriter, r *http.Request) (engine.AthleteID, bool) {
	actor := r.Header.Get(ActorHeader)
	if actor == "" {
		writeError(w, http.StatusBadRequest, ActorHeader+" header is required", nil)
		return "", false
	}
	return engine.AthleteID(actor), true
}

// limitParam parses ?limit=; missing means no limit.
func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return 0, false
	}
	return n, true
}
