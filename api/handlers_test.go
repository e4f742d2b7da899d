/*
handlers_test.go - HTTP tests for the club API

Tests for:
- Status mapping (400/403/404/409)
- Check-in, session, redeem and plan flows through the router
- Awards, leaderboard, overview and demo loading
- Request logging levels
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/acamp/club-engine/club"
	"github.com/acamp/club-engine/engine"
	"github.com/acamp/club-engine/store/sqldb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// 2024-03-11 is a Monday.
var monday = time.Date(2024, time.March, 11, 9, 0, 0, 0, time.UTC)

type testServer struct {
	h      *Handler
	router http.Handler
	svc    *club.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqldb.New(sqldb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := club.NewService(store, club.DefaultOptions())
	ctx := context.Background()
	for _, p := range []engine.AthleteProfile{
		{ID: "coach", Name: "Coach Rui", Category: engine.CategoryRecurve, Role: engine.RoleCoach},
		{ID: "ana", Name: "Ana", Category: engine.CategoryRecurve, Role: engine.RoleAthlete},
	} {
		_, err := svc.RegisterAthlete(ctx, p, monday.Add(-30*24*time.Hour))
		require.NoError(t, err)
	}

	h := NewHandler(svc, time.UTC, zerolog.Nop())
	h.DB = store
	h.Clock = func() time.Time { return monday }
	return &testServer{h: h, router: NewRouter(h, []string{"http://localhost:5173"}), svc: svc}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, actor string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// STATUS MAPPING
// =============================================================================

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&engine.InvalidInputError{Field: "x", Reason: "y"}, http.StatusBadRequest},
		{engine.ErrNotCoach, http.StatusForbidden},
		{engine.ErrAthleteNotFound, http.StatusNotFound},
		{engine.ErrPlanNotFound, http.StatusNotFound},
		{engine.ErrAlreadyClaimed, http.StatusConflict},
		{engine.ErrGoalNotComplete, http.StatusConflict},
		{engine.ErrClubClosed, http.StatusConflict},
		{&engine.BatchError{Failed: "x", Err: engine.ErrAthleteNotFound}, http.StatusNotFound},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusFor(c.err), c.err.Error())
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetAthlete_NotFound(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/athletes/ghost", nil, "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "Failed to get athlete", resp.Error)
	assert.Contains(t, resp.Details, "not found")
}

func TestCreateAthlete(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/athletes", CreateAthleteRequest{ID: "bia", Name: "Bia", Category: "compound"}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dto := decode[AthleteDTO](t, rec)
	assert.Equal(t, "athlete", dto.Role)
	assert.Equal(t, int64(0), dto.Balance)

	rec = ts.do(t, http.MethodPost, "/api/athletes", CreateAthleteRequest{ID: "bia", Name: "Bia", Category: "compound"}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/athletes", CreateAthleteRequest{ID: "cai", Name: "Cai", Category: "longbow"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidBody(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/athletes/ana/sessions", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ATTENDANCE & SESSIONS
// =============================================================================

func TestCheckIn_OncePerDay(t *testing.T) {
	// GIVEN: Ana has not checked in today
	// WHEN: She checks in twice
	// THEN: The first call is 201 with a 5-coin credit, the second 200 with none

	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/athletes/ana/attendance", nil, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[CheckInResponse](t, rec)
	assert.True(t, first.Recorded)
	require.NotNil(t, first.Credit)
	assert.Equal(t, int64(5), first.Credit.Balance)
	assert.Equal(t, "2024-03-11", first.Attendance.Day)

	rec = ts.do(t, http.MethodPost, "/api/athletes/ana/attendance", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[CheckInResponse](t, rec)
	assert.False(t, second.Recorded)
	assert.Nil(t, second.Credit)

	rec = ts.do(t, http.MethodGet, "/api/athletes/ana/attendance", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]AttendanceDTO](t, rec), 1)
}

func TestCheckIn_SundayConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.h.Clock = func() time.Time { return monday.Add(-24 * time.Hour) }

	rec := ts.do(t, http.MethodPost, "/api/athletes/ana/attendance", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCheckIn_UsesClubTimeZone(t *testing.T) {
	// GIVEN: A club in Sao Paulo and a clock at 01:00 UTC on Monday
	// WHEN: Ana checks in
	// THEN: The check-in is rejected, since it is still Sunday at the club

	ts := newTestServer(t)
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	ts.h.Location = loc
	ts.h.Clock = func() time.Time { return time.Date(2024, time.March, 11, 1, 0, 0, 0, time.UTC) }

	rec := ts.do(t, http.MethodPost, "/api/athletes/ana/attendance", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAttendance_BadRange(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/athletes/ana/attendance?from=2024-13-01", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/athletes/ana/attendance?from=2024-03-11&to=2024-03-01", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompleteSession(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/athletes/ana/sessions", SessionRequest{
		Distance: 18,
		Ends:     [][]string{{"X", "10", "9"}, {"M", "8", "7"}},
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[SessionResponse](t, rec)
	assert.Equal(t, 44, resp.Session.Score)
	assert.Equal(t, 6, resp.TodayShots)
	assert.Equal(t, 1, resp.Session.Stats.Xs)
	assert.Equal(t, 1, resp.Session.Stats.Misses)
	assert.Equal(t, "7.3", resp.Session.Stats.Average)
	assert.Equal(t, int64(15), resp.Credit.Balance)

	rec = ts.do(t, http.MethodGet, "/api/athletes/ana/sessions?limit=5", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]SessionDTO](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/api/athletes/ana/sessions?limit=-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompleteSession_InvalidArrow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/athletes/ana/sessions", SessionRequest{Ends: [][]string{{"11"}}}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/athletes/ana/transactions", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]TransactionDTO](t, rec))
}

func TestGetShots(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/athletes/ana/shots", AdjustShotsRequest{Delta: 12}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/athletes/ana/shots", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 12, decode[ShotsResponse](t, rec).TodayShots)

	rec = ts.do(t, http.MethodGet, "/api/athletes/ghost/shots", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdjustShots_ClampsAtZero(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/athletes/ana/shots", AdjustShotsRequest{Delta: 12}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 12, decode[ShotsResponse](t, rec).TodayShots)

	rec = ts.do(t, http.MethodPost, "/api/athletes/ana/shots", AdjustShotsRequest{Delta: -20}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[ShotsResponse](t, rec).TodayShots)
}

// =============================================================================
// GOALS
// =============================================================================

func TestRedeemGoal_Flow(t *testing.T) {
	// GIVEN: Ana with no shots today and the default 60-shot target
	// WHEN: She redeems, the coach lowers her target to 5, she shoots 6 and redeems twice
	// THEN: 409 (not complete), then 200 with +20, then 409 (already claimed)

	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/athletes/ana/goals/shots_goal/redeem", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/athletes/ana/goal-overrides", GoalTargetsDTO{DailyShotsTarget: intp(5)}, "coach")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 5, *decode[AthleteDTO](t, rec).Overrides.DailyShotsTarget)

	rec = ts.do(t, http.MethodPost, "/api/athletes/ana/shots", AdjustShotsRequest{Delta: 6}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/athletes/ana/goals", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	goals := decode[[]GoalDTO](t, rec)
	require.Len(t, goals, 3)
	assert.Equal(t, "shots_goal", goals[1].ID)
	assert.True(t, goals[1].Claimable)
	assert.Equal(t, "100", goals[1].Percent)

	rec = ts.do(t, http.MethodPost, "/api/athletes/ana/goals/shots_goal/redeem", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[RedeemResponse](t, rec)
	assert.Equal(t, int64(20), resp.Credit.Balance)
	assert.Equal(t, "2024-03-11", resp.PeriodKey)

	rec = ts.do(t, http.MethodPost, "/api/athletes/ana/goals/shots_goal/redeem", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/athletes/ana", nil, "")
	assert.Equal(t, int64(20), decode[AthleteDTO](t, rec).Balance)
}

func TestRedeemGoal_UnknownGoal(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/athletes/ana/goals/streak_goal/redeem", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCoachOnly_ActorChecks(t *testing.T) {
	ts := newTestServer(t)
	body := GoalTargetsDTO{DailyScoreTarget: intp(250)}

	rec := ts.do(t, http.MethodPatch, "/api/goals", body, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing actor header")

	rec = ts.do(t, http.MethodPatch, "/api/goals", body, "ana")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/goals", body, "coach")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	goals := decode[GoalTargetsDTO](t, rec)
	assert.Equal(t, 250, *goals.DailyScoreTarget)
	assert.Equal(t, 60, *goals.DailyShotsTarget)

	rec = ts.do(t, http.MethodGet, "/api/goals", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 250, *decode[GoalTargetsDTO](t, rec).DailyScoreTarget)
}

// =============================================================================
// PLANS, AWARDS, BOARD
// =============================================================================

func TestPlans_CreateToggleDelete(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/plans", CreatePlanRequest{AthleteID: "all", Title: "SPT"}, "coach")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	plans := decode[[]PlanDTO](t, rec)
	require.Len(t, plans, 1)
	assert.True(t, plans[0].TeamWide)
	assert.Equal(t, "medium", plans[0].Intensity)

	rec = ts.do(t, http.MethodPost, "/api/plans/"+plans[0].ID+"/toggle", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	toggled := decode[ToggleResponse](t, rec)
	assert.True(t, toggled.Plan.DoneToday)
	require.NotNil(t, toggled.Credit)
	assert.Equal(t, int64(5), toggled.Credit.Balance)

	rec = ts.do(t, http.MethodGet, "/api/athletes/ana/plans", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PlanDTO](t, rec), 1)

	rec = ts.do(t, http.MethodDelete, "/api/plans/"+plans[0].ID, nil, "ana")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/plans/"+plans[0].ID, nil, "coach")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/plans/"+plans[0].ID+"/toggle", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAward_ClampedDeduction(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/awards", AwardRequest{Target: "ana", Amount: 30, Reason: "tournament"}, "coach")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/awards", AwardRequest{Target: "ana", Amount: -50}, "coach")
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[AwardResponse](t, rec)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, int64(0), resp.Results[0].Balance)
	assert.Equal(t, int64(-30), resp.Results[0].Applied)
	assert.True(t, resp.Results[0].Clamped)

	rec = ts.do(t, http.MethodPost, "/api/awards", AwardRequest{Target: "ana", Amount: 0}, "coach")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/athletes/ana/transactions?limit=1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	txs := decode[[]TransactionDTO](t, rec)
	require.Len(t, txs, 1)
	assert.Equal(t, "coach_award", txs[0].Source)
	assert.Equal(t, int64(-50), txs[0].Requested)
}

func TestLeaderboardAndOverview(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.svc.RegisterAthlete(context.Background(), engine.AthleteProfile{
		ID: "bia", Name: "Bia", Category: engine.CategoryCompound, Role: engine.RoleAthlete,
	}, monday)
	require.NoError(t, err)

	rec := ts.do(t, http.MethodPost, "/api/athletes/bia/attendance", nil, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/leaderboard", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	board := decode[[]club.LeaderboardEntry](t, rec)
	require.Len(t, board, 2)
	assert.Equal(t, engine.AthleteID("bia"), board[0].AthleteID)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, 1, board[0].WeekAttendance)

	rec = ts.do(t, http.MethodGet, "/api/coach/overview", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	overview := decode[OverviewResponse](t, rec)
	assert.Equal(t, "2024-03-11", overview.Date)
	assert.Equal(t, 1, overview.PresentCount)
	require.Len(t, overview.Roster, 2)
	for _, e := range overview.Roster {
		assert.True(t, e.LowAttendance)
	}
}

// =============================================================================
// DEMO
// =============================================================================

func TestDemo_LoadAndReset(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/demo/load", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[DemoResponse](t, rec)
	assert.Len(t, resp.Athletes, 4)
	assert.Equal(t, 3, resp.Plans)

	rec = ts.do(t, http.MethodGet, "/api/athletes/ana", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "demo load starts from an empty club")

	rec = ts.do(t, http.MethodGet, "/api/athletes/user_1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(5), decode[AthleteDTO](t, rec).Balance)

	rec = ts.do(t, http.MethodPost, "/api/demo/reset", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/athletes", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]AthleteDTO](t, rec))
}

// =============================================================================
// LOGGING
// =============================================================================

func TestRequestLogger_LevelByStatus(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	handler := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"status_code":404`)

	buf.Reset()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fine", nil))
	assert.Contains(t, buf.String(), `"level":"info"`)
	assert.Contains(t, buf.String(), `"status_code":200`)
}

func intp(v int) *int { return &v }
