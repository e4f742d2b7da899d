/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zerolog request log, level by status (5xx error, 4xx warn)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the web client

ROUTE GROUPS:
  /api/athletes/*       Profiles, attendance, sessions, goals, coins, plans
  /api/plans/*          Plan assignment and completion
  /api/goals            Global targets
  /api/awards           Coach coin changes
  /api/leaderboard/*    Ranking and weekly snapshots
  /api/coach/*          Coach overview
  /api/demo/*           Demo roster (dev only)
  /healthz              Liveness

SECURITY NOTE:
  No authentication middleware. The X-Actor-ID header is trusted as-is.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Athlete routes
		r.Route("/athletes", func(r chi.Router) {
			r.Get("/", h.ListAthletes)
			r.Post("/", h.CreateAthlete)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetAthlete)
				r.Patch("/", h.UpdateAthlete)
				r.Post("/attendance", h.CheckIn)
				r.Get("/attendance", h.ListAttendance)
				r.Post("/sessions", h.CompleteSession)
				r.Get("/sessions", h.ListSessions)
				r.Get("/shots", h.GetShots)
				r.Post("/shots", h.AdjustShots)
				r.Get("/progress", h.GetProgress)
				r.Get("/goals", h.ListGoals)
				r.Post("/goals/{goalID}/redeem", h.RedeemGoal)
				r.Put("/goal-overrides", h.SetGoalOverrides)
				r.Get("/transactions", h.ListTransactions)
				r.Get("/plans", h.ListPlans)
			})
		})

		// Plan routes
		r.Route("/plans", func(r chi.Router) {
			r.Post("/", h.CreatePlan)
			r.Delete("/{id}", h.DeletePlan)
			r.Post("/{id}/toggle", h.TogglePlan)
		})

		// Club-wide routes
		r.Get("/goals", h.GetGlobalGoals)
		r.Patch("/goals", h.PatchGlobalGoals)
		r.Post("/awards", h.CreateAward)
		r.Get("/leaderboard", h.GetLeaderboard)
		r.Get("/leaderboard/snapshots", h.ListSnapshots)
		r.Get("/coach/overview", h.GetOverview)

		// Demo routes
		r.Route("/demo", func(r chi.Router) {
			r.Post("/load", h.LoadDemo)
			r.Post("/reset", h.ResetDemo)
		})
	})

	return r
}

// RequestLogger logs one line per request. Server errors log at error
// level, client errors at warn, everything else at info.
func RequestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			var event *zerolog.Event
			switch {
			case status >= 500:
				event = log.Error()
			case status >= 400:
				event = log.Warn()
			default:
				event = log.Info()
			}
			event.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status_code", status).
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("client_ip", r.RemoteAddr).
				Dur("latency", time.Since(start)).
				Msg("Request processed")
		})
	}
}
