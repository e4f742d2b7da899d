/*
demo.go - Demo roster loader for demonstrations

PURPOSE:
  Populates an empty club with a coach, three athletes and one team-wide
  training plan so the web client has something to show.

HOW THE DEMO LOADS:
 1. Reset database (clear all data)
 2. Register the coach and the athletes
 3. Assign the team plan to "all" as the coach
 4. Check the first athlete in for today, unless the club is closed

USAGE VIA API:

	POST /api/demo/load
	POST /api/demo/reset

NOTE:

	Both endpoints wipe every record. Only use in development/demo environments.
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/acamp/club-engine/club"
	"github.com/acamp/club-engine/engine"
)

// =============================================================================
// DEMO ROSTER
// =============================================================================

const demoCoach engine.AthleteID = "coach_1"

var demoProfiles = []engine.AthleteProfile{
	{ID: demoCoach, Name: "Treinador Silva", Email: "silva@acamp.esp.br", Category: engine.CategoryCompound, Role: engine.RoleCoach},
	{ID: "user_1", Name: "Bruno Arqueiro", Email: "bruno@acamp.esp.br", Category: engine.CategoryRecurve, Role: engine.RoleAthlete},
	{ID: "user_2", Name: "Carla Mira", Email: "carla@acamp.esp.br", Category: engine.CategoryCompound, Role: engine.RoleAthlete},
	{ID: "user_3", Name: "Diego Alvo", Email: "diego@acamp.esp.br", Category: engine.CategoryRecurve, Role: engine.RoleAthlete},
}

var demoPlan = club.PlanInput{
	AthleteID:   engine.AllAthletes,
	Title:       "SPT - Specific Physical Training",
	Description: "3x15 rubber band draws, 3x30s hold at full draw",
	Duration:    "30 min",
	Intensity:   engine.IntensityMedium,
}

// LoadDemo resets the club and loads the demo roster.
func (h *Handler) LoadDemo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	athletes, plans, err := LoadDemo(ctx, h.Service, h.now())
	if err != nil {
		h.writeServiceError(w, r, fmt.Sprintf("Failed to load demo: %v", err), err)
		return
	}

	h.Log.Info().Int("athletes", len(athletes)).Int("plans", plans).Msg("Demo roster loaded")

	resp := DemoResponse{Athletes: make([]AthleteDTO, len(athletes)), Plans: plans}
	for i, a := range athletes {
		resp.Athletes[i] = toAthleteDTO(a, h.Location)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResetDemo clears all data.
func (h *Handler) ResetDemo(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Reset(r.Context()); err != nil {
		h.writeServiceError(w, r, "Failed to reset database", err)
		return
	}
	h.Log.Warn().Msg("Database reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// LOADER
// =============================================================================

// LoadDemo wipes the club and registers the demo roster. It returns the
// registered profiles and the number of plan copies created.
func LoadDemo(ctx context.Context, svc *club.Service, now time.Time) ([]engine.AthleteProfile, int, error) {
	if err := svc.Reset(ctx); err != nil {
		return nil, 0, fmt.Errorf("failed to reset: %w", err)
	}

	registered := make([]engine.AthleteProfile, 0, len(demoProfiles))
	for i, p := range demoProfiles {
		p.AvatarURL = fmt.Sprintf("https://picsum.photos/200/200?random=%d", i)
		saved, err := svc.RegisterAthlete(ctx, p, now)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to register %s: %w", p.ID, err)
		}
		registered = append(registered, saved)
	}

	plans, err := svc.CreatePlan(ctx, demoCoach, demoPlan, now)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create plan: %w", err)
	}

	if _, err := svc.CheckIn(ctx, "user_1", now); err != nil && !errors.Is(err, engine.ErrClubClosed) {
		return nil, 0, fmt.Errorf("failed to check in: %w", err)
	}

	// Reload so balances reflect the check-in reward.
	athletes, err := svc.ListAthletes(ctx)
	if err != nil {
		return nil, 0, err
	}
	return athletes, len(plans), nil
}
