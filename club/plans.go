package club

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/acamp/club-engine/engine"
	"github.com/google/uuid"
)

// PlanInput describes a plan to assign. AthleteID may be engine.AllAthletes.
type PlanInput struct {
	AthleteID   string
	Title       string
	Description string
	Duration    string
	Intensity   engine.Intensity
}

func (in PlanInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return &engine.InvalidInputError{Field: "title", Reason: "required"}
	}
	if in.AthleteID == "" {
		return &engine.InvalidInputError{Field: "athlete_id", Reason: "required"}
	}
	if !in.Intensity.Valid() {
		return &engine.InvalidInputError{Field: "intensity", Reason: "must be low, medium or high"}
	}
	return nil
}

// CreatePlan assigns a plan. Assigning to "all" creates one team-wide copy
// per athlete so each completes it independently.
func (s *Service) CreatePlan(ctx context.Context, actor engine.AthleteID, in PlanInput, now time.Time) ([]engine.TrainingPlan, error) {
	if in.Intensity == "" {
		in.Intensity = engine.IntensityMedium
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var created []engine.TrainingPlan
	err := s.repo.WithinTx(ctx, func(tx Repository) error {
		if err := requireCoach(ctx, tx, actor); err != nil {
			return err
		}

		teamWide := in.AthleteID == engine.AllAthletes
		var targets []engine.AthleteID
		if teamWide {
			athletes, err := tx.ListAthletes(ctx)
			if err != nil {
				return err
			}
			for _, a := range athletes {
				if a.Role == engine.RoleAthlete {
					targets = append(targets, a.ID)
				}
			}
		} else {
			id := engine.AthleteID(in.AthleteID)
			if _, err := tx.GetAthlete(ctx, id); err != nil {
				return err
			}
			targets = []engine.AthleteID{id}
		}

		for _, id := range targets {
			p := engine.TrainingPlan{
				ID:          engine.PlanID(uuid.NewString()),
				AthleteID:   id,
				Title:       in.Title,
				Description: in.Description,
				Duration:    in.Duration,
				Intensity:   in.Intensity,
				TeamWide:    teamWide,
				CreatedAt:   now,
			}
			if err := tx.SavePlan(ctx, p); err != nil {
				return err
			}
			created = append(created, p)
		}
		return nil
	})
	return created, err
}

// Plans lists an athlete's plans with today's completion state.
func (s *Service) Plans(ctx context.Context, id engine.AthleteID, now time.Time) ([]PlanView, error) {
	if _, err := s.repo.GetAthlete(ctx, id); err != nil {
		return nil, err
	}
	plans, err := s.repo.ListPlans(ctx, id)
	if err != nil {
		return nil, err
	}
	today := engine.DayOf(now)
	views := make([]PlanView, len(plans))
	for i, p := range plans {
		views[i] = PlanView{Plan: p, DoneToday: p.DoneOn(today)}
	}
	return views, nil
}

// ToggleResult is the plan after a toggle and any reward it earned.
type ToggleResult struct {
	View   PlanView
	Credit *engine.ApplyResult
}

// TogglePlan flips today's completion. Completing a team-wide plan pays the
// team plan reward at most once per plan per day.
func (s *Service) TogglePlan(ctx context.Context, planID engine.PlanID, now time.Time) (ToggleResult, error) {
	today := engine.DayOf(now)
	var out ToggleResult
	err := s.repo.WithinTx(ctx, func(tx Repository) error {
		p, err := tx.GetPlan(ctx, planID)
		if err != nil {
			return err
		}

		if p.DoneOn(today) {
			p.Completed = false
		} else {
			p.Completed = true
			p.LastCompletedOn = &today
		}
		if err := tx.SavePlan(ctx, p); err != nil {
			return err
		}
		out.View = PlanView{Plan: p, DoneToday: p.DoneOn(today)}

		if !out.View.DoneToday || !p.TeamWide || s.rules.TeamPlanReward == 0 {
			return nil
		}
		credit, err := engine.ApplyDeltaIn(ctx, tx, p.AthleteID, s.rules.TeamPlanReward, engine.TxMeta{
			Source:         engine.SourceTrainingPlan,
			Reference:      string(p.ID),
			Reason:         "team plan completed",
			IdempotencyKey: fmt.Sprintf("plan:%s:%s", p.ID, today),
		}, now)
		if errors.Is(err, engine.ErrDuplicateIdempotencyKey) {
			return nil
		}
		if err != nil {
			return err
		}
		out.Credit = &credit
		return nil
	})
	return out, err
}

// DeletePlan removes a plan.
func (s *Service) DeletePlan(ctx context.Context, actor engine.AthleteID, planID engine.PlanID) error {
	return s.repo.WithinTx(ctx, func(tx Repository) error {
		if err := requireCoach(ctx, tx, actor); err != nil {
			return err
		}
		return tx.DeletePlan(ctx, planID)
	})
}
