package club

import (
	"context"
	"time"

	"github.com/acamp/club-engine/engine"
)

// =============================================================================
// GLOBAL GOALS & OVERRIDES
// =============================================================================

// GlobalGoals returns the team targets, or the defaults if none were saved.
func (s *Service) GlobalGoals(ctx context.Context) (engine.GlobalGoals, error) {
	return globalGoals(ctx, s.repo)
}

func globalGoals(ctx context.Context, repo Repository) (engine.GlobalGoals, error) {
	g, ok, err := repo.GetGlobalGoals(ctx)
	if err != nil {
		return engine.GlobalGoals{}, err
	}
	if !ok {
		return engine.DefaultGlobalGoals(), nil
	}
	return g, nil
}

// UpdateGlobalGoals applies a partial change to the team targets.
func (s *Service) UpdateGlobalGoals(ctx context.Context, actor engine.AthleteID, patch engine.GoalsPatch) (engine.GlobalGoals, error) {
	var out engine.GlobalGoals
	err := s.repo.WithinTx(ctx, func(tx Repository) error {
		if err := requireCoach(ctx, tx, actor); err != nil {
			return err
		}
		current, err := globalGoals(ctx, tx)
		if err != nil {
			return err
		}
		next := patch.Apply(current)
		if err := next.Validate(); err != nil {
			return err
		}
		out = next
		return tx.PutGlobalGoals(ctx, next)
	})
	return out, err
}

// SetOverrides replaces an athlete's individual targets. Nil fields clear
// the override so the global value applies again.
func (s *Service) SetOverrides(ctx context.Context, actor, id engine.AthleteID, o engine.GoalOverrides) (engine.AthleteProfile, error) {
	if err := o.Validate(); err != nil {
		return engine.AthleteProfile{}, err
	}
	var out engine.AthleteProfile
	err := s.repo.WithinTx(ctx, func(tx Repository) error {
		if err := requireCoach(ctx, tx, actor); err != nil {
			return err
		}
		p, err := tx.GetAthlete(ctx, id)
		if err != nil {
			return err
		}
		p.Overrides = o
		out = p
		return tx.UpdateAthlete(ctx, p)
	})
	return out, err
}

// =============================================================================
// GOALS VIEW & REDEMPTION
// =============================================================================

// Targets resolves the athlete's effective targets.
func (s *Service) Targets(ctx context.Context, id engine.AthleteID) (engine.Targets, error) {
	p, err := s.repo.GetAthlete(ctx, id)
	if err != nil {
		return engine.Targets{}, err
	}
	global, err := globalGoals(ctx, s.repo)
	if err != nil {
		return engine.Targets{}, err
	}
	return engine.EffectiveGoals(global, p.Overrides), nil
}

// Goals lists every goal with progress and whether it can be claimed now.
func (s *Service) Goals(ctx context.Context, id engine.AthleteID, now time.Time) ([]GoalStatus, error) {
	var out []GoalStatus
	err := s.repo.WithinTx(ctx, func(tx Repository) error {
		goals, err := s.resolveGoals(ctx, tx, id, now)
		if err != nil {
			return err
		}
		out = make([]GoalStatus, 0, len(goals))
		for _, g := range goals {
			rec, err := tx.GetRedemption(ctx, id, g.ID())
			if err != nil {
				return err
			}
			last := engine.LastClaim(rec)
			complete := engine.Complete(g)
			out = append(out, GoalStatus{
				Goal:      g,
				Complete:  complete,
				Claimable: complete && engine.CanRedeem(last, now, g.Cadence()),
				Percent:   engine.Percent(g),
				LastClaim: last,
			})
		}
		return nil
	})
	return out, err
}

// Redeem claims a completed goal's reward. The completion check, the claim
// and the credit run in one transaction.
func (s *Service) Redeem(ctx context.Context, id engine.AthleteID, goal engine.GoalID, now time.Time) (engine.RedeemResult, error) {
	if _, err := engine.ParseGoalID(string(goal)); err != nil {
		return engine.RedeemResult{}, err
	}
	var out engine.RedeemResult
	err := s.repo.WithinTx(ctx, func(tx Repository) error {
		goals, err := s.resolveGoals(ctx, tx, id, now)
		if err != nil {
			return err
		}
		for _, g := range goals {
			if g.ID() == goal && !engine.Complete(g) {
				return engine.ErrGoalNotComplete
			}
		}
		out, err = s.ledger.RedeemIn(ctx, tx, id, goal, now)
		return err
	})
	return out, err
}

func (s *Service) resolveGoals(ctx context.Context, tx Repository, id engine.AthleteID, now time.Time) ([]engine.Goal, error) {
	p, err := tx.GetAthlete(ctx, id)
	if err != nil {
		return nil, err
	}
	global, err := globalGoals(ctx, tx)
	if err != nil {
		return nil, err
	}
	progress, err := loadProgress(ctx, tx, id, now)
	if err != nil {
		return nil, err
	}
	return engine.BuildGoals(engine.EffectiveGoals(global, p.Overrides), progress, s.rules), nil
}
