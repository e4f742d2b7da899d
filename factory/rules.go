/*
Package factory provides JSON to Go reward-rule conversion.

PURPOSE:
  Converts a JSON rules document into engine.RewardRules plus the club's
  closed days, so a club can change coin amounts, claim cadences and the
  history cap without a rebuild.

JSON SCHEMA (every field optional; missing fields keep the defaults):
  {
    "check_in_reward": 5,
    "session_reward": 15,
    "team_plan_reward": 5,
    "history_cap": 50,
    "low_attendance_threshold": 8,
    "closed_days": ["sunday"],
    "goals": {
      "score_goal":      {"reward": 20, "cadence": "daily"},
      "shots_goal":      {"reward": 20, "cadence": "daily"},
      "attendance_goal": {"reward": 50, "cadence": "weekly"}
    }
  }

USAGE:
  f := factory.NewRulesFactory()
  opts, err := f.LoadFile("rules.json")
  svc := club.NewService(store, opts)

SEE ALSO:
  - engine/goals.go: RewardRules and DefaultRewardRules
  - club/service.go: Options
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/acamp/club-engine/club"
	"github.com/acamp/club-engine/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RulesJSON is the JSON representation of the club's reward rules.
type RulesJSON struct {
	CheckInReward          *int64                  `json:"check_in_reward,omitempty"`
	SessionReward          *int64                  `json:"session_reward,omitempty"`
	TeamPlanReward         *int64                  `json:"team_plan_reward,omitempty"`
	HistoryCap             *int                    `json:"history_cap,omitempty"`
	LowAttendanceThreshold *int                    `json:"low_attendance_threshold,omitempty"`
	ClosedDays             []string                `json:"closed_days,omitempty"`
	Goals                  map[string]GoalRuleJSON `json:"goals,omitempty"`
}

// GoalRuleJSON is one goal's reward and claim cadence.
type GoalRuleJSON struct {
	Reward  *int64 `json:"reward,omitempty"`
	Cadence string `json:"cadence,omitempty"` // daily, weekly
}

// =============================================================================
// RULES FACTORY
// =============================================================================

// RulesFactory converts JSON rules to service options.
type RulesFactory struct{}

func NewRulesFactory() *RulesFactory {
	return &RulesFactory{}
}

// LoadFile reads and parses a rules file.
func (f *RulesFactory) LoadFile(path string) (club.Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return club.Options{}, fmt.Errorf("failed to read rules file: %w", err)
	}
	return f.ParseRules(string(data))
}

// ParseRules parses a JSON string into service options.
func (f *RulesFactory) ParseRules(jsonStr string) (club.Options, error) {
	var rj RulesJSON
	dec := json.NewDecoder(strings.NewReader(jsonStr))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rj); err != nil {
		return club.Options{}, fmt.Errorf("failed to parse rules JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// FromJSON overlays rj on the default options and validates the result.
func (f *RulesFactory) FromJSON(rj RulesJSON) (club.Options, error) {
	opts := club.DefaultOptions()
	r := &opts.Rules

	setInt64(&r.CheckInReward, rj.CheckInReward)
	setInt64(&r.SessionReward, rj.SessionReward)
	setInt64(&r.TeamPlanReward, rj.TeamPlanReward)
	if rj.HistoryCap != nil {
		r.HistoryCap = *rj.HistoryCap
	}
	if rj.LowAttendanceThreshold != nil {
		r.LowAttendanceThreshold = *rj.LowAttendanceThreshold
	}

	for key, gj := range rj.Goals {
		id, err := engine.ParseGoalID(key)
		if err != nil {
			return club.Options{}, err
		}
		rule := r.Rule(id)
		setInt64(&rule.Reward, gj.Reward)
		if gj.Cadence != "" {
			rule.Cadence = engine.Cadence(strings.ToLower(gj.Cadence))
		}
		r.Goals[id] = rule
	}

	if rj.ClosedDays != nil {
		days, err := parseWeekdays(rj.ClosedDays)
		if err != nil {
			return club.Options{}, err
		}
		opts.ClosedDays = days
	}

	if err := r.Validate(); err != nil {
		return club.Options{}, err
	}
	return opts, nil
}

// ToJSON converts options back to their JSON form, every field explicit.
func (f *RulesFactory) ToJSON(opts club.Options) RulesJSON {
	r := opts.Rules
	rj := RulesJSON{
		CheckInReward:          &r.CheckInReward,
		SessionReward:          &r.SessionReward,
		TeamPlanReward:         &r.TeamPlanReward,
		HistoryCap:             &r.HistoryCap,
		LowAttendanceThreshold: &r.LowAttendanceThreshold,
		ClosedDays:             []string{},
		Goals:                  make(map[string]GoalRuleJSON, len(engine.AllGoalIDs)),
	}
	for _, d := range opts.ClosedDays {
		rj.ClosedDays = append(rj.ClosedDays, strings.ToLower(d.String()))
	}
	for _, id := range engine.AllGoalIDs {
		rule := r.Rule(id)
		reward := rule.Reward
		rj.Goals[string(id)] = GoalRuleJSON{Reward: &reward, Cadence: string(rule.Cadence)}
	}
	return rj
}

func setInt64(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}

func parseWeekdays(names []string) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		d, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, &engine.InvalidInputError{Field: "closed_days", Reason: fmt.Sprintf("unknown weekday %q", name)}
		}
		days = append(days, d)
	}
	return days, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}
