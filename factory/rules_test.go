package factory_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/acamp/club-engine/engine"
	"github.com/acamp/club-engine/factory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRules_EmptyKeepsDefaults(t *testing.T) {
	opts, err := factory.NewRulesFactory().ParseRules(`{}`)
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultRewardRules(), opts.Rules)
	assert.Equal(t, []time.Weekday{time.Sunday}, opts.ClosedDays)
}

func TestParseRules_Overlay(t *testing.T) {
	// GIVEN: A document changing the session reward, one goal and closed days
	// WHEN: Parsed
	// THEN: Only those fields change

	opts, err := factory.NewRulesFactory().ParseRules(`{
		"session_reward": 25,
		"closed_days": ["Saturday", "sunday"],
		"goals": {"attendance_goal": {"reward": 80}}
	}`)
	require.NoError(t, err)

	assert.Equal(t, int64(25), opts.Rules.SessionReward)
	assert.Equal(t, int64(5), opts.Rules.CheckInReward)
	assert.Equal(t, []time.Weekday{time.Saturday, time.Sunday}, opts.ClosedDays)

	att := opts.Rules.Rule(engine.GoalAttendance)
	assert.Equal(t, int64(80), att.Reward)
	assert.Equal(t, engine.CadenceWeekly, att.Cadence)
}

func TestParseRules_Rejects(t *testing.T) {
	f := factory.NewRulesFactory()

	cases := map[string]string{
		"unknown goal":    `{"goals": {"streak_goal": {"reward": 1}}}`,
		"bad cadence":     `{"goals": {"score_goal": {"cadence": "monthly"}}}`,
		"negative reward": `{"check_in_reward": -1}`,
		"bad weekday":     `{"closed_days": ["funday"]}`,
		"unknown field":   `{"bonus": 3}`,
		"malformed":       `{`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.ParseRules(doc)
			assert.Error(t, err)
		})
	}
}

func TestToJSON_RoundTrip(t *testing.T) {
	f := factory.NewRulesFactory()
	opts, err := f.ParseRules(`{"team_plan_reward": 7, "closed_days": []}`)
	require.NoError(t, err)
	assert.Empty(t, opts.ClosedDays)

	again, err := f.FromJSON(f.ToJSON(opts))
	require.NoError(t, err)
	assert.Equal(t, opts.Rules, again.Rules)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"history_cap": 20}`), 0o600))

	opts, err := factory.NewRulesFactory().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 20, opts.Rules.HistoryCap)

	_, err = factory.NewRulesFactory().LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
