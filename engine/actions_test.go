package engine_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skimmerhq/skimmer/engine"
	"github.com/skimmerhq/skimmer/rules"
	"github.com/skimmerhq/skimmer/store"
)

// recordingEnforcer captures every call and can be told to fail specific
// operations.
type recordingEnforcer struct {
	calls      []string
	failDelete bool
}

func (e *recordingEnforcer) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	e.calls = append(e.calls, "delete:"+channelID+":"+messageID)
	if e.failDelete {
		return fmt.Errorf("delete failed")
	}
	return nil
}
func (e *recordingEnforcer) SendDM(ctx context.Context, userID, message string) error {
	e.calls = append(e.calls, "dm:"+userID+":"+message)
	return nil
}
func (e *recordingEnforcer) TimeoutUser(ctx context.Context, userID string, durationSecs int) error {
	e.calls = append(e.calls, fmt.Sprintf("timeout:%s:%d", userID, durationSecs))
	return nil
}
func (e *recordingEnforcer) MuteUser(ctx context.Context, userID string, durationSecs int) error {
	e.calls = append(e.calls, fmt.Sprintf("mute:%s:%d", userID, durationSecs))
	return nil
}
func (e *recordingEnforcer) NotifyChannel(ctx context.Context, channelID, message string) error {
	e.calls = append(e.calls, "notify:"+channelID)
	return nil
}
func (e *recordingEnforcer) HideContent(ctx context.Context, channelID, contentID string) error {
	e.calls = append(e.calls, "hide:"+channelID+":"+contentID)
	return nil
}

var testTarget = engine.ActionTarget{
	ChannelID:  "c1",
	ContentID:  "msg_1",
	AuthorID:   "user_1",
	AuthorName: "alice",
}

func incidentFor(rs ...rules.Rule) *engine.IncidentData {
	return &engine.IncidentData{MatchedRules: rs}
}

func actionRule(mode rules.Mode, actions ...rules.Action) rules.Rule {
	return rules.Rule{
		ID:      "rule_1",
		Name:    "No Spam",
		Mode:    mode,
		Actions: actions,
	}
}

func TestApplyActionsDryRunOnlyFlags(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	eng := engine.NewEngine(store.NewMemStore(), nil)
	enf := &recordingEnforcer{}

	r := actionRule(rules.ModeDryRun,
		rules.Action{Type: rules.ActionFlagReview},
		rules.Action{Type: rules.ActionAutoDelete},
		rules.Action{Type: rules.ActionTimeoutUser},
	)
	results := eng.ApplyActions(context.Background(), incidentFor(r), enf, testTarget)

	// only the review flag goes through; nothing touches the platform
	require.Len(results, 1)
	assert.Equal(rules.ActionFlagReview, results[0].Type)
	assert.Equal(engine.ActionSuccess, results[0].Status)
	assert.Empty(enf.calls)
}

func TestApplyActionsEnforce(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	eng := engine.NewEngine(store.NewMemStore(), nil)
	enf := &recordingEnforcer{}

	r := actionRule(rules.ModeEnforce,
		rules.Action{Type: rules.ActionAutoDelete},
		rules.Action{Type: rules.ActionWarnUser, Config: rules.ActionConfig{Message: "be nice"}},
		rules.Action{Type: rules.ActionTimeoutUser, Config: rules.ActionConfig{Duration: 600}},
		rules.Action{Type: rules.ActionMuteUser},
	)
	results := eng.ApplyActions(context.Background(), incidentFor(r), enf, testTarget)

	require.Len(results, 4)
	for _, res := range results {
		assert.Equal(engine.ActionSuccess, res.Status)
		assert.Equal("rule_1", res.RuleID)
	}
	assert.Equal([]string{
		"delete:c1:msg_1",
		"dm:user_1:be nice",
		"timeout:user_1:600",
		// unset duration falls back to an hour
		"mute:user_1:3600",
	}, enf.calls)
}

func TestApplyActionsFailureIsolation(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	eng := engine.NewEngine(store.NewMemStore(), nil)
	enf := &recordingEnforcer{failDelete: true}

	r := actionRule(rules.ModeEnforce,
		rules.Action{Type: rules.ActionAutoDelete},
		rules.Action{Type: rules.ActionWarnUser},
	)
	results := eng.ApplyActions(context.Background(), incidentFor(r), enf, testTarget)

	require.Len(results, 2)
	assert.Equal(engine.ActionError, results[0].Status)
	assert.Equal("delete failed", results[0].Error)
	// the failure does not stop the next action
	assert.Equal(engine.ActionSuccess, results[1].Status)
}

func TestApplyActionsNotSupported(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	eng := engine.NewEngine(store.NewMemStore(), nil)

	r := actionRule(rules.ModeEnforce, rules.Action{Type: rules.ActionAutoHide})
	results := eng.ApplyActions(context.Background(), incidentFor(r), engine.NoopEnforcer{}, testTarget)

	require.Len(results, 1)
	assert.Equal(engine.ActionNotSupported, results[0].Status)
}

func TestApplyActionsEscalateAdmin(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	eng := engine.NewEngine(store.NewMemStore(), nil)
	enf := &recordingEnforcer{}

	// without a destination channel the escalation is skipped entirely
	r := actionRule(rules.ModeEnforce, rules.Action{Type: rules.ActionEscalateAdmin})
	results := eng.ApplyActions(context.Background(), incidentFor(r), enf, testTarget)
	assert.Empty(results)
	assert.Empty(enf.calls)

	r = actionRule(rules.ModeEnforce,
		rules.Action{Type: rules.ActionEscalateAdmin, Config: rules.ActionConfig{ChannelID: "mod-alerts"}})
	results = eng.ApplyActions(context.Background(), incidentFor(r), enf, testTarget)
	require.Len(results, 1)
	assert.Equal(engine.ActionSuccess, results[0].Status)
	assert.Equal([]string{"notify:mod-alerts"}, enf.calls)
}

func TestApplyActionsMultipleRules(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	eng := engine.NewEngine(store.NewMemStore(), nil)
	enf := &recordingEnforcer{}

	r1 := actionRule(rules.ModeEnforce, rules.Action{Type: rules.ActionAutoDelete})
	r1.ID = "rule_a"
	r2 := actionRule(rules.ModeDryRun, rules.Action{Type: rules.ActionFlagReview})
	r2.ID = "rule_b"

	results := eng.ApplyActions(context.Background(), incidentFor(r1, r2), enf, testTarget)
	require.Len(results, 2)
	assert.Equal("rule_a", results[0].RuleID)
	assert.Equal("rule_b", results[1].RuleID)
}
