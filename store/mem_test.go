package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skimmerhq/skimmer/rules"
)

func kwCond(t *testing.T, priority int) rules.Condition {
	t.Helper()
	cfg, err := rules.ParseConditionConfig(rules.ConditionKeywordContains, json.RawMessage(`{"keywords":["spam"]}`))
	require.NoError(t, err)
	return rules.Condition{Type: rules.ConditionKeywordContains, Priority: priority, Config: cfg}
}

func TestMemStoreFiltering(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	prodA := "prod_a"
	ms := NewMemStore()
	ms.AddRule(rules.Rule{ID: "r1", CompanyID: "biz_1", Enabled: true, Conditions: []rules.Condition{kwCond(t, 0)}})
	ms.AddRule(rules.Rule{ID: "r2", CompanyID: "biz_1", Enabled: false, Conditions: []rules.Condition{kwCond(t, 0)}})
	ms.AddRule(rules.Rule{ID: "r3", CompanyID: "biz_2", Enabled: true, Conditions: []rules.Condition{kwCond(t, 0)}})
	ms.AddRule(rules.Rule{ID: "r4", CompanyID: "biz_1", ProductID: &prodA, Enabled: true, Conditions: []rules.Condition{kwCond(t, 0)}})

	// nil product means company-wide rules only
	out, err := ms.ListEnabledRules(ctx, "biz_1", nil)
	require.NoError(err)
	require.Len(out, 1)
	assert.Equal("r1", out[0].ID)

	// product scope is an exact match, not a fallback
	out, err = ms.ListEnabledRules(ctx, "biz_1", &prodA)
	require.NoError(err)
	require.Len(out, 1)
	assert.Equal("r4", out[0].ID)

	other := "prod_b"
	out, err = ms.ListEnabledRules(ctx, "biz_1", &other)
	require.NoError(err)
	assert.Empty(out)
}

func TestMemStoreOrdering(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	ms := NewMemStore()
	ms.AddRule(rules.Rule{
		ID: "low", CompanyID: "biz_1", Enabled: true, Priority: 10,
		Conditions: []rules.Condition{kwCond(t, 1), kwCond(t, 5)},
		Actions: []rules.Action{
			{Type: rules.ActionAutoDelete, Priority: 2},
			{Type: rules.ActionFlagReview, Priority: 1},
		},
	})
	ms.AddRule(rules.Rule{ID: "high", CompanyID: "biz_1", Enabled: true, Priority: 90, Conditions: []rules.Condition{kwCond(t, 0)}})

	out, err := ms.ListEnabledRules(ctx, "biz_1", nil)
	require.NoError(err)
	require.Len(out, 2)
	assert.Equal("high", out[0].ID)
	assert.Equal("low", out[1].ID)

	// conditions descend, actions ascend
	assert.Equal(5, out[1].Conditions[0].Priority)
	assert.Equal(1, out[1].Conditions[1].Priority)
	assert.Equal(rules.ActionFlagReview, out[1].Actions[0].Type)
	assert.Equal(rules.ActionAutoDelete, out[1].Actions[1].Type)
}

func TestMemStoreExemptions(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	ms := NewMemStore()
	ms.AddExemption(rules.Exemption{ID: "e1", CompanyID: "biz_1", Type: rules.ExemptionUser, Value: "user_1"})
	ms.AddExemption(rules.Exemption{ID: "e2", CompanyID: "biz_2", Type: rules.ExemptionUser, Value: "user_2"})

	out, err := ms.ListExemptions(ctx, "biz_1")
	require.NoError(err)
	require.Len(out, 1)
	assert.Equal("e1", out[0].ID)
}
