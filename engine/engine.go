// Package engine evaluates normalized content events against a company's
// moderation rules and records what should happen next.
//
// Evaluation is a synchronous, side-effect-free computation per event: the
// only I/O is the rule and exemption fetch delegated to the RuleSource, and
// many evaluations may run concurrently as long as that source supports
// concurrent reads.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skimmerhq/skimmer/features"
	"github.com/skimmerhq/skimmer/rules"
)

// RuleSource is the read contract the engine requires of the rule store (or
// of a snapshot cache wrapping it).
//
// ListEnabledRules returns rules sorted descending by priority, with each
// rule's conditions sorted descending and actions ascending by priority.
type RuleSource interface {
	ListEnabledRules(ctx context.Context, companyID string, productID *string) ([]rules.Rule, error)
	ListExemptions(ctx context.Context, companyID string) ([]rules.Exemption, error)
}

// Engine is the runtime for rule evaluation. Construct with NewEngine; the
// zero value is not usable.
type Engine struct {
	logger *slog.Logger
	source RuleSource
}

func NewEngine(source RuleSource, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger: logger,
		source: source,
	}
}

// EvalRequest is a single normalized message or post event, regardless of
// whether it arrived by webhook or polling.
type EvalRequest struct {
	CompanyID   string
	ProductID   *string
	Source      rules.Source
	ChannelID   string
	Content     string
	AuthorID    string
	AuthorRoles []string
}

// Evaluate runs the full pipeline for one event: exemption short-circuit,
// feature extraction, then every candidate rule in priority order with AND
// condition semantics and the global stop-on-match cutoff.
//
// A nil result with a nil error means no rule matched and nothing needs to
// happen. The only hard errors are rule or exemption fetch failures: without
// data no decision can be made safely, so those fail closed. Malformed rule
// configuration never aborts evaluation; the affected condition simply does
// not match.
func (eng *Engine) Evaluate(ctx context.Context, req EvalRequest) (incident *IncidentData, err error) {
	// as with an HTTP server, recover panics from rule execution
	defer func() {
		if r := recover(); r != nil {
			eng.logger.Error("rule evaluation panic", "err", r, "companyID", req.CompanyID, "authorID", req.AuthorID)
			incident = nil
			err = fmt.Errorf("rule evaluation panic: %v", r)
		}
	}()

	exempt, err := eng.IsExempt(ctx, req.CompanyID, req.AuthorID, req.AuthorRoles)
	if err != nil {
		return nil, err
	}
	if exempt {
		eng.logger.Debug("author exempt, skipping evaluation", "companyID", req.CompanyID, "authorID", req.AuthorID)
		return nil, nil
	}

	// computed once, reused for every rule and condition in this call
	feats := features.Extract(req.Content)

	candidates, err := eng.source.ListEnabledRules(ctx, req.CompanyID, req.ProductID)
	if err != nil {
		eventErrorCount.WithLabelValues(string(req.Source)).Inc()
		return nil, fmt.Errorf("listing enabled rules: %w", err)
	}

	var ruleHits []RuleMatch
	var matchedRules []rules.Rule
	for _, rule := range candidates {
		if !rule.Scope.Includes(req.Source, req.ChannelID) {
			continue
		}

		// AND semantics: every condition must match, stop at the first
		// failure. A failing condition leaves no partial match record.
		var condMatches []ConditionMatch
		allMatch := true
		for _, cond := range rule.Conditions {
			res := rules.CheckCondition(cond, feats)
			if !res.Matches {
				allMatch = false
				break
			}
			condMatches = append(condMatches, ConditionMatch{
				ConditionID:   cond.ID,
				ConditionType: cond.Type,
				MatchedValue:  res.MatchedValue,
			})
		}
		if !allMatch || len(condMatches) == 0 {
			continue
		}

		ruleHits = append(ruleHits, RuleMatch{
			RuleID:           rule.ID,
			RuleName:         rule.Name,
			ConditionMatches: condMatches,
		})
		matchedRules = append(matchedRules, rule)
		ruleHitCount.WithLabelValues(string(rule.Severity)).Inc()

		// global cutoff: first decisive rule wins, no lower-priority rule
		// is evaluated at all
		if rule.StopOnMatch {
			break
		}
	}

	eventProcessCount.WithLabelValues(string(req.Source)).Inc()

	if len(ruleHits) == 0 {
		return nil, nil
	}

	return &IncidentData{
		Source:   req.Source,
		AuthorID: req.AuthorID,
		ContentSnapshot: ContentSnapshot{
			Content:   req.Content,
			ChannelID: req.ChannelID,
		},
		RuleHits:     ruleHits,
		Features:     feats,
		MatchedRules: matchedRules,
	}, nil
}

// IsExempt reports whether the author is wholly exempt from moderation for
// this company. Runs before any feature extraction or rule evaluation.
func (eng *Engine) IsExempt(ctx context.Context, companyID, authorID string, authorRoles []string) (bool, error) {
	exemptions, err := eng.source.ListExemptions(ctx, companyID)
	if err != nil {
		return false, fmt.Errorf("listing exemptions: %w", err)
	}
	for _, e := range exemptions {
		if e.AppliesTo(authorID, authorRoles) {
			return true, nil
		}
	}
	return false, nil
}

// TestRule evaluates every condition of a single rule against sample text,
// without scope filtering, short-circuiting, or incident creation. This
// backs the dashboard's "test this rule" interface and exercises exactly the
// same extraction and matching code as production evaluation.
func (eng *Engine) TestRule(rule *rules.Rule, sample string) []ConditionTestResult {
	feats := features.Extract(sample)
	out := make([]ConditionTestResult, 0, len(rule.Conditions))
	for _, cond := range rule.Conditions {
		res := rules.CheckCondition(cond, feats)
		out = append(out, ConditionTestResult{
			ConditionID:   cond.ID,
			ConditionType: cond.Type,
			Matches:       res.Matches,
			MatchedValue:  res.MatchedValue,
		})
	}
	return out
}

// ConditionTestResult is one row of a dry-run rule test.
type ConditionTestResult struct {
	ConditionID   string              `json:"conditionId"`
	ConditionType rules.ConditionType `json:"conditionType"`
	Matches       bool                `json:"matches"`
	MatchedValue  string              `json:"matchedValue,omitempty"`
}
