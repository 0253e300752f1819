package engine

import (
	"fmt"

	"github.com/skimmerhq/skimmer/features"
	"github.com/skimmerhq/skimmer/rules"
)

// ConditionMatch records one condition that matched within a hit rule. AND
// semantics mean every condition of the rule is present here.
type ConditionMatch struct {
	ConditionID   string              `json:"conditionId"`
	ConditionType rules.ConditionType `json:"conditionType"`
	MatchedValue  string              `json:"matchedValue,omitempty"`
}

// RuleMatch is the evaluation result for one rule.
type RuleMatch struct {
	RuleID           string           `json:"ruleId"`
	RuleName         string           `json:"ruleName"`
	ConditionMatches []ConditionMatch `json:"conditionMatches"`
}

// ContentSnapshot is the opaque audit payload persisted with an incident.
type ContentSnapshot struct {
	Content   string `json:"content"`
	ChannelID string `json:"channelId"`
}

// IncidentData is the evaluation's overall output. Constructed fresh per
// evaluated message; a nil IncidentData means "no action needed" and is
// never persisted.
type IncidentData struct {
	Source          rules.Source             `json:"source"`
	ContentID       string                   `json:"contentId"` // filled by the caller
	AuthorID        string                   `json:"authorId"`
	ContentSnapshot ContentSnapshot          `json:"contentSnapshot"`
	RuleHits        []RuleMatch              `json:"ruleHits"` // in evaluation (priority) order
	Features        features.ContentFeatures `json:"features"`

	// the full rules behind RuleHits, for action dispatch; not part of the
	// persisted payload
	MatchedRules []rules.Rule `json:"-"`
}

// IncidentStatus is the human-review state attached to a persisted incident.
type IncidentStatus string

const (
	StatusPending   IncidentStatus = "pending"
	StatusApproved  IncidentStatus = "approved"
	StatusRemoved   IncidentStatus = "removed"
	StatusRestored  IncidentStatus = "restored"
	StatusDismissed IncidentStatus = "dismissed"
)

// ErrInvalidTransition is returned for review decisions that the status
// state machine does not allow.
var ErrInvalidTransition = fmt.Errorf("invalid incident status transition")

// CanTransitionTo reports whether a review may move the incident from s to
// next. Incidents are created pending and every review decision is terminal:
// once reviewed they are never re-opened automatically.
func (s IncidentStatus) CanTransitionTo(next IncidentStatus) bool {
	if s != StatusPending {
		return false
	}
	switch next {
	case StatusApproved, StatusRemoved, StatusRestored, StatusDismissed:
		return true
	}
	return false
}
