// Package rules defines the moderation policy data model: rules, their
// typed conditions and actions, scopes, and author exemptions, plus the
// per-condition matching logic.
package rules

import "slices"

type Source string

const (
	SourceChat  Source = "chat"
	SourceForum Source = "forum"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Mode gates whether enforcement-capable actions actually fire. Dry-run
// rules only ever produce review bookkeeping.
type Mode string

const (
	ModeDryRun  Mode = "dry_run"
	ModeEnforce Mode = "enforce"
)

type ConditionType string

const (
	ConditionKeywordExact      ConditionType = "keyword_exact"
	ConditionKeywordContains   ConditionType = "keyword_contains"
	ConditionRegex             ConditionType = "regex"
	ConditionProfanity         ConditionType = "profanity"
	ConditionLinkBlock         ConditionType = "link_block"
	ConditionLinkAllow         ConditionType = "link_allow"
	ConditionDomainBlock       ConditionType = "domain_block"
	ConditionDomainAllow       ConditionType = "domain_allow"
	ConditionRepeatedText      ConditionType = "repeated_text"
	ConditionExcessiveCaps     ConditionType = "excessive_caps"
	ConditionEmojiSpam         ConditionType = "emoji_spam"
	ConditionMentionSpam       ConditionType = "mention_spam"
	ConditionMessageFrequency  ConditionType = "message_frequency"
	ConditionSuspiciousPattern ConditionType = "suspicious_pattern"
)

// ConditionTypes lists every recognized condition kind, in the order the
// dashboard presents them.
var ConditionTypes = []ConditionType{
	ConditionKeywordExact,
	ConditionKeywordContains,
	ConditionRegex,
	ConditionProfanity,
	ConditionLinkAllow,
	ConditionLinkBlock,
	ConditionDomainAllow,
	ConditionDomainBlock,
	ConditionRepeatedText,
	ConditionExcessiveCaps,
	ConditionEmojiSpam,
	ConditionMentionSpam,
	ConditionMessageFrequency,
	ConditionSuspiciousPattern,
}

type ActionType string

const (
	ActionFlagReview    ActionType = "flag_review"
	ActionAutoHide      ActionType = "auto_hide"
	ActionAutoDelete    ActionType = "auto_delete"
	ActionWarnUser      ActionType = "warn_user"
	ActionTimeoutUser   ActionType = "timeout_user"
	ActionMuteUser      ActionType = "mute_user"
	ActionEscalateAdmin ActionType = "escalate_admin"
)

var ActionTypes = []ActionType{
	ActionFlagReview,
	ActionAutoHide,
	ActionAutoDelete,
	ActionWarnUser,
	ActionTimeoutUser,
	ActionMuteUser,
	ActionEscalateAdmin,
}

type ScopeType string

const (
	ScopeAll      ScopeType = "all"
	ScopeSelected ScopeType = "selected"
)

// Scope restricts a rule to a set of channels or forums. Exclusions always
// win: a channel listed there is skipped even when also listed as included.
type Scope struct {
	Type       ScopeType `json:"type"`
	Channels   []string  `json:"channels"`
	Forums     []string  `json:"forums"`
	Exclusions []string  `json:"exclusions"`
}

// Includes reports whether a message in the given channel falls under this
// scope.
func (s Scope) Includes(source Source, channelID string) bool {
	if slices.Contains(s.Exclusions, channelID) {
		return false
	}
	if s.Type == ScopeSelected {
		switch source {
		case SourceChat:
			return slices.Contains(s.Channels, channelID)
		case SourceForum:
			return slices.Contains(s.Forums, channelID)
		default:
			return false
		}
	}
	return true
}

// Rule is a named, prioritized policy unit: a scope, a list of AND-combined
// conditions, and a list of candidate actions.
type Rule struct {
	ID          string
	CompanyID   string
	ProductID   *string // nil applies company-wide
	Name        string
	Description string
	Enabled     bool
	Priority    int // higher evaluates first
	Severity    Severity
	Mode        Mode
	StopOnMatch bool
	Scope       Scope
	Conditions  []Condition // sorted priority-desc by the store
	Actions     []Action    // sorted priority-asc by the store
}

// Condition is a single typed predicate over extracted content features.
// Config is nil when the stored configuration could not be parsed; such a
// condition never matches.
type Condition struct {
	ID       string
	Type     ConditionType
	Priority int
	Config   ConditionConfig
}

// Action is a recommendation attached to a rule. Whether it is actually
// enforced depends on the rule's mode and the enforcement executor.
type Action struct {
	ID       string
	Type     ActionType
	Priority int
	Config   ActionConfig
}

// ActionConfig carries the optional knobs actions understand. Only the
// fields relevant to the action's type are consulted.
type ActionConfig struct {
	// custom warning text for warn_user
	Message string `json:"message,omitempty"`
	// timeout/mute duration in seconds
	Duration int `json:"duration,omitempty"`
	// destination channel for escalate_admin
	ChannelID string `json:"channel_id,omitempty"`
}

type ExemptionType string

const (
	ExemptionUser        ExemptionType = "user"
	ExemptionRole        ExemptionType = "role"
	ExemptionTrustedUser ExemptionType = "trusted_user"
	ExemptionStaff       ExemptionType = "staff"
	ExemptionMod         ExemptionType = "mod"
)

var ExemptionTypes = []ExemptionType{
	ExemptionUser,
	ExemptionRole,
	ExemptionTrustedUser,
	ExemptionStaff,
	ExemptionMod,
}

// Exemption makes an author immune to all rule evaluation for a company.
type Exemption struct {
	ID        string
	CompanyID string
	Type      ExemptionType
	Value     string
}

// AppliesTo reports whether this exemption covers the given author.
//
// The trusted_user, staff, and mod kinds are recognized but never match
// here: resolving them needs an external reputation lookup which is an
// explicit extension point, not part of the core.
func (e Exemption) AppliesTo(authorID string, authorRoles []string) bool {
	switch e.Type {
	case ExemptionUser:
		return e.Value == authorID
	case ExemptionRole:
		return slices.Contains(authorRoles, e.Value)
	}
	return false
}
