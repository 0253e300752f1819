package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/skimmerhq/skimmer/rules"
)

// ErrNotSupported is returned by an Enforcer for operations the platform
// cannot perform; the recorder maps it to a not_supported action status
// rather than an error.
var ErrNotSupported = errors.New("enforcement action not supported")

// Enforcer is the component that actually mutates platform state. The
// engine only reports which actions were attempted and how they went.
type Enforcer interface {
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	SendDM(ctx context.Context, userID, message string) error
	TimeoutUser(ctx context.Context, userID string, durationSecs int) error
	MuteUser(ctx context.Context, userID string, durationSecs int) error
	NotifyChannel(ctx context.Context, channelID, message string) error
	HideContent(ctx context.Context, channelID, contentID string) error
}

// NoopEnforcer reports every operation as unsupported. Used when no
// platform API credentials are configured, and in tests.
type NoopEnforcer struct{}

var _ Enforcer = NoopEnforcer{}

func (NoopEnforcer) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return ErrNotSupported
}
func (NoopEnforcer) SendDM(ctx context.Context, userID, message string) error {
	return ErrNotSupported
}
func (NoopEnforcer) TimeoutUser(ctx context.Context, userID string, durationSecs int) error {
	return ErrNotSupported
}
func (NoopEnforcer) MuteUser(ctx context.Context, userID string, durationSecs int) error {
	return ErrNotSupported
}
func (NoopEnforcer) NotifyChannel(ctx context.Context, channelID, message string) error {
	return ErrNotSupported
}
func (NoopEnforcer) HideContent(ctx context.Context, channelID, contentID string) error {
	return ErrNotSupported
}

type ActionStatus string

const (
	ActionSuccess      ActionStatus = "success"
	ActionError        ActionStatus = "error"
	ActionNotSupported ActionStatus = "not_supported"
)

// ActionResult records one action attempt for the incident's action log.
type ActionResult struct {
	Type   rules.ActionType `json:"type"`
	Status ActionStatus     `json:"status"`
	RuleID string           `json:"ruleId"`
	Error  string           `json:"error,omitempty"`
}

// ActionTarget carries the platform identifiers enforcement needs.
type ActionTarget struct {
	ChannelID  string
	ContentID  string
	AuthorID   string
	AuthorName string
}

const defaultTimeoutSecs = 3600

// ApplyActions walks every matched rule's actions in ascending priority
// order and attempts enforcement through the Enforcer.
//
// Enforcement-capable actions only fire when the rule's mode is enforce;
// dry-run rules produce review bookkeeping and nothing else. Failures are
// isolated per action: one failing action never prevents the remaining
// actions or rules from being attempted, and never fails incident creation.
func (eng *Engine) ApplyActions(ctx context.Context, incident *IncidentData, enf Enforcer, target ActionTarget) []ActionResult {
	results := []ActionResult{}
	for _, rule := range incident.MatchedRules {
		for _, action := range rule.Actions {
			res := eng.applyAction(ctx, rule, action, enf, target)
			if res == nil {
				continue
			}
			actionAttemptCount.WithLabelValues(string(action.Type), string(res.Status)).Inc()
			results = append(results, *res)
		}
	}
	return results
}

// applyAction attempts a single action; a nil result means the action was
// skipped entirely (enforcement-capable action on a dry-run rule).
func (eng *Engine) applyAction(ctx context.Context, rule rules.Rule, action rules.Action, enf Enforcer, target ActionTarget) (res *ActionResult) {
	// isolate panics in the enforcer the same way rule execution does
	defer func() {
		if r := recover(); r != nil {
			eng.logger.Error("enforcement panic", "action", action.Type, "ruleID", rule.ID, "err", r)
			res = &ActionResult{
				Type:   action.Type,
				Status: ActionError,
				RuleID: rule.ID,
				Error:  fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	if action.Type == rules.ActionFlagReview {
		// flagging for review is what incident creation itself does
		return &ActionResult{Type: action.Type, Status: ActionSuccess, RuleID: rule.ID}
	}
	if rule.Mode != rules.ModeEnforce {
		return nil
	}

	var err error
	switch action.Type {
	case rules.ActionAutoDelete:
		err = enf.DeleteMessage(ctx, target.ChannelID, target.ContentID)
	case rules.ActionAutoHide:
		err = enf.HideContent(ctx, target.ChannelID, target.ContentID)
	case rules.ActionWarnUser:
		msg := action.Config.Message
		if msg == "" {
			msg = fmt.Sprintf("Your message violated rule: %s", rule.Name)
		}
		err = enf.SendDM(ctx, target.AuthorID, msg)
	case rules.ActionTimeoutUser:
		secs := action.Config.Duration
		if secs == 0 {
			secs = defaultTimeoutSecs
		}
		err = enf.TimeoutUser(ctx, target.AuthorID, secs)
	case rules.ActionMuteUser:
		secs := action.Config.Duration
		if secs == 0 {
			secs = defaultTimeoutSecs
		}
		err = enf.MuteUser(ctx, target.AuthorID, secs)
	case rules.ActionEscalateAdmin:
		if action.Config.ChannelID == "" {
			return nil
		}
		who := target.AuthorName
		if who == "" {
			who = target.AuthorID
		}
		err = enf.NotifyChannel(ctx, action.Config.ChannelID,
			fmt.Sprintf("Moderation alert: rule %q triggered by %s", rule.Name, who))
	default:
		eng.logger.Warn("unknown action type", "type", action.Type, "ruleID", rule.ID)
		return nil
	}

	switch {
	case err == nil:
		return &ActionResult{Type: action.Type, Status: ActionSuccess, RuleID: rule.ID}
	case errors.Is(err, ErrNotSupported):
		return &ActionResult{Type: action.Type, Status: ActionNotSupported, RuleID: rule.ID, Error: err.Error()}
	default:
		eng.logger.Warn("enforcement action failed", "action", action.Type, "ruleID", rule.ID, "err", err)
		return &ActionResult{Type: action.Type, Status: ActionError, RuleID: rule.ID, Error: err.Error()}
	}
}
