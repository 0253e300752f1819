package rules

import (
	"fmt"
	"slices"
)

// ValidateRule checks the creation-time invariants: a rule needs a name, at
// least one condition and one action to be meaningful, a recognized scope,
// and usable configuration for every condition. Zero-condition rules would
// never match and zero-action rules would never do anything, so both are
// rejected here rather than silently stored.
func ValidateRule(r *Rule) error {
	if len(r.Name) == 0 || len(r.Name) > 200 {
		return fmt.Errorf("rule name must be 1-200 characters")
	}
	if len(r.Description) > 1000 {
		return fmt.Errorf("rule description too long")
	}
	switch r.Severity {
	case SeverityLow, SeverityMedium, SeverityHigh:
	default:
		return fmt.Errorf("unknown severity: %s", r.Severity)
	}
	switch r.Mode {
	case ModeDryRun, ModeEnforce:
	default:
		return fmt.Errorf("unknown mode: %s", r.Mode)
	}
	switch r.Scope.Type {
	case ScopeAll, ScopeSelected:
	default:
		return fmt.Errorf("unknown scope type: %s", r.Scope.Type)
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("rule must have at least one condition")
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("rule must have at least one action")
	}
	for i, c := range r.Conditions {
		if !slices.Contains(ConditionTypes, c.Type) {
			return fmt.Errorf("condition %d: unknown type: %s", i, c.Type)
		}
		if c.Config == nil {
			return fmt.Errorf("condition %d: missing or invalid config", i)
		}
	}
	for i, a := range r.Actions {
		if !slices.Contains(ActionTypes, a.Type) {
			return fmt.Errorf("action %d: unknown type: %s", i, a.Type)
		}
	}
	return nil
}

// ValidateExemption checks an exemption before it is stored.
func ValidateExemption(e *Exemption) error {
	if !slices.Contains(ExemptionTypes, e.Type) {
		return fmt.Errorf("unknown exemption type: %s", e.Type)
	}
	if e.Value == "" {
		return fmt.Errorf("exemption value must not be empty")
	}
	return nil
}
