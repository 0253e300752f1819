package rules

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ConditionConfig is the tagged union of per-kind condition configuration.
// Variants are parsed and validated once, at rule creation or rule load,
// rather than re-parsed on every evaluation.
type ConditionConfig interface {
	conditionConfig()
}

// keyword_exact and keyword_contains
type KeywordConfig struct {
	Keywords []string `json:"keywords"`
}

// regex; Pattern is kept verbatim for round-tripping, the compiled form is
// what matching uses.
type RegexConfig struct {
	Pattern string `json:"pattern"`
	Flags   string `json:"flags,omitempty"`

	re *regexp.Regexp
}

// profanity
type ProfanityConfig struct {
	Words []string `json:"words"`
}

// link_block and link_allow
type LinkListConfig struct {
	Links []string `json:"links"`
}

// domain_block and domain_allow; entries are lower-cased at parse time since
// extracted domains are always lower-case.
type DomainListConfig struct {
	Domains []string `json:"domains"`
}

// excessive_caps, emoji_spam, mention_spam
type ThresholdConfig struct {
	Threshold float64 `json:"threshold"`
}

// suspicious_pattern; invalid patterns are dropped at parse time, they are
// never fatal.
type PatternListConfig struct {
	Patterns []string `json:"patterns"`

	compiled []*regexp.Regexp
}

// repeated_text and message_frequency take no configuration
type EmptyConfig struct{}

func (KeywordConfig) conditionConfig()      {}
func (*RegexConfig) conditionConfig()       {}
func (ProfanityConfig) conditionConfig()    {}
func (LinkListConfig) conditionConfig()     {}
func (DomainListConfig) conditionConfig()   {}
func (ThresholdConfig) conditionConfig()    {}
func (*PatternListConfig) conditionConfig() {}
func (EmptyConfig) conditionConfig()        {}

const (
	defaultCapsThreshold    = 0.5
	defaultEmojiThreshold   = 5
	defaultMentionThreshold = 5
)

// ParseConditionConfig turns a raw JSON config blob into the typed variant
// for the given condition kind, applying defaults and compiling regexes.
//
// An error here means the configuration is unusable (eg, an invalid regex
// pattern): callers creating rules should reject it, while callers loading
// stored rules should degrade the condition to never-matching instead.
func ParseConditionConfig(t ConditionType, raw json.RawMessage) (ConditionConfig, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	switch t {
	case ConditionKeywordExact, ConditionKeywordContains:
		var cfg KeywordConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parsing keyword config: %w", err)
		}
		return cfg, nil
	case ConditionRegex:
		var cfg RegexConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parsing regex config: %w", err)
		}
		if cfg.Flags == "" {
			cfg.Flags = "i"
		}
		re, err := compilePattern(cfg.Pattern, cfg.Flags)
		if err != nil {
			return nil, fmt.Errorf("compiling pattern: %w", err)
		}
		cfg.re = re
		return &cfg, nil
	case ConditionProfanity:
		var cfg ProfanityConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parsing profanity config: %w", err)
		}
		return cfg, nil
	case ConditionLinkBlock, ConditionLinkAllow:
		var cfg LinkListConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parsing link list config: %w", err)
		}
		return cfg, nil
	case ConditionDomainBlock, ConditionDomainAllow:
		var cfg DomainListConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parsing domain list config: %w", err)
		}
		for i, d := range cfg.Domains {
			cfg.Domains[i] = strings.ToLower(d)
		}
		return cfg, nil
	case ConditionExcessiveCaps:
		return parseThreshold(raw, defaultCapsThreshold)
	case ConditionEmojiSpam:
		return parseThreshold(raw, defaultEmojiThreshold)
	case ConditionMentionSpam:
		return parseThreshold(raw, defaultMentionThreshold)
	case ConditionSuspiciousPattern:
		var cfg PatternListConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parsing pattern list config: %w", err)
		}
		for _, p := range cfg.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				// skipped, not fatal
				continue
			}
			cfg.compiled = append(cfg.compiled, re)
		}
		return &cfg, nil
	case ConditionRepeatedText, ConditionMessageFrequency:
		return EmptyConfig{}, nil
	}
	return nil, fmt.Errorf("unknown condition type: %s", t)
}

// compilePattern maps the stored flag characters onto Go regexp flags. Only
// i, m, and s carry over; the rest have no Go equivalent and are ignored.
func compilePattern(pattern, flags string) (*regexp.Regexp, error) {
	var goFlags string
	for _, f := range []string{"i", "m", "s"} {
		if strings.Contains(flags, f) {
			goFlags += f
		}
	}
	if goFlags != "" {
		pattern = "(?" + goFlags + ")" + pattern
	}
	return regexp.Compile(pattern)
}

func parseThreshold(raw json.RawMessage, def float64) (ConditionConfig, error) {
	var cfg ThresholdConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing threshold config: %w", err)
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = def
	}
	return cfg, nil
}
