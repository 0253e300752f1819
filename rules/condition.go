package rules

import (
	"slices"
	"strings"

	"github.com/skimmerhq/skimmer/features"
)

// ConditionResult reports whether a single condition matched, and which
// configured value triggered it when that is meaningful.
type ConditionResult struct {
	Matches      bool
	MatchedValue string
}

var noMatch = ConditionResult{}

// CheckCondition decides whether one condition matches the extracted
// features. Pure and total: unknown condition kinds and unusable
// configuration return no-match rather than an error, so unrecognized rule
// data can never crash an evaluation.
func CheckCondition(cond Condition, feats features.ContentFeatures) ConditionResult {
	switch cond.Type {
	case ConditionKeywordExact:
		cfg, ok := cond.Config.(KeywordConfig)
		if !ok {
			return noMatch
		}
		tokens := strings.Fields(feats.NormalizedText)
		for _, kw := range cfg.Keywords {
			lower := strings.ToLower(kw)
			if feats.NormalizedText == lower || slices.Contains(tokens, lower) {
				return ConditionResult{Matches: true, MatchedValue: kw}
			}
		}
		return noMatch

	case ConditionKeywordContains:
		cfg, ok := cond.Config.(KeywordConfig)
		if !ok {
			return noMatch
		}
		return containsAny(feats.NormalizedText, cfg.Keywords)

	case ConditionRegex:
		cfg, ok := cond.Config.(*RegexConfig)
		if !ok || cfg.re == nil {
			return noMatch
		}
		if loc := cfg.re.FindStringIndex(feats.Text); loc != nil {
			return ConditionResult{Matches: true, MatchedValue: feats.Text[loc[0]:loc[1]]}
		}
		return noMatch

	case ConditionProfanity:
		cfg, ok := cond.Config.(ProfanityConfig)
		if !ok {
			return noMatch
		}
		return containsAny(feats.NormalizedText, cfg.Words)

	case ConditionLinkBlock:
		cfg, ok := cond.Config.(LinkListConfig)
		if !ok {
			return noMatch
		}
		for _, link := range feats.Links {
			if slices.Contains(cfg.Links, link) {
				return ConditionResult{Matches: true, MatchedValue: link}
			}
		}
		return noMatch

	case ConditionLinkAllow:
		cfg, ok := cond.Config.(LinkListConfig)
		if !ok || len(feats.Links) == 0 {
			return noMatch
		}
		for _, link := range feats.Links {
			if !slices.Contains(cfg.Links, link) {
				return ConditionResult{Matches: true}
			}
		}
		return noMatch

	case ConditionDomainBlock:
		cfg, ok := cond.Config.(DomainListConfig)
		if !ok {
			return noMatch
		}
		for _, domain := range feats.Domains {
			if slices.Contains(cfg.Domains, domain) {
				return ConditionResult{Matches: true, MatchedValue: domain}
			}
		}
		return noMatch

	case ConditionDomainAllow:
		cfg, ok := cond.Config.(DomainListConfig)
		if !ok || len(feats.Domains) == 0 {
			return noMatch
		}
		for _, domain := range feats.Domains {
			if !domainAllowed(domain, cfg.Domains) {
				return ConditionResult{Matches: true}
			}
		}
		return noMatch

	case ConditionRepeatedText:
		return ConditionResult{Matches: feats.RepeatedText}

	case ConditionExcessiveCaps:
		cfg, ok := cond.Config.(ThresholdConfig)
		if !ok {
			return noMatch
		}
		return ConditionResult{Matches: feats.CapsRatio > cfg.Threshold}

	case ConditionEmojiSpam:
		cfg, ok := cond.Config.(ThresholdConfig)
		if !ok {
			return noMatch
		}
		return ConditionResult{Matches: float64(feats.EmojiCount) > cfg.Threshold}

	case ConditionMentionSpam:
		cfg, ok := cond.Config.(ThresholdConfig)
		if !ok {
			return noMatch
		}
		return ConditionResult{Matches: float64(len(feats.Mentions)) > cfg.Threshold}

	case ConditionMessageFrequency:
		// needs message-history context a pure per-message check cannot
		// have; a stateful collaborator (countstore) supplies that signal
		// outside this layer
		return noMatch

	case ConditionSuspiciousPattern:
		cfg, ok := cond.Config.(*PatternListConfig)
		if !ok {
			return noMatch
		}
		for _, re := range cfg.compiled {
			if re.MatchString(feats.Text) {
				return ConditionResult{Matches: true}
			}
		}
		return noMatch
	}
	return noMatch
}

func containsAny(haystack string, needles []string) ConditionResult {
	for _, n := range needles {
		if strings.Contains(haystack, strings.ToLower(n)) {
			return ConditionResult{Matches: true, MatchedValue: n}
		}
	}
	return noMatch
}

// allowed means an exact match or being a subdomain of an allowed entry
func domainAllowed(domain string, allowed []string) bool {
	for _, a := range allowed {
		if domain == a || strings.HasSuffix(domain, "."+a) {
			return true
		}
	}
	return false
}
