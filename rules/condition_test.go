package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skimmerhq/skimmer/features"
)

func mkCond(t *testing.T, typ ConditionType, raw string) Condition {
	t.Helper()
	cfg, err := ParseConditionConfig(typ, json.RawMessage(raw))
	require.NoError(t, err)
	return Condition{Type: typ, Config: cfg}
}

func check(t *testing.T, cond Condition, text string) ConditionResult {
	t.Helper()
	return CheckCondition(cond, features.Extract(text))
}

func TestKeywordExact(t *testing.T) {
	assert := assert.New(t)
	cond := mkCond(t, ConditionKeywordExact, `{"keywords":["spam"]}`)

	res := check(t, cond, "this is spam here")
	assert.True(res.Matches)
	assert.Equal("spam", res.MatchedValue)

	// whole tokens only, never substrings
	assert.False(check(t, cond, "spammer alert").Matches)
	// whole-text match counts too
	assert.True(check(t, cond, "SPAM").Matches)
	assert.False(check(t, cond, "").Matches)
}

func TestKeywordContains(t *testing.T) {
	assert := assert.New(t)
	cond := mkCond(t, ConditionKeywordContains, `{"keywords":["badword"]}`)

	res := check(t, cond, "such a BadWorded message")
	assert.True(res.Matches)
	assert.Equal("badword", res.MatchedValue)
	assert.False(check(t, cond, "all clean").Matches)
}

func TestProfanity(t *testing.T) {
	assert := assert.New(t)
	cond := mkCond(t, ConditionProfanity, `{"words":["heck"]}`)

	assert.True(check(t, cond, "what the heck").Matches)
	assert.True(check(t, cond, "HECKING unbelievable").Matches)
	assert.False(check(t, cond, "fine thanks").Matches)
}

func TestRegexCondition(t *testing.T) {
	assert := assert.New(t)

	// default flags are case-insensitive
	cond := mkCond(t, ConditionRegex, `{"pattern":"h[ae]llo"}`)
	res := check(t, cond, "say Hallo there")
	assert.True(res.Matches)
	assert.Equal("Hallo", res.MatchedValue)
	assert.False(check(t, cond, "goodbye").Matches)

	// explicit empty-ish flags still work
	cond = mkCond(t, ConditionRegex, `{"pattern":"^\\d{4}$","flags":"m"}`)
	assert.True(check(t, cond, "1234").Matches)
}

func TestRegexInvalidPatternRejectedAtParse(t *testing.T) {
	assert := assert.New(t)

	_, err := ParseConditionConfig(ConditionRegex, json.RawMessage(`{"pattern":"[unclosed"}`))
	assert.Error(err)

	// a condition whose stored config could not be parsed never matches
	cond := Condition{Type: ConditionRegex, Config: nil}
	assert.False(check(t, cond, "anything").Matches)
}

func TestLinkBlockAndAllow(t *testing.T) {
	assert := assert.New(t)

	block := mkCond(t, ConditionLinkBlock, `{"links":["https://scam.example/win"]}`)
	res := check(t, block, "go to https://scam.example/win now")
	assert.True(res.Matches)
	assert.Equal("https://scam.example/win", res.MatchedValue)
	assert.False(check(t, block, "go to https://scam.example/other").Matches)

	allow := mkCond(t, ConditionLinkAllow, `{"links":["https://ok.example/"]}`)
	// no links at all is fine
	assert.False(check(t, allow, "no links here").Matches)
	assert.False(check(t, allow, "see https://ok.example/").Matches)
	// any link outside the allow list is a violation
	assert.True(check(t, allow, "see https://ok.example/ and https://bad.example/").Matches)
}

func TestDomainBlockAndAllow(t *testing.T) {
	assert := assert.New(t)

	block := mkCond(t, ConditionDomainBlock, `{"domains":["Spam.com"]}`)
	// config entries are lower-cased at parse, extracted domains already are
	res := check(t, block, "visit https://SPAM.com/offer")
	assert.True(res.Matches)
	assert.Equal("spam.com", res.MatchedValue)
	assert.False(check(t, block, "visit https://fine.com/").Matches)

	allow := mkCond(t, ConditionDomainAllow, `{"domains":["whop.com"]}`)
	assert.False(check(t, allow, "no links").Matches)
	assert.False(check(t, allow, "https://whop.com/c").Matches)
	// subdomains of an allowed domain are allowed
	assert.False(check(t, allow, "https://api.whop.com/c").Matches)
	// suffix coincidence is not a subdomain
	assert.True(check(t, allow, "https://notwhop.com/c").Matches)
	assert.True(check(t, allow, "https://elsewhere.net/").Matches)
}

func TestRepeatedText(t *testing.T) {
	assert := assert.New(t)
	cond := mkCond(t, ConditionRepeatedText, `{}`)

	assert.True(check(t, cond, "win win win today").Matches)
	assert.False(check(t, cond, "win win today").Matches)
}

func TestThresholdConditions(t *testing.T) {
	assert := assert.New(t)

	caps := mkCond(t, ConditionExcessiveCaps, `{"threshold":0.5}`)
	assert.True(check(t, caps, "ABCDE").Matches)
	// comparison is strict: exactly at threshold does not match
	assert.False(check(t, caps, "AbCd").Matches)

	emoji := mkCond(t, ConditionEmojiSpam, `{"threshold":2}`)
	assert.True(check(t, emoji, "\U0001F389\U0001F389\U0001F389").Matches)
	assert.False(check(t, emoji, "\U0001F389\U0001F389").Matches)

	mention := mkCond(t, ConditionMentionSpam, `{"threshold":1}`)
	assert.True(check(t, mention, "@a @b").Matches)
	assert.False(check(t, mention, "@a").Matches)
}

func TestMessageFrequencyNeverMatchesHere(t *testing.T) {
	assert := assert.New(t)
	cond := mkCond(t, ConditionMessageFrequency, `{}`)
	assert.False(check(t, cond, "any message at all").Matches)
}

func TestSuspiciousPattern(t *testing.T) {
	assert := assert.New(t)

	// the invalid pattern is skipped, the valid one still applies
	cond := mkCond(t, ConditionSuspiciousPattern, `{"patterns":["free\\s+money","[broken"]}`)
	assert.True(check(t, cond, "FREE   money now").Matches)
	assert.False(check(t, cond, "expensive money").Matches)
}

func TestUnknownOrMismatchedConfig(t *testing.T) {
	assert := assert.New(t)

	assert.False(check(t, Condition{Type: ConditionType("bogus")}, "text").Matches)

	// wrong config variant for the kind degrades to no-match
	cond := Condition{Type: ConditionProfanity, Config: KeywordConfig{Keywords: []string{"x"}}}
	assert.False(check(t, cond, "x").Matches)
}

func TestCheckConditionDeterministic(t *testing.T) {
	assert := assert.New(t)
	cond := mkCond(t, ConditionKeywordContains, `{"keywords":["alpha","beta"]}`)
	feats := features.Extract("beta then alpha")
	first := CheckCondition(cond, feats)
	for i := 0; i < 5; i++ {
		assert.Equal(first, CheckCondition(cond, feats))
	}
}
