// Package features turns raw message text into the structured feature bag
// that rule conditions are matched against.
//
// Extraction is a pure function: no I/O, deterministic, and total. Malformed
// input (eg, unparsable URLs) degrades to best-effort features rather than
// errors.
package features

import (
	"net/url"
	"regexp"
	"strings"
)

// Derived signals for a single piece of content. Computed once per
// evaluation, never mutated afterwards.
type ContentFeatures struct {
	Text           string   `json:"text"`
	NormalizedText string   `json:"normalizedText"`
	Links          []string `json:"links"`
	Domains        []string `json:"domains"`
	Mentions       []string `json:"mentions"`
	EmojiCount     int      `json:"emojiCount"`
	CapsRatio      float64  `json:"capsRatio"`
	RepeatedText   bool     `json:"repeatedText"`
	MessageLength  int      `json:"messageLength"`
	WordCount      int      `json:"wordCount"`
}

var (
	markdownChars = regexp.MustCompile("[#*_`~\\[\\]()]")
	urlPattern    = regexp.MustCompile(`(?i)https?://[^\s]+`)
	mentionChars  = regexp.MustCompile(`@(\w+)`)
)

// Extract computes all content features for a single message or post.
func Extract(text string) ContentFeatures {
	normalized := markdownChars.ReplaceAllString(text, "")
	normalized = strings.ReplaceAll(normalized, "\n", " ")
	normalized = strings.ToLower(strings.TrimSpace(normalized))

	// links come from the original text, in encounter order, duplicates kept
	links := urlPattern.FindAllString(text, -1)
	var domains []string
	for _, link := range links {
		if d := bareDomain(link); d != "" {
			domains = append(domains, d)
		}
	}

	var mentions []string
	for _, m := range mentionChars.FindAllStringSubmatch(text, -1) {
		mentions = append(mentions, m[1])
	}

	runes := []rune(text)
	emojiCount := 0
	capsCount := 0
	for _, r := range runes {
		if isEmoji(r) {
			emojiCount++
		}
		if r >= 'A' && r <= 'Z' {
			capsCount++
		}
	}
	capsRatio := 0.0
	if len(runes) > 0 {
		capsRatio = float64(capsCount) / float64(len(runes))
	}

	words := strings.Fields(normalized)

	return ContentFeatures{
		Text:           text,
		NormalizedText: normalized,
		Links:          links,
		Domains:        domains,
		Mentions:       mentions,
		EmojiCount:     emojiCount,
		CapsRatio:      capsRatio,
		RepeatedText:   hasRepeatedRun(words),
		MessageLength:  len(runes),
		WordCount:      len(words),
	}
}

// bareDomain parses a URL and returns its host with any leading "www."
// stripped. Unparsable links contribute nothing.
func bareDomain(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// three consecutive identical tokens anywhere in the word sequence
func hasRepeatedRun(words []string) bool {
	for i := 0; i+2 < len(words); i++ {
		if words[i] == words[i+1] && words[i] == words[i+2] {
			return true
		}
	}
	return false
}

// Covers the pictograph, misc symbol, and dingbat ranges. A count of code
// points, not distinct emoji: repeats count individually.
func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1F9FF:
		return true
	case r >= 0x2600 && r <= 0x26FF:
		return true
	case r >= 0x2700 && r <= 0x27BF:
		return true
	}
	return false
}
