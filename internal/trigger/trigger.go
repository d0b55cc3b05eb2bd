// Package trigger selects the trigger rule that applies to a message text.
package trigger

import (
	"fmt"
	"sort"
	"strings"
)

// MatchType controls how a rule's keywords combine.
type MatchType string

const (
	// MatchAny matches when at least one keyword is contained in the text.
	MatchAny MatchType = "any"
	// MatchAll matches when every keyword is contained in the text.
	MatchAll MatchType = "all"
)

// ParseMatchType normalizes raw, defaulting to MatchAny when empty.
func ParseMatchType(raw string) (MatchType, error) {
	switch MatchType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", MatchAny:
		return MatchAny, nil
	case MatchAll:
		return MatchAll, nil
	default:
		return "", fmt.Errorf("invalid match type: %s", raw)
	}
}

// Rule is one tenant-configured keyword rule of an integration.
type Rule struct {
	ID            int64     `json:"id"`
	IntegrationID string    `json:"integration_id"`
	Keywords      []string  `json:"keywords"`
	MatchType     MatchType `json:"match_type"`
	Active        bool      `json:"is_active"`
	Priority      int32     `json:"priority"`
}

// Matches reports whether the rule applies to text. Inactive rules and rules
// without a usable keyword never match.
func (r Rule) Matches(text string) bool {
	if !r.Active {
		return false
	}
	return matchKeywords(r.Keywords, r.MatchType, fold(text))
}

// Order sorts rules by priority descending, then id ascending. The input is
// not modified.
func Order(rules []Rule) []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Match returns the first active rule, in Order, whose keywords match text.
// ok is false for an empty rule set or when nothing matches.
func Match(rules []Rule, text string) (Rule, bool) {
	if len(rules) == 0 {
		return Rule{}, false
	}
	folded := fold(text)
	if folded == "" {
		return Rule{}, false
	}
	for _, rule := range Order(rules) {
		if !rule.Active {
			continue
		}
		if matchKeywords(rule.Keywords, rule.MatchType, folded) {
			return rule, true
		}
	}
	return Rule{}, false
}

// NormalizeKeywords trims keywords and rejects blank entries and empty lists.
func NormalizeKeywords(keywords []string) ([]string, error) {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			return nil, fmt.Errorf("keywords must not contain blank entries")
		}
		out = append(out, kw)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one keyword is required")
	}
	return out, nil
}

func matchKeywords(keywords []string, matchType MatchType, foldedText string) bool {
	usable := 0
	for _, kw := range keywords {
		needle := fold(kw)
		if needle == "" {
			// A blank keyword never matches; under "all" it fails the rule.
			if matchType == MatchAll {
				return false
			}
			continue
		}
		usable++
		contained := strings.Contains(foldedText, needle)
		switch matchType {
		case MatchAll:
			if !contained {
				return false
			}
		default:
			if contained {
				return true
			}
		}
	}
	return matchType == MatchAll && usable > 0
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
