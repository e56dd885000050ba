// Package categorize assigns category labels to transaction descriptions.
package categorize

import (
	"strings"

	"github.com/ArionMiles/cardtx/pkg/textfold"
)

// DefaultFallback is the label used when no rule matches.
const DefaultFallback = "Otros"

// Rule maps a label to keyword substrings. A rule with no keywords matches
// everything that reaches it.
type Rule struct {
	Label    string   `json:"label"`
	Keywords []string `json:"keywords"`
}

// RuleSet is an ordered list of rules; the first match wins.
type RuleSet struct {
	rules    []compiledRule
	fallback string
}

type compiledRule struct {
	label    string
	keywords []string
}

// New builds a RuleSet. An empty fallback means DefaultFallback.
func New(rules []Rule, fallback string) *RuleSet {
	if fallback == "" {
		fallback = DefaultFallback
	}
	rs := &RuleSet{fallback: fallback}
	for _, r := range rules {
		cr := compiledRule{label: r.Label}
		for _, k := range r.Keywords {
			if k = strings.TrimSpace(k); k != "" {
				cr.keywords = append(cr.keywords, textfold.Key(k))
			}
		}
		rs.rules = append(rs.rules, cr)
	}
	return rs
}

// Categorize returns the label of the first rule with a keyword contained
// in text, ignoring case and accents.
func (rs *RuleSet) Categorize(text string) string {
	key := textfold.Key(text)
	for _, r := range rs.rules {
		if len(r.keywords) == 0 {
			return r.label
		}
		for _, k := range r.keywords {
			if strings.Contains(key, k) {
				return r.label
			}
		}
	}
	return rs.fallback
}

// Labels returns the rule labels in priority order followed by the fallback.
func (rs *RuleSet) Labels() []string {
	labels := make([]string, 0, len(rs.rules)+1)
	for _, r := range rs.rules {
		labels = append(labels, r.label)
	}
	return append(labels, rs.fallback)
}
