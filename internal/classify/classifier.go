// Package classify turns raw intent text into a structured action kind.
// Classification is a pluggable strategy: the default is an ordered
// regex/keyword rule table where the first matching rule wins, but any
// implementation of ActionClassifier can be swapped in without touching
// pipeline logic.
package classify

import (
	"regexp"
	"strings"

	"gatekeep/internal/types"
)

// Classification is the outcome of classifying one intent.
type Classification struct {
	Action      types.ActionKind
	Sensitivity types.Sensitivity
	Confidence  float64
}

// ActionClassifier maps raw intent text to an action kind.
type ActionClassifier interface {
	Classify(input string) Classification
	Name() string
}

// Rule is one ordered classification rule. Pattern is matched case-insensitively
// against the whole input.
type Rule struct {
	Pattern     *regexp.Regexp
	Action      types.ActionKind
	Sensitivity types.Sensitivity
	Confidence  float64
}

// RuleClassifier classifies by scanning an ordered rule table; the first
// matching rule wins. The zero value is unusable; use NewRuleClassifier.
type RuleClassifier struct {
	rules    []Rule
	fallback Classification
}

// NewRuleClassifier builds a classifier from an explicit rule table.
// An empty table falls through to the fallback (read, low confidence).
func NewRuleClassifier(rules []Rule) *RuleClassifier {
	return &RuleClassifier{
		rules: rules,
		fallback: Classification{
			Action:      types.ActionRead,
			Sensitivity: types.SensitivityInternal,
			Confidence:  0.3,
		},
	}
}

// NewDefaultClassifier returns the reference keyword rule table. Order
// matters: more specific verbs come before generic ones.
func NewDefaultClassifier() *RuleClassifier {
	mk := func(expr string) *regexp.Regexp {
		return regexp.MustCompile(`(?i)` + expr)
	}
	return NewRuleClassifier([]Rule{
		{Pattern: mk(`\b(summariz|summar|recap|tl;?dr)`), Action: types.ActionSummarize, Sensitivity: types.SensitivityInternal, Confidence: 0.9},
		{Pattern: mk(`\b(aggregate|roll.?up|total up|combine)\b`), Action: types.ActionAggregate, Sensitivity: types.SensitivityInternal, Confidence: 0.85},
		{Pattern: mk(`\b(transform|convert|translate|reformat)\b`), Action: types.ActionTransform, Sensitivity: types.SensitivityInternal, Confidence: 0.85},
		{Pattern: mk(`\b(analy[sz]e|examine|investigate|review)\b`), Action: types.ActionAnalyze, Sensitivity: types.SensitivityInternal, Confidence: 0.85},
		{Pattern: mk(`\b(generate|write|draft|compose)\b`), Action: types.ActionGenerate, Sensitivity: types.SensitivityInternal, Confidence: 0.85},
		{Pattern: mk(`\b(schedule|book|plan for|set up a meeting)\b`), Action: types.ActionSchedule, Sensitivity: types.SensitivityInternal, Confidence: 0.85},
		{Pattern: mk(`\b(notify|alert|remind|ping)\b`), Action: types.ActionNotify, Sensitivity: types.SensitivityInternal, Confidence: 0.85},
		{Pattern: mk(`\b(share|send to|forward)\b`), Action: types.ActionShare, Sensitivity: types.SensitivityConfidential, Confidence: 0.8},
		{Pattern: mk(`\b(export|download|extract to)\b`), Action: types.ActionExport, Sensitivity: types.SensitivityConfidential, Confidence: 0.8},
		{Pattern: mk(`\b(delete|remove|erase|drop)\b`), Action: types.ActionDelete, Sensitivity: types.SensitivityConfidential, Confidence: 0.9},
		{Pattern: mk(`\b(update|edit|modify|change|rename)\b`), Action: types.ActionUpdate, Sensitivity: types.SensitivityInternal, Confidence: 0.85},
		{Pattern: mk(`\b(create|add|make|new|build)\b`), Action: types.ActionCreate, Sensitivity: types.SensitivityInternal, Confidence: 0.85},
		{Pattern: mk(`\b(search|find|look (for|up)|locate)\b`), Action: types.ActionSearch, Sensitivity: types.SensitivityInternal, Confidence: 0.8},
		{Pattern: mk(`\b(filter|only show|narrow down)\b`), Action: types.ActionFilter, Sensitivity: types.SensitivityInternal, Confidence: 0.8},
		{Pattern: mk(`\b(sort|order by|rank)\b`), Action: types.ActionSort, Sensitivity: types.SensitivityInternal, Confidence: 0.8},
		{Pattern: mk(`\b(read|show|display|open|view|get|list)\b`), Action: types.ActionRead, Sensitivity: types.SensitivityInternal, Confidence: 0.75},
	})
}

// Name identifies the strategy for logging.
func (c *RuleClassifier) Name() string { return "rule" }

// Classify scans the rule table in order and returns the first match.
// Inputs mentioning secret material are escalated to secret sensitivity
// regardless of which rule matched.
func (c *RuleClassifier) Classify(input string) Classification {
	result := c.fallback
	for _, r := range c.rules {
		if r.Pattern.MatchString(input) {
			result = Classification{
				Action:      r.Action,
				Sensitivity: r.Sensitivity,
				Confidence:  r.Confidence,
			}
			break
		}
	}
	if mentionsSecret(input) {
		result.Sensitivity = types.SensitivitySecret
	}
	return result
}

var secretMarkers = []string{"secret", "password", "credential", "api key", "private key"}

func mentionsSecret(input string) bool {
	lower := strings.ToLower(input)
	for _, m := range secretMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
