package classify

import (
	"regexp"
	"testing"

	"gatekeep/internal/types"
)

func TestDefaultClassifier(t *testing.T) {
	c := NewDefaultClassifier()

	cases := []struct {
		input string
		want  types.ActionKind
	}{
		{"Create an estimate for a renovation project", types.ActionCreate},
		{"delete the old drafts", types.ActionDelete},
		{"summarize last week's meetings", types.ActionSummarize},
		{"analyze the sales numbers", types.ActionAnalyze},
		{"search for unpaid invoices", types.ActionSearch},
		{"export the report to pdf", types.ActionExport},
		{"sort contacts by last name", types.ActionSort},
		{"schedule a call with the vendor", types.ActionSchedule},
		{"show me the latest report", types.ActionRead},
		{"weather tomorrow", types.ActionRead}, // fallback
	}
	for _, tc := range cases {
		if got := c.Classify(tc.input); got.Action != tc.want {
			t.Errorf("Classify(%q).Action = %s, want %s", tc.input, got.Action, tc.want)
		}
	}
}

func TestFirstMatchWins(t *testing.T) {
	// Rule order decides, not input order: the delete rule is listed first,
	// so it wins even though "create" appears earlier in the input.
	rules := []Rule{
		{Pattern: regexp.MustCompile(`(?i)\bdelete\b`), Action: types.ActionDelete, Sensitivity: types.SensitivityInternal, Confidence: 0.9},
		{Pattern: regexp.MustCompile(`(?i)\bcreate\b`), Action: types.ActionCreate, Sensitivity: types.SensitivityInternal, Confidence: 0.9},
	}
	c := NewRuleClassifier(rules)
	got := c.Classify("create a list and delete the duplicates")
	if got.Action != types.ActionDelete {
		t.Fatalf("first matching rule should win, got %s", got.Action)
	}
}

func TestFallbackClassification(t *testing.T) {
	c := NewRuleClassifier(nil)
	got := c.Classify("lorem ipsum dolor")
	if got.Action != types.ActionRead {
		t.Fatalf("fallback action = %s, want read", got.Action)
	}
	if got.Confidence >= 0.5 {
		t.Fatalf("fallback confidence %f should be low", got.Confidence)
	}
}

func TestSecretEscalation(t *testing.T) {
	c := NewDefaultClassifier()
	got := c.Classify("read the api key from the vault")
	if got.Sensitivity != types.SensitivitySecret {
		t.Fatalf("inputs mentioning secret material must escalate, got %s", got.Sensitivity)
	}
	got = c.Classify("read the project plan")
	if got.Sensitivity == types.SensitivitySecret {
		t.Fatal("ordinary input must not be secret")
	}
}

func TestStopwordDetector(t *testing.T) {
	d := StopwordDetector{}
	cases := []struct {
		input string
		want  string
	}{
		{"show me the report for the quarter and the budget", "en"},
		{"zeige mir der bericht und die zahlen für das projekt", "de"},
		{"montre le rapport et les chiffres pour la semaine", "fr"},
		{"xyz", "en"}, // default
	}
	for _, tc := range cases {
		if got := d.Detect(tc.input); got != tc.want {
			t.Errorf("Detect(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}
