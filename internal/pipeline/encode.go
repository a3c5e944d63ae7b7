package pipeline

import (
	"math"
	"sort"
	"strings"

	"gatekeep/internal/classify"
	"gatekeep/internal/config"
	"gatekeep/internal/types"
)

// domainLexicon maps keywords in the raw input to the domains a run would
// touch. Scope locking counts these domains against the configured maximum.
var domainLexicon = map[string][]string{
	"projects":  {"project", "renovation", "milestone", "task", "sprint"},
	"finance":   {"estimate", "invoice", "budget", "cost", "quote", "payment", "price"},
	"calendar":  {"calendar", "meeting", "schedule", "appointment", "deadline"},
	"contacts":  {"contact", "customer", "client", "vendor", "supplier"},
	"documents": {"document", "file", "report", "spreadsheet", "attachment"},
	"messages":  {"message", "email", "chat", "conversation", "thread"},
	"inventory": {"inventory", "stock", "warehouse", "material", "order"},
}

// encodeIntent produces the structured Encoding for a captured intent.
// Encoding never blocks on its own; quality issues are deferred to the
// validation gate.
func encodeIntent(intent types.Intent, classifier classify.ActionClassifier, cfg *config.Config) types.Encoding {
	cls := classifier.Classify(intent.RawInput)

	enc := types.Encoding{
		IntentID:      intent.ID,
		Action:        cls.Action,
		DataSource:    inferDataSource(intent),
		ScopeBoundary: inferBoundary(intent.RawInput),
		Sensitivity:   cls.Sensitivity,
		Domains:       inferDomains(intent.RawInput),
		ResourceTypes: inferResourceTypes(cls.Action),
	}

	enc.Permissions = derivePermissions(cls.Action)
	enc.EstimatedTokens = estimateTokens(intent.RawInput, cfg.Cost.CharsPerToken)
	enc.QualityScore = (intent.Confidence + cls.Confidence) / 2
	return enc
}

// inferDataSource picks a data-source kind from which context ids are set.
// Both or neither collapse to mixed.
func inferDataSource(intent types.Intent) types.DataSourceKind {
	hasSphere := intent.SphereID != ""
	hasDataspace := intent.DataspaceID != ""
	switch {
	case hasSphere && !hasDataspace:
		return types.SourceSphere
	case hasDataspace && !hasSphere:
		return types.SourceDataspace
	default:
		return types.SourceMixed
	}
}

// inferBoundary reads scope intent from phrasing. Explicit containment
// ("only", "just this") locks the scope strictly; open-ended phrasing
// ("everything", "across all") marks it expandable.
func inferBoundary(input string) types.ScopeBoundary {
	lower := strings.ToLower(input)
	switch {
	case strings.Contains(lower, "only") || strings.Contains(lower, "just this") || strings.Contains(lower, "nothing else"):
		return types.BoundaryStrict
	case strings.Contains(lower, "everything") || strings.Contains(lower, "across all") || strings.Contains(lower, "all of"):
		return types.BoundaryExpandable
	default:
		return types.BoundaryFlexible
	}
}

// inferDomains matches the input against the domain lexicon. The result is
// sorted so downstream hashing is deterministic.
func inferDomains(input string) []string {
	lower := strings.ToLower(input)
	var domains []string
	for domain, keywords := range domainLexicon {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				domains = append(domains, domain)
				break
			}
		}
	}
	if len(domains) == 0 {
		domains = []string{"general"}
	}
	sort.Strings(domains)
	return domains
}

// inferResourceTypes picks the record types an action plausibly touches.
func inferResourceTypes(action types.ActionKind) []string {
	switch action {
	case types.ActionExport, types.ActionShare:
		return []string{"record", "attachment"}
	case types.ActionSchedule, types.ActionNotify:
		return []string{"record", "event"}
	default:
		return []string{"record"}
	}
}

// derivePermissions allows the classified action on the wildcard resource
// and explicitly denies every destructive action on system resources.
func derivePermissions(action types.ActionKind) []types.Permission {
	perms := []types.Permission{
		{Action: action, Resource: "*", Effect: types.PermissionAllow},
	}
	for _, k := range types.ActionKinds() {
		if !k.Destructive() {
			continue
		}
		perms = append(perms, types.Permission{
			Action:   k,
			Resource: "system/*",
			Effect:   types.PermissionDeny,
		})
	}
	return perms
}

// estimateTokens converts input length to a token count via the configured
// chars-per-token ratio.
func estimateTokens(input string, charsPerToken float64) int {
	n := int(math.Ceil(float64(len(input)) / charsPerToken))
	if n < 1 {
		n = 1
	}
	return n
}
