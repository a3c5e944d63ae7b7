package pipeline

import (
	"strings"
	"testing"

	"gatekeep/internal/config"
	"gatekeep/internal/types"
)

func scopeEncoding() types.Encoding {
	return types.Encoding{
		IntentID:      "intent-1",
		Action:        types.ActionCreate,
		DataSource:    types.SourceSphere,
		ScopeBoundary: types.BoundaryFlexible,
		Sensitivity:   types.SensitivityInternal,
		Domains:       []string{"finance", "projects"},
		ResourceTypes: []string{"record"},
		Permissions: []types.Permission{
			{Action: types.ActionCreate, Resource: "*", Effect: types.PermissionAllow},
		},
		EstimatedTokens: 42,
		QualityScore:    0.8,
	}
}

func TestScopeHashIgnoresVolatileFields(t *testing.T) {
	a := scopeEncoding()
	b := scopeEncoding()
	// Intent id and quality score differ per run; the boundary does not.
	b.IntentID = "intent-2"
	b.QualityScore = 0.3
	b.EstimatedTokens = 999

	if ScopeHash(a) != ScopeHash(b) {
		t.Fatal("identical boundaries must hash identically across runs")
	}
}

func TestScopeHashCoversBoundaryFields(t *testing.T) {
	base := scopeEncoding()
	cases := []struct {
		name   string
		mutate func(*types.Encoding)
	}{
		{"action", func(e *types.Encoding) { e.Action = types.ActionDelete }},
		{"data source", func(e *types.Encoding) { e.DataSource = types.SourceDataspace }},
		{"boundary", func(e *types.Encoding) { e.ScopeBoundary = types.BoundaryStrict }},
		{"sensitivity", func(e *types.Encoding) { e.Sensitivity = types.SensitivitySecret }},
		{"domains", func(e *types.Encoding) { e.Domains = []string{"calendar"} }},
		{"permissions", func(e *types.Encoding) { e.Permissions = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enc := scopeEncoding()
			tc.mutate(&enc)
			if ScopeHash(enc) == ScopeHash(base) {
				t.Fatalf("changing %s must change the hash", tc.name)
			}
		})
	}
}

func TestScopeHashIsOrderInsensitive(t *testing.T) {
	a := scopeEncoding()
	b := scopeEncoding()
	b.Domains = []string{"projects", "finance"}
	if ScopeHash(a) != ScopeHash(b) {
		t.Fatal("domain order must not affect the hash")
	}
}

func TestLockScopeSealsBoundary(t *testing.T) {
	cfg := config.DefaultConfig().Scope
	lock, err := lockScope(scopeEncoding(), cfg)
	if err != nil {
		t.Fatalf("lockScope: %v", err)
	}
	if lock.ScopeHash != ScopeHash(scopeEncoding()) {
		t.Fatal("lock hash must match the pure hash function")
	}
	if !lock.ExpansionAllowed {
		t.Fatal("flexible boundary should allow expansion")
	}

	strict := scopeEncoding()
	strict.ScopeBoundary = types.BoundaryStrict
	lock, err = lockScope(strict, cfg)
	if err != nil {
		t.Fatalf("lockScope: %v", err)
	}
	if lock.ExpansionAllowed {
		t.Fatal("strict boundary must not allow expansion")
	}
}

func TestLockScopeRejectsTooManyDomains(t *testing.T) {
	cfg := config.DefaultConfig().Scope // MaxDomains 3
	enc := scopeEncoding()
	enc.Domains = []string{"calendar", "contacts", "finance", "projects"}

	_, err := lockScope(enc, cfg)
	if err == nil {
		t.Fatal("4 domains against a maximum of 3 must fail")
	}
	msg := err.Error()
	if !strings.Contains(msg, "4 domains") || !strings.Contains(msg, "maximum is 3") {
		t.Fatalf("failure reason should name count and limit: %s", msg)
	}
	if !strings.Contains(msg, "narrow the request") {
		t.Fatalf("failure reason should tell the caller how to recover: %s", msg)
	}

	// Deterministic: the same encoding fails with the same reason every time.
	_, err2 := lockScope(enc, cfg)
	if err2 == nil || err2.Error() != msg {
		t.Fatal("identical input must fail identically")
	}
}
