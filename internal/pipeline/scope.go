package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"gatekeep/internal/config"
	"gatekeep/internal/types"
)

// lockScope derives the run's boundary set from the encoding and seals it
// under a deterministic hash. The gate fails when the inferred domain count
// exceeds the configured maximum; the caller is expected to resubmit a
// narrower request.
func lockScope(enc types.Encoding, cfg config.ScopeConfig) (types.ScopeLock, error) {
	if len(enc.Domains) > cfg.MaxDomains {
		return types.ScopeLock{}, fmt.Errorf(
			"scope too broad: request touches %d domains (%s), maximum is %d; narrow the request and resubmit",
			len(enc.Domains), strings.Join(enc.Domains, ", "), cfg.MaxDomains)
	}

	return types.ScopeLock{
		ScopeHash:        ScopeHash(enc),
		Domains:          append([]string(nil), enc.Domains...),
		ResourceTypes:    append([]string(nil), enc.ResourceTypes...),
		MaxResults:       cfg.MaxResults,
		MaxDepth:         cfg.MaxDepth,
		ExpansionAllowed: enc.ScopeBoundary != types.BoundaryStrict,
		LockedAt:         time.Now().UTC(),
	}, nil
}

// ScopeHash is a pure function of the encoding's boundary-relevant fields:
// recomputing it from the same Encoding always yields the same digest.
// Volatile per-run fields (intent id, quality score) are excluded so
// identical requests hash identically across runs.
func ScopeHash(enc types.Encoding) string {
	domains := append([]string(nil), enc.Domains...)
	sort.Strings(domains)
	resources := append([]string(nil), enc.ResourceTypes...)
	sort.Strings(resources)

	perms := make([]string, 0, len(enc.Permissions))
	for _, p := range enc.Permissions {
		perms = append(perms, fmt.Sprintf("%s:%s:%s", p.Effect, p.Action, p.Resource))
	}
	sort.Strings(perms)

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s\x00%s\x00%s",
		enc.Action, enc.DataSource, enc.ScopeBoundary, enc.Sensitivity,
		strings.Join(domains, ","), strings.Join(resources, ","), strings.Join(perms, ","))
	return hex.EncodeToString(h.Sum(nil))
}
