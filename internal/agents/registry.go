// Package agents implements the agent registry and the compatibility matrix
// used to match an encoding to a capable executor. The registry is an
// explicit dependency passed into the orchestrator, never a process-wide
// singleton, so pipeline runs stay unit-testable.
package agents

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"gatekeep/internal/types"
)

// Profile describes one registered execution agent.
type Profile struct {
	ID               string             `json:"id" yaml:"id"`
	Level            int                `json:"level" yaml:"level"`
	SupportedActions []types.ActionKind `json:"supported_actions" yaml:"supported_actions"`
	Domains          []string           `json:"domains" yaml:"domains"` // empty means any domain
	MaxSensitivity   types.Sensitivity  `json:"max_sensitivity" yaml:"max_sensitivity"`
	CostCeiling      float64            `json:"cost_ceiling" yaml:"cost_ceiling"` // 0 means unlimited
}

// MatrixWeights weight the four compatibility checks when scoring a
// candidate. They are configuration, not constants.
type MatrixWeights struct {
	Action     float64 `yaml:"action"`
	Scope      float64 `yaml:"scope"`
	Permission float64 `yaml:"permission"`
	Budget     float64 `yaml:"budget"`
}

// DefaultWeights treats all four checks equally.
func DefaultWeights() MatrixWeights {
	return MatrixWeights{Action: 1, Scope: 1, Permission: 1, Budget: 1}
}

// Registry holds agent profiles and answers match queries.
type Registry struct {
	mu              sync.RWMutex
	profiles        map[string]Profile
	weights         MatrixWeights
	minScore        float64
	maxAlternatives int
	logger          *zap.Logger
}

// NewRegistry creates a registry with the given scoring parameters.
func NewRegistry(weights MatrixWeights, minScore float64, maxAlternatives int, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		profiles:        make(map[string]Profile),
		weights:         weights,
		minScore:        minScore,
		maxAlternatives: maxAlternatives,
		logger:          logger,
	}
}

// Register adds or replaces an agent profile.
func (r *Registry) Register(p Profile) error {
	if p.ID == "" {
		return fmt.Errorf("agent profile requires an id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = p
	return nil
}

// Profiles returns all registered profiles sorted by id.
func (r *Registry) Profiles() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Match scores every registered agent against the encoding via the four
// matrix checks and returns the best candidate above the minimum score.
// When no candidate qualifies, Selected is nil and up to maxAlternatives
// ranked candidates are surfaced for operator choice.
func (r *Registry) Match(_ context.Context, enc types.Encoding, lock types.ScopeLock, estimate types.CostEstimate) (types.AgentMatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := make([]types.AgentCandidate, 0, len(r.profiles))
	for _, p := range r.profiles {
		checks := r.evaluate(p, enc, lock, estimate)
		candidates = append(candidates, types.AgentCandidate{
			AgentID: p.ID,
			Level:   p.Level,
			Score:   r.score(checks),
			Checks:  checks,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		// Prefer the lower capability level among equals; cheaper to run.
		if candidates[i].Level != candidates[j].Level {
			return candidates[i].Level < candidates[j].Level
		}
		return candidates[i].AgentID < candidates[j].AgentID
	})

	if len(candidates) > 0 && candidates[0].Score >= r.minScore {
		selected := candidates[0]
		r.logger.Debug("agent matched",
			zap.String("agent_id", selected.AgentID),
			zap.Float64("score", selected.Score))
		return types.AgentMatch{Selected: &selected}, nil
	}

	n := len(candidates)
	if n > r.maxAlternatives {
		n = r.maxAlternatives
	}
	return types.AgentMatch{Alternatives: candidates[:n]}, nil
}

// evaluate runs the four independent boolean checks for one profile.
func (r *Registry) evaluate(p Profile, enc types.Encoding, lock types.ScopeLock, estimate types.CostEstimate) types.CompatibilityChecks {
	return types.CompatibilityChecks{
		ActionCompatible:     supportsAction(p, enc.Action),
		ScopeCompatible:      coversDomains(p, lock.Domains),
		PermissionCompatible: clearsSensitivity(p, enc.Sensitivity),
		BudgetCompatible:     p.CostCeiling == 0 || estimate.Breakdown.TotalCost <= p.CostCeiling,
	}
}

// score combines the checks into [0,1] using the configured weights.
func (r *Registry) score(c types.CompatibilityChecks) float64 {
	total := r.weights.Action + r.weights.Scope + r.weights.Permission + r.weights.Budget
	if total == 0 {
		return 0
	}
	var got float64
	if c.ActionCompatible {
		got += r.weights.Action
	}
	if c.ScopeCompatible {
		got += r.weights.Scope
	}
	if c.PermissionCompatible {
		got += r.weights.Permission
	}
	if c.BudgetCompatible {
		got += r.weights.Budget
	}
	return got / total
}

func supportsAction(p Profile, action types.ActionKind) bool {
	for _, a := range p.SupportedActions {
		if a == action {
			return true
		}
	}
	return false
}

func coversDomains(p Profile, domains []string) bool {
	if len(p.Domains) == 0 {
		return true
	}
	allowed := make(map[string]bool, len(p.Domains))
	for _, d := range p.Domains {
		allowed[d] = true
	}
	for _, d := range domains {
		if !allowed[d] {
			return false
		}
	}
	return true
}

var sensitivityRank = map[types.Sensitivity]int{
	types.SensitivityPublic:       0,
	types.SensitivityInternal:     1,
	types.SensitivityConfidential: 2,
	types.SensitivitySecret:       3,
}

func clearsSensitivity(p Profile, s types.Sensitivity) bool {
	max, ok := sensitivityRank[p.MaxSensitivity]
	if !ok {
		max = sensitivityRank[types.SensitivityInternal]
	}
	return sensitivityRank[s] <= max
}
