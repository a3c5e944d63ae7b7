package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gatekeep/internal/types"
)

// ScriptedBackend is a deterministic in-process backend for tests and local
// dry runs. It walks a fixed set of milestones, reporting token consumption
// proportional to the encoding's estimate, and can be programmed to fail or
// stall at a given milestone.
type ScriptedBackend struct {
	Milestones []string
	// FailAt, when non-empty, makes the invocation error at that milestone.
	FailAt string
	// StepDelay is an optional pause per milestone, for pause/cancel tests.
	StepDelay time.Duration
}

// NewScriptedBackend returns a backend with the default milestone script.
func NewScriptedBackend() *ScriptedBackend {
	return &ScriptedBackend{
		Milestones: []string{"prepare", "retrieve", "apply", "finalize"},
	}
}

// Invoke walks the milestone script, firing the checkpoint callback at each
// step. Output is a synthetic summary of what was executed.
func (b *ScriptedBackend) Invoke(ctx context.Context, enc types.Encoding, agentID string, checkpoint types.CheckpointFunc) (types.Invocation, error) {
	start := time.Now()
	total := enc.EstimatedTokens
	if total < len(b.Milestones) {
		total = len(b.Milestones)
	}

	used := 0
	for i, m := range b.Milestones {
		if b.StepDelay > 0 {
			select {
			case <-ctx.Done():
				return types.Invocation{}, ctx.Err()
			case <-time.After(b.StepDelay):
			}
		}
		used = total * (i + 1) / len(b.Milestones)
		if checkpoint != nil {
			if err := checkpoint(m, used); err != nil {
				return types.Invocation{}, err
			}
		}
		if b.FailAt == m {
			return types.Invocation{}, fmt.Errorf("scripted failure at milestone %q", m)
		}
	}

	output := fmt.Sprintf("%s executed %s on %s scope [%s]",
		agentID, enc.Action, enc.DataSource, strings.Join(enc.Domains, ", "))
	return types.Invocation{
		Output:     output,
		OutputType: "text",
		TokensUsed: used,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}
