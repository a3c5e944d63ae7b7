package types

import "context"

// Ledger is the external budget ledger the pipeline consults. Balance reads
// are advisory; the authoritative deduction happens via Debit against actual
// usage after execution. Debit must be idempotent per run id so retried
// completions never double-charge.
type Ledger interface {
	Balance(ctx context.Context, requesterID string) (float64, error)
	Debit(ctx context.Context, requesterID string, amount float64, runID string) error
	Credit(ctx context.Context, requesterID string, amount float64) error
}

// AgentMatcher resolves an encoding plus its scope lock to a compatible
// executor via the agent compatibility matrix.
type AgentMatcher interface {
	Match(ctx context.Context, enc Encoding, lock ScopeLock, estimate CostEstimate) (AgentMatch, error)
}

// CheckpointFunc is invoked by a backend as each internal milestone is
// reached. Returning an error aborts the invocation.
type CheckpointFunc func(name string, tokensUsed int) error

// Invocation is the result of a backend invoke.
type Invocation struct {
	Output     string
	OutputType string
	TokensUsed int
	DurationMs int64
}

// ExecutionBackend is the contract an execution backend must satisfy. The
// pipeline never talks to a model directly; it only supervises backends.
type ExecutionBackend interface {
	Invoke(ctx context.Context, enc Encoding, agentID string, checkpoint CheckpointFunc) (Invocation, error)
}
