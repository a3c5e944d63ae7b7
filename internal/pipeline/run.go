// Package pipeline implements the governed execution pipeline: a ten-stage,
// fail-closed admission-control state machine standing between a raw request
// and any autonomous action. Execution only happens after intent has been
// structurally encoded, validated, cost-estimated, scope-bounded,
// budget-checked, and matched to a compatible agent, with every completed run
// producing a tamper-evident audit record.
package pipeline

import (
	"fmt"
	"sync"
	"time"

	"gatekeep/internal/types"
)

// StageRecord is the bookkeeping for one stage within a run.
type StageRecord struct {
	Status    types.StageStatus `json:"status"`
	StartedAt time.Time         `json:"started_at,omitzero"`
	EndedAt   time.Time         `json:"ended_at,omitzero"`
	Error     string            `json:"error,omitempty"`
}

// Run is the aggregate root for one pipeline execution. The orchestrator is
// its single writer; the mutex exists so the glue layer can snapshot state
// for progress display while the run is active.
type Run struct {
	mu sync.RWMutex

	ID           string
	Request      types.Request
	CurrentStage types.Stage
	Overall      types.OverallStatus
	CreatedAt    time.Time

	stages map[types.Stage]*StageRecord

	// Accumulated stage outputs. Each is set exactly once by its stage.
	Intent     *types.Intent
	Encoding   *types.Encoding
	Validation *types.ValidationResult
	Cost       *types.CostEstimate
	Lock       *types.ScopeLock
	Budget     *types.BudgetVerification
	Match      *types.AgentMatch
	Execution  *types.ExecutionRecord
	Result     *types.ResultRecord
	Audit      *types.AuditEntry

	Failure *types.FailureDescriptor
}

// newRun creates a run with every stage PENDING.
func newRun(id string, req types.Request) *Run {
	stages := make(map[types.Stage]*StageRecord, len(types.Stages()))
	for _, s := range types.Stages() {
		stages[s] = &StageRecord{Status: types.StagePending}
	}
	return &Run{
		ID:        id,
		Request:   req,
		Overall:   types.RunActive,
		CreatedAt: time.Now().UTC(),
		stages:    stages,
	}
}

// startStage transitions a stage PENDING -> IN_PROGRESS. Any other source
// status is a programming error; statuses never regress.
func (r *Run) startStage(s types.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.stages[s]
	if rec.Status != types.StagePending {
		return fmt.Errorf("stage %s cannot start from status %s", s, rec.Status)
	}
	rec.Status = types.StageInProgress
	rec.StartedAt = time.Now().UTC()
	r.CurrentStage = s
	return nil
}

// finishStage transitions a stage IN_PROGRESS -> terminal.
func (r *Run) finishStage(s types.Stage, status types.StageStatus, errMsg string) error {
	if !status.Terminal() {
		return fmt.Errorf("stage %s: %s is not a terminal status", s, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.stages[s]
	if rec.Status != types.StageInProgress {
		return fmt.Errorf("stage %s cannot finish from status %s", s, rec.Status)
	}
	rec.Status = status
	rec.EndedAt = time.Now().UTC()
	rec.Error = errMsg
	return nil
}

// fail marks the run terminally failed at the given stage. Stages after the
// failure point stay PENDING forever; they are never marked skipped-as-passed.
func (r *Run) fail(s types.Stage, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Overall = types.RunFailed
	r.Failure = &types.FailureDescriptor{Stage: s, Message: message}
}

// cancel marks the run terminally cancelled at the given stage.
func (r *Run) cancel(s types.Stage, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Overall = types.RunCancelled
	r.Failure = &types.FailureDescriptor{Stage: s, Message: message}
}

// complete marks the run terminally completed.
func (r *Run) complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Overall = types.RunCompleted
}

// StageStatus returns the current status of one stage.
func (r *Run) StageStatus(s types.Stage) types.StageStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stages[s].Status
}

// StageError returns the error recorded for one stage, if any.
func (r *Run) StageError(s types.Stage) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stages[s].Error
}

// Snapshot returns a copy of all stage records for progress display.
func (r *Run) Snapshot() map[types.Stage]StageRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[types.Stage]StageRecord, len(r.stages))
	for s, rec := range r.stages {
		out[s] = *rec
	}
	return out
}

// Status returns the run's overall status.
func (r *Run) Status() types.OverallStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Overall
}

// Outcome builds the typed result returned to the caller.
func (r *Run) Outcome() types.RunResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return types.RunResult{
		RunID:   r.ID,
		Status:  r.Overall,
		Result:  r.Result,
		Failure: r.Failure,
	}
}
