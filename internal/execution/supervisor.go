// Package execution supervises backend invocations on behalf of the
// pipeline. The supervisor tracks checkpoints and actual consumption,
// honors pause and cancel between checkpoints, gates secret-sensitivity
// work behind an explicit approval, and converts every internal failure
// into a terminal FAILED execution record instead of an unhandled fault.
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gatekeep/internal/events"
	"gatekeep/internal/types"
)

// Approvals records explicit human approvals for runs that require one.
// Concurrency-safe; the glue layer records approvals, the supervisor reads.
type Approvals struct {
	mu       sync.RWMutex
	approved map[string]string // run_id -> approving actor
}

// NewApprovals creates an empty approval registry.
func NewApprovals() *Approvals {
	return &Approvals{approved: make(map[string]string)}
}

// Record registers an approval event for a run.
func (a *Approvals) Record(runID, actor string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.approved[runID] = actor
}

// Approved reports whether the run has a recorded approval.
func (a *Approvals) Approved(runID string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	actor, ok := a.approved[runID]
	return actor, ok
}

// Control exposes the pause/cancel hooks for one supervised run. The hooks
// take effect at the next checkpoint boundary, never mid-checkpoint.
type Control struct {
	mu        sync.Mutex
	paused    bool
	cancelled bool
	resumeCh  chan struct{}
}

// NewControl creates a control handle.
func NewControl() *Control {
	return &Control{}
}

// Pause requests a pause at the next checkpoint.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.cancelled {
		return
	}
	c.paused = true
	c.resumeCh = make(chan struct{})
}

// Resume lifts a pause. The run continues from where it paused; completed
// stages are never rolled back.
func (c *Control) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	close(c.resumeCh)
	c.resumeCh = nil
}

// Cancel requests cancellation at the next checkpoint. A paused run is
// cancelled immediately.
func (c *Control) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
	if c.paused {
		c.paused = false
		close(c.resumeCh)
		c.resumeCh = nil
	}
}

// checkpointGate blocks while paused and reports cancellation.
func (c *Control) checkpointGate(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.cancelled {
			c.mu.Unlock()
			return context.Canceled
		}
		if !c.paused {
			c.mu.Unlock()
			return nil
		}
		ch := c.resumeCh
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Supervisor runs the selected agent against an encoding under supervision.
type Supervisor struct {
	backend         types.ExecutionBackend
	approvals       *Approvals
	bus             *events.Bus
	checkpointLimit int
	timeout         time.Duration
	logger          *zap.Logger
}

// NewSupervisor creates a supervisor over the given backend.
func NewSupervisor(backend types.ExecutionBackend, approvals *Approvals, bus *events.Bus,
	checkpointLimit int, timeout time.Duration, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		backend:         backend,
		approvals:       approvals,
		bus:             bus,
		checkpointLimit: checkpointLimit,
		timeout:         timeout,
		logger:          logger,
	}
}

// Run invokes the backend under supervision and always returns a terminal
// ExecutionRecord; backend errors and panics become status FAILED, never an
// unhandled fault. Invocation holds the raw backend output when execution
// completed.
func (s *Supervisor) Run(ctx context.Context, runID, threadID string, enc types.Encoding, agentID string, control *Control) (types.ExecutionRecord, types.Invocation) {
	record := types.ExecutionRecord{
		Status:           types.ExecQueued,
		AgentID:          agentID,
		CanPause:         true,
		CanCancel:        true,
		RequiresApproval: enc.Sensitivity == types.SensitivitySecret,
	}

	// Secret work must not reach RUNNING without a recorded approval event.
	if record.RequiresApproval {
		actor, ok := s.approvals.Approved(runID)
		if !ok {
			record.Status = types.ExecFailed
			record.Error = "execution requires human approval: sensitivity is secret and no approval event was recorded"
			return record, types.Invocation{}
		}
		s.logger.Info("approved secret execution",
			zap.String("run_id", runID), zap.String("approved_by", actor))
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	record.Status = types.ExecRunning
	start := time.Now()

	checkpoint := func(name string, tokensUsed int) error {
		if err := control.checkpointGate(ctx); err != nil {
			return err
		}
		if len(record.Checkpoints) >= s.checkpointLimit {
			return fmt.Errorf("checkpoint limit %d exceeded", s.checkpointLimit)
		}
		cp := types.Checkpoint{
			Name:       name,
			Sequence:   len(record.Checkpoints) + 1,
			TokensUsed: tokensUsed,
			ReachedAt:  time.Now().UTC(),
		}
		record.Checkpoints = append(record.Checkpoints, cp)
		record.CheckpointsPassed++
		record.TokensUsed = tokensUsed
		if s.bus != nil {
			s.bus.Publish(events.Event{
				Type:     events.CheckpointReached,
				RunID:    runID,
				ThreadID: threadID,
				Stage:    types.StageControlledExecution,
				Message:  name,
			})
		}
		return nil
	}

	invocation, err := s.invoke(ctx, enc, agentID, checkpoint)
	record.ElapsedMs = time.Since(start).Milliseconds()

	switch {
	case err == nil:
		record.Status = types.ExecCompleted
		record.TokensUsed = invocation.TokensUsed
		return record, invocation
	case ctx.Err() == context.DeadlineExceeded:
		record.Status = types.ExecTimeout
		record.Error = "execution timed out"
	case err == context.Canceled || ctx.Err() == context.Canceled:
		record.Status = types.ExecCancelled
		record.Error = "execution cancelled"
	default:
		record.Status = types.ExecFailed
		record.Error = err.Error()
	}
	return record, types.Invocation{}
}

// invoke calls the backend with panic recovery.
func (s *Supervisor) invoke(ctx context.Context, enc types.Encoding, agentID string, checkpoint types.CheckpointFunc) (inv types.Invocation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v", r)
			s.logger.Error("execution backend panicked", zap.Any("panic", r))
		}
	}()
	return s.backend.Invoke(ctx, enc, agentID, checkpoint)
}
