package execution

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"gatekeep/internal/events"
	"gatekeep/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testEncoding() types.Encoding {
	return types.Encoding{
		Action:          types.ActionCreate,
		DataSource:      types.SourceSphere,
		Sensitivity:     types.SensitivityInternal,
		Domains:         []string{"projects"},
		EstimatedTokens: 400,
	}
}

func TestRunCompletes(t *testing.T) {
	sup := NewSupervisor(NewScriptedBackend(), NewApprovals(), nil, 100, 0, nil)

	record, inv := sup.Run(context.Background(), "run-1", "thread-1", testEncoding(), "agent-creator", NewControl())
	if record.Status != types.ExecCompleted {
		t.Fatalf("status = %s, want completed (error: %s)", record.Status, record.Error)
	}
	if record.CheckpointsPassed != 4 {
		t.Fatalf("checkpoints passed = %d, want 4", record.CheckpointsPassed)
	}
	for i, cp := range record.Checkpoints {
		if cp.Sequence != i+1 {
			t.Fatalf("checkpoint %d has sequence %d", i, cp.Sequence)
		}
	}
	if inv.Output == "" || inv.TokensUsed == 0 {
		t.Fatalf("completed invocation must carry output and usage, got %+v", inv)
	}
	if record.TokensUsed != inv.TokensUsed {
		t.Fatalf("record tokens %d != invocation tokens %d", record.TokensUsed, inv.TokensUsed)
	}
}

func TestBackendFailureBecomesFailedRecord(t *testing.T) {
	backend := NewScriptedBackend()
	backend.FailAt = "apply"
	sup := NewSupervisor(backend, NewApprovals(), nil, 100, 0, nil)

	record, _ := sup.Run(context.Background(), "run-1", "t", testEncoding(), "a", NewControl())
	if record.Status != types.ExecFailed {
		t.Fatalf("status = %s, want failed", record.Status)
	}
	if !strings.Contains(record.Error, "apply") {
		t.Fatalf("error should name the milestone: %s", record.Error)
	}
	// The checkpoints reached before the fault are kept.
	if record.CheckpointsPassed != 3 {
		t.Fatalf("checkpoints passed = %d, want 3", record.CheckpointsPassed)
	}
}

type panicBackend struct{}

func (panicBackend) Invoke(context.Context, types.Encoding, string, types.CheckpointFunc) (types.Invocation, error) {
	panic("backend blew up")
}

func TestBackendPanicBecomesFailedRecord(t *testing.T) {
	sup := NewSupervisor(panicBackend{}, NewApprovals(), nil, 100, 0, nil)
	record, _ := sup.Run(context.Background(), "run-1", "t", testEncoding(), "a", NewControl())
	if record.Status != types.ExecFailed {
		t.Fatalf("status = %s, want failed", record.Status)
	}
	if !strings.Contains(record.Error, "panic") {
		t.Fatalf("error should report the panic: %s", record.Error)
	}
}

func TestSecretWithoutApprovalNeverRuns(t *testing.T) {
	invoked := false
	backend := backendFunc(func(context.Context, types.Encoding, string, types.CheckpointFunc) (types.Invocation, error) {
		invoked = true
		return types.Invocation{}, nil
	})
	sup := NewSupervisor(backend, NewApprovals(), nil, 100, 0, nil)

	enc := testEncoding()
	enc.Sensitivity = types.SensitivitySecret
	record, _ := sup.Run(context.Background(), "run-1", "t", enc, "a", NewControl())

	if invoked {
		t.Fatal("backend must not be invoked without an approval")
	}
	if record.Status != types.ExecFailed {
		t.Fatalf("status = %s, want failed", record.Status)
	}
	if !record.RequiresApproval {
		t.Fatal("record should flag the approval requirement")
	}
	if !strings.Contains(record.Error, "approval") {
		t.Fatalf("error should mention approval: %s", record.Error)
	}
}

type backendFunc func(context.Context, types.Encoding, string, types.CheckpointFunc) (types.Invocation, error)

func (f backendFunc) Invoke(ctx context.Context, enc types.Encoding, agentID string, cp types.CheckpointFunc) (types.Invocation, error) {
	return f(ctx, enc, agentID, cp)
}

func TestSecretWithApprovalRuns(t *testing.T) {
	approvals := NewApprovals()
	approvals.Record("run-1", "supervisor@example")
	sup := NewSupervisor(NewScriptedBackend(), approvals, nil, 100, 0, nil)

	enc := testEncoding()
	enc.Sensitivity = types.SensitivitySecret
	record, _ := sup.Run(context.Background(), "run-1", "t", enc, "a", NewControl())
	if record.Status != types.ExecCompleted {
		t.Fatalf("approved secret run should complete, got %s (%s)", record.Status, record.Error)
	}
}

func TestCancelStopsAtNextCheckpoint(t *testing.T) {
	backend := NewScriptedBackend()
	sup := NewSupervisor(backend, NewApprovals(), nil, 100, 0, nil)

	control := NewControl()
	control.Cancel()
	record, _ := sup.Run(context.Background(), "run-1", "t", testEncoding(), "a", control)
	if record.Status != types.ExecCancelled {
		t.Fatalf("status = %s, want cancelled", record.Status)
	}
	if record.CheckpointsPassed != 0 {
		t.Fatalf("cancel before the first checkpoint should pass none, got %d", record.CheckpointsPassed)
	}
}

func TestPauseHoldsAtCheckpointUntilResume(t *testing.T) {
	backend := NewScriptedBackend()
	sup := NewSupervisor(backend, NewApprovals(), nil, 100, 0, nil)

	control := NewControl()
	control.Pause()

	done := make(chan types.ExecutionRecord, 1)
	go func() {
		record, _ := sup.Run(context.Background(), "run-1", "t", testEncoding(), "a", control)
		done <- record
	}()

	select {
	case <-done:
		t.Fatal("paused run must not finish")
	case <-time.After(50 * time.Millisecond):
	}

	control.Resume()
	select {
	case record := <-done:
		if record.Status != types.ExecCompleted {
			t.Fatalf("resumed run should complete, got %s (%s)", record.Status, record.Error)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("resumed run did not finish")
	}
}

func TestCancelWhilePaused(t *testing.T) {
	sup := NewSupervisor(NewScriptedBackend(), NewApprovals(), nil, 100, 0, nil)

	control := NewControl()
	control.Pause()

	done := make(chan types.ExecutionRecord, 1)
	go func() {
		record, _ := sup.Run(context.Background(), "run-1", "t", testEncoding(), "a", control)
		done <- record
	}()

	time.Sleep(20 * time.Millisecond)
	control.Cancel()
	select {
	case record := <-done:
		if record.Status != types.ExecCancelled {
			t.Fatalf("status = %s, want cancelled", record.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled run did not finish")
	}
}

func TestTimeout(t *testing.T) {
	backend := NewScriptedBackend()
	backend.StepDelay = 50 * time.Millisecond
	sup := NewSupervisor(backend, NewApprovals(), nil, 100, 30*time.Millisecond, nil)

	record, _ := sup.Run(context.Background(), "run-1", "t", testEncoding(), "a", NewControl())
	if record.Status != types.ExecTimeout {
		t.Fatalf("status = %s, want timeout", record.Status)
	}
}

func TestCheckpointLimit(t *testing.T) {
	sup := NewSupervisor(NewScriptedBackend(), NewApprovals(), nil, 2, 0, nil)
	record, _ := sup.Run(context.Background(), "run-1", "t", testEncoding(), "a", NewControl())
	if record.Status != types.ExecFailed {
		t.Fatalf("status = %s, want failed on checkpoint limit", record.Status)
	}
	if !strings.Contains(record.Error, "checkpoint limit") {
		t.Fatalf("error = %s", record.Error)
	}
}

func TestCheckpointEventsPublished(t *testing.T) {
	bus := events.NewBus()
	var names []string
	sub := bus.Subscribe(func(ev events.Event) {
		if ev.Type == events.CheckpointReached {
			names = append(names, ev.Message)
		}
	})
	defer sub.Unsubscribe()

	sup := NewSupervisor(NewScriptedBackend(), NewApprovals(), bus, 100, 0, nil)
	if record, _ := sup.Run(context.Background(), "run-1", "t", testEncoding(), "a", NewControl()); record.Status != types.ExecCompleted {
		t.Fatalf("status = %s", record.Status)
	}

	want := []string{"prepare", "retrieve", "apply", "finalize"}
	if len(names) != len(want) {
		t.Fatalf("got %d checkpoint events, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, names[i], want[i])
		}
	}
}
