package events

import (
	"sync"
	"testing"

	"go.uber.org/goleak"

	"gatekeep/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	bus := NewBus()

	var got []Event
	sub := bus.Subscribe(func(ev Event) { got = append(got, ev) })

	bus.Publish(Event{Type: StageStarted, RunID: "r1", Stage: types.StageIntentCapture})
	bus.Publish(Event{Type: StageCompleted, RunID: "r1", Stage: types.StageIntentCapture})

	if len(got) != 2 {
		t.Fatalf("received %d events, want 2", len(got))
	}
	if got[0].Type != StageStarted || got[1].Type != StageCompleted {
		t.Fatalf("events out of order: %v, %v", got[0].Type, got[1].Type)
	}
	if got[0].Sequence >= got[1].Sequence {
		t.Fatalf("sequence numbers must increase: %d then %d", got[0].Sequence, got[1].Sequence)
	}

	sub.Unsubscribe()
	bus.Publish(Event{Type: PipelineCompleted, RunID: "r1"})
	if len(got) != 2 {
		t.Fatal("unsubscribed handler must not receive events")
	}
	// Second unsubscribe is a no-op.
	sub.Unsubscribe()

	if bus.SubscriberCount() != 0 {
		t.Fatalf("subscriber count = %d, want 0", bus.SubscriberCount())
	}
	if bus.TotalEmitted() != 3 {
		t.Fatalf("total emitted = %d, want 3", bus.TotalEmitted())
	}
}

func TestConcurrentSubscribers(t *testing.T) {
	bus := NewBus()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := bus.Subscribe(func(Event) {})
			bus.Publish(Event{Type: StageStarted})
			sub.Unsubscribe()
		}()
	}
	wg.Wait()

	if bus.SubscriberCount() != 0 {
		t.Fatalf("subscriber count = %d, want 0 after all unsubscribed", bus.SubscriberCount())
	}
}

func TestPerRunOrdering(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	perRun := make(map[string][]EventType)
	sub := bus.Subscribe(func(ev Event) {
		mu.Lock()
		perRun[ev.RunID] = append(perRun[ev.RunID], ev.Type)
		mu.Unlock()
	})
	defer sub.Unsubscribe()

	// Two concurrent runs each publish their own ordered sequence.
	var wg sync.WaitGroup
	for _, runID := range []string{"r1", "r2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(Event{Type: StageStarted, RunID: runID})
			bus.Publish(Event{Type: StageCompleted, RunID: runID})
			bus.Publish(Event{Type: PipelineCompleted, RunID: runID})
		}()
	}
	wg.Wait()

	want := []EventType{StageStarted, StageCompleted, PipelineCompleted}
	for runID, seq := range perRun {
		if len(seq) != len(want) {
			t.Fatalf("run %s saw %d events, want %d", runID, len(seq), len(want))
		}
		for i := range want {
			if seq[i] != want[i] {
				t.Fatalf("run %s event %d = %s, want %s", runID, i, seq[i], want[i])
			}
		}
	}
}
