// Package events provides the stage-transition event bus. Subscribers get a
// token they can use to unsubscribe; registration and removal are safe across
// multiple in-flight runs. Dispatch is synchronous so event order within one
// run always matches stage order.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"gatekeep/internal/types"
)

// EventType identifies a pipeline event.
type EventType string

const (
	StageStarted      EventType = "STAGE_STARTED"
	StageCompleted    EventType = "STAGE_COMPLETED"
	StageFailed       EventType = "STAGE_FAILED"
	CheckpointReached EventType = "CHECKPOINT_REACHED"
	PipelineCompleted EventType = "PIPELINE_COMPLETED"
	PipelineFailed    EventType = "PIPELINE_FAILED"
)

// Event is one stage-transition or checkpoint notification.
type Event struct {
	Sequence  uint64
	Type      EventType
	RunID     string
	ThreadID  string
	Stage     types.Stage
	Message   string
	Timestamp time.Time
}

// Handler receives events. Handlers run on the emitting goroutine and must
// not block; slow consumers should hand off to their own channel.
type Handler func(Event)

// Subscription is the unsubscribe token returned by Subscribe.
type Subscription struct {
	id  uint64
	bus *Bus
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.mu.Lock()
	delete(s.bus.handlers, s.id)
	s.bus.mu.Unlock()
	s.bus = nil
}

// Bus dispatches pipeline events to registered handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[uint64]Handler
	nextID   uint64
	sequence atomic.Uint64
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[uint64]Handler)}
}

// Subscribe registers a handler and returns its unsubscribe token.
func (b *Bus) Subscribe(h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[id] = h
	return &Subscription{id: id, bus: b}
}

// Publish delivers an event to all current subscribers. Dispatch is
// synchronous on the caller's goroutine, so a single run's events arrive at
// every subscriber in stage order.
func (b *Bus) Publish(ev Event) {
	ev.Sequence = b.sequence.Add(1)
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		hs = append(hs, h)
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(ev)
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// TotalEmitted returns how many events have been published.
func (b *Bus) TotalEmitted() uint64 {
	return b.sequence.Load()
}
