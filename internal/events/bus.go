package events

import (
	"context"
	"sync"

	"github.com/nerrad567/garage-relay/internal/infrastructure/logging"
)

// Publisher accepts events. The Bus implements it; handlers depend on it.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Sink receives every event published on a Bus.
type Sink interface {
	// Name identifies the sink in logs.
	Name() string

	// Handle processes one event. Errors are logged by the Bus.
	Handle(ctx context.Context, e Event) error
}

// Bus delivers each event to every sink on a background goroutine.
//
// Thread Safety: all methods are safe for concurrent use.
type Bus struct {
	logger *logging.Logger

	mu     sync.RWMutex
	sinks  []Sink
	closed bool

	wg sync.WaitGroup
}

// NewBus creates a Bus with no sinks.
func NewBus(logger *logging.Logger) *Bus {
	return &Bus{logger: logger}
}

// Add registers a sink. Events already in flight are not delivered to it.
func (b *Bus) Add(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Sinks returns the names of the registered sinks.
func (b *Bus) Sinks() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, len(b.sinks))
	for i, s := range b.sinks {
		names[i] = s.Name()
	}
	return names
}

// Publish stamps e with an ID and timestamp and delivers it asynchronously.
// Cancelling ctx does not stop delivery. Events published after Close are
// dropped.
func (b *Bus) Publish(ctx context.Context, e Event) {
	e.fill()

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed || len(b.sinks) == 0 {
		return
	}
	sinks := append([]Sink(nil), b.sinks...)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.deliver(context.WithoutCancel(ctx), sinks, e)
	}()
}

func (b *Bus) deliver(ctx context.Context, sinks []Sink, e Event) {
	for _, s := range sinks {
		b.handle(ctx, s, e)
	}
}

func (b *Bus) handle(ctx context.Context, s Sink, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event sink panic recovered",
				"sink", s.Name(),
				"event_type", string(e.Type),
				"panic", r,
			)
		}
	}()

	if err := s.Handle(ctx, e); err != nil {
		b.logger.Warn("event sink failed",
			"sink", s.Name(),
			"event_type", string(e.Type),
			"event_id", e.ID,
			"error", err,
		)
	}
}

// Wait blocks until every published event has been delivered.
func (b *Bus) Wait() {
	b.wg.Wait()
}

// Close stops accepting events and waits for deliveries in flight.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}

// Discard is a Publisher that drops every event.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(context.Context, Event) {}
