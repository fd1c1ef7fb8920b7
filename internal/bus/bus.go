package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"staffing-board/internal/telemetry"
)

// Listener is called once per matching envelope.
type Listener func(Envelope)

// ListenerID identifies a registration for Off.
type ListenerID uint64

type registration struct {
	id ListenerID
	fn Listener
}

// Options configures a Bus. Zero values are usable.
type Options struct {
	Logger *slog.Logger
	// Origin tags envelopes published by this bus; defaults to a random id.
	Origin string
	Now    func() time.Time
}

// Bus is an in-process publish/subscribe hub. Listeners run synchronously on
// the emitting goroutine in registration order.
type Bus struct {
	logger *slog.Logger
	origin string
	now    func() time.Time

	mu        sync.RWMutex
	listeners map[EventType][]registration
	nextID    ListenerID
	transport Transport
	cancel    context.CancelFunc
	closed    bool
}

// New returns a local-only bus. Use Attach to mirror it across processes.
func New(opts Options) *Bus {
	b := &Bus{
		logger:    opts.Logger,
		origin:    opts.Origin,
		now:       opts.Now,
		listeners: make(map[EventType][]registration),
	}
	if b.logger == nil {
		b.logger = telemetry.Discard()
	}
	if b.origin == "" {
		b.origin = uuid.NewString()
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// Origin returns the tag this bus stamps on outgoing envelopes.
func (b *Bus) Origin() string { return b.origin }

// Attach subscribes to t and publishes every later emission through it.
// Attaching a second transport replaces the first, which is closed.
func (b *Bus) Attach(ctx context.Context, t Transport) error {
	subCtx, cancel := context.WithCancel(ctx)
	if err := t.Subscribe(subCtx, b.receive); err != nil {
		cancel()
		return fmt.Errorf("subscribe transport: %w", err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		cancel()
		_ = t.Close()
		return fmt.Errorf("attach transport: bus closed")
	}
	prev, prevCancel := b.transport, b.cancel
	b.transport, b.cancel = t, cancel
	b.mu.Unlock()

	if prev != nil {
		prevCancel()
		if err := prev.Close(); err != nil {
			b.logger.Warn("close previous transport", "err", err)
		}
	}
	return nil
}

// On registers fn for events of type t, or for all events when t is AnyEvent.
func (b *Bus) On(t EventType, fn Listener) ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.listeners[t] = append(b.listeners[t], registration{id: id, fn: fn})
	return id
}

// Off removes a registration. Unknown ids are ignored.
func (b *Bus) Off(t EventType, id ListenerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	regs := b.listeners[t]
	for i, r := range regs {
		if r.id == id {
			// Copy so a delivery in progress keeps its snapshot.
			next := make([]registration, 0, len(regs)-1)
			next = append(next, regs[:i]...)
			next = append(next, regs[i+1:]...)
			b.listeners[t] = next
			return
		}
	}
}

// Emit builds an envelope, publishes it on the transport when one is
// attached, and delivers it to local listeners before returning.
// Transport failures are logged and not retried.
func (b *Bus) Emit(ctx context.Context, t EventType, data map[string]any) Envelope {
	if data == nil {
		data = map[string]any{}
	}
	env := Envelope{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: b.now().UnixMilli(),
		Data:      data,
		Origin:    b.origin,
	}
	telemetry.EventsEmitted.WithLabelValues(string(t)).Inc()

	b.mu.RLock()
	transport := b.transport
	b.mu.RUnlock()
	if transport != nil {
		if err := transport.Publish(ctx, env); err != nil {
			telemetry.TransportFailures.Inc()
			b.logger.Warn("publish event", "type", t, "err", err)
		}
	}

	b.deliver(env)
	return env
}

// receive handles envelopes arriving from the transport.
func (b *Bus) receive(env Envelope) {
	if env.Origin == b.origin {
		return
	}
	telemetry.EventsReceived.WithLabelValues(string(env.Type)).Inc()
	b.deliver(env)
}

func (b *Bus) deliver(env Envelope) {
	b.mu.RLock()
	typed := b.listeners[env.Type]
	wildcard := b.listeners[AnyEvent]
	b.mu.RUnlock()

	for _, r := range typed {
		b.call(r, env)
	}
	if env.Type != AnyEvent {
		for _, r := range wildcard {
			b.call(r, env)
		}
	}
}

func (b *Bus) call(r registration, env Envelope) {
	defer func() {
		if p := recover(); p != nil {
			telemetry.ListenerPanics.Inc()
			b.logger.Error("bus listener panicked", "type", env.Type, "listener", r.id, "panic", p)
		}
	}()
	r.fn(env)
}

// Close detaches and closes the transport. Local delivery keeps working.
func (b *Bus) Close() error {
	b.mu.Lock()
	t, cancel := b.transport, b.cancel
	b.transport, b.cancel = nil, nil
	b.closed = true
	b.mu.Unlock()
	if t == nil {
		return nil
	}
	cancel()
	return t.Close()
}
