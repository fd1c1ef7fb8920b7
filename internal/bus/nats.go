package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"staffing-board/internal/telemetry"
)

// NATSTransport broadcasts envelopes on a NATS subject.
type NATSTransport struct {
	conn    *nats.Conn
	subject string
	owned   bool
	logger  *slog.Logger

	mu     sync.Mutex
	subs   []*nats.Subscription
	closed bool
}

// DialNATS connects to url and returns a transport that owns the connection.
func DialNATS(url, subject string, logger *slog.Logger) (*NATSTransport, error) {
	nc, err := nats.Connect(url, nats.Name("staffing-board"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	t := NewNATSTransport(nc, subject, logger)
	t.owned = true
	return t, nil
}

// NewNATSTransport uses an existing connection; Close leaves it open.
func NewNATSTransport(nc *nats.Conn, subject string, logger *slog.Logger) *NATSTransport {
	if subject == "" {
		subject = DefaultChannel
	}
	if logger == nil {
		logger = telemetry.Discard()
	}
	return &NATSTransport{conn: nc, subject: subject, logger: logger}
}

func (n *NATSTransport) Publish(_ context.Context, env Envelope) error {
	raw, err := Encode(env)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject, raw); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (n *NATSTransport) Subscribe(ctx context.Context, h Handler) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return fmt.Errorf("nats subscribe: transport closed")
	}
	sub, err := n.conn.Subscribe(n.subject, func(m *nats.Msg) {
		env, err := Decode(m.Data)
		if err != nil {
			n.logger.Warn("drop undecodable event", "subject", m.Subject, "err", err)
			return
		}
		h(env)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", n.subject, err)
	}
	// Round trip to the server so the interest is registered before returning.
	if err := n.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("nats flush: %w", err)
	}
	n.subs = append(n.subs, sub)
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

func (n *NATSTransport) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	subs := n.subs
	n.subs = nil
	n.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	if n.owned {
		n.conn.Close()
	}
	return nil
}
