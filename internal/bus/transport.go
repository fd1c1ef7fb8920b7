package bus

import "context"

// Handler receives envelopes from a Transport.
type Handler func(Envelope)

// Transport carries envelopes between buses in different processes.
//
// Subscribe returns once the subscription is live and delivers on a
// background goroutine until ctx is done or the transport is closed.
// Delivery is best effort; a transport may also echo a publisher's own
// envelopes back to it.
type Transport interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}
