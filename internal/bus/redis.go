package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"staffing-board/internal/telemetry"
)

// DefaultChannel is the pub/sub channel and subject buses share.
const DefaultChannel = "shokuninboshu_bus"

// RedisTransport broadcasts envelopes over Redis pub/sub. The client is
// owned by the caller and is not closed by Close.
type RedisTransport struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger

	mu     sync.Mutex
	subs   []*redis.PubSub
	wg     sync.WaitGroup
	closed bool
}

// NewRedisTransport publishes on channel, or DefaultChannel when empty.
func NewRedisTransport(client *redis.Client, channel string, logger *slog.Logger) *RedisTransport {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = telemetry.Discard()
	}
	return &RedisTransport{client: client, channel: channel, logger: logger}
}

func (r *RedisTransport) Publish(ctx context.Context, env Envelope) error {
	raw, err := Encode(env)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (r *RedisTransport) Subscribe(ctx context.Context, h Handler) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("redis subscribe: transport closed")
	}
	r.mu.Unlock()

	ps := r.client.Subscribe(ctx, r.channel)
	// Wait for the subscription confirmation so no later publish is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}

	r.mu.Lock()
	r.subs = append(r.subs, ps)
	r.mu.Unlock()

	ch := ps.Channel()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				env, err := Decode([]byte(msg.Payload))
				if err != nil {
					r.logger.Warn("drop undecodable event", "channel", msg.Channel, "err", err)
					continue
				}
				h(env)
			}
		}
	}()
	return nil
}

func (r *RedisTransport) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for _, ps := range subs {
		_ = ps.Close()
	}
	r.wg.Wait()
	return nil
}
