package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffing-board/internal/kvstore"
)

// recorder collects envelopes delivered to a listener from any goroutine.
type recorder struct {
	mu   sync.Mutex
	envs []Envelope
}

func (r *recorder) listen(env Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.envs)
}

func (r *recorder) first() Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.envs[0]
}

// assertMirrored attaches two buses to their transports and checks that an
// emission on one reaches the other exactly once and the emitter once.
func assertMirrored(t *testing.T, ta, tb Transport) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	busA := New(Options{Origin: "a"})
	busB := New(Options{Origin: "b"})
	require.NoError(t, busA.Attach(ctx, ta))
	require.NoError(t, busB.Attach(ctx, tb))
	defer busA.Close()
	defer busB.Close()

	var onA, onB recorder
	busA.On(ApplicationAdded, onA.listen)
	busB.On(ApplicationAdded, onB.listen)

	busA.Emit(ctx, ApplicationAdded, map[string]any{"jobId": "j1", "status": "APPLIED", "headcountFilled": 1})

	require.Eventually(t, func() bool { return onB.count() == 1 }, 3*time.Second, 10*time.Millisecond)
	got := onB.first()
	assert.Equal(t, "j1", got.Data["jobId"])
	assert.Equal(t, onA.first().Data["headcountFilled"], got.Data["headcountFilled"])
	assert.Equal(t, "a", got.Origin)

	// Give any echo time to arrive before checking it was dropped.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, onA.count())
	assert.Equal(t, 1, onB.count())
}

func TestRedisTransportMirrorsBuses(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	assertMirrored(t, NewRedisTransport(client, "", nil), NewRedisTransport(client, "", nil))
}

func TestNATSTransportMirrorsBuses(t *testing.T) {
	srv := natsserver.RunRandClientPortServer()
	defer srv.Shutdown()

	ta, err := DialNATS(srv.ClientURL(), "board.events", nil)
	require.NoError(t, err)
	tb, err := DialNATS(srv.ClientURL(), "board.events", nil)
	require.NoError(t, err)

	assertMirrored(t, ta, tb)
}

func TestStorageTransportMirrorsBusesOverSharedBackend(t *testing.T) {
	shared := kvstore.NewMemoryBackend()
	opts := StorageOptions{PollInterval: 10 * time.Millisecond}
	assertMirrored(t, NewStorageTransport(shared, opts), NewStorageTransport(shared, opts))
}

func TestStorageTransportWakesOnFileChange(t *testing.T) {
	dir := t.TempDir()
	fa, err := kvstore.NewFileBackend(dir)
	require.NoError(t, err)
	fb, err := kvstore.NewFileBackend(dir)
	require.NoError(t, err)

	// A poll interval this long means only the file watch can deliver in time.
	opts := StorageOptions{PollInterval: time.Hour}
	assertMirrored(t, NewStorageTransport(fa, opts), NewStorageTransport(fb, opts))
}

// gatedBackend blocks Load until gate is closed, ignoring cancellation.
type gatedBackend struct {
	*kvstore.MemoryBackend
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedBackend) Load(ctx context.Context, key string) (kvstore.Entry, bool, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.gate
	return g.MemoryBackend.Load(ctx, key)
}

func TestStorageTransportCloseWaitsForStartingSubscriber(t *testing.T) {
	backend := &gatedBackend{
		MemoryBackend: kvstore.NewMemoryBackend(),
		entered:       make(chan struct{}, 1),
		gate:          make(chan struct{}),
	}
	tr := NewStorageTransport(backend, StorageOptions{PollInterval: 10 * time.Millisecond})

	subscribed := make(chan error, 1)
	go func() { subscribed <- tr.Subscribe(context.Background(), func(Envelope) {}) }()
	<-backend.entered

	closed := make(chan struct{})
	go func() {
		_ = tr.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned while Subscribe was still starting")
	case <-time.After(50 * time.Millisecond):
	}

	close(backend.gate)
	require.NoError(t, <-subscribed)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after the subscriber stopped")
	}
}

func TestStorageTransportSkipsEventsBeforeSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shared := kvstore.NewMemoryBackend()
	opts := StorageOptions{PollInterval: 10 * time.Millisecond}

	pub := NewStorageTransport(shared, opts)
	require.NoError(t, pub.Publish(ctx, Envelope{ID: "old", Type: DMSent, Origin: "x"}))

	sub := NewStorageTransport(shared, opts)
	defer sub.Close()
	var rec recorder
	require.NoError(t, sub.Subscribe(ctx, rec.listen))

	require.NoError(t, pub.Publish(ctx, Envelope{ID: "new", Type: DMSent, Origin: "x"}))
	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "new", rec.first().ID)
}

func TestStorageTransportTrimsRing(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	shared := kvstore.NewMemoryBackend()
	tr := NewStorageTransport(shared, StorageOptions{
		TTL:        time.Minute,
		MaxEntries: 3,
		Now:        func() time.Time { return now },
	})

	for _, id := range []string{"e1", "e2", "e3", "e4"} {
		require.NoError(t, tr.Publish(ctx, Envelope{ID: id, Type: JobPublished}))
	}
	entries, _, err := tr.read(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "e2", entries[0].ID)

	now = now.Add(2 * time.Minute)
	require.NoError(t, tr.Publish(ctx, Envelope{ID: "e5", Type: JobPublished}))
	entries, _, err = tr.read(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "e5", entries[0].ID)
}

func TestStorageTransportIgnoresMalformedRing(t *testing.T) {
	ctx := context.Background()
	shared := kvstore.NewMemoryBackend()
	_, err := shared.Save(ctx, defaultStorageKey, []byte(`garbage`), kvstore.AnyVersion)
	require.NoError(t, err)

	tr := NewStorageTransport(shared, StorageOptions{})
	require.NoError(t, tr.Publish(ctx, Envelope{ID: "e1", Type: DMReply}))
	entries, _, err := tr.read(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
