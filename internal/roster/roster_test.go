package roster

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffing-board/internal/gateway"
	"staffing-board/internal/kvstore"
	"staffing-board/internal/models"
)

type textGateway struct {
	mu   sync.Mutex
	sent map[string]string
	err  error
}

func (g *textGateway) Push(context.Context, string, gateway.Notice) error { return nil }

func (g *textGateway) PushText(_ context.Context, to, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sent == nil {
		g.sent = map[string]string{}
	}
	g.sent[to] = text
	return g.err
}

func newRoster(t *testing.T, gw gateway.Gateway) *Roster {
	t.Helper()
	r, _ := newClockedRoster(t, gw)
	return r
}

func newClockedRoster(t *testing.T, gw gateway.Gateway) (*Roster, *time.Time) {
	t.Helper()
	clock := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	st := kvstore.New(kvstore.NewMemoryBackend(), kvstore.Options{})
	return New(st, Options{Gateway: gw, Now: func() time.Time { return clock }}), &clock
}

func TestSeedOnlyOnce(t *testing.T) {
	ctx := context.Background()
	r := newRoster(t, nil)

	seeded, err := r.Seed(ctx)
	require.NoError(t, err)
	assert.True(t, seeded)
	assert.Len(t, r.List(ctx), len(DemoCandidates()))

	require.NoError(t, r.Replace(ctx, nil))
	seeded, err = r.Seed(ctx)
	require.NoError(t, err)
	assert.False(t, seeded, "an emptied roster is not reseeded")
	assert.Empty(t, r.List(ctx))
}

func TestUpsertMergesAndRemove(t *testing.T) {
	ctx := context.Background()
	r := newRoster(t, nil)

	_, err := r.Upsert(ctx, models.Candidate{ID: "U1", Name: "田中一郎", Trade: "大工", Pref: "東京"})
	require.NoError(t, err)
	merged, err := r.Upsert(ctx, models.Candidate{ID: "U1", City: "新宿区"})
	require.NoError(t, err)
	assert.Equal(t, "田中一郎", merged.Name)
	assert.Equal(t, "新宿区", merged.City)

	got, ok := r.Get(ctx, "U1")
	require.True(t, ok)
	assert.Equal(t, merged, got)

	_, err = r.Upsert(ctx, models.Candidate{Name: "no id"})
	assert.Error(t, err)

	removed, err := r.Remove(ctx, "U1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = r.Remove(ctx, "U1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestMaskUserID(t *testing.T) {
	assert.Equal(t, "Uxxxxxxxxxxxxxxxxx...abcd", MaskUserID("U12345678901234567890abcd"))
	assert.Equal(t, "U...5678", MaskUserID("U2345678"))
	assert.Equal(t, "a...bcde", MaskUserID("abcde"))
	assert.Equal(t, "abcd", MaskUserID("abcd"))
	assert.Equal(t, "", MaskUserID(""))
}

func webhookEvent(typ, userID string) WebhookEvent {
	var ev WebhookEvent
	ev.Type = typ
	ev.Source.Type = "user"
	ev.Source.UserID = userID
	return ev
}

func TestHandleEvents(t *testing.T) {
	ctx := context.Background()
	gw := &textGateway{}
	r, clock := newClockedRoster(t, gw)

	require.NoError(t, r.HandleEvents(ctx, []WebhookEvent{webhookEvent("follow", "Uabcdef0123456789")}))
	c, ok := r.Get(ctx, "Uabcdef0123456789")
	require.True(t, ok)
	assert.Equal(t, "候補者Uabcdef0", c.Name)
	assert.Equal(t, models.CandidateActive, c.Status)
	assert.Equal(t, "line", c.Source)
	assert.Equal(t, "2026-04-01T09:00:00Z", c.LastSeenAt)
	assert.Equal(t, WelcomeText, gw.sent["Uabcdef0123456789"])

	*clock = clock.Add(time.Hour)
	require.NoError(t, r.HandleEvents(ctx, []WebhookEvent{
		webhookEvent("message", "Uabcdef0123456789"),
		webhookEvent("message", "Uunknown"),
		webhookEvent("postback", "Uabcdef0123456789"),
		webhookEvent("follow", ""),
	}))
	c, _ = r.Get(ctx, "Uabcdef0123456789")
	assert.Equal(t, "2026-04-01T10:00:00Z", c.LastSeenAt)
	_, ok = r.Get(ctx, "Uunknown")
	assert.False(t, ok, "messages from unknown users do not create candidates")
	assert.Len(t, r.List(ctx), 1)

	require.NoError(t, r.HandleEvents(ctx, []WebhookEvent{webhookEvent("unfollow", "Uabcdef0123456789")}))
	c, _ = r.Get(ctx, "Uabcdef0123456789")
	assert.Equal(t, models.CandidateBlocked, c.Status)

	// Following again reactivates without renaming.
	_, err := r.Upsert(ctx, models.Candidate{ID: "Uabcdef0123456789", Name: "山田太郎"})
	require.NoError(t, err)
	require.NoError(t, r.HandleEvents(ctx, []WebhookEvent{webhookEvent("follow", "Uabcdef0123456789")}))
	c, _ = r.Get(ctx, "Uabcdef0123456789")
	assert.Equal(t, models.CandidateActive, c.Status)
	assert.Equal(t, "山田太郎", c.Name)
}

func TestFollowSurvivesWelcomeFailure(t *testing.T) {
	ctx := context.Background()
	r := newRoster(t, &textGateway{err: errors.New("line push: status 500")})

	require.NoError(t, r.HandleEvents(ctx, []WebhookEvent{webhookEvent("follow", "U1234")}))
	c, ok := r.Get(ctx, "U1234")
	require.True(t, ok)
	assert.Equal(t, "候補者U1234", c.Name)
}

func textMessage(userID, text string) WebhookEvent {
	ev := webhookEvent("message", userID)
	ev.Message = &struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{Type: "text", Text: text}
	return ev
}

func TestApplyReplyFromKnownCandidate(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	clock := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	st := kvstore.New(kvstore.NewMemoryBackend(), kvstore.Options{})
	r := New(st, Options{
		Logger: slog.New(slog.NewTextHandler(&logs, nil)),
		Now:    func() time.Time { return clock },
	})
	_, err := r.Upsert(ctx, models.Candidate{ID: "U1", Name: "山田太郎"})
	require.NoError(t, err)

	assert.Empty(t, webhookEvent("message", "U1").Text())

	clock = clock.Add(time.Hour)
	require.NoError(t, r.HandleEvents(ctx, []WebhookEvent{
		textMessage("U1", "応募します"),
		textMessage("Unknown000", "応募します"),
	}))
	c, _ := r.Get(ctx, "U1")
	assert.Equal(t, "2026-04-01T10:00:00Z", c.LastSeenAt)
	assert.Equal(t, 1, strings.Count(logs.String(), "apply reply received"))
	_, ok := r.Get(ctx, "Unknown000")
	assert.False(t, ok)

	logs.Reset()
	require.NoError(t, r.HandleEvents(ctx, []WebhookEvent{textMessage("U1", "辞退します")}))
	assert.NotContains(t, logs.String(), "apply reply received")
}

type chanFeed struct {
	mu      sync.Mutex
	lists   [][]models.Candidate
	listErr error
	changes chan struct{}
	calls   int
}

func (f *chanFeed) List(context.Context) ([]models.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.listErr != nil {
		err := f.listErr
		f.listErr = nil
		return nil, err
	}
	if len(f.lists) == 0 {
		return nil, nil
	}
	next := f.lists[0]
	if len(f.lists) > 1 {
		f.lists = f.lists[1:]
	}
	return next, nil
}

func (f *chanFeed) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.changes:
		return nil
	}
}

func TestSyncMirrorsFeed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := newRoster(t, nil)

	feed := &chanFeed{
		listErr: errors.New("connection refused"),
		lists: [][]models.Candidate{
			{{ID: "U1", Name: "一"}},
			{{ID: "U1", Name: "一"}, {ID: "U2", Name: "二"}},
		},
		changes: make(chan struct{}),
	}
	done := make(chan error, 1)
	go func() {
		done <- r.Sync(ctx, feed, SyncOptions{BackoffInitial: time.Millisecond, BackoffMax: 5 * time.Millisecond})
	}()

	require.Eventually(t, func() bool { return len(r.List(ctx)) == 1 }, time.Second, 5*time.Millisecond)
	feed.changes <- struct{}{}
	require.Eventually(t, func() bool { return len(r.List(ctx)) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sync did not stop")
	}
}

func TestBackoffWithJitter(t *testing.T) {
	base, max := 100*time.Millisecond, time.Second
	for attempt := 1; attempt < 8; attempt++ {
		d := backoffWithJitter(base, max, attempt)
		assert.LessOrEqual(t, d, max)
		assert.Positive(t, d)
	}
	assert.Equal(t, base, backoffWithJitter(base, max, 0))
}
