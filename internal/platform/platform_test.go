package platform

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffing-board/internal/bus"
	"staffing-board/internal/config"
	"staffing-board/internal/models"
	"staffing-board/internal/snapshot"
	"staffing-board/internal/telemetry"
)

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		StoreBackend:  "memory",
		StorePrefix:   "test_",
		StorePath:     t.TempDir(),
		BusTransport:  "none",
		BusChannel:    "board_test",
		Gateway:       "none",
		RosterSeed:    true,
		SnapshotDir:   t.TempDir(),
		PushTimeout:   time.Second,
		NotifyRateTTL: time.Minute,
	}
}

func open(t *testing.T, cfg config.Config) *Platform {
	t.Helper()
	p, err := Open(context.Background(), cfg, telemetry.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestOpenMemory(t *testing.T) {
	p := open(t, baseConfig(t))
	assert.NotEmpty(t, p.Roster.List(context.Background()), "roster is seeded")
	assert.Nil(t, p.Gateway)
	assert.Nil(t, p.Notifier())

	up, err := p.SnapshotUploader(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &snapshot.LocalUploader{}, up)
}

func TestOpenBackends(t *testing.T) {
	for _, backend := range []string{"sqlite", "file"} {
		t.Run(backend, func(t *testing.T) {
			cfg := baseConfig(t)
			cfg.StoreBackend = backend
			cfg.BusTransport = "storage"
			p := open(t, cfg)

			_, err := p.Repo.Jobs.Create(context.Background(), models.JobInput{Trade: "大工", HeadcountNeeded: 1})
			require.NoError(t, err)
			require.NoError(t, p.Close())

			reopened := open(t, cfg)
			assert.Len(t, reopened.Repo.Jobs.List(context.Background()), 1, "jobs survive a restart")
		})
	}
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig(t)
	cfg.StoreBackend = "redis"
	cfg.BusTransport = "redis"
	cfg.RedisAddr = mr.Addr()
	cfg.Gateway = "line"
	cfg.LineChannelAccessToken = "token"
	cfg.NotifyRateCapacity = 2

	a := open(t, cfg)
	b := open(t, cfg)
	assert.NotNil(t, a.Notifier())

	got := make(chan bus.Envelope, 1)
	b.Bus.On(bus.JobPublished, func(env bus.Envelope) { got <- env })

	job, err := a.Repo.Jobs.Create(context.Background(), models.JobInput{Trade: "電気", HeadcountNeeded: 1})
	require.NoError(t, err)
	select {
	case env := <-got:
		assert.Equal(t, job.ID, env.Data["id"])
	case <-time.After(2 * time.Second):
		t.Fatal("event did not cross processes")
	}
	_, ok := b.Repo.Jobs.Get(context.Background(), job.ID)
	assert.True(t, ok)
}

func TestOpenNATS(t *testing.T) {
	srv := natsserver.RunRandClientPortServer()
	t.Cleanup(srv.Shutdown)

	cfg := baseConfig(t)
	cfg.BusTransport = "nats"
	cfg.NATSURL = srv.ClientURL()
	p := open(t, cfg)
	assert.NotNil(t, p.Bus)
}

func TestOpenErrors(t *testing.T) {
	cfg := baseConfig(t)
	cfg.StoreBackend = "etcd"
	_, err := Open(context.Background(), cfg, telemetry.Discard())
	assert.ErrorContains(t, err, "unknown store backend")

	cfg = baseConfig(t)
	cfg.BusTransport = "kafka"
	_, err = Open(context.Background(), cfg, telemetry.Discard())
	assert.ErrorContains(t, err, "unknown bus transport")

	cfg = baseConfig(t)
	cfg.Gateway = "sms"
	_, err = Open(context.Background(), cfg, telemetry.Discard())
	assert.ErrorContains(t, err, "unknown gateway")

	cfg = baseConfig(t)
	cfg.StoreBackend = "file"
	cfg.StorePath = filepath.Join(t.TempDir(), "missing", "\x00bad")
	_, err = Open(context.Background(), cfg, telemetry.Discard())
	assert.Error(t, err)
}
