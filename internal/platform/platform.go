// Package platform assembles the store, bus, repositories and gateways from
// configuration. Both commands start from Open.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"staffing-board/internal/bus"
	"staffing-board/internal/config"
	"staffing-board/internal/gateway"
	"staffing-board/internal/kvstore"
	"staffing-board/internal/notify"
	"staffing-board/internal/ratelimit"
	"staffing-board/internal/repo"
	"staffing-board/internal/roster"
	"staffing-board/internal/snapshot"
	"staffing-board/internal/store"
)

// Platform is the set of shared components for one process.
type Platform struct {
	Config   config.Config
	Logger   *slog.Logger
	Store    *kvstore.Store
	Backend  kvstore.Backend
	Bus      *bus.Bus
	Repo     *repo.Repository
	Roster   *roster.Roster
	Gateway  gateway.Gateway
	Postgres *store.Store
	Redis    *redis.Client

	ownsPostgres bool
	ownsRedis    bool
}

// Open connects the configured backends. On error everything opened so far
// is closed.
func Open(ctx context.Context, cfg config.Config, log *slog.Logger) (p *Platform, err error) {
	p = &Platform{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			_ = p.Close()
			p = nil
		}
	}()

	if cfg.StoreBackend == "redis" || cfg.BusTransport == "redis" {
		p.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		p.ownsRedis = true
	}
	if cfg.StoreBackend == "postgres" || cfg.RosterFeed {
		if p.Postgres, err = store.New(ctx, cfg.PostgresDSN); err != nil {
			return p, fmt.Errorf("connect postgres: %w", err)
		}
		p.ownsPostgres = true
		if err = p.Postgres.RunMigrations(ctx); err != nil {
			return p, fmt.Errorf("migrations: %w", err)
		}
	}

	if p.Backend, err = p.openBackend(ctx); err != nil {
		return p, err
	}
	p.Store = kvstore.New(p.Backend, kvstore.Options{
		Prefix: cfg.StorePrefix,
		Strict: cfg.StoreStrict,
		Logger: log,
	})

	p.Bus = bus.New(bus.Options{Logger: log})
	if err = p.attachTransport(ctx); err != nil {
		return p, err
	}
	p.Repo = repo.New(p.Store, repo.Options{Bus: p.Bus, Logger: log})

	if p.Gateway, err = newGateway(cfg); err != nil {
		return p, err
	}
	p.Roster = roster.New(p.Store, roster.Options{Gateway: p.Gateway, Logger: log})
	if cfg.RosterSeed {
		if _, err = p.Roster.Seed(ctx); err != nil {
			return p, err
		}
	}
	log.Info("platform ready", "store", cfg.StoreBackend, "bus", cfg.BusTransport, "gateway", cfg.Gateway)
	return p, nil
}

func (p *Platform) openBackend(ctx context.Context) (kvstore.Backend, error) {
	cfg := p.Config
	switch cfg.StoreBackend {
	case "", "memory":
		return kvstore.NewMemoryBackend(), nil
	case "redis":
		p.ownsRedis = false
		return kvstore.NewRedisBackend(p.Redis), nil
	case "postgres":
		p.ownsPostgres = false
		return p.Postgres, nil
	case "sqlite":
		if err := os.MkdirAll(cfg.StorePath, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		dsn := filepath.Join(cfg.StorePath, "board.db") + "?_busy_timeout=5000"
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		backend := kvstore.NewGormBackend(db)
		if err := backend.Migrate(ctx); err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return backend, nil
	case "file":
		return kvstore.NewFileBackend(cfg.StorePath)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func (p *Platform) attachTransport(ctx context.Context) error {
	cfg := p.Config
	var t bus.Transport
	switch cfg.BusTransport {
	case "", "none":
		return nil
	case "redis":
		t = bus.NewRedisTransport(p.Redis, cfg.BusChannel, p.Logger)
	case "nats":
		nt, err := bus.DialNATS(cfg.NATSURL, cfg.BusChannel, p.Logger)
		if err != nil {
			return fmt.Errorf("dial nats: %w", err)
		}
		t = nt
	case "storage":
		t = bus.NewStorageTransport(p.Backend, bus.StorageOptions{Logger: p.Logger})
	default:
		return fmt.Errorf("unknown bus transport %q", cfg.BusTransport)
	}
	if err := p.Bus.Attach(ctx, t); err != nil {
		_ = t.Close()
		return fmt.Errorf("attach %s transport: %w", cfg.BusTransport, err)
	}
	return nil
}

func newGateway(cfg config.Config) (gateway.Gateway, error) {
	switch cfg.Gateway {
	case "line":
		if cfg.LineChannelAccessToken == "" {
			return nil, nil
		}
		return gateway.NewLineGateway(cfg.LineChannelAccessToken, cfg.LinePushURL, cfg.PushTimeout), nil
	case "telegram":
		if cfg.TelegramBotToken == "" {
			return nil, nil
		}
		tg, err := gateway.NewTelegramGateway(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			return nil, err
		}
		return tg, nil
	case "", "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown gateway %q", cfg.Gateway)
}

// Notifier returns the push service, or nil when no gateway is configured.
// Pushes are rate limited per job when Redis is available.
func (p *Platform) Notifier() *notify.Service {
	if p.Gateway == nil {
		return nil
	}
	var limiter notify.Limiter
	if p.Redis != nil && p.Config.NotifyRateCapacity > 0 {
		limiter = ratelimit.NewTokenBucket(p.Redis, p.Config.NotifyRateCapacity, p.Config.NotifyRateRefill, p.Config.NotifyRateTTL)
	}
	return notify.New(p.Repo, p.Gateway, limiter, p.Logger)
}

// SnapshotUploader writes to S3 when a bucket is configured and to the
// snapshot directory otherwise.
func (p *Platform) SnapshotUploader(ctx context.Context) (snapshot.Uploader, error) {
	cfg := p.Config
	if cfg.SnapshotS3Bucket != "" {
		return snapshot.NewS3Uploader(ctx, snapshot.S3Config{
			Bucket:    cfg.SnapshotS3Bucket,
			Region:    cfg.SnapshotS3Region,
			Endpoint:  cfg.SnapshotS3Endpoint,
			PathStyle: cfg.SnapshotS3PathStyle,
		})
	}
	return &snapshot.LocalUploader{BaseDir: cfg.SnapshotDir}, nil
}

// Close stops the bus and closes every connection Open made.
func (p *Platform) Close() error {
	var errs []error
	if p.Bus != nil {
		errs = append(errs, p.Bus.Close())
	}
	if p.Store != nil {
		errs = append(errs, p.Store.Close())
	} else if p.Backend != nil {
		errs = append(errs, p.Backend.Close())
	}
	if p.ownsPostgres && p.Postgres != nil {
		errs = append(errs, p.Postgres.Close())
	}
	if p.ownsRedis && p.Redis != nil {
		errs = append(errs, p.Redis.Close())
	}
	return errors.Join(errs...)
}
