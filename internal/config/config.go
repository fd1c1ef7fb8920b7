package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds shared runtime configuration for the API and worker services.
type Config struct {
	Env         string
	HTTPPort    string
	MetricsAddr string
	LogLevel    string
	LogFormat   string

	StoreBackend string
	StorePrefix  string
	StoreStrict  bool
	StorePath    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PostgresDSN   string

	BusTransport string
	BusChannel   string
	NATSURL      string

	Gateway                string
	LineChannelID          string
	LineChannelAccessToken string
	LineChannelSecret      string
	LinePushURL            string
	TelegramBotToken       string
	TelegramChatID         int64
	PushTimeout            time.Duration

	NotifyRateCapacity int
	NotifyRateRefill   float64
	NotifyRateTTL      time.Duration

	RosterSeed     bool
	RosterFeed     bool
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	SnapshotSchedule    string
	SnapshotDir         string
	SnapshotPrefix      string
	SnapshotS3Bucket    string
	SnapshotS3Region    string
	SnapshotS3Endpoint  string
	SnapshotS3PathStyle bool

	DeadlineBufferDays int
}

// source resolves a key from the environment first, then the config file.
type source struct {
	file map[string]string
}

// Load reads .env (when present), the optional file named by CONFIG_FILE and
// then the environment, with sane defaults for local development.
func Load() (Config, error) {
	_ = godotenv.Load()
	file, err := readFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}
	return load(source{file: file}), nil
}

func load(s source) Config {
	return Config{
		Env:         s.get("APP_ENV", "dev"),
		HTTPPort:    s.get("HTTP_PORT", "8080"),
		MetricsAddr: s.get("METRICS_ADDR", ":9090"),
		LogLevel:    s.get("LOG_LEVEL", "info"),
		LogFormat:   s.get("LOG_FORMAT", "text"),

		StoreBackend: strings.ToLower(s.get("STORE_BACKEND", "memory")),
		StorePrefix:  s.get("STORE_PREFIX", "shokuninboshu_"),
		StoreStrict:  s.getBool("STORE_STRICT", false),
		StorePath:    s.get("STORE_PATH", "./data"),

		RedisAddr:     s.get("REDIS_ADDR", "localhost:6379"),
		RedisPassword: s.get("REDIS_PASSWORD", ""),
		RedisDB:       s.getInt("REDIS_DB", 0),
		PostgresDSN:   s.get("POSTGRES_DSN", ""),

		BusTransport: strings.ToLower(s.get("BUS_TRANSPORT", "none")),
		BusChannel:   s.get("BUS_CHANNEL", "shokuninboshu_bus"),
		NATSURL:      s.get("NATS_URL", ""),

		Gateway:                strings.ToLower(s.get("GATEWAY", "line")),
		LineChannelID:          s.get("LINE_CHANNEL_ID", ""),
		LineChannelAccessToken: s.get("LINE_CHANNEL_ACCESS_TOKEN", ""),
		LineChannelSecret:      s.get("LINE_CHANNEL_SECRET", ""),
		LinePushURL:            s.get("LINE_PUSH_URL", ""),
		TelegramBotToken:       s.get("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:         int64(s.getInt("TELEGRAM_CHAT_ID", 0)),
		PushTimeout:            s.getDuration("PUSH_TIMEOUT", 10*time.Second),

		NotifyRateCapacity: s.getInt("NOTIFY_RATE_CAPACITY", 3),
		NotifyRateRefill:   s.getFloat("NOTIFY_RATE_REFILL_PER_SEC", 1.0/600),
		NotifyRateTTL:      s.getDuration("NOTIFY_RATE_TTL", 24*time.Hour),

		RosterSeed:     s.getBool("ROSTER_SEED", true),
		RosterFeed:     s.getBool("ROSTER_FEED", false),
		BackoffInitial: s.getDuration("BACKOFF_INITIAL", 2*time.Second),
		BackoffMax:     s.getDuration("BACKOFF_MAX", 5*time.Minute),

		SnapshotSchedule:    s.get("SNAPSHOT_SCHEDULE", ""),
		SnapshotDir:         s.get("SNAPSHOT_DIR", "./snapshots"),
		SnapshotPrefix:      s.get("SNAPSHOT_PREFIX", "snapshots"),
		SnapshotS3Bucket:    s.get("SNAPSHOT_S3_BUCKET", ""),
		SnapshotS3Region:    s.get("SNAPSHOT_S3_REGION", "ap-northeast-1"),
		SnapshotS3Endpoint:  s.get("SNAPSHOT_S3_ENDPOINT", ""),
		SnapshotS3PathStyle: s.getBool("SNAPSHOT_S3_PATH_STYLE", false),

		DeadlineBufferDays: s.getInt("DEADLINE_BUFFER_DAYS", 3),
	}
}

// readFile parses a flat YAML or TOML document whose keys are the
// environment variable names, in any case.
func readFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	values := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &values)
	case ".toml":
		err = toml.Unmarshal(raw, &values)
	default:
		return nil, fmt.Errorf("config file %s: unsupported format", path)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return out, nil
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) get(key, def string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return def
}

func (s source) getInt(key string, def int) int {
	if v := s.lookup(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func (s source) getFloat(key string, def float64) float64 {
	if v := s.lookup(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func (s source) getBool(key string, def bool) bool {
	if v := s.lookup(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func (s source) getDuration(key string, def time.Duration) time.Duration {
	if v := s.lookup(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
