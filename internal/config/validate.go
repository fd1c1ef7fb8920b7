package config

import (
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

// Check is the outcome of validating one setting.
type Check struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Required bool   `json:"required"`
	Valid    bool   `json:"valid"`
	Error    string `json:"error,omitempty"`
}

// Report summarizes Validate.
type Report struct {
	Valid  bool    `json:"valid"`
	Checks []Check `json:"checks"`
}

var (
	lineChannelIDPattern = regexp.MustCompile(`^\d{10}$`)
	telegramTokenPattern = regexp.MustCompile(`^\d+:[\w-]+$`)
)

type rule struct {
	key      string
	value    string
	required bool
	secret   bool
	check    func(string) bool
	message  string
}

// Validate checks the settings the configured components depend on. Secret
// values are masked in the report.
func (c Config) Validate() Report {
	rules := []rule{
		{key: "STORE_BACKEND", value: c.StoreBackend, required: true, check: oneOf("memory", "redis", "postgres", "sqlite", "file"), message: "must be memory, redis, postgres, sqlite or file"},
		{key: "BUS_TRANSPORT", value: c.BusTransport, required: true, check: oneOf("none", "redis", "nats", "storage"), message: "must be none, redis, nats or storage"},
		{key: "GATEWAY", value: c.Gateway, required: true, check: oneOf("line", "telegram", "none"), message: "must be line, telegram or none"},
		{key: "REDIS_ADDR", value: c.RedisAddr, required: c.StoreBackend == "redis" || c.BusTransport == "redis", check: hostPort, message: "must be host:port"},
		{key: "POSTGRES_DSN", value: c.PostgresDSN, required: c.StoreBackend == "postgres" || c.RosterFeed, secret: true, check: postgresURL, message: "must be a postgres:// URL"},
		{key: "NATS_URL", value: c.NATSURL, required: c.BusTransport == "nats", check: prefixed("nats://", "tls://"), message: "must be a nats:// URL"},
		{key: "LINE_CHANNEL_ID", value: c.LineChannelID, check: lineChannelIDPattern.MatchString, message: "channel id must be 10 digits"},
		{key: "LINE_CHANNEL_ACCESS_TOKEN", value: c.LineChannelAccessToken, required: c.Gateway == "line", secret: true},
		{key: "LINE_CHANNEL_SECRET", value: c.LineChannelSecret, required: c.Gateway == "line", secret: true},
		{key: "TELEGRAM_BOT_TOKEN", value: c.TelegramBotToken, required: c.Gateway == "telegram", secret: true, check: telegramTokenPattern.MatchString, message: "must look like <bot id>:<secret>"},
		{key: "SNAPSHOT_SCHEDULE", value: c.SnapshotSchedule, check: cronSpec, message: "must be a cron spec"},
	}

	report := Report{Valid: true, Checks: make([]Check, 0, len(rules))}
	for _, r := range rules {
		ch := Check{Key: r.key, Value: r.value, Required: r.required, Valid: true}
		switch {
		case r.value == "" && r.required:
			ch.Valid = false
			ch.Error = "required"
		case r.value != "" && r.check != nil && !r.check(r.value):
			ch.Valid = false
			ch.Error = r.message
		}
		if r.secret {
			ch.Value = Mask(r.value)
		}
		report.Valid = report.Valid && ch.Valid
		report.Checks = append(report.Checks, ch)
	}
	return report
}

// Mask hides all but the first and last four characters of a secret.
func Mask(value string) string {
	if value == "" {
		return "(not set)"
	}
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "****" + value[len(value)-4:]
}

func oneOf(allowed ...string) func(string) bool {
	return func(v string) bool {
		for _, a := range allowed {
			if v == a {
				return true
			}
		}
		return false
	}
}

func prefixed(prefixes ...string) func(string) bool {
	return func(v string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(v, p) {
				return true
			}
		}
		return false
	}
}

func hostPort(v string) bool {
	_, port, err := net.SplitHostPort(v)
	if err != nil {
		return false
	}
	_, err = strconv.Atoi(port)
	return err == nil
}

func postgresURL(v string) bool {
	return strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://")
}

func cronSpec(v string) bool {
	_, err := cron.ParseStandard(v)
	return err == nil
}
