package config

import "time"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type AppConfig struct {
	ListenAddr string `yaml:"listen_addr" env:"GARRISON_LISTEN_ADDR" env-default:"127.0.0.1:8480"`
	AppEnv     string `yaml:"app_env" env:"GARRISON_APP_ENV" env-default:"production"`

	Upstream      UpstreamConfig      `yaml:"upstream"`
	Store         StoreConfig         `yaml:"store"`
	Verification  VerificationConfig  `yaml:"verification"`
	Security      SecurityConfig      `yaml:"security"`
	Observability ObservabilityConfig `yaml:"observability"`
	Janitor       JanitorConfig       `yaml:"janitor"`
}

type UpstreamConfig struct {
	BaseURL    string `yaml:"base_url" env:"GARRISON_UPSTREAM_URL"`
	TimeoutSec int    `yaml:"timeout_sec" env:"GARRISON_UPSTREAM_TIMEOUT_SEC" env-default:"10"`
}

type StoreConfig struct {
	// Driver selects the shared store backend: "sqlite" (default, a local
	// file shared by every window on the machine) or "postgres".
	Driver string `yaml:"driver" env:"GARRISON_STORE_DRIVER"`
	Path   string `yaml:"path" env:"GARRISON_STORE_PATH" env-default:"garrison-gate.db"`
	URL    string `yaml:"url" env:"GARRISON_STORE_URL"`
}

type VerificationConfig struct {
	PollIntervalSec   int `yaml:"poll_interval_sec" env:"GARRISON_VERIFY_POLL_SEC" env-default:"3"`
	ResendCooldownSec int `yaml:"resend_cooldown_sec" env:"GARRISON_VERIFY_COOLDOWN_SEC" env-default:"120"`
	PendingTTLMin     int `yaml:"pending_ttl_min" env:"GARRISON_VERIFY_PENDING_TTL_MIN" env-default:"30"`
	BroadcastPollMS   int `yaml:"broadcast_poll_ms" env:"GARRISON_VERIFY_BROADCAST_POLL_MS" env-default:"1000"`
}

type SecurityConfig struct {
	// DevAuthBypass lets the auth guard admit an anonymous session. It is a
	// manual-testing escape hatch and is honored only when AppEnv is
	// "development"; see AuthBypassEnabled.
	DevAuthBypass bool `yaml:"dev_auth_bypass" env:"GARRISON_DEV_AUTH_BYPASS"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled" env:"GARRISON_METRICS_ENABLED"`
	MetricsToken   string `yaml:"metrics_token" env:"GARRISON_METRICS_TOKEN"`
}

type JanitorConfig struct {
	// Schedule is a cron expression; empty disables the janitor.
	Schedule          string `yaml:"schedule" env:"GARRISON_JANITOR_SCHEDULE" env-default:"*/5 * * * *"`
	EventRetentionMin int    `yaml:"event_retention_min" env:"GARRISON_JANITOR_EVENT_RETENTION_MIN" env-default:"60"`
}

func (c *AppConfig) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}

// AuthBypassEnabled reports whether the auth guard must treat an anonymous
// session as admitted. The flag is unreachable outside development builds.
func (c *AppConfig) AuthBypassEnabled() bool {
	return c != nil && c.IsDevelopment() && c.Security.DevAuthBypass
}

func (c *AppConfig) UpstreamTimeout() time.Duration {
	if c == nil || c.Upstream.TimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Upstream.TimeoutSec) * time.Second
}

func (c *AppConfig) PollInterval() time.Duration {
	if c == nil || c.Verification.PollIntervalSec <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.Verification.PollIntervalSec) * time.Second
}

func (c *AppConfig) ResendCooldown() time.Duration {
	if c == nil || c.Verification.ResendCooldownSec <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.Verification.ResendCooldownSec) * time.Second
}

func (c *AppConfig) PendingTTL() time.Duration {
	if c == nil || c.Verification.PendingTTLMin <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Verification.PendingTTLMin) * time.Minute
}

func (c *AppConfig) BroadcastPoll() time.Duration {
	if c == nil || c.Verification.BroadcastPollMS <= 0 {
		return time.Second
	}
	return time.Duration(c.Verification.BroadcastPollMS) * time.Millisecond
}

func (c *AppConfig) EventRetention() time.Duration {
	if c == nil || c.Janitor.EventRetentionMin <= 0 {
		return time.Hour
	}
	return time.Duration(c.Janitor.EventRetentionMin) * time.Minute
}
