package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen        = ":8088"
	defaultRoundDuration = 6 * time.Second
	defaultTimeout       = 10 * time.Second
	defaultShutdown      = 10 * time.Second
	defaultAuditDriver   = "sqlite"

	EngineLevelDB = "leveldb"
	EngineBolt    = "bolt"
)

// Config captures the runtime settings for the lending daemon.
type Config struct {
	ListenAddress   string          `yaml:"listen"`
	Environment     string          `yaml:"environment"`
	DataDir         string          `yaml:"data_dir"`
	StorageEngine   string          `yaml:"storage_engine"`
	GenesisPath     string          `yaml:"genesis"`
	RoundDuration   time.Duration   `yaml:"round_duration"`
	RequestTimeout  time.Duration   `yaml:"request_timeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	Audit           AuditConfig     `yaml:"audit"`
	Auth            AuthConfig      `yaml:"auth"`
	RateLimits      []RateLimit     `yaml:"rate_limits"`
	CORS            CORSConfig      `yaml:"cors"`
	Logging         LoggingConfig   `yaml:"logging"`
	Telemetry       TelemetryConfig `yaml:"telemetry"`
	Oracle          OracleConfig    `yaml:"oracle"`
}

// AuditConfig selects the event journal backend. An empty DSN with the
// sqlite driver keeps the journal in memory.
type AuditConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	HMACSecret    string        `yaml:"hmac_secret"`
	HMACSecretEnv string        `yaml:"hmac_secret_env"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ScopeClaim    string        `yaml:"scope_claim"`
	ClockSkew     time.Duration `yaml:"clock_skew"`
}

// RateLimit bounds one route group.
type RateLimit struct {
	Group             string  `yaml:"group"`
	RequestsPerSecond float64 `yaml:"rps"`
	Burst             int     `yaml:"burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
	LogRequests bool   `yaml:"log_requests"`
}

type TelemetryConfig struct {
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
	Metrics     bool              `yaml:"metrics"`
	Traces      bool              `yaml:"traces"`
	SampleRatio float64           `yaml:"sample_ratio"`
}

// Enabled reports whether any exporter is switched on.
func (cfg TelemetryConfig) Enabled() bool {
	return cfg.Metrics || cfg.Traces
}

// OracleConfig lists the price feeds consulted after the manual feed, in
// priority order.
type OracleConfig struct {
	MaxAge time.Duration `yaml:"max_age"`
	Feeds  []FeedConfig  `yaml:"feeds"`
}

type FeedConfig struct {
	Name      string        `yaml:"name"`
	Endpoint  string        `yaml:"endpoint"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Config{}, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Secret resolves the HMAC secret, preferring the environment variable when
// one is named.
func (cfg AuthConfig) Secret() string {
	if name := strings.TrimSpace(cfg.HMACSecretEnv); name != "" {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			return value
		}
	}
	return strings.TrimSpace(cfg.HMACSecret)
}

// APIKey resolves the feed's API key from the environment.
func (cfg FeedConfig) APIKey() string {
	if name := strings.TrimSpace(cfg.APIKeyEnv); name != "" {
		return strings.TrimSpace(os.Getenv(name))
	}
	return ""
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	cfg.StorageEngine = strings.ToLower(strings.TrimSpace(cfg.StorageEngine))
	if cfg.StorageEngine == "" {
		cfg.StorageEngine = EngineLevelDB
	}
	cfg.GenesisPath = strings.TrimSpace(cfg.GenesisPath)
	if cfg.RoundDuration <= 0 {
		cfg.RoundDuration = defaultRoundDuration
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdown
	}
	cfg.Audit.Driver = strings.ToLower(strings.TrimSpace(cfg.Audit.Driver))
	if cfg.Audit.Driver == "" {
		cfg.Audit.Driver = defaultAuditDriver
	}
	cfg.Audit.DSN = strings.TrimSpace(cfg.Audit.DSN)

	for i := range cfg.RateLimits {
		cfg.RateLimits[i].Group = strings.ToLower(strings.TrimSpace(cfg.RateLimits[i].Group))
	}
	origins := make([]string, 0, len(cfg.CORS.AllowedOrigins))
	for _, origin := range cfg.CORS.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.CORS.AllowedOrigins = origins

	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
	if cfg.Telemetry.SampleRatio <= 0 || cfg.Telemetry.SampleRatio > 1 {
		cfg.Telemetry.SampleRatio = 1
	}
	for i := range cfg.Oracle.Feeds {
		feed := &cfg.Oracle.Feeds[i]
		feed.Name = strings.TrimSpace(feed.Name)
		feed.Endpoint = strings.TrimSpace(feed.Endpoint)
		if feed.Name == "" {
			feed.Name = fmt.Sprintf("http-%d", i)
		}
		if feed.Timeout <= 0 {
			feed.Timeout = 5 * time.Second
		}
	}
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.GenesisPath == "" {
		return fmt.Errorf("genesis path required")
	}
	if cfg.StorageEngine != EngineLevelDB && cfg.StorageEngine != EngineBolt {
		return fmt.Errorf("unsupported storage_engine %q", cfg.StorageEngine)
	}
	switch cfg.Audit.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Audit.DSN == "" {
			return fmt.Errorf("audit: postgres requires a dsn")
		}
	default:
		return fmt.Errorf("audit: unsupported driver %q", cfg.Audit.Driver)
	}
	if cfg.Auth.Secret() == "" {
		return fmt.Errorf("auth: hmac secret required")
	}
	seen := make(map[string]struct{}, len(cfg.RateLimits))
	for _, limit := range cfg.RateLimits {
		if limit.Group == "" {
			return fmt.Errorf("rate_limits: group required")
		}
		if _, dup := seen[limit.Group]; dup {
			return fmt.Errorf("rate_limits: group %s listed twice", limit.Group)
		}
		seen[limit.Group] = struct{}{}
		if limit.RequestsPerSecond <= 0 || limit.Burst <= 0 {
			return fmt.Errorf("rate_limits: group %s needs positive rps and burst", limit.Group)
		}
	}
	for _, feed := range cfg.Oracle.Feeds {
		if feed.Endpoint == "" {
			return fmt.Errorf("oracle: feed %s endpoint required", feed.Name)
		}
	}
	return nil
}
