package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
genesis: " genesis.toml "
auth:
  hmac_secret: "s3cret"
cors:
  allowed_origins: [" https://app.example ", " "]
oracle:
  feeds:
    - endpoint: "https://prices.example/quote"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != defaultListen {
		t.Fatalf("unexpected listen address: %q", cfg.ListenAddress)
	}
	if cfg.GenesisPath != "genesis.toml" {
		t.Fatalf("genesis path not trimmed: %q", cfg.GenesisPath)
	}
	if cfg.RoundDuration != defaultRoundDuration || cfg.RequestTimeout != defaultTimeout {
		t.Fatalf("unexpected durations: %s %s", cfg.RoundDuration, cfg.RequestTimeout)
	}
	if cfg.Audit.Driver != "sqlite" {
		t.Fatalf("expected sqlite audit driver, got %q", cfg.Audit.Driver)
	}
	if cfg.StorageEngine != EngineLevelDB {
		t.Fatalf("expected leveldb engine, got %q", cfg.StorageEngine)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "https://app.example" {
		t.Fatalf("unexpected origins: %v", cfg.CORS.AllowedOrigins)
	}
	if feed := cfg.Oracle.Feeds[0]; feed.Name != "http-0" || feed.Timeout != 5*time.Second {
		t.Fatalf("unexpected feed defaults: %+v", feed)
	}
	if cfg.Telemetry.SampleRatio != 1 || cfg.Telemetry.Enabled() {
		t.Fatalf("unexpected telemetry defaults: %+v", cfg.Telemetry)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("LENDHUB_TEST_SECRET", "from-env")
	path := writeConfig(t, `
listen: "127.0.0.1:9000"
genesis: "genesis.toml"
round_duration: 2s
storage_engine: " Bolt "
audit:
  driver: POSTGRES
  dsn: "postgres://lend@localhost/lend"
auth:
  hmac_secret: "inline"
  hmac_secret_env: "LENDHUB_TEST_SECRET"
rate_limits:
  - group: " Account "
    rps: 5
    burst: 10
telemetry:
  traces: true
  sample_ratio: 0.25
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RoundDuration != 2*time.Second {
		t.Fatalf("unexpected round duration: %s", cfg.RoundDuration)
	}
	if cfg.StorageEngine != EngineBolt {
		t.Fatalf("engine not normalised: %q", cfg.StorageEngine)
	}
	if cfg.Audit.Driver != "postgres" {
		t.Fatalf("driver not normalised: %q", cfg.Audit.Driver)
	}
	if got := cfg.Auth.Secret(); got != "from-env" {
		t.Fatalf("expected env secret, got %q", got)
	}
	if cfg.RateLimits[0].Group != "account" {
		t.Fatalf("group not normalised: %q", cfg.RateLimits[0].Group)
	}
	if !cfg.Telemetry.Enabled() || cfg.Telemetry.SampleRatio != 0.25 {
		t.Fatalf("unexpected telemetry: %+v", cfg.Telemetry)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"genesis path required": `
auth:
  hmac_secret: "x"
`,
		"hmac secret required": `
genesis: "g.toml"
`,
		"requires a dsn": `
genesis: "g.toml"
audit:
  driver: postgres
auth:
  hmac_secret: "x"
`,
		"unsupported driver": `
genesis: "g.toml"
audit:
  driver: mysql
auth:
  hmac_secret: "x"
`,
		"listed twice": `
genesis: "g.toml"
auth:
  hmac_secret: "x"
rate_limits:
  - {group: admin, rps: 1, burst: 1}
  - {group: admin, rps: 2, burst: 2}
`,
		"positive rps": `
genesis: "g.toml"
auth:
  hmac_secret: "x"
rate_limits:
  - {group: admin, rps: 0, burst: 1}
`,
		"endpoint required": `
genesis: "g.toml"
auth:
  hmac_secret: "x"
oracle:
  feeds:
    - name: coingecko
`,
		"unsupported storage_engine": `
genesis: "g.toml"
storage_engine: rocksdb
auth:
  hmac_secret: "x"
`,
		"not found": `
genesis: "g.toml"
auth:
  hmac_secret: "x"
surprise: true
`,
	}
	for want, contents := range cases {
		_, err := Load(writeConfig(t, contents))
		if err == nil {
			t.Fatalf("%s: expected error", want)
		}
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("%s: unexpected error %v", want, err)
		}
	}
}

func TestLoadConfigRequiresPath(t *testing.T) {
	if _, err := Load(" "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
