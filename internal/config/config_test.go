package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalEnvYAML = `
server:
  port: "8080"
request:
  timeout: "5s"
cache:
  dir: "cache"
  backend: "disk"
fetch:
  timeout: "10s"
  workers: 2
  queue_size: 8
reliability:
  rate_limit_rps: 5
  rate_limit_burst: 10
shutdown:
  timeout: "10s"
  drain_timeout: "5s"
`

// chdirWithConfig writes config/dev.yaml under a temp dir and makes it the working directory.
func chdirWithConfig(t *testing.T, content string) string {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	writeEnvFile(t, dir, content)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	return dir
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ENV_NAME", "CACHE_DIR", "CACHE_BACKEND", "MEMCACHED_ADDRS", "SERVER_PORT"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Minimal(t *testing.T) {
	clearEnv(t)
	chdirWithConfig(t, minimalEnvYAML)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v, want 10s", cfg.FetchTimeout)
	}
	if cfg.FetchWorkers != 2 || cfg.FetchQueueSize != 8 {
		t.Errorf("FetchWorkers, FetchQueueSize = %d, %d; want 2, 8", cfg.FetchWorkers, cfg.FetchQueueSize)
	}
	if cfg.CacheBackend != "disk" || cfg.CacheDir != "cache" {
		t.Errorf("cache = %q in %q, want disk in cache", cfg.CacheBackend, cfg.CacheDir)
	}
	if cfg.PollInterval != 15*time.Minute {
		t.Errorf("PollInterval = %v, want 15m default", cfg.PollInterval)
	}
	if cfg.UserAgent != "SpaceWx-Feed/1.0" {
		t.Errorf("UserAgent = %q, want default", cfg.UserAgent)
	}
	if len(cfg.Weather) != 2 || cfg.Weather[0].Slot != "de" || cfg.Weather[1].Slot != "dx" {
		t.Errorf("Weather = %+v, want default de/dx locations", cfg.Weather)
	}
	if !cfg.RSSEnabled || len(cfg.RSSFeeds) != 0 {
		t.Errorf("RSS enabled = %v with %d feeds, want true with provider defaults", cfg.RSSEnabled, len(cfg.RSSFeeds))
	}
	if cfg.FetchCoalesce {
		t.Error("FetchCoalesce = true, want false by default")
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_NAME", "nonexistent")
	chdirWithConfig(t, minimalEnvYAML)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "nonexistent.yaml") {
		t.Errorf("Load() error = %v, want message naming nonexistent.yaml", err)
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	clearEnv(t)
	chdirWithConfig(t, "server: [unclosed\n")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse config file") {
		t.Errorf("Load() error = %v, want parse error", err)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	chdirWithConfig(t, minimalEnvYAML+`
poll:
  interval: "soon"
providers:
  xray:
    ttl: "-5m"
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PollInterval != 15*time.Minute {
		t.Errorf("PollInterval = %v, want 15m default", cfg.PollInterval)
	}
	if cfg.XRayTTL != 5*time.Minute {
		t.Errorf("XRayTTL = %v, want 5m default", cfg.XRayTTL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CACHE_DIR", "/var/cache/spacewx")
	t.Setenv("CACHE_BACKEND", "Memcached")
	t.Setenv("MEMCACHED_ADDRS", "mc1:11211,mc2:11211")
	t.Setenv("SERVER_PORT", "9090")
	chdirWithConfig(t, minimalEnvYAML)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CacheDir != "/var/cache/spacewx" {
		t.Errorf("CacheDir = %q", cfg.CacheDir)
	}
	if cfg.CacheBackend != "memcached" {
		t.Errorf("CacheBackend = %q, want memcached", cfg.CacheBackend)
	}
	if cfg.MemcachedAddrs != "mc1:11211,mc2:11211" {
		t.Errorf("MemcachedAddrs = %q", cfg.MemcachedAddrs)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
}

func TestLoad_ProvidersSection(t *testing.T) {
	clearEnv(t)
	chdirWithConfig(t, minimalEnvYAML+`
providers:
  weather:
    ttl: "20m"
    locations:
      - slot: "DE"
        city: "Munich"
        lat: 48.137
        lon: 11.575
  rss:
    enabled: false
    feeds:
      - name: "Local"
        url: "https://example.com/feed.xml"
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherTTL != 20*time.Minute {
		t.Errorf("WeatherTTL = %v, want 20m", cfg.WeatherTTL)
	}
	if len(cfg.Weather) != 1 || cfg.Weather[0].Slot != "de" || cfg.Weather[0].City != "Munich" {
		t.Errorf("Weather = %+v, want single de/Munich", cfg.Weather)
	}
	if cfg.RSSEnabled {
		t.Error("RSSEnabled = true, want false")
	}
	if len(cfg.RSSFeeds) != 1 || cfg.RSSFeeds[0].Name != "Local" {
		t.Errorf("RSSFeeds = %+v", cfg.RSSFeeds)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown backend",
			content: strings.Replace(minimalEnvYAML, "backend: \"disk\"", "backend: \"redis\"", 1),
			wantErr: "cache.backend",
		},
		{
			name: "latitude out of range",
			content: minimalEnvYAML + `
providers:
  weather:
    locations:
      - {slot: de, city: X, lat: 95, lon: 0}
`,
			wantErr: "latitude",
		},
		{
			name: "unknown slot",
			content: minimalEnvYAML + `
providers:
  weather:
    locations:
      - {slot: home, city: X, lat: 1, lon: 1}
`,
			wantErr: "providers.weather.locations",
		},
		{
			name: "duplicate slot",
			content: minimalEnvYAML + `
providers:
  weather:
    locations:
      - {slot: de, city: X, lat: 1, lon: 1}
      - {slot: de, city: Y, lat: 2, lon: 2}
`,
			wantErr: "duplicate slot",
		},
		{
			name: "bad feed url",
			content: minimalEnvYAML + `
providers:
  rss:
    feeds:
      - {name: Bad, url: "ftp://example.com/feed"}
`,
			wantErr: "providers.rss.feeds[Bad]",
		},
		{
			name: "unknown feed format",
			content: minimalEnvYAML + `
providers:
  rss:
    feeds:
      - {name: Odd, url: "https://example.com/feed", format: "pdf"}
`,
			wantErr: "unknown format",
		},
		{
			name:    "negative workers",
			content: strings.Replace(minimalEnvYAML, "workers: 2", "workers: -1", 1),
			wantErr: "fetch.workers",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			chdirWithConfig(t, tt.content)

			cfg, err := Load()
			if err == nil {
				t.Fatalf("Load() error = nil, want error containing %q", tt.wantErr)
			}
			if cfg != nil {
				t.Errorf("Load() cfg = %+v, want nil on error", cfg)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want message containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_DrainTimeoutCappedByShutdown(t *testing.T) {
	clearEnv(t)
	chdirWithConfig(t, strings.Replace(minimalEnvYAML, "drain_timeout: \"5s\"", "drain_timeout: \"1m\"", 1))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DrainTimeout != cfg.ShutdownTimeout {
		t.Errorf("DrainTimeout = %v, want capped to ShutdownTimeout %v", cfg.DrainTimeout, cfg.ShutdownTimeout)
	}
}

// TestLoad_ProjectConfig verifies the checked-in config/dev.yaml loads.
func TestLoad_ProjectConfig(t *testing.T) {
	clearEnv(t)
	root := findProjectRoot(t)
	origWd, _ := os.Getwd()
	if err := os.Chdir(root); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() project config error = %v", err)
	}
	if cfg.CircuitBreakerEnabled {
		t.Error("shipped config enables the circuit breaker, want disabled by default")
	}
	var html int
	for _, f := range cfg.RSSFeeds {
		if f.Format == "html" {
			html++
		}
	}
	if html != 1 {
		t.Errorf("shipped config has %d html table feeds, want 1", html)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Second},
		{"  ", time.Second},
		{"2m", 2 * time.Minute},
		{"0s", time.Second},
		{"-1s", time.Second},
		{"nope", time.Second},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.in, time.Second); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
