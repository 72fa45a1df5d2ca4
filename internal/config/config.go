package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/spacewx-feed-service/internal/validation"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort     string
	RequestTimeout time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CacheDir              string
	CacheBackend          string // "disk", "memcached" or "none"
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	MemcachedExpiration   time.Duration

	FetchTimeout   time.Duration
	UserAgent      string
	FetchWorkers   int
	FetchQueueSize int
	FetchCoalesce  bool

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	PollInterval time.Duration

	Weather    []WeatherLocation
	WeatherTTL time.Duration
	WeatherURL string

	HistoryTTL       time.Duration
	SolarIndicesURL  string
	GeomagIndicesURL string

	XRayTTL time.Duration
	XRayURL string

	RSSEnabled bool
	RSSTTL     time.Duration
	RSSFeeds   []Feed // empty means the provider's default feeds

	ShutdownTimeout time.Duration
	DrainTimeout    time.Duration

	HealthWindow     time.Duration
	HealthErrorPct   float64
	HealthMinSamples int
}

// WeatherLocation is one weather slot ("de" home, "dx" remote).
type WeatherLocation struct {
	Slot string  `yaml:"slot"`
	City string  `yaml:"city"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

// Feed is one headline source.
type Feed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	// Format is empty for RSS, Atom or JSON feeds, or "html" for a page of table rows.
	Format string `yaml:"format"`
}

// WeatherSlots are the slot names the read API serves.
var WeatherSlots = []string{"de", "dx"}

var defaultWeather = []WeatherLocation{
	{Slot: "de", City: "Berlin", Lat: 52.52, Lon: 13.405},
	{Slot: "dx", City: "New York", Lat: 40.7128, Lon: -74.006},
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Dir       string `yaml:"dir"`
		Backend   string `yaml:"backend"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
			Expiration   string `yaml:"expiration"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Fetch struct {
		Timeout   string `yaml:"timeout"`
		UserAgent string `yaml:"user_agent"`
		Workers   int    `yaml:"workers"`
		QueueSize int    `yaml:"queue_size"`
		Coalesce  bool   `yaml:"coalesce"`
	} `yaml:"fetch"`

	CircuitBreaker struct {
		Enabled          bool   `yaml:"enabled"`
		FailureThreshold int    `yaml:"failure_threshold"`
		SuccessThreshold int    `yaml:"success_threshold"`
		Timeout          string `yaml:"timeout"`
	} `yaml:"circuit_breaker"`

	Poll struct {
		Interval string `yaml:"interval"`
	} `yaml:"poll"`

	Providers struct {
		Weather struct {
			URL       string            `yaml:"url"`
			TTL       string            `yaml:"ttl"`
			Locations []WeatherLocation `yaml:"locations"`
		} `yaml:"weather"`
		History struct {
			TTL       string `yaml:"ttl"`
			SolarURL  string `yaml:"solar_url"`
			GeomagURL string `yaml:"geomag_url"`
		} `yaml:"history"`
		XRay struct {
			TTL string `yaml:"ttl"`
			URL string `yaml:"url"`
		} `yaml:"xray"`
		RSS struct {
			Enabled *bool  `yaml:"enabled"`
			TTL     string `yaml:"ttl"`
			Feeds   []Feed `yaml:"feeds"`
		} `yaml:"rss"`
	} `yaml:"providers"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout      string `yaml:"timeout"`
		DrainTimeout string `yaml:"drain_timeout"`
	} `yaml:"shutdown"`

	Health struct {
		Window     string  `yaml:"window"`
		ErrorPct   float64 `yaml:"error_pct"`
		MinSamples int     `yaml:"min_samples"`
	} `yaml:"health"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) relative to
// the working directory, then applies env overrides. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := fromFile(&fc)
	applyEnv(cfg)

	if err := validate(cfg, &fc); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromFile(fc *fileConfig) *Config {
	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)
	cfg.RateLimitRPS = positiveOr(fc.Reliability.RateLimitRPS, 100)
	cfg.RateLimitBurst = positiveOr(fc.Reliability.RateLimitBurst, 250)

	cfg.CacheDir = strings.TrimSpace(fc.Cache.Dir)
	if cfg.CacheDir == "" {
		cfg.CacheDir = "cache"
	}
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "disk"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = positiveOr(fc.Cache.Memcached.MaxIdleConns, 2)
	cfg.MemcachedExpiration = parseDuration(fc.Cache.Memcached.Expiration, 24*time.Hour)

	cfg.FetchTimeout = parseDuration(fc.Fetch.Timeout, 15*time.Second)
	cfg.UserAgent = strings.TrimSpace(fc.Fetch.UserAgent)
	if cfg.UserAgent == "" {
		cfg.UserAgent = "SpaceWx-Feed/1.0"
	}
	cfg.FetchWorkers = fc.Fetch.Workers
	if cfg.FetchWorkers == 0 {
		cfg.FetchWorkers = 4
	}
	cfg.FetchQueueSize = fc.Fetch.QueueSize
	if cfg.FetchQueueSize == 0 {
		cfg.FetchQueueSize = 64
	}
	cfg.FetchCoalesce = fc.Fetch.Coalesce

	cfg.CircuitBreakerEnabled = fc.CircuitBreaker.Enabled
	cfg.CircuitBreakerFailureThreshold = positiveOr(fc.CircuitBreaker.FailureThreshold, 5)
	cfg.CircuitBreakerSuccessThreshold = positiveOr(fc.CircuitBreaker.SuccessThreshold, 2)
	cfg.CircuitBreakerTimeout = parseDuration(fc.CircuitBreaker.Timeout, 5*time.Minute)

	cfg.PollInterval = parseDuration(fc.Poll.Interval, 15*time.Minute)

	w := fc.Providers.Weather
	cfg.WeatherURL = strings.TrimSpace(w.URL)
	cfg.WeatherTTL = parseDuration(w.TTL, 10*time.Minute)
	cfg.Weather = w.Locations
	if len(cfg.Weather) == 0 {
		cfg.Weather = append([]WeatherLocation(nil), defaultWeather...)
	}
	for i := range cfg.Weather {
		cfg.Weather[i].Slot = strings.ToLower(strings.TrimSpace(cfg.Weather[i].Slot))
	}

	h := fc.Providers.History
	cfg.HistoryTTL = parseDuration(h.TTL, time.Hour)
	cfg.SolarIndicesURL = strings.TrimSpace(h.SolarURL)
	cfg.GeomagIndicesURL = strings.TrimSpace(h.GeomagURL)

	cfg.XRayTTL = parseDuration(fc.Providers.XRay.TTL, 5*time.Minute)
	cfg.XRayURL = strings.TrimSpace(fc.Providers.XRay.URL)

	r := fc.Providers.RSS
	cfg.RSSEnabled = true
	if r.Enabled != nil {
		cfg.RSSEnabled = *r.Enabled
	}
	cfg.RSSTTL = parseDuration(r.TTL, 30*time.Minute)
	cfg.RSSFeeds = r.Feeds

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.DrainTimeout = parseDuration(fc.Shutdown.DrainTimeout, 20*time.Second)

	cfg.HealthWindow = parseDuration(fc.Health.Window, 30*time.Minute)
	cfg.HealthErrorPct = fc.Health.ErrorPct
	if cfg.HealthErrorPct <= 0 {
		cfg.HealthErrorPct = 50
	}
	cfg.HealthMinSamples = positiveOr(fc.Health.MinSamples, 4)

	return cfg
}

// applyEnv overrides file values with CACHE_DIR, CACHE_BACKEND, MEMCACHED_ADDRS and SERVER_PORT.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CACHE_DIR")); v != "" {
		cfg.CacheDir = v
	}
	if v := strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND"))); v != "" {
		cfg.CacheBackend = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")); v != "" {
		cfg.MemcachedAddrs = v
	}
	if v := strings.TrimSpace(os.Getenv("SERVER_PORT")); v != "" {
		cfg.ServerPort = v
	}
}

func positiveOr(v, defaultVal int) int {
	if v <= 0 {
		return defaultVal
	}
	return v
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
// Used for parsing duration fields from YAML config with safe fallback to defaults.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config, fc *fileConfig) error {
	switch cfg.CacheBackend {
	case "disk", "memcached", "none":
	default:
		return fmt.Errorf("cache.backend must be disk, memcached or none, got %q", cfg.CacheBackend)
	}
	if fc.Fetch.Workers < 0 || fc.Fetch.QueueSize < 0 {
		return fmt.Errorf("fetch.workers and fetch.queue_size must be positive")
	}
	if cfg.DrainTimeout > cfg.ShutdownTimeout {
		cfg.DrainTimeout = cfg.ShutdownTimeout
	}

	seen := make(map[string]bool)
	for _, loc := range cfg.Weather {
		if _, err := validation.ValidateName(loc.Slot, WeatherSlots); err != nil {
			return fmt.Errorf("providers.weather.locations: %w", err)
		}
		if seen[loc.Slot] {
			return fmt.Errorf("providers.weather.locations: duplicate slot %q", loc.Slot)
		}
		seen[loc.Slot] = true
		if err := validation.ValidateCoordinates(loc.Lat, loc.Lon); err != nil {
			return fmt.Errorf("providers.weather.locations[%s]: %w", loc.Slot, err)
		}
	}

	for _, f := range cfg.RSSFeeds {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("providers.rss.feeds: name is required for %q", f.URL)
		}
		if err := validation.ValidateFeedURL(f.URL); err != nil {
			return fmt.Errorf("providers.rss.feeds[%s]: %w", f.Name, err)
		}
		if f.Format != "" && f.Format != "html" {
			return fmt.Errorf("providers.rss.feeds[%s]: unknown format %q", f.Name, f.Format)
		}
	}
	for name, u := range map[string]string{
		"providers.weather.url":        cfg.WeatherURL,
		"providers.history.solar_url":  cfg.SolarIndicesURL,
		"providers.history.geomag_url": cfg.GeomagIndicesURL,
		"providers.xray.url":           cfg.XRayURL,
	} {
		if u == "" {
			continue
		}
		if err := validation.ValidateFeedURL(u); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
