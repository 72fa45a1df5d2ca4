package main

import (
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/spacewx-feed-service/internal/cache"
	"github.com/kjstillabower/spacewx-feed-service/internal/circuitbreaker"
	"github.com/kjstillabower/spacewx-feed-service/internal/config"
	"github.com/kjstillabower/spacewx-feed-service/internal/fetch"
	httphandler "github.com/kjstillabower/spacewx-feed-service/internal/http"
	"github.com/kjstillabower/spacewx-feed-service/internal/models"
	"github.com/kjstillabower/spacewx-feed-service/internal/observability"
	"github.com/kjstillabower/spacewx-feed-service/internal/provider"
	"github.com/kjstillabower/spacewx-feed-service/internal/scheduler"
	"github.com/kjstillabower/spacewx-feed-service/internal/store"
	"github.com/kjstillabower/spacewx-feed-service/internal/traffic"
)

// app is the wired service: fetch client, providers, poller and read API.
type app struct {
	router    http.Handler
	client    *fetch.Client
	poller    *scheduler.Poller
	memcached *cache.MemcachedCache // nil unless backend is memcached
}

// newApp builds every component from cfg. It performs no network I/O besides
// loading the disk cache.
func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}

	fetchCfg := fetch.Config{
		Timeout:   cfg.FetchTimeout,
		UserAgent: cfg.UserAgent,
		Workers:   cfg.FetchWorkers,
		QueueSize: cfg.FetchQueueSize,
		Coalesce:  cfg.FetchCoalesce,
		Traffic:   traffic.NewTracker(cfg.HealthWindow, nil),
		Logger:    logger,
	}
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.MemcachedExpiration)
		if err != nil {
			return nil, err
		}
		a.memcached = mc
		fetchCfg.Backing = mc
		fetchCfg.BackendName = "memcached"
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "disk":
		fetchCfg.CacheDir = cfg.CacheDir
		logger.Info("cache backend: disk", zap.String("dir", cfg.CacheDir))
	default:
		logger.Info("cache backend: memory only")
	}

	if cfg.CircuitBreakerEnabled {
		fetchCfg.Breakers = circuitbreaker.NewSet(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			OnStateChange: func(host string, from, to circuitbreaker.State) {
				observability.CircuitBreakerTransitionsTotal.WithLabelValues(host, from.String(), to.String()).Inc()
				observability.CircuitBreakerState.WithLabelValues(host).Set(observability.CircuitBreakerStateValue(to.String()))
				logger.Warn("circuit breaker transition",
					zap.String("host", host),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	client, err := fetch.New(fetchCfg)
	if err != nil {
		if a.memcached != nil {
			_ = a.memcached.Close()
		}
		return nil, err
	}
	a.client = client
	observability.RegisterQueueDepthGauge(client.Pending)

	stores := httphandler.Stores{
		Weather:   make(map[string]*store.Snapshot[models.WeatherData], len(cfg.Weather)),
		Moon:      store.NewSnapshot[models.MoonData]("moon"),
		History:   store.NewNamed[models.Series]("history"),
		Headlines: store.NewSnapshot[models.Headlines]("headlines"),
	}

	var providers []provider.Provider
	for _, loc := range cfg.Weather {
		s := store.NewSnapshot[models.WeatherData]("weather:" + loc.Slot)
		stores.Weather[loc.Slot] = s
		providers = append(providers, provider.NewWeatherProvider(client, s, provider.WeatherConfig{
			Slot:    loc.Slot,
			City:    loc.City,
			Lat:     loc.Lat,
			Lon:     loc.Lon,
			TTL:     cfg.WeatherTTL,
			BaseURL: cfg.WeatherURL,
		}, logger))
	}
	providers = append(providers,
		provider.NewMoonProvider(stores.Moon, nil),
		provider.NewHistoryProvider(client, stores.History, provider.HistoryConfig{
			SolarURL:  cfg.SolarIndicesURL,
			GeomagURL: cfg.GeomagIndicesURL,
			TTL:       cfg.HistoryTTL,
		}, logger),
		provider.NewXRayProvider(client, stores.History, provider.XRayConfig{
			URL: cfg.XRayURL,
			TTL: cfg.XRayTTL,
		}, logger),
		provider.NewRSSProvider(client, stores.Headlines, provider.RSSConfig{
			Feeds:   rssFeeds(cfg.RSSFeeds),
			TTL:     cfg.RSSTTL,
			Enabled: cfg.RSSEnabled,
		}, logger),
	)
	a.poller = scheduler.NewPoller(providers, logger)

	healthConfig := &httphandler.HealthConfig{
		Traffic:    fetchCfg.Traffic,
		Window:     cfg.HealthWindow,
		ErrorPct:   cfg.HealthErrorPct,
		MinSamples: cfg.HealthMinSamples,
	}
	if a.memcached != nil {
		healthConfig.CachePing = a.memcached.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(stores, a.poller, healthConfig, logger)
	a.router = httphandler.NewRouter(handler, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})
	return a, nil
}

// rssFeeds converts configured feeds; nil selects provider.DefaultFeeds.
func rssFeeds(feeds []config.Feed) []provider.Feed {
	if len(feeds) == 0 {
		return nil
	}
	out := make([]provider.Feed, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, provider.Feed{Name: f.Name, URL: f.URL, Format: f.Format})
	}
	return out
}
