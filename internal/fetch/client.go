package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/spacewx-feed-service/internal/cache"
	"github.com/kjstillabower/spacewx-feed-service/internal/circuitbreaker"
	"github.com/kjstillabower/spacewx-feed-service/internal/observability"
	"github.com/kjstillabower/spacewx-feed-service/internal/traffic"
	"github.com/kjstillabower/spacewx-feed-service/internal/workerpool"
)

// ErrUpstreamStatus wraps a non-2xx upstream response.
var ErrUpstreamStatus = errors.New("upstream returned non-success status")

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "SpaceWx-Feed/1.0"
	defaultWorkers   = 4
	defaultQueueSize = 64
	maxRedirects     = 10
	writeStripes     = 64
)

// Config configures a Client. Zero values get defaults.
type Config struct {
	// CacheDir enables a DiskCache backing when Backing is nil. Empty means memory only.
	CacheDir string
	// Backing overrides CacheDir (e.g. a MemcachedCache).
	Backing cache.Backing
	// BackendName labels backing metrics. Defaults to "disk" for CacheDir.
	BackendName string

	Timeout   time.Duration
	UserAgent string
	Workers   int
	QueueSize int
	// Coalesce de-duplicates concurrent misses for the same URL into one upstream call.
	Coalesce bool

	Breakers *circuitbreaker.Set
	Traffic  *traffic.Tracker
	Logger   *zap.Logger
	Now      func() time.Time
}

// Client fetches URLs on a bounded worker pool, caching bodies in memory and
// in an optional persistent backing. Safe for concurrent use.
type Client struct {
	http     *resty.Client
	mem      *cache.MemoryCache
	backing  cache.Backing
	lookup   cache.Lookuper
	backend  string
	pool     *workerpool.Pool
	group    singleflight.Group
	coalesce bool
	stampede *stampedeTracker
	breakers *circuitbreaker.Set
	traffic  *traffic.Tracker
	logger   *zap.Logger
	now      func() time.Time

	// writes serializes stamp-then-store per URL so memory and the backing
	// never move backwards in fetchedAt.
	writes [writeStripes]sync.Mutex

	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex // guards closed and rejects.Add
	closed  bool
	rejects sync.WaitGroup
}

// New creates a Client and eagerly loads the persistent backing into memory
// when the backing can enumerate its records.
func New(cfg Config) (*Client, error) {
	if cfg.Workers < 0 || cfg.QueueSize < 0 {
		return nil, fmt.Errorf("fetch: workers and queue size must not be negative")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Workers == 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Traffic == nil {
		cfg.Traffic = traffic.NewTracker(0, nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	backing := cfg.Backing
	backend := cfg.BackendName
	if backing == nil && cfg.CacheDir != "" {
		disk, err := cache.NewDiskCache(cfg.CacheDir, cfg.Logger)
		if err != nil {
			cfg.Logger.Warn("disk cache unavailable, running memory only",
				zap.String("dir", cfg.CacheDir),
				zap.Error(err),
			)
		} else {
			backing = disk
			backend = "disk"
		}
	}
	if backend == "" {
		backend = "custom"
	}

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(maxRedirects)).
		SetLogger(cfg.Logger.Sugar())

	baseCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		http:     httpClient,
		mem:      cache.NewMemoryCache(),
		backing:  backing,
		backend:  backend,
		pool:     workerpool.New(cfg.Workers, cfg.QueueSize, cfg.Logger),
		coalesce: cfg.Coalesce,
		stampede: newStampedeTracker(),
		breakers: cfg.Breakers,
		traffic:  cfg.Traffic,
		logger:   cfg.Logger,
		now:      cfg.Now,
		baseCtx:  baseCtx,
		cancel:   cancel,
	}
	if l, ok := backing.(cache.Lookuper); ok {
		c.lookup = l
	}
	if loader, ok := backing.(cache.Loader); ok {
		c.loadBacking(loader)
	}
	return c, nil
}

func (c *Client) loadBacking(loader cache.Loader) {
	loaded, skipped, err := loader.LoadAll(c.mem.Set)
	if err != nil {
		observability.CacheBackingErrorsTotal.WithLabelValues(c.backend, "load").Inc()
		c.logger.Warn("cache load failed", zap.String("backend", c.backend), zap.Error(err))
		return
	}
	observability.CacheLoadedEntries.Set(float64(loaded))
	observability.CacheSkippedRecordsTotal.Add(float64(skipped))
	c.logger.Info("cache loaded",
		zap.String("backend", c.backend),
		zap.Int("loaded", loaded),
		zap.Int("skipped", skipped),
	)
}

// FetchAsync returns immediately. onResult runs exactly once on a background
// goroutine with the body, or with an empty body on failure. A fresh memory hit
// (unless force) is delivered without touching the network.
func (c *Client) FetchAsync(url string, onResult func(body []byte), maxAge time.Duration, force bool) {
	deliver := onResult
	if deliver == nil {
		deliver = func([]byte) {}
	}

	if !force {
		if entry, ok := c.mem.Get(url); ok && entry.Fresh(c.now(), maxAge) {
			observability.CacheHitsTotal.WithLabelValues("memory").Inc()
			c.submit(url, func() { deliver(entry.Payload()) }, deliver)
			return
		}
	}
	c.submit(url, func() { deliver(c.load(url, maxAge, force)) }, deliver)
}

// submit queues task, or on rejection delivers an empty body on a tracked goroutine
// so the exactly-once contract holds.
func (c *Client) submit(url string, task workerpool.Task, deliver func([]byte)) {
	err := c.pool.TrySubmit(task)
	if err == nil {
		return
	}

	reason := CategorizeError(err)
	observability.FetchRejectedTotal.WithLabelValues(string(reason)).Inc()
	c.traffic.RecordRejected()
	c.logger.Warn("fetch rejected",
		zap.String("url", url),
		zap.String("reason", string(reason)),
	)

	c.mu.Lock()
	tracked := !c.closed
	if tracked {
		c.rejects.Add(1)
	}
	c.mu.Unlock()

	go func() {
		if tracked {
			defer c.rejects.Done()
		}
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("fetch callback panicked", zap.String("url", url), zap.Any("panic", r))
			}
		}()
		deliver(nil)
	}()
}

// load runs on a worker: shared backing lookup, then upstream GET. A forced
// load skips the backing and the circuit breaker.
func (c *Client) load(url string, maxAge time.Duration, force bool) []byte {
	if !force && c.lookup != nil {
		if body, ok := c.lookupBacking(url, maxAge); ok {
			return body
		}
	}

	if !c.coalesce {
		body, err := c.fetch(url, force)
		if err != nil {
			return nil
		}
		return body
	}

	key := url
	if force {
		key = "force\x00" + url
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.fetch(url, force)
	})
	if err != nil {
		return nil
	}
	return append([]byte(nil), v.([]byte)...)
}

func (c *Client) lookupBacking(url string, maxAge time.Duration) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(c.baseCtx, c.http.GetClient().Timeout)
	defer cancel()

	entry, ok, err := c.lookup.Lookup(ctx, url)
	if err != nil {
		observability.CacheBackingErrorsTotal.WithLabelValues(c.backend, "lookup").Inc()
		c.logger.Warn("cache lookup failed",
			zap.String("backend", c.backend),
			zap.String("url", url),
			zap.Error(err),
		)
		return nil, false
	}
	if !ok || !entry.Fresh(c.now(), maxAge) {
		return nil, false
	}
	c.mem.SetIfNewer(url, entry)
	observability.CacheHitsTotal.WithLabelValues(c.backend).Inc()
	return entry.Payload(), true
}

// fetch performs the upstream GET and, on success, updates memory then the backing.
// The memory-cache lock is never held across I/O; the per-URL write lock is.
func (c *Client) fetch(url string, force bool) ([]byte, error) {
	if n := c.stampede.RecordMiss(url); n > 1 {
		observability.FetchConcurrentMissesTotal.Inc()
		c.logger.Debug("concurrent miss", zap.String("url", url), zap.Int("concurrent", n))
	}
	defer c.stampede.Done(url)

	start := time.Now()
	body, err := c.get(url, force)
	duration := time.Since(start).Seconds()

	if err != nil {
		category := CategorizeError(err)
		observability.FetchRequestsTotal.WithLabelValues(string(category)).Inc()
		observability.FetchDuration.WithLabelValues(string(category)).Observe(duration)
		c.traffic.RecordFailure()
		c.logger.Warn("fetch failed",
			zap.String("url", url),
			zap.String("category", string(category)),
			zap.Error(err),
		)
		return nil, err
	}
	observability.FetchRequestsTotal.WithLabelValues("success").Inc()
	observability.FetchDuration.WithLabelValues("success").Observe(duration)
	c.traffic.RecordSuccess()

	c.store(url, body)
	c.logger.Debug("fetched", zap.String("url", url), zap.Int("bytes", len(body)))
	return body, nil
}

// store stamps body and writes it to memory then the backing under the URL's
// write lock, so a slower concurrent fetch cannot overwrite a later stamp.
func (c *Client) store(url string, body []byte) {
	mu := &c.writes[xxhash.Sum64String(url)%writeStripes]
	mu.Lock()
	defer mu.Unlock()

	entry := cache.NewEntry(body, c.now())
	c.mem.Set(url, entry)
	if c.backing == nil {
		return
	}
	if err := c.backing.Store(c.baseCtx, url, entry); err != nil {
		observability.CacheBackingErrorsTotal.WithLabelValues(c.backend, "store").Inc()
		c.logger.Warn("cache store failed",
			zap.String("backend", c.backend),
			zap.String("url", url),
			zap.Error(err),
		)
	}
}

func (c *Client) get(rawURL string, force bool) ([]byte, error) {
	var body []byte
	call := func() error {
		resp, err := c.http.R().SetContext(c.baseCtx).Get(rawURL)
		if err != nil {
			return err
		}
		if !resp.IsSuccess() {
			return fmt.Errorf("%w: %s", ErrUpstreamStatus, resp.Status())
		}
		body = resp.Body()
		return nil
	}
	var err error
	if c.breakers == nil || force {
		err = call()
	} else {
		err = c.breakers.Call(hostOf(rawURL), call)
	}
	return body, err
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

// Cached returns the memory-cache entry for url.
func (c *Client) Cached(url string) (cache.Entry, bool) {
	return c.mem.Get(url)
}

// Pending returns the number of queued fetch tasks.
func (c *Client) Pending() int {
	return c.pool.Pending()
}

// Close stops accepting work and waits for queued and in-flight tasks. If ctx
// expires first, in-flight requests are aborted (their callbacks still fire with
// an empty body) and ctx.Err() is returned.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = c.pool.Close(context.Background())
		c.rejects.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.cancel()
		return nil
	case <-ctx.Done():
		c.cancel()
		return ctx.Err()
	}
}
