package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/spacewx-feed-service/internal/observability"
	"github.com/kjstillabower/spacewx-feed-service/internal/provider"
)

// DefaultInterval is the refresh period when none is configured.
const DefaultInterval = 15 * time.Minute

// Poller triggers every provider's Refresh. Refresh only dispatches fetches, so a
// cycle returns quickly and the stores update as results arrive.
type Poller struct {
	providers []provider.Provider
	logger    *zap.Logger
}

// NewPoller creates a Poller over providers.
func NewPoller(providers []provider.Provider, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{providers: providers, logger: logger}
}

// RefreshAll triggers one refresh of every provider. force bypasses fresh cache entries.
// A panicking provider is logged and skipped.
func (p *Poller) RefreshAll(force bool) {
	start := time.Now()
	observability.PollRunsTotal.Inc()
	for _, prov := range p.providers {
		p.refresh(prov, force)
	}
	duration := time.Since(start).Seconds()
	observability.PollDurationSeconds.Observe(duration)
	p.logger.Info("poll dispatched",
		zap.Int("providers", len(p.providers)),
		zap.Bool("force", force),
		zap.Float64("duration_seconds", duration),
	)
}

func (p *Poller) refresh(prov provider.Provider, force bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("provider refresh panicked", zap.String("provider", prov.Name()), zap.Any("panic", r))
		}
	}()
	prov.Refresh(force)
}

// Run does an initial RefreshAll, then one per interval until ctx is done.
// A non-positive interval uses DefaultInterval.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p.RefreshAll(false)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.RefreshAll(false)
		}
	}
}
