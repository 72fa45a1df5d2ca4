// Package provider turns upstream feed payloads into store updates.
//
// Providers never see HTTP status codes or errors: an empty body is the only
// failure signal. A payload that fails to parse leaves the store unchanged.
package provider

import (
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/spacewx-feed-service/internal/observability"
)

// Fetcher is the asynchronous fetch boundary. onResult runs exactly once, with
// the body or with an empty body on any failure.
type Fetcher interface {
	FetchAsync(url string, onResult func(body []byte), maxAge time.Duration, force bool)
}

// Provider refreshes one group of feeds into its store.
type Provider interface {
	Name() string
	Refresh(force bool)
}

func nopIfNil(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// fetchFailed logs an empty body. The fetch client has already logged the cause.
func fetchFailed(logger *zap.Logger, provider, url string) {
	logger.Debug("fetch returned no data, keeping previous value",
		zap.String("provider", provider),
		zap.String("url", url),
	)
}

func parseFailed(logger *zap.Logger, provider, url string, err error) {
	observability.ProviderParseErrorsTotal.WithLabelValues(provider).Inc()
	logger.Debug("parse failed, keeping previous value",
		zap.String("provider", provider),
		zap.String("url", url),
		zap.Error(err),
	)
}
