package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/spacewx-feed-service/internal/observability"
)

// RouterConfig holds the middleware settings for the data routes.
type RouterConfig struct {
	Limiter        *rate.Limiter // nil disables rate limiting
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// NewRouter wires the read API. /health and /metrics bypass the rate limit.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	data := router.NewRoute().Subrouter()
	data.Use(RateLimitMiddleware(cfg.Limiter))
	data.Use(TimeoutMiddleware(cfg.RequestTimeout))
	data.HandleFunc("/weather/{slot}", h.GetWeather).Methods(http.MethodGet)
	data.HandleFunc("/moon", h.GetMoon).Methods(http.MethodGet)
	data.HandleFunc("/history/{series}", h.GetHistory).Methods(http.MethodGet)
	data.HandleFunc("/headlines", h.GetHeadlines).Methods(http.MethodGet)
	data.HandleFunc("/refresh", h.PostRefresh).Methods(http.MethodPost)
	return router
}
