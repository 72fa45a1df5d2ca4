package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/spacewx-feed-service/internal/lifecycle"
	"github.com/kjstillabower/spacewx-feed-service/internal/models"
	"github.com/kjstillabower/spacewx-feed-service/internal/store"
	"github.com/kjstillabower/spacewx-feed-service/internal/traffic"
	"github.com/kjstillabower/spacewx-feed-service/internal/validation"
)

// Stores are the snapshot stores the read API serves. Handlers only call Get.
type Stores struct {
	Weather   map[string]*store.Snapshot[models.WeatherData] // by slot
	Moon      *store.Snapshot[models.MoonData]
	History   *store.Named[models.Series]
	Headlines *store.Snapshot[models.Headlines]
}

// Refresher triggers a refresh of every provider.
type Refresher interface {
	RefreshAll(force bool)
}

// HealthConfig holds the thresholds for the health handler.
type HealthConfig struct {
	Traffic    *traffic.Tracker
	Window     time.Duration
	ErrorPct   float64
	MinSamples int
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	stores           Stores
	slots            []string
	refresher        Refresher
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. refresher and healthConfig may be nil.
func NewHandler(stores Stores, refresher Refresher, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	slots := make([]string, 0, len(stores.Weather))
	for slot := range stores.Weather {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	return &Handler{
		stores:       stores,
		slots:        slots,
		refresher:    refresher,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetWeather handles GET /weather/{slot}.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	slot, ok := h.validName(w, r, mux.Vars(r)["slot"], h.slots, "SLOT")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.stores.Weather[slot].Get())
}

// GetMoon handles GET /moon.
func (h *Handler) GetMoon(w http.ResponseWriter, r *http.Request) {
	if h.stores.Moon == nil {
		writeJSON(w, http.StatusOK, models.MoonData{})
		return
	}
	writeJSON(w, http.StatusOK, h.stores.Moon.Get())
}

// GetHistory handles GET /history/{series}. A series that was never set is
// returned empty with valid=false.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	name, ok := h.validName(w, r, mux.Vars(r)["series"], models.SeriesNames, "SERIES")
	if !ok {
		return
	}
	var s models.Series
	if h.stores.History != nil {
		s = h.stores.History.Get(name)
	}
	if s.Name == "" {
		s.Name = name
	}
	if s.Points == nil {
		s.Points = []models.HistoryPoint{}
	}
	writeJSON(w, http.StatusOK, s)
}

// GetHeadlines handles GET /headlines.
func (h *Handler) GetHeadlines(w http.ResponseWriter, r *http.Request) {
	var hl models.Headlines
	if h.stores.Headlines != nil {
		hl = h.stores.Headlines.Get()
	}
	if hl.Items == nil {
		hl.Items = []models.Headline{}
	}
	writeJSON(w, http.StatusOK, hl)
}

// PostRefresh handles POST /refresh. Providers fetch with force=true; results land in
// the stores asynchronously, so the response is 202.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	if h.refresher == nil {
		writeError(w, r, http.StatusServiceUnavailable, "REFRESH_UNAVAILABLE", "refresh is not configured")
		return
	}
	if lifecycle.IsShuttingDown() {
		writeError(w, r, http.StatusServiceUnavailable, "SHUTTING_DOWN", "service is shutting down")
		return
	}
	h.refresher.RefreshAll(true)
	loggerFrom(r, h.logger).Info("forced refresh dispatched")
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"ok":      true,
		"action":  "refresh",
		"message": "Refresh dispatched",
	})
}

// validName writes 400 for an empty name and 404 for an unknown one.
func (h *Handler) validName(w http.ResponseWriter, r *http.Request, input string, allowed []string, kind string) (string, bool) {
	name, err := validation.ValidateName(input, allowed)
	switch {
	case err == nil:
		return name, true
	case errors.Is(err, validation.ErrNameEmpty):
		writeError(w, r, http.StatusBadRequest, "INVALID_"+kind, strings.ToLower(kind)+" is required")
	default:
		writeError(w, r, http.StatusNotFound, "UNKNOWN_"+kind, "unknown "+strings.ToLower(kind)+": "+strings.TrimSpace(input))
	}
	return "", false
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.status == "degraded" {
		checks["upstreams"] = "unhealthy"
	} else {
		checks["upstreams"] = "healthy"
	}
	if hc := h.healthConfig; hc != nil && hc.Traffic != nil && hc.Window > 0 {
		// Pool rejections mean callbacks received empty bodies; stores kept stale data.
		if hc.Traffic.RejectedCount(hc.Window) > 0 {
			checks["fetchQueue"] = "saturated"
		} else {
			checks["fetchQueue"] = "healthy"
		}
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "spacewx-feed-service",
		"version":   "dev",
		"lifecycle": lifecycle.Current().String(),
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates, in order: shutting-down > degraded > ok.
// Degraded means the upstream fetch failure rate over the window breached the threshold.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	hc := h.healthConfig
	if hc != nil && hc.Traffic != nil && hc.Window > 0 && hc.ErrorPct > 0 {
		if hc.Traffic.Degraded(hc.Window, hc.ErrorPct, hc.MinSamples) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"ok", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": correlationIDFrom(r),
		},
	})
}
