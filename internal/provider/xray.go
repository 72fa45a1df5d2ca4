package provider

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/spacewx-feed-service/internal/models"
	"github.com/kjstillabower/spacewx-feed-service/internal/store"
)

// DefaultXRayURL is the GOES primary 1-day X-ray flux product.
const DefaultXRayURL = "https://services.swpc.noaa.gov/json/goes/primary/xrays-1-day.json"

// xrayLongBand is the 1-8 Å channel used for flare classification.
const xrayLongBand = "0.1-0.8nm"

// XRayConfig locates the GOES X-ray product.
type XRayConfig struct {
	URL string
	TTL time.Duration
}

// XRayProvider publishes the recent long-band X-ray flux as the xray series.
type XRayProvider struct {
	fetcher Fetcher
	store   *store.Named[models.Series]
	cfg     XRayConfig
	logger  *zap.Logger
}

// NewXRayProvider creates a provider publishing to s.
func NewXRayProvider(f Fetcher, s *store.Named[models.Series], cfg XRayConfig, logger *zap.Logger) *XRayProvider {
	if cfg.URL == "" {
		cfg.URL = DefaultXRayURL
	}
	return &XRayProvider{fetcher: f, store: s, cfg: cfg, logger: nopIfNil(logger)}
}

// Name implements Provider.
func (p *XRayProvider) Name() string {
	return "xray"
}

// Refresh implements Provider.
func (p *XRayProvider) Refresh(force bool) {
	p.fetcher.FetchAsync(p.cfg.URL, func(body []byte) {
		if len(body) == 0 {
			fetchFailed(p.logger, p.Name(), p.cfg.URL)
			return
		}
		points, err := parseXRay(body)
		if err != nil {
			parseFailed(p.logger, p.Name(), p.cfg.URL, err)
			return
		}
		p.store.Update(models.SeriesXRay, models.NewSeries(models.SeriesXRay, points, models.MaxXRaySeriesPoints))
	}, p.cfg.TTL, force)
}

type xraySample struct {
	TimeTag string  `json:"time_tag"`
	Flux    float64 `json:"flux"`
	Energy  string  `json:"energy"`
}

// parseXRay keeps long-band samples with a positive flux and a parsable time.
func parseXRay(body []byte) ([]models.HistoryPoint, error) {
	var samples []xraySample
	if err := json.Unmarshal(body, &samples); err != nil {
		return nil, fmt.Errorf("unmarshal xray: %w", err)
	}
	var points []models.HistoryPoint
	for _, s := range samples {
		if s.Energy != xrayLongBand || s.Flux <= 0 {
			continue
		}
		ts, err := time.Parse(time.RFC3339, s.TimeTag)
		if err != nil {
			continue
		}
		points = append(points, models.HistoryPoint{Time: ts, Value: s.Flux})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("no %s samples", xrayLongBand)
	}
	return points, nil
}
