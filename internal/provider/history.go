package provider

import (
	"bufio"
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/spacewx-feed-service/internal/models"
	"github.com/kjstillabower/spacewx-feed-service/internal/store"
)

// NOAA SWPC daily index text products.
const (
	DefaultSolarIndicesURL  = "https://services.swpc.noaa.gov/text/daily-solar-indices.txt"
	DefaultGeomagIndicesURL = "https://services.swpc.noaa.gov/text/daily-geomagnetic-indices.txt"
)

const (
	kpMin = 0
	kpMax = 9
)

var errNoRows = errors.New("no data rows")

// HistoryConfig locates the daily index products.
type HistoryConfig struct {
	SolarURL  string
	GeomagURL string
	TTL       time.Duration
}

// HistoryProvider publishes the flux, ssn and kp series. One solar fetch feeds
// both flux and ssn.
type HistoryProvider struct {
	fetcher Fetcher
	store   *store.Named[models.Series]
	cfg     HistoryConfig
	logger  *zap.Logger
}

// NewHistoryProvider creates a provider publishing to s. Empty URLs use the NOAA defaults.
func NewHistoryProvider(f Fetcher, s *store.Named[models.Series], cfg HistoryConfig, logger *zap.Logger) *HistoryProvider {
	if cfg.SolarURL == "" {
		cfg.SolarURL = DefaultSolarIndicesURL
	}
	if cfg.GeomagURL == "" {
		cfg.GeomagURL = DefaultGeomagIndicesURL
	}
	return &HistoryProvider{fetcher: f, store: s, cfg: cfg, logger: nopIfNil(logger)}
}

// Name implements Provider.
func (p *HistoryProvider) Name() string {
	return "history"
}

// Refresh implements Provider.
func (p *HistoryProvider) Refresh(force bool) {
	p.fetcher.FetchAsync(p.cfg.SolarURL, p.onSolar, p.cfg.TTL, force)
	p.fetcher.FetchAsync(p.cfg.GeomagURL, p.onGeomag, p.cfg.TTL, force)
}

func (p *HistoryProvider) onSolar(body []byte) {
	if len(body) == 0 {
		fetchFailed(p.logger, p.Name(), p.cfg.SolarURL)
		return
	}
	flux, ssn, err := parseSolarIndices(body)
	if err != nil {
		parseFailed(p.logger, p.Name(), p.cfg.SolarURL, err)
		return
	}
	if len(flux) > 0 {
		p.store.Update(models.SeriesFlux, models.NewSeries(models.SeriesFlux, flux, models.MaxSeriesPoints))
	}
	if len(ssn) > 0 {
		p.store.Update(models.SeriesSSN, models.NewSeries(models.SeriesSSN, ssn, models.MaxSeriesPoints))
	}
}

func (p *HistoryProvider) onGeomag(body []byte) {
	if len(body) == 0 {
		fetchFailed(p.logger, p.Name(), p.cfg.GeomagURL)
		return
	}
	kp, err := parseGeomagIndices(body)
	if err != nil {
		parseFailed(p.logger, p.Name(), p.cfg.GeomagURL, err)
		return
	}
	s := models.NewSeries(models.SeriesKp, kp, models.MaxSeriesPoints)
	s.MinValue, s.MaxValue = kpMin, kpMax
	p.store.Update(models.SeriesKp, s)
}

// parseSolarIndices reads "YYYY MM DD flux ssn ..." rows. Negative values mark
// missing data and are dropped from that series only.
func parseSolarIndices(body []byte) (flux, ssn []models.HistoryPoint, err error) {
	err = eachDailyRow(body, func(day time.Time, fields []int) {
		if fields[0] >= 0 {
			flux = append(flux, models.HistoryPoint{Time: day, Value: float64(fields[0])})
		}
		if fields[1] >= 0 {
			ssn = append(ssn, models.HistoryPoint{Time: day, Value: float64(fields[1])})
		}
	})
	return flux, ssn, err
}

// parseGeomagIndices reads "YYYY MM DD A K1 ..." rows and takes K1, the first
// Fredericksburg K value (column 5).
// A K of -1 marks a missing interval.
func parseGeomagIndices(body []byte) ([]models.HistoryPoint, error) {
	var kp []models.HistoryPoint
	err := eachDailyRow(body, func(day time.Time, fields []int) {
		if fields[1] >= 0 {
			kp = append(kp, models.HistoryPoint{Time: day, Value: float64(fields[1])})
		}
	})
	if err == nil && len(kp) == 0 {
		err = errNoRows
	}
	return kp, err
}

// eachDailyRow calls fn with the date and the two integers after it for every
// line that starts with five integers. Lines starting with '#' or ':' are headers.
func eachDailyRow(body []byte, fn func(day time.Time, fields []int)) error {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	rows := 0
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '#' || line[0] == ':' {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 5 {
			continue
		}
		var vals [5]int
		ok := true
		for i := 0; i < 5; i++ {
			v, err := strconv.Atoi(parts[i])
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok {
			continue
		}
		day := time.Date(vals[0], time.Month(vals[1]), vals[2], 0, 0, 0, 0, time.UTC)
		fn(day, vals[3:])
		rows++
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if rows == 0 {
		return errNoRows
	}
	return nil
}
