package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/spacewx-feed-service/internal/models"
	"github.com/kjstillabower/spacewx-feed-service/internal/store"
)

// DefaultWeatherURL is the Open-Meteo forecast endpoint.
const DefaultWeatherURL = "https://api.open-meteo.com/v1/forecast"

const weatherFields = "temperature_2m,relative_humidity_2m,surface_pressure,wind_speed_10m,wind_direction_10m,weather_code"

var errNoCurrent = errors.New("response has no current conditions")

// WeatherConfig locates one weather slot.
type WeatherConfig struct {
	Slot    string // "de" or "dx"
	City    string
	Lat     float64
	Lon     float64
	TTL     time.Duration
	BaseURL string // defaults to DefaultWeatherURL
}

// WeatherProvider fetches current conditions for one location.
type WeatherProvider struct {
	fetcher Fetcher
	store   *store.Snapshot[models.WeatherData]
	cfg     WeatherConfig
	url     string
	logger  *zap.Logger
	now     func() time.Time
}

// NewWeatherProvider creates a provider publishing to s.
func NewWeatherProvider(f Fetcher, s *store.Snapshot[models.WeatherData], cfg WeatherConfig, logger *zap.Logger) *WeatherProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultWeatherURL
	}
	return &WeatherProvider{
		fetcher: f,
		store:   s,
		cfg:     cfg,
		url:     fmt.Sprintf("%s?latitude=%.4f&longitude=%.4f&current=%s", cfg.BaseURL, cfg.Lat, cfg.Lon, weatherFields),
		logger:  nopIfNil(logger),
		now:     time.Now,
	}
}

// Name implements Provider.
func (p *WeatherProvider) Name() string {
	return "weather:" + p.cfg.Slot
}

// URL returns the upstream URL (query included).
func (p *WeatherProvider) URL() string {
	return p.url
}

// Refresh implements Provider.
func (p *WeatherProvider) Refresh(force bool) {
	p.fetcher.FetchAsync(p.url, func(body []byte) {
		if len(body) == 0 {
			fetchFailed(p.logger, p.Name(), p.url)
			return
		}
		data, err := parseWeather(body)
		if err != nil {
			parseFailed(p.logger, "weather", p.url, err)
			return
		}
		data.City = p.cfg.City
		data.LastUpdate = p.now()
		p.store.Update(data)
	}, p.cfg.TTL, force)
}

type openMeteoResponse struct {
	Current *struct {
		Temperature   float64 `json:"temperature_2m"`
		Humidity      float64 `json:"relative_humidity_2m"`
		Pressure      float64 `json:"surface_pressure"`
		WindSpeed     float64 `json:"wind_speed_10m"`
		WindDirection float64 `json:"wind_direction_10m"`
		WeatherCode   int     `json:"weather_code"`
	} `json:"current"`
}

func parseWeather(body []byte) (models.WeatherData, error) {
	var resp openMeteoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.WeatherData{}, fmt.Errorf("unmarshal weather: %w", err)
	}
	if resp.Current == nil {
		return models.WeatherData{}, errNoCurrent
	}
	c := resp.Current
	return models.WeatherData{
		Temperature: c.Temperature,
		Pressure:    c.Pressure,
		Humidity:    c.Humidity,
		WindSpeed:   c.WindSpeed,
		WindDeg:     int(c.WindDirection),
		Description: WeatherDescription(c.WeatherCode),
		Valid:       true,
	}, nil
}

// WeatherDescription maps a WMO weather interpretation code to a short description.
func WeatherDescription(code int) string {
	switch code {
	case 0:
		return "Clear sky"
	case 1, 2, 3:
		return "Partly cloudy"
	case 45, 48:
		return "Fog"
	case 51, 53, 55:
		return "Drizzle"
	case 56, 57:
		return "Freezing Drizzle"
	case 61, 63, 65:
		return "Rain"
	case 66, 67:
		return "Freezing Rain"
	case 71, 73, 75:
		return "Snow fall"
	case 77:
		return "Snow grains"
	case 80, 81, 82:
		return "Rain showers"
	case 85, 86:
		return "Snow showers"
	case 95:
		return "Thunderstorm"
	case 96, 99:
		return "Thunderstorm with hail"
	default:
		return "Unknown"
	}
}
