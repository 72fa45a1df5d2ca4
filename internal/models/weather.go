package models

import "time"

// WeatherData is the current conditions at one configured location.
type WeatherData struct {
	Temperature float64   `json:"temperature"` // °C
	Pressure    float64   `json:"pressure"`    // hPa (surface)
	Humidity    float64   `json:"humidity"`    // %
	WindSpeed   float64   `json:"windSpeed"`   // km/h
	WindDeg     int       `json:"windDeg"`
	Description string    `json:"description"`
	City        string    `json:"city,omitempty"`
	Valid       bool      `json:"valid"`
	LastUpdate  time.Time `json:"lastUpdate"`
}

// MoonData is the locally computed lunar phase.
type MoonData struct {
	Phase        float64 `json:"phase"`        // 0..1, 0 = new, 0.5 = full
	Illumination float64 `json:"illumination"` // %
	PhaseName    string  `json:"phaseName"`
	Azimuth      float64 `json:"azimuth"`
	Elevation    float64 `json:"elevation"`
	Valid        bool    `json:"valid"`
}
