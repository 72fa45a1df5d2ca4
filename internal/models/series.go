package models

import "time"

// Series names published by the history and X-ray providers.
const (
	SeriesFlux = "flux"
	SeriesSSN  = "ssn"
	SeriesKp   = "kp"
	SeriesXRay = "xray"
)

const (
	// MaxSeriesPoints caps the daily index series.
	MaxSeriesPoints = 30
	// MaxXRaySeriesPoints caps the X-ray flux series (one sample per minute upstream).
	MaxXRaySeriesPoints = 120
)

// SeriesNames lists every series the service publishes.
var SeriesNames = []string{SeriesFlux, SeriesSSN, SeriesKp, SeriesXRay}

// HistoryPoint is one sample of a series.
type HistoryPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Series is a bounded, time-ordered run of samples plus its display range.
type Series struct {
	Name     string         `json:"name"`
	Points   []HistoryPoint `json:"points"`
	MinValue float64        `json:"minValue"`
	MaxValue float64        `json:"maxValue"`
	Valid    bool           `json:"valid"`
}

// Clone returns a copy that shares no memory with s.
func (s Series) Clone() Series {
	if s.Points != nil {
		s.Points = append([]HistoryPoint(nil), s.Points...)
	}
	return s
}

// NewSeries keeps the last max points and computes the range over them.
// An empty input gives an invalid series.
func NewSeries(name string, points []HistoryPoint, max int) Series {
	if max > 0 && len(points) > max {
		points = points[len(points)-max:]
	}
	s := Series{Name: name, Points: append([]HistoryPoint(nil), points...)}
	if len(s.Points) == 0 {
		return s
	}
	s.MinValue, s.MaxValue = s.Points[0].Value, s.Points[0].Value
	for _, p := range s.Points[1:] {
		if p.Value < s.MinValue {
			s.MinValue = p.Value
		}
		if p.Value > s.MaxValue {
			s.MaxValue = p.Value
		}
	}
	s.Valid = true
	return s
}
