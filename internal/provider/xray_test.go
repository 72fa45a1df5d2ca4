package provider

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/spacewx-feed-service/internal/models"
	"github.com/kjstillabower/spacewx-feed-service/internal/store"
)

const xrayBody = `[
 {"time_tag":"2024-01-15T00:00:00Z","satellite":16,"flux":2.1e-6,"observed_flux":2.1e-6,"electron_correction":0,"electron_contaminaton":false,"energy":"0.1-0.8nm"},
 {"time_tag":"2024-01-15T00:00:00Z","satellite":16,"flux":3.0e-8,"energy":"0.05-0.4nm"},
 {"time_tag":"2024-01-15T00:01:00Z","satellite":16,"flux":2.4e-6,"energy":"0.1-0.8nm"},
 {"time_tag":"2024-01-15T00:02:00Z","satellite":16,"flux":0,"energy":"0.1-0.8nm"},
 {"time_tag":"garbage","satellite":16,"flux":1e-6,"energy":"0.1-0.8nm"}
]`

func TestParseXRay(t *testing.T) {
	points, err := parseXRay([]byte(xrayBody))
	if err != nil {
		t.Fatalf("parseXRay() error = %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("len(points) = %d, want 2: %+v", len(points), points)
	}
	if points[1].Value != 2.4e-6 || !points[1].Time.Equal(time.Date(2024, 1, 15, 0, 1, 0, 0, time.UTC)) {
		t.Errorf("points[1] = %+v", points[1])
	}
}

func TestParseXRay_Errors(t *testing.T) {
	for _, body := range []string{"{", `[]`, `[{"time_tag":"2024-01-15T00:00:00Z","flux":1e-6,"energy":"0.05-0.4nm"}]`} {
		if _, err := parseXRay([]byte(body)); err == nil {
			t.Errorf("parseXRay(%q) error = nil", body)
		}
	}
}

func TestXRayProvider_CapsSeries(t *testing.T) {
	var b strings.Builder
	b.WriteString("[")
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 200; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"time_tag":%q,"flux":%g,"energy":"0.1-0.8nm"}`, start.Add(time.Duration(i)*time.Minute).Format(time.RFC3339), float64(i+1)*1e-7)
	}
	b.WriteString("]")

	s := store.NewNamed[models.Series]("history")
	f := newFakeFetcher(map[string]string{DefaultXRayURL: b.String()})
	NewXRayProvider(f, s, XRayConfig{TTL: time.Minute}, nil).Refresh(false)

	got := s.Get(models.SeriesXRay)
	if !got.Valid || len(got.Points) != models.MaxXRaySeriesPoints {
		t.Fatalf("xray len = %d valid = %v", len(got.Points), got.Valid)
	}
	if !got.Points[0].Time.Equal(start.Add(80 * time.Minute)) {
		t.Errorf("first point time = %v, want newest 120 kept", got.Points[0].Time)
	}
}

func TestXRayProvider_EmptyBodyKeepsSeries(t *testing.T) {
	s := store.NewNamed[models.Series]("history")
	f := newFakeFetcher(map[string]string{DefaultXRayURL: xrayBody})
	p := NewXRayProvider(f, s, XRayConfig{}, nil)
	p.Refresh(false)
	f.set(DefaultXRayURL, "")
	p.Refresh(true)
	if got := s.Get(models.SeriesXRay); len(got.Points) != 2 {
		t.Errorf("xray after failed fetch = %+v", got)
	}
}
