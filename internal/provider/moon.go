package provider

import (
	"math"
	"time"

	"github.com/kjstillabower/spacewx-feed-service/internal/models"
	"github.com/kjstillabower/spacewx-feed-service/internal/store"
)

const synodicMonthDays = 29.530588853

// Reference new moon: 2000-01-06 18:14 UTC.
var referenceNewMoon = time.Date(2000, time.January, 6, 18, 14, 0, 0, time.UTC)

// MoonProvider computes the lunar phase locally; it makes no network calls.
type MoonProvider struct {
	store *store.Snapshot[models.MoonData]
	now   func() time.Time
}

// NewMoonProvider creates a provider publishing to s. A nil now uses time.Now.
func NewMoonProvider(s *store.Snapshot[models.MoonData], now func() time.Time) *MoonProvider {
	if now == nil {
		now = time.Now
	}
	return &MoonProvider{store: s, now: now}
}

// Name implements Provider.
func (p *MoonProvider) Name() string {
	return "moon"
}

// Refresh implements Provider. force has no effect.
func (p *MoonProvider) Refresh(bool) {
	p.store.Update(ComputeMoon(p.now()))
}

// ComputeMoon returns the phase at t. Azimuth and elevation are not computed.
func ComputeMoon(t time.Time) models.MoonData {
	days := t.Sub(referenceNewMoon).Hours() / 24
	phase := math.Mod(days/synodicMonthDays, 1)
	if phase < 0 {
		phase++
	}
	return models.MoonData{
		Phase:        phase,
		Illumination: 100 * 0.5 * (1 - math.Cos(2*math.Pi*phase)),
		PhaseName:    moonPhaseName(phase),
		Valid:        true,
	}
}

func moonPhaseName(phase float64) string {
	switch {
	case phase < 0.03 || phase > 0.97:
		return "New"
	case phase < 0.22:
		return "Waxing Cres"
	case phase < 0.28:
		return "First Qtr"
	case phase < 0.47:
		return "Waxing Gib"
	case phase < 0.53:
		return "Full"
	case phase < 0.72:
		return "Waning Gib"
	case phase < 0.78:
		return "Third Qtr"
	default:
		return "Waning Cres"
	}
}
