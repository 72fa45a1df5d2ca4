package validation

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
)

// ErrNameEmpty is returned when a path parameter is empty or whitespace-only after trim.
var ErrNameEmpty = errors.New("name is required")

// ErrNameUnknown is returned when a slot or series name is not one the service publishes.
var ErrNameUnknown = errors.New("unknown name")

// ErrLatitudeRange is returned when latitude is outside [-90, 90] or not a number.
var ErrLatitudeRange = errors.New("latitude out of range")

// ErrLongitudeRange is returned when longitude is outside [-180, 180] or not a number.
var ErrLongitudeRange = errors.New("longitude out of range")

// ErrFeedURL is returned for a feed URL that is not absolute http(s).
var ErrFeedURL = errors.New("invalid feed url")

// ValidateName trims and lowercases input and checks it against allowed.
// Returns the normalized name or an error suitable for 400/404 responses.
func ValidateName(input string, allowed []string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return "", ErrNameEmpty
	}
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrNameUnknown, s)
}

// ValidateCoordinates checks a latitude/longitude pair in decimal degrees.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: %v", ErrLatitudeRange, lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: %v", ErrLongitudeRange, lon)
	}
	return nil
}

// ValidateFeedURL requires an absolute http or https URL with a host.
func ValidateFeedURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFeedURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrFeedURL, raw)
	}
	return nil
}
