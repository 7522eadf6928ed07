// Package worker runs the background work of the service: per-user refresh
// scheduling, remote refresh triggers and the weekly report.
package worker

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/livebetter/livebetter/internal/tracking"
)

// RefreshConfig holds configuration for a refresh pass.
type RefreshConfig struct {
	// Concurrency is the number of entries fetched in parallel.
	// Default: 4
	Concurrency int

	// FetchTimeout bounds each entry's fetch. Zero leaves the transport's
	// own timeout in charge.
	FetchTimeout time.Duration
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Concurrency: 4,
	}
}

// ReportConfig holds configuration for the weekly report job.
type ReportConfig struct {
	// Schedule is a five-field cron expression evaluated in Location.
	// Default: Monday 08:00
	Schedule string

	// Location is the time zone for Schedule. Default: UTC
	Location *time.Location
}

// DefaultReportSchedule sends reports on Monday mornings.
const DefaultReportSchedule = "0 8 * * 1"

// ErrInvalidLocationList is returned by ParseLocations for malformed input.
var ErrInvalidLocationList = errors.New("invalid location list")

// ParseLocations parses "name|lat|lon" entries separated by semicolons, as
// used by the standalone worker to seed its tracked locations.
func ParseLocations(list string) ([]tracking.Candidate, error) {
	var out []tracking.Candidate
	for _, raw := range strings.Split(list, ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		parts := strings.Split(raw, "|")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: %q: want name|lat|lon", ErrInvalidLocationList, raw)
		}

		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: latitude: %v", ErrInvalidLocationList, raw, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: longitude: %v", ErrInvalidLocationList, raw, err)
		}

		c := tracking.Candidate{
			Name:        strings.TrimSpace(parts[0]),
			Coordinates: tracking.Coordinates{Lat: lat, Lon: lon},
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidLocationList, raw, err)
		}
		out = append(out, c)
	}
	return out, nil
}
