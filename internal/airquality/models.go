// Package airquality provides point-in-time air quality readings and caching.
package airquality

import (
	"errors"
	"fmt"
	"time"
)

// Provider errors.
var (
	ErrNoReading           = errors.New("no air quality reading available")
	ErrProviderUnavailable = errors.New("air quality provider unavailable")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
	ErrInvalidRange        = errors.New("invalid history range")
)

// MaxHistorySpan is the longest window a single history request may cover.
const MaxHistorySpan = 180 * 24 * time.Hour

// Index is the air quality ordinal reported by the provider, from 1 (Good) to 5 (Very Poor).
type Index int

const (
	IndexGood     Index = 1
	IndexFair     Index = 2
	IndexModerate Index = 3
	IndexPoor     Index = 4
	IndexVeryPoor Index = 5
)

// MinIndex is the lowest ordinal. It is also the value assumed when no reading could be taken.
const MinIndex = IndexGood

// Valid reports whether the index is within the 1..5 range.
func (i Index) Valid() bool {
	return i >= IndexGood && i <= IndexVeryPoor
}

// Description returns the human readable category for the index.
func (i Index) Description() string {
	switch i {
	case IndexGood:
		return "Good"
	case IndexFair:
		return "Fair"
	case IndexModerate:
		return "Moderate"
	case IndexPoor:
		return "Poor"
	case IndexVeryPoor:
		return "Very Poor"
	default:
		return "Unknown"
	}
}

// Color returns the display color for the index.
func (i Index) Color() string {
	switch i {
	case IndexGood:
		return "#4CAF50"
	case IndexFair:
		return "#CDDC39"
	case IndexModerate:
		return "#FFC107"
	case IndexPoor:
		return "#FF5722"
	case IndexVeryPoor:
		return "#9C27B0"
	default:
		return "#9E9E9E"
	}
}

// Pollutant identifies a measured component of a reading.
type Pollutant string

const (
	PollutantCO   Pollutant = "co"
	PollutantNO   Pollutant = "no"
	PollutantNO2  Pollutant = "no2"
	PollutantO3   Pollutant = "o3"
	PollutantSO2  Pollutant = "so2"
	PollutantPM25 Pollutant = "pm2_5"
	PollutantPM10 Pollutant = "pm10"
	PollutantNH3  Pollutant = "nh3"
)

// AllPollutants lists pollutants in display order.
var AllPollutants = []Pollutant{
	PollutantPM25, PollutantPM10, PollutantO3, PollutantNO2,
	PollutantSO2, PollutantCO, PollutantNO, PollutantNH3,
}

// Reading is a point-in-time air quality measurement for a coordinate.
type Reading struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	// Index is the provider's ordinal air quality category.
	Index Index `json:"index"`

	// Pollutants holds concentrations in μg/m³ keyed by pollutant.
	Pollutants map[Pollutant]float64 `json:"pollutants"`

	// MeasuredAt is the provider's timestamp for the reading.
	MeasuredAt time.Time `json:"measuredAt"`

	// FetchedAt is when this reading was retrieved from the provider.
	FetchedAt time.Time `json:"fetchedAt"`

	// Provider identifies the data source.
	Provider string `json:"provider"`
}

// Clone returns a deep copy of the reading.
func (r *Reading) Clone() *Reading {
	if r == nil {
		return nil
	}
	c := *r
	if r.Pollutants != nil {
		c.Pollutants = make(map[Pollutant]float64, len(r.Pollutants))
		for k, v := range r.Pollutants {
			c.Pollutants[k] = v
		}
	}
	return &c
}

// Forecast is a series of predicted readings for a coordinate.
type Forecast struct {
	Lat       float64
	Lon       float64
	Hourly    []Reading
	FetchedAt time.Time
	Provider  string
}

// History is a series of past readings for a coordinate, oldest first.
type History struct {
	Lat       float64
	Lon       float64
	Start     time.Time
	End       time.Time
	Readings  []Reading
	FetchedAt time.Time
	Provider  string
}

// Peak returns the highest index in the series, or MinIndex when it is empty.
func (h *History) Peak() Index {
	peak := MinIndex
	for i := range h.Readings {
		if h.Readings[i].Index > peak {
			peak = h.Readings[i].Index
		}
	}
	return peak
}

// ValidateRange checks a history window: start strictly before end and no
// longer than MaxHistorySpan.
func ValidateRange(start, end time.Time) error {
	switch {
	case !start.Before(end):
		return fmt.Errorf("%w: start must be before end", ErrInvalidRange)
	case end.Sub(start) > MaxHistorySpan:
		return fmt.Errorf("%w: at most %d days", ErrInvalidRange, int(MaxHistorySpan.Hours()/24))
	}
	return nil
}

// ValidateCoordinates checks latitude and longitude ranges.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}
