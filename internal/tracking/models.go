// Package tracking holds the set of locations a user monitors and their latest readings.
package tracking

import (
	"errors"
	"strings"
	"time"

	"github.com/livebetter/livebetter/internal/airquality"
)

// Store errors.
var (
	ErrStoreFull        = errors.New("tracked location limit reached")
	ErrInvalidCandidate = errors.New("invalid tracked location")
)

// DefaultMaxEntries bounds how many locations one store tracks.
const DefaultMaxEntries = 50

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Identity is the key that makes a tracked location unique: name plus exact coordinates.
type Identity struct {
	Name string
	Lat  float64
	Lon  float64
}

// Candidate describes a location the user asked to track.
type Candidate struct {
	Name        string
	Coordinates Coordinates
	Country     string
}

// Identity returns the dedup key for the candidate.
func (c Candidate) Identity() Identity {
	return Identity{Name: c.Name, Lat: c.Coordinates.Lat, Lon: c.Coordinates.Lon}
}

// Validate checks the candidate before any provider call is made.
func (c Candidate) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.Join(ErrInvalidCandidate, errors.New("name is required"))
	}
	if err := airquality.ValidateCoordinates(c.Coordinates.Lat, c.Coordinates.Lon); err != nil {
		return errors.Join(ErrInvalidCandidate, err)
	}
	return nil
}

// TrackedLocation is one monitored location and its latest known reading.
// Identity fields (Name, Coordinates) never change after creation.
type TrackedLocation struct {
	Name        string
	Coordinates Coordinates
	Country     string

	// CurrentIndex is the last known ordinal, defaulted to the minimum when
	// the initial fetch failed.
	CurrentIndex airquality.Index

	// Pollutants are the concentrations from the last successful reading.
	Pollutants map[airquality.Pollutant]float64

	// LastUpdatedAt is when the reading was last replaced.
	LastUpdatedAt time.Time

	// AddedAt is when the entry was created.
	AddedAt time.Time

	// Initialized is false until a reading has been obtained from the provider.
	Initialized bool

	// Stale is set when the most recent fetch failed; LastError explains why.
	Stale     bool
	LastError string
}

// Identity returns the dedup key for the entry.
func (t *TrackedLocation) Identity() Identity {
	return Identity{Name: t.Name, Lat: t.Coordinates.Lat, Lon: t.Coordinates.Lon}
}

func (t *TrackedLocation) clone() TrackedLocation {
	c := *t
	if t.Pollutants != nil {
		c.Pollutants = make(map[airquality.Pollutant]float64, len(t.Pollutants))
		for k, v := range t.Pollutants {
			c.Pollutants[k] = v
		}
	}
	return c
}
