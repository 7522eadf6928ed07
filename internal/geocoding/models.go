// Package geocoding resolves place names to coordinates.
package geocoding

import (
	"context"
	"errors"
)

// ErrPlaceNotFound is returned when a lookup has no matches.
var ErrPlaceNotFound = errors.New("place not found")

// Place is a resolved geographic location.
type Place struct {
	Name    string
	State   string
	Country string
	Lat     float64
	Lon     float64
}

// Geocoder resolves names to places and coordinates to names.
type Geocoder interface {
	// Search returns up to limit places matching the query, best match first.
	Search(ctx context.Context, query string, limit int) ([]Place, error)

	// Reverse returns the place closest to the coordinate.
	Reverse(ctx context.Context, lat, lon float64) (*Place, error)
}

// Resolve returns the best match for a query.
func Resolve(ctx context.Context, g Geocoder, query string) (*Place, error) {
	places, err := g.Search(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, ErrPlaceNotFound
	}
	return &places[0], nil
}
