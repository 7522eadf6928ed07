package featureflags

import (
	"context"
	"errors"
)

// Repository errors.
var (
	ErrFlagNotFound = errors.New("feature flag not found")
	ErrUnknownFlag  = errors.New("unknown feature flag")
)

// Repository stores flag values. The Service reads the whole set at once and
// falls back to DefaultFlags for keys that were never stored.
type Repository interface {
	// GetAllFlags returns every stored flag keyed by name.
	GetAllFlags(ctx context.Context) (map[string]*Flag, error)

	// SetFlags creates or updates flags. Implementations backed by a
	// database write them in one transaction.
	SetFlags(ctx context.Context, flags []*Flag) error
}

