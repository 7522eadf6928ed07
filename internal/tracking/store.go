package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/livebetter/livebetter/internal/airquality"
)

// StoreConfig holds configuration for a Store.
type StoreConfig struct {
	// Source provides the initial reading when a location is added.
	Source airquality.Source

	Logger zerolog.Logger

	// MaxEntries caps the number of tracked locations (default DefaultMaxEntries).
	MaxEntries int

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Store is the ordered, de-duplicated collection of tracked locations.
// It is safe for concurrent use. Readers receive copies and never share
// entries with the store.
type Store struct {
	source     airquality.Source
	logger     zerolog.Logger
	maxEntries int
	now        func() time.Time

	mu        sync.RWMutex
	entries   []*TrackedLocation
	listeners []func()
}

// NewStore creates an empty store.
func NewStore(cfg StoreConfig) *Store {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		source:     cfg.Source,
		logger:     cfg.Logger.With().Str("component", "tracking").Logger(),
		maxEntries: maxEntries,
		now:        now,
	}
}

// OnChange registers fn to be called after the membership of the collection
// changes. Callbacks run outside the store lock.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Add starts tracking the candidate and returns the stored entry.
//
// If an entry with the same identity already exists it is returned untouched
// and added is false. Otherwise the initial reading is fetched; a failed fetch
// still inserts the entry with the minimum index so that adding never fails
// because of the provider.
func (s *Store) Add(ctx context.Context, c Candidate) (entry TrackedLocation, added bool, err error) {
	if err := c.Validate(); err != nil {
		return TrackedLocation{}, false, err
	}

	id := c.Identity()

	s.mu.RLock()
	existing, full := s.find(id), len(s.entries) >= s.maxEntries
	s.mu.RUnlock()
	if existing != nil {
		return existing.clone(), false, nil
	}
	if full {
		return TrackedLocation{}, false, ErrStoreFull
	}

	now := s.now()
	loc := &TrackedLocation{
		Name:          c.Name,
		Coordinates:   c.Coordinates,
		Country:       c.Country,
		CurrentIndex:  airquality.MinIndex,
		LastUpdatedAt: now,
		AddedAt:       now,
	}

	reading, fetchErr := s.source.FetchCurrentReading(ctx, c.Coordinates.Lat, c.Coordinates.Lon)
	if fetchErr != nil {
		s.logger.Warn().
			Err(fetchErr).
			Str("location", c.Name).
			Msg("initial reading failed, tracking with default index")
		loc.LastError = fetchErr.Error()
	} else {
		loc.CurrentIndex = reading.Index
		loc.Pollutants = reading.Clone().Pollutants
		loc.Initialized = true
	}

	s.mu.Lock()
	// Another Add for the same identity may have completed during the fetch.
	if existing := s.find(id); existing != nil {
		s.mu.Unlock()
		return existing.clone(), false, nil
	}
	if len(s.entries) >= s.maxEntries {
		s.mu.Unlock()
		return TrackedLocation{}, false, ErrStoreFull
	}
	s.entries = append(s.entries, loc)
	size := len(s.entries)
	out := loc.clone()
	s.mu.Unlock()

	s.logger.Info().
		Str("location", c.Name).
		Int("index", int(out.CurrentIndex)).
		Int("tracked", size).
		Msg("tracking location")

	s.notify()
	return out, true, nil
}

// Remove stops tracking the entry at index. An out-of-range index is a no-op.
func (s *Store) Remove(index int) (TrackedLocation, bool) {
	s.mu.Lock()
	if index < 0 || index >= len(s.entries) {
		s.mu.Unlock()
		return TrackedLocation{}, false
	}
	removed := s.entries[index]
	s.entries = append(s.entries[:index:index], s.entries[index+1:]...)
	size := len(s.entries)
	s.mu.Unlock()

	s.logger.Info().Str("location", removed.Name).Int("tracked", size).Msg("stopped tracking location")

	s.notify()
	return removed.clone(), true
}

// UpdateReading replaces the reading of the entry with the given identity.
// It reports false, changing nothing, when the entry is no longer tracked.
func (s *Store) UpdateReading(id Identity, reading *airquality.Reading, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc := s.find(id)
	if loc == nil {
		return false
	}

	loc.CurrentIndex = reading.Index
	loc.Pollutants = reading.Clone().Pollutants
	loc.LastUpdatedAt = at
	loc.Initialized = true
	loc.Stale = false
	loc.LastError = ""
	return true
}

// MarkStale records a failed fetch without touching the reading or its timestamp.
func (s *Store) MarkStale(id Identity, cause error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc := s.find(id)
	if loc == nil {
		return false
	}

	loc.Stale = true
	if cause != nil {
		loc.LastError = cause.Error()
	}
	return true
}

// Snapshot returns a copy of all entries in insertion order.
func (s *Store) Snapshot() []TrackedLocation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TrackedLocation, 0, len(s.entries))
	for _, loc := range s.entries {
		out = append(out, loc.clone())
	}
	return out
}

// Get returns a copy of the entry with the given identity.
func (s *Store) Get(id Identity) (TrackedLocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc := s.find(id)
	if loc == nil {
		return TrackedLocation{}, false
	}
	return loc.clone(), true
}

// Len returns the number of tracked locations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// find must be called with the lock held.
func (s *Store) find(id Identity) *TrackedLocation {
	for _, loc := range s.entries {
		if loc.Identity() == id {
			return loc
		}
	}
	return nil
}

func (s *Store) notify() {
	s.mu.RLock()
	listeners := make([]func(), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}
