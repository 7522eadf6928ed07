package airquality

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Source returns the current reading for a coordinate. It is the contract
// the tracked-location refresh engine depends on.
type Source interface {
	FetchCurrentReading(ctx context.Context, lat, lon float64) (*Reading, error)
}

// Provider defines the interface for air quality data providers.
type Provider interface {
	Source

	// FetchForecast fetches predicted readings for the coming days.
	FetchForecast(ctx context.Context, lat, lon float64) (*Forecast, error)

	// FetchHistory fetches past readings between start and end.
	FetchHistory(ctx context.Context, lat, lon float64, start, end time.Time) (*History, error)

	// Name identifies the provider.
	Name() string
}

// ServiceConfig holds configuration for the air quality service.
type ServiceConfig struct {
	// Provider is the air quality data provider.
	Provider Provider

	// Cache stores recent readings for one-off lookups (default: in-memory).
	Cache Cache

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long a reading is served from cache (default: 10 minutes).
	CacheTTL time.Duration
}

// Service provides air quality readings with a read-through cache.
//
// FetchCurrentReading always goes to the provider so periodic refreshes
// observe provider failures. CurrentReading is cache-first and is meant for
// ad-hoc lookups.
type Service struct {
	provider Provider
	cache    Cache
	logger   zerolog.Logger
	cacheTTL time.Duration

	mu            sync.RWMutex
	lastSuccessAt time.Time
	lastErrorAt   time.Time
	lastError     string
}

// NewService creates a new air quality service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 10 * time.Minute
	}

	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}

	return &Service{
		provider: cfg.Provider,
		cache:    cache,
		logger:   cfg.Logger.With().Str("component", "airquality").Logger(),
		cacheTTL: cacheTTL,
	}
}

// FetchCurrentReading fetches a fresh reading from the provider and primes the cache.
func (s *Service) FetchCurrentReading(ctx context.Context, lat, lon float64) (*Reading, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	reading, err := s.provider.FetchCurrentReading(ctx, lat, lon)
	if err != nil {
		s.recordFailure(err)
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	s.recordSuccess()

	if err := s.cache.Set(ctx, CacheKey(lat, lon), reading, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache air quality reading")
	}

	return reading, nil
}

// CurrentReading returns a cached reading when one is fresh, otherwise fetches.
// With cachedOnly set, a cache miss returns ErrNoReading instead of calling the provider.
func (s *Service) CurrentReading(ctx context.Context, lat, lon float64, cachedOnly bool) (*Reading, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	cached, err := s.cache.Get(ctx, CacheKey(lat, lon))
	switch {
	case err == nil:
		return cached, nil
	case errors.Is(err, ErrCacheMiss):
	default:
		s.logger.Warn().Err(err).Msg("air quality cache lookup failed")
	}

	if cachedOnly {
		return nil, ErrNoReading
	}

	return s.FetchCurrentReading(ctx, lat, lon)
}

// Forecast fetches the pollution forecast for a coordinate.
func (s *Service) Forecast(ctx context.Context, lat, lon float64) (*Forecast, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	forecast, err := s.provider.FetchForecast(ctx, lat, lon)
	if err != nil {
		s.recordFailure(err)
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	s.recordSuccess()
	return forecast, nil
}

// History fetches past readings for a coordinate. History is not cached:
// windows differ per request and the provider serves them cheaply.
func (s *Service) History(ctx context.Context, lat, lon float64, start, end time.Time) (*History, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}
	if err := ValidateRange(start, end); err != nil {
		return nil, err
	}

	history, err := s.provider.FetchHistory(ctx, lat, lon, start, end)
	if err != nil {
		s.recordFailure(err)
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	s.recordSuccess()
	return history, nil
}

// ProviderStatus describes the latest interaction with the upstream provider.
type ProviderStatus struct {
	Provider      string
	LastSuccessAt time.Time
	LastErrorAt   time.Time
	LastError     string
}

// Status returns the latest provider interaction outcome.
func (s *Service) Status() ProviderStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ProviderStatus{
		Provider:      s.provider.Name(),
		LastSuccessAt: s.lastSuccessAt,
		LastErrorAt:   s.lastErrorAt,
		LastError:     s.lastError,
	}
}

func (s *Service) recordSuccess() {
	s.mu.Lock()
	s.lastSuccessAt = time.Now()
	s.mu.Unlock()
}

func (s *Service) recordFailure(err error) {
	s.logger.Warn().Err(err).Str("provider", s.provider.Name()).Msg("air quality provider request failed")

	s.mu.Lock()
	s.lastErrorAt = time.Now()
	s.lastError = err.Error()
	s.mu.Unlock()
}

// Ensure Service satisfies Source.
var _ Source = (*Service)(nil)
