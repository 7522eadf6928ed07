package weather

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Provider fetches weather for a coordinate.
type Provider interface {
	// FetchCurrent fetches the conditions right now.
	FetchCurrent(ctx context.Context, lat, lon float64) (*Conditions, error)

	// FetchHourly fetches the hourly outlook, nearest hour first.
	FetchHourly(ctx context.Context, lat, lon float64) ([]Conditions, error)

	// Name identifies the provider.
	Name() string
}

// ServiceConfig holds configuration for the weather service.
type ServiceConfig struct {
	Provider Provider
	Logger   zerolog.Logger

	// CacheTTL is how long a report is served without refetching (default: 15 minutes).
	CacheTTL time.Duration

	// GridSize is the cache cell size in degrees (default: 0.1). Coordinates
	// in one cell share a report.
	GridSize float64

	// StaleTTL is how long an expired report may stand in for a failed fetch
	// (default: 1 hour).
	StaleTTL time.Duration

	// Now overrides the clock.
	Now func() time.Time
}

// Service serves weather reports through a per-cell cache.
type Service struct {
	provider Provider
	logger   zerolog.Logger
	cacheTTL time.Duration
	gridSize float64
	staleTTL time.Duration
	now      func() time.Time

	mu      sync.Mutex
	reports map[string]*Report
}

// NewService creates a new weather service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 15 * time.Minute
	}

	gridSize := cfg.GridSize
	if gridSize == 0 {
		gridSize = 0.1
	}

	staleTTL := cfg.StaleTTL
	if staleTTL == 0 {
		staleTTL = time.Hour
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		provider: cfg.Provider,
		logger:   cfg.Logger.With().Str("component", "weather").Logger(),
		cacheTTL: cacheTTL,
		gridSize: gridSize,
		staleTTL: staleTTL,
		now:      now,
		reports:  make(map[string]*Report),
	}
}

// Report returns current conditions and the hourly outlook for a coordinate.
// A fresh cached report is served as is. When the provider fails, a report
// younger than StaleTTL is served instead of an error.
func (s *Service) Report(ctx context.Context, lat, lon float64) (*Report, error) {
	if err := validateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	key := s.cellKey(lat, lon)
	now := s.now()

	s.mu.Lock()
	cached := s.reports[key]
	s.mu.Unlock()
	if cached != nil && now.Sub(cached.FetchedAt) < s.cacheTTL {
		return cached, nil
	}

	report, err := s.fetch(ctx, lat, lon)
	if err != nil {
		if cached != nil && now.Sub(cached.FetchedAt) < s.staleTTL {
			s.logger.Warn().Err(err).
				Time("fetched_at", cached.FetchedAt).
				Msg("serving stale weather report")
			return cached, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	report.FetchedAt = now

	s.mu.Lock()
	s.reports[key] = report
	s.evictLocked(now)
	s.mu.Unlock()

	return report, nil
}

func (s *Service) fetch(ctx context.Context, lat, lon float64) (*Report, error) {
	current, err := s.provider.FetchCurrent(ctx, lat, lon)
	if err != nil {
		return nil, fmt.Errorf("current weather: %w", err)
	}

	hourly, err := s.provider.FetchHourly(ctx, lat, lon)
	if err != nil {
		return nil, fmt.Errorf("hourly forecast: %w", err)
	}
	if len(hourly) > MaxForecastHours {
		hourly = hourly[:MaxForecastHours]
	}

	s.logger.Debug().
		Float64("lat", lat).
		Float64("lon", lon).
		Int("hours", len(hourly)).
		Msg("fetched weather report")

	return &Report{
		Lat:      lat,
		Lon:      lon,
		Current:  *current,
		Hourly:   hourly,
		Provider: s.provider.Name(),
	}, nil
}

// evictLocked drops reports too old to serve even as stale. s.mu must be held.
func (s *Service) evictLocked(now time.Time) {
	for key, r := range s.reports {
		if now.Sub(r.FetchedAt) >= s.staleTTL {
			delete(s.reports, key)
		}
	}
}

func (s *Service) cellKey(lat, lon float64) string {
	return fmt.Sprintf("%.2f:%.2f",
		math.Floor(lat/s.gridSize)*s.gridSize,
		math.Floor(lon/s.gridSize)*s.gridSize)
}
