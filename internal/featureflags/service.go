package featureflags

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the feature flag service.
type ServiceConfig struct {
	Repository   Repository
	Logger       zerolog.Logger
	CacheTTL     time.Duration // How long a loaded snapshot is served
	DefaultFlags map[string]*Flag
}

// Service evaluates feature flags from a snapshot of the repository.
//
// The snapshot is loaded in one GetAllFlags call and served until CacheTTL
// passes or InvalidateCache is called. Writes through the service refresh it
// immediately; writes made directly to the repository show up on the next
// load. Flags missing from the repository fall back to DefaultFlags.
type Service struct {
	repo         Repository
	logger       zerolog.Logger
	cacheTTL     time.Duration
	defaultFlags map[string]*Flag

	mu       sync.RWMutex
	snapshot map[string]*Flag
	expires  time.Time
}

// NewService creates a new feature flag service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 1 * time.Minute
	}

	defaultFlags := cfg.DefaultFlags
	if defaultFlags == nil {
		defaultFlags = DefaultFlags()
	}

	return &Service{
		repo:         cfg.Repository,
		logger:       cfg.Logger.With().Str("component", "featureflags").Logger(),
		cacheTTL:     cacheTTL,
		defaultFlags: defaultFlags,
	}
}

// GetFlag returns the flag with the given key, its default when the
// repository has no value, or nil for an unknown key.
func (s *Service) GetFlag(ctx context.Context, key string) *Flag {
	if flag, ok := s.flags(ctx)[key]; ok {
		return flag
	}
	if flag, ok := s.defaultFlags[key]; ok {
		return flag
	}
	return nil
}

// GetAllFlags returns every known flag, stored values merged over defaults.
// The returned map is the caller's to modify.
func (s *Service) GetAllFlags(ctx context.Context) map[string]*Flag {
	stored := s.flags(ctx)

	result := make(map[string]*Flag, len(s.defaultFlags)+len(stored))
	for k, v := range s.defaultFlags {
		result[k] = v
	}
	for k, v := range stored {
		result[k] = v
	}
	return result
}

// SetFlag updates a single feature flag.
func (s *Service) SetFlag(ctx context.Context, flag *Flag) error {
	return s.SetFlags(ctx, []*Flag{flag})
}

// SetFlags updates several flags. No flag is written when any key is unknown
// or any value has the wrong shape.
func (s *Service) SetFlags(ctx context.Context, flags []*Flag) error {
	now := time.Now()
	for _, flag := range flags {
		if err := flag.Validate(); err != nil {
			return err
		}
		flag.UpdatedAt = now
	}

	if err := s.repo.SetFlags(ctx, flags); err != nil {
		return fmt.Errorf("storing feature flags: %w", err)
	}

	for _, flag := range flags {
		s.logger.Info().Str("flag", flag.Key).Interface("value", flag.Value).Msg("feature flag updated")
	}

	// Reload so readers see the write at once. On failure the next read
	// retries the load.
	if _, err := s.load(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to reload feature flags after update")
		s.InvalidateCache()
	}
	return nil
}

// InvalidateCache drops the snapshot so the next read loads from the repository.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	s.expires = time.Time{}
}

// IsEnabled returns true if the flag with the given key is truthy.
func (s *Service) IsEnabled(ctx context.Context, key string) bool {
	return s.GetFlag(ctx, key).BoolValue(false)
}

// flags returns the current snapshot, loading it when missing or expired.
// A failed load serves nothing so callers fall back to defaults.
func (s *Service) flags(ctx context.Context) map[string]*Flag {
	s.mu.RLock()
	snapshot, fresh := s.snapshot, time.Now().Before(s.expires)
	s.mu.RUnlock()
	if snapshot != nil && fresh {
		return snapshot
	}

	snapshot, err := s.load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load feature flags, using defaults")
		return nil
	}
	return snapshot
}

func (s *Service) load(ctx context.Context) (map[string]*Flag, error) {
	stored, err := s.repo.GetAllFlags(ctx)
	if err != nil {
		return nil, err
	}

	// Copy so the snapshot never aliases repository state.
	snapshot := make(map[string]*Flag, len(stored))
	for k, v := range stored {
		flag := *v
		snapshot[k] = &flag
	}

	s.mu.Lock()
	s.snapshot = snapshot
	s.expires = time.Now().Add(s.cacheTTL)
	s.mu.Unlock()

	return snapshot, nil
}

// Convenience methods for well-known flags.

// IsAlertsSendingDisabled returns true if sending alerts is disabled.
func (s *Service) IsAlertsSendingDisabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagDisableAlertsSending)
}

// IsCachedOnlyAirQuality returns true if air quality should only use cached data.
func (s *Service) IsCachedOnlyAirQuality(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagCachedOnlyAirQuality)
}

// IsWeeklyReportsDisabled returns true if the weekly summary must not be sent.
func (s *Service) IsWeeklyReportsDisabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagDisableWeeklyReports)
}

// MaxTrackedLocations returns the per-user tracked location cap, or fallback
// when the flag is unset or not a positive number.
func (s *Service) MaxTrackedLocations(ctx context.Context, fallback int) int {
	n := s.GetFlag(ctx, FlagMaxTrackedLocations).IntValue(fallback)
	if n <= 0 {
		return fallback
	}
	return n
}
