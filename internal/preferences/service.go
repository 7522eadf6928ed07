package preferences

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the preferences service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger
}

// Service reads and updates stored preferences.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

// NewService creates a new preferences service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger.With().Str("component", "preferences").Logger(),
	}
}

// Get returns the user's preferences, falling back to defaults when none are stored.
func (s *Service) Get(ctx context.Context, userID string) (Preferences, error) {
	p, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Default(userID), nil
		}
		return Preferences{}, fmt.Errorf("loading preferences: %w", err)
	}
	return *p, nil
}

// Update applies a partial change, validates it and stores the result.
func (s *Service) Update(ctx context.Context, userID string, u Update) (Preferences, error) {
	current, err := s.Get(ctx, userID)
	if err != nil {
		return Preferences{}, err
	}

	next, err := u.Apply(current).Normalize()
	if err != nil {
		return Preferences{}, err
	}
	next.UserID = userID
	next.UpdatedAt = time.Now().UTC()

	if err := s.repo.Save(ctx, &next); err != nil {
		return Preferences{}, fmt.Errorf("saving preferences: %w", err)
	}

	s.logger.Info().
		Str("user_id", userID).
		Dur("refresh_interval", next.RefreshInterval).
		Int("alert_threshold", next.AlertThreshold).
		Bool("alerts_enabled", next.AlertsEnabled).
		Msg("preferences updated")

	return next, nil
}
