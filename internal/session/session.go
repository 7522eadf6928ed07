// Package session ties one user's tracked locations, preferences, alert
// policy and refresh scheduler together.
package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/livebetter/livebetter/internal/airquality"
	"github.com/livebetter/livebetter/internal/alert"
	"github.com/livebetter/livebetter/internal/preferences"
	"github.com/livebetter/livebetter/internal/tracking"
	"github.com/livebetter/livebetter/internal/worker"
)

// Config holds configuration for a Session.
type Config struct {
	UserID      string
	Contact     string
	Preferences preferences.Preferences

	Source     airquality.Source
	Dispatcher alert.Dispatcher

	Refresh      worker.RefreshConfig
	MaxLocations int

	Clock       worker.Clock
	Instruments *worker.Instruments
	Logger      zerolog.Logger
}

// Status describes a session for operators and clients.
type Status struct {
	UserID   string                 `json:"userId"`
	Tracked  int                    `json:"tracked"`
	State    worker.State           `json:"state"`
	Interval time.Duration          `json:"interval"`
	Metrics  worker.MetricsSnapshot `json:"metrics"`
}

// Session is one user's refresh engine.
type Session struct {
	userID    string
	store     *tracking.Store
	settings  *preferences.Settings
	scheduler *worker.Scheduler
	logger    zerolog.Logger
}

// New creates a session with an empty collection and an idle scheduler.
func New(cfg Config) *Session {
	clock := cfg.Clock
	if clock == nil {
		clock = worker.SystemClock{}
	}

	logger := cfg.Logger.With().Str("user_id", cfg.UserID).Logger()
	settings := preferences.NewSettings(cfg.Preferences, cfg.Contact)

	store := tracking.NewStore(tracking.StoreConfig{
		Source:     cfg.Source,
		Logger:     logger,
		MaxEntries: cfg.MaxLocations,
		Now:        clock.Now,
	})

	policy := alert.NewPolicy(alert.PolicyConfig{
		Dispatcher: cfg.Dispatcher,
		Logger:     logger,
		Now:        clock.Now,
	})

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:      cfg.Refresh,
		Source:      cfg.Source,
		Policy:      policy,
		Preferences: settings,
		Instruments: cfg.Instruments,
		Logger:      logger,
		Clock:       clock,
	})

	scheduler := worker.NewScheduler(worker.SchedulerConfig{
		Store:       store,
		Job:         job,
		Interval:    settings.RefreshInterval(),
		Clock:       clock,
		Instruments: cfg.Instruments,
		Logger:      logger,
	})
	store.OnChange(scheduler.Sync)

	return &Session{
		userID:    cfg.UserID,
		store:     store,
		settings:  settings,
		scheduler: scheduler,
		logger:    logger.With().Str("component", "session").Logger(),
	}
}

// UserID returns the owner of the session.
func (s *Session) UserID() string { return s.userID }

// TrackedLocations returns a copy of the collection in insertion order.
func (s *Session) TrackedLocations() []tracking.TrackedLocation {
	return s.store.Snapshot()
}

// AddTrackedLocation starts tracking c. A duplicate returns the existing
// entry with added false.
func (s *Session) AddTrackedLocation(ctx context.Context, c tracking.Candidate) (tracking.TrackedLocation, bool, error) {
	return s.store.Add(ctx, c)
}

// RemoveTrackedLocation stops tracking the entry at index. An out-of-range
// index is ignored and reports false.
func (s *Session) RemoveTrackedLocation(index int) bool {
	_, ok := s.store.Remove(index)
	return ok
}

// RefreshNow runs a manual refresh pass, or joins the one in flight.
func (s *Session) RefreshNow(ctx context.Context) (*worker.RefreshResult, error) {
	return s.scheduler.RefreshNow(ctx, worker.TriggerManual)
}

// Refresh runs a pass on behalf of trigger, following the same coalescing rule as RefreshNow.
func (s *Session) Refresh(ctx context.Context, trigger worker.Trigger) (*worker.RefreshResult, error) {
	return s.scheduler.RefreshNow(ctx, trigger)
}

// Preferences returns the preferences currently in effect.
func (s *Session) Preferences() preferences.Preferences {
	return s.settings.Preferences()
}

// Contact returns the alert recipient.
func (s *Session) Contact() (string, bool) {
	return s.settings.UserContact()
}

// UpdatePreferences applies p to the running session. A changed refresh
// interval re-arms the timer.
func (s *Session) UpdatePreferences(p preferences.Preferences) error {
	changed, err := s.settings.Replace(p)
	if err != nil {
		return err
	}
	if changed {
		s.scheduler.SetInterval(s.settings.RefreshInterval())
		s.logger.Info().Dur("interval", s.settings.RefreshInterval()).Msg("refresh interval changed")
	}
	return nil
}

// SetContact changes the alert recipient.
func (s *Session) SetContact(contact string) {
	s.settings.SetContact(contact)
}

// Status returns the session's current status.
func (s *Session) Status() Status {
	m := s.scheduler.GetMetrics()
	return Status{
		UserID:   s.userID,
		Tracked:  s.store.Len(),
		State:    m.State,
		Interval: m.Interval,
		Metrics:  m,
	}
}

// Close stops the scheduler. A pass in flight is cancelled and awaited.
func (s *Session) Close() {
	s.scheduler.Stop()
}
