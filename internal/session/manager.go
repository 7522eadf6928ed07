package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/livebetter/livebetter/internal/airquality"
	"github.com/livebetter/livebetter/internal/alert"
	"github.com/livebetter/livebetter/internal/preferences"
	"github.com/livebetter/livebetter/internal/worker"
)

// Manager errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrClosed          = errors.New("session manager closed")
)

// PreferencesLoader loads stored preferences for a new session.
type PreferencesLoader interface {
	Get(ctx context.Context, userID string) (preferences.Preferences, error)
}

// LimitSource supplies the per-user tracked location cap at session creation.
type LimitSource interface {
	MaxTrackedLocations(ctx context.Context, fallback int) int
}

// ManagerConfig holds configuration for a Manager.
type ManagerConfig struct {
	Source       airquality.Source
	Dispatcher   alert.Dispatcher
	Preferences  PreferencesLoader
	Limits       LimitSource
	Refresh      worker.RefreshConfig
	MaxLocations int
	Clock        worker.Clock
	Instruments  *worker.Instruments
	Logger       zerolog.Logger
}

// Manager owns the active session of every user.
type Manager struct {
	cfg    ManagerConfig
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates an empty manager.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "sessions").Logger(),
		sessions: make(map[string]*Session),
	}
}

// Get returns the user's session, creating it from stored preferences on
// first use. contact replaces the session's alert recipient when non-empty.
func (m *Manager) Get(ctx context.Context, userID, contact string) (*Session, error) {
	if s, ok := m.Lookup(userID); ok {
		if contact != "" {
			s.SetContact(contact)
		}
		return s, nil
	}

	prefs := preferences.Default(userID)
	if m.cfg.Preferences != nil {
		p, err := m.cfg.Preferences.Get(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("loading preferences: %w", err)
		}
		prefs = p
	}

	maxLocations := m.cfg.MaxLocations
	if m.cfg.Limits != nil {
		maxLocations = m.cfg.Limits.MaxTrackedLocations(ctx, maxLocations)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if s, ok := m.sessions[userID]; ok {
		if contact != "" {
			s.SetContact(contact)
		}
		return s, nil
	}

	s := New(Config{
		UserID:       userID,
		Contact:      contact,
		Preferences:  prefs,
		Source:       m.cfg.Source,
		Dispatcher:   m.cfg.Dispatcher,
		Refresh:      m.cfg.Refresh,
		MaxLocations: maxLocations,
		Clock:        m.cfg.Clock,
		Instruments:  m.cfg.Instruments,
		Logger:       m.cfg.Logger,
	})
	m.sessions[userID] = s

	m.logger.Info().Str("user_id", userID).Int("active", len(m.sessions)).Msg("session started")
	return s, nil
}

// Lookup returns the user's session if it is active.
func (m *Manager) Lookup(userID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Remove closes and forgets the user's session.
func (m *Manager) Remove(userID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if ok {
		s.Close()
	}
	return ok
}

// Len returns the number of active sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Statuses returns the status of every active session ordered by user.
func (m *Manager) Statuses() []Status {
	out := make([]Status, 0)
	for _, s := range m.list() {
		out = append(out, s.Status())
	}
	return out
}

// RefreshUser refreshes the user's session, or every session when userID is
// empty, and returns how many sessions were refreshed.
func (m *Manager) RefreshUser(ctx context.Context, userID string, trigger worker.Trigger) (int, error) {
	var targets []*Session
	if userID == "" {
		targets = m.list()
	} else {
		s, ok := m.Lookup(userID)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrSessionNotFound, userID)
		}
		targets = []*Session{s}
	}

	var errs []error
	for _, s := range targets {
		if _, err := s.Refresh(ctx, trigger); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.UserID(), err))
		}
	}
	return len(targets) - len(errs), errors.Join(errs...)
}

// WeeklyReportSubscribers lists sessions whose users want the weekly report
// and have somewhere to receive it.
func (m *Manager) WeeklyReportSubscribers() []worker.Subscriber {
	var out []worker.Subscriber
	for _, s := range m.list() {
		if !s.settings.WeeklyReports() {
			continue
		}
		contact, ok := s.Contact()
		if !ok {
			continue
		}
		out = append(out, worker.Subscriber{
			UserID:    s.UserID(),
			Contact:   contact,
			Locations: s.TrackedLocations(),
		})
	}
	return out
}

// Close stops every session. Further Get calls fail.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()

	m.logger.Info().Int("closed", len(sessions)).Msg("sessions stopped")
}

func (m *Manager) list() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].userID < out[j].userID })
	return out
}

var (
	_ worker.Refresher        = (*Manager)(nil)
	_ worker.SubscriberSource = (*Manager)(nil)
)
