package preferences

import (
	"strings"
	"sync"
	"time"
)

// Accessor is the read-only view of preferences consumed by the refresh
// scheduler and the alert policy.
type Accessor interface {
	RefreshInterval() time.Duration
	AlertThreshold() int
	AlertsEnabled() bool

	// UserContact returns the alert recipient, or false when none is set.
	UserContact() (string, bool)
}

// Settings is a session's live copy of a user's preferences and contact address.
// It is safe for concurrent use.
type Settings struct {
	mu      sync.RWMutex
	prefs   Preferences
	contact string
}

// NewSettings creates settings from stored preferences and the user's contact.
func NewSettings(p Preferences, contact string) *Settings {
	n, err := p.Normalize()
	if err != nil {
		n.AlertThreshold = DefaultAlertThreshold
	}
	return &Settings{prefs: n, contact: strings.TrimSpace(contact)}
}

// RefreshInterval returns the refresh cadence, never below MinRefreshInterval.
func (s *Settings) RefreshInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.RefreshInterval
}

// AlertThreshold returns the inclusive alert threshold.
func (s *Settings) AlertThreshold() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.AlertThreshold
}

// AlertsEnabled reports whether alerts may be sent.
func (s *Settings) AlertsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.AlertsEnabled
}

// WeeklyReports reports whether the weekly summary is wanted.
func (s *Settings) WeeklyReports() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.WeeklyReports
}

// UserContact returns the alert recipient.
func (s *Settings) UserContact() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contact, s.contact != ""
}

// Preferences returns a copy of the current preferences.
func (s *Settings) Preferences() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// Replace swaps in new preferences and reports whether the refresh interval changed.
func (s *Settings) Replace(p Preferences) (intervalChanged bool, err error) {
	p, err = p.Normalize()
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	intervalChanged = s.prefs.RefreshInterval != p.RefreshInterval
	s.prefs = p
	return intervalChanged, nil
}

// SetContact changes the alert recipient. An empty value removes it.
func (s *Settings) SetContact(contact string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contact = strings.TrimSpace(contact)
}

var _ Accessor = (*Settings)(nil)
