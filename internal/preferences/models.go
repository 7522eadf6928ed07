// Package preferences manages per-user refresh and alert settings.
//
// The refresh engine never reads preferences from a global. Each session is
// given a Settings value at construction and reads it through Accessor.
package preferences

import (
	"errors"
	"fmt"
	"time"
)

const (
	// MinRefreshInterval is the shortest allowed refresh cadence.
	MinRefreshInterval = 60 * time.Second

	// DefaultRefreshInterval is used for users who never changed the setting.
	DefaultRefreshInterval = 5 * time.Minute

	// DefaultAlertThreshold is the default minimum index that triggers an alert.
	DefaultAlertThreshold = 3

	MinAlertThreshold = 1
	MaxAlertThreshold = 5
)

// Errors.
var (
	ErrNotFound         = errors.New("preferences not found")
	ErrInvalidThreshold = fmt.Errorf("alert threshold must be between %d and %d", MinAlertThreshold, MaxAlertThreshold)
)

// RefreshPresets are the cadences offered in the settings UI.
var RefreshPresets = []time.Duration{
	time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	time.Hour,
}

// Preferences holds a user's alerting and refresh settings.
type Preferences struct {
	UserID string

	// RefreshInterval is the cadence of periodic refresh passes.
	RefreshInterval time.Duration

	// AlertThreshold is the minimum index (inclusive) that qualifies for an alert.
	AlertThreshold int

	// AlertsEnabled is the master switch for alert emails.
	AlertsEnabled bool

	// WeeklyReports opts the user into the weekly summary email.
	WeeklyReports bool

	UpdatedAt time.Time
}

// Default returns the settings applied to a user without stored preferences.
func Default(userID string) Preferences {
	return Preferences{
		UserID:          userID,
		RefreshInterval: DefaultRefreshInterval,
		AlertThreshold:  DefaultAlertThreshold,
		AlertsEnabled:   true,
	}
}

// Normalize clamps the refresh interval to the floor and validates the threshold.
func (p Preferences) Normalize() (Preferences, error) {
	if p.RefreshInterval < MinRefreshInterval {
		p.RefreshInterval = MinRefreshInterval
	}
	if p.AlertThreshold < MinAlertThreshold || p.AlertThreshold > MaxAlertThreshold {
		return p, ErrInvalidThreshold
	}
	return p, nil
}

// Update is a partial change; nil fields are left as they are.
type Update struct {
	RefreshInterval *time.Duration
	AlertThreshold  *int
	AlertsEnabled   *bool
	WeeklyReports   *bool
}

// Apply returns p with the non-nil fields of u applied.
func (u Update) Apply(p Preferences) Preferences {
	if u.RefreshInterval != nil {
		p.RefreshInterval = *u.RefreshInterval
	}
	if u.AlertThreshold != nil {
		p.AlertThreshold = *u.AlertThreshold
	}
	if u.AlertsEnabled != nil {
		p.AlertsEnabled = *u.AlertsEnabled
	}
	if u.WeeklyReports != nil {
		p.WeeklyReports = *u.WeeklyReports
	}
	return p
}
