// Package featureflags provides feature flag management for runtime configuration.
package featureflags

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidFlagValue is returned when a value does not fit its flag.
var ErrInvalidFlagValue = errors.New("invalid feature flag value")

// Well-known feature flag keys.
const (
	// FlagDisableAlertsSending suppresses every alert dispatch. The policy
	// still evaluates and reports the dispatch as failed.
	FlagDisableAlertsSending = "disable_alerts_sending"

	// FlagCachedOnlyAirQuality serves air quality API reads from cache only.
	FlagCachedOnlyAirQuality = "cached_only_air_quality"

	// FlagDisableWeeklyReports stops the weekly summary job from sending.
	FlagDisableWeeklyReports = "disable_weekly_reports"

	// FlagMaxTrackedLocations caps how many locations a user may track.
	// Sessions read it once, when they are created.
	FlagMaxTrackedLocations = "max_tracked_locations"
)

// kind is the value type a flag accepts.
type kind int

const (
	kindSwitch kind = iota // bool
	kindLimit              // positive whole number
)

var flagKinds = map[string]kind{
	FlagDisableAlertsSending: kindSwitch,
	FlagCachedOnlyAirQuality: kindSwitch,
	FlagDisableWeeklyReports: kindSwitch,
	FlagMaxTrackedLocations:  kindLimit,
}

// Flag represents a feature flag with its current value.
type Flag struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FlagList represents a list of feature flags.
type FlagList struct {
	Items []Flag `json:"items"`
}

// FlagUpdate represents a single flag update request.
type FlagUpdate struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// FlagUpdateRequest represents a request to update feature flags.
type FlagUpdateRequest struct {
	Updates []FlagUpdate `json:"updates"`
	Reason  string       `json:"reason"`
}

// BoolValue returns the flag value as a boolean, or defaultValue when the
// flag is nil or holds something else. Numbers are true when non-zero.
func (f *Flag) BoolValue(defaultValue bool) bool {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case bool:
		return v
	case float64:
		// JSON unmarshals numbers as float64
		return v != 0
	default:
		return defaultValue
	}
}

// IntValue returns the flag value as an integer, or defaultValue when the
// flag is nil or not a number.
func (f *Flag) IntValue(defaultValue int) int {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultValue
	}
}

// Validate checks that the flag is known and that its value has the right
// shape: a boolean for switches, a positive whole number for limits.
func (f *Flag) Validate() error {
	k, ok := flagKinds[f.Key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFlag, f.Key)
	}

	switch k {
	case kindSwitch:
		if _, ok := f.Value.(bool); !ok {
			return fmt.Errorf("%w: %s must be true or false", ErrInvalidFlagValue, f.Key)
		}
	case kindLimit:
		n, ok := f.Value.(float64)
		if i, isInt := f.Value.(int); isInt {
			n, ok = float64(i), true
		}
		if !ok || n < 1 || n != math.Trunc(n) {
			return fmt.Errorf("%w: %s must be a positive whole number", ErrInvalidFlagValue, f.Key)
		}
	}
	return nil
}

// DefaultFlags returns the default feature flags for the application.
func DefaultFlags() map[string]*Flag {
	now := time.Now()
	return map[string]*Flag{
		FlagDisableAlertsSending: {
			Key:       FlagDisableAlertsSending,
			Value:     false,
			UpdatedAt: now,
		},
		FlagCachedOnlyAirQuality: {
			Key:       FlagCachedOnlyAirQuality,
			Value:     false,
			UpdatedAt: now,
		},
		FlagDisableWeeklyReports: {
			Key:       FlagDisableWeeklyReports,
			Value:     false,
			UpdatedAt: now,
		},
		FlagMaxTrackedLocations: {
			Key:       FlagMaxTrackedLocations,
			Value:     float64(50),
			UpdatedAt: now,
		},
	}
}
