package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/livebetter/livebetter/internal/airquality"
	"github.com/livebetter/livebetter/internal/preferences"
	"github.com/livebetter/livebetter/internal/tracking"
)

// PolicyConfig holds configuration for a Policy.
type PolicyConfig struct {
	Dispatcher Dispatcher
	Logger     zerolog.Logger

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Policy applies the alert rule to freshly fetched readings.
//
// The policy keeps no history: every qualifying evaluation dispatches, so a
// location that stays above the threshold alerts on every refresh pass.
type Policy struct {
	dispatcher Dispatcher
	logger     zerolog.Logger
	now        func() time.Time
}

// NewPolicy creates a policy.
func NewPolicy(cfg PolicyConfig) *Policy {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Policy{
		dispatcher: cfg.Dispatcher,
		logger:     cfg.Logger.With().Str("component", "alert_policy").Logger(),
		now:        now,
	}
}

// ShouldAlert reports whether newIndex warrants an alert under prefs, and to whom.
// The threshold is inclusive.
func ShouldAlert(newIndex airquality.Index, prefs preferences.Accessor) (recipient string, ok bool) {
	if !prefs.AlertsEnabled() {
		return "", false
	}
	recipient, ok = prefs.UserContact()
	if !ok {
		return "", false
	}
	if int(newIndex) < prefs.AlertThreshold() {
		return "", false
	}
	return recipient, true
}

// Evaluate dispatches an alert for loc when the rule holds and reports whether
// one was delivered. Dispatch failures, panics included, are logged and
// not retried.
func (p *Policy) Evaluate(ctx context.Context, loc tracking.TrackedLocation, newIndex airquality.Index, prefs preferences.Accessor) bool {
	recipient, ok := ShouldAlert(newIndex, prefs)
	if !ok {
		return false
	}
	if p.dispatcher == nil {
		p.logger.Warn().Str("location", loc.Name).Msg("alert qualified but no dispatcher is configured")
		return false
	}

	a := Alert{
		ID:           uuid.New(),
		Recipient:    recipient,
		LocationName: loc.Name,
		Country:      loc.Country,
		Coordinates:  loc.Coordinates,
		Index:        newIndex,
		Threshold:    prefs.AlertThreshold(),
		Timestamp:    p.now(),
	}

	if err := p.dispatch(ctx, a); err != nil {
		p.logger.Error().
			Err(err).
			Str("alert_id", a.ID.String()).
			Str("location", loc.Name).
			Int("index", int(newIndex)).
			Msg("alert dispatch failed")
		return false
	}

	p.logger.Info().
		Str("alert_id", a.ID.String()).
		Str("location", loc.Name).
		Int("index", int(newIndex)).
		Int("threshold", a.Threshold).
		Msg("alert dispatched")
	return true
}

// dispatch hands a to the dispatcher. A panicking dispatcher counts as a
// failed dispatch so the caller still stores the reading.
func (p *Policy) dispatch(ctx context.Context, a Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatcher panicked: %v", r)
		}
	}()
	return p.dispatcher.Dispatch(ctx, a)
}
