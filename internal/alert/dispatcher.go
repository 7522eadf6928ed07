package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Dispatcher delivers an alert to the user. It is the one external side
// effect of the refresh engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, a Alert) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, a Alert) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, a Alert) error {
	return f(ctx, a)
}

// MultiDispatcher sends every alert through all of its dispatchers and
// succeeds when at least one of them does.
type MultiDispatcher struct {
	dispatchers []Dispatcher
	logger      zerolog.Logger
}

// NewMultiDispatcher creates a fan-out dispatcher. Nil entries are ignored.
func NewMultiDispatcher(logger zerolog.Logger, dispatchers ...Dispatcher) *MultiDispatcher {
	m := &MultiDispatcher{logger: logger.With().Str("component", "alert_dispatcher").Logger()}
	for _, d := range dispatchers {
		if d != nil {
			m.dispatchers = append(m.dispatchers, d)
		}
	}
	return m
}

// Len returns the number of dispatchers.
func (m *MultiDispatcher) Len() int { return len(m.dispatchers) }

// Dispatch implements Dispatcher.
func (m *MultiDispatcher) Dispatch(ctx context.Context, a Alert) error {
	if len(m.dispatchers) == 0 {
		return ErrNoDispatcher
	}

	var errs []error
	for i, d := range m.dispatchers {
		if err := d.Dispatch(ctx, a); err != nil {
			m.logger.Warn().Err(err).Int("dispatcher", i).Str("alert_id", a.ID.String()).Msg("dispatcher failed")
			errs = append(errs, err)
		}
	}

	if len(errs) == len(m.dispatchers) {
		return errors.Join(errs...)
	}
	return nil
}

// FlagSource reports whether alert sending has been switched off at runtime.
type FlagSource interface {
	IsAlertsSendingDisabled(ctx context.Context) bool
}

// FlagGuard wraps a dispatcher and refuses to send while the kill switch is on.
type FlagGuard struct {
	next  Dispatcher
	flags FlagSource
}

// NewFlagGuard creates a guarded dispatcher.
func NewFlagGuard(next Dispatcher, flags FlagSource) *FlagGuard {
	return &FlagGuard{next: next, flags: flags}
}

// Dispatch implements Dispatcher.
func (g *FlagGuard) Dispatch(ctx context.Context, a Alert) error {
	if g.flags != nil && g.flags.IsAlertsSendingDisabled(ctx) {
		return ErrAlertsDisabled
	}
	return g.next.Dispatch(ctx, a)
}

// Channels are the delivery channels of an alert pipeline. Nil channels are
// skipped.
type Channels struct {
	Email   Dispatcher
	Webhook Dispatcher
	Kafka   Dispatcher
}

// NewPipeline builds the dispatcher the refresh engine uses: the kill switch,
// an audit log line, then fan-out over the configured channels. Only the
// channels decide the result, so an alert that no channel delivered is
// reported as failed. With no channel configured, alerts are only logged.
func NewPipeline(ch Channels, flags FlagSource, logger zerolog.Logger) Dispatcher {
	var delivery Dispatcher
	if m := NewMultiDispatcher(logger, ch.Email, ch.Webhook, ch.Kafka); m.Len() > 0 {
		delivery = &auditedDispatcher{next: m, logger: logger.With().Str("component", "alert_log").Logger()}
	} else {
		delivery = NewLogDispatcher(logger)
	}
	return NewFlagGuard(delivery, flags)
}

// auditedDispatcher logs every alert with its delivery outcome and returns the
// outcome unchanged.
type auditedDispatcher struct {
	next   Dispatcher
	logger zerolog.Logger
}

func (d *auditedDispatcher) Dispatch(ctx context.Context, a Alert) error {
	err := d.next.Dispatch(ctx, a)
	event := d.logger.Info()
	if err != nil {
		event = d.logger.Warn().Err(err)
	}
	event.
		Str("alert_id", a.ID.String()).
		Str("recipient", a.Recipient).
		Str("location", a.LocationName).
		Int("index", int(a.Index)).
		Bool("delivered", err == nil).
		Msg("air quality alert")
	return err
}

// LogDispatcher only logs alerts. It is the fallback when no delivery channel is configured.
type LogDispatcher struct {
	logger zerolog.Logger
}

// NewLogDispatcher creates a logging dispatcher.
func NewLogDispatcher(logger zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Dispatch implements Dispatcher.
func (d *LogDispatcher) Dispatch(_ context.Context, a Alert) error {
	d.logger.Info().
		Str("alert_id", a.ID.String()).
		Str("recipient", a.Recipient).
		Str("location", a.LocationName).
		Str("level", fmt.Sprintf("%d (%s)", a.Index, a.Index.Description())).
		Int("threshold", a.Threshold).
		Msg("air quality alert")
	return nil
}

var (
	_ Dispatcher = (*MultiDispatcher)(nil)
	_ Dispatcher = (*FlagGuard)(nil)
	_ Dispatcher = (*LogDispatcher)(nil)
	_ Dispatcher = (*auditedDispatcher)(nil)
	_ Dispatcher = DispatcherFunc(nil)
)
