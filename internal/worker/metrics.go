package worker

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/livebetter/livebetter/internal/worker"

// Instruments holds the OpenTelemetry instruments recorded by refresh passes.
// A nil *Instruments records nothing.
type Instruments struct {
	passes        metric.Int64Counter
	entryFailures metric.Int64Counter
	duration      metric.Float64Histogram
	alertsSent    metric.Int64Counter
	coalesced     metric.Int64Counter
	skippedTicks  metric.Int64Counter
}

// NewInstruments creates the worker instruments on the global meter provider.
func NewInstruments() (*Instruments, error) {
	meter := otel.Meter(meterName)

	passes, err := meter.Int64Counter(
		"livebetter.refresh.passes",
		metric.WithDescription("Completed refresh passes"),
		metric.WithUnit("{pass}"),
	)
	if err != nil {
		return nil, err
	}

	entryFailures, err := meter.Int64Counter(
		"livebetter.refresh.entry_failures",
		metric.WithDescription("Tracked locations whose reading could not be refreshed"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"livebetter.refresh.duration",
		metric.WithDescription("Duration of refresh passes in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	alertsSent, err := meter.Int64Counter(
		"livebetter.alerts.dispatched",
		metric.WithDescription("Alerts delivered to a dispatcher"),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		return nil, err
	}

	coalesced, err := meter.Int64Counter(
		"livebetter.refresh.coalesced",
		metric.WithDescription("Manual refresh requests that joined a pass already in flight"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	skippedTicks, err := meter.Int64Counter(
		"livebetter.refresh.skipped_ticks",
		metric.WithDescription("Timer ticks dropped because a pass was in flight"),
		metric.WithUnit("{tick}"),
	)
	if err != nil {
		return nil, err
	}

	return &Instruments{
		passes:        passes,
		entryFailures: entryFailures,
		duration:      duration,
		alertsSent:    alertsSent,
		coalesced:     coalesced,
		skippedTicks:  skippedTicks,
	}, nil
}

func (i *Instruments) recordPass(ctx context.Context, r *RefreshResult) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("trigger", string(r.Trigger)))
	i.passes.Add(ctx, 1, attrs)
	i.duration.Record(ctx, r.Duration.Seconds(), attrs)
	if r.Failed > 0 {
		i.entryFailures.Add(ctx, int64(r.Failed))
	}
	if r.AlertsDispatched > 0 {
		i.alertsSent.Add(ctx, int64(r.AlertsDispatched))
	}
}

func (i *Instruments) recordCoalesced(ctx context.Context) {
	if i == nil {
		return
	}
	i.coalesced.Add(ctx, 1)
}

func (i *Instruments) recordSkippedTick(ctx context.Context) {
	if i == nil {
		return
	}
	i.skippedTicks.Add(ctx, 1)
}
