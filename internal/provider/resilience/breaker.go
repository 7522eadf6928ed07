// Package resilience wraps outbound provider calls (air quality, geocoding,
// alert relays) with a circuit breaker, bounded retries and health tracking.
package resilience

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig controls when a provider's circuit opens.
type BreakerConfig struct {
	// HalfOpenRequests is how many trial requests are let through while half-open (default 1).
	HalfOpenRequests uint32

	// ResetInterval clears the closed-state counters periodically. Zero keeps them until a trip.
	ResetInterval time.Duration

	// OpenTimeout is how long the circuit stays open before probing (default 30s).
	OpenTimeout time.Duration

	// MinRequests is the sample size required before the failure ratio is considered (default 5).
	MinRequests uint32

	// FailureRatio trips the circuit when reached (default 0.5).
	FailureRatio float64
}

// DefaultBreakerConfig returns the breaker settings used for provider clients.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		HalfOpenRequests: 1,
		OpenTimeout:      30 * time.Second,
		MinRequests:      5,
		FailureRatio:     0.5,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.HalfOpenRequests == 0 {
		c.HalfOpenRequests = d.HalfOpenRequests
	}
	if c.OpenTimeout == 0 {
		c.OpenTimeout = d.OpenTimeout
	}
	if c.MinRequests == 0 {
		c.MinRequests = d.MinRequests
	}
	if c.FailureRatio == 0 {
		c.FailureRatio = d.FailureRatio
	}
	return c
}

// tripFunc returns a ReadyToTrip callback for the given thresholds.
func tripFunc(minRequests uint32, ratio float64) func(gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		if counts.Requests < minRequests {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
	}
}

func newBreaker[T any](name string, cfg BreakerConfig, logger zerolog.Logger) *gobreaker.CircuitBreaker[T] {
	cfg = cfg.withDefaults()

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.ResetInterval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: tripFunc(cfg.MinRequests, cfg.FailureRatio),
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("provider circuit breaker state changed")
		},
	})
}
