package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/livebetter/livebetter/internal/airquality"
	"github.com/livebetter/livebetter/internal/preferences"
	"github.com/livebetter/livebetter/internal/tracking"
)

// Trigger says what started a refresh pass.
type Trigger string

// Refresh triggers.
const (
	TriggerTimer  Trigger = "timer"
	TriggerManual Trigger = "manual"
	TriggerRemote Trigger = "remote"
)

// AlertEvaluator decides on and sends an alert for a fresh reading.
// It reports whether an alert was delivered.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, loc tracking.TrackedLocation, newIndex airquality.Index, prefs preferences.Accessor) bool
}

// RefreshResult summarises one refresh pass.
type RefreshResult struct {
	Trigger   Trigger       `json:"trigger"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`

	Total   int `json:"total"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`

	// Discarded counts readings fetched for entries removed mid-pass.
	Discarded int `json:"discarded"`

	AlertsDispatched int          `json:"alertsDispatched"`
	Errors           []EntryError `json:"errors,omitempty"`

	// Coalesced is set on results handed to callers that joined a pass
	// already in flight instead of starting their own.
	Coalesced bool `json:"coalesced"`
}

// EntryError records why one entry failed to refresh.
type EntryError struct {
	Location string  `json:"location"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Error    string  `json:"error"`
}

func (r *RefreshResult) clone() *RefreshResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Errors = append([]EntryError(nil), r.Errors...)
	return &c
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config      RefreshConfig
	Source      airquality.Source
	Policy      AlertEvaluator
	Preferences preferences.Accessor
	Instruments *Instruments
	Logger      zerolog.Logger
	Clock       Clock
}

// RefreshJob performs refresh passes over a tracked location store.
type RefreshJob struct {
	config      RefreshConfig
	source      airquality.Source
	policy      AlertEvaluator
	prefs       preferences.Accessor
	instruments *Instruments
	logger      zerolog.Logger
	clock       Clock
}

// NewRefreshJob creates a new refresh job.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	config := cfg.Config
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultRefreshConfig().Concurrency
	}

	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	return &RefreshJob{
		config:      config,
		source:      cfg.Source,
		policy:      cfg.Policy,
		prefs:       cfg.Preferences,
		instruments: cfg.Instruments,
		logger:      cfg.Logger.With().Str("component", "refresh").Logger(),
		clock:       clock,
	}
}

type entryStatus int

const (
	entryUpdated entryStatus = iota
	entryFailed
	entryDiscarded
)

type entryOutcome struct {
	status  entryStatus
	alerted bool
	err     *EntryError
}

// Run refreshes every entry present in store when the pass starts.
//
// A failed entry is marked stale and keeps its previous reading; it never
// stops the other entries. Entries removed while the pass runs have their
// fresh readings discarded.
func (j *RefreshJob) Run(ctx context.Context, store *tracking.Store, trigger Trigger) *RefreshResult {
	entries := store.Snapshot()
	result := &RefreshResult{
		Trigger:   trigger,
		StartedAt: j.clock.Now(),
		Total:     len(entries),
	}
	start := time.Now()

	j.logger.Debug().
		Str("trigger", string(trigger)).
		Int("entries", len(entries)).
		Int("concurrency", j.config.Concurrency).
		Msg("starting refresh pass")

	workers := j.config.Concurrency
	if workers > len(entries) {
		workers = len(entries)
	}

	work := make(chan tracking.TrackedLocation, len(entries))
	outcomes := make(chan entryOutcome, len(entries))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for loc := range work {
				outcomes <- j.refreshEntry(ctx, store, loc)
			}
		}()
	}

	for _, loc := range entries {
		work <- loc
	}
	close(work)

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for o := range outcomes {
		switch o.status {
		case entryUpdated:
			result.Updated++
		case entryFailed:
			result.Failed++
		case entryDiscarded:
			result.Discarded++
		}
		if o.alerted {
			result.AlertsDispatched++
		}
		if o.err != nil {
			result.Errors = append(result.Errors, *o.err)
		}
	}

	result.Duration = time.Since(start)
	j.instruments.recordPass(ctx, result)

	event := j.logger.Info()
	if result.Failed > 0 {
		event = j.logger.Warn()
	}
	event.
		Str("trigger", string(trigger)).
		Dur("duration", result.Duration).
		Int("total", result.Total).
		Int("updated", result.Updated).
		Int("failed", result.Failed).
		Int("discarded", result.Discarded).
		Int("alerts", result.AlertsDispatched).
		Msg("refresh pass completed")

	return result
}

func (j *RefreshJob) refreshEntry(ctx context.Context, store *tracking.Store, loc tracking.TrackedLocation) (out entryOutcome) {
	id := loc.Identity()

	fail := func(err error) entryOutcome {
		store.MarkStale(id, err)
		return entryOutcome{
			status: entryFailed,
			err: &EntryError{
				Location: loc.Name,
				Lat:      loc.Coordinates.Lat,
				Lon:      loc.Coordinates.Lon,
				Error:    err.Error(),
			},
		}
	}

	defer func() {
		if r := recover(); r != nil {
			j.logger.Error().
				Str("location", loc.Name).
				Interface("panic", r).
				Msg("refresh of entry panicked")
			out = fail(fmt.Errorf("panic: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	fetchCtx := ctx
	if j.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, j.config.FetchTimeout)
		defer cancel()
	}

	reading, err := j.source.FetchCurrentReading(fetchCtx, loc.Coordinates.Lat, loc.Coordinates.Lon)
	if err != nil {
		j.logger.Warn().Err(err).Str("location", loc.Name).Msg("refresh fetch failed")
		return fail(err)
	}

	// Skip alerting for an entry the user has already stopped tracking.
	current, ok := store.Get(id)
	if !ok {
		return entryOutcome{status: entryDiscarded}
	}

	alerted := false
	if j.policy != nil && j.prefs != nil {
		alerted = j.policy.Evaluate(ctx, current, reading.Index, j.prefs)
	}

	if !store.UpdateReading(id, reading, j.clock.Now()) {
		return entryOutcome{status: entryDiscarded, alerted: alerted}
	}
	return entryOutcome{status: entryUpdated, alerted: alerted}
}
