package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/livebetter/livebetter/internal/preferences"
	"github.com/livebetter/livebetter/internal/tracking"
)

// ErrSchedulerStopped is returned by RefreshNow after Stop.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// State is the scheduler's lifecycle state.
type State int

// Scheduler states.
const (
	// StateIdle has no timer; the collection is empty.
	StateIdle State = iota
	// StateArmed has exactly one running timer and no pass in flight.
	StateArmed
	// StateRefreshing has a pass in flight.
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateRefreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SchedulerConfig holds configuration for a Scheduler.
type SchedulerConfig struct {
	Store *tracking.Store
	Job   *RefreshJob

	// Interval is the initial timer period. Default: preferences.DefaultRefreshInterval
	Interval time.Duration

	Clock       Clock
	Instruments *Instruments
	Logger      zerolog.Logger
}

// MetricsSnapshot is a point-in-time view of a scheduler.
type MetricsSnapshot struct {
	State             State          `json:"state"`
	Interval          time.Duration  `json:"interval"`
	Passes            int64          `json:"passes"`
	CoalescedRequests int64          `json:"coalescedRequests"`
	SkippedTicks      int64          `json:"skippedTicks"`
	LastPassAt        time.Time      `json:"lastPassAt,omitempty"`
	LastErrorCount    int            `json:"lastErrorCount"`
	LastResult        *RefreshResult `json:"lastResult,omitempty"`
}

// pass is a refresh pass in flight. result is written before done is closed.
type pass struct {
	done   chan struct{}
	result *RefreshResult
}

// Scheduler drives periodic refresh passes over one store.
//
// It holds at most one timer, armed while the store is non-empty, and at most
// one pass in flight. Ticks that arrive during a pass are dropped; manual
// refreshes during a pass wait for it and share its result.
type Scheduler struct {
	store       *tracking.Store
	job         *RefreshJob
	clock       Clock
	instruments *Instruments
	logger      zerolog.Logger

	// ctx outlives callers of RefreshNow so an abandoned request cannot
	// cancel a pass other callers are waiting on.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	interval   time.Duration
	ticker     Ticker
	tickerStop chan struct{}
	inflight   *pass
	stopped    bool

	passes     int64
	coalesced  int64
	skipped    int64
	lastResult *RefreshResult
}

// NewScheduler creates an idle scheduler. Call Sync after the store changes.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = preferences.DefaultRefreshInterval
	}

	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		store:       cfg.Store,
		job:         cfg.Job,
		clock:       clock,
		instruments: cfg.Instruments,
		logger:      cfg.Logger.With().Str("component", "scheduler").Logger(),
		ctx:         ctx,
		cancel:      cancel,
		interval:    interval,
	}
}

// Sync arms the timer when the store has entries and disarms it when the
// store is empty. It reads the store's current size, so calls may arrive in
// any order. A pass in flight is never cancelled.
func (s *Scheduler) Sync() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if s.store.Len() == 0 {
		if s.ticker != nil {
			s.disarmLocked()
			s.logger.Debug().Msg("collection empty, timer disarmed")
		}
		return
	}

	if s.ticker == nil {
		s.armLocked()
		s.logger.Debug().Dur("interval", s.interval).Msg("timer armed")
	}
}

// SetInterval changes the timer period. A running timer is stopped before its
// replacement starts.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if d == s.interval {
		return
	}
	s.interval = d

	if s.ticker != nil && !s.stopped {
		s.disarmLocked()
		s.armLocked()
		s.logger.Info().Dur("interval", d).Msg("timer re-armed with new interval")
	}
}

// RefreshNow runs a pass immediately. When a pass is already in flight no new
// pass is started: the caller waits for the running one and receives its
// result with Coalesced set.
func (s *Scheduler) RefreshNow(ctx context.Context, trigger Trigger) (*RefreshResult, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrSchedulerStopped
	}

	p := s.inflight
	joined := p != nil
	if joined {
		s.coalesced++
	} else {
		p = s.startPassLocked(trigger)
	}
	s.mu.Unlock()

	if joined {
		s.instruments.recordCoalesced(ctx)
		s.logger.Debug().Str("trigger", string(trigger)).Msg("refresh coalesced into pass in flight")
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	result := p.result.clone()
	result.Coalesced = joined
	return result, nil
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Interval returns the current timer period.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// GetMetrics returns a snapshot of the scheduler's counters.
func (s *Scheduler) GetMetrics() MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := MetricsSnapshot{
		State:             s.stateLocked(),
		Interval:          s.interval,
		Passes:            s.passes,
		CoalescedRequests: s.coalesced,
		SkippedTicks:      s.skipped,
		LastResult:        s.lastResult.clone(),
	}
	if s.lastResult != nil {
		m.LastPassAt = s.lastResult.StartedAt
		m.LastErrorCount = len(s.lastResult.Errors)
	}
	return m
}

// Stop disarms the timer, cancels any pass in flight and waits for it to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.disarmLocked()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) stateLocked() State {
	switch {
	case s.inflight != nil:
		return StateRefreshing
	case s.ticker != nil:
		return StateArmed
	default:
		return StateIdle
	}
}

func (s *Scheduler) armLocked() {
	t := s.clock.NewTicker(s.interval)
	stop := make(chan struct{})
	s.ticker, s.tickerStop = t, stop

	s.wg.Add(1)
	go s.loop(t, stop)
}

func (s *Scheduler) disarmLocked() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.tickerStop)
	s.ticker, s.tickerStop = nil, nil
}

func (s *Scheduler) loop(t Ticker, stop <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			s.onTick(t)
		}
	}
}

func (s *Scheduler) onTick(t Ticker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A tick from a ticker replaced by SetInterval or Sync is stale.
	if s.stopped || s.ticker != t {
		return
	}
	if s.inflight != nil {
		s.skipped++
		s.instruments.recordSkippedTick(s.ctx)
		s.logger.Debug().Msg("tick dropped, pass in flight")
		return
	}
	s.startPassLocked(TriggerTimer)
}

func (s *Scheduler) startPassLocked(trigger Trigger) *pass {
	p := &pass{done: make(chan struct{})}
	s.inflight = p

	s.wg.Add(1)
	go s.runPass(p, trigger)
	return p
}

func (s *Scheduler) runPass(p *pass, trigger Trigger) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("trigger", string(trigger)).Msg("refresh pass panicked")
			p.result = &RefreshResult{
				Trigger:   trigger,
				StartedAt: s.clock.Now(),
				Errors:    []EntryError{{Error: fmt.Sprintf("panic: %v", r)}},
			}
		}

		s.mu.Lock()
		s.inflight = nil
		s.passes++
		s.lastResult = p.result
		s.mu.Unlock()

		close(p.done)
	}()

	p.result = s.job.Run(s.ctx, s.store, trigger)
}
