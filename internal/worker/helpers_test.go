package worker_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/livebetter/livebetter/internal/airquality"
	"github.com/livebetter/livebetter/internal/preferences"
	"github.com/livebetter/livebetter/internal/tracking"
	"github.com/livebetter/livebetter/internal/worker"
)

var (
	epoch  = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	london = tracking.Candidate{Name: "London", Coordinates: tracking.Coordinates{Lat: 51.5072, Lon: -0.1276}}
	paris  = tracking.Candidate{Name: "Paris", Coordinates: tracking.Coordinates{Lat: 48.8566, Lon: 2.3522}}
	berlin = tracking.Candidate{Name: "Berlin", Coordinates: tracking.Coordinates{Lat: 52.52, Lon: 13.405}}
)

// fakeSource serves a fixed index. Fetches for latitudes in fail return the
// mapped error, and panicLat panics. While a gate is set every fetch blocks
// until the gate is closed.
type fakeSource struct {
	calls atomic.Int32

	mu       sync.Mutex
	index    airquality.Index
	fail     map[float64]error
	panicLat float64
	gate     chan struct{}
	started  chan struct{}
}

func newFakeSource(index airquality.Index) *fakeSource {
	return &fakeSource{index: index, fail: map[float64]error{}, started: make(chan struct{}, 16)}
}

func (s *fakeSource) setIndex(i airquality.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = i
}

func (s *fakeSource) failFor(lat float64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[lat] = err
}

func (s *fakeSource) panicFor(lat float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panicLat = lat
}

// hold makes subsequent fetches block and returns a func releasing them.
func (s *fakeSource) hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

func (s *fakeSource) FetchCurrentReading(ctx context.Context, lat, lon float64) (*airquality.Reading, error) {
	s.calls.Add(1)

	s.mu.Lock()
	gate, index, err, panicLat := s.gate, s.index, s.fail[lat], s.panicLat
	s.mu.Unlock()

	if gate != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if panicLat != 0 && lat == panicLat {
		panic("provider exploded")
	}
	if err != nil {
		return nil, err
	}
	return &airquality.Reading{
		Lat:        lat,
		Lon:        lon,
		Index:      index,
		Pollutants: map[airquality.Pollutant]float64{airquality.PollutantPM25: 12.5},
		MeasuredAt: epoch,
	}, nil
}

// thresholdPolicy alerts when the index reaches the threshold and counts calls.
type thresholdPolicy struct {
	evaluated atomic.Int32
	sent      atomic.Int32
}

func (p *thresholdPolicy) Evaluate(_ context.Context, _ tracking.TrackedLocation, newIndex airquality.Index, prefs preferences.Accessor) bool {
	p.evaluated.Add(1)
	if _, ok := prefs.UserContact(); ok && prefs.AlertsEnabled() && int(newIndex) >= prefs.AlertThreshold() {
		p.sent.Add(1)
		return true
	}
	return false
}

type harness struct {
	source *fakeSource
	store  *tracking.Store
	clock  *worker.ManualClock
	policy *thresholdPolicy
	prefs  *preferences.Settings
	job    *worker.RefreshJob
	sched  *worker.Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		source: newFakeSource(airquality.IndexFair),
		clock:  worker.NewManualClock(epoch),
		policy: &thresholdPolicy{},
		prefs:  preferences.NewSettings(preferences.Default("usr_1"), "user@example.com"),
	}
	h.store = tracking.NewStore(tracking.StoreConfig{
		Source: h.source,
		Logger: zerolog.Nop(),
		Now:    h.clock.Now,
	})
	h.job = worker.NewRefreshJob(worker.RefreshJobConfig{
		Source:      h.source,
		Policy:      h.policy,
		Preferences: h.prefs,
		Logger:      zerolog.Nop(),
		Clock:       h.clock,
	})
	h.sched = worker.NewScheduler(worker.SchedulerConfig{
		Store:    h.store,
		Job:      h.job,
		Interval: 5 * time.Minute,
		Clock:    h.clock,
		Logger:   zerolog.Nop(),
	})
	h.store.OnChange(h.sched.Sync)
	t.Cleanup(h.sched.Stop)
	return h
}

func (h *harness) add(t *testing.T, cs ...tracking.Candidate) {
	t.Helper()
	for _, c := range cs {
		_, added, err := h.store.Add(context.Background(), c)
		require.NoError(t, err)
		require.True(t, added)
	}
}

func waitStarted(t *testing.T, s *fakeSource) {
	t.Helper()
	select {
	case <-s.started:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not start")
	}
}
