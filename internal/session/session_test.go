package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livebetter/livebetter/internal/airquality"
	"github.com/livebetter/livebetter/internal/alert"
	"github.com/livebetter/livebetter/internal/preferences"
	"github.com/livebetter/livebetter/internal/session"
	"github.com/livebetter/livebetter/internal/tracking"
	"github.com/livebetter/livebetter/internal/worker"
)

var (
	epoch  = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	london = tracking.Candidate{Name: "London", Country: "GB", Coordinates: tracking.Coordinates{Lat: 51.5072, Lon: -0.1276}}
	paris  = tracking.Candidate{Name: "Paris", Country: "FR", Coordinates: tracking.Coordinates{Lat: 48.8566, Lon: 2.3522}}
)

type source struct {
	mu    sync.Mutex
	index airquality.Index
	err   error
}

func (s *source) set(index airquality.Index, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index, s.err = index, err
}

func (s *source) FetchCurrentReading(_ context.Context, lat, lon float64) (*airquality.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &airquality.Reading{Lat: lat, Lon: lon, Index: s.index}, nil
}

type recorder struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (r *recorder) Dispatch(_ context.Context, a alert.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func newSession(t *testing.T, src *source, rec *recorder, contact string) (*session.Session, *worker.ManualClock) {
	t.Helper()
	clock := worker.NewManualClock(epoch)
	s := session.New(session.Config{
		UserID:      "usr_1",
		Contact:     contact,
		Preferences: preferences.Default("usr_1"),
		Source:      src,
		Dispatcher:  rec,
		Clock:       clock,
		Logger:      zerolog.Nop(),
	})
	t.Cleanup(s.Close)
	return s, clock
}

func TestSession_AddIsIdempotent(t *testing.T) {
	s, _ := newSession(t, &source{index: airquality.IndexFair}, &recorder{}, "")
	ctx := context.Background()

	first, added, err := s.AddTrackedLocation(ctx, london)
	require.NoError(t, err)
	assert.True(t, added)

	again, added, err := s.AddTrackedLocation(ctx, london)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, first, again)

	assert.Len(t, s.TrackedLocations(), 1)
}

func TestSession_AddWithFailedFetchDefaultsIndex(t *testing.T) {
	s, _ := newSession(t, &source{err: errors.New("no data")}, &recorder{}, "")

	loc, added, err := s.AddTrackedLocation(context.Background(), paris)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, airquality.IndexGood, loc.CurrentIndex)
	assert.False(t, loc.Initialized)
}

func TestSession_RemoveOutOfRange(t *testing.T) {
	s, _ := newSession(t, &source{index: airquality.IndexFair}, &recorder{}, "")
	_, _, _ = s.AddTrackedLocation(context.Background(), london)

	assert.False(t, s.RemoveTrackedLocation(5))
	assert.False(t, s.RemoveTrackedLocation(-1))
	assert.Len(t, s.TrackedLocations(), 1)

	assert.True(t, s.RemoveTrackedLocation(0))
	assert.Empty(t, s.TrackedLocations())
}

func TestSession_SchedulerFollowsCollection(t *testing.T) {
	s, clock := newSession(t, &source{index: airquality.IndexFair}, &recorder{}, "")

	assert.Equal(t, worker.StateIdle, s.Status().State)

	_, _, _ = s.AddTrackedLocation(context.Background(), london)
	assert.Equal(t, worker.StateArmed, s.Status().State)
	assert.Len(t, clock.Running(), 1)

	s.RemoveTrackedLocation(0)
	assert.Equal(t, worker.StateIdle, s.Status().State)
	assert.Empty(t, clock.Running())
}

func TestSession_AlertsGatedByContact(t *testing.T) {
	src := &source{index: airquality.IndexFair}
	rec := &recorder{}
	s, _ := newSession(t, src, rec, "")
	ctx := context.Background()
	_, _, _ = s.AddTrackedLocation(ctx, london)

	src.set(airquality.IndexVeryPoor, nil)
	result, err := s.RefreshNow(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.AlertsDispatched)
	assert.Zero(t, rec.count())

	s.SetContact("user@example.com")
	result, err = s.RefreshNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.AlertsDispatched)
	require.Equal(t, 1, rec.count())

	a := rec.alerts[0]
	assert.Equal(t, "user@example.com", a.Recipient)
	assert.Equal(t, "London", a.LocationName)
	assert.Equal(t, airquality.IndexVeryPoor, a.Index)
	assert.Equal(t, epoch, a.Timestamp)
}

func TestSession_ThresholdBoundary(t *testing.T) {
	src := &source{index: airquality.IndexFair}
	rec := &recorder{}
	s, _ := newSession(t, src, rec, "user@example.com")
	ctx := context.Background()
	_, _, _ = s.AddTrackedLocation(ctx, london)

	p := s.Preferences()
	p.AlertThreshold = 4
	require.NoError(t, s.UpdatePreferences(p))

	src.set(airquality.IndexModerate, nil)
	_, _ = s.RefreshNow(ctx)
	assert.Zero(t, rec.count())

	src.set(airquality.IndexPoor, nil)
	_, _ = s.RefreshNow(ctx)
	assert.Equal(t, 1, rec.count())
}

func TestSession_UpdatePreferencesReArms(t *testing.T) {
	s, clock := newSession(t, &source{index: airquality.IndexFair}, &recorder{}, "")
	_, _, _ = s.AddTrackedLocation(context.Background(), london)

	p := s.Preferences()
	p.RefreshInterval = time.Hour
	require.NoError(t, s.UpdatePreferences(p))

	assert.Equal(t, []time.Duration{time.Hour}, clock.Running())
	assert.Equal(t, time.Hour, s.Status().Interval)

	p.AlertThreshold = 9
	assert.ErrorIs(t, s.UpdatePreferences(p), preferences.ErrInvalidThreshold)
}

func TestSession_MaxLocations(t *testing.T) {
	s := session.New(session.Config{
		UserID:       "usr_1",
		Source:       &source{index: airquality.IndexFair},
		MaxLocations: 1,
		Clock:        worker.NewManualClock(epoch),
		Logger:       zerolog.Nop(),
	})
	defer s.Close()

	_, _, err := s.AddTrackedLocation(context.Background(), london)
	require.NoError(t, err)
	_, _, err = s.AddTrackedLocation(context.Background(), paris)
	assert.ErrorIs(t, err, tracking.ErrStoreFull)
}
