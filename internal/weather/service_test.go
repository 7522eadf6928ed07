package weather_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livebetter/livebetter/internal/weather"
)

type stubProvider struct {
	mu      sync.Mutex
	hours   int
	err     error
	fetches int
}

func (p *stubProvider) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *stubProvider) FetchCurrent(_ context.Context, _, _ float64) (*weather.Conditions, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetches++
	if p.err != nil {
		return nil, p.err
	}
	return &weather.Conditions{Temperature: 14.2, WindSpeed: 0.4, Condition: weather.ConditionClouds}, nil
}

func (p *stubProvider) FetchHourly(_ context.Context, _, _ float64) ([]weather.Conditions, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	hours := make([]weather.Conditions, p.hours)
	for i := range hours {
		hours[i] = weather.Conditions{WindSpeed: float64(i % 4)}
	}
	return hours, nil
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) fetchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newService(p weather.Provider, clock *testClock) *weather.Service {
	return weather.NewService(weather.ServiceConfig{
		Provider: p,
		Logger:   zerolog.Nop(),
		CacheTTL: 15 * time.Minute,
		StaleTTL: time.Hour,
		Now:      clock.now,
	})
}

func TestService_Report(t *testing.T) {
	provider := &stubProvider{hours: 120}
	clock := &testClock{t: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	svc := newService(provider, clock)

	report, err := svc.Report(context.Background(), 51.5074, -0.1278)
	require.NoError(t, err)

	assert.Equal(t, weather.ConditionClouds, report.Current.Condition)
	assert.True(t, report.Current.Stagnant())
	assert.Len(t, report.Hourly, weather.MaxForecastHours)
	assert.Equal(t, weather.MaxForecastHours/4, report.StagnantHours())
	assert.Equal(t, clock.t, report.FetchedAt)
	assert.Equal(t, "stub", report.Provider)
}

func TestService_Report_CachesPerCell(t *testing.T) {
	provider := &stubProvider{hours: 3}
	clock := &testClock{t: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	svc := newService(provider, clock)
	ctx := context.Background()

	_, err := svc.Report(ctx, 51.5074, -0.1278)
	require.NoError(t, err)
	_, err = svc.Report(ctx, 51.5310, -0.1240)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.fetchCount(), "same cell is served from cache")

	_, err = svc.Report(ctx, 48.8566, 2.3522)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.fetchCount())

	clock.advance(16 * time.Minute)
	_, err = svc.Report(ctx, 51.5074, -0.1278)
	require.NoError(t, err)
	assert.Equal(t, 3, provider.fetchCount(), "expired report is refetched")
}

func TestService_Report_StaleOnError(t *testing.T) {
	provider := &stubProvider{hours: 3}
	clock := &testClock{t: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	svc := newService(provider, clock)
	ctx := context.Background()

	first, err := svc.Report(ctx, 51.5, -0.12)
	require.NoError(t, err)

	provider.fail(errors.New("timeout"))
	clock.advance(30 * time.Minute)

	stale, err := svc.Report(ctx, 51.5, -0.12)
	require.NoError(t, err)
	assert.Equal(t, first.FetchedAt, stale.FetchedAt)

	clock.advance(time.Hour)
	_, err = svc.Report(ctx, 51.5, -0.12)
	assert.ErrorIs(t, err, weather.ErrProviderUnavailable)
}

func TestService_Report_InvalidCoordinates(t *testing.T) {
	provider := &stubProvider{}
	svc := newService(provider, &testClock{t: time.Now()})

	for _, c := range [][2]float64{{91, 0}, {-91, 0}, {0, 181}, {0, -181}} {
		_, err := svc.Report(context.Background(), c[0], c[1])
		assert.ErrorIs(t, err, weather.ErrInvalidCoordinates)
	}
	assert.Zero(t, provider.fetchCount())
}
