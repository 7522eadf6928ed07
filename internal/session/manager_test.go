package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livebetter/livebetter/internal/airquality"
	"github.com/livebetter/livebetter/internal/preferences"
	"github.com/livebetter/livebetter/internal/session"
	"github.com/livebetter/livebetter/internal/worker"
)

type prefsLoader map[string]preferences.Preferences

func (l prefsLoader) Get(_ context.Context, userID string) (preferences.Preferences, error) {
	if p, ok := l[userID]; ok {
		return p, nil
	}
	if userID == "broken" {
		return preferences.Preferences{}, errors.New("db down")
	}
	return preferences.Default(userID), nil
}

type fixedLimit int

func (f fixedLimit) MaxTrackedLocations(context.Context, int) int { return int(f) }

func newManager(t *testing.T, loader session.PreferencesLoader) *session.Manager {
	t.Helper()
	m := session.NewManager(session.ManagerConfig{
		Source:      &source{index: airquality.IndexFair},
		Dispatcher:  &recorder{},
		Preferences: loader,
		Clock:       worker.NewManualClock(epoch),
		Logger:      zerolog.Nop(),
	})
	t.Cleanup(m.Close)
	return m
}

func TestManager_GetCreatesOnce(t *testing.T) {
	stored := preferences.Default("usr_1")
	stored.AlertThreshold = 2
	m := newManager(t, prefsLoader{"usr_1": stored})
	ctx := context.Background()

	s1, err := m.Get(ctx, "usr_1", "a@example.com")
	require.NoError(t, err)
	s2, err := m.Get(ctx, "usr_1", "")
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, s1.Preferences().AlertThreshold, "stored preferences are loaded")

	contact, ok := s2.Contact()
	assert.True(t, ok)
	assert.Equal(t, "a@example.com", contact, "empty contact keeps the existing one")
}

func TestManager_GetPreferencesError(t *testing.T) {
	m := newManager(t, prefsLoader{})

	_, err := m.Get(context.Background(), "broken", "")
	assert.Error(t, err)
	assert.Zero(t, m.Len())
}

func TestManager_LimitFromFlags(t *testing.T) {
	m := session.NewManager(session.ManagerConfig{
		Source: &source{index: airquality.IndexFair},
		Limits: fixedLimit(1),
		Clock:  worker.NewManualClock(epoch),
		Logger: zerolog.Nop(),
	})
	defer m.Close()
	ctx := context.Background()

	s, err := m.Get(ctx, "usr_1", "")
	require.NoError(t, err)
	_, _, err = s.AddTrackedLocation(ctx, london)
	require.NoError(t, err)
	_, _, err = s.AddTrackedLocation(ctx, paris)
	assert.Error(t, err)
}

func TestManager_RefreshUser(t *testing.T) {
	m := newManager(t, nil)
	ctx := context.Background()

	a, _ := m.Get(ctx, "usr_a", "")
	b, _ := m.Get(ctx, "usr_b", "")
	_, _, _ = a.AddTrackedLocation(ctx, london)
	_, _, _ = b.AddTrackedLocation(ctx, paris)

	n, err := m.RefreshUser(ctx, "usr_a", worker.TriggerRemote)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, worker.TriggerRemote, a.Status().Metrics.LastResult.Trigger)
	assert.Nil(t, b.Status().Metrics.LastResult)

	n, err = m.RefreshUser(ctx, "", worker.TriggerRemote)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = m.RefreshUser(ctx, "usr_missing", worker.TriggerRemote)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestManager_WeeklyReportSubscribers(t *testing.T) {
	weekly := preferences.Default("usr_weekly")
	weekly.WeeklyReports = true
	noContact := preferences.Default("usr_nocontact")
	noContact.WeeklyReports = true

	m := newManager(t, prefsLoader{"usr_weekly": weekly, "usr_nocontact": noContact})
	ctx := context.Background()

	s, _ := m.Get(ctx, "usr_weekly", "w@example.com")
	_, _, _ = s.AddTrackedLocation(ctx, london)
	_, _ = m.Get(ctx, "usr_nocontact", "")
	_, _ = m.Get(ctx, "usr_plain", "p@example.com")

	subs := m.WeeklyReportSubscribers()
	require.Len(t, subs, 1)
	assert.Equal(t, "usr_weekly", subs[0].UserID)
	assert.Equal(t, "w@example.com", subs[0].Contact)
	assert.Len(t, subs[0].Locations, 1)
}

func TestManager_RemoveAndClose(t *testing.T) {
	m := newManager(t, nil)
	ctx := context.Background()

	_, _ = m.Get(ctx, "usr_1", "")
	_, _ = m.Get(ctx, "usr_2", "")

	assert.True(t, m.Remove("usr_1"))
	assert.False(t, m.Remove("usr_1"))
	assert.Len(t, m.Statuses(), 1)

	m.Close()
	assert.Zero(t, m.Len())
	_, err := m.Get(ctx, "usr_3", "")
	assert.ErrorIs(t, err, session.ErrClosed)
}
