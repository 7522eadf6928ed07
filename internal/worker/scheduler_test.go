package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livebetter/livebetter/internal/airquality"
	"github.com/livebetter/livebetter/internal/worker"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func TestScheduler_ArmsAndDisarmsWithCollection(t *testing.T) {
	h := newHarness(t)

	h.sched.Sync()
	assert.Equal(t, worker.StateIdle, h.sched.State())
	assert.Empty(t, h.clock.Running())

	h.add(t, london)
	assert.Equal(t, worker.StateArmed, h.sched.State())
	assert.Equal(t, []time.Duration{5 * time.Minute}, h.clock.Running())

	h.add(t, paris)
	assert.Len(t, h.clock.Running(), 1, "a second entry does not add a timer")

	h.store.Remove(0)
	assert.Equal(t, worker.StateArmed, h.sched.State())

	h.store.Remove(0)
	assert.Equal(t, worker.StateIdle, h.sched.State())
	assert.Empty(t, h.clock.Running())

	h.add(t, berlin)
	assert.Equal(t, worker.StateArmed, h.sched.State())
	assert.Len(t, h.clock.Running(), 1)
}

func TestScheduler_SetIntervalKeepsSingleTimer(t *testing.T) {
	h := newHarness(t)
	h.add(t, london)

	h.sched.SetInterval(time.Minute)

	assert.Equal(t, []time.Duration{time.Minute}, h.clock.Running())
	assert.Equal(t, 2, h.clock.Created())
	assert.Equal(t, time.Minute, h.sched.Interval())

	h.sched.SetInterval(time.Minute)
	assert.Equal(t, 2, h.clock.Created(), "unchanged interval does not re-arm")
}

func TestScheduler_SetIntervalWhileIdle(t *testing.T) {
	h := newHarness(t)

	h.sched.SetInterval(15 * time.Minute)
	assert.Empty(t, h.clock.Running())

	h.add(t, london)
	assert.Equal(t, []time.Duration{15 * time.Minute}, h.clock.Running())
}

func TestScheduler_TickRunsPass(t *testing.T) {
	h := newHarness(t)
	h.add(t, london, paris)
	h.source.setIndex(airquality.IndexPoor)

	h.clock.Advance(5 * time.Minute)
	h.clock.Tick()

	require.Eventually(t, func() bool { return h.sched.GetMetrics().Passes == 1 }, waitFor, tick)

	m := h.sched.GetMetrics()
	require.NotNil(t, m.LastResult)
	assert.Equal(t, worker.TriggerTimer, m.LastResult.Trigger)
	assert.Equal(t, 2, m.LastResult.Updated)
	assert.Equal(t, 2, m.LastResult.AlertsDispatched)
	assert.Equal(t, worker.StateArmed, m.State)

	for _, loc := range h.store.Snapshot() {
		assert.Equal(t, airquality.IndexPoor, loc.CurrentIndex)
		assert.Equal(t, epoch.Add(5*time.Minute), loc.LastUpdatedAt)
	}
}

func TestScheduler_NoOverlappingPasses(t *testing.T) {
	h := newHarness(t)
	h.add(t, london)
	before := h.source.calls.Load()

	release := h.source.hold()
	defer release()

	var (
		wg     sync.WaitGroup
		first  *worker.RefreshResult
		second *worker.RefreshResult
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		var err error
		first, err = h.sched.RefreshNow(context.Background(), worker.TriggerManual)
		assert.NoError(t, err)
	}()
	waitStarted(t, h.source)
	assert.Equal(t, worker.StateRefreshing, h.sched.State())

	wg.Add(1)
	go func() {
		defer wg.Done()
		var err error
		second, err = h.sched.RefreshNow(context.Background(), worker.TriggerManual)
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return h.sched.GetMetrics().CoalescedRequests == 1 }, waitFor, tick)

	h.clock.Tick()
	require.Eventually(t, func() bool { return h.sched.GetMetrics().SkippedTicks == 1 }, waitFor, tick)

	release()
	wg.Wait()

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.False(t, first.Coalesced)
	assert.True(t, second.Coalesced)
	assert.Equal(t, first.StartedAt, second.StartedAt, "the joiner receives the same pass")

	m := h.sched.GetMetrics()
	assert.Equal(t, int64(1), m.Passes)
	assert.Equal(t, int32(1), h.source.calls.Load()-before, "one fetch per entry for one pass")
	assert.Equal(t, worker.StateArmed, m.State)
}

func TestScheduler_EmptiedDuringPassGoesIdle(t *testing.T) {
	h := newHarness(t)
	h.add(t, london)

	release := h.source.hold()
	defer release()

	done := make(chan *worker.RefreshResult, 1)
	go func() {
		r, _ := h.sched.RefreshNow(context.Background(), worker.TriggerManual)
		done <- r
	}()
	waitStarted(t, h.source)

	h.store.Remove(0)
	assert.Empty(t, h.clock.Running(), "timer stops while the pass is still running")
	assert.Equal(t, worker.StateRefreshing, h.sched.State())

	release()
	result := <-done

	assert.Equal(t, 1, result.Discarded)
	assert.Equal(t, 0, h.store.Len())
	assert.Equal(t, worker.StateIdle, h.sched.State())
}

func TestScheduler_PanicDoesNotStickInRefreshing(t *testing.T) {
	h := newHarness(t)
	h.add(t, london, paris)
	h.source.panicFor(london.Coordinates.Lat)

	result, err := h.sched.RefreshNow(context.Background(), worker.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, worker.StateArmed, h.sched.State())

	// The scheduler still serves further passes.
	_, err = h.sched.RefreshNow(context.Background(), worker.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, int64(2), h.sched.GetMetrics().Passes)
}

func TestScheduler_RefreshNowWhenIdle(t *testing.T) {
	h := newHarness(t)

	result, err := h.sched.RefreshNow(context.Background(), worker.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Total)
	assert.Equal(t, worker.StateIdle, h.sched.State())
}

func TestScheduler_RefreshNowCallerCancelled(t *testing.T) {
	h := newHarness(t)
	h.add(t, london)

	release := h.source.hold()
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := h.sched.RefreshNow(ctx, worker.TriggerManual)
		errCh <- err
	}()
	waitStarted(t, h.source)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	// The pass itself is not cancelled by the caller going away.
	release()
	require.Eventually(t, func() bool { return h.sched.GetMetrics().Passes == 1 }, waitFor, tick)
	assert.Equal(t, 1, h.sched.GetMetrics().LastResult.Updated)
}

func TestScheduler_Stop(t *testing.T) {
	h := newHarness(t)
	h.add(t, london)

	h.sched.Stop()
	h.sched.Stop()

	assert.Empty(t, h.clock.Running())
	_, err := h.sched.RefreshNow(context.Background(), worker.TriggerManual)
	assert.ErrorIs(t, err, worker.ErrSchedulerStopped)

	h.add(t, paris)
	assert.Empty(t, h.clock.Running(), "a stopped scheduler never re-arms")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", worker.StateIdle.String())
	assert.Equal(t, "armed", worker.StateArmed.String())
	assert.Equal(t, "refreshing", worker.StateRefreshing.String())
}
