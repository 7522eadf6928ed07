package worker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livebetter/livebetter/internal/worker"
)

type recordingRefresher struct {
	users    []string
	triggers []worker.Trigger
	err      error
}

func (r *recordingRefresher) RefreshUser(_ context.Context, userID string, trigger worker.Trigger) (int, error) {
	r.users = append(r.users, userID)
	r.triggers = append(r.triggers, trigger)
	return 1, r.err
}

func TestTriggerHandler_RefreshNow(t *testing.T) {
	r := &recordingRefresher{}
	h := worker.NewTriggerHandler(r, zerolog.Nop())

	require.NoError(t, h.Handle(context.Background(), []byte(`{"jobType":"refresh_now","userId":"usr_1"}`)))
	require.NoError(t, h.Handle(context.Background(), []byte(`{"jobType":"refresh_now"}`)))

	assert.Equal(t, []string{"usr_1", ""}, r.users)
	assert.Equal(t, []worker.Trigger{worker.TriggerRemote, worker.TriggerRemote}, r.triggers)
}

func TestTriggerHandler_Errors(t *testing.T) {
	r := &recordingRefresher{}
	h := worker.NewTriggerHandler(r, zerolog.Nop())

	assert.ErrorIs(t, h.Handle(context.Background(), []byte(`not json`)), worker.ErrMalformedMessage)
	assert.ErrorIs(t, h.Handle(context.Background(), []byte(`{"jobType":"provider_refresh"}`)), worker.ErrUnknownJobType)
	assert.Empty(t, r.users)

	r.err = errors.New("session closed")
	err := h.Handle(context.Background(), []byte(`{"jobType":"refresh_now","userId":"usr_2"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session closed")
}
