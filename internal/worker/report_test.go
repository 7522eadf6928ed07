package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livebetter/livebetter/internal/airquality"
	"github.com/livebetter/livebetter/internal/notification"
	"github.com/livebetter/livebetter/internal/tracking"
	"github.com/livebetter/livebetter/internal/worker"
)

type staticSubscribers []worker.Subscriber

func (s staticSubscribers) WeeklyReportSubscribers() []worker.Subscriber { return s }

type reportMailer struct {
	sent   []notification.Message
	failTo string
}

func (m *reportMailer) Send(_ context.Context, msg notification.Message) error {
	if msg.To == m.failTo {
		return errors.New("mailbox full")
	}
	m.sent = append(m.sent, msg)
	return nil
}

type reportsDisabled bool

func (f reportsDisabled) IsWeeklyReportsDisabled(context.Context) bool { return bool(f) }

func subscribers() staticSubscribers {
	return staticSubscribers{
		{
			UserID:  "usr_1",
			Contact: "one@example.com",
			Locations: []tracking.TrackedLocation{
				{Name: "London", CurrentIndex: airquality.IndexPoor, LastUpdatedAt: epoch},
				{Name: "Paris", CurrentIndex: airquality.IndexGood, LastUpdatedAt: epoch, Stale: true},
			},
		},
		{UserID: "usr_2", Contact: "two@example.com"},
	}
}

func TestReportJob_Run(t *testing.T) {
	mailer := &reportMailer{}
	job := worker.NewReportJob(worker.ReportJobConfig{
		Source: subscribers(),
		Mailer: mailer,
		Logger: zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, worker.ReportResult{Sent: 2}, result)
	require.Len(t, mailer.sent, 2)

	first := mailer.sent[0]
	assert.Equal(t, "one@example.com", first.To)
	assert.Equal(t, "Your weekly air quality report", first.Subject)
	assert.Contains(t, first.HTML, "<td>London</td><td>4</td><td>Poor</td>")
	assert.Contains(t, first.HTML, "(stale)")

	assert.Contains(t, mailer.sent[1].HTML, "You are not tracking any locations.")
}

func TestReportJob_FailureDoesNotStopOthers(t *testing.T) {
	mailer := &reportMailer{failTo: "one@example.com"}
	job := worker.NewReportJob(worker.ReportJobConfig{Source: subscribers(), Mailer: mailer, Logger: zerolog.Nop()})

	result := job.Run(context.Background())

	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, result.Failed)
}

func TestReportJob_DisabledByFlag(t *testing.T) {
	mailer := &reportMailer{}
	job := worker.NewReportJob(worker.ReportJobConfig{
		Source: subscribers(),
		Mailer: mailer,
		Flags:  reportsDisabled(true),
		Logger: zerolog.Nop(),
	})

	assert.True(t, job.Run(context.Background()).Skipped)
	assert.Empty(t, mailer.sent)
}

func TestReportJob_StartRejectsBadSchedule(t *testing.T) {
	job := worker.NewReportJob(worker.ReportJobConfig{
		Config: worker.ReportConfig{Schedule: "every tuesday"},
		Source: staticSubscribers{},
		Mailer: &reportMailer{},
		Logger: zerolog.Nop(),
	})

	assert.Error(t, job.Start())
}

func TestReportJob_StartAndStop(t *testing.T) {
	job := worker.NewReportJob(worker.ReportJobConfig{
		Config: worker.ReportConfig{Schedule: worker.DefaultReportSchedule, Location: time.UTC},
		Source: staticSubscribers{},
		Mailer: &reportMailer{},
		Logger: zerolog.Nop(),
	})

	require.NoError(t, job.Start())
	job.Stop()
}
