package worker

import (
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/livebetter/livebetter/internal/notification"
	"github.com/livebetter/livebetter/internal/tracking"
)

// Subscriber is a user who should receive the weekly report.
type Subscriber struct {
	UserID    string
	Contact   string
	Locations []tracking.TrackedLocation
}

// SubscriberSource lists the users opted in to weekly reports.
type SubscriberSource interface {
	WeeklyReportSubscribers() []Subscriber
}

// ReportFlags lets the report be switched off at runtime.
type ReportFlags interface {
	IsWeeklyReportsDisabled(ctx context.Context) bool
}

// ReportJobConfig holds configuration for a ReportJob.
type ReportJobConfig struct {
	Config  ReportConfig
	Source  SubscriberSource
	Mailer  notification.Mailer
	Flags   ReportFlags
	Logger  zerolog.Logger
	Timeout time.Duration
}

// ReportResult summarises one report run.
type ReportResult struct {
	Sent    int
	Failed  int
	Skipped bool
}

var reportTemplate = template.Must(template.New("weekly_report").Parse(`<strong>Your weekly air quality summary</strong>
{{if .Locations}}<table>
<tr><th>Location</th><th>AQI</th><th>Status</th><th>Updated</th></tr>
{{range .Locations}}<tr><td>{{.Name}}</td><td>{{.Index}}</td><td>{{.Description}}</td><td>{{.Updated}}</td></tr>
{{end}}</table>{{else}}<p>You are not tracking any locations.</p>{{end}}
`))

type reportRow struct {
	Name        string
	Index       int
	Description string
	Updated     string
}

// ReportJob emails a weekly summary of tracked locations on a cron schedule.
type ReportJob struct {
	config    ReportConfig
	source    SubscriberSource
	mailer    notification.Mailer
	flags     ReportFlags
	logger    zerolog.Logger
	timeout   time.Duration
	scheduler *gocron.Scheduler
}

// NewReportJob creates a report job. It does nothing until Start.
func NewReportJob(cfg ReportJobConfig) *ReportJob {
	config := cfg.Config
	if config.Schedule == "" {
		config.Schedule = DefaultReportSchedule
	}
	if config.Location == nil {
		config.Location = time.UTC
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &ReportJob{
		config:    config,
		source:    cfg.Source,
		mailer:    cfg.Mailer,
		flags:     cfg.Flags,
		logger:    cfg.Logger.With().Str("component", "weekly_report").Logger(),
		timeout:   timeout,
		scheduler: gocron.NewScheduler(config.Location),
	}
}

// Start schedules the job and starts the underlying scheduler.
func (j *ReportJob) Start() error {
	j.scheduler.SingletonModeAll()

	_, err := j.scheduler.Cron(j.config.Schedule).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()
		j.Run(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduling weekly report %q: %w", j.config.Schedule, err)
	}

	j.scheduler.StartAsync()
	j.logger.Info().Str("schedule", j.config.Schedule).Msg("weekly report scheduled")
	return nil
}

// Stop stops the scheduler and cancels future runs.
func (j *ReportJob) Stop() {
	j.scheduler.Stop()
}

// Run sends the report to every subscriber once.
func (j *ReportJob) Run(ctx context.Context) ReportResult {
	if j.flags != nil && j.flags.IsWeeklyReportsDisabled(ctx) {
		j.logger.Info().Msg("weekly reports disabled by feature flag")
		return ReportResult{Skipped: true}
	}

	var result ReportResult
	for _, sub := range j.source.WeeklyReportSubscribers() {
		if err := ctx.Err(); err != nil {
			j.logger.Warn().Err(err).Msg("weekly report run interrupted")
			break
		}
		if err := j.send(ctx, sub); err != nil {
			result.Failed++
			j.logger.Error().Err(err).Str("user_id", sub.UserID).Msg("weekly report failed")
			continue
		}
		result.Sent++
	}

	j.logger.Info().Int("sent", result.Sent).Int("failed", result.Failed).Msg("weekly report run completed")
	return result
}

func (j *ReportJob) send(ctx context.Context, sub Subscriber) error {
	rows := make([]reportRow, 0, len(sub.Locations))
	for _, loc := range sub.Locations {
		updated := loc.LastUpdatedAt.UTC().Format("Mon 02 Jan 15:04")
		if loc.Stale {
			updated += " (stale)"
		}
		rows = append(rows, reportRow{
			Name:        loc.Name,
			Index:       int(loc.CurrentIndex),
			Description: loc.CurrentIndex.Description(),
			Updated:     updated,
		})
	}

	body, err := notification.Render(reportTemplate, struct{ Locations []reportRow }{rows})
	if err != nil {
		return err
	}

	return j.mailer.Send(ctx, notification.Message{
		To:      sub.Contact,
		Subject: "Your weekly air quality report",
		HTML:    body,
	})
}
