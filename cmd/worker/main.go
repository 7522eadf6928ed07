// Package main runs a headless refresh engine for a fixed list of locations.
//
// The worker tracks the locations in WORKER_LOCATIONS for a single user,
// refreshes them on the preference interval and sends alerts to
// WORKER_ALERT_EMAIL. It exposes /health and /status for the platform.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/livebetter/livebetter/internal/airquality"
	aqowm "github.com/livebetter/livebetter/internal/airquality/openweathermap"
	"github.com/livebetter/livebetter/internal/alert"
	"github.com/livebetter/livebetter/internal/api/handler"
	"github.com/livebetter/livebetter/internal/api/middleware"
	"github.com/livebetter/livebetter/internal/api/response"
	"github.com/livebetter/livebetter/internal/config"
	"github.com/livebetter/livebetter/internal/featureflags"
	"github.com/livebetter/livebetter/internal/notification"
	"github.com/livebetter/livebetter/internal/preferences"
	"github.com/livebetter/livebetter/internal/provider/resilience"
	"github.com/livebetter/livebetter/internal/session"
	"github.com/livebetter/livebetter/internal/telemetry"
	"github.com/livebetter/livebetter/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "livebetter-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("invalid configuration")
	}

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && level != zerolog.NoLevel {
		log = log.Level(level)
	}

	log.Info().Str("build_time", BuildTime).Msg("starting LiveBetter worker")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("worker exited")
	}
	log.Info().Msg("worker stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	candidates, err := worker.ParseLocations(cfg.Worker.Locations)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		log.Warn().Msg("WORKER_LOCATIONS is empty - nothing will be refreshed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	instruments, err := worker.NewInstruments()
	if err != nil {
		return err
	}

	var checks []handler.DependencyCheck
	var cache airquality.Cache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		cache = airquality.NewRedisCache(rdb)
		checks = append(checks, handler.DependencyCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	providers := resilience.NewRegistry()
	httpClient := resilience.DefaultClientConfig(aqowm.ProviderName)
	httpClient.Registry = providers
	httpClient.Logger = log

	aqService := airquality.NewService(airquality.ServiceConfig{
		Provider: aqowm.NewClient(aqowm.ClientConfig{
			APIKey:     cfg.OpenWeatherMap.APIKey,
			BaseURL:    cfg.OpenWeatherMap.BaseURL,
			HTTPClient: resilience.NewClient(httpClient),
			Logger:     log,
		}),
		Cache:    cache,
		Logger:   log,
		CacheTTL: cfg.OpenWeatherMap.CacheTTL,
	})

	// Flags live in memory here; the worker has no admin surface.
	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewInMemoryRepository(),
		Logger:     log,
	})

	mailer := notification.NewSMTPMailer(notification.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, log)

	channels := alert.Channels{Email: alert.NewEmailDispatcher(mailer)}
	if len(cfg.Kafka.Brokers) > 0 {
		kd := alert.NewKafkaDispatcher(alert.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic))
		defer kd.Close()
		channels.Kafka = kd
	}

	manager := session.NewManager(session.ManagerConfig{
		Source:      aqService,
		Dispatcher:  alert.NewPipeline(channels, flags, log),
		Preferences: preferences.NewService(preferences.ServiceConfig{Repository: preferences.NewInMemoryRepository(), Logger: log}),
		Refresh: worker.RefreshConfig{
			Concurrency:  cfg.Scheduler.Concurrency,
			FetchTimeout: cfg.Scheduler.FetchTimeout,
		},
		MaxLocations: cfg.Scheduler.MaxLocations,
		Instruments:  instruments,
		Logger:       log,
	})
	defer manager.Close()

	sess, err := manager.Get(ctx, cfg.Worker.UserID, cfg.Worker.AlertEmail)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		entry, added, err := sess.AddTrackedLocation(ctx, c)
		if err != nil {
			log.Error().Err(err).Str("location", c.Name).Msg("failed to track location")
			continue
		}
		log.Info().
			Str("location", entry.Name).
			Int("aqi", int(entry.CurrentIndex)).
			Bool("added", added).
			Msg("tracking location")
	}

	if cfg.PubSub.ProjectID != "" {
		trigger, err := worker.NewPubSubTrigger(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			Refresher:        manager,
			Logger:           log,
		})
		if err != nil {
			return err
		}
		defer trigger.Close()

		go func() {
			if err := trigger.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub trigger stopped")
			}
		}()
	}

	ops := handler.NewOpsHandler(handler.OpsConfig{
		Version:   Version,
		BuildTime: BuildTime,
		Checks:    checks,
		Providers: providers,
		Sessions:  manager,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.ContentTypeJSON)
	r.Get("/health", ops.HealthCheck)
	r.Get("/ready", ops.ReadinessCheck)
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, sess.Status())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
