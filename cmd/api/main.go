// Package main provides the entrypoint for the LiveBetter API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/livebetter/livebetter/internal/airquality"
	aqowm "github.com/livebetter/livebetter/internal/airquality/openweathermap"
	"github.com/livebetter/livebetter/internal/alert"
	"github.com/livebetter/livebetter/internal/api"
	"github.com/livebetter/livebetter/internal/api/handler"
	"github.com/livebetter/livebetter/internal/api/middleware"
	"github.com/livebetter/livebetter/internal/auth"
	"github.com/livebetter/livebetter/internal/config"
	"github.com/livebetter/livebetter/internal/database"
	"github.com/livebetter/livebetter/internal/featureflags"
	"github.com/livebetter/livebetter/internal/geocoding"
	geoowm "github.com/livebetter/livebetter/internal/geocoding/openweathermap"
	"github.com/livebetter/livebetter/internal/notification"
	"github.com/livebetter/livebetter/internal/preferences"
	"github.com/livebetter/livebetter/internal/provider/resilience"
	"github.com/livebetter/livebetter/internal/session"
	"github.com/livebetter/livebetter/internal/telemetry"
	"github.com/livebetter/livebetter/internal/weather"
	weatherowm "github.com/livebetter/livebetter/internal/weather/openweathermap"
	"github.com/livebetter/livebetter/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "livebetter-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("invalid configuration")
	}

	log := newLogger(cfg)
	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.Environment).
		Msg("starting LiveBetter API")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry
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
	if tp.Exporting() {
		log.Info().Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		return err
	}
	instruments, err := worker.NewInstruments()
	if err != nil {
		return err
	}

	var checks []handler.DependencyCheck

	// Storage: Postgres when configured, in-memory otherwise.
	var (
		userRepo    auth.UserRepository         = auth.NewInMemoryUserRepository()
		refreshRepo auth.RefreshTokenRepository = auth.NewInMemoryRefreshTokenRepository()
		prefsRepo   preferences.Repository      = preferences.NewInMemoryRepository()
		flagsRepo   featureflags.Repository     = featureflags.NewInMemoryRepository()
	)
	if cfg.Database.URL != "" {
		pool, err := connectDatabase(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer pool.Close()

		userRepo = auth.NewPostgresUserRepository(pool)
		refreshRepo = auth.NewPostgresRefreshTokenRepository(pool)
		prefsRepo = preferences.NewPostgresRepository(pool)
		flagsRepo = featureflags.NewPostgresRepository(pool)
		checks = append(checks, handler.DependencyCheck{Name: "postgres", Ping: pool.Ping})
	} else {
		log.Warn().Msg("DATABASE_URL not set, using in-memory storage")
	}

	// Reading cache: Redis when configured, in-memory otherwise.
	var cache airquality.Cache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		cache = airquality.NewRedisCache(rdb)
		checks = append(checks, handler.DependencyCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis cache enabled")
	}

	authService := auth.NewService(auth.ServiceConfig{
		Tokens: auth.NewTokenIssuer(auth.TokenIssuerConfig{
			SigningKey: cfg.Auth.SigningKey,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			Policy: auth.TokenPolicy{
				AccessTTL:  cfg.Auth.AccessTokenTTL,
				RefreshTTL: cfg.Auth.RefreshTokenTTL,
			},
		}),
		UserRepo:    userRepo,
		RefreshRepo: refreshRepo,
		Logger:      log,
	})
	if cfg.Auth.SigningKey == config.DevSigningKey {
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	prefsService := preferences.NewService(preferences.ServiceConfig{Repository: prefsRepo, Logger: log})
	ffService := featureflags.NewService(featureflags.ServiceConfig{
		Repository: flagsRepo,
		Logger:     log,
		CacheTTL:   1 * time.Minute,
	})

	// Upstream providers share one registry so /v1/ops/status can report them.
	providers := resilience.NewRegistry()
	aqService := airquality.NewService(airquality.ServiceConfig{
		Provider: aqowm.NewClient(aqowm.ClientConfig{
			APIKey:     cfg.OpenWeatherMap.APIKey,
			BaseURL:    cfg.OpenWeatherMap.BaseURL,
			HTTPClient: providerClient(aqowm.ProviderName, providers, log),
			Logger:     log,
		}),
		Cache:    cache,
		Logger:   log,
		CacheTTL: cfg.OpenWeatherMap.CacheTTL,
	})
	weatherService := weather.NewService(weather.ServiceConfig{
		Provider: weatherowm.NewClient(weatherowm.ClientConfig{
			APIKey:     cfg.OpenWeatherMap.APIKey,
			BaseURL:    cfg.OpenWeatherMap.BaseURL,
			HTTPClient: providerClient(weatherowm.ProviderName, providers, log),
			Logger:     log,
		}),
		Logger:   log,
		CacheTTL: cfg.OpenWeatherMap.WeatherCacheTTL,
	})
	var geocoder geocoding.Geocoder = geoowm.NewClient(geoowm.ClientConfig{
		APIKey:     cfg.OpenWeatherMap.APIKey,
		BaseURL:    cfg.OpenWeatherMap.GeocodeBaseURL,
		HTTPClient: providerClient(geoowm.ProviderName, providers, log),
		Logger:     log,
	})
	if cfg.OpenWeatherMap.APIKey == "" {
		log.Warn().Msg("OPENWEATHERMAP_API_KEY not set - provider calls will fail")
	}

	mailer := notification.NewSMTPMailer(notification.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, log)

	dispatcher, closeDispatcher := newDispatcher(cfg, mailer, ffService, providers, log)
	defer closeDispatcher()

	sessions := session.NewManager(session.ManagerConfig{
		Source:      aqService,
		Dispatcher:  dispatcher,
		Preferences: prefsService,
		Limits:      ffService,
		Refresh: worker.RefreshConfig{
			Concurrency:  cfg.Scheduler.Concurrency,
			FetchTimeout: cfg.Scheduler.FetchTimeout,
		},
		MaxLocations: cfg.Scheduler.MaxLocations,
		Instruments:  instruments,
		Logger:       log,
	})
	defer sessions.Close()

	if cfg.Reports.Enabled {
		reports := worker.NewReportJob(worker.ReportJobConfig{
			Config: worker.ReportConfig{
				Schedule: cfg.Reports.Schedule,
				Location: cfg.Reports.ReportLocation(),
			},
			Source: sessions,
			Mailer: mailer,
			Flags:  ffService,
			Logger: log,
		})
		if err := reports.Start(); err != nil {
			return err
		}
		defer reports.Stop()
	}

	if cfg.PubSub.ProjectID != "" {
		trigger, err := worker.NewPubSubTrigger(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			Refresher:        sessions,
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

	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		Metrics:            metrics,
		RequireTLS:         cfg.Server.RequireTLS,
		RateLimit:          cfg.Server.RateLimit,
		AuthService:        authService,
		PreferencesService: prefsService,
		AirQualityService:  aqService,
		WeatherService:     weatherService,
		FeatureFlagService: ffService,
		Sessions:           sessions,
		Geocoder:           geocoder,
		Providers:          providers,
		Checks:             checks,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.IsDevelopment() {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	} else {
		log = zerolog.New(os.Stdout)
	}

	return log.Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()
}

func connectDatabase(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	pool, err := database.Connect(ctx, database.Config{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Msg("database connected")

	if cfg.Database.Migrate {
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info().Msg("database schema up to date")
	}
	return pool, nil
}

func providerClient(name string, registry *resilience.Registry, log zerolog.Logger) *resilience.Client {
	cfg := resilience.DefaultClientConfig(name)
	cfg.Registry = registry
	cfg.Logger = log
	return resilience.NewClient(cfg)
}

// newDispatcher builds the alert pipeline over every configured channel.
// Email is always present; without SMTP settings it only logs.
func newDispatcher(cfg *config.Config, mailer notification.Mailer, flags alert.FlagSource, providers *resilience.Registry, log zerolog.Logger) (alert.Dispatcher, func()) {
	channels := alert.Channels{Email: alert.NewEmailDispatcher(mailer)}
	closeFn := func() {}

	if cfg.AlertWebhook.URL != "" {
		channels.Webhook = alert.NewWebhookDispatcher(alert.WebhookConfig{
			URL:        cfg.AlertWebhook.URL,
			Token:      cfg.AlertWebhook.Token,
			HTTPClient: alert.NewWebhookClient(providers, log),
		})
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kd := alert.NewKafkaDispatcher(alert.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic))
		channels.Kafka = kd
		closeFn = func() {
			if err := kd.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close kafka writer")
			}
		}
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.AlertTopic).Msg("kafka alert events enabled")
	}

	return alert.NewPipeline(channels, flags, log), closeFn
}
