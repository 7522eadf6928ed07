// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DevSigningKey is used when JWT_SIGNING_KEY is unset outside production.
const DevSigningKey = "local-dev-signing-key-change-in-production"

// ErrMissingSigningKey is returned when production runs without a JWT key.
var ErrMissingSigningKey = errors.New("JWT_SIGNING_KEY is required in production")

// Config is the full process configuration.
type Config struct {
	Environment string
	LogLevel    string

	Server         ServerConfig
	Auth           AuthConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	Kafka          KafkaConfig
	SMTP           SMTPConfig
	AlertWebhook   WebhookConfig
	OpenWeatherMap OpenWeatherMapConfig
	Scheduler      SchedulerConfig
	Telemetry      TelemetryConfig
	PubSub         PubSubConfig
	Reports        ReportsConfig
	Worker         WorkerConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimit       int // requests per minute per client

	// RequireTLS rejects requests that did not arrive over HTTPS.
	RequireTLS bool
}

// AuthConfig configures JWT issuing and token lifetimes.
type AuthConfig struct {
	SigningKey      string
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// DatabaseConfig configures Postgres. An empty URL selects in-memory repositories.
type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
	Migrate         bool
}

// RedisConfig configures the shared reading cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig configures alert events. No brokers disables the dispatcher.
type KafkaConfig struct {
	Brokers    []string
	AlertTopic string
}

// SMTPConfig configures outgoing email. No host means log-only delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// WebhookConfig configures the alert webhook relay. Empty URL disables it.
type WebhookConfig struct {
	URL   string
	Token string
}

// OpenWeatherMapConfig configures the air quality, weather and geocoding provider.
type OpenWeatherMapConfig struct {
	APIKey          string
	BaseURL         string
	GeocodeBaseURL  string
	CacheTTL        time.Duration
	WeatherCacheTTL time.Duration
}

// SchedulerConfig configures refresh passes.
type SchedulerConfig struct {
	Concurrency  int
	FetchTimeout time.Duration
	MaxLocations int
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRatio  float64
}

// PubSubConfig configures remote refresh triggers. Empty project disables them.
type PubSubConfig struct {
	ProjectID    string
	Subscription string
}

// ReportsConfig configures the weekly report job.
type ReportsConfig struct {
	Enabled  bool
	Schedule string
	Timezone string
}

// WorkerConfig configures the headless monitor binary.
type WorkerConfig struct {
	// Locations is the raw name|lat|lon;... list.
	Locations  string
	AlertEmail string
	UserID     string
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env is optional

	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:            getEnv("APP_PORT", "8080"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			RateLimit:       getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
			RequireTLS:      getEnvAsBool("REQUIRE_TLS", false),
		},
		Auth: AuthConfig{
			SigningKey:      getEnv("JWT_SIGNING_KEY", ""),
			Issuer:          getEnv("JWT_ISSUER", "https://api.livebetter.app"),
			Audience:        getEnv("JWT_AUDIENCE", "livebetter-api"),
			AccessTokenTTL:  getEnvAsDuration("ACCESS_TOKEN_TTL", time.Hour),
			RefreshTokenTTL: getEnvAsDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			Migrate:         getEnvAsBool("DB_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:    getEnvAsSlice("KAFKA_BROKERS", nil),
			AlertTopic: getEnv("KAFKA_ALERT_TOPIC", "aqi-alerts"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "alerts@livebetter.app"),
		},
		AlertWebhook: WebhookConfig{
			URL:   getEnv("ALERT_WEBHOOK_URL", ""),
			Token: getEnv("ALERT_WEBHOOK_TOKEN", ""),
		},
		OpenWeatherMap: OpenWeatherMapConfig{
			APIKey:          getEnv("OPENWEATHERMAP_API_KEY", ""),
			BaseURL:         getEnv("OPENWEATHERMAP_BASE_URL", ""),
			GeocodeBaseURL:  getEnv("OPENWEATHERMAP_GEOCODE_BASE_URL", ""),
			CacheTTL:        getEnvAsDuration("AIR_QUALITY_CACHE_TTL", 10*time.Minute),
			WeatherCacheTTL: getEnvAsDuration("WEATHER_CACHE_TTL", 15*time.Minute),
		},
		Scheduler: SchedulerConfig{
			Concurrency:  getEnvAsInt("REFRESH_CONCURRENCY", 4),
			FetchTimeout: getEnvAsDuration("REFRESH_FETCH_TIMEOUT", 0),
			MaxLocations: getEnvAsInt("MAX_TRACKED_LOCATIONS", 50),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getEnvAsBool("OTEL_ENABLED", false),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRatio:  getEnvAsFloat("OTEL_SAMPLE_RATIO", 1),
		},
		PubSub: PubSubConfig{
			ProjectID:    getEnv("PUBSUB_PROJECT_ID", ""),
			Subscription: getEnv("PUBSUB_SUBSCRIPTION", "livebetter-refresh"),
		},
		Reports: ReportsConfig{
			Enabled:  getEnvAsBool("WEEKLY_REPORTS_ENABLED", true),
			Schedule: getEnv("WEEKLY_REPORT_SCHEDULE", "0 8 * * 1"),
			Timezone: getEnv("WEEKLY_REPORT_TZ", "UTC"),
		},
		Worker: WorkerConfig{
			Locations:  getEnv("WORKER_LOCATIONS", ""),
			AlertEmail: getEnv("WORKER_ALERT_EMAIL", ""),
			UserID:     getEnv("WORKER_USER_ID", "worker"),
		},
	}

	if cfg.Auth.SigningKey == "" {
		if cfg.Environment == "production" {
			return nil, ErrMissingSigningKey
		}
		cfg.Auth.SigningKey = DevSigningKey
	}

	if _, err := time.LoadLocation(cfg.Reports.Timezone); err != nil {
		return nil, fmt.Errorf("invalid WEEKLY_REPORT_TZ: %w", err)
	}

	return cfg, nil
}

// ReportLocation resolves the report timezone. FromEnv has already validated it.
func (c ReportsConfig) ReportLocation() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
