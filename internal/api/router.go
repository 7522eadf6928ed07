// Package api provides the HTTP API for LiveBetter.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/livebetter/livebetter/internal/airquality"
	"github.com/livebetter/livebetter/internal/api/handler"
	"github.com/livebetter/livebetter/internal/api/middleware"
	"github.com/livebetter/livebetter/internal/auth"
	"github.com/livebetter/livebetter/internal/featureflags"
	"github.com/livebetter/livebetter/internal/geocoding"
	"github.com/livebetter/livebetter/internal/preferences"
	"github.com/livebetter/livebetter/internal/provider/resilience"
	"github.com/livebetter/livebetter/internal/session"
	"github.com/livebetter/livebetter/internal/weather"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version    string
	BuildTime  string
	Logger     zerolog.Logger
	Metrics    *middleware.Metrics
	RequireTLS bool

	// RateLimit is the per-user request budget per minute for authenticated
	// routes. Zero keeps middleware.StandardRateLimit.
	RateLimit int

	AuthService        *auth.Service
	PreferencesService *preferences.Service
	AirQualityService  *airquality.Service
	WeatherService     *weather.Service
	FeatureFlagService *featureflags.Service
	Sessions           *session.Manager

	// Geocoder enables adding tracked locations by place name. Optional.
	Geocoder geocoding.Geocoder

	// Providers and Checks feed the ops endpoints. Optional.
	Providers *resilience.Registry
	Checks    []handler.DependencyCheck
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID) // Generate/propagate request ID first
	r.Use(middleware.Tracing()) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement behind a proxy
	r.Use(middleware.RequireJSON)                // Reject non-JSON request bodies
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	sessions := handler.NewSessions(cfg.Sessions, cfg.AuthService)

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Checks:    cfg.Checks,
		Providers: cfg.Providers,
		Sessions:  cfg.Sessions,
	})
	authHandler := handler.NewAuthHandler(cfg.AuthService, sessions)
	preferencesHandler := handler.NewPreferencesHandler(cfg.PreferencesService, sessions, cfg.Logger)
	trackingHandler := handler.NewTrackingHandler(sessions, cfg.Geocoder)
	airQualityHandler := handler.NewAirQualityHandler(cfg.AirQualityService, cfg.FeatureFlagService)
	weatherHandler := handler.NewWeatherHandler(cfg.WeatherService, cfg.AirQualityService, cfg.Logger)
	featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.FeatureFlagService, cfg.Logger)

	// Create auth middleware
	authMiddleware := middleware.Auth(cfg.AuthService)

	// Create rate limit middleware for different endpoint categories
	authRateLimit := middleware.RateLimitByIP(middleware.AuthRateLimit)         // 10 req/min
	refreshRateLimit := middleware.RateLimitByUser(middleware.RefreshRateLimit) // 6 req/min

	standardLimit := middleware.StandardRateLimit // 100 req/min
	if cfg.RateLimit > 0 {
		standardLimit = middleware.PerMinute(cfg.RateLimit)
	}
	standardRateLimit := middleware.RateLimitByUser(standardLimit)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Auth endpoints (public) - strict rate limiting
		r.Route("/auth", func(r chi.Router) {
			r.Use(authRateLimit)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.RefreshToken)
			r.Post("/logout", authHandler.Logout)
			// logout-all requires authentication
			r.With(authMiddleware).Post("/logout-all", authHandler.LogoutAll)
		})

		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Authenticated endpoints - user-based rate limiting
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(standardRateLimit)

			r.Route("/me", func(r chi.Router) {
				r.Get("/", authHandler.GetMe)
				r.Patch("/", authHandler.UpdateMe)
				r.Get("/preferences", preferencesHandler.Get)
				r.Put("/preferences", preferencesHandler.Update)
			})

			r.Route("/tracked-locations", func(r chi.Router) {
				r.Get("/", trackingHandler.List)
				r.Post("/", trackingHandler.Add)
				r.With(refreshRateLimit).Post("/refresh", trackingHandler.Refresh)
				r.Delete("/{index}", trackingHandler.Remove)
			})

			r.Route("/air-quality", func(r chi.Router) {
				r.Get("/", airQualityHandler.Current)
				r.Get("/forecast", airQualityHandler.Forecast)
				r.Get("/history", airQualityHandler.History)
			})

			r.Get("/weather", weatherHandler.Get)

			// Feature flags management
			r.Route("/admin/feature-flags", func(r chi.Router) {
				r.Get("/", featureFlagsHandler.ListFeatureFlags)
				r.Patch("/", featureFlagsHandler.UpdateFeatureFlags)
				r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
			})
		})
	})

	return r
}
