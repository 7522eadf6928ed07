package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/livebetter/livebetter/internal/airquality"
	"github.com/livebetter/livebetter/internal/api/models"
	"github.com/livebetter/livebetter/internal/api/response"
	"github.com/livebetter/livebetter/internal/weather"
)

// WeatherHandler serves current weather with the hourly outlook.
type WeatherHandler struct {
	weather    *weather.Service
	airQuality *airquality.Service
	logger     zerolog.Logger
}

// NewWeatherHandler creates a new WeatherHandler. airQuality may be nil, in
// which case hours carry no forecast index.
func NewWeatherHandler(w *weather.Service, airQuality *airquality.Service, logger zerolog.Logger) *WeatherHandler {
	return &WeatherHandler{
		weather:    w,
		airQuality: airQuality,
		logger:     logger.With().Str("component", "weather_handler").Logger(),
	}
}

// Get handles GET /v1/weather?lat=&lon=. Each hour is annotated with the
// forecast air quality index for the same hour when one is available. A
// failed forecast lookup drops the annotation, not the response.
func (h *WeatherHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.weather == nil {
		response.ServiceUnavailable(w, r, "weather is not configured")
		return
	}

	q, ok := parseCoordinates(w, r)
	if !ok {
		return
	}

	report, err := h.weather.Report(r.Context(), q.Lat, q.Lon)
	if err != nil {
		switch {
		case errors.Is(err, weather.ErrInvalidCoordinates):
			response.BadRequest(w, r, err.Error(), nil)
		case errors.Is(err, weather.ErrProviderUnavailable):
			response.BadGateway(w, r, "weather provider unavailable")
		default:
			response.InternalError(w, r, "failed to fetch weather")
		}
		return
	}

	forecastAQI := h.forecastByHour(r, q)

	hourly := make([]models.WeatherHour, len(report.Hourly))
	for i := range report.Hourly {
		hour := &report.Hourly[i]
		hourly[i] = models.WeatherHour{WeatherConditions: toWeatherConditions(hour)}
		if aqi, ok := forecastAQI[hour.Time.Truncate(time.Hour).Unix()]; ok {
			hourly[i].AQI = &aqi
		}
	}

	response.JSON(w, r, http.StatusOK, models.Weather{
		Lat:           report.Lat,
		Lon:           report.Lon,
		Current:       toWeatherConditions(&report.Current),
		Hourly:        hourly,
		StagnantHours: report.StagnantHours(),
		FetchedAt:     models.Timestamp(report.FetchedAt),
		Provider:      report.Provider,
	})
}

func (h *WeatherHandler) forecastByHour(r *http.Request, q models.CoordinatesQuery) map[int64]int {
	if h.airQuality == nil {
		return nil
	}

	forecast, err := h.airQuality.Forecast(r.Context(), q.Lat, q.Lon)
	if err != nil {
		h.logger.Warn().Err(err).Msg("air quality forecast unavailable for weather outlook")
		return nil
	}

	byHour := make(map[int64]int, len(forecast.Hourly))
	for i := range forecast.Hourly {
		byHour[forecast.Hourly[i].MeasuredAt.Truncate(time.Hour).Unix()] = int(forecast.Hourly[i].Index)
	}
	return byHour
}

func toWeatherConditions(c *weather.Conditions) models.WeatherConditions {
	return models.WeatherConditions{
		Time:          models.Timestamp(c.Time),
		Temperature:   c.Temperature,
		FeelsLike:     c.FeelsLike,
		Humidity:      c.Humidity,
		Pressure:      c.Pressure,
		WindSpeed:     c.WindSpeed,
		WindDirection: c.WindDirection,
		Rain:          c.Rain,
		Condition:     string(c.Condition),
		Description:   c.Description,
		Icon:          c.Icon,
	}
}
