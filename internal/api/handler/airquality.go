package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/livebetter/livebetter/internal/airquality"
	"github.com/livebetter/livebetter/internal/api/models"
	"github.com/livebetter/livebetter/internal/api/response"
	"github.com/livebetter/livebetter/internal/featureflags"
)

// AirQualityHandler serves one-off readings and forecasts.
type AirQualityHandler struct {
	service *airquality.Service
	flags   *featureflags.Service
}

// NewAirQualityHandler creates a new AirQualityHandler. flags may be nil.
func NewAirQualityHandler(service *airquality.Service, flags *featureflags.Service) *AirQualityHandler {
	return &AirQualityHandler{service: service, flags: flags}
}

// Current handles GET /v1/air-quality?lat=&lon=. Readings are served from
// cache when fresh; with the cached_only_air_quality flag set a cache miss is
// reported as unavailable instead of calling the provider.
func (h *AirQualityHandler) Current(w http.ResponseWriter, r *http.Request) {
	q, ok := parseCoordinates(w, r)
	if !ok {
		return
	}

	cachedOnly := h.flags != nil && h.flags.IsCachedOnlyAirQuality(r.Context())
	reading, err := h.service.CurrentReading(r.Context(), q.Lat, q.Lon, cachedOnly)
	if err != nil {
		writeAirQualityError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toAirQuality(reading))
}

// Forecast handles GET /v1/air-quality/forecast?lat=&lon=.
func (h *AirQualityHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	q, ok := parseCoordinates(w, r)
	if !ok {
		return
	}

	forecast, err := h.service.Forecast(r.Context(), q.Lat, q.Lon)
	if err != nil {
		writeAirQualityError(w, r, err)
		return
	}

	hourly := make([]models.AirQuality, len(forecast.Hourly))
	for i := range forecast.Hourly {
		hourly[i] = toAirQuality(&forecast.Hourly[i])
	}

	response.JSON(w, r, http.StatusOK, models.AirQualityForecast{
		Lat:       forecast.Lat,
		Lon:       forecast.Lon,
		Hourly:    hourly,
		FetchedAt: models.Timestamp(forecast.FetchedAt),
		Provider:  forecast.Provider,
	})
}

// History handles GET /v1/air-quality/history?lat=&lon=&days=. days
// defaults to 7 and the window always ends now.
func (h *AirQualityHandler) History(w http.ResponseWriter, r *http.Request) {
	q, ok := parseCoordinates(w, r)
	if !ok {
		return
	}

	hq := models.HistoryQuery{Days: defaultHistoryDays}
	if raw := r.URL.Query().Get("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(w, r, "validation error", []models.FieldError{
				{Field: "days", Message: "must be a whole number", Code: "number"},
			})
			return
		}
		hq.Days = days
	}
	if !validStruct(w, r, hq) {
		return
	}

	end := time.Now().UTC().Truncate(time.Hour)
	start := end.AddDate(0, 0, -hq.Days)
	history, err := h.service.History(r.Context(), q.Lat, q.Lon, start, end)
	if err != nil {
		writeAirQualityError(w, r, err)
		return
	}

	points := make([]models.AirQuality, len(history.Readings))
	for i := range history.Readings {
		points[i] = toAirQuality(&history.Readings[i])
	}

	response.JSON(w, r, http.StatusOK, models.AirQualityHistory{
		Lat:      history.Lat,
		Lon:      history.Lon,
		Start:    models.Timestamp(history.Start),
		End:      models.Timestamp(history.End),
		PeakAQI:  int(history.Peak()),
		Points:   points,
		Provider: history.Provider,
	})
}

const defaultHistoryDays = 7

func parseCoordinates(w http.ResponseWriter, r *http.Request) (models.CoordinatesQuery, bool) {
	var q models.CoordinatesQuery
	var fieldErrors []models.FieldError

	parse := func(name string, dst *float64) {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			fieldErrors = append(fieldErrors, models.FieldError{Field: name, Message: "is required", Code: "required"})
			return
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{Field: name, Message: "must be a number", Code: "number"})
			return
		}
		*dst = v
	}
	parse("lat", &q.Lat)
	parse("lon", &q.Lon)

	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation error", fieldErrors)
		return q, false
	}
	return q, validStruct(w, r, q)
}

func writeAirQualityError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, airquality.ErrInvalidCoordinates), errors.Is(err, airquality.ErrInvalidRange):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, airquality.ErrNoReading):
		response.ServiceUnavailable(w, r, "no cached reading for this location")
	case errors.Is(err, airquality.ErrProviderUnavailable):
		response.BadGateway(w, r, "air quality provider unavailable")
	default:
		response.InternalError(w, r, "failed to fetch air quality")
	}
}

func toAirQuality(reading *airquality.Reading) models.AirQuality {
	pollutants := make(map[string]float64, len(reading.Pollutants))
	for p, v := range reading.Pollutants {
		pollutants[string(p)] = v
	}

	var subIndices map[string]int
	if sub := reading.SubIndices(); len(sub) > 0 {
		subIndices = make(map[string]int, len(sub))
		for p, v := range sub {
			subIndices[string(p)] = v
		}
	}

	return models.AirQuality{
		Lat:        reading.Lat,
		Lon:        reading.Lon,
		AQI:        int(reading.Index),
		Category:   reading.Index.Description(),
		Color:      reading.Index.Color(),
		Pollutants: pollutants,
		SubIndices: subIndices,
		MeasuredAt: models.Timestamp(reading.MeasuredAt),
		FetchedAt:  models.Timestamp(reading.FetchedAt),
		Provider:   reading.Provider,
	}
}
