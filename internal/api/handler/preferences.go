package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/livebetter/livebetter/internal/api/models"
	"github.com/livebetter/livebetter/internal/api/response"
	"github.com/livebetter/livebetter/internal/preferences"
)

// PreferencesHandler handles the caller's refresh and alert preferences.
type PreferencesHandler struct {
	service  *preferences.Service
	sessions *Sessions
	logger   zerolog.Logger
}

// NewPreferencesHandler creates a new PreferencesHandler.
func NewPreferencesHandler(service *preferences.Service, sessions *Sessions, logger zerolog.Logger) *PreferencesHandler {
	return &PreferencesHandler{
		service:  service,
		sessions: sessions,
		logger:   logger.With().Str("component", "preferences_handler").Logger(),
	}
}

// Get handles GET /v1/me/preferences.
func (h *PreferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	p, err := h.service.Get(r.Context(), userID)
	if err != nil {
		response.InternalError(w, r, "failed to load preferences")
		return
	}

	response.JSON(w, r, http.StatusOK, toPreferences(p))
}

// Update handles PUT /v1/me/preferences. The stored preferences change first;
// a running session then adopts them, re-arming its timer when the interval
// changed.
func (h *PreferencesHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var input models.PreferencesInput
	if !decodeJSON(w, r, &input) {
		return
	}

	update := preferences.Update{
		AlertThreshold: input.AlertThreshold,
		AlertsEnabled:  input.AlertsEnabled,
		WeeklyReports:  input.WeeklyReports,
	}
	if input.RefreshIntervalSeconds != nil {
		interval := time.Duration(*input.RefreshIntervalSeconds) * time.Second
		update.RefreshInterval = &interval
	}

	p, err := h.service.Update(r.Context(), userID, update)
	if err != nil {
		if errors.Is(err, preferences.ErrInvalidThreshold) {
			response.BadRequest(w, r, err.Error(), []models.FieldError{
				{Field: "alertThreshold", Message: err.Error(), Code: "range"},
			})
			return
		}
		response.InternalError(w, r, "failed to save preferences")
		return
	}

	if sess, ok := h.sessions.Lookup(userID); ok {
		if err := sess.UpdatePreferences(p); err != nil {
			h.logger.Error().Err(err).Str("user_id", userID).Msg("applying preferences to session")
		}
	}

	response.JSON(w, r, http.StatusOK, toPreferences(p))
}

func toPreferences(p preferences.Preferences) models.Preferences {
	return models.Preferences{
		RefreshIntervalSeconds: int64(p.RefreshInterval / time.Second),
		AlertThreshold:         p.AlertThreshold,
		AlertsEnabled:          p.AlertsEnabled,
		WeeklyReports:          p.WeeklyReports,
		UpdatedAt:              models.TimestampPtr(p.UpdatedAt),
	}
}
