package handler

import (
	"errors"
	"net/http"
	"sort"

	"github.com/rs/zerolog"

	"github.com/livebetter/livebetter/internal/api/response"
	"github.com/livebetter/livebetter/internal/featureflags"
)

// FeatureFlagsHandler handles feature flag endpoints.
type FeatureFlagsHandler struct {
	service *featureflags.Service
	logger  zerolog.Logger
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service *featureflags.Service, logger zerolog.Logger) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{
		service: service,
		logger:  logger.With().Str("component", "feature_flags_handler").Logger(),
	}
}

// ListFeatureFlags handles GET /v1/admin/feature-flags - every flag with its effective value.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	flags := h.service.GetAllFlags(r.Context())

	list := featureflags.FlagList{Items: make([]featureflags.Flag, 0, len(flags))}
	for _, f := range flags {
		list.Items = append(list.Items, *f)
	}
	sort.Slice(list.Items, func(i, j int) bool { return list.Items[i].Key < list.Items[j].Key })

	response.JSON(w, r, http.StatusOK, list)
}

// UpdateFeatureFlags handles PATCH /v1/admin/feature-flags - set several flags at once.
func (h *FeatureFlagsHandler) UpdateFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var req featureflags.FlagUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Updates) == 0 {
		response.BadRequest(w, r, "updates must not be empty", nil)
		return
	}

	flags := make([]*featureflags.Flag, len(req.Updates))
	for i, u := range req.Updates {
		flags[i] = &featureflags.Flag{Key: u.Key, Value: u.Value}
	}

	if err := h.service.SetFlags(r.Context(), flags); err != nil {
		if errors.Is(err, featureflags.ErrUnknownFlag) || errors.Is(err, featureflags.ErrInvalidFlagValue) {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
		response.InternalError(w, r, "failed to update feature flags")
		return
	}

	keys := make([]string, len(flags))
	for i, f := range flags {
		keys[i] = f.Key
	}
	h.logger.Info().
		Str("user_id", GetUserID(r.Context())).
		Strs("flags", keys).
		Str("reason", req.Reason).
		Msg("feature flags updated")

	h.ListFeatureFlags(w, r)
}

// InvalidateCache handles POST /v1/admin/feature-flags/invalidate - drop cached flags.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	response.NoContent(w, r)
}
