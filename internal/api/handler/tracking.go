package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/livebetter/livebetter/internal/api/models"
	"github.com/livebetter/livebetter/internal/api/response"
	"github.com/livebetter/livebetter/internal/geocoding"
	"github.com/livebetter/livebetter/internal/session"
	"github.com/livebetter/livebetter/internal/tracking"
	"github.com/livebetter/livebetter/internal/worker"
)

// TrackingHandler handles the tracked location collection of the caller.
type TrackingHandler struct {
	sessions *Sessions
	geocoder geocoding.Geocoder
}

// NewTrackingHandler creates a new TrackingHandler. geocoder may be nil, in
// which case locations must be added by coordinates and name.
func NewTrackingHandler(sessions *Sessions, geocoder geocoding.Geocoder) *TrackingHandler {
	return &TrackingHandler{sessions: sessions, geocoder: geocoder}
}

// List handles GET /v1/tracked-locations.
func (h *TrackingHandler) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessions.sessionFor(w, r)
	if !ok {
		return
	}

	response.JSON(w, r, http.StatusOK, toTrackedLocationList(sess))
}

// Add handles POST /v1/tracked-locations. A new entry returns 201; a
// location that is already tracked returns the existing entry with 200.
func (h *TrackingHandler) Add(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessions.sessionFor(w, r)
	if !ok {
		return
	}

	var input models.TrackedLocationInput
	if !decodeJSON(w, r, &input) {
		return
	}

	candidate, ok := h.candidate(w, r, input)
	if !ok {
		return
	}

	entry, added, err := sess.AddTrackedLocation(r.Context(), candidate)
	if err != nil {
		switch {
		case errors.Is(err, tracking.ErrInvalidCandidate):
			response.BadRequest(w, r, err.Error(), nil)
		case errors.Is(err, tracking.ErrStoreFull):
			response.Unprocessable(w, r, "tracked location limit reached")
		default:
			response.InternalError(w, r, "failed to add tracked location")
		}
		return
	}

	index := indexOf(sess.TrackedLocations(), entry.Identity())
	body := toTrackedLocation(index, entry)
	if !added {
		response.JSON(w, r, http.StatusOK, body)
		return
	}
	response.Created(w, r, fmt.Sprintf("/v1/tracked-locations/%d", index), body)
}

// candidate builds a tracking candidate from the request, geocoding a query
// or naming bare coordinates when a geocoder is configured.
func (h *TrackingHandler) candidate(w http.ResponseWriter, r *http.Request, in models.TrackedLocationInput) (tracking.Candidate, bool) {
	name := strings.TrimSpace(in.Name)

	if in.HasCoordinates() {
		c := tracking.Candidate{
			Name:        name,
			Coordinates: tracking.Coordinates{Lat: *in.Lat, Lon: *in.Lon},
			Country:     in.Country,
		}
		if c.Name == "" && h.geocoder != nil {
			if place, err := h.geocoder.Reverse(r.Context(), c.Coordinates.Lat, c.Coordinates.Lon); err == nil {
				c.Name, c.Country = place.Name, place.Country
			}
		}
		if c.Name == "" {
			response.BadRequest(w, r, "validation error", []models.FieldError{
				{Field: "name", Message: "is required when no place can be resolved", Code: "required"},
			})
			return tracking.Candidate{}, false
		}
		return c, true
	}

	if in.Lat != nil || in.Lon != nil {
		response.BadRequest(w, r, "validation error", []models.FieldError{
			{Field: "lat", Message: "lat and lon must be supplied together", Code: "required_with"},
		})
		return tracking.Candidate{}, false
	}

	query := strings.TrimSpace(in.Query)
	if query == "" {
		response.BadRequest(w, r, "validation error", []models.FieldError{
			{Field: "query", Message: "query or lat and lon is required", Code: "required"},
		})
		return tracking.Candidate{}, false
	}
	if h.geocoder == nil {
		response.BadRequest(w, r, "place search is not available; supply lat and lon", nil)
		return tracking.Candidate{}, false
	}

	place, err := h.resolve(r.Context(), query)
	if err != nil {
		if errors.Is(err, geocoding.ErrPlaceNotFound) {
			response.NotFound(w, r, fmt.Sprintf("no place matches %q", query))
			return tracking.Candidate{}, false
		}
		response.BadGateway(w, r, "place search failed")
		return tracking.Candidate{}, false
	}

	if name == "" {
		name = place.Name
	}
	return tracking.Candidate{
		Name:        name,
		Coordinates: tracking.Coordinates{Lat: place.Lat, Lon: place.Lon},
		Country:     place.Country,
	}, true
}

func (h *TrackingHandler) resolve(ctx context.Context, query string) (*geocoding.Place, error) {
	return geocoding.Resolve(ctx, h.geocoder, query)
}

// Remove handles DELETE /v1/tracked-locations/{index}. An index outside the
// collection is ignored and still answers 204.
func (h *TrackingHandler) Remove(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessions.sessionFor(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		response.BadRequest(w, r, "index must be an integer", nil)
		return
	}

	sess.RemoveTrackedLocation(index)
	response.NoContent(w, r)
}

// Refresh handles POST /v1/tracked-locations/refresh. A request made while a
// pass is running waits for that pass and returns its result.
func (h *TrackingHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessions.sessionFor(w, r)
	if !ok {
		return
	}

	result, err := sess.RefreshNow(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, worker.ErrSchedulerStopped):
			response.ServiceUnavailable(w, r, "refresh scheduler is stopped")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			response.ServiceUnavailable(w, r, "refresh did not complete")
		default:
			response.InternalError(w, r, "refresh failed")
		}
		return
	}

	response.JSON(w, r, http.StatusOK, toRefreshResult(result))
}

func indexOf(entries []tracking.TrackedLocation, id tracking.Identity) int {
	for i := range entries {
		if entries[i].Identity() == id {
			return i
		}
	}
	return -1
}

func toTrackedLocationList(sess *session.Session) models.TrackedLocationList {
	entries := sess.TrackedLocations()
	items := make([]models.TrackedLocation, len(entries))
	for i, e := range entries {
		items[i] = toTrackedLocation(i, e)
	}

	status := sess.Status()
	m := status.Metrics
	scheduler := models.SchedulerStatus{
		State:             m.State.String(),
		IntervalSeconds:   int64(m.Interval.Seconds()),
		Passes:            m.Passes,
		CoalescedRequests: m.CoalescedRequests,
		SkippedTicks:      m.SkippedTicks,
		LastPassAt:        models.TimestampPtr(m.LastPassAt),
		LastErrorCount:    m.LastErrorCount,
	}
	if m.LastResult != nil {
		last := toRefreshResult(m.LastResult)
		scheduler.LastResult = &last
	}

	return models.TrackedLocationList{Items: items, Scheduler: scheduler}
}

func toTrackedLocation(index int, e tracking.TrackedLocation) models.TrackedLocation {
	var pollutants map[string]float64
	if len(e.Pollutants) > 0 {
		pollutants = make(map[string]float64, len(e.Pollutants))
		for p, v := range e.Pollutants {
			pollutants[string(p)] = v
		}
	}

	return models.TrackedLocation{
		Index:         index,
		Name:          e.Name,
		Lat:           e.Coordinates.Lat,
		Lon:           e.Coordinates.Lon,
		Country:       e.Country,
		AQI:           int(e.CurrentIndex),
		Category:      e.CurrentIndex.Description(),
		Color:         e.CurrentIndex.Color(),
		Pollutants:    pollutants,
		Initialized:   e.Initialized,
		Stale:         e.Stale,
		LastError:     e.LastError,
		LastUpdatedAt: models.TimestampPtr(e.LastUpdatedAt),
		AddedAt:       models.Timestamp(e.AddedAt),
	}
}

func toRefreshResult(r *worker.RefreshResult) models.RefreshResult {
	out := models.RefreshResult{
		Trigger:          string(r.Trigger),
		StartedAt:        models.Timestamp(r.StartedAt),
		DurationSeconds:  r.Duration.Seconds(),
		Total:            r.Total,
		Updated:          r.Updated,
		Failed:           r.Failed,
		Discarded:        r.Discarded,
		AlertsDispatched: r.AlertsDispatched,
		Coalesced:        r.Coalesced,
	}
	for _, e := range r.Errors {
		out.Errors = append(out.Errors, models.RefreshEntryError{
			Location: e.Location,
			Lat:      e.Lat,
			Lon:      e.Lon,
			Error:    e.Error,
		})
	}
	return out
}
