// Package handler provides HTTP handlers for the LiveBetter API.
package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/livebetter/livebetter/internal/api/models"
	"github.com/livebetter/livebetter/internal/api/response"
	"github.com/livebetter/livebetter/internal/provider/resilience"
	"github.com/livebetter/livebetter/internal/session"
)

// readinessTimeout bounds each dependency check.
const readinessTimeout = 2 * time.Second

// DependencyCheck pings one backing service.
type DependencyCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// OpsConfig holds the dependencies of the ops endpoints. Every field except
// the build info is optional.
type OpsConfig struct {
	Version   string
	BuildTime string
	Checks    []DependencyCheck
	Providers *resilience.Registry
	Sessions  *session.Manager
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
	now func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg, now: time.Now}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]any{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - 503 unless every dependency answers.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.checkDependencies(r.Context())

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	}
	details := make(map[string]any, len(subsystems))
	for _, s := range subsystems {
		details[s.Name] = s.Status
		if s.Status != models.HealthStatusOK {
			health.Status = models.HealthStatusFail
		}
	}
	if len(details) > 0 {
		health.Details = details
	}

	status := http.StatusOK
	if health.Status != models.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - dependencies, provider breakers
// and refresh sessions.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.now()),
		Subsystems: h.checkDependencies(r.Context()),
		Providers:  h.providers(),
		Sessions:   h.sessionsSummary(),
	}

	for _, s := range status.Subsystems {
		status.Status = worse(status.Status, s.Status)
	}
	for _, p := range status.Providers {
		// A broken provider degrades the service; readings go stale but
		// the API keeps answering.
		if p.Status != models.HealthStatusOK {
			status.Status = worse(status.Status, models.HealthStatusDegraded)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) checkDependencies(ctx context.Context) []models.SubsystemStatus {
	out := make([]models.SubsystemStatus, len(h.cfg.Checks))

	var wg sync.WaitGroup
	for i, check := range h.cfg.Checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
			defer cancel()

			out[i] = models.SubsystemStatus{Name: check.Name, Status: models.HealthStatusOK}
			if err := check.Ping(ctx); err != nil {
				detail := err.Error()
				out[i].Status = models.HealthStatusFail
				out[i].Detail = &detail
			}
		}()
	}
	wg.Wait()

	return out
}

func (h *OpsHandler) providers() []models.ProviderStatus {
	out := make([]models.ProviderStatus, 0)
	if h.cfg.Providers == nil {
		return out
	}

	for _, p := range h.cfg.Providers.All() {
		ps := models.ProviderStatus{
			Provider:            p.Name,
			Status:              providerHealth(p.Status()),
			BreakerState:        p.State.String(),
			ConsecutiveFailures: p.Counts.ConsecutiveFailures,
		}
		if p.LastSuccessAt != nil {
			ps.LastSuccessAt = models.TimestampPtr(*p.LastSuccessAt)
		}
		if p.LastFailureAt != nil {
			ps.LastFailureAt = models.TimestampPtr(*p.LastFailureAt)
		}
		if p.LastError != "" {
			msg := p.LastError
			ps.Message = &msg
		}
		out = append(out, ps)
	}
	return out
}

func (h *OpsHandler) sessionsSummary() models.SessionsSummary {
	summary := models.SessionsSummary{ByState: map[string]int{}}
	if h.cfg.Sessions == nil {
		return summary
	}

	for _, s := range h.cfg.Sessions.Statuses() {
		summary.Active++
		summary.Tracked += s.Tracked
		summary.ByState[s.State.String()]++
	}
	return summary
}

func providerHealth(status string) models.HealthStatus {
	switch status {
	case "ok":
		return models.HealthStatusOK
	case "degraded":
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusFail
	}
}

func worse(a, b models.HealthStatus) models.HealthStatus {
	rank := map[models.HealthStatus]int{
		models.HealthStatusOK:       0,
		models.HealthStatusDegraded: 1,
		models.HealthStatusFail:     2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
