// Package handler provides HTTP handlers for the PresenceGuard API.
package handler

import (
	"net/http"
	"time"

	"github.com/presenceguard/presenceguard/internal/api/models"
	"github.com/presenceguard/presenceguard/internal/api/response"
	"github.com/presenceguard/presenceguard/internal/featureflags"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	flags     *featureflags.Service
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(version, buildTime string, flags *featureflags.Service) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		flags:     flags,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem and kill-switch status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	now := models.Timestamp(time.Now())
	status := models.SystemStatus{
		Status: models.HealthStatusOK,
		Time:   now,
		Subsystems: []models.SubsystemStatus{
			{Name: "postgres", Status: models.HealthStatusOK},
			{Name: "redis", Status: models.HealthStatusOK},
			{Name: "pubsub", Status: models.HealthStatusOK},
		},
		ActiveDegradationFlags: h.activeDegradationFlags(r),
	}
	if len(status.ActiveDegradationFlags) > 0 {
		status.Status = models.HealthStatusDegraded
	}
	response.JSON(w, r, http.StatusOK, status)
}

// activeDegradationFlags lists the kill switches currently switched on.
func (h *OpsHandler) activeDegradationFlags(r *http.Request) []string {
	if h.flags == nil {
		return nil
	}

	var active []string
	for _, key := range []string{
		featureflags.FlagDisableBeaconScoring,
		featureflags.FlagDisableScanSubmission,
		featureflags.FlagDisableSessionCache,
		featureflags.FlagDisableSwitchExpirySweep,
	} {
		if h.flags.IsEnabled(r.Context(), key) {
			active = append(active, key)
		}
	}
	return active
}
