package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/presenceguard/presenceguard/internal/activity"
	"github.com/presenceguard/presenceguard/internal/api/models"
	"github.com/presenceguard/presenceguard/internal/api/response"
	"github.com/presenceguard/presenceguard/internal/binding"
)

// defaultPageLimit bounds admin list responses when the caller gives none.
const defaultPageLimit = 100

// AdminHandler handles the admin operations on bindings and the audit log.
type AdminHandler struct {
	binding  *binding.Service
	activity activity.Repository
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(bindingService *binding.Service, activityRepo activity.Repository) *AdminHandler {
	return &AdminHandler{binding: bindingService, activity: activityRepo}
}

// ListSwitchRequests handles GET /v1/admin/switch-requests.
// Supports ?status=, ?student=, ?cooldownComplete=true and ?limit= filters.
func (h *AdminHandler) ListSwitchRequests(w http.ResponseWriter, r *http.Request) {
	filter := binding.SwitchRequestFilter{
		StudentID: r.URL.Query().Get("student"),
		Limit:     parseLimit(r.URL.Query().Get("limit")),
	}

	if status := r.URL.Query().Get("status"); status != "" {
		parsed, ok := parseSwitchStatus(status)
		if !ok {
			response.BadRequest(w, r, "invalid status filter", []models.FieldError{
				{Field: "status", Message: "must be one of PENDING, APPROVED, REJECTED, EXPIRED", Code: "INVALID"},
			})
			return
		}
		filter.Status = parsed
	}
	if r.URL.Query().Get("cooldownComplete") == "true" {
		filter.CooldownCompleteBefore = time.Now()
	}

	requests, err := h.binding.ListSwitchRequests(r.Context(), filter)
	if err != nil {
		response.InternalError(w, r, "listing switch requests failed")
		return
	}

	page := models.PagedSwitchRequests{
		Items: make([]models.SwitchRequest, 0, len(requests)),
		Meta:  models.PagedResponseMeta{Limit: filter.Limit},
	}
	for _, req := range requests {
		page.Items = append(page.Items, toSwitchRequestModel(req))
	}
	response.JSON(w, r, http.StatusOK, page)
}

// ApproveSwitch handles POST /v1/admin/switch-requests/{requestId}/approve.
// Approval alone never rebinds; the switch completes on the student's next
// login once the cooldown has also elapsed.
func (h *AdminHandler) ApproveSwitch(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")
	if requestID == "" {
		response.BadRequest(w, r, "requestId is required", nil)
		return
	}

	err := h.binding.ApproveSwitch(r.Context(), requestID, GetUserID(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, binding.ErrRequestNotFound):
			response.NotFound(w, r, "switch request not found")
		case errors.Is(err, binding.ErrInvalidStateTransition):
			response.Conflict(w, r, "switch request is not pending")
		default:
			response.InternalError(w, r, "approving switch request failed")
		}
		return
	}
	response.NoContent(w, r)
}

// RejectSwitch handles POST /v1/admin/switch-requests/{requestId}/reject.
func (h *AdminHandler) RejectSwitch(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")
	if requestID == "" {
		response.BadRequest(w, r, "requestId is required", nil)
		return
	}

	var input models.SwitchRejectRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.Reason == "" {
		response.BadRequest(w, r, "reason is required", []models.FieldError{
			{Field: "reason", Message: "required", Code: "REQUIRED"},
		})
		return
	}

	err := h.binding.RejectSwitch(r.Context(), requestID, GetUserID(r.Context()), input.Reason)
	if err != nil {
		switch {
		case errors.Is(err, binding.ErrRequestNotFound):
			response.NotFound(w, r, "switch request not found")
		case errors.Is(err, binding.ErrInvalidStateTransition):
			response.Conflict(w, r, "switch request is not pending")
		default:
			response.InternalError(w, r, "rejecting switch request failed")
		}
		return
	}
	response.NoContent(w, r)
}

// EmergencyActivate handles POST /v1/admin/devices/emergency-activate.
// Bypasses both switch gates and always leaves an audit trail.
func (h *AdminHandler) EmergencyActivate(w http.ResponseWriter, r *http.Request) {
	var input models.EmergencyActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	var fieldErrors []models.FieldError
	if input.StudentID == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "studentId", Message: "required", Code: "REQUIRED"})
	}
	if input.DeviceFingerprint == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "deviceFingerprint", Message: "required", Code: "REQUIRED"})
	}
	if input.Reason == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "reason", Message: "required", Code: "REQUIRED"})
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid emergency activation request", fieldErrors)
		return
	}

	device, err := h.binding.EmergencyActivate(r.Context(), input.StudentID, input.DeviceFingerprint, GetUserID(r.Context()), input.Reason)
	if err != nil {
		response.InternalError(w, r, "emergency activation failed")
		return
	}
	response.JSON(w, r, http.StatusOK, toDeviceModel(device))
}

// ListActivity handles GET /v1/admin/activity - the audit log read view.
// Supports ?student=, ?fingerprint=, ?type=, ?from=, ?to= and ?limit=.
func (h *AdminHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	filter := activity.Filter{
		StudentID:         r.URL.Query().Get("student"),
		DeviceFingerprint: r.URL.Query().Get("fingerprint"),
		Type:              r.URL.Query().Get("type"),
		Limit:             parseLimit(r.URL.Query().Get("limit")),
	}

	if from := r.URL.Query().Get("from"); from != "" {
		parsed, err := time.Parse(time.RFC3339, from)
		if err != nil {
			response.BadRequest(w, r, "invalid from filter", []models.FieldError{
				{Field: "from", Message: "must be an RFC3339 timestamp", Code: "INVALID"},
			})
			return
		}
		filter.From = parsed
	}
	if to := r.URL.Query().Get("to"); to != "" {
		parsed, err := time.Parse(time.RFC3339, to)
		if err != nil {
			response.BadRequest(w, r, "invalid to filter", []models.FieldError{
				{Field: "to", Message: "must be an RFC3339 timestamp", Code: "INVALID"},
			})
			return
		}
		filter.To = parsed
	}

	entries, err := h.activity.List(r.Context(), filter)
	if err != nil {
		response.InternalError(w, r, "listing activity failed")
		return
	}

	page := models.PagedActivity{
		Items: make([]models.ActivityEntry, 0, len(entries)),
		Meta:  models.PagedResponseMeta{Limit: filter.Limit},
	}
	for _, entry := range entries {
		page.Items = append(page.Items, models.ActivityEntry{
			ID:                entry.ID,
			StudentID:         entry.StudentID,
			DeviceFingerprint: entry.DeviceFingerprint,
			Type:              entry.Type,
			Actor:             entry.Actor,
			Reason:            entry.Reason,
			At:                models.Timestamp(entry.At),
		})
	}
	response.JSON(w, r, http.StatusOK, page)
}

func parseSwitchStatus(status string) (binding.SwitchStatus, bool) {
	switch models.SwitchRequestStatus(status) {
	case models.SwitchStatusPending:
		return binding.SwitchPending, true
	case models.SwitchStatusApproved:
		return binding.SwitchApproved, true
	case models.SwitchStatusRejected:
		return binding.SwitchRejected, true
	case models.SwitchStatusExpired:
		return binding.SwitchExpired, true
	default:
		return "", false
	}
}

func parseLimit(raw string) int {
	if raw == "" {
		return defaultPageLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > defaultPageLimit {
		return defaultPageLimit
	}
	return limit
}
