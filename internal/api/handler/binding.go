package handler

import (
	"encoding/json"
	"net/http"

	"github.com/presenceguard/presenceguard/internal/api/models"
	"github.com/presenceguard/presenceguard/internal/api/response"
	"github.com/presenceguard/presenceguard/internal/binding"
)

// BindingHandler handles device binding endpoints.
type BindingHandler struct {
	binding *binding.Service
}

// NewBindingHandler creates a new BindingHandler.
func NewBindingHandler(bindingService *binding.Service) *BindingHandler {
	return &BindingHandler{binding: bindingService}
}

// Login handles POST /v1/bindings/login - register a login from a device.
func (h *BindingHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.DeviceFingerprint == "" {
		response.BadRequest(w, r, "deviceFingerprint is required", []models.FieldError{
			{Field: "deviceFingerprint", Message: "required", Code: "REQUIRED"},
		})
		return
	}

	studentID := GetUserID(r.Context())
	outcome, err := h.binding.RegisterLogin(r.Context(), studentID, input.DeviceFingerprint)
	if err != nil {
		response.InternalError(w, r, "login registration failed")
		return
	}

	response.JSON(w, r, http.StatusOK, toLoginResponse(outcome))
}

// toLoginResponse converts a binding login outcome to the API model.
func toLoginResponse(outcome *binding.LoginOutcome) models.LoginResponse {
	resp := models.LoginResponse{Outcome: toOutcomeModel(outcome.Kind)}
	if outcome.Device != nil {
		device := toDeviceModel(outcome.Device)
		resp.Device = &device
	}
	if outcome.Request != nil {
		request := toSwitchRequestModel(outcome.Request)
		resp.SwitchRequest = &request
	}
	return resp
}

func toOutcomeModel(kind binding.LoginOutcomeKind) models.LoginOutcome {
	switch kind {
	case binding.LoginActivatedFirstDevice:
		return models.OutcomeActivatedFirstDevice
	case binding.LoginFullAccess:
		return models.OutcomeFullAccess
	case binding.LoginLimitedAccess:
		return models.OutcomeLimitedAccess
	case binding.LoginAwaitingApproval:
		return models.OutcomeAwaitingApproval
	case binding.LoginSwitchCompleted:
		return models.OutcomeSwitchCompleted
	default:
		return models.LoginOutcome(kind)
	}
}

// toDeviceModel converts a binding device to the API model.
func toDeviceModel(device *binding.Device) models.Device {
	m := models.Device{
		ID:          device.ID,
		StudentID:   device.StudentID,
		Fingerprint: device.Fingerprint,
		Bound:       device.Bound,
		ActivatedAt: models.Timestamp(device.ActivatedAt),
	}
	if device.DeactivatedAt != nil {
		t := models.Timestamp(*device.DeactivatedAt)
		m.DeactivatedAt = &t
	}
	if device.BindingExpiresAt != nil {
		t := models.Timestamp(*device.BindingExpiresAt)
		m.BindingExpiresAt = &t
	}
	return m
}

// toSwitchRequestModel converts a switch request to the API model.
func toSwitchRequestModel(req *binding.SwitchRequest) models.SwitchRequest {
	m := models.SwitchRequest{
		ID:                 req.ID,
		StudentID:          req.StudentID,
		OldFingerprint:     req.OldFingerprint,
		NewFingerprint:     req.NewFingerprint,
		RequestedAt:        models.Timestamp(req.RequestedAt),
		CooldownCompleteAt: models.Timestamp(req.CooldownCompleteAt),
		AdminApproved:      req.AdminApproved,
		ApprovedBy:         req.ApprovedBy,
		Status:             toSwitchStatusModel(req.Status),
		RejectedReason:     req.RejectedReason,
	}
	if req.ApprovedAt != nil {
		t := models.Timestamp(*req.ApprovedAt)
		m.ApprovedAt = &t
	}
	return m
}

func toSwitchStatusModel(status binding.SwitchStatus) models.SwitchRequestStatus {
	switch status {
	case binding.SwitchPending:
		return models.SwitchStatusPending
	case binding.SwitchApproved:
		return models.SwitchStatusApproved
	case binding.SwitchRejected:
		return models.SwitchStatusRejected
	case binding.SwitchExpired:
		return models.SwitchStatusExpired
	default:
		return models.SwitchRequestStatus(status)
	}
}
