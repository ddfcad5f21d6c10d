package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/presenceguard/presenceguard/internal/api/models"
	"github.com/presenceguard/presenceguard/internal/api/response"
	"github.com/presenceguard/presenceguard/internal/attendance"
	"github.com/presenceguard/presenceguard/internal/beacon"
	"github.com/presenceguard/presenceguard/internal/binding"
	"github.com/presenceguard/presenceguard/internal/session"
	"github.com/presenceguard/presenceguard/internal/verification"
	"github.com/presenceguard/presenceguard/pkg/geo"
)

// AttendanceHandler handles scan submission and attendance read endpoints.
type AttendanceHandler struct {
	attendance *attendance.Service
}

// NewAttendanceHandler creates a new AttendanceHandler.
func NewAttendanceHandler(attendanceService *attendance.Service) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendanceService}
}

// SubmitScan handles POST /v1/attendance/scan - verify and record one scan.
func (h *AttendanceHandler) SubmitScan(w http.ResponseWriter, r *http.Request) {
	var input models.ScanSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if fieldErrors := validateScanSubmission(&input); len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid scan submission", fieldErrors)
		return
	}

	event := toScanEvent(GetUserID(r.Context()), &input)
	result, err := h.attendance.Submit(r.Context(), event)
	if err != nil {
		switch {
		case errors.Is(err, attendance.ErrSubmissionsDisabled):
			response.ServiceUnavailable(w, r, "scan submissions are temporarily disabled")
		case errors.Is(err, binding.ErrDeviceNotBound):
			response.Forbidden(w, r, "no bound device for student")
		case errors.Is(err, binding.ErrDeviceLimitedAccess):
			response.Forbidden(w, r, "device has limited access and may not submit scans")
		case errors.Is(err, session.ErrSessionNotFound):
			response.NotFound(w, r, "session not found")
		case errors.Is(err, attendance.ErrRetriable):
			response.ServiceUnavailable(w, r, "transient storage failure, resubmit the same event")
		default:
			response.InternalError(w, r, "scan submission failed")
		}
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	response.JSON(w, r, status, toScanDecision(result))
}

// ListSessionAttendance handles GET /v1/admin/sessions/{sessionId}/attendance.
func (h *AttendanceHandler) ListSessionAttendance(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		response.BadRequest(w, r, "sessionId is required", nil)
		return
	}

	records, err := h.attendance.ListBySession(r.Context(), sessionID)
	if err != nil {
		response.InternalError(w, r, "listing attendance failed")
		return
	}

	page := models.PagedAttendance{
		Items: make([]models.AttendanceRecord, 0, len(records)),
		Meta:  models.PagedResponseMeta{Limit: len(records)},
	}
	for _, rec := range records {
		page.Items = append(page.Items, models.AttendanceRecord{
			ID:                rec.ID,
			SessionID:         rec.SessionID,
			StudentID:         rec.StudentID,
			DeviceFingerprint: rec.DeviceFingerprint,
			Timestamp:         models.Timestamp(rec.At),
			Accepted:          rec.Accepted,
			Score:             rec.Score,
			Reason:            rec.Reason,
			RecordedAt:        models.Timestamp(rec.RecordedAt),
		})
	}
	response.JSON(w, r, http.StatusOK, page)
}

// validateScanSubmission checks the required fields of a scan submission.
func validateScanSubmission(input *models.ScanSubmissionRequest) []models.FieldError {
	var fieldErrors []models.FieldError
	if input.SessionID == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "sessionId", Message: "required", Code: "REQUIRED"})
	}
	if input.DeviceFingerprint == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "deviceFingerprint", Message: "required", Code: "REQUIRED"})
	}
	if input.Timestamp.IsZero() {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "timestamp", Message: "required", Code: "REQUIRED"})
	}
	if input.Location != nil {
		if err := geo.Validate(geo.Point{Lat: input.Location.Lat, Lon: input.Location.Lon}); err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "location", Message: err.Error(), Code: "OUT_OF_RANGE"})
		}
	}
	return fieldErrors
}

// toScanEvent converts a scan submission to the verification event.
func toScanEvent(studentID string, input *models.ScanSubmissionRequest) *verification.ScanEvent {
	event := &verification.ScanEvent{
		StudentID:         studentID,
		SessionID:         input.SessionID,
		SessionToken:      input.SessionToken,
		DeviceFingerprint: input.DeviceFingerprint,
		At:                input.Timestamp,
	}
	if input.Location != nil {
		event.Location = &geo.Point{Lat: input.Location.Lat, Lon: input.Location.Lon}
	}
	if input.Network != nil {
		event.Network = &verification.NetworkFingerprint{SSID: input.Network.SSID, BSSID: input.Network.BSSID}
	}
	for _, reading := range input.Beacons {
		event.Beacons = append(event.Beacons, verification.BeaconObservation{
			Record: beacon.Record{
				Version:      reading.Version,
				ClassID:      reading.ClassID,
				SessionToken: reading.SessionToken,
				FacultyID:    reading.FacultyID,
				Flags:        reading.Flags,
			},
			SmoothedRSSI: reading.SmoothedRSSI,
		})
	}
	return event
}

// toScanDecision converts a submit result to the API model.
func toScanDecision(result *attendance.SubmitResult) models.ScanDecision {
	rec := result.Record
	return models.ScanDecision{
		Accepted:  rec.Accepted,
		Score:     rec.Score,
		Reason:    rec.Reason,
		Duplicate: result.Duplicate,
		Breakdown: models.ScoreBreakdown{
			Token:    toComponentScore(rec.Breakdown.Token),
			Location: toComponentScore(rec.Breakdown.Location),
			Network:  toComponentScore(rec.Breakdown.Network),
			Beacon:   toComponentScore(rec.Breakdown.Beacon),
		},
		RecordedAt: models.Timestamp(rec.RecordedAt),
	}
}

func toComponentScore(c verification.ComponentResult) models.ComponentScore {
	return models.ComponentScore{Passed: c.Passed, Points: c.Points, Reason: c.Reason}
}
