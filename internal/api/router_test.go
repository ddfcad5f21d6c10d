package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presenceguard/presenceguard/internal/activity"
	"github.com/presenceguard/presenceguard/internal/api"
	"github.com/presenceguard/presenceguard/internal/api/models"
	"github.com/presenceguard/presenceguard/internal/attendance"
	"github.com/presenceguard/presenceguard/internal/auth"
	"github.com/presenceguard/presenceguard/internal/binding"
	"github.com/presenceguard/presenceguard/internal/featureflags"
	"github.com/presenceguard/presenceguard/internal/session"
	"github.com/presenceguard/presenceguard/internal/verification"
	"github.com/presenceguard/presenceguard/pkg/geo"
)

// testEnv is a fully wired in-memory API stack.
type testEnv struct {
	router   http.Handler
	jwt      *auth.JWTService
	sessions *session.InMemoryRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://id.presenceguard.dev",
		Audience:   "presenceguard-api",
	})

	activityRepo := activity.NewInMemoryRepository()
	bindingService := binding.NewService(binding.ServiceConfig{
		Repo:     binding.NewInMemoryRepository(),
		Activity: activityRepo,
		Logger:   logger,
	})

	flagService := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewInMemoryRepository(),
		Logger:     logger,
	})

	sessionRepo := session.NewInMemoryRepository()
	attendanceService := attendance.NewService(attendance.ServiceConfig{
		Binding:  bindingService,
		Sessions: sessionRepo,
		Scorer:   verification.NewScorer(flagService, logger),
		Repo:     attendance.NewInMemoryRepository(),
		Activity: activityRepo,
		Flags:    flagService,
		Logger:   logger,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:            "test",
		BuildTime:          "2026-01-01T00:00:00Z",
		Logger:             logger,
		JWTService:         jwtService,
		BindingService:     bindingService,
		AttendanceService:  attendanceService,
		FeatureFlagService: flagService,
		ActivityRepo:       activityRepo,
	})

	return &testEnv{
		router:   router,
		jwt:      jwtService,
		sessions: sessionRepo,
	}
}

// putTestSession stores a session that is live right now.
func (e *testEnv) putTestSession(id string) *session.Session {
	now := time.Now()
	sess := &session.Session{
		ID:                   id,
		ClassID:              301,
		FacultyID:            7,
		Token:                0xAB12CD34,
		StartsAt:             now.Add(-time.Hour),
		EndsAt:               now.Add(time.Hour),
		Location:             geo.Point{Lat: 52.52, Lon: 13.405},
		GeofenceRadiusMeters: 50,
		Networks: []session.Network{
			{SSID: "campus", BSSID: "aa:bb:cc:dd:ee:ff"},
		},
	}
	e.sessions.Put(sess)
	return sess
}

func (e *testEnv) token(t *testing.T, subjectID, role string) string {
	t.Helper()
	token, _, err := e.jwt.GenerateAccessToken(subjectID, role)
	require.NoError(t, err)
	return token
}

// do executes a request against the router with an optional bearer token.
func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// login registers a device login and returns the decoded response.
func (e *testEnv) login(t *testing.T, token, fingerprint string) models.LoginResponse {
	t.Helper()

	w := e.do(t, http.MethodPost, "/v1/bindings/login", token, models.LoginRequest{DeviceFingerprint: fingerprint})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// fullMarksScan is a submission carrying every passing signal for the
// standard test session.
func fullMarksScan(sessionID, fingerprint string) models.ScanSubmissionRequest {
	return models.ScanSubmissionRequest{
		SessionID:         sessionID,
		SessionToken:      0xAB12CD34,
		DeviceFingerprint: fingerprint,
		Timestamp:         time.Now(),
		Location:          &models.Point{Lat: 52.52, Lon: 13.405},
		Network:           &models.Network{SSID: "campus", BSSID: "aa:bb:cc:dd:ee:ff"},
		Beacons: []models.BeaconReading{
			{DeviceAddress: "beacon-1", Version: 1, ClassID: 301, SessionToken: 0xAB12CD34, FacultyID: 7, SmoothedRSSI: -60},
		},
	}
}

func TestRouter_HealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ops/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
}

func TestRouter_SystemStatus_ReportsKillSwitches(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "adm_ops1", auth.RoleAdmin)

	w := env.do(t, http.MethodGet, "/v1/ops/status", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusOK, status.Status)
	assert.Empty(t, status.ActiveDegradationFlags)

	// Throw a kill switch and the status degrades.
	update := featureflags.FlagUpdateRequest{
		Updates: []featureflags.FlagUpdate{{Key: featureflags.FlagDisableBeaconScoring, Value: true}},
		Reason:  "beacon outage",
	}
	w = env.do(t, http.MethodPut, "/v1/admin/feature-flags/", token, update)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/v1/ops/status", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusDegraded, status.Status)
	assert.Contains(t, status.ActiveDegradationFlags, featureflags.FlagDisableBeaconScoring)
}

func TestRouter_Login_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/bindings/login", "", models.LoginRequest{DeviceFingerprint: "fp-a"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}

func TestRouter_Login_FirstDeviceActivates(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "stu_alice", auth.RoleStudent)

	resp := env.login(t, token, "fp-a")

	assert.Equal(t, models.OutcomeActivatedFirstDevice, resp.Outcome)
	require.NotNil(t, resp.Device)
	assert.True(t, resp.Device.Bound)
	assert.Equal(t, "stu_alice", resp.Device.StudentID)
	assert.NotNil(t, resp.Device.BindingExpiresAt)
}

func TestRouter_Login_MissingFingerprint(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "stu_alice", auth.RoleStudent)

	w := env.do(t, http.MethodPost, "/v1/bindings/login", token, models.LoginRequest{})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	require.Len(t, problem.Errors, 1)
	assert.Equal(t, "deviceFingerprint", problem.Errors[0].Field)
}

func TestRouter_Login_SecondDeviceOpensSwitchRequest(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "stu_alice", auth.RoleStudent)

	env.login(t, token, "fp-a")
	resp := env.login(t, token, "fp-b")

	assert.Equal(t, models.OutcomeLimitedAccess, resp.Outcome)
	require.NotNil(t, resp.SwitchRequest)
	assert.Equal(t, models.SwitchStatusPending, resp.SwitchRequest.Status)
	assert.Equal(t, "fp-a", resp.SwitchRequest.OldFingerprint)
	assert.Equal(t, "fp-b", resp.SwitchRequest.NewFingerprint)
}

func TestRouter_SubmitScan_FullMarks(t *testing.T) {
	env := newTestEnv(t)
	env.putTestSession("ses_math301")
	token := env.token(t, "stu_alice", auth.RoleStudent)
	env.login(t, token, "fp-a")

	w := env.do(t, http.MethodPost, "/v1/attendance/scan", token, fullMarksScan("ses_math301", "fp-a"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var decision models.ScanDecision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decision))
	assert.True(t, decision.Accepted)
	assert.Equal(t, 100, decision.Score)
	assert.False(t, decision.Duplicate)
	assert.True(t, decision.Breakdown.Token.Passed)
	assert.True(t, decision.Breakdown.Beacon.Passed)
}

func TestRouter_SubmitScan_DuplicateReturnsOriginal(t *testing.T) {
	env := newTestEnv(t)
	env.putTestSession("ses_math301")
	token := env.token(t, "stu_alice", auth.RoleStudent)
	env.login(t, token, "fp-a")

	sub := fullMarksScan("ses_math301", "fp-a")
	w := env.do(t, http.MethodPost, "/v1/attendance/scan", token, sub)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/v1/attendance/scan", token, sub)
	require.Equal(t, http.StatusOK, w.Code)

	var decision models.ScanDecision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decision))
	assert.True(t, decision.Duplicate)
	assert.True(t, decision.Accepted)
}

func TestRouter_SubmitScan_UnboundDevice(t *testing.T) {
	env := newTestEnv(t)
	env.putTestSession("ses_math301")
	token := env.token(t, "stu_alice", auth.RoleStudent)

	w := env.do(t, http.MethodPost, "/v1/attendance/scan", token, fullMarksScan("ses_math301", "fp-a"))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}

func TestRouter_SubmitScan_LimitedDevice(t *testing.T) {
	env := newTestEnv(t)
	env.putTestSession("ses_math301")
	token := env.token(t, "stu_alice", auth.RoleStudent)
	env.login(t, token, "fp-a")
	env.login(t, token, "fp-b")

	w := env.do(t, http.MethodPost, "/v1/attendance/scan", token, fullMarksScan("ses_math301", "fp-b"))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_SubmitScan_SessionNotFound(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "stu_alice", auth.RoleStudent)
	env.login(t, token, "fp-a")

	w := env.do(t, http.MethodPost, "/v1/attendance/scan", token, fullMarksScan("ses_missing", "fp-a"))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_SubmitScan_ValidationError(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "stu_alice", auth.RoleStudent)

	w := env.do(t, http.MethodPost, "/v1/attendance/scan", token, models.ScanSubmissionRequest{})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, models.ProblemTypeValidation, problem.Type)
	assert.NotEmpty(t, problem.Errors)
	assert.NotEmpty(t, problem.TraceID)
}

func TestRouter_SubmitScan_KillSwitch(t *testing.T) {
	env := newTestEnv(t)
	env.putTestSession("ses_math301")
	studentToken := env.token(t, "stu_alice", auth.RoleStudent)
	adminToken := env.token(t, "adm_ops1", auth.RoleAdmin)
	env.login(t, studentToken, "fp-a")

	update := featureflags.FlagUpdateRequest{
		Updates: []featureflags.FlagUpdate{{Key: featureflags.FlagDisableScanSubmission, Value: true}},
		Reason:  "incident 4821",
	}
	w := env.do(t, http.MethodPut, "/v1/admin/feature-flags/", adminToken, update)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodPost, "/v1/attendance/scan", studentToken, fullMarksScan("ses_math301", "fp-a"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_AdminRoutes_RejectStudentRole(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "stu_alice", auth.RoleStudent)

	paths := []string{
		"/v1/admin/switch-requests/",
		"/v1/admin/activity",
		"/v1/admin/feature-flags/",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			w := env.do(t, http.MethodGet, path, token, nil)
			assert.Equal(t, http.StatusForbidden, w.Code)
		})
	}
}

func TestRouter_AdminSwitchRequestReview(t *testing.T) {
	env := newTestEnv(t)
	studentToken := env.token(t, "stu_alice", auth.RoleStudent)
	adminToken := env.token(t, "adm_ops1", auth.RoleAdmin)

	env.login(t, studentToken, "fp-a")
	resp := env.login(t, studentToken, "fp-b")
	require.NotNil(t, resp.SwitchRequest)
	requestID := resp.SwitchRequest.ID

	// The pending request shows up in the review queue.
	w := env.do(t, http.MethodGet, "/v1/admin/switch-requests/?status=PENDING&student=stu_alice", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page models.PagedSwitchRequests
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, requestID, page.Items[0].ID)

	// Approve it.
	w = env.do(t, http.MethodPost, fmt.Sprintf("/v1/admin/switch-requests/%s/approve", requestID), adminToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Approval alone does not rebind; the old device still has full access.
	login := env.login(t, studentToken, "fp-a")
	assert.Equal(t, models.OutcomeFullAccess, login.Outcome)
}

func TestRouter_AdminRejectSwitch(t *testing.T) {
	env := newTestEnv(t)
	studentToken := env.token(t, "stu_alice", auth.RoleStudent)
	adminToken := env.token(t, "adm_ops1", auth.RoleAdmin)

	env.login(t, studentToken, "fp-a")
	resp := env.login(t, studentToken, "fp-b")
	require.NotNil(t, resp.SwitchRequest)
	requestID := resp.SwitchRequest.ID

	w := env.do(t, http.MethodPost, fmt.Sprintf("/v1/admin/switch-requests/%s/reject", requestID), adminToken,
		models.SwitchRejectRequest{Reason: "device not registered with the faculty"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Rejecting a settled request conflicts.
	w = env.do(t, http.MethodPost, fmt.Sprintf("/v1/admin/switch-requests/%s/reject", requestID), adminToken,
		models.SwitchRejectRequest{Reason: "again"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_AdminRejectSwitch_NotFound(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.token(t, "adm_ops1", auth.RoleAdmin)

	w := env.do(t, http.MethodPost, "/v1/admin/switch-requests/swr_missing/reject", adminToken,
		models.SwitchRejectRequest{Reason: "no such request"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_AdminEmergencyActivate(t *testing.T) {
	env := newTestEnv(t)
	studentToken := env.token(t, "stu_alice", auth.RoleStudent)
	adminToken := env.token(t, "adm_ops1", auth.RoleAdmin)

	env.login(t, studentToken, "fp-a")

	w := env.do(t, http.MethodPost, "/v1/admin/devices/emergency-activate", adminToken,
		models.EmergencyActivateRequest{
			StudentID:         "stu_alice",
			DeviceFingerprint: "fp-lost-replacement",
			Reason:            "handset reported stolen",
		})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var device models.Device
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &device))
	assert.True(t, device.Bound)
	assert.Equal(t, "fp-lost-replacement", device.Fingerprint)

	// The emergency path always leaves an audit trail.
	w = env.do(t, http.MethodGet, "/v1/admin/activity?student=stu_alice&type=emergency_activation", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page models.PagedActivity
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "adm_ops1", page.Items[0].Actor)
	assert.Equal(t, "handset reported stolen", page.Items[0].Reason)
}

func TestRouter_AdminEmergencyActivate_MissingReason(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.token(t, "adm_ops1", auth.RoleAdmin)

	w := env.do(t, http.MethodPost, "/v1/admin/devices/emergency-activate", adminToken,
		models.EmergencyActivateRequest{
			StudentID:         "stu_alice",
			DeviceFingerprint: "fp-x",
		})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_AdminSessionAttendance(t *testing.T) {
	env := newTestEnv(t)
	env.putTestSession("ses_math301")
	studentToken := env.token(t, "stu_alice", auth.RoleStudent)
	adminToken := env.token(t, "adm_ops1", auth.RoleAdmin)
	env.login(t, studentToken, "fp-a")

	w := env.do(t, http.MethodPost, "/v1/attendance/scan", studentToken, fullMarksScan("ses_math301", "fp-a"))
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet, "/v1/admin/sessions/ses_math301/attendance", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page models.PagedAttendance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "stu_alice", page.Items[0].StudentID)
	assert.True(t, page.Items[0].Accepted)
}

func TestRouter_ListFeatureFlags(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.token(t, "adm_ops1", auth.RoleAdmin)

	w := env.do(t, http.MethodGet, "/v1/admin/feature-flags/", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list featureflags.FlagList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))

	keys := make([]string, 0, len(list.Items))
	for _, flag := range list.Items {
		keys = append(keys, flag.Key)
	}
	assert.Contains(t, keys, featureflags.FlagDisableBeaconScoring)
	assert.Contains(t, keys, featureflags.FlagDisableScanSubmission)
}

func TestRouter_RequestID_Generated(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ops/health", "", nil)

	requestID := w.Header().Get("X-Request-Id")
	assert.NotEmpty(t, requestID)
	assert.Contains(t, requestID, "req_")
}

func TestRouter_RequestID_Preserved(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Request-Id", "custom_request_id")
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, "custom_request_id", w.Header().Get("X-Request-Id"))
}

func TestRouter_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/nonexistent", "", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
