package models

// LoginOutcome discriminates what a login registration did.
type LoginOutcome string

const (
	OutcomeActivatedFirstDevice LoginOutcome = "ACTIVATED_FIRST_DEVICE"
	OutcomeFullAccess           LoginOutcome = "FULL_ACCESS"
	OutcomeLimitedAccess        LoginOutcome = "LIMITED_ACCESS"
	OutcomeAwaitingApproval     LoginOutcome = "AWAITING_APPROVAL"
	OutcomeSwitchCompleted      LoginOutcome = "SWITCH_COMPLETED"
)

// LoginRequest is the request body for a login registration.
type LoginRequest struct {
	DeviceFingerprint string `json:"deviceFingerprint" validate:"required"`
}

// Device is a student device in API responses.
type Device struct {
	ID               string     `json:"id"`
	StudentID        string     `json:"studentId"`
	Fingerprint      string     `json:"fingerprint"`
	Bound            bool       `json:"bound"`
	ActivatedAt      Timestamp  `json:"activatedAt"`
	DeactivatedAt    *Timestamp `json:"deactivatedAt,omitempty"`
	BindingExpiresAt *Timestamp `json:"bindingExpiresAt,omitempty"`
}

// SwitchRequestStatus is the lifecycle state of a device switch request.
type SwitchRequestStatus string

const (
	SwitchStatusPending  SwitchRequestStatus = "PENDING"
	SwitchStatusApproved SwitchRequestStatus = "APPROVED"
	SwitchStatusRejected SwitchRequestStatus = "REJECTED"
	SwitchStatusExpired  SwitchRequestStatus = "EXPIRED"
)

// SwitchRequest is a device switch request in API responses.
type SwitchRequest struct {
	ID                 string              `json:"id"`
	StudentID          string              `json:"studentId"`
	OldFingerprint     string              `json:"oldFingerprint"`
	NewFingerprint     string              `json:"newFingerprint"`
	RequestedAt        Timestamp           `json:"requestedAt"`
	CooldownCompleteAt Timestamp           `json:"cooldownCompleteAt"`
	AdminApproved      bool                `json:"adminApproved"`
	ApprovedBy         string              `json:"approvedBy,omitempty"`
	ApprovedAt         *Timestamp          `json:"approvedAt,omitempty"`
	Status             SwitchRequestStatus `json:"status"`
	RejectedReason     string              `json:"rejectedReason,omitempty"`
}

// LoginResponse is the response body for a login registration.
type LoginResponse struct {
	Outcome       LoginOutcome   `json:"outcome"`
	Device        *Device        `json:"device,omitempty"`
	SwitchRequest *SwitchRequest `json:"switchRequest,omitempty"`
}
