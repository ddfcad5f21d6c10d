package models

// PagedSwitchRequests is a page of switch requests for the admin read view.
type PagedSwitchRequests struct {
	Items []SwitchRequest   `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}

// SwitchRejectRequest is the request body for rejecting a switch request.
type SwitchRejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// EmergencyActivateRequest is the request body for an emergency device
// activation. The reason is mandatory: every emergency path is audited.
type EmergencyActivateRequest struct {
	StudentID         string `json:"studentId" validate:"required"`
	DeviceFingerprint string `json:"deviceFingerprint" validate:"required"`
	Reason            string `json:"reason" validate:"required"`
}

// ActivityEntry is one audit log record in API responses.
type ActivityEntry struct {
	ID                string    `json:"id"`
	StudentID         string    `json:"studentId"`
	DeviceFingerprint string    `json:"deviceFingerprint,omitempty"`
	Type              string    `json:"type"`
	Actor             string    `json:"actor,omitempty"`
	Reason            string    `json:"reason,omitempty"`
	At                Timestamp `json:"at"`
}

// PagedActivity is a page of audit log entries.
type PagedActivity struct {
	Items []ActivityEntry   `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}
