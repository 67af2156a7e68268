package types

// Admission outcomes.
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// Reasons carried on an AdmissionResponse.
const (
	ReasonOK             = "ok"
	ReasonUnlimited      = "unlimited"
	ReasonFreeMode       = "free_mode"
	ReasonDuplicateDaily = "duplicate_daily"
	ReasonQuotaExceeded  = "quota_exceeded"
	ReasonUnknownCard    = "unknown_card"
	ReasonUnknownTenant  = "unknown_tenant"
	ReasonDBBusy         = "db_busy"
)

// Event sources.
const (
	SourceTap      = "tap"
	SourcePreorder = "preorder"
)

// AdmissionRequest asks for one consumption event. Either TenantID or
// DeviceCode identifies the target tenant; TenantID wins when both are set.
type AdmissionRequest struct {
	CardNumber      string `json:"card_number" validate:"required,max=64"`
	TenantID        int64  `json:"tenant_id,omitempty" validate:"required_without=DeviceCode,gte=0"`
	DeviceCode      string `json:"device_code,omitempty" validate:"required_without=TenantID,max=64"`
	EventTimestamp  string `json:"event_timestamp,omitempty"` // ISO-8601; defaults to now
	ClientRequestID string `json:"client_request_id,omitempty" validate:"max=128"`
	Source          string `json:"source,omitempty" validate:"omitempty,oneof=tap preorder"`
	MenuLabel       string `json:"menu_label,omitempty" validate:"max=128"`
}

type TransactionSummary struct {
	EventID       int64  `json:"event_id"`
	CardNumber    string `json:"card_number"`
	EmployeeID    string `json:"employee_id"`
	EmployeeName  string `json:"employee_name"`
	EmployeeGroup string `json:"employee_group,omitempty"`
	TenantID      int64  `json:"tenant_id"`
	TenantName    string `json:"tenant_name"`
	EventTime     string `json:"event_time"` // YYYY-MM-DD HH:MM:SS local
	DayKey        string `json:"day_key"`    // YYYY-MM-DD local
	Source        string `json:"source"`
	MenuLabel     string `json:"menu_label,omitempty"`
}

type AdmissionResponse struct {
	Status          string `json:"status"`
	Reason          string `json:"reason"`
	ClientRequestID string `json:"client_request_id"`

	// Set only when accepted.
	CommitTimestamp    string              `json:"commit_timestamp,omitempty"`
	Ticket             string              `json:"ticket,omitempty"`
	QueueNumber        *int                `json:"queue_number,omitempty"`
	TransactionSummary *TransactionSummary `json:"transaction_summary,omitempty"`

	// Diagnostics from the quota evaluation, when one ran.
	RemainingForTarget *int `json:"remaining_for_target,omitempty"`
	MaxRemainingAny    *int `json:"max_remaining_any,omitempty"`
}

func (r AdmissionResponse) Accepted() bool { return r.Status == StatusAccepted }
