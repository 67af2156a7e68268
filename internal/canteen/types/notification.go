package types

// CommittedEvent is what the notifier receives after an admission commits.
type CommittedEvent struct {
	EventID         int64  `json:"event_id"`
	ClientRequestID string `json:"client_request_id"`
	CardNumber      string `json:"card_number"`
	EmployeeID      string `json:"employee_id"`
	EmployeeName    string `json:"employee_name"`
	TenantID        int64  `json:"tenant_id"`
	TenantName      string `json:"tenant_name"`
	DayKey          string `json:"day_key"`
	EventTime       string `json:"event_time"`
	Source          string `json:"source"`
	Reason          string `json:"reason"`
	QueueNumber     int    `json:"queue_number"`
	Ticket          string `json:"ticket"`
	CommittedAt     string `json:"committed_at"`
}
