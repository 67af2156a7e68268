package service

import "errors"

var (
	ErrInvalidCardNumber = errors.New("card_number is required")
	ErrInvalidTenant     = errors.New("tenant_id or device_code is required")
	ErrInvalidTimestamp  = errors.New("invalid event_timestamp")
	ErrInvalidDay        = errors.New("invalid day key, want YYYY-MM-DD")
	ErrInvalidRequest    = errors.New("invalid request")

	// ErrUnknownTenant is returned by read queries for a tenant that does
	// not exist. Admission reports the same condition as a rejection.
	ErrUnknownTenant = errors.New("unknown tenant")

	// ErrBusy accompanies a db_busy response. The caller may retry.
	ErrBusy = errors.New("ledger busy")

	// ErrInternal wraps unexpected storage failures. Nothing was committed.
	ErrInternal = errors.New("internal error")
)

// IsInvalidInput reports whether err is a client input error.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidCardNumber) ||
		errors.Is(err, ErrInvalidTenant) ||
		errors.Is(err, ErrInvalidTimestamp) ||
		errors.Is(err, ErrInvalidDay) ||
		errors.Is(err, ErrInvalidRequest)
}
