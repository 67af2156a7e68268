package store

import (
	"context"
	"time"
)

// EventRecord is one consumption event row. EventID is assigned by the store.
type EventRecord struct {
	EventID         int64
	CardNumber      string
	EmployeeID      string
	EmployeeName    string
	EmployeeGroup   string
	TenantID        int64
	TenantName      string
	Source          string
	MenuLabel       string
	DeviceCode      string
	ClientRequestID string
	EventTime       string // YYYY-MM-DD HH:MM:SS local
	DayKey          string // YYYY-MM-DD local
	QueueNumber     int
	Ticket          string
	CommittedAt     time.Time
}

// TenantCount is a tenant's configuration joined with its occupancy for one
// day. Occupancy is always derived from the ledger, never stored.
type TenantCount struct {
	Tenant
	Count int
}

// LedgerReader holds the queries that are valid both inside and outside the
// write scope. Outside it they are advisory only.
type LedgerReader interface {
	HasEvent(ctx context.Context, cardNumber, dayKey string) (bool, error)
	DailyCount(ctx context.Context, tenantID int64, dayKey string) (int, error)

	// TenantCounts returns every tenant with its occupancy for dayKey,
	// ordered by tenant id.
	TenantCounts(ctx context.Context, dayKey string) ([]TenantCount, error)
}

// LedgerTx is the view of the ledger available inside the write scope.
type LedgerTx interface {
	LedgerReader

	// InsertEvent writes rec and returns its id. A (card, day) collision
	// returns an error wrapping ErrDuplicateEvent.
	InsertEvent(ctx context.Context, rec EventRecord) (int64, error)
}

// Ledger is the consumption event store.
type Ledger interface {
	LedgerReader

	// WithWriteLock runs fn inside the exclusive write scope. fn returning nil
	// commits; any error rolls back and is returned. If the scope cannot be
	// acquired within the store's bounded wait, fn is not run and the error
	// wraps ErrBusy. Once fn has started, cancelling ctx does not interrupt
	// the unit of work.
	WithWriteLock(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
}
