package store

import (
	"context"
	"time"
)

type Employee struct {
	EmployeeID string
	CardNumber string
	Name       string
	Group      string
	Disabled   bool
	Blocked    bool
}

// Eligible reports whether the card holder may be admitted at all.
func (e Employee) Eligible() bool { return !e.Disabled && !e.Blocked }

type Tenant struct {
	TenantID         int64
	Name             string
	DailyCapacity    int // 0 = uncapped
	CapacityEnforced bool
	TicketPrefix     string
}

// Capacitated reports whether the tenant takes part in quota accounting.
func (t Tenant) Capacitated() bool { return t.CapacityEnforced && t.DailyCapacity > 0 }

type Device struct {
	DeviceCode string
	TenantID   int64 // 0 = unassigned
	Enabled    bool
	LastSeen   time.Time
}

// Directory is a full copy of the lookup data, used to rebuild caches.
type Directory struct {
	Employees []Employee
	Tenants   []Tenant
	Devices   []Device
}

// DirectoryStore resolves cards, tenants and reader devices. The admission
// core never writes through it.
type DirectoryStore interface {
	EmployeeByCard(ctx context.Context, cardNumber string) (Employee, error)
	TenantByID(ctx context.Context, tenantID int64) (Tenant, error)
	DeviceByCode(ctx context.Context, deviceCode string) (Device, error)
	LoadDirectory(ctx context.Context) (Directory, error)
}

type DeviceStore interface {
	MarkSeen(ctx context.Context, deviceCode string, t time.Time) error
}
