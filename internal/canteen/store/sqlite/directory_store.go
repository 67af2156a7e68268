package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/canteen/internal/canteen/store"
)

// DirectoryStore reads employees, tenants and devices. All methods are
// read-only and run outside the write worker.
type DirectoryStore struct {
	db *sql.DB
}

func NewDirectoryStore(db *sql.DB) *DirectoryStore {
	return &DirectoryStore{db: db}
}

const employeeCols = `employee_id, card_number, name, employee_group, is_disabled, is_blocked`

func scanEmployee(row interface{ Scan(...any) error }) (store.Employee, error) {
	var e store.Employee
	var disabled, blocked int
	if err := row.Scan(&e.EmployeeID, &e.CardNumber, &e.Name, &e.Group, &disabled, &blocked); err != nil {
		return store.Employee{}, err
	}
	e.Disabled = disabled == 1
	e.Blocked = blocked == 1
	return e, nil
}

func (s *DirectoryStore) EmployeeByCard(ctx context.Context, cardNumber string) (store.Employee, error) {
	cardNumber = strings.TrimSpace(cardNumber)
	if cardNumber == "" {
		return store.Employee{}, store.ErrNotFound
	}

	e, err := scanEmployee(s.db.QueryRowContext(ctx,
		`SELECT `+employeeCols+` FROM employees WHERE card_number = ?;`, cardNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Employee{}, store.ErrNotFound
	}
	if err != nil {
		return store.Employee{}, fmt.Errorf("EmployeeByCard query: %w", err)
	}
	return e, nil
}

const tenantCols = `tenant_id, name, daily_capacity, capacity_enforced, ticket_prefix`

func (s *DirectoryStore) TenantByID(ctx context.Context, tenantID int64) (store.Tenant, error) {
	var (
		t        store.Tenant
		enforced int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT `+tenantCols+` FROM tenants WHERE tenant_id = ?;`, tenantID,
	).Scan(&t.TenantID, &t.Name, &t.DailyCapacity, &enforced, &t.TicketPrefix)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Tenant{}, store.ErrNotFound
	}
	if err != nil {
		return store.Tenant{}, fmt.Errorf("TenantByID query: %w", err)
	}
	t.CapacityEnforced = enforced == 1
	return t, nil
}

const deviceCols = `device_code, tenant_id, enabled, last_seen_at_ms`

func scanDevice(row interface{ Scan(...any) error }) (store.Device, error) {
	var (
		d        store.Device
		tenantID sql.NullInt64
		enabled  int
		lastSeen sql.NullInt64
	)
	if err := row.Scan(&d.DeviceCode, &tenantID, &enabled, &lastSeen); err != nil {
		return store.Device{}, err
	}
	if tenantID.Valid {
		d.TenantID = tenantID.Int64
	}
	d.Enabled = enabled == 1
	if lastSeen.Valid {
		d.LastSeen = time.UnixMilli(lastSeen.Int64).UTC()
	}
	return d, nil
}

func (s *DirectoryStore) DeviceByCode(ctx context.Context, deviceCode string) (store.Device, error) {
	deviceCode = strings.TrimSpace(deviceCode)
	if deviceCode == "" {
		return store.Device{}, store.ErrNotFound
	}

	d, err := scanDevice(s.db.QueryRowContext(ctx,
		`SELECT `+deviceCols+` FROM devices WHERE device_code = ?;`, deviceCode))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Device{}, store.ErrNotFound
	}
	if err != nil {
		return store.Device{}, fmt.Errorf("DeviceByCode query: %w", err)
	}
	return d, nil
}

// LoadDirectory reads every lookup row. Used to rebuild the directory cache.
func (s *DirectoryStore) LoadDirectory(ctx context.Context) (store.Directory, error) {
	var out store.Directory

	rows, err := s.db.QueryContext(ctx, `SELECT `+employeeCols+` FROM employees ORDER BY card_number;`)
	if err != nil {
		return out, fmt.Errorf("LoadDirectory employees: %w", err)
	}
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			rows.Close()
			return out, fmt.Errorf("LoadDirectory scan employee: %w", err)
		}
		out.Employees = append(out.Employees, e)
	}
	if err := closeRows(rows); err != nil {
		return out, fmt.Errorf("LoadDirectory employees: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT `+tenantCols+` FROM tenants ORDER BY tenant_id;`)
	if err != nil {
		return out, fmt.Errorf("LoadDirectory tenants: %w", err)
	}
	for rows.Next() {
		var t store.Tenant
		var enforced int
		if err := rows.Scan(&t.TenantID, &t.Name, &t.DailyCapacity, &enforced, &t.TicketPrefix); err != nil {
			rows.Close()
			return out, fmt.Errorf("LoadDirectory scan tenant: %w", err)
		}
		t.CapacityEnforced = enforced == 1
		out.Tenants = append(out.Tenants, t)
	}
	if err := closeRows(rows); err != nil {
		return out, fmt.Errorf("LoadDirectory tenants: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT `+deviceCols+` FROM devices ORDER BY device_code;`)
	if err != nil {
		return out, fmt.Errorf("LoadDirectory devices: %w", err)
	}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			rows.Close()
			return out, fmt.Errorf("LoadDirectory scan device: %w", err)
		}
		out.Devices = append(out.Devices, d)
	}
	if err := closeRows(rows); err != nil {
		return out, fmt.Errorf("LoadDirectory devices: %w", err)
	}

	return out, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}
