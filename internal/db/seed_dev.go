package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SeedDev loads a small canteen into an empty dev database: two capacitated
// tenants, one uncapped tenant, a handful of employees and one reader per
// tenant. Existing rows are left alone.
func SeedDev(ctx context.Context, db *sql.DB) error {
	now := time.Now().UTC().UnixMilli()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO tenants(tenant_id, name, daily_capacity, capacity_enforced, ticket_prefix, created_at_ms, updated_at_ms)
VALUES (1, 'Warung Yanti', 40, 1, 'YN', ?1, ?1),
       (2, 'Dapur Rima',   40, 1, 'RM', ?1, ?1),
       (3, 'Kopi Corner',   0, 0, '',   ?1, ?1);`, now); err != nil {
		return fmt.Errorf("seed tenants: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO employees(employee_id, card_number, name, employee_group, is_disabled, is_blocked, created_at_ms, updated_at_ms)
VALUES ('E0001', '0001234567', 'Andi Wijaya',   'Engineering', 0, 0, ?1, ?1),
       ('E0002', '0001234568', 'Budi Santoso',  'Finance',     0, 0, ?1, ?1),
       ('E0003', '0001234569', 'Citra Lestari', 'Operations',  0, 0, ?1, ?1),
       ('E0004', '0001234570', 'Dewi Anggraini','Operations',  1, 0, ?1, ?1);`, now); err != nil {
		return fmt.Errorf("seed employees: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO devices(device_code, tenant_id, enabled, created_at_ms, updated_at_ms)
VALUES ('reader-yanti', 1, 1, ?1, ?1),
       ('reader-rima',  2, 1, ?1, ?1),
       ('reader-kopi',  3, 1, ?1, ?1)
ON CONFLICT(device_code) DO UPDATE SET
  tenant_id = excluded.tenant_id,
  enabled = 1,
  updated_at_ms = excluded.updated_at_ms;`, now); err != nil {
		return fmt.Errorf("seed devices: %w", err)
	}

	return tx.Commit()
}
