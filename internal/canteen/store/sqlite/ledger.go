package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/canteen/internal/canteen/store"
	dbpkg "github.com/BrandonDHaskell/canteen/internal/db"
)

// Ledger stores consumption events. Its write scope is one job on the
// shared db.Worker, so every admission is serialized with every other write.
type Ledger struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewLedger(db *sql.DB, writer *dbpkg.Worker) *Ledger {
	return &Ledger{db: db, writer: writer}
}

func (l *Ledger) WithWriteLock(ctx context.Context, fn func(ctx context.Context, tx store.LedgerTx) error) error {
	err := l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &ledgerTx{tx: tx})
	})
	if err != nil && dbpkg.IsBusy(err) && !errors.Is(err, store.ErrBusy) {
		return fmt.Errorf("%w: %w", store.ErrBusy, err)
	}
	return err
}

func (l *Ledger) HasEvent(ctx context.Context, cardNumber, dayKey string) (bool, error) {
	return hasEvent(ctx, l.db, cardNumber, dayKey)
}

func (l *Ledger) DailyCount(ctx context.Context, tenantID int64, dayKey string) (int, error) {
	return dailyCount(ctx, l.db, tenantID, dayKey)
}

func (l *Ledger) TenantCounts(ctx context.Context, dayKey string) ([]store.TenantCount, error) {
	return tenantCounts(ctx, l.db, dayKey)
}

type ledgerTx struct {
	tx *sql.Tx
}

func (t *ledgerTx) HasEvent(ctx context.Context, cardNumber, dayKey string) (bool, error) {
	return hasEvent(ctx, t.tx, cardNumber, dayKey)
}

func (t *ledgerTx) DailyCount(ctx context.Context, tenantID int64, dayKey string) (int, error) {
	return dailyCount(ctx, t.tx, tenantID, dayKey)
}

func (t *ledgerTx) TenantCounts(ctx context.Context, dayKey string) ([]store.TenantCount, error) {
	return tenantCounts(ctx, t.tx, dayKey)
}

func (t *ledgerTx) InsertEvent(ctx context.Context, rec store.EventRecord) (int64, error) {
	if rec.CommittedAt.IsZero() {
		rec.CommittedAt = time.Now().UTC()
	}
	if rec.Source == "" {
		rec.Source = "tap"
	}

	var menu, device any
	if rec.MenuLabel != "" {
		menu = rec.MenuLabel
	}
	if rec.DeviceCode != "" {
		device = rec.DeviceCode
	}

	res, err := t.tx.ExecContext(ctx, `
INSERT INTO consumption_events(
  card_number, employee_id, employee_name, employee_group,
  tenant_id, tenant_name, source, menu_label, device_code,
  client_request_id, event_time, day_key, queue_number, ticket, committed_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		rec.CardNumber, rec.EmployeeID, rec.EmployeeName, rec.EmployeeGroup,
		rec.TenantID, rec.TenantName, rec.Source, menu, device,
		rec.ClientRequestID, rec.EventTime, rec.DayKey, rec.QueueNumber, rec.Ticket,
		rec.CommittedAt.UTC().UnixMilli(),
	)
	if err != nil {
		if dbpkg.IsUniqueViolation(err) {
			return 0, fmt.Errorf("InsertEvent %s/%s: %w", rec.CardNumber, rec.DayKey, store.ErrDuplicateEvent)
		}
		return 0, fmt.Errorf("InsertEvent: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("InsertEvent last id: %w", err)
	}
	return id, nil
}

func hasEvent(ctx context.Context, q querier, cardNumber, dayKey string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `
SELECT 1 FROM consumption_events WHERE card_number = ? AND day_key = ? LIMIT 1;
`, cardNumber, dayKey).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("HasEvent query: %w", err)
	}
	return true, nil
}

func dailyCount(ctx context.Context, q querier, tenantID int64, dayKey string) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `
SELECT COUNT(*) FROM consumption_events WHERE tenant_id = ? AND day_key = ?;
`, tenantID, dayKey).Scan(&n); err != nil {
		return 0, fmt.Errorf("DailyCount query: %w", err)
	}
	return n, nil
}

func tenantCounts(ctx context.Context, q querier, dayKey string) ([]store.TenantCount, error) {
	rows, err := q.QueryContext(ctx, `
SELECT t.tenant_id, t.name, t.daily_capacity, t.capacity_enforced, t.ticket_prefix,
       COUNT(e.event_id)
FROM tenants t
LEFT JOIN consumption_events e
  ON e.tenant_id = t.tenant_id AND e.day_key = ?
GROUP BY t.tenant_id
ORDER BY t.tenant_id;
`, dayKey)
	if err != nil {
		return nil, fmt.Errorf("TenantCounts query: %w", err)
	}
	defer rows.Close()

	var out []store.TenantCount
	for rows.Next() {
		var (
			tc       store.TenantCount
			enforced int
		)
		if err := rows.Scan(&tc.TenantID, &tc.Name, &tc.DailyCapacity, &enforced, &tc.TicketPrefix, &tc.Count); err != nil {
			return nil, fmt.Errorf("TenantCounts scan: %w", err)
		}
		tc.CapacityEnforced = enforced == 1
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("TenantCounts rows: %w", err)
	}
	return out, nil
}
