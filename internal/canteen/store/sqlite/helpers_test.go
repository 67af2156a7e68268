package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/BrandonDHaskell/canteen/internal/canteen/store"
	"github.com/BrandonDHaskell/canteen/internal/db"
)

// openTestDB returns an in-memory SQLite connection with the same PRAGMAs
// and schema as production. The connection is closed when the test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf(
		"file:storetest_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate",
		name,
	)

	conn, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)

	// Match production: single connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	require.NoError(t, conn.Ping())
	require.NoError(t, db.Migrate(context.Background(), conn, zap.NewNop()))

	t.Cleanup(func() { conn.Close() })
	return conn
}

func newTestWriter(t *testing.T, conn *sql.DB, opts ...db.WorkerOption) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn, opts...)
	t.Cleanup(w.Close)
	return w
}

func seedTenant(t *testing.T, conn *sql.DB, id int64, name string, capacity int, enforced bool) {
	t.Helper()

	e := 0
	if enforced {
		e = 1
	}
	_, err := conn.Exec(`
INSERT INTO tenants(tenant_id, name, daily_capacity, capacity_enforced, ticket_prefix, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, '', 0, 0);`, id, name, capacity, e)
	require.NoError(t, err)
}

func event(card string, tenantID int64, day string) store.EventRecord {
	return store.EventRecord{
		CardNumber:      card,
		EmployeeID:      "E-" + card,
		EmployeeName:    "Employee " + card,
		TenantID:        tenantID,
		TenantName:      fmt.Sprintf("Tenant %d", tenantID),
		Source:          "tap",
		ClientRequestID: "req-" + card,
		EventTime:       day + " 12:00:00",
		DayKey:          day,
		QueueNumber:     1,
		Ticket:          "260215-001",
		CommittedAt:     time.Date(2026, 2, 15, 5, 0, 0, 0, time.UTC),
	}
}
