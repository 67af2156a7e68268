package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/canteen/internal/canteen/store"
	sqlitestore "github.com/BrandonDHaskell/canteen/internal/canteen/store/sqlite"
	"github.com/BrandonDHaskell/canteen/internal/db"
)

func newSeededDirectory(t *testing.T) *sqlitestore.DirectoryStore {
	t.Helper()

	conn := openTestDB(t)
	require.NoError(t, db.SeedDev(context.Background(), conn))
	return sqlitestore.NewDirectoryStore(conn)
}

func TestDirectoryStore_EmployeeByCard(t *testing.T) {
	ds := newSeededDirectory(t)
	ctx := context.Background()

	e, err := ds.EmployeeByCard(ctx, " 0001234567 ")
	require.NoError(t, err)
	assert.Equal(t, "E0001", e.EmployeeID)
	assert.Equal(t, "Engineering", e.Group)
	assert.True(t, e.Eligible())

	e, err = ds.EmployeeByCard(ctx, "0001234570")
	require.NoError(t, err)
	assert.True(t, e.Disabled)
	assert.False(t, e.Eligible())

	_, err = ds.EmployeeByCard(ctx, "9999999999")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = ds.EmployeeByCard(ctx, "  ")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDirectoryStore_TenantByID(t *testing.T) {
	ds := newSeededDirectory(t)
	ctx := context.Background()

	tn, err := ds.TenantByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Warung Yanti", tn.Name)
	assert.Equal(t, 40, tn.DailyCapacity)
	assert.True(t, tn.CapacityEnforced)
	assert.Equal(t, "YN", tn.TicketPrefix)
	assert.True(t, tn.Capacitated())

	tn, err = ds.TenantByID(ctx, 3)
	require.NoError(t, err)
	assert.False(t, tn.Capacitated())

	_, err = ds.TenantByID(ctx, 42)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDirectoryStore_DeviceByCode(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, db.SeedDev(context.Background(), conn))
	_, err := conn.Exec(`INSERT INTO devices(device_code, tenant_id, enabled, created_at_ms, updated_at_ms) VALUES ('loose', NULL, 1, 0, 0);`)
	require.NoError(t, err)
	ds := sqlitestore.NewDirectoryStore(conn)
	ctx := context.Background()

	d, err := ds.DeviceByCode(ctx, "reader-rima")
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.TenantID)
	assert.True(t, d.Enabled)
	assert.True(t, d.LastSeen.IsZero())

	d, err = ds.DeviceByCode(ctx, "loose")
	require.NoError(t, err)
	assert.Zero(t, d.TenantID)

	_, err = ds.DeviceByCode(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDirectoryStore_LoadDirectory(t *testing.T) {
	ds := newSeededDirectory(t)

	dir, err := ds.LoadDirectory(context.Background())
	require.NoError(t, err)
	assert.Len(t, dir.Employees, 4)
	assert.Len(t, dir.Tenants, 3)
	assert.Len(t, dir.Devices, 3)
	assert.Equal(t, int64(1), dir.Tenants[0].TenantID)
	assert.Equal(t, "0001234567", dir.Employees[0].CardNumber)
}
