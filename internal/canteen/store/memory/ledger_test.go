package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/canteen/internal/canteen/store"
	"github.com/BrandonDHaskell/canteen/internal/canteen/store/memory"
)

const day = "2026-02-15"

func newLedger(t *testing.T, opts ...memory.LedgerOption) (*memory.Directory, *memory.Ledger) {
	t.Helper()

	dir := memory.NewDirectory()
	dir.PutTenant(store.Tenant{TenantID: 1, Name: "Warung", DailyCapacity: 2, CapacityEnforced: true})
	dir.PutTenant(store.Tenant{TenantID: 2, Name: "Dapur", DailyCapacity: 0})
	return dir, memory.NewLedger(dir, opts...)
}

func insert(ctx context.Context, l store.Ledger, card string, tenantID int64) error {
	return l.WithWriteLock(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		_, err := tx.InsertEvent(ctx, store.EventRecord{CardNumber: card, TenantID: tenantID, DayKey: day})
		return err
	})
}

func TestLedger_CommitAndCounts(t *testing.T) {
	_, l := newLedger(t)
	ctx := context.Background()

	require.NoError(t, insert(ctx, l, "A", 1))
	require.NoError(t, insert(ctx, l, "B", 1))
	require.NoError(t, insert(ctx, l, "C", 2))

	has, _ := l.HasEvent(ctx, "A", day)
	assert.True(t, has)

	n, _ := l.DailyCount(ctx, 1, day)
	assert.Equal(t, 2, n)

	counts, err := l.TenantCounts(ctx, day)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, 2, counts[0].Count)
	assert.Equal(t, 1, counts[1].Count)

	evs := l.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, int64(3), evs[2].EventID)
}

func TestLedger_DuplicateAndUnknownTenant(t *testing.T) {
	_, l := newLedger(t)
	ctx := context.Background()

	require.NoError(t, insert(ctx, l, "A", 1))
	assert.ErrorIs(t, insert(ctx, l, "A", 2), store.ErrDuplicateEvent)
	assert.ErrorIs(t, insert(ctx, l, "Z", 9), store.ErrNotFound)
	assert.Len(t, l.Events(), 1)
}

func TestLedger_ErrorDiscardsStagedInserts(t *testing.T) {
	_, l := newLedger(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var seen bool
	err := l.WithWriteLock(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		if _, err := tx.InsertEvent(ctx, store.EventRecord{CardNumber: "A", TenantID: 1, DayKey: day}); err != nil {
			return err
		}
		seen, _ = tx.HasEvent(ctx, "A", day)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, seen, "staged insert visible inside the scope")
	assert.Empty(t, l.Events())

	// The id sequence is not consumed by a rolled-back insert.
	require.NoError(t, insert(ctx, l, "B", 1))
	assert.Equal(t, int64(1), l.Events()[0].EventID)
}

func TestLedger_BusyAfterBoundedWait(t *testing.T) {
	_, l := newLedger(t, memory.WithAcquireTimeout(30*time.Millisecond))
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- l.WithWriteLock(ctx, func(context.Context, store.LedgerTx) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := insert(ctx, l, "A", 1)
	assert.ErrorIs(t, err, store.ErrBusy)

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, insert(ctx, l, "A", 1))
}
