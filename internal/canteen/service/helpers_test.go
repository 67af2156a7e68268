package service_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/BrandonDHaskell/canteen/internal/canteen/service"
	"github.com/BrandonDHaskell/canteen/internal/canteen/store"
	"github.com/BrandonDHaskell/canteen/internal/canteen/store/memory"
	"github.com/BrandonDHaskell/canteen/internal/canteen/types"
	"github.com/BrandonDHaskell/canteen/internal/db"
)

var wib = time.FixedZone("WIB", 7*60*60)

// Noon local on the test day.
var testNow = time.Date(2026, 2, 15, 12, 0, 0, 0, wib)

const testDay = "2026-02-15"

func fixedClock() time.Time { return testNow }

func newNormalizer() *service.Normalizer {
	return service.NewNormalizer(wib, fixedClock)
}

// newTestDirectory returns a directory with employees for cards
// C01..C<n>, all eligible.
func newTestDirectory(cards int) *memory.Directory {
	d := memory.NewDirectory()
	for i := 1; i <= cards; i++ {
		d.PutEmployee(store.Employee{
			EmployeeID: fmt.Sprintf("E%02d", i),
			CardNumber: fmt.Sprintf("C%02d", i),
			Name:       fmt.Sprintf("Employee %d", i),
			Group:      "Ops",
		})
	}
	return d
}

func card(i int) string { return fmt.Sprintf("C%02d", i) }

// publisherRecorder collects committed events.
type publisherRecorder struct {
	mu  sync.Mutex
	evs []types.CommittedEvent
}

func (p *publisherRecorder) Publish(ev types.CommittedEvent) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evs = append(p.evs, ev)
	return true
}

func (p *publisherRecorder) Events() []types.CommittedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.CommittedEvent(nil), p.evs...)
}

// observerRecorder collects admission outcomes.
type observerRecorder struct {
	mu   sync.Mutex
	seen []string
}

func (o *observerRecorder) ObserveAdmission(status, reason string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, status+"/"+reason)
}

func (o *observerRecorder) Seen() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.seen...)
}

// countingLedger counts write-scope entries.
type countingLedger struct {
	store.Ledger
	scopes atomic.Int32
}

func (c *countingLedger) WithWriteLock(ctx context.Context, fn func(context.Context, store.LedgerTx) error) error {
	c.scopes.Add(1)
	return c.Ledger.WithWriteLock(ctx, fn)
}

// blindLedger hides committed events from the in-scope duplicate check so
// only the uniqueness constraint can catch a repeat.
type blindLedger struct {
	store.Ledger
}

func (b blindLedger) WithWriteLock(ctx context.Context, fn func(context.Context, store.LedgerTx) error) error {
	return b.Ledger.WithWriteLock(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		return fn(ctx, blindTx{tx})
	})
}

type blindTx struct {
	store.LedgerTx
}

func (blindTx) HasEvent(context.Context, string, string) (bool, error) { return false, nil }

type fixture struct {
	svc    *service.AdmissionService
	dir    *memory.Directory
	ledger *memory.Ledger
	pub    *publisherRecorder
}

func newFixture(t *testing.T, cards int, tenants ...store.Tenant) *fixture {
	t.Helper()

	dir := newTestDirectory(cards)
	for _, tn := range tenants {
		dir.PutTenant(tn)
	}
	ledger := memory.NewLedger(dir)
	pub := &publisherRecorder{}
	devices := service.NewDeviceRegistry(dir, dir, zap.NewNop())
	t.Cleanup(func() { _ = devices.Close(context.Background()) })
	svc := service.NewAdmissionService(dir, ledger, newNormalizer(), zap.NewNop(),
		service.WithPublisher(pub),
		service.WithDeviceRegistry(devices),
	)
	return &fixture{svc: svc, dir: dir, ledger: ledger, pub: pub}
}

func (f *fixture) admit(t *testing.T, cardNumber string, tenantID int64) types.AdmissionResponse {
	t.Helper()

	resp, err := f.svc.Admit(context.Background(), types.AdmissionRequest{
		CardNumber: cardNumber,
		TenantID:   tenantID,
	})
	require.NoError(t, err)
	return resp
}

func capped(id int64, name string, capacity int) store.Tenant {
	return store.Tenant{TenantID: id, Name: name, DailyCapacity: capacity, CapacityEnforced: true}
}

// openSQLite returns a migrated in-memory database and its write worker.
func openSQLite(t *testing.T, opts ...db.WorkerOption) (*sql.DB, *db.Worker) {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := sql.Open("sqlite", fmt.Sprintf(
		"file:svctest_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate",
		name,
	))
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	require.NoError(t, db.Migrate(context.Background(), conn, zap.NewNop()))

	w := db.NewWorker(conn, opts...)
	t.Cleanup(func() {
		w.Close()
		conn.Close()
	})
	return conn, w
}
