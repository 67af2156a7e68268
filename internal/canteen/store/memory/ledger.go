package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BrandonDHaskell/canteen/internal/canteen/store"
)

const defaultAcquireTimeout = 2 * time.Second

type cardDay struct {
	card string
	day  string
}

// Ledger is an in-memory store.Ledger. The write scope is a one-slot
// semaphore; inserts made inside it are staged and applied only when fn
// returns nil. Tenant configuration is read from the Directory.
type Ledger struct {
	dir            *Directory
	scope          chan struct{}
	acquireTimeout time.Duration

	mu        sync.RWMutex
	events    []store.EventRecord
	byCardDay map[cardDay]struct{}
}

type LedgerOption func(*Ledger)

func WithAcquireTimeout(d time.Duration) LedgerOption {
	return func(l *Ledger) {
		if d > 0 {
			l.acquireTimeout = d
		}
	}
}

func NewLedger(dir *Directory, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		dir:            dir,
		scope:          make(chan struct{}, 1),
		acquireTimeout: defaultAcquireTimeout,
		byCardDay:      make(map[cardDay]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) WithWriteLock(ctx context.Context, fn func(ctx context.Context, tx store.LedgerTx) error) error {
	timer := time.NewTimer(l.acquireTimeout)
	defer timer.Stop()

	select {
	case l.scope <- struct{}{}:
	case <-timer.C:
		return fmt.Errorf("acquire write scope: %w", store.ErrBusy)
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.scope }()

	l.mu.RLock()
	base := int64(len(l.events))
	l.mu.RUnlock()

	tx := &ledgerTx{l: l, nextID: base + 1}
	if err := fn(context.WithoutCancel(ctx), tx); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range tx.staged {
		l.events = append(l.events, rec)
		l.byCardDay[cardDay{rec.CardNumber, rec.DayKey}] = struct{}{}
	}
	return nil
}

func (l *Ledger) HasEvent(_ context.Context, cardNumber, dayKey string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.byCardDay[cardDay{cardNumber, dayKey}]
	return ok, nil
}

func (l *Ledger) DailyCount(_ context.Context, tenantID int64, dayKey string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.countLocked(tenantID, dayKey, nil), nil
}

func (l *Ledger) TenantCounts(_ context.Context, dayKey string) ([]store.TenantCount, error) {
	tenants := l.dir.allTenants()
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]store.TenantCount, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, store.TenantCount{Tenant: t, Count: l.countLocked(t.TenantID, dayKey, nil)})
	}
	return out, nil
}

// Events returns a copy of all committed events.  Test-only helper.
func (l *Ledger) Events() []store.EventRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]store.EventRecord, len(l.events))
	copy(out, l.events)
	return out
}

func (l *Ledger) countLocked(tenantID int64, dayKey string, staged []store.EventRecord) int {
	n := 0
	for _, evs := range [][]store.EventRecord{l.events, staged} {
		for _, ev := range evs {
			if ev.TenantID == tenantID && ev.DayKey == dayKey {
				n++
			}
		}
	}
	return n
}

// ledgerTx sees committed events plus its own staged inserts.
type ledgerTx struct {
	l      *Ledger
	staged []store.EventRecord
	nextID int64
}

func (tx *ledgerTx) HasEvent(ctx context.Context, cardNumber, dayKey string) (bool, error) {
	for _, ev := range tx.staged {
		if ev.CardNumber == cardNumber && ev.DayKey == dayKey {
			return true, nil
		}
	}
	return tx.l.HasEvent(ctx, cardNumber, dayKey)
}

func (tx *ledgerTx) DailyCount(_ context.Context, tenantID int64, dayKey string) (int, error) {
	tx.l.mu.RLock()
	defer tx.l.mu.RUnlock()
	return tx.l.countLocked(tenantID, dayKey, tx.staged), nil
}

func (tx *ledgerTx) TenantCounts(_ context.Context, dayKey string) ([]store.TenantCount, error) {
	tenants := tx.l.dir.allTenants()
	tx.l.mu.RLock()
	defer tx.l.mu.RUnlock()
	out := make([]store.TenantCount, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, store.TenantCount{Tenant: t, Count: tx.l.countLocked(t.TenantID, dayKey, tx.staged)})
	}
	return out, nil
}

func (tx *ledgerTx) InsertEvent(ctx context.Context, rec store.EventRecord) (int64, error) {
	dup, err := tx.HasEvent(ctx, rec.CardNumber, rec.DayKey)
	if err != nil {
		return 0, err
	}
	if dup {
		return 0, fmt.Errorf("insert %s/%s: %w", rec.CardNumber, rec.DayKey, store.ErrDuplicateEvent)
	}
	if _, err := tx.l.dir.TenantByID(ctx, rec.TenantID); err != nil {
		return 0, fmt.Errorf("insert: tenant %d: %w", rec.TenantID, err)
	}
	rec.EventID = tx.nextID
	tx.nextID++
	tx.staged = append(tx.staged, rec)
	return rec.EventID, nil
}
