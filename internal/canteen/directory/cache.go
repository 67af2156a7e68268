// Package directory holds the process-wide lookup cache for employees,
// tenants and reader devices.
package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-memdb"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/canteen/internal/canteen/store"
)

// DefaultMaxAge is the staleness bound used when Config.MaxAge is zero.
const DefaultMaxAge = 5 * time.Minute

type Config struct {
	// MaxAge bounds how old a served entry may be. A lookup against a
	// snapshot older than this refreshes it first; if that refresh fails
	// the lookup goes straight to the source.
	MaxAge time.Duration

	// Now is the clock; defaults to time.Now.
	Now func() time.Time

	// OnRefresh, if set, is told the outcome of every full reload.
	OnRefresh func(error)
}

// Cache is a read-through cache over a store.DirectoryStore. It implements
// store.DirectoryStore itself and is safe for concurrent use. Entries that
// miss the snapshot are fetched from the source and added to it.
type Cache struct {
	src       store.DirectoryStore
	log       *zap.Logger
	maxAge    time.Duration
	now       func() time.Time
	onRefresh func(error)

	refreshMu sync.Mutex
	snap      atomic.Pointer[snapshot]
}

type snapshot struct {
	db       *memdb.MemDB
	loadedAt time.Time
}

var _ store.DirectoryStore = (*Cache)(nil)

// New builds an empty cache. The first lookup loads it; call Refresh to
// load it eagerly.
func New(src store.DirectoryStore, cfg Config, log *zap.Logger) *Cache {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		src:       src,
		log:       log.Named("directory"),
		maxAge:    cfg.MaxAge,
		now:       cfg.Now,
		onRefresh: cfg.OnRefresh,
	}
}

// Refresh replaces the snapshot with a full load from the source. Readers
// keep using the previous snapshot until the new one is complete.
func (c *Cache) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *Cache) refreshLocked(ctx context.Context) error {
	err := c.load(ctx)
	if c.onRefresh != nil {
		c.onRefresh(err)
	}
	return err
}

func (c *Cache) load(ctx context.Context) error {
	dir, err := c.src.LoadDirectory(ctx)
	if err != nil {
		return fmt.Errorf("directory refresh: %w", err)
	}

	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return fmt.Errorf("directory refresh: %w", err)
	}

	txn := db.Txn(true)
	defer txn.Abort()
	for i := range dir.Employees {
		if err := txn.Insert(tableEmployees, &dir.Employees[i]); err != nil {
			return fmt.Errorf("directory refresh employee %s: %w", dir.Employees[i].CardNumber, err)
		}
	}
	for i := range dir.Tenants {
		if err := txn.Insert(tableTenants, &dir.Tenants[i]); err != nil {
			return fmt.Errorf("directory refresh tenant %d: %w", dir.Tenants[i].TenantID, err)
		}
	}
	for i := range dir.Devices {
		if err := txn.Insert(tableDevices, &dir.Devices[i]); err != nil {
			return fmt.Errorf("directory refresh device %s: %w", dir.Devices[i].DeviceCode, err)
		}
	}
	txn.Commit()

	c.snap.Store(&snapshot{db: db, loadedAt: c.now()})
	c.log.Debug("directory refreshed",
		zap.Int("employees", len(dir.Employees)),
		zap.Int("tenants", len(dir.Tenants)),
		zap.Int("devices", len(dir.Devices)),
	)
	return nil
}

// LoadedAt is when the current snapshot was loaded; zero before the first load.
func (c *Cache) LoadedAt() time.Time {
	if s := c.snap.Load(); s != nil {
		return s.loadedAt
	}
	return time.Time{}
}

// fresh returns a snapshot within the staleness bound, or nil if none could
// be loaded.
func (c *Cache) fresh(ctx context.Context) *snapshot {
	if s := c.snap.Load(); s != nil && c.now().Sub(s.loadedAt) <= c.maxAge {
		return s
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	if s := c.snap.Load(); s != nil && c.now().Sub(s.loadedAt) <= c.maxAge {
		return s
	}
	if err := c.refreshLocked(ctx); err != nil {
		c.log.Warn("directory refresh failed, reading through", zap.Error(err))
		return nil
	}
	return c.snap.Load()
}

// lookup returns the cached row for (table, key), falling back to load and
// remembering its result.
func lookup[T any](ctx context.Context, c *Cache, table string, key any, load func() (T, error)) (T, error) {
	s := c.fresh(ctx)
	if s != nil {
		raw, err := s.db.Txn(false).First(table, indexID, key)
		if err == nil && raw != nil {
			return *raw.(*T), nil
		}
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	if s != nil {
		txn := s.db.Txn(true)
		if err := txn.Insert(table, &v); err != nil {
			txn.Abort()
			c.log.Debug("directory cache insert failed", zap.String("table", table), zap.Error(err))
		} else {
			txn.Commit()
		}
	}
	return v, nil
}

func (c *Cache) EmployeeByCard(ctx context.Context, cardNumber string) (store.Employee, error) {
	cardNumber = strings.TrimSpace(cardNumber)
	if cardNumber == "" {
		return store.Employee{}, store.ErrNotFound
	}
	return lookup(ctx, c, tableEmployees, cardNumber, func() (store.Employee, error) {
		return c.src.EmployeeByCard(ctx, cardNumber)
	})
}

func (c *Cache) TenantByID(ctx context.Context, tenantID int64) (store.Tenant, error) {
	return lookup(ctx, c, tableTenants, tenantID, func() (store.Tenant, error) {
		return c.src.TenantByID(ctx, tenantID)
	})
}

func (c *Cache) DeviceByCode(ctx context.Context, deviceCode string) (store.Device, error) {
	deviceCode = strings.TrimSpace(deviceCode)
	if deviceCode == "" {
		return store.Device{}, store.ErrNotFound
	}
	return lookup(ctx, c, tableDevices, deviceCode, func() (store.Device, error) {
		return c.src.DeviceByCode(ctx, deviceCode)
	})
}

// LoadDirectory always reads the source.
func (c *Cache) LoadDirectory(ctx context.Context) (store.Directory, error) {
	return c.src.LoadDirectory(ctx)
}
