package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/canteen/internal/canteen/store"
)

// Directory is an in-memory DirectoryStore and DeviceStore for tests and
// dev environments.
type Directory struct {
	mu        sync.RWMutex
	employees map[string]store.Employee // by card number
	tenants   map[int64]store.Tenant
	devices   map[string]store.Device
}

func NewDirectory() *Directory {
	return &Directory{
		employees: make(map[string]store.Employee),
		tenants:   make(map[int64]store.Tenant),
		devices:   make(map[string]store.Device),
	}
}

func (d *Directory) PutEmployee(e store.Employee) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.employees[e.CardNumber] = e
}

func (d *Directory) PutTenant(t store.Tenant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tenants[t.TenantID] = t
}

func (d *Directory) PutDevice(dev store.Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices[dev.DeviceCode] = dev
}

func (d *Directory) EmployeeByCard(_ context.Context, cardNumber string) (store.Employee, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.employees[strings.TrimSpace(cardNumber)]
	if !ok {
		return store.Employee{}, store.ErrNotFound
	}
	return e, nil
}

func (d *Directory) TenantByID(_ context.Context, tenantID int64) (store.Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tenants[tenantID]
	if !ok {
		return store.Tenant{}, store.ErrNotFound
	}
	return t, nil
}

func (d *Directory) DeviceByCode(_ context.Context, deviceCode string) (store.Device, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dev, ok := d.devices[strings.TrimSpace(deviceCode)]
	if !ok {
		return store.Device{}, store.ErrNotFound
	}
	return dev, nil
}

func (d *Directory) LoadDirectory(_ context.Context) (store.Directory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out store.Directory
	for _, e := range d.employees {
		out.Employees = append(out.Employees, e)
	}
	out.Tenants = d.tenantList()
	for _, dev := range d.devices {
		out.Devices = append(out.Devices, dev)
	}
	sort.Slice(out.Employees, func(i, j int) bool { return out.Employees[i].CardNumber < out.Employees[j].CardNumber })
	sort.Slice(out.Devices, func(i, j int) bool { return out.Devices[i].DeviceCode < out.Devices[j].DeviceCode })
	return out, nil
}

// MarkSeen updates last-seen for a known device. Unknown devices are ignored.
func (d *Directory) MarkSeen(_ context.Context, deviceCode string, t time.Time) error {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	dev, ok := d.devices[deviceCode]
	if !ok {
		return nil
	}
	dev.LastSeen = t
	d.devices[deviceCode] = dev
	return nil
}

// tenantList returns tenants ordered by id. Caller holds d.mu.
func (d *Directory) tenantList() []store.Tenant {
	out := make([]store.Tenant, 0, len(d.tenants))
	for _, t := range d.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out
}

func (d *Directory) allTenants() []store.Tenant {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tenantList()
}
