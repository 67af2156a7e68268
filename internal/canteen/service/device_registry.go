package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/canteen/internal/canteen/store"
)

const (
	seenBuffer  = 128
	seenTimeout = 2 * time.Second
)

type sighting struct {
	deviceCode string
	at         time.Time
}

// DeviceRegistry maps reader devices to the tenant they serve and records
// when each device was last seen. Last-seen writes run on a background
// goroutine so they never delay an admission answer.
type DeviceRegistry struct {
	dir   store.DirectoryStore
	store store.DeviceStore // optional
	log   *zap.Logger

	seen chan sighting
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewDeviceRegistry(dir store.DirectoryStore, st store.DeviceStore, log *zap.Logger) *DeviceRegistry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &DeviceRegistry{
		dir:   dir,
		store: st,
		log:   log.Named("devices"),
		done:  make(chan struct{}),
	}
	if st == nil {
		close(r.done)
		return r
	}
	r.seen = make(chan sighting, seenBuffer)
	go r.loop()
	return r
}

// TenantFor returns the tenant served by deviceCode. ok is false for an
// unknown, disabled or unassigned device.
func (r *DeviceRegistry) TenantFor(ctx context.Context, deviceCode string) (tenantID int64, ok bool, err error) {
	deviceCode = strings.TrimSpace(deviceCode)
	if deviceCode == "" {
		return 0, false, nil
	}
	d, err := r.dir.DeviceByCode(ctx, deviceCode)
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if !d.Enabled || d.TenantID == 0 {
		return 0, false, nil
	}
	return d.TenantID, true, nil
}

// NoteSeen queues a last-seen update for deviceCode and returns at once.
// The update is dropped if the queue is full or the registry is closed.
func (r *DeviceRegistry) NoteSeen(deviceCode string, t time.Time) bool {
	deviceCode = strings.TrimSpace(deviceCode)
	if deviceCode == "" || r.seen == nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.closed {
		select {
		case r.seen <- sighting{deviceCode: deviceCode, at: t.UTC()}:
			return true
		default:
		}
	}
	r.log.Debug("device sighting dropped", zap.String("device_code", deviceCode), zap.Bool("closed", r.closed))
	return false
}

// Close stops accepting sightings and waits for queued ones to be written.
func (r *DeviceRegistry) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		if r.seen != nil {
			close(r.seen)
		}
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *DeviceRegistry) loop() {
	defer close(r.done)

	for s := range r.seen {
		ctx, cancel := context.WithTimeout(context.Background(), seenTimeout)
		if err := r.store.MarkSeen(ctx, s.deviceCode, s.at); err != nil {
			r.log.Debug("device mark seen failed", zap.String("device_code", s.deviceCode), zap.Error(err))
		}
		cancel()
	}
}
