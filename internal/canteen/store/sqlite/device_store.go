package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/canteen/internal/db"
)

type DeviceStore struct {
	writer *dbpkg.Worker
}

func NewDeviceStore(writer *dbpkg.Worker) *DeviceStore {
	return &DeviceStore{writer: writer}
}

// MarkSeen records a tap from a registered reader. Unregistered device codes
// are not inserted; registration belongs to the external registry.
func (s *DeviceStore) MarkSeen(ctx context.Context, deviceCode string, t time.Time) error {
	deviceCode = strings.TrimSpace(deviceCode)
	if deviceCode == "" {
		return nil
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	ms := t.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
UPDATE devices
SET last_seen_at_ms = ?,
    updated_at_ms   = ?
WHERE device_code = ?;
`, ms, ms, deviceCode); err != nil {
			return fmt.Errorf("MarkSeen update device: %w", err)
		}
		return nil
	})
}
