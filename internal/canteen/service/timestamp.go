package service

import (
	"fmt"
	"strings"
	"time"
)

const (
	// LocalLayout is the canonical stored form of an event time.
	LocalLayout = "2006-01-02 15:04:05"
	// DayLayout is the day key form.
	DayLayout = "2006-01-02"
)

// Layouts tried for timestamps that carry no offset; those are read in the
// service's local zone.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	DayLayout,
}

// EventTime is a normalized event timestamp.
type EventTime struct {
	Instant time.Time // in the service's zone
	Local   string    // YYYY-MM-DD HH:MM:SS
	DayKey  string    // YYYY-MM-DD
}

// Normalizer turns optional client timestamps into local event times. All
// day keys in the service come from one Normalizer so they share a zone.
type Normalizer struct {
	loc *time.Location
	now func() time.Time
}

func NewNormalizer(loc *time.Location, now func() time.Time) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &Normalizer{loc: loc, now: now}
}

func (n *Normalizer) Location() *time.Location { return n.loc }

// Normalize parses raw, or uses the current time when raw is blank.
// Timestamps with an offset are converted to the local zone; those without
// are taken as already local. Anything else is ErrInvalidTimestamp.
func (n *Normalizer) Normalize(raw string) (EventTime, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return n.At(n.now()), nil
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return n.At(t), nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, n.loc); err == nil {
			return n.At(t), nil
		}
	}
	return EventTime{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
}

// At normalizes an instant.
func (n *Normalizer) At(t time.Time) EventTime {
	local := t.In(n.loc)
	return EventTime{
		Instant: local,
		Local:   local.Format(LocalLayout),
		DayKey:  local.Format(DayLayout),
	}
}

// Today is the current day key.
func (n *Normalizer) Today() string {
	return n.now().In(n.loc).Format(DayLayout)
}

// DayKey validates a caller-supplied day key; blank means today.
func (n *Normalizer) DayKey(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return n.Today(), nil
	}
	if _, err := time.ParseInLocation(DayLayout, raw, n.loc); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDay, raw)
	}
	return raw, nil
}
