// Package store defines the persistence boundary of the admission core:
// read-only directory lookups and the consumption ledger with its single
// serialized write scope.
package store

import "errors"

var (
	// ErrNotFound is returned by point lookups that match no row.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEvent is a uniqueness violation on (card_number, day_key).
	ErrDuplicateEvent = errors.New("duplicate consumption event")

	// ErrBusy means the write scope could not be acquired in time.
	ErrBusy = errors.New("ledger busy")
)
