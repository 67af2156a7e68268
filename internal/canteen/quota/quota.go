// Package quota holds the pure parts of admission: the quota evaluator with
// its free-mode fallback, and queue number / ticket assignment.
package quota

import (
	"errors"
	"fmt"

	"github.com/BrandonDHaskell/canteen/internal/canteen/types"
)

// ErrUnknownTenant is returned when the target is missing from the snapshot.
var ErrUnknownTenant = errors.New("tenant not in occupancy snapshot")

// Load is one tenant's capacity configuration and its occupancy for a day.
type Load struct {
	TenantID int64
	Capacity int // 0 = uncapped
	Enforced bool
	Ordered  int
}

// Capacitated reports whether the tenant takes part in quota accounting.
func (l Load) Capacitated() bool { return l.Enforced && l.Capacity > 0 }

// Remaining may be negative once free mode has admitted past capacity.
func (l Load) Remaining() int { return l.Capacity - l.Ordered }

type Verdict struct {
	Admit  bool
	Reason string // ok, unlimited, free_mode or quota_exceeded

	TargetCapacitated  bool
	RemainingForTarget int // meaningful only when TargetCapacitated
	MaxRemainingAny    int // 0 when no tenant is capacitated
	FreeMode           bool
}

// RemainingPtr returns RemainingForTarget, or nil for an uncapped target.
func (v Verdict) RemainingPtr() *int {
	if !v.TargetCapacitated {
		return nil
	}
	r := v.RemainingForTarget
	return &r
}

// Evaluate decides whether one more event may be admitted for targetID given
// the occupancy snapshot loads. It has no side effects; callers that act on
// the verdict must take the snapshot inside the write scope.
func Evaluate(targetID int64, loads []Load) (Verdict, error) {
	var (
		target      Load
		found       bool
		capacitated int
		v           Verdict
	)
	for _, l := range loads {
		if l.TenantID == targetID {
			target, found = l, true
		}
		if !l.Capacitated() {
			continue
		}
		if capacitated == 0 || l.Remaining() > v.MaxRemainingAny {
			v.MaxRemainingAny = l.Remaining()
		}
		capacitated++
	}
	if !found {
		return Verdict{}, fmt.Errorf("evaluate tenant %d: %w", targetID, ErrUnknownTenant)
	}

	v.FreeMode = capacitated > 0 && v.MaxRemainingAny <= 0
	v.TargetCapacitated = target.Capacitated()

	switch {
	case !v.TargetCapacitated:
		v.Admit, v.Reason = true, types.ReasonUnlimited
	case target.Remaining() > 0:
		v.RemainingForTarget = target.Remaining()
		v.Admit, v.Reason = true, types.ReasonOK
	case v.MaxRemainingAny > 0:
		v.RemainingForTarget = target.Remaining()
		v.Admit, v.Reason = false, types.ReasonQuotaExceeded
	default:
		v.RemainingForTarget = target.Remaining()
		v.Admit, v.Reason = true, types.ReasonFreeMode
	}
	return v, nil
}
