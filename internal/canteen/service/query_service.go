package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/BrandonDHaskell/canteen/internal/canteen/quota"
	"github.com/BrandonDHaskell/canteen/internal/canteen/store"
	"github.com/BrandonDHaskell/canteen/internal/canteen/types"
)

// QueryService answers read-only questions about the ledger. Nothing here
// takes the write scope, so every answer is advisory: it can be stale by the
// time the caller acts on it.
type QueryService struct {
	ledger store.LedgerReader
	norm   *Normalizer
}

func NewQueryService(ledger store.LedgerReader, norm *Normalizer) *QueryService {
	return &QueryService{ledger: ledger, norm: norm}
}

// QuotaState evaluates the target tenant against the current occupancy of
// day (blank = today).
func (s *QueryService) QuotaState(ctx context.Context, tenantID int64, day string) (types.QuotaState, error) {
	dayKey, err := s.norm.DayKey(day)
	if err != nil {
		return types.QuotaState{}, err
	}

	counts, err := s.ledger.TenantCounts(ctx, dayKey)
	if err != nil {
		return types.QuotaState{}, fmt.Errorf("quota state: %w", err)
	}
	target, loads, found := splitCounts(counts, tenantID)
	if !found {
		return types.QuotaState{}, fmt.Errorf("%w: %d", ErrUnknownTenant, tenantID)
	}

	v, err := quota.Evaluate(tenantID, loads)
	if err != nil {
		return types.QuotaState{}, fmt.Errorf("quota state: %w", err)
	}

	return types.QuotaState{
		TenantID:           target.TenantID,
		TenantName:         target.Name,
		DayKey:             dayKey,
		Capacity:           target.DailyCapacity,
		IsCapacityEnforced: target.CapacityEnforced,
		Occupancy:          target.Count,
		RemainingForTarget: v.RemainingPtr(),
		MaxRemainingAny:    v.MaxRemainingAny,
		CanOrderForTarget:  v.Admit,
		IsFreeMode:         v.FreeMode,
	}, nil
}

// HasEvent reports whether card already has an event on day.
func (s *QueryService) HasEvent(ctx context.Context, card, day string) (types.DuplicateCheck, error) {
	card = strings.TrimSpace(card)
	if card == "" {
		return types.DuplicateCheck{}, ErrInvalidCardNumber
	}
	dayKey, err := s.norm.DayKey(day)
	if err != nil {
		return types.DuplicateCheck{}, err
	}
	ok, err := s.ledger.HasEvent(ctx, card, dayKey)
	if err != nil {
		return types.DuplicateCheck{}, fmt.Errorf("has event: %w", err)
	}
	return types.DuplicateCheck{CardNumber: card, DayKey: dayKey, Exists: ok}, nil
}

// DailyCount is the tenant's occupancy on day.
func (s *QueryService) DailyCount(ctx context.Context, tenantID int64, day string) (types.DailyCount, error) {
	if tenantID <= 0 {
		return types.DailyCount{}, ErrInvalidTenant
	}
	dayKey, err := s.norm.DayKey(day)
	if err != nil {
		return types.DailyCount{}, err
	}
	n, err := s.ledger.DailyCount(ctx, tenantID, dayKey)
	if err != nil {
		return types.DailyCount{}, fmt.Errorf("daily count: %w", err)
	}
	return types.DailyCount{TenantID: tenantID, DayKey: dayKey, Count: n}, nil
}

// Occupancy lists every tenant's capacity and orders on day.
func (s *QueryService) Occupancy(ctx context.Context, day string) (types.OccupancyOverview, error) {
	dayKey, err := s.norm.DayKey(day)
	if err != nil {
		return types.OccupancyOverview{}, err
	}
	counts, err := s.ledger.TenantCounts(ctx, dayKey)
	if err != nil {
		return types.OccupancyOverview{}, fmt.Errorf("occupancy: %w", err)
	}

	out := types.OccupancyOverview{DayKey: dayKey, Tenants: make([]types.TenantOccupancy, 0, len(counts))}
	var capacitated, maxRemaining int
	for _, c := range counts {
		l := toLoad(c)
		row := types.TenantOccupancy{
			TenantID:           c.TenantID,
			TenantName:         c.Name,
			Capacity:           c.DailyCapacity,
			IsCapacityEnforced: c.CapacityEnforced,
			Ordered:            c.Count,
		}
		if l.Capacitated() {
			r := l.Remaining()
			row.Remaining = &r
			if capacitated == 0 || r > maxRemaining {
				maxRemaining = r
			}
			capacitated++
		}
		out.Tenants = append(out.Tenants, row)
	}
	out.IsFreeMode = capacitated > 0 && maxRemaining <= 0
	return out, nil
}
