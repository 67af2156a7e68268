package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/canteen/internal/canteen/service"
	"github.com/BrandonDHaskell/canteen/internal/canteen/store"
)

func TestQuotaState_ReflectsOccupancy(t *testing.T) {
	f := newFixture(t, 4, capped(1, "Warung", 2), capped(2, "Dapur", 5), store.Tenant{TenantID: 3, Name: "Kopi"})
	q := service.NewQueryService(f.ledger, newNormalizer())
	ctx := context.Background()

	f.admit(t, card(1), 1)

	st, err := q.QuotaState(ctx, 1, "")
	require.NoError(t, err)
	assert.Equal(t, "Warung", st.TenantName)
	assert.Equal(t, testDay, st.DayKey)
	assert.Equal(t, 2, st.Capacity)
	assert.True(t, st.IsCapacityEnforced)
	assert.Equal(t, 1, st.Occupancy)
	require.NotNil(t, st.RemainingForTarget)
	assert.Equal(t, 1, *st.RemainingForTarget)
	assert.Equal(t, 5, st.MaxRemainingAny)
	assert.True(t, st.CanOrderForTarget)
	assert.False(t, st.IsFreeMode)

	f.admit(t, card(2), 1)
	st, err = q.QuotaState(ctx, 1, testDay)
	require.NoError(t, err)
	assert.False(t, st.CanOrderForTarget)

	st, err = q.QuotaState(ctx, 3, "")
	require.NoError(t, err)
	assert.Nil(t, st.RemainingForTarget)
	assert.True(t, st.CanOrderForTarget)
}

func TestQuotaState_IsSideEffectFree(t *testing.T) {
	f := newFixture(t, 1, capped(1, "Warung", 2))
	q := service.NewQueryService(f.ledger, newNormalizer())

	for i := 0; i < 10; i++ {
		_, err := q.QuotaState(context.Background(), 1, "")
		require.NoError(t, err)
	}
	assert.Empty(t, f.ledger.Events())
}

func TestQuotaState_FreeMode(t *testing.T) {
	f := newFixture(t, 2, capped(1, "Warung", 1), capped(2, "Dapur", 1))
	f.admit(t, card(1), 1)
	f.admit(t, card(2), 2)

	st, err := service.NewQueryService(f.ledger, newNormalizer()).QuotaState(context.Background(), 2, "")
	require.NoError(t, err)
	assert.True(t, st.IsFreeMode)
	assert.True(t, st.CanOrderForTarget)
	assert.Equal(t, 0, st.MaxRemainingAny)
}

func TestQuotaState_Errors(t *testing.T) {
	f := newFixture(t, 1, capped(1, "Warung", 1))
	q := service.NewQueryService(f.ledger, newNormalizer())

	_, err := q.QuotaState(context.Background(), 9, "")
	assert.ErrorIs(t, err, service.ErrUnknownTenant)

	_, err = q.QuotaState(context.Background(), 1, "15-02-2026")
	assert.ErrorIs(t, err, service.ErrInvalidDay)
}

func TestQueries_HasEventDailyCountOccupancy(t *testing.T) {
	f := newFixture(t, 3, capped(1, "Warung", 2), store.Tenant{TenantID: 2, Name: "Kopi"})
	q := service.NewQueryService(f.ledger, newNormalizer())
	ctx := context.Background()

	f.admit(t, card(1), 1)
	f.admit(t, card(2), 1)
	f.admit(t, card(3), 2)

	dc, err := q.HasEvent(ctx, card(1), "")
	require.NoError(t, err)
	assert.True(t, dc.Exists)

	dc, err = q.HasEvent(ctx, card(1), "2026-02-14")
	require.NoError(t, err)
	assert.False(t, dc.Exists)

	_, err = q.HasEvent(ctx, "", "")
	assert.ErrorIs(t, err, service.ErrInvalidCardNumber)

	n, err := q.DailyCount(ctx, 1, testDay)
	require.NoError(t, err)
	assert.Equal(t, 2, n.Count)

	ov, err := q.Occupancy(ctx, "")
	require.NoError(t, err)
	assert.True(t, ov.IsFreeMode, "the only capacitated tenant is full")
	require.Len(t, ov.Tenants, 2)
	require.NotNil(t, ov.Tenants[0].Remaining)
	assert.Equal(t, 0, *ov.Tenants[0].Remaining)
	assert.Equal(t, 2, ov.Tenants[0].Ordered)
	assert.Nil(t, ov.Tenants[1].Remaining)
	assert.Equal(t, 1, ov.Tenants[1].Ordered)
}
