package types

// QuotaState is the advisory snapshot returned by the quota-state query.
// It is computed without the write scope and may be stale by the time a
// caller acts on it.
type QuotaState struct {
	TenantID           int64  `json:"tenant_id"`
	TenantName         string `json:"tenant_name"`
	DayKey             string `json:"day_key"`
	Capacity           int    `json:"capacity"`
	IsCapacityEnforced bool   `json:"is_capacity_enforced"`
	Occupancy          int    `json:"occupancy"`
	RemainingForTarget *int   `json:"remaining_for_target"` // nil when the tenant is uncapped
	MaxRemainingAny    int    `json:"max_remaining_any"`
	CanOrderForTarget  bool   `json:"can_order_for_target"`
	IsFreeMode         bool   `json:"is_free_mode"`
}

// TenantOccupancy is one row of the per-day occupancy overview.
type TenantOccupancy struct {
	TenantID           int64  `json:"tenant_id"`
	TenantName         string `json:"tenant_name"`
	Capacity           int    `json:"capacity"`
	IsCapacityEnforced bool   `json:"is_capacity_enforced"`
	Ordered            int    `json:"ordered"`
	Remaining          *int   `json:"remaining"` // nil when uncapped
}

type OccupancyOverview struct {
	DayKey     string            `json:"day_key"`
	IsFreeMode bool              `json:"is_free_mode"`
	Tenants    []TenantOccupancy `json:"tenants"`
}

type DuplicateCheck struct {
	CardNumber string `json:"card_number"`
	DayKey     string `json:"day_key"`
	Exists     bool   `json:"exists"`
}

type DailyCount struct {
	TenantID int64  `json:"tenant_id"`
	DayKey   string `json:"day_key"`
	Count    int    `json:"count"`
}
