package entity

// Tier names a routing role with its own primary/fallback preference,
// independent of the waterfall stage names.
type Tier string

const (
	TierPlanner  Tier = "planner"
	TierExecutor Tier = "executor"
)

// ValidTier reports whether t is a known preference tier.
func ValidTier(t Tier) bool {
	return t == TierPlanner || t == TierExecutor
}

// ModelRef points at a concrete backend/model pair.
type ModelRef struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// ModelPreference is the per-tier routing preference. AutoShift permits
// the router to fall back to the secondary when the primary fails in a
// retryable way.
type ModelPreference struct {
	Primary   ModelRef `json:"primary"`
	Fallback  ModelRef `json:"fallback"`
	AutoShift bool     `json:"auto_shift"`
}

// UsageSnapshot is a point-in-time read of the running counters.
type UsageSnapshot struct {
	TokensConsumed int64            `json:"tokens_consumed"`
	CostUSDAccrued float64          `json:"cost_usd_accrued"`
	RequestCount   int64            `json:"request_count"`
	PerModel       map[string]int64 `json:"per_model,omitempty"`
}
