package entity

// Complexity is the caller-declared difficulty class of a task.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// RiskLevel buckets an estimate by its total token footprint.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// CostEstimate is the output of the pure cost model. Reason is advisory
// only and carries no control-flow effect inside the estimator.
type CostEstimate struct {
	EstimatedTokens  int       `json:"estimated_tokens"`
	EstimatedCostUSD float64   `json:"estimated_cost_usd"`
	RiskLevel        RiskLevel `json:"risk_level"`
	Reason           string    `json:"reason,omitempty"`
}
