package usecase

import (
	"fmt"

	"relay-core/internal/domain/entity"
)

// DefaultRatePerMillion is the blended USD price per million tokens used
// when no rate is configured.
const DefaultRatePerMillion = 0.30

// Risk thresholds by total estimated tokens.
const (
	riskCriticalAbove = 15000
	riskHighAbove     = 8000
	riskMediumAbove   = 3000
)

// CostEstimator maps a complexity class and prompt size to a token,
// cost and risk estimate. Pure computation, no side effects.
type CostEstimator struct {
	ratePerMillion float64
}

// NewCostEstimator builds an estimator; rate <= 0 selects the default.
func NewCostEstimator(ratePerMillion float64) *CostEstimator {
	if ratePerMillion <= 0 {
		ratePerMillion = DefaultRatePerMillion
	}
	return &CostEstimator{ratePerMillion: ratePerMillion}
}

// Estimate computes the token allowance for the complexity class plus a
// prompt overhead of ceil(promptLength/4) tokens. Reason is advisory and
// populated only for high-complexity tasks; gating on it is the caller's
// policy decision.
func (e *CostEstimator) Estimate(complexity entity.Complexity, promptLength int) entity.CostEstimate {
	var base int
	switch complexity {
	case entity.ComplexityLow:
		base = 500
	case entity.ComplexityMedium:
		base = 2500
	case entity.ComplexityHigh:
		base = 10000
	default:
		base = 1000
	}

	overhead := 0
	if promptLength > 0 {
		overhead = (promptLength + 3) / 4
	}
	total := base + overhead

	est := entity.CostEstimate{
		EstimatedTokens:  total,
		EstimatedCostUSD: float64(total) / 1_000_000 * e.ratePerMillion,
		RiskLevel:        riskFor(total),
	}
	if complexity == entity.ComplexityHigh {
		est.Reason = fmt.Sprintf("high-complexity task estimated at %d tokens; consider confirming before dispatch", total)
	}
	return est
}

func riskFor(totalTokens int) entity.RiskLevel {
	switch {
	case totalTokens > riskCriticalAbove:
		return entity.RiskCritical
	case totalTokens > riskHighAbove:
		return entity.RiskHigh
	case totalTokens > riskMediumAbove:
		return entity.RiskMedium
	}
	return entity.RiskLow
}
