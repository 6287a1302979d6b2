package domain

import "github.com/shopspring/decimal"

// weightSumEpsilon is the tolerance when checking that target weights sum to 1.
var weightSumEpsilon = decimal.NewFromFloat(0.0001)

// StrategyType classifies how a strategy's target weights were derived.
type StrategyType string

const (
	StrategyTypeStrategic     StrategyType = "STRATEGIC"
	StrategyTypeTactical      StrategyType = "TACTICAL"
	StrategyTypeRiskParity    StrategyType = "RISK_PARITY"
	StrategyTypeMomentum      StrategyType = "MOMENTUM"
	StrategyTypeMeanReversion StrategyType = "MEAN_REVERSION"
	StrategyTypeMarketCap     StrategyType = "MARKET_CAP"
	StrategyTypeEqualWeight   StrategyType = "EQUAL_WEIGHT"
)

// RebalancingFrequency is how often a strategy is re-evaluated by the drift
// check job. ThresholdBased strategies are only acted on when drift exceeds
// the tolerance threshold.
type RebalancingFrequency string

const (
	FrequencyDaily          RebalancingFrequency = "DAILY"
	FrequencyWeekly         RebalancingFrequency = "WEEKLY"
	FrequencyMonthly        RebalancingFrequency = "MONTHLY"
	FrequencyQuarterly      RebalancingFrequency = "QUARTERLY"
	FrequencyAnnually       RebalancingFrequency = "ANNUALLY"
	FrequencyThresholdBased RebalancingFrequency = "THRESHOLD_BASED"
)

// Days returns the nominal re-evaluation interval in days, 0 for
// threshold-based strategies.
func (f RebalancingFrequency) Days() int {
	switch f {
	case FrequencyDaily:
		return 1
	case FrequencyWeekly:
		return 7
	case FrequencyMonthly:
		return 30
	case FrequencyQuarterly:
		return 90
	case FrequencyAnnually:
		return 365
	default:
		return 0
	}
}

// RebalancingStrategy is the configuration for one rebalancing run: target
// allocation weights, the drift tolerance that triggers trading, the smallest
// trade worth placing, and the optimization flags. Strategies are immutable
// once constructed; the engine only reads them.
type RebalancingStrategy struct {
	ID                       int64                      `json:"id"`
	Name                     string                     `json:"name"`
	Type                     StrategyType               `json:"type"`
	Frequency                RebalancingFrequency       `json:"frequency"`
	TargetWeights            map[string]decimal.Decimal `json:"target_weights"`
	ToleranceThreshold       decimal.Decimal            `json:"tolerance_threshold"`
	MinimumTradeAmount       decimal.Decimal            `json:"minimum_trade_amount"`
	TaxOptimized             bool                       `json:"tax_optimized"`
	ConsiderTransactionCosts bool                       `json:"consider_transaction_costs"`
}

// IsValid reports whether the strategy can be used: target weights must be
// non-empty and sum to 1 within a 0.0001 epsilon.
func (s RebalancingStrategy) IsValid() bool {
	if len(s.TargetWeights) == 0 {
		return false
	}

	total := decimal.Zero
	for _, w := range s.TargetWeights {
		total = total.Add(w)
	}
	return total.Sub(decimal.NewFromInt(1)).Abs().LessThanOrEqual(weightSumEpsilon)
}

// RequiresRebalancing reports whether any target symbol's weight has drifted
// strictly beyond the tolerance threshold. Symbols the portfolio does not
// hold count as weight zero, so a deviation of exactly the threshold does not
// trigger.
func (s RebalancingStrategy) RequiresRebalancing(portfolio Portfolio) bool {
	if len(s.TargetWeights) == 0 {
		return false
	}

	currentWeights := portfolio.Weights()
	for symbol, target := range s.TargetWeights {
		deviation := target.Sub(currentWeights[symbol]).Abs()
		if deviation.GreaterThan(s.ToleranceThreshold) {
			return true
		}
	}
	return false
}

// Deviations returns target minus current weight for every target symbol.
// Positive means under-allocated (needs buying).
func (s RebalancingStrategy) Deviations(portfolio Portfolio) map[string]decimal.Decimal {
	currentWeights := portfolio.Weights()
	deviations := make(map[string]decimal.Decimal, len(s.TargetWeights))
	for symbol, target := range s.TargetWeights {
		deviations[symbol] = target.Sub(currentWeights[symbol])
	}
	return deviations
}

// MaxDeviation returns the largest absolute deviation across target symbols.
func (s RebalancingStrategy) MaxDeviation(portfolio Portfolio) decimal.Decimal {
	max := decimal.Zero
	for _, dev := range s.Deviations(portfolio) {
		if abs := dev.Abs(); abs.GreaterThan(max) {
			max = abs
		}
	}
	return max
}
