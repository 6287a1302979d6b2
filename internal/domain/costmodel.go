package domain

import "github.com/shopspring/decimal"

// CostModel holds the rate assumptions used when estimating what a proposed
// trade costs. The rates are configuration, not constants, so deployments and
// tests can vary them.
//
// The tax estimate deliberately assumes a flat gain rate on every sale
// instead of using the position's actual cost basis. That simplification is
// carried from the upstream model; callers that need exact figures should
// compute them at execution time from realized PnL.
type CostModel struct {
	// TransactionCostRate is the brokerage fee as a fraction of notional.
	TransactionCostRate decimal.Decimal
	// TaxRate is the capital gains tax rate applied to the assumed gain.
	TaxRate decimal.Decimal
	// AssumedGainRate is the fraction of a sale's notional assumed to be gain.
	AssumedGainRate decimal.Decimal
}

// DefaultCostModel returns the stock assumptions: 0.25% transaction cost,
// 22% capital gains tax on an assumed 10% gain.
func DefaultCostModel() CostModel {
	return CostModel{
		TransactionCostRate: decimal.NewFromFloat(0.0025),
		TaxRate:             decimal.NewFromFloat(0.22),
		AssumedGainRate:     decimal.NewFromFloat(0.10),
	}
}

// TransactionCost estimates the brokerage fee for trading the given notional.
func (m CostModel) TransactionCost(notional decimal.Decimal) decimal.Decimal {
	return notional.Abs().Mul(m.TransactionCostRate)
}

// TaxImpact estimates capital gains tax for an action. Only sells are taxed;
// buys return zero.
func (m CostModel) TaxImpact(actionType ActionType, notional decimal.Decimal) decimal.Decimal {
	if actionType != ActionSell {
		return decimal.Zero
	}
	estimatedGain := notional.Abs().Mul(m.AssumedGainRate)
	return estimatedGain.Mul(m.TaxRate)
}
