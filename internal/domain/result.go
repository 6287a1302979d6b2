package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResultStatus is the lifecycle state of a rebalancing proposal. The engine
// always produces PROPOSED; the remaining states are recorded by whoever
// approves or executes the proposal.
type ResultStatus string

const (
	ResultProposed          ResultStatus = "PROPOSED"
	ResultApproved          ResultStatus = "APPROVED"
	ResultRejected          ResultStatus = "REJECTED"
	ResultExecuted          ResultStatus = "EXECUTED"
	ResultPartiallyExecuted ResultStatus = "PARTIALLY_EXECUTED"
)

// RebalancingResult is the output of one proposal run: the surviving actions
// in priority order, cost totals, an improvement score, and the full
// target-vs-current weight gap regardless of which actions survived
// filtering. Results are immutable; ownership passes to the caller.
type RebalancingResult struct {
	ID                   int64                      `json:"id"`
	PortfolioID          int64                      `json:"portfolio_id"`
	StrategyID           int64                      `json:"strategy_id"`
	Actions              []RebalancingAction        `json:"actions"`
	TotalTransactionCost decimal.Decimal            `json:"total_transaction_cost"`
	TotalTaxImpact       decimal.Decimal            `json:"total_tax_impact"`
	ImprovementScore     decimal.Decimal            `json:"improvement_score"`
	WeightChanges        map[string]decimal.Decimal `json:"weight_changes"`
	ProposedAt           time.Time                  `json:"proposed_at"`
	Status               ResultStatus               `json:"status"`
}

// TotalCost returns transaction cost plus tax impact.
func (r RebalancingResult) TotalCost() decimal.Decimal {
	return r.TotalTransactionCost.Add(r.TotalTaxImpact)
}

// ActionCount returns the number of proposed actions.
func (r RebalancingResult) ActionCount() int {
	return len(r.Actions)
}

// HighPriorityActions returns only the CRITICAL and HIGH priority actions.
func (r RebalancingResult) HighPriorityActions() []RebalancingAction {
	var high []RebalancingAction
	for _, action := range r.Actions {
		if action.Priority.Level() <= PriorityHigh.Level() {
			high = append(high, action)
		}
	}
	return high
}

// IsNoOp reports whether the proposal contains no actions, the valid common
// outcome when the portfolio is already within tolerance.
func (r RebalancingResult) IsNoOp() bool {
	return len(r.Actions) == 0
}
