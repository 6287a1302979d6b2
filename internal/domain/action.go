package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// priorityRatioScale is the precision for the deviation/threshold ratio used
// to bucket action priorities.
const priorityRatioScale = 2

// ActionType is the direction of a proposed trade.
type ActionType string

const (
	ActionBuy  ActionType = "BUY"
	ActionSell ActionType = "SELL"
	ActionHold ActionType = "HOLD"
)

// ActionPriority is the execution priority of a proposed trade.
type ActionPriority string

const (
	PriorityCritical ActionPriority = "CRITICAL"
	PriorityHigh     ActionPriority = "HIGH"
	PriorityMedium   ActionPriority = "MEDIUM"
	PriorityLow      ActionPriority = "LOW"
	PriorityOptional ActionPriority = "OPTIONAL"
)

// Level returns the numeric rank of the priority, 1 being most urgent.
func (p ActionPriority) Level() int {
	switch p {
	case PriorityCritical:
		return 1
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 3
	case PriorityLow:
		return 4
	default:
		return 5
	}
}

// Reduce lowers the priority by exactly one step. LOW and OPTIONAL both
// bottom out at OPTIONAL.
func (p ActionPriority) Reduce() ActionPriority {
	switch p {
	case PriorityCritical:
		return PriorityHigh
	case PriorityHigh:
		return PriorityMedium
	case PriorityMedium:
		return PriorityLow
	default:
		return PriorityOptional
	}
}

// PriorityForDeviation buckets an action priority from the ratio of the
// weight deviation to the strategy's tolerance threshold. The ratio is
// rounded to 2 decimal places (half up) before bucketing.
func PriorityForDeviation(deviation, threshold decimal.Decimal) ActionPriority {
	ratio := deviation.Abs().DivRound(threshold, priorityRatioScale)
	switch {
	case ratio.GreaterThanOrEqual(decimal.NewFromInt(3)):
		return PriorityCritical
	case ratio.GreaterThanOrEqual(decimal.NewFromInt(2)):
		return PriorityHigh
	case ratio.GreaterThanOrEqual(decimal.NewFromFloat(1.5)):
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ActionStatus is the lifecycle state of a proposed trade. The engine only
// ever creates PENDING actions; later states are recorded by the executor.
type ActionStatus string

const (
	StatusPending   ActionStatus = "PENDING"
	StatusScheduled ActionStatus = "SCHEDULED"
	StatusExecuting ActionStatus = "EXECUTING"
	StatusExecuted  ActionStatus = "EXECUTED"
	StatusFailed    ActionStatus = "FAILED"
	StatusCancelled ActionStatus = "CANCELLED"
)

// RebalancingAction is one proposed trade. Action values are immutable: the
// mark operations return an updated copy for the executor to persist.
type RebalancingAction struct {
	ID                       int64           `json:"id"`
	PortfolioID              int64           `json:"portfolio_id"`
	StrategyID               int64           `json:"strategy_id"`
	Symbol                   string          `json:"symbol"`
	ActionType               ActionType      `json:"action_type"`
	Quantity                 decimal.Decimal `json:"quantity"` // unsigned; direction is ActionType
	TargetPrice              decimal.Decimal `json:"target_price"`
	CurrentWeight            decimal.Decimal `json:"current_weight"`
	TargetWeight             decimal.Decimal `json:"target_weight"`
	WeightDeviation          decimal.Decimal `json:"weight_deviation"` // target - current
	EstimatedTransactionCost decimal.Decimal `json:"estimated_transaction_cost"`
	EstimatedTaxImpact       decimal.Decimal `json:"estimated_tax_impact"`
	Priority                 ActionPriority  `json:"priority"`
	Status                   ActionStatus    `json:"status"`
	Reason                   string          `json:"reason"`
	ScheduledAt              time.Time       `json:"scheduled_at,omitempty"`
	ExecutedAt               time.Time       `json:"executed_at,omitempty"`
	CreatedAt                time.Time       `json:"created_at,omitempty"`
}

// TradeAmount returns the notional of the trade: quantity * target price.
func (a RebalancingAction) TradeAmount() decimal.Decimal {
	return a.Quantity.Mul(a.TargetPrice)
}

// EstimatedImpact returns the estimated total cost of the action as a
// fraction of the given portfolio value.
func (a RebalancingAction) EstimatedImpact(portfolioValue decimal.Decimal) decimal.Decimal {
	if portfolioValue.IsZero() {
		return decimal.Zero
	}
	total := a.EstimatedTransactionCost.Add(a.EstimatedTaxImpact)
	return total.DivRound(portfolioValue, 6)
}

// MarkExecuted returns a copy of the action recorded as executed at the
// given time.
func (a RebalancingAction) MarkExecuted(executedAt time.Time) RebalancingAction {
	next := a
	next.Status = StatusExecuted
	next.ExecutedAt = executedAt
	return next
}

// MarkFailed returns a copy of the action recorded as failed, with the
// failure cause appended to the reason.
func (a RebalancingAction) MarkFailed(failureReason string) RebalancingAction {
	next := a
	next.Status = StatusFailed
	next.Reason = fmt.Sprintf("%s | failed: %s", a.Reason, failureReason)
	next.ExecutedAt = time.Time{}
	return next
}
