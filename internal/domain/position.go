package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// averageCostScale is the fixed decimal precision for the running average cost.
// Rounding is half-up, matching the broker statements the figures are checked against.
const averageCostScale = 4

// Position is one holding's accounting state: quantity, average cost basis,
// current price and realized/unrealized PnL.
//
// Position values are immutable: ApplyBuy, ApplySell and UpdatePrice return a
// new Position rather than mutating the receiver. The average cost is a
// quantity-weighted running mean of buy fills only; sells never move it.
type Position struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AverageCost   decimal.Decimal `json:"average_cost"`
	CostBasis     decimal.Decimal `json:"cost_basis"` // total buy cost of the open quantity
	CurrentPrice  decimal.Decimal `json:"current_price"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	OpenDate      time.Time       `json:"open_date,omitempty"` // first buy; zero when unknown
	LastUpdated   time.Time       `json:"last_updated,omitempty"`
}

// NewPosition creates an empty (flat) position for a symbol.
func NewPosition(symbol string) Position {
	return Position{
		Symbol:        symbol,
		Quantity:      decimal.Zero,
		AverageCost:   decimal.Zero,
		CostBasis:     decimal.Zero,
		CurrentPrice:  decimal.Zero,
		RealizedPnL:   decimal.Zero,
		UnrealizedPnL: decimal.Zero,
	}
}

// ApplyBuy records a buy fill: quantity increases and the average cost is
// recomputed as a quantity-weighted mean of all buys since the position was
// last flat. The first buy of a flat position stamps the open date.
func (p Position) ApplyBuy(qty, price decimal.Decimal, at time.Time) (Position, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return Position{}, fmt.Errorf("apply buy %s: %w", p.Symbol, ErrInvalidQuantity)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return Position{}, fmt.Errorf("apply buy %s: %w", p.Symbol, ErrInvalidPrice)
	}

	next := p
	next.CostBasis = p.CostBasis.Add(qty.Mul(price))
	next.Quantity = p.Quantity.Add(qty)
	next.AverageCost = next.CostBasis.DivRound(next.Quantity, averageCostScale)
	if p.Quantity.IsZero() {
		next.OpenDate = at
	}
	next.LastUpdated = at
	next.UnrealizedPnL = next.Quantity.Mul(next.CurrentPrice.Sub(next.AverageCost))
	return next, nil
}

// ApplySell records a sell fill. Realized PnL accrues against the pre-sell
// average cost; the average cost of the remaining quantity is unchanged.
// Selling down to zero resets the cost fields but keeps the record, so the
// position's history survives going flat.
func (p Position) ApplySell(qty, price decimal.Decimal, at time.Time) (Position, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return Position{}, fmt.Errorf("apply sell %s: %w", p.Symbol, ErrInvalidQuantity)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return Position{}, fmt.Errorf("apply sell %s: %w", p.Symbol, ErrInvalidPrice)
	}
	if qty.GreaterThan(p.Quantity) {
		return Position{}, fmt.Errorf("apply sell %s: sell %s of %s held: %w",
			p.Symbol, qty, p.Quantity, ErrInsufficientPosition)
	}

	next := p
	next.RealizedPnL = p.RealizedPnL.Add(qty.Mul(price.Sub(p.AverageCost)))
	next.Quantity = p.Quantity.Sub(qty)
	next.CostBasis = p.CostBasis.Sub(qty.Mul(p.AverageCost))
	if next.Quantity.IsZero() {
		next.AverageCost = decimal.Zero
		next.CostBasis = decimal.Zero
	}
	next.LastUpdated = at
	next.UnrealizedPnL = next.Quantity.Mul(next.CurrentPrice.Sub(next.AverageCost))
	return next, nil
}

// UpdatePrice sets the current market price and recomputes the unrealized PnL.
func (p Position) UpdatePrice(price decimal.Decimal, at time.Time) (Position, error) {
	if price.LessThanOrEqual(decimal.Zero) {
		return Position{}, fmt.Errorf("update price %s: %w", p.Symbol, ErrInvalidPrice)
	}

	next := p
	next.CurrentPrice = price
	next.UnrealizedPnL = p.Quantity.Mul(price.Sub(p.AverageCost))
	next.LastUpdated = at
	return next, nil
}

// CurrentValue returns quantity * current price.
func (p Position) CurrentValue() decimal.Decimal {
	return p.Quantity.Mul(p.CurrentPrice)
}

// Weight returns this position's share of the given portfolio value, rounded
// to 4 decimal places. A zero total yields a zero weight.
func (p Position) Weight(totalValue decimal.Decimal) decimal.Decimal {
	if totalValue.IsZero() {
		return decimal.Zero
	}
	return p.CurrentValue().DivRound(totalValue, weightScale)
}

// IsFlat reports whether the position currently holds nothing.
func (p Position) IsFlat() bool {
	return p.Quantity.IsZero()
}

// IsShortTerm reports whether the position was opened less than a year before
// the given reference time. Positions with no recorded open date are treated
// as short-term, the conservative default for tax purposes.
func (p Position) IsShortTerm(now time.Time) bool {
	if p.OpenDate.IsZero() {
		return true
	}
	return p.OpenDate.After(now.AddDate(-1, 0, 0))
}
