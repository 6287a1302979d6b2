package domain

import "github.com/shopspring/decimal"

// weightScale is the fixed decimal precision for portfolio weights and
// weight deviations.
const weightScale = 4

// Portfolio is a point-in-time aggregate of positions. Total value and
// per-symbol weights are derived from the holdings on demand, never stored.
type Portfolio struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Positions []Position `json:"positions"`
}

// TotalValue sums quantity * current price over all holdings. Values are
// signed, so a short position reduces the total.
func (p Portfolio) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.Positions {
		total = total.Add(pos.CurrentValue())
	}
	return total
}

// Position returns the holding for a symbol, or false when the portfolio has
// no record for it.
func (p Portfolio) Position(symbol string) (Position, bool) {
	for _, pos := range p.Positions {
		if pos.Symbol == symbol {
			return pos, true
		}
	}
	return Position{}, false
}

// Symbols lists the symbols held, in holding order.
func (p Portfolio) Symbols() []string {
	symbols := make([]string, 0, len(p.Positions))
	for _, pos := range p.Positions {
		symbols = append(symbols, pos.Symbol)
	}
	return symbols
}

// Weights returns each symbol's share of the total portfolio value. A
// portfolio with zero total value has no weights.
func (p Portfolio) Weights() map[string]decimal.Decimal {
	total := p.TotalValue()
	weights := make(map[string]decimal.Decimal, len(p.Positions))
	if total.IsZero() {
		return weights
	}
	for _, pos := range p.Positions {
		weights[pos.Symbol] = pos.Weight(total)
	}
	return weights
}

// Weight returns a single symbol's current weight; symbols the portfolio does
// not hold weigh zero.
func (p Portfolio) Weight(symbol string) decimal.Decimal {
	pos, ok := p.Position(symbol)
	if !ok {
		return decimal.Zero
	}
	return pos.Weight(p.TotalValue())
}
