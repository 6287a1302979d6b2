package rebalancing

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockquest/rebalancer/internal/domain"
)

func d(s string) decimal.Decimal {
	dec, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return dec
}

var testNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	e := NewEngine(domain.DefaultCostModel(), zerolog.Nop())
	e.now = func() time.Time { return testNow }
	return e
}

// holding describes one position for test portfolios.
type holding struct {
	qty, price string
	openDate   time.Time
}

func buildPortfolio(t *testing.T, holdings map[string]holding) domain.Portfolio {
	t.Helper()

	p := domain.Portfolio{ID: 1, Name: "test portfolio"}
	for symbol, h := range holdings {
		pos := domain.NewPosition(symbol)
		pos, err := pos.ApplyBuy(d(h.qty), d(h.price), testNow.AddDate(-2, 0, 0))
		require.NoError(t, err)
		pos, err = pos.UpdatePrice(d(h.price), testNow)
		require.NoError(t, err)
		if !h.openDate.IsZero() {
			pos.OpenDate = h.openDate
		}
		p.Positions = append(p.Positions, pos)
	}
	return p
}

func fiftyFiftyStrategy() domain.RebalancingStrategy {
	return domain.RebalancingStrategy{
		ID:                 7,
		Name:               "50/50",
		Type:               domain.StrategyTypeStrategic,
		Frequency:          domain.FrequencyThresholdBased,
		TargetWeights:      map[string]decimal.Decimal{"A": d("0.5"), "B": d("0.5")},
		ToleranceThreshold: d("0.03"),
		MinimumTradeAmount: d("100"),
	}
}

func TestEngine_Propose_InvalidStrategy(t *testing.T) {
	engine := newTestEngine()
	portfolio := buildPortfolio(t, map[string]holding{"A": {qty: "10", price: "100"}})

	strategy := fiftyFiftyStrategy()
	strategy.TargetWeights = map[string]decimal.Decimal{"A": d("0.5"), "B": d("0.45")}

	_, err := engine.Propose(portfolio, strategy, map[string]decimal.Decimal{"A": d("100")})
	assert.ErrorIs(t, err, domain.ErrInvalidStrategy)
}

func TestEngine_Propose_EmptyPrices(t *testing.T) {
	engine := newTestEngine()
	portfolio := buildPortfolio(t, map[string]holding{"A": {qty: "10", price: "100"}})

	_, err := engine.Propose(portfolio, fiftyFiftyStrategy(), nil)
	assert.ErrorIs(t, err, domain.ErrMissingPriceData)
}

func TestEngine_Propose_MissingQuoteForTradedSymbol(t *testing.T) {
	engine := newTestEngine()
	portfolio := buildPortfolio(t, map[string]holding{
		"A": {qty: "60", price: "100"},
		"B": {qty: "40", price: "100"},
	})

	// B is under-allocated and will need trading, but only A has a quote.
	_, err := engine.Propose(portfolio, fiftyFiftyStrategy(), map[string]decimal.Decimal{"A": d("100")})
	assert.ErrorIs(t, err, domain.ErrMissingPriceData)
}

func TestEngine_Propose_WithinTolerance_NoOp(t *testing.T) {
	engine := newTestEngine()
	portfolio := buildPortfolio(t, map[string]holding{
		"A": {qty: "51", price: "100"},
		"B": {qty: "49", price: "100"},
	})
	prices := map[string]decimal.Decimal{"A": d("100"), "B": d("100")}

	result, err := engine.Propose(portfolio, fiftyFiftyStrategy(), prices)
	require.NoError(t, err)

	assert.True(t, result.IsNoOp())
	assert.Equal(t, domain.ResultProposed, result.Status)
	assert.True(t, result.TotalTransactionCost.IsZero())
	assert.True(t, result.TotalTaxImpact.IsZero())
	assert.True(t, result.ImprovementScore.IsZero())

	// Pure function: a second call yields the identical result.
	again, err := engine.Propose(portfolio, fiftyFiftyStrategy(), prices)
	require.NoError(t, err)
	assert.Equal(t, result, again)
}

func TestEngine_Propose_ThresholdIsStrict(t *testing.T) {
	engine := newTestEngine()
	// A is 55%, B is 45%: deviation exactly 0.05 on both.
	portfolio := buildPortfolio(t, map[string]holding{
		"A": {qty: "55", price: "100"},
		"B": {qty: "45", price: "100"},
	})
	prices := map[string]decimal.Decimal{"A": d("100"), "B": d("100")}

	strategy := fiftyFiftyStrategy()
	strategy.ToleranceThreshold = d("0.05")

	result, err := engine.Propose(portfolio, strategy, prices)
	require.NoError(t, err)
	assert.True(t, result.IsNoOp(), "deviation equal to the threshold must not trigger")

	strategy.ToleranceThreshold = d("0.0499")
	result, err = engine.Propose(portfolio, strategy, prices)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ActionCount())
}

func TestEngine_Propose_EndToEnd(t *testing.T) {
	engine := newTestEngine()
	// 60/40 portfolio worth 10,000 being pulled back to 50/50.
	portfolio := buildPortfolio(t, map[string]holding{
		"A": {qty: "60", price: "100"},
		"B": {qty: "40", price: "100"},
	})
	prices := map[string]decimal.Decimal{"A": d("100"), "B": d("100")}

	result, err := engine.Propose(portfolio, fiftyFiftyStrategy(), prices)
	require.NoError(t, err)
	require.Equal(t, 2, result.ActionCount())

	var sell, buy domain.RebalancingAction
	for _, action := range result.Actions {
		switch action.Symbol {
		case "A":
			sell = action
		case "B":
			buy = action
		}
	}

	// round((0.5-0.6)*10000/100) = -10 -> SELL 10 units of A.
	assert.Equal(t, domain.ActionSell, sell.ActionType)
	assert.True(t, sell.Quantity.Equal(d("10")), "sell quantity = %s", sell.Quantity)
	assert.True(t, sell.TargetPrice.Equal(d("100")))
	assert.True(t, sell.WeightDeviation.Equal(d("-0.1")))
	assert.True(t, sell.EstimatedTransactionCost.Equal(d("2.5")), "cost = %s", sell.EstimatedTransactionCost)
	// 1000 * 10% assumed gain * 22% tax = 22.
	assert.True(t, sell.EstimatedTaxImpact.Equal(d("22")), "tax = %s", sell.EstimatedTaxImpact)
	// 0.1 / 0.03 = 3.33 ratio.
	assert.Equal(t, domain.PriorityCritical, sell.Priority)
	assert.Equal(t, domain.StatusPending, sell.Status)
	assert.Contains(t, sell.Reason, "over-allocated")

	assert.Equal(t, domain.ActionBuy, buy.ActionType)
	assert.True(t, buy.Quantity.Equal(d("10")))
	assert.True(t, buy.EstimatedTaxImpact.IsZero(), "buys carry no tax impact")
	assert.Contains(t, buy.Reason, "under-allocated")

	assert.True(t, result.TotalTransactionCost.Equal(d("5")))
	assert.True(t, result.TotalTaxImpact.Equal(d("22")))
	// maxDeviation / totalCost = 0.1 / 27, rounded to 4 places.
	assert.True(t, result.ImprovementScore.Equal(d("0.0037")), "score = %s", result.ImprovementScore)
	assert.Equal(t, domain.ResultProposed, result.Status)
	assert.Equal(t, testNow, result.ProposedAt)

	// Weight changes report the full gap for every target symbol.
	require.Len(t, result.WeightChanges, 2)
	assert.True(t, result.WeightChanges["A"].Equal(d("-0.1")))
	assert.True(t, result.WeightChanges["B"].Equal(d("0.1")))
}

func TestEngine_Propose_ActionsSortedByDeviationMagnitude(t *testing.T) {
	engine := newTestEngine()
	// A 70%, B 20%, C 10% -> targets 40/40/20.
	portfolio := buildPortfolio(t, map[string]holding{
		"A": {qty: "70", price: "100"},
		"B": {qty: "20", price: "100"},
		"C": {qty: "10", price: "100"},
	})
	prices := map[string]decimal.Decimal{"A": d("100"), "B": d("100"), "C": d("100")}

	strategy := domain.RebalancingStrategy{
		ID:                 2,
		TargetWeights:      map[string]decimal.Decimal{"A": d("0.4"), "B": d("0.4"), "C": d("0.2")},
		ToleranceThreshold: d("0.03"),
		MinimumTradeAmount: d("100"),
	}

	result, err := engine.Propose(portfolio, strategy, prices)
	require.NoError(t, err)
	require.Equal(t, 3, result.ActionCount())

	// |A| = 0.3, |B| = 0.2, |C| = 0.1.
	assert.Equal(t, "A", result.Actions[0].Symbol)
	assert.Equal(t, "B", result.Actions[1].Symbol)
	assert.Equal(t, "C", result.Actions[2].Symbol)
}

func TestEngine_Propose_MinimumTradeFilterAtGeneration(t *testing.T) {
	engine := newTestEngine()
	portfolio := buildPortfolio(t, map[string]holding{
		"A": {qty: "60", price: "100"},
		"B": {qty: "40", price: "100"},
	})
	prices := map[string]decimal.Decimal{"A": d("100"), "B": d("100")}

	strategy := fiftyFiftyStrategy()
	// Each trade's notional is 1,000; a floor above that drops both.
	strategy.MinimumTradeAmount = d("1500")

	result, err := engine.Propose(portfolio, strategy, prices)
	require.NoError(t, err)

	assert.True(t, result.IsNoOp(), "below-minimum trades must never appear")
	// Drift is still reported even though nothing survived filtering.
	assert.True(t, result.WeightChanges["A"].Equal(d("-0.1")))
	// With no actions there is no cost: score falls back to the max deviation.
	assert.True(t, result.ImprovementScore.Equal(d("0.1")), "score = %s", result.ImprovementScore)
}

func TestEngine_Propose_TransactionCostPassFiltersIndependently(t *testing.T) {
	engine := newTestEngine()
	portfolio := buildPortfolio(t, map[string]holding{
		"A": {qty: "60", price: "100"},
		"B": {qty: "40", price: "100"},
	})
	prices := map[string]decimal.Decimal{"A": d("100"), "B": d("100")}

	strategy := fiftyFiftyStrategy()
	strategy.ConsiderTransactionCosts = true

	result, err := engine.Propose(portfolio, strategy, prices)
	require.NoError(t, err)

	// Both notionals (1,000) clear the 100 floor in both passes.
	assert.Equal(t, 2, result.ActionCount())
	for _, action := range result.Actions {
		assert.True(t, action.TradeAmount().GreaterThanOrEqual(strategy.MinimumTradeAmount))
	}
}

func TestEngine_Propose_TaxOptimization_ShortTermSell(t *testing.T) {
	threeMonthsAgo := testNow.AddDate(0, -3, 0)
	prices := map[string]decimal.Decimal{"A": d("100"), "B": d("100")}

	makePortfolio := func(t *testing.T) domain.Portfolio {
		return buildPortfolio(t, map[string]holding{
			"A": {qty: "60", price: "100", openDate: threeMonthsAgo},
			"B": {qty: "40", price: "100"},
		})
	}

	engine := newTestEngine()

	plain := fiftyFiftyStrategy()
	baseline, err := engine.Propose(makePortfolio(t), plain, prices)
	require.NoError(t, err)

	taxAware := fiftyFiftyStrategy()
	taxAware.TaxOptimized = true
	optimized, err := engine.Propose(makePortfolio(t), taxAware, prices)
	require.NoError(t, err)

	var baseSell, optSell domain.RebalancingAction
	for _, a := range baseline.Actions {
		if a.ActionType == domain.ActionSell {
			baseSell = a
		}
	}
	for _, a := range optimized.Actions {
		if a.ActionType == domain.ActionSell {
			optSell = a
		}
	}

	// Tax grows by half and the priority drops exactly one step.
	assert.True(t, optSell.EstimatedTaxImpact.Equal(baseSell.EstimatedTaxImpact.Mul(d("1.5"))),
		"tax %s vs baseline %s", optSell.EstimatedTaxImpact, baseSell.EstimatedTaxImpact)
	assert.Equal(t, baseSell.Priority.Reduce(), optSell.Priority)
	assert.Contains(t, optSell.Reason, "short-term holding")

	// Buys are untouched by tax optimization.
	for _, a := range optimized.Actions {
		if a.ActionType == domain.ActionBuy {
			assert.True(t, a.EstimatedTaxImpact.IsZero())
			assert.NotContains(t, a.Reason, "short-term")
		}
	}
}

func TestEngine_Propose_TaxOptimization_LongTermSellUntouched(t *testing.T) {
	engine := newTestEngine()
	portfolio := buildPortfolio(t, map[string]holding{
		"A": {qty: "60", price: "100", openDate: testNow.AddDate(-2, 0, 0)},
		"B": {qty: "40", price: "100"},
	})
	prices := map[string]decimal.Decimal{"A": d("100"), "B": d("100")}

	strategy := fiftyFiftyStrategy()
	strategy.TaxOptimized = true

	result, err := engine.Propose(portfolio, strategy, prices)
	require.NoError(t, err)

	for _, action := range result.Actions {
		if action.ActionType == domain.ActionSell {
			assert.True(t, action.EstimatedTaxImpact.Equal(d("22")), "tax = %s", action.EstimatedTaxImpact)
			assert.Equal(t, domain.PriorityCritical, action.Priority)
			assert.NotContains(t, action.Reason, "short-term")
		}
	}
}

func TestEngine_Propose_DoesNotMutateInputs(t *testing.T) {
	engine := newTestEngine()
	portfolio := buildPortfolio(t, map[string]holding{
		"A": {qty: "60", price: "100"},
		"B": {qty: "40", price: "100"},
	})
	strategy := fiftyFiftyStrategy()
	prices := map[string]decimal.Decimal{"A": d("100"), "B": d("100")}

	before := portfolio.TotalValue()
	beforeWeights := portfolio.Weights()

	_, err := engine.Propose(portfolio, strategy, prices)
	require.NoError(t, err)

	assert.True(t, portfolio.TotalValue().Equal(before))
	assert.Equal(t, beforeWeights, portfolio.Weights())
	assert.True(t, strategy.TargetWeights["A"].Equal(d("0.5")))
}

func TestEngine_Propose_CustomCostModel(t *testing.T) {
	costs := domain.CostModel{
		TransactionCostRate: d("0.01"),
		TaxRate:             d("0.3"),
		AssumedGainRate:     d("0.2"),
	}
	engine := NewEngine(costs, zerolog.Nop())
	engine.now = func() time.Time { return testNow }

	portfolio := buildPortfolio(t, map[string]holding{
		"A": {qty: "60", price: "100"},
		"B": {qty: "40", price: "100"},
	})
	prices := map[string]decimal.Decimal{"A": d("100"), "B": d("100")}

	result, err := engine.Propose(portfolio, fiftyFiftyStrategy(), prices)
	require.NoError(t, err)

	for _, action := range result.Actions {
		if action.ActionType == domain.ActionSell {
			// 1,000 * 1% = 10; 1,000 * 20% gain * 30% tax = 60.
			assert.True(t, action.EstimatedTransactionCost.Equal(d("10")))
			assert.True(t, action.EstimatedTaxImpact.Equal(d("60")))
		}
	}
}
