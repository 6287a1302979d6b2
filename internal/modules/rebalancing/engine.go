package rebalancing

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stockquest/rebalancer/internal/domain"
)

// quantityScale rounds proposed trade quantities to whole units, half up.
const quantityScale = 0

// improvementScale is the precision of the improvement score.
const improvementScale = 4

// Engine turns a portfolio snapshot, a target strategy and a price snapshot
// into a rebalancing proposal.
//
// Propose is a pure computation: it never mutates the portfolio or the
// strategy, performs no I/O, and is safe to call concurrently for different
// portfolios. The prices map is treated as an immutable snapshot for the
// duration of one call.
type Engine struct {
	costs domain.CostModel
	log   zerolog.Logger
	now   func() time.Time
}

// NewEngine creates a rebalancing engine with the given cost assumptions.
func NewEngine(costs domain.CostModel, log zerolog.Logger) *Engine {
	return &Engine{
		costs: costs,
		log:   log.With().Str("service", "rebalancing_engine").Logger(),
		now:   time.Now,
	}
}

// Propose computes the buy/sell actions needed to bring the portfolio back
// within the strategy's tolerance, after tax-awareness and transaction-cost
// filtering. A portfolio already within tolerance yields an empty proposal,
// which is a valid, common outcome rather than an error.
func (e *Engine) Propose(
	portfolio domain.Portfolio,
	strategy domain.RebalancingStrategy,
	prices map[string]decimal.Decimal,
) (domain.RebalancingResult, error) {
	if !strategy.IsValid() {
		return domain.RebalancingResult{}, fmt.Errorf("propose: %w", domain.ErrInvalidStrategy)
	}
	if len(prices) == 0 {
		return domain.RebalancingResult{}, fmt.Errorf("propose: empty price snapshot: %w", domain.ErrMissingPriceData)
	}

	if !strategy.RequiresRebalancing(portfolio) {
		e.log.Debug().
			Int64("portfolio_id", portfolio.ID).
			Int64("strategy_id", strategy.ID).
			Msg("Portfolio within tolerance, no actions proposed")
		return e.noActionResult(portfolio, strategy), nil
	}

	actions, err := e.generateActions(portfolio, strategy, prices)
	if err != nil {
		return domain.RebalancingResult{}, err
	}

	if strategy.TaxOptimized {
		actions = e.optimizeForTaxes(actions, portfolio)
	}
	if strategy.ConsiderTransactionCosts {
		actions = filterBelowMinimum(actions, strategy.MinimumTradeAmount)
	}

	totalTransactionCost := decimal.Zero
	totalTaxImpact := decimal.Zero
	for _, action := range actions {
		totalTransactionCost = totalTransactionCost.Add(action.EstimatedTransactionCost)
		totalTaxImpact = totalTaxImpact.Add(action.EstimatedTaxImpact)
	}

	result := domain.RebalancingResult{
		PortfolioID:          portfolio.ID,
		StrategyID:           strategy.ID,
		Actions:              actions,
		TotalTransactionCost: totalTransactionCost,
		TotalTaxImpact:       totalTaxImpact,
		ImprovementScore:     e.improvementScore(portfolio, strategy, totalTransactionCost.Add(totalTaxImpact)),
		WeightChanges:        strategy.Deviations(portfolio),
		ProposedAt:           e.now(),
		Status:               domain.ResultProposed,
	}

	e.log.Info().
		Int64("portfolio_id", portfolio.ID).
		Int64("strategy_id", strategy.ID).
		Int("actions", len(actions)).
		Str("total_transaction_cost", totalTransactionCost.String()).
		Str("total_tax_impact", totalTaxImpact.String()).
		Msg("Rebalancing proposal generated")

	return result, nil
}

// generateActions builds one action per target symbol whose deviation exceeds
// the tolerance threshold, sorted by deviation magnitude descending. Actions
// whose notional falls below the minimum trade amount are dropped here, at
// generation time; the transaction-cost pass applies the same floor again
// later as an independent filter.
func (e *Engine) generateActions(
	portfolio domain.Portfolio,
	strategy domain.RebalancingStrategy,
	prices map[string]decimal.Decimal,
) ([]domain.RebalancingAction, error) {
	currentWeights := portfolio.Weights()
	deviations := strategy.Deviations(portfolio)
	totalValue := portfolio.TotalValue()
	now := e.now()

	// Deterministic generation order; the later sort is stable, so symbols
	// with equal deviation magnitude keep this order.
	symbols := make([]string, 0, len(strategy.TargetWeights))
	for symbol := range strategy.TargetWeights {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var actions []domain.RebalancingAction
	for _, symbol := range symbols {
		deviation := deviations[symbol]
		if deviation.Abs().LessThanOrEqual(strategy.ToleranceThreshold) {
			continue
		}

		price, ok := prices[symbol]
		if !ok || price.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("propose: no quote for %s: %w", symbol, domain.ErrMissingPriceData)
		}

		valueChange := totalValue.Mul(deviation)
		signedQuantity := valueChange.DivRound(price, quantityScale)

		notional := signedQuantity.Mul(price)
		if notional.Abs().LessThan(strategy.MinimumTradeAmount) {
			e.log.Debug().
				Str("symbol", symbol).
				Str("notional", notional.Abs().String()).
				Msg("Trade below minimum amount, skipped")
			continue
		}

		actionType := domain.ActionSell
		if signedQuantity.GreaterThan(decimal.Zero) {
			actionType = domain.ActionBuy
		}

		targetWeight := strategy.TargetWeights[symbol]
		currentWeight := currentWeights[symbol]

		actions = append(actions, domain.RebalancingAction{
			PortfolioID:              portfolio.ID,
			StrategyID:               strategy.ID,
			Symbol:                   symbol,
			ActionType:               actionType,
			Quantity:                 signedQuantity.Abs(),
			TargetPrice:              price,
			CurrentWeight:            currentWeight,
			TargetWeight:             targetWeight,
			WeightDeviation:          deviation,
			EstimatedTransactionCost: e.costs.TransactionCost(notional),
			EstimatedTaxImpact:       e.costs.TaxImpact(actionType, notional),
			Priority:                 domain.PriorityForDeviation(deviation, strategy.ToleranceThreshold),
			Status:                   domain.StatusPending,
			Reason:                   actionReason(deviation, targetWeight, currentWeight),
			ScheduledAt:              now,
			CreatedAt:                now,
		})
	}

	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].WeightDeviation.Abs().GreaterThan(actions[j].WeightDeviation.Abs())
	})

	return actions, nil
}

// optimizeForTaxes penalizes sells of short-term holdings: the tax estimate
// grows by half and the priority drops one step, so long-held positions get
// sold first. Positions with no recorded open date count as short-term.
func (e *Engine) optimizeForTaxes(
	actions []domain.RebalancingAction,
	portfolio domain.Portfolio,
) []domain.RebalancingAction {
	now := e.now()
	optimized := make([]domain.RebalancingAction, 0, len(actions))

	for _, action := range actions {
		if action.ActionType == domain.ActionSell {
			if position, ok := portfolio.Position(action.Symbol); ok && position.IsShortTerm(now) {
				action.EstimatedTaxImpact = action.EstimatedTaxImpact.Mul(decimal.NewFromFloat(1.5))
				action.Priority = action.Priority.Reduce()
				action.Reason += " (tax optimization: short-term holding)"
			}
		}
		optimized = append(optimized, action)
	}
	return optimized
}

// filterBelowMinimum drops actions whose notional is under the minimum trade
// amount. Applied after tax optimization as its own pass so the two concerns
// stay decoupled.
func filterBelowMinimum(
	actions []domain.RebalancingAction,
	minimumTradeAmount decimal.Decimal,
) []domain.RebalancingAction {
	filtered := make([]domain.RebalancingAction, 0, len(actions))
	for _, action := range actions {
		if action.TradeAmount().GreaterThanOrEqual(minimumTradeAmount) {
			filtered = append(filtered, action)
		}
	}
	return filtered
}

// improvementScore relates the deviation being corrected to what the
// correction costs: max deviation divided by total cost, or the bare max
// deviation when the proposal costs nothing.
func (e *Engine) improvementScore(
	portfolio domain.Portfolio,
	strategy domain.RebalancingStrategy,
	totalCost decimal.Decimal,
) decimal.Decimal {
	maxDeviation := strategy.MaxDeviation(portfolio)
	if totalCost.IsZero() {
		return maxDeviation
	}
	return maxDeviation.DivRound(totalCost, improvementScale)
}

// noActionResult is the empty proposal for a portfolio already within
// tolerance.
func (e *Engine) noActionResult(
	portfolio domain.Portfolio,
	strategy domain.RebalancingStrategy,
) domain.RebalancingResult {
	return domain.RebalancingResult{
		PortfolioID:          portfolio.ID,
		StrategyID:           strategy.ID,
		Actions:              []domain.RebalancingAction{},
		TotalTransactionCost: decimal.Zero,
		TotalTaxImpact:       decimal.Zero,
		ImprovementScore:     decimal.Zero,
		WeightChanges:        map[string]decimal.Decimal{},
		ProposedAt:           e.now(),
		Status:               domain.ResultProposed,
	}
}

// actionReason renders the human-readable explanation attached to an action.
func actionReason(deviation, targetWeight, currentWeight decimal.Decimal) string {
	direction := "over-allocated"
	if deviation.GreaterThan(decimal.Zero) {
		direction = "under-allocated"
	}
	hundred := decimal.NewFromInt(100)
	return fmt.Sprintf("target weight %s%%, current weight %s%% (%s by %s%%)",
		targetWeight.Mul(hundred).StringFixed(2),
		currentWeight.Mul(hundred).StringFixed(2),
		direction,
		deviation.Abs().Mul(hundred).StringFixed(2))
}
