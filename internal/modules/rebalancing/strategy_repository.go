package rebalancing

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stockquest/rebalancer/internal/domain"
)

// StrategyRepository handles rebalancing strategy database operations. Target
// weights are stored as a JSON object of symbol to decimal string.
type StrategyRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStrategyRepository creates a new strategy repository
func NewStrategyRepository(db *sql.DB, log zerolog.Logger) *StrategyRepository {
	return &StrategyRepository{
		db:  db,
		log: log.With().Str("repo", "strategy").Logger(),
	}
}

// Create inserts a strategy for a portfolio and returns it with its assigned ID
func (r *StrategyRepository) Create(portfolioID int64, strategy domain.RebalancingStrategy) (domain.RebalancingStrategy, error) {
	weights, err := marshalWeights(strategy.TargetWeights)
	if err != nil {
		return domain.RebalancingStrategy{}, err
	}

	query := `
		INSERT INTO strategies (
			name, type, frequency, target_weights, tolerance_threshold,
			minimum_trade_amount, tax_optimized, consider_transaction_costs, portfolio_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := r.db.Exec(query,
		strategy.Name,
		string(strategy.Type),
		string(strategy.Frequency),
		weights,
		strategy.ToleranceThreshold.String(),
		strategy.MinimumTradeAmount.String(),
		strategy.TaxOptimized,
		strategy.ConsiderTransactionCosts,
		portfolioID,
	)
	if err != nil {
		return domain.RebalancingStrategy{}, fmt.Errorf("failed to insert strategy: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return domain.RebalancingStrategy{}, fmt.Errorf("failed to read strategy ID: %w", err)
	}
	strategy.ID = id
	return strategy, nil
}

// Get returns one strategy, or false when no strategy has the given ID
func (r *StrategyRepository) Get(strategyID int64) (domain.RebalancingStrategy, int64, bool, error) {
	query := `
		SELECT id, name, type, frequency, target_weights, tolerance_threshold,
		       minimum_trade_amount, tax_optimized, consider_transaction_costs, portfolio_id
		FROM strategies
		WHERE id = ?
	`

	strategy, portfolioID, err := scanStrategy(r.db.QueryRow(query, strategyID))
	if err == sql.ErrNoRows {
		return domain.RebalancingStrategy{}, 0, false, nil
	}
	if err != nil {
		return domain.RebalancingStrategy{}, 0, false, fmt.Errorf("failed to scan strategy: %w", err)
	}
	return strategy, portfolioID, true, nil
}

// GetByPortfolio returns all strategies configured for a portfolio
func (r *StrategyRepository) GetByPortfolio(portfolioID int64) ([]domain.RebalancingStrategy, error) {
	query := `
		SELECT id, name, type, frequency, target_weights, tolerance_threshold,
		       minimum_trade_amount, tax_optimized, consider_transaction_costs, portfolio_id
		FROM strategies
		WHERE portfolio_id = ?
		ORDER BY id
	`

	rows, err := r.db.Query(query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies: %w", err)
	}
	defer rows.Close()

	var strategies []domain.RebalancingStrategy
	for rows.Next() {
		strategy, _, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		strategies = append(strategies, strategy)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating strategies: %w", err)
	}

	return strategies, nil
}

// All returns every strategy together with its portfolio ID, for the drift
// check job
func (r *StrategyRepository) All() ([]StrategyRecord, error) {
	query := `
		SELECT id, name, type, frequency, target_weights, tolerance_threshold,
		       minimum_trade_amount, tax_optimized, consider_transaction_costs, portfolio_id
		FROM strategies
		ORDER BY portfolio_id, id
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies: %w", err)
	}
	defer rows.Close()

	var records []StrategyRecord
	for rows.Next() {
		strategy, portfolioID, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		records = append(records, StrategyRecord{PortfolioID: portfolioID, Strategy: strategy})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating strategies: %w", err)
	}

	return records, nil
}

// Delete removes a strategy
func (r *StrategyRepository) Delete(strategyID int64) error {
	if _, err := r.db.Exec(`DELETE FROM strategies WHERE id = ?`, strategyID); err != nil {
		return fmt.Errorf("failed to delete strategy: %w", err)
	}
	return nil
}

// StrategyRecord pairs a strategy with the portfolio it belongs to
type StrategyRecord struct {
	PortfolioID int64
	Strategy    domain.RebalancingStrategy
}

func scanStrategy(row scanner) (domain.RebalancingStrategy, int64, error) {
	var (
		strategy       domain.RebalancingStrategy
		portfolioID    int64
		strategyType   string
		frequency      string
		weightsJSON    string
		tolerance, min string
	)

	err := row.Scan(
		&strategy.ID,
		&strategy.Name,
		&strategyType,
		&frequency,
		&weightsJSON,
		&tolerance,
		&min,
		&strategy.TaxOptimized,
		&strategy.ConsiderTransactionCosts,
		&portfolioID,
	)
	if err != nil {
		return domain.RebalancingStrategy{}, 0, err
	}

	strategy.Type = domain.StrategyType(strategyType)
	strategy.Frequency = domain.RebalancingFrequency(frequency)

	if strategy.TargetWeights, err = unmarshalWeights(weightsJSON); err != nil {
		return domain.RebalancingStrategy{}, 0, err
	}
	if strategy.ToleranceThreshold, err = decimal.NewFromString(tolerance); err != nil {
		return domain.RebalancingStrategy{}, 0, fmt.Errorf("bad tolerance_threshold %q: %w", tolerance, err)
	}
	if strategy.MinimumTradeAmount, err = decimal.NewFromString(min); err != nil {
		return domain.RebalancingStrategy{}, 0, fmt.Errorf("bad minimum_trade_amount %q: %w", min, err)
	}

	return strategy, portfolioID, nil
}

// scanner abstracts *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func marshalWeights(weights map[string]decimal.Decimal) (string, error) {
	raw := make(map[string]string, len(weights))
	for symbol, w := range weights {
		raw[symbol] = w.String()
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("failed to marshal target weights: %w", err)
	}
	return string(data), nil
}

func unmarshalWeights(data string) (map[string]decimal.Decimal, error) {
	var raw map[string]string
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal target weights: %w", err)
	}
	weights := make(map[string]decimal.Decimal, len(raw))
	for symbol, s := range raw {
		w, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("bad target weight %q for %s: %w", s, symbol, err)
		}
		weights[symbol] = w
	}
	return weights, nil
}
