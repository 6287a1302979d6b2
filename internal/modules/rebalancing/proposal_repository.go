package rebalancing

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stockquest/rebalancer/internal/domain"
)

// ProposalRepository persists rebalancing proposals and their actions. A
// proposal and its actions are written in one transaction so a half-saved
// proposal can never be observed.
type ProposalRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewProposalRepository creates a new proposal repository
func NewProposalRepository(db *sql.DB, log zerolog.Logger) *ProposalRepository {
	return &ProposalRepository{
		db:  db,
		log: log.With().Str("repo", "proposal").Logger(),
	}
}

// Save writes a proposal and its actions, returning the result with IDs
// assigned
func (r *ProposalRepository) Save(result domain.RebalancingResult) (domain.RebalancingResult, error) {
	weights, err := marshalWeights(result.WeightChanges)
	if err != nil {
		return domain.RebalancingResult{}, err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return domain.RebalancingResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO rebalancing_proposals (
			portfolio_id, strategy_id, total_transaction_cost, total_tax_impact,
			improvement_score, weight_changes, proposed_at, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.PortfolioID,
		result.StrategyID,
		result.TotalTransactionCost.String(),
		result.TotalTaxImpact.String(),
		result.ImprovementScore.String(),
		weights,
		formatTime(result.ProposedAt),
		string(result.Status),
	)
	if err != nil {
		return domain.RebalancingResult{}, fmt.Errorf("failed to insert proposal: %w", err)
	}

	proposalID, err := res.LastInsertId()
	if err != nil {
		return domain.RebalancingResult{}, fmt.Errorf("failed to read proposal ID: %w", err)
	}
	result.ID = proposalID

	for i, action := range result.Actions {
		res, err := tx.Exec(`
			INSERT INTO rebalancing_actions (
				proposal_id, portfolio_id, strategy_id, symbol, action_type,
				quantity, target_price, current_weight, target_weight,
				weight_deviation, estimated_transaction_cost, estimated_tax_impact,
				priority, status, reason, scheduled_at, executed_at, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			proposalID,
			action.PortfolioID,
			action.StrategyID,
			action.Symbol,
			string(action.ActionType),
			action.Quantity.String(),
			action.TargetPrice.String(),
			action.CurrentWeight.String(),
			action.TargetWeight.String(),
			action.WeightDeviation.String(),
			action.EstimatedTransactionCost.String(),
			action.EstimatedTaxImpact.String(),
			string(action.Priority),
			string(action.Status),
			action.Reason,
			formatTime(action.ScheduledAt),
			formatTime(action.ExecutedAt),
			formatTime(action.CreatedAt),
		)
		if err != nil {
			return domain.RebalancingResult{}, fmt.Errorf("failed to insert action for %s: %w", action.Symbol, err)
		}
		actionID, err := res.LastInsertId()
		if err != nil {
			return domain.RebalancingResult{}, fmt.Errorf("failed to read action ID: %w", err)
		}
		result.Actions[i].ID = actionID
	}

	if err := tx.Commit(); err != nil {
		return domain.RebalancingResult{}, fmt.Errorf("failed to commit proposal: %w", err)
	}

	return result, nil
}

// Get returns one proposal with its actions, or false when no proposal has
// the given ID
func (r *ProposalRepository) Get(proposalID int64) (domain.RebalancingResult, bool, error) {
	query := `
		SELECT id, portfolio_id, strategy_id, total_transaction_cost,
		       total_tax_impact, improvement_score, weight_changes, proposed_at, status
		FROM rebalancing_proposals
		WHERE id = ?
	`

	result, err := scanProposal(r.db.QueryRow(query, proposalID))
	if err == sql.ErrNoRows {
		return domain.RebalancingResult{}, false, nil
	}
	if err != nil {
		return domain.RebalancingResult{}, false, fmt.Errorf("failed to scan proposal: %w", err)
	}

	if result.Actions, err = r.actionsForProposal(proposalID); err != nil {
		return domain.RebalancingResult{}, false, err
	}
	return result, true, nil
}

// GetByPortfolio returns a portfolio's proposals, newest first, with their
// actions attached
func (r *ProposalRepository) GetByPortfolio(portfolioID int64, limit int) ([]domain.RebalancingResult, error) {
	query := `
		SELECT id, portfolio_id, strategy_id, total_transaction_cost,
		       total_tax_impact, improvement_score, weight_changes, proposed_at, status
		FROM rebalancing_proposals
		WHERE portfolio_id = ?
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query proposals: %w", err)
	}
	defer rows.Close()

	var results []domain.RebalancingResult
	for rows.Next() {
		result, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating proposals: %w", err)
	}

	for i := range results {
		if results[i].Actions, err = r.actionsForProposal(results[i].ID); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// LatestProposedAt returns when a strategy last had a proposal generated, or
// false when it never has
func (r *ProposalRepository) LatestProposedAt(strategyID int64) (time.Time, bool, error) {
	var proposedAt sql.NullString
	err := r.db.QueryRow(`
		SELECT proposed_at FROM rebalancing_proposals
		WHERE strategy_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, strategyID).Scan(&proposedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest proposal: %w", err)
	}

	t, err := parseTime(proposedAt)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// UpdateStatus records a proposal lifecycle transition
func (r *ProposalRepository) UpdateStatus(proposalID int64, status domain.ResultStatus) error {
	res, err := r.db.Exec(`UPDATE rebalancing_proposals SET status = ? WHERE id = ?`, string(status), proposalID)
	if err != nil {
		return fmt.Errorf("failed to update proposal status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("proposal %d not found", proposalID)
	}
	return nil
}

// GetAction returns one action, or false when no action has the given ID
func (r *ProposalRepository) GetAction(actionID int64) (domain.RebalancingAction, bool, error) {
	query := `
		SELECT id, portfolio_id, strategy_id, symbol, action_type, quantity,
		       target_price, current_weight, target_weight, weight_deviation,
		       estimated_transaction_cost, estimated_tax_impact, priority,
		       status, reason, scheduled_at, executed_at, created_at
		FROM rebalancing_actions
		WHERE id = ?
	`

	action, err := scanAction(r.db.QueryRow(query, actionID))
	if err == sql.ErrNoRows {
		return domain.RebalancingAction{}, false, nil
	}
	if err != nil {
		return domain.RebalancingAction{}, false, fmt.Errorf("failed to scan action: %w", err)
	}
	return action, true, nil
}

// SaveAction overwrites an action's mutable lifecycle fields
func (r *ProposalRepository) SaveAction(action domain.RebalancingAction) error {
	res, err := r.db.Exec(`
		UPDATE rebalancing_actions
		SET status = ?, reason = ?, scheduled_at = ?, executed_at = ?
		WHERE id = ?
	`,
		string(action.Status),
		action.Reason,
		formatTime(action.ScheduledAt),
		formatTime(action.ExecutedAt),
		action.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update action: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("action %d not found", action.ID)
	}
	return nil
}

func (r *ProposalRepository) actionsForProposal(proposalID int64) ([]domain.RebalancingAction, error) {
	query := `
		SELECT id, portfolio_id, strategy_id, symbol, action_type, quantity,
		       target_price, current_weight, target_weight, weight_deviation,
		       estimated_transaction_cost, estimated_tax_impact, priority,
		       status, reason, scheduled_at, executed_at, created_at
		FROM rebalancing_actions
		WHERE proposal_id = ?
		ORDER BY id
	`

	rows, err := r.db.Query(query, proposalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var actions []domain.RebalancingAction
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}
	return actions, nil
}

func scanProposal(row scanner) (domain.RebalancingResult, error) {
	var (
		result                   domain.RebalancingResult
		txCost, taxImpact, score string
		weightsJSON, status      string
		proposedAt               sql.NullString
	)

	err := row.Scan(
		&result.ID,
		&result.PortfolioID,
		&result.StrategyID,
		&txCost,
		&taxImpact,
		&score,
		&weightsJSON,
		&proposedAt,
		&status,
	)
	if err != nil {
		return domain.RebalancingResult{}, err
	}

	result.Status = domain.ResultStatus(status)

	if result.TotalTransactionCost, err = decimal.NewFromString(txCost); err != nil {
		return domain.RebalancingResult{}, fmt.Errorf("bad total_transaction_cost %q: %w", txCost, err)
	}
	if result.TotalTaxImpact, err = decimal.NewFromString(taxImpact); err != nil {
		return domain.RebalancingResult{}, fmt.Errorf("bad total_tax_impact %q: %w", taxImpact, err)
	}
	if result.ImprovementScore, err = decimal.NewFromString(score); err != nil {
		return domain.RebalancingResult{}, fmt.Errorf("bad improvement_score %q: %w", score, err)
	}
	if result.WeightChanges, err = unmarshalWeights(weightsJSON); err != nil {
		return domain.RebalancingResult{}, err
	}
	if result.ProposedAt, err = parseTime(proposedAt); err != nil {
		return domain.RebalancingResult{}, err
	}

	return result, nil
}

func scanAction(row scanner) (domain.RebalancingAction, error) {
	var (
		action                             domain.RebalancingAction
		actionType, priority, status       string
		qty, price, current, target, dev   string
		txCost, taxImpact                  string
		scheduledAt, executedAt, createdAt sql.NullString
	)

	err := row.Scan(
		&action.ID,
		&action.PortfolioID,
		&action.StrategyID,
		&action.Symbol,
		&actionType,
		&qty,
		&price,
		&current,
		&target,
		&dev,
		&txCost,
		&taxImpact,
		&priority,
		&status,
		&action.Reason,
		&scheduledAt,
		&executedAt,
		&createdAt,
	)
	if err != nil {
		return domain.RebalancingAction{}, err
	}

	action.ActionType = domain.ActionType(actionType)
	action.Priority = domain.ActionPriority(priority)
	action.Status = domain.ActionStatus(status)

	if action.Quantity, err = decimal.NewFromString(qty); err != nil {
		return domain.RebalancingAction{}, fmt.Errorf("bad quantity %q: %w", qty, err)
	}
	if action.TargetPrice, err = decimal.NewFromString(price); err != nil {
		return domain.RebalancingAction{}, fmt.Errorf("bad target_price %q: %w", price, err)
	}
	if action.CurrentWeight, err = decimal.NewFromString(current); err != nil {
		return domain.RebalancingAction{}, fmt.Errorf("bad current_weight %q: %w", current, err)
	}
	if action.TargetWeight, err = decimal.NewFromString(target); err != nil {
		return domain.RebalancingAction{}, fmt.Errorf("bad target_weight %q: %w", target, err)
	}
	if action.WeightDeviation, err = decimal.NewFromString(dev); err != nil {
		return domain.RebalancingAction{}, fmt.Errorf("bad weight_deviation %q: %w", dev, err)
	}
	if action.EstimatedTransactionCost, err = decimal.NewFromString(txCost); err != nil {
		return domain.RebalancingAction{}, fmt.Errorf("bad estimated_transaction_cost %q: %w", txCost, err)
	}
	if action.EstimatedTaxImpact, err = decimal.NewFromString(taxImpact); err != nil {
		return domain.RebalancingAction{}, fmt.Errorf("bad estimated_tax_impact %q: %w", taxImpact, err)
	}
	if action.ScheduledAt, err = parseTime(scheduledAt); err != nil {
		return domain.RebalancingAction{}, err
	}
	if action.ExecutedAt, err = parseTime(executedAt); err != nil {
		return domain.RebalancingAction{}, err
	}
	if action.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.RebalancingAction{}, err
	}

	return action, nil
}

func formatTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s.String, err)
	}
	return t, nil
}
