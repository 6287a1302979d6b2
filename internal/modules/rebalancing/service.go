package rebalancing

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stockquest/rebalancer/internal/domain"
	"github.com/stockquest/rebalancer/internal/events"
)

// Lookup failures for stored strategies, proposals, and actions.
var (
	ErrStrategyNotFound = errors.New("strategy not found")
	ErrProposalNotFound = errors.New("proposal not found")
	ErrActionNotFound   = errors.New("action not found")
)

// PortfolioLoader provides the current portfolio state for a proposal run.
type PortfolioLoader interface {
	GetPortfolio(portfolioID int64) (domain.Portfolio, error)
}

// Service orchestrates rebalancing: strategy management, proposal generation
// through the engine, and the action lifecycle
type Service struct {
	engine     *Engine
	strategies *StrategyRepository
	proposals  *ProposalRepository
	portfolios PortfolioLoader
	events     *events.Manager
	log        zerolog.Logger

	now func() time.Time
}

// NewService creates a new rebalancing service
func NewService(
	engine *Engine,
	strategies *StrategyRepository,
	proposals *ProposalRepository,
	portfolios PortfolioLoader,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Service {
	return &Service{
		engine:     engine,
		strategies: strategies,
		proposals:  proposals,
		portfolios: portfolios,
		events:     eventManager,
		log:        log.With().Str("module", "rebalancing").Logger(),
		now:        time.Now,
	}
}

// CreateStrategy validates and stores a strategy for a portfolio
func (s *Service) CreateStrategy(portfolioID int64, strategy domain.RebalancingStrategy) (domain.RebalancingStrategy, error) {
	if !strategy.IsValid() {
		return domain.RebalancingStrategy{}, fmt.Errorf("create strategy: %w", domain.ErrInvalidStrategy)
	}

	created, err := s.strategies.Create(portfolioID, strategy)
	if err != nil {
		return domain.RebalancingStrategy{}, err
	}

	s.log.Info().
		Int64("portfolio_id", portfolioID).
		Int64("strategy_id", created.ID).
		Str("name", created.Name).
		Msg("Strategy created")

	return created, nil
}

// GetStrategies returns a portfolio's strategies
func (s *Service) GetStrategies(portfolioID int64) ([]domain.RebalancingStrategy, error) {
	return s.strategies.GetByPortfolio(portfolioID)
}

// DeleteStrategy removes a strategy
func (s *Service) DeleteStrategy(strategyID int64) error {
	return s.strategies.Delete(strategyID)
}

// Propose runs the engine against the portfolio's current state and persists
// the resulting proposal
func (s *Service) Propose(portfolioID, strategyID int64, prices map[string]decimal.Decimal) (domain.RebalancingResult, error) {
	strategy, ownerID, found, err := s.strategies.Get(strategyID)
	if err != nil {
		return domain.RebalancingResult{}, err
	}
	if !found || ownerID != portfolioID {
		return domain.RebalancingResult{}, fmt.Errorf("strategy %d for portfolio %d: %w", strategyID, portfolioID, ErrStrategyNotFound)
	}

	portfolio, err := s.portfolios.GetPortfolio(portfolioID)
	if err != nil {
		return domain.RebalancingResult{}, err
	}

	result, err := s.engine.Propose(portfolio, strategy, prices)
	if err != nil {
		s.events.EmitError("rebalancing", err, map[string]interface{}{
			"portfolio_id": portfolioID,
			"strategy_id":  strategyID,
		})
		return domain.RebalancingResult{}, err
	}

	createdAt := s.now()
	for i := range result.Actions {
		result.Actions[i].CreatedAt = createdAt
	}

	saved, err := s.proposals.Save(result)
	if err != nil {
		return domain.RebalancingResult{}, err
	}

	s.events.Emit(events.ProposalCreated, "rebalancing", map[string]interface{}{
		"portfolio_id": portfolioID,
		"strategy_id":  strategyID,
		"proposal_id":  saved.ID,
		"actions":      saved.ActionCount(),
		"total_cost":   saved.TotalCost().String(),
	})

	return saved, nil
}

// GetProposal returns one stored proposal with its actions
func (s *Service) GetProposal(proposalID int64) (domain.RebalancingResult, error) {
	result, found, err := s.proposals.Get(proposalID)
	if err != nil {
		return domain.RebalancingResult{}, err
	}
	if !found {
		return domain.RebalancingResult{}, fmt.Errorf("proposal %d: %w", proposalID, ErrProposalNotFound)
	}
	return result, nil
}

// ListProposals returns a portfolio's proposals, newest first
func (s *Service) ListProposals(portfolioID int64, limit int) ([]domain.RebalancingResult, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.proposals.GetByPortfolio(portfolioID, limit)
}

// UpdateProposalStatus records an approval or rejection
func (s *Service) UpdateProposalStatus(proposalID int64, status domain.ResultStatus) error {
	if _, err := s.GetProposal(proposalID); err != nil {
		return err
	}
	return s.proposals.UpdateStatus(proposalID, status)
}

// ExecuteAction records an action as executed at the current time
func (s *Service) ExecuteAction(actionID int64) (domain.RebalancingAction, error) {
	action, found, err := s.proposals.GetAction(actionID)
	if err != nil {
		return domain.RebalancingAction{}, err
	}
	if !found {
		return domain.RebalancingAction{}, fmt.Errorf("action %d: %w", actionID, ErrActionNotFound)
	}

	executed := action.MarkExecuted(s.now())
	if err := s.proposals.SaveAction(executed); err != nil {
		return domain.RebalancingAction{}, err
	}

	s.events.Emit(events.ActionExecuted, "rebalancing", map[string]interface{}{
		"action_id":    executed.ID,
		"portfolio_id": executed.PortfolioID,
		"symbol":       executed.Symbol,
		"action_type":  string(executed.ActionType),
		"quantity":     executed.Quantity.String(),
	})

	return executed, nil
}

// FailAction records an action as failed with the given cause
func (s *Service) FailAction(actionID int64, reason string) (domain.RebalancingAction, error) {
	action, found, err := s.proposals.GetAction(actionID)
	if err != nil {
		return domain.RebalancingAction{}, err
	}
	if !found {
		return domain.RebalancingAction{}, fmt.Errorf("action %d: %w", actionID, ErrActionNotFound)
	}

	failed := action.MarkFailed(reason)
	if err := s.proposals.SaveAction(failed); err != nil {
		return domain.RebalancingAction{}, err
	}

	s.events.Emit(events.ActionFailed, "rebalancing", map[string]interface{}{
		"action_id":    failed.ID,
		"portfolio_id": failed.PortfolioID,
		"symbol":       failed.Symbol,
		"reason":       reason,
	})

	return failed, nil
}
