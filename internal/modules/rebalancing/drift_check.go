package rebalancing

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockquest/rebalancer/internal/domain"
	"github.com/stockquest/rebalancer/internal/events"
)

// DriftCheckJob periodically walks every stored strategy and checks its
// portfolio against the tolerance threshold. Threshold-based strategies are
// checked on every run; periodic strategies only once their frequency
// interval has elapsed since the last proposal. The job only detects and
// reports drift; proposing trades stays an explicit, caller-driven step.
type DriftCheckJob struct {
	strategies *StrategyRepository
	proposals  *ProposalRepository
	portfolios PortfolioLoader
	events     *events.Manager
	log        zerolog.Logger

	now func() time.Time
}

// NewDriftCheckJob creates a new drift check job
func NewDriftCheckJob(
	strategies *StrategyRepository,
	proposals *ProposalRepository,
	portfolios PortfolioLoader,
	eventManager *events.Manager,
	log zerolog.Logger,
) *DriftCheckJob {
	return &DriftCheckJob{
		strategies: strategies,
		proposals:  proposals,
		portfolios: portfolios,
		events:     eventManager,
		log:        log.With().Str("job", "drift_check").Logger(),
		now:        time.Now,
	}
}

// Name returns the job name
func (j *DriftCheckJob) Name() string {
	return "drift_check"
}

// Run checks every due strategy's portfolio for drift beyond tolerance
func (j *DriftCheckJob) Run() error {
	records, err := j.strategies.All()
	if err != nil {
		return fmt.Errorf("drift check: %w", err)
	}

	checked, drifted := 0, 0
	for _, record := range records {
		due, err := j.isDue(record.Strategy)
		if err != nil {
			j.log.Error().
				Err(err).
				Int64("strategy_id", record.Strategy.ID).
				Msg("Failed to determine strategy due state")
			continue
		}
		if !due {
			continue
		}
		checked++

		portfolio, err := j.portfolios.GetPortfolio(record.PortfolioID)
		if err != nil {
			j.log.Error().
				Err(err).
				Int64("portfolio_id", record.PortfolioID).
				Msg("Failed to load portfolio for drift check")
			continue
		}

		if !record.Strategy.RequiresRebalancing(portfolio) {
			continue
		}

		drifted++
		maxDeviation := record.Strategy.MaxDeviation(portfolio)
		j.log.Warn().
			Int64("portfolio_id", record.PortfolioID).
			Int64("strategy_id", record.Strategy.ID).
			Str("max_deviation", maxDeviation.String()).
			Str("threshold", record.Strategy.ToleranceThreshold.String()).
			Msg("Portfolio drifted beyond tolerance")

		j.events.Emit(events.DriftDetected, "rebalancing", map[string]interface{}{
			"portfolio_id":  record.PortfolioID,
			"strategy_id":   record.Strategy.ID,
			"max_deviation": maxDeviation.String(),
			"threshold":     record.Strategy.ToleranceThreshold.String(),
		})
	}

	j.log.Info().
		Int("strategies", len(records)).
		Int("checked", checked).
		Int("drifted", drifted).
		Msg("Drift check completed")

	return nil
}

// isDue reports whether a strategy should be checked on this run. A periodic
// strategy with no proposals yet is always due.
func (j *DriftCheckJob) isDue(strategy domain.RebalancingStrategy) (bool, error) {
	days := strategy.Frequency.Days()
	if days == 0 {
		return true, nil
	}

	last, found, err := j.proposals.LatestProposedAt(strategy.ID)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	return !last.AddDate(0, 0, days).After(j.now()), nil
}
