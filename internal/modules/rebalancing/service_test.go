package rebalancing

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockquest/rebalancer/internal/database"
	"github.com/stockquest/rebalancer/internal/domain"
	"github.com/stockquest/rebalancer/internal/events"
)

// stubLoader serves fixed portfolio states so tests control drift exactly.
type stubLoader struct {
	portfolios map[int64]domain.Portfolio
}

func (s stubLoader) GetPortfolio(portfolioID int64) (domain.Portfolio, error) {
	return s.portfolios[portfolioID], nil
}

func newTestService(t *testing.T, loader PortfolioLoader) *Service {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	log := zerolog.Nop()
	svc := NewService(
		newTestEngine(),
		NewStrategyRepository(db.Conn(), log),
		NewProposalRepository(db.Conn(), log),
		loader,
		events.NewManager(log),
		log,
	)
	svc.now = func() time.Time { return testNow }
	return svc
}

// driftedLoader returns a 60/40 portfolio against the 50/50 strategy.
func driftedLoader(t *testing.T) stubLoader {
	t.Helper()
	return stubLoader{portfolios: map[int64]domain.Portfolio{
		1: buildPortfolio(t, map[string]holding{
			"A": {qty: "6", price: "100"},
			"B": {qty: "4", price: "100"},
		}),
	}}
}

func TestService_CreateStrategy_RejectsInvalidWeights(t *testing.T) {
	svc := newTestService(t, stubLoader{})

	_, err := svc.CreateStrategy(1, domain.RebalancingStrategy{
		Name:          "broken",
		TargetWeights: map[string]decimal.Decimal{"A": d("0.5")},
	})
	require.ErrorIs(t, err, domain.ErrInvalidStrategy)
}

func TestService_CreateStrategy_RoundTrip(t *testing.T) {
	svc := newTestService(t, stubLoader{})

	created, err := svc.CreateStrategy(1, fiftyFiftyStrategy())
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	strategies, err := svc.GetStrategies(1)
	require.NoError(t, err)
	require.Len(t, strategies, 1)

	got := strategies[0]
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, domain.StrategyTypeStrategic, got.Type)
	assert.Equal(t, domain.FrequencyThresholdBased, got.Frequency)
	assert.True(t, got.TargetWeights["A"].Equal(d("0.5")))
	assert.True(t, got.TargetWeights["B"].Equal(d("0.5")))
	assert.True(t, got.ToleranceThreshold.Equal(d("0.03")))
	assert.True(t, got.MinimumTradeAmount.Equal(d("100")))

	// Strategies are scoped to their portfolio.
	others, err := svc.GetStrategies(2)
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestService_DeleteStrategy(t *testing.T) {
	svc := newTestService(t, stubLoader{})

	created, err := svc.CreateStrategy(1, fiftyFiftyStrategy())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteStrategy(created.ID))

	strategies, err := svc.GetStrategies(1)
	require.NoError(t, err)
	assert.Empty(t, strategies)
}

func TestService_Propose_UnknownStrategy(t *testing.T) {
	svc := newTestService(t, driftedLoader(t))

	_, err := svc.Propose(1, 42, map[string]decimal.Decimal{"A": d("100")})
	require.ErrorIs(t, err, ErrStrategyNotFound)
}

func TestService_Propose_StrategyOwnedByOtherPortfolio(t *testing.T) {
	svc := newTestService(t, driftedLoader(t))

	created, err := svc.CreateStrategy(2, fiftyFiftyStrategy())
	require.NoError(t, err)

	_, err = svc.Propose(1, created.ID, map[string]decimal.Decimal{"A": d("100")})
	require.ErrorIs(t, err, ErrStrategyNotFound)
}

func TestService_Propose_PersistsAndReloads(t *testing.T) {
	svc := newTestService(t, driftedLoader(t))

	created, err := svc.CreateStrategy(1, fiftyFiftyStrategy())
	require.NoError(t, err)

	prices := map[string]decimal.Decimal{"A": d("100"), "B": d("100")}
	result, err := svc.Propose(1, created.ID, prices)
	require.NoError(t, err)

	assert.NotZero(t, result.ID)
	require.Len(t, result.Actions, 2)
	for _, action := range result.Actions {
		assert.NotZero(t, action.ID)
		assert.Equal(t, domain.StatusPending, action.Status)
		assert.Equal(t, testNow, action.CreatedAt)
	}

	reloaded, err := svc.GetProposal(result.ID)
	require.NoError(t, err)
	assert.Equal(t, result.ID, reloaded.ID)
	assert.Equal(t, int64(1), reloaded.PortfolioID)
	assert.Equal(t, created.ID, reloaded.StrategyID)
	assert.Equal(t, domain.ResultProposed, reloaded.Status)
	assert.True(t, reloaded.TotalTransactionCost.Equal(result.TotalTransactionCost))
	assert.True(t, reloaded.TotalTaxImpact.Equal(result.TotalTaxImpact))
	assert.True(t, reloaded.ImprovementScore.Equal(result.ImprovementScore))
	assert.Equal(t, testNow, reloaded.ProposedAt)

	require.Len(t, reloaded.WeightChanges, 2)
	assert.True(t, reloaded.WeightChanges["A"].Equal(d("-0.1")))
	assert.True(t, reloaded.WeightChanges["B"].Equal(d("0.1")))

	require.Len(t, reloaded.Actions, 2)
	for i, action := range reloaded.Actions {
		assert.Equal(t, result.Actions[i].Symbol, action.Symbol)
		assert.Equal(t, result.Actions[i].ActionType, action.ActionType)
		assert.True(t, action.Quantity.Equal(result.Actions[i].Quantity))
		assert.True(t, action.WeightDeviation.Equal(result.Actions[i].WeightDeviation))
		assert.Equal(t, result.Actions[i].Priority, action.Priority)
		assert.Equal(t, result.Actions[i].Reason, action.Reason)
	}
}

func TestService_ListProposals_NewestFirst(t *testing.T) {
	svc := newTestService(t, driftedLoader(t))

	created, err := svc.CreateStrategy(1, fiftyFiftyStrategy())
	require.NoError(t, err)

	prices := map[string]decimal.Decimal{"A": d("100"), "B": d("100")}
	first, err := svc.Propose(1, created.ID, prices)
	require.NoError(t, err)
	second, err := svc.Propose(1, created.ID, prices)
	require.NoError(t, err)

	proposals, err := svc.ListProposals(1, 0)
	require.NoError(t, err)
	require.Len(t, proposals, 2)
	assert.Equal(t, second.ID, proposals[0].ID)
	assert.Equal(t, first.ID, proposals[1].ID)

	limited, err := svc.ListProposals(1, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, second.ID, limited[0].ID)
}

func TestService_UpdateProposalStatus(t *testing.T) {
	svc := newTestService(t, driftedLoader(t))

	created, err := svc.CreateStrategy(1, fiftyFiftyStrategy())
	require.NoError(t, err)

	prices := map[string]decimal.Decimal{"A": d("100"), "B": d("100")}
	result, err := svc.Propose(1, created.ID, prices)
	require.NoError(t, err)

	require.NoError(t, svc.UpdateProposalStatus(result.ID, domain.ResultApproved))

	reloaded, err := svc.GetProposal(result.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultApproved, reloaded.Status)

	err = svc.UpdateProposalStatus(999, domain.ResultApproved)
	require.ErrorIs(t, err, ErrProposalNotFound)
}

func TestService_ExecuteAction(t *testing.T) {
	svc := newTestService(t, driftedLoader(t))

	created, err := svc.CreateStrategy(1, fiftyFiftyStrategy())
	require.NoError(t, err)

	prices := map[string]decimal.Decimal{"A": d("100"), "B": d("100")}
	result, err := svc.Propose(1, created.ID, prices)
	require.NoError(t, err)
	require.NotEmpty(t, result.Actions)

	executed, err := svc.ExecuteAction(result.Actions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExecuted, executed.Status)
	assert.Equal(t, testNow, executed.ExecutedAt)

	reloaded, err := svc.GetProposal(result.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExecuted, reloaded.Actions[0].Status)
	assert.Equal(t, testNow, reloaded.Actions[0].ExecutedAt)

	_, err = svc.ExecuteAction(999)
	require.ErrorIs(t, err, ErrActionNotFound)
}

func TestService_FailAction(t *testing.T) {
	svc := newTestService(t, driftedLoader(t))

	created, err := svc.CreateStrategy(1, fiftyFiftyStrategy())
	require.NoError(t, err)

	prices := map[string]decimal.Decimal{"A": d("100"), "B": d("100")}
	result, err := svc.Propose(1, created.ID, prices)
	require.NoError(t, err)
	require.NotEmpty(t, result.Actions)

	original := result.Actions[0]
	failed, err := svc.FailAction(original.ID, "order rejected")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, failed.Status)
	assert.Equal(t, original.Reason+" | failed: order rejected", failed.Reason)

	reloaded, err := svc.GetProposal(result.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, reloaded.Actions[0].Status)
	assert.Equal(t, failed.Reason, reloaded.Actions[0].Reason)
}

func TestDriftCheckJob_Run(t *testing.T) {
	loader := driftedLoader(t)
	svc := newTestService(t, loader)

	_, err := svc.CreateStrategy(1, fiftyFiftyStrategy())
	require.NoError(t, err)

	job := NewDriftCheckJob(svc.strategies, svc.proposals, loader, events.NewManager(zerolog.Nop()), zerolog.Nop())
	assert.Equal(t, "drift_check", job.Name())
	require.NoError(t, job.Run())
}

func TestDriftCheckJob_PeriodicStrategyDueOnlyAfterInterval(t *testing.T) {
	loader := driftedLoader(t)
	svc := newTestService(t, loader)

	monthly := fiftyFiftyStrategy()
	monthly.Frequency = domain.FrequencyMonthly
	created, err := svc.CreateStrategy(1, monthly)
	require.NoError(t, err)

	job := NewDriftCheckJob(svc.strategies, svc.proposals, loader, events.NewManager(zerolog.Nop()), zerolog.Nop())
	job.now = func() time.Time { return testNow }

	// No proposals yet: always due.
	due, err := job.isDue(created)
	require.NoError(t, err)
	assert.True(t, due)

	prices := map[string]decimal.Decimal{"A": d("100"), "B": d("100")}
	_, err = svc.Propose(1, created.ID, prices)
	require.NoError(t, err)

	// Just proposed: not due again until a month has passed.
	due, err = job.isDue(created)
	require.NoError(t, err)
	assert.False(t, due)

	job.now = func() time.Time { return testNow.AddDate(0, 0, 30) }
	due, err = job.isDue(created)
	require.NoError(t, err)
	assert.True(t, due)
}
