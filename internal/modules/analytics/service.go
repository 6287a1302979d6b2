package analytics

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/stockquest/rebalancer/pkg/formulas"
)

// ErrInsufficientHistory means the portfolio has fewer than two snapshots.
var ErrInsufficientHistory = errors.New("insufficient value history")

// PerformanceMetrics summarizes a portfolio's performance from its daily
// value snapshots. The ratio fields are nil when the history cannot support
// them, distinct from a computed zero.
type PerformanceMetrics struct {
	PortfolioID      int64                     `json:"portfolio_id"`
	TotalReturn      float64                   `json:"total_return"`
	AnnualizedReturn float64                   `json:"annualized_return"`
	Volatility       float64                   `json:"volatility"`
	SharpeRatio      *float64                  `json:"sharpe_ratio"`
	SortinoRatio     *float64                  `json:"sortino_ratio"`
	MaxDrawdown      *float64                  `json:"max_drawdown"`
	WinRate          float64                   `json:"win_rate"`
	Drawdown         *formulas.DrawdownMetrics `json:"drawdown,omitempty"`
	DataPoints       int                       `json:"data_points"`
}

// HistoryProvider supplies the daily portfolio value series, oldest first.
type HistoryProvider interface {
	ValueHistory(portfolioID int64) ([]float64, error)
}

// Service computes performance analytics over snapshot history
type Service struct {
	history      HistoryProvider
	riskFreeRate float64
	log          zerolog.Logger
}

// NewService creates a new analytics service
func NewService(history HistoryProvider, riskFreeRate float64, log zerolog.Logger) *Service {
	return &Service{
		history:      history,
		riskFreeRate: riskFreeRate,
		log:          log.With().Str("module", "analytics").Logger(),
	}
}

// Performance computes the performance metrics for a portfolio. At least two
// snapshots are required.
func (s *Service) Performance(portfolioID int64) (PerformanceMetrics, error) {
	values, err := s.history.ValueHistory(portfolioID)
	if err != nil {
		return PerformanceMetrics{}, err
	}
	if len(values) < 2 {
		return PerformanceMetrics{}, ErrInsufficientHistory
	}

	returns := formulas.Returns(values)
	totalReturn := formulas.TotalReturn(values)

	metrics := PerformanceMetrics{
		PortfolioID:      portfolioID,
		TotalReturn:      totalReturn,
		AnnualizedReturn: formulas.AnnualizedReturn(totalReturn, len(values)-1),
		Volatility:       formulas.AnnualizedVolatility(returns),
		SharpeRatio:      formulas.SharpeRatio(returns, s.riskFreeRate, formulas.TradingDaysPerYear),
		SortinoRatio:     formulas.SortinoRatio(returns, s.riskFreeRate, 0, formulas.TradingDaysPerYear),
		MaxDrawdown:      formulas.MaxDrawdown(values),
		WinRate:          formulas.WinRate(returns),
		Drawdown:         formulas.Drawdown(values),
		DataPoints:       len(values),
	}

	s.log.Debug().
		Int64("portfolio_id", portfolioID).
		Int("data_points", metrics.DataPoints).
		Float64("total_return", metrics.TotalReturn).
		Msg("Performance metrics computed")

	return metrics, nil
}
