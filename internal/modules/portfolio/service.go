package portfolio

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stockquest/rebalancer/internal/domain"
	"github.com/stockquest/rebalancer/internal/events"
)

// Service owns position mutation and portfolio snapshot assembly. Cost-basis
// updates are read-modify-write, so all writes for one portfolio are
// serialized behind a per-portfolio lock; reads and writes for different
// portfolios need no coordination.
type Service struct {
	positions *PositionRepository
	snapshots *SnapshotRepository
	events    *events.Manager
	log       zerolog.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewService creates a new portfolio service
func NewService(
	positions *PositionRepository,
	snapshots *SnapshotRepository,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Service {
	return &Service{
		positions: positions,
		snapshots: snapshots,
		events:    eventManager,
		log:       log.With().Str("service", "portfolio").Logger(),
		now:       time.Now,
		locks:     make(map[int64]*sync.Mutex),
	}
}

// portfolioLock returns the single write lock for a portfolio
func (s *Service) portfolioLock(portfolioID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[portfolioID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[portfolioID] = lock
	}
	return lock
}

// GetPortfolio assembles a point-in-time portfolio snapshot from the stored
// positions
func (s *Service) GetPortfolio(portfolioID int64) (domain.Portfolio, error) {
	positions, err := s.positions.GetByPortfolio(portfolioID)
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("failed to load portfolio %d: %w", portfolioID, err)
	}

	return domain.Portfolio{
		ID:        portfolioID,
		Positions: positions,
	}, nil
}

// RecordBuy applies a buy fill to the portfolio's position for the symbol,
// creating the position on the first buy
func (s *Service) RecordBuy(portfolioID int64, symbol string, qty, price decimal.Decimal) (domain.Position, error) {
	lock := s.portfolioLock(portfolioID)
	lock.Lock()
	defer lock.Unlock()

	pos, found, err := s.positions.Get(portfolioID, symbol)
	if err != nil {
		return domain.Position{}, err
	}
	if !found {
		pos = domain.NewPosition(symbol)
	}
	opened := pos.IsFlat()

	next, err := pos.ApplyBuy(qty, price, s.now())
	if err != nil {
		return domain.Position{}, err
	}
	// Until a quote arrives, the fill price is the best price on record.
	if next.CurrentPrice.IsZero() {
		if next, err = next.UpdatePrice(price, s.now()); err != nil {
			return domain.Position{}, err
		}
	}

	if err := s.positions.Save(portfolioID, next); err != nil {
		return domain.Position{}, err
	}

	eventType := events.PositionIncreased
	if opened {
		eventType = events.PositionOpened
	}
	s.events.Emit(eventType, "portfolio", map[string]interface{}{
		"portfolio_id": portfolioID,
		"symbol":       symbol,
		"quantity":     qty.String(),
		"price":        price.String(),
	})

	s.log.Info().
		Int64("portfolio_id", portfolioID).
		Str("symbol", symbol).
		Str("quantity", qty.String()).
		Str("price", price.String()).
		Str("average_cost", next.AverageCost.String()).
		Msg("Buy recorded")

	return next, nil
}

// RecordSell applies a sell fill. Realized PnL accrues on the position;
// selling a symbol the portfolio does not hold fails the same way as
// overselling one it does.
func (s *Service) RecordSell(portfolioID int64, symbol string, qty, price decimal.Decimal) (domain.Position, error) {
	lock := s.portfolioLock(portfolioID)
	lock.Lock()
	defer lock.Unlock()

	pos, found, err := s.positions.Get(portfolioID, symbol)
	if err != nil {
		return domain.Position{}, err
	}
	if !found {
		return domain.Position{}, fmt.Errorf("no position in %s: %w", symbol, domain.ErrInsufficientPosition)
	}

	realizedBefore := pos.RealizedPnL
	next, err := pos.ApplySell(qty, price, s.now())
	if err != nil {
		return domain.Position{}, err
	}
	if next.CurrentPrice.IsZero() && !next.IsFlat() {
		if next, err = next.UpdatePrice(price, s.now()); err != nil {
			return domain.Position{}, err
		}
	}

	if err := s.positions.Save(portfolioID, next); err != nil {
		return domain.Position{}, err
	}

	eventType := events.PositionDecreased
	if next.IsFlat() {
		eventType = events.PositionClosed
	}
	s.events.Emit(eventType, "portfolio", map[string]interface{}{
		"portfolio_id": portfolioID,
		"symbol":       symbol,
		"quantity":     qty.String(),
		"price":        price.String(),
	})
	s.events.Emit(events.PnLRealized, "portfolio", map[string]interface{}{
		"portfolio_id": portfolioID,
		"symbol":       symbol,
		"realized_pnl": next.RealizedPnL.Sub(realizedBefore).String(),
	})

	s.log.Info().
		Int64("portfolio_id", portfolioID).
		Str("symbol", symbol).
		Str("quantity", qty.String()).
		Str("price", price.String()).
		Str("realized_pnl", next.RealizedPnL.String()).
		Msg("Sell recorded")

	return next, nil
}

// UpdatePrices applies a quote snapshot to the portfolio's held symbols.
// Symbols without a quote keep their last price.
func (s *Service) UpdatePrices(portfolioID int64, prices map[string]decimal.Decimal) error {
	lock := s.portfolioLock(portfolioID)
	lock.Lock()
	defer lock.Unlock()

	positions, err := s.positions.GetByPortfolio(portfolioID)
	if err != nil {
		return err
	}

	updated := 0
	for _, pos := range positions {
		price, ok := prices[pos.Symbol]
		if !ok {
			continue
		}

		next, err := pos.UpdatePrice(price, s.now())
		if err != nil {
			return fmt.Errorf("failed to update price for %s: %w", pos.Symbol, err)
		}
		if err := s.positions.Save(portfolioID, next); err != nil {
			return err
		}
		updated++
	}

	s.events.Emit(events.PriceUpdated, "portfolio", map[string]interface{}{
		"portfolio_id": portfolioID,
		"updated":      updated,
	})

	return nil
}

// TakeSnapshot records today's total portfolio value for the analytics
// history
func (s *Service) TakeSnapshot(portfolioID int64) (Snapshot, error) {
	portfolio, err := s.GetPortfolio(portfolioID)
	if err != nil {
		return Snapshot{}, err
	}

	totalValue, _ := portfolio.TotalValue().Float64()
	snap := Snapshot{
		PortfolioID: portfolioID,
		Date:        s.now().UTC().Format("2006-01-02"),
		TotalValue:  totalValue,
	}

	if err := s.snapshots.Save(snap); err != nil {
		return Snapshot{}, err
	}

	s.events.Emit(events.SnapshotTaken, "portfolio", map[string]interface{}{
		"portfolio_id": portfolioID,
		"total_value":  snap.TotalValue,
	})

	return snap, nil
}

// ValueHistory returns the recorded daily value series for a portfolio
func (s *Service) ValueHistory(portfolioID int64) ([]float64, error) {
	return s.snapshots.GetValues(portfolioID)
}
