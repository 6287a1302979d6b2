package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stockquest/rebalancer/internal/domain"
)

// PositionRepository handles position database operations. One row per
// portfolio+symbol; positions that go flat stay on file so their realized
// PnL history survives.
type PositionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		log: log.With().Str("repo", "position").Logger(),
	}
}

// GetByPortfolio returns all positions for a portfolio, ordered by symbol
func (r *PositionRepository) GetByPortfolio(portfolioID int64) ([]domain.Position, error) {
	query := `
		SELECT symbol, quantity, average_cost, cost_basis, current_price,
		       realized_pnl, unrealized_pnl, open_date, last_updated
		FROM positions
		WHERE portfolio_id = ?
		ORDER BY symbol
	`

	rows, err := r.db.Query(query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// Get returns one position, or false when the portfolio has no record for
// the symbol
func (r *PositionRepository) Get(portfolioID int64, symbol string) (domain.Position, bool, error) {
	query := `
		SELECT symbol, quantity, average_cost, cost_basis, current_price,
		       realized_pnl, unrealized_pnl, open_date, last_updated
		FROM positions
		WHERE portfolio_id = ? AND symbol = ?
	`

	row := r.db.QueryRow(query, portfolioID, symbol)
	pos, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return domain.Position{}, false, nil
	}
	if err != nil {
		return domain.Position{}, false, fmt.Errorf("failed to scan position: %w", err)
	}
	return pos, true, nil
}

// Save upserts a position row
func (r *PositionRepository) Save(portfolioID int64, pos domain.Position) error {
	query := `
		INSERT INTO positions (
			portfolio_id, symbol, quantity, average_cost, cost_basis,
			current_price, realized_pnl, unrealized_pnl, open_date, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (portfolio_id, symbol) DO UPDATE SET
			quantity = excluded.quantity,
			average_cost = excluded.average_cost,
			cost_basis = excluded.cost_basis,
			current_price = excluded.current_price,
			realized_pnl = excluded.realized_pnl,
			unrealized_pnl = excluded.unrealized_pnl,
			open_date = excluded.open_date,
			last_updated = excluded.last_updated
	`

	_, err := r.db.Exec(query,
		portfolioID,
		pos.Symbol,
		pos.Quantity.String(),
		pos.AverageCost.String(),
		pos.CostBasis.String(),
		pos.CurrentPrice.String(),
		pos.RealizedPnL.String(),
		pos.UnrealizedPnL.String(),
		formatTime(pos.OpenDate),
		formatTime(pos.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row scanner) (domain.Position, error) {
	var (
		pos                                        domain.Position
		qty, avgCost, costBasis, price, rpnl, upnl string
		openDate, lastUpdated                      sql.NullString
	)

	if err := row.Scan(&pos.Symbol, &qty, &avgCost, &costBasis, &price, &rpnl, &upnl, &openDate, &lastUpdated); err != nil {
		return domain.Position{}, err
	}

	var err error
	if pos.Quantity, err = decimal.NewFromString(qty); err != nil {
		return domain.Position{}, fmt.Errorf("bad quantity %q: %w", qty, err)
	}
	if pos.AverageCost, err = decimal.NewFromString(avgCost); err != nil {
		return domain.Position{}, fmt.Errorf("bad average_cost %q: %w", avgCost, err)
	}
	if pos.CostBasis, err = decimal.NewFromString(costBasis); err != nil {
		return domain.Position{}, fmt.Errorf("bad cost_basis %q: %w", costBasis, err)
	}
	if pos.CurrentPrice, err = decimal.NewFromString(price); err != nil {
		return domain.Position{}, fmt.Errorf("bad current_price %q: %w", price, err)
	}
	if pos.RealizedPnL, err = decimal.NewFromString(rpnl); err != nil {
		return domain.Position{}, fmt.Errorf("bad realized_pnl %q: %w", rpnl, err)
	}
	if pos.UnrealizedPnL, err = decimal.NewFromString(upnl); err != nil {
		return domain.Position{}, fmt.Errorf("bad unrealized_pnl %q: %w", upnl, err)
	}
	if pos.OpenDate, err = parseTime(openDate); err != nil {
		return domain.Position{}, err
	}
	if pos.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return domain.Position{}, err
	}

	return pos, nil
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
