package portfolio

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// Snapshot is one day's recorded portfolio value.
type Snapshot struct {
	PortfolioID int64   `json:"portfolio_id"`
	Date        string  `json:"date"` // YYYY-MM-DD
	TotalValue  float64 `json:"total_value"`
}

// SnapshotRepository stores the daily portfolio value series the analytics
// module computes performance metrics from.
type SnapshotRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:  db,
		log: log.With().Str("repo", "snapshot").Logger(),
	}
}

// Save upserts a snapshot for the given day
func (r *SnapshotRepository) Save(snap Snapshot) error {
	query := `
		INSERT INTO portfolio_snapshots (portfolio_id, date, total_value)
		VALUES (?, ?, ?)
		ON CONFLICT (portfolio_id, date) DO UPDATE SET
			total_value = excluded.total_value
	`

	if _, err := r.db.Exec(query, snap.PortfolioID, snap.Date, snap.TotalValue); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetValues returns the portfolio's value series in date order
func (r *SnapshotRepository) GetValues(portfolioID int64) ([]float64, error) {
	query := `
		SELECT total_value
		FROM portfolio_snapshots
		WHERE portfolio_id = ?
		ORDER BY date
	`

	rows, err := r.db.Query(query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return values, nil
}
