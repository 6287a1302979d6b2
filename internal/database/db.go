package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
	path string
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database connection
	// Use WAL mode for better concurrency
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)

	return &DB{
		conn: conn,
		path: dbPath,
	}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// schema holds the table definitions. Decimal columns are stored as TEXT so
// exact decimal values round-trip without float drift.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS positions (
		portfolio_id   INTEGER NOT NULL,
		symbol         TEXT NOT NULL,
		quantity       TEXT NOT NULL,
		average_cost   TEXT NOT NULL,
		cost_basis     TEXT NOT NULL,
		current_price  TEXT NOT NULL,
		realized_pnl   TEXT NOT NULL,
		unrealized_pnl TEXT NOT NULL,
		open_date      TEXT,
		last_updated   TEXT,
		PRIMARY KEY (portfolio_id, symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS portfolio_snapshots (
		portfolio_id INTEGER NOT NULL,
		date         TEXT NOT NULL,
		total_value  REAL NOT NULL,
		PRIMARY KEY (portfolio_id, date)
	)`,
	`CREATE TABLE IF NOT EXISTS strategies (
		id                         INTEGER PRIMARY KEY AUTOINCREMENT,
		name                       TEXT NOT NULL,
		type                       TEXT NOT NULL,
		frequency                  TEXT NOT NULL,
		target_weights             TEXT NOT NULL,
		tolerance_threshold        TEXT NOT NULL,
		minimum_trade_amount       TEXT NOT NULL,
		tax_optimized              INTEGER NOT NULL DEFAULT 0,
		consider_transaction_costs INTEGER NOT NULL DEFAULT 0,
		portfolio_id               INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rebalancing_proposals (
		id                     INTEGER PRIMARY KEY AUTOINCREMENT,
		portfolio_id           INTEGER NOT NULL,
		strategy_id            INTEGER NOT NULL,
		total_transaction_cost TEXT NOT NULL,
		total_tax_impact       TEXT NOT NULL,
		improvement_score      TEXT NOT NULL,
		weight_changes         TEXT NOT NULL,
		proposed_at            TEXT NOT NULL,
		status                 TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rebalancing_actions (
		id                         INTEGER PRIMARY KEY AUTOINCREMENT,
		proposal_id                INTEGER NOT NULL REFERENCES rebalancing_proposals(id),
		portfolio_id               INTEGER NOT NULL,
		strategy_id                INTEGER NOT NULL,
		symbol                     TEXT NOT NULL,
		action_type                TEXT NOT NULL,
		quantity                   TEXT NOT NULL,
		target_price               TEXT NOT NULL,
		current_weight             TEXT NOT NULL,
		target_weight              TEXT NOT NULL,
		weight_deviation           TEXT NOT NULL,
		estimated_transaction_cost TEXT NOT NULL,
		estimated_tax_impact       TEXT NOT NULL,
		priority                   TEXT NOT NULL,
		status                     TEXT NOT NULL,
		reason                     TEXT NOT NULL,
		scheduled_at               TEXT,
		executed_at                TEXT,
		created_at                 TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_actions_proposal ON rebalancing_actions(proposal_id)`,
	`CREATE INDEX IF NOT EXISTS idx_proposals_portfolio ON rebalancing_proposals(portfolio_id)`,
}

// Migrate creates the schema when it does not exist yet
func (db *DB) Migrate() error {
	for _, stmt := range schema {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

// Begin starts a new transaction
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}

// Exec executes a query without returning rows
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRow(query, args...)
}
