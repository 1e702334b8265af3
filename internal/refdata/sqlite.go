package refdata

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Compile-time interface check.
var _ Source = (*SQLiteSource)(nil)

// SQLiteSource serves reference data from the symbol-master SQLite
// database. The master itself is maintained by an external ingestion
// job; this layer only reads it, plus a small quotes table refreshed by
// the price feed.
type SQLiteSource struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteSource opens (or creates) the reference database.
func NewSQLiteSource(dbPath string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS contracts (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		underlying  TEXT NOT NULL,
		exchange    TEXT NOT NULL,
		expiry      TEXT NOT NULL,
		strike      REAL NOT NULL,
		option_type TEXT NOT NULL,
		lot_size    INTEGER NOT NULL DEFAULT 1,
		expiry_rank INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_contracts_chain ON contracts(underlying, exchange, expiry);
	CREATE TABLE IF NOT EXISTS quotes (
		symbol     TEXT NOT NULL,
		exchange   TEXT NOT NULL,
		ltp        REAL NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (symbol, exchange)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[refdata] opened symbol master at %s", dbPath)
	return &SQLiteSource{db: db}, nil
}

func (s *SQLiteSource) LTP(ctx context.Context, symbol, exchange string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ltp float64
	err := s.db.QueryRowContext(ctx,
		`SELECT ltp FROM quotes WHERE symbol = ? AND exchange = ?`,
		symbol, exchange).Scan(&ltp)
	if err == sql.ErrNoRows || (err == nil && ltp <= 0) {
		return 0, fmt.Errorf("%s on %s: %w", symbol, exchange, ErrNoLTP)
	}
	if err != nil {
		return 0, fmt.Errorf("refdata ltp: %w", err)
	}
	return ltp, nil
}

func (s *SQLiteSource) Expiries(ctx context.Context, underlying, exchange string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT expiry FROM contracts
		 WHERE underlying = ? AND exchange = ? ORDER BY expiry_rank`,
		underlying, exchange)
	if err != nil {
		return nil, fmt.Errorf("refdata expiries: %w", err)
	}
	defer rows.Close()

	var expiries []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			continue
		}
		expiries = append(expiries, e)
	}
	if len(expiries) == 0 {
		return nil, fmt.Errorf("%s on %s: %w", underlying, exchange, ErrNoExpiry)
	}
	return expiries, nil
}

func (s *SQLiteSource) Strikes(ctx context.Context, underlying, exchange, expiry string) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT strike FROM contracts
		 WHERE underlying = ? AND exchange = ? AND expiry = ? ORDER BY strike`,
		underlying, exchange, expiry)
	if err != nil {
		return nil, fmt.Errorf("refdata strikes: %w", err)
	}
	defer rows.Close()

	var strikes []float64
	for rows.Next() {
		var k float64
		if err := rows.Scan(&k); err != nil {
			continue
		}
		strikes = append(strikes, k)
	}
	if len(strikes) == 0 {
		return nil, fmt.Errorf("%s %s on %s: %w", underlying, expiry, exchange, ErrNoStrikes)
	}
	return strikes, nil
}

func (s *SQLiteSource) LotSize(ctx context.Context, symbol, exchange string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lot int64
	err := s.db.QueryRowContext(ctx,
		`SELECT lot_size FROM contracts WHERE underlying = ? AND exchange = ? LIMIT 1`,
		symbol, exchange).Scan(&lot)
	if err == sql.ErrNoRows {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("refdata lot size: %w", err)
	}
	return lot, nil
}

// UpsertContract adds one contract row to the symbol master. The
// ingestion job and tests call this.
func (s *SQLiteSource) UpsertContract(ctx context.Context, underlying, exchange, expiry string, strike float64, optionType string, lotSize int64, expiryRank int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contracts (underlying, exchange, expiry, strike, option_type, lot_size, expiry_rank)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		underlying, exchange, expiry, strike, optionType, lotSize, expiryRank)
	return err
}

// UpsertQuote refreshes one LTP row. The price feed calls this.
func (s *SQLiteSource) UpsertQuote(ctx context.Context, symbol, exchange string, ltp float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quotes (symbol, exchange, ltp) VALUES (?, ?, ?)
		 ON CONFLICT(symbol, exchange) DO UPDATE SET ltp = excluded.ltp, updated_at = CURRENT_TIMESTAMP`,
		symbol, exchange, ltp)
	return err
}

// Close closes the database.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}
