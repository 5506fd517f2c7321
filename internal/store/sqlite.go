package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	apperrors "option-analyzer/internal/errors"
	"option-analyzer/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db       *sql.DB
	mu       sync.Mutex // serialises read-modify-write sequences
	maxItems int
	now      func() time.Time
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithMaxWatchlistItems overrides DefaultMaxWatchlistItems.
func WithMaxWatchlistItems(n int) Option {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.maxItems = n
		}
	}
}

// WithClock sets the clock used to stamp items saved without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:       db,
		maxItems: DefaultMaxWatchlistItems,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Saved chain snapshots; position 0 is shown first
	CREATE TABLE IF NOT EXISTS watchlist (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		expiration_date TEXT NOT NULL,
		price REAL NOT NULL,
		valuation REAL,
		analysis TEXT,
		chain TEXT,
		url TEXT,
		UNIQUE(symbol, expiration_date)
	);

	-- Candidate pool of pinned contracts
	CREATE TABLE IF NOT EXISTS candidates (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		expiration_date TEXT NOT NULL,
		strike REAL NOT NULL,
		type TEXT NOT NULL,
		delta REAL NOT NULL,
		option_price REAL NOT NULL,
		underlying_price REAL NOT NULL,
		annualized_yield REAL NOT NULL,
		url TEXT,
		UNIQUE(symbol, strike, type, expiration_date)
	);

	CREATE INDEX IF NOT EXISTS idx_watchlist_position ON watchlist(position);
	CREATE INDEX IF NOT EXISTS idx_candidates_position ON candidates(position);
	CREATE INDEX IF NOT EXISTS idx_candidates_context ON candidates(symbol, expiration_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveWatchlistItem saves a snapshot at the head of the watchlist.
func (s *SQLiteStore) SaveWatchlistItem(ctx context.Context, item *models.WatchlistItem) error {
	if item == nil || item.Symbol == "" {
		return apperrors.NewValidationError("symbol", "", "watchlist item needs a symbol")
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = s.now()
	}

	analysis, err := marshalNullable(item.Analysis)
	if err != nil {
		return apperrors.NewStoreError("watchlist", "save", err)
	}
	chainJSON, err := marshalNullable(item.Chain)
	if err != nil {
		return apperrors.NewStoreError("watchlist", "save", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, "watchlist", "save", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM watchlist WHERE (symbol = ? AND expiration_date = ?) OR id = ?
		`, item.Symbol, item.ExpirationDate, item.ID); err != nil {
			return err
		}

		head, err := headPosition(ctx, tx, "watchlist")
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO watchlist (id, position, timestamp, symbol, expiration_date, price, valuation, analysis, chain, url)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, item.ID, head, item.Timestamp.UTC(), item.Symbol, item.ExpirationDate, item.Price,
			nullFloat(item.Valuation), analysis, chainJSON, item.URL); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			DELETE FROM watchlist WHERE id NOT IN (
				SELECT id FROM watchlist ORDER BY position ASC LIMIT ?
			)
		`, s.maxItems)
		return err
	})
}

const watchlistColumns = `id, timestamp, symbol, expiration_date, price, valuation, analysis, chain, url`

// GetWatchlist returns saved items, first shown first.
func (s *SQLiteStore) GetWatchlist(ctx context.Context) ([]models.WatchlistItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+watchlistColumns+` FROM watchlist ORDER BY position ASC`)
	if err != nil {
		return nil, apperrors.NewStoreError("watchlist", "list", err)
	}
	defer rows.Close()

	items := make([]models.WatchlistItem, 0)
	for rows.Next() {
		item, err := scanWatchlistItem(rows)
		if err != nil {
			return nil, apperrors.NewStoreError("watchlist", "scan", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// GetWatchlistItem returns one saved item by id.
func (s *SQLiteStore) GetWatchlistItem(ctx context.Context, id string) (*models.WatchlistItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+watchlistColumns+` FROM watchlist WHERE id = ?`, id)
	item, err := scanWatchlistItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("watchlist item %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, apperrors.NewStoreError("watchlist", "get", err)
	}
	return item, nil
}

// DeleteWatchlistItem removes an item by id.
func (s *SQLiteStore) DeleteWatchlistItem(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "watchlist", id)
}

// ClearWatchlist removes every saved item.
func (s *SQLiteStore) ClearWatchlist(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM watchlist`); err != nil {
		return apperrors.NewStoreError("watchlist", "clear", err)
	}
	return nil
}

// UpdateValuation sets the valuation on a saved item.
func (s *SQLiteStore) UpdateValuation(ctx context.Context, symbol, expirationDate string, valuation float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE watchlist SET valuation = ? WHERE symbol = ? AND expiration_date = ?
	`, valuation, symbol, expirationDate)
	if err != nil {
		return apperrors.NewStoreError("watchlist", "valuation", err)
	}
	return nil
}

// ReorderWatchlist moves ids to the front in order. Unknown ids are skipped
// and unlisted items keep their relative order after them.
func (s *SQLiteStore) ReorderWatchlist(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, "watchlist", "reorder", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM watchlist ORDER BY position ASC`)
		if err != nil {
			return err
		}
		var current []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			current = append(current, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		known := make(map[string]bool, len(current))
		for _, id := range current {
			known[id] = true
		}

		order := make([]string, 0, len(current))
		placed := make(map[string]bool, len(current))
		for _, id := range ids {
			if known[id] && !placed[id] {
				order = append(order, id)
				placed[id] = true
			}
		}
		for _, id := range current {
			if !placed[id] {
				order = append(order, id)
			}
		}

		for pos, id := range order {
			if _, err := tx.ExecContext(ctx, `UPDATE watchlist SET position = ? WHERE id = ?`, pos, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveCandidate pins a contract at the head of the pool.
func (s *SQLiteStore) SaveCandidate(ctx context.Context, c *models.Candidate) (bool, error) {
	if c == nil || c.Symbol == "" {
		return false, apperrors.NewValidationError("symbol", "", "candidate needs a symbol")
	}
	if !c.Type.Valid() {
		return false, apperrors.NewValidationError("type", c.Type, "must be call or put")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var added bool
	err := s.inTx(ctx, "candidates", "save", func(tx *sql.Tx) error {
		head, err := headPosition(ctx, tx, "candidates")
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO candidates (id, position, timestamp, symbol, expiration_date, strike, type,
				delta, option_price, underlying_price, annualized_yield, url)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, head, c.Timestamp.UTC(), c.Symbol, c.ExpirationDate, c.Strike, string(c.Type),
			c.Delta, c.OptionPrice, c.UnderlyingPrice, c.AnnualizedYield, c.URL)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		added = n > 0
		return nil
	})
	return added, err
}

// GetCandidates returns the pool, newest first.
func (s *SQLiteStore) GetCandidates(ctx context.Context) ([]models.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, symbol, expiration_date, strike, type, delta,
			option_price, underlying_price, annualized_yield, url
		FROM candidates ORDER BY position ASC
	`)
	if err != nil {
		return nil, apperrors.NewStoreError("candidates", "list", err)
	}
	defer rows.Close()

	out := make([]models.Candidate, 0)
	for rows.Next() {
		var c models.Candidate
		var typ string
		var url sql.NullString
		if err := rows.Scan(&c.ID, &c.Timestamp, &c.Symbol, &c.ExpirationDate, &c.Strike, &typ, &c.Delta,
			&c.OptionPrice, &c.UnderlyingPrice, &c.AnnualizedYield, &url); err != nil {
			return nil, apperrors.NewStoreError("candidates", "scan", err)
		}
		c.Type = models.ContractType(typ)
		c.URL = url.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// RemoveCandidate removes a candidate by id.
func (s *SQLiteStore) RemoveCandidate(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "candidates", id)
}

// ClearCandidates empties the pool.
func (s *SQLiteStore) ClearCandidates(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM candidates`); err != nil {
		return apperrors.NewStoreError("candidates", "clear", err)
	}
	return nil
}

// PinnedStrikes returns distinct pinned strikes for a symbol and expiration,
// in the order they were first pinned.
func (s *SQLiteStore) PinnedStrikes(ctx context.Context, symbol, expirationDate string) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strike FROM candidates
		WHERE symbol = ? AND expiration_date = ?
		GROUP BY strike
		ORDER BY MAX(position) DESC
	`, symbol, expirationDate)
	if err != nil {
		return nil, apperrors.NewStoreError("candidates", "pinned", err)
	}
	defer rows.Close()

	strikes := make([]float64, 0)
	for rows.Next() {
		var strike float64
		if err := rows.Scan(&strike); err != nil {
			return nil, apperrors.NewStoreError("candidates", "scan", err)
		}
		strikes = append(strikes, strike)
	}
	return strikes, rows.Err()
}

func (s *SQLiteStore) deleteByID(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return apperrors.NewStoreError(table, "delete", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, apperrors.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) inTx(ctx context.Context, table, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStoreError(table, op, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return apperrors.NewStoreError(table, op, err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewStoreError(table, op, err)
	}
	return nil
}

// headPosition returns a position that sorts before every existing row.
func headPosition(ctx context.Context, tx *sql.Tx, table string) (int64, error) {
	var first sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MIN(position) FROM `+table).Scan(&first); err != nil {
		return 0, err
	}
	if !first.Valid {
		return 0, nil
	}
	return first.Int64 - 1, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWatchlistItem(row rowScanner) (*models.WatchlistItem, error) {
	var item models.WatchlistItem
	var valuation sql.NullFloat64
	var analysis, chainJSON, url sql.NullString

	if err := row.Scan(&item.ID, &item.Timestamp, &item.Symbol, &item.ExpirationDate, &item.Price,
		&valuation, &analysis, &chainJSON, &url); err != nil {
		return nil, err
	}

	if valuation.Valid {
		v := valuation.Float64
		item.Valuation = &v
	}
	if analysis.Valid && analysis.String != "" {
		item.Analysis = &models.OptionAnalysis{}
		if err := json.Unmarshal([]byte(analysis.String), item.Analysis); err != nil {
			return nil, fmt.Errorf("decoding analysis: %w", err)
		}
	}
	if chainJSON.Valid && chainJSON.String != "" {
		item.Chain = &models.OptionChain{}
		if err := json.Unmarshal([]byte(chainJSON.String), item.Chain); err != nil {
			return nil, fmt.Errorf("decoding chain: %w", err)
		}
	}
	item.URL = url.String
	return &item, nil
}

func marshalNullable[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
