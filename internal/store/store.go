// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"option-analyzer/internal/models"
)

// DefaultMaxWatchlistItems caps the saved watchlist history.
const DefaultMaxWatchlistItems = 50

// DataStore defines the interface for data persistence.
type DataStore interface {
	WatchlistStore
	CandidateStore
	Close() error
}

// WatchlistStore persists saved chain snapshots, newest first.
type WatchlistStore interface {
	// SaveWatchlistItem replaces any item with the same symbol and
	// expiration, puts the new one first and drops the oldest beyond the cap.
	SaveWatchlistItem(ctx context.Context, item *models.WatchlistItem) error
	GetWatchlist(ctx context.Context) ([]models.WatchlistItem, error)
	GetWatchlistItem(ctx context.Context, id string) (*models.WatchlistItem, error)
	DeleteWatchlistItem(ctx context.Context, id string) error
	ClearWatchlist(ctx context.Context) error
	// UpdateValuation sets the user's valuation on the item for symbol and
	// expiration. Missing items are ignored.
	UpdateValuation(ctx context.Context, symbol, expirationDate string, valuation float64) error
	// ReorderWatchlist moves the listed ids to the front in the given order.
	ReorderWatchlist(ctx context.Context, ids []string) error
}

// CandidateStore persists the candidate pool, newest first.
type CandidateStore interface {
	// SaveCandidate adds c unless the same symbol, strike, type and
	// expiration is already pinned. It reports whether c was added.
	SaveCandidate(ctx context.Context, c *models.Candidate) (bool, error)
	GetCandidates(ctx context.Context) ([]models.Candidate, error)
	RemoveCandidate(ctx context.Context, id string) error
	ClearCandidates(ctx context.Context) error
	// PinnedStrikes returns the distinct strikes pinned for one chain.
	PinnedStrikes(ctx context.Context, symbol, expirationDate string) ([]float64, error)
}
