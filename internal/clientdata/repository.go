// Package clientdata provides persistent caching for price oracle responses.
// Quotes are stored as msgpack blobs with expiration timestamps for cache-first lookups.
package clientdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/stocktrader/internal/domain"
)

// QuotesTable holds cached quotes in client_data.db.
const QuotesTable = "current_prices"

// cachedQuote is the structure stored in the cache
type cachedQuote struct {
	Price     float64 `msgpack:"p"`
	Currency  string  `msgpack:"c"`
	FetchedAt int64   `msgpack:"t"`
}

// Repository provides cache operations for client data.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new client data repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// StoreQuote saves q with expiration = now + ttl.
func (r *Repository) StoreQuote(ctx context.Context, q domain.Quote, ttl time.Duration) error {
	data, err := msgpack.Marshal(cachedQuote{
		Price:     q.Price,
		Currency:  q.Currency,
		FetchedAt: q.FetchedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode quote for %s: %w", q.Symbol, err)
	}

	expiresAt := r.now().Add(ttl).Unix()
	_, err = r.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO "+QuotesTable+" (symbol, data, expires_at) VALUES (?, ?, ?)",
		q.Symbol, data, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store quote for %s: %w", q.Symbol, err)
	}
	return nil
}

// GetFreshQuote returns the cached quote only if it has not expired.
// Returns nil, nil if the symbol is not cached or the entry is stale.
func (r *Repository) GetFreshQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		"SELECT data FROM "+QuotesTable+" WHERE symbol = ? AND expires_at > ?",
		symbol, r.now().Unix(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached quote for %s: %w", symbol, err)
	}

	var cached cachedQuote
	if err := msgpack.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("failed to decode cached quote for %s: %w", symbol, err)
	}

	return &domain.Quote{
		Symbol:    symbol,
		Price:     cached.Price,
		Currency:  cached.Currency,
		FetchedAt: time.Unix(cached.FetchedAt, 0),
	}, nil
}

// Delete removes a cached quote.
func (r *Repository) Delete(ctx context.Context, symbol string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM "+QuotesTable+" WHERE symbol = ?", symbol); err != nil {
		return fmt.Errorf("failed to delete cached quote for %s: %w", symbol, err)
	}
	return nil
}

// DeleteExpired removes all rows that expired before now minus a short grace period.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpired(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-cleanupGrace).Unix()

	result, err := r.db.ExecContext(ctx, "DELETE FROM "+QuotesTable+" WHERE expires_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired quotes: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}
