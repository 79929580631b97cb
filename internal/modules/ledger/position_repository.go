package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/stocktrader/internal/database"
	"github.com/aristath/stocktrader/internal/domain"
)

// querier is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const (
	selectPositionSQL = `SELECT user_id, symbol, quantity, avg_price
		FROM positions WHERE user_id = ? AND symbol = ?`

	listPositionsSQL = `SELECT user_id, symbol, quantity, avg_price
		FROM positions WHERE user_id = ? ORDER BY symbol`

	upsertPositionSQL = `INSERT INTO positions (user_id, symbol, quantity, avg_price)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, symbol) DO UPDATE SET
			quantity = excluded.quantity,
			avg_price = excluded.avg_price`
)

// PositionRepository handles position database operations in the ledger database.
// Every read and write is scoped to a (user_id, symbol) key or a single user.
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

// Get returns the position for (userID, symbol), or nil if none exists.
func (r *PositionRepository) Get(ctx context.Context, userID, symbol string) (*domain.Position, error) {
	pos, err := getPosition(ctx, r.db, userID, symbol)
	if err != nil {
		return nil, domain.StorageError(fmt.Sprintf("get %s/%s", userID, symbol), err)
	}
	return pos, nil
}

// Upsert writes pos, replacing any existing row for the same key.
func (r *PositionRepository) Upsert(ctx context.Context, pos domain.Position) error {
	if err := upsertPosition(ctx, r.db, pos); err != nil {
		return domain.StorageError(fmt.Sprintf("upsert %s/%s", pos.UserID, pos.Symbol), err)
	}
	return nil
}

// List returns every position held by userID ordered by symbol.
func (r *PositionRepository) List(ctx context.Context, userID string) ([]domain.Position, error) {
	rows, err := r.db.QueryContext(ctx, listPositionsSQL, userID)
	if err != nil {
		return nil, domain.StorageError("list "+userID, err)
	}
	defer rows.Close()

	positions := make([]domain.Position, 0)
	for rows.Next() {
		var pos domain.Position
		if err := rows.Scan(&pos.UserID, &pos.Symbol, &pos.Quantity, &pos.AvgPrice); err != nil {
			return nil, domain.StorageError("scan position for "+userID, err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterate positions for "+userID, err)
	}

	return positions, nil
}

// Apply runs a read-modify-write on the (userID, symbol) key.
//
// The read, fn and the write happen inside one BEGIN IMMEDIATE transaction, so
// SQLite's write lock serializes concurrent callers; the busy_timeout pragma
// makes them wait rather than fail. When fn returns an error it is returned
// unchanged and nothing is written.
func (r *PositionRepository) Apply(
	ctx context.Context,
	userID, symbol string,
	fn func(existing *domain.Position) (domain.Position, error),
) (domain.Position, error) {
	var (
		result domain.Position
		fnErr  error
	)

	err := database.WithImmediateTransaction(ctx, r.db, func(conn *sql.Conn) error {
		existing, err := getPosition(ctx, conn, userID, symbol)
		if err != nil {
			return err
		}

		next, err := fn(existing)
		if err != nil {
			fnErr = err
			return err
		}
		// The key is owned by the caller, not by fn
		next.UserID = userID
		next.Symbol = symbol

		if err := upsertPosition(ctx, conn, next); err != nil {
			return err
		}
		result = next
		return nil
	})

	if fnErr != nil {
		return domain.Position{}, fnErr
	}
	if err != nil {
		return domain.Position{}, domain.StorageError(fmt.Sprintf("apply %s/%s", userID, symbol), err)
	}

	r.log.Debug().
		Str("user_id", userID).
		Str("symbol", symbol).
		Int64("quantity", result.Quantity).
		Float64("avg_price", result.AvgPrice).
		Msg("Position updated")

	return result, nil
}

func getPosition(ctx context.Context, q querier, userID, symbol string) (*domain.Position, error) {
	var pos domain.Position
	err := q.QueryRowContext(ctx, selectPositionSQL, userID, symbol).
		Scan(&pos.UserID, &pos.Symbol, &pos.Quantity, &pos.AvgPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query position: %w", err)
	}
	return &pos, nil
}

func upsertPosition(ctx context.Context, q querier, pos domain.Position) error {
	if _, err := q.ExecContext(ctx, upsertPositionSQL, pos.UserID, pos.Symbol, pos.Quantity, pos.AvgPrice); err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}
	return nil
}
