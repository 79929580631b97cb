package ledger

import (
	"context"

	"github.com/aristath/stocktrader/internal/domain"
)

// PositionStore is the ledger storage the service depends on.
type PositionStore interface {
	Get(ctx context.Context, userID, symbol string) (*domain.Position, error)
	List(ctx context.Context, userID string) ([]domain.Position, error)
	Apply(ctx context.Context, userID, symbol string, fn func(existing *domain.Position) (domain.Position, error)) (domain.Position, error)
}

// Compile-time check
var _ PositionStore = (*PositionRepository)(nil)
