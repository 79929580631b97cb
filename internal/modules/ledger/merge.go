package ledger

import (
	"math"

	"github.com/aristath/stocktrader/internal/domain"
)

// Merge folds a purchase of qty units at price into existing.
//
// With no existing position the purchase becomes the position. Otherwise the
// new average is the quantity-weighted mean of the old and new cost:
//
//	avg = (q0*p0 + qty*price) / (q0 + qty)
func Merge(existing *domain.Position, userID, symbol string, qty int64, price float64) (domain.Position, error) {
	if qty <= 0 {
		return domain.Position{}, domain.InvalidInput("quantity must be positive, got %d", qty)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return domain.Position{}, domain.InvalidInput("price for %s is not a finite number", symbol)
	}
	if price < 0 {
		return domain.Position{}, domain.InvalidInput("price for %s is negative: %.2f", symbol, price)
	}

	if existing == nil {
		return domain.Position{
			UserID:   userID,
			Symbol:   symbol,
			Quantity: qty,
			AvgPrice: price,
		}, nil
	}

	if existing.Quantity > math.MaxInt64-qty {
		return domain.Position{}, domain.InvalidInput("quantity overflow for %s", symbol)
	}

	newQty := existing.Quantity + qty
	totalCost := float64(existing.Quantity)*existing.AvgPrice + float64(qty)*price

	return domain.Position{
		UserID:   userID,
		Symbol:   symbol,
		Quantity: newQty,
		AvgPrice: totalCost / float64(newQty),
	}, nil
}
