package domain

import "context"

// PriceOracle provides the current market price of a symbol.
// Any failure is reported as a *PriceUnavailableError; callers must not
// distinguish network problems from unknown symbols.
type PriceOracle interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}
