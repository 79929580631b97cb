package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPriceUnavailable means the oracle could not price a symbol.
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrStorageUnavailable means the ledger store could not complete a read or write.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrInvalidInput means a request was rejected before touching any state.
	ErrInvalidInput = errors.New("invalid input")
	// ErrMigration means the ledger schema could not be verified or upgraded.
	ErrMigration = errors.New("schema migration failed")
)

// PriceUnavailableError carries the symbol that could not be priced and why.
type PriceUnavailableError struct {
	Symbol string
	Cause  error
}

func (e *PriceUnavailableError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("price unavailable for %s", e.Symbol)
	}
	return fmt.Sprintf("price unavailable for %s: %v", e.Symbol, e.Cause)
}

// Is makes errors.Is(err, ErrPriceUnavailable) hold.
func (e *PriceUnavailableError) Is(target error) bool {
	return target == ErrPriceUnavailable
}

func (e *PriceUnavailableError) Unwrap() error {
	return e.Cause
}

// NewPriceUnavailable wraps cause for symbol.
func NewPriceUnavailable(symbol string, cause error) error {
	return &PriceUnavailableError{Symbol: symbol, Cause: cause}
}

// StorageError wraps a storage failure so it matches ErrStorageUnavailable.
func StorageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}

// InvalidInput builds an ErrInvalidInput with a description.
func InvalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
