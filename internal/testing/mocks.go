package testing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aristath/stocktrader/internal/domain"
)

// MockPriceOracle is a mock implementation of domain.PriceOracle for testing
type MockPriceOracle struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
	errs   map[string]error
	delays map[string]time.Duration
	calls  map[string]int
}

// NewMockPriceOracle creates a new mock price oracle. Unknown symbols fail
// with domain.ErrPriceUnavailable.
func NewMockPriceOracle() *MockPriceOracle {
	return &MockPriceOracle{
		quotes: make(map[string]domain.Quote),
		errs:   make(map[string]error),
		delays: make(map[string]time.Duration),
		calls:  make(map[string]int),
	}
}

// SetQuote sets the price returned for symbol
func (m *MockPriceOracle) SetQuote(symbol string, price float64, currency string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[symbol] = domain.Quote{Symbol: symbol, Price: price, Currency: currency, FetchedAt: time.Now()}
	delete(m.errs, symbol)
}

// SetError makes lookups of symbol fail with err
func (m *MockPriceOracle) SetError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[symbol] = err
}

// SetDelay blocks lookups of symbol for d or until the context is done
func (m *MockPriceOracle) SetDelay(symbol string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[symbol] = d
}

// Calls returns how many times symbol was looked up
func (m *MockPriceOracle) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

// Quote implements domain.PriceOracle
func (m *MockPriceOracle) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	m.mu.Lock()
	m.calls[symbol]++
	delay := m.delays[symbol]
	err := m.errs[symbol]
	q, ok := m.quotes[symbol]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.Quote{}, domain.NewPriceUnavailable(symbol, ctx.Err())
		}
	}
	if err != nil {
		return domain.Quote{}, err
	}
	if !ok {
		return domain.Quote{}, domain.NewPriceUnavailable(symbol, nil)
	}
	return q, nil
}

// MockPositionStore is an in-memory position store for testing
type MockPositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.Position
	err       error
	applies   int
}

// NewMockPositionStore creates a new mock position store
func NewMockPositionStore() *MockPositionStore {
	return &MockPositionStore{positions: make(map[string]domain.Position)}
}

func storeKey(userID, symbol string) string {
	return userID + "\x00" + symbol
}

// SetPosition seeds a position
func (m *MockPositionStore) SetPosition(pos domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[storeKey(pos.UserID, pos.Symbol)] = pos
}

// SetError makes every operation fail with err
func (m *MockPositionStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Applies returns how many read-modify-writes reached the store
func (m *MockPositionStore) Applies() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applies
}

// Get returns the position for (userID, symbol) or nil
func (m *MockPositionStore) Get(_ context.Context, userID, symbol string) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	pos, ok := m.positions[storeKey(userID, symbol)]
	if !ok {
		return nil, nil
	}
	return &pos, nil
}

// List returns the positions of userID ordered by symbol
func (m *MockPositionStore) List(_ context.Context, userID string) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	result := make([]domain.Position, 0)
	for _, pos := range m.positions {
		if pos.UserID == userID {
			result = append(result, pos)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result, nil
}

// Apply runs fn under the store lock and saves its result
func (m *MockPositionStore) Apply(_ context.Context, userID, symbol string, fn func(*domain.Position) (domain.Position, error)) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applies++
	if m.err != nil {
		return domain.Position{}, m.err
	}

	var existing *domain.Position
	if pos, ok := m.positions[storeKey(userID, symbol)]; ok {
		existing = &pos
	}
	next, err := fn(existing)
	if err != nil {
		return domain.Position{}, err
	}
	next.UserID = userID
	next.Symbol = symbol
	m.positions[storeKey(userID, symbol)] = next
	return next, nil
}
