package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stocktrader/internal/domain"
	"github.com/aristath/stocktrader/internal/metrics"
)

type memoryCache struct {
	mu      sync.Mutex
	quotes  map[string]domain.Quote
	readErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{quotes: make(map[string]domain.Quote)}
}

func (m *memoryCache) GetFreshQuote(_ context.Context, symbol string) (*domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	q, ok := m.quotes[symbol]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (m *memoryCache) StoreQuote(_ context.Context, q domain.Quote, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[q.Symbol] = q
	return nil
}

func chartJSON(symbol string, price float64, currency string) string {
	return fmt.Sprintf(`{"chart":{"result":[{"meta":{"symbol":%q,"currency":%q,"regularMarketPrice":%v}}],"error":null}}`,
		symbol, currency, price)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, cache QuoteCache, ttl time.Duration) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(Config{
		BaseURL:           server.URL,
		Timeout:           2 * time.Second,
		CacheTTL:          ttl,
		RequestsPerSecond: 1000,
		Burst:             100,
	}, cache, metrics.NewRegistry(), zerolog.Nop())
	return client
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(Config{BaseURL: "https://example.test/"}, newMemoryCache(), nil, zerolog.Nop())
	assert.Equal(t, "https://example.test", client.baseURL)
	assert.Equal(t, 10*time.Second, client.client.Timeout)
	assert.Nil(t, client.cache, "zero TTL disables the cache")
}

func TestQuote_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.Equal(t, "1d", r.URL.Query().Get("range"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chartJSON("AAPL", 189.84, "USD"))
	}, nil, 0)

	q, err := client.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, 189.84, q.Price)
	assert.Equal(t, "USD", q.Currency)
	assert.False(t, q.FetchedAt.IsZero())
}

func TestQuote_EscapesSymbol(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/BRK B", r.URL.Path)
		fmt.Fprint(w, chartJSON("BRK B", 410.5, "USD"))
	}, nil, 0)

	q, err := client.Quote(context.Background(), "BRK B")
	require.NoError(t, err)
	assert.Equal(t, 410.5, q.Price)
}

func TestQuote_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)
	}, nil, 0)

	_, err := client.Quote(context.Background(), "NOPE")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPriceUnavailable))
	assert.Contains(t, err.Error(), "NOPE")
	assert.Contains(t, err.Error(), "delisted")

	var pue *domain.PriceUnavailableError
	require.ErrorAs(t, err, &pue)
	assert.Equal(t, "NOPE", pue.Symbol)
}

func TestQuote_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{not json`)
			},
		},
		{
			name: "empty result",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"chart":{"result":[],"error":null}}`)
			},
		},
		{
			name: "missing price",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"chart":{"result":[{"meta":{"symbol":"X","currency":"USD"}}],"error":null}}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler, nil, 0)
			_, err := client.Quote(context.Background(), "X")
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrPriceUnavailable))
		})
	}
}

func TestQuote_EmptySymbolSkipsRequest(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}, nil, 0)

	_, err := client.Quote(context.Background(), "  ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPriceUnavailable))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestQuote_UsesCache(t *testing.T) {
	var calls int32
	cache := newMemoryCache()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, chartJSON("MSFT", 410.0, "USD"))
	}, cache, time.Minute)

	first, err := client.Quote(context.Background(), "MSFT")
	require.NoError(t, err)
	second, err := client.Quote(context.Background(), "MSFT")
	require.NoError(t, err)

	assert.Equal(t, first.Price, second.Price)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestQuote_CacheReadErrorFallsBackToAPI(t *testing.T) {
	cache := newMemoryCache()
	cache.readErr = errors.New("disk I/O error")
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartJSON("MSFT", 411.0, "USD"))
	}, cache, time.Minute)

	q, err := client.Quote(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, 411.0, q.Price)
}

func TestQuote_FailureIsNotCached(t *testing.T) {
	var calls int32
	cache := newMemoryCache()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}, cache, time.Minute)

	_, err := client.Quote(context.Background(), "IBM")
	require.Error(t, err)
	_, err = client.Quote(context.Background(), "IBM")
	require.Error(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Empty(t, cache.quotes)
}

func TestQuote_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, nil, 0)

	for i := 0; i < 5; i++ {
		_, err := client.Quote(context.Background(), "IBM")
		require.Error(t, err)
	}

	_, err := client.Quote(context.Background(), "IBM")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPriceUnavailable))
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls), "open breaker must not reach the API")
}

func TestQuote_NotFoundDoesNotTripBreaker(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}, nil, 0)

	for i := 0; i < 7; i++ {
		_, err := client.Quote(context.Background(), "GONE")
		require.Error(t, err)
	}
	assert.Equal(t, int32(7), atomic.LoadInt32(&calls))
}

func TestQuote_CancelledContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartJSON("AAPL", 1, "USD"))
	}, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Quote(ctx, "AAPL")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPriceUnavailable))
}
