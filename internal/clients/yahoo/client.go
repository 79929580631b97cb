// Package yahoo implements the price oracle on top of the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/aristath/stocktrader/internal/domain"
	"github.com/aristath/stocktrader/internal/metrics"
)

const userAgent = "Mozilla/5.0 (compatible; stocktrader/1.0)"

// errSymbolNotFound marks an upstream "no such symbol" answer. It does not
// count as a failure for the circuit breaker.
var errSymbolNotFound = errors.New("symbol not found")

// QuoteCache is the persistent quote cache consulted before the API.
type QuoteCache interface {
	GetFreshQuote(ctx context.Context, symbol string) (*domain.Quote, error)
	StoreQuote(ctx context.Context, q domain.Quote, ttl time.Duration) error
}

// Config configures the client
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	CacheTTL          time.Duration // 0 disables caching
	RequestsPerSecond float64
	Burst             int
}

// Client for the Yahoo Finance chart endpoint
type Client struct {
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	cache    QuoteCache
	cacheTTL time.Duration
	metrics  *metrics.Registry
	log      zerolog.Logger
	now      func() time.Time
}

// NewClient creates a new Yahoo price client.
// cache is optional - if nil or cfg.CacheTTL is zero, caching is disabled.
func NewClient(cfg Config, cache QuoteCache, m *metrics.Registry, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.CacheTTL <= 0 {
		cache = nil
	}

	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cache:    cache,
		cacheTTL: cfg.CacheTTL,
		metrics:  m,
		log:      log.With().Str("client", "yahoo").Logger(),
		now:      time.Now,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "yahoo-chart",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errSymbolNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})

	return c
}

// Quote returns the current price of symbol. Every failure is returned as a
// *domain.PriceUnavailableError.
func (c *Client) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	if strings.TrimSpace(symbol) == "" {
		return domain.Quote{}, domain.NewPriceUnavailable(symbol, errors.New("empty symbol"))
	}

	if c.cache != nil {
		cached, err := c.cache.GetFreshQuote(ctx, symbol)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Quote cache read failed, falling back to API")
		} else if cached != nil {
			c.metrics.ObserveOracleLookup("cache", "hit")
			c.log.Debug().Str("symbol", symbol).Float64("price", cached.Price).Msg("Cache hit")
			return *cached, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		c.metrics.ObserveOracleLookup("api", "unavailable")
		return domain.Quote{}, domain.NewPriceUnavailable(symbol, fmt.Errorf("rate limit wait: %w", err))
	}

	start := c.now()
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, symbol)
	})
	c.metrics.ObserveOracleLatency(c.now().Sub(start))
	if err != nil {
		c.metrics.ObserveOracleLookup("api", "unavailable")
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("Price lookup failed")
		return domain.Quote{}, domain.NewPriceUnavailable(symbol, err)
	}

	quote := res.(domain.Quote)
	c.metrics.ObserveOracleLookup("api", "ok")

	if c.cache != nil {
		if err := c.cache.StoreQuote(ctx, quote, c.cacheTTL); err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache quote")
		}
	}

	c.log.Debug().
		Str("symbol", symbol).
		Float64("price", quote.Price).
		Str("currency", quote.Currency).
		Msg("Fetched quote")

	return quote, nil
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string   `json:"symbol"`
				Currency           string   `json:"currency"`
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (c *Client) fetch(ctx context.Context, symbol string) (domain.Quote, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d", c.baseURL, url.PathEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Quote{}, fmt.Errorf("read response: %w", err)
	}

	var parsed chartResponse
	decodeErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode == http.StatusNotFound {
		desc := "no data"
		if decodeErr == nil && parsed.Chart.Error != nil && parsed.Chart.Error.Description != "" {
			desc = parsed.Chart.Error.Description
		}
		return domain.Quote{}, fmt.Errorf("%w: %s", errSymbolNotFound, desc)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return domain.Quote{}, fmt.Errorf("failed to parse response: %w", decodeErr)
	}
	if parsed.Chart.Error != nil {
		return domain.Quote{}, fmt.Errorf("%w: %s", errSymbolNotFound, parsed.Chart.Error.Description)
	}
	if len(parsed.Chart.Result) == 0 {
		return domain.Quote{}, fmt.Errorf("%w: empty result", errSymbolNotFound)
	}

	meta := parsed.Chart.Result[0].Meta
	if meta.RegularMarketPrice == nil {
		return domain.Quote{}, fmt.Errorf("%w: no market price", errSymbolNotFound)
	}
	price := *meta.RegularMarketPrice
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return domain.Quote{}, fmt.Errorf("non-finite price %v", price)
	}

	return domain.Quote{
		Symbol:    symbol,
		Price:     price,
		Currency:  meta.Currency,
		FetchedAt: c.now(),
	}, nil
}
