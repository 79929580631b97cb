// Package ledger records share purchases per user and reports unrealized P/L
// against live prices.
package ledger

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/stocktrader/internal/domain"
	"github.com/aristath/stocktrader/internal/metrics"
)

// ReportConfig bounds the price lookups of one portfolio report.
type ReportConfig struct {
	Concurrency   int           // parallel oracle lookups
	LookupTimeout time.Duration // per lookup; 0 means none
}

// PurchaseResult describes a recorded purchase.
type PurchaseResult struct {
	UserID   string          `json:"user_id"`
	Symbol   string          `json:"symbol"`
	Quantity int64           `json:"quantity"`
	Price    float64         `json:"price"`
	Currency string          `json:"currency"`
	Position domain.Position `json:"position"`
}

// Line is one symbol of a portfolio report.
// When Available is false only Symbol, Quantity, AvgPrice and Error are set.
type Line struct {
	Symbol       string  `json:"symbol"`
	Quantity     int64   `json:"quantity"`
	AvgPrice     float64 `json:"avg_price"`
	CostBasis    float64 `json:"cost_basis"`
	Available    bool    `json:"available"`
	CurrentPrice float64 `json:"current_price,omitempty"`
	Currency     string  `json:"currency,omitempty"`
	MarketValue  float64 `json:"market_value,omitempty"`
	PnL          float64 `json:"pnl"`
	Error        string  `json:"error,omitempty"`
}

// Report is a user's portfolio marked to live prices.
// Totals only cover lines whose price was available.
type Report struct {
	UserID      string    `json:"user_id"`
	Empty       bool      `json:"empty"`
	Lines       []Line    `json:"lines"`
	TotalCost   float64   `json:"total_cost"`
	TotalValue  float64   `json:"total_value"`
	TotalPnL    float64   `json:"total_pnl"`
	Unavailable int       `json:"unavailable"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Service orchestrates the price oracle and the position store.
// It holds no position state of its own; every call reads the store.
type Service struct {
	store   PositionStore
	oracle  domain.PriceOracle
	metrics *metrics.Registry
	cfg     ReportConfig
	log     zerolog.Logger
	now     func() time.Time
}

// NewService creates a new ledger service
func NewService(store PositionStore, oracle domain.PriceOracle, cfg ReportConfig, m *metrics.Registry, log zerolog.Logger) *Service {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Service{
		store:   store,
		oracle:  oracle,
		metrics: m,
		cfg:     cfg,
		log:     log.With().Str("service", "ledger").Logger(),
		now:     time.Now,
	}
}

// GetQuote returns the live price of symbol.
func (s *Service) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	if strings.TrimSpace(symbol) == "" {
		return domain.Quote{}, domain.InvalidInput("symbol is required")
	}
	q, err := s.oracle.Quote(ctx, symbol)
	if err != nil {
		return domain.Quote{}, asPriceUnavailable(symbol, err)
	}
	return q, nil
}

// RecordPurchase buys qty units of symbol for userID at the live price and
// merges them into the user's position. If the price cannot be obtained the
// ledger is left untouched.
func (s *Service) RecordPurchase(ctx context.Context, userID, symbol string, qty int64) (PurchaseResult, error) {
	if err := validatePurchase(userID, symbol, qty); err != nil {
		s.metrics.ObservePurchase("invalid")
		return PurchaseResult{}, err
	}

	quote, err := s.oracle.Quote(ctx, symbol)
	if err != nil {
		s.metrics.ObservePurchase("price_unavailable")
		s.log.Info().Err(err).Str("user_id", userID).Str("symbol", symbol).Msg("Purchase rejected, no price")
		return PurchaseResult{}, asPriceUnavailable(symbol, err)
	}
	if math.IsNaN(quote.Price) || math.IsInf(quote.Price, 0) || quote.Price < 0 {
		s.metrics.ObservePurchase("invalid")
		return PurchaseResult{}, domain.InvalidInput("oracle returned an unusable price for %s: %v", symbol, quote.Price)
	}

	pos, err := s.store.Apply(ctx, userID, symbol, func(existing *domain.Position) (domain.Position, error) {
		return Merge(existing, userID, symbol, qty, quote.Price)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			s.metrics.ObservePurchase("invalid")
		} else {
			s.metrics.ObservePurchase("storage_error")
			s.log.Error().Err(err).Str("user_id", userID).Str("symbol", symbol).Msg("Failed to record purchase")
		}
		return PurchaseResult{}, err
	}

	s.metrics.ObservePurchase("ok")
	s.log.Info().
		Str("user_id", userID).
		Str("symbol", symbol).
		Int64("quantity", qty).
		Float64("price", quote.Price).
		Int64("position_quantity", pos.Quantity).
		Float64("avg_price", pos.AvgPrice).
		Msg("Purchase recorded")

	return PurchaseResult{
		UserID:   userID,
		Symbol:   symbol,
		Quantity: qty,
		Price:    quote.Price,
		Currency: quote.Currency,
		Position: pos,
	}, nil
}

// PortfolioReport marks every position of userID to its live price.
//
// Lookups run concurrently and fail independently: a symbol without a price
// becomes an unavailable line and is left out of the totals. An empty
// portfolio yields Report.Empty rather than an error.
func (s *Service) PortfolioReport(ctx context.Context, userID string) (*Report, error) {
	if strings.TrimSpace(userID) == "" {
		s.metrics.ObserveReport("invalid", 0)
		return nil, domain.InvalidInput("user id is required")
	}

	positions, err := s.store.List(ctx, userID)
	if err != nil {
		s.metrics.ObserveReport("storage_error", 0)
		return nil, err
	}

	report := &Report{
		UserID:      userID,
		Lines:       make([]Line, len(positions)),
		GeneratedAt: s.now(),
	}
	if len(positions) == 0 {
		report.Empty = true
		s.metrics.ObserveReport("empty", 0)
		return report, nil
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, pos := range positions {
		g.Go(func() error {
			report.Lines[i] = s.priceLine(ctx, pos)
			return nil
		})
	}
	_ = g.Wait()

	for _, line := range report.Lines {
		if !line.Available {
			report.Unavailable++
			continue
		}
		report.TotalCost += line.CostBasis
		report.TotalValue += line.MarketValue
		report.TotalPnL += line.PnL
	}

	s.metrics.ObserveReport("ok", report.Unavailable)
	s.log.Debug().
		Str("user_id", userID).
		Int("positions", len(report.Lines)).
		Int("unavailable", report.Unavailable).
		Float64("total_pnl", report.TotalPnL).
		Msg("Portfolio report built")

	return report, nil
}

func (s *Service) priceLine(ctx context.Context, pos domain.Position) Line {
	line := Line{
		Symbol:    pos.Symbol,
		Quantity:  pos.Quantity,
		AvgPrice:  pos.AvgPrice,
		CostBasis: pos.CostBasis(),
	}

	if s.cfg.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.LookupTimeout)
		defer cancel()
	}

	quote, err := s.oracle.Quote(ctx, pos.Symbol)
	if err == nil && (math.IsNaN(quote.Price) || math.IsInf(quote.Price, 0) || quote.Price < 0) {
		err = domain.NewPriceUnavailable(pos.Symbol, errors.New("unusable price"))
	}
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("No live price for position")
		line.Error = asPriceUnavailable(pos.Symbol, err).Error()
		return line
	}

	line.Available = true
	line.CurrentPrice = quote.Price
	line.Currency = quote.Currency
	line.MarketValue = quote.Price * float64(pos.Quantity)
	line.PnL = line.MarketValue - line.CostBasis
	return line
}

func validatePurchase(userID, symbol string, qty int64) error {
	if strings.TrimSpace(userID) == "" {
		return domain.InvalidInput("user id is required")
	}
	if strings.TrimSpace(symbol) == "" {
		return domain.InvalidInput("symbol is required")
	}
	if qty <= 0 {
		return domain.InvalidInput("quantity must be positive, got %d", qty)
	}
	return nil
}

// asPriceUnavailable makes every oracle failure match domain.ErrPriceUnavailable.
func asPriceUnavailable(symbol string, err error) error {
	if errors.Is(err, domain.ErrPriceUnavailable) {
		return err
	}
	return domain.NewPriceUnavailable(symbol, err)
}
