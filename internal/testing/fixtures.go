package testing

import "github.com/aristath/stocktrader/internal/domain"

// NewPositionFixtures returns positions for two users holding overlapping symbols
func NewPositionFixtures() []domain.Position {
	return []domain.Position{
		{UserID: "alice", Symbol: "AAPL", Quantity: 10, AvgPrice: 150.0},
		{UserID: "alice", Symbol: "MSFT", Quantity: 5, AvgPrice: 300.0},
		{UserID: "alice", Symbol: "RELIANCE.NS", Quantity: 20, AvgPrice: 2450.5},
		{UserID: "bob", Symbol: "AAPL", Quantity: 3, AvgPrice: 170.0},
	}
}

// NewQuoteFixtures returns live prices matching NewPositionFixtures
func NewQuoteFixtures() map[string]domain.Quote {
	return map[string]domain.Quote{
		"AAPL":        {Symbol: "AAPL", Price: 160.0, Currency: "USD"},
		"MSFT":        {Symbol: "MSFT", Price: 280.0, Currency: "USD"},
		"RELIANCE.NS": {Symbol: "RELIANCE.NS", Price: 2500.0, Currency: "INR"},
	}
}
