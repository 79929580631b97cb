// Package domain holds the ledger's core types, errors and collaborator contracts.
package domain

import "time"

// DefaultUserID is the identity used when a request carries no caller identity.
// Rows migrated from the single-tenant ledger are tagged with it.
const DefaultUserID = "local_user"

// Position is one user's holding of one symbol.
// (UserID, Symbol) is unique; AvgPrice is always derived through a merge, never edited.
type Position struct {
	UserID   string  `json:"user_id"`
	Symbol   string  `json:"symbol"`
	Quantity int64   `json:"quantity"`
	AvgPrice float64 `json:"avg_price"`
}

// CostBasis returns what was paid for the whole position.
func (p Position) CostBasis() float64 {
	return p.AvgPrice * float64(p.Quantity)
}

// Quote is a live price returned by the price oracle.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ResolveUserID returns userID, or fallback when userID is blank.
func ResolveUserID(userID, fallback string) string {
	if userID == "" {
		return fallback
	}
	return userID
}
