package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all ledger routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.Identity)

		// Tool endpoints, text responses
		r.Route("/tools", func(r chi.Router) {
			r.Get("/get_stock_price", h.HandleGetStockPrice)
			r.Post("/buy_stock", h.HandleBuyStock)
			r.Get("/get_portfolio_status", h.HandleGetPortfolioStatus)
		})

		// JSON endpoints
		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/", h.HandleGetPortfolio)
			r.Post("/purchases", h.HandleCreatePurchase)
		})
	})
}
