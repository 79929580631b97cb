// Package handlers exposes the ledger over HTTP: the text tools and their JSON variants.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/stocktrader/internal/domain"
	"github.com/aristath/stocktrader/internal/modules/ledger"
)

// UserIDHeader carries the caller identity.
const UserIDHeader = "X-User-ID"

type ctxKey struct{}

// Handler handles ledger HTTP requests
type Handler struct {
	service       *ledger.Service
	defaultUserID string
	log           zerolog.Logger
}

// NewHandler creates a new ledger handler. Requests without an identity
// header act as defaultUserID.
func NewHandler(service *ledger.Service, defaultUserID string, log zerolog.Logger) *Handler {
	if defaultUserID == "" {
		defaultUserID = domain.DefaultUserID
	}
	return &Handler{
		service:       service,
		defaultUserID: defaultUserID,
		log:           log.With().Str("handler", "ledger").Logger(),
	}
}

// Identity resolves the caller once per request and stores it on the context.
func (h *Handler) Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := domain.ResolveUserID(strings.TrimSpace(r.Header.Get(UserIDHeader)), h.defaultUserID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func (h *Handler) userID(r *http.Request) string {
	if id, ok := r.Context().Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	return h.defaultUserID
}

type purchaseRequest struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
}

// HandleGetStockPrice handles GET /api/tools/get_stock_price?symbol=
func (h *Handler) HandleGetStockPrice(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")

	quote, err := h.service.GetQuote(r.Context(), symbol)
	if err != nil {
		h.writeText(w, statusFor(err), ledger.FormatQuoteError(symbol, err))
		return
	}
	h.writeText(w, http.StatusOK, ledger.FormatQuote(quote))
}

// HandleBuyStock handles POST /api/tools/buy_stock
func (h *Handler) HandleBuyStock(w http.ResponseWriter, r *http.Request) {
	req, err := parsePurchase(r)
	if err != nil {
		h.writeText(w, http.StatusBadRequest, ledger.FormatPurchaseError(req.Symbol, err))
		return
	}

	res, err := h.service.RecordPurchase(r.Context(), h.userID(r), req.Symbol, req.Quantity)
	if err != nil {
		h.writeText(w, statusFor(err), ledger.FormatPurchaseError(req.Symbol, err))
		return
	}
	h.writeText(w, http.StatusOK, ledger.FormatPurchase(res))
}

// HandleGetPortfolioStatus handles GET /api/tools/get_portfolio_status
func (h *Handler) HandleGetPortfolioStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.PortfolioReport(r.Context(), h.userID(r))
	if err != nil {
		h.writeText(w, statusFor(err), ledger.FormatReportError(err))
		return
	}
	h.writeText(w, http.StatusOK, ledger.FormatReport(report))
}

// HandleGetPortfolio handles GET /api/portfolio
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.PortfolioReport(r.Context(), h.userID(r))
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// HandleCreatePurchase handles POST /api/portfolio/purchases
func (h *Handler) HandleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	req, err := parsePurchase(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.service.RecordPurchase(r.Context(), h.userID(r), req.Symbol, req.Quantity)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusCreated, res)
}

// parsePurchase reads a JSON body, falling back to query or form parameters.
func parsePurchase(r *http.Request) (purchaseRequest, error) {
	var req purchaseRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
		if err != nil {
			return req, domain.InvalidInput("could not read request body")
		}
		if len(strings.TrimSpace(string(body))) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				return req, domain.InvalidInput("malformed request body: %v", err)
			}
			return req, nil
		}
	}

	if err := r.ParseForm(); err != nil {
		return req, domain.InvalidInput("malformed parameters: %v", err)
	}
	req.Symbol = r.Form.Get("symbol")
	if raw := r.Form.Get("quantity"); raw != "" {
		qty, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return req, domain.InvalidInput("quantity must be a whole number, got %q", raw)
		}
		req.Quantity = qty
	}
	return req, nil
}

// statusFor maps ledger errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPriceUnavailable):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Helper methods

func (h *Handler) writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, body); err != nil {
		h.log.Error().Err(err).Msg("Failed to write text response")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	// Storage details stay in the log
	if errors.Is(err, domain.ErrStorageUnavailable) {
		h.log.Error().Err(err).Msg("Ledger storage failure")
		msg = domain.ErrStorageUnavailable.Error()
	} else if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Unexpected ledger failure")
		msg = "internal error"
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
