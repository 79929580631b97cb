package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/stocktrader/internal/domain"
)

// Text renderings used by the tool endpoints and ledgerctl.

// FormatQuote renders a successful price lookup.
func FormatQuote(q domain.Quote) string {
	return fmt.Sprintf("The current price of %s is %.2f %s.", q.Symbol, q.Price, q.Currency)
}

// FormatQuoteError renders a failed price lookup.
func FormatQuoteError(symbol string, err error) string {
	return fmt.Sprintf("Error fetching price for %s: %s", symbol, rootCause(err))
}

// FormatPurchase renders a recorded purchase.
func FormatPurchase(res PurchaseResult) string {
	return fmt.Sprintf("Bought %d shares of %s at %.2f. Added to portfolio of %s.",
		res.Quantity, res.Symbol, res.Price, res.UserID)
}

// FormatPurchaseError renders why a purchase was not recorded.
func FormatPurchaseError(symbol string, err error) string {
	switch {
	case errors.Is(err, domain.ErrPriceUnavailable):
		return fmt.Sprintf("Could not find stock %s to buy.", symbol)
	case errors.Is(err, domain.ErrInvalidInput):
		return fmt.Sprintf("Could not buy %s: %s", symbol, err)
	case errors.Is(err, domain.ErrStorageUnavailable):
		return fmt.Sprintf("Could not record purchase of %s: the ledger is unavailable.", symbol)
	default:
		return fmt.Sprintf("Could not buy %s.", symbol)
	}
}

// FormatReportError renders why a report could not be built.
func FormatReportError(err error) string {
	if errors.Is(err, domain.ErrStorageUnavailable) {
		return "Could not load your portfolio: the ledger is unavailable."
	}
	if errors.Is(err, domain.ErrInvalidInput) {
		return fmt.Sprintf("Could not load your portfolio: %s", err)
	}
	return "Could not load your portfolio."
}

// FormatReport renders a portfolio report.
func FormatReport(r *Report) string {
	if r == nil || r.Empty {
		return "Your portfolio is empty."
	}

	var b strings.Builder
	b.WriteString("📊 **Portfolio Report**\n")
	for _, line := range r.Lines {
		if !line.Available {
			fmt.Fprintf(&b, "- **%s**: (Could not fetch live price)\n", line.Symbol)
			continue
		}
		fmt.Fprintf(&b, "- **%s**: %d shares @ %.2f (Curr: %.2f) | P/L: %+.2f\n",
			line.Symbol, line.Quantity, line.AvgPrice, line.CurrentPrice, line.PnL)
	}
	fmt.Fprintf(&b, "\n💰 **Total Profit/Loss:** %+.2f", r.TotalPnL)
	return b.String()
}

// rootCause strips the wrapping added on the way up so users see the upstream reason.
func rootCause(err error) string {
	var pue *domain.PriceUnavailableError
	if errors.As(err, &pue) && pue.Cause != nil {
		return pue.Cause.Error()
	}
	return err.Error()
}
