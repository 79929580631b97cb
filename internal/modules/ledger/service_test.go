package ledger

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stocktrader/internal/domain"
	"github.com/aristath/stocktrader/internal/metrics"
	testingpkg "github.com/aristath/stocktrader/internal/testing"
)

func newTestService(store PositionStore, oracle domain.PriceOracle) *Service {
	return NewService(store, oracle, ReportConfig{Concurrency: 4, LookupTimeout: time.Second}, metrics.NewRegistry(), zerolog.Nop())
}

func TestRecordPurchase_CreatesPosition(t *testing.T) {
	store := testingpkg.NewMockPositionStore()
	oracle := testingpkg.NewMockPriceOracle()
	oracle.SetQuote("AAPL", 150.0, "USD")

	svc := newTestService(store, oracle)

	res, err := svc.RecordPurchase(context.Background(), "alice", "AAPL", 10)
	require.NoError(t, err)

	assert.Equal(t, "alice", res.UserID)
	assert.Equal(t, "AAPL", res.Symbol)
	assert.Equal(t, int64(10), res.Quantity)
	assert.Equal(t, 150.0, res.Price)
	assert.Equal(t, "USD", res.Currency)
	assert.Equal(t, domain.Position{UserID: "alice", Symbol: "AAPL", Quantity: 10, AvgPrice: 150}, res.Position)
}

func TestRecordPurchase_WeightedAverageScenario(t *testing.T) {
	store := testingpkg.NewMockPositionStore()
	oracle := testingpkg.NewMockPriceOracle()
	svc := newTestService(store, oracle)
	ctx := context.Background()

	oracle.SetQuote("XYZ", 100, "USD")
	_, err := svc.RecordPurchase(ctx, domain.DefaultUserID, "XYZ", 10)
	require.NoError(t, err)

	oracle.SetQuote("XYZ", 130, "USD")
	res, err := svc.RecordPurchase(ctx, domain.DefaultUserID, "XYZ", 5)
	require.NoError(t, err)

	assert.Equal(t, int64(15), res.Position.Quantity)
	assert.InDelta(t, 110.0, res.Position.AvgPrice, 1e-9)
}

func TestRecordPurchase_UserIsolation(t *testing.T) {
	store := testingpkg.NewMockPositionStore()
	oracle := testingpkg.NewMockPriceOracle()
	svc := newTestService(store, oracle)
	ctx := context.Background()

	oracle.SetQuote("AAPL", 100, "USD")
	_, err := svc.RecordPurchase(ctx, "alice", "AAPL", 10)
	require.NoError(t, err)

	oracle.SetQuote("AAPL", 200, "USD")
	_, err = svc.RecordPurchase(ctx, "bob", "AAPL", 1)
	require.NoError(t, err)

	alice, err := store.Get(ctx, "alice", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(10), alice.Quantity)
	assert.Equal(t, 100.0, alice.AvgPrice)

	bob, err := store.Get(ctx, "bob", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(1), bob.Quantity)
	assert.Equal(t, 200.0, bob.AvgPrice)
}

func TestRecordPurchase_PriceUnavailableLeavesLedgerUntouched(t *testing.T) {
	store := testingpkg.NewMockPositionStore()
	store.SetPosition(domain.Position{UserID: "alice", Symbol: "AAPL", Quantity: 4, AvgPrice: 90})
	oracle := testingpkg.NewMockPriceOracle()
	oracle.SetError("AAPL", errors.New("connection reset"))

	svc := newTestService(store, oracle)

	_, err := svc.RecordPurchase(context.Background(), "alice", "AAPL", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPriceUnavailable))
	assert.Contains(t, err.Error(), "AAPL")

	assert.Equal(t, 0, store.Applies())
	pos, err := store.Get(context.Background(), "alice", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(4), pos.Quantity)
	assert.Equal(t, 90.0, pos.AvgPrice)
}

func TestRecordPurchase_UnknownSymbolCreatesNothing(t *testing.T) {
	store := testingpkg.NewMockPositionStore()
	svc := newTestService(store, testingpkg.NewMockPriceOracle())

	_, err := svc.RecordPurchase(context.Background(), "alice", "NOPE", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPriceUnavailable))

	positions, err := store.List(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestRecordPurchase_RejectsInvalidInputBeforeOracle(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		symbol string
		qty    int64
	}{
		{"zero quantity", "alice", "AAPL", 0},
		{"negative quantity", "alice", "AAPL", -5},
		{"blank symbol", "alice", "  ", 1},
		{"blank user", "", "AAPL", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testingpkg.NewMockPositionStore()
			oracle := testingpkg.NewMockPriceOracle()
			oracle.SetQuote("AAPL", 1, "USD")
			svc := newTestService(store, oracle)

			_, err := svc.RecordPurchase(context.Background(), tt.userID, tt.symbol, tt.qty)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidInput))
			assert.Equal(t, 0, oracle.Calls(tt.symbol))
			assert.Equal(t, 0, store.Applies())
		})
	}
}

func TestRecordPurchase_RejectsUnusablePrice(t *testing.T) {
	for _, price := range []float64{-1, math.NaN(), math.Inf(1)} {
		store := testingpkg.NewMockPositionStore()
		oracle := testingpkg.NewMockPriceOracle()
		oracle.SetQuote("AAPL", price, "USD")
		svc := newTestService(store, oracle)

		_, err := svc.RecordPurchase(context.Background(), "alice", "AAPL", 1)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		assert.Equal(t, 0, store.Applies())
	}
}

func TestRecordPurchase_StorageFailure(t *testing.T) {
	store := testingpkg.NewMockPositionStore()
	store.SetError(domain.StorageError("apply alice/AAPL", errors.New("disk I/O error")))
	oracle := testingpkg.NewMockPriceOracle()
	oracle.SetQuote("AAPL", 1, "USD")

	m := metrics.NewRegistry()
	svc := NewService(store, oracle, ReportConfig{}, m, zerolog.Nop())

	_, err := svc.RecordPurchase(context.Background(), "alice", "AAPL", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStorageUnavailable))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Purchases.WithLabelValues("storage_error")))
}

func TestRecordPurchase_ConcurrentSameKeyAgainstSQLite(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	defer cleanup()

	repo := NewPositionRepository(db.Conn(), zerolog.Nop())
	oracle := testingpkg.NewMockPriceOracle()
	oracle.SetQuote("AAPL", 100, "USD")
	svc := newTestService(repo, oracle)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordPurchase(context.Background(), "alice", "AAPL", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	pos, err := repo.Get(context.Background(), "alice", "AAPL")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, int64(16), pos.Quantity)
}

func TestPortfolioReport_Empty(t *testing.T) {
	svc := newTestService(testingpkg.NewMockPositionStore(), testingpkg.NewMockPriceOracle())

	report, err := svc.PortfolioReport(context.Background(), "fresh-user")
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.True(t, report.Empty)
	assert.Empty(t, report.Lines)
	assert.Equal(t, "Your portfolio is empty.", FormatReport(report))
}

func TestPortfolioReport_AllAvailable(t *testing.T) {
	store := testingpkg.NewMockPositionStore()
	for _, pos := range testingpkg.NewPositionFixtures() {
		store.SetPosition(pos)
	}
	oracle := testingpkg.NewMockPriceOracle()
	for sym, q := range testingpkg.NewQuoteFixtures() {
		oracle.SetQuote(sym, q.Price, q.Currency)
	}
	svc := newTestService(store, oracle)

	report, err := svc.PortfolioReport(context.Background(), "alice")
	require.NoError(t, err)
	require.False(t, report.Empty)
	require.Len(t, report.Lines, 3)

	// AAPL 10*(160-150)=100, MSFT 5*(280-300)=-100, RELIANCE 20*(2500-2450.5)=990
	assert.Equal(t, "AAPL", report.Lines[0].Symbol)
	assert.InDelta(t, 100.0, report.Lines[0].PnL, 1e-9)
	assert.InDelta(t, -100.0, report.Lines[1].PnL, 1e-9)
	assert.InDelta(t, 990.0, report.Lines[2].PnL, 1e-9)
	assert.InDelta(t, 990.0, report.TotalPnL, 1e-9)
	assert.Equal(t, 0, report.Unavailable)
}

func TestPortfolioReport_PartialFailure(t *testing.T) {
	store := testingpkg.NewMockPositionStore()
	store.SetPosition(domain.Position{UserID: "alice", Symbol: "AAA", Quantity: 2, AvgPrice: 10})
	store.SetPosition(domain.Position{UserID: "alice", Symbol: "BBB", Quantity: 1, AvgPrice: 50})
	store.SetPosition(domain.Position{UserID: "alice", Symbol: "CCC", Quantity: 3, AvgPrice: 20})

	oracle := testingpkg.NewMockPriceOracle()
	oracle.SetQuote("AAA", 15, "USD")
	oracle.SetError("BBB", errors.New("timeout"))
	oracle.SetQuote("CCC", 18, "USD")

	m := metrics.NewRegistry()
	svc := NewService(store, oracle, ReportConfig{Concurrency: 2}, m, zerolog.Nop())

	report, err := svc.PortfolioReport(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, report.Lines, 3)

	assert.True(t, report.Lines[0].Available)
	assert.False(t, report.Lines[1].Available)
	assert.Contains(t, report.Lines[1].Error, "BBB")
	assert.True(t, report.Lines[2].Available)

	// 2*(15-10) + 3*(18-20) = 4
	assert.InDelta(t, 4.0, report.TotalPnL, 1e-9)
	assert.Equal(t, 1, report.Unavailable)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnavailablePrices))

	text := FormatReport(report)
	assert.Contains(t, text, "- **AAA**: 2 shares @ 10.00 (Curr: 15.00) | P/L: +10.00")
	assert.Contains(t, text, "- **BBB**: (Could not fetch live price)")
	assert.Contains(t, text, "- **CCC**: 3 shares @ 20.00 (Curr: 18.00) | P/L: -6.00")
	assert.Contains(t, text, "💰 **Total Profit/Loss:** +4.00")
}

func TestPortfolioReport_SlowLookupDoesNotStallOthers(t *testing.T) {
	store := testingpkg.NewMockPositionStore()
	store.SetPosition(domain.Position{UserID: "alice", Symbol: "FAST", Quantity: 1, AvgPrice: 1})
	store.SetPosition(domain.Position{UserID: "alice", Symbol: "SLOW", Quantity: 1, AvgPrice: 1})

	oracle := testingpkg.NewMockPriceOracle()
	oracle.SetQuote("FAST", 2, "USD")
	oracle.SetQuote("SLOW", 2, "USD")
	oracle.SetDelay("SLOW", time.Minute)

	svc := NewService(store, oracle, ReportConfig{Concurrency: 2, LookupTimeout: 50 * time.Millisecond}, nil, zerolog.Nop())

	start := time.Now()
	report, err := svc.PortfolioReport(context.Background(), "alice")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	require.Len(t, report.Lines, 2)
	assert.True(t, report.Lines[0].Available)
	assert.False(t, report.Lines[1].Available)
	assert.InDelta(t, 1.0, report.TotalPnL, 1e-9)
}

func TestPortfolioReport_StorageFailure(t *testing.T) {
	store := testingpkg.NewMockPositionStore()
	store.SetError(domain.StorageError("list alice", errors.New("database is locked")))
	svc := newTestService(store, testingpkg.NewMockPriceOracle())

	_, err := svc.PortfolioReport(context.Background(), "alice")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStorageUnavailable))
}

func TestPortfolioReport_RereadsStoreEachCall(t *testing.T) {
	store := testingpkg.NewMockPositionStore()
	oracle := testingpkg.NewMockPriceOracle()
	oracle.SetQuote("AAPL", 10, "USD")
	svc := newTestService(store, oracle)
	ctx := context.Background()

	report, err := svc.PortfolioReport(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, report.Empty)

	store.SetPosition(domain.Position{UserID: "alice", Symbol: "AAPL", Quantity: 1, AvgPrice: 5})

	report, err = svc.PortfolioReport(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, report.Empty)
	assert.Len(t, report.Lines, 1)
}

func TestGetQuote(t *testing.T) {
	oracle := testingpkg.NewMockPriceOracle()
	oracle.SetQuote("AAPL", 189.84, "USD")
	svc := newTestService(testingpkg.NewMockPositionStore(), oracle)

	q, err := svc.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "The current price of AAPL is 189.84 USD.", FormatQuote(q))

	_, err = svc.GetQuote(context.Background(), "")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	oracle.SetError("BAD", errors.New("no data"))
	_, err = svc.GetQuote(context.Background(), "BAD")
	assert.True(t, errors.Is(err, domain.ErrPriceUnavailable))
}
