package positions

import (
	"testing"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/clients/eodhd"
	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/jakub-mrow/AMS-backend/internal/events"
	"github.com/jakub-mrow/AMS-backend/internal/modules/accounts"
	"github.com/jakub-mrow/AMS-backend/internal/modules/assets"
	"github.com/jakub-mrow/AMS-backend/internal/modules/history"
	"github.com/jakub-mrow/AMS-backend/internal/modules/ledger"
	internaltesting "github.com/jakub-mrow/AMS-backend/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fixed clock: "today" is 2024-03-10.
var testToday = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeGateway struct {
	searchResults []eodhd.SearchResult
	quotes        map[string]float64
}

func (g *fakeGateway) SearchAsset(query string) ([]eodhd.SearchResult, error) {
	return g.searchResults, nil
}

func (g *fakeGateway) CurrentPrice(ticker, exchange string) (*eodhd.Quote, error) {
	price, ok := g.quotes[ticker+"."+exchange]
	if !ok {
		return nil, nil
	}
	return &eodhd.Quote{Code: ticker + "." + exchange, Close: price}, nil
}

func (g *fakeGateway) HistoricalPrices(ticker, exchange string, from, to time.Time) ([]eodhd.PriceBar, error) {
	return nil, nil
}

type testEnv struct {
	svc       *Service
	cash      *ledger.Service
	accountID int64
	assetID   int64
	gateway   *fakeGateway
	assetSvc  *assets.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ledgerDB := internaltesting.NewMemoryDB(t, "ledger")
	portfolioDB := internaltesting.NewMemoryDB(t, "portfolio")
	historyDB := internaltesting.NewMemoryDB(t, "history")

	log := zerolog.Nop()
	bus := events.NewBus(log)
	gateway := &fakeGateway{quotes: map[string]float64{}}

	accountRepo := accounts.NewRepository(portfolioDB, log)
	cash := ledger.NewService(
		ledger.NewTransactionRepository(ledgerDB, log),
		ledger.NewBalanceRepository(portfolioDB, log),
		accountRepo,
		history.NewAccountRepository(historyDB, log),
		bus,
		log,
	)

	exchangeRepo := assets.NewExchangeRepository(portfolioDB, log)
	assetRepo := assets.NewAssetRepository(portfolioDB, log)
	assetSvc := assets.NewService(assetRepo, exchangeRepo, gateway, log)

	svc := NewService(
		NewTransactionRepository(ledgerDB, log),
		NewBalanceRepository(portfolioDB, log),
		assetSvc,
		cash,
		history.NewAssetRepository(historyDB, log),
		gateway,
		bus,
		log,
	)
	svc.now = func() time.Time { return testToday }

	account, err := accountRepo.Create(1, "Test account")
	require.NoError(t, err)

	exchange := &domain.Exchange{
		Name: "NASDAQ", MIC: "XNAS", Country: "USA", Code: "US",
		Timezone: "America/New_York", OpeningHour: "09:30", ClosingHour: "16:00",
	}
	require.NoError(t, exchangeRepo.Create(exchange))

	asset := &domain.Asset{
		ISIN: "US0378331005", Ticker: "AAPL", Name: "Apple Inc",
		Currency: "USD", Type: domain.AssetStock, ExchangeID: exchange.ID,
	}
	require.NoError(t, assetRepo.Create(asset))

	return &testEnv{
		svc:       svc,
		cash:      cash,
		accountID: account.ID,
		assetID:   asset.ID,
		gateway:   gateway,
		assetSvc:  assetSvc,
	}
}

func (e *testEnv) trade(t *testing.T, txType domain.AssetTransactionType, day, quantity, price string) *domain.AssetTransaction {
	t.Helper()
	date, err := domain.ParseDay(day)
	require.NoError(t, err)
	tx, err := e.svc.AddTransaction(&domain.AssetTransaction{
		AccountID: e.accountID,
		AssetID:   e.assetID,
		Type:      txType,
		Quantity:  decimal.RequireFromString(quantity),
		Price:     decimal.RequireFromString(price),
		Date:      date.Add(15 * time.Hour),
	})
	require.NoError(t, err)
	return tx
}

func (e *testEnv) position(t *testing.T) *domain.AssetBalance {
	t.Helper()
	balances, err := e.svc.Balances(e.accountID)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	return &balances[0]
}

func (e *testEnv) cashBalance(t *testing.T, currency string) decimal.Decimal {
	t.Helper()
	balances, err := e.cash.Balances(e.accountID)
	require.NoError(t, err)
	for _, b := range balances {
		if b.Currency == currency {
			return b.Amount
		}
	}
	return decimal.Zero
}

func TestFifoAveragePriceAfterPartialSell(t *testing.T) {
	env := newTestEnv(t)

	env.trade(t, domain.AssetTxBuy, "2024-03-01", "10", "20")
	env.trade(t, domain.AssetTxSell, "2024-03-03", "4", "25")

	pos := env.position(t)
	assert.True(t, pos.Quantity.Equal(decimal.RequireFromString("6")))
	// First 4 of the original 10-lot consumed; remainder still costs 20
	assert.True(t, pos.AveragePrice.Equal(decimal.RequireFromString("20")))
	assert.True(t, pos.Price.Equal(decimal.RequireFromString("25")))
	assert.True(t, pos.Result.Equal(decimal.RequireFromString("25")))
}

func TestFifoConsumesOldestLotsFirst(t *testing.T) {
	env := newTestEnv(t)

	env.trade(t, domain.AssetTxBuy, "2024-03-01", "10", "10")
	env.trade(t, domain.AssetTxBuy, "2024-03-02", "10", "30")
	env.trade(t, domain.AssetTxSell, "2024-03-04", "10", "35")

	pos := env.position(t)
	assert.True(t, pos.Quantity.Equal(decimal.RequireFromString("10")))
	// The whole 10@10 lot is gone; only the 10@30 lot remains
	assert.True(t, pos.AveragePrice.Equal(decimal.RequireFromString("30")))
}

func TestOversellFailsAndLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t)

	env.trade(t, domain.AssetTxBuy, "2024-03-01", "10", "20")
	cashBefore := env.cashBalance(t, "USD")

	date := mustDay(t, "2024-03-05").Add(15 * time.Hour)
	_, err := env.svc.AddTransaction(&domain.AssetTransaction{
		AccountID: env.accountID,
		AssetID:   env.assetID,
		Type:      domain.AssetTxSell,
		Quantity:  decimal.RequireFromString("11"),
		Price:     decimal.RequireFromString("25"),
		Date:      date,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientPosition)

	pos := env.position(t)
	assert.True(t, pos.Quantity.Equal(decimal.RequireFromString("10")))
	assert.True(t, env.cashBalance(t, "USD").Equal(cashBefore))

	txs, err := env.svc.ListTransactions(env.accountID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestTradesWriteCorrelatedCashLegs(t *testing.T) {
	env := newTestEnv(t)

	env.trade(t, domain.AssetTxBuy, "2024-03-01", "10", "20")
	env.trade(t, domain.AssetTxSell, "2024-03-03", "4", "25")

	// buy debits 200, sell credits 100
	assert.True(t, env.cashBalance(t, "USD").Equal(decimal.RequireFromString("-100")))

	cashTxs, err := env.cash.ListTransactions(env.accountID)
	require.NoError(t, err)
	require.Len(t, cashTxs, 2)
	for _, tx := range cashTxs {
		assert.NotNil(t, tx.CorrelationID)
	}
}

func TestDividendWritesCashOnly(t *testing.T) {
	env := newTestEnv(t)

	env.trade(t, domain.AssetTxBuy, "2024-03-01", "10", "20")
	env.trade(t, domain.AssetTxDividend, "2024-03-05", "10", "0.5")

	pos := env.position(t)
	assert.True(t, pos.Quantity.Equal(decimal.RequireFromString("10")))
	// -200 buy + 5 dividend
	assert.True(t, env.cashBalance(t, "USD").Equal(decimal.RequireFromString("-195")))
}

func TestDeleteTradeRemovesCashLegAndRebuilds(t *testing.T) {
	env := newTestEnv(t)

	env.trade(t, domain.AssetTxBuy, "2024-03-01", "10", "20")
	sell := env.trade(t, domain.AssetTxSell, "2024-03-03", "4", "25")

	require.NoError(t, env.svc.DeleteTransaction(sell.ID))

	pos := env.position(t)
	assert.True(t, pos.Quantity.Equal(decimal.RequireFromString("10")))
	assert.True(t, env.cashBalance(t, "USD").Equal(decimal.RequireFromString("-200")))

	cashTxs, err := env.cash.ListTransactions(env.accountID)
	require.NoError(t, err)
	assert.Len(t, cashTxs, 1)
}

func TestPriceMarkUpdatesMarkNotQuantity(t *testing.T) {
	env := newTestEnv(t)

	env.trade(t, domain.AssetTxBuy, "2024-03-01", "10", "20")

	date := mustDay(t, "2024-03-06").Add(21 * time.Hour)
	_, err := env.svc.AddTransaction(&domain.AssetTransaction{
		AccountID: env.accountID,
		AssetID:   env.assetID,
		Type:      domain.AssetTxPrice,
		Quantity:  decimal.Zero,
		Price:     decimal.RequireFromString("22"),
		Date:      date,
	})
	require.NoError(t, err)

	pos := env.position(t)
	assert.True(t, pos.Quantity.Equal(decimal.RequireFromString("10")))
	assert.True(t, pos.Price.Equal(decimal.RequireFromString("22")))
	assert.True(t, pos.Result.Equal(decimal.RequireFromString("10")))

	// Price marks are bookkeeping rows, not user activity
	txs, err := env.svc.ListTransactions(env.accountID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestBackdatedBuyRebuildsPosition(t *testing.T) {
	env := newTestEnv(t)

	env.trade(t, domain.AssetTxBuy, "2024-03-05", "10", "20")
	// Backdated buy before already-snapshotted days
	env.trade(t, domain.AssetTxBuy, "2024-03-02", "5", "10")

	pos := env.position(t)
	assert.True(t, pos.Quantity.Equal(decimal.RequireFromString("15")))
	// (5*10 + 10*20) / 15
	assert.True(t, pos.AveragePrice.Round(4).Equal(decimal.RequireFromString("16.6667")))
}

func TestPositionSafetyFlagsStaleStates(t *testing.T) {
	tx := &domain.AssetTransaction{Date: testToday}

	assert.ErrorIs(t, positionSafety(nil, tx), domain.ErrStaleBalance)

	balance := &domain.AssetBalance{}
	require.NoError(t, positionSafety(balance, tx))

	day := domain.DayOf(testToday)
	balance.LastSaveDate = &day
	assert.ErrorIs(t, positionSafety(balance, tx), domain.ErrStaleBalance)
}

// The nightly snapshot job calls RebuildPosition directly, so it must queue
// behind a trade in flight for the same account.
func TestRebuildPositionWaitsForAccountLock(t *testing.T) {
	env := newTestEnv(t)
	env.trade(t, domain.AssetTxBuy, "2024-03-05", "4", "100")

	unlock := env.svc.locks.Lock(env.accountID)

	day, err := domain.ParseDay("2024-03-05")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() {
		done <- env.svc.RebuildPosition(env.accountID, env.assetID, day)
	}()

	select {
	case <-done:
		t.Fatal("rebuild ran while another writer held the account lock")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("rebuild did not proceed after the lock was released")
	}
	assert.True(t, env.position(t).Quantity.Equal(decimal.RequireFromString("4")))
}

func TestExecuteTradeResolvesUnknownTickerViaSearch(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.searchResults = []eodhd.SearchResult{
		{Code: "MSFT", Exchange: "US", Name: "Microsoft", ISIN: "US5949181045", Currency: "USD", Type: "Common Stock"},
	}

	tx, err := env.svc.ExecuteTrade(&Trade{
		AccountID: env.accountID,
		Ticker:    "MSFT",
		Exchange:  "US",
		Type:      domain.AssetTxBuy,
		Quantity:  decimal.RequireFromString("2"),
		Price:     decimal.RequireFromString("100"),
		Date:      mustDay(t, "2024-03-04").Add(15 * time.Hour),
	})
	require.NoError(t, err)
	assert.NotZero(t, tx.AssetID)

	created, err := env.assetSvc.Get(tx.AssetID)
	require.NoError(t, err)
	assert.Equal(t, "US5949181045", created.ISIN)
	assert.Equal(t, domain.AssetStock, created.Type)
}

func TestExecuteTradeUnknownTicker(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.searchResults = nil

	_, err := env.svc.ExecuteTrade(&Trade{
		AccountID: env.accountID,
		Ticker:    "NOPE",
		Exchange:  "US",
		Type:      domain.AssetTxBuy,
		Quantity:  decimal.RequireFromString("1"),
		Price:     decimal.RequireFromString("1"),
		Date:      testToday,
	})
	assert.ErrorIs(t, err, domain.ErrUnknownAsset)
}

func mustDay(t *testing.T, day string) time.Time {
	t.Helper()
	parsed, err := domain.ParseDay(day)
	require.NoError(t, err)
	return parsed
}
