package valuation

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
	"github.com/jakub-mrow/AMS-backend/internal/modules/positions"
	internaltesting "github.com/jakub-mrow/AMS-backend/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testToday = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// fakeGateway stands in for the market data client on every interface the
// module graph needs: FX rates, asset search, and quotes.
type fakeGateway struct {
	rates map[string]float64
}

func (g *fakeGateway) CurrentFxRate(pair string) (*float64, error) {
	rate, ok := g.rates[pair]
	if !ok {
		return nil, nil
	}
	return &rate, nil
}

func (g *fakeGateway) CurrentFxRates(pairs []string) (map[string]float64, error) {
	found := make(map[string]float64)
	for _, pair := range pairs {
		if rate, ok := g.rates[pair]; ok {
			found[pair] = rate
		}
	}
	return found, nil
}

func (g *fakeGateway) SearchAsset(query string) ([]eodhd.SearchResult, error) {
	return nil, nil
}

func (g *fakeGateway) CurrentPrice(ticker, exchange string) (*eodhd.Quote, error) {
	return nil, nil
}

func (g *fakeGateway) HistoricalPrices(ticker, exchange string, from, to time.Time) ([]eodhd.PriceBar, error) {
	return nil, nil
}

type testEnv struct {
	svc           *Service
	cash          *ledger.Service
	accountSvc    *accounts.Service
	accountRepo   *accounts.Repository
	positionRepo  *positions.BalanceRepository
	historyRepo   *history.AccountRepository
	bus           *events.Bus
	gateway       *fakeGateway
	accountID     int64
	appleAssetID  int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ledgerDB := internaltesting.NewMemoryDB(t, "ledger")
	portfolioDB := internaltesting.NewMemoryDB(t, "portfolio")
	historyDB := internaltesting.NewMemoryDB(t, "history")

	log := zerolog.Nop()
	bus := events.NewBus(log)
	gateway := &fakeGateway{rates: map[string]float64{}}

	accountRepo := accounts.NewRepository(portfolioDB, log)
	accountSvc := accounts.NewService(accountRepo, bus, "PLN", log)
	historyRepo := history.NewAccountRepository(historyDB, log)

	cash := ledger.NewService(
		ledger.NewTransactionRepository(ledgerDB, log),
		ledger.NewBalanceRepository(portfolioDB, log),
		accountRepo,
		historyRepo,
		bus,
		log,
	)

	exchangeRepo := assets.NewExchangeRepository(portfolioDB, log)
	assetRepo := assets.NewAssetRepository(portfolioDB, log)
	assetSvc := assets.NewService(assetRepo, exchangeRepo, gateway, log)

	positionRepo := positions.NewBalanceRepository(portfolioDB, log)
	positionSvc := positions.NewService(
		positions.NewTransactionRepository(ledgerDB, log),
		positionRepo,
		assetSvc,
		cash,
		history.NewAssetRepository(historyDB, log),
		gateway,
		bus,
		log,
	)

	svc := NewService(accountSvc, cash, positionSvc, assetSvc, historyRepo, gateway, log)
	svc.now = func() time.Time { return testToday }

	account, err := accountSvc.Create(1, "Valuation test")
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
		svc:          svc,
		cash:         cash,
		accountSvc:   accountSvc,
		accountRepo:  accountRepo,
		positionRepo: positionRepo,
		historyRepo:  historyRepo,
		bus:          bus,
		gateway:      gateway,
		accountID:    account.ID,
		appleAssetID: asset.ID,
	}
}

func (e *testEnv) deposit(t *testing.T, day, currency, amount string) {
	t.Helper()
	date, err := domain.ParseDay(day)
	require.NoError(t, err)
	_, err = e.cash.AddTransaction(&domain.AccountTransaction{
		AccountID: e.accountID,
		Type:      domain.TxDeposit,
		Amount:    decimal.RequireFromString(amount),
		Currency:  currency,
		Date:      date.Add(10 * time.Hour),
	})
	require.NoError(t, err)
}

func (e *testEnv) holdApple(t *testing.T, quantity, price string) {
	t.Helper()
	err := e.positionRepo.Upsert(&domain.AssetBalance{
		AccountID: e.accountID,
		AssetID:   e.appleAssetID,
		Quantity:  decimal.RequireFromString(quantity),
		Price:     decimal.RequireFromString(price),
	})
	require.NoError(t, err)
}

func TestAccountValueSumsCashAndPositions(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.rates["USDPLN"] = 4.0

	env.deposit(t, "2024-03-01", "PLN", "1000")
	env.deposit(t, "2024-03-01", "USD", "100")
	env.holdApple(t, "2", "25") // 50 USD at market

	value, err := env.svc.AccountValue(env.accountID)
	require.NoError(t, err)

	// 1000 PLN + 100 USD * 4 + 50 USD * 4
	assert.True(t, value.Equal(decimal.RequireFromString("1600")), "got %s", value)
}

func TestAccountValueSkipsCurrencyWithoutRate(t *testing.T) {
	env := newTestEnv(t)

	env.deposit(t, "2024-03-01", "PLN", "1000")
	env.deposit(t, "2024-03-01", "GBP", "100")

	// No GBPPLN rate: the GBP balance is excluded, not an error.
	value, err := env.svc.AccountValue(env.accountID)
	require.NoError(t, err)
	assert.True(t, value.Equal(decimal.RequireFromString("1000")), "got %s", value)
}

func TestXIRRFlatYearIsZero(t *testing.T) {
	env := newTestEnv(t)

	// 1000 deposited a year ago, worth exactly 1000 today.
	env.deposit(t, "2023-03-10", "PLN", "1000")

	rate, err := env.svc.RecomputeXIRR(env.accountID)
	require.NoError(t, err)
	require.NotNil(t, rate)
	assert.True(t, rate.Abs().LessThan(decimal.RequireFromString("0.0001")), "got %s", rate)

	account, err := env.accountRepo.GetByID(env.accountID)
	require.NoError(t, err)
	require.NotNil(t, account.XIRR)
	assert.True(t, account.XIRR.Equal(*rate))
}

func TestXIRRConvertsForeignFlows(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.rates["USDPLN"] = 4.0

	env.deposit(t, "2023-03-10", "USD", "100")

	// Flow -400 PLN a year ago against 400 PLN today: flat.
	rate, err := env.svc.RecomputeXIRR(env.accountID)
	require.NoError(t, err)
	require.NotNil(t, rate)
	assert.True(t, rate.Abs().LessThan(decimal.RequireFromString("0.0001")), "got %s", rate)
}

func TestXIRRDegenerateStoresNull(t *testing.T) {
	env := newTestEnv(t)

	rate, err := env.svc.RecomputeXIRR(env.accountID)
	assert.ErrorIs(t, err, domain.ErrReturnDegenerate)
	assert.Nil(t, rate)

	account, err := env.accountRepo.GetByID(env.accountID)
	require.NoError(t, err)
	assert.Nil(t, account.XIRR)
}

func TestHistoryStats(t *testing.T) {
	env := newTestEnv(t)

	days := make([]domain.AccountHistory, 0, 3)
	for i, amount := range []string{"1000", "1100", "1210"} {
		day, err := domain.ParseDay("2024-03-0" + string(rune('1'+i)))
		require.NoError(t, err)
		days = append(days, domain.AccountHistory{
			AccountID: env.accountID,
			Date:      day,
			Balances: []domain.AccountHistoryBalance{
				{Currency: "PLN", Amount: decimal.RequireFromString(amount)},
			},
		})
	}
	require.NoError(t, env.historyRepo.AppendDays(env.accountID, days))

	stats, err := env.svc.HistoryStats(env.accountID)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.InDelta(t, 0.10, stats.MeanDailyReturn, 1e-9)
	assert.InDelta(t, 0.21, stats.TotalReturn, 1e-9)
}

func TestWorkerRecomputesOnDirtyAccount(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, "2023-03-10", "PLN", "1000")

	worker := NewWorker(env.svc, env.bus, zerolog.Nop())
	worker.Start()

	env.bus.Publish(&events.AccountDirtyData{AccountID: env.accountID, Reason: "test"})

	require.Eventually(t, func() bool {
		account, err := env.accountRepo.GetByID(env.accountID)
		return err == nil && account.XIRR != nil
	}, 2*time.Second, 10*time.Millisecond)
}
