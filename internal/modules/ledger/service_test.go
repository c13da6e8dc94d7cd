package ledger

import (
	"testing"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/jakub-mrow/AMS-backend/internal/events"
	"github.com/jakub-mrow/AMS-backend/internal/modules/accounts"
	"github.com/jakub-mrow/AMS-backend/internal/modules/history"
	internaltesting "github.com/jakub-mrow/AMS-backend/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fixed clock: "today" is 2024-03-10, so 2024-03-09 is the last closed day.
var testToday = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	svc       *Service
	accountID int64
	accounts  *accounts.Repository
	history   *history.AccountRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ledgerDB := internaltesting.NewMemoryDB(t, "ledger")
	portfolioDB := internaltesting.NewMemoryDB(t, "portfolio")
	historyDB := internaltesting.NewMemoryDB(t, "history")

	log := zerolog.Nop()
	accountRepo := accounts.NewRepository(portfolioDB, log)
	historyRepo := history.NewAccountRepository(historyDB, log)
	svc := NewService(
		NewTransactionRepository(ledgerDB, log),
		NewBalanceRepository(portfolioDB, log),
		accountRepo,
		historyRepo,
		events.NewBus(log),
		log,
	)
	svc.now = func() time.Time { return testToday }

	account, err := accountRepo.Create(1, "Test account")
	require.NoError(t, err)

	return &testEnv{
		svc:       svc,
		accountID: account.ID,
		accounts:  accountRepo,
		history:   historyRepo,
	}
}

func (e *testEnv) deposit(t *testing.T, day string, amount string, currency string) *domain.AccountTransaction {
	return e.add(t, domain.TxDeposit, day, amount, currency)
}

func (e *testEnv) add(t *testing.T, txType domain.AccountTransactionType, day, amount, currency string) *domain.AccountTransaction {
	t.Helper()
	date, err := domain.ParseDay(day)
	require.NoError(t, err)
	tx, err := e.svc.AddTransaction(&domain.AccountTransaction{
		AccountID: e.accountID,
		Type:      txType,
		Amount:    decimal.RequireFromString(amount),
		Currency:  currency,
		Date:      date.Add(10 * time.Hour),
	})
	require.NoError(t, err)
	return tx
}

func (e *testEnv) balance(t *testing.T, currency string) decimal.Decimal {
	t.Helper()
	balances, err := e.svc.Balances(e.accountID)
	require.NoError(t, err)
	for _, b := range balances {
		if b.Currency == currency {
			return b.Amount
		}
	}
	t.Fatalf("no balance for %s", currency)
	return decimal.Zero
}

func (e *testEnv) historyAmount(t *testing.T, day, currency string) decimal.Decimal {
	t.Helper()
	date, err := domain.ParseDay(day)
	require.NoError(t, err)
	snapshot, err := e.history.LatestOnOrBefore(e.accountID, date)
	require.NoError(t, err)
	require.NotNil(t, snapshot, "no snapshot on or before %s", day)
	require.Equal(t, day, domain.FormatDay(snapshot.Date))
	for _, b := range snapshot.Balances {
		if b.Currency == currency {
			return b.Amount
		}
	}
	t.Fatalf("snapshot %s has no %s balance", day, currency)
	return decimal.Zero
}

func TestDepositsAccumulateAcrossDays(t *testing.T) {
	env := newTestEnv(t)

	env.deposit(t, "2024-03-01", "100", "EUR")
	env.deposit(t, "2024-03-02", "50", "EUR")

	assert.True(t, env.balance(t, "EUR").Equal(decimal.RequireFromString("150")))
	assert.True(t, env.historyAmount(t, "2024-03-01", "EUR").Equal(decimal.RequireFromString("100")))
	assert.True(t, env.historyAmount(t, "2024-03-02", "EUR").Equal(decimal.RequireFromString("150")))
	// Balance carries forward through days with no transactions
	assert.True(t, env.historyAmount(t, "2024-03-07", "EUR").Equal(decimal.RequireFromString("150")))
}

func TestBackdatedDepositForcesRebuild(t *testing.T) {
	env := newTestEnv(t)

	env.deposit(t, "2024-03-05", "100", "EUR")
	// Dated before already-snapshotted days: must rebuild, not just add
	env.deposit(t, "2024-03-02", "30", "EUR")

	assert.True(t, env.balance(t, "EUR").Equal(decimal.RequireFromString("130")))
	assert.True(t, env.historyAmount(t, "2024-03-02", "EUR").Equal(decimal.RequireFromString("30")))
	assert.True(t, env.historyAmount(t, "2024-03-04", "EUR").Equal(decimal.RequireFromString("30")))
	assert.True(t, env.historyAmount(t, "2024-03-05", "EUR").Equal(decimal.RequireFromString("130")))

	account, err := env.accounts.GetByID(env.accountID)
	require.NoError(t, err)
	require.NotNil(t, account.LastSaveDate)
	assert.Equal(t, "2024-03-09", domain.FormatDay(*account.LastSaveDate))
}

func TestConservationPerDay(t *testing.T) {
	env := newTestEnv(t)

	env.deposit(t, "2024-03-01", "100", "EUR")
	env.add(t, domain.TxWithdrawal, "2024-03-02", "40", "EUR")
	env.deposit(t, "2024-03-03", "25", "EUR")
	env.add(t, domain.TxCost, "2024-03-05", "5", "EUR")

	// balance(t) = balance(t-1) + deposits(t) - withdrawals(t)
	expected := map[string]string{
		"2024-03-01": "100",
		"2024-03-02": "60",
		"2024-03-03": "85",
		"2024-03-04": "85",
		"2024-03-05": "80",
	}
	for day, amount := range expected {
		assert.True(t, env.historyAmount(t, day, "EUR").Equal(decimal.RequireFromString(amount)),
			"wrong balance on %s", day)
	}
	assert.True(t, env.balance(t, "EUR").Equal(decimal.RequireFromString("80")))
}

func TestRebuildIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	env.deposit(t, "2024-03-01", "100", "EUR")
	env.add(t, domain.TxWithdrawal, "2024-03-03", "30", "EUR")

	from, err := domain.ParseDay("2024-03-01")
	require.NoError(t, err)
	require.NoError(t, env.svc.Rebuild(env.accountID, from))
	first, err := env.history.ListByAccount(env.accountID, nil, nil)
	require.NoError(t, err)
	firstBalance := env.balance(t, "EUR")

	require.NoError(t, env.svc.Rebuild(env.accountID, from))
	second, err := env.history.ListByAccount(env.accountID, nil, nil)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, domain.FormatDay(first[i].Date), domain.FormatDay(second[i].Date))
		require.Equal(t, len(first[i].Balances), len(second[i].Balances))
		for j := range first[i].Balances {
			assert.Equal(t, first[i].Balances[j].Currency, second[i].Balances[j].Currency)
			assert.True(t, first[i].Balances[j].Amount.Equal(second[i].Balances[j].Amount))
		}
	}
	assert.True(t, env.balance(t, "EUR").Equal(firstBalance))
}

func TestIncrementalMatchesRebuild(t *testing.T) {
	env := newTestEnv(t)

	// First write rebuilds (new balance row); later same-day writes on the
	// live edge go through the incremental path.
	env.deposit(t, "2024-03-08", "100", "EUR")
	env.deposit(t, "2024-03-09", "50", "EUR")
	env.deposit(t, "2024-03-10", "25", "EUR")

	incremental := env.balance(t, "EUR")

	from, err := domain.ParseDay("2024-03-08")
	require.NoError(t, err)
	require.NoError(t, env.svc.Rebuild(env.accountID, from))

	assert.True(t, env.balance(t, "EUR").Equal(incremental))
	assert.True(t, incremental.Equal(decimal.RequireFromString("175")))
}

func TestTodayIsNotSnapshotted(t *testing.T) {
	env := newTestEnv(t)

	env.deposit(t, "2024-03-09", "100", "EUR")
	env.deposit(t, "2024-03-10", "40", "EUR") // today

	// Live balance includes today, history stops at yesterday
	assert.True(t, env.balance(t, "EUR").Equal(decimal.RequireFromString("140")))

	histories, err := env.history.ListByAccount(env.accountID, nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, histories)
	last := histories[len(histories)-1]
	assert.Equal(t, "2024-03-09", domain.FormatDay(last.Date))
}

func TestMultiCurrencyBalancesStaySeparate(t *testing.T) {
	env := newTestEnv(t)

	env.deposit(t, "2024-03-01", "100", "EUR")
	env.deposit(t, "2024-03-02", "200", "USD")

	assert.True(t, env.balance(t, "EUR").Equal(decimal.RequireFromString("100")))
	assert.True(t, env.balance(t, "USD").Equal(decimal.RequireFromString("200")))

	// A later snapshot carries both currencies
	assert.True(t, env.historyAmount(t, "2024-03-05", "EUR").Equal(decimal.RequireFromString("100")))
	snapshot, err := env.history.LatestOnOrBefore(env.accountID, mustDay(t, "2024-03-05"))
	require.NoError(t, err)
	assert.Len(t, snapshot.Balances, 2)
}

func TestModifyTransactionRebuildsFromEarlierDay(t *testing.T) {
	env := newTestEnv(t)

	tx := env.deposit(t, "2024-03-03", "100", "EUR")
	env.deposit(t, "2024-03-05", "50", "EUR")

	_, err := env.svc.ModifyTransaction(tx.ID, &domain.AccountTransaction{
		Type:     domain.TxDeposit,
		Amount:   decimal.RequireFromString("60"),
		Currency: "EUR",
		Date:     mustDay(t, "2024-03-03").Add(10 * time.Hour),
	})
	require.NoError(t, err)

	assert.True(t, env.balance(t, "EUR").Equal(decimal.RequireFromString("110")))
	assert.True(t, env.historyAmount(t, "2024-03-03", "EUR").Equal(decimal.RequireFromString("60")))
	assert.True(t, env.historyAmount(t, "2024-03-05", "EUR").Equal(decimal.RequireFromString("110")))
}

func TestDeleteTransactionRebuilds(t *testing.T) {
	env := newTestEnv(t)

	tx := env.deposit(t, "2024-03-02", "100", "EUR")
	env.deposit(t, "2024-03-04", "50", "EUR")

	require.NoError(t, env.svc.DeleteTransaction(tx.ID))

	assert.True(t, env.balance(t, "EUR").Equal(decimal.RequireFromString("50")))
	assert.True(t, env.historyAmount(t, "2024-03-02", "EUR").Equal(decimal.Zero))
	assert.True(t, env.historyAmount(t, "2024-03-04", "EUR").Equal(decimal.RequireFromString("50")))
}

func TestIncrementalSafetyFlagsStaleStates(t *testing.T) {
	account := &domain.Account{ID: 1}
	tx := &domain.AccountTransaction{Currency: "PLN", Date: testToday}

	assert.ErrorIs(t, incrementalSafety(account, nil, tx), domain.ErrStaleBalance)

	balance := &domain.AccountBalance{Currency: "PLN"}
	require.NoError(t, incrementalSafety(account, balance, tx))

	day := domain.DayOf(testToday)
	account.LastSaveDate = &day
	assert.ErrorIs(t, incrementalSafety(account, balance, tx), domain.ErrStaleBalance)

	account.LastSaveDate = nil
	later := testToday.Add(time.Hour)
	account.LastTransactionDate = &later
	assert.ErrorIs(t, incrementalSafety(account, balance, tx), domain.ErrStaleBalance)
}

// The nightly snapshot job calls Rebuild directly, so it must queue behind
// a transaction write in flight for the same account.
func TestRebuildWaitsForAccountLock(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, "2024-03-05", "1000", "PLN")

	unlock := env.svc.locks.Lock(env.accountID)

	day, err := domain.ParseDay("2024-03-05")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() {
		done <- env.svc.Rebuild(env.accountID, day)
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
	assert.True(t, env.balance(t, "PLN").Equal(decimal.RequireFromString("1000")))
}

func TestAddTransactionValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.AddTransaction(&domain.AccountTransaction{
		AccountID: env.accountID,
		Type:      "transfer",
		Amount:    decimal.RequireFromString("10"),
		Currency:  "EUR",
		Date:      testToday,
	})
	assert.Error(t, err)

	_, err = env.svc.AddTransaction(&domain.AccountTransaction{
		AccountID: env.accountID,
		Type:      domain.TxDeposit,
		Amount:    decimal.RequireFromString("-10"),
		Currency:  "EUR",
		Date:      testToday,
	})
	assert.Error(t, err)

	_, err = env.svc.AddTransaction(&domain.AccountTransaction{
		AccountID: 999,
		Type:      domain.TxDeposit,
		Amount:    decimal.RequireFromString("10"),
		Currency:  "EUR",
		Date:      testToday,
	})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestPurgeAccountRemovesEverything(t *testing.T) {
	env := newTestEnv(t)

	env.deposit(t, "2024-03-01", "100", "EUR")
	require.NoError(t, env.svc.PurgeAccount(env.accountID))

	txs, err := env.svc.ListTransactions(env.accountID)
	require.NoError(t, err)
	assert.Empty(t, txs)

	balances, err := env.svc.Balances(env.accountID)
	require.NoError(t, err)
	assert.Empty(t, balances)

	histories, err := env.history.ListByAccount(env.accountID, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, histories)
}

func mustDay(t *testing.T, day string) time.Time {
	t.Helper()
	parsed, err := domain.ParseDay(day)
	require.NoError(t, err)
	return parsed
}
