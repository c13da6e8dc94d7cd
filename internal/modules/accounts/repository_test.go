package accounts

import (
	"testing"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	internaltesting "github.com/jakub-mrow/AMS-backend/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db := internaltesting.NewMemoryDB(t, "portfolio")
	return NewRepository(db, zerolog.Nop())
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)

	account, err := repo.Create(1, "Broker A")
	require.NoError(t, err)
	assert.NotZero(t, account.ID)

	got, err := repo.GetByID(account.ID)
	require.NoError(t, err)
	assert.Equal(t, "Broker A", got.Name)
	assert.Equal(t, int64(1), got.UserID)
	assert.Nil(t, got.LastTransactionDate)
	assert.Nil(t, got.LastSaveDate)
	assert.Nil(t, got.XIRR)
}

func TestRepository_GetByID_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetByID(999)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestRepository_Watermarks(t *testing.T) {
	repo := newTestRepo(t)
	account, err := repo.Create(1, "Broker A")
	require.NoError(t, err)

	txDate := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	require.NoError(t, repo.SetLastTransactionDate(account.ID, &txDate))

	saveDay := domain.DayOf(time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, repo.SetLastSaveDate(account.ID, &saveDay))

	xirr := decimal.RequireFromString("0.075")
	require.NoError(t, repo.SetXIRR(account.ID, &xirr))

	got, err := repo.GetByID(account.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastTransactionDate)
	assert.Equal(t, txDate.Unix(), got.LastTransactionDate.Unix())
	require.NotNil(t, got.LastSaveDate)
	assert.Equal(t, "2024-01-14", domain.FormatDay(*got.LastSaveDate))
	require.NotNil(t, got.XIRR)
	assert.True(t, got.XIRR.Equal(xirr))

	// Clearing the xirr stores NULL
	require.NoError(t, repo.SetXIRR(account.ID, nil))
	got, err = repo.GetByID(account.ID)
	require.NoError(t, err)
	assert.Nil(t, got.XIRR)
}

func TestRepository_Preferences(t *testing.T) {
	repo := newTestRepo(t)
	account, err := repo.Create(1, "Broker A")
	require.NoError(t, err)

	prefs, err := repo.GetPreferences(account.ID)
	require.NoError(t, err)
	assert.Nil(t, prefs)

	require.NoError(t, repo.UpsertPreferences(&domain.AccountPreferences{
		AccountID:    account.ID,
		BaseCurrency: "EUR",
		TaxCurrency:  "PLN",
	}))

	prefs, err = repo.GetPreferences(account.ID)
	require.NoError(t, err)
	require.NotNil(t, prefs)
	assert.Equal(t, "EUR", prefs.BaseCurrency)
	assert.Equal(t, "PLN", prefs.TaxCurrency)

	// Upsert replaces the existing row
	require.NoError(t, repo.UpsertPreferences(&domain.AccountPreferences{
		AccountID:    account.ID,
		BaseCurrency: "USD",
		TaxCurrency:  "USD",
	}))
	prefs, err = repo.GetPreferences(account.ID)
	require.NoError(t, err)
	assert.Equal(t, "USD", prefs.BaseCurrency)
}

func TestRepository_Delete(t *testing.T) {
	repo := newTestRepo(t)
	account, err := repo.Create(1, "Broker A")
	require.NoError(t, err)
	require.NoError(t, repo.UpsertPreferences(&domain.AccountPreferences{
		AccountID: account.ID, BaseCurrency: "PLN", TaxCurrency: "PLN",
	}))

	require.NoError(t, repo.Delete(account.ID))

	_, err = repo.GetByID(account.ID)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	prefs, err := repo.GetPreferences(account.ID)
	require.NoError(t, err)
	assert.Nil(t, prefs)

	assert.ErrorIs(t, repo.Delete(account.ID), domain.ErrAccountNotFound)
}

func TestRepository_GetAllByUser(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Create(1, "Broker A")
	require.NoError(t, err)
	_, err = repo.Create(1, "Broker B")
	require.NoError(t, err)
	_, err = repo.Create(2, "Other user")
	require.NoError(t, err)

	accounts, err := repo.GetAllByUser(1)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
