package accounts

import (
	"testing"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/events"
	internaltesting "github.com/jakub-mrow/AMS-backend/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *events.Bus) {
	t.Helper()
	db := internaltesting.NewMemoryDB(t, "portfolio")
	bus := events.NewBus(zerolog.Nop())
	repo := NewRepository(db, zerolog.Nop())
	return NewService(repo, bus, "pln", zerolog.Nop()), bus
}

func TestService_CreateSetsDefaultPreferences(t *testing.T) {
	svc, _ := newTestService(t)

	account, err := svc.Create(1, "  Broker A  ")
	require.NoError(t, err)
	assert.Equal(t, "Broker A", account.Name)

	prefs, err := svc.Preferences(account.ID)
	require.NoError(t, err)
	assert.Equal(t, "PLN", prefs.BaseCurrency)
	assert.Equal(t, "PLN", prefs.TaxCurrency)
}

func TestService_CreateRejectsEmptyName(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(1, "   ")
	assert.Error(t, err)
}

func TestService_UpdatePreferencesPublishesDirtyOnBaseChange(t *testing.T) {
	svc, bus := newTestService(t)
	account, err := svc.Create(1, "Broker A")
	require.NoError(t, err)

	dirty := make(chan events.Event, 10)
	bus.Subscribe(events.AccountDirty, func(event *events.Event) { dirty <- *event })

	prefs, err := svc.UpdatePreferences(account.ID, "eur", "")
	require.NoError(t, err)
	assert.Equal(t, "EUR", prefs.BaseCurrency)
	assert.Equal(t, "EUR", prefs.TaxCurrency)

	select {
	case event := <-dirty:
		data := event.Data.(*events.AccountDirtyData)
		assert.Equal(t, account.ID, data.AccountID)
	case <-time.After(time.Second):
		t.Fatal("expected AccountDirty after base currency change")
	}

	// Same base currency again: no new event
	_, err = svc.UpdatePreferences(account.ID, "EUR", "PLN")
	require.NoError(t, err)
	select {
	case <-dirty:
		t.Fatal("unexpected AccountDirty when base currency unchanged")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestService_UpdatePreferencesValidatesCurrency(t *testing.T) {
	svc, _ := newTestService(t)
	account, err := svc.Create(1, "Broker A")
	require.NoError(t, err)

	_, err = svc.UpdatePreferences(account.ID, "EURO", "")
	assert.Error(t, err)
}

type fakePurger struct {
	purged []int64
}

func (f *fakePurger) PurgeAccount(accountID int64) error {
	f.purged = append(f.purged, accountID)
	return nil
}

func TestService_DeleteRunsPurgers(t *testing.T) {
	svc, _ := newTestService(t)
	account, err := svc.Create(1, "Broker A")
	require.NoError(t, err)

	purger := &fakePurger{}
	svc.RegisterPurger(purger)

	require.NoError(t, svc.Delete(account.ID))
	assert.Equal(t, []int64{account.ID}, purger.purged)

	_, err = svc.Get(account.ID)
	assert.Error(t, err)
}
