package history

import (
	"testing"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/jakub-mrow/AMS-backend/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rebuildCall struct {
	accountID int64
	assetID   int64
	fromDay   string
}

type fakeRebuilder struct {
	accounts  []domain.Account
	positions []domain.AssetBalance
	cashCalls []rebuildCall
	posCalls  []rebuildCall
}

func (f *fakeRebuilder) GetAll() ([]domain.Account, error) { return f.accounts, nil }

func (f *fakeRebuilder) Rebuild(accountID int64, fromDay time.Time) error {
	f.cashCalls = append(f.cashCalls, rebuildCall{accountID: accountID, fromDay: domain.FormatDay(fromDay)})
	return nil
}

func (f *fakeRebuilder) AllPositions() ([]domain.AssetBalance, error) { return f.positions, nil }

func (f *fakeRebuilder) RebuildPosition(accountID, assetID int64, fromDay time.Time) error {
	f.posCalls = append(f.posCalls, rebuildCall{accountID: accountID, assetID: assetID, fromDay: domain.FormatDay(fromDay)})
	return nil
}

func newSnapshotService(fake *fakeRebuilder) *Service {
	svc := NewService(fake, fake, fake, events.NewBus(zerolog.Nop()), zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC) }
	return svc
}

func ptrDay(t *testing.T, s string) *time.Time {
	d := day(t, s)
	return &d
}

func TestRunDailySnapshotAdvancesStaleAccounts(t *testing.T) {
	lastTx := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	fake := &fakeRebuilder{
		accounts: []domain.Account{
			// Behind: snapshotted through 03-07, needs 03-08..03-09
			{ID: 1, LastSaveDate: ptrDay(t, "2024-03-07")},
			// Current: snapshotted through yesterday already
			{ID: 2, LastSaveDate: ptrDay(t, "2024-03-09")},
			// Never snapshotted: starts from its first transaction
			{ID: 3, LastTransactionDate: &lastTx},
			// No activity at all
			{ID: 4},
		},
	}
	svc := newSnapshotService(fake)

	require.NoError(t, svc.RunDailySnapshot())

	require.Len(t, fake.cashCalls, 2)
	assert.Equal(t, rebuildCall{accountID: 1, fromDay: "2024-03-08"}, fake.cashCalls[0])
	assert.Equal(t, rebuildCall{accountID: 3, fromDay: "2024-03-05"}, fake.cashCalls[1])
}

func TestRunDailySnapshotIsIdempotent(t *testing.T) {
	fake := &fakeRebuilder{
		accounts: []domain.Account{{ID: 1, LastSaveDate: ptrDay(t, "2024-03-07")}},
	}
	svc := newSnapshotService(fake)

	require.NoError(t, svc.RunDailySnapshot())
	require.Len(t, fake.cashCalls, 1)

	// Simulate the rebuild having advanced last_save_date to yesterday
	fake.accounts[0].LastSaveDate = ptrDay(t, "2024-03-09")
	require.NoError(t, svc.RunDailySnapshot())
	assert.Len(t, fake.cashCalls, 1, "second run must be a no-op")
}

func TestRunDailySnapshotCoversPositions(t *testing.T) {
	fake := &fakeRebuilder{
		positions: []domain.AssetBalance{
			{AccountID: 1, AssetID: 7, LastSaveDate: ptrDay(t, "2024-03-08")},
			{AccountID: 1, AssetID: 8, LastSaveDate: ptrDay(t, "2024-03-09")},
			{AccountID: 2, AssetID: 7, FirstEventDate: ptrDay(t, "2024-03-01")},
		},
	}
	svc := newSnapshotService(fake)

	require.NoError(t, svc.RunDailySnapshot())

	require.Len(t, fake.posCalls, 2)
	assert.Equal(t, rebuildCall{accountID: 1, assetID: 7, fromDay: "2024-03-09"}, fake.posCalls[0])
	assert.Equal(t, rebuildCall{accountID: 2, assetID: 7, fromDay: "2024-03-01"}, fake.posCalls[1])
}
