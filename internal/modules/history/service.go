package history

import (
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/jakub-mrow/AMS-backend/internal/events"
	"github.com/rs/zerolog"
)

// CashRebuilder regenerates an account's cash balances and history from a
// day forward. Implemented by the ledger service.
type CashRebuilder interface {
	Rebuild(accountID int64, fromDay time.Time) error
}

// PositionRebuilder regenerates positions and their history. Implemented
// by the positions service.
type PositionRebuilder interface {
	RebuildPosition(accountID, assetID int64, fromDay time.Time) error
	AllPositions() ([]domain.AssetBalance, error)
}

// AccountSource lists accounts for the snapshot walk.
type AccountSource interface {
	GetAll() ([]domain.Account, error)
}

// Service is the snapshot engine: it drives the daily job that closes
// yesterday for every account and position.
type Service struct {
	accounts  AccountSource
	cash      CashRebuilder
	positions PositionRebuilder
	bus       *events.Bus
	log       zerolog.Logger

	now func() time.Time
}

// NewService creates a new snapshot service
func NewService(accounts AccountSource, cash CashRebuilder, positions PositionRebuilder, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		accounts:  accounts,
		cash:      cash,
		positions: positions,
		bus:       bus,
		log:       log.With().Str("service", "history").Logger(),
		now:       time.Now,
	}
}

// RunDailySnapshot writes yesterday's history rows for every account and
// position whose snapshots are behind, advancing last_save_date. Rebuild
// makes the job idempotent: re-running it on the same day is a no-op for
// anything already snapshotted through yesterday.
func (s *Service) RunDailySnapshot() error {
	yesterday := domain.PrevDay(domain.DayOf(s.now()))

	accounts, err := s.accounts.GetAll()
	if err != nil {
		return err
	}

	snapshotted := 0
	for _, account := range accounts {
		from, ok := accountSnapshotStart(&account, yesterday)
		if !ok {
			continue
		}
		if err := s.cash.Rebuild(account.ID, from); err != nil {
			s.log.Error().Err(err).Int64("account_id", account.ID).Msg("Account snapshot failed")
			continue
		}
		snapshotted++
	}

	positions, err := s.positions.AllPositions()
	if err != nil {
		return err
	}
	for _, position := range positions {
		from, ok := positionSnapshotStart(&position, yesterday)
		if !ok {
			continue
		}
		if err := s.positions.RebuildPosition(position.AccountID, position.AssetID, from); err != nil {
			s.log.Error().Err(err).
				Int64("account_id", position.AccountID).
				Int64("asset_id", position.AssetID).
				Msg("Position snapshot failed")
		}
	}

	if snapshotted > 0 {
		s.bus.Publish(&events.SnapshotCompletedData{
			Accounts: snapshotted,
			Day:      domain.FormatDay(yesterday),
		})
	}
	return nil
}

// accountSnapshotStart returns the first day the account still needs
// snapshotted, or false when it is already current (or has no activity).
func accountSnapshotStart(account *domain.Account, yesterday time.Time) (time.Time, bool) {
	var from time.Time
	switch {
	case account.LastSaveDate != nil:
		from = domain.NextDay(*account.LastSaveDate)
	case account.LastTransactionDate != nil:
		from = domain.DayOf(*account.LastTransactionDate)
	default:
		return time.Time{}, false
	}
	if from.After(yesterday) {
		return time.Time{}, false
	}
	return from, true
}

func positionSnapshotStart(position *domain.AssetBalance, yesterday time.Time) (time.Time, bool) {
	var from time.Time
	switch {
	case position.LastSaveDate != nil:
		from = domain.NextDay(*position.LastSaveDate)
	case position.FirstEventDate != nil:
		from = *position.FirstEventDate
	default:
		return time.Time{}, false
	}
	if from.After(yesterday) {
		return time.Time{}, false
	}
	return from, true
}
