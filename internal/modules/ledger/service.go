package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/jakub-mrow/AMS-backend/internal/events"
	"github.com/jakub-mrow/AMS-backend/internal/modules/accounts"
	"github.com/rs/zerolog"
)

// AccountHistoryStore persists daily cash snapshots. Implemented by the
// history module; defined here so the balance engine does not depend on it.
type AccountHistoryStore interface {
	// LatestOnOrBefore returns the newest snapshot dated on or before day,
	// or nil when none exists.
	LatestOnOrBefore(accountID int64, day time.Time) (*domain.AccountHistory, error)
	// Currencies returns every currency appearing in the account's history.
	Currencies(accountID int64) ([]string, error)
	// DeleteFrom removes all snapshots dated on or after fromDay.
	DeleteFrom(accountID int64, fromDay time.Time) error
	// AppendDays bulk-inserts snapshot rows. Days must not already exist.
	AppendDays(accountID int64, days []domain.AccountHistory) error
	// PurgeAccount removes all snapshots of an account.
	PurgeAccount(accountID int64) error
}

// Service is the cash balance engine. Writes are serialized per account;
// each write either applies incrementally or falls back to a rebuild when
// the incremental path would be unsafe.
type Service struct {
	txRepo      *TransactionRepository
	balanceRepo *BalanceRepository
	accountRepo *accounts.Repository
	history     AccountHistoryStore
	bus         *events.Bus
	locks       *accountLocks
	log         zerolog.Logger

	now func() time.Time
}

// NewService creates a new cash balance service
func NewService(
	txRepo *TransactionRepository,
	balanceRepo *BalanceRepository,
	accountRepo *accounts.Repository,
	history AccountHistoryStore,
	bus *events.Bus,
	log zerolog.Logger,
) *Service {
	return &Service{
		txRepo:      txRepo,
		balanceRepo: balanceRepo,
		accountRepo: accountRepo,
		history:     history,
		bus:         bus,
		locks:       newAccountLocks(),
		log:         log.With().Str("service", "ledger").Logger(),
		now:         time.Now,
	}
}

// AddTransaction validates, stores and applies one cash transaction.
// Incremental application is used when safe; otherwise the account is
// rebuilt from the transaction's day.
func (s *Service) AddTransaction(tx *domain.AccountTransaction) (*domain.AccountTransaction, error) {
	if err := validateTransaction(tx); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(tx.AccountID)
	defer unlock()

	account, err := s.accountRepo.GetByID(tx.AccountID)
	if err != nil {
		return nil, err
	}

	if err := s.txRepo.Insert(tx); err != nil {
		return nil, err
	}

	if err := s.applyInserted(account, tx); err != nil {
		// The row is in but could not be applied. Remove it and restore a
		// consistent state before surfacing the error.
		s.compensate(account.ID, tx)
		return nil, err
	}

	s.markDirty(tx.AccountID, "cash_transaction")
	return tx, nil
}

// applyInserted decides between the incremental path and a rebuild.
func (s *Service) applyInserted(account *domain.Account, tx *domain.AccountTransaction) error {
	txDay := domain.DayOf(tx.Date)

	balance, err := s.balanceRepo.Get(account.ID, tx.Currency)
	if err != nil {
		return err
	}

	if err := incrementalSafety(account, balance, tx); errors.Is(err, domain.ErrStaleBalance) {
		s.log.Debug().
			Err(err).
			Int64("account_id", account.ID).
			Str("day", domain.FormatDay(txDay)).
			Msg("Incremental apply unsafe, rebuilding")
		return s.rebuild(account.ID, txDay)
	}

	if err := s.balanceRepo.Upsert(account.ID, tx.Currency, balance.Amount.Add(tx.Signed())); err != nil {
		return err
	}
	if account.LastTransactionDate == nil || tx.Date.After(*account.LastTransactionDate) {
		if err := s.accountRepo.SetLastTransactionDate(account.ID, &tx.Date); err != nil {
			return err
		}
	}
	return nil
}

// incrementalSafety decides whether applying tx on top of the live balance
// preserves ordering. A missing balance row, a transaction landing on an
// already-snapshotted day, or a transaction older than the newest one
// applied all return domain.ErrStaleBalance.
func incrementalSafety(account *domain.Account, balance *domain.AccountBalance, tx *domain.AccountTransaction) error {
	if balance == nil {
		return fmt.Errorf("%w: no balance row for %s", domain.ErrStaleBalance, tx.Currency)
	}
	if account.LastSaveDate != nil && !domain.DayOf(tx.Date).After(*account.LastSaveDate) {
		return fmt.Errorf("%w: transaction dated inside snapshotted range", domain.ErrStaleBalance)
	}
	if account.LastTransactionDate != nil && tx.Date.Before(*account.LastTransactionDate) {
		return fmt.Errorf("%w: transaction older than newest applied", domain.ErrStaleBalance)
	}
	return nil
}

// ModifyTransaction rewrites a stored transaction and rebuilds from the
// earlier of its old and new days.
func (s *Service) ModifyTransaction(id int64, updated *domain.AccountTransaction) (*domain.AccountTransaction, error) {
	if err := validateTransaction(updated); err != nil {
		return nil, err
	}

	old, err := s.txRepo.GetByID(id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(old.AccountID)
	defer unlock()

	updated.ID = id
	updated.AccountID = old.AccountID
	if err := s.txRepo.Update(updated); err != nil {
		return nil, err
	}

	fromDay := domain.DayOf(old.Date)
	if newDay := domain.DayOf(updated.Date); newDay.Before(fromDay) {
		fromDay = newDay
	}
	if err := s.rebuild(old.AccountID, fromDay); err != nil {
		return nil, err
	}

	s.markDirty(old.AccountID, "cash_transaction_modified")
	return s.txRepo.GetByID(id)
}

// DeleteTransaction removes a transaction and rebuilds from its day.
func (s *Service) DeleteTransaction(id int64) error {
	old, err := s.txRepo.GetByID(id)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(old.AccountID)
	defer unlock()

	if err := s.txRepo.Delete(id); err != nil {
		return err
	}
	if err := s.rebuild(old.AccountID, domain.DayOf(old.Date)); err != nil {
		return err
	}

	s.markDirty(old.AccountID, "cash_transaction_deleted")
	return nil
}

// DeleteByCorrelation removes the cash rows generated by one asset trade
// and rebuilds from their earliest day. Used when a trade is deleted.
func (s *Service) DeleteByCorrelation(accountID, correlationID int64) error {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	linked, err := s.txRepo.ListByCorrelation(correlationID)
	if err != nil {
		return err
	}
	if len(linked) == 0 {
		return nil
	}

	fromDay := domain.DayOf(linked[0].Date)
	for _, tx := range linked {
		if day := domain.DayOf(tx.Date); day.Before(fromDay) {
			fromDay = day
		}
		if err := s.txRepo.Delete(tx.ID); err != nil {
			return err
		}
	}
	return s.rebuild(accountID, fromDay)
}

// ListTransactions returns the account's cash transactions, newest first.
func (s *Service) ListTransactions(accountID int64) ([]domain.AccountTransaction, error) {
	if _, err := s.accountRepo.GetByID(accountID); err != nil {
		return nil, err
	}
	return s.txRepo.ListByAccount(accountID)
}

// GetTransaction returns one transaction.
func (s *Service) GetTransaction(id int64) (*domain.AccountTransaction, error) {
	return s.txRepo.GetByID(id)
}

// Balances returns the account's live cash balances.
func (s *Service) Balances(accountID int64) ([]domain.AccountBalance, error) {
	if _, err := s.accountRepo.GetByID(accountID); err != nil {
		return nil, err
	}
	return s.balanceRepo.GetAll(accountID)
}

// PurgeAccount removes all ledger data for an account.
func (s *Service) PurgeAccount(accountID int64) error {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	if err := s.txRepo.DeleteByAccount(accountID); err != nil {
		return err
	}
	if err := s.balanceRepo.DeleteByAccount(accountID); err != nil {
		return err
	}
	return s.history.PurgeAccount(accountID)
}

// compensate removes a transaction that could not be applied and restores
// balances by rebuilding from its day.
func (s *Service) compensate(accountID int64, tx *domain.AccountTransaction) {
	if err := s.txRepo.Delete(tx.ID); err != nil {
		s.log.Error().Err(err).Int64("tx_id", tx.ID).Msg("Failed to remove unapplied transaction")
		return
	}
	if err := s.rebuild(accountID, domain.DayOf(tx.Date)); err != nil {
		s.log.Error().Err(err).Int64("account_id", accountID).Msg("Failed to restore balances after apply failure")
	}
}

func (s *Service) markDirty(accountID int64, reason string) {
	s.bus.Publish(&events.AccountDirtyData{AccountID: accountID, Reason: reason})
}

func validateTransaction(tx *domain.AccountTransaction) error {
	if !tx.Type.Valid() {
		return fmt.Errorf("unknown transaction type %q", tx.Type)
	}
	if !tx.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	tx.Currency = strings.ToUpper(strings.TrimSpace(tx.Currency))
	if len(tx.Currency) != 3 {
		return fmt.Errorf("invalid currency %q", tx.Currency)
	}
	if tx.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	return nil
}
