package positions

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/clients/eodhd"
	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/jakub-mrow/AMS-backend/internal/events"
	"github.com/jakub-mrow/AMS-backend/internal/modules/assets"
	"github.com/jakub-mrow/AMS-backend/internal/modules/ledger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AssetHistoryStore persists daily position snapshots. Implemented by the
// history module.
type AssetHistoryStore interface {
	LatestOnOrBefore(accountID, assetID int64, day time.Time) (*domain.AssetBalanceHistory, error)
	DeleteFrom(accountID, assetID int64, fromDay time.Time) error
	AppendDays(days []domain.AssetBalanceHistory) error
	PurgeAccount(accountID int64) error
}

// PriceGateway supplies quotes for the price update job.
type PriceGateway interface {
	CurrentPrice(ticker, exchange string) (*eodhd.Quote, error)
	HistoricalPrices(ticker, exchange string, from, to time.Time) ([]eodhd.PriceBar, error)
}

// positionLocks serializes position writers per account.
type positionLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newPositionLocks() *positionLocks {
	return &positionLocks{locks: make(map[int64]*sync.Mutex)}
}

func (l *positionLocks) Lock(accountID int64) func() {
	l.mu.Lock()
	lock, ok := l.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[accountID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Service is the asset balance engine. Trades also write their cash leg
// through the ledger service, linked by correlation id, so deleting a trade
// removes its cash side effect too.
type Service struct {
	txRepo      *TransactionRepository
	balanceRepo *BalanceRepository
	assetSvc    *assets.Service
	cash        *ledger.Service
	history     AssetHistoryStore
	gateway     PriceGateway
	bus         *events.Bus
	locks       *positionLocks
	log         zerolog.Logger

	now func() time.Time
}

// NewService creates a new position service
func NewService(
	txRepo *TransactionRepository,
	balanceRepo *BalanceRepository,
	assetSvc *assets.Service,
	cash *ledger.Service,
	history AssetHistoryStore,
	gateway PriceGateway,
	bus *events.Bus,
	log zerolog.Logger,
) *Service {
	return &Service{
		txRepo:      txRepo,
		balanceRepo: balanceRepo,
		assetSvc:    assetSvc,
		cash:        cash,
		history:     history,
		gateway:     gateway,
		bus:         bus,
		locks:       newPositionLocks(),
		log:         log.With().Str("service", "positions").Logger(),
		now:         time.Now,
	}
}

// Trade describes a buy or sell placed against a ticker rather than a known
// asset id. Unknown tickers are resolved through the gateway search.
type Trade struct {
	AccountID    int64
	Ticker       string
	Exchange     string
	Type         domain.AssetTransactionType
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	PayCurrency  *string
	ExchangeRate *decimal.Decimal
	Commission   *decimal.Decimal
	Date         time.Time
}

// ExecuteTrade resolves the instrument (creating it from gateway search
// data on first use) and records the transaction.
func (s *Service) ExecuteTrade(trade *Trade) (*domain.AssetTransaction, error) {
	asset, err := s.assetSvc.Resolve(trade.Ticker, trade.Exchange)
	if err != nil {
		return nil, err
	}
	return s.AddTransaction(&domain.AssetTransaction{
		AccountID:    trade.AccountID,
		AssetID:      asset.ID,
		Type:         trade.Type,
		Quantity:     trade.Quantity,
		Price:        trade.Price,
		PayCurrency:  trade.PayCurrency,
		ExchangeRate: trade.ExchangeRate,
		Commission:   trade.Commission,
		Date:         trade.Date,
	})
}

// AddTransaction validates, stores and applies one asset transaction,
// writing the correlated cash leg for trades and dividends.
func (s *Service) AddTransaction(tx *domain.AssetTransaction) (*domain.AssetTransaction, error) {
	if err := validateAssetTransaction(tx); err != nil {
		return nil, err
	}

	asset, err := s.assetSvc.Get(tx.AssetID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(tx.AccountID)
	defer unlock()

	if err := s.txRepo.Insert(tx); err != nil {
		return nil, err
	}

	if err := s.applyInserted(tx); err != nil {
		s.compensate(tx)
		return nil, err
	}

	if err := s.writeCashLeg(tx, asset); err != nil {
		s.compensate(tx)
		return nil, err
	}

	s.bus.Publish(&events.AccountDirtyData{AccountID: tx.AccountID, Reason: "asset_transaction"})
	return tx, nil
}

// applyInserted decides between the incremental path and a rebuild, using
// the same safety check as the cash engine but keyed per (account, asset).
func (s *Service) applyInserted(tx *domain.AssetTransaction) error {
	txDay := domain.DayOf(tx.Date)

	balance, err := s.balanceRepo.Get(tx.AccountID, tx.AssetID)
	if err != nil {
		return err
	}

	if err := positionSafety(balance, tx); errors.Is(err, domain.ErrStaleBalance) {
		s.log.Debug().
			Err(err).
			Int64("account_id", tx.AccountID).
			Int64("asset_id", tx.AssetID).
			Msg("Incremental apply unsafe, rebuilding position")
		return s.rebuildPosition(tx.AccountID, tx.AssetID, txDay)
	}

	switch tx.Type {
	case domain.AssetTxBuy:
		balance.Quantity = balance.Quantity.Add(tx.Quantity)
		balance.Price = tx.Price
	case domain.AssetTxSell:
		balance.Quantity = balance.Quantity.Sub(tx.Quantity)
		if balance.Quantity.IsNegative() {
			return domain.ErrInsufficientPosition
		}
		balance.Price = tx.Price
	case domain.AssetTxPrice:
		balance.Price = tx.Price
	case domain.AssetTxDividend:
		// Cash leg only.
	}

	// Cost basis always comes from a full FIFO replay of the journal.
	average, err := s.replayAveragePrice(tx.AccountID, tx.AssetID)
	if err != nil {
		return err
	}
	balance.AveragePrice = average
	balance.Result = resultPercent(balance.Price, average)
	if balance.LastTransactionDate == nil || tx.Date.After(*balance.LastTransactionDate) {
		balance.LastTransactionDate = &tx.Date
	}
	if balance.FirstEventDate == nil || txDay.Before(*balance.FirstEventDate) {
		balance.FirstEventDate = &txDay
	}
	return s.balanceRepo.Upsert(balance)
}

// positionSafety mirrors the cash engine's ordering check for one
// (account, asset) position.
func positionSafety(balance *domain.AssetBalance, tx *domain.AssetTransaction) error {
	if balance == nil {
		return fmt.Errorf("%w: no position row", domain.ErrStaleBalance)
	}
	if balance.LastSaveDate != nil && !domain.DayOf(tx.Date).After(*balance.LastSaveDate) {
		return fmt.Errorf("%w: transaction dated inside snapshotted range", domain.ErrStaleBalance)
	}
	if balance.LastTransactionDate != nil && tx.Date.Before(*balance.LastTransactionDate) {
		return fmt.Errorf("%w: transaction older than newest applied", domain.ErrStaleBalance)
	}
	return nil
}

// writeCashLeg records the cash movement implied by a trade or dividend.
// Price marks move no cash.
func (s *Service) writeCashLeg(tx *domain.AssetTransaction, asset *domain.Asset) error {
	var cashType domain.AccountTransactionType
	switch tx.Type {
	case domain.AssetTxBuy:
		cashType = domain.TxBuy
	case domain.AssetTxSell:
		cashType = domain.TxSell
	case domain.AssetTxDividend:
		cashType = domain.TxDividend
	default:
		return nil
	}

	amount := tx.Quantity.Mul(tx.Price)
	currency := asset.Currency
	if tx.PayCurrency != nil && tx.ExchangeRate != nil {
		amount = amount.Mul(*tx.ExchangeRate)
		currency = *tx.PayCurrency
	}
	if tx.Commission != nil {
		if tx.Type == domain.AssetTxBuy {
			amount = amount.Add(*tx.Commission)
		} else if tx.Type == domain.AssetTxSell {
			amount = amount.Sub(*tx.Commission)
		}
	}
	if !amount.IsPositive() {
		s.log.Warn().
			Int64("asset_tx_id", tx.ID).
			Str("amount", amount.String()).
			Msg("Skipping non-positive cash leg")
		return nil
	}

	correlationID := tx.ID
	_, err := s.cash.AddTransaction(&domain.AccountTransaction{
		AccountID:     tx.AccountID,
		Type:          cashType,
		Amount:        amount,
		Currency:      currency,
		Date:          tx.Date,
		CorrelationID: &correlationID,
	})
	return err
}

// ModifyTransaction rewrites a stored transaction, regenerates its cash
// leg, and rebuilds from the earlier of its old and new days.
func (s *Service) ModifyTransaction(id int64, updated *domain.AssetTransaction) (*domain.AssetTransaction, error) {
	if err := validateAssetTransaction(updated); err != nil {
		return nil, err
	}

	old, err := s.txRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	asset, err := s.assetSvc.Get(old.AssetID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(old.AccountID)
	defer unlock()

	updated.ID = id
	updated.AccountID = old.AccountID
	updated.AssetID = old.AssetID
	if err := s.txRepo.Update(updated); err != nil {
		return nil, err
	}

	if err := s.cash.DeleteByCorrelation(old.AccountID, id); err != nil {
		return nil, err
	}

	fromDay := domain.DayOf(old.Date)
	if newDay := domain.DayOf(updated.Date); newDay.Before(fromDay) {
		fromDay = newDay
	}
	if err := s.rebuildPosition(old.AccountID, old.AssetID, fromDay); err != nil {
		return nil, err
	}
	if err := s.writeCashLeg(updated, asset); err != nil {
		return nil, err
	}

	s.bus.Publish(&events.AccountDirtyData{AccountID: old.AccountID, Reason: "asset_transaction_modified"})
	return s.txRepo.GetByID(id)
}

// DeleteTransaction removes a transaction and its cash leg, then rebuilds
// the position from its day.
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
	if err := s.cash.DeleteByCorrelation(old.AccountID, id); err != nil {
		return err
	}
	if err := s.rebuildPosition(old.AccountID, old.AssetID, domain.DayOf(old.Date)); err != nil {
		return err
	}

	s.bus.Publish(&events.AccountDirtyData{AccountID: old.AccountID, Reason: "asset_transaction_deleted"})
	return nil
}

// ListTransactions returns the account's asset transactions, newest first,
// price marks excluded.
func (s *Service) ListTransactions(accountID int64) ([]domain.AssetTransaction, error) {
	return s.txRepo.ListByAccount(accountID)
}

// GetTransaction returns one transaction.
func (s *Service) GetTransaction(id int64) (*domain.AssetTransaction, error) {
	return s.txRepo.GetByID(id)
}

// Balances returns the account's live positions.
func (s *Service) Balances(accountID int64) ([]domain.AssetBalance, error) {
	return s.balanceRepo.GetAll(accountID)
}

// AllPositions returns every position across all accounts. Used by the
// daily snapshot job.
func (s *Service) AllPositions() ([]domain.AssetBalance, error) {
	return s.balanceRepo.All()
}

// PurgeAccount removes all position data for an account.
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

func (s *Service) replayAveragePrice(accountID, assetID int64) (decimal.Decimal, error) {
	txs, err := s.txRepo.ListByPosition(accountID, assetID)
	if err != nil {
		return decimal.Zero, err
	}
	lots := newLotQueue()
	for i := range txs {
		if err := lots.apply(&txs[i]); err != nil {
			return decimal.Zero, err
		}
	}
	return lots.averagePrice(), nil
}

// compensate removes a transaction that could not be applied and restores
// the position by rebuilding from its day.
func (s *Service) compensate(tx *domain.AssetTransaction) {
	if err := s.txRepo.Delete(tx.ID); err != nil {
		s.log.Error().Err(err).Int64("tx_id", tx.ID).Msg("Failed to remove unapplied asset transaction")
		return
	}
	if err := s.rebuildPosition(tx.AccountID, tx.AssetID, domain.DayOf(tx.Date)); err != nil {
		s.log.Error().Err(err).
			Int64("account_id", tx.AccountID).
			Int64("asset_id", tx.AssetID).
			Msg("Failed to restore position after apply failure")
	}
}

func validateAssetTransaction(tx *domain.AssetTransaction) error {
	if !tx.Type.Valid() {
		return fmt.Errorf("unknown asset transaction type %q", tx.Type)
	}
	switch tx.Type {
	case domain.AssetTxBuy, domain.AssetTxSell:
		if !tx.Quantity.IsPositive() {
			return fmt.Errorf("quantity must be positive")
		}
	case domain.AssetTxPrice:
		if !tx.Price.IsPositive() {
			return fmt.Errorf("price must be positive")
		}
	case domain.AssetTxDividend:
		if tx.Quantity.IsNegative() {
			return fmt.Errorf("quantity must not be negative")
		}
	}
	if tx.Price.IsNegative() {
		return fmt.Errorf("price must not be negative")
	}
	if tx.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	return nil
}
