// Package domain contains the core ledger entities and business rules.
// The domain layer is pure: no database, HTTP, or logging dependencies.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is one portfolio account owned by a user. It carries the two
// bookkeeping watermarks the balance engine relies on:
//
//   - LastTransactionDate: latest transaction timestamp ever applied.
//   - LastSaveDate: the day through which history snapshots are finalized
//     (inclusive). Always strictly before today.
//
// XIRR is a cached derived value recomputed asynchronously after writes.
type Account struct {
	ID                  int64
	UserID              int64
	Name                string
	LastTransactionDate *time.Time
	LastSaveDate        *time.Time
	XIRR                *decimal.Decimal
	CreatedAt           time.Time
}

// AccountPreferences holds per-account currency settings.
type AccountPreferences struct {
	AccountID    int64
	BaseCurrency string
	TaxCurrency  string
}

// AccountTransactionType enumerates cash transaction types.
type AccountTransactionType string

const (
	TxDeposit    AccountTransactionType = "deposit"
	TxWithdrawal AccountTransactionType = "withdrawal"
	TxBuy        AccountTransactionType = "buy"
	TxSell       AccountTransactionType = "sell"
	TxDividend   AccountTransactionType = "dividend"
	TxCost       AccountTransactionType = "cost"
)

// Valid reports whether the type is a known cash transaction type.
func (t AccountTransactionType) Valid() bool {
	switch t {
	case TxDeposit, TxWithdrawal, TxBuy, TxSell, TxDividend, TxCost:
		return true
	}
	return false
}

// Credit reports whether the type increases the cash balance.
// Deposits, sale proceeds, and dividends credit the account; withdrawals,
// purchase costs, and fees debit it.
func (t AccountTransactionType) Credit() bool {
	switch t {
	case TxDeposit, TxSell, TxDividend:
		return true
	}
	return false
}

// AccountTransaction is one cash movement. Amount is always positive; the
// sign is implied by Type. CorrelationID links cash rows generated as a side
// effect of an asset trade back to the originating AssetTransaction.
type AccountTransaction struct {
	ID            int64
	AccountID     int64
	Type          AccountTransactionType
	Amount        decimal.Decimal
	Currency      string
	Date          time.Time
	CorrelationID *int64
	CreatedAt     time.Time
}

// Signed returns the amount with the type's sign applied.
func (t *AccountTransaction) Signed() decimal.Decimal {
	if t.Type.Credit() {
		return t.Amount
	}
	return t.Amount.Neg()
}

// AccountBalance is the live cash amount for one (account, currency) pair.
// Created lazily on the first transaction in that currency.
type AccountBalance struct {
	ID        int64
	AccountID int64
	Currency  string
	Amount    decimal.Decimal
}

// Exchange describes a trading venue. Opening and closing hours are local
// wall-clock times ("15:04") in the exchange's own timezone; the price update
// job uses them to decide when end-of-day prices are worth fetching.
type Exchange struct {
	ID          int64
	Name        string
	MIC         string
	Country     string
	Code        string
	Timezone    string
	OpeningHour string
	ClosingHour string
}

// AssetType distinguishes stocks from crypto assets.
type AssetType string

const (
	AssetStock  AssetType = "STOCK"
	AssetCrypto AssetType = "CRYPTO"
)

// Asset is a tradeable instrument, identified externally by ISIN and by
// (ticker, exchange) for gateway lookups.
type Asset struct {
	ID         int64
	ISIN       string
	Ticker     string
	Name       string
	Currency   string
	Type       AssetType
	ExchangeID int64
}

// AssetTransactionType enumerates position transaction types. The "price"
// type is a mark-to-market record written by the price update job; it moves
// no cash and no quantity.
type AssetTransactionType string

const (
	AssetTxBuy      AssetTransactionType = "buy"
	AssetTxSell     AssetTransactionType = "sell"
	AssetTxPrice    AssetTransactionType = "price"
	AssetTxDividend AssetTransactionType = "dividend"
)

// Valid reports whether the type is a known asset transaction type.
func (t AssetTransactionType) Valid() bool {
	switch t {
	case AssetTxBuy, AssetTxSell, AssetTxPrice, AssetTxDividend:
		return true
	}
	return false
}

// AssetTransaction is one event on an (account, asset) position.
// PayCurrency/ExchangeRate/Commission are optional trade settlement details
// carried by broker imports.
type AssetTransaction struct {
	ID           int64
	AccountID    int64
	AssetID      int64
	Type         AssetTransactionType
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	PayCurrency  *string
	ExchangeRate *decimal.Decimal
	Commission   *decimal.Decimal
	Date         time.Time
	CreatedAt    time.Time
}

// AssetBalance is the live position for one (account, asset) pair.
//
// Price is the latest mark, AveragePrice the FIFO cost basis, and Result the
// unrealized gain in percent. FirstEventDate is the earliest day for which
// price history is known; LastSaveDate the day through which the position's
// history snapshot is finalized.
type AssetBalance struct {
	ID                  int64
	AccountID           int64
	AssetID             int64
	Quantity            decimal.Decimal
	Price               decimal.Decimal
	AveragePrice        decimal.Decimal
	Result              decimal.Decimal
	FirstEventDate      *time.Time
	LastSaveDate        *time.Time
	LastTransactionDate *time.Time
}

// AccountHistory is one snapshotted day of an account's cash state.
// Rows exist only for closed days and are never mutated; a rebuild deletes
// and regenerates them.
type AccountHistory struct {
	ID        int64
	AccountID int64
	Date      time.Time
	Balances  []AccountHistoryBalance
}

// AccountHistoryBalance is the per-currency amount inside one snapshot.
type AccountHistoryBalance struct {
	ID               int64
	AccountHistoryID int64
	Currency         string
	Amount           decimal.Decimal
}

// AssetBalanceHistory is one snapshotted day of a position.
type AssetBalanceHistory struct {
	ID        int64
	AccountID int64
	AssetID   int64
	Date      time.Time
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Result    decimal.Decimal
}
