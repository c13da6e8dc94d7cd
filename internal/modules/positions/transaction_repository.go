// Package positions is the asset balance engine: it owns asset transactions
// and per-asset position balances, mirrors the cash engine's incremental
// apply / rebuild split, and runs the price update job.
package positions

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TransactionRepository handles asset transaction database operations
type TransactionRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewTransactionRepository creates a new asset transaction repository
func NewTransactionRepository(ledgerDB *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "asset_transactions").Logger(),
	}
}

const assetTxColumns = `id, account_id, asset_id, type, quantity, price, pay_currency, exchange_rate, commission, date, created_at`

// Insert stores a transaction and fills in its ID and creation time.
func (r *TransactionRepository) Insert(tx *domain.AssetTransaction) error {
	tx.CreatedAt = time.Now()
	var (
		rate       interface{}
		commission interface{}
	)
	if tx.ExchangeRate != nil {
		rate = tx.ExchangeRate.String()
	}
	if tx.Commission != nil {
		commission = tx.Commission.String()
	}
	result, err := r.ledgerDB.Exec(`
		INSERT INTO asset_transactions (account_id, asset_id, type, quantity, price, pay_currency, exchange_rate, commission, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.AccountID, tx.AssetID, string(tx.Type), tx.Quantity.String(), tx.Price.String(),
		tx.PayCurrency, rate, commission, tx.Date.Unix(), tx.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert asset transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get asset transaction id: %w", err)
	}
	tx.ID = id
	return nil
}

// GetByID returns one transaction or domain.ErrTransactionNotFound.
func (r *TransactionRepository) GetByID(id int64) (*domain.AssetTransaction, error) {
	row := r.ledgerDB.QueryRow(
		`SELECT `+assetTxColumns+` FROM asset_transactions WHERE id = ?`, id)
	tx, err := scanAssetTransaction(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query asset transaction: %w", err)
	}
	return tx, nil
}

// Update rewrites a transaction's mutable fields.
func (r *TransactionRepository) Update(tx *domain.AssetTransaction) error {
	var (
		rate       interface{}
		commission interface{}
	)
	if tx.ExchangeRate != nil {
		rate = tx.ExchangeRate.String()
	}
	if tx.Commission != nil {
		commission = tx.Commission.String()
	}
	result, err := r.ledgerDB.Exec(`
		UPDATE asset_transactions
		SET type = ?, quantity = ?, price = ?, pay_currency = ?, exchange_rate = ?, commission = ?, date = ?
		WHERE id = ?`,
		string(tx.Type), tx.Quantity.String(), tx.Price.String(),
		tx.PayCurrency, rate, commission, tx.Date.Unix(), tx.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update asset transaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

// Delete removes one transaction.
func (r *TransactionRepository) Delete(id int64) error {
	result, err := r.ledgerDB.Exec(`DELETE FROM asset_transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete asset transaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

// ListByPosition returns all transactions for (account, asset) in the
// deterministic replay order: date ascending, id ascending.
func (r *TransactionRepository) ListByPosition(accountID, assetID int64) ([]domain.AssetTransaction, error) {
	return r.queryTransactions(`
		SELECT `+assetTxColumns+` FROM asset_transactions
		WHERE account_id = ? AND asset_id = ? ORDER BY date ASC, id ASC`,
		accountID, assetID)
}

// ListByAccount returns an account's transactions, newest first. Price
// marks written by the price update job are excluded; they are bookkeeping
// rows, not user activity.
func (r *TransactionRepository) ListByAccount(accountID int64) ([]domain.AssetTransaction, error) {
	return r.queryTransactions(`
		SELECT `+assetTxColumns+` FROM asset_transactions
		WHERE account_id = ? AND type != ? ORDER BY date DESC, id DESC`,
		accountID, string(domain.AssetTxPrice))
}

// EarliestDate returns the oldest transaction timestamp for the position,
// or nil when it has none.
func (r *TransactionRepository) EarliestDate(accountID, assetID int64) (*time.Time, error) {
	return r.boundaryDate(accountID, assetID, "MIN")
}

// LatestDate returns the newest transaction timestamp for the position, or
// nil when it has none.
func (r *TransactionRepository) LatestDate(accountID, assetID int64) (*time.Time, error) {
	return r.boundaryDate(accountID, assetID, "MAX")
}

func (r *TransactionRepository) boundaryDate(accountID, assetID int64, agg string) (*time.Time, error) {
	var unix sql.NullInt64
	err := r.ledgerDB.QueryRow(
		`SELECT `+agg+`(date) FROM asset_transactions WHERE account_id = ? AND asset_id = ?`,
		accountID, assetID,
	).Scan(&unix)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset transaction boundary: %w", err)
	}
	if !unix.Valid {
		return nil, nil
	}
	t := time.Unix(unix.Int64, 0)
	return &t, nil
}

// DeleteByAccount removes all asset transactions of an account.
func (r *TransactionRepository) DeleteByAccount(accountID int64) error {
	_, err := r.ledgerDB.Exec(`DELETE FROM asset_transactions WHERE account_id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete asset transactions: %w", err)
	}
	return nil
}

func (r *TransactionRepository) queryTransactions(query string, args ...interface{}) ([]domain.AssetTransaction, error) {
	rows, err := r.ledgerDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.AssetTransaction
	for rows.Next() {
		tx, err := scanAssetTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset transaction: %w", err)
		}
		txs = append(txs, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating asset transactions: %w", err)
	}
	return txs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAssetTransaction(row rowScanner) (*domain.AssetTransaction, error) {
	var (
		tx          domain.AssetTransaction
		txType      string
		quantity    string
		price       string
		payCurrency sql.NullString
		rate        sql.NullString
		commission  sql.NullString
		date        int64
		createdAt   int64
	)
	err := row.Scan(&tx.ID, &tx.AccountID, &tx.AssetID, &txType, &quantity, &price,
		&payCurrency, &rate, &commission, &date, &createdAt)
	if err != nil {
		return nil, err
	}
	tx.Type = domain.AssetTransactionType(txType)
	if tx.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("invalid quantity %q: %w", quantity, err)
	}
	if tx.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", price, err)
	}
	if payCurrency.Valid {
		tx.PayCurrency = &payCurrency.String
	}
	if rate.Valid {
		parsed, err := decimal.NewFromString(rate.String)
		if err != nil {
			return nil, fmt.Errorf("invalid exchange rate %q: %w", rate.String, err)
		}
		tx.ExchangeRate = &parsed
	}
	if commission.Valid {
		parsed, err := decimal.NewFromString(commission.String)
		if err != nil {
			return nil, fmt.Errorf("invalid commission %q: %w", commission.String, err)
		}
		tx.Commission = &parsed
	}
	tx.Date = time.Unix(date, 0)
	tx.CreatedAt = time.Unix(createdAt, 0)
	return &tx, nil
}
