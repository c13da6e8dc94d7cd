// Package ledger is the cash balance engine: it owns account transactions,
// per-currency cash balances, and the snapshot-seeded rebuild walk.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/rs/zerolog"
)

// TransactionRepository handles account transaction database operations
type TransactionRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewTransactionRepository creates a new account transaction repository
func NewTransactionRepository(ledgerDB *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "account_transactions").Logger(),
	}
}

const txColumns = `id, account_id, type, amount, currency, date, correlation_id, created_at`

// Insert stores a transaction and fills in its ID and creation time.
func (r *TransactionRepository) Insert(tx *domain.AccountTransaction) error {
	tx.CreatedAt = time.Now()
	result, err := r.ledgerDB.Exec(`
		INSERT INTO account_transactions (account_id, type, amount, currency, date, correlation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.AccountID, string(tx.Type), tx.Amount.String(), tx.Currency,
		tx.Date.Unix(), tx.CorrelationID, tx.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert account transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get transaction id: %w", err)
	}
	tx.ID = id
	return nil
}

// GetByID returns one transaction or domain.ErrTransactionNotFound.
func (r *TransactionRepository) GetByID(id int64) (*domain.AccountTransaction, error) {
	row := r.ledgerDB.QueryRow(
		`SELECT `+txColumns+` FROM account_transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	return tx, nil
}

// Update rewrites a transaction's mutable fields.
func (r *TransactionRepository) Update(tx *domain.AccountTransaction) error {
	result, err := r.ledgerDB.Exec(`
		UPDATE account_transactions
		SET type = ?, amount = ?, currency = ?, date = ?
		WHERE id = ?`,
		string(tx.Type), tx.Amount.String(), tx.Currency, tx.Date.Unix(), tx.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
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
	result, err := r.ledgerDB.Exec(`DELETE FROM account_transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
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

// ListByAccount returns all transactions of an account, newest first.
func (r *TransactionRepository) ListByAccount(accountID int64) ([]domain.AccountTransaction, error) {
	return r.queryTransactions(`
		SELECT `+txColumns+` FROM account_transactions
		WHERE account_id = ? ORDER BY date DESC, id DESC`, accountID)
}

// ListFrom returns all transactions dated on or after fromDay, in the
// deterministic replay order: date ascending, id ascending.
func (r *TransactionRepository) ListFrom(accountID int64, fromDay time.Time) ([]domain.AccountTransaction, error) {
	return r.queryTransactions(`
		SELECT `+txColumns+` FROM account_transactions
		WHERE account_id = ? AND date >= ? ORDER BY date ASC, id ASC`,
		accountID, domain.DayOf(fromDay).Unix())
}

// ListByCorrelation returns cash transactions generated by one asset trade.
func (r *TransactionRepository) ListByCorrelation(correlationID int64) ([]domain.AccountTransaction, error) {
	return r.queryTransactions(`
		SELECT `+txColumns+` FROM account_transactions
		WHERE correlation_id = ? ORDER BY date ASC, id ASC`, correlationID)
}

// EarliestDate returns the oldest transaction timestamp, or nil when the
// account has no transactions.
func (r *TransactionRepository) EarliestDate(accountID int64) (*time.Time, error) {
	return r.boundaryDate(accountID, "MIN")
}

// LatestDate returns the newest transaction timestamp, or nil when the
// account has no transactions.
func (r *TransactionRepository) LatestDate(accountID int64) (*time.Time, error) {
	return r.boundaryDate(accountID, "MAX")
}

func (r *TransactionRepository) boundaryDate(accountID int64, agg string) (*time.Time, error) {
	var unix sql.NullInt64
	err := r.ledgerDB.QueryRow(
		`SELECT `+agg+`(date) FROM account_transactions WHERE account_id = ?`, accountID,
	).Scan(&unix)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction date boundary: %w", err)
	}
	if !unix.Valid {
		return nil, nil
	}
	t := time.Unix(unix.Int64, 0)
	return &t, nil
}

// DistinctCurrencies returns every currency the account ever transacted in.
func (r *TransactionRepository) DistinctCurrencies(accountID int64) ([]string, error) {
	rows, err := r.ledgerDB.Query(
		`SELECT DISTINCT currency FROM account_transactions WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query currencies: %w", err)
	}
	defer rows.Close()

	var currencies []string
	for rows.Next() {
		var currency string
		if err := rows.Scan(&currency); err != nil {
			return nil, fmt.Errorf("failed to scan currency: %w", err)
		}
		currencies = append(currencies, currency)
	}
	return currencies, rows.Err()
}

// DeleteByAccount removes all transactions of an account.
func (r *TransactionRepository) DeleteByAccount(accountID int64) error {
	_, err := r.ledgerDB.Exec(`DELETE FROM account_transactions WHERE account_id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete account transactions: %w", err)
	}
	return nil
}

func (r *TransactionRepository) queryTransactions(query string, args ...interface{}) ([]domain.AccountTransaction, error) {
	rows, err := r.ledgerDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.AccountTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*domain.AccountTransaction, error) {
	var (
		tx            domain.AccountTransaction
		txType        string
		amount        string
		date          int64
		correlationID sql.NullInt64
		createdAt     int64
	)
	err := row.Scan(&tx.ID, &tx.AccountID, &txType, &amount, &tx.Currency, &date, &correlationID, &createdAt)
	if err != nil {
		return nil, err
	}
	tx.Type = domain.AccountTransactionType(txType)
	parsed, err := parseAmount(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	tx.Amount = parsed
	tx.Date = time.Unix(date, 0)
	tx.CreatedAt = time.Unix(createdAt, 0)
	if correlationID.Valid {
		tx.CorrelationID = &correlationID.Int64
	}
	return &tx, nil
}
