// Package accounts manages portfolio accounts and their preferences.
package accounts

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Repository handles account database operations
type Repository struct {
	portfolioDB *sql.DB
	log         zerolog.Logger
}

// NewRepository creates a new account repository
func NewRepository(portfolioDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		portfolioDB: portfolioDB,
		log:         log.With().Str("repo", "accounts").Logger(),
	}
}

const accountColumns = `id, user_id, name, last_transaction_date, last_save_date, xirr, created_at`

// Create inserts a new account and returns it with its assigned ID.
func (r *Repository) Create(userID int64, name string) (*domain.Account, error) {
	now := time.Now()
	result, err := r.portfolioDB.Exec(
		`INSERT INTO accounts (user_id, name, created_at) VALUES (?, ?, ?)`,
		userID, name, now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get account id: %w", err)
	}
	return &domain.Account{
		ID:        id,
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
	}, nil
}

// GetByID returns one account or domain.ErrAccountNotFound.
func (r *Repository) GetByID(id int64) (*domain.Account, error) {
	row := r.portfolioDB.QueryRow(
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return account, nil
}

// GetAllByUser returns all accounts belonging to a user.
func (r *Repository) GetAllByUser(userID int64) ([]domain.Account, error) {
	return r.queryAccounts(
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? ORDER BY id`, userID)
}

// GetAll returns every account. Used by the daily jobs.
func (r *Repository) GetAll() ([]domain.Account, error) {
	return r.queryAccounts(`SELECT ` + accountColumns + ` FROM accounts ORDER BY id`)
}

func (r *Repository) queryAccounts(query string, args ...interface{}) ([]domain.Account, error) {
	rows, err := r.portfolioDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// UpdateName renames an account.
func (r *Repository) UpdateName(id int64, name string) error {
	result, err := r.portfolioDB.Exec(`UPDATE accounts SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("failed to update account name: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// SetLastTransactionDate updates the last transaction watermark.
func (r *Repository) SetLastTransactionDate(id int64, date *time.Time) error {
	var value interface{}
	if date != nil {
		value = date.Unix()
	}
	_, err := r.portfolioDB.Exec(
		`UPDATE accounts SET last_transaction_date = ? WHERE id = ?`, value, id)
	if err != nil {
		return fmt.Errorf("failed to update last transaction date: %w", err)
	}
	return nil
}

// SetLastSaveDate updates the day through which history is finalized.
func (r *Repository) SetLastSaveDate(id int64, day *time.Time) error {
	var value interface{}
	if day != nil {
		value = domain.FormatDay(*day)
	}
	_, err := r.portfolioDB.Exec(
		`UPDATE accounts SET last_save_date = ? WHERE id = ?`, value, id)
	if err != nil {
		return fmt.Errorf("failed to update last save date: %w", err)
	}
	return nil
}

// SetXIRR stores the cached annualized return. nil clears it.
func (r *Repository) SetXIRR(id int64, xirr *decimal.Decimal) error {
	var value interface{}
	if xirr != nil {
		value = xirr.String()
	}
	_, err := r.portfolioDB.Exec(`UPDATE accounts SET xirr = ? WHERE id = ?`, value, id)
	if err != nil {
		return fmt.Errorf("failed to update xirr: %w", err)
	}
	return nil
}

// Delete removes an account and its preferences.
func (r *Repository) Delete(id int64) error {
	result, err := r.portfolioDB.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return domain.ErrAccountNotFound
	}
	if _, err := r.portfolioDB.Exec(
		`DELETE FROM account_preferences WHERE account_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete account preferences: %w", err)
	}
	return nil
}

// GetPreferences returns stored preferences, or sql.ErrNoRows wrapped as
// a nil result when the account never customized them.
func (r *Repository) GetPreferences(accountID int64) (*domain.AccountPreferences, error) {
	var prefs domain.AccountPreferences
	err := r.portfolioDB.QueryRow(
		`SELECT account_id, base_currency, tax_currency FROM account_preferences WHERE account_id = ?`,
		accountID,
	).Scan(&prefs.AccountID, &prefs.BaseCurrency, &prefs.TaxCurrency)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	return &prefs, nil
}

// UpsertPreferences stores preferences, replacing any existing row.
func (r *Repository) UpsertPreferences(prefs *domain.AccountPreferences) error {
	_, err := r.portfolioDB.Exec(`
		INSERT INTO account_preferences (account_id, base_currency, tax_currency)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			base_currency = excluded.base_currency,
			tax_currency = excluded.tax_currency`,
		prefs.AccountID, prefs.BaseCurrency, prefs.TaxCurrency,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert preferences: %w", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		account   domain.Account
		lastTx    sql.NullInt64
		lastSave  sql.NullString
		xirr      sql.NullString
		createdAt int64
	)
	err := row.Scan(&account.ID, &account.UserID, &account.Name, &lastTx, &lastSave, &xirr, &createdAt)
	if err != nil {
		return nil, err
	}
	account.CreatedAt = time.Unix(createdAt, 0)
	if lastTx.Valid {
		t := time.Unix(lastTx.Int64, 0)
		account.LastTransactionDate = &t
	}
	if lastSave.Valid {
		day, err := domain.ParseDay(lastSave.String)
		if err != nil {
			return nil, fmt.Errorf("invalid last save date %q: %w", lastSave.String, err)
		}
		account.LastSaveDate = &day
	}
	if xirr.Valid {
		value, err := decimal.NewFromString(xirr.String)
		if err != nil {
			return nil, fmt.Errorf("invalid xirr %q: %w", xirr.String, err)
		}
		account.XIRR = &value
	}
	return &account, nil
}
