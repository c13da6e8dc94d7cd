package ledger

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BalanceRepository handles live cash balance rows in portfolio.db.
type BalanceRepository struct {
	portfolioDB *sql.DB
	log         zerolog.Logger
}

// NewBalanceRepository creates a new account balance repository
func NewBalanceRepository(portfolioDB *sql.DB, log zerolog.Logger) *BalanceRepository {
	return &BalanceRepository{
		portfolioDB: portfolioDB,
		log:         log.With().Str("repo", "account_balances").Logger(),
	}
}

// Get returns the balance row for (account, currency), or nil when the
// currency was never seen.
func (r *BalanceRepository) Get(accountID int64, currency string) (*domain.AccountBalance, error) {
	var (
		balance domain.AccountBalance
		amount  string
	)
	err := r.portfolioDB.QueryRow(`
		SELECT id, account_id, currency, amount FROM account_balances
		WHERE account_id = ? AND currency = ?`,
		accountID, currency,
	).Scan(&balance.ID, &balance.AccountID, &balance.Currency, &amount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query balance: %w", err)
	}
	parsed, err := parseAmount(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid balance amount %q: %w", amount, err)
	}
	balance.Amount = parsed
	return &balance, nil
}

// GetAll returns all balance rows of an account, ordered by currency.
func (r *BalanceRepository) GetAll(accountID int64) ([]domain.AccountBalance, error) {
	rows, err := r.portfolioDB.Query(`
		SELECT id, account_id, currency, amount FROM account_balances
		WHERE account_id = ? ORDER BY currency`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var balances []domain.AccountBalance
	for rows.Next() {
		var (
			balance domain.AccountBalance
			amount  string
		)
		if err := rows.Scan(&balance.ID, &balance.AccountID, &balance.Currency, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		parsed, err := parseAmount(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid balance amount %q: %w", amount, err)
		}
		balance.Amount = parsed
		balances = append(balances, balance)
	}
	return balances, rows.Err()
}

// Upsert writes the balance for (account, currency), creating the row lazily.
func (r *BalanceRepository) Upsert(accountID int64, currency string, amount decimal.Decimal) error {
	_, err := r.portfolioDB.Exec(`
		INSERT INTO account_balances (account_id, currency, amount)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id, currency) DO UPDATE SET amount = excluded.amount`,
		accountID, currency, amount.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert balance: %w", err)
	}
	return nil
}

// ReplaceAll swaps the account's balance rows for the given state.
func (r *BalanceRepository) ReplaceAll(accountID int64, amounts map[string]decimal.Decimal) error {
	if _, err := r.portfolioDB.Exec(
		`DELETE FROM account_balances WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("failed to clear balances: %w", err)
	}
	// Stable order keeps inserts deterministic
	currencies := make([]string, 0, len(amounts))
	for currency := range amounts {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)
	for _, currency := range currencies {
		if err := r.Upsert(accountID, currency, amounts[currency]); err != nil {
			return err
		}
	}
	return nil
}

// DistinctCurrencies returns the currencies with a live balance row.
func (r *BalanceRepository) DistinctCurrencies(accountID int64) ([]string, error) {
	rows, err := r.portfolioDB.Query(
		`SELECT currency FROM account_balances WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance currencies: %w", err)
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

// DeleteByAccount removes all balance rows of an account.
func (r *BalanceRepository) DeleteByAccount(accountID int64) error {
	_, err := r.portfolioDB.Exec(`DELETE FROM account_balances WHERE account_id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete balances: %w", err)
	}
	return nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
