// Package history is the snapshot store: daily cash and position history
// rows in history.db. Rows for closed days are append / delete-and-recreate
// only; nothing here updates a row in place.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AccountRepository handles daily cash snapshot rows.
type AccountRepository struct {
	historyDB *sql.DB
	log       zerolog.Logger
}

// NewAccountRepository creates a new account history repository
func NewAccountRepository(historyDB *sql.DB, log zerolog.Logger) *AccountRepository {
	return &AccountRepository{
		historyDB: historyDB,
		log:       log.With().Str("repo", "account_history").Logger(),
	}
}

// LatestOnOrBefore returns the newest snapshot dated on or before day, with
// its per-currency balances, or nil when none exists.
func (r *AccountRepository) LatestOnOrBefore(accountID int64, day time.Time) (*domain.AccountHistory, error) {
	var (
		history domain.AccountHistory
		date    string
	)
	err := r.historyDB.QueryRow(`
		SELECT id, account_id, date FROM account_history
		WHERE account_id = ? AND date <= ?
		ORDER BY date DESC LIMIT 1`,
		accountID, domain.FormatDay(day),
	).Scan(&history.ID, &history.AccountID, &date)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query history snapshot: %w", err)
	}
	parsed, err := domain.ParseDay(date)
	if err != nil {
		return nil, fmt.Errorf("invalid history date %q: %w", date, err)
	}
	history.Date = parsed

	balances, err := r.balancesOf(history.ID)
	if err != nil {
		return nil, err
	}
	history.Balances = balances
	return &history, nil
}

// ListByAccount returns snapshots in a day range (inclusive; nil bounds are
// open), oldest first, with balances attached.
func (r *AccountRepository) ListByAccount(accountID int64, from, to *time.Time) ([]domain.AccountHistory, error) {
	query := `SELECT id, account_id, date FROM account_history WHERE account_id = ?`
	args := []interface{}{accountID}
	if from != nil {
		query += ` AND date >= ?`
		args = append(args, domain.FormatDay(*from))
	}
	if to != nil {
		query += ` AND date <= ?`
		args = append(args, domain.FormatDay(*to))
	}
	query += ` ORDER BY date ASC`

	rows, err := r.historyDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var histories []domain.AccountHistory
	for rows.Next() {
		var (
			history domain.AccountHistory
			date    string
		)
		if err := rows.Scan(&history.ID, &history.AccountID, &date); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		parsed, err := domain.ParseDay(date)
		if err != nil {
			return nil, fmt.Errorf("invalid history date %q: %w", date, err)
		}
		history.Date = parsed
		histories = append(histories, history)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	for i := range histories {
		balances, err := r.balancesOf(histories[i].ID)
		if err != nil {
			return nil, err
		}
		histories[i].Balances = balances
	}
	return histories, nil
}

// Currencies returns every currency appearing in the account's history.
func (r *AccountRepository) Currencies(accountID int64) ([]string, error) {
	rows, err := r.historyDB.Query(`
		SELECT DISTINCT b.currency
		FROM account_history_balances b
		JOIN account_history h ON h.id = b.account_history_id
		WHERE h.account_id = ?`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history currencies: %w", err)
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

// DeleteFrom removes all snapshots dated on or after fromDay.
func (r *AccountRepository) DeleteFrom(accountID int64, fromDay time.Time) error {
	day := domain.FormatDay(fromDay)
	if _, err := r.historyDB.Exec(`
		DELETE FROM account_history_balances
		WHERE account_history_id IN (
			SELECT id FROM account_history WHERE account_id = ? AND date >= ?
		)`, accountID, day); err != nil {
		return fmt.Errorf("failed to delete history balances: %w", err)
	}
	if _, err := r.historyDB.Exec(
		`DELETE FROM account_history WHERE account_id = ? AND date >= ?`,
		accountID, day); err != nil {
		return fmt.Errorf("failed to delete history rows: %w", err)
	}
	return nil
}

// AppendDays bulk-inserts snapshot rows inside one transaction.
func (r *AccountRepository) AppendDays(accountID int64, days []domain.AccountHistory) error {
	tx, err := r.historyDB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin history insert: %w", err)
	}
	defer tx.Rollback()

	for _, day := range days {
		result, err := tx.Exec(
			`INSERT INTO account_history (account_id, date) VALUES (?, ?)`,
			accountID, domain.FormatDay(day.Date))
		if err != nil {
			return fmt.Errorf("failed to insert history row: %w", err)
		}
		historyID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get history id: %w", err)
		}
		for _, balance := range day.Balances {
			if _, err := tx.Exec(`
				INSERT INTO account_history_balances (account_history_id, currency, amount)
				VALUES (?, ?, ?)`,
				historyID, balance.Currency, balance.Amount.String()); err != nil {
				return fmt.Errorf("failed to insert history balance: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history insert: %w", err)
	}
	return nil
}

// PurgeAccount removes all snapshots of an account.
func (r *AccountRepository) PurgeAccount(accountID int64) error {
	if _, err := r.historyDB.Exec(`
		DELETE FROM account_history_balances
		WHERE account_history_id IN (
			SELECT id FROM account_history WHERE account_id = ?
		)`, accountID); err != nil {
		return fmt.Errorf("failed to purge history balances: %w", err)
	}
	if _, err := r.historyDB.Exec(
		`DELETE FROM account_history WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("failed to purge history rows: %w", err)
	}
	return nil
}

func (r *AccountRepository) balancesOf(historyID int64) ([]domain.AccountHistoryBalance, error) {
	rows, err := r.historyDB.Query(`
		SELECT id, account_history_id, currency, amount
		FROM account_history_balances
		WHERE account_history_id = ? ORDER BY currency`, historyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history balances: %w", err)
	}
	defer rows.Close()

	var balances []domain.AccountHistoryBalance
	for rows.Next() {
		var (
			balance domain.AccountHistoryBalance
			amount  string
		)
		if err := rows.Scan(&balance.ID, &balance.AccountHistoryID, &balance.Currency, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan history balance: %w", err)
		}
		parsed, err := parseAmount(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid history amount %q: %w", amount, err)
		}
		balance.Amount = parsed
		balances = append(balances, balance)
	}
	return balances, rows.Err()
}

func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
