package positions

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BalanceRepository handles live position rows in portfolio.db.
type BalanceRepository struct {
	portfolioDB *sql.DB
	log         zerolog.Logger
}

// NewBalanceRepository creates a new asset balance repository
func NewBalanceRepository(portfolioDB *sql.DB, log zerolog.Logger) *BalanceRepository {
	return &BalanceRepository{
		portfolioDB: portfolioDB,
		log:         log.With().Str("repo", "asset_balances").Logger(),
	}
}

const assetBalanceColumns = `id, account_id, asset_id, quantity, price, average_price, result, first_event_date, last_save_date, last_transaction_date`

// Get returns the position row for (account, asset), or nil when the asset
// was never traded in the account.
func (r *BalanceRepository) Get(accountID, assetID int64) (*domain.AssetBalance, error) {
	row := r.portfolioDB.QueryRow(
		`SELECT `+assetBalanceColumns+` FROM asset_balances WHERE account_id = ? AND asset_id = ?`,
		accountID, assetID)
	balance, err := scanAssetBalance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query asset balance: %w", err)
	}
	return balance, nil
}

// GetAll returns all position rows of an account.
func (r *BalanceRepository) GetAll(accountID int64) ([]domain.AssetBalance, error) {
	return r.queryBalances(
		`SELECT `+assetBalanceColumns+` FROM asset_balances WHERE account_id = ? ORDER BY asset_id`,
		accountID)
}

// All returns every position row across all accounts.
func (r *BalanceRepository) All() ([]domain.AssetBalance, error) {
	return r.queryBalances(
		`SELECT ` + assetBalanceColumns + ` FROM asset_balances ORDER BY account_id, asset_id`)
}

// HoldersOf returns every position currently holding the asset.
func (r *BalanceRepository) HoldersOf(assetID int64) ([]domain.AssetBalance, error) {
	return r.queryBalances(
		`SELECT `+assetBalanceColumns+` FROM asset_balances WHERE asset_id = ? AND CAST(quantity AS REAL) > 0`,
		assetID)
}

// Upsert writes the full position state for (account, asset).
func (r *BalanceRepository) Upsert(balance *domain.AssetBalance) error {
	var (
		firstEvent interface{}
		lastSave   interface{}
		lastTx     interface{}
	)
	if balance.FirstEventDate != nil {
		firstEvent = domain.FormatDay(*balance.FirstEventDate)
	}
	if balance.LastSaveDate != nil {
		lastSave = domain.FormatDay(*balance.LastSaveDate)
	}
	if balance.LastTransactionDate != nil {
		lastTx = balance.LastTransactionDate.Unix()
	}
	_, err := r.portfolioDB.Exec(`
		INSERT INTO asset_balances (account_id, asset_id, quantity, price, average_price, result, first_event_date, last_save_date, last_transaction_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, asset_id) DO UPDATE SET
			quantity = excluded.quantity,
			price = excluded.price,
			average_price = excluded.average_price,
			result = excluded.result,
			first_event_date = excluded.first_event_date,
			last_save_date = excluded.last_save_date,
			last_transaction_date = excluded.last_transaction_date`,
		balance.AccountID, balance.AssetID, balance.Quantity.String(), balance.Price.String(),
		balance.AveragePrice.String(), balance.Result.String(), firstEvent, lastSave, lastTx,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert asset balance: %w", err)
	}
	return nil
}

// DeleteByAccount removes all position rows of an account.
func (r *BalanceRepository) DeleteByAccount(accountID int64) error {
	_, err := r.portfolioDB.Exec(`DELETE FROM asset_balances WHERE account_id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete asset balances: %w", err)
	}
	return nil
}

func (r *BalanceRepository) queryBalances(query string, args ...interface{}) ([]domain.AssetBalance, error) {
	rows, err := r.portfolioDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset balances: %w", err)
	}
	defer rows.Close()

	var balances []domain.AssetBalance
	for rows.Next() {
		balance, err := scanAssetBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset balance: %w", err)
		}
		balances = append(balances, *balance)
	}
	return balances, rows.Err()
}

func scanAssetBalance(row rowScanner) (*domain.AssetBalance, error) {
	var (
		balance    domain.AssetBalance
		quantity   string
		price      string
		average    string
		result     string
		firstEvent sql.NullString
		lastSave   sql.NullString
		lastTx     sql.NullInt64
	)
	err := row.Scan(&balance.ID, &balance.AccountID, &balance.AssetID,
		&quantity, &price, &average, &result, &firstEvent, &lastSave, &lastTx)
	if err != nil {
		return nil, err
	}
	if balance.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("invalid quantity %q: %w", quantity, err)
	}
	if balance.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", price, err)
	}
	if balance.AveragePrice, err = decimal.NewFromString(average); err != nil {
		return nil, fmt.Errorf("invalid average price %q: %w", average, err)
	}
	if balance.Result, err = decimal.NewFromString(result); err != nil {
		return nil, fmt.Errorf("invalid result %q: %w", result, err)
	}
	if firstEvent.Valid {
		day, err := domain.ParseDay(firstEvent.String)
		if err != nil {
			return nil, fmt.Errorf("invalid first event date %q: %w", firstEvent.String, err)
		}
		balance.FirstEventDate = &day
	}
	if lastSave.Valid {
		day, err := domain.ParseDay(lastSave.String)
		if err != nil {
			return nil, fmt.Errorf("invalid last save date %q: %w", lastSave.String, err)
		}
		balance.LastSaveDate = &day
	}
	if lastTx.Valid {
		t := time.Unix(lastTx.Int64, 0)
		balance.LastTransactionDate = &t
	}
	return &balance, nil
}
