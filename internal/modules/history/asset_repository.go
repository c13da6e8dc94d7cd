package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AssetRepository handles daily position snapshot rows.
type AssetRepository struct {
	historyDB *sql.DB
	log       zerolog.Logger
}

// NewAssetRepository creates a new asset balance history repository
func NewAssetRepository(historyDB *sql.DB, log zerolog.Logger) *AssetRepository {
	return &AssetRepository{
		historyDB: historyDB,
		log:       log.With().Str("repo", "asset_balance_history").Logger(),
	}
}

const assetHistoryColumns = `id, account_id, asset_id, date, quantity, price, result`

// LatestOnOrBefore returns the newest snapshot for (account, asset) dated
// on or before day, or nil when none exists.
func (r *AssetRepository) LatestOnOrBefore(accountID, assetID int64, day time.Time) (*domain.AssetBalanceHistory, error) {
	row := r.historyDB.QueryRow(`
		SELECT `+assetHistoryColumns+` FROM asset_balance_history
		WHERE account_id = ? AND asset_id = ? AND date <= ?
		ORDER BY date DESC LIMIT 1`,
		accountID, assetID, domain.FormatDay(day))
	snapshot, err := scanAssetHistory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query asset history snapshot: %w", err)
	}
	return snapshot, nil
}

// ListByAsset returns snapshots for one position in a day range (inclusive;
// nil bounds are open), oldest first.
func (r *AssetRepository) ListByAsset(accountID, assetID int64, from, to *time.Time) ([]domain.AssetBalanceHistory, error) {
	query := `SELECT ` + assetHistoryColumns + ` FROM asset_balance_history WHERE account_id = ? AND asset_id = ?`
	args := []interface{}{accountID, assetID}
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
		return nil, fmt.Errorf("failed to query asset history: %w", err)
	}
	defer rows.Close()

	var snapshots []domain.AssetBalanceHistory
	for rows.Next() {
		snapshot, err := scanAssetHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset history: %w", err)
		}
		snapshots = append(snapshots, *snapshot)
	}
	return snapshots, rows.Err()
}

// DeleteFrom removes all snapshots for (account, asset) dated on or after
// fromDay.
func (r *AssetRepository) DeleteFrom(accountID, assetID int64, fromDay time.Time) error {
	_, err := r.historyDB.Exec(`
		DELETE FROM asset_balance_history
		WHERE account_id = ? AND asset_id = ? AND date >= ?`,
		accountID, assetID, domain.FormatDay(fromDay))
	if err != nil {
		return fmt.Errorf("failed to delete asset history: %w", err)
	}
	return nil
}

// AppendDays bulk-inserts snapshot rows inside one transaction.
func (r *AssetRepository) AppendDays(days []domain.AssetBalanceHistory) error {
	tx, err := r.historyDB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin asset history insert: %w", err)
	}
	defer tx.Rollback()

	for _, day := range days {
		if _, err := tx.Exec(`
			INSERT INTO asset_balance_history (account_id, asset_id, date, quantity, price, result)
			VALUES (?, ?, ?, ?, ?, ?)`,
			day.AccountID, day.AssetID, domain.FormatDay(day.Date),
			day.Quantity.String(), day.Price.String(), day.Result.String()); err != nil {
			return fmt.Errorf("failed to insert asset history row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit asset history insert: %w", err)
	}
	return nil
}

// PurgeAccount removes all position snapshots of an account.
func (r *AssetRepository) PurgeAccount(accountID int64) error {
	_, err := r.historyDB.Exec(
		`DELETE FROM asset_balance_history WHERE account_id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("failed to purge asset history: %w", err)
	}
	return nil
}

func scanAssetHistory(row interface{ Scan(...interface{}) error }) (*domain.AssetBalanceHistory, error) {
	var (
		snapshot domain.AssetBalanceHistory
		date     string
		quantity string
		price    string
		result   string
	)
	err := row.Scan(&snapshot.ID, &snapshot.AccountID, &snapshot.AssetID, &date, &quantity, &price, &result)
	if err != nil {
		return nil, err
	}
	parsed, err := domain.ParseDay(date)
	if err != nil {
		return nil, fmt.Errorf("invalid asset history date %q: %w", date, err)
	}
	snapshot.Date = parsed
	if snapshot.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("invalid quantity %q: %w", quantity, err)
	}
	if snapshot.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", price, err)
	}
	if snapshot.Result, err = decimal.NewFromString(result); err != nil {
		return nil, fmt.Errorf("invalid result %q: %w", result, err)
	}
	return &snapshot, nil
}
