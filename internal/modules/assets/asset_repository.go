package assets

import (
	"database/sql"
	"fmt"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/rs/zerolog"
)

// AssetRepository handles instrument rows.
type AssetRepository struct {
	portfolioDB *sql.DB
	log         zerolog.Logger
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(portfolioDB *sql.DB, log zerolog.Logger) *AssetRepository {
	return &AssetRepository{
		portfolioDB: portfolioDB,
		log:         log.With().Str("repo", "assets").Logger(),
	}
}

const assetColumns = `id, isin, ticker, name, currency, type, exchange_id`

// Create inserts a new asset.
func (r *AssetRepository) Create(asset *domain.Asset) error {
	result, err := r.portfolioDB.Exec(`
		INSERT INTO assets (isin, ticker, name, currency, type, exchange_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		asset.ISIN, asset.Ticker, asset.Name, asset.Currency, string(asset.Type), asset.ExchangeID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert asset: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get asset id: %w", err)
	}
	asset.ID = id
	return nil
}

// GetByID returns one asset or domain.ErrAssetNotFound.
func (r *AssetRepository) GetByID(id int64) (*domain.Asset, error) {
	row := r.portfolioDB.QueryRow(`SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	return r.scanOne(row)
}

// GetByISIN returns the asset with an ISIN, or domain.ErrAssetNotFound.
func (r *AssetRepository) GetByISIN(isin string) (*domain.Asset, error) {
	row := r.portfolioDB.QueryRow(`SELECT `+assetColumns+` FROM assets WHERE isin = ?`, isin)
	return r.scanOne(row)
}

// GetByTickerAndExchange returns the asset listed as ticker on an exchange,
// or domain.ErrAssetNotFound.
func (r *AssetRepository) GetByTickerAndExchange(ticker string, exchangeID int64) (*domain.Asset, error) {
	row := r.portfolioDB.QueryRow(
		`SELECT `+assetColumns+` FROM assets WHERE ticker = ? AND exchange_id = ?`,
		ticker, exchangeID)
	return r.scanOne(row)
}

// GetAll returns every registered asset.
func (r *AssetRepository) GetAll() ([]domain.Asset, error) {
	rows, err := r.portfolioDB.Query(`SELECT ` + assetColumns + ` FROM assets ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var result []domain.Asset
	for rows.Next() {
		var (
			asset     domain.Asset
			assetType string
		)
		if err := rows.Scan(&asset.ID, &asset.ISIN, &asset.Ticker, &asset.Name,
			&asset.Currency, &assetType, &asset.ExchangeID); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		asset.Type = domain.AssetType(assetType)
		result = append(result, asset)
	}
	return result, rows.Err()
}

func (r *AssetRepository) scanOne(row *sql.Row) (*domain.Asset, error) {
	var (
		asset     domain.Asset
		assetType string
	)
	err := row.Scan(&asset.ID, &asset.ISIN, &asset.Ticker, &asset.Name,
		&asset.Currency, &assetType, &asset.ExchangeID)
	if err == sql.ErrNoRows {
		return nil, domain.ErrAssetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query asset: %w", err)
	}
	asset.Type = domain.AssetType(assetType)
	return &asset, nil
}
