// Package assets manages the instrument and exchange registries.
package assets

import (
	"database/sql"
	"fmt"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/rs/zerolog"
)

// CryptoExchangeCode marks the pseudo-exchange for crypto assets; it has no
// trading hours, so price updates are never gated for it.
const CryptoExchangeCode = "CC"

// ExchangeRepository handles trading venue rows.
type ExchangeRepository struct {
	portfolioDB *sql.DB
	log         zerolog.Logger
}

// NewExchangeRepository creates a new exchange repository
func NewExchangeRepository(portfolioDB *sql.DB, log zerolog.Logger) *ExchangeRepository {
	return &ExchangeRepository{
		portfolioDB: portfolioDB,
		log:         log.With().Str("repo", "exchanges").Logger(),
	}
}

const exchangeColumns = `id, name, mic, country, code, timezone, opening_hour, closing_hour`

// Create inserts a new exchange.
func (r *ExchangeRepository) Create(exchange *domain.Exchange) error {
	result, err := r.portfolioDB.Exec(`
		INSERT INTO exchanges (name, mic, country, code, timezone, opening_hour, closing_hour)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		exchange.Name, exchange.MIC, exchange.Country, exchange.Code,
		exchange.Timezone, exchange.OpeningHour, exchange.ClosingHour,
	)
	if err != nil {
		return fmt.Errorf("failed to insert exchange: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get exchange id: %w", err)
	}
	exchange.ID = id
	return nil
}

// GetByID returns one exchange or domain.ErrExchangeNotFound.
func (r *ExchangeRepository) GetByID(id int64) (*domain.Exchange, error) {
	row := r.portfolioDB.QueryRow(`SELECT `+exchangeColumns+` FROM exchanges WHERE id = ?`, id)
	return r.scanOne(row)
}

// GetByCode returns the exchange with a gateway code, or
// domain.ErrExchangeNotFound.
func (r *ExchangeRepository) GetByCode(code string) (*domain.Exchange, error) {
	row := r.portfolioDB.QueryRow(`SELECT `+exchangeColumns+` FROM exchanges WHERE code = ?`, code)
	return r.scanOne(row)
}

// GetAll returns every registered exchange.
func (r *ExchangeRepository) GetAll() ([]domain.Exchange, error) {
	rows, err := r.portfolioDB.Query(`SELECT ` + exchangeColumns + ` FROM exchanges ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []domain.Exchange
	for rows.Next() {
		var exchange domain.Exchange
		if err := rows.Scan(&exchange.ID, &exchange.Name, &exchange.MIC, &exchange.Country,
			&exchange.Code, &exchange.Timezone, &exchange.OpeningHour, &exchange.ClosingHour); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		exchanges = append(exchanges, exchange)
	}
	return exchanges, rows.Err()
}

func (r *ExchangeRepository) scanOne(row *sql.Row) (*domain.Exchange, error) {
	var exchange domain.Exchange
	err := row.Scan(&exchange.ID, &exchange.Name, &exchange.MIC, &exchange.Country,
		&exchange.Code, &exchange.Timezone, &exchange.OpeningHour, &exchange.ClosingHour)
	if err == sql.ErrNoRows {
		return nil, domain.ErrExchangeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query exchange: %w", err)
	}
	return &exchange, nil
}
