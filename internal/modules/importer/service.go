package importer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/jakub-mrow/AMS-backend/internal/modules/assets"
	"github.com/jakub-mrow/AMS-backend/internal/modules/positions"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SkippedRow records one import row that could not be executed.
type SkippedRow struct {
	Line   int    `json:"line"`
	Ticker string `json:"ticker,omitempty"`
	ISIN   string `json:"isin,omitempty"`
	Reason string `json:"reason"`
}

// Result summarizes one import batch.
type Result struct {
	BatchID  string       `json:"batch_id"`
	Imported int          `json:"imported"`
	Skipped  []SkippedRow `json:"skipped,omitempty"`
}

// Service runs broker file imports.
type Service struct {
	positionSvc *positions.Service
	assetSvc    *assets.Service
	formats     map[string]ParseFunc
	log         zerolog.Logger
}

// NewService creates a new import service with the built-in formats
// registered.
func NewService(positionSvc *positions.Service, assetSvc *assets.Service, log zerolog.Logger) *Service {
	return &Service{
		positionSvc: positionSvc,
		assetSvc:    assetSvc,
		formats:     defaultFormats(),
		log:         log.With().Str("service", "importer").Logger(),
	}
}

// Register adds or replaces a broker format parser.
func (s *Service) Register(format string, parse ParseFunc) {
	s.formats[format] = parse
}

// Formats lists the registered format names.
func (s *Service) Formats() []string {
	names := make([]string, 0, len(s.formats))
	for name := range s.formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Import parses a broker export and executes its rows against the account.
// A malformed file is rejected whole before anything is written. Rows whose
// instrument cannot be resolved are skipped and reported; any other
// execution failure aborts the batch.
func (s *Service) Import(accountID int64, format string, data []byte) (*Result, error) {
	parse, ok := s.formats[format]
	if !ok {
		return nil, fmt.Errorf("%w: unknown format %q", domain.ErrIncorrectFormat, format)
	}
	rows, err := parse(data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: file contains no rows", domain.ErrIncorrectFormat)
	}

	// Chronological order keeps each insert incremental instead of forcing
	// a rebuild per backdated row.
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return rows[order[a]].Date.Before(rows[order[b]].Date)
	})

	result := &Result{BatchID: uuid.NewString()}
	log := s.log.With().Str("batch_id", result.BatchID).Int64("account_id", accountID).Logger()

	for _, idx := range order {
		row := rows[idx]
		if err := s.executeRow(accountID, &row); err != nil {
			if errors.Is(err, domain.ErrUnknownAsset) || errors.Is(err, domain.ErrAssetNotFound) {
				log.Warn().
					Str("ticker", row.Ticker).
					Str("isin", row.ISIN).
					Msg("Skipping import row, unknown asset")
				result.Skipped = append(result.Skipped, SkippedRow{
					Line:   idx + 2,
					Ticker: row.Ticker,
					ISIN:   row.ISIN,
					Reason: "unknown asset",
				})
				continue
			}
			return nil, fmt.Errorf("failed to import row %d: %w", idx+2, err)
		}
		result.Imported++
	}

	log.Info().
		Str("format", format).
		Int("imported", result.Imported).
		Int("skipped", len(result.Skipped)).
		Msg("Import batch finished")
	return result, nil
}

func (s *Service) executeRow(accountID int64, row *Row) error {
	if row.Ticker == "" && row.ISIN != "" {
		asset, err := s.assetSvc.ByISIN(row.ISIN)
		if err != nil {
			return err
		}
		_, err = s.positionSvc.AddTransaction(&domain.AssetTransaction{
			AccountID:    accountID,
			AssetID:      asset.ID,
			Type:         row.Type,
			Quantity:     row.Quantity,
			Price:        row.Price,
			PayCurrency:  row.PayCurrency,
			ExchangeRate: row.ExchangeRate,
			Commission:   row.Commission,
			Date:         row.Date,
		})
		return err
	}
	_, err := s.positionSvc.ExecuteTrade(&positions.Trade{
		AccountID:    accountID,
		Ticker:       row.Ticker,
		Exchange:     row.Exchange,
		Type:         row.Type,
		Quantity:     row.Quantity,
		Price:        row.Price,
		PayCurrency:  row.PayCurrency,
		ExchangeRate: row.ExchangeRate,
		Commission:   row.Commission,
		Date:         row.Date,
	})
	return err
}
