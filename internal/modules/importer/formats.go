// Package importer converts broker export files into asset transactions.
// Each broker format is a registered parser producing canonical rows; the
// service replays the rows through the positions module.
package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/shopspring/decimal"
)

// Row is one canonical trade parsed from a broker file. Instruments are
// identified either by ticker+exchange or, for brokers that export them,
// by ISIN.
type Row struct {
	Ticker       string
	Exchange     string
	ISIN         string
	Date         time.Time
	Type         domain.AssetTransactionType
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	PayCurrency  *string
	ExchangeRate *decimal.Decimal
	Commission   *decimal.Decimal
}

// ParseFunc converts a raw broker export into canonical rows. Any parse
// failure means the file as a whole is unusable.
type ParseFunc func(data []byte) ([]Row, error)

// FormatGeneric is the house CSV layout, FormatDegiro the Degiro
// transaction export.
const (
	FormatGeneric = "generic"
	FormatDegiro  = "degiro"
)

func defaultFormats() map[string]ParseFunc {
	return map[string]ParseFunc{
		FormatGeneric: ParseGenericCSV,
		FormatDegiro:  ParseDegiroCSV,
	}
}

// genericHeader is the expected first row of a generic import file. The
// trailing three columns may be left blank per row.
var genericHeader = []string{
	"ticker", "exchange", "date", "type", "quantity", "price",
	"pay_currency", "exchange_rate", "commission",
}

// ParseGenericCSV parses the house CSV layout.
func ParseGenericCSV(data []byte) ([]Row, error) {
	records, err := readCSV(data, ',')
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || !headerMatches(records[0], genericHeader) {
		return nil, fmt.Errorf("%w: expected header %q", domain.ErrIncorrectFormat, strings.Join(genericHeader, ","))
	}

	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		line := i + 2
		if len(record) != len(genericHeader) {
			return nil, fmt.Errorf("%w: line %d has %d columns", domain.ErrIncorrectFormat, line, len(record))
		}

		date, err := parseDate(record[2])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", domain.ErrIncorrectFormat, line, err)
		}
		txType := domain.AssetTransactionType(strings.ToLower(strings.TrimSpace(record[3])))
		// Price marks are produced by the price-update job, never imported.
		if !txType.Valid() || txType == domain.AssetTxPrice {
			return nil, fmt.Errorf("%w: line %d: unknown type %q", domain.ErrIncorrectFormat, line, record[3])
		}
		quantity, err := parseDecimal(record[4])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: quantity: %v", domain.ErrIncorrectFormat, line, err)
		}
		price, err := parseDecimal(record[5])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: price: %v", domain.ErrIncorrectFormat, line, err)
		}

		row := Row{
			Ticker:   strings.ToUpper(strings.TrimSpace(record[0])),
			Exchange: strings.ToUpper(strings.TrimSpace(record[1])),
			Date:     date,
			Type:     txType,
			Quantity: quantity,
			Price:    price,
		}
		if row.Ticker == "" || row.Exchange == "" {
			return nil, fmt.Errorf("%w: line %d: missing ticker or exchange", domain.ErrIncorrectFormat, line)
		}

		if currency := strings.ToUpper(strings.TrimSpace(record[6])); currency != "" {
			row.PayCurrency = &currency
		}
		if row.ExchangeRate, err = parseOptionalDecimal(record[7]); err != nil {
			return nil, fmt.Errorf("%w: line %d: exchange_rate: %v", domain.ErrIncorrectFormat, line, err)
		}
		if row.Commission, err = parseOptionalDecimal(record[8]); err != nil {
			return nil, fmt.Errorf("%w: line %d: commission: %v", domain.ErrIncorrectFormat, line, err)
		}

		rows = append(rows, row)
	}
	return rows, nil
}

func readCSV(data []byte, comma rune) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIncorrectFormat, err)
	}
	return records, nil
}

func headerMatches(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if strings.ToLower(strings.TrimSpace(got[i])) != want[i] {
			return false
		}
	}
	return true
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return domain.ParseDay(value)
}

func parseDecimal(value string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(value))
}

func parseOptionalDecimal(value string) (*decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
