package importer

import (
	"fmt"
	"strings"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
)

// Degiro transaction exports identify instruments by ISIN and encode the
// trade direction in the sign of the quantity column.
const (
	degiroDateLayout = "02-01-2006"
	degiroTimeLayout = "15:04"
)

// The leading columns of a Degiro Transactions.csv. Currency columns after
// Price vary with the account language, so only the stable prefix is
// validated.
var degiroHeaderPrefix = []string{
	"date", "time", "product", "isin", "exchange", "venue", "quantity", "price",
}

const (
	degiroColDate         = 0
	degiroColTime         = 1
	degiroColISIN         = 3
	degiroColExchange     = 4
	degiroColQuantity     = 6
	degiroColPrice        = 7
	degiroColCurrency     = 8
	degiroColExchangeRate = 13
	degiroColCommission   = 14
	degiroColTotalCcy     = 17
)

// ParseDegiroCSV parses a Degiro transaction export.
func ParseDegiroCSV(data []byte) ([]Row, error) {
	records, err := readCSV(data, ',')
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || len(records[0]) < degiroColTotalCcy+1 ||
		!headerMatches(records[0][:len(degiroHeaderPrefix)], degiroHeaderPrefix) {
		return nil, fmt.Errorf("%w: not a Degiro transaction export", domain.ErrIncorrectFormat)
	}

	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		line := i + 2
		if len(record) < degiroColTotalCcy+1 {
			return nil, fmt.Errorf("%w: line %d has %d columns", domain.ErrIncorrectFormat, line, len(record))
		}

		date, err := parseDegiroDate(record[degiroColDate], record[degiroColTime])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", domain.ErrIncorrectFormat, line, err)
		}
		quantity, err := parseDecimal(record[degiroColQuantity])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: quantity: %v", domain.ErrIncorrectFormat, line, err)
		}
		price, err := parseDecimal(record[degiroColPrice])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: price: %v", domain.ErrIncorrectFormat, line, err)
		}

		row := Row{
			ISIN:     strings.ToUpper(strings.TrimSpace(record[degiroColISIN])),
			Exchange: strings.ToUpper(strings.TrimSpace(record[degiroColExchange])),
			Date:     date,
			Type:     domain.AssetTxBuy,
			Quantity: quantity,
			Price:    price,
		}
		if row.ISIN == "" {
			return nil, fmt.Errorf("%w: line %d: missing ISIN", domain.ErrIncorrectFormat, line)
		}
		if quantity.IsNegative() {
			row.Type = domain.AssetTxSell
			row.Quantity = quantity.Neg()
		}

		if row.ExchangeRate, err = parseOptionalDecimal(record[degiroColExchangeRate]); err != nil {
			return nil, fmt.Errorf("%w: line %d: exchange rate: %v", domain.ErrIncorrectFormat, line, err)
		}
		commission, err := parseOptionalDecimal(record[degiroColCommission])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: transaction costs: %v", domain.ErrIncorrectFormat, line, err)
		}
		if commission != nil {
			abs := commission.Abs()
			row.Commission = &abs
		}
		// Settlement currency differs from the quote currency only when
		// Degiro converted; in that case the export carries the rate too.
		settlement := strings.ToUpper(strings.TrimSpace(record[degiroColTotalCcy]))
		quote := strings.ToUpper(strings.TrimSpace(record[degiroColCurrency]))
		if settlement != "" && settlement != quote && row.ExchangeRate != nil {
			row.PayCurrency = &settlement
		}

		rows = append(rows, row)
	}
	return rows, nil
}

func parseDegiroDate(day, clock string) (time.Time, error) {
	date, err := time.Parse(degiroDateLayout, strings.TrimSpace(day))
	if err != nil {
		return time.Time{}, err
	}
	if clock = strings.TrimSpace(clock); clock != "" {
		if t, err := time.Parse(degiroTimeLayout, clock); err == nil {
			date = date.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
		}
	}
	return date.UTC(), nil
}
