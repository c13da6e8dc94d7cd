// Package valuation aggregates balances into a single base-currency value
// and computes the account's money-weighted return.
package valuation

import (
	"fmt"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/jakub-mrow/AMS-backend/internal/modules/accounts"
	"github.com/jakub-mrow/AMS-backend/internal/modules/assets"
	"github.com/jakub-mrow/AMS-backend/internal/modules/history"
	"github.com/jakub-mrow/AMS-backend/internal/modules/ledger"
	"github.com/jakub-mrow/AMS-backend/internal/modules/positions"
	"github.com/jakub-mrow/AMS-backend/pkg/formulas"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// FxGateway supplies current currency pair rates. A nil rate or missing
// map entry means the gateway has no data for that pair.
type FxGateway interface {
	CurrentFxRate(pair string) (*float64, error)
	CurrentFxRates(pairs []string) (map[string]float64, error)
}

// Service implements valuation and return computation.
type Service struct {
	accountSvc  *accounts.Service
	cash        *ledger.Service
	positionSvc *positions.Service
	assetSvc    *assets.Service
	historyRepo *history.AccountRepository
	fx          FxGateway
	log         zerolog.Logger

	now func() time.Time
}

// NewService creates a new valuation service
func NewService(
	accountSvc *accounts.Service,
	cash *ledger.Service,
	positionSvc *positions.Service,
	assetSvc *assets.Service,
	historyRepo *history.AccountRepository,
	fx FxGateway,
	log zerolog.Logger,
) *Service {
	return &Service{
		accountSvc:  accountSvc,
		cash:        cash,
		positionSvc: positionSvc,
		assetSvc:    assetSvc,
		historyRepo: historyRepo,
		fx:          fx,
		log:         log.With().Str("service", "valuation").Logger(),
		now:         time.Now,
	}
}

// holding is one value to aggregate, in its own currency.
type holding struct {
	currency string
	value    decimal.Decimal
}

// AccountValue sums cash and positions into the account's base currency.
// FX pairs are batch-fetched in one round trip when more than one is
// needed. A currency the gateway cannot price is skipped with a warning
// rather than failing the whole valuation.
func (s *Service) AccountValue(accountID int64) (decimal.Decimal, error) {
	prefs, err := s.accountSvc.Preferences(accountID)
	if err != nil {
		return decimal.Zero, err
	}
	holdings, err := s.collectHoldings(accountID)
	if err != nil {
		return decimal.Zero, err
	}
	rates, err := s.fetchRates(holdings, prefs.BaseCurrency)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, h := range holdings {
		if h.currency == prefs.BaseCurrency {
			total = total.Add(h.value)
			continue
		}
		rate, ok := rates[h.currency+prefs.BaseCurrency]
		if !ok {
			s.log.Warn().
				Int64("account_id", accountID).
				Str("currency", h.currency).
				Msg("No FX rate, skipping currency in valuation")
			continue
		}
		total = total.Add(h.value.Mul(rate))
	}
	return total.Round(2), nil
}

func (s *Service) collectHoldings(accountID int64) ([]holding, error) {
	var holdings []holding

	cashBalances, err := s.cash.Balances(accountID)
	if err != nil {
		return nil, err
	}
	for _, balance := range cashBalances {
		holdings = append(holdings, holding{currency: balance.Currency, value: balance.Amount})
	}

	positionBalances, err := s.positionSvc.Balances(accountID)
	if err != nil {
		return nil, err
	}
	for _, position := range positionBalances {
		if position.Quantity.IsZero() {
			continue
		}
		asset, err := s.assetSvc.Get(position.AssetID)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, holding{
			currency: asset.Currency,
			value:    position.Quantity.Mul(position.Price),
		})
	}
	return holdings, nil
}

// fetchRates resolves the FX pairs the holdings require: none and
// single-pair cases avoid the batch endpoint.
func (s *Service) fetchRates(holdings []holding, base string) (map[string]decimal.Decimal, error) {
	needed := make(map[string]bool)
	for _, h := range holdings {
		if h.currency != base {
			needed[h.currency+base] = true
		}
	}
	rates := make(map[string]decimal.Decimal, len(needed))
	if len(needed) == 0 {
		return rates, nil
	}

	pairs := make([]string, 0, len(needed))
	for pair := range needed {
		pairs = append(pairs, pair)
	}

	if len(pairs) == 1 {
		rate, err := s.fx.CurrentFxRate(pairs[0])
		if err != nil {
			return nil, err
		}
		if rate != nil {
			rates[pairs[0]] = decimal.NewFromFloat(*rate)
		}
		return rates, nil
	}

	fetched, err := s.fx.CurrentFxRates(pairs)
	if err != nil {
		return nil, err
	}
	for pair, rate := range fetched {
		rates[pair] = decimal.NewFromFloat(rate)
	}
	return rates, nil
}

// RecomputeXIRR rebuilds the account's cash-flow series, solves for the
// money-weighted return, and caches it on the account. A degenerate series
// (all flows one-signed, or fewer than two) stores NULL and returns
// domain.ErrReturnDegenerate.
func (s *Service) RecomputeXIRR(accountID int64) (*decimal.Decimal, error) {
	prefs, err := s.accountSvc.Preferences(accountID)
	if err != nil {
		return nil, err
	}

	txs, err := s.cash.ListTransactions(accountID)
	if err != nil {
		return nil, err
	}

	// External flows only: deposits are money entering the account (negative
	// from the investor's point of view), withdrawals money leaving it.
	var flows []formulas.CashFlow
	rateCache := make(map[string]*decimal.Decimal)
	for _, tx := range txs {
		var sign decimal.Decimal
		switch tx.Type {
		case domain.TxDeposit:
			sign = decimal.NewFromInt(-1)
		case domain.TxWithdrawal:
			sign = decimal.NewFromInt(1)
		default:
			continue
		}
		amount := tx.Amount
		if tx.Currency != prefs.BaseCurrency {
			rate, err := s.cachedRate(rateCache, tx.Currency+prefs.BaseCurrency)
			if err != nil {
				return nil, err
			}
			if rate == nil {
				s.log.Warn().
					Int64("account_id", accountID).
					Str("currency", tx.Currency).
					Msg("No FX rate for cash flow, skipping in return computation")
				continue
			}
			amount = amount.Mul(*rate)
		}
		flows = append(flows, formulas.CashFlow{
			Date:   tx.Date,
			Amount: sign.Mul(amount).InexactFloat64(),
		})
	}

	// Synthetic liquidation: the account's current value counts as a final
	// positive flow today.
	value, err := s.AccountValue(accountID)
	if err != nil {
		return nil, err
	}
	if value.IsPositive() {
		flows = append(flows, formulas.CashFlow{Date: s.now(), Amount: value.InexactFloat64()})
	}

	rate, err := formulas.XIRR(flows)
	if err != nil {
		if storeErr := s.accountSvc.SetXIRR(accountID, nil); storeErr != nil {
			return nil, storeErr
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReturnDegenerate, err)
	}

	result := decimal.NewFromFloat(rate).Round(6)
	if err := s.accountSvc.SetXIRR(accountID, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Service) cachedRate(cache map[string]*decimal.Decimal, pair string) (*decimal.Decimal, error) {
	if rate, ok := cache[pair]; ok {
		return rate, nil
	}
	fetched, err := s.fx.CurrentFxRate(pair)
	if err != nil {
		return nil, err
	}
	var rate *decimal.Decimal
	if fetched != nil {
		converted := decimal.NewFromFloat(*fetched)
		rate = &converted
	}
	cache[pair] = rate
	return rate, nil
}

// HistoryStats computes return statistics over the account's daily history
// series: per-day totals across currencies, converted at current rates.
func (s *Service) HistoryStats(accountID int64) (*formulas.ReturnStats, error) {
	prefs, err := s.accountSvc.Preferences(accountID)
	if err != nil {
		return nil, err
	}
	days, err := s.historyRepo.ListByAccount(accountID, nil, nil)
	if err != nil {
		return nil, err
	}

	rateCache := make(map[string]*decimal.Decimal)
	values := make([]float64, 0, len(days))
	for _, day := range days {
		total := decimal.Zero
		for _, balance := range day.Balances {
			if balance.Currency == prefs.BaseCurrency {
				total = total.Add(balance.Amount)
				continue
			}
			rate, err := s.cachedRate(rateCache, balance.Currency+prefs.BaseCurrency)
			if err != nil {
				return nil, err
			}
			if rate == nil {
				continue
			}
			total = total.Add(balance.Amount.Mul(*rate))
		}
		values = append(values, total.InexactFloat64())
	}

	return formulas.CalculateReturnStats(values), nil
}
