package positions

import (
	"sync"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/jakub-mrow/AMS-backend/internal/events"
	"github.com/jakub-mrow/AMS-backend/internal/modules/assets"
	"github.com/shopspring/decimal"
)

// Price updates are only worth fetching once an exchange's end-of-day data
// has settled: between four and five hours after the close. An hourly job
// therefore hits each venue exactly once per trading day.
const (
	priceWindowStart = 4 * time.Hour
	priceWindowEnd   = 5 * time.Hour
)

// RunPriceUpdate fetches fresh quotes for every held asset whose exchange
// is inside its post-close window at asOf and records them as price marks.
// Venues are polled concurrently; per-asset failures are logged and
// skipped. Safe to re-run for the same hour.
func (s *Service) RunPriceUpdate(asOf time.Time) error {
	exchanges, err := s.assetSvc.Exchanges()
	if err != nil {
		return err
	}
	allAssets, err := s.assetSvc.List()
	if err != nil {
		return err
	}

	byExchange := make(map[int64][]domain.Asset)
	for _, asset := range allAssets {
		byExchange[asset.ExchangeID] = append(byExchange[asset.ExchangeID], asset)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		updated int
	)
	for _, exchange := range exchanges {
		if !s.inCloseWindow(&exchange, asOf) {
			continue
		}
		wg.Add(1)
		go func(exchange domain.Exchange) {
			defer wg.Done()
			n := s.updateExchange(&exchange, byExchange[exchange.ID], asOf)
			mu.Lock()
			updated += n
			mu.Unlock()
		}(exchange)
	}
	wg.Wait()

	if updated > 0 {
		s.bus.Publish(&events.PricesUpdatedData{
			AssetsUpdated: updated,
			AsOf:          domain.FormatDay(domain.DayOf(asOf)),
		})
	}
	return nil
}

func (s *Service) updateExchange(exchange *domain.Exchange, exchangeAssets []domain.Asset, asOf time.Time) int {
	updated := 0
	for _, asset := range exchangeAssets {
		holders, err := s.balanceRepo.HoldersOf(asset.ID)
		if err != nil {
			s.log.Error().Err(err).Str("ticker", asset.Ticker).Msg("Failed to load asset holders")
			continue
		}
		if len(holders) == 0 {
			continue
		}

		quote, err := s.gateway.CurrentPrice(asset.Ticker, exchange.Code)
		if err != nil || quote == nil {
			s.log.Warn().Str("ticker", asset.Ticker).Str("exchange", exchange.Code).
				Msg("No quote for held asset, skipping")
			continue
		}
		price := decimal.NewFromFloat(quote.Close)
		if !price.IsPositive() {
			continue
		}

		for _, holder := range holders {
			if _, err := s.AddTransaction(&domain.AssetTransaction{
				AccountID: holder.AccountID,
				AssetID:   asset.ID,
				Type:      domain.AssetTxPrice,
				Quantity:  decimal.Zero,
				Price:     price,
				Date:      asOf,
			}); err != nil {
				s.log.Error().Err(err).
					Int64("account_id", holder.AccountID).
					Str("ticker", asset.Ticker).
					Msg("Failed to record price mark")
				continue
			}
			updated++
		}
	}
	return updated
}

// inCloseWindow reports whether asOf falls in the exchange's post-close
// fetch window. Crypto trades around the clock and is always in window.
func (s *Service) inCloseWindow(exchange *domain.Exchange, asOf time.Time) bool {
	if exchange.Code == assets.CryptoExchangeCode {
		return true
	}

	location, err := time.LoadLocation(exchange.Timezone)
	if err != nil {
		s.log.Error().Err(err).Str("exchange", exchange.Code).
			Str("timezone", exchange.Timezone).Msg("Unknown exchange timezone")
		return false
	}
	closing, err := time.Parse("15:04", exchange.ClosingHour)
	if err != nil {
		s.log.Error().Err(err).Str("exchange", exchange.Code).
			Str("closing_hour", exchange.ClosingHour).Msg("Invalid closing hour")
		return false
	}

	local := asOf.In(location)
	closeAt := time.Date(local.Year(), local.Month(), local.Day(),
		closing.Hour(), closing.Minute(), 0, 0, location)
	since := local.Sub(closeAt)
	return since >= priceWindowStart && since < priceWindowEnd
}
