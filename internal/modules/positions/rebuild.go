package positions

import (
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/shopspring/decimal"
)

// RebuildPosition reconstructs one (account, asset) position and its
// history from fromDay forward.
//
// Quantity and price are seeded from the newest snapshot before fromDay;
// the cost basis cannot be seeded that way because lot composition is not
// snapshotted, so the FIFO queue is always replayed from the start of the
// journal. History rows are bulk-inserted only after a clean walk.
//
// RebuildPosition takes the account's write lock; callers already inside a
// locked section use the unexported rebuildPosition instead.
func (s *Service) RebuildPosition(accountID, assetID int64, fromDay time.Time) error {
	unlock := s.locks.Lock(accountID)
	defer unlock()
	return s.rebuildPosition(accountID, assetID, fromDay)
}

func (s *Service) rebuildPosition(accountID, assetID int64, fromDay time.Time) error {
	fromDay = domain.DayOf(fromDay)
	today := domain.DayOf(s.now())
	yesterday := domain.PrevDay(today)

	quantity := decimal.Zero
	price := decimal.Zero
	start := fromDay

	seed, err := s.history.LatestOnOrBefore(accountID, assetID, domain.PrevDay(fromDay))
	if err != nil {
		return err
	}
	if seed != nil {
		quantity = seed.Quantity
		price = seed.Price
		start = domain.NextDay(seed.Date)
	} else {
		earliest, err := s.txRepo.EarliestDate(accountID, assetID)
		if err != nil {
			return err
		}
		if earliest != nil {
			if day := domain.DayOf(*earliest); day.Before(start) {
				start = day
			}
		}
	}

	all, err := s.txRepo.ListByPosition(accountID, assetID)
	if err != nil {
		return err
	}

	lots := newLotQueue()
	var firstEvent *time.Time
	byDay := make(map[string][]domain.AssetTransaction)
	for i := range all {
		day := domain.DayOf(all[i].Date)
		if firstEvent == nil {
			firstEvent = &day
		}
		if day.Before(start) {
			// Before the replayed range: advance the lot queue only.
			if err := lots.apply(&all[i]); err != nil {
				return err
			}
			continue
		}
		byDay[domain.FormatDay(day)] = append(byDay[domain.FormatDay(day)], all[i])
	}

	if err := s.history.DeleteFrom(accountID, assetID, start); err != nil {
		return err
	}

	apply := func(tx *domain.AssetTransaction) error {
		switch tx.Type {
		case domain.AssetTxBuy:
			quantity = quantity.Add(tx.Quantity)
			price = tx.Price
		case domain.AssetTxSell:
			quantity = quantity.Sub(tx.Quantity)
			if quantity.IsNegative() {
				return domain.ErrInsufficientPosition
			}
			price = tx.Price
		case domain.AssetTxPrice:
			price = tx.Price
		case domain.AssetTxDividend:
			// No position change.
		}
		return lots.apply(tx)
	}

	var rows []domain.AssetBalanceHistory
	for day := start; !day.After(yesterday); day = domain.NextDay(day) {
		txs := byDay[domain.FormatDay(day)]
		for i := range txs {
			if err := apply(&txs[i]); err != nil {
				return err
			}
		}
		if firstEvent == nil || day.Before(*firstEvent) {
			// No activity yet; nothing worth snapshotting.
			continue
		}
		rows = append(rows, domain.AssetBalanceHistory{
			AccountID: accountID,
			AssetID:   assetID,
			Date:      day,
			Quantity:  quantity,
			Price:     price,
			Result:    resultPercent(price, lots.averagePrice()),
		})
	}

	// Open days (today or later) shape the live position only.
	for i := range all {
		if domain.DayOf(all[i].Date).After(yesterday) {
			if err := apply(&all[i]); err != nil {
				return err
			}
		}
	}

	if len(rows) > 0 {
		if err := s.history.AppendDays(rows); err != nil {
			return err
		}
	}

	latest, err := s.txRepo.LatestDate(accountID, assetID)
	if err != nil {
		return err
	}

	balance := &domain.AssetBalance{
		AccountID:           accountID,
		AssetID:             assetID,
		Quantity:            quantity,
		Price:               price,
		AveragePrice:        lots.averagePrice(),
		Result:              resultPercent(price, lots.averagePrice()),
		FirstEventDate:      firstEvent,
		LastTransactionDate: latest,
	}
	if latest != nil || seed != nil {
		balance.LastSaveDate = &yesterday
	}
	return s.balanceRepo.Upsert(balance)
}
