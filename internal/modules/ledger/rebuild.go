package ledger

import (
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/shopspring/decimal"
)

// Rebuild reconstructs the account's cash balances and history from fromDay
// forward.
//
// The walk seeds from the newest snapshot before fromDay (falling back to
// the first transaction when the snapshot chain has a gap), deletes the
// stale history range, replays each closed day in order writing one
// snapshot per day, then applies today's transactions on top to produce the
// live balance. History rows are bulk-inserted only after the whole walk
// succeeded, so a mid-walk failure leaves no partial history.
//
// Rebuild takes the account's write lock; callers already inside a locked
// section use the unexported rebuild instead.
func (s *Service) Rebuild(accountID int64, fromDay time.Time) error {
	unlock := s.locks.Lock(accountID)
	defer unlock()
	return s.rebuild(accountID, fromDay)
}

func (s *Service) rebuild(accountID int64, fromDay time.Time) error {
	fromDay = domain.DayOf(fromDay)
	today := domain.DayOf(s.now())
	yesterday := domain.PrevDay(today)

	working := make(map[string]decimal.Decimal)
	start := fromDay

	seed, err := s.history.LatestOnOrBefore(accountID, domain.PrevDay(fromDay))
	if err != nil {
		return err
	}
	if seed != nil {
		for _, balance := range seed.Balances {
			working[balance.Currency] = balance.Amount
		}
		start = domain.NextDay(seed.Date)
	} else {
		// No checkpoint: replay the full journal.
		earliest, err := s.txRepo.EarliestDate(accountID)
		if err != nil {
			return err
		}
		if earliest != nil {
			if day := domain.DayOf(*earliest); day.Before(start) {
				start = day
			}
		}
	}

	// Carry forward every currency the account has ever seen, even ones
	// with no transactions in the replayed range.
	if err := s.collectCurrencies(accountID, working); err != nil {
		return err
	}

	txs, err := s.txRepo.ListFrom(accountID, start)
	if err != nil {
		return err
	}
	txsByDay := make(map[string][]domain.AccountTransaction)
	for _, tx := range txs {
		key := domain.FormatDay(domain.DayOf(tx.Date))
		txsByDay[key] = append(txsByDay[key], tx)
	}

	if err := s.history.DeleteFrom(accountID, start); err != nil {
		return err
	}

	var days []domain.AccountHistory
	for day := start; !day.After(yesterday); day = domain.NextDay(day) {
		for _, tx := range txsByDay[domain.FormatDay(day)] {
			working[tx.Currency] = working[tx.Currency].Add(tx.Signed())
		}
		days = append(days, snapshotOf(accountID, day, working))
	}

	// Transactions on open days (today or later) shape the live balance but
	// are not snapshotted yet.
	for _, tx := range txs {
		if domain.DayOf(tx.Date).After(yesterday) {
			working[tx.Currency] = working[tx.Currency].Add(tx.Signed())
		}
	}

	if len(days) > 0 {
		if err := s.history.AppendDays(accountID, days); err != nil {
			return err
		}
	}
	if err := s.balanceRepo.ReplaceAll(accountID, working); err != nil {
		return err
	}

	latest, err := s.txRepo.LatestDate(accountID)
	if err != nil {
		return err
	}
	if err := s.accountRepo.SetLastTransactionDate(accountID, latest); err != nil {
		return err
	}
	if latest == nil && seed == nil {
		// Nothing left to snapshot.
		return s.accountRepo.SetLastSaveDate(accountID, nil)
	}
	return s.accountRepo.SetLastSaveDate(accountID, &yesterday)
}

func (s *Service) collectCurrencies(accountID int64, working map[string]decimal.Decimal) error {
	fromBalances, err := s.balanceRepo.DistinctCurrencies(accountID)
	if err != nil {
		return err
	}
	fromHistory, err := s.history.Currencies(accountID)
	if err != nil {
		return err
	}
	fromTxs, err := s.txRepo.DistinctCurrencies(accountID)
	if err != nil {
		return err
	}
	for _, group := range [][]string{fromBalances, fromHistory, fromTxs} {
		for _, currency := range group {
			if _, ok := working[currency]; !ok {
				working[currency] = decimal.Zero
			}
		}
	}
	return nil
}

func snapshotOf(accountID int64, day time.Time, working map[string]decimal.Decimal) domain.AccountHistory {
	history := domain.AccountHistory{
		AccountID: accountID,
		Date:      day,
	}
	for currency, amount := range working {
		history.Balances = append(history.Balances, domain.AccountHistoryBalance{
			Currency: currency,
			Amount:   amount,
		})
	}
	return history
}
