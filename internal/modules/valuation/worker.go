package valuation

import (
	"errors"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/jakub-mrow/AMS-backend/internal/events"
	"github.com/rs/zerolog"
)

// Worker keeps cached account returns fresh by listening for events that
// invalidate them. Recomputation is best-effort: a failed run is logged and
// retried on the next dirty event, never propagated to the publisher.
type Worker struct {
	svc *Service
	bus *events.Bus
	log zerolog.Logger
}

// NewWorker creates a new valuation worker
func NewWorker(svc *Service, bus *events.Bus, log zerolog.Logger) *Worker {
	return &Worker{
		svc: svc,
		bus: bus,
		log: log.With().Str("worker", "valuation").Logger(),
	}
}

// Start subscribes the worker to the event bus.
func (w *Worker) Start() {
	w.bus.Subscribe(events.AccountDirty, w.onAccountDirty)
	w.bus.Subscribe(events.PricesUpdated, w.onPricesUpdated)
	w.log.Info().Msg("Valuation worker started")
}

func (w *Worker) onAccountDirty(event *events.Event) {
	data, ok := event.Data.(*events.AccountDirtyData)
	if !ok {
		return
	}
	w.recompute(data.AccountID)
}

// onPricesUpdated refreshes every account: a price change can move any
// portfolio that holds the repriced assets.
func (w *Worker) onPricesUpdated(event *events.Event) {
	accounts, err := w.svc.accountSvc.All()
	if err != nil {
		w.log.Error().Err(err).Msg("Failed to list accounts for return refresh")
		return
	}
	for _, account := range accounts {
		w.recompute(account.ID)
	}
}

func (w *Worker) recompute(accountID int64) {
	if _, err := w.svc.RecomputeXIRR(accountID); err != nil {
		if errors.Is(err, domain.ErrReturnDegenerate) {
			// Expected for accounts with no external flows yet; null is stored.
			w.log.Debug().Int64("account_id", accountID).Msg("Account return degenerate")
			return
		}
		w.log.Error().Err(err).Int64("account_id", accountID).Msg("Failed to recompute account return")
		return
	}
	w.log.Debug().Int64("account_id", accountID).Msg("Account return recomputed")
}
