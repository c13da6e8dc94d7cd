package positions

import (
	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/shopspring/decimal"
)

// lot is one open purchase parcel.
type lot struct {
	quantity decimal.Decimal
	price    decimal.Decimal
}

// lotQueue tracks open purchase lots in FIFO order. Sells consume the
// oldest lots first; the average price is the quantity-weighted cost of
// whatever remains open.
type lotQueue struct {
	lots []lot
}

func newLotQueue() *lotQueue {
	return &lotQueue{}
}

// apply advances the queue by one trade. Price marks and dividends do not
// touch lots.
func (q *lotQueue) apply(tx *domain.AssetTransaction) error {
	switch tx.Type {
	case domain.AssetTxBuy:
		q.lots = append(q.lots, lot{quantity: tx.Quantity, price: tx.Price})
	case domain.AssetTxSell:
		remaining := tx.Quantity
		for remaining.IsPositive() {
			if len(q.lots) == 0 {
				return domain.ErrInsufficientPosition
			}
			head := &q.lots[0]
			if head.quantity.GreaterThan(remaining) {
				head.quantity = head.quantity.Sub(remaining)
				break
			}
			remaining = remaining.Sub(head.quantity)
			q.lots = q.lots[1:]
		}
	}
	return nil
}

// averagePrice returns the quantity-weighted cost of the open lots, or zero
// when nothing is held.
func (q *lotQueue) averagePrice() decimal.Decimal {
	totalQuantity := decimal.Zero
	totalCost := decimal.Zero
	for _, l := range q.lots {
		totalQuantity = totalQuantity.Add(l.quantity)
		totalCost = totalCost.Add(l.quantity.Mul(l.price))
	}
	if totalQuantity.IsZero() {
		return decimal.Zero
	}
	return totalCost.Div(totalQuantity)
}

// resultPercent is the unrealized gain of the current mark over the cost
// basis, in percent. Zero when there is no cost basis.
func resultPercent(price, averagePrice decimal.Decimal) decimal.Decimal {
	if averagePrice.IsZero() {
		return decimal.Zero
	}
	return price.Sub(averagePrice).Div(averagePrice).Mul(decimal.NewFromInt(100))
}
