// Package ledger derives an order's running totals from its payment
// records. Recomputation over persisted payments is always the source of
// truth; totals are never cached.
package ledger

import (
	"payment-service/internal/models"

	"github.com/shopspring/decimal"
)

// Totals holds the derived monetary state of one order.
type Totals struct {
	TotalPaid     decimal.Decimal `json:"total_paid"`
	TotalRefunded decimal.Decimal `json:"total_refunded"`
	NetAmount     decimal.Decimal `json:"net_amount"`
}

// fullRefundTolerance absorbs sub-cent rounding when deciding whether an
// order is fully refunded.
var fullRefundTolerance = decimal.NewFromFloat(0.01)

// Recompute derives totals from the full payment set of an order.
//
// total_paid sums initial and additional payments in a paid or completed
// state; total_refunded sums completed refunds. Pending and failed entries
// never count.
func Recompute(payments []models.Payment) Totals {
	paid := decimal.Zero
	refunded := decimal.Zero

	for _, p := range payments {
		switch p.Type {
		case models.PaymentTypeInitial, models.PaymentTypeAdditional:
			if p.Status == models.PaymentStatusPaid || p.Status == models.PaymentStatusCompleted {
				paid = paid.Add(p.Amount)
			}
		case models.PaymentTypeRefund:
			if p.Status == models.PaymentStatusCompleted {
				refunded = refunded.Add(p.Amount)
			}
		}
	}

	return Totals{
		TotalPaid:     paid,
		TotalRefunded: refunded,
		NetAmount:     paid.Sub(refunded),
	}
}

// FullyRefunded reports whether the net amount is within one cent of zero.
func (t Totals) FullyRefunded() bool {
	return t.NetAmount.Abs().LessThan(fullRefundTolerance)
}

// Refundable returns the maximum amount a legitimate refund may claim.
func (t Totals) Refundable() decimal.Decimal {
	return t.NetAmount
}
