package ledger

import (
	"testing"

	"payment-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRecompute(t *testing.T) {
	tests := []struct {
		name         string
		payments     []models.Payment
		wantPaid     string
		wantRefunded string
		wantNet      string
	}{
		{
			name:         "no payments",
			payments:     nil,
			wantPaid:     "0",
			wantRefunded: "0",
			wantNet:      "0",
		},
		{
			name: "initial plus additional",
			payments: []models.Payment{
				{Type: models.PaymentTypeInitial, Status: models.PaymentStatusPaid, Amount: dec("50")},
				{Type: models.PaymentTypeAdditional, Status: models.PaymentStatusCompleted, Amount: dec("12.50")},
			},
			wantPaid:     "62.5",
			wantRefunded: "0",
			wantNet:      "62.5",
		},
		{
			name: "pending and failed entries never count",
			payments: []models.Payment{
				{Type: models.PaymentTypeInitial, Status: models.PaymentStatusPaid, Amount: dec("50")},
				{Type: models.PaymentTypeAdditional, Status: models.PaymentStatusPending, Amount: dec("10")},
				{Type: models.PaymentTypeAdditional, Status: models.PaymentStatusFailed, Amount: dec("30")},
				{Type: models.PaymentTypeRefund, Status: models.PaymentStatusPending, Amount: dec("5")},
			},
			wantPaid:     "50",
			wantRefunded: "0",
			wantNet:      "50",
		},
		{
			name: "partial refund",
			payments: []models.Payment{
				{Type: models.PaymentTypeInitial, Status: models.PaymentStatusPaid, Amount: dec("50")},
				{Type: models.PaymentTypeRefund, Status: models.PaymentStatusCompleted, Amount: dec("20")},
			},
			wantPaid:     "50",
			wantRefunded: "20",
			wantNet:      "30",
		},
		{
			name: "store credit counts as refund",
			payments: []models.Payment{
				{Type: models.PaymentTypeInitial, Status: models.PaymentStatusPaid, Amount: dec("40")},
				{Type: models.PaymentTypeRefund, Method: models.PaymentMethodStoreCredit, Status: models.PaymentStatusCompleted, Amount: dec("40")},
			},
			wantPaid:     "40",
			wantRefunded: "40",
			wantNet:      "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Recompute(tt.payments)
			assert.True(t, got.TotalPaid.Equal(dec(tt.wantPaid)), "total_paid = %s", got.TotalPaid)
			assert.True(t, got.TotalRefunded.Equal(dec(tt.wantRefunded)), "total_refunded = %s", got.TotalRefunded)
			assert.True(t, got.NetAmount.Equal(dec(tt.wantNet)), "net_amount = %s", got.NetAmount)
			assert.True(t, got.NetAmount.Equal(got.TotalPaid.Sub(got.TotalRefunded)))
		})
	}
}

func TestFullyRefunded(t *testing.T) {
	assert.True(t, Totals{NetAmount: dec("0")}.FullyRefunded())
	assert.True(t, Totals{NetAmount: dec("0.009")}.FullyRefunded())
	assert.True(t, Totals{NetAmount: dec("-0.005")}.FullyRefunded())
	assert.False(t, Totals{NetAmount: dec("0.01")}.FullyRefunded())
	assert.False(t, Totals{NetAmount: dec("29.99")}.FullyRefunded())
}
