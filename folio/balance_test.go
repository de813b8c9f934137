package folio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/folio-ledger/folio"
)

func TestCalculateBalance_IgnoresVoidedEntries(t *testing.T) {
	charges := []folio.Charge{
		{Total: dec("100.00")},
		{Total: dec("40.25")},
		{Total: dec("999"), VoidInfo: folio.VoidInfo{Voided: true}},
	}
	payments := []folio.Payment{
		{Amount: dec("50")},
		{Amount: dec("500"), VoidInfo: folio.VoidInfo{Voided: true}},
	}
	ops := []folio.Operation{{Details: folio.OperationDetails{Amount: dec("12345")}}}

	balance, err := folio.CalculateBalance(folio.Entries(charges, payments, ops))
	require.NoError(t, err)

	assertMoney(t, "90.25", balance)
}

func TestCalculateBalance_Empty(t *testing.T) {
	balance, err := folio.CalculateBalance(nil)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestSummarize_BreaksDownBySide(t *testing.T) {
	charges := []folio.Charge{{Total: dec("300")}, {Total: dec("20"), VoidInfo: folio.VoidInfo{Voided: true}}}
	payments := []folio.Payment{{Amount: dec("120")}, {Amount: dec("5"), VoidInfo: folio.VoidInfo{Voided: true}}}

	s, err := folio.Summarize(folio.Entries(charges, payments, nil))
	require.NoError(t, err)

	assertMoney(t, "300", s.Charges)
	assertMoney(t, "120", s.Payments)
	assertMoney(t, "25", s.Voided)
	assertMoney(t, "180", s.Balance)
}

func TestSummarize_RejectsUnknownEntry(t *testing.T) {
	_, err := folio.Summarize([]folio.Entry{nil})
	assert.Error(t, err)
}

func TestChargeTotal_RoundsToCents(t *testing.T) {
	tests := []struct {
		amount, quantity, want string
	}{
		{"19.99", "3", "59.97"},
		{"0.333", "3", "1.00"},
		{"12.345", "1", "12.35"},
		{"80", "0.5", "40.00"},
	}
	for _, tt := range tests {
		t.Run(tt.amount+"x"+tt.quantity, func(t *testing.T) {
			assertMoney(t, tt.want, folio.ChargeTotal(dec(tt.amount), dec(tt.quantity)))
		})
	}
}
