/*
balance.go - Balance calculation from entries

PURPOSE:
  The folio balance is derived, never mutated directly:

    balance = round(sum(active charge.Total) - sum(active payment.Amount), 2)

  "Active" excludes voided entries. Operations carry no money of their own.

  CalculateBalance is pure. Ledger.recompute runs it inside the same store
  transaction as the write that triggered it and persists the result onto
  Folio.Balance, so plain folio reads never rescan the ledger.
*/
package folio

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places balances are rounded to.
const MoneyPlaces = 2

// BalanceSummary breaks a balance into its parts.
type BalanceSummary struct {
	Charges  decimal.Decimal // active charges
	Payments decimal.Decimal // active payments
	Voided   decimal.Decimal // gross value of voided entries, either side
	Balance  decimal.Decimal
}

// CalculateBalance returns sum(active charges) - sum(active payments).
func CalculateBalance(entries []Entry) (decimal.Decimal, error) {
	s, err := Summarize(entries)
	if err != nil {
		return decimal.Zero, err
	}
	return s.Balance, nil
}

func Summarize(entries []Entry) (BalanceSummary, error) {
	s := BalanceSummary{Charges: decimal.Zero, Payments: decimal.Zero, Voided: decimal.Zero}
	for _, e := range entries {
		switch e := e.(type) {
		case *Charge:
			if e.Voided {
				s.Voided = s.Voided.Add(e.Total)
				continue
			}
			s.Charges = s.Charges.Add(e.Total)
		case *Payment:
			if e.Voided {
				s.Voided = s.Voided.Add(e.Amount)
				continue
			}
			s.Payments = s.Payments.Add(e.Amount)
		case *Operation:
			// structural only
		default:
			return BalanceSummary{}, fmt.Errorf("balance: unsupported entry %T", e)
		}
	}
	s.Balance = s.Charges.Sub(s.Payments).Round(MoneyPlaces)
	return s, nil
}

// Entries flattens a folio's records into the Entry sum type.
func Entries(charges []Charge, payments []Payment, ops []Operation) []Entry {
	out := make([]Entry, 0, len(charges)+len(payments)+len(ops))
	for i := range charges {
		out = append(out, &charges[i])
	}
	for i := range payments {
		out = append(out, &payments[i])
	}
	for i := range ops {
		out = append(out, &ops[i])
	}
	return out
}

// ChargeTotal is amount * quantity at money precision.
func ChargeTotal(amount, quantity decimal.Decimal) decimal.Decimal {
	return amount.Mul(quantity).Round(MoneyPlaces)
}
