package folio

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// errOwnerMoved is returned inside a void transaction when the entry was
// transferred between the owner lookup and acquiring the folio lock.
var errOwnerMoved = errors.New("entry moved to another folio")

// maxOwnerLookups bounds how often a void chases a charge that keeps moving.
const maxOwnerLookups = 3

// VoidCharge marks a charge voided in place. The row stays for audit; its
// Total no longer counts toward the balance, which drops by exactly Total.
func (l *Ledger) VoidCharge(ctx context.Context, scope Scope, id ChargeID, reason string) (*Charge, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("void_reason", "a reason is required to void a charge")
	}

	var voided *Charge
	var balance decimal.Decimal
	for attempt := 1; ; attempt++ {
		c, err := l.Store.GetCharge(ctx, scope.TenantID, id)
		if err != nil {
			return nil, l.storageErr(scope, "void_charge", attempt, err)
		}
		if c == nil {
			return nil, notFound("charge", string(id))
		}
		owner := c.FolioID

		err = l.mutate(ctx, scope, "void_charge", []FolioID{owner}, func(st Store) error {
			c, err := st.GetCharge(ctx, scope.TenantID, id)
			if err != nil {
				return err
			}
			if c == nil {
				return notFound("charge", string(id))
			}
			if c.FolioID != owner {
				return errOwnerMoved
			}
			if c.Voided {
				return &ConflictError{Reason: "charge already voided", FolioID: c.FolioID, State: "voided"}
			}
			f, err := openFolio(ctx, st, scope, owner)
			if err != nil {
				return err
			}

			now := l.Now()
			c.VoidInfo = VoidInfo{Voided: true, VoidReason: reason, VoidedBy: scope.actor(), VoidedAt: &now}
			if err := st.UpdateCharge(ctx, c); err != nil {
				return err
			}
			if err := st.InsertOperation(ctx, &Operation{
				ID:        OperationID(l.NewID()),
				TenantID:  scope.TenantID,
				FolioID:   owner,
				Subject:   SubjectCharge,
				Action:    ActionVoided,
				Reason:    reason,
				Actor:     scope.actor(),
				Details:   OperationDetails{EntryIDs: []string{string(c.ID)}, Amount: c.Total},
				CreatedAt: now,
			}); err != nil {
				return err
			}
			if err := l.recompute(ctx, st, f); err != nil {
				return err
			}
			voided, balance = c, f.Balance
			return nil
		})
		if errors.Is(err, errOwnerMoved) {
			if attempt < maxOwnerLookups {
				continue
			}
			return nil, &ConflictError{Reason: "charge is being transferred concurrently", State: "moving"}
		}
		if err != nil {
			return nil, err
		}
		break
	}

	l.log(scope, voided.FolioID).WithFields(logrus.Fields{
		"charge_id": voided.ID,
		"total":     voided.Total.StringFixed(2),
		"balance":   balance.StringFixed(2),
		"reason":    reason,
	}).Info("charge voided")
	return voided, nil
}

// VoidPayment marks a payment voided in place; the balance rises by exactly
// the payment amount. Payments never move between folios, so no owner
// re-check is needed.
func (l *Ledger) VoidPayment(ctx context.Context, scope Scope, id PaymentID, reason string) (*Payment, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("void_reason", "a reason is required to void a payment")
	}

	p, err := l.Store.GetPayment(ctx, scope.TenantID, id)
	if err != nil {
		return nil, l.storageErr(scope, "void_payment", 1, err)
	}
	if p == nil {
		return nil, notFound("payment", string(id))
	}
	owner := p.FolioID

	var balance decimal.Decimal
	err = l.mutate(ctx, scope, "void_payment", []FolioID{owner}, func(st Store) error {
		cur, err := st.GetPayment(ctx, scope.TenantID, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return notFound("payment", string(id))
		}
		if cur.Voided {
			return &ConflictError{Reason: "payment already voided", FolioID: cur.FolioID, State: "voided"}
		}
		f, err := openFolio(ctx, st, scope, owner)
		if err != nil {
			return err
		}

		now := l.Now()
		cur.VoidInfo = VoidInfo{Voided: true, VoidReason: reason, VoidedBy: scope.actor(), VoidedAt: &now}
		if err := st.UpdatePayment(ctx, cur); err != nil {
			return err
		}
		if err := st.InsertOperation(ctx, &Operation{
			ID:        OperationID(l.NewID()),
			TenantID:  scope.TenantID,
			FolioID:   owner,
			Subject:   SubjectPayment,
			Action:    ActionVoided,
			Reason:    reason,
			Actor:     scope.actor(),
			Details:   OperationDetails{EntryIDs: []string{string(cur.ID)}, Amount: cur.Amount},
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := l.recompute(ctx, st, f); err != nil {
			return err
		}
		p, balance = cur, f.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log(scope, owner).WithFields(logrus.Fields{
		"payment_id": p.ID,
		"amount":     p.Amount.StringFixed(2),
		"balance":    balance.StringFixed(2),
		"reason":     reason,
	}).Info("payment voided")
	return p, nil
}
