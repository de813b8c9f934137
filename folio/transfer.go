/*
transfer.go - Moving charges between folios

PURPOSE:
  Moves ownership of a set of charges from one folio to another, e.g. room
  nights from a guest folio to the company folio that pays for them.

RULES:
  - Only charges move. Payments stay on the folio that received them so
    payment-method reconciliation remains folio-local.
  - Every listed charge must be active and owned by the source folio.
  - Both folios must exist and be open.
  - Each moved charge keeps category, amounts and timestamp; only FolioID
    changes (and TransferredFrom/TransferredAt are stamped).
  - One transferred-out operation is appended to the source and one
    transferred-in operation to the destination.
  - Both balances are recomputed. Their sum is unchanged.

ATOMICITY:
  Both folio locks are taken in ascending key order, then everything runs in
  one store transaction. Retryable failures (busy database, lock held
  elsewhere) rerun the attempt, locks included, up to TransferMaxAttempts
  times. Locks are released before each backoff. A failed attempt leaves
  no partial effect because the transaction rolls back.
*/
package folio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func (in TransferInput) validate() error {
	if in.FromFolioID == "" {
		return invalid("from_folio_id", "required")
	}
	if in.ToFolioID == "" {
		return invalid("to_folio_id", "required")
	}
	if in.FromFolioID == in.ToFolioID {
		return invalid("to_folio_id", "must differ from the source folio")
	}
	if len(in.ChargeIDs) == 0 {
		return invalid("charge_ids", "at least one charge is required")
	}
	seen := make(map[ChargeID]bool, len(in.ChargeIDs))
	for _, id := range in.ChargeIDs {
		if id == "" {
			return invalid("charge_ids", "empty charge id")
		}
		if seen[id] {
			return invalid("charge_ids", "duplicate charge id %s", id)
		}
		seen[id] = true
	}
	return nil
}

// Transfer moves charges from in.FromFolioID to in.ToFolioID atomically.
func (l *Ledger) Transfer(ctx context.Context, scope Scope, in TransferInput) (*TransferResult, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	in.Reason = strings.TrimSpace(in.Reason)

	maxAttempts := l.TransferMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		result *TransferResult
		moved  decimal.Decimal
	)
	for attempt := 1; ; attempt++ {
		err := l.transferAttempt(ctx, scope, in, func(st Store) error {
			var err error
			result, moved, err = l.transferTx(ctx, st, scope, in)
			return err
		})
		if err == nil {
			break
		}
		if !IsRetryable(err) || attempt >= maxAttempts {
			return nil, l.storageErr(scope, "transfer", attempt, err)
		}

		l.log(scope, in.FromFolioID).WithFields(logrus.Fields{
			"to_folio_id": in.ToFolioID,
			"attempt":     attempt,
		}).WithError(err).Warn("transfer attempt failed; retrying")

		if err := sleepCtx(ctx, time.Duration(attempt)*l.TransferBackoff); err != nil {
			return nil, l.storageErr(scope, "transfer", attempt, errors.Join(ErrRetryable, err))
		}
	}

	l.log(scope, in.FromFolioID).WithFields(logrus.Fields{
		"to_folio_id":  in.ToFolioID,
		"charge_count": len(in.ChargeIDs),
		"moved":        moved.StringFixed(2),
		"from_balance": result.From.Balance.StringFixed(2),
		"to_balance":   result.To.Balance.StringFixed(2),
	}).Info("charges transferred")
	return result, nil
}

// transferAttempt holds both folio locks only for the duration of one
// transaction. A contended lock is reported by the Locker as retryable.
func (l *Ledger) transferAttempt(ctx context.Context, scope Scope, in TransferInput, fn func(Store) error) error {
	unlock, err := l.lock(ctx, scope, []FolioID{in.FromFolioID, in.ToFolioID})
	if err != nil {
		return err
	}
	defer unlock()
	return l.Store.WithTx(ctx, fn)
}

func (l *Ledger) transferTx(ctx context.Context, st Store, scope Scope, in TransferInput) (*TransferResult, decimal.Decimal, error) {
	from, err := openFolio(ctx, st, scope, in.FromFolioID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	to, err := openFolio(ctx, st, scope, in.ToFolioID)
	if err != nil {
		return nil, decimal.Zero, err
	}

	charges := make([]*Charge, 0, len(in.ChargeIDs))
	for _, id := range in.ChargeIDs {
		c, err := st.GetCharge(ctx, scope.TenantID, id)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if c == nil || c.FolioID != from.ID {
			return nil, decimal.Zero, invalid("charge_ids", "charge %s does not belong to folio %s", id, from.ID)
		}
		if c.Voided {
			return nil, decimal.Zero, invalid("charge_ids", "charge %s is voided and cannot be transferred", id)
		}
		charges = append(charges, c)
	}

	now := l.Now()
	moved := decimal.Zero
	ids := make([]string, len(charges))
	for i, c := range charges {
		c.TransferredFrom = from.ID
		c.TransferredAt = &now
		c.FolioID = to.ID
		if err := st.UpdateCharge(ctx, c); err != nil {
			return nil, decimal.Zero, err
		}
		moved = moved.Add(c.Total)
		ids[i] = string(c.ID)
	}

	out := &Operation{
		ID:        OperationID(l.NewID()),
		TenantID:  scope.TenantID,
		FolioID:   from.ID,
		Subject:   SubjectCharge,
		Action:    ActionTransferredOut,
		Reason:    in.Reason,
		Actor:     scope.actor(),
		Details:   OperationDetails{EntryIDs: ids, CounterFolioID: to.ID, Amount: moved},
		CreatedAt: now,
	}
	inOp := &Operation{
		ID:        OperationID(l.NewID()),
		TenantID:  scope.TenantID,
		FolioID:   to.ID,
		Subject:   SubjectCharge,
		Action:    ActionTransferredIn,
		Reason:    in.Reason,
		Actor:     scope.actor(),
		Details:   OperationDetails{EntryIDs: append([]string(nil), ids...), CounterFolioID: from.ID, Amount: moved},
		CreatedAt: now,
	}
	if err := st.InsertOperation(ctx, out); err != nil {
		return nil, decimal.Zero, err
	}
	if err := st.InsertOperation(ctx, inOp); err != nil {
		return nil, decimal.Zero, err
	}

	if err := l.recompute(ctx, st, from); err != nil {
		return nil, decimal.Zero, err
	}
	if err := l.recompute(ctx, st, to); err != nil {
		return nil, decimal.Zero, err
	}
	return &TransferResult{From: *from, To: *to}, moved, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("transfer retry: %w", ctx.Err())
	}
}
