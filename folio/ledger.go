/*
ledger.go - The folio ledger service

PURPOSE:
  Ledger is the only writer of folios and their entries. It owns the
  balance invariant:

    folio.Balance == round(sum(active charges) - sum(active payments), 2)

TRANSACTION BOUNDARY:
  Every mutation runs as

    lock(folio keys) -> WithTx(write entries, recompute, persist balance) -> unlock

  so a concurrent writer on the same folio can never overwrite the cached
  balance with a stale total. Transfers lock both folios (ascending key
  order) inside a single transaction.

OPERATIONS (this file):
  CreateFolio, GetFolio, ListFolios, CloseFolio
  AddCharge, AddPayment, ListCharges, ListPayments
  Recompute, ActivityLog

SEE ALSO:
  - void.go: VoidCharge, VoidPayment
  - transfer.go: Transfer
*/
package folio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTransferMaxAttempts = 3
	DefaultTransferBackoff     = 25 * time.Millisecond
)

type Ledger struct {
	Store  TxStore
	Locker Locker
	Logger *logrus.Logger

	// Now and NewID are replaceable for deterministic tests.
	Now   func() time.Time
	NewID func() string

	// TransferMaxAttempts bounds retries of the transfer transaction on
	// retryable storage failures.
	TransferMaxAttempts int
	TransferBackoff     time.Duration
}

func NewLedger(store TxStore) *Ledger {
	return &Ledger{
		Store:               store,
		Locker:              NewKeyedLocker(),
		Logger:              logrus.StandardLogger(),
		Now:                 func() time.Time { return time.Now().UTC() },
		NewID:               newID,
		TransferMaxAttempts: DefaultTransferMaxAttempts,
		TransferBackoff:     DefaultTransferBackoff,
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// =============================================================================
// FOLIO AGGREGATE
// =============================================================================

func (in CreateFolioInput) validate() error {
	if !in.Type.Valid() {
		return invalid("folio_type", "must be one of guest, company, master (got %q)", in.Type)
	}
	switch in.Type {
	case FolioCompany:
		if strings.TrimSpace(in.CompanyID) == "" {
			return invalid("company_id", "required for company folios")
		}
	case FolioGuest:
		if strings.TrimSpace(in.GuestID) == "" && strings.TrimSpace(in.BookingID) == "" {
			return invalid("guest_id", "guest folios require a guest_id or booking_id")
		}
	}
	return nil
}

// CreateFolio opens a new folio with a zero balance.
func (l *Ledger) CreateFolio(ctx context.Context, scope Scope, in CreateFolioInput) (*Folio, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := l.Now()
	id := l.NewID()
	f := &Folio{
		ID:        FolioID(id),
		TenantID:  scope.TenantID,
		Number:    folioNumber(now, id),
		Type:      in.Type,
		BookingID: strings.TrimSpace(in.BookingID),
		CompanyID: strings.TrimSpace(in.CompanyID),
		GuestID:   strings.TrimSpace(in.GuestID),
		Status:    StatusOpen,
		Balance:   decimal.Zero,
		CreatedAt: now,
		CreatedBy: scope.actor(),
	}
	op := &Operation{
		ID:        OperationID(l.NewID()),
		TenantID:  scope.TenantID,
		FolioID:   f.ID,
		Subject:   SubjectFolio,
		Action:    ActionCreated,
		Actor:     scope.actor(),
		Details:   OperationDetails{Amount: decimal.Zero},
		CreatedAt: now,
	}

	err := l.Store.WithTx(ctx, func(st Store) error {
		if err := st.InsertFolio(ctx, f); err != nil {
			return err
		}
		return st.InsertOperation(ctx, op)
	})
	if err != nil {
		return nil, l.storageErr(scope, "create_folio", 1, err)
	}

	l.log(scope, f.ID).WithFields(logrus.Fields{
		"folio_number": f.Number,
		"folio_type":   f.Type,
		"booking_id":   f.BookingID,
	}).Info("folio created")
	return f, nil
}

// GetFolio returns the folio with its cached balance.
func (l *Ledger) GetFolio(ctx context.Context, scope Scope, id FolioID) (*Folio, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	f, err := l.Store.GetFolio(ctx, scope.TenantID, id)
	if err != nil {
		return nil, l.storageErr(scope, "get_folio", 1, err)
	}
	if f == nil {
		return nil, notFound("folio", string(id))
	}
	return f, nil
}

func (l *Ledger) ListFolios(ctx context.Context, scope Scope, filter FolioFilter) ([]Folio, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	folios, err := l.Store.ListFolios(ctx, scope.TenantID, filter)
	if err != nil {
		return nil, l.storageErr(scope, "list_folios", 1, err)
	}
	return folios, nil
}

// CloseFolio settles a folio. The outstanding balance must be zero.
func (l *Ledger) CloseFolio(ctx context.Context, scope Scope, id FolioID) (*Folio, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}

	var closed *Folio
	err := l.mutate(ctx, scope, "close_folio", []FolioID{id}, func(st Store) error {
		f, err := openFolio(ctx, st, scope, id)
		if err != nil {
			return err
		}
		if err := l.recompute(ctx, st, f); err != nil {
			return err
		}
		if !f.Balance.IsZero() {
			bal := f.Balance
			return &ConflictError{
				Reason:  "outstanding balance must be zero before closing",
				FolioID: f.ID,
				Balance: &bal,
				State:   string(f.Status),
			}
		}

		now := l.Now()
		f.Status = StatusClosed
		f.ClosedAt = &now
		f.ClosedBy = scope.actor()
		if err := st.UpdateFolio(ctx, f); err != nil {
			return err
		}
		closed = f
		return st.InsertOperation(ctx, &Operation{
			ID:        OperationID(l.NewID()),
			TenantID:  scope.TenantID,
			FolioID:   f.ID,
			Subject:   SubjectFolio,
			Action:    ActionClosed,
			Actor:     scope.actor(),
			Details:   OperationDetails{Amount: decimal.Zero},
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	l.log(scope, id).Info("folio closed")
	return closed, nil
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

func (in ChargeInput) validate() error {
	if !in.Category.Valid() {
		return invalid("charge_category", "unknown category %q", in.Category)
	}
	if !in.Amount.IsPositive() {
		return invalid("amount", "must be greater than 0")
	}
	if !in.Quantity.IsPositive() {
		return invalid("quantity", "must be greater than 0")
	}
	if !ChargeTotal(in.Amount, in.Quantity).IsPositive() {
		return invalid("amount", "total rounds to zero at %d decimal places", MoneyPlaces)
	}
	return nil
}

func (in PaymentInput) validate() error {
	if !in.Amount.Round(MoneyPlaces).IsPositive() {
		return invalid("amount", "must be at least 0.01")
	}
	if !in.Method.Valid() {
		return invalid("method", "unknown payment method %q", in.Method)
	}
	if !in.PaymentType.Valid() {
		return invalid("payment_type", "must be one of deposit, interim, final (got %q)", in.PaymentType)
	}
	return nil
}

// AddCharge posts a debit line and refreshes the folio balance.
func (l *Ledger) AddCharge(ctx context.Context, scope Scope, folioID FolioID, in ChargeInput) (*Charge, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		desc = title(string(in.Category))
	}
	c := &Charge{
		ID:          ChargeID(l.NewID()),
		TenantID:    scope.TenantID,
		FolioID:     folioID,
		Category:    in.Category,
		Description: desc,
		Amount:      in.Amount,
		Quantity:    in.Quantity,
		Total:       ChargeTotal(in.Amount, in.Quantity),
		CreatedAt:   l.Now(),
		CreatedBy:   scope.actor(),
	}

	var balance decimal.Decimal
	err := l.mutate(ctx, scope, "add_charge", []FolioID{folioID}, func(st Store) error {
		f, err := openFolio(ctx, st, scope, folioID)
		if err != nil {
			return err
		}
		if err := st.InsertCharge(ctx, c); err != nil {
			return err
		}
		if err := l.recompute(ctx, st, f); err != nil {
			return err
		}
		balance = f.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log(scope, folioID).WithFields(logrus.Fields{
		"charge_id": c.ID,
		"category":  c.Category,
		"total":     c.Total.StringFixed(2),
		"balance":   balance.StringFixed(2),
	}).Info("charge posted")
	return c, nil
}

// AddPayment posts a credit line and refreshes the folio balance.
func (l *Ledger) AddPayment(ctx context.Context, scope Scope, folioID FolioID, in PaymentInput) (*Payment, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	p := &Payment{
		ID:          PaymentID(l.NewID()),
		TenantID:    scope.TenantID,
		FolioID:     folioID,
		Amount:      in.Amount.Round(MoneyPlaces),
		Method:      in.Method,
		PaymentType: in.PaymentType,
		Reference:   strings.TrimSpace(in.Reference),
		CreatedAt:   l.Now(),
		CreatedBy:   scope.actor(),
	}

	var balance decimal.Decimal
	err := l.mutate(ctx, scope, "add_payment", []FolioID{folioID}, func(st Store) error {
		f, err := openFolio(ctx, st, scope, folioID)
		if err != nil {
			return err
		}
		if err := st.InsertPayment(ctx, p); err != nil {
			return err
		}
		if err := l.recompute(ctx, st, f); err != nil {
			return err
		}
		balance = f.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log(scope, folioID).WithFields(logrus.Fields{
		"payment_id":   p.ID,
		"method":       p.Method,
		"payment_type": p.PaymentType,
		"amount":       p.Amount.StringFixed(2),
		"balance":      balance.StringFixed(2),
	}).Info("payment posted")
	return p, nil
}

func (l *Ledger) ListCharges(ctx context.Context, scope Scope, folioID FolioID) ([]Charge, error) {
	if _, err := l.GetFolio(ctx, scope, folioID); err != nil {
		return nil, err
	}
	charges, err := l.Store.ListCharges(ctx, scope.TenantID, folioID)
	if err != nil {
		return nil, l.storageErr(scope, "list_charges", 1, err)
	}
	return charges, nil
}

func (l *Ledger) ListPayments(ctx context.Context, scope Scope, folioID FolioID) ([]Payment, error) {
	if _, err := l.GetFolio(ctx, scope, folioID); err != nil {
		return nil, err
	}
	payments, err := l.Store.ListPayments(ctx, scope.TenantID, folioID)
	if err != nil {
		return nil, l.storageErr(scope, "list_payments", 1, err)
	}
	return payments, nil
}

// =============================================================================
// READ SIDE
// =============================================================================

// ActivityLog returns the folio's charges, payments and operations, newest
// first. It takes no locks; a write in flight shows up on the next call.
func (l *Ledger) ActivityLog(ctx context.Context, scope Scope, folioID FolioID) ([]ActivityItem, error) {
	if _, err := l.GetFolio(ctx, scope, folioID); err != nil {
		return nil, err
	}
	charges, err := l.Store.ListCharges(ctx, scope.TenantID, folioID)
	if err != nil {
		return nil, l.storageErr(scope, "activity_log", 1, err)
	}
	payments, err := l.Store.ListPayments(ctx, scope.TenantID, folioID)
	if err != nil {
		return nil, l.storageErr(scope, "activity_log", 1, err)
	}
	ops, err := l.Store.ListOperations(ctx, scope.TenantID, folioID)
	if err != nil {
		return nil, l.storageErr(scope, "activity_log", 1, err)
	}
	return AssembleActivity(Entries(charges, payments, ops))
}

// Summary returns the folio with its balance broken down from the entries.
// Summary.Balance can differ from Folio.Balance only if the cache drifted.
func (l *Ledger) Summary(ctx context.Context, scope Scope, folioID FolioID) (*Folio, BalanceSummary, error) {
	f, err := l.GetFolio(ctx, scope, folioID)
	if err != nil {
		return nil, BalanceSummary{}, err
	}
	charges, err := l.Store.ListCharges(ctx, scope.TenantID, folioID)
	if err != nil {
		return nil, BalanceSummary{}, l.storageErr(scope, "summary", 1, err)
	}
	payments, err := l.Store.ListPayments(ctx, scope.TenantID, folioID)
	if err != nil {
		return nil, BalanceSummary{}, l.storageErr(scope, "summary", 1, err)
	}
	s, err := Summarize(Entries(charges, payments, nil))
	if err != nil {
		return nil, BalanceSummary{}, err
	}
	return f, s, nil
}

// Recompute re-derives and persists a folio's balance. It also works on
// closed folios so drift can be detected after settlement.
func (l *Ledger) Recompute(ctx context.Context, scope Scope, folioID FolioID) (RecomputeResult, error) {
	if err := scope.validate(); err != nil {
		return RecomputeResult{}, err
	}

	var res RecomputeResult
	err := l.mutate(ctx, scope, "recompute", []FolioID{folioID}, func(st Store) error {
		f, err := st.GetFolio(ctx, scope.TenantID, folioID)
		if err != nil {
			return err
		}
		if f == nil {
			return notFound("folio", string(folioID))
		}
		res.FolioID = f.ID
		res.Previous = f.Balance
		if err := l.recompute(ctx, st, f); err != nil {
			return err
		}
		res.Balance = f.Balance
		res.Drifted = !res.Previous.Equal(res.Balance)
		return nil
	})
	if err != nil {
		return RecomputeResult{}, err
	}

	if res.Drifted {
		l.log(scope, folioID).WithFields(logrus.Fields{
			"previous": res.Previous.StringFixed(2),
			"balance":  res.Balance.StringFixed(2),
		}).Warn("cached balance drifted; repaired")
	}
	return res, nil
}

// Tenants lists every tenant with at least one folio.
func (l *Ledger) Tenants(ctx context.Context) ([]TenantID, error) {
	tenants, err := l.Store.ListTenants(ctx)
	if err != nil {
		return nil, l.storageErr(Scope{}, "list_tenants", 1, err)
	}
	return tenants, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// mutate runs fn in one store transaction while holding the locks of every
// folio in ids.
func (l *Ledger) mutate(ctx context.Context, scope Scope, op string, ids []FolioID, fn func(Store) error) error {
	unlock, err := l.lock(ctx, scope, ids)
	if err != nil {
		return l.storageErr(scope, op, 1, err)
	}
	defer unlock()

	if err := l.Store.WithTx(ctx, fn); err != nil {
		return l.storageErr(scope, op, 1, err)
	}
	return nil
}

func (l *Ledger) lock(ctx context.Context, scope Scope, ids []FolioID) (func(), error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = LockKey(scope.TenantID, id)
	}
	return l.Locker.Lock(ctx, keys...)
}

// recompute refreshes f.Balance from the entries visible to st and persists it.
func (l *Ledger) recompute(ctx context.Context, st Store, f *Folio) error {
	charges, err := st.ListCharges(ctx, f.TenantID, f.ID)
	if err != nil {
		return err
	}
	payments, err := st.ListPayments(ctx, f.TenantID, f.ID)
	if err != nil {
		return err
	}
	balance, err := CalculateBalance(Entries(charges, payments, nil))
	if err != nil {
		return err
	}
	f.Balance = balance
	return st.UpdateFolio(ctx, f)
}

// openFolio loads a folio that can still accept postings.
func openFolio(ctx context.Context, st Store, scope Scope, id FolioID) (*Folio, error) {
	f, err := st.GetFolio(ctx, scope.TenantID, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, notFound("folio", string(id))
	}
	if f.IsClosed() {
		return nil, &ConflictError{Reason: "folio is closed", FolioID: f.ID, State: string(StatusClosed)}
	}
	return f, nil
}

// storageErr passes domain errors through and hides everything else behind
// a StorageError.
func (l *Ledger) storageErr(scope Scope, op string, attempts int, err error) error {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindConflict, KindStorage:
		return err
	}
	if errors.Is(err, errOwnerMoved) {
		return err
	}
	l.Logger.WithFields(logrus.Fields{
		"tenant_id": scope.TenantID,
		"op":        op,
		"attempts":  attempts,
	}).WithError(err).Error("storage operation failed")
	return &StorageError{Op: op, Attempts: attempts, Err: err}
}

func (l *Ledger) log(scope Scope, folioID FolioID) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"tenant_id": scope.TenantID,
		"folio_id":  folioID,
		"actor":     scope.actor(),
	})
}

// folioNumber renders the human-readable number, e.g. F-20260314-3F9A1C.
func folioNumber(at time.Time, id string) string {
	suffix := strings.ReplaceAll(id, "-", "")
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return fmt.Sprintf("F-%s-%s", at.Format("20060102"), strings.ToUpper(suffix))
}
