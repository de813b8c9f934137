/*
Package folio provides the folio billing ledger.

PURPOSE:
  A folio is a billing account for a guest stay, a company or a master
  account. Charges (debits) and payments (credits) are posted against it,
  and the folio carries a cached balance that always equals the sum of its
  active charges minus the sum of its active payments.

KEY CONCEPTS IN THIS FILE (types.go):
  - Folio: the owning aggregate (identity, type, status, cached balance)
  - Charge / Payment: ledger entries, voided in place, never deleted
  - Operation: append-only structural record (create, close, void, transfer)
  - Entry: the closed set {Charge, Payment, Operation}
  - Scope: tenant + actor carried by every call

DESIGN PRINCIPLES:
  1. Precision: money is decimal.Decimal, rounded to 2 places
  2. Tenancy: every lookup is scoped by TenantID
  3. Auditability: voids and transfers leave Operation records behind
  4. Derived balance: Balance is recomputed from entries after every write

SEE ALSO:
  - ledger.go: the Ledger service (create/get/close, post charges/payments)
  - void.go, transfer.go: mutating engines
  - balance.go, activity.go: pure read-side calculations
  - store.go: persistence interface
*/
package folio

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type FolioID string
type ChargeID string
type PaymentID string
type OperationID string

// Scope identifies who is calling. The ledger never authenticates; it only
// partitions every query by TenantID and stamps Actor on audit fields.
type Scope struct {
	TenantID TenantID
	Actor    string
}

// SystemActor is recorded when the caller did not supply an actor.
const SystemActor = "system"

func (s Scope) actor() string {
	if s.Actor == "" {
		return SystemActor
	}
	return s.Actor
}

func (s Scope) validate() error {
	if s.TenantID == "" {
		return &ValidationError{Field: "tenant_id", Message: "tenant id is required"}
	}
	return nil
}

// =============================================================================
// FOLIO
// =============================================================================

type FolioType string

const (
	FolioGuest   FolioType = "guest"
	FolioCompany FolioType = "company"
	FolioMaster  FolioType = "master"
)

func (t FolioType) Valid() bool {
	switch t {
	case FolioGuest, FolioCompany, FolioMaster:
		return true
	}
	return false
}

type FolioStatus string

const (
	StatusOpen   FolioStatus = "open"
	StatusClosed FolioStatus = "closed"
)

type Folio struct {
	ID        FolioID
	TenantID  TenantID
	Number    string
	Type      FolioType
	BookingID string
	CompanyID string
	GuestID   string
	Status    FolioStatus
	Balance   decimal.Decimal

	CreatedAt time.Time
	CreatedBy string
	ClosedAt  *time.Time
	ClosedBy  string
}

func (f *Folio) IsClosed() bool { return f.Status == StatusClosed }

// FolioFilter narrows ListFolios. Zero fields match everything.
type FolioFilter struct {
	BookingID string
	Status    FolioStatus
	Type      FolioType
}

func (ff FolioFilter) Matches(f Folio) bool {
	if ff.BookingID != "" && f.BookingID != ff.BookingID {
		return false
	}
	if ff.Status != "" && f.Status != ff.Status {
		return false
	}
	if ff.Type != "" && f.Type != ff.Type {
		return false
	}
	return true
}

// =============================================================================
// ENTRIES
// =============================================================================

// Entry is implemented by *Charge, *Payment and *Operation only.
// Code that switches over entries must handle all three.
type Entry interface {
	EntryKind() EntryKind
	Timestamp() time.Time
	Sequence() int64
	isEntry()
}

type EntryKind string

const (
	KindCharge    EntryKind = "charge"
	KindPayment   EntryKind = "payment"
	KindOperation EntryKind = "operation"
)

// Action describes what happened to an entry. Operations carry one
// explicitly; charges and payments derive theirs from their state.
type Action string

const (
	ActionPosted         Action = "posted"
	ActionVoided         Action = "voided"
	ActionTransferredIn  Action = "transferred-in"
	ActionTransferredOut Action = "transferred-out"
	ActionCreated        Action = "created"
	ActionClosed         Action = "closed"
)

// VoidInfo is the immutable audit extension set when an entry is voided.
type VoidInfo struct {
	Voided     bool
	VoidReason string
	VoidedBy   string
	VoidedAt   *time.Time
}

type ChargeCategory string

const (
	CategoryRoom      ChargeCategory = "room"
	CategoryFood      ChargeCategory = "food"
	CategoryBeverage  ChargeCategory = "beverage"
	CategoryMinibar   ChargeCategory = "minibar"
	CategoryLaundry   ChargeCategory = "laundry"
	CategorySpa       ChargeCategory = "spa"
	CategoryTelephone ChargeCategory = "telephone"
	CategoryOther     ChargeCategory = "other"
)

func (c ChargeCategory) Valid() bool {
	switch c {
	case CategoryRoom, CategoryFood, CategoryBeverage, CategoryMinibar,
		CategoryLaundry, CategorySpa, CategoryTelephone, CategoryOther:
		return true
	}
	return false
}

// Charge is a debit line. Amount is the unit price; Total is fixed at
// posting time and preserved after a void.
type Charge struct {
	ID          ChargeID
	TenantID    TenantID
	FolioID     FolioID
	Category    ChargeCategory
	Description string
	Amount      decimal.Decimal
	Quantity    decimal.Decimal
	Total       decimal.Decimal
	VoidInfo

	TransferredFrom FolioID
	TransferredAt   *time.Time

	CreatedAt time.Time
	CreatedBy string
	Seq       int64
}

func (c *Charge) EntryKind() EntryKind { return KindCharge }
func (c *Charge) Timestamp() time.Time { return c.CreatedAt }
func (c *Charge) Sequence() int64 { return c.Seq }
func (c *Charge) isEntry() {}

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodCard         PaymentMethod = "card"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCityLedger   PaymentMethod = "city_ledger"
	MethodVoucher      PaymentMethod = "voucher"
	MethodOther        PaymentMethod = "other"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodBankTransfer, MethodCityLedger, MethodVoucher, MethodOther:
		return true
	}
	return false
}

type PaymentType string

const (
	PaymentDeposit PaymentType = "deposit"
	PaymentInterim PaymentType = "interim"
	PaymentFinal   PaymentType = "final"
)

func (p PaymentType) Valid() bool {
	switch p {
	case PaymentDeposit, PaymentInterim, PaymentFinal:
		return true
	}
	return false
}

// Payment is a credit line. Payments stay on the folio they were posted to.
type Payment struct {
	ID          PaymentID
	TenantID    TenantID
	FolioID     FolioID
	Amount      decimal.Decimal
	Method      PaymentMethod
	PaymentType PaymentType
	Reference   string
	VoidInfo

	CreatedAt time.Time
	CreatedBy string
	Seq       int64
}

func (p *Payment) EntryKind() EntryKind { return KindPayment }
func (p *Payment) Timestamp() time.Time { return p.CreatedAt }
func (p *Payment) Sequence() int64 { return p.Seq }
func (p *Payment) isEntry() {}

// Subject is what an Operation is about.
type Subject string

const (
	SubjectFolio   Subject = "folio"
	SubjectCharge  Subject = "charge"
	SubjectPayment Subject = "payment"
)

type OperationDetails struct {
	EntryIDs       []string        `json:"entry_ids,omitempty"`
	CounterFolioID FolioID         `json:"counter_folio_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
}

// Operation is an append-only structural record. It never moves money by
// itself; it explains why balances moved.
type Operation struct {
	ID        OperationID
	TenantID  TenantID
	FolioID   FolioID
	Subject   Subject
	Action    Action
	Reason    string
	Actor     string
	Details   OperationDetails
	CreatedAt time.Time
	Seq       int64
}

func (o *Operation) EntryKind() EntryKind { return KindOperation }
func (o *Operation) Timestamp() time.Time { return o.CreatedAt }
func (o *Operation) Sequence() int64 { return o.Seq }
func (o *Operation) isEntry() {}

// =============================================================================
// INPUTS
// =============================================================================

type CreateFolioInput struct {
	Type      FolioType
	BookingID string
	CompanyID string
	GuestID   string
}

type ChargeInput struct {
	Category    ChargeCategory
	Description string
	Amount      decimal.Decimal
	Quantity    decimal.Decimal
}

type PaymentInput struct {
	Amount      decimal.Decimal
	Method      PaymentMethod
	PaymentType PaymentType
	Reference   string
}

type TransferInput struct {
	FromFolioID FolioID
	ToFolioID   FolioID
	ChargeIDs   []ChargeID
	Reason      string
}

type TransferResult struct {
	From Folio
	To   Folio
}

// RecomputeResult reports a balance refresh. Drifted is true when the
// cached balance disagreed with the entries before the refresh.
type RecomputeResult struct {
	FolioID  FolioID
	Previous decimal.Decimal
	Balance  decimal.Decimal
	Drifted  bool
}
