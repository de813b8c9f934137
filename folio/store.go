/*
store.go - Persistence interface for folios and their entries

PURPOSE:
  Defines the boundary between the ledger and the database. Four logical
  collections, each tenant-scoped: folios, folio_charges, folio_payments,
  folio_operations.

WRITE RULES:
  - Charges and payments are inserted once and updated only to void them
    or (charges only) to move them to another folio.
  - Operations are insert-only.
  - Nothing is ever deleted.
  - Insert* assigns Seq, a strictly increasing sequence shared by all three
    entry collections. It orders entries that share a timestamp.

LOOKUPS:
  Get* returns (nil, nil) when the id does not exist for the tenant.
  List* returns entries of one folio ordered by Seq.

IMPLEMENTATIONS:
  - folio/store/memory.go: in-memory, for tests and development
  - store/sqlite/sqlite.go: SQLite
*/
package folio

import "context"

type Store interface {
	InsertFolio(ctx context.Context, f *Folio) error
	GetFolio(ctx context.Context, tenantID TenantID, id FolioID) (*Folio, error)
	UpdateFolio(ctx context.Context, f *Folio) error
	ListFolios(ctx context.Context, tenantID TenantID, filter FolioFilter) ([]Folio, error)

	// ListTenants returns every tenant that owns at least one folio.
	ListTenants(ctx context.Context) ([]TenantID, error)

	InsertCharge(ctx context.Context, c *Charge) error
	GetCharge(ctx context.Context, tenantID TenantID, id ChargeID) (*Charge, error)
	UpdateCharge(ctx context.Context, c *Charge) error
	ListCharges(ctx context.Context, tenantID TenantID, folioID FolioID) ([]Charge, error)

	InsertPayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, tenantID TenantID, id PaymentID) (*Payment, error)
	UpdatePayment(ctx context.Context, p *Payment) error
	ListPayments(ctx context.Context, tenantID TenantID, folioID FolioID) ([]Payment, error)

	InsertOperation(ctx context.Context, op *Operation) error
	ListOperations(ctx context.Context, tenantID TenantID, folioID FolioID) ([]Operation, error)
}

// TxStore wraps Store with transaction support.
// If fn returns an error every write made through the Store handed to fn is
// rolled back. fn must only use that Store, never the outer one.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
