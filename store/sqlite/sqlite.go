/*
Package sqlite provides a SQLite-backed implementation of folio.TxStore.

KEY TABLES:
  folios:            folio aggregate with cached balance
  folio_charges:     debit entries (voided in place, moved by transfer)
  folio_payments:    credit entries (voided in place)
  folio_operations:  structural audit records (insert-only)
  ledger_sequence:   single-row counter feeding the shared Seq column

RETENTION:
  Triggers reject every DELETE on the four ledger tables and every UPDATE
  on folio_operations. Financial records are never removed.

MONEY:
  Decimals are stored as TEXT (decimal.Decimal.String) so no value passes
  through a binary float.

CONCURRENCY:
  Writes are serialized with sync.RWMutex and run in BEGIN IMMEDIATE
  transactions. SQLITE_BUSY / SQLITE_LOCKED are reported wrapped in
  folio.ErrRetryable.

WAL MODE:
  The database is opened with WAL and a busy timeout. ":memory:" databases
  are pinned to a single connection so every query sees the same data.

USAGE:
  store, err := sqlite.New("./data/folio.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := folio.NewLedger(store)
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/folio-ledger/folio"
)

// Store implements folio.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ folio.TxStore = (*Store)(nil)

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS folios (
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		number TEXT NOT NULL,
		folio_type TEXT NOT NULL,
		booking_id TEXT,
		company_id TEXT,
		guest_id TEXT,
		status TEXT NOT NULL DEFAULT 'open',
		balance TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		created_by TEXT NOT NULL,
		closed_at TEXT,
		closed_by TEXT,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_folios_tenant_booking
		ON folios(tenant_id, booking_id);
	CREATE INDEX IF NOT EXISTS idx_folios_tenant_status
		ON folios(tenant_id, status);

	CREATE TABLE IF NOT EXISTS folio_charges (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		folio_id TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		quantity TEXT NOT NULL,
		total TEXT NOT NULL,
		voided INTEGER NOT NULL DEFAULT 0,
		void_reason TEXT,
		voided_by TEXT,
		voided_at TEXT,
		transferred_from TEXT,
		transferred_at TEXT,
		created_at TEXT NOT NULL,
		created_by TEXT NOT NULL,
		UNIQUE (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_charges_tenant_folio
		ON folio_charges(tenant_id, folio_id, seq);

	CREATE TABLE IF NOT EXISTS folio_payments (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		folio_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		method TEXT NOT NULL,
		payment_type TEXT NOT NULL,
		reference TEXT,
		voided INTEGER NOT NULL DEFAULT 0,
		void_reason TEXT,
		voided_by TEXT,
		voided_at TEXT,
		created_at TEXT NOT NULL,
		created_by TEXT NOT NULL,
		UNIQUE (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_payments_tenant_folio
		ON folio_payments(tenant_id, folio_id, seq);

	CREATE TABLE IF NOT EXISTS folio_operations (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		folio_id TEXT NOT NULL,
		subject TEXT NOT NULL,
		action TEXT NOT NULL,
		reason TEXT,
		actor TEXT NOT NULL,
		details_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_operations_tenant_folio
		ON folio_operations(tenant_id, folio_id, seq);

	CREATE TABLE IF NOT EXISTS ledger_sequence (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		value INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO ledger_sequence (id, value) VALUES (1, 0);

	CREATE TRIGGER IF NOT EXISTS folios_no_delete BEFORE DELETE ON folios
	BEGIN SELECT RAISE(ABORT, 'folios are never deleted'); END;
	CREATE TRIGGER IF NOT EXISTS folio_charges_no_delete BEFORE DELETE ON folio_charges
	BEGIN SELECT RAISE(ABORT, 'charges are never deleted'); END;
	CREATE TRIGGER IF NOT EXISTS folio_payments_no_delete BEFORE DELETE ON folio_payments
	BEGIN SELECT RAISE(ABORT, 'payments are never deleted'); END;
	CREATE TRIGGER IF NOT EXISTS folio_operations_no_delete BEFORE DELETE ON folio_operations
	BEGIN SELECT RAISE(ABORT, 'operations are never deleted'); END;
	CREATE TRIGGER IF NOT EXISTS folio_operations_no_update BEFORE UPDATE ON folio_operations
	BEGIN SELECT RAISE(ABORT, 'operations are append-only'); END;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (folio.TxStore)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(folio.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return classify(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// classify marks transient SQLite failures as retryable.
func classify(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", folio.ErrRetryable, err)
	}
	return err
}

// Standalone writes get their own transaction; reads share the pool.

func (s *Store) InsertFolio(ctx context.Context, f *folio.Folio) error {
	return s.WithTx(ctx, func(st folio.Store) error { return st.InsertFolio(ctx, f) })
}

func (s *Store) UpdateFolio(ctx context.Context, f *folio.Folio) error {
	return s.WithTx(ctx, func(st folio.Store) error { return st.UpdateFolio(ctx, f) })
}

func (s *Store) InsertCharge(ctx context.Context, c *folio.Charge) error {
	return s.WithTx(ctx, func(st folio.Store) error { return st.InsertCharge(ctx, c) })
}

func (s *Store) UpdateCharge(ctx context.Context, c *folio.Charge) error {
	return s.WithTx(ctx, func(st folio.Store) error { return st.UpdateCharge(ctx, c) })
}

func (s *Store) InsertPayment(ctx context.Context, p *folio.Payment) error {
	return s.WithTx(ctx, func(st folio.Store) error { return st.InsertPayment(ctx, p) })
}

func (s *Store) UpdatePayment(ctx context.Context, p *folio.Payment) error {
	return s.WithTx(ctx, func(st folio.Store) error { return st.UpdatePayment(ctx, p) })
}

func (s *Store) InsertOperation(ctx context.Context, op *folio.Operation) error {
	return s.WithTx(ctx, func(st folio.Store) error { return st.InsertOperation(ctx, op) })
}

func (s *Store) GetFolio(ctx context.Context, tenantID folio.TenantID, id folio.FolioID) (*folio.Folio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&queries{q: s.db}).GetFolio(ctx, tenantID, id)
}

func (s *Store) ListFolios(ctx context.Context, tenantID folio.TenantID, filter folio.FolioFilter) ([]folio.Folio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&queries{q: s.db}).ListFolios(ctx, tenantID, filter)
}

func (s *Store) ListTenants(ctx context.Context) ([]folio.TenantID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&queries{q: s.db}).ListTenants(ctx)
}

func (s *Store) GetCharge(ctx context.Context, tenantID folio.TenantID, id folio.ChargeID) (*folio.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&queries{q: s.db}).GetCharge(ctx, tenantID, id)
}

func (s *Store) ListCharges(ctx context.Context, tenantID folio.TenantID, folioID folio.FolioID) ([]folio.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&queries{q: s.db}).ListCharges(ctx, tenantID, folioID)
}

func (s *Store) GetPayment(ctx context.Context, tenantID folio.TenantID, id folio.PaymentID) (*folio.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&queries{q: s.db}).GetPayment(ctx, tenantID, id)
}

func (s *Store) ListPayments(ctx context.Context, tenantID folio.TenantID, folioID folio.FolioID) ([]folio.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&queries{q: s.db}).ListPayments(ctx, tenantID, folioID)
}

func (s *Store) ListOperations(ctx context.Context, tenantID folio.TenantID, folioID folio.FolioID) ([]folio.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&queries{q: s.db}).ListOperations(ctx, tenantID, folioID)
}

// =============================================================================
// QUERIES - shared by *sql.DB and *sql.Tx
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q querier
}

func (qs *queries) nextSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.q.QueryRowContext(ctx,
		"UPDATE ledger_sequence SET value = value + 1 WHERE id = 1 RETURNING value",
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to advance ledger sequence: %w", err)
	}
	return seq, nil
}

// --- folios ---

const folioColumns = `id, tenant_id, number, folio_type, booking_id, company_id, guest_id,
	status, balance, created_at, created_by, closed_at, closed_by`

func (qs *queries) InsertFolio(ctx context.Context, f *folio.Folio) error {
	_, err := qs.q.ExecContext(ctx, `
		INSERT INTO folios (`+folioColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.TenantID, f.Number, f.Type,
		nullString(f.BookingID), nullString(f.CompanyID), nullString(f.GuestID),
		f.Status, f.Balance.String(),
		formatTime(f.CreatedAt), f.CreatedBy,
		nullTime(f.ClosedAt), nullString(f.ClosedBy),
	)
	if err != nil {
		return fmt.Errorf("failed to insert folio: %w", err)
	}
	return nil
}

func (qs *queries) GetFolio(ctx context.Context, tenantID folio.TenantID, id folio.FolioID) (*folio.Folio, error) {
	rows, err := qs.q.QueryContext(ctx,
		"SELECT "+folioColumns+" FROM folios WHERE tenant_id = ? AND id = ?",
		tenantID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query folio: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	f, err := scanFolio(rows)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (qs *queries) UpdateFolio(ctx context.Context, f *folio.Folio) error {
	res, err := qs.q.ExecContext(ctx, `
		UPDATE folios
		SET status = ?, balance = ?, closed_at = ?, closed_by = ?
		WHERE tenant_id = ? AND id = ?`,
		f.Status, f.Balance.String(), nullTime(f.ClosedAt), nullString(f.ClosedBy),
		f.TenantID, f.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update folio: %w", err)
	}
	return expectOneRow(res, "folio", string(f.ID))
}

func (qs *queries) ListFolios(ctx context.Context, tenantID folio.TenantID, filter folio.FolioFilter) ([]folio.Folio, error) {
	query := "SELECT " + folioColumns + " FROM folios WHERE tenant_id = ?"
	args := []any{tenantID}
	if filter.BookingID != "" {
		query += " AND booking_id = ?"
		args = append(args, filter.BookingID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		query += " AND folio_type = ?"
		args = append(args, filter.Type)
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := qs.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query folios: %w", err)
	}
	defer rows.Close()

	var folios []folio.Folio
	for rows.Next() {
		f, err := scanFolio(rows)
		if err != nil {
			return nil, err
		}
		folios = append(folios, f)
	}
	return folios, rows.Err()
}

func (qs *queries) ListTenants(ctx context.Context) ([]folio.TenantID, error) {
	rows, err := qs.q.QueryContext(ctx, "SELECT DISTINCT tenant_id FROM folios ORDER BY tenant_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query tenants: %w", err)
	}
	defer rows.Close()

	var tenants []folio.TenantID
	for rows.Next() {
		var t folio.TenantID
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func scanFolio(rows *sql.Rows) (folio.Folio, error) {
	var (
		f                             folio.Folio
		bookingID, companyID, guestID sql.NullString
		balance, createdAt            string
		closedAt, closedBy            sql.NullString
	)
	err := rows.Scan(
		&f.ID, &f.TenantID, &f.Number, &f.Type, &bookingID, &companyID, &guestID,
		&f.Status, &balance, &createdAt, &f.CreatedBy, &closedAt, &closedBy,
	)
	if err != nil {
		return f, fmt.Errorf("failed to scan folio: %w", err)
	}
	f.BookingID = bookingID.String
	f.CompanyID = companyID.String
	f.GuestID = guestID.String
	if f.Balance, err = parseDecimal("balance", balance); err != nil {
		return f, err
	}
	f.CreatedAt = parseTime(createdAt)
	f.ClosedAt = parseNullTime(closedAt)
	f.ClosedBy = closedBy.String
	return f, nil
}

// --- charges ---

const chargeColumns = `seq, id, tenant_id, folio_id, category, description, amount, quantity, total,
	voided, void_reason, voided_by, voided_at, transferred_from, transferred_at, created_at, created_by`

func (qs *queries) InsertCharge(ctx context.Context, c *folio.Charge) error {
	seq, err := qs.nextSeq(ctx)
	if err != nil {
		return err
	}
	_, err = qs.q.ExecContext(ctx, `
		INSERT INTO folio_charges (`+chargeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seq, c.ID, c.TenantID, c.FolioID, c.Category, c.Description,
		c.Amount.String(), c.Quantity.String(), c.Total.String(),
		c.Voided, nullString(c.VoidReason), nullString(c.VoidedBy), nullTime(c.VoidedAt),
		nullString(string(c.TransferredFrom)), nullTime(c.TransferredAt),
		formatTime(c.CreatedAt), c.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert charge: %w", err)
	}
	c.Seq = seq
	return nil
}

func (qs *queries) GetCharge(ctx context.Context, tenantID folio.TenantID, id folio.ChargeID) (*folio.Charge, error) {
	charges, err := qs.queryCharges(ctx,
		"SELECT "+chargeColumns+" FROM folio_charges WHERE tenant_id = ? AND id = ?",
		tenantID, id,
	)
	if err != nil || len(charges) == 0 {
		return nil, err
	}
	return &charges[0], nil
}

// UpdateCharge writes the mutable columns only: void state and ownership.
func (qs *queries) UpdateCharge(ctx context.Context, c *folio.Charge) error {
	res, err := qs.q.ExecContext(ctx, `
		UPDATE folio_charges
		SET folio_id = ?, voided = ?, void_reason = ?, voided_by = ?, voided_at = ?,
		    transferred_from = ?, transferred_at = ?
		WHERE tenant_id = ? AND id = ?`,
		c.FolioID, c.Voided, nullString(c.VoidReason), nullString(c.VoidedBy), nullTime(c.VoidedAt),
		nullString(string(c.TransferredFrom)), nullTime(c.TransferredAt),
		c.TenantID, c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update charge: %w", err)
	}
	return expectOneRow(res, "charge", string(c.ID))
}

func (qs *queries) ListCharges(ctx context.Context, tenantID folio.TenantID, folioID folio.FolioID) ([]folio.Charge, error) {
	return qs.queryCharges(ctx,
		"SELECT "+chargeColumns+" FROM folio_charges WHERE tenant_id = ? AND folio_id = ? ORDER BY seq ASC",
		tenantID, folioID,
	)
}

func (qs *queries) queryCharges(ctx context.Context, query string, args ...any) ([]folio.Charge, error) {
	rows, err := qs.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query charges: %w", err)
	}
	defer rows.Close()

	var charges []folio.Charge
	for rows.Next() {
		var (
			c                              folio.Charge
			amount, quantity, total        string
			voidReason, voidedBy, voidedAt sql.NullString
			transferredFrom, transferredAt sql.NullString
			createdAt                      string
		)
		err := rows.Scan(
			&c.Seq, &c.ID, &c.TenantID, &c.FolioID, &c.Category, &c.Description,
			&amount, &quantity, &total,
			&c.Voided, &voidReason, &voidedBy, &voidedAt,
			&transferredFrom, &transferredAt, &createdAt, &c.CreatedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan charge: %w", err)
		}
		if c.Amount, err = parseDecimal("amount", amount); err != nil {
			return nil, err
		}
		if c.Quantity, err = parseDecimal("quantity", quantity); err != nil {
			return nil, err
		}
		if c.Total, err = parseDecimal("total", total); err != nil {
			return nil, err
		}
		c.VoidReason = voidReason.String
		c.VoidedBy = voidedBy.String
		c.VoidedAt = parseNullTime(voidedAt)
		c.TransferredFrom = folio.FolioID(transferredFrom.String)
		c.TransferredAt = parseNullTime(transferredAt)
		c.CreatedAt = parseTime(createdAt)
		charges = append(charges, c)
	}
	return charges, rows.Err()
}

// --- payments ---

const paymentColumns = `seq, id, tenant_id, folio_id, amount, method, payment_type, reference,
	voided, void_reason, voided_by, voided_at, created_at, created_by`

func (qs *queries) InsertPayment(ctx context.Context, p *folio.Payment) error {
	seq, err := qs.nextSeq(ctx)
	if err != nil {
		return err
	}
	_, err = qs.q.ExecContext(ctx, `
		INSERT INTO folio_payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seq, p.ID, p.TenantID, p.FolioID, p.Amount.String(), p.Method, p.PaymentType,
		nullString(p.Reference),
		p.Voided, nullString(p.VoidReason), nullString(p.VoidedBy), nullTime(p.VoidedAt),
		formatTime(p.CreatedAt), p.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	p.Seq = seq
	return nil
}

func (qs *queries) GetPayment(ctx context.Context, tenantID folio.TenantID, id folio.PaymentID) (*folio.Payment, error) {
	payments, err := qs.queryPayments(ctx,
		"SELECT "+paymentColumns+" FROM folio_payments WHERE tenant_id = ? AND id = ?",
		tenantID, id,
	)
	if err != nil || len(payments) == 0 {
		return nil, err
	}
	return &payments[0], nil
}

// UpdatePayment writes the void columns only.
func (qs *queries) UpdatePayment(ctx context.Context, p *folio.Payment) error {
	res, err := qs.q.ExecContext(ctx, `
		UPDATE folio_payments
		SET voided = ?, void_reason = ?, voided_by = ?, voided_at = ?
		WHERE tenant_id = ? AND id = ?`,
		p.Voided, nullString(p.VoidReason), nullString(p.VoidedBy), nullTime(p.VoidedAt),
		p.TenantID, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return expectOneRow(res, "payment", string(p.ID))
}

func (qs *queries) ListPayments(ctx context.Context, tenantID folio.TenantID, folioID folio.FolioID) ([]folio.Payment, error) {
	return qs.queryPayments(ctx,
		"SELECT "+paymentColumns+" FROM folio_payments WHERE tenant_id = ? AND folio_id = ? ORDER BY seq ASC",
		tenantID, folioID,
	)
}

func (qs *queries) queryPayments(ctx context.Context, query string, args ...any) ([]folio.Payment, error) {
	rows, err := qs.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []folio.Payment
	for rows.Next() {
		var (
			p                              folio.Payment
			amount, createdAt              string
			reference                      sql.NullString
			voidReason, voidedBy, voidedAt sql.NullString
		)
		err := rows.Scan(
			&p.Seq, &p.ID, &p.TenantID, &p.FolioID, &amount, &p.Method, &p.PaymentType, &reference,
			&p.Voided, &voidReason, &voidedBy, &voidedAt, &createdAt, &p.CreatedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		if p.Amount, err = parseDecimal("amount", amount); err != nil {
			return nil, err
		}
		p.Reference = reference.String
		p.VoidReason = voidReason.String
		p.VoidedBy = voidedBy.String
		p.VoidedAt = parseNullTime(voidedAt)
		p.CreatedAt = parseTime(createdAt)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// --- operations ---

func (qs *queries) InsertOperation(ctx context.Context, op *folio.Operation) error {
	seq, err := qs.nextSeq(ctx)
	if err != nil {
		return err
	}
	details, err := json.Marshal(op.Details)
	if err != nil {
		return fmt.Errorf("failed to encode operation details: %w", err)
	}
	_, err = qs.q.ExecContext(ctx, `
		INSERT INTO folio_operations
		(seq, id, tenant_id, folio_id, subject, action, reason, actor, details_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seq, op.ID, op.TenantID, op.FolioID, op.Subject, op.Action,
		nullString(op.Reason), op.Actor, string(details), formatTime(op.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert operation: %w", err)
	}
	op.Seq = seq
	return nil
}

func (qs *queries) ListOperations(ctx context.Context, tenantID folio.TenantID, folioID folio.FolioID) ([]folio.Operation, error) {
	rows, err := qs.q.QueryContext(ctx, `
		SELECT seq, id, tenant_id, folio_id, subject, action, reason, actor, details_json, created_at
		FROM folio_operations
		WHERE tenant_id = ? AND folio_id = ?
		ORDER BY seq ASC`,
		tenantID, folioID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	var ops []folio.Operation
	for rows.Next() {
		var (
			op                 folio.Operation
			reason             sql.NullString
			details, createdAt string
		)
		err := rows.Scan(
			&op.Seq, &op.ID, &op.TenantID, &op.FolioID, &op.Subject, &op.Action,
			&reason, &op.Actor, &details, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		if err := json.Unmarshal([]byte(details), &op.Details); err != nil {
			return nil, fmt.Errorf("failed to decode operation details: %w", err)
		}
		op.Reason = reason.String
		op.CreatedAt = parseTime(createdAt)
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func expectOneRow(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("%s %s: expected 1 row updated, got %d", resource, id, n)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timeLayout is RFC 3339 with a fixed nine-digit fraction, so stored
// timestamps sort as text in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func parseDecimal(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse %s %q: %w", column, s, err)
	}
	return d, nil
}
