// Package store provides in-process folio.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/folio-ledger/folio"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements folio.TxStore. Records are copied on the way in and out
// so callers can never mutate stored state through a returned pointer.
type Memory struct {
	mu    sync.RWMutex
	state memoryState
}

type tenantKey[ID comparable] struct {
	TenantID folio.TenantID
	ID       ID
}

type memoryState struct {
	folios     map[tenantKey[folio.FolioID]]folio.Folio
	charges    map[tenantKey[folio.ChargeID]]folio.Charge
	payments   map[tenantKey[folio.PaymentID]]folio.Payment
	operations map[tenantKey[folio.FolioID]][]folio.Operation
	seq        int64
}

func NewMemory() *Memory {
	return &Memory{state: newMemoryState()}
}

func newMemoryState() memoryState {
	return memoryState{
		folios:     make(map[tenantKey[folio.FolioID]]folio.Folio),
		charges:    make(map[tenantKey[folio.ChargeID]]folio.Charge),
		payments:   make(map[tenantKey[folio.PaymentID]]folio.Payment),
		operations: make(map[tenantKey[folio.FolioID]][]folio.Operation),
	}
}

// WithTx executes fn while holding the write lock.
// Simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(folio.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&memoryView{state: &m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (s memoryState) clone() memoryState {
	c := newMemoryState()
	for k, v := range s.folios {
		c.folios[k] = v
	}
	for k, v := range s.charges {
		c.charges[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.operations {
		c.operations[k] = append([]folio.Operation(nil), v...)
	}
	c.seq = s.seq
	return c
}

// Non-transactional calls lock around a view of the live state.

func (m *Memory) write(fn func(v *memoryView) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memoryView{state: &m.state})
}

func (m *Memory) read() (*memoryView, func()) {
	m.mu.RLock()
	return &memoryView{state: &m.state}, m.mu.RUnlock
}

func (m *Memory) InsertFolio(ctx context.Context, f *folio.Folio) error {
	return m.write(func(v *memoryView) error { return v.InsertFolio(ctx, f) })
}

func (m *Memory) GetFolio(ctx context.Context, tenantID folio.TenantID, id folio.FolioID) (*folio.Folio, error) {
	v, done := m.read()
	defer done()
	return v.GetFolio(ctx, tenantID, id)
}

func (m *Memory) UpdateFolio(ctx context.Context, f *folio.Folio) error {
	return m.write(func(v *memoryView) error { return v.UpdateFolio(ctx, f) })
}

func (m *Memory) ListFolios(ctx context.Context, tenantID folio.TenantID, filter folio.FolioFilter) ([]folio.Folio, error) {
	v, done := m.read()
	defer done()
	return v.ListFolios(ctx, tenantID, filter)
}

func (m *Memory) ListTenants(ctx context.Context) ([]folio.TenantID, error) {
	v, done := m.read()
	defer done()
	return v.ListTenants(ctx)
}

func (m *Memory) InsertCharge(ctx context.Context, c *folio.Charge) error {
	return m.write(func(v *memoryView) error { return v.InsertCharge(ctx, c) })
}

func (m *Memory) GetCharge(ctx context.Context, tenantID folio.TenantID, id folio.ChargeID) (*folio.Charge, error) {
	v, done := m.read()
	defer done()
	return v.GetCharge(ctx, tenantID, id)
}

func (m *Memory) UpdateCharge(ctx context.Context, c *folio.Charge) error {
	return m.write(func(v *memoryView) error { return v.UpdateCharge(ctx, c) })
}

func (m *Memory) ListCharges(ctx context.Context, tenantID folio.TenantID, folioID folio.FolioID) ([]folio.Charge, error) {
	v, done := m.read()
	defer done()
	return v.ListCharges(ctx, tenantID, folioID)
}

func (m *Memory) InsertPayment(ctx context.Context, p *folio.Payment) error {
	return m.write(func(v *memoryView) error { return v.InsertPayment(ctx, p) })
}

func (m *Memory) GetPayment(ctx context.Context, tenantID folio.TenantID, id folio.PaymentID) (*folio.Payment, error) {
	v, done := m.read()
	defer done()
	return v.GetPayment(ctx, tenantID, id)
}

func (m *Memory) UpdatePayment(ctx context.Context, p *folio.Payment) error {
	return m.write(func(v *memoryView) error { return v.UpdatePayment(ctx, p) })
}

func (m *Memory) ListPayments(ctx context.Context, tenantID folio.TenantID, folioID folio.FolioID) ([]folio.Payment, error) {
	v, done := m.read()
	defer done()
	return v.ListPayments(ctx, tenantID, folioID)
}

func (m *Memory) InsertOperation(ctx context.Context, op *folio.Operation) error {
	return m.write(func(v *memoryView) error { return v.InsertOperation(ctx, op) })
}

func (m *Memory) ListOperations(ctx context.Context, tenantID folio.TenantID, folioID folio.FolioID) ([]folio.Operation, error) {
	v, done := m.read()
	defer done()
	return v.ListOperations(ctx, tenantID, folioID)
}

// =============================================================================
// VIEW - operates on state; the caller holds the lock
// =============================================================================

type memoryView struct {
	state *memoryState
}

func (v *memoryView) nextSeq() int64 {
	v.state.seq++
	return v.state.seq
}

func (v *memoryView) InsertFolio(_ context.Context, f *folio.Folio) error {
	k := tenantKey[folio.FolioID]{f.TenantID, f.ID}
	if _, exists := v.state.folios[k]; exists {
		return errDuplicate("folio", string(f.ID))
	}
	v.state.folios[k] = *f
	return nil
}

func (v *memoryView) GetFolio(_ context.Context, tenantID folio.TenantID, id folio.FolioID) (*folio.Folio, error) {
	f, ok := v.state.folios[tenantKey[folio.FolioID]{tenantID, id}]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (v *memoryView) UpdateFolio(_ context.Context, f *folio.Folio) error {
	k := tenantKey[folio.FolioID]{f.TenantID, f.ID}
	if _, exists := v.state.folios[k]; !exists {
		return errMissing("folio", string(f.ID))
	}
	v.state.folios[k] = *f
	return nil
}

func (v *memoryView) ListFolios(_ context.Context, tenantID folio.TenantID, filter folio.FolioFilter) ([]folio.Folio, error) {
	var out []folio.Folio
	for k, f := range v.state.folios {
		if k.TenantID == tenantID && filter.Matches(f) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *memoryView) ListTenants(_ context.Context) ([]folio.TenantID, error) {
	seen := make(map[folio.TenantID]bool)
	var out []folio.TenantID
	for k := range v.state.folios {
		if !seen[k.TenantID] {
			seen[k.TenantID] = true
			out = append(out, k.TenantID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (v *memoryView) InsertCharge(_ context.Context, c *folio.Charge) error {
	k := tenantKey[folio.ChargeID]{c.TenantID, c.ID}
	if _, exists := v.state.charges[k]; exists {
		return errDuplicate("charge", string(c.ID))
	}
	c.Seq = v.nextSeq()
	v.state.charges[k] = *c
	return nil
}

func (v *memoryView) GetCharge(_ context.Context, tenantID folio.TenantID, id folio.ChargeID) (*folio.Charge, error) {
	c, ok := v.state.charges[tenantKey[folio.ChargeID]{tenantID, id}]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (v *memoryView) UpdateCharge(_ context.Context, c *folio.Charge) error {
	k := tenantKey[folio.ChargeID]{c.TenantID, c.ID}
	if _, exists := v.state.charges[k]; !exists {
		return errMissing("charge", string(c.ID))
	}
	v.state.charges[k] = *c
	return nil
}

func (v *memoryView) ListCharges(_ context.Context, tenantID folio.TenantID, folioID folio.FolioID) ([]folio.Charge, error) {
	var out []folio.Charge
	for k, c := range v.state.charges {
		if k.TenantID == tenantID && c.FolioID == folioID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (v *memoryView) InsertPayment(_ context.Context, p *folio.Payment) error {
	k := tenantKey[folio.PaymentID]{p.TenantID, p.ID}
	if _, exists := v.state.payments[k]; exists {
		return errDuplicate("payment", string(p.ID))
	}
	p.Seq = v.nextSeq()
	v.state.payments[k] = *p
	return nil
}

func (v *memoryView) GetPayment(_ context.Context, tenantID folio.TenantID, id folio.PaymentID) (*folio.Payment, error) {
	p, ok := v.state.payments[tenantKey[folio.PaymentID]{tenantID, id}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (v *memoryView) UpdatePayment(_ context.Context, p *folio.Payment) error {
	k := tenantKey[folio.PaymentID]{p.TenantID, p.ID}
	if _, exists := v.state.payments[k]; !exists {
		return errMissing("payment", string(p.ID))
	}
	v.state.payments[k] = *p
	return nil
}

func (v *memoryView) ListPayments(_ context.Context, tenantID folio.TenantID, folioID folio.FolioID) ([]folio.Payment, error) {
	var out []folio.Payment
	for k, p := range v.state.payments {
		if k.TenantID == tenantID && p.FolioID == folioID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (v *memoryView) InsertOperation(_ context.Context, op *folio.Operation) error {
	k := tenantKey[folio.FolioID]{op.TenantID, op.FolioID}
	op.Seq = v.nextSeq()
	stored := *op
	stored.Details.EntryIDs = append([]string(nil), op.Details.EntryIDs...)
	v.state.operations[k] = append(v.state.operations[k], stored)
	return nil
}

func (v *memoryView) ListOperations(_ context.Context, tenantID folio.TenantID, folioID folio.FolioID) ([]folio.Operation, error) {
	ops := v.state.operations[tenantKey[folio.FolioID]{tenantID, folioID}]
	out := make([]folio.Operation, len(ops))
	for i, op := range ops {
		op.Details.EntryIDs = append([]string(nil), op.Details.EntryIDs...)
		out[i] = op
	}
	return out, nil
}
