/*
handlers_test.go - HTTP tests for the folio API

Tests for:
- Tenant header enforcement
- Folio lifecycle (open, post, void, close)
- Error mapping (400, 404, 409)
- Transfers and the activity feed
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/folio-ledger/folio"
	"github.com/warp/folio-ledger/folio/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testTenant = "hotel-1"

type testServer struct {
	t      *testing.T
	router http.Handler
	ledger *folio.Ledger
	store  *store.Memory
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// tickingClock advances one second per call so activity feeds order
// deterministically.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, time.March, 14, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	ledger := folio.NewLedger(mem)
	ledger.Logger = quietLogger()
	ledger.TransferBackoff = 0
	ledger.Now = tickingClock()

	h := NewHandler(ledger, ledger.Logger)
	return &testServer{t: t, router: NewRouter(h, nil), ledger: ledger, store: mem}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	return s.doAs(testTenant, method, path, body)
}

func (s *testServer) doAs(tenant, method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(s.t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req.Header.Set(HeaderTenantID, tenant)
	}
	req.Header.Set(HeaderActorID, "frontdesk-amy")

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func (s *testServer) openFolio(req CreateFolioRequest) FolioDTO {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/folios", req)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[FolioDTO](s.t, rec)
}

func (s *testServer) postCharge(folioID string, body map[string]any) ChargeDTO {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/folios/"+folioID+"/charges", body)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[ChargeDTO](s.t, rec)
}

func (s *testServer) postPayment(folioID string, body map[string]any) PaymentDTO {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/folios/"+folioID+"/payments", body)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[PaymentDTO](s.t, rec)
}

func (s *testServer) getFolio(folioID string) FolioDetailDTO {
	s.t.Helper()
	rec := s.do(http.MethodGet, "/api/folios/"+folioID, nil)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[FolioDetailDTO](s.t, rec)
}

// =============================================================================
// TENANCY AND HEALTH
// =============================================================================

func TestAPI_MissingTenantHeader(t *testing.T) {
	// GIVEN: A request without X-Tenant-ID
	// WHEN: Listing folios
	// THEN: 400 validation, pointing at tenant_id

	s := setupTestServer(t)

	rec := s.doAs("", http.MethodGet, "/api/folios", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "validation", resp.Error)
	assert.Equal(t, map[string]any{"field": "tenant_id"}, resp.Details)
}

func TestAPI_TenantsAreIsolated(t *testing.T) {
	s := setupTestServer(t)
	f := s.openFolio(CreateFolioRequest{FolioType: "master"})

	rec := s.doAs("hotel-2", http.MethodGet, "/api/folios/"+f.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.doAs("hotel-2", http.MethodGet, "/api/folios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]FolioDTO](t, rec))
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestAPI_Healthz(t *testing.T) {
	s := setupTestServer(t)

	rec := s.doAs("", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "healthz needs no tenant")

	h := NewHandler(s.ledger, quietLogger())
	h.DB = fakePinger{err: errors.New("disk gone")}
	router := NewRouter(h, nil)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "storage", resp.Error)
	assert.NotContains(t, resp.Message, "disk gone")
}

// =============================================================================
// FOLIO LIFECYCLE
// =============================================================================

func TestAPI_FolioLifecycle(t *testing.T) {
	// GIVEN: An open guest folio
	// WHEN: Posting a charge and paying it in full, then closing
	// THEN: Balance goes 0 -> 240 -> 0 and the folio closes

	s := setupTestServer(t)
	f := s.openFolio(CreateFolioRequest{FolioType: "guest", BookingID: "BK-1", GuestID: "g-1"})
	assert.Equal(t, "open", f.Status)
	assert.Equal(t, "0.00", f.Balance)
	assert.Equal(t, "frontdesk-amy", f.CreatedBy)
	assert.NotEmpty(t, f.Number)

	c := s.postCharge(f.ID, map[string]any{"charge_category": "room", "amount": "120", "quantity": 2, "description": "King room"})
	assert.Equal(t, "240.00", c.Total)
	assert.Equal(t, "120.00", c.Amount)
	assert.Equal(t, "2", c.Quantity)
	assert.Equal(t, "240.00", s.getFolio(f.ID).Balance)

	p := s.postPayment(f.ID, map[string]any{"amount": 240, "method": "card", "payment_type": "final", "reference": "AUTH-1"})
	assert.Equal(t, "240.00", p.Amount)

	detail := s.getFolio(f.ID)
	assert.Equal(t, "0.00", detail.Balance)
	assert.Equal(t, BalanceSummaryDTO{Charges: "240.00", Payments: "240.00", Voided: "0.00", Balance: "0.00"}, detail.Summary)

	rec := s.do(http.MethodPost, "/api/folios/"+f.ID+"/close", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	closed := decodeBody[FolioDTO](t, rec)
	assert.Equal(t, "closed", closed.Status)
	require.NotNil(t, closed.ClosedAt)
	assert.Equal(t, "frontdesk-amy", closed.ClosedBy)

	// closed folios reject postings
	rec = s.do(http.MethodPost, "/api/folios/"+f.ID+"/charges", map[string]any{"charge_category": "food", "amount": "10"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_QuantityDefaultsToOne(t *testing.T) {
	s := setupTestServer(t)
	f := s.openFolio(CreateFolioRequest{FolioType: "master"})

	c := s.postCharge(f.ID, map[string]any{"charge_category": "beverage", "amount": "7.5"})

	assert.Equal(t, "1", c.Quantity)
	assert.Equal(t, "7.50", c.Total)
}

func TestAPI_CloseWithBalanceConflicts(t *testing.T) {
	s := setupTestServer(t)
	f := s.openFolio(CreateFolioRequest{FolioType: "master"})
	s.postCharge(f.ID, map[string]any{"charge_category": "spa", "amount": "80"})

	rec := s.do(http.MethodPost, "/api/folios/"+f.ID+"/close", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "conflict", resp.Error)
	details, ok := resp.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "80.00", details["balance"])
	assert.Equal(t, f.ID, details["folio_id"])
}

func TestAPI_ListFoliosFilters(t *testing.T) {
	s := setupTestServer(t)
	s.openFolio(CreateFolioRequest{FolioType: "guest", BookingID: "BK-1", GuestID: "g-1"})
	s.openFolio(CreateFolioRequest{FolioType: "company", BookingID: "BK-1", CompanyID: "acme"})
	s.openFolio(CreateFolioRequest{FolioType: "guest", BookingID: "BK-2", GuestID: "g-2"})

	rec := s.do(http.MethodGet, "/api/folios?booking_id=BK-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]FolioDTO](t, rec), 2)

	rec = s.do(http.MethodGet, "/api/folios?folio_type=guest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]FolioDTO](t, rec), 2)

	rec = s.do(http.MethodGet, "/api/folios?booking_id=BK-1&folio_type=company", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[[]FolioDTO](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "acme", got[0].CompanyID)
}

// =============================================================================
// VALIDATION AND ERROR MAPPING
// =============================================================================

func TestAPI_ValidationErrors(t *testing.T) {
	s := setupTestServer(t)
	f := s.openFolio(CreateFolioRequest{FolioType: "master"})

	tests := []struct {
		name  string
		path  string
		body  any
		field string
	}{
		{"malformed json", "/api/folios", `{"folio_type":`, ""},
		{"missing folio type", "/api/folios", map[string]any{}, "folio_type"},
		{"unknown folio type", "/api/folios", map[string]any{"folio_type": "suite"}, "folio_type"},
		{"company without company id", "/api/folios", map[string]any{"folio_type": "company"}, "company_id"},
		{"missing amount", "/api/folios/" + f.ID + "/charges", map[string]any{"charge_category": "room"}, "amount"},
		{"negative amount", "/api/folios/" + f.ID + "/charges", map[string]any{"charge_category": "room", "amount": "-5"}, "amount"},
		{"unknown category", "/api/folios/" + f.ID + "/charges", map[string]any{"charge_category": "casino", "amount": "5"}, "charge_category"},
		{"zero payment", "/api/folios/" + f.ID + "/payments", map[string]any{"amount": "0", "method": "cash", "payment_type": "interim"}, "amount"},
		{"unknown method", "/api/folios/" + f.ID + "/payments", map[string]any{"amount": "5", "method": "crypto", "payment_type": "interim"}, "method"},
		{"transfer to self", "/api/transfers", map[string]any{"from_folio_id": f.ID, "to_folio_id": f.ID, "charge_ids": []string{"x"}}, "to_folio_id"},
		{"transfer without charges", "/api/transfers", map[string]any{"from_folio_id": f.ID, "to_folio_id": "other", "charge_ids": []string{}}, "charge_ids"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, tt.path, tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, "validation", resp.Error)
			if tt.field != "" {
				details, ok := resp.Details.(map[string]any)
				require.True(t, ok, "details: %v", resp.Details)
				assert.Equal(t, tt.field, details["field"])
			}
		})
	}

	assert.Equal(t, "0.00", s.getFolio(f.ID).Balance, "rejected requests leave no trace")
}

func TestAPI_NotFound(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		method, path string
		body         any
		resource     string
	}{
		{http.MethodGet, "/api/folios/nope", nil, "folio"},
		{http.MethodGet, "/api/folios/nope/activity", nil, "folio"},
		{http.MethodPost, "/api/folios/nope/charges", map[string]any{"charge_category": "room", "amount": "5"}, "folio"},
		{http.MethodPost, "/api/charges/nope/void", map[string]any{"reason": "x"}, "charge"},
		{http.MethodPost, "/api/payments/nope/void", map[string]any{"reason": "x"}, "payment"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, tt.body)

			require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, "not_found", resp.Error)
			assert.Equal(t, map[string]any{"resource": tt.resource, "id": "nope"}, resp.Details)
		})
	}
}

// =============================================================================
// VOIDS
// =============================================================================

func TestAPI_VoidCharge(t *testing.T) {
	// GIVEN: A folio with two charges
	// WHEN: Voiding one of them
	// THEN: The balance drops by its total; voiding again is a conflict

	s := setupTestServer(t)
	f := s.openFolio(CreateFolioRequest{FolioType: "master"})
	s.postCharge(f.ID, map[string]any{"charge_category": "room", "amount": "200"})
	minibar := s.postCharge(f.ID, map[string]any{"charge_category": "minibar", "amount": "12.5", "quantity": 2})

	rec := s.do(http.MethodPost, "/api/charges/"+minibar.ID+"/void", VoidRequest{Reason: "guest did not consume"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	voided := decodeBody[ChargeDTO](t, rec)
	assert.True(t, voided.Voided)
	assert.Equal(t, "guest did not consume", voided.VoidReason)
	assert.Equal(t, "frontdesk-amy", voided.VoidedBy)
	assert.NotNil(t, voided.VoidedAt)
	assert.Equal(t, "25.00", voided.Total, "total is preserved on void")

	detail := s.getFolio(f.ID)
	assert.Equal(t, "200.00", detail.Balance)
	assert.Equal(t, "25.00", detail.Summary.Voided)

	rec = s.do(http.MethodPost, "/api/charges/"+minibar.ID+"/void", VoidRequest{Reason: "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/api/charges/"+minibar.ID+"/void", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "reason is required")
}

func TestAPI_VoidPayment(t *testing.T) {
	s := setupTestServer(t)
	f := s.openFolio(CreateFolioRequest{FolioType: "master"})
	s.postCharge(f.ID, map[string]any{"charge_category": "room", "amount": "100"})
	p := s.postPayment(f.ID, map[string]any{"amount": "150", "method": "cash", "payment_type": "deposit"})
	assert.Equal(t, "-50.00", s.getFolio(f.ID).Balance)

	rec := s.do(http.MethodPost, "/api/payments/"+p.ID+"/void", VoidRequest{Reason: "refunded"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeBody[PaymentDTO](t, rec).Voided)

	assert.Equal(t, "100.00", s.getFolio(f.ID).Balance)

	rec = s.do(http.MethodGet, "/api/folios/"+f.ID+"/payments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payments := decodeBody[[]PaymentDTO](t, rec)
	require.Len(t, payments, 1, "voided payments stay on the folio")
	assert.Equal(t, "refunded", payments[0].VoidReason)
}

func TestAPI_VoidActivityCarriesSubject(t *testing.T) {
	// GIVEN: A folio with a voided payment
	// WHEN: Reading its activity feed
	// THEN: The void is an operation row whose details name the payment

	s := setupTestServer(t)
	f := s.openFolio(CreateFolioRequest{FolioType: "master"})
	p := s.postPayment(f.ID, map[string]any{"amount": "80", "method": "card", "payment_type": "deposit"})
	rec := s.do(http.MethodPost, "/api/payments/"+p.ID+"/void", VoidRequest{Reason: "duplicate swipe"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/folios/"+f.ID+"/activity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var feed []struct {
		Type    string         `json:"type"`
		Action  string         `json:"action"`
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feed))

	var voids int
	for _, item := range feed {
		if item.Action != "voided" {
			continue
		}
		voids++
		if item.Type == "payment" {
			assert.Equal(t, p.ID, item.Details["id"])
			continue
		}
		assert.Equal(t, "operation", item.Type)
		assert.Equal(t, "payment", item.Details["subject"])
		assert.Equal(t, []any{p.ID}, item.Details["entry_ids"])
	}
	assert.Equal(t, 2, voids, "the voided payment row and the void operation")
}

// =============================================================================
// TRANSFERS AND ACTIVITY
// =============================================================================

func TestAPI_TransferAndActivity(t *testing.T) {
	// GIVEN: A guest folio with room and bar charges, and a company folio
	// WHEN: Transferring the room charge to the company
	// THEN: Totals are conserved and both feeds show the transfer

	s := setupTestServer(t)
	guest := s.openFolio(CreateFolioRequest{FolioType: "guest", GuestID: "g-1"})
	company := s.openFolio(CreateFolioRequest{FolioType: "company", CompanyID: "acme"})
	room := s.postCharge(guest.ID, map[string]any{"charge_category": "room", "amount": "300"})
	s.postCharge(guest.ID, map[string]any{"charge_category": "beverage", "amount": "18"})

	rec := s.do(http.MethodPost, "/api/transfers", TransferRequest{
		FromFolioID: guest.ID,
		ToFolioID:   company.ID,
		ChargeIDs:   []string{room.ID},
		Reason:      "company pays rooms",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[TransferResponse](t, rec)
	assert.Equal(t, "18.00", res.From.Balance)
	assert.Equal(t, "300.00", res.To.Balance)

	rec = s.do(http.MethodGet, "/api/folios/"+company.ID+"/charges", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	moved := decodeBody[[]ChargeDTO](t, rec)
	require.Len(t, moved, 1)
	assert.Equal(t, guest.ID, moved[0].TransferredFrom)
	assert.Equal(t, company.ID, moved[0].FolioID)

	rec = s.do(http.MethodGet, "/api/folios/"+guest.ID+"/activity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	feed := decodeBody[[]ActivityItemDTO](t, rec)
	require.NotEmpty(t, feed)
	assert.Equal(t, "operation", feed[0].Type)
	assert.Equal(t, "transferred-out", feed[0].Action)
	assert.Equal(t, "300.00", feed[0].Amount)
	assert.Contains(t, feed[0].Description, company.ID)

	last := feed[len(feed)-1]
	assert.Equal(t, "created", last.Action, "folio creation is the oldest entry")

	rec = s.do(http.MethodGet, "/api/folios/"+company.ID+"/activity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	companyFeed := decodeBody[[]ActivityItemDTO](t, rec)
	var actions []string
	for _, item := range companyFeed {
		actions = append(actions, item.Type+"/"+item.Action)
	}
	assert.Contains(t, actions, "operation/transferred-in")
	assert.Contains(t, actions, "charge/transferred-in")
}

func TestAPI_TransferRejectsForeignCharge(t *testing.T) {
	s := setupTestServer(t)
	a := s.openFolio(CreateFolioRequest{FolioType: "master"})
	b := s.openFolio(CreateFolioRequest{FolioType: "master"})
	onB := s.postCharge(b.ID, map[string]any{"charge_category": "room", "amount": "100"})

	rec := s.do(http.MethodPost, "/api/transfers", TransferRequest{
		FromFolioID: a.ID,
		ToFolioID:   b.ID,
		ChargeIDs:   []string{onB.ID},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "100.00", s.getFolio(b.ID).Balance)
	assert.Equal(t, "0.00", s.getFolio(a.ID).Balance)
}

func TestAPI_RecomputeRepairsDrift(t *testing.T) {
	s := setupTestServer(t)
	f := s.openFolio(CreateFolioRequest{FolioType: "master"})
	s.postCharge(f.ID, map[string]any{"charge_category": "room", "amount": "90"})

	corruptBalance(t, s.store, folio.FolioID(f.ID), "1")

	rec := s.do(http.MethodPost, "/api/folios/"+f.ID+"/recompute", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[RecomputeResponse](t, rec)
	assert.True(t, res.Drifted)
	assert.Equal(t, "1.00", res.Previous)
	assert.Equal(t, "90.00", res.Balance)
	assert.Equal(t, "90.00", s.getFolio(f.ID).Balance)
}
