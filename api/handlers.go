/*
handlers.go - HTTP API handlers for the folio ledger

PURPOSE:
  Exposes the folio ledger via REST API. Handles HTTP request/response and
  JSON serialization, and delegates every rule to folio.Ledger.

ENDPOINTS:
  Folios:
    POST   /api/folios                    Open a folio
    GET    /api/folios                    List folios (booking_id, status, folio_type filters)
    GET    /api/folios/{id}               Folio with balance breakdown
    POST   /api/folios/{id}/close         Close a settled folio
    POST   /api/folios/{id}/recompute     Re-derive the cached balance
    GET    /api/folios/{id}/activity      Activity feed, newest first

  Entries:
    POST   /api/folios/{id}/charges       Post a charge
    GET    /api/folios/{id}/charges       List charges
    POST   /api/folios/{id}/payments      Post a payment
    GET    /api/folios/{id}/payments      List payments
    POST   /api/charges/{id}/void         Void a charge
    POST   /api/payments/{id}/void        Void a payment
    POST   /api/transfers                 Move charges between folios

TENANCY:
  Every /api route requires X-Tenant-ID. X-Actor-ID, when present, is
  recorded as the author of writes. Authentication happens upstream.

ERROR HANDLING:
  Errors are returned as ErrorResponse with the folio error kind:
  - 400 validation
  - 404 not_found
  - 409 conflict
  - 503 storage
  - 500 internal

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/folio-ledger/folio"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger *folio.Ledger
	Logger *logrus.Logger
	// DB is checked by /healthz when set.
	DB Pinger

	validate *validator.Validate
}

func NewHandler(ledger *folio.Ledger, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{Ledger: ledger, Logger: logger, validate: v}
}

// =============================================================================
// FOLIO HANDLERS
// =============================================================================

func (h *Handler) CreateFolio(w http.ResponseWriter, r *http.Request) {
	var req CreateFolioRequest
	if !h.decode(w, r, &req) {
		return
	}

	f, err := h.Ledger.CreateFolio(r.Context(), scopeFrom(r), folio.CreateFolioInput{
		Type:      folio.FolioType(req.FolioType),
		BookingID: req.BookingID,
		CompanyID: req.CompanyID,
		GuestID:   req.GuestID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFolioDTO(*f))
}

func (h *Handler) ListFolios(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := folio.FolioFilter{
		BookingID: q.Get("booking_id"),
		Status:    folio.FolioStatus(q.Get("status")),
		Type:      folio.FolioType(q.Get("folio_type")),
	}

	folios, err := h.Ledger.ListFolios(r.Context(), scopeFrom(r), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	dtos := make([]FolioDTO, len(folios))
	for i, f := range folios {
		dtos[i] = toFolioDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetFolio(w http.ResponseWriter, r *http.Request) {
	f, summary, err := h.Ledger.Summary(r.Context(), scopeFrom(r), folioParam(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FolioDetailDTO{
		FolioDTO: toFolioDTO(*f),
		Summary:  toSummaryDTO(summary),
	})
}

func (h *Handler) CloseFolio(w http.ResponseWriter, r *http.Request) {
	f, err := h.Ledger.CloseFolio(r.Context(), scopeFrom(r), folioParam(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFolioDTO(*f))
}

func (h *Handler) RecomputeFolio(w http.ResponseWriter, r *http.Request) {
	res, err := h.Ledger.Recompute(r.Context(), scopeFrom(r), folioParam(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RecomputeResponse{
		FolioID:  string(res.FolioID),
		Previous: money(res.Previous),
		Balance:  money(res.Balance),
		Drifted:  res.Drifted,
	})
}

func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	items, err := h.Ledger.ActivityLog(r.Context(), scopeFrom(r), folioParam(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	dtos := make([]ActivityItemDTO, len(items))
	for i, item := range items {
		dtos[i] = toActivityItemDTO(item)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

func (h *Handler) PostCharge(w http.ResponseWriter, r *http.Request) {
	var req PostChargeRequest
	if !h.decode(w, r, &req) {
		return
	}
	quantity := decimal.NewFromInt(1)
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	c, err := h.Ledger.AddCharge(r.Context(), scopeFrom(r), folioParam(r), folio.ChargeInput{
		Category:    folio.ChargeCategory(req.Category),
		Description: req.Description,
		Amount:      *req.Amount,
		Quantity:    quantity,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChargeDTO(*c))
}

func (h *Handler) ListCharges(w http.ResponseWriter, r *http.Request) {
	charges, err := h.Ledger.ListCharges(r.Context(), scopeFrom(r), folioParam(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	dtos := make([]ChargeDTO, len(charges))
	for i, c := range charges {
		dtos[i] = toChargeDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) PostPayment(w http.ResponseWriter, r *http.Request) {
	var req PostPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.Ledger.AddPayment(r.Context(), scopeFrom(r), folioParam(r), folio.PaymentInput{
		Amount:      *req.Amount,
		Method:      folio.PaymentMethod(req.Method),
		PaymentType: folio.PaymentType(req.PaymentType),
		Reference:   req.Reference,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(*p))
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Ledger.ListPayments(r.Context(), scopeFrom(r), folioParam(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) VoidCharge(w http.ResponseWriter, r *http.Request) {
	var req VoidRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.Ledger.VoidCharge(r.Context(), scopeFrom(r), folio.ChargeID(chi.URLParam(r, "id")), req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChargeDTO(*c))
}

func (h *Handler) VoidPayment(w http.ResponseWriter, r *http.Request) {
	var req VoidRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.Ledger.VoidPayment(r.Context(), scopeFrom(r), folio.PaymentID(chi.URLParam(r, "id")), req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*p))
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !h.decode(w, r, &req) {
		return
	}

	ids := make([]folio.ChargeID, len(req.ChargeIDs))
	for i, id := range req.ChargeIDs {
		ids[i] = folio.ChargeID(id)
	}
	res, err := h.Ledger.Transfer(r.Context(), scopeFrom(r), folio.TransferInput{
		FromFolioID: folio.FolioID(req.FromFolioID),
		ToFolioID:   folio.FolioID(req.ToFolioID),
		ChargeIDs:   ids,
		Reason:      req.Reason,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TransferResponse{
		From: toFolioDTO(res.From),
		To:   toFolioDTO(res.To),
	})
}

// Health reports liveness plus database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		if err := h.DB.Ping(r.Context()); err != nil {
			h.Logger.WithError(err).Error("health check failed")
			writeError(w, http.StatusServiceUnavailable, string(folio.KindStorage), "database unreachable", nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func folioParam(r *http.Request) folio.FolioID {
	return folio.FolioID(chi.URLParam(r, "id"))
}

// decode reads and validates a JSON body. It writes the 400 response itself
// and returns false when the body is unusable.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, string(folio.KindValidation), "invalid JSON body", map[string]string{"cause": err.Error()})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			writeError(w, http.StatusBadRequest, string(folio.KindValidation),
				fmt.Sprintf("invalid %s: failed %q check", fe.Field(), fe.Tag()),
				map[string]string{"field": fe.Field()})
			return false
		}
		writeError(w, http.StatusBadRequest, string(folio.KindValidation), err.Error(), nil)
		return false
	}
	return true
}

func statusFor(kind folio.Kind) int {
	switch kind {
	case folio.KindValidation:
		return http.StatusBadRequest
	case folio.KindNotFound:
		return http.StatusNotFound
	case folio.KindConflict:
		return http.StatusConflict
	case folio.KindStorage:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError maps a ledger error to its status and structured body.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := folio.KindOf(err)
	message := err.Error()
	var details any

	var (
		ve *folio.ValidationError
		nf *folio.NotFoundError
		ce *folio.ConflictError
		se *folio.StorageError
	)
	switch {
	case errors.As(err, &ve):
		details = map[string]string{"field": ve.Field}
	case errors.As(err, &nf):
		details = map[string]string{"resource": nf.Resource, "id": nf.ID}
	case errors.As(err, &ce):
		d := map[string]string{}
		if ce.FolioID != "" {
			d["folio_id"] = string(ce.FolioID)
		}
		if ce.Balance != nil {
			d["balance"] = money(*ce.Balance)
		}
		if ce.State != "" {
			d["state"] = ce.State
		}
		details = d
	case errors.As(err, &se):
		details = map[string]any{"op": se.Op, "attempts": se.Attempts}
	}

	if kind == folio.KindInternal {
		h.Logger.WithFields(logrus.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"tenant_id": tenantFrom(r.Context()),
		}).WithError(err).Error("unhandled error")
		message = "internal error"
		details = nil
	}
	writeError(w, statusFor(kind), string(kind), message, details)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, kind, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: kind, Message: message, Details: details})
}
