/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the folio domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Composite response wrappers

MONEY:
  Every amount is a decimal string with two places ("125.00"). Requests
  accept either a JSON string or a JSON number for amounts.

VALIDATION:
  Request types carry go-playground/validator tags for shape checks
  (required fields, lengths). Domain rules such as enum membership and
  positive amounts are enforced by the ledger itself.

SEE ALSO:
  - handlers.go: Uses these types
  - folio/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/folio-ledger/folio"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

type CreateFolioRequest struct {
	FolioType string `json:"folio_type" validate:"required"`
	BookingID string `json:"booking_id,omitempty" validate:"max=64"`
	CompanyID string `json:"company_id,omitempty" validate:"max=64"`
	GuestID   string `json:"guest_id,omitempty" validate:"max=64"`
}

type PostChargeRequest struct {
	Category    string           `json:"charge_category" validate:"required"`
	Description string           `json:"description,omitempty" validate:"max=255"`
	Amount      *decimal.Decimal `json:"amount" validate:"required"`
	// Quantity defaults to 1.
	Quantity *decimal.Decimal `json:"quantity,omitempty"`
}

type PostPaymentRequest struct {
	Amount      *decimal.Decimal `json:"amount" validate:"required"`
	Method      string           `json:"method" validate:"required"`
	PaymentType string           `json:"payment_type" validate:"required"`
	Reference   string           `json:"reference,omitempty" validate:"max=128"`
}

type VoidRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type TransferRequest struct {
	FromFolioID string   `json:"from_folio_id" validate:"required"`
	ToFolioID   string   `json:"to_folio_id" validate:"required,nefield=FromFolioID"`
	ChargeIDs   []string `json:"charge_ids" validate:"required,min=1,dive,required"`
	Reason      string   `json:"reason,omitempty" validate:"max=500"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type FolioDTO struct {
	ID        string  `json:"id"`
	Number    string  `json:"number"`
	FolioType string  `json:"folio_type"`
	BookingID string  `json:"booking_id,omitempty"`
	CompanyID string  `json:"company_id,omitempty"`
	GuestID   string  `json:"guest_id,omitempty"`
	Status    string  `json:"status"`
	Balance   string  `json:"balance"`
	CreatedAt string  `json:"created_at"`
	CreatedBy string  `json:"created_by"`
	ClosedAt  *string `json:"closed_at,omitempty"`
	ClosedBy  string  `json:"closed_by,omitempty"`
}

// BalanceSummaryDTO breaks the balance down by entry kind.
type BalanceSummaryDTO struct {
	Charges  string `json:"charges"`
	Payments string `json:"payments"`
	Voided   string `json:"voided"`
	Balance  string `json:"balance"`
}

type FolioDetailDTO struct {
	FolioDTO
	Summary BalanceSummaryDTO `json:"summary"`
}

type ChargeDTO struct {
	ID              string  `json:"id"`
	FolioID         string  `json:"folio_id"`
	Category        string  `json:"charge_category"`
	Description     string  `json:"description"`
	Amount          string  `json:"amount"`
	Quantity        string  `json:"quantity"`
	Total           string  `json:"total"`
	Voided          bool    `json:"voided"`
	VoidReason      string  `json:"void_reason,omitempty"`
	VoidedBy        string  `json:"voided_by,omitempty"`
	VoidedAt        *string `json:"voided_at,omitempty"`
	TransferredFrom string  `json:"transferred_from,omitempty"`
	TransferredAt   *string `json:"transferred_at,omitempty"`
	CreatedAt       string  `json:"created_at"`
	CreatedBy       string  `json:"created_by"`
}

type PaymentDTO struct {
	ID          string  `json:"id"`
	FolioID     string  `json:"folio_id"`
	Amount      string  `json:"amount"`
	Method      string  `json:"method"`
	PaymentType string  `json:"payment_type"`
	Reference   string  `json:"reference,omitempty"`
	Voided      bool    `json:"voided"`
	VoidReason  string  `json:"void_reason,omitempty"`
	VoidedBy    string  `json:"voided_by,omitempty"`
	VoidedAt    *string `json:"voided_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
	CreatedBy   string  `json:"created_by"`
}

type OperationDTO struct {
	ID             string   `json:"id"`
	FolioID        string   `json:"folio_id"`
	Subject        string   `json:"subject"`
	Action         string   `json:"action"`
	Reason         string   `json:"reason,omitempty"`
	Actor          string   `json:"actor"`
	EntryIDs       []string `json:"entry_ids,omitempty"`
	CounterFolioID string   `json:"counter_folio_id,omitempty"`
	Amount         string   `json:"amount"`
	CreatedAt      string   `json:"created_at"`
}

// ActivityItemDTO is one row of the folio activity feed. Details holds a
// ChargeDTO, PaymentDTO or OperationDTO depending on Type.
//
// Voids and transfers are recorded as operations, so their rows carry
// type "operation" and the kind of entry they touched ("charge",
// "payment" or "folio") is in details.subject.
type ActivityItemDTO struct {
	Type        string `json:"type"`
	Action      string `json:"action"`
	Timestamp   string `json:"timestamp"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Details     any    `json:"details"`
}

type TransferResponse struct {
	From FolioDTO `json:"from"`
	To   FolioDTO `json:"to"`
}

type RecomputeResponse struct {
	FolioID  string `json:"folio_id"`
	Previous string `json:"previous"`
	Balance  string `json:"balance"`
	Drifted  bool   `json:"drifted"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioResponse struct {
	ScenarioID string     `json:"scenario_id"`
	Folios     []FolioDTO `json:"folios"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(d decimal.Decimal) string {
	return d.StringFixed(folio.MoneyPlaces)
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func optionalTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := timestamp(*t)
	return &s
}

func toFolioDTO(f folio.Folio) FolioDTO {
	return FolioDTO{
		ID:        string(f.ID),
		Number:    f.Number,
		FolioType: string(f.Type),
		BookingID: f.BookingID,
		CompanyID: f.CompanyID,
		GuestID:   f.GuestID,
		Status:    string(f.Status),
		Balance:   money(f.Balance),
		CreatedAt: timestamp(f.CreatedAt),
		CreatedBy: f.CreatedBy,
		ClosedAt:  optionalTimestamp(f.ClosedAt),
		ClosedBy:  f.ClosedBy,
	}
}

func toChargeDTO(c folio.Charge) ChargeDTO {
	return ChargeDTO{
		ID:              string(c.ID),
		FolioID:         string(c.FolioID),
		Category:        string(c.Category),
		Description:     c.Description,
		Amount:          money(c.Amount),
		Quantity:        c.Quantity.String(),
		Total:           money(c.Total),
		Voided:          c.Voided,
		VoidReason:      c.VoidReason,
		VoidedBy:        c.VoidedBy,
		VoidedAt:        optionalTimestamp(c.VoidedAt),
		TransferredFrom: string(c.TransferredFrom),
		TransferredAt:   optionalTimestamp(c.TransferredAt),
		CreatedAt:       timestamp(c.CreatedAt),
		CreatedBy:       c.CreatedBy,
	}
}

func toPaymentDTO(p folio.Payment) PaymentDTO {
	return PaymentDTO{
		ID:          string(p.ID),
		FolioID:     string(p.FolioID),
		Amount:      money(p.Amount),
		Method:      string(p.Method),
		PaymentType: string(p.PaymentType),
		Reference:   p.Reference,
		Voided:      p.Voided,
		VoidReason:  p.VoidReason,
		VoidedBy:    p.VoidedBy,
		VoidedAt:    optionalTimestamp(p.VoidedAt),
		CreatedAt:   timestamp(p.CreatedAt),
		CreatedBy:   p.CreatedBy,
	}
}

func toOperationDTO(op folio.Operation) OperationDTO {
	return OperationDTO{
		ID:             string(op.ID),
		FolioID:        string(op.FolioID),
		Subject:        string(op.Subject),
		Action:         string(op.Action),
		Reason:         op.Reason,
		Actor:          op.Actor,
		EntryIDs:       op.Details.EntryIDs,
		CounterFolioID: string(op.Details.CounterFolioID),
		Amount:         money(op.Details.Amount),
		CreatedAt:      timestamp(op.CreatedAt),
	}
}

func toActivityItemDTO(item folio.ActivityItem) ActivityItemDTO {
	dto := ActivityItemDTO{
		Type:        string(item.Type),
		Action:      string(item.Action),
		Timestamp:   timestamp(item.Timestamp),
		Description: item.Description,
		Amount:      money(item.Amount),
	}
	switch d := item.Details.(type) {
	case *folio.Charge:
		dto.Details = toChargeDTO(*d)
	case *folio.Payment:
		dto.Details = toPaymentDTO(*d)
	case *folio.Operation:
		dto.Details = toOperationDTO(*d)
	}
	return dto
}

func toSummaryDTO(s folio.BalanceSummary) BalanceSummaryDTO {
	return BalanceSummaryDTO{
		Charges:  money(s.Charges),
		Payments: money(s.Payments),
		Voided:   money(s.Voided),
		Balance:  money(s.Balance),
	}
}
