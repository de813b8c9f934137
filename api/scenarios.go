/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the caller's tenant with
	realistic folios. Each scenario goes through the public ledger
	operations, so the resulting activity feeds look exactly like real use.

AVAILABLE SCENARIOS:

	guest-checkout:   Guest stay with deposit void and room charges moved to the company
	company-billing:  Company folio settled on city ledger and closed
	group-master:     Two guest folios whose room nights roll up to a master folio

HOW SCENARIOS WORK:
 1. Open folios
 2. Post charges and payments
 3. Void and transfer where the story needs it
 4. Return the final state of every folio touched

Nothing is reset: ledger rows are never deleted, so loading a scenario
twice creates a second, independent set of folios.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "guest-checkout"}

SEE ALSO:
  - handlers.go: Handler and error mapping
*/
package api

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/folio-ledger/folio"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenarioLoader func(h *Handler, ctx context.Context, scope folio.Scope) ([]folio.FolioID, error)

var scenarios = []ScenarioDTO{
	{
		ID:          "guest-checkout",
		Name:        "Guest Checkout",
		Description: "Guest stay: card deposit voided, room nights moved to the company folio",
	},
	{
		ID:          "company-billing",
		Name:        "Company Billing",
		Description: "Corporate stay settled on city ledger, then closed",
	},
	{
		ID:          "group-master",
		Name:        "Group Master Folio",
		Description: "Two guests whose room nights roll up to a group master folio",
	},
}

var scenarioLoaders = map[string]scenarioLoader{
	"guest-checkout":  (*Handler).loadGuestCheckoutScenario,
	"company-billing": (*Handler).loadCompanyBillingScenario,
	"group-master":    (*Handler).loadGroupMasterScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario runs a predefined scenario in the caller's tenant.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, string(folio.KindValidation), "unknown scenario "+req.ScenarioID,
			map[string]string{"field": "scenario_id"})
		return
	}

	ctx, scope := r.Context(), scopeFrom(r)
	ids, err := load(h, ctx, scope)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := LoadScenarioResponse{ScenarioID: req.ScenarioID, Folios: make([]FolioDTO, 0, len(ids))}
	for _, id := range ids {
		f, err := h.Ledger.GetFolio(ctx, scope, id)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		resp.Folios = append(resp.Folios, toFolioDTO(*f))
	}
	writeJSON(w, http.StatusCreated, resp)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadGuestCheckoutScenario:
//
//	guest folio: 2 room nights at 500, dinner 150, minibar 75 = 1225
//	card deposit 800 + cash interim 500                       -> -75
//	deposit voided (duplicate authorization)                  -> 725
//	both room nights moved to the company folio               -> guest -275, company 1000
func (h *Handler) loadGuestCheckoutScenario(ctx context.Context, scope folio.Scope) ([]folio.FolioID, error) {
	l := h.Ledger

	guest, err := l.CreateFolio(ctx, scope, folio.CreateFolioInput{
		Type: folio.FolioGuest, BookingID: "BK-1001", GuestID: "guest-ana",
	})
	if err != nil {
		return nil, err
	}
	company, err := l.CreateFolio(ctx, scope, folio.CreateFolioInput{
		Type: folio.FolioCompany, BookingID: "BK-1001", CompanyID: "acme-corp",
	})
	if err != nil {
		return nil, err
	}

	var rooms []folio.ChargeID
	for _, night := range []string{"Room night 1", "Room night 2"} {
		c, err := l.AddCharge(ctx, scope, guest.ID, chargeInput(folio.CategoryRoom, night, "500", "1"))
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, c.ID)
	}
	if _, err := l.AddCharge(ctx, scope, guest.ID, chargeInput(folio.CategoryFood, "Dinner", "150", "1")); err != nil {
		return nil, err
	}
	if _, err := l.AddCharge(ctx, scope, guest.ID, chargeInput(folio.CategoryMinibar, "", "25", "3")); err != nil {
		return nil, err
	}

	deposit, err := l.AddPayment(ctx, scope, guest.ID, paymentInput("800", folio.MethodCard, folio.PaymentDeposit, "AUTH-5521"))
	if err != nil {
		return nil, err
	}
	if _, err := l.AddPayment(ctx, scope, guest.ID, paymentInput("500", folio.MethodCash, folio.PaymentInterim, "")); err != nil {
		return nil, err
	}
	if _, err := l.VoidPayment(ctx, scope, deposit.ID, "duplicate card authorization"); err != nil {
		return nil, err
	}

	if _, err := l.Transfer(ctx, scope, folio.TransferInput{
		FromFolioID: guest.ID,
		ToFolioID:   company.ID,
		ChargeIDs:   rooms,
		Reason:      "room billed to company",
	}); err != nil {
		return nil, err
	}
	return []folio.FolioID{guest.ID, company.ID}, nil
}

// loadCompanyBillingScenario: 3 nights at 180 plus a 120 spa treatment,
// settled in full on city ledger and closed.
func (h *Handler) loadCompanyBillingScenario(ctx context.Context, scope folio.Scope) ([]folio.FolioID, error) {
	l := h.Ledger

	f, err := l.CreateFolio(ctx, scope, folio.CreateFolioInput{
		Type: folio.FolioCompany, BookingID: "BK-2040", CompanyID: "globex",
	})
	if err != nil {
		return nil, err
	}
	if _, err := l.AddCharge(ctx, scope, f.ID, chargeInput(folio.CategoryRoom, "Executive room", "180", "3")); err != nil {
		return nil, err
	}
	if _, err := l.AddCharge(ctx, scope, f.ID, chargeInput(folio.CategorySpa, "Massage", "120", "1")); err != nil {
		return nil, err
	}
	if _, err := l.AddPayment(ctx, scope, f.ID, paymentInput("660", folio.MethodCityLedger, folio.PaymentFinal, "CL-GLOBEX-07")); err != nil {
		return nil, err
	}
	if _, err := l.CloseFolio(ctx, scope, f.ID); err != nil {
		return nil, err
	}
	return []folio.FolioID{f.ID}, nil
}

// loadGroupMasterScenario: each guest has a 300 room night and a small
// incidental. Room nights move to the master, which is prepaid by bank
// transfer; guests keep only their incidentals.
func (h *Handler) loadGroupMasterScenario(ctx context.Context, scope folio.Scope) ([]folio.FolioID, error) {
	l := h.Ledger

	master, err := l.CreateFolio(ctx, scope, folio.CreateFolioInput{Type: folio.FolioMaster, BookingID: "GRP-77"})
	if err != nil {
		return nil, err
	}
	if _, err := l.AddPayment(ctx, scope, master.ID, paymentInput("600", folio.MethodBankTransfer, folio.PaymentDeposit, "WIRE-0091")); err != nil {
		return nil, err
	}

	ids := []folio.FolioID{master.ID}
	guests := []struct {
		guestID     string
		incidental  folio.ChargeCategory
		description string
		amount      string
	}{
		{"guest-kim", folio.CategoryFood, "Breakfast", "40"},
		{"guest-luis", folio.CategoryLaundry, "Pressing", "25"},
	}
	for _, g := range guests {
		f, err := l.CreateFolio(ctx, scope, folio.CreateFolioInput{
			Type: folio.FolioGuest, BookingID: "GRP-77", GuestID: g.guestID,
		})
		if err != nil {
			return nil, err
		}
		room, err := l.AddCharge(ctx, scope, f.ID, chargeInput(folio.CategoryRoom, "Group rate", "300", "1"))
		if err != nil {
			return nil, err
		}
		if _, err := l.AddCharge(ctx, scope, f.ID, chargeInput(g.incidental, g.description, g.amount, "1")); err != nil {
			return nil, err
		}
		if _, err := l.Transfer(ctx, scope, folio.TransferInput{
			FromFolioID: f.ID,
			ToFolioID:   master.ID,
			ChargeIDs:   []folio.ChargeID{room.ID},
			Reason:      "group rate on master",
		}); err != nil {
			return nil, err
		}
		ids = append(ids, f.ID)
	}
	return ids, nil
}

func chargeInput(category folio.ChargeCategory, description, amount, quantity string) folio.ChargeInput {
	return folio.ChargeInput{
		Category:    category,
		Description: description,
		Amount:      decimal.RequireFromString(amount),
		Quantity:    decimal.RequireFromString(quantity),
	}
}

func paymentInput(amount string, method folio.PaymentMethod, typ folio.PaymentType, reference string) folio.PaymentInput {
	return folio.PaymentInput{
		Amount:      decimal.RequireFromString(amount),
		Method:      method,
		PaymentType: typ,
		Reference:   reference,
	}
}
