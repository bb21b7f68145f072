package handlers

import (
	"net/http"

	"github.com/diewo77/go-conventions/internal/httpx"
	"github.com/diewo77/go-conventions/internal/services"
	"github.com/shopspring/decimal"
)

type PartenaireHandler struct {
	partenaires *services.PartenaireService
	commissions *services.CommissionService
}

func NewPartenaireHandler(partenaires *services.PartenaireService, commissions *services.CommissionService) *PartenaireHandler {
	return &PartenaireHandler{partenaires: partenaires, commissions: commissions}
}

// Definir replaces the partner allocations of a convention.
func (h *PartenaireHandler) Definir(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	var body struct {
		Partenaires []services.Allocation `json:"partenaires"`
	}
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, err)
		return
	}
	out, err := h.partenaires.Definir(r.Context(), id, actorOf(r), body.Partenaires)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *PartenaireHandler) List(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	out, err := h.partenaires.List(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *PartenaireHandler) Commissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	out, err := h.partenaires.CommissionsIntervention(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

type facturerRequest struct {
	Reference string          `json:"reference"`
	MontantHT decimal.Decimal `json:"montant_ht"`
}

func (h *PartenaireHandler) Facturer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	var req facturerRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}
	bill, err := h.commissions.Facturer(r.Context(), id, actorOf(r), req.Reference, req.MontantHT)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bill)
}

// Factures lists billed commissions with their totals.
func (h *PartenaireHandler) Factures(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	list, err := h.commissions.List(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	total, err := h.commissions.Total(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"commissions": list, "total": total})
}
