package handlers

import (
	"net/http"

	"github.com/diewo77/go-conventions/internal/httpx"
	"github.com/diewo77/go-conventions/internal/models"
	"github.com/diewo77/go-conventions/internal/services"
)

type BudgetHandler struct {
	svc *services.BudgetService
}

func NewBudgetHandler(svc *services.BudgetService) *BudgetHandler {
	return &BudgetHandler{svc: svc}
}

func (h *BudgetHandler) Create(w http.ResponseWriter, r *http.Request) {
	conventionID, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	var rev services.Revision
	if err := httpx.Decode(r, &rev); err != nil {
		httpx.Error(w, err)
		return
	}
	b, err := h.svc.CreateNextVersion(r.Context(), conventionID, actorOf(r), rev)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, b)
}

func (h *BudgetHandler) Historique(w http.ResponseWriter, r *http.Request) {
	conventionID, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	out, err := h.svc.Historique(r.Context(), conventionID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *BudgetHandler) Active(w http.ResponseWriter, r *http.Request) {
	conventionID, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	b, err := h.svc.Active(r.Context(), conventionID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *BudgetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	b, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *BudgetHandler) UpdateLignes(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	var body struct {
		Lignes []services.LigneInput `json:"lignes"`
	}
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, err)
		return
	}
	b, err := h.svc.UpdateLignes(r.Context(), id, actorOf(r), body.Lignes)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

// Transition handles POST /budgets/{id}/{action}.
func (h *BudgetHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	var body motifRequest
	if err := decodeOptional(r, &body); err != nil {
		httpx.Error(w, err)
		return
	}
	var b *models.Budget
	switch action := r.PathValue("action"); action {
	case "soumettre":
		b, err = h.svc.Soumettre(r.Context(), id, actorOf(r))
	case "valider":
		b, err = h.svc.Valider(r.Context(), id, actorOf(r))
	case "rejeter":
		b, err = h.svc.Rejeter(r.Context(), id, actorOf(r), body.Motif)
	default:
		unknownAction(w, action)
		return
	}
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *BudgetHandler) EstimateCommission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	est, err := h.svc.EstimateCommission(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, est)
}
