package handlers

import (
	"net/http"

	"github.com/diewo77/go-conventions/internal/httpx"
	"github.com/diewo77/go-conventions/internal/models"
	"github.com/diewo77/go-conventions/internal/services"
)

type AvenantHandler struct {
	svc *services.AvenantService
}

func NewAvenantHandler(svc *services.AvenantService) *AvenantHandler {
	return &AvenantHandler{svc: svc}
}

func (h *AvenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	conventionID, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	var d services.AvenantDraft
	if err := httpx.Decode(r, &d); err != nil {
		httpx.Error(w, err)
		return
	}
	a, err := h.svc.Create(r.Context(), conventionID, actorOf(r), d)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *AvenantHandler) List(w http.ResponseWriter, r *http.Request) {
	conventionID, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	out, err := h.svc.List(r.Context(), conventionID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *AvenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	a, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *AvenantHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	var d services.AvenantDraft
	if err := httpx.Decode(r, &d); err != nil {
		httpx.Error(w, err)
		return
	}
	a, err := h.svc.Update(r.Context(), id, actorOf(r), d)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *AvenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id, actorOf(r)); err != nil {
		httpx.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Transition handles POST /avenants/{id}/{action}.
func (h *AvenantHandler) Transition(w http.ResponseWriter, r *http.Request) {
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
	var a *models.Avenant
	switch action := r.PathValue("action"); action {
	case "soumettre":
		a, err = h.svc.Soumettre(r.Context(), id, actorOf(r))
	case "valider":
		a, err = h.svc.Valider(r.Context(), id, actorOf(r))
	case "rejeter":
		a, err = h.svc.Rejeter(r.Context(), id, actorOf(r), body.Motif)
	default:
		unknownAction(w, action)
		return
	}
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *AvenantHandler) VersionConsolidee(w http.ResponseWriter, r *http.Request) {
	conventionID, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	v, err := h.svc.GetVersionConsolidee(r.Context(), conventionID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *AvenantHandler) Versions(w http.ResponseWriter, r *http.Request) {
	conventionID, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	out, err := h.svc.HistoriqueVersions(r.Context(), conventionID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *AvenantHandler) Statistiques(w http.ResponseWriter, r *http.Request) {
	conventionID, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	st, err := h.svc.Statistiques(r.Context(), conventionID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}
