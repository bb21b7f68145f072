package handlers

import (
	"net/http"
	"strings"

	"github.com/diewo77/go-conventions/internal/httpx"
	"github.com/diewo77/go-conventions/internal/models"
	"github.com/diewo77/go-conventions/internal/services"
)

type ConventionHandler struct {
	svc *services.ConventionService
}

func NewConventionHandler(svc *services.ConventionService) *ConventionHandler {
	return &ConventionHandler{svc: svc}
}

func (h *ConventionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var d services.ConventionDraft
	if err := httpx.Decode(r, &d); err != nil {
		httpx.Error(w, err)
		return
	}
	c, err := h.svc.Create(r.Context(), actorOf(r), d)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *ConventionHandler) List(w http.ResponseWriter, r *http.Request) {
	statut := models.ConventionStatus(strings.ToUpper(r.URL.Query().Get("statut")))
	out, err := h.svc.List(r.Context(), statut)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *ConventionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *ConventionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	var p services.ConventionPatch
	if err := httpx.Decode(r, &p); err != nil {
		httpx.Error(w, err)
		return
	}
	c, err := h.svc.Update(r.Context(), id, actorOf(r), p)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *ConventionHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

// Transition handles POST /conventions/{id}/{action}.
func (h *ConventionHandler) Transition(w http.ResponseWriter, r *http.Request) {
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
	ctx, actor := r.Context(), actorOf(r)
	var c *models.Convention
	switch action := r.PathValue("action"); action {
	case "soumettre":
		c, err = h.svc.Soumettre(ctx, id, actor)
	case "valider":
		c, err = h.svc.Valider(ctx, id, actor)
	case "rejeter":
		c, err = h.svc.Rejeter(ctx, id, actor, body.Motif)
	case "demarrer":
		c, err = h.svc.Demarrer(ctx, id, actor)
	case "achever":
		c, err = h.svc.Achever(ctx, id, actor)
	case "annuler":
		c, err = h.svc.Annuler(ctx, id, actor, body.Motif)
	case "verrouiller":
		c, err = h.svc.Verrouiller(ctx, id, actor, body.Motif)
	case "deverrouiller":
		c, err = h.svc.Deverrouiller(ctx, id, actor)
	default:
		unknownAction(w, action)
		return
	}
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

type sousConventionRequest struct {
	services.ConventionDraft
	Herite bool `json:"herite_parametres"`
}

func (h *ConventionHandler) CreerSousConvention(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	var req sousConventionRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}
	c, err := h.svc.CreerSousConvention(r.Context(), id, actorOf(r), req.ConventionDraft, req.Herite)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *ConventionHandler) SousConventions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	out, err := h.svc.SousConventions(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *ConventionHandler) Parametres(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	p, err := h.svc.EffectiveParameters(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *ConventionHandler) Historique(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	out, err := h.svc.Historique(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *ConventionHandler) Statistiques(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Statistiques(r.Context())
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

// DetecterRetards runs late detection on demand.
func (h *ConventionHandler) DetecterRetards(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.DetecterRetards(r.Context())
	if err != nil {
		httpx.Error(w, err)
		return
	}
	if ids == nil {
		ids = []uint{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"marquees": ids})
}
