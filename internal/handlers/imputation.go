package handlers

import (
	"net/http"
	"strings"

	"github.com/diewo77/go-conventions/internal/apperr"
	"github.com/diewo77/go-conventions/internal/httpx"
	"github.com/diewo77/go-conventions/internal/models"
	"github.com/diewo77/go-conventions/internal/services"
)

type ImputationHandler struct {
	svc *services.ImputationService
}

func NewImputationHandler(svc *services.ImputationService) *ImputationHandler {
	return &ImputationHandler{svc: svc}
}

func queryType(r *http.Request) (models.ImputationType, error) {
	t := models.ImputationType(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("type"))))
	if !t.Valid() {
		return "", apperr.WithDetails(apperr.CodeValidationRequired, "handlers", "invalid query parameter",
			map[string]string{"type": "invalid"})
	}
	return t, nil
}

func (h *ImputationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.ImputationInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, err)
		return
	}
	imp, err := h.svc.Create(r.Context(), actorOf(r), in)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, imp)
}

func (h *ImputationHandler) List(w http.ResponseWriter, r *http.Request) {
	typ, err := queryType(r)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	refID, err := queryID(r, "reference_id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	out, err := h.svc.List(r.Context(), typ, refID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *ImputationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	var in services.ImputationInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, err)
		return
	}
	imp, err := h.svc.Update(r.Context(), id, in)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, imp)
}

func (h *ImputationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		httpx.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Total checks the imputations of a reference against ?expected.
func (h *ImputationHandler) Total(w http.ResponseWriter, r *http.Request) {
	typ, err := queryType(r)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	refID, err := queryID(r, "reference_id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	expected, err := queryDecimal(r, "expected")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	res, err := h.svc.ValidateTotal(r.Context(), typ, refID, expected)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// Aggregate sums by ?dim, or cross-tabulates when ?dim2 is also set.
func (h *ImputationHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	typ, err := queryType(r)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	q := r.URL.Query()
	dim, dim2 := strings.TrimSpace(q.Get("dim")), strings.TrimSpace(q.Get("dim2"))
	if dim == "" {
		httpx.Error(w, apperr.WithDetails(apperr.CodeValidationRequired, "handlers", "missing query parameter",
			map[string]string{"dim": "required"}))
		return
	}
	if dim2 == "" {
		sums, err := h.svc.AggregateByDimension(r.Context(), typ, dim)
		if err != nil {
			httpx.Error(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, sums)
		return
	}
	pairs, err := h.svc.AggregateByTwoDimensions(r.Context(), typ, dim, dim2)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pairs)
}

type DimensionHandler struct {
	svc *services.DimensionService
}

func NewDimensionHandler(svc *services.DimensionService) *DimensionHandler {
	return &DimensionHandler{svc: svc}
}

func (h *DimensionHandler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.List(r.Context())
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

type dimensionRequest struct {
	Code        string `json:"code"`
	Libelle     string `json:"libelle"`
	Obligatoire bool   `json:"obligatoire"`
	Ordre       int    `json:"ordre"`
}

func (h *DimensionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dimensionRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}
	d, err := h.svc.CreateDimension(r.Context(), req.Code, req.Libelle, req.Obligatoire, req.Ordre)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *DimensionHandler) AddValue(w http.ResponseWriter, r *http.Request) {
	var req dimensionRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}
	v, err := h.svc.AddValue(r.Context(), r.PathValue("code"), req.Code, req.Libelle, req.Ordre)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, v)
}

// SetActive toggles a dimension, or one of its values when "valeur" is set.
func (h *DimensionHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Valeur string `json:"valeur"`
		Actif  bool   `json:"actif"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}
	if err := h.svc.SetActive(r.Context(), r.PathValue("code"), req.Valeur, req.Actif); err != nil {
		httpx.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
