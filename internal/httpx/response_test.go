package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/diewo77/go-conventions/internal/apperr"
	"github.com/diewo77/go-conventions/internal/assert"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.NotFound("op", "convention", 1), http.StatusNotFound},
		{apperr.Required("op", "motif"), http.StatusBadRequest},
		{apperr.InvalidTransition("op", "ACHEVE", "valider"), http.StatusConflict},
		{apperr.Concurrent("op", "version moved"), http.StatusConflict},
		{apperr.New(apperr.CodePlafondExceeded, "op", "over"), http.StatusUnprocessableEntity},
		{apperr.New(apperr.CodeNotImplemented, "op", "mixte"), http.StatusNotImplemented},
		{fmt.Errorf("wrapped: %w", assert.ErrAssertionFailed), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := StatusOf(c.err); got != c.want {
			t.Fatalf("%v: expected %d got %d", c.err, c.want, got)
		}
	}
}

func TestErrorBody(t *testing.T) {
	rr := httptest.NewRecorder()
	Error(rr, apperr.WithDetails(apperr.CodeIncompleteImputation, "imputation.check", "missing", map[string]string{"REG": "required"}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rr.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Code != "incomplete_imputation" {
		t.Fatalf("code %q", body.Code)
	}
	if d, ok := body.Details.(map[string]any); !ok || d["REG"] != "required" {
		t.Fatalf("details %v", body.Details)
	}
}

func TestErrorHidesInternal(t *testing.T) {
	rr := httptest.NewRecorder()
	Error(rr, errors.New("pq: password authentication failed"))
	if strings.Contains(rr.Body.String(), "password") {
		t.Fatalf("internal message leaked: %s", rr.Body.String())
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Motif string `json:"motif"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"motif":"x","extra":1}`))
	if err := Decode(req, &dst); !apperr.IsCode(err, apperr.CodeValidationRequired) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
