package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/diewo77/go-conventions/internal/apperr"
	"github.com/diewo77/go-conventions/internal/auth"
)

func TestPathID(t *testing.T) {
	for raw, ok := range map[string]bool{"12": true, "0": false, "-1": false, "x": false} {
		req := httptest.NewRequest(http.MethodGet, "/conventions/"+raw, nil)
		req.SetPathValue("id", raw)
		id, err := pathID(req, "id")
		if ok && (err != nil || id != 12) {
			t.Fatalf("%q: got %d, %v", raw, id, err)
		}
		if !ok && !apperr.IsCode(err, apperr.CodeValidationRequired) {
			t.Fatalf("%q: expected validation error, got %v", raw, err)
		}
	}
}

func TestQueryDecimal(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/imputations/total?expected=100.50", nil)
	d, err := queryDecimal(req, "expected")
	if err != nil || d.StringFixed(2) != "100.50" {
		t.Fatalf("got %s, %v", d, err)
	}
	req = httptest.NewRequest(http.MethodGet, "/imputations/total?expected=abc", nil)
	if _, err := queryDecimal(req, "expected"); apperr.DetailsOf(err)["expected"] != "invalid_decimal" {
		t.Fatalf("expected invalid_decimal, got %v", err)
	}
}

func TestDecodeOptional(t *testing.T) {
	var body motifRequest
	req := httptest.NewRequest(http.MethodPost, "/conventions/1/annuler", nil)
	if err := decodeOptional(req, &body); err != nil || body.Motif != "" {
		t.Fatalf("empty body: %v %q", err, body.Motif)
	}
	req = httptest.NewRequest(http.MethodPost, "/conventions/1/annuler", strings.NewReader(`{"motif":"doublon"}`))
	if err := decodeOptional(req, &body); err != nil || body.Motif != "doublon" {
		t.Fatalf("motif body: %v %q", err, body.Motif)
	}
}

func TestActorOf(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := actorOf(req); got != 0 {
		t.Fatalf("expected no actor, got %d", got)
	}
	req = req.WithContext(auth.WithUserID(req.Context(), 9))
	if got := actorOf(req); got != 9 {
		t.Fatalf("expected actor 9, got %d", got)
	}
}

func TestUnknownAction(t *testing.T) {
	rec := httptest.NewRecorder()
	unknownAction(rec, "frobnicate")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"action":"frobnicate"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}
