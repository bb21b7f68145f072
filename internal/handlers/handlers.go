// Package handlers exposes the convention engine as JSON endpoints. Handlers
// decode, call one service operation and map its error to a status code.
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/diewo77/go-conventions/internal/apperr"
	"github.com/diewo77/go-conventions/internal/auth"
	"github.com/diewo77/go-conventions/internal/httpx"
	"github.com/shopspring/decimal"
)

func pathID(r *http.Request, name string) (uint, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.WithDetails(apperr.CodeValidationRequired, "handlers", "invalid path parameter",
			map[string]string{name: "invalid"})
	}
	return uint(id), nil
}

func queryID(r *http.Request, name string) (uint, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.WithDetails(apperr.CodeValidationRequired, "handlers", "invalid query parameter",
			map[string]string{name: "invalid"})
	}
	return uint(id), nil
}

func queryDecimal(r *http.Request, name string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(r.URL.Query().Get(name)))
	if err != nil {
		return decimal.Zero, apperr.WithDetails(apperr.CodeValidationRequired, "handlers", "invalid query parameter",
			map[string]string{name: "invalid_decimal"})
	}
	return d, nil
}

// actorOf returns the gateway-provided actor. Routes that mutate state are
// wrapped in auth.RequireActor, so a zero here only happens on reads.
func actorOf(r *http.Request) uint {
	uid, _ := auth.UserIDFromContext(r.Context())
	return uid
}

type motifRequest struct {
	Motif string `json:"motif"`
}

// decodeOptional decodes a JSON body when one is sent.
func decodeOptional(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return httpx.Decode(r, dst)
}

func unknownAction(w http.ResponseWriter, action string) {
	httpx.Error(w, apperr.WithDetails(apperr.CodeNotFound, "handlers", "unknown action "+action,
		map[string]string{"action": action}))
}
