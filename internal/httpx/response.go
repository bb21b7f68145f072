package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/diewo77/go-conventions/internal/apperr"
	"github.com/diewo77/go-conventions/internal/assert"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	var body []byte
	var err error
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			http.Error(w, `{"error":"encode_error"}`, http.StatusInternalServerError)
			return
		}
	} else {
		body = []byte("null")
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func JSONError(w http.ResponseWriter, status int, msg string, details any) {
	JSON(w, status, ErrorResponse{Error: msg, Details: details})
}

// StatusOf maps an engine error code to an HTTP status.
func StatusOf(err error) int {
	if errors.Is(err, assert.ErrAssertionFailed) {
		return http.StatusInternalServerError
	}
	switch apperr.CodeOf(err) {
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeValidationRequired, apperr.CodeIncompleteImputation:
		return http.StatusBadRequest
	case apperr.CodeInvalidTransition, apperr.CodeConcurrentModification, apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodePlafondExceeded, apperr.CodeImputationMismatch:
		return http.StatusUnprocessableEntity
	case apperr.CodeNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as a JSON error body. Internal failures hide their message.
func Error(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		JSON(w, status, ErrorResponse{Error: "internal_error", Code: string(apperr.CodeInternal)})
		return
	}
	resp := ErrorResponse{Error: err.Error(), Code: string(apperr.CodeOf(err))}
	if d := apperr.DetailsOf(err); len(d) > 0 {
		resp.Details = d
	}
	JSON(w, status, resp)
}

// Decode reads a JSON body into dst, rejecting unknown fields.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.WithDetails(apperr.CodeValidationRequired, "decode", "invalid JSON body",
			map[string]string{"body": err.Error()})
	}
	return nil
}
