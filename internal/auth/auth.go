// Package auth carries the acting user id through the request context.
// Requests arrive through a trusted gateway that forwards the id in a header;
// nothing here verifies credentials.
package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

type ctxKey string

const (
	// ActorHeader is set by the gateway in front of the API.
	ActorHeader   = "X-Actor-ID"
	actorIDCtxKey = ctxKey("actorID")
)

// ActorVerifier is an optional callback to reject unknown actors.
// Set it during app bootstrap via SetActorVerifier. If nil, no extra verification is performed.
type ActorVerifier func(ctx context.Context, uid uint) bool

var verifier ActorVerifier

// SetActorVerifier configures the global verifier used by RequireActor.
func SetActorVerifier(v ActorVerifier) { verifier = v }

// ParseActor reads the actor id header.
func ParseActor(r *http.Request) (uint, bool) {
	raw := strings.TrimSpace(r.Header.Get(ActorHeader))
	if raw == "" {
		return 0, false
	}
	id64, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id64 == 0 {
		return 0, false
	}
	return uint(id64), true
}

// WithUserID stores user id in context.
func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, actorIDCtxKey, userID)
}

// UserIDFromContext extracts user id.
func UserIDFromContext(ctx context.Context) (uint, bool) {
	v := ctx.Value(actorIDCtxKey)
	if v == nil {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// Middleware attaches the actor id to the request context if present.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if uid, ok := ParseActor(r); ok {
			r = r.WithContext(WithUserID(r.Context(), uid))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireActor returns 401 JSON when no actor is attached.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UserIDFromContext(r.Context())
		if !ok || (verifier != nil && !verifier(r.Context(), uid)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
