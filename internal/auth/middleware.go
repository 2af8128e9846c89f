package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. With a plain string key any
// package could read or shadow the value. Only this package can create a
// contextKey, so only this package can set the Identity.
type contextKey string

const identityKey contextKey = "identity"

// Messages returned by the gate. The UI shows them verbatim.
const (
	MsgNoToken      = "No token provided"
	MsgInvalidToken = "Invalid or expired token"
)

// RequireAuth is the Authentication Gate in front of every customer and report route.
//
// It reads "Authorization: Bearer <token>", validates the token and stores the
// resolved Identity in the request context. If the header is missing or the
// token is invalid/expired, it answers 401 and the wrapped handler never runs.
//
// MIDDLEWARE PATTERN IN GO:
//
//	func Middleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // ... before ...
//	        next.ServeHTTP(w, r)
//	        // ... after ...
//	    })
//	}
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				unauthorized(w, MsgNoToken)
				return
			}

			id, err := tokens.Validate(raw)
			if err != nil {
				unauthorized(w, MsgInvalidToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// WithIdentity returns a copy of ctx carrying id.
// RequireAuth uses it; tests use it to call handlers directly.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the authenticated caller.
//
// Returns (Identity{}, false) outside a RequireAuth-protected route.
//
// Usage in handlers:
//
//	id, ok := auth.IdentityFromContext(r.Context())
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively, as RFC 6750 allows.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// unauthorized writes the standard error envelope. The handler package owns
// the general-purpose writer, but importing it from here would create a cycle.
func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   "unauthorized",
		"message": message,
	})
}
