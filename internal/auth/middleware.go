package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// RFC 6750 Section 3 error codes
const (
	// errorCodeInvalidRequest indicates the request is missing a required
	// parameter or is otherwise malformed.
	errorCodeInvalidRequest = "invalid_request"

	// errorCodeInvalidToken indicates the access token provided is expired,
	// malformed, or invalid for other reasons.
	errorCodeInvalidToken = "invalid_token"
)

// realm is the protection space identifier
const realm = "trials-api"

type contextKey string

// identityContextKey carries the authenticated identity in the request context
const identityContextKey contextKey = "auth.identity"

// IdentityFromContext returns the identity stored by the middleware, if any
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	return identity, ok
}

// Middleware returns a chi middleware that requires a valid bearer token.
// The authenticated identity is stored in the request context.
func Middleware(issuer *TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, http.StatusUnauthorized, errorCodeInvalidRequest, "missing authorization header")
				return
			}

			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				writeError(w, http.StatusUnauthorized, errorCodeInvalidRequest, "authorization header must use the Bearer scheme")
				return
			}

			identity, err := issuer.Validate(tokenString)
			if err != nil {
				slog.DebugContext(r.Context(), "token validation failed", "error", err)
				writeError(w, http.StatusUnauthorized, errorCodeInvalidToken, "token is expired or invalid")
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sanitizeHeaderValue strips characters that would break a quoted-string
// header value or allow header injection.
func sanitizeHeaderValue(s string) string {
	if !strings.ContainsAny(s, "\r\n\"") {
		return s
	}
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// writeError writes a JSON error response with an RFC 6750 compliant
// WWW-Authenticate header.
func writeError(w http.ResponseWriter, status int, errCode, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(
		`Bearer realm="%s", error="%s", error_description="%s"`,
		realm, errCode, sanitizeHeaderValue(description)))
	w.WriteHeader(status)

	resp := struct {
		Error string `json:"error"`
	}{
		Error: description,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
