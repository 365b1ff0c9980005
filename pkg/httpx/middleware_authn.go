package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

// Authenticator turns a bearer token into an enriched request context.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (context.Context, error)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(authz, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// AuthnMiddleware rejects requests without a valid bearer token.
func AuthnMiddleware(a Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			ctx, err := a.Authenticate(r.Context(), raw)
			if err != nil {
				slogx.FromContext(r.Context()).Info("bearer authentication failed", slogx.Err(err))
				writeBearerError(w, "token verification failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RFC 6750 error response.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
