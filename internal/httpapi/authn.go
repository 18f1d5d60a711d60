package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = map[string]bool{
	"/v1/auth/login":    true,
	"/v1/auth/register": true,
	"/v1/info":          true,
	"/metrics":          true,
	"/healthz":          true,
	"/readyz":           true,
}

// withAuth decodes the bearer token into the request identity and opens a
// per-request scope cache. Public paths pass through untouched.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="consorcia"`)
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		id, err := a.auth.Authenticate(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="consorcia", error="invalid_token"`)
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), id)
		ctx = auth.ContextWithToken(ctx, token)
		ctx = authz.WithRequestCache(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// identity returns the caller; the zero identity when the request is anonymous.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}
