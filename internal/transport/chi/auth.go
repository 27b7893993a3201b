package chi

import (
	"net/http"
	"strings"
)

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

const adminPrefix = "/v1/admin/"

// BearerAuthMiddleware returns a middleware that validates Bearer tokens.
// Admin keys open every route, api keys everything except /v1/admin.
// If both lists are empty, authentication is disabled (pass-through).
func BearerAuthMiddleware(apiKeys, adminKeys []string) func(http.Handler) http.Handler {
	api := keySet(apiKeys)
	admin := keySet(adminKeys)

	return func(next http.Handler) http.Handler {
		// Auth disabled, pass everything through
		if len(api) == 0 && len(admin) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "authorization header must use Bearer scheme")
				return
			}

			token := auth[len(bearerPrefix):]
			_, isAdmin := admin[token]
			_, isAPI := api[token]

			switch {
			case isAdmin:
			case isAPI && strings.HasPrefix(r.URL.Path, adminPrefix):
				writeError(w, http.StatusForbidden, CodeForbidden, "admin key required")
				return
			case isAPI:
			default:
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid api key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func keySet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}
