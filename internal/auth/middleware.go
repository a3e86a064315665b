package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pawmart/pawmart/internal/platform/httpx"
	"github.com/pawmart/pawmart/internal/shared"
)

// Middleware resolves the Authorization header into a context actor. Requests
// without a token pass through anonymously; mutation handlers reject those
// via shared.RequireActor. A token that is present but does not resolve is a
// hard 401 so clients notice expiry instead of silently losing writes.
func Middleware(store *TokenStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			actor, err := store.Resolve(r.Context(), token)
			if err != nil {
				if errors.Is(err, ErrTokenInvalid) {
					httpx.Fail(w, http.StatusUnauthorized, "invalid or expired token")
					return
				}
				httpx.Fail(w, http.StatusInternalServerError, "internal server error")
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
