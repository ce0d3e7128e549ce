package middleware

import (
	"net/http"
	"strings"

	"github.com/simplepos/shell/pkg/auth"
	"github.com/simplepos/shell/pkg/response"
)

// Auth rejects requests without a valid bridge token. A signer without a
// secret lets every request through; serve always installs one, see
// app.EnsureBridgeSecret.
func Auth(signer *auth.Signer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !signer.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearer(r)
			if token == "" {
				response.Unauthorized(w)
				return
			}

			claims, err := signer.ValidateToken(token)
			if err != nil {
				response.Error(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

// bearer reads the token from the Authorization header or, because browsers
// cannot set headers on a websocket handshake, from ?token=.
func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
