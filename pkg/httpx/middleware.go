package httpx

import (
	"crypto/subtle"
	"net/http"

	"github.com/mango3/identity/pkg/slogx"
)

// Middleware is a standard net/http middleware.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares around h in declaration order: the first
// middleware listed is the outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// AppTokenHeader carries the shared application token that gates which
// callers may talk to the authority at all. This is distinct from
// per-application client secrets.
const AppTokenHeader = "X-App-Token"

// RequireAppToken rejects requests whose app token header does not match the
// configured shared token.
func RequireAppToken(token string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AppTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				slogx.FromContext(r.Context()).Warn("app token rejected", "path", r.URL.Path)
				WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
