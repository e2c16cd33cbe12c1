package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mango3/identity/internal/identity/service"
	"github.com/mango3/identity/internal/identity/store"
	"github.com/mango3/identity/pkg/httpx"
	"github.com/mango3/identity/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	appToken     string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store                store.Store
	UserService          *service.UserService
	SessionService       *service.SessionService
	ConfirmationService  *service.ConfirmationService
	AuthorizationService *service.AuthorizationService
	ApplicationService   *service.ApplicationService
}

func NewRouter(appToken, buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		appToken:     appToken,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerUsers()
	r.registerSessions()
	r.registerAuthorizations()
	r.registerConfirmations()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// protect gates a handler behind the shared app token, then any
// route-specific middleware.
func (r *Router) protect(h http.Handler, mws ...httpx.Middleware) http.Handler {
	chain := append([]httpx.Middleware{httpx.RequireAppToken(r.appToken)}, mws...)
	return httpx.Chain(h, chain...)
}

func (r *Router) registerUsers() {
	// POST /register - strict rate limit (account creation)
	r.Mux.Handle("POST /register", r.protect(
		&RegisterHandler{UserService: r.UserService},
		httpx.RateLimitByIP(httpx.StrictLimit),
	))

	// POST /password - authenticated password change
	r.Mux.Handle("POST /password", r.protect(
		&PasswordHandler{SessionService: r.SessionService, UserService: r.UserService},
		httpx.RateLimitByIP(httpx.StrictLimit),
	))
}

func (r *Router) registerSessions() {
	// POST /login - strict rate limit (authentication attempts)
	r.Mux.Handle("POST /login", r.protect(
		&LoginHandler{UserService: r.UserService, SessionService: r.SessionService},
		httpx.RateLimitByIP(httpx.StrictLimit),
	))

	r.Mux.Handle("POST /logout", r.protect(
		&LogoutHandler{SessionService: r.SessionService},
		httpx.RateLimitByIP(httpx.ModerateLimit),
	))
}

func (r *Router) registerAuthorizations() {
	r.Mux.Handle("POST /authorize", r.protect(
		&AuthorizeHandler{
			SessionService:       r.SessionService,
			ApplicationService:   r.ApplicationService,
			AuthorizationService: r.AuthorizationService,
		},
		httpx.RateLimitByIP(httpx.ModerateLimit),
	))

	grants := &GrantHandler{
		AuthorizationService: r.AuthorizationService,
		ApplicationService:   r.ApplicationService,
		UserService:          r.UserService,
	}

	// Application-facing token endpoints; lenient since legitimate callers
	// poll these.
	r.Mux.Handle("GET /auth/verify", r.protect(
		http.HandlerFunc(grants.HandleVerify),
		httpx.RateLimitByIP(httpx.LenientLimit),
	))
	r.Mux.Handle("PUT /auth/refresh", r.protect(
		http.HandlerFunc(grants.HandleRefresh),
		httpx.RateLimitByIP(httpx.ModerateLimit),
	))
	r.Mux.Handle("DELETE /auth/revoke", r.protect(
		http.HandlerFunc(grants.HandleRevoke),
		httpx.RateLimitByIP(httpx.ModerateLimit),
	))
	r.Mux.Handle("GET /user-info", r.protect(
		http.HandlerFunc(grants.HandleUserInfo),
		httpx.RateLimitByIP(httpx.LenientLimit),
	))
}

func (r *Router) registerConfirmations() {
	confirmations := &ConfirmationHandler{
		Store:               r.store,
		SessionService:      r.SessionService,
		ConfirmationService: r.ConfirmationService,
	}

	// Code issuance and submission are both brute-forceable; keep them
	// strict.
	r.Mux.Handle("POST /confirmations/password-reset", r.protect(
		http.HandlerFunc(confirmations.HandleRequestPasswordReset),
		httpx.RateLimitByIP(httpx.StrictLimit),
	))
	r.Mux.Handle("PUT /confirmations/password-reset", r.protect(
		http.HandlerFunc(confirmations.HandleCompletePasswordReset),
		httpx.RateLimitByIP(httpx.StrictLimit),
	))
	r.Mux.Handle("POST /confirmations/email", r.protect(
		http.HandlerFunc(confirmations.HandleRequestEmailConfirmation),
		httpx.RateLimitByIP(httpx.StrictLimit),
	))
	r.Mux.Handle("PUT /confirmations/email", r.protect(
		http.HandlerFunc(confirmations.HandleCompleteEmailConfirmation),
		httpx.RateLimitByIP(httpx.StrictLimit),
	))
}

func (r *Router) registerSystem() {
	// Liveness stays open so probes don't need the app token.
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
}
