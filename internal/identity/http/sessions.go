package http

import (
	"net"
	"net/http"
	"strings"

	"github.com/mango3/identity/internal/identity/service"
	"github.com/mango3/identity/pkg/httpx"
	"github.com/mango3/identity/pkg/identitysdk"
)

type LoginHandler struct {
	UserService    *service.UserService
	SessionService *service.SessionService
}

type loginRequest struct {
	Login    string `json:"login"` // username or confirmed email
	Password string `json:"password"`
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.UserService.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	session, err := h.SessionService.Start(r.Context(), user, r.UserAgent(), clientIP(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, identitysdk.LoginResponse{
		Token: session.Token,
		User:  userResponse(user),
	})
}

type LogoutHandler struct {
	SessionService *service.SessionService
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session, err := h.SessionService.GetByToken(r.Context(), httpx.BearerToken(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.SessionService.Finish(r.Context(), session); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// clientIP prefers proxy headers over the socket peer, matching the rate
// limiter's extraction order.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
