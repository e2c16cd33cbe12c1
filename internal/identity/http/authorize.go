package http

import (
	"net/http"

	"github.com/mango3/identity/internal/identity/service"
	"github.com/mango3/identity/pkg/httpx"
	"github.com/mango3/identity/pkg/identitysdk"
)

// AuthorizeHandler grants an application delegated access bound to the
// caller's session. The caller proves identity with the session bearer token;
// the application is named by id, not authenticated (the grant only becomes
// useful once delivered to the redirect URL the application registered).
type AuthorizeHandler struct {
	SessionService       *service.SessionService
	ApplicationService   *service.ApplicationService
	AuthorizationService *service.AuthorizationService
}

type authorizeRequest struct {
	ApplicationID string `json:"application_id"`
}

func (h *AuthorizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, session, err := h.SessionService.GetUserByToken(r.Context(), httpx.BearerToken(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	app, err := h.ApplicationService.Get(r.Context(), req.ApplicationID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	redirectURL, err := h.AuthorizationService.Authorize(r.Context(), app, user, session)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, identitysdk.AuthorizeResponse{
		RedirectURL: redirectURL,
	})
}
