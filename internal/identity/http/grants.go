package http

import (
	"net/http"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/service"
	"github.com/mango3/identity/internal/identity/store"
	"github.com/mango3/identity/pkg/httpx"
	"github.com/mango3/identity/pkg/identitysdk"
)

// GrantHandler serves the application-facing token endpoints: verify,
// refresh and revoke, keyed by the grant bearer token plus the calling
// application's client credentials.
type GrantHandler struct {
	AuthorizationService *service.AuthorizationService
	ApplicationService   *service.ApplicationService
	UserService          *service.UserService
}

// authenticateGrant resolves the bearer grant for an application proving its
// client credentials. A grant issued to a different application is not
// disclosed.
func (h *GrantHandler) authenticateGrant(r *http.Request) (domain.Authorization, error) {
	app, err := h.ApplicationService.Authenticate(r.Context(),
		r.Header.Get(identitysdk.ClientIDHeader),
		r.Header.Get(identitysdk.ClientSecretHeader),
	)
	if err != nil {
		return domain.Authorization{}, err
	}

	grant, err := h.AuthorizationService.GetByToken(r.Context(), httpx.BearerToken(r))
	if err != nil {
		return domain.Authorization{}, err
	}
	if grant.ApplicationID != app.ID {
		return domain.Authorization{}, store.ErrNotFound
	}
	return grant, nil
}

func (h *GrantHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	grant, err := h.authenticateGrant(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, identitysdk.VerifyResponse{
		AuthorizationID: grant.ID,
		ApplicationID:   grant.ApplicationID,
		UserID:          grant.UserID,
		SessionID:       grant.SessionID,
		ExpiresAt:       grant.ExpiresAt,
	})
}

func (h *GrantHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	grant, err := h.authenticateGrant(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	refreshed, err := h.AuthorizationService.Refresh(r.Context(), grant)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, identitysdk.RefreshResponse{
		Token:     refreshed.Token,
		ExpiresAt: refreshed.ExpiresAt,
	})
}

func (h *GrantHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	grant, err := h.authenticateGrant(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.AuthorizationService.Revoke(r.Context(), grant); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleUserInfo returns the user behind a grant token.
func (h *GrantHandler) HandleUserInfo(w http.ResponseWriter, r *http.Request) {
	grant, err := h.AuthorizationService.GetByToken(r.Context(), httpx.BearerToken(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	user, err := h.UserService.GetUserByID(r.Context(), grant.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, userResponse(user))
}
