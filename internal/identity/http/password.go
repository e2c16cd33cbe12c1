package http

import (
	"net/http"

	"github.com/mango3/identity/internal/identity/service"
	"github.com/mango3/identity/pkg/httpx"
)

// PasswordHandler changes the password of the session's user, re-verifying
// the current password first.
type PasswordHandler struct {
	SessionService *service.SessionService
	UserService    *service.UserService
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *PasswordHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, _, err := h.SessionService.GetUserByToken(r.Context(), httpx.BearerToken(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.UserService.ChangePassword(r.Context(), user, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
