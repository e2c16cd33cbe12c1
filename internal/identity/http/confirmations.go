package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/service"
	"github.com/mango3/identity/internal/identity/store"
	"github.com/mango3/identity/pkg/httpx"
	"github.com/mango3/identity/pkg/identitysdk"
	"github.com/mango3/identity/pkg/idx"
)

// ConfirmationHandler serves the confirmation-code workflows: issuing a
// password reset for a login identifier, issuing an email confirmation for
// the current session's user, and completing either with a code.
type ConfirmationHandler struct {
	Store               store.Store
	SessionService      *service.SessionService
	ConfirmationService *service.ConfirmationService
}

type passwordResetRequest struct {
	Login string `json:"login"` // username or confirmed email
}

// HandleRequestPasswordReset issues a password_reset confirmation. The
// response shape is identical whether or not the login resolves, so the
// endpoint cannot be used to probe for accounts.
func (h *ConfirmationHandler) HandleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.Store.Users().GetEnabledUserByLogin(r.Context(), req.Login)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Decoy response: same shape and comparable latency for unknown
			// logins. The id resolves to nothing.
			httpx.WriteJSON(w, http.StatusAccepted, identitysdk.ConfirmationResponse{
				ConfirmationID: idx.New().String(),
				ExpiresAt:      time.Now().UTC().Add(h.ConfirmationService.TTL),
			})
			return
		}
		writeServiceError(w, r, err)
		return
	}

	confirmation, err := h.ConfirmationService.Issue(r.Context(), user, domain.ConfirmationPasswordReset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusAccepted, identitysdk.ConfirmationResponse{
		ConfirmationID: confirmation.ID,
		ExpiresAt:      confirmation.ExpiresAt,
	})
}

type completePasswordResetRequest struct {
	ConfirmationID string `json:"confirmation_id"`
	Code           string `json:"code"`
	NewPassword    string `json:"new_password"`
}

func (h *ConfirmationHandler) HandleCompletePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req completePasswordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.ConfirmationService.ResetPassword(r.Context(), req.ConfirmationID, req.Code, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleRequestEmailConfirmation issues an email confirmation for the
// session's user.
func (h *ConfirmationHandler) HandleRequestEmailConfirmation(w http.ResponseWriter, r *http.Request) {
	user, _, err := h.SessionService.GetUserByToken(r.Context(), httpx.BearerToken(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	confirmation, err := h.ConfirmationService.Issue(r.Context(), user, domain.ConfirmationEmail)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusAccepted, identitysdk.ConfirmationResponse{
		ConfirmationID: confirmation.ID,
		ExpiresAt:      confirmation.ExpiresAt,
	})
}

type completeEmailConfirmationRequest struct {
	ConfirmationID string `json:"confirmation_id"`
	Code           string `json:"code"`
}

func (h *ConfirmationHandler) HandleCompleteEmailConfirmation(w http.ResponseWriter, r *http.Request) {
	var req completeEmailConfirmationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.ConfirmationService.ConfirmEmail(r.Context(), req.ConfirmationID, req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
