package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/service"
	"github.com/mango3/identity/internal/identity/store"
	"github.com/mango3/identity/pkg/httpx"
	"github.com/mango3/identity/pkg/identitysdk"
	"github.com/mango3/identity/pkg/slogx"
)

// decodeJSON parses a request body into dst, rejecting unknown shapes early.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request_body")
		return false
	}
	return true
}

// writeServiceError maps service-layer failures onto the API's error
// vocabulary. Anything unrecognized is a 500 and gets logged; expected
// failures never are.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if verrs, ok := service.AsValidationErrors(err); ok {
		httpx.WriteValidationErrors(w, verrs)
		return
	}

	switch {
	case errors.Is(err, service.ErrAuthenticationFailed):
		httpx.WriteError(w, http.StatusUnauthorized, "authentication_failed")
	case errors.Is(err, service.ErrRegistrationClosed):
		httpx.WriteError(w, http.StatusForbidden, "registration_closed")
	case errors.Is(err, service.ErrConfirmationInvalid):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "invalid_confirmation")
	case errors.Is(err, service.ErrInvalidApplication):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_application")
	case errors.Is(err, store.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found")
	default:
		slogx.FromContext(r.Context()).Error("request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error")
	}
}

func userResponse(u domain.User) identitysdk.UserResponse {
	return identitysdk.UserResponse{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		DisplayName:    u.DisplayName,
		FullName:       u.FullName,
		Birthdate:      u.Birthdate.Format("2006-01-02"),
		LanguageCode:   u.LanguageCode,
		CountryCode:    u.CountryAlpha2,
		EmailConfirmed: u.EmailConfirmed(),
		CreatedAt:      u.CreatedAt,
	}
}
