package http

import (
	"net/http"

	"github.com/mango3/identity/internal/identity/service"
	"github.com/mango3/identity/pkg/httpx"
)

type RegisterHandler struct {
	UserService *service.UserService
}

type registerRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	FullName     string `json:"full_name"`
	Birthdate    string `json:"birthdate"`
	CountryCode  string `json:"country_code"`
	LanguageCode string `json:"language_code"`
}

func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.UserService.Register(r.Context(), service.RegisterInput{
		Username:     req.Username,
		Email:        req.Email,
		Password:     req.Password,
		FullName:     req.FullName,
		Birthdate:    req.Birthdate,
		LanguageCode: req.LanguageCode,
		CountryCode:  req.CountryCode,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, userResponse(user))
}
