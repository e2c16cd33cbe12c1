package identitysdk

import "time"

// ErrorResponse is the generic error body: {"error": "..."}.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ValidationErrorResponse is returned when request validation fails. Fields
// maps each failing field to a human-readable problem.
type ValidationErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// UserResponse describes a user as the API exposes it. Password material is
// never included.
type UserResponse struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"display_name"`
	FullName       string    `json:"full_name"`
	Birthdate      string    `json:"birthdate"`
	LanguageCode   string    `json:"language_code"`
	CountryCode    string    `json:"country_code"`
	EmailConfirmed bool      `json:"email_confirmed"`
	CreatedAt      time.Time `json:"created_at"`
}

// LoginResponse carries the session bearer token and the user it belongs to.
type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// AuthorizeResponse carries the redirect URL with the grant token and expiry
// appended as query parameters.
type AuthorizeResponse struct {
	RedirectURL string `json:"redirect_url"`
}

// VerifyResponse describes a live authorization grant.
type VerifyResponse struct {
	AuthorizationID string    `json:"authorization_id"`
	ApplicationID   string    `json:"application_id"`
	UserID          string    `json:"user_id"`
	SessionID       string    `json:"session_id"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// RefreshResponse carries the rotated grant token and its new expiry.
type RefreshResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ConfirmationResponse acknowledges an issued confirmation. The code itself
// travels by email only.
type ConfirmationResponse struct {
	ConfirmationID string    `json:"confirmation_id"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// HealthResponse is returned by the liveness endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}
