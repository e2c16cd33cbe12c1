package domain

import "time"

// ConfirmationAction names the workflow a confirmation code proves intent for.
type ConfirmationAction string

const (
	ConfirmationEmail         ConfirmationAction = "email"
	ConfirmationLogin         ConfirmationAction = "login"
	ConfirmationPasswordReset ConfirmationAction = "password_reset"
)

// Valid reports whether the action is one of the known workflows.
func (a ConfirmationAction) Valid() bool {
	switch a {
	case ConfirmationEmail, ConfirmationLogin, ConfirmationPasswordReset:
		return true
	}
	return false
}

// Confirmation is a single-use, time-boxed code proving possession of an
// out-of-band channel. Only the code's hash is ever persisted.
type Confirmation struct {
	ID          string
	UserID      string
	Action      ConfirmationAction
	CodeHash    string // SHA-256 fingerprint of the plaintext code
	ExpiresAt   time.Time
	ConfirmedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Consumed reports whether the code was already used. Consumption is terminal
// regardless of code correctness on later attempts.
func (c Confirmation) Consumed() bool { return c.ConfirmedAt != nil }

// Expired reports whether the code has passed its expiry at the given instant.
func (c Confirmation) Expired(now time.Time) bool { return !now.Before(c.ExpiresAt) }
