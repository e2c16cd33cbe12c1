package domain

import (
	"strings"
	"time"
)

type User struct {
	ID               string
	Username         string
	Email            string
	PasswordHash     string // argon2 encoded
	DisplayName      string
	FullName         string
	Birthdate        time.Time // date only, UTC midnight
	LanguageCode     string
	CountryAlpha2    string
	EmailConfirmedAt *time.Time
	DisabledAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Enabled reports whether the account can log in. Disabled accounts are kept
// for history, never hard-deleted.
func (u User) Enabled() bool { return u.DisabledAt == nil }

// EmailConfirmed reports whether the user proved ownership of their email.
// Only confirmed emails may be used as a login identifier.
func (u User) EmailConfirmed() bool { return u.EmailConfirmedAt != nil }

// Initials returns the upper-cased first letter of each word of the display
// name, e.g. "Alice Smith" -> "AS".
func (u User) Initials() string {
	var b strings.Builder
	for _, word := range strings.Fields(u.DisplayName) {
		r := []rune(word)
		b.WriteString(strings.ToUpper(string(r[0])))
	}
	return b.String()
}
