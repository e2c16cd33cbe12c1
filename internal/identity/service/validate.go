package service

import (
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/biter777/countries"
	"github.com/google/uuid"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 16
	emailMinLen    = 5
	emailMaxLen    = 256
	passwordMinLen = 6
	passwordMaxLen = 128
	fullNameMinLen = 2
	fullNameMaxLen = 256
)

// usernameRe allows alphanumeric runs joined by single separators, with at
// most one leading or trailing separator.
var usernameRe = regexp.MustCompile(`^[-_.]?([[:alnum:]]+[-_.]?)+$`)

func validateUsername(errs ValidationErrors, username string) {
	if len(username) < usernameMinLen || len(username) > usernameMaxLen {
		errs["username"] = "must be between 3 and 16 characters"
		return
	}
	if !usernameRe.MatchString(username) {
		errs["username"] = "contains invalid characters"
		return
	}
	// A UUID-shaped username would collide with ID lookups elsewhere.
	if _, err := uuid.Parse(username); err == nil {
		errs["username"] = "contains invalid characters"
	}
}

func validateEmail(errs ValidationErrors, email string) {
	if len(email) < emailMinLen || len(email) > emailMaxLen {
		errs["email"] = "must be between 5 and 256 characters"
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		errs["email"] = "is not a valid email address"
	}
}

func validatePassword(errs ValidationErrors, password string) {
	if len(password) < passwordMinLen || len(password) > passwordMaxLen {
		errs["password"] = "must be between 6 and 128 characters"
	}
}

func validateFullName(errs ValidationErrors, fullName string) {
	trimmed := strings.TrimSpace(fullName)
	if len(trimmed) < fullNameMinLen || len(trimmed) > fullNameMaxLen {
		errs["full_name"] = "must be between 2 and 256 characters"
	}
}

// validateBirthdate parses an ISO date and rejects future dates. Returns the
// parsed value for storage.
func validateBirthdate(errs ValidationErrors, birthdate string, now time.Time) time.Time {
	parsed, err := time.Parse("2006-01-02", birthdate)
	if err != nil {
		errs["birthdate"] = "must be a valid date in YYYY-MM-DD format"
		return time.Time{}
	}
	if parsed.After(now) {
		errs["birthdate"] = "cannot be in the future"
		return time.Time{}
	}
	return parsed
}

func validateCountry(errs ValidationErrors, alpha2 string) {
	if len(alpha2) != 2 {
		errs["country"] = "must be an ISO 3166-1 alpha-2 code"
		return
	}
	if countries.ByName(alpha2) == countries.Unknown {
		errs["country"] = "must be an ISO 3166-1 alpha-2 code"
	}
}

// displayNameFrom derives the short display name shown in emails and
// responses: the first word of the full name.
func displayNameFrom(fullName string) string {
	fields := strings.Fields(strings.TrimSpace(fullName))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
