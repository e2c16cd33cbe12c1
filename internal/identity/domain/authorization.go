package domain

import "time"

// Authorization is a delegated grant binding an application to a user via the
// session the user authorized it from. At most one authorization exists per
// (application, user, session) triple; re-authorizing refreshes the row.
type Authorization struct {
	ID            string
	ApplicationID string
	UserID        string
	SessionID     string
	Token         string // opaque bearer token, unique
	// PreviousToken holds the token replaced by the most recent refresh, kept
	// for a grace window so in-flight requests don't observe a hard cutover.
	PreviousToken string
	ExpiresAt     time.Time
	RefreshedAt   *time.Time
	RevokedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Revoked reports whether the grant was terminally revoked.
func (a Authorization) Revoked() bool { return a.RevokedAt != nil }

// Expired reports whether the grant has passed its expiry at the given
// instant. Expiry is checked at verification time; there is no sweep.
func (a Authorization) Expired(now time.Time) bool { return !now.Before(a.ExpiresAt) }

// Usable reports whether the grant resolves for bearer-token lookups.
func (a Authorization) Usable(now time.Time) bool {
	return !a.Revoked() && !a.Expired(now)
}
