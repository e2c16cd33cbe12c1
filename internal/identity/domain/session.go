package domain

import (
	"time"

	"github.com/biter777/countries"
)

type Session struct {
	ID            string
	UserID        string
	Token         string // opaque high-entropy token, unique while active
	UserAgent     string
	CountryAlpha2 string // set asynchronously by geolocation enrichment
	Region        string
	City          string
	FinishedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Active reports whether the session can still be used. A finished session is
// terminal.
func (s Session) Active() bool { return s.FinishedAt == nil }

// Location renders the enriched geolocation as a human-readable string for
// notification emails, e.g. "United States, California, San Francisco".
// Returns "Unknown" when no country was resolved.
func (s Session) Location() string {
	if s.CountryAlpha2 == "" {
		return "Unknown"
	}

	country := countries.ByName(s.CountryAlpha2)
	if country == countries.Unknown {
		return "Unknown"
	}

	location := country.String()
	if s.Region != "" {
		location += ", " + s.Region
	}
	if s.City != "" {
		location += ", " + s.City
	}
	return location
}
