package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"time"
)

// GeoIP resolves client addresses to a coarse location via the
// ipgeolocation.io API. Lookups are best-effort; callers treat failures as
// "location unknown".
type GeoIP struct {
	APIKey  string
	Client  *http.Client
	BaseURL string // overridden in tests
}

// Location is the subset of the geolocation response the sessions care about.
type Location struct {
	CountryAlpha2 string
	Region        string
	City          string
}

type geoipResponse struct {
	Location struct {
		CountryCode2 string `json:"country_code2"`
		StateProv    string `json:"state_prov"`
		City         string `json:"city"`
	} `json:"location"`
}

// Routable reports whether the address is worth geolocating. Loopback,
// multicast and unspecified addresses never resolve to anything useful.
func Routable(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return !addr.IsLoopback() && !addr.IsMulticast() && !addr.IsUnspecified()
}

func (g *GeoIP) Lookup(ctx context.Context, ip string) (Location, error) {
	if g.APIKey == "" {
		return Location{}, fmt.Errorf("geolocation api key not configured")
	}

	base := g.BaseURL
	if base == "" {
		base = "https://api.ipgeolocation.io/v2/ipgeo"
	}

	endpoint := fmt.Sprintf("%s?apiKey=%s&ip=%s",
		base, url.QueryEscape(g.APIKey), url.QueryEscape(ip))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Location{}, err
	}

	client := g.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geolocation lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geolocation lookup returned %d", resp.StatusCode)
	}

	var decoded geoipResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Location{}, fmt.Errorf("decode geolocation response: %w", err)
	}

	return Location{
		CountryAlpha2: decoded.Location.CountryCode2,
		Region:        decoded.Location.StateProv,
		City:          decoded.Location.City,
	}, nil
}
