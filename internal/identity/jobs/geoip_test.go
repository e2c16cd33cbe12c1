package jobs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoutable(t *testing.T) {
	t.Parallel()

	routable := []string{"203.0.113.7", "8.8.8.8", "2001:db8::1"}
	unroutable := []string{"", "127.0.0.1", "::1", "0.0.0.0", "::", "224.0.0.1", "not-an-ip", "203.0.113.7:8080"}

	for _, ip := range routable {
		require.True(t, Routable(ip), "ip %q should be routable", ip)
	}
	for _, ip := range unroutable {
		require.False(t, Routable(ip), "ip %q should not be routable", ip)
	}
}

func TestGeoIP_Lookup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("decodes the location subset", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "test-key", r.URL.Query().Get("apiKey"))
			require.Equal(t, "203.0.113.7", r.URL.Query().Get("ip"))
			io.WriteString(w, `{"location":{"country_code2":"AU","state_prov":"New South Wales","city":"Sydney"}}`)
		}))
		t.Cleanup(server.Close)

		geo := &GeoIP{APIKey: "test-key", BaseURL: server.URL}
		loc, err := geo.Lookup(ctx, "203.0.113.7")
		require.NoError(t, err)
		require.Equal(t, "AU", loc.CountryAlpha2)
		require.Equal(t, "New South Wales", loc.Region)
		require.Equal(t, "Sydney", loc.City)
	})

	t.Run("non-200 responses are errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		t.Cleanup(server.Close)

		geo := &GeoIP{APIKey: "test-key", BaseURL: server.URL}
		_, err := geo.Lookup(ctx, "203.0.113.7")
		require.Error(t, err)
	})

	t.Run("missing api key fails fast", func(t *testing.T) {
		geo := &GeoIP{}
		_, err := geo.Lookup(ctx, "203.0.113.7")
		require.Error(t, err)
	})
}
