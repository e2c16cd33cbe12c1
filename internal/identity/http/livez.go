package http

import (
	"net/http"
	"time"

	"github.com/mango3/identity/pkg/httpx"
	"github.com/mango3/identity/pkg/identitysdk"
)

// LivezHandler is the liveness probe; it returns 200 whenever the process is
// serving.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, identitysdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}
