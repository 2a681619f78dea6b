package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the Prometheus exposition endpoint for the default
// registry. Mounted at GET /metrics by the API server.
func Handler() http.Handler {
	return promhttp.Handler()
}
