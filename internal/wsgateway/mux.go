package wsgateway

import (
	"log/slog"
	"net/http"

	"github.com/skybridge-io/mavfabric/internal/metrics"
	"github.com/skybridge-io/mavfabric/internal/middleware"
)

// NewMux builds the gateway's HTTP surface: the WS path, /metrics, and a
// liveness endpoint, wrapped in recovery/logging/CORS middleware (§6).
func NewMux(log *slog.Logger, g *Gateway, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", g)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	var h http.Handler = mux
	h = middleware.CORS(allowedOrigins)(h)
	h = metrics.HTTPMiddleware(h)
	h = middleware.Logging(log)(h)
	h = middleware.Recovery(log)(h)
	return h
}
