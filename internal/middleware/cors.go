package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// CORS creates a CORS middleware for the Gateway's plain HTTP surface
// (/metrics, /healthz). An empty allowedOrigins list allows any origin,
// the same permissive local-dev default the WebSocket upgrade path uses
// for its own Origin check (internal/wsgateway's originChecker) — kept
// consistent here rather than the stricter wildcard-or-nothing scheme
// so the two checks on the same mux don't silently disagree.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := func(origin string) bool {
		if len(allowedOrigins) == 0 {
			return true
		}
		if origin == "" {
			return false
		}
		originURL, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, a := range allowedOrigins {
			if strings.EqualFold(origin, a) || strings.EqualFold(originURL.Host, a) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && allowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "3600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
