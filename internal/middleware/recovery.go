package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recovery creates a panic recovery middleware.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered", "err", err, "stack", string(debug.Stack()))
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte("internal server error"))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
