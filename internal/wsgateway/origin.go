package wsgateway

import (
	"net/http"
	"net/url"
	"strings"
)

// originChecker validates the Origin header against an allow-list; an
// empty list allows any origin, matching the teacher pack's permissive
// local-dev default (§4.5 supplement).
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return false
		}
		originURL, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, a := range allowed {
			if strings.EqualFold(origin, a) || strings.EqualFold(originURL.Host, a) {
				return true
			}
		}
		return false
	}
}
