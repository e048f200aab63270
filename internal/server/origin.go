package server

import (
	"net/http"
	"strings"
)

// newOriginChecker builds the upgrader's CheckOrigin from the configured
// allow-list. A single "*" entry allows any origin; requests without an
// Origin header (non-browser clients) are always accepted.
func newOriginChecker(allowed []string) func(r *http.Request) bool {
	allowAll := false
	normalized := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			allowAll = true
			continue
		}
		if origin != "" {
			normalized[strings.ToLower(strings.TrimSuffix(origin, "/"))] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		_, ok := normalized[strings.ToLower(strings.TrimSuffix(origin, "/"))]
		return ok
	}
}
