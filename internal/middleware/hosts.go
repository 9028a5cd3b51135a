package middleware

import (
	"net/http"
	"strings"
)

// TrustedHosts rejects requests whose Host is not in allowed with 400.
// Entries are exact host names, "*" (any host), or "*.example.org"
// (any sub-domain of example.org, not the apex).  Matching ignores case
// and the port.
func TrustedHosts(allowed []string) func(http.Handler) http.Handler {
	patterns := make([]string, 0, len(allowed))
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "*" {
			return func(next http.Handler) http.Handler { return next }
		}
		if a != "" {
			patterns = append(patterns, a)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HostAllowed(patterns, r.Host) {
				http.Error(w, "Invalid host header", http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HostAllowed reports whether host matches one of the lower-case patterns.
func HostAllowed(patterns []string, host string) bool {
	host = strings.ToLower(stripPort(host))
	for _, p := range patterns {
		if p == "*" || p == host {
			return true
		}
		if suffix, ok := strings.CutPrefix(p, "*"); ok && strings.HasPrefix(suffix, ".") &&
			strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
			return true
		}
	}
	return false
}
