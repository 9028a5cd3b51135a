package middleware

import (
	"net/http"
	"path/filepath"
	"strings"
)

// MaxBody caps request bodies at mb megabytes.  Reads past the cap fail
// with *http.MaxBytesError; a declared Content-Length above it is refused
// up front with 413.
func MaxBody(mb int) func(http.Handler) http.Handler {
	limit := int64(mb) << 20
	return func(next http.Handler) http.Handler {
		if mb <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				http.Error(w, "Request entity too large", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// AllowedFileType reports whether name carries one of the allowed
// extensions.  Comparison ignores case; entries may omit the leading dot.
func AllowedFileType(name string, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if !strings.HasPrefix(a, ".") {
			a = "." + a
		}
		if a == ext {
			return true
		}
	}
	return false
}
