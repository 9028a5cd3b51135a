// internal/server/timeouts.go
//
// HTTP server helper with robust timeouts.
//
// Production hardening recommends:
//
//   • ReadHeaderTimeout – abort slow-loris headers (5 s)
//   • ReadTimeout       – cap body upload time (30 s, uploads up to
//                         MAX_UPLOAD_SIZE_MB)
//   • WriteTimeout      – cap total response time (30 s)
//   • IdleTimeout       – close keep-alives on idle clients (60 s)
//
// This helper centralises those defaults so cmd/api doesn’t repeat boilerplate.
//

package server

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// New constructs an *http.Server with sensible defaults.  Server-internal
// errors (TLS handshakes, panics in handlers) go to log.
func New(addr string, handler http.Handler, log *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if log != nil {
		if l, err := zap.NewStdLogAt(log.Named("http"), zap.ErrorLevel); err == nil {
			srv.ErrorLog = l
		}
	}
	return srv
}
