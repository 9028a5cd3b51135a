package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows credentialed cross-origin calls from origins.  Any header may
// be sent; the request id and remaining rate-limit budget are exposed to
// browser code.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodDelete, http.MethodPatch,
		},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           600,
	})
}
