// internal/server/router.go
//
// Root router.
//
// Middleware order (outermost first):
//
//  1. ForceHTTPS          – production only.
//  2. RequestID, Recoverer, requestinfo.Enrich
//  3. AccessLog           – ACCESS_LOG_FORMAT.
//  4. metrics.Instrument  – when ENABLE_METRICS.
//  5. Security headers, TrustedHosts, CORS, MaxBody.
//  6. Rate limiting       – skipped for health and metrics routes.
//
// Routes
// ------
//   GET  {HEALTH_CHECK_PATH}             liveness
//   GET  {HEALTH_CHECK_PATH}/detailed    dependency checks
//   GET  {METRICS_PATH}                  Prometheus, when enabled
//   POST {API_V1_PREFIX}/auth/token      Firebase ID token → API tokens
//   POST {API_V1_PREFIX}/auth/refresh    refresh token → API tokens
//   GET  {API_V1_PREFIX}/me              bearer-protected subject echo

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mindmap-platform/mindmap-api/internal/auth"
	"github.com/mindmap-platform/mindmap-api/internal/config"
	"github.com/mindmap-platform/mindmap-api/internal/identity"
	"github.com/mindmap-platform/mindmap-api/internal/metrics"
	"github.com/mindmap-platform/mindmap-api/internal/middleware"
	"github.com/mindmap-platform/mindmap-api/internal/pseudonym"
	"github.com/mindmap-platform/mindmap-api/internal/ratelimit"
	"github.com/mindmap-platform/mindmap-api/internal/requestinfo"
)

// healthTimeout bounds each dependency check.
const healthTimeout = 2 * time.Second

// HealthCheck is one named dependency check.
type HealthCheck struct {
	Name  string
	Check func(context.Context) error
}

// TokenVerifier checks identity-provider ID tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*identity.Token, error)
}

// Deps is everything the router wires together.  Verifier and Limiter may
// be nil.
type Deps struct {
	Settings   *config.Settings
	Log        *zap.Logger
	Checks     []HealthCheck
	Limiter    ratelimit.Limiter
	Verifier   TokenVerifier
	Issuer     *auth.Issuer
	Pseudonyms *pseudonym.Hasher
}

// NewRouter builds the API handler.
func NewRouter(d Deps) (http.Handler, error) {
	s := d.Settings
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if err := checkPaths(s); err != nil {
		return nil, err
	}
	accessLog, err := middleware.AccessLog(s.AccessLogFormat, d.Log)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	if s.IsProduction() {
		r.Use(middleware.ForceHTTPS)
	}
	r.Use(middleware.RequestID, chimw.Recoverer, requestinfo.Enrich, accessLog)
	if s.MetricsEnabled {
		r.Use(metrics.Instrument)
	}
	r.Use(
		middleware.Security(s.Version),
		middleware.TrustedHosts(s.AllowedHosts),
		middleware.CORS(s.AllowedOrigins),
		middleware.MaxBody(s.MaxSizeMB),
	)

	h := &handlers{Deps: d}
	r.Get(s.HealthCheckPath, h.health)
	r.Get(s.HealthCheckPath+"/detailed", h.healthDetailed)
	if s.MetricsEnabled {
		r.Method(http.MethodGet, s.MetricsPath, promhttp.Handler())
	}

	r.Route(s.V1Prefix, func(api chi.Router) {
		if d.Limiter != nil {
			api.Use(ratelimit.Middleware(d.Limiter, d.Log.Sugar()))
		}
		api.Post("/auth/token", h.exchange)
		api.Post("/auth/refresh", h.refresh)
		api.With(auth.RequireBearer(d.Issuer)).Get("/me", h.me)
	})
	return r, nil
}

// checkPaths rejects mount points chi would panic on.
func checkPaths(s *config.Settings) error {
	paths := []struct{ key, val string }{
		{"API_V1_STR", s.V1Prefix},
		{"HEALTH_CHECK_PATH", s.HealthCheckPath},
	}
	if s.MetricsEnabled {
		paths = append(paths, struct{ key, val string }{"METRICS_PATH", s.MetricsPath})
	}
	for _, p := range paths {
		if !strings.HasPrefix(p.val, "/") {
			return fmt.Errorf("server: %s must start with \"/\", got %q", p.key, p.val)
		}
	}
	return nil
}

type handlers struct {
	Deps
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func detail(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"detail": msg})
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"service":     h.Settings.App.Name,
		"version":     h.Settings.Version,
		"environment": h.Settings.Environment,
	})
}

// healthDetailed answers 200 even when degraded; load balancers use the
// plain endpoint.
func (h *handlers) healthDetailed(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	components := map[string]any{
		"environment": h.Settings.Environment,
		"debug_mode":  h.Settings.Debug,
	}
	for _, c := range h.Checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			h.Log.Error("health check failed", zap.String("component", c.Name), zap.Error(err))
			components[c.Name] = "unhealthy"
			status = "degraded"
			continue
		}
		components[c.Name] = "healthy"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"service":    h.Settings.App.Name,
		"version":    h.Settings.Version,
		"components": components,
	})
}

func (h *handlers) exchange(w http.ResponseWriter, r *http.Request) {
	if h.Verifier == nil {
		detail(w, http.StatusServiceUnavailable, "identity provider not configured")
		return
	}
	var body struct {
		IDToken string `json:"id_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IDToken == "" {
		detail(w, http.StatusUnprocessableEntity, "id_token is required")
		return
	}
	tok, err := h.Verifier.Verify(r.Context(), body.IDToken)
	if err != nil {
		h.Log.Info("id token rejected", zap.Error(err))
		detail(w, http.StatusUnauthorized, "invalid id token")
		return
	}
	h.issue(w, h.Pseudonyms.Participant(tok.UID))
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		detail(w, http.StatusUnprocessableEntity, "refresh_token is required")
		return
	}
	c, err := h.Issuer.Parse(body.RefreshToken, auth.Refresh)
	if err != nil {
		detail(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	h.issue(w, c.Subject)
}

func (h *handlers) issue(w http.ResponseWriter, subject string) {
	p, err := h.Issuer.IssuePair(subject)
	if err != nil {
		h.Log.Error("issue tokens", zap.Error(err))
		detail(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	sub, _ := auth.Subject(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"subject": sub})
}
