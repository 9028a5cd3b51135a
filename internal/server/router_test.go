package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mindmap-platform/mindmap-api/internal/auth"
	"github.com/mindmap-platform/mindmap-api/internal/config"
	"github.com/mindmap-platform/mindmap-api/internal/identity"
	"github.com/mindmap-platform/mindmap-api/internal/pseudonym"
	"github.com/mindmap-platform/mindmap-api/internal/ratelimit"
)

type fakeVerifier map[string]string

func (f fakeVerifier) Verify(_ context.Context, raw string) (*identity.Token, error) {
	uid, ok := f[raw]
	if !ok {
		return nil, errors.New("bad token")
	}
	return &identity.Token{UID: uid}, nil
}

func newTestRouter(t *testing.T, mod func(*config.Settings, *Deps)) (http.Handler, *Deps) {
	t.Helper()
	s := config.Defaults()
	s.AllowedHosts = []string{"localhost", "example.com"}
	hasher, err := pseudonym.FromSettings(&s)
	require.NoError(t, err)
	d := &Deps{
		Settings:   &s,
		Log:        zap.NewNop(),
		Verifier:   fakeVerifier{"good": "firebase-uid-1"},
		Pseudonyms: hasher,
	}
	if mod != nil {
		mod(&s, d)
	}
	d.Issuer = auth.NewIssuer(&s)
	h, err := NewRouter(*d)
	require.NoError(t, err)
	return h, d
}

func do(h http.Handler, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		if hdr[i] == "Host" {
			req.Host = hdr[i+1]
			continue
		}
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	rec := do(h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "healthy", got["status"])
	require.Equal(t, "MindMap Research API", got["service"])
	require.Equal(t, "2.0.0", got["version"])
	require.Equal(t, "development", got["environment"])
	require.Equal(t, "MindMap-API-v2.0.0", rec.Header().Get("X-Research-Platform"))
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestHealthDetailedDegraded(t *testing.T) {
	h, _ := newTestRouter(t, func(_ *config.Settings, d *Deps) {
		d.Checks = []HealthCheck{
			{Name: "database", Check: func(context.Context) error { return nil }},
			{Name: "cache", Check: func(context.Context) error { return errors.New("down") }},
		}
	})
	rec := do(h, http.MethodGet, "/health/detailed", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "degraded", got.Status)
	require.Equal(t, "healthy", got.Components["database"])
	require.Equal(t, "unhealthy", got.Components["cache"])
}

func TestCustomPaths(t *testing.T) {
	h, _ := newTestRouter(t, func(s *config.Settings, _ *Deps) {
		s.HealthCheckPath = "/healthz"
		s.MetricsPath = "/internal/metrics"
	})
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/health", "").Code)

	rec := do(h, http.MethodGet, "/internal/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "mindmap_http_requests_total")
}

func TestMetricsDisabled(t *testing.T) {
	h, _ := newTestRouter(t, func(s *config.Settings, _ *Deps) { s.MetricsEnabled = false })
	require.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/metrics", "").Code)
}

func TestUntrustedHost(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	rec := do(h, http.MethodGet, "/health", "", "Host", "evil.example")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTokenFlow(t *testing.T) {
	h, d := newTestRouter(t, nil)

	rec := do(h, http.MethodPost, "/api/v1/auth/token", `{"id_token":"good"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pair auth.Pair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))

	rec = do(h, http.MethodGet, "/api/v1/me", "", "Authorization", "Bearer "+pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var me map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.Equal(t, d.Pseudonyms.Participant("firebase-uid-1"), me["subject"])
	require.NotContains(t, rec.Body.String(), "firebase-uid-1")

	rec = do(h, http.MethodPost, "/api/v1/auth/refresh", `{"refresh_token":"`+pair.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodPost, "/api/v1/auth/refresh", `{"refresh_token":"`+pair.AccessToken+`"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, http.MethodPost, "/api/v1/auth/token", `{"id_token":"forged"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, http.MethodPost, "/api/v1/auth/token", `{}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestTokenExchangeWithoutIdentityProvider(t *testing.T) {
	h, _ := newTestRouter(t, func(_ *config.Settings, d *Deps) { d.Verifier = nil })
	rec := do(h, http.MethodPost, "/api/v1/auth/token", `{"id_token":"good"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimitedAPI(t *testing.T) {
	h, _ := newTestRouter(t, func(_ *config.Settings, d *Deps) {
		m, err := ratelimit.NewMemory(ratelimit.Limits{PerMinute: 60, Burst: 1}, 0)
		require.NoError(t, err)
		d.Limiter = m
	})
	require.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/v1/me", "").Code)
	require.Equal(t, http.StatusTooManyRequests, do(h, http.MethodGet, "/api/v1/me", "").Code)

	// Health and metrics routes are not limited.
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/health", "").Code)
	}
}

func TestProductionRedirectsPlainHTTP(t *testing.T) {
	h, _ := newTestRouter(t, func(s *config.Settings, _ *Deps) { s.Environment = config.Production })
	rec := do(h, http.MethodGet, "http://example.com/health", "")
	require.Equal(t, http.StatusPermanentRedirect, rec.Code)
}

func TestUnknownAccessLogFormat(t *testing.T) {
	s := config.Defaults()
	s.AccessLogFormat = "apache"
	_, err := NewRouter(Deps{Settings: &s})
	require.ErrorContains(t, err, "ACCESS_LOG_FORMAT")
}

func TestNewRouterRejectsRelativePaths(t *testing.T) {
	tests := []struct {
		name string
		key  string
		mod  func(*config.Settings)
	}{
		{"empty api prefix", "API_V1_STR", func(s *config.Settings) { s.V1Prefix = "" }},
		{"relative api prefix", "API_V1_STR", func(s *config.Settings) { s.V1Prefix = "api/v1" }},
		{"relative health path", "HEALTH_CHECK_PATH", func(s *config.Settings) { s.HealthCheckPath = "health" }},
		{"relative metrics path", "METRICS_PATH", func(s *config.Settings) { s.MetricsPath = "metrics" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := config.Defaults()
			tt.mod(&s)
			var (
				h   http.Handler
				err error
			)
			require.NotPanics(t, func() { h, err = NewRouter(Deps{Settings: &s}) })
			require.Nil(t, h)
			require.ErrorContains(t, err, tt.key)
		})
	}
}

func TestRelativeMetricsPathIgnoredWhenDisabled(t *testing.T) {
	s := config.Defaults()
	s.MetricsEnabled = false
	s.MetricsPath = "metrics"
	_, err := NewRouter(Deps{Settings: &s})
	require.NoError(t, err)
}

func TestNewServerTimeouts(t *testing.T) {
	srv := New(":8000", http.NotFoundHandler(), zap.NewNop())
	require.Equal(t, ":8000", srv.Addr)
	require.NotZero(t, srv.ReadHeaderTimeout)
	require.NotNil(t, srv.ErrorLog)
}
