package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mindmap-platform/mindmap-api/internal/config"
)

func TestSetAppInfo(t *testing.T) {
	s := config.Defaults()
	SetAppInfo(&s)
	if got := testutil.ToFloat64(AppInfo.WithLabelValues("2.0.0", "development")); got != 1 {
		t.Fatalf("app_info = %v, want 1", got)
	}

	s.Environment = config.Production
	SetAppInfo(&s)
	if n := testutil.CollectAndCount(AppInfo); n != 1 {
		t.Fatalf("app_info series = %d, want 1 after reset", n)
	}
}

func TestInstrumentLabelsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/participants/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/participants/{id}", "418"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/participants/42", nil))
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/participants/{id}", "418"))
	if after-before != 1 {
		t.Fatalf("counter delta = %v, want 1", after-before)
	}
}
