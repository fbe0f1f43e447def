package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/good-yellow-bee/blazewatch/internal/metrics"
)

func TestPrometheusMiddleware(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMiddleware)
	r.Get("/api/v1/monitors/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	tests := []struct {
		name    string
		path    string
		pattern string
		status  string
	}{
		{name: "id collapsed to pattern", path: "/api/v1/monitors/abc", pattern: "/api/v1/monitors/{id}", status: "404"},
		{name: "implicit 200", path: "/ok", pattern: "/ok", status: "200"},
		{name: "unmatched", path: "/nope", pattern: "unmatched", status: "404"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, tt.pattern, tt.status)
			before := testutil.ToFloat64(counter)

			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			if got := testutil.ToFloat64(counter) - before; got != 1 {
				t.Errorf("requests_total delta = %v, want 1", got)
			}
		})
	}

	if got := testutil.ToFloat64(metrics.HTTPRequestsInFlight); got != 0 {
		t.Errorf("requests_in_flight = %v, want 0", got)
	}
}
