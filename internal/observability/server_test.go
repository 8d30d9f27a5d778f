package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"ai-voice-bridge-service/internal/observability/metrics"
)

func TestProbeEndpoints(t *testing.T) {
	tests := []struct {
		name   string
		ready  ReadinessCheck
		path   string
		status int
	}{
		{"healthz", nil, "/healthz", http.StatusOK},
		{"readyz without check", nil, "/readyz", http.StatusOK},
		{"readyz ready", func(context.Context) error { return nil }, "/readyz", http.StatusOK},
		{"readyz not ready", func(context.Context) error { return errors.New("db down") }, "/readyz", http.StatusServiceUnavailable},
		{"metrics", nil, "/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newMux(tt.ready).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.status {
				t.Errorf("%s = %d, want %d", tt.path, rec.Code, tt.status)
			}
		})
	}
}

func TestHTTPMiddleware(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMiddleware(metrics.DefaultMetrics))
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/7", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
}
