package http

import (
	"net/http"

	"ai-voice-bridge-service/internal/app"
	"ai-voice-bridge-service/internal/observability"
	"ai-voice-bridge-service/internal/observability/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Group(func(r chi.Router) {
		r.Use(observability.HTTPMiddleware(metrics.DefaultMetrics))
		r.Get("/health/storage", storageHealth(application))
		r.Post("/twilio/voice", voiceWebhook(application))
	})

	// The media stream is long lived; it is observed through call metrics
	// rather than request latency.
	r.Get("/twilio/ws", newStreamHandler(application).ServeHTTP)

	return r
}
