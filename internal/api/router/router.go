package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/chat-relay/internal/http/middleware"
	"github.com/wolfman30/chat-relay/internal/messaging"
	"github.com/wolfman30/chat-relay/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger           *logging.Logger
	MessagingHandler *messaging.Handler
	MetricsHandler   http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	} else {
		r.Use(middleware.Logger)
	}

	r.Get("/health", cfg.MessagingHandler.HealthCheck)
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/messages", cfg.MessagingHandler.InboundWebhook)
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
