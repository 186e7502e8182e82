package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/moncash-relay/internal/payment"
	"github.com/frahmantamala/moncash-relay/internal/transport/middleware"
	"github.com/frahmantamala/moncash-relay/internal/transport/swagger"
)

type Handlers struct {
	Webhook *payment.WebhookHandler
	Verify  *payment.VerifyHandler
	Page    *payment.PageHandler
	Health  *HealthHandler
	// OpenAPI is the raw API document served at /openapi.yml.
	OpenAPI []byte
}

type RouterConfig struct {
	AllowedOrigins string
	LogRequests    bool
}

func RegisterAllRoutes(router *chi.Mux, handlers Handlers, cfg RouterConfig, logger *slog.Logger) {
	// Apply global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	if cfg.LogRequests {
		router.Use(middleware.LoggingMiddleware(logger))
	}

	if handlers.Page != nil {
		router.Get("/", handlers.Page.HandleLanding)
	}

	if len(handlers.OpenAPI) > 0 {
		router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write(handlers.OpenAPI)
		})
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api", func(r chi.Router) {
		if handlers.Health != nil {
			r.Get("/health", handlers.Health.healthCheckHandler)
			r.Get("/ping", handlers.Health.pingHandler)
		}

		// MonCash posts here; other methods get 405 from the handler itself.
		if handlers.Webhook != nil {
			r.HandleFunc("/moncash-webhook", handlers.Webhook.HandleMonCashWebhook)
		}

		if handlers.Verify != nil {
			r.Group(func(vr chi.Router) {
				vr.Use(middleware.CORS(cfg.AllowedOrigins))
				vr.Get("/verify", handlers.Verify.HandleVerify)
				vr.Options("/verify", func(w http.ResponseWriter, r *http.Request) {})
			})
		}
	})
}
