package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nelo-ai/nelo-bot/internal/http/handlers"
	httpmiddleware "github.com/nelo-ai/nelo-bot/internal/http/middleware"
	"github.com/nelo-ai/nelo-bot/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger          *logging.Logger
	Webhook         *handlers.WebhookHandler
	Calendar        *handlers.CalendarHandler
	Admin           *handlers.AdminHandler
	AdminAuthSecret string
	MetricsHandler  http.Handler

	// Per-IP request limit for the public surface; zero disables it.
	RateLimitPerSec float64
	RateLimitBurst  int
}

// New creates the chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimitPerSec > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSec, cfg.RateLimitBurst))
	}

	r.Group(func(public chi.Router) {
		public.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		if cfg.Webhook != nil {
			public.Post("/webhooks/twilio/whatsapp", cfg.Webhook.Handle)
		}
		if cfg.Calendar != nil {
			public.Route("/api/calendar", func(r chi.Router) {
				r.Get("/connect", cfg.Calendar.Connect)
				r.Get("/callback", cfg.Calendar.Callback)
			})
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	if cfg.Admin != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/users", cfg.Admin.ListUsers)
			admin.Get("/stats", cfg.Admin.Stats)
			admin.Post("/match", cfg.Admin.TriggerMatch)
			admin.Post("/points/credit", cfg.Admin.CreditPoints)
		})
	}

	return r
}
