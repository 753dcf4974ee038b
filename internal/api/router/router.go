package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/http/handlers"
	httpmiddleware "github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/http/middleware"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	WhatsAppWebhook  *handlers.WhatsAppWebhookHandler
	FlowsHandler     *handlers.FlowsHandler
	FlowTokenHandler *handlers.FlowTokenHandler
	AdminHandler     *handlers.AdminHandler
	HealthHandler    *handlers.HealthHandler
	MetricsHandler   http.Handler

	AdminAuthSecret string
	InternalToken   string
	Hardened        bool

	CORSAllowedOrigins []string

	// WebhookRatePerSecond throttles the public webhook endpoints per
	// client IP. Zero disables the limiter.
	WebhookRatePerSecond float64
	WebhookBurst         int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		if cfg.HealthHandler != nil {
			public.Get("/health", cfg.HealthHandler.HandleLive)
			public.Get("/ready", cfg.HealthHandler.HandleReady)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.WhatsAppWebhook != nil {
			public.Route("/webhooks/whatsapp", func(wh chi.Router) {
				if cfg.WebhookRatePerSecond > 0 {
					wh.Use(httpmiddleware.RateLimit(cfg.WebhookRatePerSecond, cfg.WebhookBurst))
				}
				wh.Get("/", cfg.WhatsAppWebhook.HandleVerify)
				wh.Post("/", cfg.WhatsAppWebhook.HandleEvents)
			})
		}
		if cfg.FlowsHandler != nil {
			public.Post("/flows/exchange", cfg.FlowsHandler.HandleExchange)
		}
	})

	// Operator routes (protected by JWT)
	if cfg.AdminHandler != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Post("/takeover", cfg.AdminHandler.HandleTakeover)
			admin.Get("/transcript", cfg.AdminHandler.HandleTranscript)
			admin.Get("/holds", cfg.AdminHandler.HandleListHolds)
		})

		// Service-to-service routes (shared token)
		r.Route("/internal", func(internal chi.Router) {
			internal.Use(httpmiddleware.InternalToken(cfg.InternalToken, cfg.Hardened, cfg.Logger))
			internal.Post("/holds/sweep", cfg.AdminHandler.HandleSweep)
			if cfg.FlowTokenHandler != nil {
				internal.Post("/flows/token", cfg.FlowTokenHandler.HandleMint)
			}
		})
	}

	return r
}
