package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/CaioWing/iotgateway/internal/api/docs"
	"github.com/CaioWing/iotgateway/internal/api/management"
	"github.com/CaioWing/iotgateway/internal/api/middleware"
	"github.com/CaioWing/iotgateway/internal/api/response"
	"github.com/CaioWing/iotgateway/internal/api/webhook"
	"github.com/CaioWing/iotgateway/internal/auth"
	"github.com/CaioWing/iotgateway/internal/service"
)

type RouterDeps struct {
	IoTDispatcher  webhook.DeviceEventDispatcher
	CallDispatcher webhook.IncomingCallDispatcher
	DeviceSvc      *service.DeviceService
	RuleSvc        *service.RuleService
	EventLogSvc    *service.EventLogService
	JWTManager     *auth.JWTManager
	Admin          *auth.Admin
	Metrics        *middleware.Metrics
	WebhookAPIKey  string
	CORSOrigins    string
	Logger         *slog.Logger
}

// NewRouter builds the HTTP surface. ctx bounds background work owned by the
// router, such as rate limiter sweeps.
func NewRouter(ctx context.Context, deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	metrics := deps.Metrics
	if metrics == nil {
		metrics = middleware.NewMetrics()
	}

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(metrics.Middleware())

	origins := strings.Split(deps.CORSOrigins, ",")
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.APIKeyHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs/", http.StatusFound)
	})
	r.Handle("/docs/*", http.StripPrefix("/docs/", docs.Handler()))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/metrics", metrics.Handler())

	// Dispatch entry points: 20 req/s with burst of 40 per client
	hooks := webhook.NewHandler(deps.IoTDispatcher, deps.CallDispatcher, deps.Logger)
	dispatchLimit := middleware.NewRateLimiter(ctx, 20, 40)

	r.Group(func(r chi.Router) {
		r.Use(dispatchLimit.Middleware)

		r.With(middleware.WebhookAuth(deps.WebhookAPIKey)).Post("/webhook", hooks.DeviceEvent)
		r.Post("/simulate/incoming-call", hooks.IncomingCall)
		r.Post("/test/notify", hooks.TestNotify)
	})

	// Management API
	mgmtAuthHandler := management.NewAuthHandler(deps.JWTManager, deps.Admin)
	mgmtDeviceHandler := management.NewDeviceHandler(deps.DeviceSvc)
	mgmtRuleHandler := management.NewRuleHandler(deps.RuleSvc)
	mgmtLogHandler := management.NewEventLogHandler(deps.EventLogSvc)
	mgmtLimit := middleware.NewRateLimiter(ctx, 30, 60)

	r.Route("/api/v1/management", func(r chi.Router) {
		r.Use(mgmtLimit.Middleware)

		r.Post("/auth/login", mgmtAuthHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.ManagementAuth(deps.JWTManager))

			r.Post("/auth/refresh", mgmtAuthHandler.Refresh)

			// Devices
			r.Get("/devices", mgmtDeviceHandler.List)
			r.Post("/devices", mgmtDeviceHandler.Create)
			r.Get("/devices/{deviceID}", mgmtDeviceHandler.Get)
			r.Put("/devices/{deviceID}", mgmtDeviceHandler.Update)
			r.Delete("/devices/{deviceID}", mgmtDeviceHandler.Delete)

			// Rules
			r.Get("/rules", mgmtRuleHandler.List)
			r.Post("/rules", mgmtRuleHandler.Create)
			r.Get("/rules/{id}", mgmtRuleHandler.Get)
			r.Put("/rules/{id}", mgmtRuleHandler.Update)
			r.Delete("/rules/{id}", mgmtRuleHandler.Delete)

			// Event logs
			r.Get("/logs", mgmtLogHandler.List)
		})
	})

	return r
}
