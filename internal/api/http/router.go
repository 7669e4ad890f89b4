package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/property-backoffice/internal/api/http/handlers"
	"github.com/spec-kit/property-backoffice/internal/auth"
	"github.com/spec-kit/property-backoffice/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health          *handlers.HealthHandler
	Auth            *handlers.AuthHandler
	ServiceRequests *handlers.ServiceRequestsHandler
	Webhooks        *handlers.WebhooksHandler
	Payments        *handlers.PaymentsHandler
	CreditCards     *handlers.CreditCardsHandler
	Catalog         *handlers.CatalogHandler
	AuthMiddleware  *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health", cfg.Health.Live)
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/stats", cfg.Health.Stats)

	api := app.Group("/api/v1")
	api.Post("/auth/register", cfg.Auth.Register)
	api.Post("/auth/login", cfg.Auth.Login)

	protected := api.Group("", cfg.AuthMiddleware.Handle)

	resident := protected.Group("", auth.RequireRole(domain.RoleResident, domain.RoleBackoffice))
	resident.Get("/services", cfg.Catalog.ListServices)
	resident.Get("/properties", cfg.Catalog.ListProperties)

	resident.Post("/service-requests", cfg.ServiceRequests.Create)
	resident.Get("/service-requests", cfg.ServiceRequests.List)
	resident.Get("/service-requests/:id", cfg.ServiceRequests.Get)
	resident.Get("/service-requests/:id/history", cfg.ServiceRequests.History)
	resident.Post("/service-requests/:id/approve-quotation", cfg.ServiceRequests.ApproveQuotation)
	resident.Post("/service-requests/:id/reject-quotation", cfg.ServiceRequests.RejectQuotation)
	resident.Post("/service-requests/:id/approve-work", cfg.ServiceRequests.ApproveWork)
	resident.Post("/service-requests/:id/reject-work", cfg.ServiceRequests.RejectWork)

	resident.Post("/payment-attempts", cfg.Payments.Create)
	resident.Get("/payment-attempts", cfg.Payments.List)
	resident.Get("/payment-attempts/:id", cfg.Payments.Get)
	resident.Post("/payment-attempts/:id/charge", cfg.Payments.Charge)

	resident.Get("/credit-cards", cfg.CreditCards.List)
	resident.Delete("/credit-cards/:id", cfg.CreditCards.Delete)

	webhooks := protected.Group("/webhooks", auth.RequireRole(domain.RoleApplication))
	webhooks.Post("/service-requests", cfg.Webhooks.CreateServiceRequest)
	webhooks.Post("/avisos", cfg.Webhooks.CreateAviso)
	webhooks.Put("/avisos/:aviso_id", cfg.Webhooks.AvisoStateChanged)
}
