package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kitabu/billing-api/internal/application/billing"
	"github.com/kitabu/billing-api/pkg/logger"
)

// RouterDeps carries the router's dependencies.
type RouterDeps struct {
	InvoiceUC   *billing.InvoiceUseCase
	RecurringUC *billing.RecurringUseCase
	PaymentUC   *billing.PaymentUseCase
	RenderUC    *billing.RenderUseCase
	JWTSecret   string
	Log         *logger.Logger
}

// Router registers the API routes.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Public portal (token in URL is the credential)
	portal := api.Group("/portal")
	portalHandler := NewPortalHandler(deps.InvoiceUC, deps.PaymentUC)
	portal.Get("/invoices/:token", portalHandler.View)
	portal.Post("/invoices/:token/mpesa", portalHandler.PayMpesa)
	portal.Post("/invoices/:token/card", portalHandler.PayCard)

	// Payment rail callbacks (authenticity handled per rail)
	webhooks := api.Group("/webhooks")
	webhookHandler := NewWebhookHandler(deps.PaymentUC, deps.Log)
	webhooks.Post("/mpesa", webhookHandler.Mpesa)
	webhooks.Post("/paystack", webhookHandler.Paystack)

	// Protected routes (Bearer token required)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	invoices := protected.Group("/invoices")
	invoiceHandler := NewInvoiceHandler(deps.InvoiceUC, deps.RenderUC)
	invoices.Post("/", invoiceHandler.Create)
	invoices.Get("/", invoiceHandler.List)
	invoices.Get("/:id", invoiceHandler.GetByID)
	invoices.Post("/:id/cancel", invoiceHandler.Cancel)
	invoices.Get("/:id/pdf", invoiceHandler.RenderPDF)

	templates := protected.Group("/recurring-templates")
	recurringHandler := NewRecurringHandler(deps.RecurringUC)
	templates.Post("/", recurringHandler.Create)
	templates.Get("/", recurringHandler.List)
	templates.Post("/:id/generate", recurringHandler.Generate)
	templates.Post("/:id/deactivate", recurringHandler.Deactivate)
}
