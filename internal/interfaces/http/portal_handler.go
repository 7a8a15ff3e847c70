package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/kitabu/billing-api/internal/application/billing"
	"github.com/kitabu/billing-api/internal/application/dto"
	"github.com/kitabu/billing-api/internal/domain"
)

// PortalHandler serves the unauthenticated client portal. The access token in
// the URL is the sole credential; no session or JWT is involved.
type PortalHandler struct {
	invoiceUC *billing.InvoiceUseCase
	paymentUC *billing.PaymentUseCase
}

// NewPortalHandler builds the handler.
func NewPortalHandler(invoiceUC *billing.InvoiceUseCase, paymentUC *billing.PaymentUseCase) *PortalHandler {
	return &PortalHandler{invoiceUC: invoiceUC, paymentUC: paymentUC}
}

// View returns the sanitized invoice for the portal page and records the view.
// GET /api/portal/invoices/:token
func (h *PortalHandler) View(c *fiber.Ctx) error {
	token := c.Params("token")
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "unknown invoice link"})
	}
	invoice, err := h.invoiceUC.ViewByToken(c.Context(), token)
	if err != nil {
		return portalError(c, err)
	}
	return c.JSON(invoice)
}

// PayMpesa starts the mobile-money checkout: the payer's phone receives an
// STK prompt. Settlement lands later on the callback endpoint.
// POST /api/portal/invoices/:token/mpesa
func (h *PortalHandler) PayMpesa(c *fiber.Ctx) error {
	token := c.Params("token")
	var in dto.MpesaPayRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "invalid request body"})
	}
	if in.PhoneNumber == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "phone_number required"})
	}
	if err := h.paymentUC.InitiateMpesa(c.Context(), token, in.PhoneNumber); err != nil {
		return portalError(c, err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// PayCard starts the redirect checkout and returns the authorization URL.
// POST /api/portal/invoices/:token/card
func (h *PortalHandler) PayCard(c *fiber.Ctx) error {
	token := c.Params("token")
	out, err := h.paymentUC.InitiatePaystack(c.Context(), token)
	if err != nil {
		return portalError(c, err)
	}
	return c.JSON(out)
}

// portalError maps the portal error cases. Unknown tokens are unauthorized,
// not not-found: the portal never confirms whether an invoice exists.
func portalError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "unknown invoice link"})
	case errors.Is(err, domain.ErrAlreadySettled):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "ALREADY_PAID", Message: "invoice is already paid"})
	case errors.Is(err, domain.ErrInvalidState):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "NOT_PAYABLE", Message: "invoice is not payable"})
	case errors.Is(err, domain.ErrUnsupportedCurrency):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "UNSUPPORTED_CURRENCY", Message: "payment method does not support this currency"})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
