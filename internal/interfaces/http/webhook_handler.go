package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/kitabu/billing-api/internal/application/billing"
	"github.com/kitabu/billing-api/internal/application/dto"
	"github.com/kitabu/billing-api/internal/domain"
	"github.com/kitabu/billing-api/pkg/logger"
)

// WebhookHandler receives the asynchronous settlement notifications from the
// payment rails. These endpoints are unauthenticated at the transport level;
// each rail carries its own authenticity mechanism.
type WebhookHandler struct {
	paymentUC *billing.PaymentUseCase
	log       *logger.Logger
}

// NewWebhookHandler builds the handler.
func NewWebhookHandler(paymentUC *billing.PaymentUseCase, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{paymentUC: paymentUC, log: log}
}

// mpesaEnvelope is the Daraja STK callback wrapper.
type mpesaEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// mpesaAck is the acknowledgement Daraja expects on delivery.
type mpesaAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// Mpesa processes a Daraja STK callback. The endpoint always acknowledges:
// a non-ack makes Daraja retry, and anomalies are logged for reconciliation
// rather than bounced back to the rail.
// POST /api/webhooks/mpesa
func (h *WebhookHandler) Mpesa(c *fiber.Ctx) error {
	var env mpesaEnvelope
	if err := c.BodyParser(&env); err != nil {
		h.log.Warn().Msg("mpesa callback with unparseable body")
		return c.JSON(mpesaAck{ResultCode: 0, ResultDesc: "Accepted"})
	}

	cb := billing.MpesaCallback{
		CheckoutRequestID: env.Body.StkCallback.CheckoutRequestID,
		ResultCode:        env.Body.StkCallback.ResultCode,
		ResultDesc:        env.Body.StkCallback.ResultDesc,
	}
	if err := h.paymentUC.HandleMpesaCallback(c.Context(), cb); err != nil {
		// Internal failure: let Daraja redeliver.
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(mpesaAck{ResultCode: 0, ResultDesc: "Accepted"})
}

// Paystack processes a Paystack event. The HMAC signature over the raw body
// is verified before anything else; an unauthentic request changes no state.
// POST /api/webhooks/paystack
func (h *WebhookHandler) Paystack(c *fiber.Ctx) error {
	signature := c.Get("x-paystack-signature")
	raw := c.Body()

	if err := h.paymentUC.HandlePaystackWebhook(c.Context(), raw, signature); err != nil {
		if errors.Is(err, domain.ErrUnauthentic) {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_SIGNATURE", Message: "signature verification failed"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.SendStatus(fiber.StatusOK)
}
