package billing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/kitabu/billing-api/internal/application/dto"
	"github.com/kitabu/billing-api/internal/domain"
	"github.com/kitabu/billing-api/internal/domain/entity"
	"github.com/kitabu/billing-api/internal/domain/repository"
	"github.com/kitabu/billing-api/pkg/logger"
)

// mpesaCurrency is the single currency the mobile-money rail supports.
const mpesaCurrency = "KES"

// PaymentUseCase is the reconciliation gateway: it initiates payments on
// both rails and applies their asynchronous confirmations to the ledger.
// It is the only path that settles an invoice.
type PaymentUseCase struct {
	invoiceUC   *InvoiceUseCase
	invoiceRepo repository.InvoiceRepository
	mpesa       MpesaGateway
	paystack    PaystackGateway
	log         *logger.Logger
}

// NewPaymentUseCase builds the use case.
func NewPaymentUseCase(invoiceUC *InvoiceUseCase, invoiceRepo repository.InvoiceRepository, mpesa MpesaGateway, paystack PaystackGateway, log *logger.Logger) *PaymentUseCase {
	return &PaymentUseCase{
		invoiceUC:   invoiceUC,
		invoiceRepo: invoiceRepo,
		mpesa:       mpesa,
		paystack:    paystack,
		log:         log,
	}
}

// payableByToken loads an invoice for a portal payment and checks it can
// still accept one.
func (uc *PaymentUseCase) payableByToken(ctx context.Context, accessToken string) (*entity.Invoice, error) {
	if accessToken == "" {
		return nil, domain.ErrUnauthorized
	}
	inv, err := uc.invoiceRepo.GetByToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrUnauthorized
	}
	if inv.Status == entity.InvoiceStatusPaid {
		return nil, domain.ErrAlreadySettled
	}
	if !inv.Status.Payable() {
		return nil, fmt.Errorf("%w: invoice %s is %s", domain.ErrInvalidState, inv.Number, inv.Status)
	}
	return inv, nil
}

// ── Rail A: M-Pesa (push and callback) ───────────────────────────────────────

// InitiateMpesa sends an STK push for the invoice total and stores the
// returned checkout request id as the invoice's pending payment reference.
// The rail supports KES only.
func (uc *PaymentUseCase) InitiateMpesa(ctx context.Context, accessToken, phone string) error {
	if phone == "" {
		return fmt.Errorf("%w: phone_number is required", domain.ErrInvalidInput)
	}
	inv, err := uc.payableByToken(ctx, accessToken)
	if err != nil {
		return err
	}
	if inv.Currency != mpesaCurrency {
		return fmt.Errorf("%w: mobile money requires %s, invoice is %s", domain.ErrUnsupportedCurrency, mpesaCurrency, inv.Currency)
	}

	checkoutID, err := uc.mpesa.InitiateSTKPush(ctx, phone, inv.Total, inv.Number, "Invoice "+inv.Number)
	if err != nil {
		return fmt.Errorf("mpesa: initiate stk push: %w", err)
	}
	if err := uc.invoiceRepo.SetPaymentRef(ctx, inv.ID, entity.PaymentMethodMpesa, checkoutID); err != nil {
		return err
	}
	uc.log.Info().
		Str("invoice_number", inv.Number).
		Str("checkout_request_id", checkoutID).
		Msg("mpesa payment initiated")
	return nil
}

// MpesaCallback is the decoded result of a Rail A confirmation.
type MpesaCallback struct {
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
}

// HandleMpesaCallback applies an asynchronous M-Pesa result. The invoice is
// matched by the stored checkout reference and nothing else. Unknown
// references and failed payments are logged and acknowledged (the caller
// always ACKs so the provider stops redelivering), but only a success code
// on a matched invoice mutates state.
func (uc *PaymentUseCase) HandleMpesaCallback(ctx context.Context, cb MpesaCallback) error {
	if cb.CheckoutRequestID == "" {
		uc.log.Warn().Msg("mpesa callback without checkout request id")
		return nil
	}
	if cb.ResultCode != 0 {
		uc.log.Info().
			Str("checkout_request_id", cb.CheckoutRequestID).
			Int("result_code", cb.ResultCode).
			Str("result_desc", cb.ResultDesc).
			Msg("mpesa payment failed, invoice untouched")
		return nil
	}

	inv, err := uc.invoiceRepo.GetByPaymentRef(ctx, cb.CheckoutRequestID)
	if err != nil {
		return err
	}
	if inv == nil {
		// Anomaly: a confirmation we cannot match. Acknowledged so the
		// provider stops redelivering, but left on record for review.
		uc.log.Error().
			Str("checkout_request_id", cb.CheckoutRequestID).
			Msg("mpesa callback references unknown invoice")
		return nil
	}
	if err := uc.invoiceUC.MarkPaid(ctx, inv.ID, entity.PaymentMethodMpesa, cb.CheckoutRequestID); err != nil {
		return err
	}
	uc.log.Info().
		Str("invoice_number", inv.Number).
		Str("checkout_request_id", cb.CheckoutRequestID).
		Msg("invoice settled via mpesa")
	return nil
}

// ── Rail B: Paystack (redirect and webhook) ──────────────────────────────────

// InitiatePaystack creates a checkout session for the invoice and returns
// the authorization URL plus the transaction reference. The reference and
// the invoice id in the metadata are what the webhook later resolves by;
// redirect query parameters are never trusted.
func (uc *PaymentUseCase) InitiatePaystack(ctx context.Context, accessToken string) (*dto.CardPayResponse, error) {
	inv, err := uc.payableByToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	reference := "PSK-" + uuid.New().String()
	email := inv.ClientEmail
	if email == "" {
		return nil, fmt.Errorf("%w: invoice has no client email for card payment", domain.ErrInvalidInput)
	}

	authURL, err := uc.paystack.InitializeTransaction(ctx, email, inv.Total, inv.Currency, reference, map[string]string{
		"invoice_id":     inv.ID,
		"invoice_number": inv.Number,
	})
	if err != nil {
		return nil, fmt.Errorf("paystack: initialize transaction: %w", err)
	}
	if err := uc.invoiceRepo.SetPaymentRef(ctx, inv.ID, entity.PaymentMethodPaystack, reference); err != nil {
		return nil, err
	}
	uc.log.Info().
		Str("invoice_number", inv.Number).
		Str("reference", reference).
		Msg("paystack payment initiated")
	return &dto.CardPayResponse{AuthorizationURL: authURL, Reference: reference}, nil
}

// paystackEvent is the subset of the webhook payload the gateway acts on.
type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Metadata  struct {
			InvoiceID string `json:"invoice_id"`
		} `json:"metadata"`
	} `json:"data"`
}

// HandlePaystackWebhook verifies and applies a Rail B event. The signature
// is checked against the raw body before anything else; on mismatch the
// request is rejected with no lookup and no hint about invoice existence.
// Duplicate success events for an already-PAID invoice are no-ops.
func (uc *PaymentUseCase) HandlePaystackWebhook(ctx context.Context, rawBody []byte, signature string) error {
	if !uc.paystack.VerifySignature(rawBody, signature) {
		uc.log.Warn().Msg("paystack webhook rejected: bad signature")
		return domain.ErrUnauthentic
	}

	var ev paystackEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return fmt.Errorf("%w: malformed webhook payload", domain.ErrInvalidInput)
	}
	if ev.Event != "charge.success" {
		uc.log.Debug().Str("event", ev.Event).Msg("paystack event ignored")
		return nil
	}

	// Resolve by the reference stored at initiation; the metadata invoice id
	// is a cross-check, not an alternative lookup key.
	inv, err := uc.invoiceRepo.GetByPaymentRef(ctx, ev.Data.Reference)
	if err != nil {
		return err
	}
	if inv == nil {
		uc.log.Error().
			Str("reference", ev.Data.Reference).
			Msg("paystack webhook references unknown invoice")
		return nil
	}
	if ev.Data.Metadata.InvoiceID != "" && ev.Data.Metadata.InvoiceID != inv.ID {
		uc.log.Error().
			Str("reference", ev.Data.Reference).
			Str("metadata_invoice_id", ev.Data.Metadata.InvoiceID).
			Msg("paystack webhook metadata does not match stored reference")
		return nil
	}

	// MarkPaid is idempotent: a redelivered success event for an already
	// settled invoice falls through as a no-op.
	if err := uc.invoiceUC.MarkPaid(ctx, inv.ID, entity.PaymentMethodPaystack, ev.Data.Reference); err != nil {
		return err
	}
	uc.log.Info().
		Str("invoice_number", inv.Number).
		Str("reference", ev.Data.Reference).
		Msg("invoice settled via paystack")
	return nil
}
