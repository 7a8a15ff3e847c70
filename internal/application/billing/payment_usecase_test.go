package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitabu/billing-api/internal/application/dto"
	"github.com/kitabu/billing-api/internal/domain"
	"github.com/kitabu/billing-api/internal/domain/entity"
)

type paymentFixture struct {
	uc        *PaymentUseCase
	invoiceUC *InvoiceUseCase
	invoices  *memInvoiceRepo
	reminders *memReminderRepo
	mpesa     *fakeMpesa
	paystack  *fakePaystack
}

func newPaymentFixture() *paymentFixture {
	invoices := newMemInvoiceRepo()
	templates := newMemTemplateRepo()
	reminders := newMemReminderRepo()
	tx := &memTxRunner{invoices: invoices, templates: templates, reminders: reminders}
	invoiceUC := NewInvoiceUseCase(tx, invoices, testTaxes(), testIssuer())
	mpesa := &fakeMpesa{checkoutID: "ws_CO_291020261"}
	paystack := &fakePaystack{authURL: "https://checkout.paystack.com/abc", validSig: "good-sig"}
	return &paymentFixture{
		uc:        NewPaymentUseCase(invoiceUC, invoices, mpesa, paystack, testLogger()),
		invoiceUC: invoiceUC,
		invoices:  invoices,
		reminders: reminders,
		mpesa:     mpesa,
		paystack:  paystack,
	}
}

func (f *paymentFixture) createInvoice(t *testing.T, currency string) *entity.Invoice {
	t.Helper()
	resp, err := f.invoiceUC.Create(context.Background(), "user-1", dto.CreateInvoiceRequest{
		ClientName:  "Acme Ltd",
		ClientEmail: "client@acme.example",
		Currency:    currency,
		Items:       []dto.InvoiceItemRequest{{Description: "Consulting", Quantity: 2, UnitRate: 100000}},
	})
	require.NoError(t, err)
	inv, err := f.invoices.GetByID(context.Background(), resp.ID)
	require.NoError(t, err)
	require.NotNil(t, inv)
	return inv
}

// ── Rail A ────────────────────────────────────────────────────────────────────

func TestInitiateMpesa(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()

	inv := f.createInvoice(t, "KES")

	t.Run("stores the checkout reference", func(t *testing.T) {
		require.NoError(t, f.uc.InitiateMpesa(ctx, inv.AccessToken, "254712345678"))
		assert.Equal(t, "254712345678", f.mpesa.lastPhone)
		assert.Equal(t, inv.Total, f.mpesa.lastAmount)

		after, err := f.invoices.GetByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.PaymentMethodMpesa, after.PaymentMethod)
		assert.Equal(t, "ws_CO_291020261", after.PaymentRef)
		// Initiation alone never settles.
		assert.Equal(t, entity.InvoiceStatusSent, after.Status)
	})

	t.Run("unknown token is unauthorized", func(t *testing.T) {
		assert.ErrorIs(t, f.uc.InitiateMpesa(ctx, "bogus", "254712345678"), domain.ErrUnauthorized)
	})

	t.Run("missing phone is invalid", func(t *testing.T) {
		assert.ErrorIs(t, f.uc.InitiateMpesa(ctx, inv.AccessToken, ""), domain.ErrInvalidInput)
	})

	t.Run("non-KES invoice is unsupported", func(t *testing.T) {
		usd := f.createInvoice(t, "USD")
		assert.ErrorIs(t, f.uc.InitiateMpesa(ctx, usd.AccessToken, "254712345678"), domain.ErrUnsupportedCurrency)
	})
}

func TestHandleMpesaCallback(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()

	inv := f.createInvoice(t, "KES")
	require.NoError(t, f.uc.InitiateMpesa(ctx, inv.AccessToken, "254712345678"))

	t.Run("failed payment leaves the invoice untouched", func(t *testing.T) {
		require.NoError(t, f.uc.HandleMpesaCallback(ctx, MpesaCallback{
			CheckoutRequestID: "ws_CO_291020261",
			ResultCode:        1032,
			ResultDesc:        "Request cancelled by user",
		}))
		after, err := f.invoices.GetByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.InvoiceStatusSent, after.Status)
	})

	t.Run("unknown reference is acknowledged without state change", func(t *testing.T) {
		require.NoError(t, f.uc.HandleMpesaCallback(ctx, MpesaCallback{
			CheckoutRequestID: "ws_CO_stranger",
			ResultCode:        0,
		}))
		after, err := f.invoices.GetByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.InvoiceStatusSent, after.Status)
	})

	t.Run("success settles and cancels reminders", func(t *testing.T) {
		require.NoError(t, f.uc.HandleMpesaCallback(ctx, MpesaCallback{
			CheckoutRequestID: "ws_CO_291020261",
			ResultCode:        0,
		}))
		after, err := f.invoices.GetByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.InvoiceStatusPaid, after.Status)
		assert.NotNil(t, after.PaidAt)

		list, err := f.reminders.ListByInvoice(ctx, inv.ID)
		require.NoError(t, err)
		for _, r := range list {
			assert.Equal(t, entity.ReminderStatusCancelled, r.Status)
		}
	})

	t.Run("duplicate confirmation is a no-op", func(t *testing.T) {
		require.NoError(t, f.uc.HandleMpesaCallback(ctx, MpesaCallback{
			CheckoutRequestID: "ws_CO_291020261",
			ResultCode:        0,
		}))
	})
}

// ── Rail B ────────────────────────────────────────────────────────────────────

func TestInitiatePaystack(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()

	inv := f.createInvoice(t, "KES")

	out, err := f.uc.InitiatePaystack(ctx, inv.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc", out.AuthorizationURL)
	assert.Regexp(t, `^PSK-`, out.Reference)
	assert.Equal(t, "client@acme.example", f.paystack.lastEmail)

	after, err := f.invoices.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentMethodPaystack, after.PaymentMethod)
	assert.Equal(t, out.Reference, after.PaymentRef)
}

func TestHandlePaystackWebhook(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()

	inv := f.createInvoice(t, "KES")
	out, err := f.uc.InitiatePaystack(ctx, inv.AccessToken)
	require.NoError(t, err)

	successBody := []byte(`{"event":"charge.success","data":{"reference":"` + out.Reference + `"}}`)

	t.Run("bad signature is rejected before any lookup", func(t *testing.T) {
		err := f.uc.HandlePaystackWebhook(ctx, successBody, "forged")
		assert.ErrorIs(t, err, domain.ErrUnauthentic)
		after, err := f.invoices.GetByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.InvoiceStatusSent, after.Status)
	})

	t.Run("non-success events are ignored", func(t *testing.T) {
		body := []byte(`{"event":"charge.dispute.create","data":{"reference":"` + out.Reference + `"}}`)
		require.NoError(t, f.uc.HandlePaystackWebhook(ctx, body, "good-sig"))
		after, err := f.invoices.GetByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.InvoiceStatusSent, after.Status)
	})

	t.Run("metadata mismatch blocks settlement", func(t *testing.T) {
		body := []byte(`{"event":"charge.success","data":{"reference":"` + out.Reference + `","metadata":{"invoice_id":"other"}}}`)
		require.NoError(t, f.uc.HandlePaystackWebhook(ctx, body, "good-sig"))
		after, err := f.invoices.GetByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.InvoiceStatusSent, after.Status)
	})

	t.Run("authentic success settles, redelivery is a no-op", func(t *testing.T) {
		require.NoError(t, f.uc.HandlePaystackWebhook(ctx, successBody, "good-sig"))
		after, err := f.invoices.GetByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.InvoiceStatusPaid, after.Status)

		require.NoError(t, f.uc.HandlePaystackWebhook(ctx, successBody, "good-sig"))
	})
}
