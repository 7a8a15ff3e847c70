package billing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/kitabu/billing-api/internal/application/dto"
	"github.com/kitabu/billing-api/internal/domain/entity"
	"github.com/kitabu/billing-api/internal/domain/repository"
)

// TxRunner executes a callback with all billing repositories bound to one
// database transaction. The callback returning an error rolls everything
// back; this is the sole atomicity mechanism of the engine.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		invoiceRepo repository.InvoiceRepository,
		templateRepo repository.RecurringTemplateRepository,
		reminderRepo repository.PaymentReminderRepository,
	) error) error
}

// ReminderDispatcher delivers one reminder notification to the invoice's
// client. Delivery is at-least-once; failures are retried on later sweeps.
type ReminderDispatcher interface {
	SendReminder(ctx context.Context, inv *entity.Invoice, r *entity.PaymentReminder) error
}

// DocumentRenderer turns an invoice into fixed-layout document bytes using a
// shared rendering engine. Dispose forcibly discards the engine; the next
// Render transparently relaunches it.
type DocumentRenderer interface {
	Render(ctx context.Context, inv *entity.Invoice, items []*entity.InvoiceItem, issuer dto.IssuerInfo) ([]byte, error)
	Dispose()
}

// DocumentStore persists rendered documents under a stable name and returns
// the retrievable path. Writing the same name again overwrites the slot.
type DocumentStore interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// MpesaGateway is the outbound port for the mobile-money rail (Rail A).
// InitiateSTKPush returns the checkout request identifier to store on the
// invoice as its pending payment reference.
type MpesaGateway interface {
	InitiateSTKPush(ctx context.Context, phone string, amountMinor int64, account, description string) (string, error)
}

// PaystackGateway is the outbound port for the redirect-and-webhook rail
// (Rail B).
type PaystackGateway interface {
	// InitializeTransaction creates a checkout session and returns the
	// authorization URL the client is redirected to.
	InitializeTransaction(ctx context.Context, email string, amountMinor int64, currency, reference string, metadata map[string]string) (string, error)
	// VerifySignature checks the webhook HMAC over the raw request body.
	VerifySignature(rawBody []byte, signature string) bool
}

// TaxPolicy maps a currency to its tax rate percentage. Unlisted currencies
// carry no tax.
type TaxPolicy struct {
	Rates map[string]decimal.Decimal
}

// Rate returns the percentage for currency, or zero.
func (p TaxPolicy) Rate(currency string) decimal.Decimal {
	if r, ok := p.Rates[currency]; ok {
		return r
	}
	return decimal.Zero
}

// IssuerProfile is the business identity shown on portals, documents and
// reminder emails. Sourced from configuration, not from the database.
type IssuerProfile struct {
	Name          string
	Email         string
	Phone         string
	Address       string
	InvoicePrefix string
	PortalBaseURL string
}

// Info converts the profile to its public display block.
func (p IssuerProfile) Info() dto.IssuerInfo {
	return dto.IssuerInfo{Name: p.Name, Email: p.Email, Phone: p.Phone, Address: p.Address}
}

// PortalLink builds the public link for an invoice access token.
func (p IssuerProfile) PortalLink(token string) string {
	return p.PortalBaseURL + "/portal/invoices/" + token
}
