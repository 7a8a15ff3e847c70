package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the closed set of lifecycle states for an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"     // Created but not published to the client
	InvoiceStatusSent      InvoiceStatus = "SENT"      // Published, payable
	InvoiceStatusPaid      InvoiceStatus = "PAID"      // Settled by a reconciled payment notification (terminal)
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"   // Past due date, still payable
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED" // Voided by the issuer (terminal)
)

// Payable reports whether the invoice can still accept a payment.
func (s InvoiceStatus) Payable() bool {
	return s == InvoiceStatusSent || s == InvoiceStatusOverdue
}

// Terminal reports whether the status admits no further transitions.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// Payment methods recorded on settlement.
const (
	PaymentMethodMpesa    = "mpesa"
	PaymentMethodPaystack = "paystack"
)

// Invoice is the authoritative record for one billable document.
// Monetary amounts are integer minor units; TaxRate is a percentage.
type Invoice struct {
	ID          string
	UserID      string // Issuer; never exposed on the public portal
	Number      string // PREFIX-YYYY-MM-XXXX, unique
	AccessToken string // Sole credential for unauthenticated portal access

	ClientName  string
	ClientEmail string
	ClientPhone string

	Currency  string
	Subtotal  int64
	TaxRate   decimal.Decimal
	TaxAmount int64
	Total     int64

	Status  InvoiceStatus
	DueDate time.Time
	Notes   string // Optional payment instructions shown on the document

	RecurringTemplateID string // Empty for ad hoc invoices

	PaymentMethod string
	PaymentRef    string // Checkout/transaction reference stored at initiation
	PaidAt        *time.Time

	ViewCount    int
	LastViewedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InvoiceItem is one billed line. Amount = Quantity * UnitRate, in minor units.
type InvoiceItem struct {
	ID          string
	InvoiceID   string
	Position    int
	Description string
	Quantity    int64
	UnitRate    int64
	Amount      int64
}
