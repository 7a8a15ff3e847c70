package dto

import "github.com/shopspring/decimal"

// InvoiceItemRequest is one line item in a create request. Amounts are
// integer minor units.
type InvoiceItemRequest struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitRate    int64  `json:"unit_rate"`
}

// CreateInvoiceRequest body for POST /api/invoices.
// Publish=false keeps the invoice in DRAFT instead of SENT.
type CreateInvoiceRequest struct {
	ClientName  string               `json:"client_name"`
	ClientEmail string               `json:"client_email,omitempty"`
	ClientPhone string               `json:"client_phone,omitempty"`
	Currency    string               `json:"currency"`
	Items       []InvoiceItemRequest `json:"items"`
	DueDate     string               `json:"due_date,omitempty"` // YYYY-MM-DD; default 30 days from now
	Notes       string               `json:"notes,omitempty"`
	Publish     *bool                `json:"publish,omitempty"`
}

// InvoiceItemResponse is one line in invoice responses.
type InvoiceItemResponse struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitRate    int64  `json:"unit_rate"`
	Amount      int64  `json:"amount"`
}

// InvoiceResponse is the owner-facing invoice representation.
type InvoiceResponse struct {
	ID          string                `json:"id"`
	Number      string                `json:"number"`
	ClientName  string                `json:"client_name"`
	ClientEmail string                `json:"client_email,omitempty"`
	Currency    string                `json:"currency"`
	Subtotal    int64                 `json:"subtotal"`
	TaxRate     decimal.Decimal       `json:"tax_rate"`
	TaxAmount   int64                 `json:"tax_amount"`
	Total       int64                 `json:"total"`
	Status      string                `json:"status"`
	DueDate     string                `json:"due_date"`
	Notes       string                `json:"notes,omitempty"`
	PaidAt      string                `json:"paid_at,omitempty"`
	PortalLink  string                `json:"portal_link"`
	Items       []InvoiceItemResponse `json:"items"`
}

// IssuerInfo is the issuer display block on the public portal and the PDF.
// It carries no internal identifiers.
type IssuerInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// PortalInvoiceResponse is the sanitized invoice served to the public
// portal. Token-only access; internal user identifiers are never included.
type PortalInvoiceResponse struct {
	Number     string                `json:"number"`
	Issuer     IssuerInfo            `json:"issuer"`
	ClientName string                `json:"client_name"`
	Currency   string                `json:"currency"`
	Subtotal   int64                 `json:"subtotal"`
	TaxRate    decimal.Decimal       `json:"tax_rate"`
	TaxAmount  int64                 `json:"tax_amount"`
	Total      int64                 `json:"total"`
	Status     string                `json:"status"`
	DueDate    string                `json:"due_date"`
	Notes      string                `json:"notes,omitempty"`
	Items      []InvoiceItemResponse `json:"items"`
}

// CreateTemplateRequest body for POST /api/recurring-templates.
type CreateTemplateRequest struct {
	ClientName  string               `json:"client_name"`
	ClientEmail string               `json:"client_email,omitempty"`
	ClientPhone string               `json:"client_phone,omitempty"`
	Currency    string               `json:"currency"`
	Items       []InvoiceItemRequest `json:"items"`
	Frequency   string               `json:"frequency"`
	StartDate   string               `json:"start_date"`          // YYYY-MM-DD; first due date
	EndDate     string               `json:"end_date,omitempty"`  // YYYY-MM-DD; optional
	Notes       string               `json:"notes,omitempty"`
}

// TemplateResponse is the owner-facing template representation.
type TemplateResponse struct {
	ID              string               `json:"id"`
	ClientName      string               `json:"client_name"`
	Currency        string               `json:"currency"`
	Items           []InvoiceItemRequest `json:"items"`
	Frequency       string               `json:"frequency"`
	NextDueDate     string               `json:"next_due_date"`
	EndDate         string               `json:"end_date,omitempty"`
	IsActive        bool                 `json:"is_active"`
	TotalGenerated  int                  `json:"total_generated"`
	LastGeneratedAt string               `json:"last_generated_at,omitempty"`
}

// GenerateResponse is returned by the manual generation trigger.
type GenerateResponse struct {
	InvoiceNumber string `json:"invoice_number"`
	PortalLink    string `json:"portal_link"`
}

// MpesaPayRequest body for the mobile-money initiation on the portal.
type MpesaPayRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// CardPayResponse is returned by the card/bank initiation on the portal.
type CardPayResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
}

// RenderResponse reports where a rendered document was stored.
type RenderResponse struct {
	Path string `json:"path"`
}
