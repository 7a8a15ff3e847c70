package repository

import (
	"context"
	"time"

	"github.com/kitabu/billing-api/internal/domain/entity"
)

// InvoiceRepository is the persistence port for invoices and their lines.
// Get* methods return (nil, nil) when the row does not exist.
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *entity.Invoice) error
	CreateItem(ctx context.Context, item *entity.InvoiceItem) error

	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	GetByToken(ctx context.Context, token string) (*entity.Invoice, error)
	// GetByPaymentRef resolves an invoice by the checkout/transaction
	// reference stored at payment initiation. Reconciliation matches on this
	// field only.
	GetByPaymentRef(ctx context.Context, ref string) (*entity.Invoice, error)
	GetItems(ctx context.Context, invoiceID string) ([]*entity.InvoiceItem, error)
	ListByUser(ctx context.Context, userID string) ([]*entity.Invoice, error)

	// MarkPaid transitions SENT/OVERDUE to PAID in a single conditional
	// update. Returns false when no row changed (already terminal, or not
	// payable); the caller decides what that means.
	MarkPaid(ctx context.Context, id, method, externalRef string, paidAt time.Time) (bool, error)
	// MarkOverdue transitions SENT to OVERDUE once the due date has passed.
	MarkOverdue(ctx context.Context, id string) (bool, error)
	// Cancel transitions any non-terminal status to CANCELLED.
	Cancel(ctx context.Context, id string) (bool, error)

	// SetPaymentRef records the pending payment reference and method issued
	// by a rail's initiation call.
	SetPaymentRef(ctx context.Context, id, method, ref string) error
	// RecordView bumps the portal view counter and last-viewed timestamp.
	RecordView(ctx context.Context, id string, at time.Time) error
}
