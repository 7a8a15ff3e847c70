package repository

import (
	"context"
	"time"

	"github.com/kitabu/billing-api/internal/domain/entity"
)

// PaymentReminderRepository is the persistence port for scheduled reminders.
type PaymentReminderRepository interface {
	// Create persists a reminder. A second reminder of the same kind for the
	// same invoice is a silent no-op (unique on invoice_id + kind).
	Create(ctx context.Context, r *entity.PaymentReminder) error

	// ListDue returns pending reminders with scheduled_for at or before now.
	ListDue(ctx context.Context, now time.Time) ([]*entity.PaymentReminder, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.PaymentReminder, error)

	// CancelAllPending transitions every pending reminder of the invoice to
	// cancelled and returns how many were affected.
	CancelAllPending(ctx context.Context, invoiceID string) (int, error)

	MarkSent(ctx context.Context, id string, at time.Time) error
	// RecordFailure bumps the attempt counter and stores the error message;
	// terminal moves the reminder to the failed state instead of leaving it
	// pending for the next sweep.
	RecordFailure(ctx context.Context, id string, errMsg string, terminal bool) error
	MarkCancelled(ctx context.Context, id string) error
}
