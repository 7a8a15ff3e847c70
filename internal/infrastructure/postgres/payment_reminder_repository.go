package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kitabu/billing-api/internal/domain/entity"
	"github.com/kitabu/billing-api/internal/domain/repository"
)

var _ repository.PaymentReminderRepository = (*PaymentReminderRepo)(nil)

// PaymentReminderRepo implements PaymentReminderRepository.
type PaymentReminderRepo struct {
	q Querier
}

func NewPaymentReminderRepository(q Querier) *PaymentReminderRepo {
	return &PaymentReminderRepo{q: q}
}

const reminderColumns = `
	id, invoice_id, kind, scheduled_for, status, attempts, error_message, created_at, updated_at`

// Create inserts a reminder. ON CONFLICT makes re-scheduling the same kind
// for the same invoice a no-op.
func (r *PaymentReminderRepo) Create(ctx context.Context, rem *entity.PaymentReminder) error {
	if rem.ID == "" {
		rem.ID = uuid.New().String()
	}
	query := `
		INSERT INTO payment_reminders (id, invoice_id, kind, scheduled_for, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (invoice_id, kind) DO NOTHING`
	_, err := r.q.Exec(ctx, query,
		rem.ID, rem.InvoiceID, string(rem.Kind), rem.ScheduledFor, string(rem.Status), rem.CreatedAt, rem.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	return nil
}

func (r *PaymentReminderRepo) list(ctx context.Context, query string, args ...any) ([]*entity.PaymentReminder, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()
	var list []*entity.PaymentReminder
	for rows.Next() {
		var rem entity.PaymentReminder
		var kind, status string
		var errMsg *string
		if err := rows.Scan(
			&rem.ID, &rem.InvoiceID, &kind, &rem.ScheduledFor, &status,
			&rem.Attempts, &errMsg, &rem.CreatedAt, &rem.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		rem.Kind = entity.ReminderKind(kind)
		rem.Status = entity.ReminderStatus(status)
		rem.ErrorMessage = derefStr(errMsg)
		list = append(list, &rem)
	}
	return list, rows.Err()
}

func (r *PaymentReminderRepo) ListDue(ctx context.Context, now time.Time) ([]*entity.PaymentReminder, error) {
	query := `
		SELECT ` + reminderColumns + `
		FROM payment_reminders
		WHERE status = $1 AND scheduled_for <= $2
		ORDER BY scheduled_for`
	return r.list(ctx, query, string(entity.ReminderStatusPending), now)
}

func (r *PaymentReminderRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.PaymentReminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM payment_reminders WHERE invoice_id = $1 ORDER BY scheduled_for`
	return r.list(ctx, query, invoiceID)
}

func (r *PaymentReminderRepo) CancelAllPending(ctx context.Context, invoiceID string) (int, error) {
	query := `
		UPDATE payment_reminders SET status = $2, updated_at = now()
		WHERE invoice_id = $1 AND status = $3`
	tag, err := r.q.Exec(ctx, query, invoiceID,
		string(entity.ReminderStatusCancelled), string(entity.ReminderStatusPending))
	if err != nil {
		return 0, fmt.Errorf("cancel reminders: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PaymentReminderRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE payment_reminders SET status = $2, attempts = attempts + 1, updated_at = $3 WHERE id = $1`
	_, err := r.q.Exec(ctx, query, id, string(entity.ReminderStatusSent), at)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return nil
}

func (r *PaymentReminderRepo) RecordFailure(ctx context.Context, id string, errMsg string, terminal bool) error {
	status := entity.ReminderStatusPending
	if terminal {
		status = entity.ReminderStatusFailed
	}
	query := `
		UPDATE payment_reminders
		SET attempts = attempts + 1, error_message = $2, status = $3, updated_at = now()
		WHERE id = $1`
	_, err := r.q.Exec(ctx, query, id, errMsg, string(status))
	if err != nil {
		return fmt.Errorf("record reminder failure: %w", err)
	}
	return nil
}

func (r *PaymentReminderRepo) MarkCancelled(ctx context.Context, id string) error {
	query := `UPDATE payment_reminders SET status = $2, updated_at = now() WHERE id = $1`
	_, err := r.q.Exec(ctx, query, id, string(entity.ReminderStatusCancelled))
	if err != nil {
		return fmt.Errorf("mark reminder cancelled: %w", err)
	}
	return nil
}
