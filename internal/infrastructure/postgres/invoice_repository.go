package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kitabu/billing-api/internal/domain"
	"github.com/kitabu/billing-api/internal/domain/entity"
	"github.com/kitabu/billing-api/internal/domain/repository"
)

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

// InvoiceRepo implements InvoiceRepository (usable with pool or tx).
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository builds the adapter. Pass a pool or a tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

const invoiceColumns = `
	id, user_id, number, access_token,
	client_name, client_email, client_phone,
	currency, subtotal, tax_rate, tax_amount, total,
	status, due_date, notes, recurring_template_id,
	payment_method, payment_ref, paid_at,
	view_count, last_viewed_at, created_at, updated_at`

// Create persists the invoice header. A number collision surfaces as
// domain.ErrDuplicate so the caller can retry with a fresh number.
func (r *InvoiceRepo) Create(ctx context.Context, inv *entity.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	query := `
		INSERT INTO invoices (
			id, user_id, number, access_token,
			client_name, client_email, client_phone,
			currency, subtotal, tax_rate, tax_amount, total,
			status, due_date, notes, recurring_template_id,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err := r.q.Exec(ctx, query,
		inv.ID, inv.UserID, inv.Number, inv.AccessToken,
		inv.ClientName, nullIfEmpty(inv.ClientEmail), nullIfEmpty(inv.ClientPhone),
		inv.Currency, inv.Subtotal, inv.TaxRate, inv.TaxAmount, inv.Total,
		string(inv.Status), inv.DueDate, nullIfEmpty(inv.Notes), nullIfEmpty(inv.RecurringTemplateID),
		inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: invoice number %s", domain.ErrDuplicate, inv.Number)
		}
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// CreateItem persists one line item.
func (r *InvoiceRepo) CreateItem(ctx context.Context, item *entity.InvoiceItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	query := `
		INSERT INTO invoice_items (id, invoice_id, position, description, quantity, unit_rate, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.q.Exec(ctx, query,
		item.ID, item.InvoiceID, item.Position, item.Description, item.Quantity, item.UnitRate, item.Amount,
	)
	if err != nil {
		return fmt.Errorf("insert invoice item: %w", err)
	}
	return nil
}

func (r *InvoiceRepo) getBy(ctx context.Context, where string, arg any) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE ` + where
	var inv entity.Invoice
	var status string
	var clientEmail, clientPhone, notes, templateID, paymentMethod, paymentRef *string
	err := r.q.QueryRow(ctx, query, arg).Scan(
		&inv.ID, &inv.UserID, &inv.Number, &inv.AccessToken,
		&inv.ClientName, &clientEmail, &clientPhone,
		&inv.Currency, &inv.Subtotal, &inv.TaxRate, &inv.TaxAmount, &inv.Total,
		&status, &inv.DueDate, &notes, &templateID,
		&paymentMethod, &paymentRef, &inv.PaidAt,
		&inv.ViewCount, &inv.LastViewedAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	inv.Status = entity.InvoiceStatus(status)
	inv.ClientEmail = derefStr(clientEmail)
	inv.ClientPhone = derefStr(clientPhone)
	inv.Notes = derefStr(notes)
	inv.RecurringTemplateID = derefStr(templateID)
	inv.PaymentMethod = derefStr(paymentMethod)
	inv.PaymentRef = derefStr(paymentRef)
	return &inv, nil
}

// GetByID loads a full invoice by id.
func (r *InvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	return r.getBy(ctx, "id = $1", id)
}

// GetByToken loads an invoice by its portal access token.
func (r *InvoiceRepo) GetByToken(ctx context.Context, token string) (*entity.Invoice, error) {
	return r.getBy(ctx, "access_token = $1", token)
}

// GetByPaymentRef loads an invoice by the stored checkout reference.
func (r *InvoiceRepo) GetByPaymentRef(ctx context.Context, ref string) (*entity.Invoice, error) {
	return r.getBy(ctx, "payment_ref = $1", ref)
}

// GetItems loads the invoice's lines in display order.
func (r *InvoiceRepo) GetItems(ctx context.Context, invoiceID string) ([]*entity.InvoiceItem, error) {
	query := `
		SELECT id, invoice_id, position, description, quantity, unit_rate, amount
		FROM invoice_items WHERE invoice_id = $1 ORDER BY position`
	rows, err := r.q.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice items: %w", err)
	}
	defer rows.Close()
	var list []*entity.InvoiceItem
	for rows.Next() {
		var it entity.InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Position, &it.Description, &it.Quantity, &it.UnitRate, &it.Amount); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		list = append(list, &it)
	}
	return list, rows.Err()
}

// ListByUser returns the user's invoices, newest first.
func (r *InvoiceRepo) ListByUser(ctx context.Context, userID string) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()
	var list []*entity.Invoice
	for rows.Next() {
		var inv entity.Invoice
		var status string
		var clientEmail, clientPhone, notes, templateID, paymentMethod, paymentRef *string
		if err := rows.Scan(
			&inv.ID, &inv.UserID, &inv.Number, &inv.AccessToken,
			&inv.ClientName, &clientEmail, &clientPhone,
			&inv.Currency, &inv.Subtotal, &inv.TaxRate, &inv.TaxAmount, &inv.Total,
			&status, &inv.DueDate, &notes, &templateID,
			&paymentMethod, &paymentRef, &inv.PaidAt,
			&inv.ViewCount, &inv.LastViewedAt, &inv.CreatedAt, &inv.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		inv.Status = entity.InvoiceStatus(status)
		inv.ClientEmail = derefStr(clientEmail)
		inv.ClientPhone = derefStr(clientPhone)
		inv.Notes = derefStr(notes)
		inv.RecurringTemplateID = derefStr(templateID)
		inv.PaymentMethod = derefStr(paymentMethod)
		inv.PaymentRef = derefStr(paymentRef)
		list = append(list, &inv)
	}
	return list, rows.Err()
}

// MarkPaid settles the invoice in one conditional update; only payable
// statuses transition. Zero rows affected means the caller must inspect the
// current status.
func (r *InvoiceRepo) MarkPaid(ctx context.Context, id, method, externalRef string, paidAt time.Time) (bool, error) {
	query := `
		UPDATE invoices
		SET status = $2, payment_method = $3, payment_ref = $4, paid_at = $5, updated_at = $5
		WHERE id = $1 AND status IN ($6, $7)`
	tag, err := r.q.Exec(ctx, query,
		id, string(entity.InvoiceStatusPaid), method, externalRef, paidAt,
		string(entity.InvoiceStatusSent), string(entity.InvoiceStatusOverdue),
	)
	if err != nil {
		return false, fmt.Errorf("mark invoice paid: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkOverdue flips SENT to OVERDUE.
func (r *InvoiceRepo) MarkOverdue(ctx context.Context, id string) (bool, error) {
	query := `UPDATE invoices SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`
	tag, err := r.q.Exec(ctx, query, id, string(entity.InvoiceStatusOverdue), string(entity.InvoiceStatusSent))
	if err != nil {
		return false, fmt.Errorf("mark invoice overdue: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Cancel voids any non-terminal invoice.
func (r *InvoiceRepo) Cancel(ctx context.Context, id string) (bool, error) {
	query := `UPDATE invoices SET status = $2, updated_at = now() WHERE id = $1 AND status IN ($3, $4, $5)`
	tag, err := r.q.Exec(ctx, query,
		id, string(entity.InvoiceStatusCancelled),
		string(entity.InvoiceStatusDraft), string(entity.InvoiceStatusSent), string(entity.InvoiceStatusOverdue),
	)
	if err != nil {
		return false, fmt.Errorf("cancel invoice: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetPaymentRef records the rail's pending checkout reference.
func (r *InvoiceRepo) SetPaymentRef(ctx context.Context, id, method, ref string) error {
	query := `UPDATE invoices SET payment_method = $2, payment_ref = $3, updated_at = now() WHERE id = $1`
	_, err := r.q.Exec(ctx, query, id, method, ref)
	if err != nil {
		return fmt.Errorf("set payment ref: %w", err)
	}
	return nil
}

// RecordView bumps the portal view counter.
func (r *InvoiceRepo) RecordView(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE invoices SET view_count = view_count + 1, last_viewed_at = $2, updated_at = $2 WHERE id = $1`
	_, err := r.q.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("record view: %w", err)
	}
	return nil
}
