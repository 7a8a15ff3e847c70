package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kitabu/billing-api/internal/domain/entity"
	"github.com/kitabu/billing-api/internal/domain/repository"
)

var _ repository.RecurringTemplateRepository = (*RecurringTemplateRepo)(nil)

// RecurringTemplateRepo implements RecurringTemplateRepository. Item
// templates are stored as a JSONB column.
type RecurringTemplateRepo struct {
	q Querier
}

func NewRecurringTemplateRepository(q Querier) *RecurringTemplateRepo {
	return &RecurringTemplateRepo{q: q}
}

const templateColumns = `
	id, user_id, client_name, client_email, client_phone,
	items, currency, notes, frequency, next_due_date, end_date,
	is_active, total_generated, last_generated_at, created_at, updated_at`

func (r *RecurringTemplateRepo) Create(ctx context.Context, tpl *entity.RecurringTemplate) error {
	if tpl.ID == "" {
		tpl.ID = uuid.New().String()
	}
	items, err := json.Marshal(tpl.Items)
	if err != nil {
		return fmt.Errorf("encode template items: %w", err)
	}
	query := `
		INSERT INTO recurring_templates (
			id, user_id, client_name, client_email, client_phone,
			items, currency, notes, frequency, next_due_date, end_date,
			is_active, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = r.q.Exec(ctx, query,
		tpl.ID, tpl.UserID, tpl.ClientName, nullIfEmpty(tpl.ClientEmail), nullIfEmpty(tpl.ClientPhone),
		items, tpl.Currency, nullIfEmpty(tpl.Notes), string(tpl.Frequency), tpl.NextDueDate, tpl.EndDate,
		tpl.IsActive, tpl.CreatedAt, tpl.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func scanTemplate(row pgx.Row) (*entity.RecurringTemplate, error) {
	var tpl entity.RecurringTemplate
	var freq string
	var clientEmail, clientPhone, notes *string
	var items []byte
	err := row.Scan(
		&tpl.ID, &tpl.UserID, &tpl.ClientName, &clientEmail, &clientPhone,
		&items, &tpl.Currency, &notes, &freq, &tpl.NextDueDate, &tpl.EndDate,
		&tpl.IsActive, &tpl.TotalGenerated, &tpl.LastGeneratedAt, &tpl.CreatedAt, &tpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &tpl.Items); err != nil {
		return nil, fmt.Errorf("decode template items: %w", err)
	}
	tpl.Frequency = entity.Frequency(freq)
	tpl.ClientEmail = derefStr(clientEmail)
	tpl.ClientPhone = derefStr(clientPhone)
	tpl.Notes = derefStr(notes)
	return &tpl, nil
}

func (r *RecurringTemplateRepo) GetByID(ctx context.Context, id string) (*entity.RecurringTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM recurring_templates WHERE id = $1`
	tpl, err := scanTemplate(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	return tpl, nil
}

func (r *RecurringTemplateRepo) list(ctx context.Context, query string, args ...any) ([]*entity.RecurringTemplate, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()
	var list []*entity.RecurringTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		list = append(list, tpl)
	}
	return list, rows.Err()
}

func (r *RecurringTemplateRepo) ListByUser(ctx context.Context, userID string) ([]*entity.RecurringTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM recurring_templates WHERE user_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

// ListDue feeds the sweep: active templates whose cadence has come due and
// whose end date, if any, has not passed.
func (r *RecurringTemplateRepo) ListDue(ctx context.Context, now time.Time) ([]*entity.RecurringTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM recurring_templates
		WHERE is_active AND next_due_date <= $1 AND (end_date IS NULL OR next_due_date <= end_date)
		ORDER BY next_due_date`
	return r.list(ctx, query, now)
}

// ClaimAndAdvance guards the generation against concurrent sweeps: the
// schedule only moves if next_due_date is still the value the caller read.
func (r *RecurringTemplateRepo) ClaimAndAdvance(ctx context.Context, id string, prevDue, nextDue, generatedAt time.Time) (bool, error) {
	query := `
		UPDATE recurring_templates
		SET next_due_date = $3, total_generated = total_generated + 1,
		    last_generated_at = $4, updated_at = $4
		WHERE id = $1 AND is_active AND next_due_date = $2`
	tag, err := r.q.Exec(ctx, query, id, prevDue, nextDue, generatedAt)
	if err != nil {
		return false, fmt.Errorf("claim template: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *RecurringTemplateRepo) Deactivate(ctx context.Context, id string) (bool, error) {
	query := `UPDATE recurring_templates SET is_active = false, updated_at = now() WHERE id = $1 AND is_active`
	tag, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("deactivate template: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
