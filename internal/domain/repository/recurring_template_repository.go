package repository

import (
	"context"
	"time"

	"github.com/kitabu/billing-api/internal/domain/entity"
)

// RecurringTemplateRepository is the persistence port for billing templates.
type RecurringTemplateRepository interface {
	Create(ctx context.Context, tpl *entity.RecurringTemplate) error
	GetByID(ctx context.Context, id string) (*entity.RecurringTemplate, error)
	ListByUser(ctx context.Context, userID string) ([]*entity.RecurringTemplate, error)
	// ListDue returns active templates whose next_due_date is at or before
	// now and whose end date has not passed.
	ListDue(ctx context.Context, now time.Time) ([]*entity.RecurringTemplate, error)

	// ClaimAndAdvance is the atomic generation step: it advances
	// next_due_date from prevDue to nextDue and bumps the counters, but only
	// if next_due_date still equals prevDue and the template is active.
	// Returns false when the claim was lost to a concurrent generation.
	ClaimAndAdvance(ctx context.Context, id string, prevDue, nextDue, generatedAt time.Time) (bool, error)

	// Deactivate soft-disables the template. Templates are never deleted.
	Deactivate(ctx context.Context, id string) (bool, error)
}
