package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	domainbilling "github.com/kitabu/billing-api/internal/domain/billing"
	"github.com/kitabu/billing-api/internal/domain/entity"
	"github.com/kitabu/billing-api/internal/domain/repository"
	"github.com/kitabu/billing-api/pkg/logger"
)

// maxDispatchAttempts caps how many sweeps retry a failing reminder before
// it is parked in the terminal failed state.
const maxDispatchAttempts = 3

// ReminderUseCase schedules, cancels and dispatches payment reminders.
type ReminderUseCase struct {
	invoiceRepo  repository.InvoiceRepository
	reminderRepo repository.PaymentReminderRepository
	dispatcher   ReminderDispatcher
	log          *logger.Logger
}

// NewReminderUseCase builds the use case.
func NewReminderUseCase(invoiceRepo repository.InvoiceRepository, reminderRepo repository.PaymentReminderRepository, dispatcher ReminderDispatcher, log *logger.Logger) *ReminderUseCase {
	return &ReminderUseCase{
		invoiceRepo:  invoiceRepo,
		reminderRepo: reminderRepo,
		dispatcher:   dispatcher,
		log:          log,
	}
}

// Schedule creates the reminder slots for an invoice's due date. Offsets
// already in the past are skipped; existing slots of the same kind are
// left untouched.
func (uc *ReminderUseCase) Schedule(ctx context.Context, invoiceID string, dueDate, now time.Time) error {
	for _, rt := range domainbilling.ReminderTimes(dueDate, now) {
		r := &entity.PaymentReminder{
			ID:           uuid.New().String(),
			InvoiceID:    invoiceID,
			Kind:         rt.Kind,
			ScheduledFor: rt.ScheduledFor,
			Status:       entity.ReminderStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := uc.reminderRepo.Create(ctx, r); err != nil {
			return fmt.Errorf("schedule reminder %s: %w", rt.Kind, err)
		}
	}
	return nil
}

// CancelAll moves every pending reminder of the invoice to cancelled.
func (uc *ReminderUseCase) CancelAll(ctx context.Context, invoiceID string) error {
	_, err := uc.reminderRepo.CancelAllPending(ctx, invoiceID)
	return err
}

// ReminderSweepReport summarizes one ProcessDue pass.
type ReminderSweepReport struct {
	Sent      int
	Cancelled int
	Failed    int
}

// ProcessDue dispatches every pending reminder whose time has come. The
// parent invoice's status is re-checked at dispatch time: invoices that
// left the payable state since scheduling get their reminder cancelled
// instead of sent. Dispatch failures stay pending and are retried on later
// sweeps, up to maxDispatchAttempts, then parked as failed. One broken
// reminder never stops the sweep.
func (uc *ReminderUseCase) ProcessDue(ctx context.Context, now time.Time) (*ReminderSweepReport, error) {
	due, err := uc.reminderRepo.ListDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}

	report := &ReminderSweepReport{}
	for _, r := range due {
		if err := uc.processOne(ctx, r, now, report); err != nil {
			uc.log.Error().
				Err(err).
				Str("reminder_id", r.ID).
				Str("invoice_id", r.InvoiceID).
				Msg("reminder sweep: item failed")
		}
	}
	return report, nil
}

func (uc *ReminderUseCase) processOne(ctx context.Context, r *entity.PaymentReminder, now time.Time, report *ReminderSweepReport) error {
	inv, err := uc.invoiceRepo.GetByID(ctx, r.InvoiceID)
	if err != nil {
		return err
	}
	if inv == nil || !inv.Status.Payable() {
		// Settled, cancelled or gone since scheduling: never dispatch.
		if err := uc.reminderRepo.MarkCancelled(ctx, r.ID); err != nil {
			return err
		}
		report.Cancelled++
		return nil
	}

	// A reminder firing at or after the due date means the invoice is late.
	if inv.Status == entity.InvoiceStatusSent && !now.Before(inv.DueDate) {
		if _, err := uc.invoiceRepo.MarkOverdue(ctx, inv.ID); err != nil {
			return err
		}
		inv.Status = entity.InvoiceStatusOverdue
	}

	if err := uc.dispatcher.SendReminder(ctx, inv, r); err != nil {
		terminal := r.Attempts+1 >= maxDispatchAttempts
		if recErr := uc.reminderRepo.RecordFailure(ctx, r.ID, err.Error(), terminal); recErr != nil {
			return recErr
		}
		if terminal {
			report.Failed++
			uc.log.Warn().
				Str("reminder_id", r.ID).
				Str("invoice_number", inv.Number).
				Int("attempts", r.Attempts+1).
				Msg("reminder sweep: dispatch attempts exhausted")
		}
		return err
	}
	if err := uc.reminderRepo.MarkSent(ctx, r.ID, now); err != nil {
		return err
	}
	report.Sent++
	return nil
}
