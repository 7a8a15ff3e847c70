package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitabu/billing-api/internal/domain/entity"
)

type reminderFixture struct {
	uc         *ReminderUseCase
	invoices   *memInvoiceRepo
	reminders  *memReminderRepo
	dispatcher *fakeDispatcher
}

func newReminderFixture() *reminderFixture {
	invoices := newMemInvoiceRepo()
	reminders := newMemReminderRepo()
	dispatcher := &fakeDispatcher{}
	return &reminderFixture{
		uc:         NewReminderUseCase(invoices, reminders, dispatcher, testLogger()),
		invoices:   invoices,
		reminders:  reminders,
		dispatcher: dispatcher,
	}
}

func (f *reminderFixture) addInvoice(t *testing.T, id string, status entity.InvoiceStatus, dueDate time.Time) *entity.Invoice {
	t.Helper()
	inv := &entity.Invoice{
		ID:          id,
		UserID:      "user-1",
		Number:      "KS-2026-09-" + id,
		AccessToken: "tok-" + id,
		ClientName:  "Acme Ltd",
		ClientEmail: "client@acme.example",
		Currency:    "KES",
		Status:      status,
		DueDate:     dueDate,
	}
	require.NoError(t, f.invoices.Create(context.Background(), inv))
	return inv
}

func (f *reminderFixture) addReminder(t *testing.T, invoiceID string, kind entity.ReminderKind, at time.Time, attempts int) *entity.PaymentReminder {
	t.Helper()
	r := &entity.PaymentReminder{
		ID:           "rem-" + invoiceID + "-" + string(kind),
		InvoiceID:    invoiceID,
		Kind:         kind,
		ScheduledFor: at,
		Status:       entity.ReminderStatusPending,
		Attempts:     attempts,
	}
	require.NoError(t, f.reminders.Create(context.Background(), r))
	return r
}

func TestSchedule_SkipsPastOffsets(t *testing.T) {
	f := newReminderFixture()
	ctx := context.Background()

	due := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)

	t.Run("well before due date, all four slots", func(t *testing.T) {
		now := due.AddDate(0, 0, -10)
		require.NoError(t, f.uc.Schedule(ctx, "inv-a", due, now))
		list, err := f.reminders.ListByInvoice(ctx, "inv-a")
		require.NoError(t, err)
		assert.Len(t, list, 4)
	})

	t.Run("already past due, only overdue slots", func(t *testing.T) {
		now := due.AddDate(0, 0, 1)
		require.NoError(t, f.uc.Schedule(ctx, "inv-b", due, now))
		list, err := f.reminders.ListByInvoice(ctx, "inv-b")
		require.NoError(t, err)
		require.Len(t, list, 2)
		kinds := []entity.ReminderKind{list[0].Kind, list[1].Kind}
		assert.Contains(t, kinds, entity.ReminderKindOverdue7)
		assert.Contains(t, kinds, entity.ReminderKindOverdue14)
	})
}

func TestProcessDue_Dispatches(t *testing.T) {
	f := newReminderFixture()
	ctx := context.Background()
	now := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)

	inv := f.addInvoice(t, "1", entity.InvoiceStatusSent, now.AddDate(0, 0, 3))
	f.addReminder(t, inv.ID, entity.ReminderKindUpcoming, now.Add(-time.Hour), 0)
	// Not due yet; the sweep must leave it alone.
	f.addReminder(t, inv.ID, entity.ReminderKindDue, now.AddDate(0, 0, 3), 0)

	report, err := f.uc.ProcessDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, []string{inv.Number}, f.dispatcher.sent)

	list, err := f.reminders.ListByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	for _, r := range list {
		if r.Kind == entity.ReminderKindUpcoming {
			assert.Equal(t, entity.ReminderStatusSent, r.Status)
		} else {
			assert.Equal(t, entity.ReminderStatusPending, r.Status)
		}
	}
}

func TestProcessDue_CancelsForSettledInvoice(t *testing.T) {
	f := newReminderFixture()
	ctx := context.Background()
	now := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)

	paid := f.addInvoice(t, "1", entity.InvoiceStatusPaid, now.AddDate(0, 0, 3))
	f.addReminder(t, paid.ID, entity.ReminderKindUpcoming, now.Add(-time.Hour), 0)

	report, err := f.uc.ProcessDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Cancelled)
	assert.Empty(t, f.dispatcher.sent)

	list, err := f.reminders.ListByInvoice(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReminderStatusCancelled, list[0].Status)
}

func TestProcessDue_FlipsOverdue(t *testing.T) {
	f := newReminderFixture()
	ctx := context.Background()

	due := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	now := due.AddDate(0, 0, 7)

	inv := f.addInvoice(t, "1", entity.InvoiceStatusSent, due)
	f.addReminder(t, inv.ID, entity.ReminderKindOverdue7, now.Add(-time.Hour), 0)

	report, err := f.uc.ProcessDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)

	after, err := f.invoices.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusOverdue, after.Status)
}

func TestProcessDue_RetriesThenParksFailed(t *testing.T) {
	f := newReminderFixture()
	ctx := context.Background()
	now := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)

	f.dispatcher.fail = errors.New("smtp: connection refused")
	inv := f.addInvoice(t, "1", entity.InvoiceStatusSent, now.AddDate(0, 0, 3))
	f.addReminder(t, inv.ID, entity.ReminderKindUpcoming, now.Add(-time.Hour), 0)

	// Two sweeps fail but keep the reminder pending for retry.
	for i := 0; i < 2; i++ {
		report, err := f.uc.ProcessDue(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 0, report.Sent)
		assert.Equal(t, 0, report.Failed)
	}
	mid, err := f.reminders.ListByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReminderStatusPending, mid[0].Status)
	assert.Equal(t, 2, mid[0].Attempts)

	// Third failure exhausts the attempts; the reminder is parked.
	report, err := f.uc.ProcessDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	after, err := f.reminders.ListByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReminderStatusFailed, after[0].Status)
	assert.Equal(t, 3, after[0].Attempts)
	assert.Contains(t, after[0].ErrorMessage, "connection refused")

	// Parked reminders never come due again.
	f.dispatcher.fail = nil
	report, err = f.uc.ProcessDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Sent)
}
