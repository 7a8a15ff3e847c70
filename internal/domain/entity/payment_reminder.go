package entity

import "time"

// ReminderKind identifies one of the fixed day-offsets from the due date.
// At most one reminder of each kind exists per invoice.
type ReminderKind string

const (
	ReminderKindUpcoming  ReminderKind = "upcoming"   // due date - 3 days
	ReminderKindDue       ReminderKind = "due"        // due date
	ReminderKindOverdue7  ReminderKind = "overdue_7"  // due date + 7 days
	ReminderKindOverdue14 ReminderKind = "overdue_14" // due date + 14 days
)

// ReminderStatus is the lifecycle of a scheduled reminder.
type ReminderStatus string

const (
	ReminderStatusPending   ReminderStatus = "pending"
	ReminderStatusSent      ReminderStatus = "sent"
	ReminderStatusCancelled ReminderStatus = "cancelled"
	ReminderStatusFailed    ReminderStatus = "failed" // Terminal, after dispatch attempts are exhausted
)

// PaymentReminder is one scheduled notification event tied to an invoice's
// due date. All pending reminders for an invoice are cancelled the moment
// the invoice leaves the payable state.
type PaymentReminder struct {
	ID           string
	InvoiceID    string
	Kind         ReminderKind
	ScheduledFor time.Time
	Status       ReminderStatus
	Attempts     int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
