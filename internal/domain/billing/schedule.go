package billing

import (
	"time"

	"github.com/kitabu/billing-api/internal/domain/entity"
)

// NextDueDate advances a due date by one cadence step. Calendar-month steps
// clamp to the last day of the target month (Jan 31 + 1 month = Feb 28/29),
// instead of the normalizing overflow of time.AddDate.
func NextDueDate(current time.Time, freq entity.Frequency) time.Time {
	switch freq {
	case entity.FrequencyWeekly:
		return current.AddDate(0, 0, 7)
	case entity.FrequencyBiweekly:
		return current.AddDate(0, 0, 14)
	case entity.FrequencyMonthly:
		return addMonthsClamped(current, 1)
	case entity.FrequencyQuarterly:
		return addMonthsClamped(current, 3)
	case entity.FrequencyYearly:
		return addMonthsClamped(current, 12)
	}
	// Unknown cadences never silently repeat a cycle.
	return current.AddDate(0, 1, 0)
}

// addMonthsClamped moves t forward by months, keeping the day-of-month when
// the target month has it and clamping to its last day otherwise.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	m := int(month) + months
	year += (m - 1) / 12
	month = time.Month((m-1)%12 + 1)

	if last := lastDayOfMonth(year, month); day > last {
		day = last
	}
	h, min, sec := t.Clock()
	return time.Date(year, month, day, h, min, sec, t.Nanosecond(), t.Location())
}

func lastDayOfMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Reminder day-offsets from the due date, one per kind.
var reminderOffsets = []struct {
	Kind entity.ReminderKind
	Days int
}{
	{entity.ReminderKindUpcoming, -3},
	{entity.ReminderKindDue, 0},
	{entity.ReminderKindOverdue7, 7},
	{entity.ReminderKindOverdue14, 14},
}

// ReminderTime is one computed reminder slot for an invoice.
type ReminderTime struct {
	Kind         entity.ReminderKind
	ScheduledFor time.Time
}

// ReminderTimes returns the reminder slots for dueDate that are strictly in
// the future relative to now. Offsets already in the past are never created.
func ReminderTimes(dueDate, now time.Time) []ReminderTime {
	out := make([]ReminderTime, 0, len(reminderOffsets))
	for _, o := range reminderOffsets {
		at := dueDate.AddDate(0, 0, o.Days)
		if at.After(now) {
			out = append(out, ReminderTime{Kind: o.Kind, ScheduledFor: at})
		}
	}
	return out
}
