package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitabu/billing-api/internal/domain/billing"
	"github.com/kitabu/billing-api/internal/domain/entity"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ──────────────────────────────────────────────────────────────────────────────
// NextDueDate
// ──────────────────────────────────────────────────────────────────────────────

func TestNextDueDate_AllFrequencies(t *testing.T) {
	start := date(2024, time.January, 15)

	cases := []struct {
		freq entity.Frequency
		want time.Time
	}{
		{entity.FrequencyWeekly, date(2024, time.January, 22)},
		{entity.FrequencyBiweekly, date(2024, time.January, 29)},
		{entity.FrequencyMonthly, date(2024, time.February, 15)},
		{entity.FrequencyQuarterly, date(2024, time.April, 15)},
		{entity.FrequencyYearly, date(2025, time.January, 15)},
	}
	for _, tc := range cases {
		t.Run(string(tc.freq), func(t *testing.T) {
			got := billing.NextDueDate(start, tc.freq)
			assert.Equal(t, tc.want, got)
			assert.True(t, got.After(start), "next due date must be strictly after the current one")
		})
	}
}

// Month arithmetic clamps instead of overflowing: Jan 31 + 1 month is the
// last day of February, never March 2/3.
func TestNextDueDate_MonthEndClamping(t *testing.T) {
	cases := []struct {
		name  string
		start time.Time
		freq  entity.Frequency
		want  time.Time
	}{
		{"jan 31 to feb 29 (leap)", date(2024, time.January, 31), entity.FrequencyMonthly, date(2024, time.February, 29)},
		{"jan 31 to feb 28", date(2025, time.January, 31), entity.FrequencyMonthly, date(2025, time.February, 28)},
		{"oct 31 quarterly to jan 31", date(2024, time.October, 31), entity.FrequencyQuarterly, date(2025, time.January, 31)},
		{"nov 30 quarterly to feb 28", date(2024, time.November, 30), entity.FrequencyQuarterly, date(2025, time.February, 28)},
		{"feb 29 yearly to feb 28", date(2024, time.February, 29), entity.FrequencyYearly, date(2025, time.February, 28)},
		{"dec 15 monthly wraps year", date(2024, time.December, 15), entity.FrequencyMonthly, date(2025, time.January, 15)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, billing.NextDueDate(tc.start, tc.freq))
		})
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// ReminderTimes
// ──────────────────────────────────────────────────────────────────────────────

// Scheduling 10 days before the due date yields all four slots; scheduling
// one day after it drops the two offsets already in the past.
func TestReminderTimes_FutureOffsetsOnly(t *testing.T) {
	due := date(2024, time.June, 20)

	all := billing.ReminderTimes(due, due.AddDate(0, 0, -10))
	require.Len(t, all, 4)
	assert.Equal(t, entity.ReminderKindUpcoming, all[0].Kind)
	assert.Equal(t, due.AddDate(0, 0, -3), all[0].ScheduledFor)
	assert.Equal(t, entity.ReminderKindDue, all[1].Kind)
	assert.Equal(t, due, all[1].ScheduledFor)
	assert.Equal(t, entity.ReminderKindOverdue7, all[2].Kind)
	assert.Equal(t, entity.ReminderKindOverdue14, all[3].Kind)

	late := billing.ReminderTimes(due, due.AddDate(0, 0, 1))
	require.Len(t, late, 2)
	assert.Equal(t, entity.ReminderKindOverdue7, late[0].Kind)
	assert.Equal(t, entity.ReminderKindOverdue14, late[1].Kind)
}

// A reminder falling exactly on "now" is not strictly in the future.
func TestReminderTimes_ExactNowExcluded(t *testing.T) {
	due := date(2024, time.June, 20)
	got := billing.ReminderTimes(due, due)
	require.Len(t, got, 2)
	assert.Equal(t, entity.ReminderKindOverdue7, got[0].Kind)
}
