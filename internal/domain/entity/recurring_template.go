package entity

import "time"

// Frequency is the billing cadence of a recurring template.
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiweekly  Frequency = "biweekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// Valid reports whether f is one of the known cadences.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// TemplateItem is one line of the item template. Same shape as an invoice
// line; copied verbatim onto every generated invoice.
type TemplateItem struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitRate    int64  `json:"unit_rate"`
}

// RecurringTemplate spawns invoices on a cadence. NextDueDate is advanced
// only by the generation operation and is monotonically non-decreasing.
type RecurringTemplate struct {
	ID     string
	UserID string

	ClientName  string
	ClientEmail string
	ClientPhone string

	Items    []TemplateItem
	Currency string
	Notes    string

	Frequency   Frequency
	NextDueDate time.Time
	EndDate     *time.Time
	IsActive    bool

	TotalGenerated  int
	LastGeneratedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether due has moved past the template's end date.
func (t *RecurringTemplate) Expired(due time.Time) bool {
	return t.EndDate != nil && due.After(*t.EndDate)
}
