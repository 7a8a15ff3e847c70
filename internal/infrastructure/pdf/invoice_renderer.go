// Package pdf renders the fixed-layout invoice document with Maroto v2.
//
// A4 page layout:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Business name        │  Invoice number + dates      │
//	│  ─────────────────────────────────────────────────────────  │
//	│  FROM: issuer contact block                                  │
//	│  BILL TO: client name + contact                              │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLE: Qty | Description | Unit rate | Amount               │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TOTALS: Subtotal / Tax / TOTAL DUE                          │
//	│  NOTES + payment instructions                                │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	appbilling "github.com/kitabu/billing-api/internal/application/billing"
	"github.com/kitabu/billing-api/internal/application/dto"
	"github.com/kitabu/billing-api/internal/domain/entity"
)

// ── Color palette ─────────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 16, Green: 86, Blue: 82}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

var amountPrinter = message.NewPrinter(language.English)

var _ appbilling.DocumentRenderer = (*InvoiceRenderer)(nil)

// InvoiceRenderer implements billing.DocumentRenderer on top of the engine
// pool. Render draws one document per call; Dispose invalidates the pool so
// a wedged engine is relaunched before the next attempt.
type InvoiceRenderer struct {
	pool *EnginePool
}

// NewInvoiceRenderer builds the renderer.
func NewInvoiceRenderer(pool *EnginePool) *InvoiceRenderer {
	return &InvoiceRenderer{pool: pool}
}

// Render produces the invoice PDF bytes.
func (r *InvoiceRenderer) Render(
	ctx context.Context,
	inv *entity.Invoice,
	items []*entity.InvoiceItem,
	issuer dto.IssuerInfo,
) ([]byte, error) {
	eng, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer r.pool.Release(eng)

	m := eng.newDocument()

	m.AddRows(headerRow(inv, issuer))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(issuerRow(issuer))
	m.AddRows(clientRow(inv))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(tableHeaderRow())
	for _, tr := range tableItemRows(items) {
		m.AddRows(tr)
	}

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalsRow(inv))

	if inv.Notes != "" {
		m.AddRows(notesRows(inv.Notes)...)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generate document: %w", err)
	}
	return doc.GetBytes(), nil
}

// Dispose discards the pooled engines. The next Render relaunches.
func (r *InvoiceRenderer) Dispose() {
	r.pool.Invalidate()
}

// ── Sections ──────────────────────────────────────────────────────────────────

// headerRow: business name (left), invoice number and dates (right).
func headerRow(inv *entity.Invoice, issuer dto.IssuerInfo) core.Row {
	return row.New(18).Add(
		col.New(7).Add(
			text.New(issuer.Name, props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("INVOICE", props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New(inv.Number, props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 1,
			}),
			text.New("Issued: "+inv.CreatedAt.Format("02 Jan 2006"), props.Text{
				Size: 8, Align: align.Right, Top: 8, Color: colorGray,
			}),
			text.New("Due: "+inv.DueDate.Format("02 Jan 2006"), props.Text{
				Size: 8, Align: align.Right, Top: 13, Color: colorGray,
			}),
		),
	)
}

// issuerRow: who the invoice is from.
func issuerRow(issuer dto.IssuerInfo) core.Row {
	return row.New(12).Add(
		col.New(12).Add(
			text.New("FROM", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(fmt.Sprintf("%s   |   %s   |   %s",
				nonEmpty(issuer.Address, "—"),
				nonEmpty(issuer.Phone, "—"),
				nonEmpty(issuer.Email, "—"),
			), props.Text{Size: 8, Top: 7, Color: colorGray}),
		),
	)
}

// clientRow: who the invoice is billed to.
func clientRow(inv *entity.Invoice) core.Row {
	return row.New(14).Add(
		col.New(12).Add(
			text.New("BILL TO", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(inv.ClientName, props.Text{
				Style: fontstyle.Bold, Size: 10, Top: 6,
			}),
			text.New(fmt.Sprintf("Email: %s   |   Phone: %s",
				nonEmpty(inv.ClientEmail, "—"),
				nonEmpty(inv.ClientPhone, "—"),
			), props.Text{Size: 8, Top: 12, Color: colorGray}),
		),
	)
}

// tableHeaderRow: line item table header.
func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorPrimary, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("Qty", 1, align.Center),
		h("Description", 6, align.Left),
		h("Unit rate", 2, align.Right),
		h("Amount", 3, align.Right),
	)
}

// tableItemRows: one row per billed line.
func tableItemRows(items []*entity.InvoiceItem) []core.Row {
	result := make([]core.Row, 0, len(items))
	for _, it := range items {
		result = append(result, row.New(7).Add(
			col.New(1).Add(text.New(
				fmt.Sprintf("%d", it.Quantity),
				props.Text{Size: 8, Align: align.Center, Top: 1},
			)),
			col.New(6).Add(text.New(
				it.Description,
				props.Text{Size: 8, Align: align.Left, Top: 1, Left: 1},
			)),
			col.New(2).Add(text.New(
				formatAmount(it.UnitRate),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
			col.New(3).Add(text.New(
				formatAmount(it.Amount),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
		))
	}
	return result
}

// totalsRow: subtotal, tax (only when a rate applies) and total due.
func totalsRow(inv *entity.Invoice) core.Row {
	label := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2,
		})
	}
	value := func(s string) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Right: 1})
	}
	grandLabel := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 10, Align: align.Right,
			Color: colorPrimary, Right: 2,
		})
	}
	grandValue := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 10, Align: align.Right,
			Color: colorPrimary, Right: 1,
		})
	}

	labels := []core.Component{label("Subtotal:")}
	values := []core.Component{value(inv.Currency + " " + formatAmount(inv.Subtotal))}
	if inv.TaxRate.IsPositive() {
		labels = append(labels, label(fmt.Sprintf("Tax (%s%%):", inv.TaxRate.String())))
		values = append(values, value(inv.Currency+" "+formatAmount(inv.TaxAmount)))
	}
	labels = append(labels, grandLabel("TOTAL DUE:"))
	values = append(values, grandValue(inv.Currency+" "+formatAmount(inv.Total)))

	return row.New(26).Add(
		col.New(4),
		col.New(4).Add(labels...),
		col.New(4).Add(values...),
	)
}

// notesRows: free-form payment instructions below the totals.
func notesRows(notes string) []core.Row {
	return []core.Row{
		row.New(3),
		row.New(6).Add(col.New(12).Add(
			text.New("NOTES", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
		)),
		row.New(10).Add(col.New(12).Add(
			text.New(notes, props.Text{Size: 8, Color: colorGray, Top: 1}),
		)),
	}
}

// ── helpers ───────────────────────────────────────────────────────────────────

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// formatAmount renders integer minor units as a grouped decimal string.
// Eg: 203000 → "2,030.00"
func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return amountPrinter.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
