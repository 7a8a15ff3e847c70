// Package mail delivers payment reminder emails over SMTP.
package mail

import (
	"context"
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	gomail "gopkg.in/gomail.v2"

	appbilling "github.com/kitabu/billing-api/internal/application/billing"
	"github.com/kitabu/billing-api/internal/domain/entity"
	"github.com/kitabu/billing-api/pkg/config"
)

var _ appbilling.ReminderDispatcher = (*Dispatcher)(nil)

var amountPrinter = message.NewPrinter(language.English)

// Dispatcher implements billing.ReminderDispatcher with gomail. One SMTP
// dialer is shared; gomail opens a connection per send.
type Dispatcher struct {
	dialer *gomail.Dialer
	from   string
	issuer appbilling.IssuerProfile
}

func NewDispatcher(cfg config.SMTPConfig, issuer appbilling.IssuerProfile) *Dispatcher {
	return &Dispatcher{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		issuer: issuer,
	}
}

// SendReminder emails the invoice's client about the given reminder. The
// invoice must carry a client email; reminders for invoices without one fail
// and are retried until the attempt cap retires them.
func (d *Dispatcher) SendReminder(ctx context.Context, inv *entity.Invoice, r *entity.PaymentReminder) error {
	if inv.ClientEmail == "" {
		return fmt.Errorf("mail: invoice %s has no client email", inv.Number)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", d.from)
	m.SetHeader("To", inv.ClientEmail)
	m.SetHeader("Subject", subjectFor(r.Kind, inv))
	m.SetBody("text/plain", bodyFor(r.Kind, inv, d.issuer))

	if err := d.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("mail: send reminder: %w", err)
	}
	return nil
}

func subjectFor(kind entity.ReminderKind, inv *entity.Invoice) string {
	switch kind {
	case entity.ReminderKindUpcoming:
		return fmt.Sprintf("Invoice %s is due soon", inv.Number)
	case entity.ReminderKindDue:
		return fmt.Sprintf("Invoice %s is due today", inv.Number)
	default:
		return fmt.Sprintf("Invoice %s is overdue", inv.Number)
	}
}

func bodyFor(kind entity.ReminderKind, inv *entity.Invoice, issuer appbilling.IssuerProfile) string {
	amount := amountPrinter.Sprintf("%s %d.%02d", inv.Currency, inv.Total/100, inv.Total%100)
	due := inv.DueDate.Format("02 Jan 2006")

	var lead string
	switch kind {
	case entity.ReminderKindUpcoming:
		lead = fmt.Sprintf("This is a friendly reminder that invoice %s for %s is due on %s.", inv.Number, amount, due)
	case entity.ReminderKindDue:
		lead = fmt.Sprintf("Invoice %s for %s is due today, %s.", inv.Number, amount, due)
	case entity.ReminderKindOverdue7:
		lead = fmt.Sprintf("Invoice %s for %s was due on %s and is now overdue.", inv.Number, amount, due)
	default:
		lead = fmt.Sprintf("Invoice %s for %s was due on %s and remains unpaid. Please settle it as soon as possible.", inv.Number, amount, due)
	}

	return fmt.Sprintf(`Hello %s,

%s

You can view and pay the invoice here:
%s

Thank you,
%s`, inv.ClientName, lead, issuer.PortalLink(inv.AccessToken), issuer.Name)
}
