package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kitabu/billing-api/internal/application/dto"
	"github.com/kitabu/billing-api/internal/domain"
	domainbilling "github.com/kitabu/billing-api/internal/domain/billing"
	"github.com/kitabu/billing-api/internal/domain/entity"
	"github.com/kitabu/billing-api/internal/domain/repository"
	"github.com/kitabu/billing-api/pkg/token"
)

const (
	// defaultDueDays is how far in the future a new invoice is due.
	defaultDueDays = 30
	// numberAttempts bounds the retry loop on invoice-number collisions.
	numberAttempts = 5
)

// InvoiceUseCase owns the invoice lifecycle: creation, settlement,
// cancellation and public portal access.
type InvoiceUseCase struct {
	txRunner    TxRunner
	invoiceRepo repository.InvoiceRepository
	taxes       TaxPolicy
	issuer      IssuerProfile
}

// NewInvoiceUseCase builds the use case.
func NewInvoiceUseCase(txRunner TxRunner, invoiceRepo repository.InvoiceRepository, taxes TaxPolicy, issuer IssuerProfile) *InvoiceUseCase {
	return &InvoiceUseCase{
		txRunner:    txRunner,
		invoiceRepo: invoiceRepo,
		taxes:       taxes,
		issuer:      issuer,
	}
}

// invoiceParams is everything needed to build a new invoice entity.
type invoiceParams struct {
	userID      string
	clientName  string
	clientEmail string
	clientPhone string
	currency    string
	items       []domainbilling.LineInput
	dueDate     time.Time
	notes       string
	status      entity.InvoiceStatus
	templateID  string
}

// buildInvoice computes amounts per the rounding rule and assembles the
// entity plus its lines. The invoice number is assigned by the caller (it is
// retried on collision).
func buildInvoice(p invoiceParams, taxes TaxPolicy, now time.Time) (*entity.Invoice, []*entity.InvoiceItem, error) {
	if p.clientName == "" {
		return nil, nil, fmt.Errorf("%w: client name is required", domain.ErrInvalidInput)
	}
	if p.currency == "" {
		return nil, nil, fmt.Errorf("%w: currency is required", domain.ErrInvalidInput)
	}
	rate := taxes.Rate(p.currency)
	amounts, err := domainbilling.Compute(p.items, rate)
	if err != nil {
		return nil, nil, err
	}

	accessToken, err := token.New()
	if err != nil {
		return nil, nil, fmt.Errorf("generate access token: %w", err)
	}

	inv := &entity.Invoice{
		ID:                  uuid.New().String(),
		UserID:              p.userID,
		AccessToken:         accessToken,
		ClientName:          p.clientName,
		ClientEmail:         p.clientEmail,
		ClientPhone:         p.clientPhone,
		Currency:            p.currency,
		Subtotal:            amounts.Subtotal,
		TaxRate:             rate,
		TaxAmount:           amounts.TaxAmount,
		Total:               amounts.Total,
		Status:              p.status,
		DueDate:             p.dueDate,
		Notes:               p.notes,
		RecurringTemplateID: p.templateID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	items := make([]*entity.InvoiceItem, 0, len(p.items))
	for i, l := range p.items {
		items = append(items, &entity.InvoiceItem{
			ID:          uuid.New().String(),
			InvoiceID:   inv.ID,
			Position:    i + 1,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitRate:    l.UnitRate,
			Amount:      domainbilling.LineAmount(l),
		})
	}
	return inv, items, nil
}

// invoiceNumber produces PREFIX-YYYY-MM-XXXX. The 4-digit tail is random;
// uniqueness is enforced by the database and collisions are retried.
func invoiceNumber(prefix string, at time.Time) string {
	return fmt.Sprintf("%s-%d-%02d-%04d", prefix, at.Year(), int(at.Month()), token.Digits4())
}

// persistNewInvoice writes the invoice, its lines and, for published
// invoices, the future reminder slots, all on the caller's transaction.
func persistNewInvoice(
	ctx context.Context,
	invoiceRepo repository.InvoiceRepository,
	reminderRepo repository.PaymentReminderRepository,
	inv *entity.Invoice,
	items []*entity.InvoiceItem,
	now time.Time,
) error {
	if err := invoiceRepo.Create(ctx, inv); err != nil {
		return err
	}
	for _, it := range items {
		if err := invoiceRepo.CreateItem(ctx, it); err != nil {
			return err
		}
	}
	if inv.Status != entity.InvoiceStatusSent {
		return nil
	}
	for _, rt := range domainbilling.ReminderTimes(inv.DueDate, now) {
		r := &entity.PaymentReminder{
			ID:           uuid.New().String(),
			InvoiceID:    inv.ID,
			Kind:         rt.Kind,
			ScheduledFor: rt.ScheduledFor,
			Status:       entity.ReminderStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := reminderRepo.Create(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// Create makes an ad hoc invoice for the authenticated user.
func (uc *InvoiceUseCase) Create(ctx context.Context, userID string, in dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error) {
	now := time.Now().UTC()

	dueDate := now.AddDate(0, 0, defaultDueDays)
	if in.DueDate != "" {
		parsed, err := time.Parse("2006-01-02", in.DueDate)
		if err != nil {
			return nil, fmt.Errorf("%w: due_date must be YYYY-MM-DD", domain.ErrInvalidInput)
		}
		dueDate = parsed
	}

	status := entity.InvoiceStatusSent
	if in.Publish != nil && !*in.Publish {
		status = entity.InvoiceStatusDraft
	}

	lines := make([]domainbilling.LineInput, 0, len(in.Items))
	for _, it := range in.Items {
		lines = append(lines, domainbilling.LineInput{Description: it.Description, Quantity: it.Quantity, UnitRate: it.UnitRate})
	}

	inv, items, err := buildInvoice(invoiceParams{
		userID:      userID,
		clientName:  in.ClientName,
		clientEmail: in.ClientEmail,
		clientPhone: in.ClientPhone,
		currency:    in.Currency,
		items:       lines,
		dueDate:     dueDate,
		notes:       in.Notes,
		status:      status,
	}, uc.taxes, now)
	if err != nil {
		return nil, err
	}

	// The number's random tail can collide with an existing invoice of the
	// same month; the unique index reports it and the insert is redone with
	// a fresh number.
	for attempt := 0; attempt < numberAttempts; attempt++ {
		inv.Number = invoiceNumber(uc.issuer.InvoicePrefix, now)
		err = uc.txRunner.Run(ctx, func(
			invoiceRepo repository.InvoiceRepository,
			_ repository.RecurringTemplateRepository,
			reminderRepo repository.PaymentReminderRepository,
		) error {
			return persistNewInvoice(ctx, invoiceRepo, reminderRepo, inv, items, now)
		})
		if !errors.Is(err, domain.ErrDuplicate) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return uc.toResponse(inv, items), nil
}

// MarkPaid settles an invoice. Only the payment reconciliation gateway calls
// this; no user-facing endpoint is routed to it. Marking an already-PAID
// invoice again returns nil (idempotent no-op); DRAFT or CANCELLED is
// ErrInvalidState. Pending reminders are cancelled in the same transaction.
func (uc *InvoiceUseCase) MarkPaid(ctx context.Context, invoiceID, method, externalRef string) error {
	now := time.Now().UTC()
	return uc.txRunner.Run(ctx, func(
		invoiceRepo repository.InvoiceRepository,
		_ repository.RecurringTemplateRepository,
		reminderRepo repository.PaymentReminderRepository,
	) error {
		updated, err := invoiceRepo.MarkPaid(ctx, invoiceID, method, externalRef, now)
		if err != nil {
			return err
		}
		if !updated {
			inv, err := invoiceRepo.GetByID(ctx, invoiceID)
			if err != nil {
				return err
			}
			if inv == nil {
				return domain.ErrNotFound
			}
			if inv.Status == entity.InvoiceStatusPaid {
				// Duplicate settlement notification; reminders are already
				// cancelled, nothing to redo.
				return nil
			}
			return fmt.Errorf("%w: invoice %s is %s", domain.ErrInvalidState, inv.Number, inv.Status)
		}
		if _, err := reminderRepo.CancelAllPending(ctx, invoiceID); err != nil {
			return err
		}
		return nil
	})
}

// Cancel voids a non-terminal invoice and cancels its pending reminders.
func (uc *InvoiceUseCase) Cancel(ctx context.Context, userID, invoiceID string) error {
	return uc.txRunner.Run(ctx, func(
		invoiceRepo repository.InvoiceRepository,
		_ repository.RecurringTemplateRepository,
		reminderRepo repository.PaymentReminderRepository,
	) error {
		inv, err := invoiceRepo.GetByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrNotFound
		}
		if inv.UserID != userID {
			return domain.ErrForbidden
		}
		if inv.Status == entity.InvoiceStatusCancelled {
			return nil
		}
		updated, err := invoiceRepo.Cancel(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !updated {
			return fmt.Errorf("%w: invoice %s is %s", domain.ErrInvalidState, inv.Number, inv.Status)
		}
		if _, err := reminderRepo.CancelAllPending(ctx, invoiceID); err != nil {
			return err
		}
		return nil
	})
}

// ViewByToken serves the public portal. The token is the sole authorization;
// an unknown token is an authorization failure, not a not-found, so the
// endpoint leaks nothing about which tokens exist.
func (uc *InvoiceUseCase) ViewByToken(ctx context.Context, accessToken string) (*dto.PortalInvoiceResponse, error) {
	if accessToken == "" {
		return nil, domain.ErrUnauthorized
	}
	inv, err := uc.invoiceRepo.GetByToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrUnauthorized
	}
	if err := uc.invoiceRepo.RecordView(ctx, inv.ID, time.Now().UTC()); err != nil {
		return nil, err
	}
	items, err := uc.invoiceRepo.GetItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}

	resp := &dto.PortalInvoiceResponse{
		Number:     inv.Number,
		Issuer:     uc.issuer.Info(),
		ClientName: inv.ClientName,
		Currency:   inv.Currency,
		Subtotal:   inv.Subtotal,
		TaxRate:    inv.TaxRate,
		TaxAmount:  inv.TaxAmount,
		Total:      inv.Total,
		Status:     string(inv.Status),
		DueDate:    inv.DueDate.Format("2006-01-02"),
		Notes:      inv.Notes,
		Items:      itemResponses(items),
	}
	return resp, nil
}

// GetByID returns the full invoice for its owner.
func (uc *InvoiceUseCase) GetByID(ctx context.Context, userID, invoiceID string) (*dto.InvoiceResponse, error) {
	inv, err := uc.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	if inv.UserID != userID {
		return nil, domain.ErrForbidden
	}
	items, err := uc.invoiceRepo.GetItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	return uc.toResponse(inv, items), nil
}

// List returns all invoices owned by the user.
func (uc *InvoiceUseCase) List(ctx context.Context, userID string) ([]dto.InvoiceResponse, error) {
	invoices, err := uc.invoiceRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, *uc.toResponse(inv, nil))
	}
	return out, nil
}

func itemResponses(items []*entity.InvoiceItem) []dto.InvoiceItemResponse {
	out := make([]dto.InvoiceItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, dto.InvoiceItemResponse{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitRate:    it.UnitRate,
			Amount:      it.Amount,
		})
	}
	return out
}

func (uc *InvoiceUseCase) toResponse(inv *entity.Invoice, items []*entity.InvoiceItem) *dto.InvoiceResponse {
	resp := &dto.InvoiceResponse{
		ID:          inv.ID,
		Number:      inv.Number,
		ClientName:  inv.ClientName,
		ClientEmail: inv.ClientEmail,
		Currency:    inv.Currency,
		Subtotal:    inv.Subtotal,
		TaxRate:     inv.TaxRate,
		TaxAmount:   inv.TaxAmount,
		Total:       inv.Total,
		Status:      string(inv.Status),
		DueDate:     inv.DueDate.Format("2006-01-02"),
		Notes:       inv.Notes,
		PortalLink:  uc.issuer.PortalLink(inv.AccessToken),
		Items:       itemResponses(items),
	}
	if inv.PaidAt != nil {
		resp.PaidAt = inv.PaidAt.Format(time.RFC3339)
	}
	return resp
}
