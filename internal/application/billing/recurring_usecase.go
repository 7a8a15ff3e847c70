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
	"github.com/kitabu/billing-api/pkg/logger"
)

// RecurringUseCase owns billing templates and turns them into invoices on
// their cadence.
type RecurringUseCase struct {
	txRunner     TxRunner
	templateRepo repository.RecurringTemplateRepository
	taxes        TaxPolicy
	issuer       IssuerProfile
	log          *logger.Logger
}

// NewRecurringUseCase builds the use case.
func NewRecurringUseCase(txRunner TxRunner, templateRepo repository.RecurringTemplateRepository, taxes TaxPolicy, issuer IssuerProfile, log *logger.Logger) *RecurringUseCase {
	return &RecurringUseCase{
		txRunner:     txRunner,
		templateRepo: templateRepo,
		taxes:        taxes,
		issuer:       issuer,
		log:          log,
	}
}

// CreateTemplate registers a new billing cadence. start_date becomes the
// first next_due_date.
func (uc *RecurringUseCase) CreateTemplate(ctx context.Context, userID string, in dto.CreateTemplateRequest) (*dto.TemplateResponse, error) {
	if in.ClientName == "" || in.Currency == "" || len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: client_name, currency and items are required", domain.ErrInvalidInput)
	}
	freq := entity.Frequency(in.Frequency)
	if !freq.Valid() {
		return nil, fmt.Errorf("%w: unknown frequency %q", domain.ErrInvalidInput, in.Frequency)
	}
	startDate, err := time.Parse("2006-01-02", in.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: start_date must be YYYY-MM-DD", domain.ErrInvalidInput)
	}
	var endDate *time.Time
	if in.EndDate != "" {
		parsed, err := time.Parse("2006-01-02", in.EndDate)
		if err != nil {
			return nil, fmt.Errorf("%w: end_date must be YYYY-MM-DD", domain.ErrInvalidInput)
		}
		if parsed.Before(startDate) {
			return nil, fmt.Errorf("%w: end_date is before start_date", domain.ErrInvalidInput)
		}
		endDate = &parsed
	}

	items := make([]entity.TemplateItem, 0, len(in.Items))
	lines := make([]domainbilling.LineInput, 0, len(in.Items))
	for _, it := range in.Items {
		items = append(items, entity.TemplateItem{Description: it.Description, Quantity: it.Quantity, UnitRate: it.UnitRate})
		lines = append(lines, domainbilling.LineInput{Description: it.Description, Quantity: it.Quantity, UnitRate: it.UnitRate})
	}
	// Validate the item template up front with the same rules as invoices.
	if _, err := domainbilling.Compute(lines, uc.taxes.Rate(in.Currency)); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tpl := &entity.RecurringTemplate{
		ID:          uuid.New().String(),
		UserID:      userID,
		ClientName:  in.ClientName,
		ClientEmail: in.ClientEmail,
		ClientPhone: in.ClientPhone,
		Items:       items,
		Currency:    in.Currency,
		Notes:       in.Notes,
		Frequency:   freq,
		NextDueDate: startDate,
		EndDate:     endDate,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.templateRepo.Create(ctx, tpl); err != nil {
		return nil, err
	}
	return toTemplateResponse(tpl), nil
}

// Generate runs one billing cycle for the template: a new SENT invoice due
// 30 days from now, with the template's schedule advanced in the same
// transaction. The conditional claim on next_due_date makes concurrent
// retries and the manual-vs-sweep race produce exactly one invoice.
//
// A manual trigger uses this same operation, so it advances the schedule
// (the next automatic cycle is consumed, not duplicated).
func (uc *RecurringUseCase) Generate(ctx context.Context, templateID string, now time.Time) (*entity.Invoice, error) {
	tpl, err := uc.templateRepo.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, domain.ErrNotFound
	}
	if !tpl.IsActive {
		return nil, domain.ErrTemplateInactive
	}
	if tpl.Expired(tpl.NextDueDate) {
		return nil, domain.ErrTemplateExpired
	}

	lines := make([]domainbilling.LineInput, 0, len(tpl.Items))
	for _, it := range tpl.Items {
		lines = append(lines, domainbilling.LineInput{Description: it.Description, Quantity: it.Quantity, UnitRate: it.UnitRate})
	}
	inv, items, err := buildInvoice(invoiceParams{
		userID:      tpl.UserID,
		clientName:  tpl.ClientName,
		clientEmail: tpl.ClientEmail,
		clientPhone: tpl.ClientPhone,
		currency:    tpl.Currency,
		items:       lines,
		dueDate:     now.AddDate(0, 0, defaultDueDays),
		notes:       tpl.Notes,
		status:      entity.InvoiceStatusSent,
		templateID:  tpl.ID,
	}, uc.taxes, now)
	if err != nil {
		return nil, err
	}

	nextDue := domainbilling.NextDueDate(tpl.NextDueDate, tpl.Frequency)

	for attempt := 0; attempt < numberAttempts; attempt++ {
		inv.Number = invoiceNumber(uc.issuer.InvoicePrefix, now)
		err = uc.txRunner.Run(ctx, func(
			invoiceRepo repository.InvoiceRepository,
			templateRepo repository.RecurringTemplateRepository,
			reminderRepo repository.PaymentReminderRepository,
		) error {
			claimed, err := templateRepo.ClaimAndAdvance(ctx, tpl.ID, tpl.NextDueDate, nextDue, now)
			if err != nil {
				return err
			}
			if !claimed {
				// Another generation (sweep or manual) won this cycle.
				return domain.ErrConflict
			}
			return persistNewInvoice(ctx, invoiceRepo, reminderRepo, inv, items, now)
		})
		if !errors.Is(err, domain.ErrDuplicate) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// GenerateManually is the user-triggered entry point; it checks ownership
// and returns the portal link of the new invoice.
func (uc *RecurringUseCase) GenerateManually(ctx context.Context, userID, templateID string) (*dto.GenerateResponse, error) {
	tpl, err := uc.templateRepo.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, domain.ErrNotFound
	}
	if tpl.UserID != userID {
		return nil, domain.ErrForbidden
	}
	inv, err := uc.Generate(ctx, templateID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return &dto.GenerateResponse{
		InvoiceNumber: inv.Number,
		PortalLink:    uc.issuer.PortalLink(inv.AccessToken),
	}, nil
}

// SweepFailure records one template that failed during a sweep.
type SweepFailure struct {
	TemplateID string
	Err        error
}

// SweepReport summarizes one ProcessDue pass.
type SweepReport struct {
	Generated int
	Failures  []SweepFailure
}

// ProcessDue generates invoices for every active template whose
// next_due_date has arrived. A failure on one template never aborts the
// sweep; failures are logged per template and reported. Running the sweep
// twice without a clock advance generates nothing the second time, because
// each generation advances next_due_date atomically.
func (uc *RecurringUseCase) ProcessDue(ctx context.Context, now time.Time) (*SweepReport, error) {
	due, err := uc.templateRepo.ListDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list due templates: %w", err)
	}

	report := &SweepReport{}
	for _, tpl := range due {
		inv, err := uc.Generate(ctx, tpl.ID, now)
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				// Lost the claim to a concurrent generation: the cycle is
				// covered, nothing to record.
				continue
			}
			uc.log.Error().
				Err(err).
				Str("template_id", tpl.ID).
				Msg("recurring sweep: generation failed")
			report.Failures = append(report.Failures, SweepFailure{TemplateID: tpl.ID, Err: err})
			continue
		}
		report.Generated++
		uc.log.Info().
			Str("template_id", tpl.ID).
			Str("invoice_number", inv.Number).
			Msg("recurring sweep: invoice generated")
	}
	return report, nil
}

// ListTemplates returns the user's templates.
func (uc *RecurringUseCase) ListTemplates(ctx context.Context, userID string) ([]dto.TemplateResponse, error) {
	templates, err := uc.templateRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.TemplateResponse, 0, len(templates))
	for _, tpl := range templates {
		out = append(out, *toTemplateResponse(tpl))
	}
	return out, nil
}

// Deactivate soft-disables a template; it stops generating but is kept.
func (uc *RecurringUseCase) Deactivate(ctx context.Context, userID, templateID string) error {
	tpl, err := uc.templateRepo.GetByID(ctx, templateID)
	if err != nil {
		return err
	}
	if tpl == nil {
		return domain.ErrNotFound
	}
	if tpl.UserID != userID {
		return domain.ErrForbidden
	}
	if _, err := uc.templateRepo.Deactivate(ctx, templateID); err != nil {
		return err
	}
	return nil
}

func toTemplateResponse(tpl *entity.RecurringTemplate) *dto.TemplateResponse {
	items := make([]dto.InvoiceItemRequest, 0, len(tpl.Items))
	for _, it := range tpl.Items {
		items = append(items, dto.InvoiceItemRequest{Description: it.Description, Quantity: it.Quantity, UnitRate: it.UnitRate})
	}
	resp := &dto.TemplateResponse{
		ID:             tpl.ID,
		ClientName:     tpl.ClientName,
		Currency:       tpl.Currency,
		Items:          items,
		Frequency:      string(tpl.Frequency),
		NextDueDate:    tpl.NextDueDate.Format("2006-01-02"),
		IsActive:       tpl.IsActive,
		TotalGenerated: tpl.TotalGenerated,
	}
	if tpl.EndDate != nil {
		resp.EndDate = tpl.EndDate.Format("2006-01-02")
	}
	if tpl.LastGeneratedAt != nil {
		resp.LastGeneratedAt = tpl.LastGeneratedAt.Format(time.RFC3339)
	}
	return resp
}
