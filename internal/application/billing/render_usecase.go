package billing

import (
	"context"
	"fmt"

	"github.com/kitabu/billing-api/internal/domain"
	"github.com/kitabu/billing-api/internal/domain/repository"
	"github.com/kitabu/billing-api/pkg/logger"
)

// renderRetries is how many times a failed render is redone on a fresh
// engine before the failure is surfaced to the caller.
const renderRetries = 2

// RenderUseCase produces the durable document for an invoice.
type RenderUseCase struct {
	invoiceRepo repository.InvoiceRepository
	renderer    DocumentRenderer
	store       DocumentStore
	issuer      IssuerProfile
	log         *logger.Logger
}

// NewRenderUseCase builds the use case.
func NewRenderUseCase(invoiceRepo repository.InvoiceRepository, renderer DocumentRenderer, store DocumentStore, issuer IssuerProfile, log *logger.Logger) *RenderUseCase {
	return &RenderUseCase{
		invoiceRepo: invoiceRepo,
		renderer:    renderer,
		store:       store,
		issuer:      issuer,
		log:         log,
	}
}

// Render builds the invoice document and writes it to durable storage.
// On a rendering failure the shared engine is disposed and the render is
// redone on a fresh one, up to renderRetries times; exhausting the retries
// surfaces a hard error rather than a partial document. The stored name is
// derived from the invoice number, so regeneration overwrites the same
// logical slot.
func (uc *RenderUseCase) Render(ctx context.Context, userID, invoiceID string) ([]byte, string, error) {
	inv, err := uc.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, "", err
	}
	if inv == nil {
		return nil, "", domain.ErrNotFound
	}
	if inv.UserID != userID {
		return nil, "", domain.ErrForbidden
	}
	items, err := uc.invoiceRepo.GetItems(ctx, inv.ID)
	if err != nil {
		return nil, "", err
	}

	var pdfBytes []byte
	for attempt := 0; ; attempt++ {
		pdfBytes, err = uc.renderer.Render(ctx, inv, items, uc.issuer.Info())
		if err == nil {
			break
		}
		if attempt >= renderRetries {
			return nil, "", fmt.Errorf("render invoice %s: retries exhausted: %w", inv.Number, err)
		}
		uc.log.Warn().
			Err(err).
			Str("invoice_number", inv.Number).
			Int("attempt", attempt+1).
			Msg("render failed, recycling engine")
		uc.renderer.Dispose()
	}

	path, err := uc.store.Put(ctx, inv.Number+".pdf", pdfBytes)
	if err != nil {
		return nil, "", fmt.Errorf("store document for %s: %w", inv.Number, err)
	}
	return pdfBytes, path, nil
}
