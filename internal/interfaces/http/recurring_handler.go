package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/kitabu/billing-api/internal/application/billing"
	"github.com/kitabu/billing-api/internal/application/dto"
	"github.com/kitabu/billing-api/internal/domain"
)

// RecurringHandler handles the authenticated recurring template endpoints.
type RecurringHandler struct {
	uc *billing.RecurringUseCase
}

// NewRecurringHandler builds the handler.
func NewRecurringHandler(uc *billing.RecurringUseCase) *RecurringHandler {
	return &RecurringHandler{uc: uc}
}

// Create registers a recurring template.
// POST /api/recurring-templates
func (h *RecurringHandler) Create(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "invalid token"})
	}
	var in dto.CreateTemplateRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "invalid request body"})
	}
	tpl, err := h.uc.CreateTemplate(c.Context(), userID, in)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(tpl)
}

// List returns the caller's templates.
// GET /api/recurring-templates
func (h *RecurringHandler) List(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "invalid token"})
	}
	templates, err := h.uc.ListTemplates(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(templates)
}

// Generate triggers one off-schedule generation from the template.
// POST /api/recurring-templates/:id/generate
func (h *RecurringHandler) Generate(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "invalid token"})
	}
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id required"})
	}
	out, err := h.uc.GenerateManually(c.Context(), userID, id)
	if err != nil {
		return templateError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// Deactivate disables future generation from the template.
// POST /api/recurring-templates/:id/deactivate
func (h *RecurringHandler) Deactivate(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "invalid token"})
	}
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id required"})
	}
	if err := h.uc.Deactivate(c.Context(), userID, id); err != nil {
		return templateError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// templateError maps the shared template error cases.
func templateError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "template not found"})
	case errors.Is(err, domain.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "access denied"})
	case errors.Is(err, domain.ErrTemplateInactive):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "TEMPLATE_INACTIVE", Message: "template is deactivated"})
	case errors.Is(err, domain.ErrTemplateExpired):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "TEMPLATE_EXPIRED", Message: "template end date has passed"})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: "concurrent generation in progress"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
