package domain

import "errors"

// Domain errors (no external dependencies).
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDuplicate    = errors.New("duplicate resource")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("access denied")
	ErrConflict     = errors.New("conflict with current state")

	// Billing lifecycle.
	ErrInvalidState        = errors.New("invalid state for this operation")
	ErrAlreadySettled      = errors.New("invoice already settled")
	ErrTemplateInactive    = errors.New("recurring template is inactive")
	ErrTemplateExpired     = errors.New("recurring template end date has passed")
	ErrUnsupportedCurrency = errors.New("currency not supported by this payment rail")

	// ErrUnauthentic marks a webhook whose signature did not verify.
	// No invoice lookup happens after this error.
	ErrUnauthentic = errors.New("payload authenticity check failed")
)
