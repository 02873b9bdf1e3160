package validation

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"

	"github.com/ndewijer/valuation-engine/internal/apperrors"
)

// Common validation errors
var (
	ErrInvalidUUID = fmt.Errorf("invalid UUID format")
)

// ValidateUUID checks if a string is a valid UUID
func ValidateUUID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidUUID, id)
	}
	return nil
}

// ValidateCurrency checks that code is a known ISO 4217 currency.
func ValidateCurrency(code string) error {
	if code == "" || strings.ToUpper(code) != code || money.GetCurrency(code) == nil {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidCurrency, code)
	}
	return nil
}

// Error collects field-level problems with an input. It matches apperrors.ErrValidationFailed.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, field := range slices.Sorted(maps.Keys(e.Fields)) {
		msgs = append(msgs, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return strings.Join(msgs, "; ")
}

func (e *Error) Unwrap() error { return apperrors.ErrValidationFailed }

// fields accumulates field errors, keeping the first message per field.
type fields map[string]string

func (f fields) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

func (f fields) err() error {
	if len(f) == 0 {
		return nil
	}
	return &Error{Fields: f}
}
