package apperrors

import (
	"errors"
	"fmt"
)

// Engine error taxonomy. Callers classify failures with errors.Is against these values.
var (
	// ErrNotFound indicates required reference data is missing and no estimate can be derived.
	ErrNotFound = errors.New("not found")

	// ErrInvalidLedger indicates the transaction log cannot be replayed (e.g. negative shares).
	// It means the log is corrupt or incomplete and is never recovered silently.
	ErrInvalidLedger = errors.New("invalid ledger")

	// ErrValidationFailed indicates a close/transfer precondition was violated.
	// The concrete value is a *ValidationError carrying a reason for display.
	ErrValidationFailed = errors.New("validation failed")

	// ErrConfiguration indicates malformed reference data, such as an unparseable corporate action.
	ErrConfiguration = errors.New("configuration error")
)

// Domain entity errors represent missing entities. They all match ErrNotFound.
var (
	// ErrAccountNotFound indicates that an account with the given ID does not exist.
	ErrAccountNotFound = fmt.Errorf("account %w", ErrNotFound)

	// ErrPortfolioNotFound indicates that a portfolio with the given ID does not exist.
	ErrPortfolioNotFound = fmt.Errorf("portfolio %w", ErrNotFound)

	// ErrEquityNotFound indicates that an equity with the given ID does not exist.
	ErrEquityNotFound = fmt.Errorf("equity %w", ErrNotFound)

	// ErrTransactionNotFound indicates that a transaction with the given ID does not exist.
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)

	// ErrPriceNotFound indicates a holding with shares has no price observation at all.
	ErrPriceNotFound = fmt.Errorf("equity price %w", ErrNotFound)

	ErrExchangeRateNotFound = fmt.Errorf("exchange rate %w", ErrNotFound)
	ErrInflationNotFound    = fmt.Errorf("inflation index %w", ErrNotFound)
)

// Ledger errors. All of them match ErrInvalidLedger.
var (
	// ErrInsufficientShares indicates a sell exceeding the shares held at that point of the replay.
	ErrInsufficientShares = fmt.Errorf("%w: insufficient shares for sale", ErrInvalidLedger)

	// ErrUnsupportedAction indicates an action that the account kind cannot hold.
	ErrUnsupportedAction = fmt.Errorf("%w: action not supported by account kind", ErrInvalidLedger)

	// ErrAccountClosed indicates a write dated after the account was closed.
	ErrAccountClosed = fmt.Errorf("%w: account is closed", ErrInvalidLedger)
)

// Input errors.
var (
	// ErrDuplicateEntry indicates that an identical transaction already exists.
	ErrDuplicateEntry = errors.New("duplicate entry")

	// ErrMissingRequiredField indicates that a required field is missing or empty.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrNegativeAmount indicates a magnitude that must be positive is not.
	ErrNegativeAmount = errors.New("amount must be positive")

	ErrInvalidCurrency = errors.New("invalid currency code")
)

// ValidationError is returned when a lifecycle precondition fails. Reason is meant to be shown to
// the user as is.
type ValidationError struct {
	Reason string
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string { return e.Reason }

// Unwrap lets errors.Is(err, ErrValidationFailed) match.
func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// Reason extracts the user-facing reason of a validation failure. It returns "" when err is not a
// validation failure.
func Reason(err error) string {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Reason
	}
	return ""
}
