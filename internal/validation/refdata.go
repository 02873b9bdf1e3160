package validation

import (
	"fmt"
	"strings"

	"github.com/ndewijer/valuation-engine/internal/apperrors"
	"github.com/ndewijer/valuation-engine/internal/model"
)

// Reference data arrives from feeds rather than users, so malformed values are reported as
// apperrors.ErrConfiguration.

// ValidateEquityValue checks a price before it is upserted.
func ValidateEquityValue(v model.EquityValue) error {
	switch {
	case v.EquityID == "":
		return fmt.Errorf("%w: price without equity", apperrors.ErrConfiguration)
	case v.Date.IsZero():
		return fmt.Errorf("%w: price of %s without month", apperrors.ErrConfiguration, v.EquityID)
	case !v.Price.IsPositive():
		return fmt.Errorf("%w: price of %s at %s must be positive, got %s", apperrors.ErrConfiguration, v.EquityID, v.Date, v.Price)
	case !v.Source.IsValid():
		return fmt.Errorf("%w: unknown price source %d", apperrors.ErrConfiguration, int(v.Source))
	}
	return nil
}

// ValidateEquityEvent checks a corporate action before it is upserted.
func ValidateEquityEvent(e model.EquityEvent) error {
	switch {
	case e.EquityID == "":
		return fmt.Errorf("%w: event without equity", apperrors.ErrConfiguration)
	case e.Date.IsZero():
		return fmt.Errorf("%w: event of %s without month", apperrors.ErrConfiguration, e.EquityID)
	}

	switch e.Type {
	case model.EventDividend:
		if e.Value.IsNegative() {
			return fmt.Errorf("%w: dividend of %s at %s cannot be negative", apperrors.ErrConfiguration, e.EquityID, e.Date)
		}
	case model.EventSplit, model.EventSplitAdjustedDividends:
		if !e.Value.IsPositive() {
			return fmt.Errorf("%w: split factor of %s at %s must be positive, got %s", apperrors.ErrConfiguration, e.EquityID, e.Date, e.Value)
		}
	default:
		return fmt.Errorf("%w: unknown event type %q", apperrors.ErrConfiguration, e.Type)
	}
	return nil
}

// ValidateExchangeRate checks an exchange rate before it is upserted.
func ValidateExchangeRate(x model.ExchangeRate) error {
	if err := ValidateCurrency(x.From); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrConfiguration, err)
	}
	if err := ValidateCurrency(x.To); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrConfiguration, err)
	}
	if x.Date.IsZero() {
		return fmt.Errorf("%w: exchange rate %s/%s without month", apperrors.ErrConfiguration, x.From, x.To)
	}
	if !x.Rate.IsPositive() {
		return fmt.Errorf("%w: exchange rate %s/%s must be positive, got %s", apperrors.ErrConfiguration, x.From, x.To, x.Rate)
	}
	return nil
}

// ValidateInflationIndex checks an index level before it is upserted.
func ValidateInflationIndex(i model.InflationIndex) error {
	if strings.TrimSpace(i.Region) == "" {
		return fmt.Errorf("%w: inflation index without region", apperrors.ErrConfiguration)
	}
	if i.Date.IsZero() {
		return fmt.Errorf("%w: inflation index %s without month", apperrors.ErrConfiguration, i.Region)
	}
	if !i.Index.IsPositive() {
		return fmt.Errorf("%w: inflation index %s must be positive, got %s", apperrors.ErrConfiguration, i.Region, i.Index)
	}
	return nil
}
