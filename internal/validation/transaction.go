package validation

import (
	"fmt"
	"strings"

	"github.com/ndewijer/valuation-engine/internal/model"
)

// ValidateTransaction checks a transaction before it is written to the log.
//
// Rules:
//   - accountId: valid UUID
//   - action: a known action
//   - equityId: required for buy, sell and reinvested_dividend; forbidden for fund, withdraw,
//     transfers, value and balance; optional for dividend (interest when absent)
//   - quantity: positive; value and balance entries may be zero
//   - price: positive
//   - proceeds: sell only, not negative
//   - realDate: set
func ValidateTransaction(t model.Transaction) error {
	errs := fields{}

	if err := ValidateUUID(t.AccountID); err != nil {
		errs.add("accountId", err.Error())
	}

	if !t.Action.IsValid() {
		errs.add("action", fmt.Sprintf("invalid action: %s", t.Action))
	}

	switch {
	case t.Action.NeedsEquity() && strings.TrimSpace(t.EquityID) == "":
		errs.add("equityId", fmt.Sprintf("equityId is required for %s", t.Action))
	case t.EquityID != "" && t.Action != model.ActionDividend && !t.Action.NeedsEquity():
		errs.add("equityId", fmt.Sprintf("%s cannot reference an equity", t.Action))
	case t.EquityID != "":
		if err := ValidateUUID(t.EquityID); err != nil {
			errs.add("equityId", err.Error())
		}
	}

	switch t.Action {
	case model.ActionValue, model.ActionBalance:
		if t.Quantity.IsNegative() {
			errs.add("quantity", "quantity cannot be negative")
		}
	default:
		if !t.Quantity.IsPositive() {
			errs.add("quantity", "quantity must be positive")
		}
	}

	if !t.Price.IsPositive() {
		errs.add("price", "price must be positive")
	}

	if t.Proceeds.Valid {
		if t.Action != model.ActionSell {
			errs.add("proceeds", "proceeds only apply to sell")
		} else if t.Proceeds.Decimal.IsNegative() {
			errs.add("proceeds", "proceeds cannot be negative")
		}
	}

	if len(t.AppliedSplits) > 0 && t.EquityID == "" {
		errs.add("appliedSplits", "applied splits require an equity")
	}

	if t.RealDate.IsZero() {
		errs.add("realDate", "realDate is required")
	}

	return errs.err()
}
