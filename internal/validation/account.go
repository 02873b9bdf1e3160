package validation

import (
	"strings"

	"github.com/ndewijer/valuation-engine/internal/model"
)

// ValidateAccount checks a new account.
func ValidateAccount(a model.Account) error {
	errs := fields{}

	if err := ValidateUUID(a.ID); err != nil {
		errs.add("id", err.Error())
	}
	if strings.TrimSpace(a.Name) == "" {
		errs.add("name", "name is required")
	} else if len(a.Name) > 100 {
		errs.add("name", "name must be 100 characters or less")
	}
	if err := ValidateCurrency(a.Currency); err != nil {
		errs.add("currency", err.Error())
	}
	if !a.Kind.IsValid() {
		errs.add("kind", "kind must be one of investment, value, cash")
	}
	if a.PortfolioID != "" {
		if err := ValidateUUID(a.PortfolioID); err != nil {
			errs.add("portfolioId", err.Error())
		}
	}
	if a.Start.IsZero() {
		errs.add("start", "start is required")
	}
	if a.End != nil {
		errs.add("end", "new accounts cannot be closed")
	}

	return errs.err()
}

// ValidatePortfolio checks a new portfolio.
func ValidatePortfolio(p model.Portfolio) error {
	errs := fields{}

	if err := ValidateUUID(p.ID); err != nil {
		errs.add("id", err.Error())
	}
	if strings.TrimSpace(p.Name) == "" {
		errs.add("name", "name is required")
	} else if len(p.Name) > 100 {
		errs.add("name", "name must be 100 characters or less")
	}
	if err := ValidateCurrency(p.Currency); err != nil {
		errs.add("currency", err.Error())
	}

	return errs.err()
}

// ValidateEquity checks a new equity.
func ValidateEquity(e model.Equity) error {
	errs := fields{}

	if err := ValidateUUID(e.ID); err != nil {
		errs.add("id", err.Error())
	}
	if strings.TrimSpace(e.Symbol) == "" {
		errs.add("symbol", "symbol is required")
	} else if len(e.Symbol) > 20 {
		errs.add("symbol", "symbol must be 20 characters or less")
	}
	if strings.TrimSpace(e.Name) == "" {
		errs.add("name", "name is required")
	}
	if err := ValidateCurrency(e.Currency); err != nil {
		errs.add("currency", err.Error())
	}

	return errs.err()
}
