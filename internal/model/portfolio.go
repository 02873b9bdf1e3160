package model

import (
	"fmt"
	"strings"

	"github.com/ndewijer/valuation-engine/internal/month"
)

// AccountKind selects how an account is valued.
type AccountKind string

// Account kinds.
const (
	// KindInvestment holds priced equities plus cash.
	KindInvestment AccountKind = "investment"
	// KindValue holds a single synthetic fund whose value is entered directly.
	KindValue AccountKind = "value"
	// KindCash never holds market value beyond its cash balance.
	KindCash AccountKind = "cash"
)

// ParseAccountKind parses an account kind name.
func ParseAccountKind(s string) (AccountKind, error) {
	k := AccountKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindInvestment, KindValue, KindCash:
		return k, nil
	}
	return "", fmt.Errorf("unknown account kind %q", s)
}

// IsValid reports whether k is a known kind.
func (k AccountKind) IsValid() bool {
	return k == KindInvestment || k == KindValue || k == KindCash
}

// Account owns an ordered transaction log.
type Account struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Currency    string      `json:"currency"`
	Kind        AccountKind `json:"kind"`
	Managed     bool        `json:"managed"`
	PortfolioID string      `json:"portfolioId,omitempty"`
	Start       month.Month `json:"start"`
	// End is set once the account is closed.
	End *month.Month `json:"end,omitempty"`
}

// IsClosed reports whether the account has been closed.
func (a Account) IsClosed() bool { return a.End != nil }

// OpenAt reports whether the account is open during m.
func (a Account) OpenAt(m month.Month) bool {
	if m.Before(a.Start) {
		return false
	}
	return a.End == nil || !m.After(*a.End)
}

// Portfolio is a named grouping of accounts. It has no transactions of its own.
type Portfolio struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}
