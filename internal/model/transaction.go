package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/valuation-engine/internal/month"
)

// Action is the kind of a transaction. The engine derives the sign of every cash effect from the
// action; quantities and prices are always stored as positive magnitudes.
type Action string

// Supported transaction actions.
const (
	ActionFund               Action = "fund"
	ActionWithdraw           Action = "withdraw"
	ActionBuy                Action = "buy"
	ActionSell               Action = "sell"
	ActionDividend           Action = "dividend" // interest when no equity is referenced
	ActionReinvestedDividend Action = "reinvested_dividend"
	ActionTransferIn         Action = "transfer_in"
	ActionTransferOut        Action = "transfer_out"
	ActionValue              Action = "value"
	ActionBalance            Action = "balance"
)

var actions = map[Action]bool{
	ActionFund: true, ActionWithdraw: true, ActionBuy: true, ActionSell: true,
	ActionDividend: true, ActionReinvestedDividend: true, ActionTransferIn: true,
	ActionTransferOut: true, ActionValue: true, ActionBalance: true,
}

// ParseAction parses an action name, case-insensitively.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !actions[a] {
		return "", fmt.Errorf("unknown transaction action %q", s)
	}
	return a, nil
}

// IsValid reports whether a is a known action.
func (a Action) IsValid() bool { return actions[a] }

// NeedsEquity reports whether the action only makes sense against a holding.
func (a Action) NeedsEquity() bool {
	return a == ActionBuy || a == ActionSell || a == ActionReinvestedDividend
}

// IsCashFlow reports whether the action moves money across the account boundary.
func (a Action) IsCashFlow() bool {
	switch a {
	case ActionFund, ActionWithdraw, ActionTransferIn, ActionTransferOut:
		return true
	}
	return false
}

// Transaction is an immutable ledger record.
type Transaction struct {
	ID        string          `json:"id"`
	AccountID string          `json:"accountId"`
	EquityID  string          `json:"equityId,omitempty"`
	Action    Action          `json:"action"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	// Proceeds is the cash received by a sell when it differs from Quantity*Price
	// (Price on a sell is the adjusted cost base per share).
	Proceeds decimal.NullDecimal `json:"proceeds,omitempty"`
	RealDate time.Time           `json:"realDate"`
	Date     month.Month         `json:"date"`
	// AppliedSplits lists split events already reflected in Quantity and Price.
	AppliedSplits []string  `json:"appliedSplits,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
}

// Amount is the gross amount of the transaction, Quantity*Price.
func (t Transaction) Amount() decimal.Decimal { return t.Quantity.Mul(t.Price) }

// SaleProceeds is the cash a sell brings in.
func (t Transaction) SaleProceeds() decimal.Decimal {
	if t.Proceeds.Valid {
		return t.Proceeds.Decimal
	}
	return t.Amount()
}

// HasAppliedSplit reports whether the split event is already reflected in the quantity.
func (t Transaction) HasAppliedSplit(eventID string) bool {
	for _, id := range t.AppliedSplits {
		if id == eventID {
			return true
		}
	}
	return false
}

// Normalize truncates RealDate to its day and derives Date from it.
func (t *Transaction) Normalize() {
	y, m, d := t.RealDate.UTC().Date()
	t.RealDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	t.Date = month.Normalize(t.RealDate)
}

// CashTransaction builds a cash-only transaction (fund, withdraw, transfers, value, balance,
// interest) for the given amount. The amount is carried as Quantity with a unit price.
func CashTransaction(accountID string, action Action, amount decimal.Decimal, realDate time.Time) Transaction {
	t := Transaction{
		AccountID: accountID,
		Action:    action,
		Quantity:  amount,
		Price:     decimal.NewFromInt(1),
		RealDate:  realDate,
	}
	t.Normalize()
	return t
}

// TradeTransaction builds an equity transaction.
func TradeTransaction(accountID, equityID string, action Action, quantity, price decimal.Decimal, realDate time.Time) Transaction {
	t := Transaction{
		AccountID: accountID,
		EquityID:  equityID,
		Action:    action,
		Quantity:  quantity,
		Price:     price,
		RealDate:  realDate,
	}
	t.Normalize()
	return t
}

// ImportResult reports the outcome of an import batch.
type ImportResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}
