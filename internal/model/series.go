package model

import (
	"github.com/shopspring/decimal"

	"github.com/ndewijer/valuation-engine/internal/month"
)

// HoldingRow is the state of one equity inside one account at the end of a month.
type HoldingRow struct {
	Date        month.Month     `json:"date"`
	Shares      decimal.Decimal `json:"shares"`
	Cost        decimal.Decimal `json:"cost"`      // cost basis of the shares held
	Dividends   decimal.Decimal `json:"dividends"` // cumulative
	Price       decimal.Decimal `json:"price"`
	PriceSource Source          `json:"priceSource,omitempty"`
	Value       decimal.Decimal `json:"value"`
	Growth      decimal.Decimal `json:"growth"`  // Value - Cost
	Returns     decimal.Decimal `json:"returns"` // Value + Dividends - Cost
	CashFlow    decimal.Decimal `json:"cashFlow"`
	Realized    decimal.Decimal `json:"realized"` // cumulative sale proceeds above cost basis
}

// AccountRow is the monthly account-level ledger.
type AccountRow struct {
	Date     month.Month     `json:"date"`
	Funds    decimal.Decimal `json:"funds"`
	Redeemed decimal.Decimal `json:"redeemed"` // stored negative
	TransIn  decimal.Decimal `json:"transIn"`
	TransOut decimal.Decimal `json:"transOut"` // stored negative
	Cash     decimal.Decimal `json:"cash"`
	// Cost counts transfers as basis movement: Funds + Redeemed + TransIn + TransOut.
	Cost decimal.Decimal `json:"cost"`
	// BaseCost is the portfolio-level basis: Funds + Redeemed.
	BaseCost decimal.Decimal `json:"baseCost"`
	// Value is the market value held beyond cash.
	Value decimal.Decimal `json:"value"`
	// Actual is the total wealth the account represents: Cash + Value.
	Actual    decimal.Decimal `json:"actual"`
	Growth    decimal.Decimal `json:"growth"`
	Dividends decimal.Decimal `json:"dividends"`
}

// Add returns the column-wise sum of r and o, keeping r's date.
func (r AccountRow) Add(o AccountRow) AccountRow {
	return AccountRow{
		Date:      r.Date,
		Funds:     r.Funds.Add(o.Funds),
		Redeemed:  r.Redeemed.Add(o.Redeemed),
		TransIn:   r.TransIn.Add(o.TransIn),
		TransOut:  r.TransOut.Add(o.TransOut),
		Cash:      r.Cash.Add(o.Cash),
		Cost:      r.Cost.Add(o.Cost),
		BaseCost:  r.BaseCost.Add(o.BaseCost),
		Value:     r.Value.Add(o.Value),
		Actual:    r.Actual.Add(o.Actual),
		Growth:    r.Growth.Add(o.Growth),
		Dividends: r.Dividends.Add(o.Dividends),
	}
}

// Scale multiplies every amount by f, e.g. to convert currencies.
func (r AccountRow) Scale(f decimal.Decimal) AccountRow {
	return AccountRow{
		Date:      r.Date,
		Funds:     r.Funds.Mul(f),
		Redeemed:  r.Redeemed.Mul(f),
		TransIn:   r.TransIn.Mul(f),
		TransOut:  r.TransOut.Mul(f),
		Cash:      r.Cash.Mul(f),
		Cost:      r.Cost.Mul(f),
		BaseCost:  r.BaseCost.Mul(f),
		Value:     r.Value.Mul(f),
		Actual:    r.Actual.Mul(f),
		Growth:    r.Growth.Mul(f),
		Dividends: r.Dividends.Mul(f),
	}
}

// AccountSeries is an account's rows, one per month, in order.
type AccountSeries struct {
	AccountID string       `json:"accountId"`
	Currency  string       `json:"currency"`
	Rows      []AccountRow `json:"rows"`
}

// At returns the row for m.
func (s AccountSeries) At(m month.Month) (AccountRow, bool) {
	if len(s.Rows) == 0 {
		return AccountRow{}, false
	}
	i := month.Span(s.Rows[0].Date, m)
	if i < 0 || i >= len(s.Rows) {
		return AccountRow{}, false
	}
	return s.Rows[i], true
}

// Last returns the final row of the series.
func (s AccountSeries) Last() (AccountRow, bool) {
	if len(s.Rows) == 0 {
		return AccountRow{}, false
	}
	return s.Rows[len(s.Rows)-1], true
}

// PortfolioRow is the column-wise sum of the open member accounts for a month.
type PortfolioRow struct {
	AccountRow
	ActiveAccounts int `json:"activeAccounts"`
}

// PortfolioSeries is a portfolio's rows expressed in the portfolio currency.
type PortfolioSeries struct {
	PortfolioID string         `json:"portfolioId"`
	Currency    string         `json:"currency"`
	Rows        []PortfolioRow `json:"rows"`
}
