package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/valuation-engine/internal/model"
	"github.com/ndewijer/valuation-engine/internal/month"
	"github.com/ndewijer/valuation-engine/internal/repository"
)

// PortfolioBuilder provides a fluent interface for creating test portfolios.
//
// Example usage:
//
//	// Simple creation with defaults
//	portfolio := testutil.NewPortfolio().Build(t, db)
//
//	// Customized portfolio
//	portfolio := testutil.NewPortfolio().
//	    WithName("Retirement").
//	    WithCurrency("USD").
//	    Build(t, db)
type PortfolioBuilder struct {
	ID       string
	Name     string
	Currency string
}

// NewPortfolio creates a PortfolioBuilder with sensible defaults.
func NewPortfolio() *PortfolioBuilder {
	return &PortfolioBuilder{
		ID:       MakeID(),
		Name:     MakePortfolioName("Test Portfolio"),
		Currency: "EUR",
	}
}

// WithName sets a custom name.
func (b *PortfolioBuilder) WithName(name string) *PortfolioBuilder {
	b.Name = name
	return b
}

// WithCurrency sets the reporting currency.
func (b *PortfolioBuilder) WithCurrency(currency string) *PortfolioBuilder {
	b.Currency = currency
	return b
}

// Build stores the portfolio.
func (b *PortfolioBuilder) Build(t *testing.T, db *sql.DB) model.Portfolio {
	t.Helper()

	p := model.Portfolio{ID: b.ID, Name: b.Name, Currency: b.Currency}
	if err := repository.NewPortfolioRepository(db).InsertPortfolio(context.Background(), p); err != nil {
		t.Fatalf("Failed to create test portfolio: %v", err)
	}
	return p
}

// AccountBuilder provides a fluent interface for creating test accounts.
//
// Example usage:
//
//	account := testutil.NewAccount().
//	    InPortfolio(portfolio.ID).
//	    WithKind(model.KindCash).
//	    StartingAt(testutil.M("2024-01")).
//	    Build(t, db)
type AccountBuilder struct {
	ID          string
	Name        string
	Currency    string
	Kind        model.AccountKind
	Managed     bool
	PortfolioID string
	Start       month.Month
	End         *month.Month
}

// NewAccount creates an open investment AccountBuilder starting in January 2024.
func NewAccount() *AccountBuilder {
	return &AccountBuilder{
		ID:       MakeID(),
		Name:     MakeAccountName("Test Account"),
		Currency: "EUR",
		Kind:     model.KindInvestment,
		Start:    month.Of(2024, time.January),
	}
}

// WithName sets a custom name.
func (b *AccountBuilder) WithName(name string) *AccountBuilder {
	b.Name = name
	return b
}

// WithCurrency sets the account currency.
func (b *AccountBuilder) WithCurrency(currency string) *AccountBuilder {
	b.Currency = currency
	return b
}

// WithKind sets the account kind.
func (b *AccountBuilder) WithKind(kind model.AccountKind) *AccountBuilder {
	b.Kind = kind
	return b
}

// AsManaged marks the account as managed.
func (b *AccountBuilder) AsManaged() *AccountBuilder {
	b.Managed = true
	return b
}

// InPortfolio makes the account a member of the portfolio.
func (b *AccountBuilder) InPortfolio(portfolioID string) *AccountBuilder {
	b.PortfolioID = portfolioID
	return b
}

// StartingAt sets the first month of the account.
func (b *AccountBuilder) StartingAt(m month.Month) *AccountBuilder {
	b.Start = m
	return b
}

// ClosedAt marks the account as closed in m.
func (b *AccountBuilder) ClosedAt(m month.Month) *AccountBuilder {
	b.End = &m
	return b
}

// Build stores the account.
func (b *AccountBuilder) Build(t *testing.T, db *sql.DB) model.Account {
	t.Helper()

	a := model.Account{
		ID:          b.ID,
		Name:        b.Name,
		Currency:    b.Currency,
		Kind:        b.Kind,
		Managed:     b.Managed,
		PortfolioID: b.PortfolioID,
		Start:       b.Start,
		End:         b.End,
	}
	if err := repository.NewAccountRepository(db).InsertAccount(context.Background(), a); err != nil {
		t.Fatalf("Failed to create test account: %v", err)
	}
	return a
}

// EquityBuilder provides a fluent interface for creating test equities.
type EquityBuilder struct {
	ID       string
	Symbol   string
	Name     string
	Currency string
}

// NewEquity creates an EquityBuilder with a random symbol.
func NewEquity() *EquityBuilder {
	return &EquityBuilder{
		ID:       MakeID(),
		Symbol:   MakeSymbol("TEST"),
		Name:     MakeEquityName("Test Equity"),
		Currency: "EUR",
	}
}

// WithSymbol sets the ticker symbol.
func (b *EquityBuilder) WithSymbol(symbol string) *EquityBuilder {
	b.Symbol = symbol
	return b
}

// WithCurrency sets the quote currency.
func (b *EquityBuilder) WithCurrency(currency string) *EquityBuilder {
	b.Currency = currency
	return b
}

// Build stores the equity.
func (b *EquityBuilder) Build(t *testing.T, db *sql.DB) model.Equity {
	t.Helper()

	e := model.Equity{ID: b.ID, Symbol: b.Symbol, Name: b.Name, Currency: b.Currency}
	if err := repository.NewReferenceRepository(db).InsertEquity(context.Background(), e); err != nil {
		t.Fatalf("Failed to create test equity: %v", err)
	}
	return e
}

// CreatePrice stores a manual price for an equity.
func CreatePrice(t *testing.T, db *sql.DB, equityID string, m month.Month, price string) model.EquityValue {
	t.Helper()
	return CreatePriceWithSource(t, db, equityID, m, price, model.SourceManual)
}

// CreatePriceWithSource stores a price with the given source.
func CreatePriceWithSource(t *testing.T, db *sql.DB, equityID string, m month.Month, price string, source model.Source) model.EquityValue {
	t.Helper()

	v := model.EquityValue{EquityID: equityID, Date: m, Price: D(price), Source: source}
	if _, err := repository.NewReferenceRepository(db).UpsertPrice(context.Background(), v); err != nil {
		t.Fatalf("Failed to create test price: %v", err)
	}
	return v
}

// CreateEvent stores a corporate action.
func CreateEvent(t *testing.T, db *sql.DB, equityID string, m month.Month, typ model.EventType, value string) model.EquityEvent {
	t.Helper()

	e := model.EquityEvent{ID: MakeID(), EquityID: equityID, Date: m, Type: typ, Value: D(value)}
	id, err := repository.NewReferenceRepository(db).UpsertEvent(context.Background(), e)
	if err != nil {
		t.Fatalf("Failed to create test event: %v", err)
	}
	e.ID = id
	return e
}

// CreateTransaction stores a transaction directly, bypassing the service checks.
func CreateTransaction(t *testing.T, db *sql.DB, tx model.Transaction) model.Transaction {
	t.Helper()

	if tx.ID == "" {
		tx.ID = MakeID()
	}
	tx.Normalize()
	if err := repository.NewTransactionRepository(db).InsertTransaction(context.Background(), tx); err != nil {
		t.Fatalf("Failed to create test transaction: %v", err)
	}
	return tx
}

// Cash builds a cash-only transaction of amount on day 1 of m.
func Cash(accountID string, action model.Action, amount string, m month.Month) model.Transaction {
	return model.CashTransaction(accountID, action, D(amount), m.Time())
}

// Trade builds an equity transaction on day 1 of m.
func Trade(accountID, equityID string, action model.Action, quantity, price string, m month.Month) model.Transaction {
	return model.TradeTransaction(accountID, equityID, action, D(quantity), D(price), m.Time())
}

// D parses a decimal literal and panics on malformed input.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// M parses a "2006-01" month literal and panics on malformed input.
func M(s string) month.Month {
	return month.MustParse(s + "-01")
}
