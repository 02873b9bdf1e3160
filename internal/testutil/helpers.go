package testutil

import (
	"database/sql"
	"math/rand"
	"testing"

	"github.com/google/uuid"

	"github.com/ndewijer/valuation-engine/internal/ibkr"
	"github.com/ndewijer/valuation-engine/internal/logging"
	"github.com/ndewijer/valuation-engine/internal/repository"
	"github.com/ndewijer/valuation-engine/internal/service"
	"github.com/ndewijer/valuation-engine/internal/yahoo"
)

// Services is the fully wired service graph over one test database.
type Services struct {
	Cache        *service.SeriesCache
	RefData      *service.RefDataService
	Accounts     *service.AccountService
	Transactions *service.TransactionService
	Portfolios   *service.PortfolioService
	Lifecycle    *service.LifecycleService
}

// NewTestServices wires every service the way the daemon does, with logging discarded.
//
// Example usage:
//
//	db := testutil.SetupTestDB(t)
//	svc := testutil.NewTestServices(t, db)
//	series, err := svc.Accounts.Series(ctx, account.ID, testutil.M("2024-06"))
func NewTestServices(t *testing.T, db *sql.DB) *Services {
	t.Helper()

	log := logging.Nop()
	cache := service.NewSeriesCache()
	locks := service.NewAccountLocks()

	accountRepo := repository.NewAccountRepository(db)
	portfolioRepo := repository.NewPortfolioRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	refRepo := repository.NewReferenceRepository(db)

	refData := service.NewRefDataService(refRepo, cache, log)
	accounts := service.NewAccountService(accountRepo, portfolioRepo, transactionRepo, refData, cache, locks, log)

	return &Services{
		Cache:        cache,
		RefData:      refData,
		Accounts:     accounts,
		Transactions: service.NewTransactionService(db, transactionRepo, accounts, refData, log),
		Portfolios:   service.NewPortfolioService(portfolioRepo, accounts, refData, log),
		Lifecycle:    service.NewLifecycleService(db, accounts, log),
	}
}

// NewTestRefreshService creates a RefreshService backed by the given feed client.
func NewTestRefreshService(t *testing.T, db *sql.DB, client yahoo.Client, lookback int) (*service.RefreshService, *Services) {
	t.Helper()

	svc := NewTestServices(t, db)
	return service.NewRefreshService(client, svc.RefData, lookback, logging.Nop()), svc
}

// NewTestStatementService creates a StatementService backed by the given broker client.
func NewTestStatementService(t *testing.T, db *sql.DB, client ibkr.Client) (*service.StatementService, *Services) {
	t.Helper()

	svc := NewTestServices(t, db)
	return service.NewStatementService(client, svc.Transactions, svc.RefData, logging.Nop()), svc
}

// MakeID generates a UUID string for use in tests.
//
// Example usage:
//
//	id := testutil.MakeID()
//	// Returns: "550e8400-e29b-41d4-a716-446655440000"
func MakeID() string {
	return uuid.New().String()
}

// MakeSymbol generates a stock ticker symbol for testing.
//
// Example usage:
//
//	symbol := testutil.MakeSymbol("AAPL")
//	// Returns: "AAPL1A2B"
func MakeSymbol(base string) string {
	if base == "" {
		base = "TEST"
	}
	return base + randomAlphanumeric(4)
}

// MakePortfolioName generates a unique portfolio name for testing.
func MakePortfolioName(base string) string {
	if base == "" {
		base = "Portfolio"
	}
	return base + " " + randomAlphanumeric(6)
}

// MakeAccountName generates a unique account name for testing.
func MakeAccountName(base string) string {
	if base == "" {
		base = "Account"
	}
	return base + " " + randomAlphanumeric(6)
}

// MakeEquityName generates a unique equity name for testing.
func MakeEquityName(base string) string {
	if base == "" {
		base = "Equity"
	}
	return base + " " + randomAlphanumeric(6)
}

// randomAlphanumeric generates a random alphanumeric string of specified length.
func randomAlphanumeric(length int) string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		//nolint:gosec // G404: Using math/rand for test data generation is acceptable
		result[i] = charset[rand.Intn(len(charset))]
	}
	return string(result)
}
