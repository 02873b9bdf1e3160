package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ndewijer/valuation-engine/internal/apperrors"
	"github.com/ndewijer/valuation-engine/internal/ledger"
	"github.com/ndewijer/valuation-engine/internal/logging"
	"github.com/ndewijer/valuation-engine/internal/model"
	"github.com/ndewijer/valuation-engine/internal/month"
	"github.com/ndewijer/valuation-engine/internal/repository"
	"github.com/ndewijer/valuation-engine/internal/validation"
)

// AccountService reconstructs the monthly series of accounts from their transaction logs.
//
// Series are computed under the account's shared lock and cached per as-of month until a write
// to the account, or to market data of one of its equities, invalidates them.
type AccountService struct {
	accountRepo     *repository.AccountRepository
	portfolioRepo   *repository.PortfolioRepository
	transactionRepo *repository.TransactionRepository
	refData         *RefDataService
	cache           *SeriesCache
	locks           *AccountLocks
	log             zerolog.Logger
}

// NewAccountService creates a new AccountService.
func NewAccountService(
	accountRepo *repository.AccountRepository,
	portfolioRepo *repository.PortfolioRepository,
	transactionRepo *repository.TransactionRepository,
	refData *RefDataService,
	cache *SeriesCache,
	locks *AccountLocks,
	log zerolog.Logger,
) *AccountService {
	return &AccountService{
		accountRepo:     accountRepo,
		portfolioRepo:   portfolioRepo,
		transactionRepo: transactionRepo,
		refData:         refData,
		cache:           cache,
		locks:           locks,
		log:             logging.Component(log, "accounts"),
	}
}

// CreateAccount stores a new open account. A missing ID is generated.
func (s *AccountService) CreateAccount(ctx context.Context, a model.Account) (model.Account, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if err := validation.ValidateAccount(a); err != nil {
		return model.Account{}, err
	}
	if a.PortfolioID != "" {
		if _, err := s.portfolioRepo.GetPortfolio(ctx, a.PortfolioID); err != nil {
			return model.Account{}, err
		}
	}
	if err := s.accountRepo.InsertAccount(ctx, a); err != nil {
		return model.Account{}, err
	}
	return a, nil
}

// GetAccount retrieves an account by ID.
func (s *AccountService) GetAccount(ctx context.Context, accountID string) (model.Account, error) {
	return s.accountRepo.GetAccount(ctx, accountID)
}

// GetAccounts retrieves all accounts.
func (s *AccountService) GetAccounts(ctx context.Context) ([]model.Account, error) {
	return s.accountRepo.GetAccounts(ctx)
}

// Warm computes the current series of every open account so that the first reads after a
// market data refresh hit the cache. An account that fails to value is logged and skipped;
// the number of accounts warmed is returned.
func (s *AccountService) Warm(ctx context.Context) (int, error) {
	all, err := s.accountRepo.GetAccounts(ctx)
	if err != nil {
		return 0, err
	}

	warmed := 0
	for _, a := range all {
		if a.IsClosed() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return warmed, err
		}
		if _, err := s.Series(ctx, a.ID, month.Today()); err != nil {
			s.log.Warn().Err(err).Str("account", a.ID).Msg("account series failed")
			continue
		}
		warmed++
	}
	s.log.Info().Int("accounts", warmed).Msg("series cache warmed")
	return warmed, nil
}

// Series returns one row per month from the account's inception through asOf, or through its
// close month if that is earlier. A zero asOf means the current month.
func (s *AccountService) Series(ctx context.Context, accountID string, asOf month.Month) (*model.AccountSeries, error) {
	unlock := s.locks.RLock(accountID)
	defer unlock()

	account, err := s.accountRepo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	v, err := s.valuate(ctx, account, asOf)
	if err != nil {
		return nil, err
	}

	series := *v.series
	series.Rows = slices.Clone(v.series.Rows)
	return &series, nil
}

// HoldingSeries returns the monthly state of one equity inside an investment account.
func (s *AccountService) HoldingSeries(ctx context.Context, accountID, equityID string, asOf month.Month) (*ledger.Holding, error) {
	unlock := s.locks.RLock(accountID)
	defer unlock()

	account, err := s.accountRepo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	v, err := s.valuate(ctx, account, asOf)
	if err != nil {
		return nil, err
	}

	h, ok := v.holdings[equityID]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not held in account %s", apperrors.ErrEquityNotFound, equityID, accountID)
	}
	out := *h
	out.Rows = slices.Clone(h.Rows)
	return &out, nil
}

// valuate returns the cached valuation of the account or computes it. Callers must hold one of
// the account's locks.
func (s *AccountService) valuate(ctx context.Context, account model.Account, asOf month.Month) (*valuation, error) {
	if asOf.IsZero() {
		asOf = month.Today()
	}
	return s.cache.load(account.ID, asOf, func() (*valuation, error) {
		return s.compute(ctx, account, asOf)
	})
}

func (s *AccountService) compute(ctx context.Context, account model.Account, asOf month.Month) (*valuation, error) {
	val, err := s.valuerFor(account.Kind)
	if err != nil {
		return nil, err
	}

	txs, err := s.transactionRepo.GetTransactionsByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	ledger.SortTransactions(txs)

	from := account.Start
	if len(txs) > 0 && txs[0].Date.Before(from) {
		from = txs[0].Date
	}
	to := asOf
	if account.End != nil {
		to = month.Min(to, *account.End)
	}

	if to.Before(from) {
		return &valuation{
			series:   &model.AccountSeries{AccountID: account.ID, Currency: account.Currency, Rows: []model.AccountRow{}},
			holdings: map[string]*ledger.Holding{},
		}, nil
	}

	v, err := val.value(ctx, valuerInput{account: account, txs: txs, from: from, to: to})
	if err != nil {
		return nil, err
	}

	for _, row := range v.series.Rows {
		if !row.Actual.Equal(row.Cost.Add(row.Growth)) {
			return nil, fmt.Errorf("%w: account %s at %s: actual %s differs from cost %s plus growth %s",
				apperrors.ErrInvalidLedger, account.ID, row.Date, row.Actual, row.Cost, row.Growth)
		}
	}

	s.log.Debug().
		Str("account", account.ID).
		Stringer("from", from).
		Stringer("to", to).
		Int("transactions", len(txs)).
		Int("holdings", len(v.holdings)).
		Msg("account series computed")
	return v, nil
}
