package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ndewijer/valuation-engine/internal/ibkr"
	"github.com/ndewijer/valuation-engine/internal/logging"
	"github.com/ndewijer/valuation-engine/internal/model"
	"github.com/ndewijer/valuation-engine/internal/month"
	"github.com/ndewijer/valuation-engine/internal/scheduler"
)

// StatementService imports broker statements into an account's transaction log.
//
// Only cash lines are imported: deposits and withdrawals become fund and withdraw entries,
// dividends and broker interest become dividend entries. Trades are left to manual entry because
// the broker reports trade prices, not the cost basis a sell is recorded at. The broker's
// conversion rates are stored as monthly exchange rates.
type StatementService struct {
	client       ibkr.Client
	transactions *TransactionService
	refData      *RefDataService
	log          zerolog.Logger
}

// NewStatementService creates a new StatementService.
func NewStatementService(client ibkr.Client, transactions *TransactionService, refData *RefDataService, log zerolog.Logger) *StatementService {
	return &StatementService{
		client:       client,
		transactions: transactions,
		refData:      refData,
		log:          logging.Component(log, "statements"),
	}
}

// Sync downloads the Flex report of queryID and imports every statement in it into accountID.
func (s *StatementService) Sync(ctx context.Context, token string, queryID int, accountID string) (model.StatementImportResult, error) {
	statements, err := s.client.FetchStatements(ctx, token, queryID)
	if err != nil {
		return model.StatementImportResult{}, fmt.Errorf("failed to fetch statements: %w", err)
	}

	var total model.StatementImportResult
	for _, st := range statements {
		result, err := s.Import(ctx, accountID, st)
		if err != nil {
			return total, fmt.Errorf("statement of %s: %w", st.AccountID, err)
		}
		total = total.Add(result)
	}
	return total, nil
}

// Import records the cash lines of one statement. Lines in another currency than the account,
// of an unmapped type, or with a sign that does not fit their type are counted as ignored.
// Importing the same statement twice records nothing new.
func (s *StatementService) Import(ctx context.Context, accountID string, st ibkr.Statement) (model.StatementImportResult, error) {
	account, err := s.transactions.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return model.StatementImportResult{}, err
	}

	equities, err := s.refData.GetEquities(ctx)
	if err != nil {
		return model.StatementImportResult{}, err
	}
	bySymbol := make(map[string]string, len(equities))
	for _, e := range equities {
		bySymbol[strings.ToUpper(e.Symbol)] = e.ID
	}

	var result model.StatementImportResult
	batch := make([]model.Transaction, 0, len(st.Cash))
	for _, e := range st.Cash {
		if !strings.EqualFold(e.Currency, account.Currency) || e.Amount.IsZero() {
			result.Ignored++
			continue
		}

		var (
			action   model.Action
			equityID string
		)
		switch e.Type {
		case ibkr.TypeDeposits:
			action = model.ActionFund
			if e.Amount.IsNegative() {
				action = model.ActionWithdraw
			}
		case ibkr.TypeDividends, ibkr.TypeInLieu:
			if e.Amount.IsNegative() {
				result.Ignored++
				continue
			}
			action = model.ActionDividend
			if account.Kind == model.KindInvestment {
				equityID = bySymbol[strings.ToUpper(e.Symbol)]
			}
			if equityID == "" {
				s.log.Debug().Str("symbol", e.Symbol).Str("line", e.TransactionID).Msg("dividend recorded as interest")
			}
		case ibkr.TypeInterestReceived:
			if e.Amount.IsNegative() {
				result.Ignored++
				continue
			}
			action = model.ActionDividend
		default:
			result.Ignored++
			continue
		}

		t := model.CashTransaction(accountID, action, e.Amount.Abs(), e.Date)
		t.EquityID = equityID
		batch = append(batch, t)
	}

	imported, err := s.transactions.Import(ctx, batch)
	if err != nil {
		return model.StatementImportResult{}, err
	}
	result.Inserted = imported.Inserted
	result.Skipped = imported.Skipped

	for _, r := range st.Rates {
		if strings.EqualFold(r.From, r.To) {
			continue
		}
		x := model.ExchangeRate{
			From: strings.ToUpper(r.From),
			To:   strings.ToUpper(r.To),
			Date: month.Normalize(r.Date),
			Rate: r.Rate,
		}
		if err := s.refData.UpsertExchangeRate(ctx, x); err != nil {
			return result, fmt.Errorf("conversion rate %s/%s on %s: %w", x.From, x.To, r.Date.Format("2006-01-02"), err)
		}
		result.Rates++
	}

	s.log.Info().
		Str("account", accountID).
		Str("brokerAccount", st.AccountID).
		Int("inserted", result.Inserted).
		Int("skipped", result.Skipped).
		Int("ignored", result.Ignored).
		Int("rates", result.Rates).
		Msg("statement imported")
	return result, nil
}

// Job wraps Sync for the scheduler.
func (s *StatementService) Job(token string, queryID int, accountID string) scheduler.Job {
	return scheduler.JobFunc{
		JobName: "ibkr-statement-import",
		Fn: func(ctx context.Context) error {
			_, err := s.Sync(ctx, token, queryID, accountID)
			return err
		},
	}
}
