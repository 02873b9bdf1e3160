package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ndewijer/valuation-engine/internal/apperrors"
	"github.com/ndewijer/valuation-engine/internal/database"
	"github.com/ndewijer/valuation-engine/internal/logging"
	"github.com/ndewijer/valuation-engine/internal/model"
	"github.com/ndewijer/valuation-engine/internal/month"
)

// LifecycleService closes accounts, optionally handing their value to a sibling account.
type LifecycleService struct {
	db       *sql.DB
	accounts *AccountService
	log      zerolog.Logger
}

// NewLifecycleService creates a new LifecycleService.
func NewLifecycleService(db *sql.DB, accounts *AccountService, log zerolog.Logger) *LifecycleService {
	return &LifecycleService{
		db:       db,
		accounts: accounts,
		log:      logging.Component(log, "lifecycle"),
	}
}

// closePlan is a validated close of source in month d.
type closePlan struct {
	source model.Account
	target *model.Account
	month  month.Month
	row    model.AccountRow
}

// CanClose reports whether the account can be closed on closeDate, handing its value to
// transferTo when that is set. A refused close returns a *apperrors.ValidationError whose reason
// can be shown to the user as is.
func (s *LifecycleService) CanClose(ctx context.Context, accountID string, closeDate time.Time, transferTo string) error {
	unlock := s.accounts.locks.RLock(accountID, transferTo)
	defer unlock()

	_, err := s.plan(ctx, accountID, closeDate, transferTo)
	return err
}

// Close closes the account on closeDate and returns the transactions it recorded.
//
// Without a target, the account's whole worth is withdrawn. With a target, the account's basis
// moves over as a withdrawal and matching fund entry, and the growth above basis as a transfer
// pair, so the target's base cost and actual value grow by exactly the source's. All writes happen
// in one database transaction; nothing is written when the close is refused.
func (s *LifecycleService) Close(ctx context.Context, accountID string, closeDate time.Time, transferTo string) ([]model.Transaction, error) {
	unlock := s.accounts.locks.Lock(accountID, transferTo)
	defer unlock()

	p, err := s.plan(ctx, accountID, closeDate, transferTo)
	if err != nil {
		return nil, err
	}
	txs := p.transactions()

	err = database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		txRepo := s.accounts.transactionRepo.WithTx(tx)
		for _, t := range txs {
			if err := txRepo.InsertTransaction(ctx, t); err != nil {
				return err
			}
		}
		return s.accounts.accountRepo.WithTx(tx).SetEnd(ctx, p.source.ID, p.month)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to close account %s: %w", accountID, err)
	}

	touched := []string{p.source.ID}
	if p.target != nil {
		touched = append(touched, p.target.ID)
	}
	s.accounts.cache.InvalidateAccount(touched...)

	ev := s.log.Info().
		Str("account", p.source.ID).
		Stringer("month", p.month).
		Stringer("actual", p.row.Actual).
		Int("transactions", len(txs))
	if p.target != nil {
		ev = ev.Str("target", p.target.ID)
	}
	ev.Msg("account closed")
	return txs, nil
}

// plan runs every close precondition. Callers hold the locks of both accounts.
func (s *LifecycleService) plan(ctx context.Context, accountID string, closeDate time.Time, transferTo string) (*closePlan, error) {
	source, err := s.accounts.accountRepo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if source.IsClosed() {
		return nil, apperrors.Validationf("Account is already closed")
	}

	d := month.Normalize(closeDate)
	_, last, ok, err := s.accounts.transactionRepo.GetDateRange(ctx, source.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Validationf("Account has no transactions, delete it instead")
	}
	if d.Before(last) {
		return nil, apperrors.Validationf("Close date must not be before the latest transaction, reported in %s", last.Time().Format("January 2006"))
	}

	val, err := s.accounts.valuerFor(source.Kind)
	if err != nil {
		return nil, err
	}
	v, err := s.accounts.valuate(ctx, source, d)
	if err != nil {
		return nil, err
	}
	row, ok := v.series.At(d)
	if !ok {
		return nil, fmt.Errorf("%w: account %s has no row for %s", apperrors.ErrInvalidLedger, source.ID, d)
	}
	if reason := val.closeBlocker(row); reason != "" {
		return nil, apperrors.Validationf("%s", reason)
	}

	p := &closePlan{source: source, month: d, row: row}
	if transferTo == "" {
		return p, nil
	}

	if !val.canTransfer() {
		return nil, apperrors.Validationf("Cash accounts cannot transfer")
	}
	if transferTo == source.ID {
		return nil, apperrors.Validationf("Cannot transfer to the same account")
	}
	target, err := s.accounts.accountRepo.GetAccount(ctx, transferTo)
	if err != nil {
		return nil, err
	}
	if source.PortfolioID == "" || target.PortfolioID != source.PortfolioID {
		return nil, apperrors.Validationf("Target account must be in the same portfolio")
	}
	if target.IsClosed() {
		return nil, apperrors.Validationf("Target account is closed")
	}
	if target.Kind == model.KindCash {
		return nil, apperrors.Validationf("Target account is a cash account")
	}
	p.target = &target
	return p, nil
}

// transactions builds the entries that empty the source and, with a target, fund it.
func (p *closePlan) transactions() []model.Transaction {
	at := p.month.Time()
	var txs []model.Transaction
	add := func(accountID string, positive, negative model.Action, amount decimal.Decimal) {
		if amount.IsZero() {
			return
		}
		action := positive
		if amount.IsNegative() {
			action = negative
		}
		txs = append(txs, prepare(model.CashTransaction(accountID, action, amount.Abs(), at)))
	}

	if p.target == nil {
		add(p.source.ID, model.ActionWithdraw, model.ActionFund, p.row.Actual)
		return txs
	}

	growth := p.row.Actual.Sub(p.row.BaseCost)
	add(p.source.ID, model.ActionWithdraw, model.ActionFund, p.row.BaseCost)
	add(p.target.ID, model.ActionFund, model.ActionWithdraw, p.row.BaseCost)
	add(p.source.ID, model.ActionTransferOut, model.ActionTransferIn, growth)
	add(p.target.ID, model.ActionTransferIn, model.ActionTransferOut, growth)
	return txs
}
