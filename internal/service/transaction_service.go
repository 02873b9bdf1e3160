package service

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ndewijer/valuation-engine/internal/apperrors"
	"github.com/ndewijer/valuation-engine/internal/database"
	"github.com/ndewijer/valuation-engine/internal/ledger"
	"github.com/ndewijer/valuation-engine/internal/logging"
	"github.com/ndewijer/valuation-engine/internal/model"
	"github.com/ndewijer/valuation-engine/internal/repository"
	"github.com/ndewijer/valuation-engine/internal/validation"
)

// TransactionService writes to account transaction logs. Every write holds the exclusive lock of
// the accounts it touches and drops their cached series once it is durable.
type TransactionService struct {
	db              *sql.DB
	transactionRepo *repository.TransactionRepository
	accounts        *AccountService
	refData         *RefDataService
	log             zerolog.Logger
}

// NewTransactionService creates a new TransactionService.
func NewTransactionService(
	db *sql.DB,
	transactionRepo *repository.TransactionRepository,
	accounts *AccountService,
	refData *RefDataService,
	log zerolog.Logger,
) *TransactionService {
	return &TransactionService{
		db:              db,
		transactionRepo: transactionRepo,
		accounts:        accounts,
		refData:         refData,
		log:             logging.Component(log, "transactions"),
	}
}

// GetTransaction retrieves a single transaction by its ID.
func (s *TransactionService) GetTransaction(ctx context.Context, transactionID string) (model.Transaction, error) {
	return s.transactionRepo.GetTransaction(ctx, transactionID)
}

// GetTransactions returns the log of an account in replay order.
func (s *TransactionService) GetTransactions(ctx context.Context, accountID string) ([]model.Transaction, error) {
	if _, err := s.accounts.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.transactionRepo.GetTransactionsByAccount(ctx, accountID)
}

// Add records a single transaction. The real date is truncated to its day and the month derived
// from it. Returns apperrors.ErrDuplicateEntry if the same entry is already recorded.
func (s *TransactionService) Add(ctx context.Context, t model.Transaction) (model.Transaction, error) {
	t = prepare(t)
	if err := validation.ValidateTransaction(t); err != nil {
		return model.Transaction{}, err
	}

	unlock := s.accounts.locks.Lock(t.AccountID)
	defer unlock()

	if err := s.checkWritable(ctx, t); err != nil {
		return model.Transaction{}, err
	}
	if err := s.checkHoldings(ctx, []model.Transaction{t}, ""); err != nil {
		return model.Transaction{}, err
	}
	if err := s.transactionRepo.InsertTransaction(ctx, t); err != nil {
		return model.Transaction{}, fmt.Errorf("failed to create transaction: %w", err)
	}
	s.accounts.cache.InvalidateAccount(t.AccountID)

	s.log.Debug().
		Str("transaction", t.ID).
		Str("account", t.AccountID).
		Str("action", string(t.Action)).
		Stringer("month", t.Date).
		Msg("transaction added")
	return t, nil
}

// Import records a batch of transactions in one database transaction. Entries already present,
// in the log or earlier in the batch, are skipped, so importing the same batch twice changes
// nothing. Nothing is written when any entry is invalid.
func (s *TransactionService) Import(ctx context.Context, batch []model.Transaction) (model.ImportResult, error) {
	if len(batch) == 0 {
		return model.ImportResult{}, nil
	}

	prepared := make([]model.Transaction, len(batch))
	accountIDs := make([]string, 0, len(batch))
	for i, t := range batch {
		t = prepare(t)
		if err := validation.ValidateTransaction(t); err != nil {
			return model.ImportResult{}, fmt.Errorf("entry %d: %w", i, err)
		}
		prepared[i] = t
		accountIDs = append(accountIDs, t.AccountID)
	}
	slices.Sort(accountIDs)
	accountIDs = slices.Compact(accountIDs)

	unlock := s.accounts.locks.Lock(accountIDs...)
	defer unlock()

	for i, t := range prepared {
		if err := s.checkWritable(ctx, t); err != nil {
			return model.ImportResult{}, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	if err := s.checkHoldings(ctx, prepared, ""); err != nil {
		return model.ImportResult{}, err
	}

	var result model.ImportResult
	err := database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.transactionRepo.WithTx(tx)
		for _, t := range prepared {
			inserted, err := repo.InsertIfAbsent(ctx, t)
			if err != nil {
				return err
			}
			if inserted {
				result.Inserted++
			} else {
				result.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return model.ImportResult{}, fmt.Errorf("failed to import transactions: %w", err)
	}
	if result.Inserted > 0 {
		s.accounts.cache.InvalidateAccount(accountIDs...)
	}

	s.log.Info().
		Int("inserted", result.Inserted).
		Int("skipped", result.Skipped).
		Int("accounts", len(accountIDs)).
		Msg("transactions imported")
	return result, nil
}

// Delete removes a transaction recorded in error. Transactions of closed accounts are kept.
func (s *TransactionService) Delete(ctx context.Context, transactionID string) error {
	t, err := s.transactionRepo.GetTransaction(ctx, transactionID)
	if err != nil {
		return err
	}

	unlock := s.accounts.locks.Lock(t.AccountID)
	defer unlock()

	account, err := s.accounts.accountRepo.GetAccount(ctx, t.AccountID)
	if err != nil {
		return err
	}
	if account.IsClosed() {
		return fmt.Errorf("%w: %s", apperrors.ErrAccountClosed, account.ID)
	}
	if t.EquityID != "" {
		// Removing a buy must not leave a later sale uncovered.
		if err := s.checkHoldings(ctx, []model.Transaction{t}, t.ID); err != nil {
			return err
		}
	}
	if err := s.transactionRepo.DeleteTransaction(ctx, transactionID); err != nil {
		return err
	}
	s.accounts.cache.InvalidateAccount(t.AccountID)

	s.log.Info().Str("transaction", transactionID).Str("account", t.AccountID).Msg("transaction deleted")
	return nil
}

// checkWritable verifies that the account can take the transaction. Callers hold the account lock.
func (s *TransactionService) checkWritable(ctx context.Context, t model.Transaction) error {
	account, err := s.accounts.accountRepo.GetAccount(ctx, t.AccountID)
	if err != nil {
		return err
	}
	if account.IsClosed() {
		return fmt.Errorf("%w: %s", apperrors.ErrAccountClosed, account.ID)
	}
	val, err := s.accounts.valuerFor(account.Kind)
	if err != nil {
		return err
	}
	if !val.accepts(t.Action) {
		return fmt.Errorf("%w: %s in %s account %s", apperrors.ErrUnsupportedAction, t.Action, account.Kind, account.ID)
	}
	if t.EquityID != "" {
		if account.Kind != model.KindInvestment {
			return fmt.Errorf("%w: %s account %s cannot hold equities", apperrors.ErrUnsupportedAction, account.Kind, account.ID)
		}
		if _, err := s.refData.GetEquity(ctx, t.EquityID); err != nil {
			return err
		}
	}
	return nil
}

// checkHoldings replays every holding touched by batch over the account's log plus the batch and
// refuses the write when a sale would exceed the shares held. Batch entries already in the log, or
// earlier in the batch, are left out as the insert would skip them. When removeID is set the
// batch is the single logged entry being deleted and is dropped from the log instead. Callers
// hold the account locks.
func (s *TransactionService) checkHoldings(ctx context.Context, batch []model.Transaction, removeID string) error {
	type holding struct{ accountID, equityID string }
	touched := make(map[holding]bool)
	var order []holding
	for _, t := range batch {
		if t.EquityID == "" {
			continue
		}
		h := holding{t.AccountID, t.EquityID}
		if !touched[h] {
			touched[h] = true
			order = append(order, h)
		}
	}
	if len(order) == 0 {
		return nil
	}

	logs := make(map[string][]model.Transaction)
	seen := make(map[string]map[dedupKey]bool)
	for _, h := range order {
		if _, ok := logs[h.accountID]; ok {
			continue
		}
		txs, err := s.transactionRepo.GetTransactionsByAccount(ctx, h.accountID)
		if err != nil {
			return err
		}
		keys := make(map[dedupKey]bool, len(txs))
		kept := txs[:0]
		for _, t := range txs {
			if t.ID == removeID {
				continue
			}
			keys[keyOf(t)] = true
			kept = append(kept, t)
		}
		logs[h.accountID] = kept
		seen[h.accountID] = keys
	}

	if removeID == "" {
		for _, t := range batch {
			keys, ok := seen[t.AccountID]
			k := keyOf(t)
			if !ok || keys[k] {
				continue
			}
			keys[k] = true
			logs[t.AccountID] = append(logs[t.AccountID], t)
		}
	}

	for _, h := range order {
		events, err := s.refData.Events(ctx, h.equityID)
		if err != nil {
			return err
		}
		if err := ledger.CheckShares(h.equityID, logs[h.accountID], events); err != nil {
			return fmt.Errorf("account %s: %w", h.accountID, err)
		}
	}
	return nil
}

// dedupKey mirrors the unique index that makes imports idempotent.
type dedupKey struct {
	equityID, realDate, action, price, quantity string
}

func keyOf(t model.Transaction) dedupKey {
	return dedupKey{
		equityID: t.EquityID,
		realDate: t.RealDate.Format(time.DateOnly),
		action:   string(t.Action),
		price:    t.Price.String(),
		quantity: t.Quantity.String(),
	}
}

// prepare fills in the ID and creation time and normalises the dates.
func prepare(t model.Transaction) model.Transaction {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.Normalize()
	return t
}
