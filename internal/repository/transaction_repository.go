package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/valuation-engine/internal/apperrors"
	"github.com/ndewijer/valuation-engine/internal/model"
	"github.com/ndewijer/valuation-engine/internal/month"
)

// TransactionRepository provides data access methods for the transaction table.
// It stores the append-only ledger and the split events each transaction already reflects.
type TransactionRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewTransactionRepository creates a new TransactionRepository with the provided database connection.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) WithTx(tx *sql.Tx) *TransactionRepository {
	return &TransactionRepository{db: r.db, tx: tx}
}

func (r *TransactionRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const transactionColumns = `id, account_id, equity_id, action, quantity, price, proceeds, real_date, date, created_at`

// InsertTransaction stores a transaction.
// Returns apperrors.ErrDuplicateEntry if an identical transaction is already recorded.
func (r *TransactionRepository) InsertTransaction(ctx context.Context, t model.Transaction) error {
	inserted, err := r.InsertIfAbsent(ctx, t)
	if err != nil {
		return err
	}
	if !inserted {
		return fmt.Errorf("%w: %s %s on %s", apperrors.ErrDuplicateEntry, t.Action, t.Quantity, t.RealDate.Format(dateFormat))
	}
	return nil
}

// InsertIfAbsent stores a transaction unless one with the same account, equity, day, action,
// price and quantity already exists. It reports whether a row was written.
func (r *TransactionRepository) InsertIfAbsent(ctx context.Context, t model.Transaction) (bool, error) {
	var proceeds any
	if t.Proceeds.Valid {
		proceeds = t.Proceeds.Decimal.String()
	}
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := r.getQuerier().ExecContext(ctx, `
		INSERT INTO "transaction" (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, equity_id, real_date, action, price, quantity) DO NOTHING`,
		t.ID,
		t.AccountID,
		t.EquityID,
		string(t.Action),
		t.Quantity.String(),
		t.Price.String(),
		proceeds,
		t.RealDate.Format(dateFormat),
		t.Date.String(),
		formatTime(createdAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	for _, eventID := range t.AppliedSplits {
		_, err := r.getQuerier().ExecContext(ctx,
			`INSERT INTO transaction_split (transaction_id, event_id) VALUES (?, ?)`, t.ID, eventID)
		if err != nil {
			return false, fmt.Errorf("failed to insert applied split: %w", err)
		}
	}
	return true, nil
}

// GetTransaction retrieves a single transaction by its ID.
// Returns apperrors.ErrTransactionNotFound if no transaction has that ID.
func (r *TransactionRepository) GetTransaction(ctx context.Context, transactionID string) (model.Transaction, error) {
	row := r.getQuerier().QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM "transaction" WHERE id = ?`, transactionID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Transaction{}, fmt.Errorf("%w: %s", apperrors.ErrTransactionNotFound, transactionID)
	}
	if err != nil {
		return model.Transaction{}, err
	}

	splits, err := r.appliedSplits(ctx, `WHERE transaction_id = ?`, transactionID)
	if err != nil {
		return model.Transaction{}, err
	}
	t.AppliedSplits = splits[t.ID]
	return t, nil
}

// GetTransactionsByAccount retrieves every transaction of an account in storage order
// (month, then real date, then insertion time).
func (r *TransactionRepository) GetTransactionsByAccount(ctx context.Context, accountID string) ([]model.Transaction, error) {
	rows, err := r.getQuerier().QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM "transaction"
		WHERE account_id = ?
		ORDER BY date ASC, real_date ASC, created_at ASC, id ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction table: %w", err)
	}

	transactions := []model.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		transactions = append(transactions, t)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("error iterating transaction table: %w", err)
	}

	// Rows must be closed before the next query: in-memory databases run on a single connection.
	splits, err := r.appliedSplits(ctx, `
		WHERE transaction_id IN (SELECT id FROM "transaction" WHERE account_id = ?)`, accountID)
	if err != nil {
		return nil, err
	}
	for i := range transactions {
		transactions[i].AppliedSplits = splits[transactions[i].ID]
	}
	return transactions, nil
}

// DeleteTransaction removes a transaction and its applied-split records.
// Returns apperrors.ErrTransactionNotFound if no transaction has that ID.
func (r *TransactionRepository) DeleteTransaction(ctx context.Context, transactionID string) error {
	if _, err := r.getQuerier().ExecContext(ctx,
		`DELETE FROM transaction_split WHERE transaction_id = ?`, transactionID); err != nil {
		return fmt.Errorf("failed to delete applied splits: %w", err)
	}
	res, err := r.getQuerier().ExecContext(ctx, `DELETE FROM "transaction" WHERE id = ?`, transactionID)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrTransactionNotFound, transactionID)
	}
	return nil
}

// GetDateRange returns the first and last transaction month of an account.
// ok is false when the account has no transactions.
func (r *TransactionRepository) GetDateRange(ctx context.Context, accountID string) (first, last month.Month, ok bool, err error) {
	var minStr, maxStr sql.NullString
	err = r.getQuerier().QueryRowContext(ctx,
		`SELECT MIN(date), MAX(date) FROM "transaction" WHERE account_id = ?`, accountID,
	).Scan(&minStr, &maxStr)
	if err != nil {
		return month.Month{}, month.Month{}, false, fmt.Errorf("failed to query transaction date range: %w", err)
	}
	if !minStr.Valid || !maxStr.Valid {
		return month.Month{}, month.Month{}, false, nil
	}
	if first, err = parseMonth(minStr.String); err != nil {
		return month.Month{}, month.Month{}, false, err
	}
	if last, err = parseMonth(maxStr.String); err != nil {
		return month.Month{}, month.Month{}, false, err
	}
	return first, last, true, nil
}

// CountTransactions returns the number of transactions recorded for an account.
func (r *TransactionRepository) CountTransactions(ctx context.Context, accountID string) (int, error) {
	var n int
	err := r.getQuerier().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM "transaction" WHERE account_id = ?`, accountID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

// GetAccountsForEquity returns the IDs of accounts with at least one transaction against the equity.
func (r *TransactionRepository) GetAccountsForEquity(ctx context.Context, equityID string) ([]string, error) {
	rows, err := r.getQuerier().QueryContext(ctx,
		`SELECT DISTINCT account_id FROM "transaction" WHERE equity_id = ? ORDER BY account_id`, equityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction table: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan transaction table results: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction table: %w", err)
	}
	return ids, nil
}

// GetHeldEquities returns the distinct equities an account has traded, ordered by ID.
func (r *TransactionRepository) GetHeldEquities(ctx context.Context, accountID string) ([]string, error) {
	rows, err := r.getQuerier().QueryContext(ctx,
		`SELECT DISTINCT equity_id FROM "transaction" WHERE account_id = ? AND equity_id <> '' ORDER BY equity_id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction table: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan transaction table results: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction table: %w", err)
	}
	return ids, nil
}

func (r *TransactionRepository) appliedSplits(ctx context.Context, where string, args ...any) (map[string][]string, error) {
	rows, err := r.getQuerier().QueryContext(ctx,
		`SELECT transaction_id, event_id FROM transaction_split `+where+` ORDER BY transaction_id, event_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction_split table: %w", err)
	}
	defer rows.Close()

	splits := make(map[string][]string)
	for rows.Next() {
		var txID, eventID string
		if err := rows.Scan(&txID, &eventID); err != nil {
			return nil, fmt.Errorf("failed to scan transaction_split table results: %w", err)
		}
		splits[txID] = append(splits[txID], eventID)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction_split table: %w", err)
	}
	return splits, nil
}

func scanTransaction(s scanner) (model.Transaction, error) {
	var (
		t                                  model.Transaction
		action                             string
		quantity, price                    string
		proceeds                           sql.NullString
		realDateStr, dateStr, createdAtStr string
	)
	err := s.Scan(&t.ID, &t.AccountID, &t.EquityID, &action, &quantity, &price, &proceeds,
		&realDateStr, &dateStr, &createdAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Transaction{}, err
	}
	if err != nil {
		return model.Transaction{}, fmt.Errorf("failed to scan transaction table results: %w", err)
	}

	t.Action = model.Action(action)
	if t.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %s quantity: %w", t.ID, err)
	}
	if t.Price, err = decimal.NewFromString(price); err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %s price: %w", t.ID, err)
	}
	if proceeds.Valid {
		d, err := decimal.NewFromString(proceeds.String)
		if err != nil {
			return model.Transaction{}, fmt.Errorf("transaction %s proceeds: %w", t.ID, err)
		}
		t.Proceeds = decimal.NewNullDecimal(d)
	}
	if t.RealDate, err = ParseTime(realDateStr); err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %s real date: %w", t.ID, err)
	}
	if t.Date, err = parseMonth(dateStr); err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %s date: %w", t.ID, err)
	}
	if t.CreatedAt, err = ParseTime(createdAtStr); err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %s created at: %w", t.ID, err)
	}
	return t, nil
}
