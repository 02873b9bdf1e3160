package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ndewijer/valuation-engine/internal/apperrors"
	"github.com/ndewijer/valuation-engine/internal/model"
	"github.com/ndewijer/valuation-engine/internal/month"
)

// AccountRepository provides data access methods for the account table.
type AccountRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewAccountRepository creates a new AccountRepository with the provided database connection.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) WithTx(tx *sql.Tx) *AccountRepository {
	return &AccountRepository{db: r.db, tx: tx}
}

func (r *AccountRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const accountColumns = `id, name, currency, kind, managed, portfolio_id, start_date, end_date`

// InsertAccount stores a new account.
func (r *AccountRepository) InsertAccount(ctx context.Context, a model.Account) error {
	var portfolioID, end any
	if a.PortfolioID != "" {
		portfolioID = a.PortfolioID
	}
	if a.End != nil {
		end = a.End.String()
	}
	_, err := r.getQuerier().ExecContext(ctx,
		`INSERT INTO account (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Currency, string(a.Kind), a.Managed, portfolioID, a.Start.String(), end,
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// GetAccount retrieves a single account by its ID.
// Returns apperrors.ErrAccountNotFound if no account has that ID.
func (r *AccountRepository) GetAccount(ctx context.Context, accountID string) (model.Account, error) {
	row := r.getQuerier().QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM account WHERE id = ?`, accountID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, fmt.Errorf("%w: %s", apperrors.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return model.Account{}, err
	}
	return a, nil
}

// GetAccountsByPortfolio retrieves the member accounts of a portfolio, ordered by ID.
func (r *AccountRepository) GetAccountsByPortfolio(ctx context.Context, portfolioID string) ([]model.Account, error) {
	return r.query(ctx, `SELECT `+accountColumns+` FROM account WHERE portfolio_id = ? ORDER BY id ASC`, portfolioID)
}

// GetAccounts retrieves every account, ordered by ID.
func (r *AccountRepository) GetAccounts(ctx context.Context) ([]model.Account, error) {
	return r.query(ctx, `SELECT `+accountColumns+` FROM account ORDER BY id ASC`)
}

// SetEnd marks the account as closed at m.
func (r *AccountRepository) SetEnd(ctx context.Context, accountID string, m month.Month) error {
	res, err := r.getQuerier().ExecContext(ctx,
		`UPDATE account SET end_date = ? WHERE id = ? AND end_date IS NULL`, m.String(), accountID)
	if err != nil {
		return fmt.Errorf("failed to close account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to close account: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s is missing or already closed", apperrors.ErrAccountNotFound, accountID)
	}
	return nil
}

func (r *AccountRepository) query(ctx context.Context, query string, args ...any) ([]model.Account, error) {
	rows, err := r.getQuerier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query account table: %w", err)
	}
	defer rows.Close()

	accounts := []model.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account table: %w", err)
	}
	return accounts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (model.Account, error) {
	var (
		a           model.Account
		kind        string
		portfolioID sql.NullString
		startStr    string
		endStr      sql.NullString
	)
	err := s.Scan(&a.ID, &a.Name, &a.Currency, &kind, &a.Managed, &portfolioID, &startStr, &endStr)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, err
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to scan account table results: %w", err)
	}

	a.Kind = model.AccountKind(kind)
	a.PortfolioID = portfolioID.String
	if a.Start, err = parseMonth(startStr); err != nil {
		return model.Account{}, fmt.Errorf("account %s start: %w", a.ID, err)
	}
	if a.End, err = parseNullMonth(endStr); err != nil {
		return model.Account{}, fmt.Errorf("account %s end: %w", a.ID, err)
	}
	return a, nil
}
