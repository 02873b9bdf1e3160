package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ndewijer/valuation-engine/internal/apperrors"
	"github.com/ndewijer/valuation-engine/internal/model"
)

// PortfolioRepository provides data access methods for the portfolio table.
type PortfolioRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPortfolioRepository creates a new PortfolioRepository with the provided database connection.
func NewPortfolioRepository(db *sql.DB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

func (r *PortfolioRepository) WithTx(tx *sql.Tx) *PortfolioRepository {
	return &PortfolioRepository{db: r.db, tx: tx}
}

func (r *PortfolioRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// InsertPortfolio stores a new portfolio.
func (r *PortfolioRepository) InsertPortfolio(ctx context.Context, p model.Portfolio) error {
	_, err := r.getQuerier().ExecContext(ctx,
		`INSERT INTO portfolio (id, name, currency) VALUES (?, ?, ?)`,
		p.ID, p.Name, p.Currency,
	)
	if err != nil {
		return fmt.Errorf("failed to insert portfolio: %w", err)
	}
	return nil
}

// GetPortfolio retrieves a single portfolio by its ID.
// Returns apperrors.ErrPortfolioNotFound if no portfolio has that ID.
func (r *PortfolioRepository) GetPortfolio(ctx context.Context, portfolioID string) (model.Portfolio, error) {
	var p model.Portfolio
	err := r.getQuerier().QueryRowContext(ctx,
		`SELECT id, name, currency FROM portfolio WHERE id = ?`, portfolioID,
	).Scan(&p.ID, &p.Name, &p.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Portfolio{}, fmt.Errorf("%w: %s", apperrors.ErrPortfolioNotFound, portfolioID)
	}
	if err != nil {
		return model.Portfolio{}, fmt.Errorf("failed to query portfolio table: %w", err)
	}
	return p, nil
}

// GetPortfolios retrieves all portfolios ordered by name.
func (r *PortfolioRepository) GetPortfolios(ctx context.Context) ([]model.Portfolio, error) {
	rows, err := r.getQuerier().QueryContext(ctx, `SELECT id, name, currency FROM portfolio ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio table: %w", err)
	}
	defer rows.Close()

	portfolios := []model.Portfolio{}
	for rows.Next() {
		var p model.Portfolio
		if err := rows.Scan(&p.ID, &p.Name, &p.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio table results: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio table: %w", err)
	}
	return portfolios, nil
}
