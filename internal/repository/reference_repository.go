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

// ReferenceRepository provides data access methods for equities and the market data
// attached to them: monthly prices, corporate actions, exchange rates and inflation indices.
type ReferenceRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewReferenceRepository creates a new ReferenceRepository with the provided database connection.
func NewReferenceRepository(db *sql.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

func (r *ReferenceRepository) WithTx(tx *sql.Tx) *ReferenceRepository {
	return &ReferenceRepository{db: r.db, tx: tx}
}

func (r *ReferenceRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// InsertEquity stores a new equity.
func (r *ReferenceRepository) InsertEquity(ctx context.Context, e model.Equity) error {
	_, err := r.getQuerier().ExecContext(ctx,
		`INSERT INTO equity (id, symbol, name, currency) VALUES (?, ?, ?, ?)`,
		e.ID, e.Symbol, e.Name, e.Currency)
	if err != nil {
		return fmt.Errorf("failed to insert equity: %w", err)
	}
	return nil
}

// GetEquity retrieves an equity by ID.
// Returns apperrors.ErrEquityNotFound if no equity has that ID.
func (r *ReferenceRepository) GetEquity(ctx context.Context, equityID string) (model.Equity, error) {
	var e model.Equity
	err := r.getQuerier().QueryRowContext(ctx,
		`SELECT id, symbol, name, currency FROM equity WHERE id = ?`, equityID,
	).Scan(&e.ID, &e.Symbol, &e.Name, &e.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Equity{}, fmt.Errorf("%w: %s", apperrors.ErrEquityNotFound, equityID)
	}
	if err != nil {
		return model.Equity{}, fmt.Errorf("failed to query equity table: %w", err)
	}
	return e, nil
}

// GetEquities retrieves all equities ordered by symbol.
func (r *ReferenceRepository) GetEquities(ctx context.Context) ([]model.Equity, error) {
	rows, err := r.getQuerier().QueryContext(ctx, `SELECT id, symbol, name, currency FROM equity ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query equity table: %w", err)
	}
	defer rows.Close()

	equities := []model.Equity{}
	for rows.Next() {
		var e model.Equity
		if err := rows.Scan(&e.ID, &e.Symbol, &e.Name, &e.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan equity table results: %w", err)
		}
		equities = append(equities, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equity table: %w", err)
	}
	return equities, nil
}

// UpsertPrice writes a monthly price unless the stored cell comes from a higher-priority source.
// It reports whether the stored price or source changed.
func (r *ReferenceRepository) UpsertPrice(ctx context.Context, v model.EquityValue) (bool, error) {
	res, err := r.getQuerier().ExecContext(ctx, `
		INSERT INTO equity_value (equity_id, date, price, source, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (equity_id, date) DO UPDATE SET
			price = excluded.price,
			source = excluded.source,
			updated_at = excluded.updated_at
		WHERE excluded.source >= equity_value.source
			AND (excluded.price <> equity_value.price OR excluded.source <> equity_value.source)`,
		v.EquityID, v.Date.String(), v.Price.String(), int(v.Source), formatTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("failed to upsert equity price: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to upsert equity price: %w", err)
	}
	return n > 0, nil
}

// GetPrices retrieves the stored prices of an equity in [from, to], ordered by month.
func (r *ReferenceRepository) GetPrices(ctx context.Context, equityID string, from, to month.Month) ([]model.EquityValue, error) {
	rows, err := r.getQuerier().QueryContext(ctx, `
		SELECT equity_id, date, price, source
		FROM equity_value
		WHERE equity_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		equityID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query equity_value table: %w", err)
	}
	defer rows.Close()

	values := []model.EquityValue{}
	for rows.Next() {
		v, err := scanEquityValue(rows)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equity_value table: %w", err)
	}
	return values, nil
}

// GetAllPrices retrieves every stored price of an equity, ordered by month.
func (r *ReferenceRepository) GetAllPrices(ctx context.Context, equityID string) ([]model.EquityValue, error) {
	return r.GetPrices(ctx, equityID, month.Of(1, time.January), month.Of(9999, time.December))
}

// GetPrice retrieves the stored price for a single month.
// Returns apperrors.ErrPriceNotFound if the cell is empty.
func (r *ReferenceRepository) GetPrice(ctx context.Context, equityID string, m month.Month) (model.EquityValue, error) {
	row := r.getQuerier().QueryRowContext(ctx,
		`SELECT equity_id, date, price, source FROM equity_value WHERE equity_id = ? AND date = ?`,
		equityID, m.String())
	v, err := scanEquityValue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.EquityValue{}, fmt.Errorf("%w: %s at %s", apperrors.ErrPriceNotFound, equityID, m)
	}
	return v, err
}

// UpsertEvent writes a corporate action, replacing the value of an existing event of the
// same equity, month and type. It returns the stored event ID.
func (r *ReferenceRepository) UpsertEvent(ctx context.Context, e model.EquityEvent) (string, error) {
	var id string
	err := r.getQuerier().QueryRowContext(ctx, `
		INSERT INTO equity_event (id, equity_id, date, type, value)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (equity_id, date, type) DO UPDATE SET value = excluded.value
		RETURNING id`,
		e.ID, e.EquityID, e.Date.String(), string(e.Type), e.Value.String(),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert equity event: %w", err)
	}
	return id, nil
}

// GetEvents retrieves the corporate actions of an equity, ordered by month.
func (r *ReferenceRepository) GetEvents(ctx context.Context, equityID string) ([]model.EquityEvent, error) {
	rows, err := r.getQuerier().QueryContext(ctx, `
		SELECT id, equity_id, date, type, value
		FROM equity_event
		WHERE equity_id = ?
		ORDER BY date ASC, type ASC`, equityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query equity_event table: %w", err)
	}
	defer rows.Close()

	events := []model.EquityEvent{}
	for rows.Next() {
		var (
			e              model.EquityEvent
			typ            string
			dateStr, value string
		)
		if err := rows.Scan(&e.ID, &e.EquityID, &dateStr, &typ, &value); err != nil {
			return nil, fmt.Errorf("failed to scan equity_event table results: %w", err)
		}
		e.Type = model.EventType(typ)
		if e.Date, err = parseMonth(dateStr); err != nil {
			return nil, fmt.Errorf("event %s date: %w", e.ID, err)
		}
		if e.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("event %s value: %w", e.ID, err)
		}
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equity_event table: %w", err)
	}
	return events, nil
}

// UpsertExchangeRate writes the rate for a currency pair and month.
func (r *ReferenceRepository) UpsertExchangeRate(ctx context.Context, x model.ExchangeRate) error {
	_, err := r.getQuerier().ExecContext(ctx, `
		INSERT INTO exchange_rate (from_currency, to_currency, date, rate)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (from_currency, to_currency, date) DO UPDATE SET rate = excluded.rate`,
		x.From, x.To, x.Date.String(), x.Rate.String())
	if err != nil {
		return fmt.Errorf("failed to upsert exchange rate: %w", err)
	}
	return nil
}

// GetExchangeRate retrieves the latest rate for the pair on or before m.
// Returns apperrors.ErrExchangeRateNotFound if there is none.
func (r *ReferenceRepository) GetExchangeRate(ctx context.Context, from, to string, m month.Month) (model.ExchangeRate, error) {
	var dateStr, rate string
	err := r.getQuerier().QueryRowContext(ctx, `
		SELECT date, rate FROM exchange_rate
		WHERE from_currency = ? AND to_currency = ? AND date <= ?
		ORDER BY date DESC LIMIT 1`,
		from, to, m.String(),
	).Scan(&dateStr, &rate)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ExchangeRate{}, fmt.Errorf("%w: %s/%s at %s", apperrors.ErrExchangeRateNotFound, from, to, m)
	}
	if err != nil {
		return model.ExchangeRate{}, fmt.Errorf("failed to query exchange_rate table: %w", err)
	}

	x := model.ExchangeRate{From: from, To: to}
	if x.Date, err = parseMonth(dateStr); err != nil {
		return model.ExchangeRate{}, err
	}
	if x.Rate, err = decimal.NewFromString(rate); err != nil {
		return model.ExchangeRate{}, fmt.Errorf("exchange rate %s/%s: %w", from, to, err)
	}
	return x, nil
}

// UpsertInflation writes the index level for a region and month.
func (r *ReferenceRepository) UpsertInflation(ctx context.Context, i model.InflationIndex) error {
	_, err := r.getQuerier().ExecContext(ctx, `
		INSERT INTO inflation_index (region, date, level)
		VALUES (?, ?, ?)
		ON CONFLICT (region, date) DO UPDATE SET level = excluded.level`,
		i.Region, i.Date.String(), i.Index.String())
	if err != nil {
		return fmt.Errorf("failed to upsert inflation index: %w", err)
	}
	return nil
}

// GetInflation retrieves the latest index level for the region on or before m.
// Returns apperrors.ErrInflationNotFound if there is none.
func (r *ReferenceRepository) GetInflation(ctx context.Context, region string, m month.Month) (model.InflationIndex, error) {
	var dateStr, level string
	err := r.getQuerier().QueryRowContext(ctx, `
		SELECT date, level FROM inflation_index
		WHERE region = ? AND date <= ?
		ORDER BY date DESC LIMIT 1`,
		region, m.String(),
	).Scan(&dateStr, &level)
	if errors.Is(err, sql.ErrNoRows) {
		return model.InflationIndex{}, fmt.Errorf("%w: %s at %s", apperrors.ErrInflationNotFound, region, m)
	}
	if err != nil {
		return model.InflationIndex{}, fmt.Errorf("failed to query inflation_index table: %w", err)
	}

	i := model.InflationIndex{Region: region}
	if i.Date, err = parseMonth(dateStr); err != nil {
		return model.InflationIndex{}, err
	}
	if i.Index, err = decimal.NewFromString(level); err != nil {
		return model.InflationIndex{}, fmt.Errorf("inflation index %s: %w", region, err)
	}
	return i, nil
}

func scanEquityValue(s scanner) (model.EquityValue, error) {
	var (
		v              model.EquityValue
		dateStr, price string
		source         int
	)
	err := s.Scan(&v.EquityID, &dateStr, &price, &source)
	if errors.Is(err, sql.ErrNoRows) {
		return model.EquityValue{}, err
	}
	if err != nil {
		return model.EquityValue{}, fmt.Errorf("failed to scan equity_value table results: %w", err)
	}
	v.Source = model.Source(source)
	if v.Date, err = parseMonth(dateStr); err != nil {
		return model.EquityValue{}, err
	}
	if v.Price, err = decimal.NewFromString(price); err != nil {
		return model.EquityValue{}, fmt.Errorf("price of %s: %w", v.EquityID, err)
	}
	return v, nil
}
