package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ndewijer/valuation-engine/internal/apperrors"
	"github.com/ndewijer/valuation-engine/internal/logging"
	"github.com/ndewijer/valuation-engine/internal/model"
	"github.com/ndewijer/valuation-engine/internal/month"
	"github.com/ndewijer/valuation-engine/internal/repository"
	"github.com/ndewijer/valuation-engine/internal/validation"
)

// estimatePrecision is the number of decimal places kept for interpolated prices.
const estimatePrecision = 6

// RefDataService owns equities and the market data attached to them. Writes invalidate the
// cached series of every account that depends on the written equity.
type RefDataService struct {
	refRepo *repository.ReferenceRepository
	cache   *SeriesCache
	log     zerolog.Logger
}

// NewRefDataService creates a new RefDataService.
func NewRefDataService(refRepo *repository.ReferenceRepository, cache *SeriesCache, log zerolog.Logger) *RefDataService {
	return &RefDataService{
		refRepo: refRepo,
		cache:   cache,
		log:     logging.Component(log, "refdata"),
	}
}

// CreateEquity registers a new equity.
func (s *RefDataService) CreateEquity(ctx context.Context, symbol, name, currency string) (model.Equity, error) {
	e := model.Equity{ID: uuid.NewString(), Symbol: symbol, Name: name, Currency: currency}
	if err := validation.ValidateEquity(e); err != nil {
		return model.Equity{}, err
	}
	if err := s.refRepo.InsertEquity(ctx, e); err != nil {
		return model.Equity{}, err
	}
	return e, nil
}

// GetEquity retrieves an equity by ID.
func (s *RefDataService) GetEquity(ctx context.Context, equityID string) (model.Equity, error) {
	return s.refRepo.GetEquity(ctx, equityID)
}

// GetEquities retrieves all equities.
func (s *RefDataService) GetEquities(ctx context.Context) ([]model.Equity, error) {
	return s.refRepo.GetEquities(ctx)
}

// UpsertPrice writes a price if its source has at least the priority of the stored one.
// It reports whether the stored cell changed.
func (s *RefDataService) UpsertPrice(ctx context.Context, v model.EquityValue) (bool, error) {
	if err := validation.ValidateEquityValue(v); err != nil {
		return false, err
	}
	changed, err := s.refRepo.UpsertPrice(ctx, v)
	if err != nil {
		return false, err
	}
	if changed {
		s.cache.InvalidateEquity(v.EquityID)
		s.log.Debug().
			Str("equity", v.EquityID).
			Stringer("month", v.Date).
			Stringer("source", v.Source).
			Msg("price changed")
	}
	return changed, nil
}

// UpsertEvent writes a corporate action and returns it with its stored ID. An event for the same
// equity, month and type replaces the earlier value and keeps its ID.
func (s *RefDataService) UpsertEvent(ctx context.Context, e model.EquityEvent) (model.EquityEvent, error) {
	if err := validation.ValidateEquityEvent(e); err != nil {
		return model.EquityEvent{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	id, err := s.refRepo.UpsertEvent(ctx, e)
	if err != nil {
		return model.EquityEvent{}, err
	}
	e.ID = id
	s.cache.InvalidateEquity(e.EquityID)
	return e, nil
}

// Events returns the corporate actions of an equity.
func (s *RefDataService) Events(ctx context.Context, equityID string) ([]model.EquityEvent, error) {
	return s.refRepo.GetEvents(ctx, equityID)
}

// UpsertExchangeRate writes an exchange rate. The latest write wins.
func (s *RefDataService) UpsertExchangeRate(ctx context.Context, x model.ExchangeRate) error {
	if err := validation.ValidateExchangeRate(x); err != nil {
		return err
	}
	return s.refRepo.UpsertExchangeRate(ctx, x)
}

// UpsertInflation writes an inflation index level. The latest write wins.
func (s *RefDataService) UpsertInflation(ctx context.Context, i model.InflationIndex) error {
	if err := validation.ValidateInflationIndex(i); err != nil {
		return err
	}
	return s.refRepo.UpsertInflation(ctx, i)
}

// PriceAt returns the stored price for a month. ok is false when the cell is empty.
func (s *RefDataService) PriceAt(ctx context.Context, equityID string, m month.Month) (model.EquityValue, bool, error) {
	v, err := s.refRepo.GetPrice(ctx, equityID, m)
	if errors.Is(err, apperrors.ErrPriceNotFound) {
		return model.EquityValue{}, false, nil
	}
	if err != nil {
		return model.EquityValue{}, false, err
	}
	return v, true, nil
}

// DividendAt returns the per-share dividend paid in a month, zero when there is none.
func (s *RefDataService) DividendAt(ctx context.Context, equityID string, m month.Month) (decimal.Decimal, error) {
	events, err := s.refRepo.GetEvents(ctx, equityID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range events {
		if e.Type == model.EventDividend && e.Date == m {
			total = total.Add(e.Value)
		}
	}
	return total, nil
}

// SplitFactorAt returns the combined split factor effective in a month. ok is false when the
// equity has no split that month.
func (s *RefDataService) SplitFactorAt(ctx context.Context, equityID string, m month.Month) (decimal.Decimal, bool, error) {
	events, err := s.refRepo.GetEvents(ctx, equityID)
	if err != nil {
		return decimal.Zero, false, err
	}
	factor, ok := decimal.NewFromInt(1), false
	for _, e := range events {
		if e.Type.IsSplit() && e.Date == m {
			factor, ok = factor.Mul(e.Value), true
		}
	}
	return factor, ok, nil
}

// FXRate returns the rate converting one unit of from into to for month m, carrying the latest
// earlier rate forward. An inverse quote is used when only the opposite pair is stored.
func (s *RefDataService) FXRate(ctx context.Context, from, to string, m month.Month) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	x, err := s.refRepo.GetExchangeRate(ctx, from, to, m)
	if err == nil {
		return x.Rate, nil
	}
	if !errors.Is(err, apperrors.ErrExchangeRateNotFound) {
		return decimal.Zero, err
	}
	inv, invErr := s.refRepo.GetExchangeRate(ctx, to, from, m)
	if invErr != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(1).Div(inv.Rate), nil
}

// InflationIndex returns the index level of a region for month m, carrying the latest earlier
// level forward.
func (s *RefDataService) InflationIndex(ctx context.Context, region string, m month.Month) (decimal.Decimal, error) {
	i, err := s.refRepo.GetInflation(ctx, region, m)
	if err != nil {
		return decimal.Zero, err
	}
	return i.Index, nil
}

// PriceSeries returns a price for every month in [from, to] for which one can be derived.
//
// Observed prices (any source but Estimate) are used as is. A month without an observation gets
// the linear interpolation between the nearest observed months on either side, or the nearest
// observation held flat when only one side exists. Derived prices are stored with the Estimate
// source, so any later observation replaces them. Months are missing from the result only when the
// equity has no observations at all.
func (s *RefDataService) PriceSeries(ctx context.Context, equityID string, from, to month.Month) (map[month.Month]model.EquityValue, error) {
	if to.Before(from) {
		return map[month.Month]model.EquityValue{}, nil
	}
	stored, err := s.refRepo.GetAllPrices(ctx, equityID)
	if err != nil {
		return nil, err
	}

	observed := make([]model.EquityValue, 0, len(stored))
	estimated := make(map[month.Month]model.EquityValue)
	for _, v := range stored {
		if v.Source.Observed() {
			observed = append(observed, v)
		} else {
			estimated[v.Date] = v
		}
	}

	out := make(map[month.Month]model.EquityValue, month.Span(from, to)+1)
	if len(observed) == 0 {
		return out, nil
	}

	var toStore []model.EquityValue
	i := 0 // observed[i] is the first observation at or after m
	for m := range month.Range(from, to) {
		for i < len(observed) && observed[i].Date.Before(m) {
			i++
		}
		if i < len(observed) && observed[i].Date == m {
			out[m] = observed[i]
			continue
		}

		var price decimal.Decimal
		switch {
		case i == 0:
			price = observed[0].Price
		case i == len(observed):
			price = observed[len(observed)-1].Price
		default:
			price = interpolate(observed[i-1], observed[i], m)
		}

		v := model.EquityValue{EquityID: equityID, Date: m, Price: price, Source: model.SourceEstimate}
		out[m] = v
		if prev, ok := estimated[m]; !ok || !prev.Price.Equal(price) {
			toStore = append(toStore, v)
		}
	}

	for _, v := range toStore {
		// Estimates match what callers are about to be given, so the cache is left alone.
		if _, err := s.refRepo.UpsertPrice(ctx, v); err != nil {
			return nil, fmt.Errorf("failed to store estimated price: %w", err)
		}
	}
	if len(toStore) > 0 {
		s.log.Debug().Str("equity", equityID).Int("months", len(toStore)).Msg("stored estimated prices")
	}

	return out, nil
}

// interpolate returns the price at m on the straight line between two observations.
func interpolate(before, after model.EquityValue, m month.Month) decimal.Decimal {
	steps := decimal.NewFromInt(int64(month.Span(before.Date, after.Date)))
	offset := decimal.NewFromInt(int64(month.Span(before.Date, m)))
	delta := after.Price.Sub(before.Price).Mul(offset).Div(steps)
	return before.Price.Add(delta).Round(estimatePrecision)
}
