package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ndewijer/valuation-engine/internal/logging"
	"github.com/ndewijer/valuation-engine/internal/model"
	"github.com/ndewijer/valuation-engine/internal/month"
	"github.com/ndewijer/valuation-engine/internal/scheduler"
	"github.com/ndewijer/valuation-engine/internal/yahoo"
)

// RefreshService pulls monthly prices and corporate actions from the market data feed into the
// reference data store. A failing equity is reported and skipped; valuation never waits on it.
type RefreshService struct {
	client   yahoo.Client
	refData  *RefDataService
	lookback int
	log      zerolog.Logger
}

// NewRefreshService creates a new RefreshService that re-reads the last lookback months on
// every refresh.
func NewRefreshService(client yahoo.Client, refData *RefDataService, lookback int, log zerolog.Logger) *RefreshService {
	if lookback < 1 {
		lookback = 1
	}
	return &RefreshService{
		client:   client,
		refData:  refData,
		lookback: lookback,
		log:      logging.Component(log, "refresh"),
	}
}

// Refresh updates every equity over the lookback window ending this month.
// Success is true if at least one equity was refreshed.
func (s *RefreshService) Refresh(ctx context.Context) (model.RefreshResult, error) {
	equities, err := s.refData.GetEquities(ctx)
	if err != nil {
		return model.RefreshResult{}, err
	}

	to := month.Today()
	from := to.Add(-s.lookback)

	result := model.RefreshResult{
		UpdatedEquities: []model.UpdatedEquity{},
		Errors:          []model.UpdatedEquityError{},
	}
	for _, e := range equities {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		updated, err := s.refreshEquity(ctx, e, from, to)
		if err != nil {
			s.log.Warn().Err(err).Str("equity", e.ID).Str("symbol", e.Symbol).Msg("equity refresh failed")
			result.Errors = append(result.Errors, model.UpdatedEquityError{
				EquityID: e.ID,
				Symbol:   e.Symbol,
				Error:    err.Error(),
			})
			continue
		}
		result.UpdatedEquities = append(result.UpdatedEquities, updated)
	}

	result.TotalUpdated = len(result.UpdatedEquities)
	result.TotalErrors = len(result.Errors)
	result.Success = result.TotalUpdated > 0

	s.log.Info().
		Int("updated", result.TotalUpdated).
		Int("errors", result.TotalErrors).
		Msg("market data refreshed")
	return result, nil
}

// Backfill loads the full history of one equity from the given month.
func (s *RefreshService) Backfill(ctx context.Context, equityID string, from month.Month) (model.UpdatedEquity, error) {
	e, err := s.refData.GetEquity(ctx, equityID)
	if err != nil {
		return model.UpdatedEquity{}, err
	}
	return s.refreshEquity(ctx, e, from, month.Today())
}

// Job wraps Refresh for the scheduler.
func (s *RefreshService) Job() scheduler.Job {
	return scheduler.JobFunc{
		JobName: "market-data-refresh",
		Fn: func(ctx context.Context) error {
			_, err := s.Refresh(ctx)
			return err
		},
	}
}

// refreshEquity writes the feed's view of [from, to] for one equity.
//
// A monthly bar closes at the end of its month, which is the valuation point of the next month.
// Events are placed in the month their date normalizes to.
func (s *RefreshService) refreshEquity(ctx context.Context, e model.Equity, from, to month.Month) (model.UpdatedEquity, error) {
	chart, err := s.client.QueryMonthly(ctx, e.Symbol, from.Time(), to.Next().Time().Add(-time.Second))
	if err != nil {
		return model.UpdatedEquity{}, fmt.Errorf("failed to query %s: %w", e.Symbol, err)
	}
	if chart.Currency != "" && chart.Currency != e.Currency {
		s.log.Warn().
			Str("symbol", e.Symbol).
			Str("equityCurrency", e.Currency).
			Str("feedCurrency", chart.Currency).
			Msg("feed quotes a different currency")
	}

	updated := model.UpdatedEquity{EquityID: e.ID, Symbol: e.Symbol}
	for _, bar := range chart.Bars {
		changed, err := s.refData.UpsertPrice(ctx, model.EquityValue{
			EquityID: e.ID,
			Date:     month.Of(bar.Date.Year(), bar.Date.Month()).Next(),
			Price:    decimal.NewFromFloat(bar.Close),
			Source:   model.SourceAPI,
		})
		if err != nil {
			return updated, err
		}
		if changed {
			updated.PricesChanged++
		}
	}

	for _, d := range chart.Dividends {
		if _, err := s.refData.UpsertEvent(ctx, model.EquityEvent{
			EquityID: e.ID,
			Date:     month.Normalize(d.Date),
			Type:     model.EventDividend,
			Value:    decimal.NewFromFloat(d.Amount),
		}); err != nil {
			return updated, err
		}
		updated.EventsWritten++
	}
	for _, sp := range chart.Splits {
		if _, err := s.refData.UpsertEvent(ctx, model.EquityEvent{
			EquityID: e.ID,
			Date:     month.Normalize(sp.Date),
			Type:     model.EventSplit,
			Value:    decimal.NewFromFloat(sp.Factor),
		}); err != nil {
			return updated, err
		}
		updated.EventsWritten++
	}

	s.log.Debug().
		Str("symbol", e.Symbol).
		Int("prices", updated.PricesChanged).
		Int("events", updated.EventsWritten).
		Msg("equity refreshed")
	return updated, nil
}
