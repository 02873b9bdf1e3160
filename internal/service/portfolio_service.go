package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ndewijer/valuation-engine/internal/logging"
	"github.com/ndewijer/valuation-engine/internal/model"
	"github.com/ndewijer/valuation-engine/internal/month"
	"github.com/ndewijer/valuation-engine/internal/repository"
	"github.com/ndewijer/valuation-engine/internal/validation"
)

// seriesConcurrency bounds the number of member accounts valued at the same time.
const seriesConcurrency = 4

// PortfolioService aggregates the series of the accounts in a portfolio.
type PortfolioService struct {
	portfolioRepo *repository.PortfolioRepository
	accounts      *AccountService
	refData       *RefDataService
	log           zerolog.Logger
}

// NewPortfolioService creates a new PortfolioService.
func NewPortfolioService(
	portfolioRepo *repository.PortfolioRepository,
	accounts *AccountService,
	refData *RefDataService,
	log zerolog.Logger,
) *PortfolioService {
	return &PortfolioService{
		portfolioRepo: portfolioRepo,
		accounts:      accounts,
		refData:       refData,
		log:           logging.Component(log, "portfolios"),
	}
}

// CreatePortfolio stores a new portfolio. A missing ID is generated.
func (s *PortfolioService) CreatePortfolio(ctx context.Context, p model.Portfolio) (model.Portfolio, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := validation.ValidatePortfolio(p); err != nil {
		return model.Portfolio{}, err
	}
	if err := s.portfolioRepo.InsertPortfolio(ctx, p); err != nil {
		return model.Portfolio{}, err
	}
	return p, nil
}

// GetPortfolio retrieves a portfolio by ID.
func (s *PortfolioService) GetPortfolio(ctx context.Context, portfolioID string) (model.Portfolio, error) {
	return s.portfolioRepo.GetPortfolio(ctx, portfolioID)
}

// GetPortfolios retrieves all portfolios.
func (s *PortfolioService) GetPortfolios(ctx context.Context) ([]model.Portfolio, error) {
	return s.portfolioRepo.GetPortfolios(ctx)
}

// Accounts returns the member accounts of a portfolio, open and closed.
func (s *PortfolioService) Accounts(ctx context.Context, portfolioID string) ([]model.Account, error) {
	if _, err := s.portfolioRepo.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}
	return s.accounts.accountRepo.GetAccountsByPortfolio(ctx, portfolioID)
}

// Series returns the column-wise sum of the member accounts' rows, converted to the portfolio
// currency, for every month in which at least one member account was open. The Cost column holds
// the base cost: transfers between members move value, not basis.
func (s *PortfolioService) Series(ctx context.Context, portfolioID string, asOf month.Month) (*model.PortfolioSeries, error) {
	portfolio, err := s.portfolioRepo.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	members, err := s.accounts.accountRepo.GetAccountsByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	series := make([]*model.AccountSeries, len(members))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(seriesConcurrency)
	for i, a := range members {
		g.Go(func() error {
			sr, err := s.accounts.Series(gctx, a.ID, asOf)
			if err != nil {
				return err
			}
			series[i] = sr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rates := fxCache{refData: s.refData, to: portfolio.Currency}
	byMonth := make(map[month.Month]*model.PortfolioRow)
	for i, sr := range series {
		for _, row := range sr.Rows {
			rate, err := rates.rate(ctx, members[i].Currency, row.Date)
			if err != nil {
				return nil, fmt.Errorf("failed to convert account %s: %w", members[i].ID, err)
			}
			converted := row.Scale(rate)
			pr, ok := byMonth[row.Date]
			if !ok {
				pr = &model.PortfolioRow{AccountRow: model.AccountRow{Date: row.Date}}
				byMonth[row.Date] = pr
			}
			pr.AccountRow = pr.AccountRow.Add(converted)
			pr.ActiveAccounts++
		}
	}

	rows := make([]model.PortfolioRow, 0, len(byMonth))
	for _, pr := range byMonth {
		pr.Cost = pr.BaseCost
		rows = append(rows, *pr)
	}
	slices.SortFunc(rows, func(a, b model.PortfolioRow) int { return a.Date.Compare(b.Date) })

	s.log.Debug().
		Str("portfolio", portfolioID).
		Int("accounts", len(members)).
		Int("months", len(rows)).
		Msg("portfolio series computed")
	return &model.PortfolioSeries{PortfolioID: portfolio.ID, Currency: portfolio.Currency, Rows: rows}, nil
}

// RealSeries returns Series expressed in the money of the base month, deflating every row by the
// region's inflation index: amount * index(base) / index(month).
func (s *PortfolioService) RealSeries(ctx context.Context, portfolioID string, asOf month.Month, region string, base month.Month) (*model.PortfolioSeries, error) {
	nominal, err := s.Series(ctx, portfolioID, asOf)
	if err != nil {
		return nil, err
	}
	baseIndex, err := s.refData.InflationIndex(ctx, region, base)
	if err != nil {
		return nil, err
	}

	out := &model.PortfolioSeries{PortfolioID: nominal.PortfolioID, Currency: nominal.Currency, Rows: make([]model.PortfolioRow, len(nominal.Rows))}
	for i, row := range nominal.Rows {
		index, err := s.refData.InflationIndex(ctx, region, row.Date)
		if err != nil {
			return nil, err
		}
		out.Rows[i] = model.PortfolioRow{
			AccountRow:     row.AccountRow.Scale(baseIndex.Div(index)),
			ActiveAccounts: row.ActiveAccounts,
		}
	}
	return out, nil
}

// fxCache memoizes exchange rates into one currency for the duration of an aggregation.
type fxCache struct {
	refData *RefDataService
	to      string
	rates   map[string]decimal.Decimal
}

func (c *fxCache) rate(ctx context.Context, from string, m month.Month) (decimal.Decimal, error) {
	if from == c.to {
		return decimal.NewFromInt(1), nil
	}
	key := from + "|" + m.String()
	if r, ok := c.rates[key]; ok {
		return r, nil
	}
	r, err := c.refData.FXRate(ctx, from, c.to, m)
	if err != nil {
		return decimal.Zero, err
	}
	if c.rates == nil {
		c.rates = make(map[string]decimal.Decimal)
	}
	c.rates[key] = r
	return r, nil
}
