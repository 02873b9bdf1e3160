package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/valuation-engine/internal/apperrors"
	"github.com/ndewijer/valuation-engine/internal/model"
	"github.com/ndewijer/valuation-engine/internal/testutil"
)

// TestPortfolioService_CreatePortfolio tests creating and reading portfolios.
//
// WHY: Portfolios are the entry point of every report. A stored portfolio must read back unchanged,
// and a bad name or currency must be refused before it is written.
func TestPortfolioService_CreatePortfolio(t *testing.T) {
	// Setup
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	svc := testutil.NewTestServices(t, db)

	t.Run("generates an id", func(t *testing.T) {
		// Execute
		p, err := svc.Portfolios.CreatePortfolio(ctx, model.Portfolio{Name: "Retirement", Currency: "EUR"})

		// Assert
		require.NoError(t, err)
		assert.NotEmpty(t, p.ID)

		stored, err := svc.Portfolios.GetPortfolio(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p, stored)
	})

	t.Run("rejects invalid portfolios", func(t *testing.T) {
		// Execute
		_, err := svc.Portfolios.CreatePortfolio(ctx, model.Portfolio{Name: " ", Currency: "euro"})

		// Assert
		assert.ErrorIs(t, err, apperrors.ErrValidationFailed)
	})

	t.Run("lists portfolios", func(t *testing.T) {
		// Setup
		testutil.NewPortfolio().Build(t, db)

		// Execute
		portfolios, err := svc.Portfolios.GetPortfolios(ctx)

		// Assert
		require.NoError(t, err)
		assert.Len(t, portfolios, 2)
	})

	t.Run("unknown portfolio", func(t *testing.T) {
		_, err := svc.Portfolios.GetPortfolio(ctx, testutil.MakeID())
		assert.ErrorIs(t, err, apperrors.ErrPortfolioNotFound)
		_, err = svc.Portfolios.Series(ctx, testutil.MakeID(), testutil.M("2024-01"))
		assert.ErrorIs(t, err, apperrors.ErrPortfolioNotFound)
	})
}

// TestPortfolioService_Series sums members in the portfolio currency.
//
// WHY: A portfolio is only meaningful when every member is expressed in one currency and only the
// months in which a member was open contribute to it.
func TestPortfolioService_Series(t *testing.T) {
	// Setup
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	svc := testutil.NewTestServices(t, db)

	portfolio := testutil.NewPortfolio().WithCurrency("EUR").Build(t, db)
	broker := testutil.NewAccount().InPortfolio(portfolio.ID).StartingAt(testutil.M("2024-01")).Build(t, db)
	pension := testutil.NewAccount().InPortfolio(portfolio.ID).WithKind(model.KindValue).WithCurrency("USD").
		StartingAt(testutil.M("2024-02")).Build(t, db)
	savings := testutil.NewAccount().InPortfolio(portfolio.ID).WithKind(model.KindCash).
		StartingAt(testutil.M("2024-01")).ClosedAt(testutil.M("2024-02")).Build(t, db)
	testutil.NewAccount().Build(t, db) // not a member

	require.NoError(t, svc.RefData.UpsertExchangeRate(ctx, model.ExchangeRate{From: "USD", To: "EUR", Date: testutil.M("2024-01"), Rate: testutil.D("0.9")}))

	for _, tx := range []model.Transaction{
		testutil.Cash(broker.ID, model.ActionFund, "1000", testutil.M("2024-01")),
		testutil.Cash(broker.ID, model.ActionTransferIn, "50", testutil.M("2024-03")),
		testutil.Cash(pension.ID, model.ActionFund, "500", testutil.M("2024-02")),
		testutil.Cash(pension.ID, model.ActionValue, "600", testutil.M("2024-03")),
		testutil.Cash(savings.ID, model.ActionFund, "100", testutil.M("2024-01")),
		testutil.Cash(savings.ID, model.ActionWithdraw, "100", testutil.M("2024-02")),
	} {
		testutil.CreateTransaction(t, db, tx)
	}

	// Execute
	series, err := svc.Portfolios.Series(ctx, portfolio.ID, testutil.M("2024-03"))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "EUR", series.Currency)
	require.Len(t, series.Rows, 3)

	tests := []struct {
		month    string
		active   int
		baseCost string
		actual   string
		value    string
	}{
		{"2024-01", 2, "1100", "1100", "0"},
		{"2024-02", 3, "1450", "1450", "450"},
		{"2024-03", 2, "1450", "1590", "540"},
	}
	for i, tt := range tests {
		t.Run(tt.month, func(t *testing.T) {
			row := series.Rows[i]
			assert.Equal(t, testutil.M(tt.month), row.Date)
			assert.Equal(t, tt.active, row.ActiveAccounts)
			assert.True(t, row.BaseCost.Equal(testutil.D(tt.baseCost)), "base cost %s", row.BaseCost)
			assert.True(t, row.Cost.Equal(row.BaseCost), "cost is the base cost")
			assert.True(t, row.Actual.Equal(testutil.D(tt.actual)), "actual %s", row.Actual)
			assert.True(t, row.Value.Equal(testutil.D(tt.value)), "value %s", row.Value)
		})
	}

	last := series.Rows[2]
	assert.True(t, last.TransIn.Equal(testutil.D("50")))
	assert.True(t, last.Growth.Equal(testutil.D("90")), "growth %s", last.Growth)

	t.Run("members", func(t *testing.T) {
		members, err := svc.Portfolios.Accounts(ctx, portfolio.ID)
		require.NoError(t, err)
		ids := make([]string, 0, len(members))
		for _, a := range members {
			ids = append(ids, a.ID)
		}
		assert.ElementsMatch(t, []string{broker.ID, pension.ID, savings.ID}, ids)
	})

	t.Run("missing exchange rate", func(t *testing.T) {
		// Setup
		testutil.NewAccount().InPortfolio(portfolio.ID).WithCurrency("GBP").Build(t, db)

		// Execute
		_, err := svc.Portfolios.Series(ctx, portfolio.ID, testutil.M("2024-03"))

		// Assert
		assert.ErrorIs(t, err, apperrors.ErrExchangeRateNotFound)
	})
}

// TestPortfolioService_Series_Empty tests a portfolio without members.
//
// WHY: A new portfolio has no accounts yet. Its series must be empty rather than an error.
func TestPortfolioService_Series_Empty(t *testing.T) {
	// Setup
	db := testutil.SetupTestDB(t)
	svc := testutil.NewTestServices(t, db)
	portfolio := testutil.NewPortfolio().Build(t, db)

	// Execute
	series, err := svc.Portfolios.Series(context.Background(), portfolio.ID, testutil.M("2024-03"))

	// Assert
	require.NoError(t, err)
	assert.Empty(t, series.Rows)
}

// TestPortfolioService_RealSeries tests inflation-adjusted portfolio series.
//
// WHY: Real returns divide every amount by the index relative to the base month. A month without a
// published index must reuse the last one.
func TestPortfolioService_RealSeries(t *testing.T) {
	// Setup
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	svc := testutil.NewTestServices(t, db)

	portfolio := testutil.NewPortfolio().Build(t, db)
	account := testutil.NewAccount().InPortfolio(portfolio.ID).WithKind(model.KindCash).StartingAt(testutil.M("2024-01")).Build(t, db)
	testutil.CreateTransaction(t, db, testutil.Cash(account.ID, model.ActionFund, "1000", testutil.M("2024-01")))
	testutil.CreateTransaction(t, db, testutil.Cash(account.ID, model.ActionDividend, "250", testutil.M("2024-03")))

	require.NoError(t, svc.RefData.UpsertInflation(ctx, model.InflationIndex{Region: "NL", Date: testutil.M("2024-01"), Index: testutil.D("100")}))
	require.NoError(t, svc.RefData.UpsertInflation(ctx, model.InflationIndex{Region: "NL", Date: testutil.M("2024-03"), Index: testutil.D("125")}))

	// Execute
	deflated, err := svc.Portfolios.RealSeries(ctx, portfolio.ID, testutil.M("2024-03"), "NL", testutil.M("2024-01"))

	// Assert
	require.NoError(t, err)
	require.Len(t, deflated.Rows, 3)

	assert.True(t, deflated.Rows[0].Actual.Equal(testutil.D("1000")))
	assert.True(t, deflated.Rows[1].Actual.Equal(testutil.D("1000")), "index carried forward")
	assert.True(t, deflated.Rows[2].Actual.Equal(testutil.D("1000")), "1250 deflated by 100/125: %s", deflated.Rows[2].Actual)
	assert.True(t, deflated.Rows[2].BaseCost.Equal(testutil.D("800")))
	assert.Equal(t, 1, deflated.Rows[2].ActiveAccounts)

	t.Run("unknown region", func(t *testing.T) {
		_, err := svc.Portfolios.RealSeries(ctx, portfolio.ID, testutil.M("2024-03"), "XX", testutil.M("2024-01"))
		assert.ErrorIs(t, err, apperrors.ErrInflationNotFound)
	})
}
