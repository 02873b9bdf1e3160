package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/valuation-engine/internal/apperrors"
	"github.com/ndewijer/valuation-engine/internal/ibkr"
	"github.com/ndewijer/valuation-engine/internal/model"
	"github.com/ndewijer/valuation-engine/internal/testutil"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func cashLine(id, typ, symbol, currency, amount string, date time.Time) ibkr.CashEntry {
	return ibkr.CashEntry{
		TransactionID: id,
		Date:          date,
		Type:          typ,
		Symbol:        symbol,
		Currency:      currency,
		Amount:        testutil.D(amount),
	}
}

func brokerStatement() ibkr.Statement {
	return ibkr.Statement{
		AccountID: "U1234567",
		From:      day(2024, time.January, 1),
		To:        day(2024, time.March, 31),
		Cash: []ibkr.CashEntry{
			cashLine("1", ibkr.TypeDeposits, "", "EUR", "1000", day(2024, time.January, 1)),
			cashLine("2", ibkr.TypeDeposits, "", "EUR", "-200", day(2024, time.February, 1)),
			cashLine("3", ibkr.TypeDividends, "VWRL", "EUR", "12.5", day(2024, time.March, 1)),
			cashLine("4", ibkr.TypeInLieu, "XYZ", "EUR", "4.1", day(2024, time.March, 1)),
			cashLine("5", ibkr.TypeInterestReceived, "", "EUR", "3.2", day(2024, time.March, 1)),
			cashLine("6", ibkr.TypeDividends, "AAPL", "USD", "7", day(2024, time.March, 1)),
			cashLine("7", "Withholding Tax", "VWRL", "EUR", "-1.88", day(2024, time.March, 1)),
			cashLine("8", ibkr.TypeDividends, "VWRL", "EUR", "-12.5", day(2024, time.March, 1)),
		},
		Rates: []ibkr.ConversionRate{
			{Date: day(2024, time.January, 15), From: "USD", To: "EUR", Rate: testutil.D("0.91")},
			{Date: day(2024, time.January, 31), From: "USD", To: "EUR", Rate: testutil.D("0.92")},
			{Date: day(2024, time.January, 31), From: "EUR", To: "EUR", Rate: testutil.D("1")},
		},
	}
}

// TestStatementService_Import tests mapping a broker statement onto an account.
//
// WHY: Statements mix deposits, income, taxes and reversals. Only entries that move the account's
// value are recorded, and rates of the statement feed currency conversion.
func TestStatementService_Import(t *testing.T) {
	// Setup
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	statements, svc := testutil.NewTestStatementService(t, db, testutil.NewMockFlexClient())

	account := testutil.NewAccount().Build(t, db)
	equity := testutil.NewEquity().WithSymbol("VWRL").Build(t, db)

	// Execute
	result, err := statements.Import(ctx, account.ID, brokerStatement())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, model.StatementImportResult{Inserted: 5, Ignored: 3, Rates: 2}, result)

	txs, err := svc.Transactions.GetTransactions(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, txs, 5)

	byAmount := make(map[string]model.Transaction, len(txs))
	for _, tx := range txs {
		byAmount[tx.Quantity.String()] = tx
	}

	assert.Equal(t, model.ActionFund, byAmount["1000"].Action)
	assert.Equal(t, testutil.M("2024-01"), byAmount["1000"].Date)
	assert.Equal(t, model.ActionWithdraw, byAmount["200"].Action)
	assert.Equal(t, testutil.M("2024-02"), byAmount["200"].Date)

	assert.Equal(t, model.ActionDividend, byAmount["12.5"].Action)
	assert.Equal(t, equity.ID, byAmount["12.5"].EquityID, "dividends resolve the equity by symbol")
	assert.Empty(t, byAmount["4.1"].EquityID, "unknown symbols are recorded as interest")
	assert.Equal(t, model.ActionDividend, byAmount["3.2"].Action)
	assert.Empty(t, byAmount["3.2"].EquityID)

	rate, err := svc.RefData.FXRate(ctx, "USD", "EUR", testutil.M("2024-02"))
	require.NoError(t, err)
	assert.True(t, rate.Equal(testutil.D("0.92")), "the latest rate of a month wins")

	t.Run("reimport records nothing", func(t *testing.T) {
		// Execute
		again, err := statements.Import(ctx, account.ID, brokerStatement())

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 0, again.Inserted)
		assert.Equal(t, 5, again.Skipped)

		txs, err := svc.Transactions.GetTransactions(ctx, account.ID)
		require.NoError(t, err)
		assert.Len(t, txs, 5)
	})
}

// TestStatementService_Import_CashAccount tests a statement imported into a cash account.
//
// WHY: Cash accounts hold no shares, so dividends from the broker must arrive as interest growth.
func TestStatementService_Import_CashAccount(t *testing.T) {
	// Setup
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	statements, svc := testutil.NewTestStatementService(t, db, testutil.NewMockFlexClient())

	account := testutil.NewAccount().WithKind(model.KindCash).Build(t, db)
	testutil.NewEquity().WithSymbol("VWRL").Build(t, db)

	st := ibkr.Statement{
		AccountID: "U1234567",
		Cash: []ibkr.CashEntry{
			cashLine("1", ibkr.TypeDeposits, "", "EUR", "500", day(2024, time.January, 1)),
			cashLine("2", ibkr.TypeDividends, "VWRL", "EUR", "6", day(2024, time.February, 1)),
		},
	}

	// Execute
	result, err := statements.Import(ctx, account.ID, st)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)

	series, err := svc.Accounts.Series(ctx, account.ID, testutil.M("2024-02"))
	require.NoError(t, err)
	require.Len(t, series.Rows, 2)
	last := series.Rows[1]
	assert.True(t, last.Cash.Equal(testutil.D("506")), "cash accounts take dividends as interest")
	assert.True(t, last.Growth.Equal(testutil.D("6")))
}

// TestStatementService_Import_UnknownAccount tests a statement for a missing account.
//
// WHY: A misconfigured account ID must fail the import instead of writing orphaned entries.
func TestStatementService_Import_UnknownAccount(t *testing.T) {
	// Setup
	db := testutil.SetupTestDB(t)
	statements, _ := testutil.NewTestStatementService(t, db, testutil.NewMockFlexClient())

	// Execute
	_, err := statements.Import(context.Background(), testutil.MakeID(), brokerStatement())

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
}

// TestStatementService_Sync tests fetching and importing statements from the broker.
//
// WHY: The scheduled sync is unattended. Every statement returned must be imported, and a broker
// outage must surface as an error for the job log.
func TestStatementService_Sync(t *testing.T) {
	// Setup
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	second := ibkr.Statement{
		AccountID: "U7654321",
		Cash: []ibkr.CashEntry{
			cashLine("9", ibkr.TypeDeposits, "", "EUR", "300", day(2024, time.April, 1)),
		},
	}
	client := testutil.NewMockFlexClient(brokerStatement(), second)
	statements, _ := testutil.NewTestStatementService(t, db, client)
	account := testutil.NewAccount().Build(t, db)

	// Execute
	result, err := statements.Sync(ctx, "token", 42, account.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, model.StatementImportResult{Inserted: 6, Ignored: 3, Rates: 2}, result)
	assert.Equal(t, 1, client.Calls)

	t.Run("fetch errors are returned", func(t *testing.T) {
		// Setup
		boom := errors.New("flex service down")
		failing, _ := testutil.NewTestStatementService(t, db, testutil.NewMockFlexClient().WithError(boom))

		// Execute
		_, err := failing.Sync(ctx, "token", 42, account.ID)

		// Assert
		assert.ErrorIs(t, err, boom)
	})

	t.Run("job", func(t *testing.T) {
		// Execute
		job := statements.Job("token", 42, account.ID)

		// Assert
		assert.Equal(t, "ibkr-statement-import", job.Name())
		require.NoError(t, job.Run(ctx))
		assert.Equal(t, 2, client.Calls)
	})
}
