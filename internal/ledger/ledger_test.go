package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/valuation-engine/internal/apperrors"
	"github.com/ndewijer/valuation-engine/internal/model"
	"github.com/ndewijer/valuation-engine/internal/month"
)

const equity = "eq-1"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func trade(id string, action model.Action, qty, price, on string) model.Transaction {
	t := model.TradeTransaction("acc", equity, action, d(qty), d(price), day(on))
	t.ID = id
	return t
}

func flatPrices(from, to string, price string) map[month.Month]model.EquityValue {
	out := make(map[month.Month]model.EquityValue)
	for m := range month.Range(month.MustParse(from), month.MustParse(to)) {
		out[m] = model.EquityValue{EquityID: equity, Date: m, Price: d(price), Source: model.SourceAPI}
	}
	return out
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "want %s got %s %v", want, got, msgAndArgs)
}

// TestReplay_BuyValuesAtMonthPrice tests that a purchase is valued at the month's price.
//
// WHY: A purchase moves cash into shares at cost. The month of the buy must show no growth, and
// months before the first trade must read zero shares.
func TestReplay_BuyValuesAtMonthPrice(t *testing.T) {
	// Execute
	h, err := Replay(Input{
		EquityID:     equity,
		Transactions: []model.Transaction{trade("t1", model.ActionBuy, "50", "10", "2024-02-01")},
		Prices:       flatPrices("2024-02-01", "2024-04-01", "10"),
		Through:      month.MustParse("2024-04-01"),
	})

	// Assert
	require.NoError(t, err)
	require.Len(t, h.Rows, 3)

	row, ok := h.At(month.MustParse("2024-02-01"))
	require.True(t, ok)
	assertDecimal(t, "50", row.Shares)
	assertDecimal(t, "500", row.Cost)
	assertDecimal(t, "500", row.Value)
	assertDecimal(t, "-500", row.CashFlow)
	assertDecimal(t, "0", row.Growth)

	before, ok := h.At(month.MustParse("2023-12-01"))
	require.True(t, ok)
	assert.True(t, before.Shares.IsZero())
}

// TestReplay_SellBeyondHoldingsIsInvalidLedger tests a sale larger than the holding.
//
// WHY: Selling shares that were never bought means the log is incomplete. Replay must stop with an
// invalid ledger error instead of going short.
func TestReplay_SellBeyondHoldingsIsInvalidLedger(t *testing.T) {
	// Execute
	_, err := Replay(Input{
		EquityID: equity,
		Transactions: []model.Transaction{
			trade("t1", model.ActionBuy, "50", "10", "2024-02-01"),
			trade("t2", model.ActionSell, "60", "10", "2024-03-01"),
		},
		Prices:  flatPrices("2024-02-01", "2024-03-01", "10"),
		Through: month.MustParse("2024-03-01"),
	})

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientShares)
	assert.ErrorIs(t, err, apperrors.ErrInvalidLedger)
}

// TestReplay_SellRealizesProceedsAboveBasis tests realized gains on a partial sale.
//
// WHY: A sale releases average cost for the shares sold. Recorded proceeds above that basis are
// realized, and the remaining shares keep their share of the cost.
func TestReplay_SellRealizesProceedsAboveBasis(t *testing.T) {
	// Setup
	sell := trade("t2", model.ActionSell, "20", "10", "2024-03-01")
	sell.Proceeds = decimal.NewNullDecimal(d("260"))

	// Execute
	h, err := Replay(Input{
		EquityID: equity,
		Transactions: []model.Transaction{
			trade("t1", model.ActionBuy, "50", "10", "2024-02-01"),
			sell,
		},
		Prices:  flatPrices("2024-02-01", "2024-03-01", "13"),
		Through: month.MustParse("2024-03-01"),
	})

	// Assert
	require.NoError(t, err)

	row, _ := h.Last()
	assertDecimal(t, "30", row.Shares)
	assertDecimal(t, "300", row.Cost)
	assertDecimal(t, "260", row.CashFlow)
	assertDecimal(t, "60", row.Realized)
	assertDecimal(t, "390", row.Value)
}

// TestReplay_SellingOutReleasesResidualBasis tests that selling every share clears the cost basis.
//
// WHY: Average cost leaves rounding residue behind. A holding sold down to zero must drop all of
// its basis so nothing lingers in later months.
func TestReplay_SellingOutReleasesResidualBasis(t *testing.T) {
	// Execute
	h, err := Replay(Input{
		EquityID: equity,
		Transactions: []model.Transaction{
			trade("t1", model.ActionBuy, "10", "10", "2024-02-01"),
			trade("t2", model.ActionBuy, "10", "12", "2024-02-01"),
			trade("t3", model.ActionSell, "20", "10", "2024-03-01"),
		},
		Prices:  flatPrices("2024-02-01", "2024-03-01", "11"),
		Through: month.MustParse("2024-03-01"),
	})

	// Assert
	require.NoError(t, err)

	row, _ := h.Last()
	assert.True(t, row.Shares.IsZero())
	assert.True(t, row.Cost.IsZero())
	assertDecimal(t, "-20", row.Realized)
}

// TestReplay_OrderIndependent tests that input order does not change the result.
//
// WHY: Transactions come from the database and from broker files in arbitrary order. Replay sorts
// them itself, so any permutation must give the same rows.
func TestReplay_OrderIndependent(t *testing.T) {
	// Setup
	txs := []model.Transaction{
		trade("t3", model.ActionSell, "5", "10", "2024-04-10"),
		trade("t1", model.ActionBuy, "10", "10", "2024-02-01"),
		trade("t2", model.ActionBuy, "5", "12", "2024-03-20"),
	}
	in := Input{EquityID: equity, Transactions: txs, Prices: flatPrices("2024-02-01", "2024-06-01", "11"), Through: month.MustParse("2024-06-01")}

	// Execute
	first, err := Replay(in)
	require.NoError(t, err)

	in.Transactions = []model.Transaction{txs[1], txs[2], txs[0]}
	second, err := Replay(in)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, first.Rows, second.Rows)
}

// TestReplay_SplitRescalesEarlierQuantitiesOnce tests split rescaling of earlier trades.
//
// WHY: Splits are applied at read time. Earlier quantities must be rescaled to the current basis on
// every replay without compounding, while later trades stay as entered.
func TestReplay_SplitRescalesEarlierQuantitiesOnce(t *testing.T) {
	// Setup
	events := []model.EquityEvent{
		{ID: "split-1", EquityID: equity, Date: month.MustParse("2024-04-01"), Type: model.EventSplit, Value: d("2")},
	}
	in := Input{
		EquityID: equity,
		Transactions: []model.Transaction{
			trade("t1", model.ActionBuy, "10", "100", "2024-02-01"),
			trade("t2", model.ActionBuy, "4", "50", "2024-05-01"),
		},
		Events:  events,
		Prices:  flatPrices("2024-02-01", "2024-05-01", "50"),
		Through: month.MustParse("2024-05-01"),
	}

	// Execute
	first, err := Replay(in)
	require.NoError(t, err)
	second, err := Replay(in)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, first.Rows, second.Rows, "replay must be idempotent")

	feb, _ := first.At(month.MustParse("2024-02-01"))
	assertDecimal(t, "20", feb.Shares, "pre-split rows use the post-split basis")
	assertDecimal(t, "1000", feb.Cost)

	may, _ := first.At(month.MustParse("2024-05-01"))
	assertDecimal(t, "24", may.Shares)
	assertDecimal(t, "1200", may.Cost)
}

// TestReplay_AppliedSplitIsNotReapplied tests a trade already on the post-split basis.
//
// WHY: Broker files may report quantities that already include a split. Such a trade lists the
// split and must not be multiplied again.
func TestReplay_AppliedSplitIsNotReapplied(t *testing.T) {
	// Setup
	events := []model.EquityEvent{
		{ID: "split-1", EquityID: equity, Date: month.MustParse("2024-04-01"), Type: model.EventSplit, Value: d("3")},
	}
	adjusted := trade("t1", model.ActionBuy, "30", "10", "2024-02-01")
	adjusted.AppliedSplits = []string{"split-1"}

	// Execute
	h, err := Replay(Input{
		EquityID:     equity,
		Transactions: []model.Transaction{adjusted},
		Events:       events,
		Prices:       flatPrices("2024-02-01", "2024-04-01", "10"),
		Through:      month.MustParse("2024-04-01"),
	})

	// Assert
	require.NoError(t, err)

	row, _ := h.Last()
	assertDecimal(t, "30", row.Shares)
	assertDecimal(t, "30", AdjustedQuantity(adjusted, events))
}

// TestReplay_DividendEventsUseSharesHeldBeforeTheMonth tests dividend events against the holding.
//
// WHY: A dividend event pays per share held before its month. A purchase in the same month as the
// payout must not earn it.
func TestReplay_DividendEventsUseSharesHeldBeforeTheMonth(t *testing.T) {
	// Setup
	events := []model.EquityEvent{
		{ID: "div-1", EquityID: equity, Date: month.MustParse("2024-02-01"), Type: model.EventDividend, Value: d("1")},
		{ID: "div-2", EquityID: equity, Date: month.MustParse("2024-03-01"), Type: model.EventDividend, Value: d("0.5")},
	}

	// Execute
	h, err := Replay(Input{
		EquityID:     equity,
		Transactions: []model.Transaction{trade("t1", model.ActionBuy, "10", "10", "2024-02-01")},
		Events:       events,
		Prices:       flatPrices("2024-02-01", "2024-03-01", "10"),
		Through:      month.MustParse("2024-03-01"),
	})

	// Assert
	require.NoError(t, err)

	feb, _ := h.At(month.MustParse("2024-02-01"))
	assert.True(t, feb.Dividends.IsZero())

	mar, _ := h.At(month.MustParse("2024-03-01"))
	assertDecimal(t, "5", mar.Dividends)
	assertDecimal(t, "5", mar.CashFlow)
	assertDecimal(t, "5", mar.Returns)
}

// TestReplay_RecordedDividendOverridesEvent tests a recorded dividend against a published one.
//
// WHY: The amount the broker actually paid wins over the published rate, so the dividend is not
// counted twice.
func TestReplay_RecordedDividendOverridesEvent(t *testing.T) {
	// Setup
	events := []model.EquityEvent{
		{ID: "div-1", EquityID: equity, Date: month.MustParse("2024-03-01"), Type: model.EventDividend, Value: d("1")},
	}

	// Execute
	h, err := Replay(Input{
		EquityID: equity,
		Transactions: []model.Transaction{
			trade("t1", model.ActionBuy, "10", "10", "2024-02-01"),
			trade("t2", model.ActionDividend, "10", "0.8", "2024-03-01"),
		},
		Events:  events,
		Prices:  flatPrices("2024-02-01", "2024-03-01", "10"),
		Through: month.MustParse("2024-03-01"),
	})

	// Assert
	require.NoError(t, err)

	row, _ := h.Last()
	assertDecimal(t, "8", row.Dividends)
}

// TestReplay_ReinvestedDividendBuysShares tests a dividend paid out in shares.
//
// WHY: A reinvested dividend is income and a purchase at once. It adds shares and cost without any
// cash leaving the account.
func TestReplay_ReinvestedDividendBuysShares(t *testing.T) {
	// Execute
	h, err := Replay(Input{
		EquityID: equity,
		Transactions: []model.Transaction{
			trade("t1", model.ActionBuy, "10", "10", "2024-02-01"),
			trade("t2", model.ActionReinvestedDividend, "1", "10", "2024-03-01"),
		},
		Prices:  flatPrices("2024-02-01", "2024-03-01", "10"),
		Through: month.MustParse("2024-03-01"),
	})

	// Assert
	require.NoError(t, err)

	row, _ := h.Last()
	assertDecimal(t, "11", row.Shares)
	assertDecimal(t, "110", row.Cost)
	assertDecimal(t, "10", row.Dividends)
	assert.True(t, row.CashFlow.IsZero())
}

// TestReplay_SplitWithAdjustedDividendsRescalesEarlierPayouts tests dividend rates quoted before a
// split.
//
// WHY: Some feeds restate historic dividends per post-split share. Earlier payouts must be divided
// by the split so the income matches what was paid.
func TestReplay_SplitWithAdjustedDividendsRescalesEarlierPayouts(t *testing.T) {
	// Setup
	events := []model.EquityEvent{
		{ID: "div-1", EquityID: equity, Date: month.MustParse("2024-03-01"), Type: model.EventDividend, Value: d("2")},
		{ID: "split-1", EquityID: equity, Date: month.MustParse("2024-05-01"), Type: model.EventSplitAdjustedDividends, Value: d("4")},
	}

	// Execute
	h, err := Replay(Input{
		EquityID:     equity,
		Transactions: []model.Transaction{trade("t1", model.ActionBuy, "10", "40", "2024-02-01")},
		Events:       events,
		Prices:       flatPrices("2024-02-01", "2024-05-01", "10"),
		Through:      month.MustParse("2024-05-01"),
	})

	// Assert
	require.NoError(t, err)

	row, _ := h.Last()
	assertDecimal(t, "40", row.Shares)
	// 40 post-split shares * (2 / 4) per post-split share.
	assertDecimal(t, "20", row.Dividends)
}

// TestReplay_MissingPrice tests months without a price.
//
// WHY: A held position cannot be valued without a price and must fail loudly. Once the holding is
// flat the price no longer matters.
func TestReplay_MissingPrice(t *testing.T) {
	t.Run("fails while shares are held", func(t *testing.T) {
		// Execute
		_, err := Replay(Input{
			EquityID:     equity,
			Transactions: []model.Transaction{trade("t1", model.ActionBuy, "1", "10", "2024-02-01")},
			Through:      month.MustParse("2024-02-01"),
		})

		// Assert
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("is fine once flat", func(t *testing.T) {
		// Execute
		h, err := Replay(Input{
			EquityID: equity,
			Transactions: []model.Transaction{
				trade("t1", model.ActionBuy, "1", "10", "2024-02-01"),
				trade("t2", model.ActionSell, "1", "10", "2024-03-01"),
			},
			Prices:  flatPrices("2024-02-01", "2024-02-01", "10"),
			Through: month.MustParse("2024-04-01"),
		})

		// Assert
		require.NoError(t, err)
		assert.Len(t, h.Rows, 3)
	})
}

// TestReplay_NoTransactions tests an equity that was never traded.
//
// WHY: An untraded equity yields an empty history rather than a run of zero rows.
func TestReplay_NoTransactions(t *testing.T) {
	// Execute
	h, err := Replay(Input{EquityID: equity, Through: month.MustParse("2024-04-01")})

	// Assert
	require.NoError(t, err)
	assert.Empty(t, h.Rows)

	_, ok := h.Last()
	assert.False(t, ok)
}

// TestAdjustedQuantity_SplitsCompareReportingMonths pins split timing to reporting months.
//
// WHY: Events and transactions are both stored by reporting month. A buy on the 10th and a split
// on the 20th of March both report in April, so the buy is read as already on the post-split
// basis. Only a trade reporting in an earlier month is rescaled.
func TestAdjustedQuantity_SplitsCompareReportingMonths(t *testing.T) {
	// Setup
	events := []model.EquityEvent{
		{ID: "split-1", EquityID: equity, Date: month.Normalize(day("2024-03-20")), Type: model.EventSplit, Value: d("2")},
	}
	sameMonth := trade("t1", model.ActionBuy, "10", "100", "2024-03-10")
	earlier := trade("t2", model.ActionBuy, "10", "100", "2024-03-01")

	// Execute
	same := AdjustedQuantity(sameMonth, events)
	before := AdjustedQuantity(earlier, events)

	// Assert
	assert.Equal(t, month.MustParse("2024-04-01"), sameMonth.Date)
	assertDecimal(t, "10", same, "a trade reporting in the split month is not rescaled")
	assertDecimal(t, "20", before, "a trade reporting before the split month is rescaled")
}
