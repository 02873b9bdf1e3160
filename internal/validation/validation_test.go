package validation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/valuation-engine/internal/apperrors"
	"github.com/ndewijer/valuation-engine/internal/model"
	"github.com/ndewijer/valuation-engine/internal/month"
)

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	return verr.Fields
}

func TestValidateCurrency(t *testing.T) {
	for _, ok := range []string{"EUR", "USD", "GBP", "JPY"} {
		assert.NoError(t, ValidateCurrency(ok), ok)
	}
	for _, bad := range []string{"", "eur", "EURO", "XXZ"} {
		assert.ErrorIs(t, ValidateCurrency(bad), apperrors.ErrInvalidCurrency, bad)
	}
}

func TestValidateTransaction(t *testing.T) {
	accountID := uuid.NewString()
	equityID := uuid.NewString()
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	t.Run("accepts a buy", func(t *testing.T) {
		tx := model.TradeTransaction(accountID, equityID, model.ActionBuy, decimal.NewFromInt(5), decimal.NewFromInt(10), day)
		assert.NoError(t, ValidateTransaction(tx))
	})

	t.Run("accepts interest without equity", func(t *testing.T) {
		tx := model.CashTransaction(accountID, model.ActionDividend, decimal.NewFromInt(3), day)
		assert.NoError(t, ValidateTransaction(tx))
	})

	t.Run("accepts a zero balance", func(t *testing.T) {
		tx := model.CashTransaction(accountID, model.ActionBalance, decimal.Zero, day)
		assert.NoError(t, ValidateTransaction(tx))
	})

	t.Run("requires equity for trades", func(t *testing.T) {
		tx := model.CashTransaction(accountID, model.ActionBuy, decimal.NewFromInt(5), day)
		assert.Contains(t, fieldErrors(t, ValidateTransaction(tx)), "equityId")
	})

	t.Run("forbids equity on funding", func(t *testing.T) {
		tx := model.TradeTransaction(accountID, equityID, model.ActionFund, decimal.NewFromInt(5), decimal.NewFromInt(1), day)
		assert.Contains(t, fieldErrors(t, ValidateTransaction(tx)), "equityId")
	})

	t.Run("rejects negative magnitudes", func(t *testing.T) {
		tx := model.CashTransaction(accountID, model.ActionWithdraw, decimal.NewFromInt(-5), day)
		assert.Contains(t, fieldErrors(t, ValidateTransaction(tx)), "quantity")
	})

	t.Run("proceeds only on sell", func(t *testing.T) {
		tx := model.TradeTransaction(accountID, equityID, model.ActionBuy, decimal.NewFromInt(5), decimal.NewFromInt(10), day)
		tx.Proceeds = decimal.NewNullDecimal(decimal.NewFromInt(60))
		assert.Contains(t, fieldErrors(t, ValidateTransaction(tx)), "proceeds")
	})

	t.Run("collects every problem", func(t *testing.T) {
		errs := fieldErrors(t, ValidateTransaction(model.Transaction{Action: "gift"}))
		for _, f := range []string{"accountId", "action", "quantity", "price", "realDate"} {
			assert.Contains(t, errs, f)
		}
	})
}

func TestValidateAccount(t *testing.T) {
	good := model.Account{
		ID:       uuid.NewString(),
		Name:     "Brokerage",
		Currency: "EUR",
		Kind:     model.KindInvestment,
		Start:    month.Of(2024, time.January),
	}
	assert.NoError(t, ValidateAccount(good))

	bad := good
	bad.Name = " "
	bad.Currency = "ABC"
	bad.Kind = "savings"
	errs := fieldErrors(t, ValidateAccount(bad))
	assert.Contains(t, errs, "name")
	assert.Contains(t, errs, "currency")
	assert.Contains(t, errs, "kind")
}

func TestValidateEquityEvent(t *testing.T) {
	base := model.EquityEvent{EquityID: uuid.NewString(), Date: month.Of(2024, time.June)}

	split := base
	split.Type = model.EventSplit
	split.Value = decimal.NewFromInt(2)
	assert.NoError(t, ValidateEquityEvent(split))

	split.Value = decimal.Zero
	assert.ErrorIs(t, ValidateEquityEvent(split), apperrors.ErrConfiguration)

	div := base
	div.Type = model.EventDividend
	div.Value = decimal.NewFromFloat(-0.5)
	assert.ErrorIs(t, ValidateEquityEvent(div), apperrors.ErrConfiguration)

	unknown := base
	unknown.Type = "merger"
	unknown.Value = decimal.NewFromInt(1)
	assert.ErrorIs(t, ValidateEquityEvent(unknown), apperrors.ErrConfiguration)
}

func TestValidateReferenceValues(t *testing.T) {
	m := month.Of(2024, time.January)

	assert.NoError(t, ValidateEquityValue(model.EquityValue{EquityID: "e", Date: m, Price: decimal.NewFromInt(1), Source: model.SourceAPI}))
	assert.ErrorIs(t, ValidateEquityValue(model.EquityValue{EquityID: "e", Date: m, Price: decimal.NewFromInt(1)}), apperrors.ErrConfiguration)
	assert.ErrorIs(t, ValidateEquityValue(model.EquityValue{EquityID: "e", Date: m, Source: model.SourceAPI}), apperrors.ErrConfiguration)

	assert.NoError(t, ValidateExchangeRate(model.ExchangeRate{From: "USD", To: "EUR", Date: m, Rate: decimal.NewFromFloat(0.9)}))
	assert.ErrorIs(t, ValidateExchangeRate(model.ExchangeRate{From: "USD", To: "???", Date: m, Rate: decimal.NewFromFloat(0.9)}), apperrors.ErrConfiguration)

	assert.NoError(t, ValidateInflationIndex(model.InflationIndex{Region: "EU", Date: m, Index: decimal.NewFromInt(100)}))
	assert.ErrorIs(t, ValidateInflationIndex(model.InflationIndex{Region: "EU", Date: m}), apperrors.ErrConfiguration)
}
