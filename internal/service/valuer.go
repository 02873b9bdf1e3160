package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/valuation-engine/internal/apperrors"
	"github.com/ndewijer/valuation-engine/internal/ledger"
	"github.com/ndewijer/valuation-engine/internal/model"
	"github.com/ndewijer/valuation-engine/internal/month"
)

// valuer holds the behaviour that differs between account kinds.
type valuer interface {
	// accepts reports whether the kind can record the action.
	accepts(a model.Action) bool
	// value folds a sorted transaction log into one row per month of [from, to].
	value(ctx context.Context, in valuerInput) (*valuation, error)
	// closeBlocker returns why an account whose last row is row cannot close, or "".
	closeBlocker(row model.AccountRow) string
	// canTransfer reports whether the kind may hand its value to another account on close.
	canTransfer() bool
}

type valuerInput struct {
	account  model.Account
	txs      []model.Transaction
	from, to month.Month
}

func (s *AccountService) valuerFor(kind model.AccountKind) (valuer, error) {
	switch kind {
	case model.KindInvestment:
		return investmentValuer{refData: s.refData}, nil
	case model.KindValue:
		return valueValuer{}, nil
	case model.KindCash:
		return cashValuer{}, nil
	}
	return nil, fmt.Errorf("%w: unknown account kind %q", apperrors.ErrConfiguration, kind)
}

// flows accumulates the money that crossed the account boundary.
type flows struct {
	funds, redeemed, transIn, transOut decimal.Decimal
}

// apply records a cash flow transaction and returns its signed effect on the account.
func (f *flows) apply(t model.Transaction) decimal.Decimal {
	amount := t.Amount()
	switch t.Action {
	case model.ActionFund:
		f.funds = f.funds.Add(amount)
		return amount
	case model.ActionWithdraw:
		f.redeemed = f.redeemed.Sub(amount)
		return amount.Neg()
	case model.ActionTransferIn:
		f.transIn = f.transIn.Add(amount)
		return amount
	case model.ActionTransferOut:
		f.transOut = f.transOut.Sub(amount)
		return amount.Neg()
	}
	return decimal.Zero
}

// row starts the account row of month m with the flow columns filled in.
func (f flows) row(m month.Month) model.AccountRow {
	baseCost := f.funds.Add(f.redeemed)
	return model.AccountRow{
		Date:     m,
		Funds:    f.funds,
		Redeemed: f.redeemed,
		TransIn:  f.transIn,
		TransOut: f.transOut,
		BaseCost: baseCost,
		Cost:     baseCost.Add(f.transIn).Add(f.transOut),
	}
}

func unsupported(a model.Account, t model.Transaction) error {
	return fmt.Errorf("%w: %s in %s account %s (transaction %s)", apperrors.ErrUnsupportedAction, t.Action, a.Kind, a.ID, t.ID)
}

func marketValueBlocker(row model.AccountRow) string {
	if row.Value.IsZero() {
		return ""
	}
	return fmt.Sprintf("Account still holds market value of %s, liquidate holdings first", row.Value.StringFixed(2))
}

// investmentValuer values priced equity holdings plus a cash balance.
type investmentValuer struct {
	refData *RefDataService
}

func (investmentValuer) accepts(a model.Action) bool { return a != model.ActionValue }

func (investmentValuer) canTransfer() bool { return true }

func (investmentValuer) closeBlocker(row model.AccountRow) string { return marketValueBlocker(row) }

func (v investmentValuer) value(ctx context.Context, in valuerInput) (*valuation, error) {
	holdings, err := v.replayHoldings(ctx, in)
	if err != nil {
		return nil, err
	}
	equityIDs := make([]string, 0, len(holdings))
	for id := range holdings {
		equityIDs = append(equityIDs, id)
	}
	slices.Sort(equityIDs)

	var (
		f          flows
		cash       decimal.Decimal
		interest   decimal.Decimal
		adjustment decimal.Decimal
	)
	rows := make([]model.AccountRow, 0, month.Span(in.from, in.to)+1)
	next := 0
	for m := range month.Range(in.from, in.to) {
		var balance *decimal.Decimal
		for ; next < len(in.txs) && in.txs[next].Date == m; next++ {
			t := in.txs[next]
			if t.EquityID != "" {
				continue // replayed by the holding
			}
			switch {
			case t.Action.IsCashFlow():
				cash = cash.Add(f.apply(t))
			case t.Action == model.ActionDividend:
				interest = interest.Add(t.Amount())
				cash = cash.Add(t.Amount())
			case t.Action == model.ActionBalance:
				b := t.Amount()
				balance = &b
			default:
				return nil, unsupported(in.account, t)
			}
		}

		var value, unrealized, realized, dividends decimal.Decimal
		for _, id := range equityIDs {
			h, _ := holdings[id].At(m)
			cash = cash.Add(h.CashFlow)
			value = value.Add(h.Value)
			unrealized = unrealized.Add(h.Value.Sub(h.Cost))
			realized = realized.Add(h.Realized)
			dividends = dividends.Add(h.Dividends)
		}

		// A balance entry states the cash held at the end of its month.
		if balance != nil {
			adjustment = adjustment.Add(balance.Sub(cash))
			cash = *balance
		}

		row := f.row(m)
		row.Cash = cash
		row.Value = value
		row.Actual = cash.Add(value)
		row.Dividends = dividends.Add(interest)
		row.Growth = unrealized.Add(realized).Add(dividends).Add(interest).Add(adjustment)
		rows = append(rows, row)
	}

	return &valuation{
		series:   &model.AccountSeries{AccountID: in.account.ID, Currency: in.account.Currency, Rows: rows},
		holdings: holdings,
	}, nil
}

func (v investmentValuer) replayHoldings(ctx context.Context, in valuerInput) (map[string]*ledger.Holding, error) {
	firstSeen := make(map[string]month.Month)
	for _, t := range in.txs {
		if t.EquityID == "" {
			continue
		}
		if _, ok := firstSeen[t.EquityID]; !ok {
			firstSeen[t.EquityID] = t.Date
		}
	}

	holdings := make(map[string]*ledger.Holding, len(firstSeen))
	for equityID, start := range firstSeen {
		events, err := v.refData.Events(ctx, equityID)
		if err != nil {
			return nil, err
		}
		prices, err := v.refData.PriceSeries(ctx, equityID, start, in.to)
		if err != nil {
			return nil, err
		}
		h, err := ledger.Replay(ledger.Input{
			EquityID:     equityID,
			Transactions: in.txs,
			Events:       events,
			Prices:       prices,
			Through:      in.to,
		})
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", in.account.ID, err)
		}
		holdings[equityID] = h
	}
	return holdings, nil
}

// valueValuer values a single fund whose worth is entered directly. A value entry sets the
// fund's worth; a balance entry states that the fund was turned into that much cash. Flows and
// interest land in whichever of the two the latest entry established, the fund until then.
type valueValuer struct{}

func (valueValuer) accepts(a model.Action) bool {
	switch a {
	case model.ActionBuy, model.ActionSell, model.ActionReinvestedDividend:
		return false
	}
	return true
}

func (valueValuer) canTransfer() bool { return true }

func (valueValuer) closeBlocker(row model.AccountRow) string { return marketValueBlocker(row) }

func (v valueValuer) value(_ context.Context, in valuerInput) (*valuation, error) {
	var (
		f          flows
		fund, cash decimal.Decimal
		interest   decimal.Decimal
		inCash     bool
	)
	credit := func(d decimal.Decimal) {
		if inCash {
			cash = cash.Add(d)
		} else {
			fund = fund.Add(d)
		}
	}

	rows := make([]model.AccountRow, 0, month.Span(in.from, in.to)+1)
	next := 0
	for m := range month.Range(in.from, in.to) {
		for ; next < len(in.txs) && in.txs[next].Date == m; next++ {
			t := in.txs[next]
			if t.EquityID != "" || !v.accepts(t.Action) {
				return nil, unsupported(in.account, t)
			}
			switch t.Action {
			case model.ActionValue:
				fund = t.Amount()
				inCash = false
			case model.ActionBalance:
				cash = t.Amount()
				fund = decimal.Zero
				inCash = true
			case model.ActionDividend:
				interest = interest.Add(t.Amount())
				credit(t.Amount())
			default:
				credit(f.apply(t))
			}
		}

		row := f.row(m)
		row.Cash = cash
		row.Value = fund
		row.Actual = cash.Add(fund)
		row.Dividends = interest
		row.Growth = row.Actual.Sub(row.Cost)
		rows = append(rows, row)
	}

	return &valuation{
		series:   &model.AccountSeries{AccountID: in.account.ID, Currency: in.account.Currency, Rows: rows},
		holdings: map[string]*ledger.Holding{},
	}, nil
}

// cashValuer values an account that only ever holds cash.
type cashValuer struct{}

func (cashValuer) accepts(a model.Action) bool {
	return a.IsCashFlow() || a == model.ActionDividend || a == model.ActionBalance
}

func (cashValuer) canTransfer() bool { return false }

func (cashValuer) closeBlocker(row model.AccountRow) string {
	if row.Cash.IsZero() {
		return ""
	}
	return fmt.Sprintf("Cash account balance must be zero before closing, found %s", row.Cash.StringFixed(2))
}

func (v cashValuer) value(_ context.Context, in valuerInput) (*valuation, error) {
	var f flows
	var cash, interest decimal.Decimal

	rows := make([]model.AccountRow, 0, month.Span(in.from, in.to)+1)
	next := 0
	for m := range month.Range(in.from, in.to) {
		for ; next < len(in.txs) && in.txs[next].Date == m; next++ {
			t := in.txs[next]
			if t.EquityID != "" || !v.accepts(t.Action) {
				return nil, unsupported(in.account, t)
			}
			switch t.Action {
			case model.ActionBalance:
				cash = t.Amount()
			case model.ActionDividend:
				interest = interest.Add(t.Amount())
				cash = cash.Add(t.Amount())
			default:
				cash = cash.Add(f.apply(t))
			}
		}

		row := f.row(m)
		row.Cash = cash
		row.Actual = cash
		row.Dividends = interest
		row.Growth = row.Actual.Sub(row.Cost)
		rows = append(rows, row)
	}

	return &valuation{
		series:   &model.AccountSeries{AccountID: in.account.ID, Currency: in.account.Currency, Rows: rows},
		holdings: map[string]*ledger.Holding{},
	}, nil
}
