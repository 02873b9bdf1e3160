// Package ledger replays the transaction log of a single holding (one equity inside one account)
// month by month.
//
// Replay is a pure fold over the raw transaction log and a snapshot of reference data. Splits are
// applied to raw quantities every time the log is replayed, never written back into it, so replaying
// from scratch always yields the same rows.
package ledger

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/valuation-engine/internal/apperrors"
	"github.com/ndewijer/valuation-engine/internal/model"
	"github.com/ndewijer/valuation-engine/internal/month"
)

// Input is everything needed to reconstruct one holding.
type Input struct {
	EquityID string
	// Transactions of the holding, in any order.
	Transactions []model.Transaction
	// Events are the corporate actions of the equity, in any order.
	Events []model.EquityEvent
	// Prices must cover every month in which shares are held. Gaps are expected to be filled
	// with estimates by the caller.
	Prices map[month.Month]model.EquityValue
	// Through is the last month to produce.
	Through month.Month
}

// Holding is the reconstructed monthly state of a holding. Rows[i] is the state at Start+i.
type Holding struct {
	EquityID string
	Start    month.Month
	Rows     []model.HoldingRow
}

// At returns the state at m. Months before the first transaction yield an empty row.
func (h *Holding) At(m month.Month) (model.HoldingRow, bool) {
	if len(h.Rows) == 0 {
		return model.HoldingRow{Date: m}, false
	}
	i := month.Span(h.Start, m)
	switch {
	case i < 0:
		return model.HoldingRow{Date: m}, true
	case i >= len(h.Rows):
		return model.HoldingRow{}, false
	}
	return h.Rows[i], true
}

// Last returns the final row.
func (h *Holding) Last() (model.HoldingRow, bool) {
	if len(h.Rows) == 0 {
		return model.HoldingRow{}, false
	}
	return h.Rows[len(h.Rows)-1], true
}

// state is the running fold accumulator.
type state struct {
	shares    decimal.Decimal
	cost      decimal.Decimal
	dividends decimal.Decimal
	realized  decimal.Decimal
}

// Replay folds the holding's transactions into one row per month, from the month of the first
// transaction through in.Through.
func Replay(in Input) (*Holding, error) {
	h := &Holding{EquityID: in.EquityID}

	txs := make([]model.Transaction, 0, len(in.Transactions))
	for _, t := range in.Transactions {
		if t.EquityID == in.EquityID {
			txs = append(txs, t)
		}
	}
	if len(txs) == 0 {
		return h, nil
	}
	SortTransactions(txs)

	h.Start = txs[0].Date
	if in.Through.Before(h.Start) {
		return h, nil
	}

	splits := newSplitSchedule(in.Events)
	payouts := dividendPayouts(in.Events)

	h.Rows = make([]model.HoldingRow, 0, month.Span(h.Start, in.Through)+1)

	var st state
	next := 0
	for m := range month.Range(h.Start, in.Through) {
		sharesBefore := st.shares
		cashFlow := decimal.Zero
		explicitDividend := false

		for ; next < len(txs) && txs[next].Date == m; next++ {
			t := txs[next]
			flow, err := st.apply(t, splits.factor(t))
			if err != nil {
				return nil, err
			}
			cashFlow = cashFlow.Add(flow)
			if t.Action == model.ActionDividend || t.Action == model.ActionReinvestedDividend {
				explicitDividend = true
			}
		}

		// Recorded dividends take precedence over the reference payout for the same month.
		if dps, ok := payouts[m]; ok && !explicitDividend && !sharesBefore.IsZero() {
			amount := sharesBefore.Mul(dps.Div(splits.dividendFactor(m)))
			st.dividends = st.dividends.Add(amount)
			cashFlow = cashFlow.Add(amount)
		}

		row := model.HoldingRow{
			Date:      m,
			Shares:    st.shares,
			Cost:      st.cost,
			Dividends: st.dividends,
			CashFlow:  cashFlow,
			Realized:  st.realized,
		}
		if p, ok := in.Prices[m]; ok {
			row.Price = p.Price
			row.PriceSource = p.Source
			row.Value = st.shares.Mul(p.Price)
		} else if !st.shares.IsZero() {
			return nil, fmt.Errorf("%w: %s has %s shares on %s", apperrors.ErrPriceNotFound, in.EquityID, st.shares, m)
		}
		row.Growth = row.Value.Sub(row.Cost)
		row.Returns = row.Value.Add(row.Dividends).Sub(row.Cost)

		h.Rows = append(h.Rows, row)
	}

	return h, nil
}

// apply folds one transaction into the state and returns its cash effect on the account.
// factor is the split adjustment of the transaction's raw quantity.
func (st *state) apply(t model.Transaction, factor decimal.Decimal) (decimal.Decimal, error) {
	qty := t.Quantity.Mul(factor)
	amount := t.Amount()

	switch t.Action {
	case model.ActionBuy:
		st.shares = st.shares.Add(qty)
		st.cost = st.cost.Add(amount)
		return amount.Neg(), nil

	case model.ActionSell:
		if st.shares.LessThan(qty) {
			return decimal.Zero, fmt.Errorf("%w: selling %s of %s on %s with %s held (transaction %s)",
				apperrors.ErrInsufficientShares, qty, t.EquityID, t.Date, st.shares, t.ID)
		}
		proceeds := t.SaleProceeds()
		st.shares = st.shares.Sub(qty)
		st.cost = st.cost.Sub(amount)
		st.realized = st.realized.Add(proceeds.Sub(amount))
		if st.shares.IsZero() && !st.cost.IsZero() {
			// Whatever basis is left once the position is flat has been realized.
			st.realized = st.realized.Sub(st.cost)
			st.cost = decimal.Zero
		}
		return proceeds, nil

	case model.ActionDividend:
		st.dividends = st.dividends.Add(amount)
		return amount, nil

	case model.ActionReinvestedDividend:
		st.dividends = st.dividends.Add(amount)
		st.shares = st.shares.Add(qty)
		st.cost = st.cost.Add(amount)
		return decimal.Zero, nil
	}

	return decimal.Zero, fmt.Errorf("%w: %s on holding %s", apperrors.ErrUnsupportedAction, t.Action, t.EquityID)
}

// SortTransactions orders transactions by reporting month, then by the date they occurred, then by
// insertion order. Imports may arrive in any order; replay must not depend on it.
func SortTransactions(txs []model.Transaction) {
	slices.SortStableFunc(txs, func(a, b model.Transaction) int {
		return cmp.Or(
			a.Date.Compare(b.Date),
			a.RealDate.Compare(b.RealDate),
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})
}

// dividendPayouts sums the per-share dividend events of each month.
func dividendPayouts(events []model.EquityEvent) map[month.Month]decimal.Decimal {
	out := make(map[month.Month]decimal.Decimal)
	for _, e := range events {
		if e.Type == model.EventDividend {
			out[e.Date] = out[e.Date].Add(e.Value)
		}
	}
	return out
}
