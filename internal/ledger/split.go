package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/ndewijer/valuation-engine/internal/model"
	"github.com/ndewijer/valuation-engine/internal/month"
)

// splitSchedule holds the split events of an equity.
//
// A split effective in month S rescales every transaction dated before S. Transactions dated in S
// or later are assumed to be quoted on the post-split basis already. A transaction that lists the
// split in AppliedSplits is never rescaled by it, whatever its date.
type splitSchedule struct {
	splits []model.EquityEvent
}

func newSplitSchedule(events []model.EquityEvent) splitSchedule {
	var s splitSchedule
	for _, e := range events {
		if e.Type.IsSplit() && e.Value.IsPositive() {
			s.splits = append(s.splits, e)
		}
	}
	return s
}

// factor returns the multiplier from the raw quantity of t to the current share basis.
func (s splitSchedule) factor(t model.Transaction) decimal.Decimal {
	f := decimal.NewFromInt(1)
	for _, e := range s.splits {
		if e.Date.After(t.Date) && !t.HasAppliedSplit(e.ID) {
			f = f.Mul(e.Value)
		}
	}
	return f
}

// dividendFactor returns the divisor for a per-share payout of month m: payouts quoted before a
// split with adjusted dividends are per pre-split share.
func (s splitSchedule) dividendFactor(m month.Month) decimal.Decimal {
	f := decimal.NewFromInt(1)
	for _, e := range s.splits {
		if e.Type == model.EventSplitAdjustedDividends && e.Date.After(m) {
			f = f.Mul(e.Value)
		}
	}
	return f
}

// AdjustedQuantity returns the quantity of t on the current share basis given the equity's events.
func AdjustedQuantity(t model.Transaction, events []model.EquityEvent) decimal.Decimal {
	return t.Quantity.Mul(newSplitSchedule(events).factor(t))
}

// CheckShares replays the share count of one holding over txs and returns the first sale that
// exceeds the shares held at that point, wrapping apperrors.ErrInsufficientShares. Prices and
// dividend events are not needed.
func CheckShares(equityID string, txs []model.Transaction, events []model.EquityEvent) error {
	own := make([]model.Transaction, 0, len(txs))
	for _, t := range txs {
		if t.EquityID == equityID {
			own = append(own, t)
		}
	}
	SortTransactions(own)

	splits := newSplitSchedule(events)
	var st state
	for _, t := range own {
		if _, err := st.apply(t, splits.factor(t)); err != nil {
			return err
		}
	}
	return nil
}
