package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/valuation-engine/internal/month"
)

// Equity is a priced instrument that accounts can hold.
type Equity struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

// Source is the provenance of a price. Higher values win over lower ones for the same cell.
type Source int

// Price sources, lowest priority first.
const (
	SourceEstimate Source = iota + 1
	SourceAPI
	SourceUpload
	SourceManual
)

func (s Source) String() string {
	switch s {
	case SourceEstimate:
		return "estimate"
	case SourceAPI:
		return "api"
	case SourceUpload:
		return "upload"
	case SourceManual:
		return "manual"
	}
	return fmt.Sprintf("source(%d)", int(s))
}

// IsValid reports whether s is a known source.
func (s Source) IsValid() bool { return s >= SourceEstimate && s <= SourceManual }

// Observed reports whether the price was observed rather than interpolated.
func (s Source) Observed() bool { return s > SourceEstimate }

// ParseSource parses a source name.
func ParseSource(str string) (Source, error) {
	for s := SourceEstimate; s <= SourceManual; s++ {
		if strings.EqualFold(str, s.String()) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown price source %q", str)
}

// EquityValue is the price of an equity for a month.
type EquityValue struct {
	EquityID string          `json:"equityId"`
	Date     month.Month     `json:"date"`
	Price    decimal.Decimal `json:"price"`
	Source   Source          `json:"source"`
}

// EventType is the kind of a corporate action.
type EventType string

// Corporate action kinds.
const (
	EventDividend EventType = "dividend"
	EventSplit    EventType = "split"
	// EventSplitAdjustedDividends is a split whose earlier dividend payouts are quoted per
	// pre-split share and must be rescaled as well.
	EventSplitAdjustedDividends EventType = "split_adjusted_dividends"
)

// IsSplit reports whether the event rescales share quantities.
func (t EventType) IsSplit() bool {
	return t == EventSplit || t == EventSplitAdjustedDividends
}

// EquityEvent is a corporate action effective for a month.
type EquityEvent struct {
	ID       string          `json:"id"`
	EquityID string          `json:"equityId"`
	Date     month.Month     `json:"date"`
	Type     EventType       `json:"type"`
	Value    decimal.Decimal `json:"value"`
}

// ExchangeRate converts one unit of From into To for a month.
type ExchangeRate struct {
	From string          `json:"from"`
	To   string          `json:"to"`
	Date month.Month     `json:"date"`
	Rate decimal.Decimal `json:"rate"`
}

// InflationIndex is a price index level for a region and month.
type InflationIndex struct {
	Region string          `json:"region"`
	Date   month.Month     `json:"date"`
	Index  decimal.Decimal `json:"index"`
}
