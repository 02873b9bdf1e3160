package yahoo

import "time"

// Response represents the raw JSON response structure from the chart API.
//
// The structure includes:
//   - Chart.Result: Array of result objects (typically contains one element)
//   - Chart.Result[].Meta: Symbol metadata (name, currency, exchange)
//   - Chart.Result[].Timestamp: Unix timestamps for each bar
//   - Chart.Result[].Indicators: Price arrays; missing bars are null
//   - Chart.Result[].Events: Dividends and splits keyed by Unix timestamp
//   - Chart.Error: Optional error from the API
type Response struct {
	Chart Chart `json:"chart"`
}

// Chart is the top-level chart envelope.
type Chart struct {
	Result []Result `json:"result"`
	Error  *Error   `json:"error"`
}

// Error is an API-level error.
type Error struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Result is the chart of a single symbol.
type Result struct {
	Meta       Meta       `json:"meta"`
	Timestamp  []int64    `json:"timestamp"`
	Indicators Indicators `json:"indicators"`
	Events     *Events    `json:"events,omitempty"`
}

// Meta is symbol metadata.
type Meta struct {
	Currency     string `json:"currency"`
	Symbol       string `json:"symbol"`
	ExchangeName string `json:"exchangeName"`
	LongName     string `json:"longName"`
	Shortname    string `json:"shortName"`
}

// Indicators holds the quote arrays.
type Indicators struct {
	Quote []Quote `json:"quote"`
}

// Quote holds per-bar prices. Entries are nil where the API has no data.
type Quote struct {
	Close []*float64 `json:"close"`
}

// Events holds corporate actions keyed by the Unix timestamp of the event, as a string.
type Events struct {
	Dividends map[string]DividendEvent `json:"dividends"`
	Splits    map[string]SplitEvent    `json:"splits"`
}

// DividendEvent is a per-share cash distribution.
type DividendEvent struct {
	Amount float64 `json:"amount"`
	Date   int64   `json:"date"`
}

// SplitEvent is a share split of Numerator new shares per Denominator old shares.
type SplitEvent struct {
	Date        int64   `json:"date"`
	Numerator   float64 `json:"numerator"`
	Denominator float64 `json:"denominator"`
	SplitRatio  string  `json:"splitRatio"`
}

// PriceChart is the parsed monthly chart of a symbol.
type PriceChart struct {
	Symbol    string     `json:"symbol"`
	Currency  string     `json:"currency"`
	Name      string     `json:"name"`
	Bars      []Bar      `json:"bars"`
	Dividends []Dividend `json:"dividends"`
	Splits    []Split    `json:"splits"`
}

// Bar is the closing price of a monthly bar. Date is the start of the bar's month; Close is the
// price at the end of that month.
type Bar struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// Dividend is a per-share payout on Date.
type Dividend struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
}

// Split multiplies share counts by Factor on Date.
type Split struct {
	Date   time.Time `json:"date"`
	Factor float64   `json:"factor"`
}
