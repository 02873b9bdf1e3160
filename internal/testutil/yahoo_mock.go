package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/ndewijer/valuation-engine/internal/yahoo"
)

// MockYahooClient is a mock implementation of yahoo.Client for testing.
// It returns predefined charts per symbol instead of making actual API calls.
type MockYahooClient struct {
	mu     sync.Mutex
	charts map[string]yahoo.PriceChart
	errors map[string]error
	// Queries records the symbols queried, in order.
	Queries []string
}

// NewMockYahooClient creates a mock that knows no symbols. Unknown symbols return yahoo.ErrNoData.
func NewMockYahooClient() *MockYahooClient {
	return &MockYahooClient{
		charts: make(map[string]yahoo.PriceChart),
		errors: make(map[string]error),
	}
}

// QueryMonthly returns the chart configured for the symbol.
func (m *MockYahooClient) QueryMonthly(_ context.Context, symbol string, _, _ time.Time) (yahoo.PriceChart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Queries = append(m.Queries, symbol)
	if err, ok := m.errors[symbol]; ok {
		return yahoo.PriceChart{}, err
	}
	chart, ok := m.charts[symbol]
	if !ok {
		return yahoo.PriceChart{}, yahoo.ErrNoData
	}
	return chart, nil
}

// WithChart configures the chart returned for a symbol.
func (m *MockYahooClient) WithChart(symbol string, chart yahoo.PriceChart) *MockYahooClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	chart.Symbol = symbol
	m.charts[symbol] = chart
	return m
}

// WithError configures the mock to fail queries for a symbol.
func (m *MockYahooClient) WithError(symbol string, err error) *MockYahooClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[symbol] = err
	return m
}

// CreateMockChart builds a monthly chart with one bar per close, the first bar in the month of
// start.
//
// Example usage:
//
//	chart := testutil.CreateMockChart("EUR", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 10, 11, 12)
func CreateMockChart(currency string, start time.Time, closes ...float64) yahoo.PriceChart {
	chart := yahoo.PriceChart{Currency: currency, Name: "Test Equity Inc."}
	first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		chart.Bars = append(chart.Bars, yahoo.Bar{Date: first.AddDate(0, i, 0), Close: c})
	}
	return chart
}
