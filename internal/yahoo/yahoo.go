// Package yahoo is a client for the chart API that supplies monthly closing prices, dividends and
// splits. Requests are rate limited and retried with exponential backoff.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public chart API host.
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// Client fetches monthly market data for a symbol.
type Client interface {
	QueryMonthly(ctx context.Context, symbol string, from, to time.Time) (PriceChart, error)
}

// FinanceClient provides methods for fetching financial data from the chart API.
type FinanceClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
	maxRetries uint64
	backoff    time.Duration
}

// Option configures a FinanceClient.
type Option func(*FinanceClient)

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *FinanceClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *FinanceClient) { c.httpClient = h }
}

// WithToken sends an API token with every request.
func WithToken(token string) Option {
	return func(c *FinanceClient) { c.token = token }
}

// WithRateLimit caps the request rate. A burst of one keeps requests evenly spaced.
func WithRateLimit(perSecond float64) Option {
	return func(c *FinanceClient) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1) }
}

// WithRetries sets how often a failed request is retried and the first backoff delay.
func WithRetries(maxRetries uint64, base time.Duration) Option {
	return func(c *FinanceClient) {
		c.maxRetries = maxRetries
		c.backoff = base
	}
}

// NewFinanceClient creates a client with default settings: the public host, two requests per
// second and three retries starting at 500ms.
func NewFinanceClient(opts ...Option) *FinanceClient {
	c := &FinanceClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    DefaultBaseURL,
		limiter:    rate.NewLimiter(rate.Limit(2), 1),
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// QueryMonthly fetches monthly bars with dividend and split events for a symbol between from and to.
func (c *FinanceClient) QueryMonthly(ctx context.Context, symbol string, from, to time.Time) (PriceChart, error) {
	q := url.Values{}
	q.Set("interval", "1mo")
	q.Set("events", "div,split")
	q.Set("period1", fmt.Sprint(from.Unix()))
	q.Set("period2", fmt.Sprint(to.Unix()))
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), q.Encode())

	result, err := c.query(ctx, u)
	if err != nil {
		return PriceChart{}, fmt.Errorf("query %s: %w", symbol, err)
	}
	if len(result.Chart.Result) == 0 {
		return PriceChart{}, fmt.Errorf("no results returned for symbol %s", symbol)
	}
	return ParseChart(result)
}

// query executes a GET with rate limiting and retries. Transport failures, 429 and 5xx responses
// are retried; other failures are returned immediately.
func (c *FinanceClient) query(ctx context.Context, u string) (Response, error) {
	var response Response
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.backoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("http status %d", resp.StatusCode))
		}

		response = Response{}
		if err := json.Unmarshal(data, &response); err != nil {
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("http status %d", resp.StatusCode)
			}
			return fmt.Errorf("decode response: %w", err)
		}
		if response.Chart.Error != nil {
			return fmt.Errorf("api error %s: %s", response.Chart.Error.Code, response.Chart.Error.Description)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("http status %d", resp.StatusCode)
		}
		return nil
	})
	return response, err
}

// ErrNoData is returned when a chart has no usable bars.
var ErrNoData = errors.New("no price data returned")

// ParseChart converts a raw chart response into bars and events, oldest first. Bars without a
// close price are dropped, as are splits with a non-positive ratio.
func ParseChart(yahooResult Response) (PriceChart, error) {
	if len(yahooResult.Chart.Result) == 0 {
		return PriceChart{}, ErrNoData
	}
	result := yahooResult.Chart.Result[0]

	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return PriceChart{}, ErrNoData
	}
	closes := result.Indicators.Quote[0].Close
	if len(closes) != len(result.Timestamp) {
		return PriceChart{}, fmt.Errorf("mismatched data lengths")
	}

	name := result.Meta.LongName
	if name == "" {
		name = result.Meta.Shortname
	}
	chart := PriceChart{
		Symbol:   result.Meta.Symbol,
		Currency: result.Meta.Currency,
		Name:     name,
	}

	for i, ts := range result.Timestamp {
		if closes[i] == nil {
			continue
		}
		chart.Bars = append(chart.Bars, Bar{Date: time.Unix(ts, 0).UTC(), Close: *closes[i]})
	}

	if result.Events != nil {
		for _, d := range result.Events.Dividends {
			chart.Dividends = append(chart.Dividends, Dividend{Date: time.Unix(d.Date, 0).UTC(), Amount: d.Amount})
		}
		for _, s := range result.Events.Splits {
			if s.Numerator <= 0 || s.Denominator <= 0 {
				continue
			}
			chart.Splits = append(chart.Splits, Split{Date: time.Unix(s.Date, 0).UTC(), Factor: s.Numerator / s.Denominator})
		}
	}

	slices.SortFunc(chart.Bars, func(a, b Bar) int { return a.Date.Compare(b.Date) })
	slices.SortFunc(chart.Dividends, func(a, b Dividend) int { return a.Date.Compare(b.Date) })
	slices.SortFunc(chart.Splits, func(a, b Split) int { return a.Date.Compare(b.Date) })

	if len(chart.Bars) == 0 {
		return PriceChart{}, ErrNoData
	}
	return chart, nil
}
