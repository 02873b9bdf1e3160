// Package ibkr downloads Flex statements from Interactive Brokers. A statement is requested
// first and then polled until the broker has generated it.
package ibkr

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ndewijer/valuation-engine/internal/apperrors"
)

// DefaultBaseURL is the Flex web service endpoint.
const DefaultBaseURL = "https://ndcdyn.interactivebrokers.com/AccountManagement/FlexWebService"

// Error codes meaning the statement is still being generated.
var notReadyCodes = []int{1018, 1019, 1021}

// Client fetches Flex statements.
type Client interface {
	FetchStatements(ctx context.Context, token string, queryID int) ([]Statement, error)
}

// FlexClient talks to the Flex web service.
type FlexClient struct {
	httpClient *http.Client
	baseURL    string
	pollBase   time.Duration
	pollMax    time.Duration
	maxPolls   uint64
}

// Option configures a FlexClient.
type Option func(*FlexClient)

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *FlexClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *FlexClient) { c.httpClient = h }
}

// WithPolling sets how long to wait for a statement: the first delay, the longest delay and
// the number of polls after the first.
func WithPolling(base, limit time.Duration, polls uint64) Option {
	return func(c *FlexClient) {
		c.pollBase = base
		c.pollMax = limit
		c.maxPolls = polls
	}
}

// NewFlexClient creates a client that polls from 2s up to 30s between attempts, ten times.
func NewFlexClient(opts ...Option) *FlexClient {
	c := &FlexClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    DefaultBaseURL,
		pollBase:   2 * time.Second,
		pollMax:    30 * time.Second,
		maxPolls:   10,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchStatements requests the report of a Flex query and waits for it.
func (c *FlexClient) FetchStatements(ctx context.Context, token string, queryID int) ([]Statement, error) {
	if token == "" || queryID == 0 {
		return nil, fmt.Errorf("%w: flex token and query id are required", apperrors.ErrConfiguration)
	}

	ref, err := c.sendRequest(ctx, token, queryID)
	if err != nil {
		return nil, err
	}
	data, err := c.download(ctx, token, ref)
	if err != nil {
		return nil, fmt.Errorf("download flex report %d: %w", ref.ReferenceCode, err)
	}
	return ParseStatements(data)
}

func (c *FlexClient) sendRequest(ctx context.Context, token string, queryID int) (FlexRequestResponse, error) {
	q := url.Values{}
	q.Set("t", token)
	q.Set("q", strconv.Itoa(queryID))
	q.Set("v", "3")

	data, err := c.get(ctx, c.baseURL+"/SendRequest?"+q.Encode())
	if err != nil {
		return FlexRequestResponse{}, fmt.Errorf("send flex request: %w", err)
	}

	var response FlexRequestResponse
	if err := xml.Unmarshal(data, &response); err != nil {
		return FlexRequestResponse{}, fmt.Errorf("decode flex request response: %w", err)
	}
	if !strings.EqualFold(response.Status, "Success") {
		return response, response.err()
	}
	return response, nil
}

// download polls for the report. Until it exists the broker answers with a status document.
func (c *FlexClient) download(ctx context.Context, token string, ref FlexRequestResponse) ([]byte, error) {
	q := url.Values{}
	q.Set("t", token)
	q.Set("q", strconv.Itoa(ref.ReferenceCode))
	q.Set("v", "3")
	u := ref.URL + "?" + q.Encode()

	var data []byte
	backoff := retry.WithMaxRetries(c.maxPolls, retry.WithCappedDuration(c.pollMax, retry.NewExponential(c.pollBase)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		body, err := c.get(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}

		var status FlexRequestResponse
		if xml.Unmarshal(body, &status) == nil {
			if status.ErrorCode != nil && slices.Contains(notReadyCodes, *status.ErrorCode) {
				return retry.RetryableError(status.err())
			}
			return status.err()
		}
		data = body
		return nil
	})
	return data, err
}

func (c *FlexClient) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	return data, nil
}
