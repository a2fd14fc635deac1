// Package marketdata provides option quote retrieval from Deribit's public
// ticker API. Fetches degrade to a quote without a mark price instead of
// failing, so a partially priced strategy can still be reported.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the production Deribit public API root.
const DefaultBaseURL = "https://www.deribit.com/api/v2"

// defaultTimeout bounds a single ticker round trip.
const defaultTimeout = 10 * time.Second

// Quote is the per-instrument fetch result. A nil MarkPrice means the
// fetch failed; IndexPrice may be nil even on success.
type Quote struct {
	Instrument string
	MarkPrice  *float64
	IndexPrice *float64
}

// HasMark reports whether the fetch produced a usable mark price.
func (q Quote) HasMark() bool {
	return q.MarkPrice != nil
}

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// DeribitClient fetches instrument tickers from the public, unauthenticated
// Deribit endpoint.
type DeribitClient struct {
	client  *http.Client
	baseURL string
	timeout time.Duration // per-request budget, also the http.Client timeout
	logger  *logrus.Logger
}

// NewDeribitClient creates a client against the production endpoint.
func NewDeribitClient(logger *logrus.Logger) *DeribitClient {
	return NewDeribitClientWithBaseURL("", logger)
}

// NewDeribitClientWithBaseURL creates a client with a custom API root.
// An empty baseURL selects the production endpoint.
func NewDeribitClientWithBaseURL(baseURL string, logger *logrus.Logger) *DeribitClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	// Normalize once
	baseURL = strings.TrimRight(baseURL, "/")
	if logger == nil {
		logger = logrus.New()
	}
	return &DeribitClient{
		client:  &http.Client{Timeout: defaultTimeout},
		baseURL: baseURL,
		timeout: defaultTimeout,
		logger:  logger,
	}
}

// WithHTTPClient sets a custom HTTP client and returns the receiver.
func (c *DeribitClient) WithHTTPClient(client *http.Client) *DeribitClient {
	if client != nil {
		c.client = client
	}
	return c
}

// WithTimeout sets the per-request budget and returns the receiver.
func (c *DeribitClient) WithTimeout(timeout time.Duration) *DeribitClient {
	if timeout > 0 {
		c.timeout = timeout
		c.client.Timeout = timeout
	}
	return c
}

// tickerResponse mirrors the fields of /public/ticker this bot reads.
// Pointers distinguish a missing field from a zero price.
type tickerResponse struct {
	Result struct {
		MarkPrice  *float64 `json:"mark_price"`
		IndexPrice *float64 `json:"index_price"`
	} `json:"result"`
}

// Ticker fetches the mark and index price for one instrument. It never
// returns an error: any failure yields a Quote without a mark price, with
// the cause logged.
func (c *DeribitClient) Ticker(ctx context.Context, instrument string) Quote {
	quote := Quote{Instrument: instrument}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/public/ticker?instrument_name=%s", c.baseURL, url.QueryEscape(instrument))
	var response tickerResponse
	if err := c.makeRequestCtx(ctx, endpoint, &response); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			c.logger.WithFields(logrus.Fields{
				"instrument": instrument,
				"status":     apiErr.Status,
			}).Warn("failed to fetch price")
		} else {
			c.logger.WithField("instrument", instrument).WithError(err).Error("error fetching price")
		}
		return quote
	}

	if response.Result.MarkPrice == nil {
		c.logger.Warnf("mark_price missing in response for %s", instrument)
		return quote
	}

	quote.MarkPrice = response.Result.MarkPrice
	quote.IndexPrice = response.Result.IndexPrice
	return quote
}

// makeRequestCtx makes a GET request with context support for timeout/cancellation
func (c *DeribitClient) makeRequestCtx(ctx context.Context, endpoint string, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "otcbot/1.0 (+deribit)")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WithError(err).Debug("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> failed to read error body", endpoint)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> %s", endpoint, string(body))}
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}
