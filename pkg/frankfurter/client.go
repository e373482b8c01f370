// Package frankfurter provides a client for the Frankfurter exchange-rate API.
package frankfurter

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/freight-quotes/internal/resilience"
)

// DefaultBaseURL is the public Frankfurter API.
const DefaultBaseURL = "https://api.frankfurter.dev/v1"

// Client defines the exchange-rate operations.
type Client interface {
	// Latest returns the latest rates quoted against base: 1 base = rates[sym] sym.
	Latest(ctx context.Context, base string, symbols ...string) (*LatestResponse, error)
}

// LatestResponse is the parsed /latest payload.
type LatestResponse struct {
	Amount float64            `json:"amount"`
	Base   string             `json:"base"`
	Date   string             `json:"date"`
	Rates  map[string]float64 `json:"rates"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.http.SetBaseURL(strings.TrimRight(url, "/"))
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.SetTimeout(d)
	}
}

type httpClient struct {
	http *resty.Client
}

// NewClient creates a Frankfurter client.
func NewClient(opts ...Option) Client {
	c := &httpClient{http: resty.New()}
	c.http.SetBaseURL(DefaultBaseURL)
	c.http.SetTimeout(10 * time.Second)
	c.http.SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Latest(ctx context.Context, base string, symbols ...string) (*LatestResponse, error) {
	var out LatestResponse
	var apiErr errorResponse

	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("base", strings.ToUpper(base)).
		SetResult(&out).
		SetError(&apiErr)
	if len(symbols) > 0 {
		req.SetQueryParam("symbols", strings.ToUpper(strings.Join(symbols, ",")))
	}

	resp, err := req.Get("/latest")
	if err != nil {
		return nil, eris.Wrap(resilience.NewTransientError(err, 0), "frankfurter: request failed")
	}
	if resp.IsError() {
		err := eris.Errorf("frankfurter: status %d: %s", resp.StatusCode(), apiErr.Message)
		if resilience.IsTransientHTTPStatus(resp.StatusCode()) {
			return nil, resilience.NewTransientError(err, resp.StatusCode())
		}
		return nil, err
	}
	return &out, nil
}
