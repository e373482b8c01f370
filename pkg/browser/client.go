// Package browser is a client for a browser-automation sidecar that exposes
// page sessions over HTTP. It implements session.Session.
package browser

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/freight-quotes/internal/session"
)

// Options configures a new sidecar session.
type Options struct {
	Headless    bool   `json:"headless"`
	UserDataDir string `json:"user_data_dir,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

// Option configures the client.
type Option func(*Client)

// WithTimeout sets the HTTP timeout added on top of each operation's own timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.slack = d
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = resty.NewWithClient(hc).SetBaseURL(c.http.BaseURL)
	}
}

// Client creates sessions on the sidecar.
type Client struct {
	http  *resty.Client
	slack time.Duration
}

// NewClient creates a sidecar client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		http:  resty.New().SetBaseURL(strings.TrimRight(baseURL, "/")),
		slack: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.SetHeader("Content-Type", "application/json")
	return c
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type createResponse struct {
	ID string `json:"id"`
}

// Open starts a new page session.
func (c *Client) Open(ctx context.Context, opts Options) (*Session, error) {
	var out createResponse
	if err := c.do(ctx, http.MethodPost, "/sessions", opts, &out, 0); err != nil {
		return nil, eris.Wrap(err, "browser: open session")
	}
	if out.ID == "" {
		return nil, eris.New("browser: open session: empty id")
	}
	return &Session{client: c, id: out.ID}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any, timeout time.Duration) error {
	var apiErr apiError
	req := c.http.R().SetContext(ctx).SetError(&apiErr)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	if timeout > 0 || c.slack > 0 {
		ctx, cancel := context.WithTimeout(ctx, timeout+c.slack)
		defer cancel()
		req.SetContext(ctx)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return eris.Wrapf(err, "%s %s", method, path)
	}
	if resp.IsError() {
		if resp.StatusCode() == http.StatusNotFound && apiErr.Code == "not_found" {
			return eris.Wrap(session.ErrNotFound, apiErr.Error)
		}
		return eris.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode(), apiErr.Error)
	}
	return nil
}

// Session is one sidecar page. It is owned by a single pipeline.
type Session struct {
	client *Client
	id     string
}

// ID returns the sidecar session id.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) path(op string) string {
	return "/sessions/" + url.PathEscape(s.id) + "/" + op
}

type refBody struct {
	Selector string `json:"selector"`
	Nth      int    `json:"nth"`
	Value    string `json:"value,omitempty"`
}

// Navigate implements session.Session.
func (s *Session) Navigate(ctx context.Context, target string) error {
	body := map[string]string{"url": target}
	return eris.Wrap(s.client.do(ctx, http.MethodPost, s.path("navigate"), body, nil, 0), "browser: navigate")
}

// Fill implements session.Session.
func (s *Session) Fill(ctx context.Context, ref session.Ref, value string) error {
	body := refBody{Selector: ref.Selector, Nth: ref.Nth, Value: value}
	return eris.Wrapf(s.client.do(ctx, http.MethodPost, s.path("fill"), body, nil, 0), "browser: fill %s", ref.Selector)
}

// Click implements session.Session.
func (s *Session) Click(ctx context.Context, ref session.Ref) error {
	body := refBody{Selector: ref.Selector, Nth: ref.Nth}
	return eris.Wrapf(s.client.do(ctx, http.MethodPost, s.path("click"), body, nil, 0), "browser: click %s", ref.Selector)
}

type waitBody struct {
	Selectors []string      `json:"selectors"`
	State     session.State `json:"state"`
	TimeoutMs int64         `json:"timeout_ms"`
}

// WaitFor implements session.Session.
func (s *Session) WaitFor(ctx context.Context, cond session.Condition, timeout time.Duration) (bool, error) {
	var out struct {
		OK bool `json:"ok"`
	}
	body := waitBody{Selectors: cond.Selectors, State: cond.State, TimeoutMs: timeout.Milliseconds()}
	if err := s.client.do(ctx, http.MethodPost, s.path("wait"), body, &out, timeout); err != nil {
		return false, eris.Wrap(err, "browser: wait")
	}
	return out.OK, nil
}

// ReadText implements session.Session.
func (s *Session) ReadText(ctx context.Context, ref session.Ref) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	body := refBody{Selector: ref.Selector, Nth: ref.Nth}
	if err := s.client.do(ctx, http.MethodPost, s.path("text"), body, &out, 0); err != nil {
		return "", eris.Wrapf(err, "browser: text %s", ref.Selector)
	}
	return out.Text, nil
}

// ReadHTML implements session.Session.
func (s *Session) ReadHTML(ctx context.Context, ref session.Ref) (string, error) {
	var out struct {
		HTML string `json:"html"`
	}
	body := refBody{Selector: ref.Selector, Nth: ref.Nth}
	if err := s.client.do(ctx, http.MethodPost, s.path("html"), body, &out, 0); err != nil {
		return "", eris.Wrapf(err, "browser: html %s", ref.Selector)
	}
	return out.HTML, nil
}

// URL implements session.Session.
func (s *Session) URL(ctx context.Context) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := s.client.do(ctx, http.MethodGet, s.path("url"), nil, &out, 0); err != nil {
		return "", eris.Wrap(err, "browser: url")
	}
	return out.URL, nil
}

// Screenshot implements session.Session.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	resp, err := s.client.http.R().SetContext(ctx).Get(s.path("screenshot"))
	if err != nil {
		return nil, eris.Wrap(err, "browser: screenshot")
	}
	if resp.IsError() {
		return nil, eris.Errorf("browser: screenshot: status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

// Close implements session.Session.
func (s *Session) Close(ctx context.Context) error {
	return eris.Wrap(s.client.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(s.id), nil, nil, 0), "browser: close")
}

var _ session.Session = (*Session)(nil)
