// Package carrier implements quote.Adapter for each carrier portal. Adapters
// drive a session.Session and parse the HTML it returns with goquery; the
// attempt sequencing and retry policy live in package quote.
package carrier

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/freight-quotes/internal/diag"
	"github.com/sells-group/freight-quotes/internal/quote"
	"github.com/sells-group/freight-quotes/internal/session"
)

// Config carries portal credentials, addresses and step timeouts.
type Config struct {
	Username string
	Password string
	// URLs overrides portal addresses by role: "login", "form", "home".
	URLs map[string]string

	// FormTimeout bounds the wait for the quote form inputs.
	FormTimeout time.Duration
	// SuggestTimeout bounds the wait for autocomplete suggestions.
	SuggestTimeout time.Duration
	// PanelTimeout bounds the wait for a details panel after a click.
	PanelTimeout time.Duration
	// LoginTimeout bounds the wait for login to leave the sign-in page.
	LoginTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.FormTimeout <= 0 {
		c.FormTimeout = 30 * time.Second
	}
	if c.SuggestTimeout <= 0 {
		c.SuggestTimeout = 10 * time.Second
	}
	if c.PanelTimeout <= 0 {
		c.PanelTimeout = 15 * time.Second
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = 30 * time.Second
	}
	return c
}

// ErrNoSuggestion is wrapped into invalid-field errors when an autocomplete
// offered nothing for the typed value.
var ErrNoSuggestion = eris.New("carrier: no suggestion matched")

// portal holds what every adapter shares: the session, addresses, and the
// per-attempt mapping from candidate index to its open-details control.
type portal struct {
	name string
	sess session.Session
	cfg  Config
	urls map[string]string

	// buttons maps a candidate's Index to the Nth match of the details selector.
	buttons map[int]int
	// chosen is the candidate whose details are open.
	chosen *quote.Candidate
}

func newPortal(name string, sess session.Session, cfg Config, defaults map[string]string) portal {
	urls := make(map[string]string, len(defaults))
	for k, v := range defaults {
		urls[k] = v
	}
	for k, v := range cfg.URLs {
		if v != "" {
			urls[k] = v
		}
	}
	return portal{name: name, sess: sess, cfg: cfg.withDefaults(), urls: urls, buttons: map[int]int{}}
}

// Name implements quote.Adapter.
func (p *portal) Name() string { return p.name }

func (p *portal) url(role string) string { return p.urls[role] }

// Reset implements quote.Adapter. Per-attempt state is cleared and the
// session is sent to the portal's home page, or the quote form when the
// portal has none. A failed navigation is logged and not returned: the next
// attempt opens the form itself.
func (p *portal) Reset(ctx context.Context) error {
	p.buttons = map[int]int{}
	p.chosen = nil

	target := p.url("home")
	if target == "" {
		target = p.url("form")
	}
	if target == "" {
		return nil
	}
	if err := p.sess.Navigate(ctx, target); err != nil {
		zap.L().Warn("carrier: reset navigation failed",
			zap.String("carrier", p.name),
			zap.String("url", target),
			zap.Error(err),
		)
	}
	return nil
}

// Snapshot implements quote.Adapter.
func (p *portal) Snapshot(ctx context.Context) (diag.Entry, error) {
	var entry diag.Entry
	var errs []error

	u, err := p.sess.URL(ctx)
	if err != nil {
		errs = append(errs, eris.Wrap(err, "url"))
	}
	entry.URL = u

	if shot, err := p.sess.Screenshot(ctx); err != nil {
		errs = append(errs, eris.Wrap(err, "screenshot"))
	} else {
		entry.Screenshot = shot
	}

	if html, err := p.sess.ReadHTML(ctx, session.Ref{}); err != nil {
		errs = append(errs, eris.Wrap(err, "html"))
	} else {
		entry.HTML = html
	}

	if len(errs) > 0 {
		return entry, eris.Wrapf(errs[0], "%s: snapshot (%d failures)", p.name, len(errs))
	}
	return entry, nil
}

// page parses the whole current document.
func (p *portal) page(ctx context.Context) (*goquery.Document, error) {
	return p.fragment(ctx, "")
}

// fragment parses the outer HTML of the first match of selector.
func (p *portal) fragment(ctx context.Context, selector string) (*goquery.Document, error) {
	html, err := p.sess.ReadHTML(ctx, session.Sel(selector))
	if err != nil {
		return nil, eris.Wrapf(err, "%s: read html %q", p.name, selector)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrapf(err, "%s: parse html %q", p.name, selector)
	}
	return doc, nil
}

// visible reports whether any selector becomes visible within timeout.
// Session errors count as "not visible".
func (p *portal) visible(ctx context.Context, timeout time.Duration, selectors ...string) bool {
	ok, err := p.sess.WaitFor(ctx, session.VisibleAny(selectors...), timeout)
	if err != nil {
		zap.L().Debug("carrier: wait failed",
			zap.String("carrier", p.name),
			zap.Strings("selectors", selectors),
			zap.Error(err),
		)
		return false
	}
	return ok
}

// hidden reports whether every selector is gone within timeout.
func (p *portal) hidden(ctx context.Context, timeout time.Duration, selectors ...string) bool {
	ok, err := p.sess.WaitFor(ctx, session.Condition{Selectors: selectors, State: session.Hidden}, timeout)
	return err == nil && ok
}

// dismiss clicks selector when it is on screen. Cookie banners and stray
// modals are dismissed this way.
func (p *portal) dismiss(ctx context.Context, selector string) {
	if !p.visible(ctx, 500*time.Millisecond, selector) {
		return
	}
	if err := p.sess.Click(ctx, session.Sel(selector)); err != nil {
		zap.L().Debug("carrier: dismiss failed", zap.String("carrier", p.name), zap.String("selector", selector), zap.Error(err))
	}
}

// fill types value into input, surfacing failures as an invalid field.
func (p *portal) fill(ctx context.Context, field, input, value string) error {
	if err := p.sess.Fill(ctx, session.Sel(input), value); err != nil {
		return quote.InvalidField(field, value, err)
	}
	return nil
}

// pick types value into an autocomplete input and clicks the suggestion whose
// text contains want, or the first suggestion when none does. No suggestion
// means the portal rejected the value.
func (p *portal) pick(ctx context.Context, field, input, options, value, want string) error {
	if err := p.fill(ctx, field, input, value); err != nil {
		return err
	}
	if !p.visible(ctx, p.cfg.SuggestTimeout, options) {
		return quote.InvalidField(field, value, ErrNoSuggestion)
	}

	doc, err := p.page(ctx)
	if err != nil {
		return quote.InvalidField(field, value, err)
	}
	nth := matchText(doc.Find(options), want)
	if nth < 0 {
		nth = 0
	}
	if err := p.sess.Click(ctx, session.Ref{Selector: options, Nth: nth}); err != nil {
		return quote.InvalidField(field, value, err)
	}
	return nil
}

// dateBounds reads the min and max attributes of a date input.
func (p *portal) dateBounds(ctx context.Context, input string) quote.FormInfo {
	var info quote.FormInfo
	doc, err := p.page(ctx)
	if err != nil {
		return info
	}
	sel := doc.Find(input).First()
	if v, ok := sel.Attr("min"); ok {
		info.MinDate, _ = parseBound(v)
	}
	if v, ok := sel.Attr("max"); ok {
		info.MaxDate, _ = parseBound(v)
	}
	return info
}

// parseBound reads a date picker bound, either ISO or a JavaScript date
// string such as "Sat Nov 01 2025 00:00:00 GMT+0000".
func parseBound(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, ok := quote.ParseDate(s); ok {
		return t, true
	}
	if f := strings.Fields(s); len(f) >= 4 {
		if t, ok := quote.ParseDate(strings.Join(f[:4], " ")); ok {
			return t, true
		}
	}
	if len(s) >= 10 {
		return quote.ParseDate(s[:10])
	}
	return time.Time{}, false
}

// matchText returns the position of the first element whose text contains
// want (case-insensitive), or -1.
func matchText(sel *goquery.Selection, want string) int {
	want = strings.ToLower(strings.TrimSpace(want))
	if want == "" {
		return -1
	}
	found := -1
	sel.EachWithBreak(func(i int, s *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(s.Text()), want) {
			found = i
			return false
		}
		return true
	})
	return found
}

// text is the whitespace-collapsed text of sel.
func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

// openCandidate clicks the details control recorded for c and waits for the
// panel.
func (p *portal) openCandidate(ctx context.Context, c quote.Candidate, button string, panel ...string) error {
	nth, ok := p.buttons[c.Index]
	if !ok {
		return eris.Errorf("%s: candidate %d has no details control", p.name, c.Index)
	}
	if err := p.sess.Click(ctx, session.Ref{Selector: button, Nth: nth}); err != nil {
		return eris.Wrapf(err, "%s: open candidate %d", p.name, c.Index)
	}
	if !p.visible(ctx, p.cfg.PanelTimeout, panel...) {
		return eris.Errorf("%s: details panel for candidate %d did not open", p.name, c.Index)
	}
	chosen := c
	p.chosen = &chosen
	return nil
}

// clearBlock waits for an anti-bot interstitial to go away. A human may
// need to clear it in a headed browser; timeout bounds the wait.
func (p *portal) clearBlock(ctx context.Context, timeout time.Duration, challenge ...string) error {
	doc, err := p.page(ctx)
	if err != nil {
		return err
	}
	html, _ := doc.Html()
	blocked, kind := DetectBlock(html)
	if !blocked {
		return nil
	}

	zap.L().Warn("carrier: anti-bot page detected, waiting",
		zap.String("carrier", p.name),
		zap.String("block", string(kind)),
		zap.Duration("timeout", timeout),
	)
	if !p.hidden(ctx, timeout, challenge...) {
		return eris.Errorf("%s: blocked by %s page", p.name, kind)
	}
	return nil
}
