// Package sessiontest provides a scriptable in-memory session for adapter tests.
package sessiontest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/freight-quotes/internal/session"
)

// Handler reacts to an interaction and may swap the page.
type Handler func(f *Fake, ref session.Ref, value string) error

// Fake serves HTML pages from memory. Clicks and fills run registered
// handlers, which is how tests script page transitions. Waits never sleep.
// Handlers run without the lock held and may call any method.
type Fake struct {
	mu      sync.Mutex
	pages   map[string]string
	url     string
	html    string
	filled  map[string]string
	clicks  []session.Ref
	onClick map[string]Handler
	onFill  map[string]Handler
	shots   int
	closed  bool
	// Waits counts WaitFor calls.
	Waits int
}

// New creates a fake whose navigations resolve against pages (url -> HTML).
func New(pages map[string]string) *Fake {
	if pages == nil {
		pages = map[string]string{}
	}
	return &Fake{
		pages:   pages,
		filled:  map[string]string{},
		onClick: map[string]Handler{},
		onFill:  map[string]Handler{},
	}
}

// SetPage replaces the current document.
func (f *Fake) SetPage(html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.html = html
}

// OnClick registers a handler for clicks on selector.
func (f *Fake) OnClick(selector string, h Handler) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onClick[selector] = h
	return f
}

// OnFill registers a handler for fills on selector.
func (f *Fake) OnFill(selector string, h Handler) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onFill[selector] = h
	return f
}

// Filled returns the last value filled into selector.
func (f *Fake) Filled(selector string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filled[selector]
}

// Clicks returns every clicked ref in order.
func (f *Fake) Clicks() []session.Ref {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]session.Ref(nil), f.clicks...)
}

// ClickCount counts clicks on selector.
func (f *Fake) ClickCount(selector string) int {
	n := 0
	for _, c := range f.Clicks() {
		if c.Selector == selector {
			n++
		}
	}
	return n
}

// Screenshots returns how many screenshots were taken.
func (f *Fake) Screenshots() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shots
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) doc() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(f.html))
}

func (f *Fake) find(ref session.Ref) (*goquery.Selection, error) {
	doc, err := f.doc()
	if err != nil {
		return nil, eris.Wrap(err, "sessiontest: parse page")
	}
	sel := doc.Find(ref.Selector)
	if sel.Length() <= ref.Nth {
		return nil, eris.Wrapf(session.ErrNotFound, "%s[%d]", ref.Selector, ref.Nth)
	}
	return sel.Eq(ref.Nth), nil
}

// Navigate implements session.Session.
func (f *Fake) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	html, ok := f.pages[url]
	if !ok {
		return eris.Errorf("sessiontest: no page for %s", url)
	}
	f.url = url
	f.html = html
	return nil
}

// Fill implements session.Session.
func (f *Fake) Fill(_ context.Context, ref session.Ref, value string) error {
	f.mu.Lock()
	if _, err := f.find(ref); err != nil {
		f.mu.Unlock()
		return err
	}
	f.filled[ref.Selector] = value
	h := f.onFill[ref.Selector]
	f.mu.Unlock()

	if h != nil {
		return h(f, ref, value)
	}
	return nil
}

// Click implements session.Session.
func (f *Fake) Click(_ context.Context, ref session.Ref) error {
	f.mu.Lock()
	if _, err := f.find(ref); err != nil {
		f.mu.Unlock()
		return err
	}
	f.clicks = append(f.clicks, ref)
	h := f.onClick[ref.Selector]
	f.mu.Unlock()

	if h != nil {
		return h(f, ref, "")
	}
	return nil
}

// WaitFor implements session.Session. It checks the current page once.
func (f *Fake) WaitFor(_ context.Context, cond session.Condition, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Waits++
	doc, err := f.doc()
	if err != nil {
		return false, eris.Wrap(err, "sessiontest: parse page")
	}
	found := false
	for _, s := range cond.Selectors {
		if doc.Find(s).Length() > 0 {
			found = true
			break
		}
	}
	if cond.State == session.Hidden {
		return !found, nil
	}
	return found, nil
}

// ReadText implements session.Session.
func (f *Fake) ReadText(_ context.Context, ref session.Ref) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sel, err := f.find(ref)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(sel.Text()), nil
}

// ReadHTML implements session.Session.
func (f *Fake) ReadHTML(_ context.Context, ref session.Ref) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref.Selector == "" {
		return f.html, nil
	}
	sel, err := f.find(ref)
	if err != nil {
		return "", err
	}
	return goquery.OuterHtml(sel)
}

// URL implements session.Session.
func (f *Fake) URL(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

// Screenshot implements session.Session.
func (f *Fake) Screenshot(context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shots++
	return []byte("png"), nil
}

// Close implements session.Session.
func (f *Fake) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

var _ session.Session = (*Fake)(nil)
