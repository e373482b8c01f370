package carrier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/freight-quotes/internal/quote"
)

// stepClock advances on Sleep so driver waits are instant.
type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) Sleep(_ context.Context, d time.Duration) { c.now = c.now.Add(d) }

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func fastConfig(urls map[string]string) Config {
	return Config{
		Username:       "ops@example.com",
		Password:       "secret",
		URLs:           urls,
		FormTimeout:    time.Second,
		SuggestTimeout: time.Second,
		PanelTimeout:   time.Second,
		LoginTimeout:   time.Second,
	}
}

func driverConfig(d quote.Defaults) quote.Config {
	return quote.Config{Wait: quote.DefaultWaitConfig(), Defaults: d}
}

func html(body ...string) string {
	return "<html><body>" + strings.Join(body, "\n") + "</body></html>"
}

func options(tag, class string, labels ...string) string {
	var b strings.Builder
	for _, l := range labels {
		fmt.Fprintf(&b, `<%s class=%q role="option">%s</%s>`, tag, class, l, tag)
	}
	return b.String()
}
