package carrier

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/freight-quotes/internal/model"
	"github.com/sells-group/freight-quotes/internal/quote"
	"github.com/sells-group/freight-quotes/internal/session"
	"github.com/sells-group/freight-quotes/internal/session/sessiontest"
)

var hapagTestURLs = map[string]string{
	"login": "https://hapag.test/login",
	"form":  "https://hapag.test/new-quote",
}

func hapagForm(menu ...string) string {
	body := []string{
		`<input data-testid="start-input">`,
		`<input data-testid="end-input">`,
		`<input data-testid="validity-input" min="2025-03-10">`,
		`<div data-testid="container-input">Container Type</div>`,
		`<input data-testid="weight-input">`,
		`<button data-testid="search-button">Search</button>`,
	}
	if len(menu) > 0 {
		body = append(body, `<div class="q-menu">`+options("div", "q-item", menu...)+`</div>`)
	}
	return html(body...)
}

const hapagOffersPage = `<html><body>
<div class="offer-card offer-card--disabled">
  <h1>Quick Quotes Spot</h1>
  <button disabled><span class="block">Price Breakdown</span></button>
</div>
<div class="offer-card">
  <h1>Quick Quotes</h1>
  <div class="hal-data-item"><div class="hal-data-item__label">Estimated Transportation Days</div><div class="hal-data-item__content">24 days</div></div>
  <button><span class="block">Select</span></button>
  <button><span class="block">Price Breakdown</span></button>
</div>
</body></html>`

const hapagBreakdownPage = `<html><body>
<div class="offer-charges">
<table class="q-table">
  <thead><tr><th><span>Freight Charges</span></th><th><span>Curr.</span></th><th><span>20STD</span></th></tr></thead>
  <tbody><tr><td><div><div>Ocean Freight</div><div>To be paid prepaid</div></div></td><td>USD</td><td>1,165.00</td></tr></tbody>
</table>
<table class="q-table">
  <thead><tr><th><span>Import Surcharges</span></th><th><span>Curr.</span></th><th><span>20STD</span></th></tr></thead>
  <tbody>
    <tr><td>Terminal Handling Charge</td><td>EUR</td><td>295</td></tr>
    <tr><td>Delivery Order Fee</td><td>EUR</td><td>–</td></tr>
  </tbody>
</table>
<table class="q-table">
  <thead><tr><th><span>Cut-offs</span></th><th><span>Date</span></th><th><span>Time</span></th></tr></thead>
  <tbody><tr><td>Documentation</td><td>2025-03-08</td><td>12:00</td></tr></tbody>
</table>
</div>
</body></html>`

func hapagFake() *sessiontest.Fake {
	f := sessiontest.New(map[string]string{
		hapagTestURLs["login"]: html(`<input id="signInName"><input id="password"><button id="next">Sign in</button>`),
		hapagTestURLs["form"]:  hapagForm(),
	})
	f.OnFill(hapagStart, func(f *sessiontest.Fake, _ session.Ref, v string) error {
		f.SetPage(hapagForm("Santos (BRSSZ)"))
		return nil
	})
	f.OnFill(hapagEnd, func(f *sessiontest.Fake, _ session.Ref, v string) error {
		f.SetPage(hapagForm("New York (USNYC)"))
		return nil
	})
	f.OnClick(hapagContainer, func(f *sessiontest.Fake, _ session.Ref, _ string) error {
		f.SetPage(hapagForm("20' Reefer", "20' General Purpose", "40' General Purpose"))
		return nil
	})
	f.OnClick(hapagSearch, func(f *sessiontest.Fake, _ session.Ref, _ string) error {
		f.SetPage(hapagOffersPage)
		return nil
	})
	f.OnClick(hapagDetails, func(f *sessiontest.Fake, ref session.Ref, _ string) error {
		if ref.Nth != 2 {
			return eris.Errorf("unexpected breakdown button %d", ref.Nth)
		}
		f.SetPage(hapagBreakdownPage)
		return nil
	})
	return f
}

func TestHapag_DriverEndToEnd(t *testing.T) {
	t.Parallel()

	f := hapagFake()
	h := NewHapag(f, fastConfig(hapagTestURLs))
	d := quote.NewDriver(h, driverConfig(quote.Defaults{
		ContainerType: "20' General Purpose", WeightKg: 26000, DateOffsetDays: 7,
	}), quote.WithClock(newStepClock()))

	out := d.Run(context.Background(), model.RouteJob{Origin: "BRSSZ", Destination: "USNYC"})

	require.Nil(t, out.Err)
	assert.Equal(t, model.StatusSuccess, out.Status)
	assert.Equal(t, "2025-03-10", f.Filled(hapagDate), "clamped to the picker minimum")

	require.NotNil(t, out.Chosen)
	assert.Equal(t, 1, out.Chosen.Index)
	assert.Equal(t, "Quick Quotes", out.Chosen.Label)

	require.Len(t, out.Quote.Charges, 2)
	freight := out.Quote.Charges[0]
	assert.Equal(t, "Freight Charges | Ocean Freight | 20STD", freight.Column())
	assert.Equal(t, map[string]string{
		"Freight Charges | Ocean Freight | 20STD":        "1165",
		"Freight Charges | Ocean Freight | 20STD | Curr": "USD",
	}, freight.Columns())
	assert.Equal(t, "Import Surcharges | Terminal Handling Charge | 20STD", out.Quote.Charges[1].Column())
	assert.Equal(t, "24", out.Quote.Journey.TransitTime)
}

func TestHapag_SecurityCheckBlocksForm(t *testing.T) {
	t.Parallel()

	f := sessiontest.New(map[string]string{
		hapagTestURLs["form"]: html(`<h1>Security Check</h1><p>Cloudflare</p><form id="challenge-form"></form>`),
	})
	h := NewHapag(f, fastConfig(hapagTestURLs))

	_, err := h.OpenForm(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked by")
}

func TestHapag_LoginClearsCookieBanner(t *testing.T) {
	t.Parallel()

	f := sessiontest.New(map[string]string{
		hapagTestURLs["login"]: html(`<button id="accept-recommended-btn-handler">Accept</button>` +
			`<input id="signInName"><input id="password"><button id="next">Sign in</button>`),
	})
	f.OnClick(hapagNext, func(f *sessiontest.Fake, _ session.Ref, _ string) error {
		f.SetPage(html("solutions"))
		return nil
	})
	h := NewHapag(f, fastConfig(hapagTestURLs))

	require.NoError(t, h.Login(context.Background()))
	assert.Equal(t, 1, f.ClickCount(hapagCookie))
	assert.Equal(t, "secret", f.Filled(hapagPass))
}

func TestParseHapagTables_SkipsCutOffsAndBlanks(t *testing.T) {
	t.Parallel()

	f := sessiontest.New(nil)
	f.SetPage(hapagBreakdownPage)
	h := NewHapag(f, fastConfig(hapagTestURLs))

	doc, err := h.fragment(context.Background(), hapagCharges)
	require.NoError(t, err)
	lines := parseHapagTables(doc.Selection)
	require.Len(t, lines, 2)
	assert.Equal(t, "Ocean Freight", lines[0].Name, "subtitle dropped")
	assert.Equal(t, "EUR", lines[1].Currency)
	assert.InDelta(t, 295.0, lines[1].TotalPrice, 1e-9)
}

func TestHapag_HeadingOnlyBreakdownIsEmptySuccess(t *testing.T) {
	t.Parallel()

	f := hapagFake()
	f.OnClick(hapagDetails, func(f *sessiontest.Fake, _ session.Ref, _ string) error {
		f.SetPage(html(`<div class="offer-charges"><table class="q-table">
  <thead><tr><th><span>Freight Charges</span></th><th><span>Curr.</span></th><th><span>20STD</span></th></tr></thead>
  <tbody></tbody>
</table></div>`))
		return nil
	})
	h := NewHapag(f, fastConfig(hapagTestURLs))
	d := quote.NewDriver(h, driverConfig(quote.Defaults{
		ContainerType: "20' General Purpose", WeightKg: 26000, DateOffsetDays: 7,
	}), quote.WithClock(newStepClock()))

	out := d.Run(context.Background(), model.RouteJob{Origin: "BRSSZ", Destination: "USNYC"})
	require.Nil(t, out.Err)
	assert.Equal(t, model.StatusSuccess, out.Status)
	require.NotNil(t, out.Quote)
	assert.Empty(t, out.Quote.Charges)
	assert.Equal(t, "24", out.Quote.Journey.TransitTime)
}

func TestHapag_ResetUnreachableFormIsNotAnError(t *testing.T) {
	t.Parallel()

	f := sessiontest.New(nil)
	h := NewHapag(f, fastConfig(hapagTestURLs))
	h.transit[1] = "24"

	require.NoError(t, h.Reset(context.Background()))
	assert.Empty(t, h.transit)
}
