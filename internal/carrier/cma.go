package carrier

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/freight-quotes/internal/model"
	"github.com/sells-group/freight-quotes/internal/quote"
	"github.com/sells-group/freight-quotes/internal/session"
)

const (
	cmaEmail  = `input#login-email`
	cmaPass   = `input#login-password`
	cmaSubmit = `button[type="submit"]`

	cmaOrigin        = `#sortedAutocompleteWrapper-origin-field input[name="Origin"]`
	cmaOriginOpts    = `#sortedAutocompletePopup-origin-field li.place-suggestion`
	cmaDest          = `#sortedAutocompleteWrapper-destination-field input[name="Origin"]`
	cmaDestOpts      = `#sortedAutocompletePopup-destination-field li.place-suggestion`
	cmaDate          = `#DepartureFrom`
	cmaWeight        = `#TxtWeight span[name="weightPerContainer"] input`
	cmaCommodity     = `#DdlCommodity`
	cmaCommodityOpts = `div.el-select__popper[aria-hidden="false"] li.el-select-dropdown__item`
	cmaSearch        = `#SearchQuote`

	cmaResults   = `ul.results-list`
	cmaNoResults = `.no-result-found`
	cmaCards     = `article.card-route-horizontal`
	cmaCardBtn   = `label.o-button.primary-ghost`
	cmaDetails   = cmaCards + ` ` + cmaCardBtn
	cmaRateRows  = `div.rate-wrapper table.el-table__body tbody tr.el-table__row`
	cmaRateTable = `div.rate-wrapper`
)

var cmaURLs = map[string]string{
	"login": "https://auth.cma-cgm.com/as/authorization.oauth2",
	"form":  "https://www.cma-cgm.com/ebusiness/pricing/instant-Quoting",
}

// CMA drives the CMA CGM instant quoting page. Results are route cards with a
// "Details" control; the portal has no retry button.
type CMA struct {
	portal
	transit map[int]string
}

// NewCMA creates the CMA CGM adapter over sess.
func NewCMA(sess session.Session, cfg Config) *CMA {
	return &CMA{portal: newPortal("cma", sess, cfg, cmaURLs), transit: map[int]string{}}
}

// Login implements quote.Adapter.
func (c *CMA) Login(ctx context.Context) error {
	if err := c.sess.Navigate(ctx, c.url("login")); err != nil {
		return quote.Fail(quote.KindLogin, eris.Wrap(err, "cma: open login page"))
	}
	if !c.visible(ctx, c.cfg.LoginTimeout, cmaEmail) {
		return quote.Fail(quote.KindLogin, eris.New("cma: email field not shown"))
	}
	if err := c.sess.Fill(ctx, session.Sel(cmaEmail), c.cfg.Username); err != nil {
		return quote.Fail(quote.KindLogin, eris.Wrap(err, "cma: fill email"))
	}
	if err := c.sess.Fill(ctx, session.Sel(cmaPass), c.cfg.Password); err != nil {
		return quote.Fail(quote.KindLogin, eris.Wrap(err, "cma: fill password"))
	}
	if err := c.sess.Click(ctx, session.Sel(cmaSubmit)); err != nil {
		return quote.Fail(quote.KindLogin, eris.Wrap(err, "cma: submit login"))
	}
	if !c.hidden(ctx, c.cfg.LoginTimeout, cmaEmail) {
		return quote.Fail(quote.KindLogin, eris.New("cma: still on the login page"))
	}
	zap.L().Info("cma: logged in")
	return nil
}

// OpenForm implements quote.Adapter.
func (c *CMA) OpenForm(ctx context.Context) (quote.FormInfo, error) {
	if err := c.sess.Navigate(ctx, c.url("form")); err != nil {
		return quote.FormInfo{}, eris.Wrap(err, "cma: open instant quoting")
	}
	if !c.visible(ctx, c.cfg.FormTimeout, cmaOrigin) {
		return quote.FormInfo{}, eris.New("cma: origin input not visible")
	}
	return c.dateBounds(ctx, cmaDate), nil
}

// Recover implements quote.Adapter.
func (c *CMA) Recover(ctx context.Context) error {
	if err := c.sess.Navigate(ctx, c.url("form")); err != nil {
		return eris.Wrap(err, "cma: reload instant quoting")
	}
	if c.visible(ctx, 2*time.Second, cmaEmail) {
		return c.Login(ctx)
	}
	return nil
}

// FillForm implements quote.Adapter.
func (c *CMA) FillForm(ctx context.Context, req quote.Request) error {
	if err := c.pick(ctx, "origin", cmaOrigin, cmaOriginOpts, req.Origin, req.Origin); err != nil {
		return err
	}
	if err := c.pick(ctx, "destination", cmaDest, cmaDestOpts, req.Destination, req.Destination); err != nil {
		return err
	}
	if err := c.fill(ctx, "date", cmaDate, req.Date.Format("02/01/2006")); err != nil {
		return err
	}

	add := fmt.Sprintf(`li:has(.ico-%s) button.add-button`, strings.ToLower(req.ContainerType))
	if err := c.sess.Click(ctx, session.Sel(add)); err != nil {
		return quote.InvalidField("container_type", req.ContainerType, err)
	}
	weight := strconv.FormatFloat(req.WeightKg, 'f', -1, 64)
	if err := c.fill(ctx, "weight", cmaWeight, weight); err != nil {
		return err
	}

	if err := c.sess.Click(ctx, session.Sel(cmaCommodity)); err != nil {
		return quote.InvalidField("commodity", req.Commodity, err)
	}
	if !c.visible(ctx, c.cfg.SuggestTimeout, cmaCommodityOpts) {
		return quote.InvalidField("commodity", req.Commodity, ErrNoSuggestion)
	}
	doc, err := c.page(ctx)
	if err != nil {
		return quote.InvalidField("commodity", req.Commodity, err)
	}
	nth := matchText(doc.Find(cmaCommodityOpts), req.Commodity)
	if nth < 0 {
		return quote.InvalidField("commodity", req.Commodity, ErrNoSuggestion)
	}
	if err := c.sess.Click(ctx, session.Ref{Selector: cmaCommodityOpts, Nth: nth}); err != nil {
		return quote.InvalidField("commodity", req.Commodity, err)
	}
	return nil
}

// Search implements quote.Adapter.
func (c *CMA) Search(ctx context.Context) error {
	return eris.Wrap(c.sess.Click(ctx, session.Sel(cmaSearch)), "cma: search")
}

// Observe implements quote.Adapter. A result list without route cards means
// the lane has no offer.
func (c *CMA) Observe(ctx context.Context) (quote.Observation, error) {
	doc, err := c.page(ctx)
	if err != nil {
		return quote.SeenNothing, err
	}
	switch {
	case doc.Find(cmaCards).Length() > 0:
		return quote.SeenResults, nil
	case doc.Find(cmaNoResults).Length() > 0, doc.Find(cmaResults).Length() > 0:
		return quote.SeenEmpty, nil
	}
	return quote.SeenNothing, nil
}

// ClickRetry implements quote.Adapter. The page has no retry control, so the
// search is resubmitted.
func (c *CMA) ClickRetry(ctx context.Context) error {
	return c.Search(ctx)
}

// Candidates implements quote.Adapter.
func (c *CMA) Candidates(ctx context.Context, _ time.Time) ([]quote.Candidate, error) {
	doc, err := c.page(ctx)
	if err != nil {
		return nil, err
	}

	c.buttons = map[int]int{}
	c.transit = map[int]string{}
	var out []quote.Candidate
	nth := 0
	doc.Find(cmaCards).Each(func(i int, card *goquery.Selection) {
		cand := quote.Candidate{Index: i, Label: truncate(text(card.Find(".vessel-name")), 80)}
		if d, ok := quote.ParseDate(text(card.Find(".departure-date").First())); ok {
			cand.Date = d
		}
		if t := text(card.Find(".transit-time").First()); t != "" {
			c.transit[i] = t
		}
		if btn := card.Find(cmaCardBtn); btn.Length() > 0 {
			c.buttons[i] = nth
			cand.Actionable = true
			nth += btn.Length()
		}
		out = append(out, cand)
	})
	return out, nil
}

// Reset implements quote.Adapter.
func (c *CMA) Reset(ctx context.Context) error {
	c.transit = map[int]string{}
	return c.portal.Reset(ctx)
}

// Expand implements quote.Adapter. CMA has a single layout.
func (c *CMA) Expand(context.Context) (bool, error) {
	return false, nil
}

// OpenDetails implements quote.Adapter.
func (c *CMA) OpenDetails(ctx context.Context, cand quote.Candidate) error {
	return c.openCandidate(ctx, cand, cmaDetails, cmaRateRows)
}

// ExtractBreakdown implements quote.Adapter.
func (c *CMA) ExtractBreakdown(ctx context.Context) (*model.Quote, error) {
	doc, err := c.fragment(ctx, cmaRateTable)
	if err != nil {
		return nil, quote.Fail(quote.KindExtraction, err)
	}
	q := &model.Quote{Charges: parseCMARates(doc.Selection)}
	if c.chosen != nil {
		q.Journey.Departure = c.chosen.Date
		q.Journey.TransitTime = c.transit[c.chosen.Index]
	}
	return q, nil
}

// parseCMARates reads the rate tab: charge name in the second column, amount
// in the third, currency in the fifth.
func parseCMARates(root *goquery.Selection) []model.ChargeLine {
	var out []model.ChargeLine
	root.Find("table.el-table__body tbody tr.el-table__row").Each(func(_ int, tr *goquery.Selection) {
		name := text(tr.Find("td:nth-child(2) span.charges-detail").First())
		if name == "" {
			return
		}
		amount, ok := ParseAmount(text(tr.Find("td:nth-child(3) span").First()))
		if !ok {
			zap.L().Warn("cma: unreadable amount", zap.String("charge", name))
			return
		}
		currency := strings.ToUpper(text(tr.Find("td:nth-child(5) .el-tooltip__trigger").First()))
		out = append(out, model.ChargeLine{Name: name, Currency: currency, TotalPrice: amount})
	})
	return out
}

var _ quote.Adapter = (*CMA)(nil)
