package carrier

import (
	"context"
	"regexp"
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
	hapagCookie = `#accept-recommended-btn-handler`
	hapagUser   = `#signInName`
	hapagPass   = `#password`
	hapagNext   = `#next`

	hapagStart     = `input[data-testid="start-input"]`
	hapagEnd       = `input[data-testid="end-input"]`
	hapagOption    = `.q-menu .q-item`
	hapagDate      = `input[data-testid="validity-input"]`
	hapagContainer = `[data-testid="container-input"]`
	hapagWeight    = `input[data-testid="weight-input"]`
	hapagSearch    = `button[data-testid="search-button"]`

	hapagCards     = `div.offer-card`
	hapagCardBtn   = `button:has(span.block)`
	hapagDetails   = hapagCards + ` ` + hapagCardBtn
	hapagNoOffers  = `[data-testid="no-offers"]`
	hapagCharges   = `.offer-charges`
	hapagTables    = hapagCharges + ` table.q-table`
	hapagLoading   = `.q-inner-loading, .q-spinner, .q-skeleton, [aria-busy="true"]`
	hapagDataItem  = `.hal-data-item`
	hapagItemLabel = `.hal-data-item__label`
	hapagItemValue = `.hal-data-item__content`
)

var hapagChallenge = []string{`#challenge-form`, `#cf-challenge-running`, `.cf-browser-verification`}

var hapagURLs = map[string]string{
	"login": "https://identity.hapag-lloyd.com/hlagwebprod.onmicrosoft.com/b2c_1a_signup_signin/oauth2/v2.0/authorize",
	"form":  "https://www.hapag-lloyd.com/solutions/new-quote/#/simple?language=en",
}

var digits = regexp.MustCompile(`\d+`)

// Hapag drives the Hapag-Lloyd Quick Quotes page. Offers are product cards
// (Spot, standard) and the breakdown is a set of grouped tables, one column
// per container size.
type Hapag struct {
	portal
	transit map[int]string
}

// NewHapag creates the Hapag-Lloyd adapter over sess.
func NewHapag(sess session.Session, cfg Config) *Hapag {
	return &Hapag{portal: newPortal("hapag", sess, cfg, hapagURLs), transit: map[int]string{}}
}

// Login implements quote.Adapter.
func (h *Hapag) Login(ctx context.Context) error {
	if err := h.sess.Navigate(ctx, h.url("login")); err != nil {
		return quote.Fail(quote.KindLogin, eris.Wrap(err, "hapag: open login page"))
	}
	if err := h.clearBlock(ctx, h.cfg.LoginTimeout, hapagChallenge...); err != nil {
		return quote.Fail(quote.KindLogin, err)
	}
	h.dismiss(ctx, hapagCookie)

	if !h.visible(ctx, h.cfg.LoginTimeout, hapagUser) {
		return quote.Fail(quote.KindLogin, eris.New("hapag: sign-in field not shown"))
	}
	if err := h.sess.Fill(ctx, session.Sel(hapagUser), h.cfg.Username); err != nil {
		return quote.Fail(quote.KindLogin, eris.Wrap(err, "hapag: fill username"))
	}
	if err := h.sess.Fill(ctx, session.Sel(hapagPass), h.cfg.Password); err != nil {
		return quote.Fail(quote.KindLogin, eris.Wrap(err, "hapag: fill password"))
	}
	if err := h.sess.Click(ctx, session.Sel(hapagNext)); err != nil {
		return quote.Fail(quote.KindLogin, eris.Wrap(err, "hapag: submit login"))
	}
	if !h.hidden(ctx, h.cfg.LoginTimeout, hapagUser) {
		return quote.Fail(quote.KindLogin, eris.New("hapag: still on the sign-in page"))
	}
	zap.L().Info("hapag: logged in")
	return nil
}

// OpenForm implements quote.Adapter.
func (h *Hapag) OpenForm(ctx context.Context) (quote.FormInfo, error) {
	if err := h.sess.Navigate(ctx, h.url("form")); err != nil {
		return quote.FormInfo{}, eris.Wrap(err, "hapag: open new quote page")
	}
	if err := h.clearBlock(ctx, h.cfg.FormTimeout, hapagChallenge...); err != nil {
		return quote.FormInfo{}, err
	}
	if !h.visible(ctx, h.cfg.FormTimeout, hapagStart) {
		return quote.FormInfo{}, eris.New("hapag: start location input not visible")
	}
	return h.dateBounds(ctx, hapagDate), nil
}

// Recover implements quote.Adapter.
func (h *Hapag) Recover(ctx context.Context) error {
	if err := h.sess.Navigate(ctx, h.url("form")); err != nil {
		return eris.Wrap(err, "hapag: reload new quote page")
	}
	if h.visible(ctx, 2*time.Second, hapagUser) {
		return h.Login(ctx)
	}
	return nil
}

// FillForm implements quote.Adapter.
func (h *Hapag) FillForm(ctx context.Context, req quote.Request) error {
	if err := h.pick(ctx, "origin", hapagStart, hapagOption, req.Origin, req.Origin); err != nil {
		return err
	}
	if err := h.pick(ctx, "destination", hapagEnd, hapagOption, req.Destination, req.Destination); err != nil {
		return err
	}
	if err := h.fill(ctx, "date", hapagDate, req.Date.Format("2006-01-02")); err != nil {
		return err
	}

	if err := h.sess.Click(ctx, session.Sel(hapagContainer)); err != nil {
		return quote.InvalidField("container_type", req.ContainerType, err)
	}
	if !h.visible(ctx, h.cfg.SuggestTimeout, hapagOption) {
		return quote.InvalidField("container_type", req.ContainerType, ErrNoSuggestion)
	}
	doc, err := h.page(ctx)
	if err != nil {
		return quote.InvalidField("container_type", req.ContainerType, err)
	}
	nth := matchText(doc.Find(hapagOption), req.ContainerType)
	if nth < 0 {
		return quote.InvalidField("container_type", req.ContainerType, ErrNoSuggestion)
	}
	if err := h.sess.Click(ctx, session.Ref{Selector: hapagOption, Nth: nth}); err != nil {
		return quote.InvalidField("container_type", req.ContainerType, err)
	}

	weight := strconv.FormatFloat(req.WeightKg, 'f', -1, 64)
	return h.fill(ctx, "weight", hapagWeight, weight)
}

// Search implements quote.Adapter.
func (h *Hapag) Search(ctx context.Context) error {
	return eris.Wrap(h.sess.Click(ctx, session.Sel(hapagSearch)), "hapag: search")
}

// Observe implements quote.Adapter.
func (h *Hapag) Observe(ctx context.Context) (quote.Observation, error) {
	doc, err := h.page(ctx)
	if err != nil {
		return quote.SeenNothing, err
	}
	switch {
	case doc.Find(hapagCards).Length() > 0:
		return quote.SeenResults, nil
	case doc.Find(hapagNoOffers).Length() > 0:
		return quote.SeenEmpty, nil
	}
	return quote.SeenNothing, nil
}

// ClickRetry implements quote.Adapter by resubmitting the search.
func (h *Hapag) ClickRetry(ctx context.Context) error {
	return h.Search(ctx)
}

// Candidates implements quote.Adapter. A card is actionable when it is not
// disabled and has an enabled "Price Breakdown" button.
func (h *Hapag) Candidates(ctx context.Context, _ time.Time) ([]quote.Candidate, error) {
	doc, err := h.page(ctx)
	if err != nil {
		return nil, err
	}

	h.buttons = map[int]int{}
	h.transit = map[int]string{}
	var out []quote.Candidate
	nth := 0
	doc.Find(hapagCards).Each(func(i int, card *goquery.Selection) {
		c := quote.Candidate{Index: i, Label: text(card.Find("h1").First())}
		if d, ok := quote.ParseDate(dataItem(card, "departure")); ok {
			c.Date = d
		}
		if days := digits.FindString(dataItem(card, "estimated transportation days")); days != "" {
			h.transit[i] = days
		}

		disabledCard := card.HasClass("offer-card--disabled")
		card.Find(hapagCardBtn).Each(func(j int, btn *goquery.Selection) {
			_, disabled := btn.Attr("disabled")
			enabled := !disabled && !btn.HasClass("disabled") && !disabledCard
			label := strings.ToLower(text(btn))
			if enabled && !c.Actionable && strings.Contains(label, "price breakdown") {
				h.buttons[i] = nth + j
				c.Actionable = true
			}
		})
		nth += card.Find(hapagCardBtn).Length()
		out = append(out, c)
	})
	return out, nil
}

// Reset implements quote.Adapter.
func (h *Hapag) Reset(ctx context.Context) error {
	h.transit = map[int]string{}
	return h.portal.Reset(ctx)
}

// Expand implements quote.Adapter. Hapag has a single layout.
func (h *Hapag) Expand(context.Context) (bool, error) {
	return false, nil
}

// OpenDetails implements quote.Adapter.
func (h *Hapag) OpenDetails(ctx context.Context, c quote.Candidate) error {
	return h.openCandidate(ctx, c, hapagDetails, hapagTables, hapagCharges)
}

// ExtractBreakdown implements quote.Adapter.
func (h *Hapag) ExtractBreakdown(ctx context.Context) (*model.Quote, error) {
	if !h.hidden(ctx, h.cfg.PanelTimeout, hapagLoading) {
		zap.L().Warn("hapag: breakdown still loading, extracting anyway")
	}
	doc, err := h.fragment(ctx, hapagCharges)
	if err != nil {
		return nil, quote.Fail(quote.KindExtraction, err)
	}
	q := &model.Quote{Charges: parseHapagTables(doc.Selection)}
	if h.chosen != nil {
		q.Journey.Departure = h.chosen.Date
		q.Journey.TransitTime = h.transit[h.chosen.Index]
	}
	return q, nil
}

// parseHapagTables reads every breakdown table. The first header names the
// group, the second column holds the currency, and each further column is a
// container size. Cut-off tables carry dates, not prices, and are skipped.
func parseHapagTables(root *goquery.Selection) []model.ChargeLine {
	var out []model.ChargeLine
	root.Find("table.q-table").Each(func(_ int, table *goquery.Selection) {
		var headers []string
		table.Find("thead th").Each(func(_ int, th *goquery.Selection) {
			headers = append(headers, text(th))
		})
		if len(headers) < 3 || strings.EqualFold(headers[0], "cut-offs") {
			return
		}
		group := headers[0]

		table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
			tds := tr.Find("td")
			if tds.Length() < 3 {
				return
			}
			name := mainLabel(tds.Eq(0))
			currency := strings.ToUpper(text(tds.Eq(1)))
			for col := 2; col < tds.Length() && col < len(headers); col++ {
				v, ok := ParseAmount(text(tds.Eq(col)))
				if !ok {
					continue
				}
				out = append(out, model.ChargeLine{
					Group:      group,
					Name:       name,
					Dimension:  headers[col],
					Currency:   currency,
					TotalPrice: v,
				})
			}
		})
	})
	return out
}

// mainLabel prefers the first nested div of a cell, which drops subtitles
// such as "To be paid prepaid".
func mainLabel(td *goquery.Selection) string {
	if main := td.Find("div > div").First(); main.Length() > 0 {
		return text(main)
	}
	return text(td)
}

// dataItem returns the content of the card's data item whose label contains
// label (case-insensitive).
func dataItem(card *goquery.Selection, label string) string {
	var out string
	card.Find(hapagDataItem).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(text(item.Find(hapagItemLabel))), label) {
			out = text(item.Find(hapagItemValue).First())
			return false
		}
		return true
	})
	return out
}

var _ quote.Adapter = (*Hapag)(nil)
