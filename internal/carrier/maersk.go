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

// Maersk portal selectors. The session backend pierces open shadow roots, so
// plain descendant selectors reach inputs inside mc-* web components.
const (
	maerskCookieAllow = `[data-test="coi-allow-all-button"]`
	maerskUser        = `mc-input[data-test="username-input"] input`
	maerskPass        = `mc-input[data-test="password-input"] input`
	maerskSubmit      = `mc-button[data-test="submit-button"] button`

	maerskOrigin      = `#mc-input-origin`
	maerskDestination = `#mc-input-destination`
	maerskOption      = `[role="option"]`
	maerskCommodity   = `mc-c-commodity input`
	maerskContainer   = `input[placeholder="Select container type and size"]`
	maerskWeight      = `input[name="weight"]`
	maerskDate        = `#mc-input-earliestDepartureDatePicker`
	maerskSearch      = `mc-button[data-test="pricing-search"] button`
	maerskModalClose  = `[data-test="offer-modal-close-icon"]`
	maerskNoOffice    = `[data-test="no-offices-found"]`

	maerskCards       = `.product-offer-card [data-test="offer-cards"]`
	maerskCardButton  = `div[data-test="offer-button"] button`
	maerskDetails     = maerskCards + ` ` + maerskCardButton
	maerskNoResults   = `[data-test="pricing-no-results"]`
	maerskRetryHost   = `mc-button[data-test="pricing-search-again"]`
	maerskRetryButton = maerskRetryHost + ` button`

	maerskBreakdownTab = `[role="tab"][data-test="breakdown-tab"]`
	maerskBreakdown    = `mc-c-table[data-test="priceBreakdown"]`
	maerskModalHeader  = `.offer-modal-header`
)

var maerskURLs = map[string]string{
	"login": "https://accounts.maersk.com/ocean-maeu/auth/login",
	"home":  "https://www.maersk.com/hub/",
	"form":  "https://www.maersk.com/book/",
}

// Maersk drives the Maersk booking portal. Offers are day cards; the portal
// shows a "retry" button when a search fails transiently.
type Maersk struct {
	portal
}

// NewMaersk creates the Maersk adapter over sess.
func NewMaersk(sess session.Session, cfg Config) *Maersk {
	return &Maersk{portal: newPortal("maersk", sess, cfg, maerskURLs)}
}

// Login implements quote.Adapter.
func (m *Maersk) Login(ctx context.Context) error {
	if err := m.sess.Navigate(ctx, m.url("login")); err != nil {
		return quote.Fail(quote.KindLogin, eris.Wrap(err, "maersk: open login page"))
	}
	m.dismiss(ctx, maerskCookieAllow)

	if !m.visible(ctx, m.cfg.LoginTimeout, maerskUser) {
		return quote.Fail(quote.KindLogin, eris.New("maersk: username field not shown"))
	}
	if err := m.sess.Fill(ctx, session.Sel(maerskUser), m.cfg.Username); err != nil {
		return quote.Fail(quote.KindLogin, eris.Wrap(err, "maersk: fill username"))
	}
	if err := m.sess.Fill(ctx, session.Sel(maerskPass), m.cfg.Password); err != nil {
		return quote.Fail(quote.KindLogin, eris.Wrap(err, "maersk: fill password"))
	}
	if err := m.sess.Click(ctx, session.Sel(maerskSubmit)); err != nil {
		return quote.Fail(quote.KindLogin, eris.Wrap(err, "maersk: submit login"))
	}
	if !m.hidden(ctx, m.cfg.LoginTimeout, maerskPass) {
		return quote.Fail(quote.KindLogin, eris.New("maersk: still on the login page"))
	}

	u, _ := m.sess.URL(ctx)
	zap.L().Info("maersk: logged in", zap.String("url", u))
	return nil
}

// OpenForm implements quote.Adapter.
func (m *Maersk) OpenForm(ctx context.Context) (quote.FormInfo, error) {
	if err := m.sess.Navigate(ctx, m.url("form")); err != nil {
		return quote.FormInfo{}, eris.Wrap(err, "maersk: open booking page")
	}
	m.dismiss(ctx, maerskModalClose)

	if !m.visible(ctx, m.cfg.FormTimeout, maerskOrigin) {
		if m.visible(ctx, 0, maerskNoOffice) {
			return quote.FormInfo{}, eris.New("maersk: booking page reports no offices for this profile")
		}
		return quote.FormInfo{}, eris.New("maersk: origin input not visible")
	}
	return m.dateBounds(ctx, maerskDate), nil
}

// Recover implements quote.Adapter: back to the hub, logging in again when
// the session expired.
func (m *Maersk) Recover(ctx context.Context) error {
	if err := m.sess.Navigate(ctx, m.url("home")); err != nil {
		return eris.Wrap(err, "maersk: open hub")
	}
	if m.visible(ctx, 2*time.Second, maerskUser) {
		return m.Login(ctx)
	}
	return nil
}

// FillForm implements quote.Adapter.
func (m *Maersk) FillForm(ctx context.Context, req quote.Request) error {
	if err := m.pick(ctx, "origin", maerskOrigin, maerskOption, req.Origin, req.Origin); err != nil {
		return err
	}
	m.dismiss(ctx, maerskModalClose)
	if err := m.pick(ctx, "destination", maerskDestination, maerskOption, req.Destination, req.Destination); err != nil {
		return err
	}
	if err := m.pick(ctx, "commodity", maerskCommodity, maerskOption, req.Commodity, req.Commodity); err != nil {
		return err
	}
	if err := m.pick(ctx, "container_type", maerskContainer, maerskOption, req.ContainerType, req.ContainerType); err != nil {
		return err
	}
	weight := strconv.FormatFloat(req.WeightKg, 'f', -1, 64)
	if err := m.fill(ctx, "weight", maerskWeight, weight); err != nil {
		return err
	}
	if req.PriceOwner != "" {
		owner := fmt.Sprintf(`mc-radio[label=%q] input`, req.PriceOwner)
		if err := m.sess.Click(ctx, session.Sel(owner)); err != nil {
			return quote.InvalidField("price_owner", req.PriceOwner, err)
		}
	}
	return m.fill(ctx, "date", maerskDate, req.Date.Format("02 Jan 2006"))
}

// Search implements quote.Adapter.
func (m *Maersk) Search(ctx context.Context) error {
	m.dismiss(ctx, maerskModalClose)
	return eris.Wrap(m.sess.Click(ctx, session.Sel(maerskSearch)), "maersk: search")
}

// Observe implements quote.Adapter.
func (m *Maersk) Observe(ctx context.Context) (quote.Observation, error) {
	doc, err := m.page(ctx)
	if err != nil {
		return quote.SeenNothing, err
	}
	switch {
	case doc.Find(maerskCards).Length() > 0:
		return quote.SeenResults, nil
	case doc.Find(maerskNoResults).Length() > 0:
		return quote.SeenEmpty, nil
	case doc.Find(maerskRetryHost).Length() > 0:
		return quote.SeenRetry, nil
	}
	return quote.SeenNothing, nil
}

// ClickRetry implements quote.Adapter.
func (m *Maersk) ClickRetry(ctx context.Context) error {
	return eris.Wrap(m.sess.Click(ctx, session.Sel(maerskRetryButton)), "maersk: click retry")
}

// Candidates implements quote.Adapter. Each offer card shows its departure
// as a day number and a month abbreviation.
func (m *Maersk) Candidates(ctx context.Context, target time.Time) ([]quote.Candidate, error) {
	doc, err := m.page(ctx)
	if err != nil {
		return nil, err
	}

	m.buttons = map[int]int{}
	var out []quote.Candidate
	nth := 0
	doc.Find(maerskCards).Each(func(i int, card *goquery.Selection) {
		c := quote.Candidate{Index: i, Label: truncate(text(card), 80)}
		day := text(card.Find(".offer-cards-day").First())
		month := text(card.Find(".offer-cards-month").First())
		if d, ok := quote.ParseDayMonth(day, month, target); ok {
			c.Date = d
		}

		btn := card.Find(maerskCardButton)
		if btn.Length() > 0 {
			m.buttons[i] = nth
			label := strings.ToLower(text(btn.First()))
			c.Actionable = !soldOut(label) && !seeOffer(label)
			nth += btn.Length()
		}
		out = append(out, c)
	})
	return out, nil
}

// Expand implements quote.Adapter. Some searches render a compact layout of
// undated "See the offer" cards that must be opened before day cards appear.
func (m *Maersk) Expand(ctx context.Context) (bool, error) {
	doc, err := m.page(ctx)
	if err != nil {
		return false, err
	}
	if !seeOfferLayout(doc.Find(maerskCards)) {
		return false, nil
	}

	zap.L().Info("maersk: expanding compact offer layout")
	if err := m.sess.Click(ctx, session.Sel(maerskDetails)); err != nil {
		return false, eris.Wrap(err, "maersk: expand offers")
	}
	if !m.visible(ctx, m.cfg.PanelTimeout, maerskCards+` .offer-cards-day`) {
		return false, eris.New("maersk: offers did not expand")
	}
	return true, nil
}

// OpenDetails implements quote.Adapter.
func (m *Maersk) OpenDetails(ctx context.Context, c quote.Candidate) error {
	return m.openCandidate(ctx, c, maerskDetails, maerskBreakdown, maerskBreakdownTab)
}

// ExtractBreakdown implements quote.Adapter.
func (m *Maersk) ExtractBreakdown(ctx context.Context) (*model.Quote, error) {
	if m.visible(ctx, 0, maerskBreakdownTab) {
		if err := m.sess.Click(ctx, session.Sel(maerskBreakdownTab)); err != nil {
			zap.L().Debug("maersk: breakdown tab click failed", zap.Error(err))
		}
	}
	if !m.visible(ctx, m.cfg.PanelTimeout, maerskBreakdown) {
		return nil, quote.Fail(quote.KindExtraction, eris.New("maersk: breakdown table not shown"))
	}

	doc, err := m.fragment(ctx, maerskBreakdown)
	if err != nil {
		return nil, quote.Fail(quote.KindExtraction, err)
	}
	// A table with headings only is a valid quote with no charges.
	q := &model.Quote{Charges: parseMaerskBreakdown(doc.Selection)}
	if page, err := m.page(ctx); err == nil {
		q.Journey = parseMaerskJourney(page.Find(maerskModalHeader).First())
	}
	if q.Journey.Departure.IsZero() && m.chosen != nil {
		q.Journey.Departure = m.chosen.Date
	}
	return q, nil
}

// parseMaerskBreakdown reads rows of charge name, basis, quantity, currency,
// unit price and total price. Section heading rows are skipped.
func parseMaerskBreakdown(table *goquery.Selection) []model.ChargeLine {
	var out []model.ChargeLine
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.Find(".dark-subheader--chargesHeading").Length() > 0 {
			return
		}
		tds := tr.Find("td")
		if tds.Length() < 6 {
			return
		}
		cell := func(i int) string { return text(tds.Eq(i)) }

		line := model.ChargeLine{Name: cell(0), Basis: cell(1)}
		if q, ok := ParseAmount(cell(2)); ok {
			line.Quantity = q
		}
		unitCur, unit, _ := ParseMoney(cell(4))
		if line.Name == "" {
			return
		}
		totalCur, total, ok := ParseMoney(cell(5))
		if !ok {
			zap.L().Warn("maersk: unreadable charge total",
				zap.String("charge", line.Name),
				zap.String("total", cell(5)),
			)
			return
		}
		line.UnitPrice = unit
		line.TotalPrice = total
		line.Currency = firstNonEmpty(totalCur, unitCur, strings.ToUpper(cell(3)))
		out = append(out, line)
	})
	return out
}

// parseMaerskJourney reads the details header. Each value follows its
// data-test label as a sibling.
func parseMaerskJourney(header *goquery.Selection) model.Journey {
	var j model.Journey
	valueOf := func(label string) string {
		return text(header.Find(fmt.Sprintf(`[data-test=%q]`, label)).First().Next())
	}
	if d, ok := quote.ParseDate(valueOf("header-label-departure")); ok {
		j.Departure = d
	}
	if d, ok := quote.ParseDate(valueOf("header-label-arrival")); ok {
		j.Arrival = d
	}
	transit := header.Find(`[data-test="header-label-transit"]`).First()
	if dur := transit.Parent().Find("mc-c-duration-display"); dur.Length() > 0 {
		j.TransitTime = text(dur.First())
	} else {
		j.TransitTime = valueOf("header-label-transit")
	}
	return j
}

func soldOut(label string) bool {
	return (strings.Contains(label, "sold out") || strings.Contains(label, "esgotado")) &&
		!strings.Contains(label, "details")
}

func seeOffer(label string) bool {
	return strings.Contains(label, "see the offer") || strings.Contains(label, "see offer")
}

// seeOfferLayout reports whether every card is undated and offers only
// "See the offer" buttons.
func seeOfferLayout(cards *goquery.Selection) bool {
	if cards.Length() == 0 {
		return false
	}
	buttons := 0
	compact := true
	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if text(card.Find(".offer-cards-day")) != "" || text(card.Find(".offer-cards-month")) != "" {
			compact = false
			return false
		}
		card.Find(maerskCardButton).EachWithBreak(func(_ int, b *goquery.Selection) bool {
			buttons++
			if label := strings.ToLower(text(b)); label != "" && !seeOffer(label) {
				compact = false
			}
			return compact
		})
		return compact
	})
	return compact && buttons > 0
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var _ quote.Adapter = (*Maersk)(nil)
