package model

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ChargeLine is one parsed line of a quote's price breakdown.
type ChargeLine struct {
	Name       string  `json:"charge_name"`
	Basis      string  `json:"basis,omitempty"`
	Quantity   float64 `json:"quantity,omitempty"`
	Currency   string  `json:"currency"`
	UnitPrice  float64 `json:"unit_price,omitempty"`
	TotalPrice float64 `json:"total_price"`

	// Group and Dimension are set for grouped breakdowns (e.g. "Freight
	// Charges" / "20STD"). Grouped lines use a different column naming.
	Group     string `json:"group,omitempty"`
	Dimension string `json:"dimension,omitempty"`
}

// Grouped reports whether the line belongs to a grouped breakdown.
func (c ChargeLine) Grouped() bool {
	return c.Group != ""
}

// CurrencySuffix marks the paired currency column of a grouped charge.
const CurrencySuffix = " | Curr"

// Column returns the result store column name for the line.
func (c ChargeLine) Column() string {
	if c.Grouped() {
		return strings.Join([]string{c.Group, c.Name, c.Dimension}, " | ")
	}
	return strings.TrimSpace(strings.ToUpper(c.Currency) + " " + c.Name)
}

// Columns renders the line into result store cells. Grouped lines write the
// amount plus a paired currency tag; flat lines carry the currency in the name.
func (c ChargeLine) Columns() map[string]string {
	col := c.Column()
	out := map[string]string{col: FormatAmount(c.TotalPrice)}
	if c.Grouped() {
		out[col+CurrencySuffix] = strings.ToUpper(c.Currency)
	}
	return out
}

// FormatAmount renders a number with up to two decimals and no trailing zeros.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(Round2(v), 'f', -1, 64)
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Journey columns written alongside charges on success.
const (
	ColDepartureDate = "Departure Date"
	ColArrivalDate   = "Arrival Date"
	ColTransitTime   = "Transit Time"
)

// Journey is metadata about the selected sailing.
type Journey struct {
	Departure   time.Time `json:"departure,omitempty"`
	Arrival     time.Time `json:"arrival,omitempty"`
	TransitTime string    `json:"transit_time,omitempty"`
}

// Columns renders the journey into result store cells. Unknown values are omitted.
func (j Journey) Columns() map[string]string {
	out := map[string]string{}
	if !j.Departure.IsZero() {
		out[ColDepartureDate] = j.Departure.Format("2006-01-02")
	}
	if !j.Arrival.IsZero() {
		out[ColArrivalDate] = j.Arrival.Format("2006-01-02")
	}
	if j.TransitTime != "" {
		out[ColTransitTime] = j.TransitTime
	}
	return out
}

// Quote is a successful extraction: the breakdown plus journey metadata.
type Quote struct {
	Charges []ChargeLine `json:"charges"`
	Journey Journey      `json:"journey"`
}
