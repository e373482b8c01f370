package carrier

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	decimalComma = regexp.MustCompile(`,\d{1,2}$`)
	decimalDot   = regexp.MustCompile(`\.\d{1,2}$`)
	moneyPrefix  = regexp.MustCompile(`^([A-Za-z]{3})\s*([-\x{2013}\x{2212}]?\s*[\d.,\s]+)$`)
	moneySuffix  = regexp.MustCompile(`^([-\x{2013}\x{2212}]?\s*[\d.,\s]+?)\s*([A-Za-z]{3})$`)
)

// ParseAmount reads a number printed in either locale: "1,234.56",
// "1.234,56", "1 234", "26000". A lone separator followed by one or two
// digits is a decimal point; otherwise it groups thousands.
func ParseAmount(s string) (float64, bool) {
	s = strings.NewReplacer(
		" ", "", "\u00a0", "", "\u202f", "",
		"\u2013", "-", "\u2212", "-",
	).Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		if decimalComma.MatchString(s) {
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasDot:
		if !decimalDot.MatchString(s) {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseMoney splits "USD 1,234.00" or "1.234,00 EUR" into currency and amount.
// The currency is empty when the text carries none.
func ParseMoney(s string) (currency string, amount float64, ok bool) {
	s = strings.Join(strings.Fields(s), " ")
	if m := moneyPrefix.FindStringSubmatch(s); m != nil {
		currency, s = m[1], m[2]
	} else if m := moneySuffix.FindStringSubmatch(s); m != nil {
		s, currency = m[1], m[2]
	}
	amount, ok = ParseAmount(s)
	return strings.ToUpper(currency), amount, ok
}
