package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/currency"
)

// Band is an inclusive sanity range for extracted prices.
type Band struct {
	Min float64
	Max float64
}

// DefaultBand is the domain default sanity band in major currency units.
var DefaultBand = Band{Min: 5, Max: 100}

// Contains reports whether v lies inside the band (inclusive).
func (b Band) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

func (b Band) String() string {
	return fmt.Sprintf("[%g, %g]", b.Min, b.Max)
}

var symbolCurrency = map[string]currency.Unit{
	"£":   currency.GBP,
	"€":   currency.EUR,
	"$":   currency.USD,
	"US$": currency.USD,
	"A$":  currency.AUD,
	"C$":  currency.CAD,
}

var (
	numberRe   = regexp.MustCompile(`\d[\d.,]*`)
	isoCodeRe  = regexp.MustCompile(`\b[A-Z]{3}\b`)
	symbolRe   = regexp.MustCompile(`US\$|A\$|C\$|[£€$]`)
	thousandRe = regexp.MustCompile(`^\d{1,3}([.,]\d{3})+$`)
	unitTailRe = regexp.MustCompile(`(US\$|A\$|C\$|[£€$]|\b[A-Z]{3})\s*$`)
)

// ParsedPrice is a price string split into amount and currency.
type ParsedPrice struct {
	Amount   float64
	Currency string // ISO 4217 code, "" when the string names none
}

// ParsePrice parses the first number in raw as a positive decimal and
// detects its currency from a symbol or ISO code. Thousands separators and
// decimal commas are handled. A minus sign before the number or its currency
// symbol rejects the price.
func ParsePrice(raw string) (ParsedPrice, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ParsedPrice{}, false
	}

	loc := numberRe.FindStringIndex(raw)
	if loc == nil || negated(raw[:loc[0]]) {
		return ParsedPrice{}, false
	}
	num := raw[loc[0]:loc[1]]
	amount, ok := parseDecimal(num)
	if !ok || amount <= 0 {
		return ParsedPrice{}, false
	}

	return ParsedPrice{Amount: amount, Currency: detectCurrency(raw)}, true
}

// ParseInBand parses raw and accepts it only inside band.
func ParseInBand(raw string, band Band) (ParsedPrice, bool) {
	p, ok := ParsePrice(raw)
	if !ok || !band.Contains(p.Amount) {
		return ParsedPrice{}, false
	}
	return p, true
}

// negated reports whether prefix ends in a minus sign, optionally followed
// by a currency symbol or code. A hyphen joined to a word ("Item-574") is
// not a sign.
func negated(prefix string) bool {
	p := strings.TrimRightFunc(prefix, unicode.IsSpace)
	if endsWithSign(p) {
		return true
	}
	if loc := unitTailRe.FindStringIndex(p); loc != nil {
		return endsWithSign(strings.TrimRightFunc(p[:loc[0]], unicode.IsSpace))
	}
	return false
}

func endsWithSign(s string) bool {
	var rest string
	switch {
	case strings.HasSuffix(s, "-"):
		rest = strings.TrimSuffix(s, "-")
	case strings.HasSuffix(s, "\u2212"):
		rest = strings.TrimSuffix(s, "\u2212")
	default:
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(rest)
	return rest == "" || !(unicode.IsLetter(r) || unicode.IsDigit(r))
}

func detectCurrency(raw string) string {
	if sym := symbolRe.FindString(raw); sym != "" {
		if u, ok := symbolCurrency[sym]; ok {
			return u.String()
		}
	}
	for _, code := range isoCodeRe.FindAllString(raw, -1) {
		if u, err := currency.ParseISO(code); err == nil {
			return u.String()
		}
	}
	return ""
}

// parseDecimal interprets separators: the right-most '.' or ',' followed by
// one or two digits is the decimal point; everything else is grouping.
func parseDecimal(num string) (float64, bool) {
	num = strings.TrimRight(strings.TrimSpace(num), ".,")
	if num == "" {
		return 0, false
	}

	// "1,000" and "1.000.000" are grouping only.
	if thousandRe.MatchString(num) {
		v, err := strconv.ParseFloat(stripSeparators(num), 64)
		return v, err == nil
	}

	idx := strings.LastIndexAny(num, ".,")
	if idx >= 0 && len(num)-idx-1 <= 2 {
		intPart := stripSeparators(num[:idx])
		frac := num[idx+1:]
		v, err := strconv.ParseFloat(intPart+"."+frac, 64)
		return v, err == nil
	}

	v, err := strconv.ParseFloat(stripSeparators(num), 64)
	return v, err == nil
}

func stripSeparators(s string) string {
	return strings.NewReplacer(",", "", ".", "").Replace(s)
}
