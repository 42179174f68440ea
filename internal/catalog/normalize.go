package catalog

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/catalog-sync/internal/model"
)

var (
	spaceRe  = regexp.MustCompile(`\s+`)
	numberRe = regexp.MustCompile(`^#?\s*([A-Za-z0-9][A-Za-z0-9\-]*)$`)
)

// CleanText applies Unicode NFC, collapses whitespace and trims.
func CleanText(s string) string {
	s = norm.NFC.String(s)
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// CleanNumber strips a leading "#" from an identifier. Identifiers that
// do not look like an item number yield "".
func CleanNumber(s string) string {
	m := numberRe.FindStringSubmatch(CleanText(s))
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// CleanName derives the item name from a page title. A "<brand> <series>:"
// prefix is dropped when it names the series, and a trailing or embedded
// "#<number>" token matching the item number is removed.
func CleanName(title, series, number string) string {
	name := CleanText(title)
	if series != "" {
		if prefix, rest, ok := strings.Cut(name, ":"); ok && strings.TrimSpace(rest) != "" &&
			strings.Contains(strings.ToLower(prefix), strings.ToLower(series)) {
			name = strings.TrimSpace(rest)
		}
	}
	if number != "" {
		tokenRe := regexp.MustCompile(`(?i)#\s*` + regexp.QuoteMeta(number) + `\b`)
		if stripped := CleanText(tokenRe.ReplaceAllString(name, " ")); stripped != "" {
			name = stripped
		}
	}
	return name
}

// KeyFor builds the natural key for an extraction result. Series falls back
// to category when the page names no series.
func KeyFor(res *model.ExtractionResult) model.NaturalKey {
	series := CleanText(res.Series)
	if series == "" {
		series = CleanText(res.Category)
	}
	number := CleanNumber(res.Identifier)

	key := model.NaturalKey{
		Name:   CleanName(res.Title, series, number),
		Series: series,
	}
	if number != "" {
		key.Number = &number
	}
	return key
}

// Provenance returns the data-source tag for a source URL: its host without
// a leading "www.".
func Provenance(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
