package extract

import (
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/catalog-sync/internal/model"
)

// Set holds the configured chain for every field.
type Set struct {
	chains   map[Field]Chain
	band     Band
	currency string
}

// NewSet builds the default chains. Prices outside band are rejected;
// prices without a detectable currency are tagged with defaultCurrency.
func NewSet(band Band, defaultCurrency string) *Set {
	s := &Set{
		chains:   make(map[Field]Chain),
		band:     band,
		currency: strings.ToUpper(defaultCurrency),
	}
	for _, c := range []Chain{
		titleChain(),
		identifierChain(),
		seriesChain(),
		categoryChain(),
		descriptionChain(),
		priceChain(band),
		imageChain(),
		variantChain(),
		flagChain(FieldExclusive, "exclusive"),
		flagChain(FieldChase, "chase"),
		flagChain(FieldVaulted, "vaulted"),
	} {
		s.chains[c.Field] = c
	}
	return s
}

// Band returns the price sanity band the set validates against.
func (s *Set) Band() Band { return s.band }

// Chain returns the chain configured for f.
func (s *Set) Chain(f Field) (Chain, bool) {
	c, ok := s.chains[f]
	return c, ok
}

// Extract runs the chain for one field. An unknown field never matches.
func (s *Set) Extract(f Field, doc *Document) (string, bool) {
	c, ok := s.chains[f]
	if !ok {
		return "", false
	}
	m, ok := c.Extract(doc)
	return m.Value, ok
}

// Apply runs every chain over doc and assembles the result. Missing fields
// are left empty; the caller decides which ones are required.
func (s *Set) Apply(doc *Document) model.ExtractionResult {
	res := model.ExtractionResult{
		SourceURL:  doc.URL,
		Strategies: make(map[string]string),
	}

	get := func(f Field) (string, bool) {
		c, ok := s.chains[f]
		if !ok {
			return "", false
		}
		m, ok := c.Extract(doc)
		if ok {
			res.Strategies[string(f)] = m.Strategy
		}
		return m.Value, ok
	}

	res.Title, _ = get(FieldTitle)
	res.Identifier, _ = get(FieldIdentifier)
	res.Series, _ = get(FieldSeries)
	res.Category, _ = get(FieldCategory)
	res.Description, _ = get(FieldDescription)
	res.ImageURL, _ = get(FieldImage)
	res.Variant, _ = get(FieldVariant)
	_, res.IsExclusive = get(FieldExclusive)
	_, res.IsChase = get(FieldChase)
	_, res.IsVaulted = get(FieldVaulted)

	if raw, ok := get(FieldPrice); ok {
		if p, ok := ParseInBand(raw, s.band); ok {
			cur := p.Currency
			if cur == "" {
				cur = s.currency
			}
			m := model.NewMoney(p.Amount, cur)
			res.Price = &m
			res.PriceRaw = raw
		}
	}
	return res
}

// --- title ---

var titleSuffixRe = regexp.MustCompile(`\s+[|–—-]\s+[^|–—-]+$`)

func titleChain() Chain {
	return Chain{
		Field: FieldTitle,
		Strategies: []Strategy{
			{Name: "jsonld_name", Fn: func(d *Document) (string, bool) { return d.ProductValue("name") }},
			{Name: "og_title", Fn: func(d *Document) (string, bool) { return d.Meta("og:title") }},
			{Name: "h1", Fn: func(d *Document) (string, bool) { return d.FirstText("h1") }},
			{Name: "title_tag", Fn: titleTag},
			{Name: "markdown_heading", Fn: markdownHeading},
		},
		Validate: func(v string) bool { return len(v) >= 2 && len(v) <= 300 },
	}
}

func titleTag(d *Document) (string, bool) {
	t, ok := d.FirstText("title")
	if !ok {
		return "", false
	}
	t = strings.TrimSpace(titleSuffixRe.ReplaceAllString(t, ""))
	return t, t != ""
}

func markdownHeading(d *Document) (string, bool) {
	for _, line := range strings.Split(d.Markdown, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:]), true
		}
	}
	return "", false
}

// pageTitle is the best cheap title guess used by strategies that mine the
// title for other fields.
func pageTitle(d *Document) string {
	for _, fn := range []StrategyFunc{
		func(d *Document) (string, bool) { return d.ProductValue("name") },
		func(d *Document) (string, bool) { return d.Meta("og:title") },
		func(d *Document) (string, bool) { return d.FirstText("h1") },
		titleTag,
		markdownHeading,
	} {
		if v, ok := fn(d); ok {
			return v
		}
	}
	return ""
}

// --- identifier ---

var (
	hashNumberRe = regexp.MustCompile(`#\s?(\d{1,5})\b`)
	urlNumberRe  = regexp.MustCompile(`(?:^|-)(\d{1,5})$`)
	identifierRe = regexp.MustCompile(`^[A-Za-z]{0,3}[-\s]?\d{1,6}[A-Za-z]?$`)
)

func identifierChain() Chain {
	return Chain{
		Field: FieldIdentifier,
		Strategies: []Strategy{
			{Name: "jsonld_property", Fn: func(d *Document) (string, bool) {
				return d.ProductProperty("Number", "Item Number", "Pop Number", "Box Number")
			}},
			{Name: "jsonld_mpn", Fn: func(d *Document) (string, bool) { return d.ProductValue("mpn") }},
			{Name: "jsonld_sku", Fn: func(d *Document) (string, bool) { return d.ProductValue("sku") }},
			{Name: "labeled", Fn: labeled("Item No.", "Item No", "Item Number", "Box Number", "Pop Number", "Number", "No.")},
			{Name: "title_hash", Fn: func(d *Document) (string, bool) {
				m := hashNumberRe.FindStringSubmatch(pageTitle(d))
				if m == nil {
					return "", false
				}
				return m[1], true
			}},
			{Name: "url_number", Fn: func(d *Document) (string, bool) {
				m := urlNumberRe.FindStringSubmatch(path.Base(strings.TrimSuffix(d.Path(), "/")))
				if m == nil {
					return "", false
				}
				return m[1], true
			}},
		},
		Validate: func(v string) bool {
			return identifierRe.MatchString(strings.TrimPrefix(strings.TrimSpace(v), "#"))
		},
	}
}

// --- series / category ---

var seriesTitleRe = regexp.MustCompile(`(?i)^(?:funko\s+)?pop!?\s+([^:]{2,40}):`)

func seriesChain() Chain {
	return Chain{
		Field: FieldSeries,
		Strategies: []Strategy{
			{Name: "jsonld_property", Fn: func(d *Document) (string, bool) {
				return d.ProductProperty("Series", "License", "Licence", "Franchise")
			}},
			{Name: "labeled", Fn: labeled("Series", "License", "Licence", "Franchise")},
			{Name: "title_prefix", Fn: func(d *Document) (string, bool) {
				m := seriesTitleRe.FindStringSubmatch(pageTitle(d))
				if m == nil {
					return "", false
				}
				return strings.TrimSpace(m[1]), true
			}},
			{Name: "breadcrumb", Fn: func(d *Document) (string, bool) {
				crumbs := breadcrumbs(d)
				if len(crumbs) == 0 {
					return "", false
				}
				return crumbs[len(crumbs)-1], true
			}},
		},
		Validate: shortText,
	}
}

func categoryChain() Chain {
	return Chain{
		Field: FieldCategory,
		Strategies: []Strategy{
			{Name: "jsonld_category", Fn: func(d *Document) (string, bool) { return d.ProductValue("category") }},
			{Name: "breadcrumb", Fn: func(d *Document) (string, bool) {
				crumbs := breadcrumbs(d)
				if len(crumbs) == 0 {
					return "", false
				}
				return crumbs[0], true
			}},
			{Name: "labeled", Fn: labeled("Category", "Product Type", "Type")},
			{Name: "meta_category", Fn: func(d *Document) (string, bool) { return d.Meta("product:category") }},
		},
		Validate: shortText,
	}
}

func shortText(v string) bool { return len(v) >= 2 && len(v) <= 80 }

var breadcrumbSelectors = `nav.breadcrumb a, .breadcrumb a, .breadcrumbs a, [aria-label="breadcrumb"] a, [aria-label="breadcrumbs"] a`

// breadcrumbs returns breadcrumb link labels without the leading "Home"
// entry or the trailing link to the current page.
func breadcrumbs(d *Document) []string {
	var out []string
	d.Find(breadcrumbSelectors).Each(func(_ int, s *goquery.Selection) {
		label := collapseSpace(s.Text())
		if label == "" || strings.EqualFold(label, "home") {
			return
		}
		if href, ok := s.Attr("href"); ok && d.Resolve(href) == d.Resolve(d.URL) {
			return
		}
		out = append(out, label)
	})
	return out
}

// --- description ---

func descriptionChain() Chain {
	return Chain{
		Field: FieldDescription,
		Strategies: []Strategy{
			{Name: "jsonld_description", Fn: func(d *Document) (string, bool) { return d.ProductValue("description") }},
			{Name: "meta_description", Fn: func(d *Document) (string, bool) { return d.Meta("description") }},
			{Name: "og_description", Fn: func(d *Document) (string, bool) { return d.Meta("og:description") }},
		},
		Validate: func(v string) bool { return len(v) >= 3 },
	}
}

// --- price ---

var currencyTokenRe = regexp.MustCompile(`(?:US\$|A\$|C\$|[£€$])\s?\d[\d.,]*|\d[\d.,]*\s?(?:GBP|EUR|USD)\b`)

func priceChain(band Band) Chain {
	return Chain{
		Field: FieldPrice,
		Strategies: []Strategy{
			{Name: "jsonld_offer", Fn: jsonldOfferPrice},
			{Name: "itemprop", Fn: func(d *Document) (string, bool) {
				if v, ok := d.FirstAttr(`[itemprop="price"]`, "content"); ok {
					return withCurrency(d, v), true
				}
				return d.FirstText(`[itemprop="price"]`)
			}},
			{Name: "meta_price", Fn: func(d *Document) (string, bool) {
				v, ok := d.Meta("product:price:amount")
				if !ok {
					v, ok = d.Meta("og:price:amount")
				}
				if !ok {
					return "", false
				}
				return withCurrency(d, v), true
			}},
			{Name: "price_element", Fn: func(d *Document) (string, bool) {
				return d.FirstText(".product__price .price-item--sale, .product__price, .product-price, .price")
			}},
			{Name: "labeled", Fn: labeled("Price", "Our Price", "RRP", "Sale Price")},
			{Name: "currency_token", Fn: func(d *Document) (string, bool) {
				// first in-band token; the page may list related products
				text := d.Text()
				for _, loc := range currencyTokenRe.FindAllStringIndex(text, -1) {
					if negated(text[:loc[0]]) {
						continue
					}
					tok := text[loc[0]:loc[1]]
					if _, ok := ParseInBand(tok, band); ok {
						return tok, true
					}
				}
				return "", false
			}},
		},
		Validate: func(v string) bool {
			_, ok := ParseInBand(v, band)
			return ok
		},
	}
}

func jsonldOfferPrice(d *Document) (string, bool) {
	for _, p := range d.Products() {
		for _, offer := range offers(p["offers"]) {
			for _, key := range []string{"price", "lowPrice"} {
				v, ok := stringValue(offer[key])
				if !ok {
					continue
				}
				if cur, ok := stringValue(offer["priceCurrency"]); ok {
					v += " " + strings.ToUpper(cur)
				}
				return v, true
			}
		}
	}
	return "", false
}

func offers(v any) []map[string]any {
	switch t := v.(type) {
	case map[string]any:
		if inner, ok := t["offers"]; ok {
			return append([]map[string]any{t}, offers(inner)...)
		}
		return []map[string]any{t}
	case []any:
		var out []map[string]any
		for _, e := range t {
			out = append(out, offers(e)...)
		}
		return out
	}
	return nil
}

func withCurrency(d *Document, amount string) string {
	if cur, ok := d.FirstAttr(`[itemprop="priceCurrency"]`, "content"); ok {
		return amount + " " + strings.ToUpper(cur)
	}
	if cur, ok := d.Meta("product:price:currency"); ok {
		return amount + " " + strings.ToUpper(cur)
	}
	if cur, ok := d.Meta("og:price:currency"); ok {
		return amount + " " + strings.ToUpper(cur)
	}
	return amount
}

// --- image ---

func imageChain() Chain {
	return Chain{
		Field: FieldImage,
		Strategies: []Strategy{
			{Name: "jsonld_image", Fn: func(d *Document) (string, bool) { return resolved(d)(d.ProductValue("image")) }},
			{Name: "og_image", Fn: func(d *Document) (string, bool) { return resolved(d)(d.Meta("og:image")) }},
			{Name: "itemprop_image", Fn: func(d *Document) (string, bool) {
				if v, ok := d.FirstAttr(`[itemprop="image"]`, "src"); ok {
					return d.Resolve(v), true
				}
				return resolved(d)(d.FirstAttr(`[itemprop="image"]`, "content"))
			}},
			{Name: "product_img", Fn: func(d *Document) (string, bool) {
				sel := `.product img, .product__media img, main img`
				if v, ok := d.FirstAttr(sel, "src"); ok {
					return d.Resolve(v), true
				}
				return resolved(d)(d.FirstAttr(sel, "data-src"))
			}},
		},
		Validate: func(v string) bool {
			return strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://")
		},
	}
}

func resolved(d *Document) func(string, bool) (string, bool) {
	return func(v string, ok bool) (string, bool) {
		if !ok {
			return "", false
		}
		v = d.Resolve(v)
		return v, v != ""
	}
}

// --- variant and flags ---

var variantKeywords = []struct {
	re    *regexp.Regexp
	label string
}{
	{regexp.MustCompile(`(?i)\b(glow(s)?[- ]in[- ]the[- ]dark|gitd|glow)\b`), "Glow"},
	{regexp.MustCompile(`(?i)\bflock(ed)?\b`), "Flocked"},
	{regexp.MustCompile(`(?i)\bmetallic\b`), "Metallic"},
	{regexp.MustCompile(`(?i)\bchrome\b`), "Chrome"},
	{regexp.MustCompile(`(?i)\bdiamond\b`), "Diamond"},
	{regexp.MustCompile(`(?i)\btranslucent\b`), "Translucent"},
	{regexp.MustCompile(`(?i)\bblacklight\b`), "Blacklight"},
	{regexp.MustCompile(`(?i)\b(jumbo|super[- ]sized|10")`), "Jumbo"},
}

func variantChain() Chain {
	return Chain{
		Field: FieldVariant,
		Strategies: []Strategy{
			{Name: "labeled", Fn: labeled("Variant", "Finish", "Edition")},
			{Name: "title_keyword", Fn: func(d *Document) (string, bool) {
				title := pageTitle(d)
				for _, kw := range variantKeywords {
					if kw.re.MatchString(title) {
						return kw.label, true
					}
				}
				return "", false
			}},
		},
		Validate: shortText,
	}
}

var badgeSelectors = `.badge, .product-badge, .product__badge, .label, .tag, .sticker`

// flagChain detects a boolean attribute from the title, product badges or a
// labeled "Keyword: Yes" line. A match yields "true"; absence is no-match.
func flagChain(f Field, keyword string) Chain {
	re := regexp.MustCompile(`(?i)\b` + keyword + `\b`)
	return Chain{
		Field: f,
		Strategies: []Strategy{
			{Name: "title_keyword", Fn: func(d *Document) (string, bool) {
				return "true", re.MatchString(pageTitle(d))
			}},
			{Name: "badge", Fn: func(d *Document) (string, bool) {
				found := false
				d.Find(badgeSelectors).EachWithBreak(func(_ int, s *goquery.Selection) bool {
					found = re.MatchString(s.Text())
					return !found
				})
				return "true", found
			}},
			{Name: "labeled", Fn: func(d *Document) (string, bool) {
				v, ok := labeled(keyword)(d)
				if !ok {
					v, ok = labeled("Status")(d)
					return "true", ok && re.MatchString(v)
				}
				return "true", isYes(v)
			}},
			{Name: "jsonld_property", Fn: func(d *Document) (string, bool) {
				v, ok := d.ProductProperty(keyword)
				return "true", ok && isYes(v)
			}},
		},
	}
}

func isYes(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "y", "true", "1":
		return true
	}
	return false
}

// --- labeled text ---

// labeled finds "Label: value" in the visible text, either on one line or
// with the value on the line after a bare "Label:" (definition lists, tables).
func labeled(labels ...string) StrategyFunc {
	return func(d *Document) (string, bool) {
		lines := d.Lines()
		for i, line := range lines {
			for _, label := range labels {
				rest, ok := cutLabel(line, label)
				if !ok {
					continue
				}
				if rest != "" {
					return rest, true
				}
				if i+1 < len(lines) {
					return lines[i+1], true
				}
			}
		}
		return "", false
	}
}

func cutLabel(line, label string) (string, bool) {
	if len(line) < len(label) || !strings.EqualFold(line[:len(label)], label) {
		return "", false
	}
	rest := strings.TrimSpace(line[len(label):])
	if !strings.HasPrefix(rest, ":") {
		return "", false
	}
	return strings.TrimSpace(rest[1:]), true
}
