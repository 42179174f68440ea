// Package extract pulls structured product facts out of rendered detail pages
// using ordered, first-match-wins strategy chains.
package extract

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// Document is a parsed detail page. It is built once per page and shared by
// every strategy, which must treat it as read-only.
type Document struct {
	URL      string
	HTML     string
	Markdown string

	base     *url.URL
	dom      *goquery.Document
	products []map[string]any
	lines    []string
}

// NewDocument parses html (and keeps markdown as a text fallback). Either may
// be empty, but not both.
func NewDocument(pageURL, rawHTML, markdown string) (*Document, error) {
	if strings.TrimSpace(rawHTML) == "" && strings.TrimSpace(markdown) == "" {
		return nil, eris.New("extract: empty document")
	}

	d := &Document{URL: pageURL, HTML: rawHTML, Markdown: markdown}
	if u, err := url.Parse(pageURL); err == nil {
		d.base = u
	}

	dom, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse html")
	}
	d.dom = dom
	d.products = parseJSONLD(dom)

	if body := dom.Find("body"); body.Length() > 0 && strings.TrimSpace(rawHTML) != "" {
		d.lines = visibleLines(body.Nodes)
	}
	if len(d.lines) == 0 && markdown != "" {
		d.lines = splitLines(markdown)
	}
	return d, nil
}

// Lines returns the visible text of the page, one block element per line.
func (d *Document) Lines() []string { return d.lines }

// Text returns the visible text joined by newlines.
func (d *Document) Text() string { return strings.Join(d.lines, "\n") }

// Find runs a CSS selector against the page.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.dom.Find(selector)
}

// FirstText returns the trimmed text of the first non-empty match.
func (d *Document) FirstText(selector string) (string, bool) {
	var out string
	d.dom.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out = collapseSpace(s.Text())
		return out == ""
	})
	return out, out != ""
}

// FirstAttr returns the first non-empty attribute value among matches.
func (d *Document) FirstAttr(selector, attr string) (string, bool) {
	var out string
	d.dom.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr(attr)
		out = strings.TrimSpace(v)
		return out == ""
	})
	return out, out != ""
}

// Meta returns the content of <meta property=name> or <meta name=name>.
func (d *Document) Meta(name string) (string, bool) {
	if v, ok := d.FirstAttr(`meta[property="`+name+`"]`, "content"); ok {
		return v, true
	}
	return d.FirstAttr(`meta[name="`+name+`"]`, "content")
}

// Products returns the JSON-LD Product nodes found on the page.
func (d *Document) Products() []map[string]any { return d.products }

// ProductValue returns the first string-like value of key across the page's
// JSON-LD products. Objects with a "name" or "url" member are unwrapped.
func (d *Document) ProductValue(key string) (string, bool) {
	for _, p := range d.products {
		if v, ok := stringValue(p[key]); ok {
			return v, true
		}
	}
	return "", false
}

// ProductProperty looks up a JSON-LD additionalProperty by (case-insensitive)
// name, e.g. "Series" or "Number".
func (d *Document) ProductProperty(names ...string) (string, bool) {
	for _, p := range d.products {
		props, _ := p["additionalProperty"].([]any)
		for _, raw := range props {
			prop, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			n, _ := prop["name"].(string)
			for _, want := range names {
				if strings.EqualFold(strings.TrimSpace(n), want) {
					if v, ok := stringValue(prop["value"]); ok {
						return v, true
					}
				}
			}
		}
	}
	return "", false
}

// Resolve turns a possibly relative reference into an absolute URL.
func (d *Document) Resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "//") {
		scheme := "https"
		if d.base != nil && d.base.Scheme != "" {
			scheme = d.base.Scheme
		}
		return scheme + ":" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if d.base != nil {
		u = d.base.ResolveReference(u)
	}
	return u.String()
}

// Path returns the path component of the document URL.
func (d *Document) Path() string {
	if d.base == nil {
		return ""
	}
	return d.base.Path
}

func parseJSONLD(dom *goquery.Document) []map[string]any {
	var products []map[string]any
	dom.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			return
		}
		products = append(products, collectProducts(v)...)
	})
	return products
}

func collectProducts(v any) []map[string]any {
	var out []map[string]any
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			out = append(out, collectProducts(e)...)
		}
	case map[string]any:
		if isProductType(t["@type"]) {
			out = append(out, t)
		}
		if g, ok := t["@graph"]; ok {
			out = append(out, collectProducts(g)...)
		}
	}
	return out
}

func isProductType(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.EqualFold(t, "Product") || strings.EqualFold(t, "ProductGroup")
	case []any:
		for _, e := range t {
			if isProductType(e) {
				return true
			}
		}
	}
	return false
}

func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case []any:
		for _, e := range t {
			if s, ok := stringValue(e); ok {
				return s, true
			}
		}
	case map[string]any:
		for _, k := range []string{"name", "url", "@id"} {
			if s, ok := stringValue(t[k]); ok {
				return s, true
			}
		}
	}
	return "", false
}

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "br": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true, "figcaption": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "nav": true, "ol": true, "p": true, "section": true, "table": true,
	"td": true, "th": true, "tr": true, "ul": true,
}

var skipTags = map[string]bool{"script": true, "style": true, "noscript": true, "template": true, "svg": true}

// visibleLines walks the DOM and emits one line per block element.
func visibleLines(nodes []*html.Node) []string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if skipTags[n.Data] {
				return
			}
			if blockTags[n.Data] {
				b.WriteByte('\n')
				defer b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return splitLines(b.String())
}

var spaceRe = regexp.MustCompile(`\s+`)

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = collapseSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
