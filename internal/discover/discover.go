// Package discover finds product detail URLs on listing pages.
package discover

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-sync/internal/scrape"
)

// Discoverer fetches listing pages and returns the product URLs they link to.
type Discoverer struct {
	scraper scrape.Scraper
	profile *Profile
	matcher *scrape.PathMatcher
}

// New creates a Discoverer. A nil profile uses DefaultProfile.
func New(scraper scrape.Scraper, profile *Profile, matcher *scrape.PathMatcher) *Discoverer {
	if profile == nil {
		profile = DefaultProfile()
	}
	if matcher == nil {
		matcher = scrape.NewPathMatcher(nil)
	}
	return &Discoverer{scraper: scraper, profile: profile, matcher: matcher}
}

// Discover fetches listingURL once and returns at most limit unique product
// URLs in discovery order. limit <= 0 means no cap.
func (d *Discoverer) Discover(ctx context.Context, listingURL string, limit int) ([]string, error) {
	page, err := d.scraper.Scrape(ctx, listingURL)
	if err != nil {
		return nil, eris.Wrapf(err, "discover: fetch %s", listingURL)
	}

	body := page.HTML
	if body == "" {
		body = page.Markdown
	}
	urls, err := d.profile.Links(body, listingURL, limit)
	if err != nil {
		return nil, err
	}
	urls = d.matcher.Filter(urls)

	zap.L().Info("discover: listing processed",
		zap.String("listing", listingURL),
		zap.Int("urls", len(urls)),
		zap.Int("limit", limit),
	)
	return urls, nil
}

// DiscoverAll runs Discover over several listings and merges the results,
// keeping first-seen order and the overall cap. A failing listing is logged
// and skipped; an error is returned only when every listing failed.
func (d *Discoverer) DiscoverAll(ctx context.Context, listingURLs []string, limit int) ([]string, error) {
	set := newOrderedSet(limit)
	var lastErr error
	failures := 0
	for _, listing := range listingURLs {
		if set.full() {
			break
		}
		urls, err := d.Discover(ctx, listing, limit)
		if err != nil {
			failures++
			lastErr = err
			zap.L().Warn("discover: listing failed", zap.String("listing", listing), zap.Error(err))
			continue
		}
		for _, u := range urls {
			set.add(u)
		}
	}
	if len(listingURLs) > 0 && failures == len(listingURLs) {
		return nil, lastErr
	}
	return set.items, nil
}

// pattern extracts raw link candidates from a listing document.
type pattern struct {
	name string
	find func(p *Profile, doc *goquery.Document, raw string) []string
}

var patterns = []pattern{
	{name: "absolute", find: absoluteLinks},
	{name: "relative", find: relativeLinks},
	{name: "collection", find: collectionLinks},
	{name: "inline_json", find: inlineJSONLinks},
	{name: "markdown", find: markdownLinks},
}

// Links applies every URL-shape pattern in order over body and returns the
// unique normalized product URLs, capped at limit. It is deterministic: the
// same body always yields the same list.
func (p *Profile) Links(body, listingURL string, limit int) ([]string, error) {
	base, err := url.Parse(listingURL)
	if err != nil || base.Host == "" {
		return nil, eris.Errorf("discover: invalid listing url %q", listingURL)
	}
	root := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "discover: parse listing")
	}

	set := newOrderedSet(limit)
	for _, pat := range patterns {
		for _, raw := range pat.find(p, doc, body) {
			if set.full() {
				return set.items, nil
			}
			if u, ok := p.normalize(raw, root); ok {
				set.add(u)
			}
		}
	}
	return set.items, nil
}

func hrefs(doc *goquery.Document) []string {
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if h, ok := s.Attr("href"); ok {
			out = append(out, strings.TrimSpace(h))
		}
	})
	return out
}

func absoluteLinks(p *Profile, doc *goquery.Document, _ string) []string {
	var out []string
	for _, h := range hrefs(doc) {
		if strings.HasPrefix(h, "http://") || strings.HasPrefix(h, "https://") || strings.HasPrefix(h, "//") {
			if strings.Contains(h, p.LinkPrefix) {
				out = append(out, h)
			}
		}
	}
	return out
}

func relativeLinks(p *Profile, doc *goquery.Document, _ string) []string {
	var out []string
	for _, h := range hrefs(doc) {
		if !strings.HasPrefix(h, "/") || strings.HasPrefix(h, "//") || !strings.Contains(h, p.LinkPrefix) {
			continue
		}
		if p.collectionRe != nil && p.collectionRe.MatchString(stripQuery(h)) {
			continue
		}
		out = append(out, h)
	}
	return out
}

func collectionLinks(p *Profile, doc *goquery.Document, _ string) []string {
	if p.collectionRe == nil {
		return nil
	}
	var out []string
	for _, h := range hrefs(doc) {
		if !strings.HasPrefix(h, "/") || strings.HasPrefix(h, "//") {
			continue
		}
		if p.collectionRe.MatchString(stripQuery(h)) {
			out = append(out, h)
		}
	}
	return out
}

var jsonStringRe = regexp.MustCompile(`"([A-Za-z_]+)"\s*:\s*"((?:[^"\\]|\\.)*)"`)

func inlineJSONLinks(p *Profile, doc *goquery.Document, _ string) []string {
	keys := make(map[string]bool, len(p.JSONKeys))
	for _, k := range p.JSONKeys {
		keys[k] = true
	}
	var out []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		for _, m := range jsonStringRe.FindAllStringSubmatch(s.Text(), -1) {
			if !keys[m[1]] {
				continue
			}
			v := strings.ReplaceAll(m[2], `\/`, "/")
			if strings.Contains(v, p.LinkPrefix) {
				out = append(out, v)
			}
		}
	})
	return out
}

var markdownLinkRe = regexp.MustCompile(`\]\(([^)\s]+)\)`)

// markdownLinks covers listings the service returned only as markdown.
func markdownLinks(p *Profile, _ *goquery.Document, raw string) []string {
	var out []string
	for _, m := range markdownLinkRe.FindAllStringSubmatch(raw, -1) {
		if strings.Contains(m[1], p.LinkPrefix) {
			out = append(out, m[1])
		}
	}
	return out
}

// normalize resolves raw against the site root, drops query and fragment,
// lower-cases the host, trims the trailing slash and rewrites
// collection-scoped paths. Links to other hosts are dropped.
func (p *Profile) normalize(raw string, root *url.URL) (string, bool) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	u := root.ResolveReference(ref)
	if !sameSite(u.Host, root.Host) {
		return "", false
	}

	path, ok := p.canonicalPath(strings.TrimRight(u.Path, "/"))
	if !ok {
		return "", false
	}
	out := url.URL{Scheme: root.Scheme, Host: strings.ToLower(root.Host), Path: path}
	return out.String(), true
}

func sameSite(a, b string) bool {
	trim := func(h string) string { return strings.TrimPrefix(strings.ToLower(h), "www.") }
	return trim(a) == trim(b)
}

func stripQuery(h string) string {
	if i := strings.IndexAny(h, "?#"); i >= 0 {
		h = h[:i]
	}
	return strings.TrimRight(h, "/")
}

// orderedSet keeps first-insertion order and stops growing at limit.
type orderedSet struct {
	items []string
	seen  map[string]struct{}
	limit int
}

func newOrderedSet(limit int) *orderedSet {
	return &orderedSet{seen: make(map[string]struct{}), limit: limit}
}

func (s *orderedSet) full() bool { return s.limit > 0 && len(s.items) >= s.limit }

func (s *orderedSet) add(v string) {
	if s.full() {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}
