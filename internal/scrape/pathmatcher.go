package scrape

import (
	"net/url"
	"path"
	"strings"
)

// defaultExcludePatterns cover storefront pages that never describe a
// single product.
var defaultExcludePatterns = []string{
	"/blogs/*",
	"/pages/*",
	"/cart/*",
	"/account/*",
	"/search",
}

// PathMatcher rejects URLs whose path matches a glob. "/blogs/*" matches
// any depth below /blogs as well as /blogs itself.
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher, falling back to the storefront
// defaults when patterns is empty.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return &PathMatcher{patterns: lowered}
}

// Patterns returns the configured patterns.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// IsExcluded reports whether rawURL matches any pattern. Unparseable URLs
// are excluded.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	p := strings.ToLower(u.Path)
	for _, pattern := range m.patterns {
		if matchSegmented(pattern, p) {
			return true
		}
	}
	return false
}

// Filter returns urls with excluded entries removed, preserving order.
func (m *PathMatcher) Filter(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if !m.IsExcluded(u) {
			out = append(out, u)
		}
	}
	return out
}

func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}
	return false
}
