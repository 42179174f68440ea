package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathMatcher_IsExcluded(t *testing.T) {
	t.Parallel()
	m := NewPathMatcher([]string{"/blogs/*", "/pages/*", "/*.pdf"})

	tests := []struct {
		name     string
		url      string
		excluded bool
	}{
		{"blog post", "https://shop.example.com/blogs/news/new-drops", true},
		{"blog root", "https://shop.example.com/blogs", true},
		{"static page", "https://shop.example.com/pages/faq", true},
		{"pdf", "https://shop.example.com/catalogue.pdf", true},
		{"product", "https://shop.example.com/products/batman-123", false},
		{"collection product", "https://shop.example.com/collections/dc/products/batman-123", false},
		{"homepage", "https://shop.example.com/", false},
		{"invalid", "://invalid", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.excluded, m.IsExcluded(tt.url))
		})
	}
}

func TestPathMatcher_Defaults(t *testing.T) {
	m := NewPathMatcher(nil)
	assert.True(t, m.IsExcluded("https://shop.example.com/cart/123"))
	assert.True(t, m.IsExcluded("https://shop.example.com/account/login"))
	assert.True(t, m.IsExcluded("https://shop.example.com/search"))
	assert.False(t, m.IsExcluded("https://shop.example.com/products/x"))
}

func TestPathMatcher_CaseInsensitive(t *testing.T) {
	m := NewPathMatcher([]string{"/Blogs/*"})
	assert.True(t, m.IsExcluded("https://shop.example.com/BLOGS/post"))
	assert.Equal(t, []string{"/blogs/*"}, m.Patterns())
}

func TestPathMatcher_Filter(t *testing.T) {
	m := NewPathMatcher([]string{"/pages/*"})
	got := m.Filter([]string{
		"https://shop.example.com/products/a",
		"https://shop.example.com/pages/about",
		"https://shop.example.com/products/b",
	})
	assert.Equal(t, []string{"https://shop.example.com/products/a", "https://shop.example.com/products/b"}, got)
}
