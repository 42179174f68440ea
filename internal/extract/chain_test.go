package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, url, html string) *Document {
	t.Helper()
	doc, err := NewDocument(url, html, "")
	require.NoError(t, err)
	return doc
}

func TestChainFirstMatchWins(t *testing.T) {
	var calls []string
	strategy := func(name, value string) Strategy {
		return Strategy{Name: name, Fn: func(*Document) (string, bool) {
			calls = append(calls, name)
			return value, value != ""
		}}
	}

	c := Chain{
		Field:      FieldTitle,
		Strategies: []Strategy{strategy("a", ""), strategy("b", "second"), strategy("c", "third")},
	}

	m, ok := c.Extract(mustDoc(t, "https://example.com", "<p>x</p>"))
	require.True(t, ok)
	assert.Equal(t, "second", m.Value)
	assert.Equal(t, "b", m.Strategy)
	assert.Equal(t, FieldTitle, m.Field)
	assert.Equal(t, []string{"a", "b"}, calls, "later strategies must not run")
}

func TestChainValidatorRejectsAndContinues(t *testing.T) {
	c := Chain{
		Field: FieldPrice,
		Strategies: []Strategy{
			{Name: "too_high", Fn: func(*Document) (string, bool) { return "£499.00", true }},
			{Name: "in_band", Fn: func(*Document) (string, bool) { return "£47.50", true }},
		},
		Validate: func(v string) bool {
			_, ok := ParseInBand(v, DefaultBand)
			return ok
		},
	}

	m, ok := c.Extract(mustDoc(t, "https://example.com", "<p>x</p>"))
	require.True(t, ok)
	assert.Equal(t, "in_band", m.Strategy)
	assert.Equal(t, "£47.50", m.Value)
}

func TestChainNoMatch(t *testing.T) {
	c := Chain{
		Field: FieldImage,
		Strategies: []Strategy{
			{Name: "blank", Fn: func(*Document) (string, bool) { return "   ", true }},
			{Name: "none", Fn: func(*Document) (string, bool) { return "", false }},
		},
	}
	_, ok := c.Extract(mustDoc(t, "https://example.com", "<p>x</p>"))
	assert.False(t, ok)

	_, ok = c.Extract(nil)
	assert.False(t, ok)
}

func TestChainPanickingStrategyIsNoMatch(t *testing.T) {
	c := Chain{
		Field: FieldTitle,
		Strategies: []Strategy{
			{Name: "boom", Fn: func(*Document) (string, bool) { panic("bad markup") }},
			{Name: "ok", Fn: func(*Document) (string, bool) { return "Batman", true }},
		},
	}
	m, ok := c.Extract(mustDoc(t, "https://example.com", "<p>x</p>"))
	require.True(t, ok)
	assert.Equal(t, "ok", m.Strategy)
}

func TestNewDocumentEmpty(t *testing.T) {
	_, err := NewDocument("https://example.com", "  ", "")
	assert.Error(t, err)
}

func TestDocumentLinesAndResolve(t *testing.T) {
	doc := mustDoc(t, "https://shop.example.com/products/batman-123", `
<html><body>
<div>Series: <b>DC Comics</b></div>
<script>var x = "hidden";</script>
<p>Item No.: 123</p>
</body></html>`)

	assert.Equal(t, []string{"Series: DC Comics", "Item No.: 123"}, doc.Lines())
	assert.Equal(t, "https://shop.example.com/img/a.jpg", doc.Resolve("/img/a.jpg"))
	assert.Equal(t, "https://cdn.example.com/a.jpg", doc.Resolve("//cdn.example.com/a.jpg"))
	assert.Equal(t, "/products/batman-123", doc.Path())
}

func TestDocumentMarkdownFallback(t *testing.T) {
	doc, err := NewDocument("https://example.com/p", "", "# Pop! Batman\n\nPrice: £20.00\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"# Pop! Batman", "Price: £20.00"}, doc.Lines())
}
