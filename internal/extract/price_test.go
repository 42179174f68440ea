package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw      string
		amount   float64
		currency string
		ok       bool
	}{
		{"£47.50", 47.50, "GBP", true},
		{"£499.00", 499, "GBP", true},
		{"$12", 12, "USD", true},
		{"12,99 €", 12.99, "EUR", true},
		{"£1,299.99", 1299.99, "GBP", true},
		{"1.299,50 EUR", 1299.50, "EUR", true},
		{"1,000", 1000, "", true},
		{"24.5 GBP", 24.5, "GBP", true},
		{"US$ 30.00", 30, "USD", true},
		{"Price: 15", 15, "", true},
		{"Item-574 £20.00", 574, "GBP", true},
		{"-47.50", 0, "", false},
		{"£-47.50", 0, "", false},
		{"−£20.00", 0, "", false},
		{"GBP -12.00", 0, "", false},
		{"free", 0, "", false},
		{"£0.00", 0, "", false},
		{"", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p, ok := ParsePrice(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.InDelta(t, tt.amount, p.Amount, 0.001)
			assert.Equal(t, tt.currency, p.Currency)
		})
	}
}

func TestBandContains(t *testing.T) {
	b := Band{Min: 5, Max: 100}
	assert.True(t, b.Contains(5))
	assert.True(t, b.Contains(100))
	assert.True(t, b.Contains(47.5))
	assert.False(t, b.Contains(4.99))
	assert.False(t, b.Contains(100.01))
	assert.Equal(t, "[5, 100]", b.String())
}

func TestParseInBand(t *testing.T) {
	p, ok := ParseInBand("£47.50", DefaultBand)
	assert.True(t, ok)
	assert.InDelta(t, 47.50, p.Amount, 0.001)

	_, ok = ParseInBand("£499.00", DefaultBand)
	assert.False(t, ok)

	_, ok = ParseInBand("£4.99", DefaultBand)
	assert.False(t, ok)

	_, ok = ParseInBand("n/a", DefaultBand)
	assert.False(t, ok)

	_, ok = ParseInBand("-47.50", DefaultBand)
	assert.False(t, ok)
}

func TestApplyNegativePriceSkipped(t *testing.T) {
	doc := mustDoc(t, "https://shop.example.com/products/x", `<html><body>
<h1>Refund Figure</h1><p>Credit −£20.00 applied</p><p>Now £24.99</p></body></html>`)
	res := NewSet(DefaultBand, "GBP").Apply(doc)

	require.NotNil(t, res.Price)
	assert.InDelta(t, 24.99, res.Price.Amount, 0.001)
}
