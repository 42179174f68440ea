package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonldPage = `<!doctype html>
<html><head>
<title>Pop! Batman (Glow) | Figure Shop</title>
<meta property="og:title" content="Pop! DC Comics: Batman (Glow)">
<meta property="og:image" content="https://cdn.example.com/og.jpg">
<meta name="description" content="Glow in the dark Batman.">
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
  {"@type":"BreadcrumbList"},
  {"@type":"Product","name":"Pop! DC Comics: Batman (Glow)","sku":"889698-55555",
   "image":["//cdn.example.com/batman.jpg"],
   "category":"Vinyl Figures",
   "additionalProperty":[{"@type":"PropertyValue","name":"Number","value":"123"},
                         {"@type":"PropertyValue","name":"Series","value":"DC Comics"}],
   "offers":{"@type":"Offer","price":"47.50","priceCurrency":"GBP"}}
]}
</script>
</head><body>
<main><h1>Pop! DC Comics: Batman (Glow)</h1>
<span class="badge">Exclusive</span>
<div class="price">£47.50</div>
</main></body></html>`

func TestApplyJSONLD(t *testing.T) {
	doc := mustDoc(t, "https://shop.example.com/products/batman-123", jsonldPage)
	res := NewSet(DefaultBand, "gbp").Apply(doc)

	assert.Equal(t, "Pop! DC Comics: Batman (Glow)", res.Title)
	assert.Equal(t, "123", res.Identifier)
	assert.Equal(t, "DC Comics", res.Series)
	assert.Equal(t, "Vinyl Figures", res.Category)
	assert.Equal(t, "Glow in the dark Batman.", res.Description)
	assert.Equal(t, "https://cdn.example.com/batman.jpg", res.ImageURL)
	assert.Equal(t, "Glow", res.Variant)
	require.NotNil(t, res.Price)
	assert.InDelta(t, 47.50, res.Price.Amount, 0.001)
	assert.Equal(t, "GBP", res.Price.Currency)
	assert.True(t, res.IsExclusive)
	assert.False(t, res.IsChase)
	assert.False(t, res.IsVaulted)
	assert.Equal(t, "https://shop.example.com/products/batman-123", res.SourceURL)

	assert.Equal(t, "jsonld_name", res.Strategies["title"])
	assert.Equal(t, "jsonld_property", res.Strategies["identifier"])
	assert.Equal(t, "jsonld_offer", res.Strategies["price"])
}

const labeledPage = `<html><head><title>Spider-Man #574 Chase - Toy Store</title></head>
<body>
<nav class="breadcrumb"><a href="/">Home</a><a href="/collections/pop">Pop! Vinyl</a><a href="/collections/marvel">Marvel</a></nav>
<div class="product">
  <img data-src="/images/spiderman.png">
  <dl><dt>Item No.:</dt><dd>574</dd><dt>Status:</dt><dd>Vaulted</dd></dl>
  <p>Price: £249.99</p>
  <p>Was £29.99 now only £24.99</p>
</div>
</body></html>`

func TestApplyLabeledFallbacks(t *testing.T) {
	doc := mustDoc(t, "https://toys.example.com/products/spider-man-574", labeledPage)
	res := NewSet(DefaultBand, "GBP").Apply(doc)

	assert.Equal(t, "Spider-Man #574 Chase", res.Title)
	assert.Equal(t, "title_tag", res.Strategies["title"])
	assert.Equal(t, "574", res.Identifier)
	assert.Equal(t, "labeled", res.Strategies["identifier"])
	assert.Equal(t, "Marvel", res.Series)
	assert.Equal(t, "Pop! Vinyl", res.Category)
	assert.Equal(t, "https://toys.example.com/images/spiderman.png", res.ImageURL)
	assert.True(t, res.IsChase)
	assert.True(t, res.IsVaulted)
	assert.False(t, res.IsExclusive)

	// "Price: £249.99" is out of band, so the chain falls through to the
	// first in-band currency token.
	require.NotNil(t, res.Price)
	assert.InDelta(t, 29.99, res.Price.Amount, 0.001)
	assert.Equal(t, "currency_token", res.Strategies["price"])
}

func TestApplyNoPriceInBand(t *testing.T) {
	doc := mustDoc(t, "https://shop.example.com/products/grail", `<html><body>
<h1>Golden Grail</h1><div class="price">£499.00</div></body></html>`)
	res := NewSet(DefaultBand, "GBP").Apply(doc)

	assert.Equal(t, "Golden Grail", res.Title)
	assert.Nil(t, res.Price)
	assert.False(t, res.HasPrice())
	_, ok := res.Strategies["price"]
	assert.False(t, ok)
}

func TestApplyDefaultCurrency(t *testing.T) {
	doc := mustDoc(t, "https://shop.example.com/products/x", `<html><body>
<h1>Plain Figure</h1><p>Price: 19.99</p></body></html>`)
	res := NewSet(Band{Min: 1, Max: 50}, "usd").Apply(doc)

	require.NotNil(t, res.Price)
	assert.Equal(t, "USD", res.Price.Currency)
	assert.Equal(t, "19.99", res.PriceRaw)
	assert.Equal(t, "labeled", res.Strategies["price"])
}

func TestExtractUnknownField(t *testing.T) {
	doc := mustDoc(t, "https://shop.example.com/p", `<h1>x</h1>`)
	_, ok := NewSet(DefaultBand, "GBP").Extract(Field("weight"), doc)
	assert.False(t, ok)
}

func TestIdentifierFromURL(t *testing.T) {
	doc := mustDoc(t, "https://shop.example.com/products/batman-123/", `<h1>Batman</h1>`)
	v, ok := NewSet(DefaultBand, "GBP").Extract(FieldIdentifier, doc)
	require.True(t, ok)
	assert.Equal(t, "123", v)
}

func TestSeriesFromTitlePrefix(t *testing.T) {
	doc := mustDoc(t, "https://shop.example.com/products/x", `<h1>Funko Pop! Star Wars: Darth Vader</h1>`)
	v, ok := NewSet(DefaultBand, "GBP").Extract(FieldSeries, doc)
	require.True(t, ok)
	assert.Equal(t, "Star Wars", v)
}

func TestLabeledValueOnSameLine(t *testing.T) {
	doc := mustDoc(t, "https://shop.example.com/p", `<p>Series: Marvel</p><p>Category:</p><p>Pop! Rides</p>`)
	v, ok := labeled("Series")(doc)
	require.True(t, ok)
	assert.Equal(t, "Marvel", v)

	v, ok = labeled("Category")(doc)
	require.True(t, ok)
	assert.Equal(t, "Pop! Rides", v)

	_, ok = labeled("Numbers")(doc)
	assert.False(t, ok)
}
