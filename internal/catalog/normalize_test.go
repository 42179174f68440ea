package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-sync/internal/model"
)

func TestCleanText(t *testing.T) {
	// A combining acute accent composes into the precomposed rune.
	assert.Equal(t, "Pok\u00e9mon Pikachu", CleanText("  Poke\u0301mon \n\t Pikachu "))
	assert.Equal(t, "", CleanText("   "))
}

func TestCleanNumber(t *testing.T) {
	tests := map[string]string{
		"#123":  "123",
		"# 574": "574",
		"123":   "123",
		"sdcc1": "SDCC1",
		"":      "",
		"n/a":   "",
		"12 34": "",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanNumber(in), in)
	}
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "Batman (Glow)", CleanName("Pop! DC Comics: Batman (Glow)", "DC Comics", "123"))
	assert.Equal(t, "Spider-Man Chase", CleanName("Spider-Man #574 Chase", "Marvel", "574"))
	assert.Equal(t, "Star Wars: Darth Vader", CleanName("Star Wars: Darth Vader", "Marvel", ""))
	assert.Equal(t, "Hulk #57", CleanName("Hulk #57", "Marvel", "5"))
}

func TestKeyFor(t *testing.T) {
	key := KeyFor(&model.ExtractionResult{
		Title:      "Pop! DC Comics: Batman (Glow)",
		Identifier: "#123",
		Series:     " DC  Comics ",
	})
	assert.Equal(t, "Batman (Glow)", key.Name)
	assert.Equal(t, "DC Comics", key.Series)
	require.NotNil(t, key.Number)
	assert.Equal(t, "123", *key.Number)

	key = KeyFor(&model.ExtractionResult{Title: "Groot", Category: "Marvel"})
	assert.Equal(t, "Marvel", key.Series)
	assert.Nil(t, key.Number)
}

func TestProvenance(t *testing.T) {
	assert.Equal(t, "shop.example.com", Provenance("https://www.Shop.Example.com/products/a"))
	assert.Equal(t, "toys.example.co.uk", Provenance("http://toys.example.co.uk:8080/p"))
	assert.Equal(t, "", Provenance("not a url"))
	assert.Equal(t, "", Provenance(""))
}
