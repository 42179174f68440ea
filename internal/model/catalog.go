package model

import (
	"slices"
	"strings"
	"time"
)

// CatalogItem is a unique collectible record keyed by (name, series, number).
type CatalogItem struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Series         string     `json:"series"`
	Number         *string    `json:"number,omitempty"`
	Category       string     `json:"category"`
	Description    string     `json:"description,omitempty"`
	ImageURL       string     `json:"image_url"`
	SourceURL      string     `json:"source_url,omitempty"`
	EstimatedValue *float64   `json:"estimated_value,omitempty"`
	ValueCurrency  string     `json:"value_currency,omitempty"`
	IsExclusive    bool       `json:"is_exclusive"`
	IsChase        bool       `json:"is_chase"`
	IsVaulted      bool       `json:"is_vaulted"`
	Variant        string     `json:"variant,omitempty"`
	DataSources    []string   `json:"data_sources"`
	PriceUpdatedAt *time.Time `json:"price_updated_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Key returns the natural key of the item.
func (c *CatalogItem) Key() NaturalKey {
	return NaturalKey{Name: c.Name, Series: c.Series, Number: c.Number}
}

// NumberValue returns the item number or "" when absent.
func (c *CatalogItem) NumberValue() string {
	if c.Number == nil {
		return ""
	}
	return *c.Number
}

// Label is a short human-readable name used in progress and logs.
func (c *CatalogItem) Label() string {
	if n := c.NumberValue(); n != "" {
		return c.Name + " #" + n
	}
	return c.Name
}

// NaturalKey identifies "the same real-world item". An absent Number is a
// distinct key value, compared as the empty string.
type NaturalKey struct {
	Name   string  `json:"name"`
	Series string  `json:"series"`
	Number *string `json:"number,omitempty"`
}

// NumberValue returns the key number or "" when absent.
func (k NaturalKey) NumberValue() string {
	if k.Number == nil {
		return ""
	}
	return *k.Number
}

// Equal reports whether two keys identify the same item.
func (k NaturalKey) Equal(o NaturalKey) bool {
	return k.Name == o.Name && k.Series == o.Series && k.NumberValue() == o.NumberValue()
}

func (k NaturalKey) String() string {
	return k.Name + "|" + k.Series + "|" + k.NumberValue()
}

// MergeSources returns the sorted set union of two provenance tag lists.
// Blank tags are dropped.
func MergeSources(existing, added []string) []string {
	seen := make(map[string]bool, len(existing)+len(added))
	out := make([]string, 0, len(existing)+len(added))
	for _, list := range [][]string{existing, added} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out
}
