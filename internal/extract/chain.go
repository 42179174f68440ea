package extract

import "strings"

// Field names a logical attribute of a product page.
type Field string

// Fields extracted from detail pages.
const (
	FieldTitle       Field = "title"
	FieldIdentifier  Field = "identifier"
	FieldSeries      Field = "series"
	FieldCategory    Field = "category"
	FieldDescription Field = "description"
	FieldPrice       Field = "price"
	FieldImage       Field = "image"
	FieldVariant     Field = "variant"
	FieldExclusive   Field = "exclusive"
	FieldChase       Field = "chase"
	FieldVaulted     Field = "vaulted"
)

// StrategyFunc inspects a document and returns a candidate value.
type StrategyFunc func(doc *Document) (string, bool)

// Strategy is a named, pure extraction function.
type Strategy struct {
	Name string
	Fn   StrategyFunc
}

// Validator accepts or rejects a candidate value. A rejected candidate
// counts as no-match and the chain moves on.
type Validator func(value string) bool

// Chain is an ordered list of strategies for one field. The first strategy
// producing a value that passes Validate wins; later strategies are not
// evaluated.
type Chain struct {
	Field      Field
	Strategies []Strategy
	Validate   Validator
}

// Match is the winning value of a chain and the strategy that produced it.
type Match struct {
	Field    Field
	Value    string
	Strategy string
}

// Extract runs the chain against doc. It never errors: a strategy that
// panics on unexpected markup is treated as no-match.
func (c Chain) Extract(doc *Document) (Match, bool) {
	if doc == nil {
		return Match{}, false
	}
	for _, s := range c.Strategies {
		v, ok := runStrategy(s, doc)
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if c.Validate != nil && !c.Validate(v) {
			continue
		}
		return Match{Field: c.Field, Value: v, Strategy: s.Name}, true
	}
	return Match{}, false
}

func runStrategy(s Strategy, doc *Document) (v string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v, ok = "", false
		}
	}()
	return s.Fn(doc)
}
