package model

// ExtractionResult holds the facts pulled from one detail page. It is
// produced per page, consumed once by the reconciler and then discarded.
type ExtractionResult struct {
	Title       string `json:"title"`
	Identifier  string `json:"identifier,omitempty"`
	Series      string `json:"series,omitempty"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	Price       *Money `json:"price,omitempty"`
	PriceRaw    string `json:"price_raw,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	IsExclusive bool   `json:"is_exclusive"`
	IsChase     bool   `json:"is_chase"`
	IsVaulted   bool   `json:"is_vaulted"`
	Variant     string `json:"variant,omitempty"`
	SourceURL   string `json:"source_url"`

	// Strategies records which strategy produced each field, for debugging.
	Strategies map[string]string `json:"strategies,omitempty"`
}

// HasPrice reports whether a validated price was extracted.
func (r *ExtractionResult) HasPrice() bool {
	return r != nil && r.Price != nil
}
