package quotes

// Quote is one curated text record with source attribution.
// Immutable once loaded; the store hands out copies of the slice header only.
type Quote struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Category      Category `json:"category,omitempty"`
	SourceBook    string   `json:"source_book,omitempty"`
	SourceSection string   `json:"source_section,omitempty"`
	SourceURL     string   `json:"source_url"`
	Tags          []string `json:"tags,omitempty"`
}

// collection is the on-disk document format: one file per category.
type collection struct {
	Category          string  `json:"category"`
	SourceName        string  `json:"source_name,omitempty"`
	SourceNameEnglish string  `json:"source_name_english,omitempty"`
	Quotes            []Quote `json:"quotes"`
}
