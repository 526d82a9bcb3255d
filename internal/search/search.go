// Package search indexes suggestions for the read-side listing
// surface. Meilisearch is optional; a Postgres fallback keeps search
// working without it.
package search

// SuggestionRecord is the indexed projection of a suggestion.
type SuggestionRecord struct {
	ID          string  `json:"id"`
	ParagraphID string  `json:"paragraphId"`
	DocumentID  string  `json:"documentId"`
	Text        string  `json:"text"`
	Consensus   float64 `json:"consensus"`
	Status      string  `json:"status"`
	Applied     bool    `json:"applied"`
}

type Query struct {
	Text        string
	ParagraphID string
	Limit       int
}

type Response struct {
	Results []SuggestionRecord `json:"results"`
	Total   int                `json:"total"`
	Query   string             `json:"query"`
}
