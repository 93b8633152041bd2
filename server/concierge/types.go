// Package concierge implements the conversational retrieval-augmented
// recommendation engine: retrieval over the product catalog, prompt
// compilation, constrained generation, reconciliation of model output
// against the catalog, and the turn orchestration that ties them together.
package concierge

import (
	"github.com/pkg/errors"

	"github.com/rasphia/rasphia/store"
)

// MaxSuggestions caps how many products one assistant reply may recommend.
const MaxSuggestions = 3

// Candidate is one retrieval hit. It lives only within a single turn.
type Candidate struct {
	Product *store.Product
	// Score is the cosine similarity to the query, in [-1, 1].
	Score float64
	// Rank is the 1-based position after final truncation.
	Rank int
}

// ComparisonTable is a rectangular product comparison. Every row has
// exactly one cell per header; the invariant is checked at construction.
type ComparisonTable struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// NewComparisonTable validates and builds a comparison table.
func NewComparisonTable(headers []string, rows [][]string) (*ComparisonTable, error) {
	if len(headers) == 0 {
		return nil, errors.New("comparison table has no headers")
	}
	for i, row := range rows {
		if len(row) != len(headers) {
			return nil, errors.Errorf("row %d has %d cells, want %d", i, len(row), len(headers))
		}
	}
	return &ComparisonTable{Headers: headers, Rows: rows}, nil
}

// ProductRef is a resolved catalog reference attached to a message.
type ProductRef struct {
	UID      string `json:"uid"`
	Name     string `json:"name"`
	Brand    string `json:"brand,omitempty"`
	Category string `json:"category,omitempty"`
	Price    *int64 `json:"price,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// MessagePayload is the structured part of a chat message, stored as JSON
// alongside the text.
type MessagePayload struct {
	Products        []*ProductRef    `json:"products,omitempty"`
	ComparisonTable *ComparisonTable `json:"comparisonTable,omitempty"`
}

// Reply is a validated assistant reply ready for persistence.
type Reply struct {
	Text     string
	Products []*ProductRef
	Table    *ComparisonTable
}

// generationContract is the schema the generation call must satisfy. It is
// a data contract: decoded strictly and validated, never assumed.
type generationContract struct {
	Response        string           `json:"response"`
	Products        []string         `json:"products"`
	ComparisonTable *comparisonTable `json:"comparisonTable,omitempty"`
}

type comparisonTable struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}
