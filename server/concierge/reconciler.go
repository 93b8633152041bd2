package concierge

import (
	"encoding/json"
	"log/slog"
	"strings"

	apperr "github.com/rasphia/rasphia/server/internal/errors"
	"github.com/rasphia/rasphia/store"
)

// Reconciler validates raw generation output against the candidate set and
// produces a reply that only references real catalog products.
type Reconciler struct{}

// NewReconciler creates a reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Reconcile parses the raw generation text and resolves its product names
// against the candidates. Names are matched exactly and case-sensitively;
// anything the model invented is dropped without failing the turn. A reply
// whose text is empty, or that cannot be parsed at all, is malformed.
func (r *Reconciler) Reconcile(raw string, candidates []*Candidate) (*Reply, error) {
	contract, err := decodeContract(raw)
	if err != nil {
		return nil, apperr.MalformedGeneration("generation output is not valid JSON", err)
	}
	if strings.TrimSpace(contract.Response) == "" {
		return nil, apperr.MalformedGeneration("generation output has no response text", nil)
	}

	byName := make(map[string]*store.Product, len(candidates))
	for _, c := range candidates {
		byName[c.Product.Name] = c.Product
	}

	seen := make(map[string]bool, MaxSuggestions)
	var refs []*ProductRef
	for _, name := range contract.Products {
		if len(refs) >= MaxSuggestions {
			break
		}
		product, ok := byName[name]
		if !ok {
			slog.Warn("dropping unrecognized product from generation output", "name", name)
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		refs = append(refs, &ProductRef{
			UID:      product.UID,
			Name:     product.Name,
			Brand:    product.Brand,
			Category: product.Category,
			Price:    product.Price,
			ImageURL: product.ImageURL,
		})
	}

	var table *ComparisonTable
	if ct := contract.ComparisonTable; ct != nil {
		validated, err := NewComparisonTable(ct.Headers, ct.Rows)
		if err != nil {
			// A broken table never fails the turn; the text and the
			// resolved products still stand on their own.
			slog.Warn("dropping malformed comparison table", "error", err)
		} else {
			table = validated
		}
	}

	return &Reply{
		Text:     contract.Response,
		Products: refs,
		Table:    table,
	}, nil
}

// BuildAssistantMessage converts a reconciled reply into a persistable chat
// message with its structured payload marshaled.
func BuildAssistantMessage(reply *Reply) (*store.ChatMessage, error) {
	payload := &MessagePayload{
		Products:        reply.Products,
		ComparisonTable: reply.Table,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &store.ChatMessage{
		Role:    store.ChatMessageRoleAssistant,
		Content: reply.Text,
		Payload: string(encoded),
	}, nil
}

// decodeContract decodes strictly so contract drift surfaces as an error
// instead of silently ignored fields.
func decodeContract(raw string) (*generationContract, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	var contract generationContract
	if err := dec.Decode(&contract); err != nil {
		return nil, err
	}
	return &contract, nil
}
