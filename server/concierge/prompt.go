package concierge

import (
	"fmt"
	"strings"

	"github.com/rasphia/rasphia/store"
)

// conciergePersona is the fixed behavioral policy for the generation call.
const conciergePersona = `You are Rasphia, an elegant AI shopping concierge for all categories:
skincare, haircare, perfumes, grooming, beauty, wellness, gifts, home decor, stationery, jewelry, accessories, gadgets, and lifestyle items.

Your persona:
- Warm, premium, thoughtful, boutique-like.
- Friendly and concise.

Core rules:
1. ALWAYS suggest up to 3 products from the provided catalog list.
2. ALWAYS include the product names in the "products" array, copied verbatim from the catalog list.
3. ALWAYS end your message with a friendly clarifying question.
4. NEVER invent product names; "products" MUST contain exact names from the catalog list.
5. If the user asks for a comparison, fill "comparisonTable".

Formatting:
- Respond ONLY in JSON matching this schema:
  {"response": string (2-5 sentences, ends with a question), "products": [string, up to 3 exact catalog names], "comparisonTable": {"headers": [string], "rows": [[string]]} (optional)}`

// defaultCategory labels candidates whose catalog record has no category.
const defaultCategory = "General"

// unknownPrice is the sentinel for candidates without a price, so the
// generation step never receives a silently missing field.
const unknownPrice = "N/A"

// GenerationRequest is a compiled, ready-to-send generation call.
type GenerationRequest struct {
	System string
	Prompt string
}

// PromptCompiler assembles the conversation window, the candidate list and
// the output contract into one generation request. It is pure and
// deterministic: identical inputs always compile to an identical request.
type PromptCompiler struct{}

// NewPromptCompiler creates a prompt compiler.
func NewPromptCompiler() *PromptCompiler {
	return &PromptCompiler{}
}

// Compile builds the generation request. The window is rendered in order
// with author attribution preserved; no truncation happens here.
func (c *PromptCompiler) Compile(window []*store.ChatMessage, candidates []*Candidate) *GenerationRequest {
	var sb strings.Builder

	sb.WriteString("Catalog matches:\n")
	for _, cand := range candidates {
		sb.WriteString(formatCandidate(cand))
		sb.WriteString("\n")
	}

	sb.WriteString("\nConversation so far:\n")
	for _, m := range window {
		author := "User"
		if m.Role == store.ChatMessageRoleAssistant {
			author = "Rasphia"
		}
		sb.WriteString(author)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}

	sb.WriteString("\nRespond strictly in JSON using the schema.")

	return &GenerationRequest{
		System: conciergePersona,
		Prompt: sb.String(),
	}
}

// formatCandidate renders one candidate line for the prompt. Missing
// category and price get explicit sentinels.
func formatCandidate(c *Candidate) string {
	category := c.Product.Category
	if category == "" {
		category = defaultCategory
	}
	price := unknownPrice
	if c.Product.Price != nil {
		price = formatPrice(*c.Product.Price)
	}
	return fmt.Sprintf("%d. %s — %s (Category: %s, ₹%s)",
		c.Rank, c.Product.Name, c.Product.Description, category, price)
}

// formatPrice renders minor currency units as rupees, trimming a zero
// paise fraction.
func formatPrice(minor int64) string {
	if minor%100 == 0 {
		return fmt.Sprintf("%d", minor/100)
	}
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}
