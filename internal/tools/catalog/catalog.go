// Package catalog provides the product-lookup tool offered to sales-facing
// personas, together with the backends that serve it.
//
// The tool is exported via [Tool]; backends implement [Backend]. A
// PostgreSQL implementation ([PostgresBackend]) serves production catalogs
// with full-text search, and [MemoryBackend] serves tests and development.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voxdesk/voxdesk/internal/tools"
	"github.com/voxdesk/voxdesk/pkg/types"
)

// maxResults caps how many products a single lookup feeds into the prompt
// context. Spoken replies only ever mention a couple of items.
const maxResults = 5

// Product is one catalog entry.
type Product struct {
	SKU        string
	Name       string
	PriceCents int
	Stock      int
}

// Backend serves product searches.
type Backend interface {
	// Search returns up to limit products matching the free-text query,
	// best match first. An empty result slice, not an error, signals that
	// nothing matched.
	Search(ctx context.Context, query string, limit int) ([]Product, error)
}

// searchArgs is the JSON-decoded input for the "search_catalog" tool.
type searchArgs struct {
	// Query is the caller's product description, as transcribed.
	Query string `json:"query"`
}

// productResult is one entry in the JSON output of the tool. Price is
// pre-formatted into a spoken-word phrase because the reply becomes audio.
type productResult struct {
	Name        string `json:"name"`
	SpokenPrice string `json:"price"`
	InStock     bool   `json:"in_stock"`
}

// searchResult is the JSON-encoded output of the "search_catalog" tool.
type searchResult struct {
	Results []productResult `json:"results"`
	Message string          `json:"message,omitempty"`
}

// Tool returns the "search_catalog" tool backed by b.
func Tool(b Backend) tools.Tool {
	return tools.Tool{
		Definition: types.ToolDefinition{
			Name:        "search_catalog",
			Description: "Search the product catalog by name or description. Returns matching products with spoken-word prices and stock availability.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Product name or description to search for, e.g. \"wireless headphones\"",
					},
				},
				"required": []string{"query"},
			},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			return handleSearch(ctx, b, args)
		},
	}
}

// handleSearch parses the arguments, queries the backend, and encodes the
// result. Malformed arguments produce a structured message rather than an
// error so the model can re-ask the caller.
func handleSearch(ctx context.Context, b Backend, args string) (string, error) {
	var a searchArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil || a.Query == "" {
		return encodeResult(searchResult{
			Message: "the search request was missing a product description; ask the caller what product they are looking for",
		})
	}

	products, err := b.Search(ctx, a.Query, maxResults)
	if err != nil {
		return "", fmt.Errorf("catalog: search %q: %w", a.Query, err)
	}

	if len(products) == 0 {
		return encodeResult(searchResult{
			Results: []productResult{},
			Message: fmt.Sprintf("no products matched %q", a.Query),
		})
	}

	res := searchResult{Results: make([]productResult, len(products))}
	for i, p := range products {
		res.Results[i] = productResult{
			Name:        p.Name,
			SpokenPrice: tools.SpokenUSD(p.PriceCents),
			InStock:     p.Stock > 0,
		}
	}
	return encodeResult(res)
}

func encodeResult(r searchResult) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("catalog: encode result: %w", err)
	}
	return string(b), nil
}
