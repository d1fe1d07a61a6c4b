package catalog

import (
	"context"
	"sort"
	"strings"
)

// MemoryBackend is an in-memory [Backend] for development and tests.
// It is read-only after construction and safe for concurrent use.
type MemoryBackend struct {
	products []Product
	text     []string // lowercased name per product, parallel to products
}

var _ Backend = (*MemoryBackend)(nil)

// DemoProducts returns a small hardware catalog for running without a
// database. The entries cover the phrases the default personas mention.
func DemoProducts() []Product {
	return []Product{
		{SKU: "HLS-1001", Name: "Cordless drill 18V", PriceCents: 8999, Stock: 24},
		{SKU: "HLS-1002", Name: "Claw hammer 16oz", PriceCents: 1499, Stock: 112},
		{SKU: "HLS-1003", Name: "Adjustable wrench set", PriceCents: 2799, Stock: 43},
		{SKU: "HLS-1004", Name: "Galvanised wood screws box of 200", PriceCents: 899, Stock: 310},
		{SKU: "HLS-1005", Name: "Circular saw 7 inch", PriceCents: 12499, Stock: 8},
		{SKU: "HLS-1006", Name: "LED work light rechargeable", PriceCents: 3499, Stock: 57},
		{SKU: "HLS-1007", Name: "Paint roller kit", PriceCents: 1899, Stock: 0},
		{SKU: "HLS-1008", Name: "Extension ladder 12ft", PriceCents: 18999, Stock: 5},
	}
}

// NewMemory creates a backend serving the given products.
func NewMemory(products []Product) *MemoryBackend {
	text := make([]string, len(products))
	for i, p := range products {
		text[i] = strings.ToLower(p.Name)
	}
	return &MemoryBackend{products: products, text: text}
}

// Search implements [Backend] with token-overlap scoring: a product matches
// when any query token appears in its name, ranked by how many do.
func (m *MemoryBackend) Search(ctx context.Context, query string, limit int) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := strings.Fields(strings.ToLower(query))

	type scored struct {
		p     Product
		score int
	}
	var matches []scored
	for i, name := range m.text {
		score := 0
		for _, tok := range tokens {
			if strings.Contains(name, tok) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{p: m.products[i], score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]Product, len(matches))
	for i, s := range matches {
		out[i] = s.p
	}
	return out, nil
}
