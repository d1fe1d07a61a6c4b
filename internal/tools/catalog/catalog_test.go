package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func testProducts() []Product {
	return []Product{
		{SKU: "HLS-1001", Name: "Cordless drill 18V", PriceCents: 8999, Stock: 24},
		{SKU: "HLS-1002", Name: "Claw hammer 16oz", PriceCents: 1499, Stock: 112},
		{SKU: "HLS-1007", Name: "Paint roller kit", PriceCents: 1899, Stock: 0},
	}
}

func TestMemoryBackend_Search(t *testing.T) {
	b := NewMemory(testProducts())

	t.Run("single token match", func(t *testing.T) {
		got, err := b.Search(context.Background(), "hammer", 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].SKU != "HLS-1002" {
			t.Errorf("got %v, want the hammer", got)
		}
	})

	t.Run("more overlapping tokens rank higher", func(t *testing.T) {
		got, err := b.Search(context.Background(), "cordless drill", 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) == 0 || got[0].SKU != "HLS-1001" {
			t.Errorf("got %v, want the drill first", got)
		}
	})

	t.Run("no match returns empty slice", func(t *testing.T) {
		got, err := b.Search(context.Background(), "chainsaw", 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("got %v, want none", got)
		}
	})

	t.Run("limit applied", func(t *testing.T) {
		got, err := b.Search(context.Background(), "kit hammer drill", 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("got %d products, want 1", len(got))
		}
	})
}

func TestSearchTool(t *testing.T) {
	tool := Tool(NewMemory(testProducts()))
	if tool.Definition.Name != "search_catalog" {
		t.Fatalf("tool name = %q", tool.Definition.Name)
	}

	t.Run("results carry spoken prices", func(t *testing.T) {
		out, err := tool.Handler(context.Background(), `{"query":"drill"}`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var res struct {
			Results []struct {
				Name    string `json:"name"`
				Price   string `json:"price"`
				InStock bool   `json:"in_stock"`
			} `json:"results"`
		}
		if err := json.Unmarshal([]byte(out), &res); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if len(res.Results) != 1 {
			t.Fatalf("got %d results, want 1", len(res.Results))
		}
		if res.Results[0].Price != "eighty-nine dollars and ninety-nine cents" {
			t.Errorf("price = %q, want spoken words", res.Results[0].Price)
		}
		if !res.Results[0].InStock {
			t.Error("drill should be in stock")
		}
	})

	t.Run("out of stock reported", func(t *testing.T) {
		out, err := tool.Handler(context.Background(), `{"query":"paint roller"}`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, `"in_stock":false`) {
			t.Errorf("output %q should flag the roller as out of stock", out)
		}
	})

	t.Run("no matches yields guidance message", func(t *testing.T) {
		out, err := tool.Handler(context.Background(), `{"query":"chainsaw"}`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "no products matched") {
			t.Errorf("output %q should explain the empty result", out)
		}
	})

	t.Run("malformed arguments become guidance not error", func(t *testing.T) {
		out, err := tool.Handler(context.Background(), `not json`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "missing a product description") {
			t.Errorf("output %q should ask for a description", out)
		}
	})
}

// failingBackend simulates a catalog outage.
type failingBackend struct{}

func (failingBackend) Search(ctx context.Context, query string, limit int) ([]Product, error) {
	return nil, errors.New("connection refused")
}

func TestSearchTool_BackendFailure(t *testing.T) {
	tool := Tool(failingBackend{})
	if _, err := tool.Handler(context.Background(), `{"query":"drill"}`); err == nil {
		t.Fatal("backend failure should surface as a handler error")
	}
}
