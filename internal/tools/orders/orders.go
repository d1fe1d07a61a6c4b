// Package orders provides the order-tracking tool offered to the shipping
// persona, backed by the fulfilment service's HTTP API.
//
// An order that cannot be found is a conversational outcome, not a system
// failure: the tool reports it inside the result so the model can ask the
// caller to double-check the order number.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voxdesk/voxdesk/internal/tools"
	"github.com/voxdesk/voxdesk/pkg/types"
)

// ErrNotFound is returned by [Client.Track] when no order exists for the ID.
var ErrNotFound = errors.New("orders: order not found")

// Order is the fulfilment service's view of one order.
type Order struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	Items       []string `json:"items"`
	TrackingRef string   `json:"tracking_ref"`
	TotalCents  int      `json:"total_cents"`
}

// Client looks up orders in the fulfilment backend.
type Client interface {
	// Track returns the order for id, or [ErrNotFound].
	Track(ctx context.Context, id string) (*Order, error)
}

// HTTPClient is a [Client] backed by the fulfilment service's REST API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the fulfilment API at baseURL
// (e.g. "https://fulfilment.internal"). timeout bounds each request; zero
// selects 5 seconds.
func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, errors.New("orders: baseURL must not be empty")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// Track implements [Client] via GET /v1/orders/{id}.
func (c *HTTPClient) Track(ctx context.Context, id string) (*Order, error) {
	endpoint := c.baseURL + "/v1/orders/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("orders: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("orders: fetch %q: %w", id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var o Order
		if err := json.NewDecoder(resp.Body).Decode(&o); err != nil {
			return nil, fmt.Errorf("orders: decode %q: %w", id, err)
		}
		return &o, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("orders: fetch %q: unexpected status %d", id, resp.StatusCode)
	}
}

// trackArgs is the JSON-decoded input for the "track_order" tool.
type trackArgs struct {
	// OrderID is the order number, as spoken and transcribed.
	OrderID string `json:"order_id"`
}

// trackResult is the JSON-encoded output of the "track_order" tool. The
// order total is pre-formatted into a spoken-word phrase.
type trackResult struct {
	Found       bool     `json:"found"`
	Status      string   `json:"status,omitempty"`
	Items       []string `json:"items,omitempty"`
	TrackingRef string   `json:"tracking_ref,omitempty"`
	SpokenTotal string   `json:"total,omitempty"`
	Message     string   `json:"message,omitempty"`
}

// Tool returns the "track_order" tool backed by c.
func Tool(c Client) tools.Tool {
	return tools.Tool{
		Definition: types.ToolDefinition{
			Name:        "track_order",
			Description: "Look up the status of an order by its order number. Returns shipping status, items, and tracking reference.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"order_id": map[string]any{
						"type":        "string",
						"description": "The order number, digits only, e.g. \"28630\"",
					},
				},
				"required": []string{"order_id"},
			},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			return handleTrack(ctx, c, args)
		},
	}
}

// handleTrack parses the arguments and queries the fulfilment client.
// Missing or unknown order numbers become structured results the model can
// voice; only backend failures surface as errors.
func handleTrack(ctx context.Context, c Client, args string) (string, error) {
	var a trackArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil || a.OrderID == "" {
		return encodeTrack(trackResult{
			Found:   false,
			Message: "no order number was provided; ask the caller for their order number",
		})
	}

	o, err := c.Track(ctx, strings.TrimSpace(a.OrderID))
	if errors.Is(err, ErrNotFound) {
		return encodeTrack(trackResult{
			Found:   false,
			Message: fmt.Sprintf("no order found with number %s; ask the caller to double-check it", a.OrderID),
		})
	}
	if err != nil {
		return "", err
	}

	return encodeTrack(trackResult{
		Found:       true,
		Status:      o.Status,
		Items:       o.Items,
		TrackingRef: o.TrackingRef,
		SpokenTotal: tools.SpokenUSD(o.TotalCents),
	})
}

func encodeTrack(r trackResult) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("orders: encode result: %w", err)
	}
	return string(b), nil
}
