// Package tools defines the registry of data-lookup tools offered to the
// LLM during a dialogue turn.
//
// Each tool pairs a [types.ToolDefinition] (the JSON-Schema contract shown
// to the model) with a handler that takes JSON-encoded arguments and returns
// a JSON-encoded result. Handlers report application-level problems —
// malformed arguments, lookups that find nothing, backend outages — inside
// the result rather than as Go errors, so the model can recover
// conversationally instead of failing the turn.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxdesk/voxdesk/pkg/types"
)

// Tool pairs a definition with its handler.
type Tool struct {
	// Definition is the contract offered to the LLM.
	Definition types.ToolDefinition

	// Handler executes the tool. args is a JSON object string conforming to
	// Definition.Parameters. The returned string is JSON ready for insertion
	// into the conversation as a tool-role message.
	Handler func(ctx context.Context, args string) (string, error)
}

// Result holds the outcome of one tool execution.
type Result struct {
	// Content is the tool's JSON output, ready for the LLM context window.
	// Always populated, even when IsError is true.
	Content string

	// IsError indicates an application-level failure. The turn continues;
	// Content carries a structured explanation the model can voice.
	IsError bool

	// Duration is the wall-clock execution time.
	Duration time.Duration
}

// Registry holds the tools available to dialogue personas. It is read-only
// after construction and safe for concurrent use.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates a registry containing the given tools. Duplicate tool
// names return an error.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		name := t.Definition.Name
		if name == "" {
			return nil, fmt.Errorf("tools: tool with empty name")
		}
		if _, ok := r.tools[name]; ok {
			return nil, fmt.Errorf("tools: duplicate tool %q", name)
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r, nil
}

// Definitions returns the definitions for the named tools, preserving
// registration order. Unknown names are skipped; an empty names slice
// returns no definitions (a persona with no tools gets none).
func (r *Registry) Definitions(names []string) []types.ToolDefinition {
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	var defs []types.ToolDefinition
	for _, name := range r.order {
		if allowed[name] {
			defs = append(defs, r.tools[name].Definition)
		}
	}
	return defs
}

// Execute runs the named tool. Handler errors and unknown tool names become
// application-level results (IsError=true) so the conversation can continue;
// the only Go error returned is context cancellation.
func (r *Registry) Execute(ctx context.Context, name, args string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()

	t, ok := r.tools[name]
	if !ok {
		slog.Warn("tool call for unknown tool", "tool", name)
		return &Result{
			Content:  errorContent(fmt.Sprintf("tool %q is not available", name)),
			IsError:  true,
			Duration: time.Since(start),
		}, nil
	}

	content, err := t.Handler(ctx, args)
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("tool execution failed", "tool", name, "err", err)
		return &Result{
			Content:  errorContent("the lookup service is not available right now"),
			IsError:  true,
			Duration: elapsed,
		}, nil
	}

	return &Result{Content: content, Duration: elapsed}, nil
}

// errorContent wraps a human-readable explanation in the JSON shape handlers
// use for application-level failures.
func errorContent(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}
