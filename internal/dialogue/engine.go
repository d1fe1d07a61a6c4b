// Package dialogue turns a caller utterance into an agent reply by driving
// the LLM provider through a bounded tool-call loop.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voxdesk/voxdesk/internal/call"
	"github.com/voxdesk/voxdesk/internal/observe"
	"github.com/voxdesk/voxdesk/internal/tools"
	"github.com/voxdesk/voxdesk/pkg/provider/llm"
	"github.com/voxdesk/voxdesk/pkg/types"
)

var (
	// ErrProvider wraps any LLM provider failure, including timeouts. The
	// caller decides how to keep the call alive.
	ErrProvider = errors.New("dialogue: provider failure")

	// ErrProtocolViolation is returned when the model keeps requesting
	// tools after its results have already been resubmitted once. The turn
	// is abandoned rather than looped.
	ErrProtocolViolation = errors.New("dialogue: model requested tools after resubmission")
)

const (
	defaultTurnTimeout = 12 * time.Second
	defaultMaxTokens   = 256
)

// Engine generates one agent reply per caller utterance. It owns the tool
// loop: at most one round of tool execution and resubmission per turn.
type Engine struct {
	provider llm.Provider
	registry *tools.Registry
	timeout  time.Duration
	metrics  *observe.Metrics
	logger   *slog.Logger
}

// Option configures an [Engine].
type Option func(*Engine)

// WithTurnTimeout bounds each individual provider call. Zero or negative
// keeps the default.
func WithTurnTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMetrics records provider and tool latencies on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine builds an engine on the given provider and tool registry. The
// registry may be nil for a tool-less deployment.
func NewEngine(provider llm.Provider, registry *tools.Registry, opts ...Option) (*Engine, error) {
	if provider == nil {
		return nil, errors.New("dialogue: provider must not be nil")
	}
	e := &Engine{
		provider: provider,
		registry: registry,
		timeout:  defaultTurnTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// GenerateTurn records the caller utterance on the session, asks the model
// for a reply under the active persona, executes any requested tools, and
// resubmits their results exactly once.
//
// The reply is returned raw; the caller post-processes it (hand-off markers
// and the like) and records the final spoken text on the session. Tool
// failures are reported back to the model as error payloads and never fail
// the turn. Provider failures return [ErrProvider]; a second round of tool
// requests returns [ErrProtocolViolation]. On error the session history
// keeps the caller utterance but no partial agent reply.
func (e *Engine) GenerateTurn(ctx context.Context, sess *call.Session, utterance string, p Persona) (string, error) {
	sess.AppendCaller(utterance)

	req := llm.CompletionRequest{
		Messages:     sess.History(),
		SystemPrompt: p.SystemPrompt,
		MaxTokens:    defaultMaxTokens,
	}
	if e.registry != nil && len(p.AllowedTools) > 0 {
		req.Tools = e.registry.Definitions(p.AllowedTools)
	}

	resp, err := e.complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvider, err)
	}

	if len(resp.ToolCalls) > 0 {
		exchange := e.runTools(ctx, resp)
		sess.AppendExchange(exchange...)

		req.Messages = sess.History()
		resp, err = e.complete(ctx, req)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrProvider, err)
		}
		if len(resp.ToolCalls) > 0 {
			return "", ErrProtocolViolation
		}
	}

	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", fmt.Errorf("%w: empty completion", ErrProvider)
	}
	return reply, nil
}

func (e *Engine) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.provider.Complete(cctx, req)
	if e.metrics != nil {
		e.metrics.RecordLLMRequest(ctx, time.Since(start), err == nil)
	}
	return resp, err
}

// runTools executes every requested tool and returns the assistant message
// plus one tool message per call, ready to append to the history.
func (e *Engine) runTools(ctx context.Context, resp *llm.CompletionResponse) []types.Message {
	exchange := make([]types.Message, 0, len(resp.ToolCalls)+1)
	exchange = append(exchange, types.Message{
		Role:      types.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})

	for _, tc := range resp.ToolCalls {
		start := time.Now()
		result, err := e.registry.Execute(ctx, tc.Name, tc.Arguments)
		if err != nil {
			// Only context cancellation reaches here. Report it like any
			// other tool error payload so the resubmission stays coherent.
			result = &tools.Result{
				Content: fmt.Sprintf(`{"error": %q}`, err.Error()),
				IsError: true,
			}
		}
		if e.metrics != nil {
			e.metrics.RecordToolCall(ctx, tc.Name, time.Since(start), !result.IsError)
		}
		if result.IsError {
			e.logger.Warn("tool call failed", "tool", tc.Name, "result", result.Content)
		}
		exchange = append(exchange, types.Message{
			Role:       types.RoleTool,
			Content:    result.Content,
			Name:       tc.Name,
			ToolCallID: tc.ID,
		})
	}
	return exchange
}
