package dabgent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Tool is one capability an agent can invoke: a name and JSON-Schema
// parameters the Provider advertises, plus the closure that actually runs
// it against a Sandbox. NeedsReplay marks whether the tool must be
// re-invoked (its side effects reproduced) when a sandbox is reseeded from
// history — true for anything that mutates the sandbox (write_file, exec),
// false for read-only or purely declarative tools (read_file, the "done"
// marker).
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	NeedsReplay bool
	Invoke      func(ctx context.Context, sb Sandbox, args json.RawMessage) (json.RawMessage, error)
}

func (t Tool) Definition() ToolDefinition {
	return ToolDefinition{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
}

// SandboxFactory produces a fresh Sandbox seeded from the configured
// template, for an aggregate activating its tools for the first time.
type SandboxFactory func(ctx context.Context) (Sandbox, error)

// ToolHandler is the EventHandler that reacts to ToolCallsEvent by running
// every called tool against the aggregate's sandbox and issuing
// PutToolResults back. It owns one Sandbox per aggregate id — created
// lazily, replayed from history on first activation, and reused across
// subsequent ToolCallsEvents — mirroring the teacher's TTL-keyed session
// cache, minus the TTL eviction (a long-running agent's sandbox lives as
// long as the aggregate does; callers wanting eviction wrap ToolHandler).
type ToolHandler struct {
	tools       map[string]Tool
	newSandbox  SandboxFactory
	logger      *slog.Logger
	tracer      Tracer

	mu       sync.Mutex
	sandboxes map[string]Sandbox // aggregate id -> its sandbox
}

// NewToolHandler builds a ToolHandler dispatching to tools by name and
// creating sandboxes via newSandbox.
func NewToolHandler(tools []Tool, newSandbox SandboxFactory, opts ...ToolHandlerOption) *ToolHandler {
	m := make(map[string]Tool, len(tools))
	for _, t := range tools {
		m[t.Name] = t
	}
	h := &ToolHandler{
		tools:     m,
		newSandbox: newSandbox,
		logger:    nopLogger,
		sandboxes: make(map[string]Sandbox),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ToolHandlerOption configures a ToolHandler.
type ToolHandlerOption func(*ToolHandler)

// WithToolHandlerLogger attaches a structured logger.
func WithToolHandlerLogger(l *slog.Logger) ToolHandlerOption {
	return func(h *ToolHandler) { h.logger = l }
}

// WithToolHandlerTracer attaches a Tracer.
func WithToolHandlerTracer(t Tracer) ToolHandlerOption {
	return func(h *ToolHandler) { h.tracer = t }
}

// Definitions returns every registered tool's ToolDefinition, for handing to
// a Provider.
func (h *ToolHandler) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(h.tools))
	for _, t := range h.tools {
		defs = append(defs, t.Definition())
	}
	return defs
}

// Process implements EventHandler[*AgentState, ...]: on a ToolCallsEvent it
// ensures the aggregate's sandbox exists and is replayed up to date, runs
// every called tool, and issues PutToolResults.
func (h *ToolHandler) Process(ctx context.Context, handler *Handler[*AgentState, AgentCommand, AgentEvent, AgentServices], env Envelope[AgentEvent]) error {
	calls, ok := env.Data.(ToolCallsEvent)
	if !ok {
		return nil
	}

	ctx, span := h.startSpan(ctx, env.AggregateID)
	defer span.End()

	sb, freshlyCreated, err := h.sandboxFor(ctx, env.AggregateID)
	if err != nil {
		span.Error(err)
		return err
	}
	if freshlyCreated {
		if err := h.replay(ctx, handler, env.StreamID, env.AggregateID, sb, env.Sequence); err != nil {
			span.Error(err)
			return err
		}
	}

	results := h.runCalls(ctx, sb, calls.Calls)
	_, err = handler.Execute(ctx, env.StreamID, env.AggregateID, PutToolResults{Results: results}, env.Metadata.Caused(env.ID))
	if err != nil {
		span.Error(err)
	}
	return err
}

// sandboxFor returns the cached sandbox for aggregateID, creating one via
// newSandbox if this is the first activation. The second return value is
// true exactly when a new sandbox was just created (the caller must then
// replay history into it).
func (h *ToolHandler) sandboxFor(ctx context.Context, aggregateID string) (Sandbox, bool, error) {
	h.mu.Lock()
	if sb, ok := h.sandboxes[aggregateID]; ok {
		h.mu.Unlock()
		return sb, false, nil
	}
	h.mu.Unlock()

	sb, err := h.newSandbox(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("tool handler: create sandbox: %w", err)
	}

	h.mu.Lock()
	if existing, ok := h.sandboxes[aggregateID]; ok {
		// lost a race with a concurrent activation; keep the existing one.
		h.mu.Unlock()
		_ = sb.Close(ctx)
		return existing, false, nil
	}
	h.sandboxes[aggregateID] = sb
	h.mu.Unlock()
	return sb, true, nil
}

// replay re-invokes every NeedsReplay tool call recorded before upToSeq, in
// sequence order, discarding their results, so a freshly created sandbox's
// filesystem matches what the prior sandbox (if any) would show at this
// point in history.
func (h *ToolHandler) replay(ctx context.Context, handler *Handler[*AgentState, AgentCommand, AgentEvent, AgentServices], streamID, aggregateID string, sb Sandbox, upToSeq int64) error {
	envs, err := handler.LoadEventsForReplay(ctx, streamID, aggregateID)
	if err != nil {
		return fmt.Errorf("tool handler: replay: %w", err)
	}
	for _, env := range envs {
		if env.Sequence >= upToSeq {
			break
		}
		calls, ok := env.Data.(ToolCallsEvent)
		if !ok {
			continue
		}
		for _, call := range calls.Calls {
			t, ok := h.tools[call.Name]
			if !ok || !t.NeedsReplay {
				continue
			}
			if _, err := t.Invoke(ctx, sb, call.Args); err != nil {
				h.logger.Warn("tool handler: replay call failed", "tool", call.Name, "error", err)
			}
		}
	}
	return nil
}

// runCalls executes every call against sb and reports one ToolCallResult
// each, in the same order. A missing tool or a tool error becomes a result
// with Error set rather than aborting the batch — the agent sees it on the
// next turn like any other tool failure.
func (h *ToolHandler) runCalls(ctx context.Context, sb Sandbox, calls []ToolCall) []ToolCallResult {
	results := make([]ToolCallResult, len(calls))
	for i, call := range calls {
		t, ok := h.tools[call.Name]
		if !ok {
			results[i] = ToolCallResult{CallID: call.ID, Error: (&ToolArgumentError{Tool: call.Name, Message: "unknown tool"}).Error()}
			continue
		}
		out, err := t.Invoke(ctx, sb, call.Args)
		if err != nil {
			results[i] = ToolCallResult{CallID: call.ID, Error: (&ToolExecutionError{Tool: call.Name, Message: err.Error()}).Error()}
			continue
		}
		results[i] = ToolCallResult{CallID: call.ID, Content: out}
	}
	return results
}

func (h *ToolHandler) startSpan(ctx context.Context, aggregateID string) (context.Context, Span) {
	if h.tracer == nil {
		return ctx, noopSpan{}
	}
	return h.tracer.Start(ctx, "ToolHandler.process", StringAttr("aggregate_id", aggregateID))
}
