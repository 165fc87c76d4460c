package dabgent

import (
	"context"
	"log/slog"
)

// LLMHandler is the EventHandler that reacts to a UserCompletionEvent or a
// ToolResultsEvent by calling Provider with the conversation so far and
// issuing PutCompletion back. It acts only while the aggregate is
// awaiting-llm; a completion without tool calls returns the aggregate to
// awaiting-user, so it does not start another turn by itself.
type LLMHandler struct {
	provider Provider
	model    string
	logger   *slog.Logger
	tracer   Tracer
	tools    []ToolDefinition
}

// NewLLMHandler builds an LLMHandler that completes against provider using
// model, advertising tools to it on every request.
func NewLLMHandler(provider Provider, model string, tools []ToolDefinition, opts ...LLMHandlerOption) *LLMHandler {
	h := &LLMHandler{provider: provider, model: model, tools: tools, logger: nopLogger}
	for _, o := range opts {
		o(h)
	}
	return h
}

// LLMHandlerOption configures an LLMHandler.
type LLMHandlerOption func(*LLMHandler)

// WithLLMHandlerLogger attaches a structured logger.
func WithLLMHandlerLogger(l *slog.Logger) LLMHandlerOption {
	return func(h *LLMHandler) { h.logger = l }
}

// WithLLMHandlerTracer attaches a Tracer.
func WithLLMHandlerTracer(t Tracer) LLMHandlerOption {
	return func(h *LLMHandler) { h.tracer = t }
}

func (h *LLMHandler) Process(ctx context.Context, handler *Handler[*AgentState, AgentCommand, AgentEvent, AgentServices], env Envelope[AgentEvent]) error {
	var messages []Message
	switch env.Data.(type) {
	case UserCompletionEvent, ToolResultsEvent:
		// fall through to the shared completion path below
	default:
		return nil
	}

	agg, _, err := handler.LoadAndFold(ctx, env.StreamID, env.AggregateID)
	if err != nil {
		return err
	}
	if agg.Data.Status != StatusAwaitingLLM {
		return nil
	}
	messages = agg.Data.Messages

	ctx, span := h.startSpan(ctx, env.AggregateID)
	defer span.End()

	resp, err := h.provider.Completion(ctx, CompletionRequest{Messages: messages, Tools: h.tools, Model: h.model})
	if err != nil {
		span.Error(err)
		h.logger.Error("llm handler: completion failed", "error", err, "aggregate_id", env.AggregateID)
		return err
	}

	_, err = handler.Execute(ctx, env.StreamID, env.AggregateID,
		PutCompletion{Content: resp.Content, ToolCalls: resp.ToolCalls, Usage: resp.Usage},
		env.Metadata.Caused(env.ID))
	if err != nil {
		span.Error(err)
	}
	return err
}

func (h *LLMHandler) startSpan(ctx context.Context, aggregateID string) (context.Context, Span) {
	if h.tracer == nil {
		return ctx, noopSpan{}
	}
	return h.tracer.Start(ctx, "LLMHandler.process", StringAttr("aggregate_id", aggregateID))
}
