package dabgent

import (
	"context"
	"encoding/json"
)

// TaskCompletedEvent is the terminal event an InnerAgent proposes from
// HandleToolResults when a batch of tool results satisfies its task (e.g. a
// "done" tool was called). AgentState.Apply moves the aggregate to finished
// on this event only; any other event it does not recognize is handed to
// InnerAgent.Apply without a status change. This one lives in the base
// package because CodingAgent, the reference InnerAgent, uses it.
type TaskCompletedEvent struct {
	agentEventBase
	Success bool            `json:"success"`
	Summary string          `json:"summary"`
	Detail  json.RawMessage `json:"detail,omitempty"`
}

func (TaskCompletedEvent) EventType() string    { return "task_completed" }
func (TaskCompletedEvent) EventVersion() string { return "1" }

// FinishHandler watches ToolResultsEvent envelopes and, whenever a batch of
// results empties PendingToolCalls, issues CheckCompletion against the same
// aggregate so InnerAgent.HandleToolResults runs as an ordinary Handle call
// rather than inside Apply's fold.
type FinishHandler struct{}

func (FinishHandler) Process(ctx context.Context, handler *Handler[*AgentState, AgentCommand, AgentEvent, AgentServices], env Envelope[AgentEvent]) error {
	results, ok := env.Data.(ToolResultsEvent)
	if !ok {
		return nil
	}
	agg, _, err := handler.LoadAndFold(ctx, env.StreamID, env.AggregateID)
	if err != nil {
		return err
	}
	if len(agg.Data.PendingToolCalls) > 0 {
		return nil
	}
	ids := make([]string, 0, len(results.Results))
	for _, r := range results.Results {
		ids = append(ids, r.CallID)
	}
	_, err = handler.Execute(ctx, env.StreamID, env.AggregateID, CheckCompletion{CallIDs: ids}, env.Metadata.Caused(env.ID))
	return err
}

// ShutdownHandler watches for ShutdownEvent and closes Done once observed,
// so callers can select on it instead of polling aggregate status.
type ShutdownHandler struct {
	Done chan struct{}
	once bool
}

// NewShutdownHandler returns a ShutdownHandler with its Done channel ready
// to select on.
func NewShutdownHandler() *ShutdownHandler {
	return &ShutdownHandler{Done: make(chan struct{})}
}

func (h *ShutdownHandler) Process(_ context.Context, _ *Handler[*AgentState, AgentCommand, AgentEvent, AgentServices], env Envelope[AgentEvent]) error {
	if _, ok := env.Data.(ShutdownEvent); !ok {
		return nil
	}
	if !h.once {
		h.once = true
		close(h.Done)
	}
	return nil
}
