package dabgent

import (
	"context"
	"encoding/json"
)

// AgentCommand is implemented by every command the Agent aggregate accepts:
// PutUserMessage, PutCompletion, PutToolResults, CheckCompletion, Shutdown.
type AgentCommand interface {
	isAgentCommand()
}

type agentCommandBase struct{}

func (agentCommandBase) isAgentCommand() {}

// PutUserMessage appends a user message to the conversation. Valid only
// while the aggregate is awaiting-user (or brand new).
type PutUserMessage struct {
	agentCommandBase
	Content string
}

// PutCompletion records an LLM response, possibly carrying tool calls.
// Valid only while awaiting-llm.
type PutCompletion struct {
	agentCommandBase
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// PutToolResults records the outcome of previously issued tool calls. Valid
// only while awaiting-tools. Results whose CallID does not match a pending
// call are discarded (the caller should warn, not fail). A CallID re-issued
// before the first was answered has a single pending entry, the later call,
// so the first result for that id pairs with it and any further result for
// the same id is discarded.
type PutToolResults struct {
	agentCommandBase
	Results []ToolCallResult
}

// CheckCompletion asks the inner agent whether the results named by CallIDs
// (all now present in AgentData.CompletedToolResults) finish the task. The
// Completion/Finish handler issues this immediately after a PutToolResults
// that clears every pending call — kept as its own command, rather than
// folded into PutToolResults' own Handle, so that deciding "are we done" is
// itself a command-handling step whose outcome is an ordinary proposed
// event, not a side effect of replaying history in Apply.
type CheckCompletion struct {
	agentCommandBase
	CallIDs []string
}

// Shutdown permanently closes the aggregate to further commands. Valid from
// any non-terminal status.
type Shutdown struct {
	agentCommandBase
	Reason string
}

// InnerAgent is the caller-supplied specialization of an Agent aggregate:
// it decides when a batch of tool results completes the agent's task and
// folds any events it declares on top of the shared conversation state.
type InnerAgent interface {
	// Type names this inner agent for the aggregate_type tag (e.g. "coding-agent").
	Type() string
	// HandleToolResults inspects a just-completed, fully-paired batch of
	// results and optionally proposes a terminal event (e.g.
	// TaskCompletedEvent). ok false means "not done yet, keep going".
	HandleToolResults(data AgentData, paired []PairedToolResult) (terminal AgentEvent, ok bool)
	// Apply folds any inner-agent-declared event (anything besides the five
	// base events) into inner state.
	Apply(event AgentEvent)
}

// PairedToolResult matches a tool call with its result.
type PairedToolResult struct {
	Call   ToolCall
	Result ToolCallResult
}

// AgentData is the Agent aggregate's folded state: the conversation so far,
// plus the bookkeeping needed to pair tool calls with their results.
type AgentData struct {
	Status               Status
	Messages             []Message
	PendingToolCalls     map[string]ToolCall // call id -> call, cleared as results arrive
	CompletedToolResults map[string]PairedToolResult
	Inner                InnerAgent
}

// AgentServices carries whatever an InnerAgent's Handle-time decisions need
// that isn't state — currently nothing is required by the base aggregate
// itself; it exists so callers can thread adapters through without changing
// Handle's signature, mirroring how LLM/Tool Handlers (not Handle) own the
// actual Provider/Sandbox calls.
type AgentServices struct{}

// AgentState is the Agent aggregate: Aggregate[AgentCommand, AgentEvent, AgentServices].
type AgentState struct {
	Data AgentData
}

// NewAgentState constructs a fresh Agent aggregate around inner. Used as the
// Factory passed to NewHandler.
func NewAgentState(inner InnerAgent) *AgentState {
	return &AgentState{Data: AgentData{
		Status:               StatusAwaitingUser,
		PendingToolCalls:     make(map[string]ToolCall),
		CompletedToolResults: make(map[string]PairedToolResult),
		Inner:                inner,
	}}
}

func (s *AgentState) Handle(_ context.Context, cmd AgentCommand, _ AgentServices) ([]AgentEvent, error) {
	if s.Data.Status == StatusFinished || s.Data.Status == StatusShutdown {
		if _, ok := cmd.(Shutdown); !ok {
			return nil, &TerminalError{Status: string(s.Data.Status)}
		}
	}

	switch c := cmd.(type) {
	case PutUserMessage:
		if s.Data.Status != StatusAwaitingUser {
			return nil, &ValidationError{Field: "status", Message: "PutUserMessage requires awaiting-user"}
		}
		return []AgentEvent{UserCompletionEvent{Content: c.Content}}, nil

	case PutCompletion:
		if s.Data.Status != StatusAwaitingLLM {
			return nil, &ValidationError{Field: "status", Message: "PutCompletion requires awaiting-llm"}
		}
		events := []AgentEvent{AgentCompletionEvent{Content: c.Content, Usage: c.Usage}}
		if len(c.ToolCalls) > 0 {
			events = append(events, ToolCallsEvent{Calls: c.ToolCalls})
		}
		return events, nil

	case PutToolResults:
		if s.Data.Status != StatusAwaitingTools {
			return nil, &ValidationError{Field: "status", Message: "PutToolResults requires awaiting-tools"}
		}
		return []AgentEvent{ToolResultsEvent{Results: c.Results}}, nil

	case CheckCompletion:
		var paired []PairedToolResult
		for _, id := range c.CallIDs {
			if p, ok := s.Data.CompletedToolResults[id]; ok {
				paired = append(paired, p)
			}
		}
		if terminal, ok := s.Data.Inner.HandleToolResults(s.Data, paired); ok {
			return []AgentEvent{terminal}, nil
		}
		return nil, nil

	case Shutdown:
		return []AgentEvent{ShutdownEvent{Reason: c.Reason}}, nil
	}
	return nil, &ValidationError{Message: "unknown command"}
}

func (s *AgentState) Apply(event AgentEvent) {
	switch e := event.(type) {
	case UserCompletionEvent:
		s.Data.Messages = append(s.Data.Messages, Message{Role: "user", Content: e.Content})
		s.Data.Status = StatusAwaitingLLM

	case AgentCompletionEvent:
		s.Data.Messages = append(s.Data.Messages, Message{Role: "assistant", Content: e.Content})
		// A following ToolCallsEvent in the same commit moves this on to awaiting-tools.
		s.Data.Status = StatusAwaitingUser

	case ToolCallsEvent:
		for _, call := range e.Calls {
			// Last pairing wins: a re-issued call id replaces the stale one.
			s.Data.PendingToolCalls[call.ID] = call
		}
		s.Data.Status = StatusAwaitingTools

	case ToolResultsEvent:
		for _, r := range e.Results {
			call, ok := s.Data.PendingToolCalls[r.CallID]
			if !ok {
				continue // unknown/stale id: discarded, caller should warn
			}
			delete(s.Data.PendingToolCalls, r.CallID)
			s.Data.CompletedToolResults[r.CallID] = PairedToolResult{Call: call, Result: r}

			content := r.Content
			if r.Error != "" {
				content, _ = json.Marshal(map[string]string{"error": r.Error})
			}
			s.Data.Messages = append(s.Data.Messages, Message{
				Role: "user", ToolCallID: r.CallID, Content: string(content),
			})
		}
		if len(s.Data.PendingToolCalls) == 0 {
			s.Data.Status = StatusAwaitingLLM
		}

	case ShutdownEvent:
		s.Data.Status = StatusShutdown

	case TaskCompletedEvent:
		s.Data.Status = StatusFinished
		s.Data.Inner.Apply(e)

	default:
		s.Data.Inner.Apply(event)
	}
}
