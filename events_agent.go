package dabgent

import (
	"encoding/json"
	"fmt"
)

// Status is the Agent aggregate's lifecycle position.
type Status string

const (
	StatusAwaitingUser  Status = "awaiting-user"
	StatusAwaitingLLM   Status = "awaiting-llm"
	StatusAwaitingTools Status = "awaiting-tools"
	StatusFinished      Status = "finished"
	StatusShutdown      Status = "shutdown"
)

// AgentEvent is implemented by every event the Agent aggregate folds: the
// five base events below plus TaskCompletedEvent (finish.go). Its
// isAgentEvent method is unexported, so only types declared in this package
// satisfy it; AgentState.Apply hands any AgentEvent it does not recognize
// to InnerAgent.Apply.
type AgentEvent interface {
	Event
	isAgentEvent()
}

type agentEventBase struct{}

func (agentEventBase) isAgentEvent() {}

// UserCompletionEvent records a user (or upstream system) message being
// appended to the conversation. Emitted by PutUserMessage.
type UserCompletionEvent struct {
	agentEventBase
	Content string `json:"content"`
}

func (UserCompletionEvent) EventType() string    { return "user_completion" }
func (UserCompletionEvent) EventVersion() string { return "1" }

// AgentCompletionEvent records the LLM's response to the conversation so
// far, possibly including tool calls. Emitted by PutCompletion.
type AgentCompletionEvent struct {
	agentEventBase
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

func (AgentCompletionEvent) EventType() string    { return "agent_completion" }
func (AgentCompletionEvent) EventVersion() string { return "1" }

// ToolCallsEvent records the tool calls the agent asked for in an
// AgentCompletion. Emitted alongside AgentCompletionEvent when ToolCalls is
// non-empty.
type ToolCallsEvent struct {
	agentEventBase
	Calls []ToolCall `json:"calls"`
}

func (ToolCallsEvent) EventType() string    { return "tool_calls" }
func (ToolCallsEvent) EventVersion() string { return "1" }

// ToolResultsEvent records the outcome of one or more pending tool calls.
// Emitted by PutToolResults.
type ToolResultsEvent struct {
	agentEventBase
	Results []ToolCallResult `json:"results"`
}

func (ToolResultsEvent) EventType() string    { return "tool_results" }
func (ToolResultsEvent) EventVersion() string { return "1" }

// ToolCallResult pairs a tool call id with its outcome. Error is set instead
// of Content when the tool failed (ToolArgumentError/ToolExecutionError),
// never both.
type ToolCallResult struct {
	CallID  string          `json:"call_id"`
	Content json.RawMessage `json:"content,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ShutdownEvent marks the aggregate as permanently closed to further
// commands. Emitted by Shutdown.
type ShutdownEvent struct {
	agentEventBase
	Reason string `json:"reason,omitempty"`
}

func (ShutdownEvent) EventType() string    { return "shutdown" }
func (ShutdownEvent) EventVersion() string { return "1" }

// DecodeAgentEvent reconstructs a concrete AgentEvent from its stored
// event_type tag and JSON payload. Store backends are generic over Event
// and cannot know how to unmarshal into an interface themselves, so they
// take a decoder like this one at construction time.
func DecodeAgentEvent(eventType string, data []byte) (AgentEvent, error) {
	var (
		ev  AgentEvent
		err error
	)
	switch eventType {
	case "user_completion":
		var e UserCompletionEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case "agent_completion":
		var e AgentCompletionEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case "tool_calls":
		var e ToolCallsEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case "tool_results":
		var e ToolResultsEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case "shutdown":
		var e ShutdownEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case "task_completed":
		var e TaskCompletedEvent
		err = json.Unmarshal(data, &e)
		ev = e
	default:
		return nil, fmt.Errorf("unknown agent event type %q", eventType)
	}
	return ev, err
}
