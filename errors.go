package dabgent

import "fmt"

// ConcurrencyError indicates a commit lost a race against another writer to
// the same aggregate stream. Handler.Execute retries on this error; callers
// outside Handler should usually not see it.
type ConcurrencyError struct {
	AggregateType string
	AggregateID   string
	Expected      int64
	Actual        int64
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency conflict on %s/%s: expected sequence %d, store has %d",
		e.AggregateType, e.AggregateID, e.Expected, e.Actual)
}

// StoreError wraps a failure from the underlying EventStore (connection,
// query, serialization) that is not a concurrency conflict. Fatal: never
// retried automatically.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// ValidationError indicates a command failed a structural or business-rule
// check before any event was proposed. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// TerminalError indicates a command was issued against an aggregate that has
// already reached a terminal status (finished or shutdown).
type TerminalError struct {
	AggregateID string
	Status      string
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("aggregate %s is terminal (status=%s): no further commands accepted", e.AggregateID, e.Status)
}

// ToolArgumentError indicates a tool call's arguments failed to parse or
// validate. It is reported as a ToolResult, not returned from Handle.
type ToolArgumentError struct {
	Tool    string
	Message string
}

func (e *ToolArgumentError) Error() string {
	return fmt.Sprintf("tool %s: invalid arguments: %s", e.Tool, e.Message)
}

// ToolExecutionError indicates a tool ran but failed. Also reported as a
// ToolResult, never surfaced as a Handler failure.
type ToolExecutionError struct {
	Tool    string
	Message string
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s: execution failed: %s", e.Tool, e.Message)
}

// AdapterError wraps a failure from an external adapter (LLM provider,
// sandbox backend). Propagated as-is; Handler never retries it automatically
// — only ConcurrencyError gets that treatment. Adapters wanting their own
// retry policy wrap themselves with WithRetry.
type AdapterError struct {
	Adapter    string
	Status     int // HTTP-style status when applicable, 0 otherwise
	Message    string
	RetryAfter int64 // seconds, 0 if not provided by the adapter
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Adapter, e.Message, e.Status)
}
