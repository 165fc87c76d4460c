package dabgent

import (
	"errors"
	"fmt"
	"testing"
)

func TestConcurrencyError_Error(t *testing.T) {
	err := &ConcurrencyError{AggregateType: "coding-agent", AggregateID: "a1", Expected: 2, Actual: 3}
	want := "concurrency conflict on coding-agent/a1: expected sequence 2, store has 3"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestStoreError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &StoreError{Op: "Handler.load", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to find the wrapped inner error")
	}
	want := "store: Handler.load: connection refused"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestValidationError_Error(t *testing.T) {
	withField := &ValidationError{Field: "status", Message: "PutUserMessage requires awaiting-user"}
	if withField.Error() != "status: PutUserMessage requires awaiting-user" {
		t.Errorf("got %q", withField.Error())
	}

	noField := &ValidationError{Message: "unknown command"}
	if noField.Error() != "unknown command" {
		t.Errorf("got %q", noField.Error())
	}
}

func TestTerminalError_Error(t *testing.T) {
	err := &TerminalError{AggregateID: "a1", Status: "finished"}
	want := "aggregate a1 is terminal (status=finished): no further commands accepted"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestToolArgumentError_Error(t *testing.T) {
	err := &ToolArgumentError{Tool: "file_write", Message: "missing path"}
	want := "tool file_write: invalid arguments: missing path"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestToolExecutionError_Error(t *testing.T) {
	err := &ToolExecutionError{Tool: "shell_exec", Message: "command timed out after 30s"}
	want := "tool shell_exec: execution failed: command timed out after 30s"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestAdapterError_Error(t *testing.T) {
	err := &AdapterError{Adapter: "anthropic", Status: 429, Message: "rate limited"}
	want := "anthropic: rate limited (status 429)"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestErrors_AsDiscriminatesTypes(t *testing.T) {
	var err error = &ConcurrencyError{AggregateType: "coding-agent", AggregateID: "a1"}

	var concErr *ConcurrencyError
	if !errors.As(err, &concErr) {
		t.Fatal("expected errors.As to match ConcurrencyError")
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		t.Fatal("did not expect ConcurrencyError to match ValidationError")
	}
}

func TestStoreError_WrapsArbitraryDepth(t *testing.T) {
	root := errors.New("disk full")
	wrapped := fmt.Errorf("write row: %w", root)
	err := &StoreError{Op: "sqlite.Commit", Err: wrapped}

	if !errors.Is(err, root) {
		t.Error("expected errors.Is to see through two levels of wrapping")
	}
}
