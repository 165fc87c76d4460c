package dabgent

import (
	"context"
	"testing"
	"time"
)

// stubProvider returns pre-configured results in order.
type stubProvider struct {
	calls   int
	results []stubResult
}

type stubResult struct {
	resp CompletionResponse
	err  error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Completion(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
	i := s.calls
	s.calls++
	if i < len(s.results) {
		return s.results[i].resp, s.results[i].err
	}
	return CompletionResponse{}, nil
}

var _ Provider = (*stubProvider)(nil)

func TestWithRetry_SucceedsFirstAttempt(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{resp: CompletionResponse{Content: "hello"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	resp, err := p.Completion(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("got %q, want %q", resp.Content, "hello")
	}
	if stub.calls != 1 {
		t.Errorf("got %d calls, want 1", stub.calls)
	}
}

func TestWithRetry_RetriesOn503(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &AdapterError{Status: 503, Message: "unavailable"}},
		{resp: CompletionResponse{Content: "hello"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	resp, err := p.Completion(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("got %q, want %q", resp.Content, "hello")
	}
	if stub.calls != 2 {
		t.Errorf("got %d calls, want 2", stub.calls)
	}
}

func TestWithRetry_RetriesOn429(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &AdapterError{Status: 429, Message: "rate limited"}},
		{resp: CompletionResponse{Content: "ok"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	_, err := p.Completion(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls != 2 {
		t.Errorf("got %d calls, want 2", stub.calls)
	}
}

func TestWithRetry_DoesNotRetryNonTransient(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &AdapterError{Status: 500, Message: "internal error"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	_, err := p.Completion(context.Background(), CompletionRequest{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if stub.calls != 1 {
		t.Errorf("got %d calls, want 1 (no retry for 500)", stub.calls)
	}
}

func TestWithRetry_ExhaustsMaxAttempts(t *testing.T) {
	transient := stubResult{err: &AdapterError{Status: 503, Message: "unavailable"}}
	stub := &stubProvider{results: []stubResult{transient, transient, transient, transient}}
	p := WithRetry(stub, RetryBaseDelay(0), RetryMaxAttempts(3))

	_, err := p.Completion(context.Background(), CompletionRequest{})
	if err == nil {
		t.Fatal("expected error after max attempts, got nil")
	}
	if stub.calls != 3 {
		t.Errorf("got %d calls, want 3", stub.calls)
	}
}

func TestWithRetry_WithToolsOnRequest_RetriesOn429(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &AdapterError{Status: 429}},
		{resp: CompletionResponse{Content: "done"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	_, err := p.Completion(context.Background(), CompletionRequest{
		Tools: []ToolDefinition{{Name: "test"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls != 2 {
		t.Errorf("got %d calls, want 2", stub.calls)
	}
}

func TestWithRetry_RespectsRetryAfter(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &AdapterError{Status: 429, Message: "rate limited", RetryAfter: 1}},
		{resp: CompletionResponse{Content: "ok"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	start := time.Now()
	resp, err := p.Completion(context.Background(), CompletionRequest{})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("got %q, want %q", resp.Content, "ok")
	}
	if elapsed < 900*time.Millisecond {
		t.Errorf("retry was too fast: %v, expected at least ~1s from RetryAfter", elapsed)
	}
	if stub.calls != 2 {
		t.Errorf("got %d calls, want 2", stub.calls)
	}
}

func TestWithRetry_TimeoutExceeded(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &AdapterError{Status: 429, RetryAfter: 1}},
		{err: &AdapterError{Status: 429, RetryAfter: 1}},
		{resp: CompletionResponse{Content: "ok"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0), RetryTimeout(50*time.Millisecond))

	_, err := p.Completion(context.Background(), CompletionRequest{})
	if err == nil {
		t.Fatal("expected error due to timeout, got nil")
	}
	if stub.calls > 2 {
		t.Errorf("got %d calls, expected at most 2 with 50ms timeout", stub.calls)
	}
}

func TestWithRetry_TimeoutAllowsSuccess(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{err: &AdapterError{Status: 503}},
		{resp: CompletionResponse{Content: "ok"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0), RetryTimeout(5*time.Second))

	resp, err := p.Completion(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("got %q, want %q", resp.Content, "ok")
	}
	if stub.calls != 2 {
		t.Errorf("got %d calls, want 2", stub.calls)
	}
}
