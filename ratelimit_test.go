package dabgent

import (
	"context"
	"testing"
	"time"
)

func TestWithRateLimit_RPM_AllowsWithinLimit(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{resp: CompletionResponse{Content: "a"}},
		{resp: CompletionResponse{Content: "b"}},
	}}
	p := WithRateLimit(stub, RPM(60))

	resp, err := p.Completion(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "a" {
		t.Errorf("got %q, want %q", resp.Content, "a")
	}
}

func TestWithRateLimit_RPM_BlocksWhenExceeded(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{resp: CompletionResponse{Content: "a"}},
		{resp: CompletionResponse{Content: "b"}},
	}}
	p := WithRateLimit(stub, RPM(1))

	_, err := p.Completion(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Completion(ctx, CompletionRequest{})
	if err == nil {
		t.Fatal("expected context deadline exceeded, got nil")
	}
}

func TestWithRateLimit_Name(t *testing.T) {
	stub := &stubProvider{}
	p := WithRateLimit(stub, RPM(10))
	if p.Name() != "stub" {
		t.Errorf("Name() = %q, want %q", p.Name(), "stub")
	}
}

func TestWithRateLimit_TPM_AllowsWithinLimit(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{resp: CompletionResponse{Content: "a", Usage: Usage{InputTokens: 100, OutputTokens: 50}}},
		{resp: CompletionResponse{Content: "b", Usage: Usage{InputTokens: 100, OutputTokens: 50}}},
	}}
	p := WithRateLimit(stub, TPM(1000))

	_, err := p.Completion(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Completion(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if stub.calls != 2 {
		t.Errorf("got %d calls, want 2", stub.calls)
	}
}

func TestWithRateLimit_TPM_BlocksWhenExceeded(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{resp: CompletionResponse{Content: "a", Usage: Usage{InputTokens: 500, OutputTokens: 500}}},
		{resp: CompletionResponse{Content: "b", Usage: Usage{InputTokens: 100, OutputTokens: 100}}},
	}}
	p := WithRateLimit(stub, TPM(1000))

	_, err := p.Completion(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Completion(ctx, CompletionRequest{})
	if err == nil {
		t.Fatal("expected context deadline exceeded, got nil")
	}
}

func TestWithRateLimit_RPMAndTPM(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{resp: CompletionResponse{Content: "a", Usage: Usage{InputTokens: 10, OutputTokens: 10}}},
		{resp: CompletionResponse{Content: "b", Usage: Usage{InputTokens: 10, OutputTokens: 10}}},
	}}
	p := WithRateLimit(stub, RPM(100), TPM(20))

	_, err := p.Completion(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Completion(ctx, CompletionRequest{})
	if err == nil {
		t.Fatal("expected timeout due to TPM limit")
	}
}

func TestWithRateLimit_WithToolsOnRequest(t *testing.T) {
	stub := &stubProvider{results: []stubResult{
		{resp: CompletionResponse{Content: "ok", Usage: Usage{InputTokens: 50, OutputTokens: 50}}},
	}}
	p := WithRateLimit(stub, RPM(60))

	resp, err := p.Completion(context.Background(), CompletionRequest{
		Tools: []ToolDefinition{{Name: "test"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "ok" {
		t.Errorf("got %q, want %q", resp.Content, "ok")
	}
}
