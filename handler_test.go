package dabgent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestHandler_Execute_MetadataPropagation(t *testing.T) {
	ctx := context.Background()
	store := newMemEventStore[AgentEvent]()
	handler := newTestHandler(store)

	root := NewRootMetadata()
	envs, err := handler.Execute(ctx, "s1", "a1", PutUserMessage{Content: "hi"}, root)
	if err != nil {
		t.Fatal(err)
	}
	if len(envs) != 1 {
		t.Fatalf("got %d events, want 1", len(envs))
	}
	if envs[0].Metadata.CorrelationID != root.CorrelationID {
		t.Errorf("correlation id not propagated: got %v, want %v", envs[0].Metadata.CorrelationID, root.CorrelationID)
	}
	if envs[0].Metadata.CausationID != nil {
		t.Error("a root command's event should carry no causation id")
	}

	caused := root.Caused(envs[0].ID)
	envs2, err := handler.Execute(ctx, "s1", "a1", PutCompletion{Content: "ok"}, caused)
	if err != nil {
		t.Fatal(err)
	}
	if envs2[0].Metadata.CorrelationID != root.CorrelationID {
		t.Error("correlation id should survive a caused chain")
	}
	if envs2[0].Metadata.CausationID == nil || *envs2[0].Metadata.CausationID != envs[0].ID {
		t.Error("causation id should point at the event that caused this command")
	}
}

func TestHandler_Execute_RejectsCommandOnWrongStatus(t *testing.T) {
	ctx := context.Background()
	store := newMemEventStore[AgentEvent]()
	handler := newTestHandler(store)

	_, err := handler.Execute(ctx, "s1", "a1", PutCompletion{Content: "too early"}, NewRootMetadata())
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

// flakyStore wraps memEventStore and forces the first N Commit calls against
// a given aggregate to lose a concurrency race, so Handler.Execute's retry
// loop has something real to do.
type flakyStore struct {
	*memEventStore[AgentEvent]
	failsRemaining atomic.Int32
}

func (f *flakyStore) Commit(ctx context.Context, q Query, expectedSequence int64, events []AgentEvent, metas []Metadata) ([]Envelope[AgentEvent], error) {
	if f.failsRemaining.Load() > 0 {
		f.failsRemaining.Add(-1)
		return nil, &ConcurrencyError{AggregateType: q.AggregateType, AggregateID: q.AggregateID, Expected: expectedSequence, Actual: expectedSequence + 1}
	}
	return f.memEventStore.Commit(ctx, q, expectedSequence, events, metas)
}

func TestHandler_Execute_RetriesOnConcurrencyError(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{memEventStore: newMemEventStore[AgentEvent]()}
	store.failsRemaining.Store(2)
	handler := newTestHandler(store)

	envs, err := handler.Execute(ctx, "s1", "a1", PutUserMessage{Content: "hi"}, NewRootMetadata())
	if err != nil {
		t.Fatalf("Execute should succeed after retrying past transient conflicts: %v", err)
	}
	if len(envs) != 1 {
		t.Fatalf("got %d events, want 1", len(envs))
	}
}

func TestHandler_Execute_ExhaustsRetriesAndReturnsConcurrencyError(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{memEventStore: newMemEventStore[AgentEvent]()}
	store.failsRemaining.Store(10) // always fails, more than maxAttempts
	handler := NewHandler[*AgentState, AgentCommand, AgentEvent, AgentServices](
		"coding-agent", store, func() *AgentState { return NewAgentState(stubInnerAgent{}) }, AgentServices{},
		WithMaxAttempts[*AgentState, AgentCommand, AgentEvent, AgentServices](2),
		WithBaseDelay[*AgentState, AgentCommand, AgentEvent, AgentServices](time.Millisecond),
	)

	_, err := handler.Execute(ctx, "s1", "a1", PutUserMessage{Content: "hi"}, NewRootMetadata())
	var concErr *ConcurrencyError
	if !errors.As(err, &concErr) {
		t.Fatalf("expected *ConcurrencyError after exhausting retries, got %v", err)
	}
}

func TestHandler_Execute_ConcurrentWritersOneWins(t *testing.T) {
	ctx := context.Background()
	store := newMemEventStore[AgentEvent]()
	handler := newTestHandler(store)

	if _, err := handler.Execute(ctx, "s1", "a1", PutUserMessage{Content: "hi"}, NewRootMetadata()); err != nil {
		t.Fatal(err)
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = handler.Execute(ctx, "s1", "a1", PutCompletion{Content: "racing"}, NewRootMetadata())
		}(i)
	}
	wg.Wait()

	// The winner's completion moves the aggregate to awaiting-user; every
	// other writer reloads on retry and is rejected by validation.
	wins := 0
	for i, err := range errs {
		if err == nil {
			wins++
			continue
		}
		var valErr *ValidationError
		if !errors.As(err, &valErr) {
			t.Errorf("writer %d failed: %v, want nil or *ValidationError", i, err)
		}
	}
	if wins != 1 {
		t.Errorf("got %d winning writers, want exactly 1", wins)
	}

	envs, err := handler.LoadEventsForReplay(ctx, "s1", "a1")
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(envs); i++ {
		if envs[i].Sequence != envs[i-1].Sequence+1 {
			t.Fatalf("sequence gap between %d and %d", envs[i-1].Sequence, envs[i].Sequence)
		}
	}
}
