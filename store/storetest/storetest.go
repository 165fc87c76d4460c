// Package storetest exercises a dabgent.EventStore against the properties
// every backend must uphold (sequence monotonicity, optimistic concurrency,
// replay equivalence), independent of which concrete store is under test.
// store/sqlite and store/postgres each call Suite with a factory that opens
// their own backend.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/dabgent/dabgent"
)

// Event is a minimal, JSON-trivial dabgent.Event used only by these tests.
type Event struct {
	Kind  string `json:"kind"`
	Value int    `json:"value"`
}

func (Event) EventType() string    { return "storetest.event" }
func (Event) EventVersion() string { return "1" }

// Decode reconstructs an Event from its stored payload. Its signature
// matches both sqlite.Decoder[Event] and postgres.Decoder[Event].
func Decode(eventType string, data []byte) (Event, error) {
	if eventType != "storetest.event" {
		return Event{}, fmt.Errorf("storetest: unknown event type %q", eventType)
	}
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Suite runs every backend-agnostic property test against a store built by
// factory. factory is called once per subtest so each gets an isolated store.
func Suite(t *testing.T, factory func(t *testing.T) dabgent.EventStore[Event]) {
	t.Run("CommitAssignsGaplessSequence", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		q := dabgent.Query{StreamID: "s1", AggregateType: "agg", AggregateID: "a1"}

		envs, err := store.Commit(ctx, q, 0, []Event{{Kind: "a", Value: 1}, {Kind: "b", Value: 2}}, []dabgent.Metadata{dabgent.NewRootMetadata(), dabgent.NewRootMetadata()})
		if err != nil {
			t.Fatal(err)
		}
		if envs[0].Sequence != 1 || envs[1].Sequence != 2 {
			t.Fatalf("got sequences %d, %d, want 1, 2", envs[0].Sequence, envs[1].Sequence)
		}

		more, err := store.Commit(ctx, q, 2, []Event{{Kind: "c", Value: 3}}, []dabgent.Metadata{dabgent.NewRootMetadata()})
		if err != nil {
			t.Fatal(err)
		}
		if more[0].Sequence != 3 {
			t.Fatalf("got sequence %d, want 3", more[0].Sequence)
		}
	})

	t.Run("CommitRejectsStaleExpectedSequence", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		q := dabgent.Query{StreamID: "s1", AggregateType: "agg", AggregateID: "a1"}

		if _, err := store.Commit(ctx, q, 0, []Event{{Kind: "a", Value: 1}}, []dabgent.Metadata{dabgent.NewRootMetadata()}); err != nil {
			t.Fatal(err)
		}

		_, err := store.Commit(ctx, q, 0, []Event{{Kind: "b", Value: 2}}, []dabgent.Metadata{dabgent.NewRootMetadata()})
		var concErr *dabgent.ConcurrencyError
		if !asConcurrencyError(err, &concErr) {
			t.Fatalf("expected *dabgent.ConcurrencyError, got %v", err)
		}
	})

	t.Run("LoadEventsReturnsReplayEquivalentOrder", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		q := dabgent.Query{StreamID: "s1", AggregateType: "agg", AggregateID: "a1"}

		want := []Event{{Kind: "a", Value: 1}, {Kind: "b", Value: 2}, {Kind: "c", Value: 3}}
		for i, ev := range want {
			if _, err := store.Commit(ctx, q, int64(i), []Event{ev}, []dabgent.Metadata{dabgent.NewRootMetadata()}); err != nil {
				t.Fatal(err)
			}
		}

		got, err := store.LoadEvents(ctx, q)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != len(want) {
			t.Fatalf("got %d events, want %d", len(got), len(want))
		}
		for i, env := range got {
			if env.Data != want[i] {
				t.Errorf("event %d = %+v, want %+v", i, env.Data, want[i])
			}
			if env.Sequence != int64(i+1) {
				t.Errorf("event %d sequence = %d, want %d", i, env.Sequence, i+1)
			}
		}
	})

	t.Run("LoadEventsIsolatesByAggregateID", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		qA := dabgent.Query{StreamID: "s1", AggregateType: "agg", AggregateID: "a1"}
		qB := dabgent.Query{StreamID: "s1", AggregateType: "agg", AggregateID: "a2"}

		if _, err := store.Commit(ctx, qA, 0, []Event{{Kind: "a", Value: 1}}, []dabgent.Metadata{dabgent.NewRootMetadata()}); err != nil {
			t.Fatal(err)
		}
		if _, err := store.Commit(ctx, qB, 0, []Event{{Kind: "b", Value: 2}}, []dabgent.Metadata{dabgent.NewRootMetadata()}); err != nil {
			t.Fatal(err)
		}

		gotA, err := store.LoadEvents(ctx, qA)
		if err != nil {
			t.Fatal(err)
		}
		if len(gotA) != 1 || gotA[0].Data.Kind != "a" {
			t.Fatalf("aggregate a1 leaked cross-aggregate events: %+v", gotA)
		}
	})

	t.Run("MetadataRoundTripsThroughCommitAndLoad", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		q := dabgent.Query{StreamID: "s1", AggregateType: "agg", AggregateID: "a1"}

		root := dabgent.NewRootMetadata()
		committed, err := store.Commit(ctx, q, 0, []Event{{Kind: "a", Value: 1}}, []dabgent.Metadata{root})
		if err != nil {
			t.Fatal(err)
		}
		caused := root.Caused(committed[0].ID)
		if _, err := store.Commit(ctx, q, 1, []Event{{Kind: "b", Value: 2}}, []dabgent.Metadata{caused}); err != nil {
			t.Fatal(err)
		}

		got, err := store.LoadEvents(ctx, q)
		if err != nil {
			t.Fatal(err)
		}
		if got[1].Metadata.CorrelationID != root.CorrelationID {
			t.Error("correlation id did not round-trip")
		}
		if got[1].Metadata.CausationID == nil || *got[1].Metadata.CausationID != committed[0].ID {
			t.Error("causation id did not round-trip")
		}
	})

	t.Run("LoadSequenceNumsReportsPerAggregateWatermark", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		qA := dabgent.Query{StreamID: "s1", AggregateType: "agg", AggregateID: "a1"}
		qB := dabgent.Query{StreamID: "s1", AggregateType: "agg", AggregateID: "a2"}

		if _, err := store.Commit(ctx, qA, 0, []Event{{Kind: "a", Value: 1}, {Kind: "a", Value: 2}}, []dabgent.Metadata{dabgent.NewRootMetadata(), dabgent.NewRootMetadata()}); err != nil {
			t.Fatal(err)
		}
		if _, err := store.Commit(ctx, qB, 0, []Event{{Kind: "b", Value: 1}}, []dabgent.Metadata{dabgent.NewRootMetadata()}); err != nil {
			t.Fatal(err)
		}

		nums, err := store.LoadSequenceNums(ctx, dabgent.Query{StreamID: "s1", AggregateType: "agg"})
		if err != nil {
			t.Fatal(err)
		}
		if nums["a1"] != 2 {
			t.Errorf("a1 watermark = %d, want 2", nums["a1"])
		}
		if nums["a2"] != 1 {
			t.Errorf("a2 watermark = %d, want 1", nums["a2"])
		}
	})
}

// asConcurrencyError is errors.As without importing "errors" twice in every
// call site above; kept local since this is the only type storetest checks.
func asConcurrencyError(err error, target **dabgent.ConcurrencyError) bool {
	ce, ok := err.(*dabgent.ConcurrencyError)
	if !ok {
		return false
	}
	*target = ce
	return true
}
