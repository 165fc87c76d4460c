package dabgent

import "context"

// Query narrows a load/subscribe call to one stream and, optionally, one
// aggregate within it. An empty AggregateID matches every aggregate of
// AggregateType on the stream.
type Query struct {
	StreamID      string
	AggregateType string
	AggregateID   string // empty matches all ids of AggregateType
}

// EventStore persists and replays events of a single Go event type E,
// backed by the events table described in schema.sql in each backend
// package. Every implementation must:
//   - assign Sequence values gap-free per (StreamID, AggregateType, AggregateID),
//     starting at 1;
//   - reject a Commit whose ExpectedSequence does not match the last
//     committed sequence for that aggregate with a *ConcurrencyError;
//   - never reorder events within one aggregate's sequence.
type EventStore[E Event] interface {
	// Commit appends events to the aggregate's stream. expectedSequence is
	// the sequence the caller last observed (0 if the aggregate is new).
	// Returns *ConcurrencyError if expectedSequence no longer matches the
	// store's last sequence for this aggregate.
	Commit(ctx context.Context, q Query, expectedSequence int64, events []E, meta []Metadata) ([]Envelope[E], error)

	// LoadEvents returns every event for one aggregate, in sequence order.
	LoadEvents(ctx context.Context, q Query) ([]Envelope[E], error)

	// LoadLatestEvents returns events across every aggregate matching q
	// (AggregateID left empty), each aggregate's own events still in
	// sequence order.
	LoadLatestEvents(ctx context.Context, q Query) ([]Envelope[E], error)

	// LoadSequenceNums returns the last committed sequence per aggregate id
	// matching q. Used by PollingQueue to seed watermarks on startup.
	LoadSequenceNums(ctx context.Context, q Query) (map[string]int64, error)
}
