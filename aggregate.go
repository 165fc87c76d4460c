package dabgent

import "context"

// Aggregate is the generic command-handling, event-folding contract every
// aggregate type implements. C is the command union, E the event type the
// aggregate emits and folds, S the services value Handle may call out to
// (an LLM provider, a sandbox, a clock — whatever the aggregate's command
// handling needs that isn't itself state).
//
// Handle must be side-effect free with respect to the aggregate's own
// state: it proposes events, it does not mutate anything. Apply is the only
// place state changes, and must be pure, deterministic, and total — it is
// replayed from event history on every load, so it may never depend on
// anything beyond the event and the aggregate's current fields.
type Aggregate[C any, E Event, S any] interface {
	Handle(ctx context.Context, cmd C, services S) ([]E, error)
	Apply(event E)
}

// Factory constructs a zero-valued aggregate instance. Passed explicitly to
// Handler rather than discovered via reflection, so aggregate types never
// need a exported zero-value-friendly layout.
type Factory[A any] func() A
