package dabgent

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Handler loads an aggregate, hands a command to it, and commits whatever
// events it proposes — retrying the whole load-handle-commit cycle when the
// commit loses an optimistic-concurrency race. It is the only place
// load/handle/commit happens; aggregates themselves never touch a store.
type Handler[A Aggregate[C, E, S], C any, E Event, S any] struct {
	aggregateType string
	store         EventStore[E]
	new           Factory[A]
	services      S
	logger        *slog.Logger
	tracer        Tracer

	maxAttempts int
	baseDelay   time.Duration
}

// HandlerOption configures a Handler.
type HandlerOption[A Aggregate[C, E, S], C any, E Event, S any] func(*Handler[A, C, E, S])

// WithMaxAttempts overrides the default of 3 concurrency-retry attempts.
func WithMaxAttempts[A Aggregate[C, E, S], C any, E Event, S any](n int) HandlerOption[A, C, E, S] {
	return func(h *Handler[A, C, E, S]) { h.maxAttempts = n }
}

// WithBaseDelay overrides the default 25ms backoff base.
func WithBaseDelay[A Aggregate[C, E, S], C any, E Event, S any](d time.Duration) HandlerOption[A, C, E, S] {
	return func(h *Handler[A, C, E, S]) { h.baseDelay = d }
}

// WithHandlerLogger attaches a structured logger; defaults to a discarding one.
func WithHandlerLogger[A Aggregate[C, E, S], C any, E Event, S any](l *slog.Logger) HandlerOption[A, C, E, S] {
	return func(h *Handler[A, C, E, S]) { h.logger = l }
}

// WithHandlerTracer attaches a Tracer; spans are skipped when unset.
func WithHandlerTracer[A Aggregate[C, E, S], C any, E Event, S any](t Tracer) HandlerOption[A, C, E, S] {
	return func(h *Handler[A, C, E, S]) { h.tracer = t }
}

// NewHandler constructs a Handler for aggregateType, backed by store, using
// newFn to produce a fresh zero-valued aggregate before replay.
func NewHandler[A Aggregate[C, E, S], C any, E Event, S any](
	aggregateType string, store EventStore[E], newFn Factory[A], services S,
	opts ...HandlerOption[A, C, E, S],
) *Handler[A, C, E, S] {
	h := &Handler[A, C, E, S]{
		aggregateType: aggregateType,
		store:         store,
		new:           newFn,
		services:      services,
		logger:        nopLogger,
		maxAttempts:   3,
		baseDelay:     25 * time.Millisecond,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// load replays every event for aggregateID into a fresh aggregate instance,
// returning the instance and the last committed sequence (0 if new).
func (h *Handler[A, C, E, S]) load(ctx context.Context, streamID, aggregateID string) (A, int64, error) {
	agg := h.new()
	q := Query{StreamID: streamID, AggregateType: h.aggregateType, AggregateID: aggregateID}
	envs, err := h.store.LoadEvents(ctx, q)
	if err != nil {
		var zero A
		return zero, 0, &StoreError{Op: "Handler.load", Err: err}
	}
	var seq int64
	for _, env := range envs {
		agg.Apply(env.Data)
		seq = env.Sequence
	}
	return agg, seq, nil
}

// LoadAndFold replays aggregateID's full history into a fresh aggregate
// instance and returns it alongside its current sequence, for EventHandlers
// that need to inspect folded state before deciding what command to issue.
func (h *Handler[A, C, E, S]) LoadAndFold(ctx context.Context, streamID, aggregateID string) (A, int64, error) {
	return h.load(ctx, streamID, aggregateID)
}

// LoadEventsForReplay returns every committed envelope for aggregateID in
// sequence order, for callers (like ToolHandler) that need to walk history
// themselves rather than fold it into an aggregate.
func (h *Handler[A, C, E, S]) LoadEventsForReplay(ctx context.Context, streamID, aggregateID string) ([]Envelope[E], error) {
	q := Query{StreamID: streamID, AggregateType: h.aggregateType, AggregateID: aggregateID}
	envs, err := h.store.LoadEvents(ctx, q)
	if err != nil {
		return nil, &StoreError{Op: "Handler.LoadEventsForReplay", Err: err}
	}
	return envs, nil
}

// Execute runs one load-handle-commit cycle for aggregateID on streamID,
// retrying on ConcurrencyError with exponential backoff. meta carries
// correlation/causation for the proposed events; the same meta is attached
// to every event the command produces.
func (h *Handler[A, C, E, S]) Execute(ctx context.Context, streamID, aggregateID string, cmd C, meta Metadata) ([]Envelope[E], error) {
	var lastErr error
	for attempt := 0; attempt < h.maxAttempts; attempt++ {
		ctx, span := h.startSpan(ctx, aggregateID)
		agg, seq, err := h.load(ctx, streamID, aggregateID)
		if err != nil {
			span.Error(err)
			span.End()
			return nil, err
		}

		events, err := agg.Handle(ctx, cmd, h.services)
		if err != nil {
			span.Error(err)
			span.End()
			return nil, err
		}

		metas := make([]Metadata, len(events))
		for i := range events {
			m := meta
			m.CorrelationID = meta.CorrelationID
			metas[i] = m
		}

		q := Query{StreamID: streamID, AggregateType: h.aggregateType, AggregateID: aggregateID}
		committed, err := h.store.Commit(ctx, q, seq, events, metas)
		span.End()
		if err == nil {
			return committed, nil
		}

		var concErr *ConcurrencyError
		if !errors.As(err, &concErr) {
			return nil, err
		}
		lastErr = err
		h.logger.Warn("handler: concurrency conflict, retrying",
			"aggregate_type", h.aggregateType, "aggregate_id", aggregateID, "attempt", attempt+1)
		if attempt < h.maxAttempts-1 {
			select {
			case <-time.After(retryBackoff(h.baseDelay, attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// ExecuteWithMetadata is Execute with a freshly minted root correlation id,
// for the common case of a command that begins a new causal chain (e.g. the
// first command issued against a brand-new aggregate instance).
func (h *Handler[A, C, E, S]) ExecuteWithMetadata(ctx context.Context, streamID, aggregateID string, cmd C) ([]Envelope[E], error) {
	return h.Execute(ctx, streamID, aggregateID, cmd, NewRootMetadata())
}

func (h *Handler[A, C, E, S]) startSpan(ctx context.Context, aggregateID string) (context.Context, Span) {
	if h.tracer == nil {
		return ctx, noopSpan{}
	}
	return h.tracer.Start(ctx, "Handler.Execute",
		StringAttr("aggregate_type", h.aggregateType),
		StringAttr("aggregate_id", aggregateID))
}

// noopSpan discards every call; used when no Tracer is configured.
type noopSpan struct{}

func (noopSpan) SetAttr(...SpanAttr)        {}
func (noopSpan) Event(string, ...SpanAttr)  {}
func (noopSpan) Error(error)                {}
func (noopSpan) End()                       {}

var _ Span = noopSpan{}

// retryBackoff returns the delay before retry attempt i (0-indexed):
// exponential (base * 2^i) plus up to 50% jitter.
func retryBackoff(base time.Duration, i int) time.Duration {
	exp := base * (1 << i)
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	return exp + jitter
}

// newEventID mints a fresh time-sortable id for an event, used by stores
// that need one before the caller supplies Metadata.CausationID chaining.
func newEventID() uuid.UUID { return uuid.Must(uuid.NewV7()) }
