// Package postgres implements dabgent.EventStore over jackc/pgx/v5. The
// caller creates and closes the *pgxpool.Pool; this package only uses it.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dabgent/dabgent"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// Decoder reconstructs a concrete event value E from its stored event_type
// tag and JSON payload, e.g. dabgent.DecodeAgentEvent.
type Decoder[E dabgent.Event] func(eventType string, data []byte) (E, error)

// Store implements dabgent.EventStore[E] over a shared pgxpool.Pool.
// Commit reads the aggregate's current maximum sequence inside its
// transaction and returns ConcurrencyError when it differs from
// expectedSequence. Two transactions that pass that check concurrently then
// collide on the events table's primary key (stream_id, aggregate_type,
// aggregate_id, sequence); that unique violation is also reported as
// ConcurrencyError.
type Store[E dabgent.Event] struct {
	pool   *pgxpool.Pool
	decode Decoder[E]
}

// New wraps pool, initializing the events table, and decodes rows with decode.
func New[E dabgent.Event](ctx context.Context, pool *pgxpool.Pool, decode Decoder[E]) (*Store[E], error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("postgres: init schema: %w", err)
	}
	return &Store[E]{pool: pool, decode: decode}, nil
}

func (s *Store[E]) Commit(ctx context.Context, q dabgent.Query, expectedSequence int64, events []E, metas []dabgent.Metadata) ([]dabgent.Envelope[E], error) {
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM events WHERE stream_id = $1 AND aggregate_type = $2 AND aggregate_id = $3`,
		q.StreamID, q.AggregateType, q.AggregateID).Scan(&current)
	if err != nil {
		return nil, fmt.Errorf("postgres: read current sequence: %w", err)
	}
	if current != expectedSequence {
		return nil, &dabgent.ConcurrencyError{
			AggregateType: q.AggregateType, AggregateID: q.AggregateID,
			Expected: expectedSequence, Actual: current,
		}
	}

	now := time.Now().Unix()
	envs := make([]dabgent.Envelope[E], len(events))
	for i, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("postgres: marshal event: %w", err)
		}
		seq := current + int64(i) + 1
		id := uuid.Must(uuid.NewV7())

		_, err = tx.Exec(ctx, `INSERT INTO events
			(id, stream_id, aggregate_type, aggregate_id, sequence, event_type, event_version, data, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			id, q.StreamID, q.AggregateType, q.AggregateID, seq,
			ev.EventType(), ev.EventVersion(), data, metaJSON(metas[i]), now)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return nil, &dabgent.ConcurrencyError{
					AggregateType: q.AggregateType, AggregateID: q.AggregateID,
					Expected: expectedSequence, Actual: current,
				}
			}
			return nil, fmt.Errorf("postgres: insert event: %w", err)
		}

		envs[i] = dabgent.Envelope[E]{
			ID: id, StreamID: q.StreamID, AggregateType: q.AggregateType, AggregateID: q.AggregateID,
			Sequence: seq, Data: ev, Metadata: metas[i], CreatedAt: now,
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit tx: %w", err)
	}
	return envs, nil
}

func (s *Store[E]) LoadEvents(ctx context.Context, q dabgent.Query) ([]dabgent.Envelope[E], error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, sequence, event_type, data, metadata, created_at FROM events
		 WHERE stream_id = $1 AND aggregate_type = $2 AND aggregate_id = $3
		 ORDER BY sequence ASC`,
		q.StreamID, q.AggregateType, q.AggregateID)
	if err != nil {
		return nil, fmt.Errorf("postgres: load events: %w", err)
	}
	defer rows.Close()

	var out []dabgent.Envelope[E]
	for rows.Next() {
		var (
			id                        uuid.UUID
			seq, createdAt            int64
			eventType                 string
			data, meta                []byte
		)
		if err := rows.Scan(&id, &seq, &eventType, &data, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		env, err := s.toEnvelope(id, q.StreamID, q.AggregateType, q.AggregateID, seq, eventType, data, meta, createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

func (s *Store[E]) LoadLatestEvents(ctx context.Context, q dabgent.Query) ([]dabgent.Envelope[E], error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, aggregate_id, sequence, event_type, data, metadata, created_at FROM events
		 WHERE stream_id = $1 AND aggregate_type = $2
		 ORDER BY aggregate_id ASC, sequence ASC`,
		q.StreamID, q.AggregateType)
	if err != nil {
		return nil, fmt.Errorf("postgres: load latest events: %w", err)
	}
	defer rows.Close()

	var out []dabgent.Envelope[E]
	for rows.Next() {
		var (
			id                        uuid.UUID
			aggID                     string
			seq, createdAt            int64
			eventType                 string
			data, meta                []byte
		)
		if err := rows.Scan(&id, &aggID, &seq, &eventType, &data, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		env, err := s.toEnvelope(id, q.StreamID, q.AggregateType, aggID, seq, eventType, data, meta, createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

func (s *Store[E]) LoadSequenceNums(ctx context.Context, q dabgent.Query) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT aggregate_id, MAX(sequence) FROM events
		 WHERE stream_id = $1 AND aggregate_type = $2
		 GROUP BY aggregate_id`,
		q.StreamID, q.AggregateType)
	if err != nil {
		return nil, fmt.Errorf("postgres: load sequence nums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var id string
		var seq int64
		if err := rows.Scan(&id, &seq); err != nil {
			return nil, fmt.Errorf("postgres: scan sequence row: %w", err)
		}
		out[id] = seq
	}
	return out, rows.Err()
}

func (s *Store[E]) toEnvelope(id uuid.UUID, streamID, aggregateType, aggregateID string, seq int64, eventType string, data, meta []byte, createdAt int64) (dabgent.Envelope[E], error) {
	ev, err := s.decode(eventType, data)
	if err != nil {
		return dabgent.Envelope[E]{}, fmt.Errorf("postgres: decode event: %w", err)
	}
	var m dabgent.Metadata
	if err := json.Unmarshal(meta, &m); err != nil {
		return dabgent.Envelope[E]{}, fmt.Errorf("postgres: decode metadata: %w", err)
	}
	return dabgent.Envelope[E]{
		ID: id, StreamID: streamID, AggregateType: aggregateType, AggregateID: aggregateID,
		Sequence: seq, Data: ev, Metadata: m, CreatedAt: createdAt,
	}, nil
}

func metaJSON(m dabgent.Metadata) []byte {
	data, _ := json.Marshal(m)
	return data
}

var _ dabgent.EventStore[dabgent.AgentEvent] = (*Store[dabgent.AgentEvent])(nil)
