// Package sqlite implements dabgent.EventStore over modernc.org/sqlite, a
// pure-Go SQLite driver. All writers serialize through a single connection
// (SetMaxOpenConns(1)) so SQLITE_BUSY never surfaces from concurrent
// Commits; optimistic concurrency is still enforced by the events table's
// primary key.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dabgent/dabgent"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

//go:embed schema.sql
var schema string

// nopLogger discards all output; the default when WithLogger is not used.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Decoder reconstructs a concrete event value E from its stored event_type
// tag and JSON payload, e.g. dabgent.DecodeAgentEvent.
type Decoder[E dabgent.Event] func(eventType string, data []byte) (E, error)

// Store implements dabgent.EventStore[E] backed by a local SQLite file.
type Store[E dabgent.Event] struct {
	db     *sql.DB
	decode Decoder[E]
	logger *slog.Logger
}

// StoreOption configures a Store.
type StoreOption[E dabgent.Event] func(*Store[E])

// WithLogger attaches a structured logger.
func WithLogger[E dabgent.Event](l *slog.Logger) StoreOption[E] {
	return func(s *Store[E]) { s.logger = l }
}

// New opens dbPath (creating it if absent), initializes the events table,
// and returns a Store that decodes rows with decode.
func New[E dabgent.Event](ctx context.Context, dbPath string, decode Decoder[E], opts ...StoreOption[E]) (*Store[E], error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store[E]{db: db, decode: decode, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s, nil
}

// Close releases the underlying connection.
func (s *Store[E]) Close() error { return s.db.Close() }

func (s *Store[E]) Commit(ctx context.Context, q dabgent.Query, expectedSequence int64, events []E, metas []dabgent.Metadata) ([]dabgent.Envelope[E], error) {
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback()

	var current int64
	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM events WHERE stream_id = ? AND aggregate_type = ? AND aggregate_id = ?`,
		q.StreamID, q.AggregateType, q.AggregateID)
	if err := row.Scan(&current); err != nil {
		return nil, fmt.Errorf("sqlite: read current sequence: %w", err)
	}
	if current != expectedSequence {
		return nil, &dabgent.ConcurrencyError{
			AggregateType: q.AggregateType, AggregateID: q.AggregateID,
			Expected: expectedSequence, Actual: current,
		}
	}

	now := time.Now().Unix()
	envs := make([]dabgent.Envelope[E], len(events))
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events
		(id, stream_id, aggregate_type, aggregate_id, sequence, event_type, event_version, data, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("sqlite: marshal event: %w", err)
		}
		meta, err := json.Marshal(metas[i])
		if err != nil {
			return nil, fmt.Errorf("sqlite: marshal metadata: %w", err)
		}
		seq := current + int64(i) + 1
		id := uuid.Must(uuid.NewV7())

		if _, err := stmt.ExecContext(ctx, id.String(), q.StreamID, q.AggregateType, q.AggregateID,
			seq, ev.EventType(), ev.EventVersion(), string(data), string(meta), now); err != nil {
			if isUniqueViolation(err) {
				return nil, &dabgent.ConcurrencyError{
					AggregateType: q.AggregateType, AggregateID: q.AggregateID,
					Expected: expectedSequence, Actual: current,
				}
			}
			return nil, fmt.Errorf("sqlite: insert event: %w", err)
		}

		envs[i] = dabgent.Envelope[E]{
			ID: id, StreamID: q.StreamID, AggregateType: q.AggregateType, AggregateID: q.AggregateID,
			Sequence: seq, Data: ev, Metadata: metas[i], CreatedAt: now,
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit tx: %w", err)
	}
	return envs, nil
}

func (s *Store[E]) LoadEvents(ctx context.Context, q dabgent.Query) ([]dabgent.Envelope[E], error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sequence, event_type, data, metadata, created_at FROM events
		 WHERE stream_id = ? AND aggregate_type = ? AND aggregate_id = ?
		 ORDER BY sequence ASC`,
		q.StreamID, q.AggregateType, q.AggregateID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load events: %w", err)
	}
	defer rows.Close()
	return s.scanEnvelopes(rows, q.StreamID, q.AggregateType, q.AggregateID)
}

func (s *Store[E]) LoadLatestEvents(ctx context.Context, q dabgent.Query) ([]dabgent.Envelope[E], error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, aggregate_id, sequence, event_type, data, metadata, created_at FROM events
		 WHERE stream_id = ? AND aggregate_type = ?
		 ORDER BY aggregate_id ASC, sequence ASC`,
		q.StreamID, q.AggregateType)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load latest events: %w", err)
	}
	defer rows.Close()

	var out []dabgent.Envelope[E]
	for rows.Next() {
		var (
			idStr, aggID, eventType, data, meta string
			seq, createdAt                      int64
		)
		if err := rows.Scan(&idStr, &aggID, &seq, &eventType, &data, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan row: %w", err)
		}
		env, err := s.toEnvelope(idStr, q.StreamID, q.AggregateType, aggID, seq, eventType, data, meta, createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

func (s *Store[E]) LoadSequenceNums(ctx context.Context, q dabgent.Query) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT aggregate_id, MAX(sequence) FROM events
		 WHERE stream_id = ? AND aggregate_type = ?
		 GROUP BY aggregate_id`,
		q.StreamID, q.AggregateType)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load sequence nums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var id string
		var seq int64
		if err := rows.Scan(&id, &seq); err != nil {
			return nil, fmt.Errorf("sqlite: scan sequence row: %w", err)
		}
		out[id] = seq
	}
	return out, rows.Err()
}

func (s *Store[E]) scanEnvelopes(rows *sql.Rows, streamID, aggregateType, aggregateID string) ([]dabgent.Envelope[E], error) {
	var out []dabgent.Envelope[E]
	for rows.Next() {
		var (
			idStr, eventType, data, meta string
			seq, createdAt               int64
		)
		if err := rows.Scan(&idStr, &seq, &eventType, &data, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan row: %w", err)
		}
		env, err := s.toEnvelope(idStr, streamID, aggregateType, aggregateID, seq, eventType, data, meta, createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

func (s *Store[E]) toEnvelope(idStr, streamID, aggregateType, aggregateID string, seq int64, eventType, data, meta string, createdAt int64) (dabgent.Envelope[E], error) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return dabgent.Envelope[E]{}, fmt.Errorf("sqlite: parse event id: %w", err)
	}
	ev, err := s.decode(eventType, []byte(data))
	if err != nil {
		return dabgent.Envelope[E]{}, fmt.Errorf("sqlite: decode event: %w", err)
	}
	var m dabgent.Metadata
	if err := json.Unmarshal([]byte(meta), &m); err != nil {
		return dabgent.Envelope[E]{}, fmt.Errorf("sqlite: decode metadata: %w", err)
	}
	return dabgent.Envelope[E]{
		ID: id, StreamID: streamID, AggregateType: aggregateType, AggregateID: aggregateID,
		Sequence: seq, Data: ev, Metadata: m, CreatedAt: createdAt,
	}, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ dabgent.EventStore[dabgent.AgentEvent] = (*Store[dabgent.AgentEvent])(nil)
