package dabgent

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Event is implemented by every concrete event type stored in an
// EventStore. EventType is the stable string tag persisted in the events
// table; EventVersion allows a later handler to detect and upgrade an older
// shape without a schema migration.
type Event interface {
	EventType() string
	EventVersion() string
}

// Metadata travels alongside every committed event. CorrelationID ties all
// events in one logical unit of work together (e.g. one user request and
// every event it causes, across aggregates); CausationID names the specific
// event that directly caused this one. A root event (nothing caused it) has
// a nil CausationID and a fresh CorrelationID.
type Metadata struct {
	CorrelationID uuid.UUID       `json:"correlation_id"`
	CausationID   *uuid.UUID      `json:"causation_id,omitempty"`
	Extra         json.RawMessage `json:"extra,omitempty"`
}

// NewRootMetadata starts a new correlation chain.
func NewRootMetadata() Metadata {
	return Metadata{CorrelationID: uuid.Must(uuid.NewV7())}
}

// Caused returns metadata for an event caused by the event carrying m,
// identified by causingEventID. The correlation id is preserved.
func (m Metadata) Caused(causingEventID uuid.UUID) Metadata {
	id := causingEventID
	return Metadata{CorrelationID: m.CorrelationID, CausationID: &id, Extra: m.Extra}
}

// Envelope is one row of the event log as seen by readers: the event payload
// plus its position and provenance.
type Envelope[E Event] struct {
	ID            uuid.UUID
	StreamID      string
	AggregateType string
	AggregateID   string
	Sequence      int64
	Data          E
	Metadata      Metadata
	CreatedAt     int64 // unix seconds
}
