package model

import "time"

// -----------------------------------------------------------------------------
// Enumerations
// -----------------------------------------------------------------------------

// MessageKind classifies a captured book message.
type MessageKind string

const (
	// KindSnapshot is a full book image. Every replay begins at one.
	KindSnapshot MessageKind = "snapshot"
	// KindUpdate is an incremental delta against the preceding book state.
	KindUpdate MessageKind = "update"
)

// Side identifies which half of the book a level belongs to.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// -----------------------------------------------------------------------------
// Storage Types
// -----------------------------------------------------------------------------

// RawMessage is one captured feed message, the unit of the append-only log.
// Payload holds the complete original message bytes; replay emits them
// verbatim, so nothing downstream may rewrite them.
type RawMessage struct {
	EventTime    time.Time   // Embedded exchange timestamp, or ReceivedTime when absent
	ReceivedTime time.Time   // Local wall clock at ingest
	Channel      string      // Source channel (e.g., "book")
	Symbol       string      // Trading pair (e.g., "BTC/USD")
	Kind         MessageKind // snapshot or update
	Checksum     *int64      // Exchange-provided, opaque; nil when absent
	Payload      []byte      // Complete original message (JSONB)
	SequenceID   int64       // Per-symbol arrival order, assigned at append
}

// BookLevel is one price level of the normalized projection derived from a
// RawMessage. Rows share the parent message's EventTime, Kind, and Checksum.
type BookLevel struct {
	EventTime time.Time
	Symbol    string
	Side      Side
	Price     float64
	Quantity  float64 // Zero means the level was removed
	Kind      MessageKind
	Checksum  *int64
}

// StartPoint identifies where a replay begins: the position of a snapshot
// record in the per-symbol (EventTime, SequenceID) order.
type StartPoint struct {
	EventTime  time.Time
	SequenceID int64
}

// Before reports whether p orders strictly before q within one symbol's log.
// EventTime decides; SequenceID breaks ties.
func (p StartPoint) Before(q StartPoint) bool {
	if !p.EventTime.Equal(q.EventTime) {
		return p.EventTime.Before(q.EventTime)
	}
	return p.SequenceID < q.SequenceID
}

// Position returns the message's place in its symbol's log order.
func (m *RawMessage) Position() StartPoint {
	return StartPoint{EventTime: m.EventTime, SequenceID: m.SequenceID}
}
