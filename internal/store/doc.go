// Package store persists captured book messages and serves ordered reads
// for replay.
//
// Two tables, both TimescaleDB hypertables:
//   - book_messages: append-only raw message log, one row per feed message
//   - book_levels: price level projection derived from each raw message
//
// Appends for one symbol are serialized so sequence IDs follow arrival
// order. Reads run on their own pool connections and never block writes.
package store
