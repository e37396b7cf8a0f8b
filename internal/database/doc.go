// Package database provides connection pool management for TimescaleDB.
//
// Both capture tables live in one database:
//   - book_messages: the append-only raw message log (hypertable)
//   - book_levels: the normalized price level projection (hypertable)
package database
