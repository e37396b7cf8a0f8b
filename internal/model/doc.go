// Package model defines shared data types used across the capture and
// replay services.
//
// All types mirror the database schema created by cmd/resetdb.
//
// Conventions:
//   - Timestamps: time.Time in UTC; EventTime orders the log, ReceivedTime is audit only
//   - Prices and quantities: float64, persisted as NUMERIC(20,8)
//   - Payloads: raw feed bytes, persisted as JSONB and never rewritten
package model
