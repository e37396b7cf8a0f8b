// Package replay turns the captured raw log back into an ordered stream.
//
// The index resolves a requested date to the snapshot that must open the
// stream. The controller walks records from that snapshot and emits their
// payloads until the next snapshot closes the window, so every session
// starts from a full book and ends where the following one would begin.
package replay
