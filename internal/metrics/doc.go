// Package metrics provides Prometheus metrics and health reporting.
//
// Key metrics:
//   - Feed message rates and reconnects
//   - Ingest queue depth and overflow drops
//   - Store retries and failures by classification
//   - Replay session counts and emit rates
package metrics
