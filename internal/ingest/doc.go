// Package ingest moves feed messages into the store.
//
// The pipeline owns a bounded queue between the connection and the database:
//   - Enqueue never blocks the feed reader; overflow sheds the oldest entry
//   - a single consumer keeps same-symbol writes in arrival order
//   - transient store failures retry with jittered backoff, then drop
//
// Raw rows always land before their projection rows, so the projection can
// lag the log but never lead it.
package ingest
