// Package feed maintains the WebSocket connection to the Kraken v2 feed.
//
// The feed manager:
//   - Holds a single connection subscribed to the book channel
//   - Stamps every frame with a local receive time
//   - Handles reconnection with exponential backoff
//   - Optionally re-subscribes on an interval to force fresh snapshots
package feed
