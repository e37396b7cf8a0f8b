// Package server exposes captured data over the replay protocol.
//
// POST /replay/prepare resolves a requested date to the snapshot a session
// must start from. GET /ws upgrades, waits for a Kraken-style book
// subscription, acks it, and streams the prepared window of raw payloads
// one frame per captured message.
package server
