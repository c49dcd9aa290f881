// Package ingest bridges the remote store's per-collection change feeds
// into the local pipeline.
//
// A Channel opens one feed per collection, filtered to the bound user.
// Every collection has its own worker draining a FIFO queue, so changes to
// one collection are applied strictly in delivery order and never
// interleave, while collections progress independently. Each event is
// validated, checked against a fingerprint cache for redeliveries, and
// handed to a Sink which applies it, rebuilds indexes and publishes.
//
// A feed that the remote drops is resubscribed with exponential backoff.
// Events missed while disconnected are not replayed; a reload is the
// recovery path, optionally triggered automatically after reconnecting.
//
// Locally produced events (the mutation gateway's echo fallback) go
// through Apply, which uses the same queue so they order correctly with
// remote events for that collection.
package ingest
