// Package dataservice is the entry point of the sync layer.
//
// A Service is constructed explicitly around a remote.Store and bound to
// one user by Initialize. It bulk loads all seven collections, builds the
// relationship indexes, announces the snapshot with a Loaded event and then
// follows the remote change feeds. Reads are synchronous and never touch
// the network. Writes go through the mutation gateway; their authoritative
// effect on the local collections normally arrives via the change feed.
//
// Collection contents and the index built from them are swapped together
// under one lock, so a reader or event handler never sees one without the
// other. Events are published after the lock is released; handlers may call
// back into the Service.
//
// Re-initializing with another user closes the change feeds and clears the
// collections, indexes and bus subscriptions before anything is loaded.
package dataservice
