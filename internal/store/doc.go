// Package store provides remote table store implementations for the sync layer.
//
// # Architecture
//
// Both implementations satisfy remote.Store:
//
//   - SQLiteStore: persistent store using modernc.org/sqlite, one table per collection
//   - MockStore: in-memory store for tests, with failure injection and latency
//
// They share a Hub that fans committed changes out to subscribers keyed by
// (collection, user). Writes are serialized with their publish, so the change
// feed of a collection is delivered in commit order.
//
// # Scoping
//
// Every read and write is scoped by user_id. Update and delete match on both
// id and user_id; a guessed id belonging to another user yields ErrNotFound.
//
// # Echo Suppression
//
// A mutation carries the writer's Origin. With SetSuppressEcho(true), the hub
// skips subscriptions opened with the same origin, as some hosted realtime
// services do for a client's own writes.
//
// # Slow Subscribers
//
// Each subscription has a bounded buffer. A subscriber that falls behind is
// disconnected with ErrSubscriberOverflow rather than silently missing events;
// the client resubscribes and reloads.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//
// Timestamps are stored as fixed-width UTC text so ORDER BY created_at sorts
// chronologically. Type-specific columns are kept in a JSON "extra" column.
//
// # Testing
//
// Use NewMockStore() for unit tests:
//
//	rs := store.NewMockStore()
//	rs.Seed(entity.Tasks, "user-1", &entity.Entity{ID: "t1", Title: "Write report"})
//	rs.FailNext(store.MockOpInsert, entity.Archives, errors.New("boom"))
//
// Use NewSQLiteStore(":memory:") for integration tests with real SQLite.
package store
