// Package store provides the storage backends for synchronized content.
//
// Two backends implement syncer.Storage:
//   - Store: SQLite-backed, durable
//   - Memory: in-process, for tests and throwaway runs
//
// Both flatten the live graph (graph.Flatten) before persisting, so stored
// relations are always {"type": ..., "contentId": ...} stubs and a stored
// body never contains a cycle.
//
// # SQLite layout
//
//   - records: (type, content_id) primary key, position for source order,
//     slug for page lookups, body as canonical JSON of the content fields
//   - collections: one row per type present after the last replace
//   - sync_runs: sync log
//
// A store call replaces one type per transaction. Types are not replaced
// atomically together: a failure leaves earlier types replaced and is
// reported as a persistence error naming the failing type.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
