// Package syncer coordinates content synchronization and retrieval.
//
// ARCHITECTURE:
//
// Write path (Sync):
//  1. Connect source and storage (once; retried on the next call if it fails)
//  2. Fetch the flat record set from the source
//  3. Drop collections excluded by the whitelist/blacklist
//  4. Resolve relation descriptors into live references (graph.Resolver)
//  5. Run the before-relationships hook per record
//  6. Let the source arrange its own relationships
//  7. Run the before-storage hook per record
//  8. Store: the storage flattens and replaces each type's collection
//  9. Bust the in-memory content cache
//
// Read path (Content):
//  1. Return the memoized content while the cache slot is fresh
//  2. Otherwise read every collection from storage
//  3. Run the before-content hook per record
//  4. Rehydrate stubs into live references (graph.Rehydrator), unless
//     disabled or delegated to a storage implementing Restructurer
//  5. Memoize and mark the slot fresh
//
// The cache slot is the only shared mutable state. It is replaced
// wholesale under a mutex and never mutated field by field.
//
// Concurrent Sync calls are not serialized; the last Store to finish wins
// per type. Nothing is rolled back on failure.
package syncer
