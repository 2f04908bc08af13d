// Package graph converts record sets between their live and stored forms.
//
// Three total transforms operate over a record.Set:
//
//	Resolve:   Link descriptors -> *record.Record (live, possibly cyclic)
//	Flatten:   *record.Record   -> record.Stub    (acyclic, storage safe)
//	Rehydrate: record.Stub      -> *record.Record (live again)
//
// None of them detects cycles. Resolve and Rehydrate build a key index over
// every top-level record before substituting anything, so a relation only
// needs its target to be present, not already processed. Flatten never
// descends into a related record, so every path ends at a stub.
//
// All three are pure: the input set is never mutated and a new set is
// returned. A relation whose target is missing is a dangling reference; it
// is left as it was (or nulled, for Rehydrate under the Null policy), logged
// once as a warning and reported to the caller.
package graph
