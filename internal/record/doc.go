// Package record defines the entity shapes exchanged by every stage of a
// content sync.
//
// This package contains type definitions and value helpers only. Every other
// internal package imports record; record imports nothing internal.
//
// A Record is one synchronized entity, identified within its type by
// ContentID. A Set groups records by type name. Relations between records
// take one of three forms depending on the pipeline stage:
//   - Link: an unresolved descriptor delivered by a source
//   - *Record: a live reference, shared by every field pointing at the same key
//   - Stub: the storage form, {"type": ..., "contentId": ...}
//
// Stored bodies are serialized with MarshalCanonical so identical content
// always produces identical bytes.
package record
