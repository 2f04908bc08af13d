package record

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Reserved field names in the document form of a record.
const (
	FieldType      = "type"
	FieldContentID = "contentId"
)

// Key identifies a record within a Set.
type Key struct {
	Type      string
	ContentID string
}

func (k Key) String() string {
	return k.Type + "/" + k.ContentID
}

// Record is a single synchronized entity.
//
// Fields holds content values: scalars, plain nested data (map[string]any,
// []any) and relations (*Record, Link or Stub).
type Record struct {
	Type      string
	ContentID string
	Fields    map[string]any
}

// New creates a record. A nil fields map is replaced with an empty one.
func New(typ, contentID string, fields map[string]any) *Record {
	if fields == nil {
		fields = map[string]any{}
	}
	return &Record{Type: typ, ContentID: contentID, Fields: fields}
}

// Key returns the (type, contentId) identity of r.
func (r *Record) Key() Key {
	return Key{Type: r.Type, ContentID: r.ContentID}
}

// Get returns the value of a content field, or nil if unset.
func (r *Record) Get(name string) any {
	return r.Fields[name]
}

// Ref returns the live record held by a single-relation field.
func (r *Record) Ref(name string) (*Record, bool) {
	target, ok := r.Fields[name].(*Record)
	return target, ok
}

// Refs returns the live records held by a multi-relation field, skipping
// elements that are not live references.
func (r *Record) Refs(name string) []*Record {
	seq, ok := r.Fields[name].([]any)
	if !ok {
		return nil
	}
	out := make([]*Record, 0, len(seq))
	for _, v := range seq {
		if target, ok := v.(*Record); ok {
			out = append(out, target)
		}
	}
	return out
}

// Clone returns a copy of r with its own Fields map. Field values are
// shared with r.
func (r *Record) Clone() *Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return &Record{Type: r.Type, ContentID: r.ContentID, Fields: fields}
}

// Document returns r as a single map with the reserved fields set.
// Relation values are included as they are; flatten a record before
// encoding it if it may hold live references.
func (r *Record) Document() map[string]any {
	doc := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		doc[k] = v
	}
	doc[FieldType] = r.Type
	doc[FieldContentID] = r.ContentID
	return doc
}

// MarshalJSON encodes the document form of r.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Document())
}

// FromDocument builds a record from its document form. The reserved fields
// are removed from the content fields. typ is used when the document does
// not carry a type of its own.
func FromDocument(typ string, doc map[string]any) (*Record, error) {
	fields := make(map[string]any, len(doc))
	for k, v := range doc {
		fields[k] = v
	}
	id, ok := fields[FieldContentID].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("document of type %q has no contentId", typ)
	}
	delete(fields, FieldContentID)
	if t, ok := fields[FieldType].(string); ok && t != "" {
		typ = t
	}
	delete(fields, FieldType)
	return New(typ, id, fields), nil
}

// Stub is the storage form of a relation.
type Stub struct {
	Type      string `json:"type"`
	ContentID string `json:"contentId"`
}

// Key returns the key the stub points at.
func (s Stub) Key() Key {
	return Key{Type: s.Type, ContentID: s.ContentID}
}

// StubFor returns the stub for k.
func StubFor(k Key) Stub {
	return Stub{Type: k.Type, ContentID: k.ContentID}
}

// StubOf reports whether v has the shape of a relation stub: a Stub value
// or a map holding exactly the string keys "type" and "contentId".
func StubOf(v any) (Stub, bool) {
	switch val := v.(type) {
	case Stub:
		return val, true
	case map[string]any:
		if len(val) != 2 {
			return Stub{}, false
		}
		typ, ok1 := val[FieldType].(string)
		id, ok2 := val[FieldContentID].(string)
		if !ok1 || !ok2 {
			return Stub{}, false
		}
		return Stub{Type: typ, ContentID: id}, true
	default:
		return Stub{}, false
	}
}

// Link is an unresolved relation descriptor as delivered by a source.
// Raw keeps the source's native descriptor for diagnostics.
type Link struct {
	Type      string `json:"type"`
	ContentID string `json:"contentId"`
	Raw       any    `json:"-"`
}

// Key returns the key the link points at.
func (l Link) Key() Key {
	return Key{Type: l.Type, ContentID: l.ContentID}
}

// Set groups records by type name. Order within a type is preserved.
type Set map[string][]*Record

// Add appends r to the collection of its type.
func (s Set) Add(r *Record) {
	s[r.Type] = append(s[r.Type], r)
}

// Types returns the type names in s in sorted order.
func (s Set) Types() []string {
	types := make([]string, 0, len(s))
	for t := range s {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Len returns the total number of records across all types.
func (s Set) Len() int {
	n := 0
	for _, recs := range s {
		n += len(recs)
	}
	return n
}

// Find returns the record with key k. It scans the collection of k.Type;
// use an Index for repeated lookups.
func (s Set) Find(k Key) (*Record, bool) {
	for _, r := range s[k.Type] {
		if r.ContentID == k.ContentID {
			return r, true
		}
	}
	return nil, false
}

// Index maps record keys to records.
type Index map[Key]*Record

// Index builds a lookup over every top-level record in s. When a key occurs
// twice the first record wins.
func (s Set) Index() Index {
	idx := make(Index, s.Len())
	for _, recs := range s {
		for _, r := range recs {
			if _, dup := idx[r.Key()]; !dup {
				idx[r.Key()] = r
			}
		}
	}
	return idx
}

// Clone copies every record of s with Record.Clone. Field values, including
// relations, still point at the original records.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for typ, recs := range s {
		cp := make([]*Record, len(recs))
		for i, r := range recs {
			cp[i] = r.Clone()
		}
		out[typ] = cp
	}
	return out
}
