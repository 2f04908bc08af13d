package graph

import (
	"github.com/roach88/notacms/internal/record"
)

// Flatten returns a copy of set in which every relation is a record.Stub.
//
// The walk is depth first over each record's fields. Live records and
// unresolved links become stubs and are never descended into; their data
// exists once, at the top level of the set. Sequences keep their order.
// Plain nested maps and slices are copied and walked. A nested map that
// carries a string contentId and the name of a type present in set is an
// embedded entity and is stubbed too.
func Flatten(set record.Set) record.Set {
	f := flattener{types: make(map[string]bool, len(set))}
	for typ := range set {
		f.types[typ] = true
	}

	out := make(record.Set, len(set))
	for typ, recs := range set {
		flat := make([]*record.Record, len(recs))
		for i, rec := range recs {
			flat[i] = f.record(rec)
		}
		out[typ] = flat
	}
	return out
}

// FlattenRecord flattens a single record. Only *record.Record values and
// links are stubbed, since no set is available to recognize embedded
// entity documents.
func FlattenRecord(rec *record.Record) *record.Record {
	return flattener{}.record(rec)
}

type flattener struct {
	types map[string]bool
}

func (f flattener) record(rec *record.Record) *record.Record {
	fields := make(map[string]any, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = f.value(v)
	}
	return record.New(rec.Type, rec.ContentID, fields)
}

func (f flattener) value(v any) any {
	switch val := v.(type) {
	case *record.Record:
		return record.StubFor(val.Key())
	case record.Link:
		return record.StubFor(val.Key())
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = f.value(elem)
		}
		return out
	case map[string]any:
		if key, ok := f.embeddedKey(val); ok {
			return record.StubFor(key)
		}
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = f.value(elem)
		}
		return out
	default:
		return v
	}
}

func (f flattener) embeddedKey(doc map[string]any) (record.Key, bool) {
	if _, isStub := record.StubOf(doc); isStub {
		return record.Key{}, false
	}
	typ, ok1 := doc[record.FieldType].(string)
	id, ok2 := doc[record.FieldContentID].(string)
	if !ok1 || !ok2 || id == "" || !f.types[typ] {
		return record.Key{}, false
	}
	return record.Key{Type: typ, ContentID: id}, true
}
