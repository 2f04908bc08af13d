package graph

import (
	"log/slog"

	"github.com/roach88/notacms/internal/record"
)

// KeyFunc reports the key a relation descriptor points at. It returns
// false for values that are not descriptors.
type KeyFunc func(v any) (record.Key, bool)

// LinkKey recognizes record.Link descriptors.
func LinkKey(v any) (record.Key, bool) {
	if l, ok := v.(record.Link); ok {
		return l.Key(), true
	}
	return record.Key{}, false
}

// Resolver binds relation descriptors to the records they describe.
type Resolver struct {
	// KeyOf recognizes descriptors. Defaults to LinkKey.
	KeyOf KeyFunc
	// Logger receives one warning per dangling reference.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

// Resolve returns a copy of set in which every top-level field holding a
// descriptor, or a sequence of descriptors, refers to the matching record
// of the returned set.
//
// All references to one key are bound to the same *record.Record. Fields
// that already hold a *record.Record are rebound to the copy with the same
// key. Descriptors without a target stay in place and are reported.
func (r *Resolver) Resolve(set record.Set) (record.Set, Report) {
	keyOf := r.KeyOf
	if keyOf == nil {
		keyOf = LinkKey
	}
	logger := loggerOrDefault(r.Logger)

	out := set.Clone()
	idx := out.Index()

	var rep Report
	for _, typ := range out.Types() {
		for _, rec := range out[typ] {
			for _, name := range fieldNames(rec) {
				rec.Fields[name] = resolveField(rec, name, rec.Fields[name], idx, keyOf, logger, &rep)
			}
		}
	}
	return out, rep
}

func resolveField(rec *record.Record, name string, v any, idx record.Index, keyOf KeyFunc, logger *slog.Logger, rep *Report) any {
	if seq, ok := v.([]any); ok {
		out := make([]any, len(seq))
		for i, elem := range seq {
			out[i] = resolveOne(rec, name, elem, idx, keyOf, logger, rep)
		}
		return out
	}
	return resolveOne(rec, name, v, idx, keyOf, logger, rep)
}

func resolveOne(rec *record.Record, name string, v any, idx record.Index, keyOf KeyFunc, logger *slog.Logger, rep *Report) any {
	if live, ok := v.(*record.Record); ok {
		if target, found := idx[live.Key()]; found {
			return target
		}
		return live
	}

	key, ok := keyOf(v)
	if !ok {
		return v
	}
	if target, found := idx[key]; found {
		rep.Linked++
		return target
	}
	rep.dangling(logger, Dangling{Stage: StageResolve, From: rec.Key(), Field: name, Target: key})
	return v
}
