package graph

import (
	"log/slog"

	"github.com/roach88/notacms/internal/record"
)

// DanglingPolicy decides what Rehydrate leaves in place of a stub whose
// target is missing.
type DanglingPolicy int

const (
	// KeepStub leaves the stub as a record.Stub value.
	KeepStub DanglingPolicy = iota
	// Null replaces the stub with nil.
	Null
)

// ParseDanglingPolicy maps "stub" and "null" to a policy.
func ParseDanglingPolicy(s string) (DanglingPolicy, bool) {
	switch s {
	case "", "stub":
		return KeepStub, true
	case "null":
		return Null, true
	default:
		return KeepStub, false
	}
}

func (p DanglingPolicy) String() string {
	if p == Null {
		return "null"
	}
	return "stub"
}

// Rehydrator turns stored stubs back into live references.
type Rehydrator struct {
	Policy DanglingPolicy
	// Logger receives one warning per dangling stub.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

// Rehydrate returns a copy of set in which every stub-shaped value, at any
// depth of plain nested data and element-wise in sequences, is replaced by
// the matching record of the returned set.
//
// The index over every top-level record is complete before the first
// substitution, so mutual and self references resolve in one pass.
func (h *Rehydrator) Rehydrate(set record.Set) (record.Set, Report) {
	logger := loggerOrDefault(h.Logger)

	out := set.Clone()
	idx := out.Index()

	var rep Report
	for _, typ := range out.Types() {
		for _, rec := range out[typ] {
			for _, name := range fieldNames(rec) {
				rec.Fields[name] = h.value(rec, name, rec.Fields[name], idx, logger, &rep)
			}
		}
	}
	return out, rep
}

func (h *Rehydrator) value(rec *record.Record, name string, v any, idx record.Index, logger *slog.Logger, rep *Report) any {
	if stub, ok := record.StubOf(v); ok {
		if target, found := idx[stub.Key()]; found {
			rep.Linked++
			return target
		}
		rep.dangling(logger, Dangling{Stage: StageRehydrate, From: rec.Key(), Field: name, Target: stub.Key()})
		if h.Policy == Null {
			return nil
		}
		return stub
	}

	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = h.value(rec, name, elem, idx, logger, rep)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = h.value(rec, name, elem, idx, logger, rep)
		}
		return out
	default:
		return v
	}
}
