package graph

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/notacms/internal/record"
)

// Stage names the transform that found a dangling reference.
type Stage string

const (
	StageResolve   Stage = "resolve"
	StageRehydrate Stage = "rehydrate"
)

// Dangling describes one relation whose target is absent from the set.
type Dangling struct {
	Stage  Stage
	From   record.Key
	Field  string
	Target record.Key
}

// Report summarizes one Resolve or Rehydrate pass.
type Report struct {
	// Linked counts relations bound to a live record.
	Linked int
	// Dangling lists every relation left unresolved, in walk order.
	Dangling []Dangling
}

func (r *Report) dangling(logger *slog.Logger, d Dangling) {
	r.Dangling = append(r.Dangling, d)
	logger.Warn("dangling reference",
		"stage", string(d.Stage),
		"from", d.From.String(),
		"field", d.Field,
		"target", d.Target.String(),
	)
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// fieldNames returns the field names of rec in sorted order so walks, and
// the warnings they log, are deterministic.
func fieldNames(rec *record.Record) []string {
	return slices.Sorted(maps.Keys(rec.Fields))
}
