package syncer

import (
	"context"
	"time"

	"github.com/roach88/notacms/internal/graph"
	"github.com/roach88/notacms/internal/record"
)

// Source delivers the full content of a remote content service.
type Source interface {
	// Connect validates configuration and prepares the client.
	Connect(ctx context.Context) error
	// Records fetches every record. Relation fields still hold descriptors.
	Records(ctx context.Context) (record.Set, error)
	// ArrangeRelationships applies source-specific wiring to an already
	// resolved set, in place.
	ArrangeRelationships(ctx context.Context, set record.Set) error
}

// Linker is implemented by sources whose relation descriptors are not
// record.Link values. LinkKeys is called once per sync with the full
// fetched set, before collection filtering; the returned function must
// depend only on that set.
type Linker interface {
	LinkKeys(set record.Set) graph.KeyFunc
}

// Storage persists record sets, one collection per type.
type Storage interface {
	Connect(ctx context.Context) error
	// Store flattens set and replaces the collection of every type in it.
	// Types are replaced one at a time; a failure leaves earlier types
	// replaced.
	Store(ctx context.Context, set record.Set) error
	// GetAll returns every stored collection in flattened form.
	GetAll(ctx context.Context) (record.Set, error)
}

// Restructurer is implemented by storages that rebuild relations
// themselves. When present it replaces graph.Rehydrator on reads.
type Restructurer interface {
	Restructure(set record.Set) record.Set
}

// Run is one sync attempt as recorded in a storage's sync log.
type Run struct {
	ID         string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Records    int
	Dangling   int
	Err        string
}

// RunRecorder is implemented by storages that keep a sync log.
type RunRecorder interface {
	RecordRun(ctx context.Context, run Run) error
}

// Observer receives operational events. See internal/metrics for the
// Prometheus implementation.
type Observer interface {
	SyncFinished(source string, records int, d time.Duration, err error)
	DanglingReferences(stage string, n int)
	HookDropped(hook string)
	ContentRead(cached bool)
}

type nopObserver struct{}

func (nopObserver) SyncFinished(string, int, time.Duration, error) {}
func (nopObserver) DanglingReferences(string, int)                {}
func (nopObserver) HookDropped(string)                            {}
func (nopObserver) ContentRead(bool)                              {}
