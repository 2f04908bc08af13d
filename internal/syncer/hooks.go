package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/notacms/internal/record"
)

// Hook transforms one record. Returning a nil record drops it from the
// batch; so does returning an error, panicking, or returning a record of
// another type. Hooks should modify and
// return the record they receive: other records may hold live references
// to it, and a replacement instance is not rebound.
type Hook func(ctx context.Context, typeName string, rec *record.Record) (*record.Record, error)

// Hooks are the optional user transforms of the pipeline.
type Hooks struct {
	BeforeRelationships Hook
	BeforeStorage       Hook
	BeforeContent       Hook
}

// Hook names used in logs and metrics.
const (
	HookBeforeRelationships = "before_relationships"
	HookBeforeStorage       = "before_storage"
	HookBeforeContent       = "before_content"
)

// Chain runs hooks in order, stopping at the first drop or error.
func Chain(hooks ...Hook) Hook {
	return func(ctx context.Context, typeName string, rec *record.Record) (*record.Record, error) {
		for _, h := range hooks {
			if h == nil {
				continue
			}
			var err error
			rec, err = h(ctx, typeName, rec)
			if err != nil || rec == nil {
				return nil, err
			}
		}
		return rec, nil
	}
}

// applyHook runs hook over every record of set and returns the surviving
// records. A failure is contained to its record: it is logged and the
// record is left out. A result whose type differs from the collection it
// came from, or that lost its contentId, counts as a failure.
func (o *Orchestrator) applyHook(ctx context.Context, name string, hook Hook, set record.Set, logger *slog.Logger) record.Set {
	if hook == nil {
		return set
	}

	out := make(record.Set, len(set))
	for _, typ := range set.Types() {
		kept := make([]*record.Record, 0, len(set[typ]))
		for _, rec := range set[typ] {
			res, err := callHook(ctx, hook, typ, rec)
			switch {
			case err != nil:
				logger.Error("hook failed, record dropped",
					"hook", name, "record", rec.Key().String(), "error", err)
				o.observer.HookDropped(name)
			case res == nil:
				logger.Debug("hook dropped record", "hook", name, "record", rec.Key().String())
				o.observer.HookDropped(name)
			case res.Type != typ || res.ContentID == "":
				logger.Error("hook changed record identity, record dropped",
					"hook", name, "record", rec.Key().String(), "result", res.Key().String())
				o.observer.HookDropped(name)
			default:
				kept = append(kept, res)
			}
		}
		out[typ] = kept
	}
	return out
}

func callHook(ctx context.Context, hook Hook, typ string, rec *record.Record) (res *record.Record, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("hook panic: %v", p)
		}
	}()
	return hook(ctx, typ, rec)
}
