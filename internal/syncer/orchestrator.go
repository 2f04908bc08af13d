package syncer

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/notacms/internal/graph"
	"github.com/roach88/notacms/internal/record"
)

// CacheState is the state of the in-memory content slot.
type CacheState int

const (
	// StateAbsent: nothing loaded yet.
	StateAbsent CacheState = iota
	// StateFresh: loaded and not invalidated since.
	StateFresh
	// StateStale: loaded, then invalidated by BustCache.
	StateStale
)

func (s CacheState) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	default:
		return "absent"
	}
}

// Config holds orchestrator settings. The zero value is usable.
type Config struct {
	// SourceName labels logs, metrics and sync log entries.
	SourceName string

	Hooks Hooks

	// NoMemcache disables the content slot: every Content call reads
	// storage.
	NoMemcache bool

	// SkipRehydrate returns stored content with relations left as stubs.
	SkipRehydrate bool

	// Dangling decides what a dangling stub becomes on read.
	Dangling graph.DanglingPolicy

	// Whitelist, when non-empty, keeps only the named collections.
	Whitelist []string
	// Blacklist drops the named collections.
	Blacklist []string

	Logger   *slog.Logger
	Observer Observer
	RunIDs   RunIDGenerator
	Clock    Clock
}

// Orchestrator drives the sync (write) and content (read) paths.
//
// Thread-safety: Sync, Content and BustCache may be called concurrently.
// Concurrent syncs are not serialized.
type Orchestrator struct {
	source  Source
	storage Storage
	cfg     Config

	logger   *slog.Logger
	observer Observer
	runIDs   RunIDGenerator
	clock    Clock

	connMu          sync.Mutex
	sourceConnected bool
	storeConnected  bool

	mu   sync.Mutex
	slot cacheSlot
}

// cacheSlot is replaced wholesale, never mutated in place.
type cacheSlot struct {
	state   CacheState
	content record.Set
	// gen increments on every bust so a load that raced with a bust does
	// not mark its result fresh.
	gen uint64
}

// New creates an orchestrator over a source and a storage.
func New(source Source, storage Storage, cfg Config) *Orchestrator {
	o := &Orchestrator{
		source:   source,
		storage:  storage,
		cfg:      cfg,
		logger:   cfg.Logger,
		observer: cfg.Observer,
		runIDs:   cfg.RunIDs,
		clock:    cfg.Clock,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	if o.runIDs == nil {
		o.runIDs = UUIDv7Generator{}
	}
	if o.clock == nil {
		o.clock = systemClock{}
	}
	return o
}

// Sync fetches the full content from the source and replaces the stored
// collections with it. Errors are logged and returned; nothing already
// stored is rolled back.
func (o *Orchestrator) Sync(ctx context.Context) error {
	run := Run{ID: o.runIDs.Generate(), Source: o.cfg.SourceName, StartedAt: o.clock.Now()}
	logger := o.logger.With("run_id", run.ID, "source", o.cfg.SourceName)
	logger.Info("sync started")

	start := time.Now()
	records, dangling, err := o.sync(ctx, logger)
	o.observer.SyncFinished(o.cfg.SourceName, records, time.Since(start), err)

	run.FinishedAt = o.clock.Now()
	run.Records = records
	run.Dangling = dangling
	if err != nil {
		run.Err = err.Error()
		logger.Error("sync failed", "error", err)
	} else {
		logger.Info("sync finished", "records", records, "dangling", dangling, "duration", time.Since(start))
	}
	o.recordRun(ctx, run, logger)
	return err
}

func (o *Orchestrator) sync(ctx context.Context, logger *slog.Logger) (records, dangling int, err error) {
	if err := o.connectSource(ctx); err != nil {
		return 0, 0, err
	}
	if err := o.connectStorage(ctx); err != nil {
		return 0, 0, err
	}

	set, err := o.source.Records(ctx)
	if err != nil {
		return 0, 0, wrap(ErrCodeFetch, "fetch records", err)
	}
	resolver := &graph.Resolver{Logger: logger}
	if l, ok := o.source.(Linker); ok {
		// Built from the unfiltered set so links into filtered-out
		// collections keep their type.
		resolver.KeyOf = l.LinkKeys(set)
	}
	set = o.filter(set, logger)
	logger.Debug("records fetched", "types", len(set), "records", set.Len())

	live, rep := resolver.Resolve(set)
	if n := len(rep.Dangling); n > 0 {
		o.observer.DanglingReferences(string(graph.StageResolve), n)
	}

	live = o.applyHook(ctx, HookBeforeRelationships, o.cfg.Hooks.BeforeRelationships, live, logger)

	if err := o.source.ArrangeRelationships(ctx, live); err != nil {
		return 0, len(rep.Dangling), wrap(ErrCodeArrange, "arrange relationships", err)
	}

	live = o.applyHook(ctx, HookBeforeStorage, o.cfg.Hooks.BeforeStorage, live, logger)

	if err := o.storage.Store(ctx, live); err != nil {
		return 0, len(rep.Dangling), wrap(ErrCodePersistence, "store records", err)
	}

	o.BustCache()
	return live.Len(), len(rep.Dangling), nil
}

// Content returns the current content as a live graph. While the cache
// slot is fresh, storage is not touched. Dangling references and hook
// failures degrade the affected fields or records; only storage failures
// produce an error.
func (o *Orchestrator) Content(ctx context.Context) (record.Set, error) {
	if o.cfg.NoMemcache {
		o.observer.ContentRead(false)
		return o.load(ctx)
	}

	o.mu.Lock()
	slot := o.slot
	o.mu.Unlock()

	if slot.state == StateFresh {
		o.observer.ContentRead(true)
		return slot.content, nil
	}
	o.observer.ContentRead(false)

	content, err := o.load(ctx)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	next := cacheSlot{state: StateFresh, content: content, gen: o.slot.gen}
	if o.slot.gen != slot.gen {
		// Busted while loading: keep the content but require a reload.
		next.state = StateStale
	}
	o.slot = next
	return content, nil
}

func (o *Orchestrator) load(ctx context.Context) (record.Set, error) {
	if err := o.connectStorage(ctx); err != nil {
		return nil, err
	}

	stored, err := o.storage.GetAll(ctx)
	if err != nil {
		err = wrap(ErrCodeConnection, "read content", err)
		o.logger.Error("content read failed", "error", err)
		return nil, err
	}

	stored = o.applyHook(ctx, HookBeforeContent, o.cfg.Hooks.BeforeContent, stored, o.logger)

	if o.cfg.SkipRehydrate {
		return stored, nil
	}
	if r, ok := o.storage.(Restructurer); ok {
		return r.Restructure(stored), nil
	}

	h := &graph.Rehydrator{Policy: o.cfg.Dangling, Logger: o.logger}
	live, rep := h.Rehydrate(stored)
	if n := len(rep.Dangling); n > 0 {
		o.observer.DanglingReferences(string(graph.StageRehydrate), n)
	}
	return live, nil
}

// BustCache invalidates the memoized content. Safe to call when nothing
// is cached.
func (o *Orchestrator) BustCache() {
	o.mu.Lock()
	defer o.mu.Unlock()
	next := o.slot
	next.gen++
	if next.state == StateFresh {
		next.state = StateStale
	}
	o.slot = next
}

// State reports the state of the content slot.
func (o *Orchestrator) State() CacheState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.slot.state
}

// SourceName returns the configured source label.
func (o *Orchestrator) SourceName() string {
	return o.cfg.SourceName
}

func (o *Orchestrator) connectSource(ctx context.Context) error {
	o.connMu.Lock()
	defer o.connMu.Unlock()
	if o.sourceConnected {
		return nil
	}
	if err := o.source.Connect(ctx); err != nil {
		return wrap(ErrCodeConnection, "connect source", err)
	}
	o.sourceConnected = true
	return nil
}

func (o *Orchestrator) connectStorage(ctx context.Context) error {
	o.connMu.Lock()
	defer o.connMu.Unlock()
	if o.storeConnected {
		return nil
	}
	if err := o.storage.Connect(ctx); err != nil {
		return wrap(ErrCodeConnection, "connect storage", err)
	}
	o.storeConnected = true
	return nil
}

// filter applies the collection whitelist and blacklist.
func (o *Orchestrator) filter(set record.Set, logger *slog.Logger) record.Set {
	if len(o.cfg.Whitelist) == 0 && len(o.cfg.Blacklist) == 0 {
		return set
	}
	out := make(record.Set, len(set))
	for typ, recs := range set {
		if len(o.cfg.Whitelist) > 0 && !slices.Contains(o.cfg.Whitelist, typ) {
			logger.Debug("collection skipped", "type", typ, "reason", "whitelist")
			continue
		}
		if slices.Contains(o.cfg.Blacklist, typ) {
			logger.Debug("collection skipped", "type", typ, "reason", "blacklist")
			continue
		}
		out[typ] = recs
	}
	return out
}

func (o *Orchestrator) recordRun(ctx context.Context, run Run, logger *slog.Logger) {
	rr, ok := o.storage.(RunRecorder)
	if !ok {
		return
	}
	o.connMu.Lock()
	connected := o.storeConnected
	o.connMu.Unlock()
	if !connected {
		return
	}
	if err := rr.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("sync log write failed", "error", err)
	}
}
