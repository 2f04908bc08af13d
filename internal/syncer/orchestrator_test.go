package syncer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notacms/internal/graph"
	"github.com/roach88/notacms/internal/record"
	"github.com/roach88/notacms/internal/store"
	"github.com/roach88/notacms/internal/syncer"
	"github.com/roach88/notacms/internal/testutil"
)

type fakeSource struct {
	set        func() record.Set
	connectErr error
	recordsErr error
	arrangeErr error
	connects   int
	arranged   record.Set
}

func (f *fakeSource) Connect(context.Context) error {
	f.connects++
	return f.connectErr
}

func (f *fakeSource) Records(context.Context) (record.Set, error) {
	if f.recordsErr != nil {
		return nil, f.recordsErr
	}
	if f.set == nil {
		return testutil.BlogSet(), nil
	}
	return f.set(), nil
}

func (f *fakeSource) ArrangeRelationships(_ context.Context, set record.Set) error {
	f.arranged = set
	return f.arrangeErr
}

type fakeObserver struct {
	mu       sync.Mutex
	syncs    int
	lastErr  error
	records  int
	dangling map[string]int
	dropped  map[string]int
	hits     int
	misses   int
}

func newFakeObserver() *fakeObserver {
	return &fakeObserver{dangling: map[string]int{}, dropped: map[string]int{}}
}

func (o *fakeObserver) SyncFinished(_ string, records int, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.syncs++
	o.records = records
	o.lastErr = err
}

func (o *fakeObserver) DanglingReferences(stage string, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dangling[stage] += n
}

func (o *fakeObserver) HookDropped(hook string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped[hook]++
}

func (o *fakeObserver) ContentRead(cached bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cached {
		o.hits++
	} else {
		o.misses++
	}
}

func newOrchestrator(t *testing.T, src *fakeSource, storage syncer.Storage, cfg syncer.Config) *syncer.Orchestrator {
	t.Helper()
	if cfg.Logger == nil {
		_, cfg.Logger = testutil.NewLogRecorder()
	}
	if cfg.SourceName == "" {
		cfg.SourceName = "fake"
	}
	return syncer.New(src, storage, cfg)
}

func TestSync_ThenContentIsLive(t *testing.T) {
	mem := store.NewMemory()
	src := &fakeSource{}
	obs := newFakeObserver()
	o := newOrchestrator(t, src, mem, syncer.Config{Observer: obs})
	ctx := context.Background()

	require.NoError(t, o.Sync(ctx))
	assert.Equal(t, 1, obs.syncs)
	assert.Equal(t, 5, obs.records)
	assert.NotNil(t, src.arranged)

	content, err := o.Content(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, content.Len())

	a1, ok := content.Find(record.Key{Type: "author", ContentID: "a1"})
	require.True(t, ok)
	p1, ok := content.Find(record.Key{Type: "article", ContentID: "p1"})
	require.True(t, ok)
	p2, ok := content.Find(record.Key{Type: "article", ContentID: "p2"})
	require.True(t, ok)

	author, ok := p1.Ref("author")
	require.True(t, ok)
	assert.Same(t, a1, author)

	featured, ok := a1.Ref("featured")
	require.True(t, ok)
	assert.Same(t, p2, featured)

	related, ok := p2.Ref("related")
	require.True(t, ok)
	assert.Same(t, p1, related)
	assert.Len(t, p1.Refs("tags"), 2)
}

func TestContent_Memoized(t *testing.T) {
	mem := store.NewMemory()
	obs := newFakeObserver()
	o := newOrchestrator(t, &fakeSource{}, mem, syncer.Config{Observer: obs})
	ctx := context.Background()
	require.NoError(t, o.Sync(ctx))
	assert.Equal(t, syncer.StateAbsent, o.State())

	first, err := o.Content(ctx)
	require.NoError(t, err)
	second, err := o.Content(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, mem.Reads())
	assert.Equal(t, syncer.StateFresh, o.State())
	p1a, _ := first.Find(record.Key{Type: "article", ContentID: "p1"})
	p1b, _ := second.Find(record.Key{Type: "article", ContentID: "p1"})
	assert.Same(t, p1a, p1b)
	assert.Equal(t, 1, obs.hits)
	assert.Equal(t, 1, obs.misses)

	o.BustCache()
	assert.Equal(t, syncer.StateStale, o.State())

	_, err = o.Content(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, mem.Reads())
	assert.Equal(t, syncer.StateFresh, o.State())
}

func TestBustCache_WhenAbsent(t *testing.T) {
	o := newOrchestrator(t, &fakeSource{}, store.NewMemory(), syncer.Config{})
	o.BustCache()
	assert.Equal(t, syncer.StateAbsent, o.State())
}

func TestSync_BustsCache(t *testing.T) {
	mem := store.NewMemory()
	o := newOrchestrator(t, &fakeSource{}, mem, syncer.Config{})
	ctx := context.Background()

	require.NoError(t, o.Sync(ctx))
	_, err := o.Content(ctx)
	require.NoError(t, err)
	require.Equal(t, syncer.StateFresh, o.State())

	require.NoError(t, o.Sync(ctx))
	assert.Equal(t, syncer.StateStale, o.State())

	_, err = o.Content(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, mem.Reads())
}

func TestContent_NoMemcache(t *testing.T) {
	mem := store.NewMemory()
	o := newOrchestrator(t, &fakeSource{}, mem, syncer.Config{NoMemcache: true})
	ctx := context.Background()
	require.NoError(t, o.Sync(ctx))

	for range 3 {
		_, err := o.Content(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, mem.Reads())
	assert.Equal(t, syncer.StateAbsent, o.State())
}

func TestContent_SkipRehydrate(t *testing.T) {
	o := newOrchestrator(t, &fakeSource{}, store.NewMemory(), syncer.Config{SkipRehydrate: true})
	ctx := context.Background()
	require.NoError(t, o.Sync(ctx))

	content, err := o.Content(ctx)
	require.NoError(t, err)
	p1, ok := content.Find(record.Key{Type: "article", ContentID: "p1"})
	require.True(t, ok)

	stub, ok := record.StubOf(p1.Get("author"))
	require.True(t, ok)
	assert.Equal(t, record.Key{Type: "author", ContentID: "a1"}, stub.Key())
}

func TestSync_ConnectOnce(t *testing.T) {
	src := &fakeSource{}
	o := newOrchestrator(t, src, store.NewMemory(), syncer.Config{})
	ctx := context.Background()

	require.NoError(t, o.Sync(ctx))
	require.NoError(t, o.Sync(ctx))
	assert.Equal(t, 1, src.connects)
}

func TestSync_Errors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		src  *fakeSource
		want syncer.ErrorCode
		runs int
	}{
		{"config", &fakeSource{connectErr: syncer.NewConfigError("space is required")}, syncer.ErrCodeConfig, 0},
		{"connection", &fakeSource{connectErr: boom}, syncer.ErrCodeConnection, 0},
		{"fetch", &fakeSource{recordsErr: boom}, syncer.ErrCodeFetch, 1},
		{"arrange", &fakeSource{arrangeErr: boom}, syncer.ErrCodeArrange, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := store.NewMemory()
			obs := newFakeObserver()
			o := newOrchestrator(t, tt.src, mem, syncer.Config{Observer: obs})

			err := o.Sync(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.want, syncer.CodeOf(err))
			assert.Equal(t, err, obs.lastErr)

			runs := mem.Runs()
			require.Len(t, runs, tt.runs)
			if tt.runs > 0 {
				assert.Equal(t, err.Error(), runs[0].Err)
			}

			content, err := o.Content(context.Background())
			require.NoError(t, err)
			assert.Zero(t, content.Len())
		})
	}
}

type failingStorage struct {
	*store.Memory
	storeErr error
	readErr  error
	onGetAll func()
}

func (s *failingStorage) Store(ctx context.Context, set record.Set) error {
	if s.storeErr != nil {
		return s.storeErr
	}
	return s.Memory.Store(ctx, set)
}

func (s *failingStorage) GetAll(ctx context.Context) (record.Set, error) {
	if s.onGetAll != nil {
		s.onGetAll()
	}
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.Memory.GetAll(ctx)
}

func TestSync_PersistenceError(t *testing.T) {
	storage := &failingStorage{
		Memory:   store.NewMemory(),
		storeErr: syncer.NewPersistenceError("tag", errors.New("disk full")),
	}
	o := newOrchestrator(t, &fakeSource{}, storage, syncer.Config{})

	err := o.Sync(context.Background())
	require.Error(t, err)
	assert.Equal(t, syncer.ErrCodePersistence, syncer.CodeOf(err))

	var se *syncer.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "tag", se.Type)
}

func TestContent_StorageError(t *testing.T) {
	storage := &failingStorage{Memory: store.NewMemory(), readErr: errors.New("unreachable")}
	logs, logger := testutil.NewLogRecorder()
	o := newOrchestrator(t, &fakeSource{}, storage, syncer.Config{Logger: logger})

	_, err := o.Content(context.Background())
	require.Error(t, err)
	assert.Equal(t, syncer.ErrCodeConnection, syncer.CodeOf(err))
	assert.Equal(t, syncer.StateAbsent, o.State())
	assert.Equal(t, 1, logs.Count("content read failed"))
}

func TestContent_BustDuringLoadStaysStale(t *testing.T) {
	storage := &failingStorage{Memory: store.NewMemory()}
	o := newOrchestrator(t, &fakeSource{}, storage, syncer.Config{})
	storage.onGetAll = o.BustCache

	content, err := o.Content(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, content)
	assert.Equal(t, syncer.StateStale, o.State())
}

type restructuringStorage struct {
	*store.Memory
	calls int
}

func (s *restructuringStorage) Restructure(set record.Set) record.Set {
	s.calls++
	return set
}

func TestContent_Restructurer(t *testing.T) {
	storage := &restructuringStorage{Memory: store.NewMemory()}
	o := newOrchestrator(t, &fakeSource{}, storage, syncer.Config{})
	ctx := context.Background()
	require.NoError(t, o.Sync(ctx))

	content, err := o.Content(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, storage.calls)

	// Restructure returned the stored set unchanged, so relations are stubs.
	p1, _ := content.Find(record.Key{Type: "article", ContentID: "p1"})
	_, isStub := record.StubOf(p1.Get("author"))
	assert.True(t, isStub)
}

func TestSync_Filters(t *testing.T) {
	tests := []struct {
		name  string
		cfg   syncer.Config
		types []string
	}{
		{"whitelist", syncer.Config{Whitelist: []string{"article", "author"}}, []string{"article", "author"}},
		{"blacklist", syncer.Config{Blacklist: []string{"tag"}}, []string{"article", "author"}},
		{"both", syncer.Config{Whitelist: []string{"article", "tag"}, Blacklist: []string{"tag"}}, []string{"article"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrchestrator(t, &fakeSource{}, store.NewMemory(), tt.cfg)
			ctx := context.Background()
			require.NoError(t, o.Sync(ctx))

			content, err := o.Content(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.types, content.Types())
		})
	}
}

func TestSync_FilteredTargetDangles(t *testing.T) {
	obs := newFakeObserver()
	o := newOrchestrator(t, &fakeSource{}, store.NewMemory(), syncer.Config{
		Blacklist: []string{"author"},
		Dangling:  graph.Null,
		Observer:  obs,
	})
	ctx := context.Background()
	require.NoError(t, o.Sync(ctx))

	// p1 and p2 each point at a1.
	assert.Equal(t, 2, obs.dangling[string(graph.StageResolve)])

	content, err := o.Content(ctx)
	require.NoError(t, err)
	p1, _ := content.Find(record.Key{Type: "article", ContentID: "p1"})
	assert.Nil(t, p1.Get("author"))
	assert.Contains(t, p1.Fields, "author")
	assert.Equal(t, 2, obs.dangling[string(graph.StageRehydrate)])
}

func TestSync_DanglingKeepStub(t *testing.T) {
	o := newOrchestrator(t, &fakeSource{}, store.NewMemory(), syncer.Config{Blacklist: []string{"author"}})
	ctx := context.Background()
	require.NoError(t, o.Sync(ctx))

	content, err := o.Content(ctx)
	require.NoError(t, err)
	p1, _ := content.Find(record.Key{Type: "article", ContentID: "p1"})
	stub, ok := record.StubOf(p1.Get("author"))
	require.True(t, ok)
	assert.Equal(t, "a1", stub.ContentID)
}

func TestHooks_BeforeStorageDrops(t *testing.T) {
	obs := newFakeObserver()
	dropP2 := func(_ context.Context, typ string, rec *record.Record) (*record.Record, error) {
		if typ == "article" && rec.ContentID == "p2" {
			return nil, nil
		}
		return rec, nil
	}
	o := newOrchestrator(t, &fakeSource{}, store.NewMemory(), syncer.Config{
		Hooks:    syncer.Hooks{BeforeStorage: dropP2},
		Observer: obs,
	})
	ctx := context.Background()
	require.NoError(t, o.Sync(ctx))
	assert.Equal(t, 4, obs.records)
	assert.Equal(t, 1, obs.dropped[syncer.HookBeforeStorage])

	content, err := o.Content(ctx)
	require.NoError(t, err)
	_, ok := content.Find(record.Key{Type: "article", ContentID: "p2"})
	assert.False(t, ok)
}

func TestHooks_FailureContainedToRecord(t *testing.T) {
	logs, logger := testutil.NewLogRecorder()
	obs := newFakeObserver()
	hook := func(_ context.Context, typ string, rec *record.Record) (*record.Record, error) {
		switch rec.ContentID {
		case "t1":
			return nil, errors.New("bad tag")
		case "t2":
			panic("worse tag")
		}
		return rec, nil
	}
	o := newOrchestrator(t, &fakeSource{}, store.NewMemory(), syncer.Config{
		Hooks:    syncer.Hooks{BeforeRelationships: hook},
		Logger:   logger,
		Observer: obs,
	})

	require.NoError(t, o.Sync(context.Background()))
	assert.Equal(t, 3, obs.records)
	assert.Equal(t, 2, obs.dropped[syncer.HookBeforeRelationships])
	assert.Equal(t, 2, logs.Count("hook failed, record dropped"))
}

func TestHooks_RetypedResultDropped(t *testing.T) {
	logs, logger := testutil.NewLogRecorder()
	obs := newFakeObserver()
	retype := func(_ context.Context, typ string, rec *record.Record) (*record.Record, error) {
		if rec.ContentID == "t1" {
			return record.New("label", rec.ContentID, rec.Fields), nil
		}
		if rec.ContentID == "t2" {
			rec.ContentID = ""
		}
		return rec, nil
	}
	o := newOrchestrator(t, &fakeSource{}, store.NewMemory(), syncer.Config{
		Hooks:    syncer.Hooks{BeforeStorage: retype},
		Logger:   logger,
		Observer: obs,
	})
	ctx := context.Background()
	require.NoError(t, o.Sync(ctx))
	assert.Equal(t, 2, obs.dropped[syncer.HookBeforeStorage])
	assert.Equal(t, 2, logs.Count("hook changed record identity, record dropped"))

	content, err := o.Content(ctx)
	require.NoError(t, err)
	assert.Empty(t, content["tag"])
	_, ok := content["label"]
	assert.False(t, ok)
	for typ, recs := range content {
		for _, rec := range recs {
			assert.Equal(t, typ, rec.Type)
		}
	}
}

func TestHooks_BeforeContentModifies(t *testing.T) {
	upper := func(_ context.Context, typ string, rec *record.Record) (*record.Record, error) {
		if typ == "tag" {
			rec.Fields["label"] = "#" + rec.Fields["label"].(string)
		}
		return rec, nil
	}
	o := newOrchestrator(t, &fakeSource{}, store.NewMemory(), syncer.Config{
		Hooks: syncer.Hooks{BeforeContent: upper},
	})
	ctx := context.Background()
	require.NoError(t, o.Sync(ctx))

	content, err := o.Content(ctx)
	require.NoError(t, err)
	p1, _ := content.Find(record.Key{Type: "article", ContentID: "p1"})
	tags := p1.Refs("tags")
	require.Len(t, tags, 2)
	assert.Equal(t, "#go", tags[0].Get("label"))
}

func TestSync_RecordsRun(t *testing.T) {
	mem := store.NewMemory()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	o := newOrchestrator(t, &fakeSource{}, mem, syncer.Config{
		SourceName: "contentful",
		RunIDs:     &testutil.SequentialRunIDs{},
		Clock:      testutil.FixedClock{At: at},
	})
	ctx := context.Background()

	require.NoError(t, o.Sync(ctx))
	require.NoError(t, o.Sync(ctx))

	runs := mem.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, syncer.Run{
		ID:         "run-1",
		Source:     "contentful",
		StartedAt:  at,
		FinishedAt: at,
		Records:    5,
	}, runs[0])
	assert.Equal(t, "run-2", runs[1].ID)
}

func TestSync_LogsCarryRunID(t *testing.T) {
	logs, logger := testutil.NewLogRecorder()
	o := newOrchestrator(t, &fakeSource{}, store.NewMemory(), syncer.Config{
		Logger: logger,
		RunIDs: &testutil.SequentialRunIDs{},
	})

	require.NoError(t, o.Sync(context.Background()))
	finished := logs.Messages("sync finished")
	require.Len(t, finished, 1)
	assert.Equal(t, "run-1", finished[0].Attrs["run_id"])
	assert.Equal(t, "fake", finished[0].Attrs["source"])
}

func TestSourceName(t *testing.T) {
	o := newOrchestrator(t, &fakeSource{}, store.NewMemory(), syncer.Config{SourceName: "cms"})
	assert.Equal(t, "cms", o.SourceName())
}
