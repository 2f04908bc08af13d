package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roach88/notacms/internal/graph"
	"github.com/roach88/notacms/internal/record"
	"github.com/roach88/notacms/internal/syncer"
)

// Memory keeps collections in process as canonical JSON, so reads return
// fresh copies and never share instances with what was stored.
type Memory struct {
	mu          sync.Mutex
	collections map[string][]memoryDoc
	runs        []syncer.Run

	reads atomic.Int64
}

type memoryDoc struct {
	id   string
	body []byte
}

// NewMemory creates an empty in-memory storage.
func NewMemory() *Memory {
	return &Memory{collections: map[string][]memoryDoc{}}
}

// Connect is a no-op.
func (m *Memory) Connect(context.Context) error { return nil }

// Store replaces the collection of each type in set.
func (m *Memory) Store(_ context.Context, set record.Set) error {
	flat := graph.Flatten(set)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, typ := range flat.Types() {
		seen := make(map[string]bool, len(flat[typ]))
		docs := make([]memoryDoc, 0, len(flat[typ]))
		for _, rec := range flat[typ] {
			if seen[rec.ContentID] {
				continue
			}
			seen[rec.ContentID] = true
			body, err := record.MarshalCanonical(rec.Fields)
			if err != nil {
				return syncer.NewPersistenceError(typ, fmt.Errorf("encode %s: %w", rec.Key(), err))
			}
			docs = append(docs, memoryDoc{id: rec.ContentID, body: body})
		}
		m.collections[typ] = docs
	}
	return nil
}

// GetAll decodes every stored collection.
func (m *Memory) GetAll(context.Context) (record.Set, error) {
	m.reads.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(record.Set, len(m.collections))
	for typ, docs := range m.collections {
		recs := make([]*record.Record, 0, len(docs))
		for _, d := range docs {
			fields, err := record.DecodeDocument(d.body)
			if err != nil {
				return nil, fmt.Errorf("record %s/%s: %w", typ, d.id, err)
			}
			recs = append(recs, record.New(typ, d.id, fields))
		}
		set[typ] = recs
	}
	return set, nil
}

// Reads returns how many times GetAll was called.
func (m *Memory) Reads() int {
	return int(m.reads.Load())
}

// RecordRun appends run to the in-memory sync log.
func (m *Memory) RecordRun(_ context.Context, run syncer.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

// Runs returns the recorded runs, oldest first.
func (m *Memory) Runs() []syncer.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]syncer.Run, len(m.runs))
	copy(out, m.runs)
	return out
}
