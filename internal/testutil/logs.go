package testutil

import (
	"context"
	"log/slog"
	"sync"
)

// LogRecorder is a slog.Handler that keeps every record it handles.
//
// Thread-safety: safe for concurrent use via internal mutex. Loggers derived
// with With/WithGroup share the parent's storage.
type LogRecorder struct {
	state *logState
	attrs []slog.Attr
}

type logState struct {
	mu      sync.Mutex
	entries []LogEntry
}

// LogEntry is a flattened view of one slog.Record.
type LogEntry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// NewLogRecorder returns a recorder and a logger writing into it.
func NewLogRecorder() (*LogRecorder, *slog.Logger) {
	rec := &LogRecorder{state: &logState{}}
	return rec, slog.New(rec)
}

func (r *LogRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *LogRecorder) Handle(_ context.Context, record slog.Record) error {
	entry := LogEntry{
		Level:   record.Level,
		Message: record.Message,
		Attrs:   make(map[string]any, record.NumAttrs()+len(r.attrs)),
	}
	for _, a := range r.attrs {
		entry.Attrs[a.Key] = a.Value.Any()
	}
	record.Attrs(func(a slog.Attr) bool {
		entry.Attrs[a.Key] = a.Value.Any()
		return true
	})

	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.entries = append(r.state.entries, entry)
	return nil
}

func (r *LogRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, r.attrs...), attrs...)
	return &LogRecorder{state: r.state, attrs: merged}
}

// WithGroup ignores the group name; tests match on attribute keys only.
func (r *LogRecorder) WithGroup(string) slog.Handler {
	return r
}

// Entries returns a copy of everything recorded so far.
func (r *LogRecorder) Entries() []LogEntry {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return append([]LogEntry(nil), r.state.entries...)
}

// Messages returns entries whose message equals msg.
func (r *LogRecorder) Messages(msg string) []LogEntry {
	var out []LogEntry
	for _, e := range r.Entries() {
		if e.Message == msg {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many entries carry msg.
func (r *LogRecorder) Count(msg string) int {
	return len(r.Messages(msg))
}
