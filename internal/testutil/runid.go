package testutil

import (
	"fmt"
	"sync"
	"time"
)

// SequentialRunIDs returns run ids "run-1", "run-2", ... in order.
//
// This enables deterministic log and sync-log assertions.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialRunIDs struct {
	mu sync.Mutex
	n  int
}

// Generate returns the next run id.
func (g *SequentialRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("run-%d", g.n)
}

// FixedClock always reports the same instant.
type FixedClock struct {
	At time.Time
}

// Now returns c.At.
func (c FixedClock) Now() time.Time {
	return c.At
}
