package testutil

import (
	"fmt"
	"sync"
)

// SequenceGenerator issues prefix1, prefix2, ... as node identities.
//
// Unlike route.FixedGenerator it never runs out, and it can be reset so
// the same scenario run twice produces identical ids.
//
// Thread-safety: All methods are safe for concurrent use.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	seq    int
}

// NewSequenceGenerator creates a generator starting at 1. An empty prefix
// defaults to "n".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "n"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s%d", g.prefix, g.seq)
}

// Issued returns how many ids have been generated since the last reset.
func (g *SequenceGenerator) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset makes the next call to Generate return prefix1 again.
func (g *SequenceGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
