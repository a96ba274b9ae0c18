package testutil

import (
	"fmt"
	"sync"
)

// SuffixSequence returns scripted id suffixes, then counts upwards.
//
// Scripting the same suffix twice forces an id collision, which lets tests
// observe the registry re-rolling:
//
//	gen := NewSuffixSequence("00007", "00007")
//	gen.Generate() // "00007"
//	gen.Generate() // "00007"
//	gen.Generate() // "00001"
//
// Thread-safety: SuffixSequence is safe for concurrent use via internal mutex.
type SuffixSequence struct {
	mu     sync.Mutex
	script []string
	idx    int
	count  int
	calls  int
}

// NewSuffixSequence creates a generator that replays script first.
func NewSuffixSequence(script ...string) *SuffixSequence {
	return &SuffixSequence{script: script}
}

// Generate returns the next suffix.
func (g *SuffixSequence) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls++
	if g.idx < len(g.script) {
		s := g.script[g.idx]
		g.idx++
		return s
	}
	g.count++
	return fmt.Sprintf("%05d", g.count)
}

// Calls returns how many suffixes were handed out.
func (g *SuffixSequence) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
