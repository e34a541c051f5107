package testutil

import (
	"fmt"
	"sync"
)

// FixedTokens generates the same submission token every time.
//
// Unlike SequenceTokens, which hands tokens out in order, this generator
// always returns the same value. Useful when a test makes exactly one
// submission and wants to assert on a known token.
//
// Thread-safety: FixedTokens is stateless and safe for concurrent use.
type FixedTokens string

// Generate returns the fixed token.
//
// Implements engine.TokenGenerator.
func (g FixedTokens) Generate() string { return string(g) }

// SequenceTokens returns predetermined submission tokens in order.
// Tests declare a known sequence and verify which token landed on which
// ledger row.
type SequenceTokens struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewSequenceTokens creates a generator that returns tokens in order.
//
// Example:
//
//	gen := testutil.NewSequenceTokens("tok-1", "tok-2")
//	gen.Generate() // "tok-1"
//	gen.Generate() // "tok-2"
//	gen.Generate() // panic: all tokens exhausted
func NewSequenceTokens(tokens ...string) *SequenceTokens {
	return &SequenceTokens{tokens: tokens}
}

// Generate returns the next predetermined token.
//
// Panics when all tokens are consumed: a test drawing more tokens than
// it declared is a test bug, not a runtime condition.
func (g *SequenceTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.tokens) {
		panic(fmt.Sprintf("all %d tokens exhausted", len(g.tokens)))
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}
