package testfixtures

import (
	"fmt"
	"sync"
)

// IDGenerator produces deterministic, zero-padded identifiers for tests so
// generated IDs sort in creation order.
type IDGenerator struct {
	mu      sync.Mutex
	prefix  string
	counter uint64
	issued  []string
}

// NewIDGenerator constructs a generator that yields identifiers with the given
// prefix. When prefix is empty, "id" is used.
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// Next returns the next identifier in the sequence.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	id := fmt.Sprintf("%s-%03d", g.prefix, g.counter)
	g.issued = append(g.issued, id)
	return id
}

// NextFunc exposes Next as a function suitable for dependency injection.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// Issued returns every identifier handed out so far.
func (g *IDGenerator) Issued() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.issued...)
}
