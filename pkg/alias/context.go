package alias

import (
	"strings"
	"sync"
)

// Context carries the resolutions made during one build run. Node
// canonicalization records every raw name it sees; edge normalization
// reads the same entries so both ends of an edge use exactly the
// identifier chosen for the node.
//
// A Context is created per run and passed explicitly. It must not be
// shared between runs.
type Context struct {
	Resolver *Resolver

	mu    sync.RWMutex
	names map[string]string
}

// NewContext returns an empty run context backed by r.
func NewContext(r *Resolver) *Context {
	return &Context{Resolver: r, names: make(map[string]string)}
}

func key(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Remember records that raw was written to the graph as identifier. The
// first identifier recorded for a raw name is kept.
func (c *Context) Remember(raw, identifier string) {
	k := key(raw)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.names[k]; !ok {
		c.names[k] = identifier
	}
}

// Identifier returns the identifier recorded for raw, if any.
func (c *Context) Identifier(raw string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.names[key(raw)]
	return id, ok
}

// Len returns the number of distinct raw names recorded.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}
