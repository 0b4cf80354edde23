package catalog

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gyaneshwarpardhi/flowcanvas/internal/config"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/pipeline"
)

// Catalog maps stage kinds to their display label and role.
// It is safe for concurrent reads; Register should only be called while building.
type Catalog struct {
	mu     sync.RWMutex
	stages map[string]pipeline.CatalogEntry
	order  []string
}

// New creates an empty Catalog.
func New() *Catalog {
	return &Catalog{stages: make(map[string]pipeline.CatalogEntry)}
}

// FromConfig builds a catalog from the config's catalog section.
func FromConfig(stages []config.StageConf) (*Catalog, error) {
	c := New()
	for i, st := range stages {
		role, err := pipeline.ParseRole(st.Category)
		if err != nil {
			return nil, fmt.Errorf("catalog[%d] %s: %w", i, st.ID, err)
		}
		if _, exists := c.Lookup(st.ID); exists {
			return nil, fmt.Errorf("catalog[%d]: duplicate stage kind %q", i, st.ID)
		}
		c.Register(pipeline.CatalogEntry{ID: st.ID, Label: st.Label, Role: role})
	}
	return c, nil
}

// Register adds a stage kind. Panics on duplicate kind to surface misconfiguration early.
func (c *Catalog) Register(e pipeline.CatalogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.stages[e.ID]; exists {
		panic(fmt.Sprintf("catalog: duplicate stage kind %q", e.ID))
	}
	c.stages[e.ID] = e
	c.order = append(c.order, e.ID)
}

// Lookup returns the entry for a stage kind.
func (c *Catalog) Lookup(stageKind string) (pipeline.CatalogEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.stages[stageKind]
	return e, ok
}

// Entries returns every entry in registration order.
func (c *Catalog) Entries() []pipeline.CatalogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]pipeline.CatalogEntry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.stages[id])
	}
	return out
}

// Len returns the number of registered stage kinds.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Live is a Catalog that can be swapped atomically on config reload.
// Editors hold the Live value, so lookups always see the latest catalog.
type Live struct {
	cur atomic.Pointer[Catalog]
}

// NewLive wraps an initial catalog.
func NewLive(c *Catalog) *Live {
	l := &Live{}
	l.cur.Store(c)
	return l
}

// Swap replaces the catalog.
func (l *Live) Swap(c *Catalog) {
	l.cur.Store(c)
}

// Current returns the catalog in use.
func (l *Live) Current() *Catalog {
	return l.cur.Load()
}

// Lookup implements pipeline.Catalog.
func (l *Live) Lookup(stageKind string) (pipeline.CatalogEntry, bool) {
	return l.cur.Load().Lookup(stageKind)
}
