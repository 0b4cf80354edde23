package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

var _ Store = (*Memory)(nil)

// Memory keeps run history in process memory.
type Memory struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{runs: make(map[string]*Run)}
}

// SaveRun stores a copy of run, replacing any run with the same id.
func (m *Memory) SaveRun(_ context.Context, run *Run) error {
	if run.ID == "" {
		return fmt.Errorf("store: run id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = cloneRun(run)
	return nil
}

// GetRun returns a copy of the run or ErrRunNotFound.
func (m *Memory) GetRun(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return cloneRun(r), nil
}

// ListRuns returns the workspace's runs, newest first.
func (m *Memory) ListRuns(_ context.Context, workspaceID string) ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Run, 0)
	for _, r := range m.runs {
		if r.WorkspaceID == workspaceID {
			out = append(out, cloneRun(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

func cloneRun(r *Run) *Run {
	c := *r
	c.Chains = make([]ChainRecord, len(r.Chains))
	copy(c.Chains, r.Chains)
	return &c
}
