package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/flowcanvas/internal/engine"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/metrics"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/pipeline"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/store"
)

var (
	ErrNotFound         = errors.New("workspace not found")
	ErrNoDataset        = errors.New("no dataset selected")
	ErrNoCustomBranches = errors.New("no custom branches found")
)

// Dispatcher executes named chains and reports one outcome per chain.
type Dispatcher interface {
	Dispatch(ctx context.Context, dataset string, chains []pipeline.Chain) map[string]*engine.Outcome
}

// Manager owns every open workspace and runs their pipelines.
type Manager struct {
	mu         sync.RWMutex
	workspaces map[string]*Workspace

	catalog    pipeline.Catalog
	dispatcher Dispatcher
	runs       store.Store
	now        func() time.Time
}

// NewManager creates a Manager. Node kinds are resolved through catalog.
func NewManager(catalog pipeline.Catalog, d Dispatcher, runs store.Store) *Manager {
	return &Manager{
		workspaces: make(map[string]*Workspace),
		catalog:    catalog,
		dispatcher: d,
		runs:       runs,
		now:        time.Now,
	}
}

func nodeID(stageKind string) string {
	return fmt.Sprintf("%s_%s", stageKind, uuid.NewString())
}

// Create opens a workspace for dataset. An empty label is derived from
// the dataset's file name.
func (m *Manager) Create(dataset, label string) *Workspace {
	w := &Workspace{
		ID:        uuid.NewString(),
		CreatedAt: m.now(),
		dataset:   dataset,
		editor: pipeline.NewEditor(datasetLabel(dataset, label),
			pipeline.WithCatalog(m.catalog),
			pipeline.WithIDFunc(nodeID),
		),
	}
	m.mu.Lock()
	m.workspaces[w.ID] = w
	n := len(m.workspaces)
	m.mu.Unlock()

	metrics.Workspaces.Set(float64(n))
	slog.Info("workspace created", "workspace", w.ID, "dataset", dataset)
	return w
}

// Get returns the workspace with the given id.
func (m *Manager) Get(id string) (*Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workspaces[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return w, nil
}

// Delete closes a workspace. Its run history is kept.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	_, ok := m.workspaces[id]
	delete(m.workspaces, id)
	n := len(m.workspaces)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	metrics.Workspaces.Set(float64(n))
	return nil
}

// Len returns the number of open workspaces.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workspaces)
}

// Run validates the workspace's pipeline and dispatches its custom
// chains. The main chain already ran upstream and is never dispatched.
// A blocked run returns ErrNoDataset, ErrNoCustomBranches or a
// *pipeline.IncompleteError; otherwise the stored run is returned with
// one record per dispatched chain.
func (m *Manager) Run(ctx context.Context, workspaceID string) (*store.Run, error) {
	w, err := m.Get(workspaceID)
	if err != nil {
		return nil, err
	}
	dataset, plan := w.plan()
	if dataset == "" {
		metrics.Runs.WithLabelValues("blocked").Inc()
		return nil, ErrNoDataset
	}
	if plan.Incomplete != nil {
		metrics.Runs.WithLabelValues("blocked").Inc()
		slog.Info("run blocked", "workspace", workspaceID, "kind", plan.Incomplete.Kind, "reason", plan.Incomplete.Message)
		return nil, plan.Incomplete
	}
	custom := plan.Chains.Custom()
	if custom.Len() == 0 {
		metrics.Runs.WithLabelValues("blocked").Inc()
		return nil, ErrNoCustomBranches
	}

	run := &store.Run{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Dataset:     dataset,
		StartedAt:   m.now(),
	}
	outcomes := m.dispatcher.Dispatch(ctx, dataset, custom.Chains())
	run.FinishedAt = m.now()

	for _, name := range custom.Names() {
		run.Chains = append(run.Chains, record(name, outcomes[name]))
	}
	run.Status = store.StatusOf(run.Chains, string(engine.StatusSuccess))
	metrics.Runs.WithLabelValues(string(run.Status)).Inc()

	if err := m.runs.SaveRun(ctx, run); err != nil {
		slog.Error("failed to save run", "run", run.ID, "workspace", workspaceID, "err", err)
	}
	slog.Info("run finished", "run", run.ID, "workspace", workspaceID, "status", run.Status, "chains", len(run.Chains))
	return run, nil
}

func record(name string, o *engine.Outcome) store.ChainRecord {
	if o == nil {
		return store.ChainRecord{Chain: name, Status: string(engine.StatusFailed), Error: "no outcome reported"}
	}
	rec := store.ChainRecord{
		Chain:      name,
		Status:     string(o.Status),
		Error:      o.Error,
		DurationMs: o.DurationMs,
	}
	if o.Result != nil {
		payload, err := json.Marshal(o.Result)
		if err != nil {
			rec.Status = string(engine.StatusFailed)
			rec.Error = fmt.Sprintf("encode result: %s", err)
			return rec
		}
		rec.Payload = payload
	}
	return rec
}

// Runs lists a workspace's run history, newest first.
func (m *Manager) Runs(ctx context.Context, workspaceID string) ([]*store.Run, error) {
	return m.runs.ListRuns(ctx, workspaceID)
}

// GetRun returns one stored run.
func (m *Manager) GetRun(ctx context.Context, runID string) (*store.Run, error) {
	return m.runs.GetRun(ctx, runID)
}
