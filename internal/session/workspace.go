package session

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/flowcanvas/internal/metrics"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/pipeline"
)

// Workspace is one user's canvas: a dataset handle and the editor that
// owns its pipeline graph. The editor is single-threaded, so every call
// goes through the workspace mutex.
type Workspace struct {
	ID        string
	CreatedAt time.Time

	mu      sync.Mutex
	dataset string
	editor  *pipeline.Editor
}

// Snapshot is the JSON view of a workspace.
type Snapshot struct {
	ID        string        `json:"id"`
	Dataset   string        `json:"dataset"`
	CreatedAt time.Time     `json:"created_at"`
	View      pipeline.View `json:"view"`
}

func datasetLabel(dataset, label string) string {
	if label != "" || dataset == "" {
		return label
	}
	return filepath.Base(dataset)
}

// Dataset returns the dataset handle handed to the executor.
func (w *Workspace) Dataset() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dataset
}

// Snapshot returns the current view of the workspace.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{ID: w.ID, Dataset: w.dataset, CreatedAt: w.CreatedAt, View: w.editor.View()}
}

// Apply runs one edit against the workspace's editor.
func (w *Workspace) Apply(op pipeline.Op) (pipeline.EditResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.apply(op)
}

// Reset swaps the dataset and clears the canvas.
func (w *Workspace) Reset(dataset, label string) (pipeline.EditResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	res, err := w.apply(pipeline.Op{Kind: pipeline.OpReset, Label: datasetLabel(dataset, label)})
	if err == nil {
		w.dataset = dataset
	}
	return res, err
}

func (w *Workspace) apply(op pipeline.Op) (pipeline.EditResult, error) {
	res, err := w.editor.Apply(op)
	switch {
	case err != nil:
		metrics.Edits.WithLabelValues(string(op.Kind), "error").Inc()
		slog.Debug("edit failed", "workspace", w.ID, "op", op.Kind, "err", err)
	case res.Violation != nil:
		metrics.Edits.WithLabelValues(string(op.Kind), "rejected").Inc()
		metrics.RuleViolations.WithLabelValues(string(res.Violation.Rule)).Inc()
		slog.Info("edit rejected",
			"workspace", w.ID,
			"op", op.Kind,
			"rule", res.Violation.Rule,
			"reason", res.Violation.Reason,
		)
	default:
		metrics.Edits.WithLabelValues(string(op.Kind), "applied").Inc()
	}
	return res, err
}

// Chains previews the named chains of the current graph.
func (w *Workspace) Chains() []pipeline.Chain {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.editor.Chains().Chains()
}

func (w *Workspace) plan() (string, pipeline.RunPlan) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dataset, w.editor.Run()
}
