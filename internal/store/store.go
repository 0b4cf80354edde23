package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrRunNotFound = errors.New("run not found")

// RunStatus summarises a whole run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed" // every chain succeeded
	RunPartial   RunStatus = "partial"   // some chains failed
	RunFailed    RunStatus = "failed"    // every chain failed
)

// Run is one dispatched run request and its per-chain outcomes.
type Run struct {
	ID          string        `json:"id"`
	WorkspaceID string        `json:"workspace_id"`
	Dataset     string        `json:"dataset"`
	Status      RunStatus     `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Chains      []ChainRecord `json:"chains"`
}

// ChainRecord is the stored outcome of one chain.
type ChainRecord struct {
	Chain      string          `json:"chain"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

// Store persists run history.
type Store interface {
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	// ListRuns returns a workspace's runs, newest first.
	ListRuns(ctx context.Context, workspaceID string) ([]*Run, error)
}

// StatusOf derives a run status from its chain records.
func StatusOf(chains []ChainRecord, success string) RunStatus {
	ok := 0
	for _, c := range chains {
		if c.Status == success {
			ok++
		}
	}
	switch {
	case ok == len(chains):
		return RunCompleted
	case ok == 0:
		return RunFailed
	default:
		return RunPartial
	}
}
