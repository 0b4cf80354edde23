package executor

import (
	"context"
	"encoding/json"

	"github.com/gyaneshwarpardhi/flowcanvas/internal/pipeline"
)

// Request asks the backend to run one named chain against a dataset file.
type Request struct {
	Dataset string           `json:"dataset"`
	Branch  string           `json:"branch"`
	Stages  []pipeline.Stage `json:"stages"`
}

// Result is the backend's success payload for one branch. Every field is
// passed through untouched.
type Result struct {
	Outputs         json.RawMessage `json:"outputs,omitempty"`
	TrainingResults json.RawMessage `json:"trainingResults,omitempty"`
	Graph           json.RawMessage `json:"graph,omitempty"`
}

// Executor runs a single chain. Implementations must be safe for
// concurrent use; the dispatcher calls ExecuteChain from several workers.
type Executor interface {
	ExecuteChain(ctx context.Context, req Request) (*Result, error)
}

// Func adapts a plain function to Executor.
type Func func(ctx context.Context, req Request) (*Result, error)

// ExecuteChain calls f.
func (f Func) ExecuteChain(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}
