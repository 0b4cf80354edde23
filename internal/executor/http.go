package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/flowcanvas/internal/pipeline"
)

const (
	runConfigPath = "/run-config"
	maxErrorBody  = 4 << 10
)

// ErrBranchMissing is returned when a /run-config response has no entry
// for a branch that was sent.
var ErrBranchMissing = errors.New("branch missing from backend response")

// BranchOutput is one entry of a /run-config response's outputs map. A
// failed branch carries Status "failed" and Error.
type BranchOutput struct {
	Result
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Failed reports whether the backend marked the branch as failed.
func (b *BranchOutput) Failed() bool { return b.Status == "failed" }

type runConfigResponse struct {
	Message string                   `json:"message"`
	Outputs map[string]*BranchOutput `json:"outputs"`
}

// HTTPExecutor uploads the dataset and chains to the execution backend's
// /run-config endpoint.
type HTTPExecutor struct {
	endpoint string
	client   *http.Client
}

// NewHTTP creates an executor for the backend at baseURL. A zero timeout
// leaves requests bounded only by their context.
func NewHTTP(baseURL string, timeout time.Duration) *HTTPExecutor {
	return &HTTPExecutor{
		endpoint: strings.TrimRight(baseURL, "/") + runConfigPath,
		client:   &http.Client{Timeout: timeout},
	}
}

// ExecuteChain implements Executor. Each chain goes out as its own
// single-branch /run-config call so chains time out and fail separately.
func (h *HTTPExecutor) ExecuteChain(ctx context.Context, req Request) (*Result, error) {
	outputs, err := h.RunConfig(ctx, req.Dataset, map[string][]pipeline.Stage{req.Branch: req.Stages})
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", req.Branch, err)
	}
	out, ok := outputs[req.Branch]
	if !ok || out == nil {
		return nil, fmt.Errorf("run %s: %w", req.Branch, ErrBranchMissing)
	}
	if out.Failed() {
		return nil, fmt.Errorf("run %s: backend reported failure: %s", req.Branch, out.Error)
	}
	res := out.Result
	return &res, nil
}

// RunConfig posts the dataset file and the chains map as a multipart form
// and returns the per-branch outputs.
func (h *HTTPExecutor) RunConfig(ctx context.Context, dataset string, chains map[string][]pipeline.Stage) (map[string]*BranchOutput, error) {
	chainsJSON, err := json.Marshal(chains)
	if err != nil {
		return nil, fmt.Errorf("encode chains: %w", err)
	}
	f, err := os.Open(dataset)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer f.Close()
		pw.CloseWithError(writeForm(mw, f, filepath.Base(dataset), chainsJSON))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, pr)
	if err != nil {
		pr.CloseWithError(err)
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := h.client.Do(httpReq)
	if err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("backend returned %d: %s", resp.StatusCode, errorMessage(resp.Body))
	}

	var body runConfigResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return body.Outputs, nil
}

func writeForm(mw *multipart.Writer, dataset io.Reader, name string, chains []byte) error {
	if err := mw.WriteField("chains", string(chains)); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("dataset", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, dataset); err != nil {
		return err
	}
	return mw.Close()
}

// errorMessage extracts {"message": "...", "details": "..."} from a failed
// response, falling back to the raw (truncated) body.
func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var env struct {
		Message string `json:"message"`
		Details string `json:"details"`
	}
	if json.Unmarshal(raw, &env) == nil && env.Message != "" {
		if env.Details != "" {
			return env.Message + ": " + env.Details
		}
		return env.Message
	}
	return strings.TrimSpace(string(raw))
}
