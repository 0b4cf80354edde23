package api

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/flowcanvas/internal/catalog"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/config"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/pipeline"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/session"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/store"
)

const overloadThreshold = 0.8

// QueueMonitor reports dispatch queue pressure for the readiness probe.
type QueueMonitor interface {
	QueueUtilization() float64
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	sessions *session.Manager
	catalog  *catalog.Live
	queue    QueueMonitor
	loader   *config.Loader
	mux      *http.ServeMux
}

// New creates an HTTP handler and registers all routes. loader may be nil,
// in which case catalog reload is unavailable.
func New(sessions *session.Manager, cat *catalog.Live, queue QueueMonitor, loader *config.Loader) http.Handler {
	h := &Handler{sessions: sessions, catalog: cat, queue: queue, loader: loader, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/workspaces", h.createWorkspace)
	h.mux.HandleFunc("GET /v1/workspaces/{id}", h.getWorkspace)
	h.mux.HandleFunc("DELETE /v1/workspaces/{id}", h.deleteWorkspace)
	h.mux.HandleFunc("POST /v1/workspaces/{id}/reset", h.resetWorkspace)
	h.mux.HandleFunc("POST /v1/workspaces/{id}/main", h.installMain)
	h.mux.HandleFunc("POST /v1/workspaces/{id}/nodes", h.addNode)
	h.mux.HandleFunc("DELETE /v1/workspaces/{id}/nodes/{nodeID}", h.deleteNode)
	h.mux.HandleFunc("PUT /v1/workspaces/{id}/nodes/{nodeID}/position", h.moveNode)
	h.mux.HandleFunc("POST /v1/workspaces/{id}/edges", h.connect)
	h.mux.HandleFunc("DELETE /v1/workspaces/{id}/edges/{source}/{target}", h.disconnect)
	h.mux.HandleFunc("POST /v1/workspaces/{id}/clear", h.clear)
	h.mux.HandleFunc("GET /v1/workspaces/{id}/chains", h.listChains)
	h.mux.HandleFunc("POST /v1/workspaces/{id}/run", h.run)
	h.mux.HandleFunc("GET /v1/workspaces/{id}/runs", h.listRuns)
	h.mux.HandleFunc("GET /v1/runs/{runID}", h.getRun)
	h.mux.HandleFunc("GET /v1/catalog", h.listCatalog)
	h.mux.HandleFunc("POST /v1/catalog/reload", h.reloadCatalog)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

type datasetRequest struct {
	Dataset      string `json:"dataset" validate:"required"`
	DatasetLabel string `json:"dataset_label"`
}

type stageRequest struct {
	StageKind string `json:"stage_kind" validate:"required"`
	Label     string `json:"label"`
}

type installMainRequest struct {
	Stages []stageRequest `json:"stages" validate:"required,min=1,dive"`
}

type addNodeRequest struct {
	StageKind string  `json:"stage_kind" validate:"required"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

type positionRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type connectRequest struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// incompleteResponse is returned when a run is blocked by an incomplete pipeline.
type incompleteResponse struct {
	Error string                    `json:"error"`
	Issue *pipeline.IncompleteError `json:"issue"`
}

func (h *Handler) workspace(w http.ResponseWriter, r *http.Request) (*session.Workspace, bool) {
	ws, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return ws, true
}

// writeEdit maps an edit outcome to a response: 200 when applied, 422 with
// the violation and unchanged view when rejected.
func writeEdit(w http.ResponseWriter, res pipeline.EditResult, err error) {
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if res.Violation != nil {
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrNodeNotFound),
		errors.Is(err, pipeline.ErrEdgeNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, store.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrUnknownStageKind),
		errors.Is(err, pipeline.ErrInvalidRole),
		errors.Is(err, pipeline.ErrUnknownOp),
		errors.Is(err, session.ErrNoDataset),
		errors.Is(err, session.ErrNoCustomBranches):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// POST /v1/workspaces — open a workspace for a dataset.
func (h *Handler) createWorkspace(w http.ResponseWriter, r *http.Request) {
	var req datasetRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ws := h.sessions.Create(req.Dataset, req.DatasetLabel)
	writeJSON(w, http.StatusCreated, ws.Snapshot())
}

// GET /v1/workspaces/{id}
func (h *Handler) getWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.Snapshot())
}

// DELETE /v1/workspaces/{id}
func (h *Handler) deleteWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /v1/workspaces/{id}/reset — replace the dataset and clear the canvas.
func (h *Handler) resetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var req datasetRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := ws.Reset(req.Dataset, req.DatasetLabel)
	writeEdit(w, res, err)
}

// POST /v1/workspaces/{id}/main — install the upstream main branch.
func (h *Handler) installMain(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var req installMainRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	specs := make([]pipeline.StageSpec, len(req.Stages))
	for i, s := range req.Stages {
		specs[i] = pipeline.StageSpec{StageKind: s.StageKind, Label: s.Label}
	}
	res, err := ws.Apply(pipeline.Op{Kind: pipeline.OpInstallMain, Main: specs})
	writeEdit(w, res, err)
}

// POST /v1/workspaces/{id}/nodes — drop a catalog stage onto the canvas.
func (h *Handler) addNode(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var req addNodeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := ws.Apply(pipeline.Op{
		Kind:      pipeline.OpAddNode,
		StageKind: req.StageKind,
		Position:  pipeline.Position{X: req.X, Y: req.Y},
	})
	writeEdit(w, res, err)
}

// DELETE /v1/workspaces/{id}/nodes/{nodeID}
func (h *Handler) deleteNode(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	res, err := ws.Apply(pipeline.Op{Kind: pipeline.OpDeleteNode, NodeID: r.PathValue("nodeID")})
	writeEdit(w, res, err)
}

// PUT /v1/workspaces/{id}/nodes/{nodeID}/position
func (h *Handler) moveNode(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var req positionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := ws.Apply(pipeline.Op{
		Kind:     pipeline.OpMoveNode,
		NodeID:   r.PathValue("nodeID"),
		Position: pipeline.Position{X: req.X, Y: req.Y},
	})
	writeEdit(w, res, err)
}

// POST /v1/workspaces/{id}/edges — validate and commit a connection.
func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var req connectRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := ws.Apply(pipeline.Op{Kind: pipeline.OpConnect, Source: req.Source, Target: req.Target})
	writeEdit(w, res, err)
}

// DELETE /v1/workspaces/{id}/edges/{source}/{target} — detach target's subtree.
func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	res, err := ws.Apply(pipeline.Op{
		Kind:   pipeline.OpDisconnect,
		Source: r.PathValue("source"),
		Target: r.PathValue("target"),
	})
	writeEdit(w, res, err)
}

// POST /v1/workspaces/{id}/clear — keep the dataset node, drop everything else.
func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	res, err := ws.Apply(pipeline.Op{Kind: pipeline.OpClear})
	writeEdit(w, res, err)
}

// GET /v1/workspaces/{id}/chains — preview the named chains.
func (h *Handler) listChains(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chains": ws.Chains(),
	})
}

// POST /v1/workspaces/{id}/run — validate and dispatch the custom chains.
func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	run, err := h.sessions.Run(r.Context(), r.PathValue("id"))
	var inc *pipeline.IncompleteError
	switch {
	case errors.As(err, &inc):
		writeJSON(w, http.StatusUnprocessableEntity, incompleteResponse{Error: inc.Message, Issue: inc})
	case err != nil:
		writeError(w, statusFor(err), err.Error())
	default:
		writeJSON(w, http.StatusOK, run)
	}
}

// GET /v1/workspaces/{id}/runs
func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.sessions.Runs(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// GET /v1/runs/{runID}
func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.sessions.GetRun(r.Context(), r.PathValue("runID"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GET /v1/catalog — list the stage kinds that can be dropped on a canvas.
func (h *Handler) listCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stages": h.catalog.Current().Entries(),
	})
}

// POST /v1/catalog/reload — re-read the config file and swap the catalog.
func (h *Handler) reloadCatalog(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		writeError(w, http.StatusNotImplemented, "config reload is not available")
		return
	}
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := config.Validate(cfg); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	cat, err := catalog.FromConfig(cfg.Catalog)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.catalog.Swap(cat)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded":     true,
		"stages_count": cat.Len(),
	})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 if the dispatch queue is more than 80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.queue.QueueUtilization()
	if util > overloadThreshold {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
		"workspaces":        h.sessions.Len(),
	})
}
