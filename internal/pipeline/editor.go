package pipeline

import (
	"errors"
	"fmt"
)

// SourceNodeID is the fixed id of the dataset (source) node.
const SourceNodeID = "dataset-node"

var (
	ErrUnknownStageKind = errors.New("pipeline: unknown stage kind")
	ErrUnknownOp        = errors.New("pipeline: unknown edit op")
)

// CatalogEntry describes one catalog stage.
type CatalogEntry struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Role  Role   `json:"category"`
}

// Catalog resolves a stage kind to its display label and role.
type Catalog interface {
	Lookup(stageKind string) (CatalogEntry, bool)
}

// OpKind discriminates edit operations.
type OpKind string

const (
	OpAddNode     OpKind = "add_node"
	OpDeleteNode  OpKind = "delete_node"
	OpConnect     OpKind = "connect"
	OpDisconnect  OpKind = "disconnect"
	OpMoveNode    OpKind = "move_node"
	OpReset       OpKind = "reset"
	OpClear       OpKind = "clear"
	OpInstallMain OpKind = "install_main"
)

// StageSpec names one stage of an upstream main-branch result.
type StageSpec struct {
	StageKind string `json:"stage_kind"`
	Role      Role   `json:"role,omitempty"`
	Label     string `json:"label,omitempty"`
}

// Op is a single edit request. Which fields are read depends on Kind.
type Op struct {
	Kind      OpKind
	NodeID    string      // delete, move
	Role      Role        // add; optional when a catalog resolves StageKind
	StageKind string      // add
	Label     string      // add (optional), reset (dataset label)
	Locked    bool        // add
	Position  Position    // add, move
	Source    string      // connect, disconnect
	Target    string      // connect, disconnect
	Main      []StageSpec // install_main
}

// View is an immutable snapshot of the editor state.
type View struct {
	Nodes     []Node  `json:"nodes"`
	Edges     []Edge  `json:"edges"`
	Labels    []Label `json:"labels"`
	MainReady bool    `json:"main_ready"`
}

// EditResult is the outcome of Apply. When Violation is set the edit was
// rejected and the graph is unchanged.
type EditResult struct {
	Op        OpKind         `json:"op"`
	Applied   bool           `json:"applied"`
	NodeID    string         `json:"node_id,omitempty"`
	Violation *RuleViolation `json:"violation,omitempty"`
	View      View           `json:"view"`
}

// RunPlan is the answer to a run request: either the named chains or the
// completeness failure blocking the run.
type RunPlan struct {
	Chains     *ChainSet
	Incomplete *IncompleteError
}

// Editor owns one pipeline graph, its branch number registry and the
// current label projection. It is not safe for concurrent use; callers
// serialise access.
type Editor struct {
	graph     *Graph
	registry  *Registry
	labels    []Label
	mainReady bool
	catalog   Catalog
	newID     func(stageKind string) string
	seq       int
}

// Option configures an Editor.
type Option func(*Editor)

// WithCatalog makes AddNode and InstallMainBranch resolve stage kinds
// through c.
func WithCatalog(c Catalog) Option {
	return func(e *Editor) { e.catalog = c }
}

// WithIDFunc overrides node id generation.
func WithIDFunc(fn func(stageKind string) string) Option {
	return func(e *Editor) { e.newID = fn }
}

// NewEditor creates an editor holding only a source node for the dataset.
func NewEditor(datasetLabel string, opts ...Option) *Editor {
	e := &Editor{registry: NewRegistry()}
	e.newID = e.sequentialID
	for _, o := range opts {
		o(e)
	}
	e.graph = NewGraph(sourceNode(datasetLabel))
	return e
}

func sourceNode(datasetLabel string) Node {
	label := "Dataset"
	if datasetLabel != "" {
		label = "Dataset: " + datasetLabel
	}
	return Node{ID: SourceNodeID, Role: RoleSource, Label: label, Locked: true}
}

func (e *Editor) sequentialID(stageKind string) string {
	e.seq++
	return fmt.Sprintf("%s_%d", stageKind, e.seq)
}

// Apply performs one edit and recomputes the label projection.
func (e *Editor) Apply(op Op) (EditResult, error) {
	res := EditResult{Op: op.Kind}
	var (
		v   *RuleViolation
		err error
	)
	switch op.Kind {
	case OpAddNode:
		res.NodeID, v, err = e.addNode(op)
	case OpDeleteNode:
		v, err = e.deleteNode(op.NodeID)
	case OpConnect:
		v, err = e.connect(op.Source, op.Target)
	case OpDisconnect:
		v, err = e.disconnect(op.Source, op.Target)
	case OpMoveNode:
		err = e.graph.SetPosition(op.NodeID, op.Position)
	case OpReset:
		e.reset(sourceNode(op.Label))
	case OpClear:
		src, _ := e.graph.Node(e.graph.SourceID())
		e.reset(src)
	case OpInstallMain:
		v, err = e.installMain(op.Main)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownOp, op.Kind)
	}
	if err != nil {
		return res, err
	}
	res.Violation = v
	res.Applied = v == nil
	if res.Applied {
		e.relabel()
	}
	res.View = e.View()
	return res, nil
}

// AddNode inserts an unconnected stage node.
func (e *Editor) AddNode(role Role, stageKind string, locked bool, pos Position) (EditResult, error) {
	return e.Apply(Op{Kind: OpAddNode, Role: role, StageKind: stageKind, Locked: locked, Position: pos})
}

// DeleteNode removes a node and every edge touching it.
func (e *Editor) DeleteNode(id string) (EditResult, error) {
	return e.Apply(Op{Kind: OpDeleteNode, NodeID: id})
}

// Connect validates and commits source → target.
func (e *Editor) Connect(source, target string) (EditResult, error) {
	return e.Apply(Op{Kind: OpConnect, Source: source, Target: target})
}

// Disconnect removes source → target, leaving target's subtree detached.
func (e *Editor) Disconnect(source, target string) (EditResult, error) {
	return e.Apply(Op{Kind: OpDisconnect, Source: source, Target: target})
}

// MoveNode changes the presentation position of a node.
func (e *Editor) MoveNode(id string, pos Position) (EditResult, error) {
	return e.Apply(Op{Kind: OpMoveNode, NodeID: id, Position: pos})
}

// Reset replaces the dataset, clearing every other node and edge.
func (e *Editor) Reset(datasetLabel string) (EditResult, error) {
	return e.Apply(Op{Kind: OpReset, Label: datasetLabel})
}

// Clear keeps the dataset node and drops everything else.
func (e *Editor) Clear() (EditResult, error) {
	return e.Apply(Op{Kind: OpClear})
}

// InstallMainBranch replaces the graph with a locked linear chain built
// from an upstream result and enables custom branching.
func (e *Editor) InstallMainBranch(stages []StageSpec) (EditResult, error) {
	return e.Apply(Op{Kind: OpInstallMain, Main: stages})
}

func (e *Editor) resolve(role Role, stageKind, label string) (Role, string, error) {
	if e.catalog != nil {
		entry, ok := e.catalog.Lookup(stageKind)
		if !ok {
			return "", "", fmt.Errorf("%w: %q", ErrUnknownStageKind, stageKind)
		}
		if role != "" && role != entry.Role {
			return "", "", fmt.Errorf("pipeline: stage kind %q is a %s stage, not %s", stageKind, entry.Role, role)
		}
		if label == "" {
			label = entry.Label
		}
		return entry.Role, label, nil
	}
	if role == "" {
		return "", "", fmt.Errorf("%w: role required for stage kind %q", ErrInvalidRole, stageKind)
	}
	if label == "" {
		label = stageKind
	}
	return role, label, nil
}

func (e *Editor) addNode(op Op) (string, *RuleViolation, error) {
	role, label, err := e.resolve(op.Role, op.StageKind, op.Label)
	if err != nil {
		return "", nil, err
	}
	if !op.Locked && !e.mainReady {
		return "", &RuleViolation{
			Rule:   RuleMainBranchMissing,
			Reason: "Main Branch not found! Please run Normal/Domain preprocessing first.",
		}, nil
	}
	n := Node{
		ID:        e.newID(op.StageKind),
		Role:      role,
		StageKind: op.StageKind,
		Label:     label,
		Locked:    op.Locked,
		Position:  op.Position,
	}
	if err := e.graph.AddNode(n); err != nil {
		return "", nil, err
	}
	return n.ID, nil, nil
}

func (e *Editor) deleteNode(id string) (*RuleViolation, error) {
	n, ok := e.graph.Node(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if id == e.graph.SourceID() {
		return &RuleViolation{Rule: RuleSourceNode, NodeID: id,
			Reason: "The Dataset node cannot be deleted."}, nil
	}
	if n.Locked {
		return &RuleViolation{Rule: RuleLockedNode, NodeID: id,
			Reason: fmt.Sprintf("Node %q belongs to the main branch and cannot be deleted.", n.Label)}, nil
	}
	return nil, e.graph.RemoveNode(id)
}

func (e *Editor) connect(source, target string) (*RuleViolation, error) {
	err := ValidateConnection(e.graph, source, target)
	var v *RuleViolation
	if errors.As(err, &v) {
		return v, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, e.graph.AddEdge(source, target)
}

func (e *Editor) disconnect(source, target string) (*RuleViolation, error) {
	n, ok := e.graph.Node(target)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, target)
	}
	if n.Locked {
		return &RuleViolation{Rule: RuleLockedNode, NodeID: target, Source: source, Target: target,
			Reason: fmt.Sprintf("Node %q belongs to the main branch and cannot be disconnected.", n.Label)}, nil
	}
	return nil, e.graph.RemoveEdge(source, target)
}

func (e *Editor) reset(source Node) {
	e.graph.Reset(source)
	e.registry.Clear()
	e.mainReady = false
}

// Main-branch nodes are laid out left to right from the dataset node.
const (
	mainSpacingX = 350
	mainRowY     = 100
)

func (e *Editor) installMain(specs []StageSpec) (*RuleViolation, error) {
	src, _ := e.graph.Node(e.graph.SourceID())
	g := NewGraph(src)
	prev := g.SourceID()
	for i, s := range specs {
		role, label, err := e.resolve(s.Role, s.StageKind, s.Label)
		if err != nil {
			return nil, fmt.Errorf("main branch stage %d: %w", i, err)
		}
		n := Node{
			ID:        e.newID(s.StageKind),
			Role:      role,
			StageKind: s.StageKind,
			Label:     label,
			Locked:    true,
			Position:  Position{X: float64(i+1) * mainSpacingX, Y: mainRowY},
		}
		if err := g.AddNode(n); err != nil {
			return nil, fmt.Errorf("main branch stage %d: %w", i, err)
		}
		err = ValidateConnection(g, prev, n.ID)
		var v *RuleViolation
		if errors.As(err, &v) {
			v.Reason = fmt.Sprintf("Main branch stage %d (%s): %s", i, s.StageKind, v.Reason)
			return v, nil
		}
		if err != nil {
			return nil, err
		}
		if err := g.AddEdge(prev, n.ID); err != nil {
			return nil, err
		}
		prev = n.ID
	}
	e.graph = g
	e.registry.Clear()
	e.mainReady = true
	return nil, nil
}

func (e *Editor) relabel() {
	if !e.mainReady {
		e.labels = nil
		return
	}
	e.labels = RecomputeLabels(e.graph, e.registry)
}

// Labels returns the current label projection.
func (e *Editor) Labels() []Label {
	out := make([]Label, len(e.labels))
	copy(out, e.labels)
	return out
}

// MainReady reports whether a main branch has been installed.
func (e *Editor) MainReady() bool {
	return e.mainReady
}

// Registry returns a copy of the head → branch number mapping.
func (e *Editor) Registry() map[string]int {
	return e.registry.Snapshot()
}

// Node returns a copy of the node with the given id.
func (e *Editor) Node(id string) (Node, bool) {
	return e.graph.Node(id)
}

// View returns a snapshot of nodes, edges and labels.
func (e *Editor) View() View {
	return View{
		Nodes:     e.graph.Nodes(),
		Edges:     e.graph.Edges(),
		Labels:    e.Labels(),
		MainReady: e.mainReady,
	}
}

// Chains extracts the named chains of the current graph.
func (e *Editor) Chains() *ChainSet {
	return ExtractChains(e.graph, e.labels)
}

// Run validates the pipeline and returns its named chains, or the
// completeness failure that blocks dispatch.
func (e *Editor) Run() RunPlan {
	chains := e.Chains()
	err := ValidateCompleteness(e.graph, chains)
	var inc *IncompleteError
	if errors.As(err, &inc) {
		return RunPlan{Incomplete: inc}
	}
	return RunPlan{Chains: chains}
}
