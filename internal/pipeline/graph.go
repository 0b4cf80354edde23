package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrNodeNotFound   = errors.New("pipeline: node not found")
	ErrDuplicateNode  = errors.New("pipeline: duplicate node id")
	ErrInvalidRole    = errors.New("pipeline: invalid node role")
	ErrTargetHasInput = errors.New("pipeline: target already has an incoming edge")
	ErrEdgeNotFound   = errors.New("pipeline: edge not found")
)

// Graph holds stage nodes and their parent→children adjacency list.
// Every node has at most one parent, so the edge set is always a forest
// whose only legitimate root is the source node.
type Graph struct {
	sourceID string
	nodes    map[string]*Node    // id → Node
	order    []string            // node ids in insertion order
	children map[string][]string // parent id → ordered children
	parent   map[string]string   // child id → parent id
}

// NewGraph allocates a Graph holding only the given source node.
func NewGraph(source Node) *Graph {
	g := &Graph{}
	g.Reset(source)
	return g
}

// Reset discards every node and edge and installs source as the root.
func (g *Graph) Reset(source Node) {
	source.Role = RoleSource
	source.StageKind = ""
	source.Locked = true
	g.sourceID = source.ID
	g.nodes = map[string]*Node{source.ID: &source}
	g.order = []string{source.ID}
	g.children = make(map[string][]string)
	g.parent = make(map[string]string)
}

// SourceID returns the id of the root node.
func (g *Graph) SourceID() string {
	return g.sourceID
}

// AddNode registers a new stage node.
func (g *Graph) AddNode(n Node) error {
	switch n.Role {
	case RolePreprocessing, RoleModel, RoleOutput:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRole, n.Role)
	}
	if _, ok := g.nodes[n.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	g.nodes[n.ID] = &n
	g.order = append(g.order, n.ID)
	return nil
}

// RemoveNode deletes a node together with every edge touching it.
// The source node cannot be removed; use Reset instead.
func (g *Graph) RemoveNode(id string) error {
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if id == g.sourceID {
		return fmt.Errorf("pipeline: source node %s cannot be removed", id)
	}
	g.RemoveEdgesTouching(id)
	delete(g.nodes, id)
	for i, oid := range g.order {
		if oid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return nil
}

// AddEdge records source → target. It enforces only the store-level
// single-parent invariant; structural rules live in ValidateConnection.
func (g *Graph) AddEdge(source, target string) error {
	if _, ok := g.nodes[source]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, source)
	}
	if _, ok := g.nodes[target]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, target)
	}
	if _, ok := g.parent[target]; ok {
		return fmt.Errorf("%w: %s", ErrTargetHasInput, target)
	}
	g.children[source] = append(g.children[source], target)
	g.parent[target] = source
	return nil
}

// RemoveEdge deletes source → target. The target keeps its subtree.
func (g *Graph) RemoveEdge(source, target string) error {
	if _, ok := g.nodes[source]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, source)
	}
	if _, ok := g.nodes[target]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, target)
	}
	if p, ok := g.parent[target]; !ok || p != source {
		return fmt.Errorf("%w: %s -> %s", ErrEdgeNotFound, source, target)
	}
	g.detach(target)
	return nil
}

// detach drops the incoming edge of id, if any.
func (g *Graph) detach(id string) {
	p, ok := g.parent[id]
	if !ok {
		return
	}
	siblings := g.children[p]
	for i, c := range siblings {
		if c == id {
			g.children[p] = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}
	if len(g.children[p]) == 0 {
		delete(g.children, p)
	}
	delete(g.parent, id)
}

// RemoveEdgesTouching drops the incoming edge of id and all its outgoing edges.
func (g *Graph) RemoveEdgesTouching(id string) {
	g.detach(id)
	for _, c := range g.children[id] {
		delete(g.parent, c)
	}
	delete(g.children, id)
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Has reports whether id names a node in the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// SetPosition moves a node on the canvas.
func (g *Graph) SetPosition(id string, pos Position) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	n.Position = pos
	return nil
}

// Parent returns the source of the single incoming edge of id, if any.
func (g *Graph) Parent(id string) (string, bool) {
	p, ok := g.parent[id]
	return p, ok
}

// Children returns the direct successors of id in insertion order.
func (g *Graph) Children(id string) []string {
	c := g.children[id]
	out := make([]string, len(c))
	copy(out, c)
	return out
}

// Nodes returns copies of all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.nodes[id])
	}
	return out
}

// Edges returns every edge, grouped by parent in node insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.parent))
	for _, id := range g.order {
		for _, c := range g.children[id] {
			out = append(out, Edge{Source: id, Target: c})
		}
	}
	return out
}

// NodeCount returns the total number of nodes including the source.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}
