package pipeline

import (
	"fmt"
	"sort"
)

const (
	MainBranchText = "MAIN BRANCH"
	labelIDPrefix  = "label_"
	labelOffsetY   = 40
)

// Label is a derived annotation positioned above a branch head. Labels
// are recomputed from scratch on every structural change and are never
// stored in the graph.
type Label struct {
	ID           string   `json:"id"`
	NodeID       string   `json:"node_id"`
	Role         Role     `json:"role"`
	Text         string   `json:"text"`
	Number       int      `json:"number,omitempty"` // 0 for the main branch
	Main         bool     `json:"main"`
	Continuation bool     `json:"continuation"`
	Position     Position `json:"position"`
}

// Registry maps branch-head node ids to branch numbers. Numbers are
// always the smallest positive integers not currently in use.
type Registry struct {
	numbers map[string]int // head node id → number
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{numbers: make(map[string]int)}
}

// Number returns the branch number registered for a head node.
func (r *Registry) Number(nodeID string) (int, bool) {
	n, ok := r.numbers[nodeID]
	return n, ok
}

// Len returns the number of registered heads.
func (r *Registry) Len() int {
	return len(r.numbers)
}

// Snapshot returns a copy of the registry contents.
func (r *Registry) Snapshot() map[string]int {
	out := make(map[string]int, len(r.numbers))
	for k, v := range r.numbers {
		out[k] = v
	}
	return out
}

// Clear forgets every registered head.
func (r *Registry) Clear() {
	r.numbers = make(map[string]int)
}

// prune drops entries whose node no longer exists in g.
func (r *Registry) prune(g *Graph) {
	for id := range r.numbers {
		if !g.Has(id) {
			delete(r.numbers, id)
		}
	}
}

// assign gives every unregistered head the lowest free number, in order.
func (r *Registry) assign(heads []string) {
	used := make(map[int]struct{}, len(r.numbers))
	for _, n := range r.numbers {
		used[n] = struct{}{}
	}
	for _, id := range heads {
		if _, ok := r.numbers[id]; ok {
			continue
		}
		num := 1
		for {
			if _, taken := used[num]; !taken {
				break
			}
			num++
		}
		r.numbers[id] = num
		used[num] = struct{}{}
	}
}

// headScan is the result of one depth-first pass over the tree.
type headScan struct {
	heads         []string // nodes starting a newly numbered branch, in discovery order
	continuations []string // first children of custom splits, in discovery order
}

func scanHeads(g *Graph) headScan {
	var s headScan
	seen := make(map[string]struct{})

	var traverse func(id string, mainMode bool)
	traverse = func(id string, mainMode bool) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}

		children := g.children[id]
		if len(children) == 0 {
			return
		}
		if mainMode {
			for _, c := range children {
				if g.nodes[c].Locked {
					traverse(c, true)
					continue
				}
				s.heads = append(s.heads, c)
				traverse(c, false)
			}
			return
		}
		if len(children) == 1 {
			traverse(children[0], false)
			return
		}
		s.continuations = append(s.continuations, children[0])
		traverse(children[0], false)
		for _, c := range children[1:] {
			s.heads = append(s.heads, c)
			traverse(c, false)
		}
	}
	traverse(g.sourceID, true)
	return s
}

// RecomputeLabels discovers branch heads, updates the registry (pruning
// deleted heads, numbering new ones) and returns the full label set:
// the main label first, then registered heads by number, then
// continuation labels in discovery order.
func RecomputeLabels(g *Graph, reg *Registry) []Label {
	scan := scanHeads(g)
	reg.prune(g)
	reg.assign(scan.heads)

	var labels []Label
	labelled := make(map[string]struct{})
	add := func(l Label) {
		labels = append(labels, l)
		labelled[l.NodeID] = struct{}{}
	}

	for _, c := range g.children[g.sourceID] {
		if g.nodes[c].Locked {
			add(newLabel(g.nodes[c], MainBranchText, 0, true, false))
			break
		}
	}

	type numbered struct {
		id  string
		num int
	}
	regd := make([]numbered, 0, len(reg.numbers))
	for id, num := range reg.numbers {
		regd = append(regd, numbered{id, num})
	}
	sort.Slice(regd, func(i, j int) bool { return regd[i].num < regd[j].num })
	for _, h := range regd {
		if _, done := labelled[h.id]; done {
			continue
		}
		add(newLabel(g.nodes[h.id], branchText(h.num), h.num, false, false))
	}

	for _, id := range scan.continuations {
		if _, done := labelled[id]; done {
			continue
		}
		num, ok := inheritedNumber(g, reg, id)
		if !ok {
			continue
		}
		add(newLabel(g.nodes[id], branchText(num), num, false, true))
	}
	return labels
}

// inheritedNumber walks the ancestors of id until a registered head is
// found, stopping at the source node.
func inheritedNumber(g *Graph, reg *Registry, id string) (int, bool) {
	seen := make(map[string]struct{})
	cur, ok := g.parent[id]
	for ok && cur != g.sourceID {
		if _, loop := seen[cur]; loop {
			return 0, false
		}
		seen[cur] = struct{}{}
		if n, found := reg.numbers[cur]; found {
			return n, true
		}
		cur, ok = g.parent[cur]
	}
	return 0, false
}

func branchText(num int) string {
	return fmt.Sprintf("BRANCH %d", num)
}

func newLabel(head *Node, text string, num int, main, continuation bool) Label {
	return Label{
		ID:           labelIDPrefix + head.ID,
		NodeID:       head.ID,
		Role:         RoleBranchLabel,
		Text:         text,
		Number:       num,
		Main:         main,
		Continuation: continuation,
		Position:     Position{X: head.Position.X, Y: head.Position.Y - labelOffsetY},
	}
}
