package pipeline

// Reachable reports whether id is connected to the source node by
// walking parent links upward.
func (g *Graph) Reachable(id string) bool {
	seen := make(map[string]struct{})
	for cur := id; ; {
		if cur == g.sourceID {
			return true
		}
		if _, ok := seen[cur]; ok {
			return false
		}
		seen[cur] = struct{}{}
		p, ok := g.parent[cur]
		if !ok {
			return false
		}
		cur = p
	}
}

// Role returns the role of id.
func (g *Graph) Role(id string) (Role, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return "", false
	}
	return n.Role, true
}

// hasModelAtOrAbove walks from id up to the source and reports whether
// any node on the way, id included, is a model stage.
func (g *Graph) hasModelAtOrAbove(id string) bool {
	seen := make(map[string]struct{})
	for cur := id; cur != ""; cur = g.parent[cur] {
		if _, ok := seen[cur]; ok {
			return false
		}
		seen[cur] = struct{}{}
		if n, ok := g.nodes[cur]; ok && n.Role == RoleModel {
			return true
		}
		if cur == g.sourceID {
			return false
		}
	}
	return false
}
