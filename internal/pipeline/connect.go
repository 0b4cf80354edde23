package pipeline

import "fmt"

// Rule names a structural rule an edit can violate.
type Rule string

const (
	RuleNoMerge                 Rule = "no_merge"
	RuleIntoSource              Rule = "into_source"
	RuleDetachedSource          Rule = "detached_source"
	RulePreprocessingAfterModel Rule = "preprocessing_after_model"
	RuleSingleModel             Rule = "single_model"
	RuleOutputTerminal          Rule = "output_terminal"
	RuleDuplicateStageKind      Rule = "duplicate_stage_kind"

	// Edit rules outside the connection rule set.
	RuleLockedNode        Rule = "locked_node"
	RuleSourceNode        Rule = "source_node"
	RuleMainBranchMissing Rule = "main_branch_missing"
)

// RuleViolation is an expected rejection of an edit. The graph is left
// unchanged whenever one is returned.
type RuleViolation struct {
	Rule   Rule   `json:"rule"`
	Reason string `json:"reason"`
	NodeID string `json:"node_id,omitempty"`
	Source string `json:"source,omitempty"`
	Target string `json:"target,omitempty"`
}

func (v *RuleViolation) Error() string {
	return v.Reason
}

func connViolation(rule Rule, source, target, reason string) *RuleViolation {
	return &RuleViolation{Rule: rule, Reason: reason, Source: source, Target: target}
}

// ValidateConnection decides whether source → target may be added.
// It returns nil when the edge is admissible, a *RuleViolation when a
// structural rule rejects it, or a wrapped ErrNodeNotFound when either
// id does not exist. Rules are checked in order; the first failure wins.
func ValidateConnection(g *Graph, source, target string) error {
	src, ok := g.nodes[source]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, source)
	}
	tgt, ok := g.nodes[target]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, target)
	}

	// A self-edge would revisit the node's own stage kind.
	if source == target {
		return connViolation(RuleDuplicateStageKind, source, target,
			"Same module cannot appear twice in the same branch.")
	}

	if _, has := g.parent[target]; has {
		return connViolation(RuleNoMerge, source, target,
			"Branches cannot merge! A node can only have one input.")
	}
	if target == g.sourceID {
		return connViolation(RuleIntoSource, source, target,
			"Cannot connect into the Dataset node.")
	}
	if !g.Reachable(source) {
		return connViolation(RuleDetachedSource, source, target,
			"Source must be connected to the Dataset first.")
	}

	if tgt.Role == RolePreprocessing {
		if src.Role == RoleModel {
			return connViolation(RulePreprocessingAfterModel, source, target,
				"Cannot place Preprocessing after a Model.")
		}
		if g.hasModelAtOrAbove(source) {
			return connViolation(RulePreprocessingAfterModel, source, target,
				"This branch already has a Model upstream. Preprocessing must come before the model.")
		}
	}

	if tgt.Role == RoleModel {
		if src.Role == RoleModel {
			return connViolation(RuleSingleModel, source, target,
				"Only one Model allowed per branch.")
		}
		if g.hasModelAtOrAbove(source) {
			return connViolation(RuleSingleModel, source, target,
				"This branch already has a Model upstream. Only one model allowed.")
		}
	}

	if src.Role == RoleOutput {
		return connViolation(RuleOutputTerminal, source, target,
			fmt.Sprintf("Output nodes (%q) must be the end of a pipeline.", src.Label))
	}

	if g.duplicateKindOnAnyPath(Edge{Source: source, Target: target}) {
		return connViolation(RuleDuplicateStageKind, source, target,
			"Same module cannot appear twice in the same branch.")
	}
	return nil
}

// duplicateKindOnAnyPath walks every path from the source node through
// the graph as if extra had already been added, and reports whether a
// single path visits two nodes sharing a stage kind.
func (g *Graph) duplicateKindOnAnyPath(extra Edge) bool {
	var dfs func(id string, used map[string]struct{}, depth int) bool
	dfs = func(id string, used map[string]struct{}, depth int) bool {
		// A path longer than the node count can only be a cycle.
		if depth > len(g.nodes) {
			return false
		}
		kind := g.nodes[id].StageKind
		if kind != "" {
			if _, dup := used[kind]; dup {
				return true
			}
			used[kind] = struct{}{}
			defer delete(used, kind)
		}
		for _, c := range g.children[id] {
			if dfs(c, used, depth+1) {
				return true
			}
		}
		if id == extra.Source {
			return dfs(extra.Target, used, depth+1)
		}
		return false
	}
	return dfs(g.sourceID, make(map[string]struct{}), 0)
}
