package pipeline

import "fmt"

// IncompleteKind names the completeness check that failed.
type IncompleteKind string

const (
	IncompleteOrphan   IncompleteKind = "orphan_node"
	IncompleteNoChains IncompleteKind = "no_chains"
	IncompleteNoOutput IncompleteKind = "missing_output"
	IncompleteNoModel  IncompleteKind = "missing_model"
)

// IncompleteError blocks a run. It names the offending node or chain so
// callers can highlight it.
type IncompleteError struct {
	Kind    IncompleteKind `json:"kind"`
	NodeID  string         `json:"node_id,omitempty"`
	Chain   string         `json:"chain,omitempty"`
	Message string         `json:"message"`
}

func (e *IncompleteError) Error() string {
	return e.Message
}

// ValidateCompleteness checks the global run invariants, stopping at the
// first failure: no orphan nodes, at least one chain, and every chain
// ending in an output stage and containing a model stage. It returns
// nil or an *IncompleteError.
func ValidateCompleteness(g *Graph, chains *ChainSet) error {
	for _, id := range g.order {
		if id == g.sourceID {
			continue
		}
		if !g.Reachable(id) {
			n := g.nodes[id]
			return &IncompleteError{
				Kind:    IncompleteOrphan,
				NodeID:  id,
				Message: fmt.Sprintf("Node %q is not part of a chain from the Dataset node.", n.Label),
			}
		}
	}

	if chains == nil || chains.Len() == 0 {
		return &IncompleteError{
			Kind:    IncompleteNoChains,
			Message: "No complete pipeline found. Connect your nodes from the Dataset to an Output.",
		}
	}

	for _, c := range chains.chains {
		last := c.Stages[len(c.Stages)-1]
		if last.Role != RoleOutput {
			return &IncompleteError{
				Kind:    IncompleteNoOutput,
				Chain:   c.Name,
				NodeID:  last.ID,
				Message: fmt.Sprintf("Incomplete Branch: %q must end with an Output node.", c.Name),
			}
		}
		hasModel := false
		for _, s := range c.Stages {
			if s.Role == RoleModel {
				hasModel = true
				break
			}
		}
		if !hasModel {
			return &IncompleteError{
				Kind:    IncompleteNoModel,
				Chain:   c.Name,
				Message: fmt.Sprintf("Missing Model: %q does not contain a Machine Learning Model.", c.Name),
			}
		}
	}
	return nil
}
