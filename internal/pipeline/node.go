package pipeline

import "fmt"

// Role discriminates the kinds of stage nodes in a pipeline tree.
type Role string

const (
	RoleSource        Role = "source"
	RolePreprocessing Role = "preprocessing"
	RoleModel         Role = "model"
	RoleOutput        Role = "output"
	// RoleBranchLabel is only ever carried by Label projections; the
	// graph store refuses nodes with this role.
	RoleBranchLabel Role = "branch_label"
)

// ParseRole maps a catalog category string onto a stage role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePreprocessing, RoleModel, RoleOutput:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown stage role %q", s)
}

// Position is the presentation coordinate of a node on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a vertex of the pipeline tree.
type Node struct {
	ID        string   `json:"id"`
	Role      Role     `json:"role"`
	StageKind string   `json:"stage_kind,omitempty"` // catalog identity; empty for the source
	Label     string   `json:"label"`
	Locked    bool     `json:"locked"`
	Position  Position `json:"position"`
}

// Edge is a directed connection between two node ids.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Stage is the descriptor of one node inside an extracted chain.
type Stage struct {
	ID        string `json:"id"`
	StageKind string `json:"baseId"`
	Label     string `json:"label"`
	Role      Role   `json:"type"`
	Locked    bool   `json:"isLocked"`
}

func stageOf(n *Node) Stage {
	return Stage{
		ID:        n.ID,
		StageKind: n.StageKind,
		Label:     n.Label,
		Role:      n.Role,
		Locked:    n.Locked,
	}
}
