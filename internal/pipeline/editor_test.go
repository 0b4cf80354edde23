package pipeline_test

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/flowcanvas/internal/pipeline"
)

func TestEditor_NewEditorSourceNode(t *testing.T) {
	ed := pipeline.NewEditor("")
	v := ed.View()
	require.Len(t, v.Nodes, 1)
	assert.Equal(t, pipeline.SourceNodeID, v.Nodes[0].ID)
	assert.Equal(t, "Dataset", v.Nodes[0].Label)
	assert.Equal(t, pipeline.RoleSource, v.Nodes[0].Role)
	assert.False(t, v.MainReady)
}

func TestEditor_InstallMainBranchLayout(t *testing.T) {
	f := newMainFixture(t)
	assert.True(t, f.ed.MainReady())

	v := f.ed.View()
	assert.Equal(t, []pipeline.Edge{
		{Source: pipeline.SourceNodeID, Target: f.prep},
		{Source: f.prep, Target: f.model},
		{Source: f.model, Target: f.output},
	}, v.Edges)

	for i, id := range []string{f.prep, f.model, f.output} {
		n, ok := f.ed.Node(id)
		require.True(t, ok)
		assert.True(t, n.Locked)
		assert.Equal(t, pipeline.Position{X: float64(i+1) * 350, Y: 100}, n.Position)
	}
	out, _ := f.ed.Node(f.output)
	assert.Equal(t, "Scatter Plot", out.Label)
}

func TestEditor_InstallMainBranchRejected(t *testing.T) {
	cases := []struct {
		name   string
		stages []pipeline.StageSpec
		rule   pipeline.Rule
	}{
		{"repeated kind", []pipeline.StageSpec{{StageKind: "n1"}, {StageKind: "n1"}}, pipeline.RuleDuplicateStageKind},
		{"preprocessing after model", []pipeline.StageSpec{{StageKind: "m1"}, {StageKind: "n1"}}, pipeline.RulePreprocessingAfterModel},
		{"two models", []pipeline.StageSpec{{StageKind: "m1"}, {StageKind: "m2"}}, pipeline.RuleSingleModel},
		{"stage after output", []pipeline.StageSpec{{StageKind: "o1"}, {StageKind: "o2"}}, pipeline.RuleOutputTerminal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ed := pipeline.NewEditor("iris.csv", pipeline.WithCatalog(testCatalog))
			res, err := ed.InstallMainBranch(tc.stages)
			require.NoError(t, err)
			require.NotNil(t, res.Violation)
			assert.False(t, res.Applied)
			assert.Equal(t, tc.rule, res.Violation.Rule)
			assert.True(t, strings.HasPrefix(res.Violation.Reason, "Main branch stage 1"))
			assert.False(t, ed.MainReady())
			assert.Len(t, ed.View().Nodes, 1)
		})
	}
}

func TestEditor_InstallMainBranchUnknownKind(t *testing.T) {
	ed := pipeline.NewEditor("iris.csv", pipeline.WithCatalog(testCatalog))
	_, err := ed.InstallMainBranch([]pipeline.StageSpec{{StageKind: "zz"}})
	assert.ErrorIs(t, err, pipeline.ErrUnknownStageKind)
	assert.False(t, ed.MainReady())
}

func TestEditor_ReinstallMainBranchDropsCustomWork(t *testing.T) {
	f := newMainFixture(t)
	f.attach(t, pipeline.SourceNodeID, "n2")

	res, err := f.ed.InstallMainBranch([]pipeline.StageSpec{{StageKind: "n3"}, {StageKind: "m2"}, {StageKind: "o2"}})
	require.NoError(t, err)
	require.True(t, res.Applied)
	assert.Len(t, res.View.Nodes, 4)
	assert.Empty(t, f.ed.Registry())
	require.Len(t, res.View.Labels, 1)
	assert.True(t, res.View.Labels[0].Main)
}

func TestEditor_AddNodeResolvesCatalog(t *testing.T) {
	f := newMainFixture(t)
	res, err := f.ed.AddNode("", "m2", false, pipeline.Position{X: 5, Y: 6})
	require.NoError(t, err)
	require.True(t, res.Applied)

	n, ok := f.ed.Node(res.NodeID)
	require.True(t, ok)
	assert.Equal(t, pipeline.RoleModel, n.Role)
	assert.Equal(t, "DBSCAN", n.Label)
	assert.Equal(t, pipeline.Position{X: 5, Y: 6}, n.Position)
	assert.False(t, n.Locked)

	_, err = f.ed.AddNode(pipeline.RoleOutput, "m2", false, pipeline.Position{})
	assert.Error(t, err)

	_, err = f.ed.AddNode("", "nope", false, pipeline.Position{})
	assert.ErrorIs(t, err, pipeline.ErrUnknownStageKind)
}

func TestEditor_WithoutCatalogRequiresRole(t *testing.T) {
	ed := pipeline.NewEditor("iris.csv", pipeline.WithIDFunc(func(kind string) string { return "fixed-" + kind }))
	_, err := ed.AddNode("", "n1", true, pipeline.Position{})
	assert.ErrorIs(t, err, pipeline.ErrInvalidRole)

	res, err := ed.AddNode(pipeline.RolePreprocessing, "n1", true, pipeline.Position{})
	require.NoError(t, err)
	assert.Equal(t, "fixed-n1", res.NodeID)
	n, _ := ed.Node("fixed-n1")
	assert.Equal(t, "n1", n.Label)
}

func TestEditor_DeleteNode(t *testing.T) {
	f := newMainFixture(t)
	h := f.attach(t, pipeline.SourceNodeID, "n2")
	child := f.attach(t, h, "m2")

	res, err := f.ed.DeleteNode(pipeline.SourceNodeID)
	require.NoError(t, err)
	require.NotNil(t, res.Violation)
	assert.Equal(t, pipeline.RuleSourceNode, res.Violation.Rule)

	before := f.ed.View()
	res, err = f.ed.DeleteNode(f.model)
	require.NoError(t, err)
	require.NotNil(t, res.Violation)
	assert.Equal(t, pipeline.RuleLockedNode, res.Violation.Rule)
	assert.Equal(t, f.model, res.Violation.NodeID)
	assert.Contains(t, res.Violation.Reason, "KMeans")
	assert.Equal(t, before, res.View)

	res, err = f.ed.DeleteNode(h)
	require.NoError(t, err)
	require.True(t, res.Applied)
	_, ok := f.ed.Node(h)
	assert.False(t, ok)
	for _, e := range res.View.Edges {
		assert.NotEqual(t, h, e.Source)
		assert.NotEqual(t, h, e.Target)
	}
	_, ok = f.ed.Node(child)
	assert.True(t, ok, "children survive as orphans")

	_, err = f.ed.DeleteNode("missing")
	assert.ErrorIs(t, err, pipeline.ErrNodeNotFound)
}

func TestEditor_Disconnect(t *testing.T) {
	f := newMainFixture(t)
	h1 := f.attach(t, pipeline.SourceNodeID, "n2")
	h2 := f.attach(t, pipeline.SourceNodeID, "n3")
	child := f.attach(t, h1, "m2")
	require.Equal(t, map[string]int{h1: 1, h2: 2}, f.ed.Registry())

	res, err := f.ed.Disconnect(h1, child)
	require.NoError(t, err)
	require.True(t, res.Applied)
	_, hasParent := parentOf(res.View, child)
	assert.False(t, hasParent)
	_, ok := f.ed.Node(child)
	assert.True(t, ok, "the detached node is kept")

	// A detached head keeps its number while off the tree.
	res, err = f.ed.Disconnect(pipeline.SourceNodeID, h1)
	require.NoError(t, err)
	require.True(t, res.Applied)
	h3 := f.attach(t, pipeline.SourceNodeID, "n4")
	assert.Equal(t, map[string]int{h1: 1, h2: 2, h3: 3}, f.ed.Registry())

	f.connect(t, pipeline.SourceNodeID, h1)
	l, ok := labelFor(f.ed.Labels(), h1)
	require.True(t, ok)
	assert.Equal(t, "BRANCH 1", l.Text)
}

func TestEditor_DisconnectRejected(t *testing.T) {
	f := newMainFixture(t)
	h := f.attach(t, pipeline.SourceNodeID, "n2")
	before := f.ed.View()

	res, err := f.ed.Disconnect(f.prep, f.model)
	require.NoError(t, err)
	require.NotNil(t, res.Violation)
	assert.False(t, res.Applied)
	assert.Equal(t, pipeline.RuleLockedNode, res.Violation.Rule)
	assert.Equal(t, before, res.View)

	_, err = f.ed.Disconnect(f.prep, h)
	assert.ErrorIs(t, err, pipeline.ErrEdgeNotFound)
	_, err = f.ed.Disconnect(pipeline.SourceNodeID, "missing")
	assert.ErrorIs(t, err, pipeline.ErrNodeNotFound)
	_, err = f.ed.Disconnect("missing", h)
	assert.ErrorIs(t, err, pipeline.ErrNodeNotFound)
	assert.Equal(t, before, f.ed.View())
}

func parentOf(v pipeline.View, id string) (string, bool) {
	for _, e := range v.Edges {
		if e.Target == id {
			return e.Source, true
		}
	}
	return "", false
}

func TestEditor_ConnectUnknownNode(t *testing.T) {
	f := newMainFixture(t)
	_, err := f.ed.Connect(f.prep, "missing")
	assert.ErrorIs(t, err, pipeline.ErrNodeNotFound)
}

func TestEditor_MoveUnknownNode(t *testing.T) {
	f := newMainFixture(t)
	_, err := f.ed.MoveNode("missing", pipeline.Position{})
	assert.ErrorIs(t, err, pipeline.ErrNodeNotFound)
}

func TestEditor_UnknownOp(t *testing.T) {
	f := newMainFixture(t)
	_, err := f.ed.Apply(pipeline.Op{Kind: "rotate"})
	assert.ErrorIs(t, err, pipeline.ErrUnknownOp)
}

func TestEditor_Clear(t *testing.T) {
	f := newMainFixture(t)
	f.attach(t, pipeline.SourceNodeID, "n2")

	res, err := f.ed.Clear()
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Len(t, res.View.Nodes, 1)
	assert.Equal(t, "Dataset: iris.csv", res.View.Nodes[0].Label)
	assert.Empty(t, res.View.Edges)
	assert.Empty(t, res.View.Labels)
	assert.False(t, res.View.MainReady)
	assert.Empty(t, f.ed.Registry())
}

func TestEditor_RejectedEditLeavesLabels(t *testing.T) {
	f := newMainFixture(t)
	h := f.attach(t, pipeline.SourceNodeID, "m2")
	loose := f.add(t, "n2")
	before := f.ed.Labels()

	res, err := f.ed.Connect(h, loose)
	require.NoError(t, err)
	require.NotNil(t, res.Violation)
	assert.Equal(t, before, res.View.Labels)
	assert.Equal(t, before, f.ed.Labels())
}

// TestEditor_RandomEditsKeepInvariants drives the editor with a long
// seeded sequence of unlocked edits and checks the structural properties
// after each one.
func TestEditor_RandomEditsKeepInvariants(t *testing.T) {
	kinds := make([]string, 0, len(testCatalog))
	for k := range testCatalog {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	for seed := int64(1); seed <= 5; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			f := newMainFixture(t)

			for step := 0; step < 300; step++ {
				ids := nodeIDs(f.ed.View())
				switch r := rng.Intn(10); {
				case r < 4:
					_, err := f.ed.AddNode("", kinds[rng.Intn(len(kinds))], false, pipeline.Position{})
					require.NoError(t, err)
				case r < 8:
					_, err := f.ed.Connect(ids[rng.Intn(len(ids))], ids[rng.Intn(len(ids))])
					require.NoError(t, err)
				case r < 9:
					edges := f.ed.View().Edges
					e := edges[rng.Intn(len(edges))]
					_, err := f.ed.Disconnect(e.Source, e.Target)
					require.NoError(t, err)
				default:
					_, err := f.ed.DeleteNode(ids[rng.Intn(len(ids))])
					require.NoError(t, err)
				}
				checkInvariants(t, f.ed)
			}
		})
	}
}

func nodeIDs(v pipeline.View) []string {
	out := make([]string, len(v.Nodes))
	for i, n := range v.Nodes {
		out[i] = n.ID
	}
	return out
}

func checkInvariants(t *testing.T, ed *pipeline.Editor) {
	t.Helper()
	v := ed.View()

	parent := make(map[string]string, len(v.Edges))
	for _, e := range v.Edges {
		_, dup := parent[e.Target]
		require.False(t, dup, "node %s has two inputs", e.Target)
		require.NotEqual(t, pipeline.SourceNodeID, e.Target)
		parent[e.Target] = e.Source
	}
	for _, n := range v.Nodes {
		steps := 0
		for cur, ok := parent[n.ID]; ok; cur, ok = parent[cur] {
			steps++
			require.LessOrEqual(t, steps, len(v.Nodes), "cycle through %s", n.ID)
		}
	}

	labelText := make(map[string]string, len(v.Labels))
	for _, l := range v.Labels {
		labelText[l.NodeID] = l.Text
	}
	nums := make(map[int]string)
	for id, n := range ed.Registry() {
		require.Positive(t, n)
		other, taken := nums[n]
		require.False(t, taken, "heads %s and %s share number %d", id, other, n)
		nums[n] = id
	}

	for _, c := range ed.Chains().Chains() {
		require.False(t, strings.HasPrefix(c.Name, "branch_unknown_"), "chain %q fell back", c.Name)
		if c.Name == pipeline.MainChain {
			continue
		}
		nearest := ""
		for i := len(c.Stages) - 1; i >= 0; i-- {
			if text, ok := labelText[c.Stages[i].ID]; ok {
				nearest = pipeline.NormalizeLabel(text)
				break
			}
		}
		require.Equal(t, nearest, c.Name)

		kinds := make(map[string]struct{})
		models := 0
		for _, s := range c.Stages {
			_, dup := kinds[s.StageKind]
			require.False(t, dup, "chain %q repeats %s", c.Name, s.StageKind)
			kinds[s.StageKind] = struct{}{}
			if s.Role == pipeline.RoleModel {
				models++
			}
		}
		require.LessOrEqual(t, models, 1)
	}
}
