package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/flowcanvas/internal/pipeline"
)

func newTestGraph(t *testing.T) *pipeline.Graph {
	t.Helper()
	g := pipeline.NewGraph(pipeline.Node{ID: "src", Label: "Dataset"})
	for _, n := range []pipeline.Node{
		{ID: "a", Role: pipeline.RolePreprocessing, StageKind: "n1"},
		{ID: "b", Role: pipeline.RolePreprocessing, StageKind: "n2"},
		{ID: "c", Role: pipeline.RoleModel, StageKind: "m1"},
	} {
		require.NoError(t, g.AddNode(n))
	}
	return g
}

func TestGraph_NewGraphForcesSourceRole(t *testing.T) {
	g := pipeline.NewGraph(pipeline.Node{ID: "src", Role: pipeline.RoleModel, StageKind: "x"})
	src, ok := g.Node("src")
	require.True(t, ok)
	assert.Equal(t, pipeline.RoleSource, src.Role)
	assert.Empty(t, src.StageKind)
	assert.True(t, src.Locked)
	assert.Equal(t, "src", g.SourceID())
	assert.Equal(t, 1, g.NodeCount())
}

func TestGraph_AddNode(t *testing.T) {
	g := newTestGraph(t)
	assert.Equal(t, 4, g.NodeCount())

	err := g.AddNode(pipeline.Node{ID: "a", Role: pipeline.RoleOutput})
	assert.ErrorIs(t, err, pipeline.ErrDuplicateNode)

	err = g.AddNode(pipeline.Node{ID: "z", Role: pipeline.RoleSource})
	assert.ErrorIs(t, err, pipeline.ErrInvalidRole)

	err = g.AddNode(pipeline.Node{ID: "z", Role: pipeline.RoleBranchLabel})
	assert.ErrorIs(t, err, pipeline.ErrInvalidRole)
}

func TestGraph_EdgesAndChildrenOrder(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.AddEdge("src", "b"))
	require.NoError(t, g.AddEdge("src", "a"))
	require.NoError(t, g.AddEdge("a", "c"))

	assert.Equal(t, []string{"b", "a"}, g.Children("src"))
	p, ok := g.Parent("c")
	require.True(t, ok)
	assert.Equal(t, "a", p)
	_, ok = g.Parent("src")
	assert.False(t, ok)

	assert.Equal(t, []pipeline.Edge{
		{Source: "src", Target: "b"},
		{Source: "src", Target: "a"},
		{Source: "a", Target: "c"},
	}, g.Edges())

	// Mutating the returned slice must not leak into the store.
	kids := g.Children("src")
	kids[0] = "zzz"
	assert.Equal(t, []string{"b", "a"}, g.Children("src"))
}

func TestGraph_AddEdgeErrors(t *testing.T) {
	g := newTestGraph(t)
	assert.ErrorIs(t, g.AddEdge("dne", "a"), pipeline.ErrNodeNotFound)
	assert.ErrorIs(t, g.AddEdge("a", "dne"), pipeline.ErrNodeNotFound)

	require.NoError(t, g.AddEdge("src", "a"))
	assert.ErrorIs(t, g.AddEdge("b", "a"), pipeline.ErrTargetHasInput)
}

func TestGraph_RemoveNodeCascades(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.AddEdge("src", "a"))
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("a", "c"))

	require.NoError(t, g.RemoveNode("a"))
	assert.False(t, g.Has("a"))
	assert.Empty(t, g.Children("src"))
	assert.Empty(t, g.Edges())
	_, ok := g.Parent("b")
	assert.False(t, ok)
	assert.False(t, g.Reachable("b"))

	assert.ErrorIs(t, g.RemoveNode("a"), pipeline.ErrNodeNotFound)
	assert.Error(t, g.RemoveNode("src"))
}

func TestGraph_RemoveEdgesTouching(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.AddEdge("src", "a"))
	require.NoError(t, g.AddEdge("src", "b"))
	require.NoError(t, g.AddEdge("a", "c"))

	g.RemoveEdgesTouching("a")
	assert.True(t, g.Has("a"))
	assert.Equal(t, []string{"b"}, g.Children("src"))
	assert.Empty(t, g.Children("a"))
	assert.Equal(t, []pipeline.Edge{{Source: "src", Target: "b"}}, g.Edges())
}

func TestGraph_RemoveEdge(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.AddEdge("src", "a"))
	require.NoError(t, g.AddEdge("src", "b"))
	require.NoError(t, g.AddEdge("a", "c"))

	require.NoError(t, g.RemoveEdge("src", "a"))
	assert.Equal(t, []string{"b"}, g.Children("src"))
	assert.Equal(t, []string{"c"}, g.Children("a"), "the subtree stays attached to its root")
	_, ok := g.Parent("a")
	assert.False(t, ok)
	assert.False(t, g.Reachable("c"))

	assert.ErrorIs(t, g.RemoveEdge("src", "a"), pipeline.ErrEdgeNotFound)
	assert.ErrorIs(t, g.RemoveEdge("b", "c"), pipeline.ErrEdgeNotFound)
	assert.ErrorIs(t, g.RemoveEdge("src", "dne"), pipeline.ErrNodeNotFound)
	assert.ErrorIs(t, g.RemoveEdge("dne", "a"), pipeline.ErrNodeNotFound)
}

func TestGraph_Reset(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.AddEdge("src", "a"))

	g.Reset(pipeline.Node{ID: "src2", Label: "Dataset: iris.csv"})
	assert.Equal(t, 1, g.NodeCount())
	assert.Equal(t, "src2", g.SourceID())
	assert.Empty(t, g.Edges())
	assert.False(t, g.Has("a"))
}

func TestGraph_ReachableAndRole(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.AddEdge("src", "a"))
	require.NoError(t, g.AddEdge("a", "c"))

	assert.True(t, g.Reachable("src"))
	assert.True(t, g.Reachable("c"))
	assert.False(t, g.Reachable("b"))
	assert.False(t, g.Reachable("missing"))

	r, ok := g.Role("c")
	require.True(t, ok)
	assert.Equal(t, pipeline.RoleModel, r)
	_, ok = g.Role("missing")
	assert.False(t, ok)
}

func TestParseRole(t *testing.T) {
	for _, s := range []string{"preprocessing", "model", "output"} {
		r, err := pipeline.ParseRole(s)
		require.NoError(t, err)
		assert.Equal(t, pipeline.Role(s), r)
	}
	_, err := pipeline.ParseRole("source")
	assert.Error(t, err)
}
