package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/flowcanvas/internal/pipeline"
)

type mapCatalog map[string]pipeline.CatalogEntry

func (c mapCatalog) Lookup(kind string) (pipeline.CatalogEntry, bool) {
	e, ok := c[kind]
	return e, ok
}

var testCatalog = mapCatalog{
	"n1": {ID: "n1", Label: "Handle Missing Values", Role: pipeline.RolePreprocessing},
	"n2": {ID: "n2", Label: "Scaling", Role: pipeline.RolePreprocessing},
	"n3": {ID: "n3", Label: "Encoding", Role: pipeline.RolePreprocessing},
	"n4": {ID: "n4", Label: "PCA", Role: pipeline.RolePreprocessing},
	"n5": {ID: "n5", Label: "Binning", Role: pipeline.RolePreprocessing},
	"n6": {ID: "n6", Label: "Log Transform", Role: pipeline.RolePreprocessing},
	"m1": {ID: "m1", Label: "KMeans", Role: pipeline.RoleModel},
	"m2": {ID: "m2", Label: "DBSCAN", Role: pipeline.RoleModel},
	"m3": {ID: "m3", Label: "Birch", Role: pipeline.RoleModel},
	"o1": {ID: "o1", Label: "Scatter Plot", Role: pipeline.RoleOutput},
	"o2": {ID: "o2", Label: "Labeled Dataset", Role: pipeline.RoleOutput},
}

// mainFixture is an editor whose main branch is dataset → n1 → m1 → o1.
type mainFixture struct {
	ed                  *pipeline.Editor
	prep, model, output string
}

func newMainFixture(t *testing.T) *mainFixture {
	t.Helper()
	ed := pipeline.NewEditor("iris.csv", pipeline.WithCatalog(testCatalog))
	res, err := ed.InstallMainBranch([]pipeline.StageSpec{
		{StageKind: "n1"}, {StageKind: "m1"}, {StageKind: "o1"},
	})
	require.NoError(t, err)
	require.Nil(t, res.Violation)
	require.Len(t, res.View.Nodes, 4)

	f := &mainFixture{ed: ed}
	for _, n := range res.View.Nodes {
		switch n.StageKind {
		case "n1":
			f.prep = n.ID
		case "m1":
			f.model = n.ID
		case "o1":
			f.output = n.ID
		}
	}
	return f
}

// add inserts an unlocked node and returns its id.
func (f *mainFixture) add(t *testing.T, kind string) string {
	t.Helper()
	res, err := f.ed.Apply(pipeline.Op{Kind: pipeline.OpAddNode, StageKind: kind})
	require.NoError(t, err)
	require.Nil(t, res.Violation)
	require.NotEmpty(t, res.NodeID)
	return res.NodeID
}

// connect commits an edge that must be admitted.
func (f *mainFixture) connect(t *testing.T, source, target string) {
	t.Helper()
	res, err := f.ed.Connect(source, target)
	require.NoError(t, err)
	require.Nil(t, res.Violation, "connect %s -> %s", source, target)
}

// attach adds a node of kind and connects it under parent.
func (f *mainFixture) attach(t *testing.T, parent, kind string) string {
	t.Helper()
	id := f.add(t, kind)
	f.connect(t, parent, id)
	return id
}

func labelFor(labels []pipeline.Label, nodeID string) (pipeline.Label, bool) {
	for _, l := range labels {
		if l.NodeID == nodeID {
			return l, true
		}
	}
	return pipeline.Label{}, false
}
