package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/flowcanvas/internal/catalog"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/config"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/pipeline"
)

var stages = []config.StageConf{
	{ID: "n1", Label: "Handle Missing Values", Category: "preprocessing"},
	{ID: "m1", Label: "KMeans", Category: "model"},
	{ID: "o1", Label: "Scatter Plot", Category: "output"},
}

func TestFromConfig(t *testing.T) {
	c, err := catalog.FromConfig(stages)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())

	e, ok := c.Lookup("m1")
	require.True(t, ok)
	assert.Equal(t, pipeline.CatalogEntry{ID: "m1", Label: "KMeans", Role: pipeline.RoleModel}, e)

	_, ok = c.Lookup("zz")
	assert.False(t, ok)

	ids := make([]string, 0, 3)
	for _, e := range c.Entries() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"n1", "m1", "o1"}, ids)
}

func TestFromConfig_Errors(t *testing.T) {
	_, err := catalog.FromConfig([]config.StageConf{{ID: "x", Label: "X", Category: "source"}})
	assert.Error(t, err)

	_, err = catalog.FromConfig(append(stages, config.StageConf{ID: "n1", Label: "Again", Category: "preprocessing"}))
	assert.ErrorContains(t, err, "duplicate")
}

func TestRegister_PanicsOnDuplicate(t *testing.T) {
	c := catalog.New()
	c.Register(pipeline.CatalogEntry{ID: "n1", Role: pipeline.RolePreprocessing})
	assert.Panics(t, func() {
		c.Register(pipeline.CatalogEntry{ID: "n1", Role: pipeline.RolePreprocessing})
	})
}

func TestLive_Swap(t *testing.T) {
	first, err := catalog.FromConfig(stages)
	require.NoError(t, err)
	live := catalog.NewLive(first)

	ed := pipeline.NewEditor("iris.csv", pipeline.WithCatalog(live))
	_, err = ed.AddNode("", "n9", true, pipeline.Position{})
	assert.ErrorIs(t, err, pipeline.ErrUnknownStageKind)

	second, err := catalog.FromConfig(append(stages, config.StageConf{ID: "n9", Label: "PCA", Category: "preprocessing"}))
	require.NoError(t, err)
	live.Swap(second)
	assert.Same(t, second, live.Current())

	res, err := ed.AddNode("", "n9", true, pipeline.Position{})
	require.NoError(t, err)
	n, _ := ed.Node(res.NodeID)
	assert.Equal(t, "PCA", n.Label)
}
