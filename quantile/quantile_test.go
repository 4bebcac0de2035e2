package quantile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantilesProducesNondecreasingEdges(t *testing.T) {
	data := [][]float64{
		{5, 1, 4, 2, 3, 9, 8, 7, 6, 0},
	}
	p := Provider{}
	edges, err := p.Quantiles(context.Background(), data, 4)
	require.NoError(t, err)
	require.Len(t, edges, 1)

	col := edges[0]
	for i := 1; i < len(col); i++ {
		assert.GreaterOrEqual(t, col[i], col[i-1])
	}
	assert.Equal(t, 9.0, col[len(col)-1])
}

func TestQuantilesCollapsesDuplicatesForConstantColumn(t *testing.T) {
	data := [][]float64{
		{3, 3, 3, 3, 3},
	}
	p := Provider{}
	edges, err := p.Quantiles(context.Background(), data, 8)
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, edges[0])
}

func TestQuantilesRejectsInvalidNBins(t *testing.T) {
	p := Provider{}
	_, err := p.Quantiles(context.Background(), [][]float64{{1, 2}}, 0)
	assert.Error(t, err)
}
