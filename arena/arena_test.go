package arena

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wlattner/batchtree/tree"
)

func TestPoolAllocateReturnsUsableWorkspace(t *testing.T) {
	size := tree.Size{MaxNodes: 16, NHistBins: 32}
	p := NewPool(size)

	ws, err := p.Allocate(context.Background(), 0, 0, 0)
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, 0, len(ws.Nodes))
}

func TestPoolReleaseAllowsReuse(t *testing.T) {
	size := tree.Size{MaxNodes: 8, NHistBins: 16}
	p := NewPool(size)

	ws, err := p.Allocate(context.Background(), 0, 0, 0)
	require.NoError(t, err)
	p.Release(context.Background(), ws)

	ws2, err := p.Allocate(context.Background(), 0, 0, 0)
	require.NoError(t, err)
	require.NotNil(t, ws2)
}

func TestPoolAllocateRespectsCancelledContext(t *testing.T) {
	p := NewPool(tree.Size{MaxNodes: 4, NHistBins: 4})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Allocate(ctx, 0, 0, 0)
	assert.Error(t, err)
}
