// Package arena implements tree.Allocator with a sync.Pool-backed slab
// allocator, so a forest fitting many trees back-to-back reuses each
// tree's Workspace instead of letting the builder allocate and discard one
// per call.
package arena

import (
	"context"
	"sync"

	"github.com/wlattner/batchtree/tree"
)

// Pool hands out *tree.Workspace values sized for one configuration. A
// Pool is safe for concurrent use by multiple goroutines fitting separate
// trees, matching the "many Builders, one read-only Input" concurrency
// model the forest package builds on.
type Pool struct {
	size tree.Size
	pool sync.Pool
}

// NewPool constructs a Pool whose Workspaces are all sized per size. Every
// Workspace Allocate returns (until Release) satisfies requests up to that
// size; Allocate never hands out a larger or unpooled Workspace, so a build
// that needs more than size gets tree.ErrWorkspaceTooSmall from Train.
func NewPool(size tree.Size) *Pool {
	p := &Pool{size: size}
	p.pool.New = func() any {
		return tree.NewWorkspace(size)
	}
	return p
}

// Allocate satisfies tree.Allocator. nFloat64/nInt32/nUint64 are accepted
// for interface compatibility with a lower-level byte-counting allocator
// but are not consulted here: the pool's Workspaces are already sized by
// the tree.Size passed to NewPool, which in turn comes from
// tree.WorkspaceSize over the forest's configuration.
func (p *Pool) Allocate(ctx context.Context, nFloat64, nInt32, nUint64 int) (*tree.Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.pool.Get().(*tree.Workspace), nil
}

// Release returns ws to the pool for reuse by the next Allocate call.
func (p *Pool) Release(ctx context.Context, ws *tree.Workspace) {
	p.pool.Put(ws)
}
