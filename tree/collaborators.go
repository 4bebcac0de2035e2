package tree

import "context"

// Allocator provides pre-sized Workspace values to a Builder. The core
// package only consumes this interface; arena.Pool is the concrete
// sync.Pool-backed implementation a forest fit uses to reuse Workspaces
// across trees instead of allocating one per Train call.
type Allocator interface {
	Allocate(ctx context.Context, nFloat64, nInt32, nUint64 int) (*Workspace, error)
	Release(ctx context.Context, ws *Workspace)
}

// QuantileProvider computes per-column histogram bin edges from training
// data. quantile.Provider is the concrete implementation, backed by
// gonum/stat order statistics.
type QuantileProvider interface {
	Quantiles(ctx context.Context, data [][]float64, nBins int) ([][]float64, error)
}

// Sampler draws the row and column subsets one tree in a forest trains on.
// sampler.Bootstrap is the concrete implementation.
type Sampler interface {
	Sample(ctx context.Context, nRows, nCols int, maxFeatures float64, bootstrap bool) (rowIDs, colIDs []int32)
}
