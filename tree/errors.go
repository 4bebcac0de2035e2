package tree

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel errors for misconfiguration and resource failures. Worker-pool
// failures are surfaced by wrapping whatever error the failing goroutine
// returned, via pkgerrors.Wrap at the call site in builder.go, rather than
// a fixed sentinel here.
var (
	ErrRowMajorInput          = errors.New("batchtree: tree: input data must be column-major")
	ErrMissingQuantiles       = errors.New("batchtree: tree: quantile bin edges are required")
	ErrInvalidNClasses        = errors.New("batchtree: tree: nclasses must be >= 1")
	ErrInvalidNBins           = errors.New("batchtree: tree: n_bins must be >= 1")
	ErrUnknownCriterion       = errors.New("batchtree: tree: unknown split criterion")
	ErrInvalidMaxBatchSize    = errors.New("batchtree: tree: max_batch_size must be > 0")
	ErrInvalidMinSamplesSplit = errors.New("batchtree: tree: min_samples_split must be >= 2")
	ErrInvalidMinSamplesLeaf  = errors.New("batchtree: tree: min_samples_leaf must be >= 1")
	ErrWorkspaceTooSmall      = errors.New("batchtree: tree: workspace too small for requested batch")
	ErrEmptyQuantileColumn    = errors.New("batchtree: tree: quantile column has no bin edges")
	ErrNonMonotoneQuantiles   = errors.New("batchtree: tree: quantile bin edges must be non-decreasing")
)

// wrap adds caller context to an error from a failing goroutine, using
// github.com/pkg/errors rather than fmt.Errorf's %w.
func wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, msg)
}
