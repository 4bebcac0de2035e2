package tree

import "sort"

// Input is the read-only quantized view over the training matrix: sampled
// rows, sampled columns, per-column quantile bin edges, and labels (class
// ids as float64 for classification, targets for regression).
//
// Data is stored one []float64 per column (column-major) rather than one
// []float64 per row; this makes "row-major input is rejected" a property
// NewInput can check structurally instead of a runtime scan: a caller
// holding row-major data has to transpose it before it fits this type at
// all.
type Input struct {
	Data      [][]float64 // Data[col][row], len(Data) == total columns in the matrix
	Labels    []float64
	RowIDs    []int32 // sampled row permutation, len == NSampledRows
	ColIDs    []int32 // sampled column subset, len == NSampledCols
	Quantiles [][]float64 // Quantiles[col][bin], upper edge of bin for col
	NClasses  int
}

// NewInput validates and constructs a quantized input view.
func NewInput(data [][]float64, labels []float64, rowIDs, colIDs []int32, quantiles [][]float64, nclasses int) (*Input, error) {
	if nclasses < 1 {
		return nil, ErrInvalidNClasses
	}
	if quantiles == nil {
		return nil, ErrMissingQuantiles
	}
	if len(data) == 0 {
		return nil, ErrRowMajorInput
	}

	nRows := len(labels)
	for _, col := range data {
		if len(col) != nRows {
			// A row-major [][]float64 transposed incorrectly (or never
			// transposed at all) will not have one entry per row in every
			// "column" slice; this is the structural check promised above.
			return nil, ErrRowMajorInput
		}
	}

	for _, colID := range colIDs {
		edges := quantiles[colID]
		if len(edges) == 0 {
			return nil, ErrEmptyQuantileColumn
		}
		for i := 1; i < len(edges); i++ {
			if edges[i] < edges[i-1] {
				return nil, ErrNonMonotoneQuantiles
			}
		}
	}

	return &Input{
		Data:      data,
		Labels:    labels,
		RowIDs:    rowIDs,
		ColIDs:    colIDs,
		Quantiles: quantiles,
		NClasses:  nclasses,
	}, nil
}

// NSampledRows returns the number of rows in play for this tree build.
func (in *Input) NSampledRows() int { return len(in.RowIDs) }

// NSampledCols returns the number of columns in play for this tree build.
func (in *Input) NSampledCols() int { return len(in.ColIDs) }

// NBins returns the number of quantile bins configured for col.
func (in *Input) NBins(col int32) int { return len(in.Quantiles[col]) }

// Bin bisects Quantiles[col] to find the bin index containing data[row][col].
// The returned index is in [0, NBins(col)), clamped to the last bin if the
// value exceeds every recorded edge.
func (in *Input) Bin(row int32, col int32) int {
	v := in.Data[col][row]
	edges := in.Quantiles[col]
	i := sort.Search(len(edges), func(i int) bool { return edges[i] >= v })
	if i >= len(edges) {
		i = len(edges) - 1
	}
	return i
}
