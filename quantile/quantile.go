// Package quantile computes per-column histogram bin edges from sampled
// training data, the quantization step that turns raw float64 columns into
// the bounded-cardinality bins the tree package's histogram search assumes.
package quantile

import (
	"context"
	"errors"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Provider implements tree.QuantileProvider using percentile-based bin
// edges: nBins-1 interior cut points at evenly spaced percentiles of each
// column's sorted values, plus a final edge at the column's maximum so
// every value in range maps to some bin.
type Provider struct{}

// Quantiles computes bin edges for every column in data. data is
// column-major (data[col][row]), matching tree.Input's layout.
func (Provider) Quantiles(ctx context.Context, data [][]float64, nBins int) ([][]float64, error) {
	if nBins < 1 {
		return nil, errInvalidNBins
	}

	edges := make([][]float64, len(data))
	for c, col := range data {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		edges[c] = columnEdges(col, nBins)
	}
	return edges, nil
}

// columnEdges sorts a copy of col and reads off nBins evenly spaced
// quantiles via gonum/stat, collapsing duplicate edges from heavily
// repeated values down to a single bin boundary.
func columnEdges(col []float64, nBins int) []float64 {
	if len(col) == 0 {
		return nil
	}

	sorted := make([]float64, len(col))
	copy(sorted, col)
	sort.Float64s(sorted)

	edges := make([]float64, 0, nBins)
	for b := 1; b <= nBins; b++ {
		p := float64(b) / float64(nBins)
		edges = append(edges, stat.Quantile(p, stat.Empirical, sorted, nil))
	}

	return dedupe(edges)
}

// dedupe collapses consecutive equal edges, which show up whenever a
// column has fewer distinct values than the configured bin count.
func dedupe(edges []float64) []float64 {
	if len(edges) == 0 {
		return edges
	}
	out := edges[:1]
	for _, e := range edges[1:] {
		if e != out[len(out)-1] {
			out = append(out, e)
		}
	}
	return out
}

var errInvalidNBins = errors.New("quantile: n_bins must be >= 1")
