// Package objective implements the plug-in impurity-gain family: Gini and
// Entropy for classification, MSE, MAE, and Poisson deviance for regression.
// Each objective maps a per-column histogram to a single best candidate bin;
// the search goroutines call Gain once per (node, column) pair at the
// "evaluate" step, never inside the per-row accumulate loop, so there is no
// dynamic dispatch in the hot path.
package objective

import "math"

// Candidate is the result of evaluating one column's histogram: the best
// bin to split at (or BinIndex == -1, Gain == -Inf if no candidate bin
// cleared the guards), and the number of samples that land left of it.
type Candidate struct {
	BinIndex int
	Gain     float64
	NLeft    int64
}

func noCandidate() Candidate {
	return Candidate{BinIndex: -1, Gain: math.Inf(-1)}
}

// guards applies the two checks every objective shares: reject a bin whose
// children would be too small, and reject a gain that doesn't clear the
// configured improvement threshold.
func guards(nLeft, nRight int64, minSamplesLeaf int64, gain, minImpurityDecrease float64) (float64, bool) {
	if nLeft < minSamplesLeaf || nRight < minSamplesLeaf {
		return math.Inf(-1), false
	}
	if gain <= minImpurityDecrease {
		return math.Inf(-1), false
	}
	return gain, true
}

// ClassHist is one column's raw per-bin class-count histogram for one node,
// Bins[bin][class]. The cumulative left/right view is derived inside Gain
// via a running prefix sum, bin by bin.
type ClassHist struct {
	Bins     [][]int64
	NClasses int
}

// ClassificationFunction is the Gini/Entropy contract.
type ClassificationFunction interface {
	Gain(hist ClassHist, classTotals []int64, nSamples int) Candidate
}

// RegHist is one column's raw per-bin regression accumulators for one node:
// LabelSum[bin] and CountSum[bin] are the sums landing in that bin (not yet
// a cumulative/CDF view — Gain computes the running prefix sum itself).
// LabelLogSum is only populated (and only consulted by Poisson) when the
// caller needs Poisson deviance; MSE and MAE ignore it.
type RegHist struct {
	LabelSum    []float64
	CountSum    []int64
	LabelLogSum []float64
}

// RegressionFunction is the MSE/MAE/Poisson contract.
type RegressionFunction interface {
	Gain(hist RegHist, labelSum float64, labelLogSum float64, nSamples int) Candidate
}
