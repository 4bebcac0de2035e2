package objective

import "math"

// Entropy implements information-gain splitting.
type Entropy struct {
	MinSamplesLeaf      int
	MinImpurityDecrease float64
}

func NewEntropy(minSamplesLeaf int, minImpurityDecrease float64) *Entropy {
	return &Entropy{MinSamplesLeaf: minSamplesLeaf, MinImpurityDecrease: minImpurityDecrease}
}

func xlogx(count, total int64) float64 {
	if count == 0 {
		return 0
	}
	p := float64(count) / float64(total)
	return -p * math.Log2(p)
}

// Gain evaluates every candidate bin boundary and returns the best by
// information gain: parent entropy minus the sample-weighted average of the
// child entropies. As in Gini, the parent term depends only on
// classTotals, so it is computed once up front and reused across bins.
func (e *Entropy) Gain(hist ClassHist, classTotals []int64, nSamples int) Candidate {
	n := int64(nSamples)

	var parentEntropy float64
	for _, total := range classTotals {
		parentEntropy += xlogx(total, n)
	}

	left := make([]int64, hist.NClasses)
	best := noCandidate()

	var nLeft int64
	for b, counts := range hist.Bins {
		for c, ct := range counts {
			left[c] += ct
			nLeft += ct
		}
		nRight := n - nLeft

		var leftEntropy, rightEntropy float64
		for c := range left {
			leftEntropy += xlogx(left[c], nLeft)
			rightEntropy += xlogx(classTotals[c]-left[c], nRight)
		}

		var weighted float64
		if nLeft > 0 {
			weighted += float64(nLeft) / float64(n) * leftEntropy
		}
		if nRight > 0 {
			weighted += float64(nRight) / float64(n) * rightEntropy
		}
		gain := parentEntropy - weighted

		if g, ok := guards(nLeft, nRight, int64(e.MinSamplesLeaf), gain, e.MinImpurityDecrease); ok {
			if g > best.Gain {
				best = Candidate{BinIndex: b, Gain: g, NLeft: nLeft}
			}
		}
	}

	return best
}
