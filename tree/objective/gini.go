package objective

// Gini implements the Gini-impurity split-gain objective.
type Gini struct {
	MinSamplesLeaf      int
	MinImpurityDecrease float64
}

func NewGini(minSamplesLeaf int, minImpurityDecrease float64) *Gini {
	return &Gini{MinSamplesLeaf: minSamplesLeaf, MinImpurityDecrease: minImpurityDecrease}
}

// Gain evaluates every candidate bin boundary in hist and returns the best.
//
//	gain_i = Σ_class (lval²/nLeft + rval²/nRight)/n − Σ_class ((lval+rval)/n)²
//
// the second term is constant across bins (it only depends on the column's
// per-class totals for this node), so it is hoisted out of the per-bin loop.
func (g *Gini) Gain(hist ClassHist, classTotals []int64, nSamples int) Candidate {
	n := float64(nSamples)

	var parentTerm float64
	for _, total := range classTotals {
		frac := float64(total) / n
		parentTerm += frac * frac
	}

	left := make([]int64, hist.NClasses)
	best := noCandidate()

	var nLeft int64
	for b, counts := range hist.Bins {
		for c, ct := range counts {
			left[c] += ct
			nLeft += ct
		}
		nRight := int64(nSamples) - nLeft

		var sumTerm float64
		for c := range left {
			lval := float64(left[c])
			rval := float64(classTotals[c]) - lval
			if nLeft > 0 {
				sumTerm += (lval * lval) / float64(nLeft)
			}
			if nRight > 0 {
				sumTerm += (rval * rval) / float64(nRight)
			}
		}
		gain := sumTerm/n - parentTerm

		if g2, ok := guards(nLeft, nRight, int64(g.MinSamplesLeaf), gain, g.MinImpurityDecrease); ok {
			if g2 > best.Gain {
				best = Candidate{BinIndex: b, Gain: g2, NLeft: nLeft}
			}
		}
	}

	return best
}
