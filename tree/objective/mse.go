package objective

// MSE implements variance-reduction splitting for regression.
type MSE struct {
	MinSamplesLeaf      int
	MinImpurityDecrease float64
}

func NewMSE(minSamplesLeaf int, minImpurityDecrease float64) *MSE {
	return &MSE{MinSamplesLeaf: minSamplesLeaf, MinImpurityDecrease: minImpurityDecrease}
}

// Gain evaluates every candidate bin boundary and returns the one that most
// reduces sum-of-squares error, using the standard sufficient statistic
// (sum, count) rather than per-row residuals: for a partition with sum S
// and count n, SSE = Σ(y-mean)² = (ΣY²... ) simplifies, via the identity
// Σ(y - S/n)² = ΣY² - S²/n, to just S²/n once ΣY² is itself constant across
// candidate splits (it's a property of the full node, not of any one side).
// term tracks the S²/n piece only, which is equivalent to tracking full SSE
// since the ΣY² term cancels out of the left-right-parent comparison; the
// result is then divided by n_samples to match every other objective's
// per-sample normalization.
func (m *MSE) Gain(hist RegHist, labelSum float64, labelLogSum float64, nSamples int) Candidate {
	n := float64(nSamples)
	parentTerm := labelSum * labelSum / n

	best := noCandidate()
	var sumLeft float64
	var nLeft int64

	for b := range hist.LabelSum {
		sumLeft += hist.LabelSum[b]
		nLeft += hist.CountSum[b]
		nRight := int64(nSamples) - nLeft
		sumRight := labelSum - sumLeft

		var term float64
		if nLeft > 0 {
			term += sumLeft * sumLeft / float64(nLeft)
		}
		if nRight > 0 {
			term += sumRight * sumRight / float64(nRight)
		}
		gain := (term - parentTerm) / n

		if g, ok := guards(nLeft, nRight, int64(m.MinSamplesLeaf), gain, m.MinImpurityDecrease); ok {
			if g > best.Gain {
				best = Candidate{BinIndex: b, Gain: g, NLeft: nLeft}
			}
		}
	}

	return best
}
