package objective

import "math"

// MAE implements mean-absolute-error splitting for regression.
//
// Exact MAE reduction needs the median of each candidate partition, which
// in turn needs the partition's raw values — information a per-bin
// histogram of (sum, count) pairs has already discarded. MAE approximates
// the per-partition absolute deviation instead: each bin's mean stands in
// for the values that landed in it, and the deviation of that mean from the
// partition mean is weighted by the bin's count. This costs a second pass
// over the bins for every candidate split (bins² per column per node,
// against bins for every other objective here), which is why MAE is the
// one criterion expected to show up in profiling.
type MAE struct {
	MinSamplesLeaf      int
	MinImpurityDecrease float64
}

func NewMAE(minSamplesLeaf int, minImpurityDecrease float64) *MAE {
	return &MAE{MinSamplesLeaf: minSamplesLeaf, MinImpurityDecrease: minImpurityDecrease}
}

func (m *MAE) Gain(hist RegHist, labelSum float64, labelLogSum float64, nSamples int) Candidate {
	nBins := len(hist.LabelSum)
	if nBins == 0 {
		return noCandidate()
	}

	binMean := make([]float64, nBins)
	for b := range hist.LabelSum {
		if hist.CountSum[b] > 0 {
			binMean[b] = hist.LabelSum[b] / float64(hist.CountSum[b])
		}
	}

	parentMean := labelSum / float64(nSamples)
	var parentAbsDev float64
	for b := range hist.LabelSum {
		parentAbsDev += float64(hist.CountSum[b]) * math.Abs(binMean[b]-parentMean)
	}

	best := noCandidate()
	var sumLeft float64
	var nLeft int64

	for split := 0; split < nBins; split++ {
		sumLeft += hist.LabelSum[split]
		nLeft += hist.CountSum[split]
		nRight := int64(nSamples) - nLeft
		if nLeft == 0 || nRight == 0 {
			continue
		}
		sumRight := labelSum - sumLeft
		meanLeft := sumLeft / float64(nLeft)
		meanRight := sumRight / float64(nRight)

		var leftAbsDev, rightAbsDev float64
		for b := 0; b <= split; b++ {
			leftAbsDev += float64(hist.CountSum[b]) * math.Abs(binMean[b]-meanLeft)
		}
		for b := split + 1; b < nBins; b++ {
			rightAbsDev += float64(hist.CountSum[b]) * math.Abs(binMean[b]-meanRight)
		}

		gain := (parentAbsDev - leftAbsDev - rightAbsDev) / float64(nSamples)

		if g, ok := guards(nLeft, nRight, int64(m.MinSamplesLeaf), gain, m.MinImpurityDecrease); ok {
			if g > best.Gain {
				best = Candidate{BinIndex: split, Gain: g, NLeft: nLeft}
			}
		}
	}

	return best
}
