package tree

// PredictRow walks tr from the root, following SplitFeature/SplitThreshold
// until it reaches a leaf, and returns that leaf's Prediction. Children are
// always allocated as a contiguous pair by the builder, so the right child
// of LeftChild is always LeftChild+1.
func (tr Tree) PredictRow(row []float64) float64 {
	idx := int32(0)
	for !tr[idx].IsLeaf {
		n := tr[idx]
		if row[n.SplitFeature] <= n.SplitThreshold {
			idx = n.LeftChild
		} else {
			idx = n.LeftChild + 1
		}
	}
	return tr[idx].Prediction
}

// Predict runs PredictRow over every row of X.
func (tr Tree) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = tr.PredictRow(row)
	}
	return out
}
