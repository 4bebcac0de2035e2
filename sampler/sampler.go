// Package sampler provides row and column subsampling for one tree fit
// within a forest: bootstrap row sampling with replacement, and
// Fisher-Yates column subsampling, the two axes a random forest
// randomizes per tree.
package sampler

import (
	"context"
	"math/rand/v2"
)

// Bootstrap implements tree.Sampler using math/rand/v2's PCG generator,
// seeded per call so two trees built from the same forest.Seed with
// different tree indices never share a stream.
type Bootstrap struct {
	Seed int64
}

// Sample draws nRows row ids (with replacement iff bootstrap is true) and a
// maxFeatures-fraction subset of the nCols column ids, via a
// swap-to-the-back partial Fisher-Yates shuffle.
func (s Bootstrap) Sample(ctx context.Context, nRows, nCols int, maxFeatures float64, bootstrap bool) ([]int32, []int32) {
	rng := newRNG(s.Seed)

	rowIDs := sampleRows(rng, nRows, bootstrap)
	colIDs := sampleCols(rng, nCols, maxFeatures)

	return rowIDs, colIDs
}

func newRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed>>32)|1))
}

func sampleRows(rng *rand.Rand, n int, bootstrap bool) []int32 {
	ids := make([]int32, n)
	if !bootstrap {
		for i := range ids {
			ids[i] = int32(i)
		}
		return ids
	}
	for i := range ids {
		ids[i] = int32(rng.IntN(n))
	}
	return ids
}

// sampleCols returns floor(nCols*maxFeatures) distinct column ids (at least
// one, at most nCols), chosen by partially Fisher-Yates shuffling a fresh
// [0, nCols) column list from the back and keeping the last k. It is called
// once per tree, so every node of that tree searches the same columns.
func sampleCols(rng *rand.Rand, nCols int, maxFeatures float64) []int32 {
	if maxFeatures <= 0 || maxFeatures > 1 {
		maxFeatures = 1
	}
	k := int(maxFeatures * float64(nCols))
	if k < 1 {
		k = 1
	}
	if k > nCols {
		k = nCols
	}

	cols := make([]int32, nCols)
	for i := range cols {
		cols[i] = int32(i)
	}

	j := nCols - 1
	for visited := 0; visited < k && j > 0; visited++ {
		pick := rng.IntN(j + 1)
		cols[pick], cols[j] = cols[j], cols[pick]
		j--
	}

	return cols[nCols-k:]
}
