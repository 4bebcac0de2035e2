package tree

import (
	"context"
	"math"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/wlattner/batchtree/tree/objective"
)

// rowChunkSize bounds how many rows one work item scans before yielding the
// worker back to the cursor; large leaf-heavy nodes get split into several
// chunks so no single goroutine monopolizes a worker slot, small nodes get
// exactly one.
const rowChunkSize = 4096

// workItem is one (node, column, row-range) unit of histogram work, the
// analogue of one CUDA thread block's (row-slice, column-block, node)
// assignment.
type workItem struct {
	nodeIdx    int // index into the batch, not the workspace slot
	colIdx     int // index into colBlock
	rowStart   int
	rowEnd     int
	lastChunk  bool
}

// batchHist holds the per-(node, column) histograms for one frontier batch.
// Counts/sums are accumulated with atomics since multiple row-chunk workers
// may write into the same (node, column) cell concurrently.
type batchHist struct {
	nClasses int
	nBins    []int // per column in colBlock

	// classification: flat [nodeIdx][colIdx] -> []int64 of length nBins*nClasses
	classCounts [][]atomicInt64Slice

	// regression: flat [nodeIdx][colIdx] -> per-bin sums/counts
	regSum    [][]atomicFloat64Slice
	regCount  [][]atomicInt64Slice
	regLogSum [][]atomicFloat64Slice

	done [][]int32 // per (nodeIdx, colIdx) completed-chunk counter
}

type atomicInt64Slice []int64
type atomicFloat64Slice []float64

func (s atomicInt64Slice) add(i int, delta int64) {
	atomic.AddInt64(&s[i], delta)
}

// add performs a CAS-loop float add; Go has no atomic.AddFloat64.
func (s atomicFloat64Slice) add(i int, delta float64) {
	addr := (*uint64)(unsafe.Pointer(&s[i]))
	for {
		old := atomic.LoadUint64(addr)
		newV := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(addr, old, newV) {
			return
		}
	}
}

func newBatchHist(nNodes, nCols int, classification bool, nClasses int, nBins []int) *batchHist {
	bh := &batchHist{nClasses: nClasses, nBins: nBins}

	if classification {
		bh.classCounts = make([][]atomicInt64Slice, nNodes)
		for i := range bh.classCounts {
			bh.classCounts[i] = make([]atomicInt64Slice, nCols)
			for c := range bh.classCounts[i] {
				bh.classCounts[i][c] = make(atomicInt64Slice, nBins[c]*nClasses)
			}
		}
	} else {
		bh.regSum = make([][]atomicFloat64Slice, nNodes)
		bh.regCount = make([][]atomicInt64Slice, nNodes)
		bh.regLogSum = make([][]atomicFloat64Slice, nNodes)
		for i := 0; i < nNodes; i++ {
			bh.regSum[i] = make([]atomicFloat64Slice, nCols)
			bh.regCount[i] = make([]atomicInt64Slice, nCols)
			bh.regLogSum[i] = make([]atomicFloat64Slice, nCols)
			for c := 0; c < nCols; c++ {
				bh.regSum[i][c] = make(atomicFloat64Slice, nBins[c])
				bh.regCount[i][c] = make(atomicInt64Slice, nBins[c])
				bh.regLogSum[i][c] = make(atomicFloat64Slice, nBins[c])
			}
		}
	}

	bh.done = make([][]int32, nNodes)
	for i := range bh.done {
		bh.done[i] = make([]int32, nCols)
	}

	return bh
}

// searchBatch runs the zero/accumulate/evaluate pipeline for one frontier
// batch across a pool of goroutines, the morsel-driven analogue of
// dispatching a CUDA grid sized (row-slices x column-blocks x nodes).
func searchBatch(ctx context.Context, nodes []Node, in *Input, splits []*bestSplit,
	classObj objective.ClassificationFunction, regObj objective.RegressionFunction,
	classTotals [][]int64, regTotals []regTotal, params Params) error {

	nNodes := len(nodes)
	nCols := in.NSampledCols()
	if nNodes == 0 || nCols == 0 {
		return nil
	}

	nBins := make([]int, nCols)
	for c, col := range in.ColIDs {
		nBins[c] = in.NBins(col)
	}

	classification := classObj != nil
	hist := newBatchHist(nNodes, nCols, classification, in.NClasses, nBins)

	chunksPerNodeCol := make([]int, nNodes)
	var work []workItem
	for ni, n := range nodes {
		nChunks := (n.Count + rowChunkSize - 1) / rowChunkSize
		if nChunks == 0 {
			nChunks = 1
		}
		chunksPerNodeCol[ni] = nChunks
		for c := 0; c < nCols; c++ {
			for k := 0; k < nChunks; k++ {
				start := n.Start + k*rowChunkSize
				end := start + rowChunkSize
				if end > n.Start+n.Count || k == nChunks-1 {
					end = n.Start + n.Count
				}
				if start >= end {
					continue
				}
				work = append(work, workItem{
					nodeIdx: ni, colIdx: c, rowStart: start, rowEnd: end,
					lastChunk: k == nChunks-1,
				})
			}
		}
	}

	nWorkers := params.NumWorkers
	if nWorkers < 1 {
		nWorkers = runtime.GOMAXPROCS(0)
	}
	if nWorkers > len(work) {
		nWorkers = len(work)
	}
	if nWorkers < 1 {
		nWorkers = 1
	}

	var cursor int64
	errCh := make(chan error, nWorkers)

	for w := 0; w < nWorkers; w++ {
		go func() {
			for {
				i := atomic.AddInt64(&cursor, 1) - 1
				if i >= int64(len(work)) {
					errCh <- nil
					return
				}
				if err := ctx.Err(); err != nil {
					errCh <- err
					return
				}
				item := work[i]
				accumulate(item, nodes[item.nodeIdx], in, hist, classification)

				done := atomic.AddInt32(&hist.done[item.nodeIdx][item.colIdx], 1)
				if int(done) == chunksPerNodeCol[item.nodeIdx] {
					evaluate(item.nodeIdx, item.colIdx, nodes[item.nodeIdx], in, hist,
						splits[item.nodeIdx], classObj, regObj, classTotals, regTotals, params)
				}
			}
		}()
	}

	for w := 0; w < nWorkers; w++ {
		if err := <-errCh; err != nil {
			return err
		}
	}
	return nil
}

// regTotal carries the node-level sufficient statistics (sum, count,
// Σy·log y) an objective needs alongside its per-column histogram.
type regTotal struct {
	Sum    float64
	LogSum float64
}

func accumulate(item workItem, n Node, in *Input, hist *batchHist, classification bool) {
	col := in.ColIDs[item.colIdx]

	if classification {
		counts := hist.classCounts[item.nodeIdx][item.colIdx]
		nClasses := hist.nClasses
		for r := item.rowStart; r < item.rowEnd; r++ {
			row := in.RowIDs[r]
			bin := in.Bin(row, col)
			class := int(in.Labels[row])
			counts.add(bin*nClasses+class, 1)
		}
		return
	}

	sums := hist.regSum[item.nodeIdx][item.colIdx]
	counts := hist.regCount[item.nodeIdx][item.colIdx]
	logSums := hist.regLogSum[item.nodeIdx][item.colIdx]
	for r := item.rowStart; r < item.rowEnd; r++ {
		row := in.RowIDs[r]
		bin := in.Bin(row, col)
		y := in.Labels[row]
		sums.add(bin, y)
		counts.add(bin, 1)
		if y > 0 {
			logSums.add(bin, y*math.Log(y))
		}
	}
}

func evaluate(nodeIdx, colIdx int, n Node, in *Input, hist *batchHist, best *bestSplit,
	classObj objective.ClassificationFunction, regObj objective.RegressionFunction,
	classTotals [][]int64, regTotals []regTotal, params Params) {

	col := in.ColIDs[colIdx]

	var cand objective.Candidate
	if classObj != nil {
		flat := hist.classCounts[nodeIdx][colIdx]
		nClasses := hist.nClasses
		bins := make([][]int64, hist.nBins[colIdx])
		for b := range bins {
			bins[b] = flat[b*nClasses : (b+1)*nClasses]
		}
		cand = classObj.Gain(objective.ClassHist{Bins: bins, NClasses: nClasses}, classTotals[nodeIdx], n.Count)
	} else {
		rh := objective.RegHist{
			LabelSum:    hist.regSum[nodeIdx][colIdx],
			CountSum:    hist.regCount[nodeIdx][colIdx],
			LabelLogSum: hist.regLogSum[nodeIdx][colIdx],
		}
		rt := regTotals[nodeIdx]
		cand = regObj.Gain(rh, rt.Sum, rt.LogSum, n.Count)
	}

	if cand.BinIndex < 0 {
		return
	}

	// threshold is the winning bin's own upper edge, not an interpolated
	// midpoint: Input.Bin assigns a row to bin i when data[row][col] <=
	// edges[i], so "every row in bins 0..cand.BinIndex goes left" only
	// matches partition's row scatter if threshold is exactly that edge
	// and the comparator partition() uses is <=, not <.
	threshold := in.Quantiles[col][cand.BinIndex]

	best.update(Split{
		Threshold: threshold,
		Column:    col,
		Gain:      cand.Gain,
		NLeft:     int32(cand.NLeft),
	})
}
