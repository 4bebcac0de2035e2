package tree

import (
	"context"
	"math"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/wlattner/batchtree/tree/objective"
)

// nodeStat is the per-node sufficient statistic computed once when a node
// is appended to the workspace: it backs both the node's leaf prediction
// and the classTotals/regTotals an evaluate step needs alongside the
// node's per-column histogram.
type nodeStat struct {
	classCounts []int64 // classification only
	sum         float64 // regression only
	logSum      float64 // regression only, Poisson's Σy·log y
	count       int
}

// Builder drives the batched, level-wise construction of a single tree. One
// Builder is exclusively owned by one Train call; it is not safe to call
// Train concurrently on the same Builder from two goroutines, a property
// documented rather than enforced by a mutex so a caller bug isn't hidden
// behind silent serialization. Building many trees concurrently means
// constructing one Builder (and one Workspace) per goroutine.
type Builder struct {
	ws       *Workspace
	classObj objective.ClassificationFunction
	regObj   objective.RegressionFunction

	Logger  zerolog.Logger
	Metrics *buildMetrics
}

// NewBuilder constructs a Builder configured for params.SplitCriterion. reg
// may be nil, in which case metrics are computed in-process but never
// exposed to a scraper.
func NewBuilder(params Params, logger zerolog.Logger, reg prometheus.Registerer) (*Builder, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	b := &Builder{Logger: logger, Metrics: newBuildMetrics(reg)}

	switch params.SplitCriterion {
	case Gini:
		b.classObj = objective.NewGini(params.MinSamplesLeaf, params.MinImpurityDecrease)
	case Entropy:
		b.classObj = objective.NewEntropy(params.MinSamplesLeaf, params.MinImpurityDecrease)
	case MSE:
		b.regObj = objective.NewMSE(params.MinSamplesLeaf, params.MinImpurityDecrease)
	case MAE:
		b.regObj = objective.NewMAE(params.MinSamplesLeaf, params.MinImpurityDecrease)
	case Poisson:
		b.regObj = objective.NewPoisson(params.MinSamplesLeaf, params.MinImpurityDecrease)
	default:
		return nil, ErrUnknownCriterion
	}

	return b, nil
}

func (b *Builder) isClassification() bool { return b.classObj != nil }

// AssignWorkspace binds a pre-sized *Workspace into the builder; no
// copying, ws is reused slice storage reset between Train calls, never
// reallocated mid-build. AssignWorkspace itself can't validate ws against a
// particular build's requirements since it isn't given a Params/Input to
// size against; Train does that check against the assigned workspace's
// capacity on every call, once the shape of the actual request is known.
func (b *Builder) AssignWorkspace(ws *Workspace) { b.ws = ws }

// Train grows one tree from in according to params, returning the flat node
// slice and summary stats. If no Workspace has been assigned, Train
// allocates one sized for in and params and keeps it for reuse by the
// caller on the next Train call. If a Workspace was assigned via
// AssignWorkspace but is too small for this particular in/params, Train
// returns ErrWorkspaceTooSmall rather than silently growing it: a pooled
// workspace undersized for one caller's batch is a sizing bug worth
// surfacing, not papering over with a slice reallocation mid-build.
func (b *Builder) Train(ctx context.Context, in *Input, params Params) (Tree, Stats, error) {
	if err := params.Validate(); err != nil {
		return nil, Stats{}, err
	}

	maxBins := 0
	for _, col := range in.ColIDs {
		if n := in.NBins(col); n > maxBins {
			maxBins = n
		}
	}
	size, err := WorkspaceSize(params, InputShape{
		NSampledRows:  in.NSampledRows(),
		NSampledCols:  in.NSampledCols(),
		MaxBinsPerCol: maxBins,
		NClasses:      in.NClasses,
	})
	if err != nil {
		return nil, Stats{}, err
	}

	switch {
	case b.ws == nil:
		b.ws = NewWorkspace(size)
	case cap(b.ws.Nodes) < size.MaxNodes:
		return nil, Stats{}, ErrWorkspaceTooSmall
	}
	b.ws.reset()

	nodeStats := make([]nodeStat, 0, cap(b.ws.Nodes))

	rootSlots := b.ws.appendNodes(1)
	root := rootSlots[0]
	b.ws.Nodes[root].Start = 0
	b.ws.Nodes[root].Count = in.NSampledRows()
	b.ws.Nodes[root].Depth = 0
	b.ws.Nodes[root].initSpNode()

	nodeStats = append(nodeStats, b.computeNodeStat(b.ws.Nodes[root], in))
	b.applyPrediction(&b.ws.Nodes[root], nodeStats[root])

	maxBatch := params.MaxBatchSize
	if maxBatch < 1 {
		maxBatch = 1
	}

	frontier := []int{root}
	numLeaves := 0
	open := 1 // undecided nodes: every open node resolves to at least one eventual leaf
	maxDepth := 0

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, Stats{}, err
		}

		batchSize := len(frontier)
		if batchSize > maxBatch {
			batchSize = maxBatch
		}
		batch := frontier[:batchSize]
		frontier = frontier[batchSize:]

		if b.Metrics != nil {
			b.Metrics.frontierSize.Set(float64(len(frontier) + len(batch)))
		}
		start := time.Now()

		children, err := b.doSplit(ctx, batch, in, &nodeStats, params, &numLeaves, &open)
		if err != nil {
			return nil, Stats{}, pkgerrors.Wrap(err, "batchtree: tree: doSplit")
		}

		if b.Metrics != nil {
			b.Metrics.batchDuration.Observe(time.Since(start).Seconds())
		}

		frontier = append(frontier, children...)

		for _, slot := range batch {
			if d := b.ws.Nodes[slot].Depth; d > maxDepth {
				maxDepth = d
			}
		}

		b.Logger.Debug().
			Int("node_start", batch[0]).
			Int("node_end", batch[len(batch)-1]).
			Int("new_nodes", len(children)).
			Dur("batch_duration", time.Since(start)).
			Msg("batch complete")
	}

	tr := make(Tree, len(b.ws.Nodes))
	copy(tr, b.ws.Nodes)

	return tr, Stats{NumLeaves: numLeaves, Depth: maxDepth}, nil
}

// doSplit evaluates every node in batch, partitions the ones that win a
// split, forces the rest to leaves, and returns the workspace slots of any
// freshly appended children.
//
// numLeaves and open are running totals shared across the whole Train
// call: open counts nodes that exist but haven't yet been decided leaf-or-
// split, each of which resolves to at least one eventual leaf, so
// numLeaves+open is a lower bound on the tree's final leaf count. Refusing
// any split that would push that bound past MaxLeaves is what lets the
// MaxLeaves check below force a leaf instead of a split without needing to
// know the shape of the rest of the frontier.
func (b *Builder) doSplit(ctx context.Context, batch []int, in *Input, nodeStats *[]nodeStat, params Params, numLeaves, open *int) ([]int, error) {
	nodes := make([]Node, len(batch))
	for i, slot := range batch {
		nodes[i] = b.ws.Nodes[slot]
	}

	resolveLeaf := func(slot int) {
		b.forceLeaf(slot)
		*numLeaves++
		*open--
	}

	searchable := make([]int, 0, len(batch)) // indices into nodes/batch needing a search
	for i, slot := range batch {
		n := nodes[i]
		stat := (*nodeStats)[slot]

		if n.Count < params.MinSamplesSplit || n.Count < 2*params.MinSamplesLeaf {
			resolveLeaf(slot)
			continue
		}
		if params.MaxDepth >= 0 && n.Depth >= params.MaxDepth {
			resolveLeaf(slot)
			continue
		}
		if b.isHomogeneous(stat) {
			resolveLeaf(slot)
			continue
		}
		searchable = append(searchable, i)
	}

	var children []int

	if len(searchable) > 0 {
		searchNodes := make([]Node, len(searchable))
		splits := make([]*bestSplit, len(searchable))
		classTotals := make([][]int64, len(searchable))
		regTotals := make([]regTotal, len(searchable))

		for j, i := range searchable {
			slot := batch[i]
			searchNodes[j] = nodes[i]
			splits[j] = b.ws.Splits[slot]
			splits[j].reset()
			stat := (*nodeStats)[slot]
			classTotals[j] = stat.classCounts
			regTotals[j] = regTotal{Sum: stat.sum, LogSum: stat.logSum}
		}

		if err := searchBatch(ctx, searchNodes, in, splits, b.classObj, b.regObj, classTotals, regTotals, params); err != nil {
			return nil, err
		}

		for j, i := range searchable {
			slot := batch[i]
			win := splits[j].load()

			if win.Column < 0 {
				resolveLeaf(slot)
				continue
			}

			if params.MaxLeaves > 0 && *numLeaves+(*open-1+2) > params.MaxLeaves {
				b.Logger.Warn().Int("slot", slot).Msg("forcing leaf: max_leaves reached")
				resolveLeaf(slot)
				if b.Metrics != nil {
					b.Metrics.nodesForced.Inc()
				}
				continue
			}

			left, right := b.partition(slot, win, in)
			childSlots := b.ws.appendNodes(2)
			*nodeStats = append(*nodeStats, nodeStat{}, nodeStat{})
			*open += 1 // net: -1 for slot resolving, +2 for its children

			b.ws.Nodes[slot].SplitFeature = win.Column
			b.ws.Nodes[slot].SplitThreshold = win.Threshold
			b.ws.Nodes[slot].LeftChild = int32(childSlots[0])
			b.ws.Nodes[slot].IsLeaf = false

			for k, childSlot := range childSlots {
				rng := left
				if k == 1 {
					rng = right
				}
				b.ws.Nodes[childSlot].Start = rng.start
				b.ws.Nodes[childSlot].Count = rng.count
				b.ws.Nodes[childSlot].Depth = b.ws.Nodes[slot].Depth + 1
				b.ws.Nodes[childSlot].initSpNode()

				cstat := b.computeNodeStat(b.ws.Nodes[childSlot], in)
				(*nodeStats)[childSlot] = cstat
				b.applyPrediction(&b.ws.Nodes[childSlot], cstat)
			}

			children = append(children, childSlots...)
			if b.Metrics != nil {
				b.Metrics.nodesSplit.Inc()
			}
		}
	}

	return children, nil
}

func (b *Builder) forceLeaf(slot int) {
	b.ws.Nodes[slot].markLeaf(b.ws.Nodes[slot].Prediction)
}

// isHomogeneous reports whether a node's samples are already a single
// class (classification) so searching for a split would be wasted work.
// Regression nodes are never skipped this way: a constant target column
// still needs the objective's guards to reject every candidate, since the
// builder has no cheap single-pass variance check worth special-casing.
func (b *Builder) isHomogeneous(stat nodeStat) bool {
	if !b.isClassification() {
		return false
	}
	nonZero := 0
	for _, c := range stat.classCounts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

type rowRange struct {
	start, count int
}

// partition reorders in.RowIDs[n.Start:n.Start+n.Count] in place so every
// row binned left of win sits before every row binned right of it, mirroring
// the teacher's Hoare-style two-pointer partition in its recursive builder.
//
// win.Threshold is always one of in.Quantiles[win.Column]'s own bin edges
// (search.go's evaluate step never interpolates between edges), and
// Input.Bin routes a row left of a candidate bin boundary when its raw
// value is <= that edge; the comparator here has to agree with that or the
// row scatter desyncs from the histogram counts (NLeft/gain) the split was
// chosen from.
func (b *Builder) partition(slot int, win Split, in *Input) (rowRange, rowRange) {
	n := b.ws.Nodes[slot]
	ids := in.RowIDs[n.Start : n.Start+n.Count]

	i, j := 0, len(ids)
	for i < j {
		row := ids[i]
		if in.Data[win.Column][row] <= win.Threshold {
			i++
		} else {
			j--
			ids[i], ids[j] = ids[j], ids[i]
		}
	}

	return rowRange{n.Start, i}, rowRange{n.Start + i, n.Count - i}
}

// computeNodeStat scans a node's row range once to compute the aggregate
// statistic used for its leaf prediction and, if it isn't a leaf, the
// classTotals/regTotals an evaluate step needs.
func (b *Builder) computeNodeStat(n Node, in *Input) nodeStat {
	ids := in.RowIDs[n.Start : n.Start+n.Count]

	if b.isClassification() {
		counts := make([]int64, in.NClasses)
		for _, row := range ids {
			counts[int(in.Labels[row])]++
		}
		return nodeStat{classCounts: counts, count: n.Count}
	}

	var sum, logSum float64
	for _, row := range ids {
		y := in.Labels[row]
		sum += y
		if y > 0 {
			logSum += y * math.Log(y)
		}
	}
	return nodeStat{sum: sum, logSum: logSum, count: n.Count}
}

func (b *Builder) applyPrediction(n *Node, stat nodeStat) {
	if b.isClassification() {
		best, bestCount := 0, int64(-1)
		for c, ct := range stat.classCounts {
			if ct > bestCount {
				best, bestCount = c, ct
			}
		}
		n.Prediction = float64(best)
		return
	}
	if stat.count > 0 {
		n.Prediction = stat.sum / float64(stat.count)
	}
}
