package forest

import (
	"bytes"
	"context"
	"encoding/gob"
	"math"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/wlattner/batchtree/arena"
	"github.com/wlattner/batchtree/tree"
)

// Classifier is a bootstrap-aggregated ensemble of tree.Builder trees
// fitting against integer-encoded class labels. It is built the way
// the teacher's forest.Classifier fits trees (a bounded worker pool
// consuming a queue of bootstrap resamples), generalized to the batched
// tree.Builder instead of a recursive single-node best-split tree.
type Classifier struct {
	Config

	Classes         []string
	Trees           []tree.Tree
	NFeatures       int
	NSample         int
	ConfusionMatrix [][]int
	Accuracy        float64
}

// NewClassifier returns a Classifier configured with opts, defaulting to
// 10 trees, Gini splitting, no bootstrap-feature fraction override (Fit
// picks sqrt(NFeatures) once it knows NFeatures).
func NewClassifier(opts ...Option) *Classifier {
	cfg := defaultConfig()
	cfg.Params.SplitCriterion = tree.Gini
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Classifier{Config: cfg}
}

// Fit grows NTrees trees from X (row-major, one []float64 per example) and
// class labels Y, bootstrap-sampling rows and columns per tree via
// sampler.Bootstrap. Fit is not safe to call twice concurrently on the same
// Classifier.
func (c *Classifier) Fit(ctx context.Context, x [][]float64, y []string) error {
	if len(x) == 0 {
		return pkgerrors.New("batchtree: forest: no training examples")
	}

	yIDs, classes := encodeClasses(y)
	c.Classes = classes
	c.NSample = len(y)
	c.NFeatures = len(x[0])

	if c.Params.MaxFeatures <= 0 || c.Params.MaxFeatures > 1 {
		c.Params.MaxFeatures = math.Sqrt(float64(c.NFeatures)) / float64(c.NFeatures)
	}

	plan, err := buildFitPlan(ctx, x, c.Params.NBins, c.Params.Seed)
	if err != nil {
		return pkgerrors.Wrap(err, "batchtree: forest: quantile computation")
	}

	labels := make([]float64, len(yIDs))
	for i, id := range yIDs {
		labels[i] = float64(id)
	}

	var oob *oobCtr
	if c.ComputeOOB {
		oob = newOOBCtr(len(y), len(classes))
	}

	trees, err := c.fitTrees(ctx, plan, labels, len(classes), func(idx int, tr tree.Tree, inBag []bool) {
		if oob != nil {
			oob.update(x, inBag, tr)
		}
	})
	if err != nil {
		return err
	}
	c.Trees = trees

	if oob != nil {
		c.ConfusionMatrix, c.Accuracy = oob.compute(yIDs)
	}
	return nil
}

// fitTrees runs the bounded worker pool: each worker owns one tree.Builder
// and one pooled *tree.Workspace reused across every tree it builds,
// mirroring the teacher's channel-based worker pool in its original
// Classifier.Fit, restructured around tree.Builder/tree.Input instead of
// the teacher's recursive tree.Classifier.
func (c *Classifier) fitTrees(ctx context.Context, plan *fitPlan, labels []float64, nclasses int, onTree func(idx int, tr tree.Tree, inBag []bool)) ([]tree.Tree, error) {
	nRows := len(labels)
	nCols := len(plan.dataCols)

	maxBins := 0
	for _, edges := range plan.quantiles {
		if len(edges) > maxBins {
			maxBins = len(edges)
		}
	}

	sampledCols := sampledColCount(nCols, c.Params.MaxFeatures)

	size, err := tree.WorkspaceSize(c.Params, tree.InputShape{
		NSampledRows:  nRows,
		NSampledCols:  sampledCols,
		MaxBinsPerCol: maxBins,
		NClasses:      nclasses,
	})
	if err != nil {
		return nil, err
	}
	pool := arena.NewPool(size)

	nWorkers := c.NumWorkers
	if nWorkers < 1 {
		nWorkers = 1
	}
	if nWorkers > c.NTrees {
		nWorkers = c.NTrees
	}

	trees := make([]tree.Tree, c.NTrees)
	inBags := make([][]bool, c.NTrees)

	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)

	for w := 0; w < nWorkers; w++ {
		g.Go(func() error {
			b, err := tree.NewBuilder(c.Params, c.Logger, nil)
			if err != nil {
				return err
			}
			ws, err := pool.Allocate(gctx, 0, 0, 0)
			if err != nil {
				return err
			}
			defer pool.Release(gctx, ws)
			b.AssignWorkspace(ws)

			for idx := range jobs {
				jobID := uuid.NewString()
				b.Logger = c.Logger.With().Str("job_id", jobID).Int("tree_idx", idx).Logger()

				rowIDs, colIDs := treeSampler(plan.baseSeed, idx).Sample(gctx, nRows, nCols, c.Params.MaxFeatures, c.Bootstrap)

				in, err := tree.NewInput(plan.dataCols, labels, rowIDs, colIDs, plan.quantiles, nclasses)
				if err != nil {
					return err
				}

				tr, _, err := b.Train(gctx, in, c.Params)
				if err != nil {
					return pkgerrors.Wrap(err, "batchtree: forest: tree fit "+jobID)
				}

				trees[idx] = tr
				inBags[idx] = inBagMask(rowIDs, nRows)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for i := 0; i < c.NTrees; i++ {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, tr := range trees {
		onTree(i, tr, inBags[i])
	}

	return trees, nil
}

// Predict returns the plurality-vote class label for each example.
func (c *Classifier) Predict(x [][]float64) []string {
	votes := c.classVotes(x)
	out := make([]string, len(x))
	for i, v := range votes {
		best, bestCt := 0, -1
		for class, ct := range v {
			if ct > bestCt {
				best, bestCt = class, ct
			}
		}
		out[i] = c.Classes[best]
	}
	return out
}

// PredictProb returns each example's vote fraction per class, indices
// matching Classifier.Classes.
func (c *Classifier) PredictProb(x [][]float64) [][]float64 {
	votes := c.classVotes(x)
	probs := make([][]float64, len(x))
	nTrees := float64(len(c.Trees))
	for i, v := range votes {
		probs[i] = make([]float64, len(c.Classes))
		for class, ct := range v {
			probs[i][class] = float64(ct) / nTrees
		}
	}
	return probs
}

func (c *Classifier) classVotes(x [][]float64) [][]int {
	votes := make([][]int, len(x))
	for i := range votes {
		votes[i] = make([]int, len(c.Classes))
	}
	for _, tr := range c.Trees {
		for i, row := range x {
			votes[i][int(tr.PredictRow(row))]++
		}
	}
	return votes
}

// VarImp returns a per-feature importance score, the fraction of all
// training examples routed through a split on that feature across the
// forest. tree.Node does not retain a split's gain once applied (by
// design, per the node record in the core builder), so this is a sample-
// count proxy rather than the teacher's impurity-decrease importance; see
// DESIGN.md.
func (c *Classifier) VarImp() []float64 {
	imp := make([]float64, c.NFeatures)
	var total float64
	for _, tr := range c.Trees {
		for _, n := range tr {
			if n.IsLeaf {
				continue
			}
			w := float64(n.Count)
			imp[n.SplitFeature] += w
			total += w
		}
	}
	if total > 0 {
		for i := range imp {
			imp[i] /= total
		}
	}
	return imp
}

type gobClassifier struct {
	Config          Config
	Classes         []string
	Trees           []tree.Tree
	NFeatures       int
	NSample         int
	ConfusionMatrix [][]int
	Accuracy        float64
}

// GobEncode implements gob.GobEncoder. Config.Logger (a zerolog.Logger) is
// not gob-safe, so the wire struct carries everything except it; GobDecode
// restores a no-op logger.
func (c *Classifier) GobEncode() ([]byte, error) {
	cfg := c.Config
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	err := enc.Encode(gobClassifier{
		Config:          Config{NTrees: cfg.NTrees, Params: cfg.Params, NumWorkers: cfg.NumWorkers, Bootstrap: cfg.Bootstrap, ComputeOOB: cfg.ComputeOOB},
		Classes:         c.Classes,
		Trees:           c.Trees,
		NFeatures:       c.NFeatures,
		NSample:         c.NSample,
		ConfusionMatrix: c.ConfusionMatrix,
		Accuracy:        c.Accuracy,
	})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (c *Classifier) GobDecode(data []byte) error {
	var g gobClassifier
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return err
	}
	c.Config = g.Config
	c.Config.Logger = defaultConfig().Logger
	c.Classes = g.Classes
	c.Trees = g.Trees
	c.NFeatures = g.NFeatures
	c.NSample = g.NSample
	c.ConfusionMatrix = g.ConfusionMatrix
	c.Accuracy = g.Accuracy
	return nil
}

func encodeClasses(y []string) ([]int, []string) {
	ids := make([]int, len(y))
	uniq := make(map[string]int)
	var classes []string
	for i, val := range y {
		id, ok := uniq[val]
		if !ok {
			id = len(uniq)
			uniq[val] = id
			classes = append(classes, val)
		}
		ids[i] = id
	}
	return ids, classes
}

func inBagMask(rowIDs []int32, n int) []bool {
	mask := make([]bool, n)
	for _, r := range rowIDs {
		mask[r] = true
	}
	return mask
}

// oobCtr accumulates out-of-bag class votes across trees, the
// classification analogue of the teacher's oobCtr.
type oobCtr struct {
	classVotes [][]int
}

func newOOBCtr(nExample, nClasses int) *oobCtr {
	votes := make([][]int, nExample)
	for i := range votes {
		votes[i] = make([]int, nClasses)
	}
	return &oobCtr{classVotes: votes}
}

func (o *oobCtr) update(x [][]float64, inBag []bool, tr tree.Tree) {
	if tr == nil {
		return
	}
	for i, in := range inBag {
		if in {
			continue
		}
		pred := int(tr.PredictRow(x[i]))
		o.classVotes[i][pred]++
	}
}

func (o *oobCtr) compute(yIDs []int) ([][]int, float64) {
	nClasses := len(o.classVotes[0])
	confMat := make([][]int, nClasses)
	for i := range confMat {
		confMat[i] = make([]int, nClasses)
	}

	scored := 0
	for i, actual := range yIDs {
		maxClass, maxVotes := 0, 0
		any := false
		for class, nVotes := range o.classVotes[i] {
			if nVotes > 0 {
				any = true
			}
			if nVotes > maxVotes {
				maxVotes, maxClass = nVotes, class
			}
		}
		if !any {
			continue
		}
		confMat[actual][maxClass]++
		scored++
	}

	correct := 0
	for i := range confMat {
		correct += confMat[i][i]
	}
	var accuracy float64
	if scored > 0 {
		accuracy = float64(correct) / float64(scored)
	}
	return confMat, accuracy
}
