package forest

import (
	"bytes"
	"context"
	"encoding/gob"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/wlattner/batchtree/arena"
	"github.com/wlattner/batchtree/tree"
)

// Regressor is a bootstrap-aggregated ensemble of tree.Builder trees
// fitting against real-valued targets, the regression counterpart of
// Classifier.
type Regressor struct {
	Config

	Trees     []tree.Tree
	NFeatures int
	NSample   int
	MSE       float64
	RSquared  float64
}

// NewRegressor returns a Regressor configured with opts, defaulting to
// MSE splitting and NFeatures/3 columns per split once Fit knows NFeatures.
func NewRegressor(opts ...Option) *Regressor {
	cfg := defaultConfig()
	cfg.Params.SplitCriterion = tree.MSE
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Regressor{Config: cfg}
}

// Fit grows NTrees trees from X and targets Y.
func (r *Regressor) Fit(ctx context.Context, x [][]float64, y []float64) error {
	if len(x) == 0 {
		return pkgerrors.New("batchtree: forest: no training examples")
	}

	r.NSample = len(y)
	r.NFeatures = len(x[0])

	if r.Params.MaxFeatures <= 0 || r.Params.MaxFeatures > 1 {
		r.Params.MaxFeatures = 1.0 / 3.0
	}

	plan, err := buildFitPlan(ctx, x, r.Params.NBins, r.Params.Seed)
	if err != nil {
		return pkgerrors.Wrap(err, "batchtree: forest: quantile computation")
	}

	var oob *oobRegCtr
	if r.ComputeOOB {
		oob = newOOBRegCtr(len(y))
	}

	trees, err := r.fitTrees(ctx, plan, y, func(idx int, tr tree.Tree, inBag []bool) {
		if oob != nil {
			oob.update(x, inBag, tr)
		}
	})
	if err != nil {
		return err
	}
	r.Trees = trees

	if oob != nil {
		r.MSE, r.RSquared = oob.compute(y)
	}
	return nil
}

func (r *Regressor) fitTrees(ctx context.Context, plan *fitPlan, labels []float64, onTree func(idx int, tr tree.Tree, inBag []bool)) ([]tree.Tree, error) {
	nRows := len(labels)
	nCols := len(plan.dataCols)

	maxBins := 0
	for _, edges := range plan.quantiles {
		if len(edges) > maxBins {
			maxBins = len(edges)
		}
	}

	sampledCols := sampledColCount(nCols, r.Params.MaxFeatures)

	size, err := tree.WorkspaceSize(r.Params, tree.InputShape{
		NSampledRows:  nRows,
		NSampledCols:  sampledCols,
		MaxBinsPerCol: maxBins,
		NClasses:      1,
	})
	if err != nil {
		return nil, err
	}
	pool := arena.NewPool(size)

	nWorkers := r.NumWorkers
	if nWorkers < 1 {
		nWorkers = 1
	}
	if nWorkers > r.NTrees {
		nWorkers = r.NTrees
	}

	trees := make([]tree.Tree, r.NTrees)
	inBags := make([][]bool, r.NTrees)

	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)

	for w := 0; w < nWorkers; w++ {
		g.Go(func() error {
			b, err := tree.NewBuilder(r.Params, r.Logger, nil)
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
				b.Logger = r.Logger.With().Str("job_id", jobID).Int("tree_idx", idx).Logger()

				rowIDs, colIDs := treeSampler(plan.baseSeed, idx).Sample(gctx, nRows, nCols, r.Params.MaxFeatures, r.Bootstrap)

				in, err := tree.NewInput(plan.dataCols, labels, rowIDs, colIDs, plan.quantiles, 1)
				if err != nil {
					return err
				}

				tr, _, err := b.Train(gctx, in, r.Params)
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
		for i := 0; i < r.NTrees; i++ {
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

// Predict returns the mean of every tree's prediction for each example.
func (r *Regressor) Predict(x [][]float64) []float64 {
	sum := make([]float64, len(x))
	for _, tr := range r.Trees {
		for i, row := range x {
			sum[i] += tr.PredictRow(row)
		}
	}
	n := float64(len(r.Trees))
	for i := range sum {
		sum[i] /= n
	}
	return sum
}

// VarImp returns a per-feature sample-count-weighted split frequency; see
// Classifier.VarImp for why this replaces the teacher's impurity-decrease
// importance.
func (r *Regressor) VarImp() []float64 {
	imp := make([]float64, r.NFeatures)
	var total float64
	for _, tr := range r.Trees {
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

type gobRegressor struct {
	Config    Config
	Trees     []tree.Tree
	NFeatures int
	NSample   int
	MSE       float64
	RSquared  float64
}

// GobEncode implements gob.GobEncoder; see Classifier.GobEncode for why
// Config.Logger is excluded from the wire format.
func (r *Regressor) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	err := enc.Encode(gobRegressor{
		Config:    Config{NTrees: r.NTrees, Params: r.Params, NumWorkers: r.NumWorkers, Bootstrap: r.Bootstrap, ComputeOOB: r.ComputeOOB},
		Trees:     r.Trees,
		NFeatures: r.NFeatures,
		NSample:   r.NSample,
		MSE:       r.MSE,
		RSquared:  r.RSquared,
	})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (r *Regressor) GobDecode(data []byte) error {
	var g gobRegressor
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return err
	}
	r.Config = g.Config
	r.Config.Logger = defaultConfig().Logger
	r.Trees = g.Trees
	r.NFeatures = g.NFeatures
	r.NSample = g.NSample
	r.MSE = g.MSE
	r.RSquared = g.RSquared
	return nil
}

// oobRegCtr accumulates out-of-bag predictions across trees to estimate
// MSE/R-squared without a held-out split, the regression counterpart of
// oobCtr.
type oobRegCtr struct {
	sum []float64
	ct  []int
}

func newOOBRegCtr(n int) *oobRegCtr {
	return &oobRegCtr{sum: make([]float64, n), ct: make([]int, n)}
}

func (o *oobRegCtr) update(x [][]float64, inBag []bool, tr tree.Tree) {
	if tr == nil {
		return
	}
	for i, in := range inBag {
		if in {
			continue
		}
		o.sum[i] += tr.PredictRow(x[i])
		o.ct[i]++
	}
}

func (o *oobRegCtr) compute(y []float64) (mse, rSquared float64) {
	var rss float64
	var n int
	var mean, tss float64

	for i := range y {
		if o.ct[i] < 1 {
			continue
		}
		pred := o.sum[i] / float64(o.ct[i])
		d := y[i] - pred
		rss += d * d

		n++
		d = y[i] - mean
		mean += d / float64(n)
		tss += d * (y[i] - mean)
	}

	if n < 1 {
		return 0, 0
	}
	mse = rss / float64(n)
	if tss == 0 {
		return mse, 0
	}
	rSquared = 1.0 - rss/tss
	return mse, rSquared
}
