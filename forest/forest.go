// Package forest implements random forests as bootstrap-aggregated
// ensembles of batchtree/tree.Builder trees: many trees fit concurrently
// against bootstrap row samples and column subsets of the same read-only
// training data, following
// Louppe, G. (2014) "Understanding Random Forests: From Theory to Practice"
// http://arxiv.org/abs/1407.7502
package forest

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/wlattner/batchtree/quantile"
	"github.com/wlattner/batchtree/sampler"
	"github.com/wlattner/batchtree/tree"
)

// Config holds the settings shared by Classifier and Regressor. Both
// embed it and expose the same functional-option constructors.
type Config struct {
	NTrees     int
	Params     tree.Params
	NumWorkers int
	Bootstrap  bool
	ComputeOOB bool
	Logger     zerolog.Logger
}

func defaultConfig() Config {
	cfg := Config{
		NTrees:     10,
		Params:     tree.DefaultParams(),
		NumWorkers: 1,
		Bootstrap:  true,
		Logger:     zerolog.Nop(),
	}
	cfg.Params.MaxFeatures = 0 // Fit picks the criterion default once it knows p
	return cfg
}

// Option configures a Classifier or Regressor at construction time.
type Option func(*Config)

// NumTrees sets the number of trees in the forest.
func NumTrees(n int) Option { return func(c *Config) { c.NTrees = n } }

// MaxDepth limits the depth of each fitted tree. -1 grows a full tree,
// subject to MinSamplesSplit/MinSamplesLeaf.
func MaxDepth(n int) Option { return func(c *Config) { c.Params.MaxDepth = n } }

// MinSamplesSplit limits the size a node must have to be split instead of
// becoming a leaf.
func MinSamplesSplit(n int) Option { return func(c *Config) { c.Params.MinSamplesSplit = n } }

// MinSamplesLeaf limits the size of a child for a candidate split to be
// considered.
func MinSamplesLeaf(n int) Option { return func(c *Config) { c.Params.MinSamplesLeaf = n } }

// MaxFeatures sets the fraction (0, 1] of columns each tree samples once and
// considers for every one of its splits. The default of 0 lets Fit choose a
// criterion-appropriate
// default (sqrt(p) for classification, p/3 for regression) once it knows p.
func MaxFeatures(frac float64) Option { return func(c *Config) { c.Params.MaxFeatures = frac } }

// NBins sets the number of quantile bins per column.
func NBins(n int) Option { return func(c *Config) { c.Params.NBins = n } }

// Criterion overrides the default split objective (Gini for Classifier,
// MSE for Regressor) with crit.
func Criterion(crit tree.SplitCriterion) Option {
	return func(c *Config) { c.Params.SplitCriterion = crit }
}

// NumWorkers bounds how many trees fit concurrently.
func NumWorkers(n int) Option { return func(c *Config) { c.NumWorkers = n } }

// ComputeOOB enables out-of-bag scoring during Fit.
func ComputeOOB() Option { return func(c *Config) { c.ComputeOOB = true } }

// Logger sets the zerolog.Logger used for per-tree fit events.
func Logger(l zerolog.Logger) Option { return func(c *Config) { c.Logger = l } }

// Seed sets the base RNG seed; each tree derives its own stream from
// Seed and its tree index, so two forests built with the same Seed fit
// identical trees.
func Seed(s int64) Option { return func(c *Config) { c.Params.Seed = s } }

func transpose(x [][]float64) [][]float64 {
	if len(x) == 0 {
		return nil
	}
	nCols := len(x[0])
	cols := make([][]float64, nCols)
	for c := range cols {
		cols[c] = make([]float64, len(x))
	}
	for r, row := range x {
		for c, v := range row {
			cols[c][r] = v
		}
	}
	return cols
}

// fitPlan is the shared state one forest.Fit call builds once and hands to
// every tree: column-major data and quantile edges computed against the
// full training set. Each tree still draws its own row/column subset from
// a sampler.Bootstrap seeded from baseSeed and its own tree index, so no
// two trees in the forest see the same resample.
type fitPlan struct {
	dataCols  [][]float64
	quantiles [][]float64
	baseSeed  int64
}

func buildFitPlan(ctx context.Context, x [][]float64, nBins int, baseSeed int64) (*fitPlan, error) {
	cols := transpose(x)

	q := quantile.Provider{}
	edges, err := q.Quantiles(ctx, cols, nBins)
	if err != nil {
		return nil, err
	}

	return &fitPlan{
		dataCols:  cols,
		quantiles: edges,
		baseSeed:  baseSeed,
	}, nil
}

func treeSampler(baseSeed int64, treeIdx int) tree.Sampler {
	return sampler.Bootstrap{Seed: baseSeed + int64(treeIdx)*2654435761}
}

// sampledColCount mirrors sampler.Bootstrap's column-count formula so a
// caller can size a shared Workspace before any Sample call has run: every
// tree in a forest draws the same number of columns (a fixed fraction of
// the same nCols), only which columns differ.
func sampledColCount(nCols int, maxFeatures float64) int {
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
	return k
}
