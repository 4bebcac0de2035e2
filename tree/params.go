package tree

import "fmt"

// SplitCriterion selects the objective used to evaluate candidate splits.
type SplitCriterion int

const (
	Gini SplitCriterion = iota
	Entropy
	MSE
	MAE
	Poisson
)

func (c SplitCriterion) String() string {
	switch c {
	case Gini:
		return "gini"
	case Entropy:
		return "entropy"
	case MSE:
		return "mse"
	case MAE:
		return "mae"
	case Poisson:
		return "poisson"
	default:
		return fmt.Sprintf("criterion(%d)", int(c))
	}
}

// MarshalText implements encoding.TextMarshaler so Params round-trips
// through viper/json/yaml config files.
func (c SplitCriterion) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *SplitCriterion) UnmarshalText(text []byte) error {
	switch string(text) {
	case "gini":
		*c = Gini
	case "entropy":
		*c = Entropy
	case "mse":
		*c = MSE
	case "mae":
		*c = MAE
	case "poisson":
		*c = Poisson
	default:
		return fmt.Errorf("unknown split criterion %q", string(text))
	}
	return nil
}

// Params is the tunable configuration for one decision tree fit. Fields not
// consumed directly by the core builder are still carried here: the forest
// package reads MaxFeatures off this struct, while Bootstrap,
// BootstrapFeatures and QuantilePerTree are carried as configuration only
// and are not read by any package in this module (forest takes its
// bootstrap switch from forest.Config.Bootstrap).
type Params struct {
	MaxDepth            int            `json:"max_depth" yaml:"max_depth"`
	MaxLeaves           int            `json:"max_leaves" yaml:"max_leaves"` // -1 disables
	MaxBatchSize        int            `json:"max_batch_size" yaml:"max_batch_size"`
	NBins               int            `json:"n_bins" yaml:"n_bins"`
	MinSamplesSplit     int            `json:"min_samples_split" yaml:"min_samples_split"`
	MinSamplesLeaf      int            `json:"min_samples_leaf" yaml:"min_samples_leaf"`
	MinImpurityDecrease float64        `json:"min_impurity_decrease" yaml:"min_impurity_decrease"`
	SplitCriterion      SplitCriterion `json:"split_criterion" yaml:"split_criterion"`
	MaxFeatures         float64        `json:"max_features" yaml:"max_features"` // fraction in (0,1]
	Bootstrap           bool           `json:"bootstrap" yaml:"bootstrap"`
	BootstrapFeatures   bool           `json:"bootstrap_features" yaml:"bootstrap_features"`
	QuantilePerTree     bool           `json:"quantile_per_tree" yaml:"quantile_per_tree"`

	// NumWorkers bounds the goroutine pool used to simulate the device grid
	// in search.go. Zero means runtime.GOMAXPROCS(0).
	NumWorkers int `json:"num_workers" yaml:"num_workers"`

	// Seed drives the per-tree RNG consumed by the sampler.
	Seed int64 `json:"seed" yaml:"seed"`
}

// DefaultParams returns a configuration equivalent to an unconfigured
// DecisionTreeParams: no depth cap, no leaf cap, batches of up to 512
// frontier nodes, 256 histogram bins, Gini splitting.
func DefaultParams() Params {
	return Params{
		MaxDepth:            -1,
		MaxLeaves:           -1,
		MaxBatchSize:        512,
		NBins:               256,
		MinSamplesSplit:     2,
		MinSamplesLeaf:      1,
		MinImpurityDecrease: 0,
		SplitCriterion:      Gini,
		MaxFeatures:         1.0,
	}
}

// Validate checks the misconfiguration cases that belong to Params rather
// than to the Input view.
func (p Params) Validate() error {
	if p.NBins < 1 {
		return ErrInvalidNBins
	}
	if p.MaxBatchSize < 1 {
		return ErrInvalidMaxBatchSize
	}
	if p.MinSamplesSplit < 2 {
		return ErrInvalidMinSamplesSplit
	}
	if p.MinSamplesLeaf < 1 {
		return ErrInvalidMinSamplesLeaf
	}
	switch p.SplitCriterion {
	case Gini, Entropy, MSE, MAE, Poisson:
	default:
		return ErrUnknownCriterion
	}
	return nil
}
