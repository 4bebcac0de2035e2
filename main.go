package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wlattner/batchtree/tree"
)

var (
	cfgFile    string
	dataFile   string
	modelFile  string
	nWorkers   int
	runProfile bool
	verbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the batchtree CLI: a `fit` subcommand that trains a
// Classifier/Regressor from a CSV file and a `predict` subcommand that
// scores a CSV file against a previously fit model, mirroring the teacher's
// dual-mode flag-driven binary as two cobra subcommands instead.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "batchtree",
		Short: "Fit and apply batched histogram-based random forests",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "params file (yaml/json/toml), overrides flag defaults")
	root.PersistentFlags().StringVarP(&dataFile, "data", "d", "", "example data (CSV, label in the first column)")
	root.PersistentFlags().StringVarP(&modelFile, "model", "f", "rf.model", "model file")
	root.PersistentFlags().IntVar(&nWorkers, "workers", 1, "number of workers used to fit trees concurrently")
	root.PersistentFlags().BoolVar(&runProfile, "profile", false, "write a CPU profile to batchtree.prof")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")

	root.AddCommand(newFitCmd(), newPredictCmd())
	return root
}

func newFitCmd() *cobra.Command {
	var (
		nTree       int
		minSplit    int
		minLeaf     int
		maxFeatures float64
		nBins       int
		seed        int64
		forceClf    bool
		criterion   string
		impFile     string
	)

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit a random forest from a CSV training file",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			v.SetConfigFile(cfgFile)
			v.BindPFlags(cmd.Flags())
			if cfgFile != "" {
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("batchtree: reading config: %w", err)
				}
			}

			if v.GetInt("workers") > 1 {
				runtime.GOMAXPROCS(runtime.NumCPU())
			}

			if v.GetBool("profile") {
				stop, err := startProfile()
				if err != nil {
					return err
				}
				defer stop()
			}

			if v.GetString("data") == "" {
				return fmt.Errorf("batchtree: fit: --data is required")
			}

			f, err := os.Open(v.GetString("data"))
			if err != nil {
				return fmt.Errorf("batchtree: fit: opening data file: %w", err)
			}
			defer f.Close()

			d, err := parseCSV(f, forceClf)
			if err != nil {
				return fmt.Errorf("batchtree: fit: parsing input: %w", err)
			}

			opt := modelOptions{
				nTree:       v.GetInt("trees"),
				minSplit:    v.GetInt("min_split"),
				minLeaf:     v.GetInt("min_leaf"),
				maxFeatures: v.GetFloat64("max_features"),
				nBins:       v.GetInt("bins"),
				nWorkers:    v.GetInt("workers"),
				seed:        v.GetInt64("seed"),
				criterion:   parseCriterion(v.GetString("criterion")),
				logger:      newLogger(v.GetBool("verbose")),
			}

			m := new(Model)
			if err := m.Fit(cmd.Context(), d, opt); err != nil {
				return fmt.Errorf("batchtree: fit: %w", err)
			}

			o, err := os.Create(v.GetString("model"))
			if err != nil {
				return fmt.Errorf("batchtree: fit: creating model file: %w", err)
			}
			defer o.Close()
			if err := m.Save(o); err != nil {
				return fmt.Errorf("batchtree: fit: saving model: %w", err)
			}

			if impFile != "" {
				impOut, err := os.Create(impFile)
				if err != nil {
					return fmt.Errorf("batchtree: fit: creating importance file: %w", err)
				}
				defer impOut.Close()
				if err := m.SaveVarImp(impOut); err != nil {
					return fmt.Errorf("batchtree: fit: writing importance: %w", err)
				}
			}

			m.Report(cmd.OutOrStderr())
			return nil
		},
	}

	cmd.Flags().IntVar(&nTree, "trees", 10, "number of trees")
	cmd.Flags().IntVar(&minSplit, "min_split", 2, "minimum number of samples required to split an internal node")
	cmd.Flags().IntVar(&minLeaf, "min_leaf", 1, "minimum number of samples in a newly created leaf")
	cmd.Flags().Float64Var(&maxFeatures, "max_features", 0, "fraction (0,1] of columns sampled per tree; 0 defaults to sqrt(p)/p classification, 1/3 regression")
	cmd.Flags().IntVar(&nBins, "bins", 64, "number of quantile bins per column")
	cmd.Flags().Int64Var(&seed, "seed", 0, "base RNG seed")
	cmd.Flags().BoolVarP(&forceClf, "classification", "c", false, "force the parser to treat the label column as classification")
	cmd.Flags().StringVar(&criterion, "criterion", "gini", "split criterion for classification: gini or entropy")
	cmd.Flags().StringVar(&impFile, "var_importance", "", "file to write variable importance estimates")

	return cmd
}

func newPredictCmd() *cobra.Command {
	var predictFile string

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Apply a fitted model to a CSV file of examples",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runProfile {
				stop, err := startProfile()
				if err != nil {
					return err
				}
				defer stop()
			}

			if dataFile == "" {
				return fmt.Errorf("batchtree: predict: --data is required")
			}
			if predictFile == "" {
				return fmt.Errorf("batchtree: predict: --predictions is required")
			}

			f, err := os.Open(dataFile)
			if err != nil {
				return fmt.Errorf("batchtree: predict: opening data file: %w", err)
			}
			defer f.Close()

			d, err := parseCSV(f, false)
			if err != nil {
				return fmt.Errorf("batchtree: predict: parsing input: %w", err)
			}

			m, err := loadModel(modelFile)
			if err != nil {
				return fmt.Errorf("batchtree: predict: loading model: %w", err)
			}

			pred := m.Predict(d)

			o, err := os.Create(predictFile)
			if err != nil {
				return fmt.Errorf("batchtree: predict: creating output file: %w", err)
			}
			defer o.Close()

			if err := writePred(o, pred); err != nil {
				return fmt.Errorf("batchtree: predict: writing predictions: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&predictFile, "predictions", "p", "", "file to write predictions")
	return cmd
}

func parseCriterion(s string) tree.SplitCriterion {
	var crit tree.SplitCriterion
	if err := crit.UnmarshalText([]byte(s)); err != nil {
		return tree.Gini
	}
	return crit
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

// startProfile begins CPU profiling to batchtree.prof, returning a func
// that stops it. A straight runtime/pprof wrapper replaces the teacher's
// github.com/davecheney/profile dependency, which that package's README
// itself now points users away from in favor of pprof directly; no example
// repo in this corpus imports it for anything beyond this same one-liner.
func startProfile() (stop func(), err error) {
	f, err := os.Create("batchtree.prof")
	if err != nil {
		return nil, fmt.Errorf("batchtree: starting profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("batchtree: starting profile: %w", err)
	}
	return func() {
		pprof.StopCPUProfile()
		f.Close()
	}, nil
}

func loadModel(fName string) (*Model, error) {
	f, err := os.Open(fName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m := new(Model)
	if err := m.Load(f); err != nil {
		return nil, err
	}
	return m, nil
}

func writePred(w io.Writer, prediction []string) error {
	wtr := bufio.NewWriter(w)
	for _, pred := range prediction {
		if _, err := wtr.WriteString(pred); err != nil {
			return err
		}
		if err := wtr.WriteByte('\n'); err != nil {
			return err
		}
	}
	return wtr.Flush()
}
