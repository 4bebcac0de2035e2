package main

import (
	"context"
	"encoding/csv"
	"encoding/gob"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/wlattner/batchtree/forest"
	"github.com/wlattner/batchtree/tree"
)

// modelOptions carries the CLI's fit-time configuration, bound from cobra
// flags (optionally overridden by a viper config file) in main.go.
type modelOptions struct {
	nTree       int
	minSplit    int
	minLeaf     int
	maxFeatures float64
	nBins       int
	nWorkers    int
	seed        int64
	criterion   tree.SplitCriterion
	logger      zerolog.Logger
}

// Model wraps whichever of forest.Classifier/forest.Regressor parseCSV
// detected was appropriate for the training data, plus the bookkeeping the
// CLI's fit report needs.
type Model struct {
	IsRegression bool
	Clf          *forest.Classifier
	Reg          *forest.Regressor
	VarNames     []string
	fitTime      time.Duration
	nTreeFit     int
	nSample      int
}

// Fit trains a classifier or regressor from d, picking the objective based
// on d.isRegression (set by parseCSV).
func (m *Model) Fit(ctx context.Context, d *parsedInput, opt modelOptions) error {
	start := time.Now()

	if d.isRegression {
		reg := forest.NewRegressor(
			forest.NumTrees(opt.nTree),
			forest.MinSamplesSplit(opt.minSplit),
			forest.MinSamplesLeaf(opt.minLeaf),
			forest.MaxFeatures(opt.maxFeatures),
			forest.NBins(opt.nBins),
			forest.NumWorkers(opt.nWorkers),
			forest.Seed(opt.seed),
			forest.ComputeOOB(),
			forest.Logger(opt.logger),
		)
		if err := reg.Fit(ctx, d.X, d.YReg); err != nil {
			return err
		}
		m.Reg = reg
		m.IsRegression = true
		m.nTreeFit = len(reg.Trees)
	} else {
		crit := opt.criterion
		if crit != tree.Gini && crit != tree.Entropy {
			crit = tree.Gini
		}
		clf := forest.NewClassifier(
			forest.NumTrees(opt.nTree),
			forest.MinSamplesSplit(opt.minSplit),
			forest.MinSamplesLeaf(opt.minLeaf),
			forest.MaxFeatures(opt.maxFeatures),
			forest.NBins(opt.nBins),
			forest.Criterion(crit),
			forest.NumWorkers(opt.nWorkers),
			forest.Seed(opt.seed),
			forest.ComputeOOB(),
			forest.Logger(opt.logger),
		)
		if err := clf.Fit(ctx, d.X, d.YClf); err != nil {
			return err
		}
		m.Clf = clf
		m.nTreeFit = len(clf.Trees)
	}

	m.fitTime = time.Since(start)
	m.VarNames = d.VarNames
	m.nSample = len(d.X)
	return nil
}

// Predict formats each example's prediction as a string: the class label
// for a classifier, or the shortest round-trippable decimal of the target
// value for a regressor.
func (m *Model) Predict(d *parsedInput) []string {
	pStr := make([]string, len(d.X))

	if m.IsRegression {
		for i, v := range m.Reg.Predict(d.X) {
			pStr[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	} else {
		copy(pStr, m.Clf.Predict(d.X))
	}

	return pStr
}

// Report writes the CLI's fit summary: wall-clock time, variable
// importance, and either a confusion matrix/accuracy (classification) or
// MSE/R-squared (regression) computed from out-of-bag predictions.
func (m *Model) Report(w io.Writer) {
	fmt.Fprintf(w, "Fit %d trees using %d examples in %.2f seconds\n",
		m.nTreeFit, m.nSample, m.fitTime.Seconds())
	fmt.Fprintf(w, "\n")

	m.ReportVarImp(w, 20)

	if m.IsRegression {
		m.reportReg(w)
	} else {
		m.reportClf(w)
	}
}

func (m *Model) reportClf(w io.Writer) {
	fmt.Fprintf(w, "Confusion Matrix (out-of-bag)\n")
	fmt.Fprintf(w, "-----------------------------\n")

	fmt.Fprintf(w, "%-14s ", "")
	for _, class := range m.Clf.Classes {
		fmt.Fprintf(w, "%-14s ", class)
	}
	fmt.Fprintf(w, "\n")

	for actualID, class := range m.Clf.Classes {
		fmt.Fprintf(w, "%-14s ", class)
		for predictedID := range m.Clf.Classes {
			fmt.Fprintf(w, "%-14d ", m.Clf.ConfusionMatrix[actualID][predictedID])
		}
		fmt.Fprintf(w, "\n")
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Overall OOB Accuracy: %.2f%%\n", 100.0*m.Clf.Accuracy)
}

func (m *Model) reportReg(w io.Writer) {
	fmt.Fprintf(w, "Out-of-bag Mean Squared Error: %.3f\n", m.Reg.MSE)
	fmt.Fprintf(w, "Out-of-bag R-Squared: %.3f%%\n", 100*m.Reg.RSquared)
}

// VarImp returns per-feature importance scores from whichever of
// Clf/Reg is populated.
func (m *Model) VarImp() []float64 {
	if m.IsRegression {
		return m.Reg.VarImp()
	}
	return m.Clf.VarImp()
}

// SaveVarImp writes a two-column (name, score) CSV of VarImp's output.
func (m *Model) SaveVarImp(w io.Writer) error {
	writer := csv.NewWriter(w)
	for i, score := range m.VarImp() {
		if err := writer.Write([]string{m.VarNames[i], strconv.FormatFloat(score, 'f', -1, 64)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReportVarImp prints at most maxVars (name, score) pairs, most important
// first.
func (m *Model) ReportVarImp(w io.Writer, maxVars int) {
	fmt.Fprintf(w, "Variable Importance\n")
	fmt.Fprintf(w, "-------------------\n")

	varImp := m.VarImp()
	varNames := make([]string, len(m.VarNames))
	copy(varNames, m.VarNames) // don't sort the orig.
	sortByImportance(varImp, varNames)

	if maxVars > len(varImp) {
		maxVars = len(varImp)
	}

	for i, imp := range varImp[:maxVars] {
		fmt.Fprintf(w, "%-15s: %-10.4f\n", varNames[i], imp)
	}
	fmt.Fprintf(w, "\n")
}

// Load decodes a Model gob-encoded by Save. forest.Classifier/Regressor
// implement gob.GobEncoder/GobDecoder themselves (see forest/classifier.go,
// forest/regressor.go), so a plain gob.Decoder handles the nested trees.
func (m *Model) Load(r io.Reader) error {
	return gob.NewDecoder(r).Decode(m)
}

// Save gob-encodes m, including every fitted tree.
func (m *Model) Save(w io.Writer) error {
	return gob.NewEncoder(w).Encode(m)
}

type varImpSort struct {
	varName []string
	imp     []float64
}

func (v varImpSort) Len() int {
	return len(v.imp)
}

func (v varImpSort) Less(i, j int) bool {
	return v.imp[i] < v.imp[j]
}

func (v varImpSort) Swap(i, j int) {
	v.imp[i], v.imp[j] = v.imp[j], v.imp[i]
	v.varName[i], v.varName[j] = v.varName[j], v.varName[i]
}

func sortByImportance(imp []float64, names []string) {
	sort.Sort(sort.Reverse(varImpSort{imp: imp, varName: names}))
}
