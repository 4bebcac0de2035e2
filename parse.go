package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	pkgerrors "github.com/pkg/errors"
)

// parsedInput is the in-memory form of one CSV training/prediction file:
// the first column is the label/target, the rest are numeric features.
type parsedInput struct {
	isRegression bool
	X            [][]float64
	YClf         []string  // nil once isRegression is true
	YReg         []float64 // nil once isRegression is false
	VarNames     []string
}

// parseCSV reads a label-first CSV file, auto-detecting whether the label
// column is numeric (regression) or categorical (classification): the file
// is regression only if every data row's label parses as a float. forceClf
// pins it to classification regardless of
// whether the label column happens to parse as a float (e.g. integer class
// ids).
func parseCSV(r io.Reader, forceClf bool) (*parsedInput, error) {
	reader := csv.NewReader(r)

	p := &parsedInput{isRegression: !forceClf}

	row, err := reader.Read()
	if err != nil {
		return p, pkgerrors.Wrap(err, "batchtree: parse: reading header row")
	}

	if varNames, err := parseHeader(row); err == nil {
		p.VarNames = varNames
	} else {
		for i := range row[1:] {
			p.VarNames = append(p.VarNames, fmt.Sprintf("X%d", i+1))
		}
		if err := p.parseRow(row); err != nil {
			return p, pkgerrors.Wrap(err, "batchtree: parse: first data row")
		}
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return p, pkgerrors.Wrap(err, "batchtree: parse: reading row")
		}
		if err := p.parseRow(row); err != nil {
			return p, err
		}
	}

	if p.isRegression {
		p.YClf = nil
	} else {
		p.YReg = nil
	}

	return p, nil
}

func (p *parsedInput) parseRow(row []string) error {
	xi, err := parseFeatureVals(row)
	if err != nil {
		return pkgerrors.Wrap(err, "batchtree: parse: feature values")
	}
	p.X = append(p.X, xi)

	if p.isRegression {
		yi, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			p.isRegression = false
		}
		p.YReg = append(p.YReg, yi)
	}
	p.YClf = append(p.YClf, row[0])

	return nil
}

func parseFeatureVals(row []string) ([]float64, error) {
	if len(row) < 2 {
		return nil, pkgerrors.New("batchtree: parse: row has no feature columns")
	}
	xi := make([]float64, 0, len(row)-1)
	for _, val := range row[1:] {
		fv, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, err
		}
		xi = append(xi, fv)
	}
	return xi, nil
}

// parseHeader reports whether row looks like a header: the feature columns
// only accept numeric input, so a row whose feature values are all
// non-numeric is a header; a single numeric feature value means row 1 is
// treated as the first example instead.
func parseHeader(row []string) ([]string, error) {
	var colNames []string
	if len(row) > 1 {
		for _, val := range row[1:] {
			if _, err := strconv.ParseFloat(val, 64); err == nil {
				return nil, pkgerrors.New("batchtree: parse: not a header row")
			}
			colNames = append(colNames, val)
		}
	}
	return colNames, nil
}
