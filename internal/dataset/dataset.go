// Package dataset loads scenario time series from delimited text and
// spreadsheet files.
//
// A scenario has a header row naming one variable per column, followed by
// one row of numeric observations per time step. Column order is the
// canonical variable index used by the discovery engine and its link dicts.
package dataset

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Dataset is a set of equally long, named time series.
type Dataset struct {
	// Variables holds the column names in file order.
	Variables []string
	// Columns[i] is the series for Variables[i].
	Columns [][]float64
}

// New builds a Dataset from named columns, checking the equal-length invariant.
func New(variables []string, columns [][]float64) (*Dataset, error) {
	if len(variables) != len(columns) {
		return nil, fmt.Errorf("%d variables but %d columns", len(variables), len(columns))
	}
	for i := 1; i < len(columns); i++ {
		if len(columns[i]) != len(columns[0]) {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", variables[i], len(columns[i]), len(columns[0]))
		}
	}
	return &Dataset{Variables: variables, Columns: columns}, nil
}

// NumVariables returns the number of columns.
func (d *Dataset) NumVariables() int {
	if d == nil {
		return 0
	}
	return len(d.Variables)
}

// Rows returns the number of observations per variable.
func (d *Dataset) Rows() int {
	if d == nil || len(d.Columns) == 0 {
		return 0
	}
	return len(d.Columns[0])
}

// Empty reports whether there is nothing to analyse.
func (d *Dataset) Empty() bool {
	return d.NumVariables() == 0 || d.Rows() == 0
}

// Row returns the observations at time step t, one per variable.
func (d *Dataset) Row(t int) []float64 {
	row := make([]float64, len(d.Columns))
	for i, col := range d.Columns {
		row[i] = col[t]
	}
	return row
}

// Matrix returns a row-major copy of the data.
func (d *Dataset) Matrix() [][]float64 {
	rows := d.Rows()
	m := make([][]float64, rows)
	for t := 0; t < rows; t++ {
		m[t] = d.Row(t)
	}
	return m
}

// Load reads a scenario file, choosing the reader from the file extension.
// .xlsx files are read from their first sheet, .tsv files are tab separated
// and everything else is treated as comma separated.
func Load(path string) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return LoadXLSX(path)
	case ".tsv":
		return LoadDelimitedFile(path, '\t')
	default:
		return LoadDelimitedFile(path, ',')
	}
}

// normalizeHeader cleans header cells and rejects empty or duplicate names.
func normalizeHeader(cells []string) ([]string, error) {
	names := make([]string, len(cells))
	seen := make(map[string]int, len(cells))
	for i, cell := range cells {
		name := norm.NFC.String(strings.TrimSpace(strings.TrimPrefix(cell, "\ufeff")))
		if name == "" {
			return nil, fmt.Errorf("header column %d is empty", i+1)
		}
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("duplicate variable %q in columns %d and %d", name, prev+1, i+1)
		}
		seen[name] = i
		names[i] = name
	}
	return names, nil
}
