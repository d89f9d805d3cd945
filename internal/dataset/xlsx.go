package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LoadXLSX reads a scenario from the first sheet of a workbook.
// GetRows drops trailing empty cells, so a short row is rejected rather
// than padded.
func LoadXLSX(path string) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &Dataset{}, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ParseError{Path: path, Message: fmt.Sprintf("read sheet %q", sheets[0]), Err: err}
	}
	return fromRows(path, rows)
}

// fromRows builds a dataset from string cells, header first. Blank rows are skipped.
func fromRows(path string, rows [][]string) (*Dataset, error) {
	start := -1
	for i, row := range rows {
		if !blankRow(row) {
			start = i
			break
		}
	}
	if start < 0 {
		return &Dataset{}, nil
	}

	variables, err := normalizeHeader(rows[start])
	if err != nil {
		return nil, &ParseError{Path: path, Line: start + 1, Message: err.Error()}
	}

	columns := make([][]float64, len(variables))
	for i := start + 1; i < len(rows); i++ {
		row := rows[i]
		if blankRow(row) {
			continue
		}
		if len(row) != len(variables) {
			return nil, &ParseError{
				Path:      path,
				Line:      i + 1,
				Message:   fmt.Sprintf("row has %d cells, expected %d", len(row), len(variables)),
				Variables: variables,
			}
		}
		for j, cell := range row {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, &ParseError{
					Path:      path,
					Line:      i + 1,
					Message:   fmt.Sprintf("variable %q: value %q is not numeric", variables[j], cell),
					Variables: variables,
				}
			}
			columns[j] = append(columns[j], v)
		}
	}

	return New(variables, columns)
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
