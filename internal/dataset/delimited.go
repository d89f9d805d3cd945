package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ParseError reports a malformed scenario file.
type ParseError struct {
	Path    string
	Line    int // 1-based, 0 if unknown
	Message string
	Err     error

	// Variables is the parsed header when the failure came after it.
	Variables []string
}

func (e *ParseError) Error() string {
	loc := e.Path
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	if loc == "" {
		loc = "<input>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", loc, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", loc, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// LoadDelimitedFile opens path and reads it with LoadDelimited.
func LoadDelimitedFile(path string, delim rune) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()

	ds, err := LoadDelimited(f, delim)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return ds, nil
}

// LoadDelimited reads a header row and numeric data rows separated by delim.
// An empty input yields a dataset with no variables; a header-only input
// yields variables with no observations.
func LoadDelimited(r io.Reader, delim rune) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.Comma = delim
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return &Dataset{}, nil
	}
	if err != nil {
		return nil, &ParseError{Line: 1, Message: "read header", Err: err}
	}

	variables, err := normalizeHeader(header)
	if err != nil {
		return nil, &ParseError{Line: 1, Message: err.Error()}
	}

	columns := make([][]float64, len(variables))
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line := 0
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				line = csvErr.Line
			}
			return nil, &ParseError{Line: line, Message: "read row", Err: err, Variables: variables}
		}
		line, _ := reader.FieldPos(0)
		for i, cell := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, &ParseError{
					Line:      line,
					Message:   fmt.Sprintf("variable %q: value %q is not numeric", variables[i], cell),
					Variables: variables,
				}
			}
			columns[i] = append(columns[i], v)
		}
	}

	return New(variables, columns)
}
