package runner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Document is the result file written after a run:
//
//	{"variables": {"<name>": {"parents": ["<name>", ...]}, ...}, "runtime": <seconds>}
//
// Variables are emitted in column order, not sorted.
type Document struct {
	Variables []string
	Parents   map[string][]string
	Runtime   float64
}

// Document shapes r for output.
func (r *Result) Document() *Document {
	return &Document{
		Variables: r.Variables,
		Parents:   r.Parents,
		Runtime:   r.Runtime.Seconds(),
	}
}

type parentsEntry struct {
	Parents []string `json:"parents"`
}

// MarshalJSON writes variables in column order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"variables":{`)
	for i, name := range d.Variables {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalNoEscape(name)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')

		parents := d.Parents[name]
		if parents == nil {
			parents = []string{}
		}
		entry, err := marshalNoEscape(parentsEntry{Parents: parents})
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		buf.Write(entry)
	}
	buf.WriteString(`},"runtime":`)
	runtime, err := json.Marshal(d.Runtime)
	if err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}
	buf.Write(runtime)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Encode returns the indented file contents, newline terminated.
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes the document to path.
func (d *Document) WriteFile(path string) error {
	data, err := d.Encode()
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// marshalNoEscape encodes v without HTML escaping, so variable names such
// as "a<b" survive verbatim.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
