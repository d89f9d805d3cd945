// Package schema checks pcmcirun's JSON outputs against embedded CUE
// definitions.
package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed result.cue
var resultSchema string

//go:embed config.cue
var configSchema string

// Kind names one of the documents pcmcirun writes.
type Kind string

const (
	KindResult Kind = "result"
	KindConfig Kind = "config"
)

// ParseKind accepts "result" or "config".
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindResult, KindConfig:
		return k, nil
	default:
		return "", fmt.Errorf("unknown document kind %q (want result or config)", s)
	}
}

// DetectKind guesses the kind from the top-level keys: a document with a
// "variables" key is a result, anything else is treated as a config record.
func DetectKind(data []byte) (Kind, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return "", fmt.Errorf("not a JSON object: %w", err)
	}
	if _, ok := top["variables"]; ok {
		return KindResult, nil
	}
	return KindConfig, nil
}

// Problem is one schema violation.
type Problem struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

func (p Problem) String() string {
	var b strings.Builder
	if p.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", p.Line)
	}
	if p.Path != "" {
		b.WriteString(p.Path)
		b.WriteString(": ")
	}
	b.WriteString(p.Message)
	return b.String()
}

// ValidationError reports every violation found in a document.
type ValidationError struct {
	Kind     Kind
	Problems []Problem
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.String()
	}
	return fmt.Sprintf("invalid %s document: %s", e.Kind, strings.Join(msgs, "; "))
}

// Schema holds the compiled definitions. It is not safe for concurrent use.
type Schema struct {
	ctx  *cue.Context
	defs map[Kind]cue.Value
}

// New compiles the embedded definitions.
func New() (*Schema, error) {
	ctx := cuecontext.New()
	s := &Schema{ctx: ctx, defs: make(map[Kind]cue.Value, 2)}

	sources := []struct {
		kind Kind
		name string
		src  string
		def  string
	}{
		{KindResult, "result.cue", resultSchema, "#Result"},
		{KindConfig, "config.cue", configSchema, "#ConfigRecord"},
	}
	for _, src := range sources {
		v := ctx.CompileString(src.src, cue.Filename(src.name))
		if err := v.Err(); err != nil {
			return nil, fmt.Errorf("compile %s: %w", src.name, err)
		}
		def := v.LookupPath(cue.ParsePath(src.def))
		if !def.Exists() {
			return nil, fmt.Errorf("%s: definition %s not found", src.name, src.def)
		}
		s.defs[src.kind] = def
	}
	return s, nil
}

// Validate checks data, a JSON document read from filename, against kind.
// Schema violations are returned as a *ValidationError.
func (s *Schema) Validate(kind Kind, filename string, data []byte) error {
	def, ok := s.defs[kind]
	if !ok {
		return fmt.Errorf("unknown document kind %q", kind)
	}

	expr, err := cuejson.Extract(filename, data)
	if err != nil {
		return &ValidationError{Kind: kind, Problems: problems(err)}
	}
	doc := s.ctx.BuildExpr(expr)
	if err := doc.Err(); err != nil {
		return &ValidationError{Kind: kind, Problems: problems(err)}
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Kind: kind, Problems: problems(err)}
	}
	return nil
}

// Validate checks data against kind with a freshly compiled Schema.
func Validate(kind Kind, data []byte) error {
	s, err := New()
	if err != nil {
		return err
	}
	return s.Validate(kind, "<input>", data)
}

func problems(err error) []Problem {
	var out []Problem
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		p := Problem{
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		}
		if pos := e.Position(); pos.IsValid() {
			p.Line = pos.Line()
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		out = append(out, Problem{Message: err.Error()})
	}
	return out
}
