package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/pcmcirun/internal/runner"
)

// Snapshot is the golden view of a scenario execution.
type Snapshot struct {
	Scenario string           `json:"scenario"`
	Outcome  runner.Outcome   `json:"outcome"`
	Reason   runner.Reason    `json:"reason,omitempty"`
	Result   *runner.Document `json:"result,omitempty"`
}

// MarshalSnapshot renders a snapshot as indented JSON, newline terminated.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario, fails the test if any expect clause
// does not hold, and compares the snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	for _, e := range result.Errors {
		t.Errorf("scenario %s: %s", scenario.Name, e)
	}

	data, err := MarshalSnapshot(Snapshot{
		Scenario: scenario.Name,
		Outcome:  result.Outcome,
		Reason:   result.Reason,
		Result:   result.Document,
	})
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return result
}
