package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pcmcirun/internal/discovery"
	"github.com/roach88/pcmcirun/internal/runner"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Data is the scenario CSV, header first.
	Data string `yaml:"data"`

	// Settings are the run options. Zero values select the defaults.
	Settings Settings `yaml:"settings,omitempty"`

	// Engine scripts the discovery engine's response.
	Engine EngineScript `yaml:"engine"`

	// Expect is what the runner must report.
	Expect Expect `yaml:"expect"`
}

// Settings mirrors the run flags.
type Settings struct {
	GPDC             bool    `yaml:"gpdc,omitempty"`
	LinAlgErrorThrow bool    `yaml:"linalg_error_throw,omitempty"`
	Timeout          float64 `yaml:"timeout,omitempty"` // seconds
	TauMin           int     `yaml:"tau_min,omitempty"`
	TauMax           int     `yaml:"tau_max,omitempty"`
	Alpha            float64 `yaml:"alpha,omitempty"`
}

// EngineScript is the scripted engine response.
type EngineScript struct {
	// Links is the link dict: per target column, [source, lag] pairs.
	Links [][][2]int `yaml:"links,omitempty"`

	// Error makes the engine fail.
	Error *EngineFailure `yaml:"error,omitempty"`

	// Panic makes the engine panic with this value.
	Panic string `yaml:"panic,omitempty"`

	// Hang blocks the engine until it is cancelled. With IgnoreCancel it
	// keeps blocking after cancellation until the run has returned.
	Hang         bool `yaml:"hang,omitempty"`
	IgnoreCancel bool `yaml:"ignore_cancel,omitempty"`
}

// EngineFailure is a scripted engine error.
type EngineFailure struct {
	Kind    string `yaml:"kind"` // "linalg" or "other"
	Message string `yaml:"message"`
}

// Expect is the required runner outcome.
type Expect struct {
	Outcome runner.Outcome `yaml:"outcome"`
	Reason  runner.Reason  `yaml:"reason,omitempty"`

	// Parents is compared exactly when set. A fatal outcome has no parents.
	Parents map[string][]string `yaml:"parents,omitempty"`

	// EngineCalls, when set, is the number of times the engine must run.
	EngineCalls *int `yaml:"engine_calls,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "expects:" vs "expect:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[s.Name]; ok {
			return nil, fmt.Errorf("scenario name %q used by both %s and %s", s.Name, prev, path)
		}
		seen[s.Name] = path
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch s.Expect.Outcome {
	case runner.OutcomeSuccess, runner.OutcomeFallback, runner.OutcomeFatal:
	case "":
		return fmt.Errorf("expect.outcome is required")
	default:
		return fmt.Errorf("expect.outcome: unknown outcome %q", s.Expect.Outcome)
	}
	if s.Expect.Outcome == runner.OutcomeFatal && s.Expect.Parents != nil {
		return fmt.Errorf("expect.parents: a fatal run has no parents")
	}

	behaviours := 0
	if s.Engine.Error != nil {
		behaviours++
		switch s.Engine.Error.Kind {
		case discovery.KindLinAlg, discovery.KindOther:
		default:
			return fmt.Errorf("engine.error.kind: unknown kind %q", s.Engine.Error.Kind)
		}
	}
	if s.Engine.Panic != "" {
		behaviours++
	}
	if s.Engine.Hang {
		behaviours++
	}
	if behaviours > 1 {
		return fmt.Errorf("engine: error, panic and hang are mutually exclusive")
	}
	if s.Engine.IgnoreCancel && !s.Engine.Hang {
		return fmt.Errorf("engine.ignore_cancel requires hang")
	}

	for i, target := range s.Engine.Links {
		for j, link := range target {
			if link[0] < 0 || link[1] < 0 {
				return fmt.Errorf("engine.links[%d][%d]: source and lag must be non-negative", i, j)
			}
		}
	}

	return nil
}
